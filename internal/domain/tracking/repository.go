package tracking

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound          = errors.New("record not found")
	ErrMalformedRecord   = errors.New("malformed record")
	ErrQuotaExceeded     = errors.New("storage quota exceeded")
	ErrRemoteUnavailable = errors.New("remote store unavailable")
	ErrInvalidTheme      = errors.New("invalid theme")
)

// Medium is a persistent string key-value store, the local analogue of browser
// storage. Set must either store the full value or leave the old one intact.
type Medium interface {
	Get(key string) (value string, ok bool, err error)
	Set(key, value string) error
	Remove(key string) error
	Keys() ([]string, error)
}

// Collection names a remote document collection.
type Collection string

const (
	CollectionUsers     Collection = "users"
	CollectionHugs      Collection = "hugs"
	CollectionAnalytics Collection = "analytics"
	CollectionSettings  Collection = "settings"
)

// Document is a JSON object stored in a remote collection.
type Document struct {
	ID        string
	Timestamp time.Time
	Data      []byte
}

// Query selects the most recent documents of a collection, newest first.
// A zero Limit returns every document.
type Query struct {
	Limit int
}

// RemoteStore is the network document store. Writes are upserts that merge
// top-level fields into an existing document.
type RemoteStore interface {
	// Available probes whether the store is initialized and reachable.
	Available(ctx context.Context) bool
	Put(ctx context.Context, c Collection, doc Document) error
	Get(ctx context.Context, c Collection, id string) (Document, error)
	Query(ctx context.Context, c Collection, q Query) ([]Document, error)
	Delete(ctx context.Context, c Collection, id string) error
	// Subscribe pushes the current result of q and every change after it.
	// After onErr is called no further pushes are made.
	Subscribe(ctx context.Context, c Collection, q Query, onDocs func([]Document), onErr func(error)) (cancel func(), err error)
	Close() error
}

// BackendKind names the store that served an operation.
type BackendKind string

const (
	BackendRemote BackendKind = "remote"
	BackendLocal  BackendKind = "local"
)

// Result is the structured outcome of a write. Writes never fault the caller.
type Result struct {
	Success bool        `json:"success"`
	Backend BackendKind `json:"backend,omitempty"`
	ID      string      `json:"id,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// Succeeded builds a successful Result.
func Succeeded(backend BackendKind, id string) Result {
	return Result{Success: true, Backend: backend, ID: id}
}

// Failed builds a failed Result from err.
func Failed(backend BackendKind, err error) Result {
	r := Result{Success: false, Backend: backend}
	if err != nil {
		r.Error = err.Error()
	}
	return r
}

// Topic names a subscribable event feed.
type Topic string

const (
	TopicAnalytics Topic = "analytics"
	TopicHugs      Topic = "hugs"
)

// Collection returns the remote collection backing the topic.
func (t Topic) Collection() Collection {
	if t == TopicHugs {
		return CollectionHugs
	}
	return CollectionAnalytics
}

// Feed is one delivery of a subscription, newest event first.
type Feed struct {
	Topic     Topic            `json:"topic"`
	Backend   BackendKind      `json:"backend"`
	Analytics []AnalyticsEvent `json:"analytics,omitempty"`
	Hugs      []HugEvent       `json:"hugs,omitempty"`
}

// ProfileScan is the result of reading every stored profile.
type ProfileScan struct {
	Profiles []UserProfile
	Skipped  int
}
