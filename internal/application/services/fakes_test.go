package services

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/AtRiskMedia/hugtrack-go/internal/domain/tracking"
	"github.com/AtRiskMedia/hugtrack-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/hugtrack-go/internal/infrastructure/persistence/kv"
	"github.com/AtRiskMedia/hugtrack-go/internal/infrastructure/persistence/local"
	"github.com/goccy/go-json"
)

var (
	errUnreachable = errors.New("remote unreachable")
	testBase       = time.Date(2026, 5, 6, 14, 0, 0, 0, time.UTC)
	testKeys       = tracking.NewKeys("app")
)

// testClock is a settable clock shared by every service under test.
type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock(t time.Time) *testClock { return &testClock{t: t} }

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// fakeRemote is an in-memory RemoteStore whose reachability can be toggled.
type fakeRemote struct {
	mu         sync.Mutex
	available  bool
	failWrites bool
	docs       map[tracking.Collection]map[string]tracking.Document
	onErr      []func(error)
	puts       int
}

func newFakeRemote(available bool) *fakeRemote {
	return &fakeRemote{available: available, docs: make(map[tracking.Collection]map[string]tracking.Document)}
}

func (f *fakeRemote) setAvailable(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.available = v
}

func (f *fakeRemote) count(c tracking.Collection) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.docs[c])
}

func (f *fakeRemote) raw(c tracking.Collection, id string, data string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.docs[c] == nil {
		f.docs[c] = make(map[string]tracking.Document)
	}
	f.docs[c][id] = tracking.Document{ID: id, Timestamp: testBase, Data: []byte(data)}
}

// failSubscriptions reports err to every open subscription.
func (f *fakeRemote) failSubscriptions(err error) {
	f.mu.Lock()
	handlers := append([]func(error){}, f.onErr...)
	f.mu.Unlock()
	for _, h := range handlers {
		h(err)
	}
}

func (f *fakeRemote) Available(context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.available
}

func (f *fakeRemote) Put(_ context.Context, c tracking.Collection, doc tracking.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWrites {
		return errUnreachable
	}
	if f.docs[c] == nil {
		f.docs[c] = make(map[string]tracking.Document)
	}
	merged := map[string]json.RawMessage{}
	if existing, ok := f.docs[c][doc.ID]; ok {
		_ = json.Unmarshal(existing.Data, &merged)
	}
	var patch map[string]json.RawMessage
	if err := json.Unmarshal(doc.Data, &patch); err != nil {
		return err
	}
	for k, v := range patch {
		merged[k] = v
	}
	data, err := json.Marshal(merged)
	if err != nil {
		return err
	}
	f.docs[c][doc.ID] = tracking.Document{ID: doc.ID, Timestamp: doc.Timestamp, Data: data}
	f.puts++
	return nil
}

func (f *fakeRemote) Get(_ context.Context, c tracking.Collection, id string) (tracking.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[c][id]
	if !ok {
		return tracking.Document{}, tracking.ErrNotFound
	}
	return doc, nil
}

func (f *fakeRemote) Query(_ context.Context, c tracking.Collection, q tracking.Query) ([]tracking.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	docs := make([]tracking.Document, 0, len(f.docs[c]))
	for _, d := range f.docs[c] {
		docs = append(docs, d)
	}
	sort.Slice(docs, func(i, j int) bool {
		if docs[i].Timestamp.Equal(docs[j].Timestamp) {
			return docs[i].ID > docs[j].ID
		}
		return docs[i].Timestamp.After(docs[j].Timestamp)
	})
	if q.Limit > 0 && len(docs) > q.Limit {
		docs = docs[:q.Limit]
	}
	return docs, nil
}

func (f *fakeRemote) Delete(_ context.Context, c tracking.Collection, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.docs[c], id)
	return nil
}

func (f *fakeRemote) Subscribe(ctx context.Context, c tracking.Collection, q tracking.Query, onDocs func([]tracking.Document), onErr func(error)) (func(), error) {
	docs, err := f.Query(ctx, c, q)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.onErr = append(f.onErr, onErr)
	f.mu.Unlock()
	onDocs(docs)
	return func() {}, nil
}

func (f *fakeRemote) Close() error { return nil }

// fixedIdentity hands out constant identifiers.
type fixedIdentity struct{ user, session string }

func (i fixedIdentity) GetOrCreateUserID() string    { return i.user }
func (i fixedIdentity) GetOrCreateSessionID() string { return i.session }

// brokenMedium fails every operation.
type brokenMedium struct{}

func (brokenMedium) Get(string) (string, bool, error) { return "", false, errUnreachable }
func (brokenMedium) Set(string, string) error         { return errUnreachable }
func (brokenMedium) Remove(string) error              { return errUnreachable }
func (brokenMedium) Keys() ([]string, error)          { return nil, errUnreachable }

func newTestSink(t *testing.T, remote tracking.RemoteStore, clock *testClock) (*SinkService, *local.EventStore) {
	t.Helper()
	store := local.NewEventStore(kv.NewMemoryMedium(), testKeys, logging.NewDiscardLogger())
	sink := NewSinkService(SinkConfig{
		Remote:   remote,
		Local:    store,
		Identity: fixedIdentity{user: "user_1", session: "session_1"},
		Logger:   logging.NewDiscardLogger(),
		Now:      clock.Now,
	})
	return sink, store
}
