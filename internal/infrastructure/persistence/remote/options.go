// Package remote provides the network document stores behind the sink: a
// libsql (Turso) store, a Redis store with pub/sub change notification, and a
// circuit-breaker decorator shared by both.
package remote

import (
	"strconv"
	"strings"
	"time"

	"github.com/AtRiskMedia/hugtrack-go/internal/domain/tracking"
	"github.com/goccy/go-json"
)

// Options tunes probing and change feeds of a remote store.
type Options struct {
	ProbeTimeout  time.Duration
	PollInterval  time.Duration
	SlowThreshold time.Duration
}

// DefaultOptions returns conservative defaults.
func DefaultOptions() Options {
	return Options{
		ProbeTimeout:  2 * time.Second,
		PollInterval:  3 * time.Second,
		SlowThreshold: 500 * time.Millisecond,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.ProbeTimeout <= 0 {
		o.ProbeTimeout = d.ProbeTimeout
	}
	if o.PollInterval <= 0 {
		o.PollInterval = d.PollInterval
	}
	if o.SlowThreshold <= 0 {
		o.SlowThreshold = d.SlowThreshold
	}
	return o
}

// mergeDocuments overlays the top-level fields of patch onto base.
func mergeDocuments(base, patch []byte) ([]byte, error) {
	merged := map[string]json.RawMessage{}
	if len(base) > 0 {
		if err := json.Unmarshal(base, &merged); err != nil {
			// An unreadable stored document is replaced rather than merged.
			merged = map[string]json.RawMessage{}
		}
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(patch, &fields); err != nil {
		return nil, err
	}
	for k, v := range fields {
		merged[k] = v
	}
	return json.Marshal(merged)
}

// signature identifies a query result so unchanged polls are not pushed.
func signature(docs []tracking.Document) string {
	var b strings.Builder
	for _, d := range docs {
		b.WriteString(d.ID)
		b.WriteByte('@')
		b.WriteString(d.Timestamp.UTC().Format(time.RFC3339Nano))
		b.WriteByte('#')
		b.WriteString(strconv.Itoa(len(d.Data)))
		b.WriteByte(';')
	}
	return b.String()
}
