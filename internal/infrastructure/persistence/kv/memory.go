// Package kv provides the local key-value media behind the local event store:
// an in-memory medium scoped to the process and a durable SQLite medium.
package kv

import (
	"fmt"
	"sort"
	"sync"

	"github.com/AtRiskMedia/hugtrack-go/internal/domain/tracking"
)

// MemoryMedium keeps values for the lifetime of the process. A positive quota
// caps the total size of keys and values in bytes.
type MemoryMedium struct {
	mu     sync.RWMutex
	values map[string]string
	quota  int
	used   int
}

// NewMemoryMedium creates an unbounded in-memory medium.
func NewMemoryMedium() *MemoryMedium {
	return NewMemoryMediumWithQuota(0)
}

// NewMemoryMediumWithQuota creates an in-memory medium that rejects writes
// beyond quota bytes with tracking.ErrQuotaExceeded.
func NewMemoryMediumWithQuota(quota int) *MemoryMedium {
	return &MemoryMedium{values: make(map[string]string), quota: quota}
}

func (m *MemoryMedium) Get(key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *MemoryMedium) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	used := m.used + len(value)
	if old, ok := m.values[key]; ok {
		used -= len(old)
	} else {
		used += len(key)
	}
	if m.quota > 0 && used > m.quota {
		return fmt.Errorf("set %s: %w", key, tracking.ErrQuotaExceeded)
	}
	m.values[key] = value
	m.used = used
	return nil
}

func (m *MemoryMedium) Remove(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.values[key]; ok {
		m.used -= len(key) + len(old)
		delete(m.values, key)
	}
	return nil
}

// Keys returns every key in lexical order.
func (m *MemoryMedium) Keys() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.values))
	for k := range m.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// Len reports the number of stored keys.
func (m *MemoryMedium) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.values)
}
