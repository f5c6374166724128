package stage

import (
	"context"
	"sync"
	"time"

	"github.com/vnykmshr/flowpipe/pkg/common/validation"
	"github.com/vnykmshr/flowpipe/pkg/pipeline"
)

type memoEntry struct {
	value     interface{}
	expiresAt time.Time
}

// Memoizer is a stage-local expiring cache.
//
// It stores its own input, not a downstream result: on a miss it records
// (input, now+ttl) under key(input) and returns the input; on a hit it
// returns the value recorded earlier for that key, which may differ from the
// current input when key maps distinct inputs together. This passthrough
// behavior is intentional.
type Memoizer struct {
	named
	ttl time.Duration
	key func(input interface{}) string
	now func() time.Time

	mu      sync.Mutex
	entries map[string]memoEntry
}

// MemoizeOption configures a Memoizer.
type MemoizeOption func(*Memoizer)

// WithClock sets the time source used for expiry.
func WithClock(now func() time.Time) MemoizeOption {
	return func(m *Memoizer) {
		if now != nil {
			m.now = now
		}
	}
}

// Memoize returns a memoizing stage whose entries live for ttl.
func Memoize(name string, ttl time.Duration, key func(input interface{}) string, opts ...MemoizeOption) (*Memoizer, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	if err := validation.ValidatePositiveDuration(module, "ttl", ttl); err != nil {
		return nil, err
	}
	if err := checkFunc("key", key == nil); err != nil {
		return nil, err
	}

	m := &Memoizer{
		named:   named{name},
		ttl:     ttl,
		key:     key,
		now:     time.Now,
		entries: make(map[string]memoEntry),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Process implements pipeline.Stage.
func (m *Memoizer) Process(_ context.Context, input interface{}, _ *pipeline.ExecutionContext) (interface{}, error) {
	k := m.key(input)
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	if entry, ok := m.entries[k]; ok {
		if now.Before(entry.expiresAt) {
			return entry.value, nil
		}
		delete(m.entries, k)
	}

	m.entries[k] = memoEntry{value: input, expiresAt: now.Add(m.ttl)}
	return input, nil
}

// Clear drops every entry.
func (m *Memoizer) Clear() {
	m.mu.Lock()
	m.entries = make(map[string]memoEntry)
	m.mu.Unlock()
}

// Len returns the number of entries, including expired ones not yet looked up.
func (m *Memoizer) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
