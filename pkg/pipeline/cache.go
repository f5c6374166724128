package pipeline

import (
	"context"
	"encoding"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

// ResultCache stores whole-pipeline results. Implementations must be safe for
// concurrent use; concurrent runs writing the same key are last-write-wins.
//
// MemoryCache stores the output value itself, so the Output of a cached
// Result shares slices and maps with the entry. Callers must treat
// Result.Output as read-only when caching is enabled.
type ResultCache interface {
	// Get returns the live value stored under key.
	Get(ctx context.Context, key string) (interface{}, bool, error)

	// Set stores value under key for ttl.
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error

	// Clear removes every entry.
	Clear(ctx context.Context) error
}

type cacheEntry struct {
	value     interface{}
	expiresAt time.Time
}

// MemoryCache is an in-process ResultCache. Expired entries are removed when
// they are looked up.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	now     func() time.Time
}

// NewMemoryCache creates an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return NewMemoryCacheWithClock(time.Now)
}

// NewMemoryCacheWithClock creates a MemoryCache that reads time from now.
func NewMemoryCacheWithClock(now func() time.Time) *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]cacheEntry),
		now:     now,
	}
}

// Get implements ResultCache.
func (c *MemoryCache) Get(_ context.Context, key string) (interface{}, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !c.now().Before(entry.expiresAt) {
		delete(c.entries, key)
		return nil, false, nil
	}
	return entry.value, true, nil
}

// Set implements ResultCache.
func (c *MemoryCache) Set(_ context.Context, key string, value interface{}, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{value: value, expiresAt: c.now().Add(ttl)}
	return nil
}

// Clear implements ResultCache.
func (c *MemoryCache) Clear(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry)
	return nil
}

// Len returns the number of stored entries, including expired ones not yet evicted.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// CacheKey derives the structural cache key of (input, metadata). Map keys are
// serialized in sorted order, so equal structures hash equally. The dynamic
// type of every value is part of the key, so []byte and its base64 string do
// not collide. Values that cannot be JSON encoded (functions, channels) and
// structs with unexported fields return an error.
func CacheKey(input interface{}, metadata map[string]interface{}) (string, error) {
	if metadata == nil {
		metadata = map[string]interface{}{}
	}
	payload, err := json.Marshal(struct {
		Input    interface{}            `json:"input"`
		Metadata map[string]interface{} `json:"metadata"`
	}{input, metadata})
	if err != nil {
		return "", err
	}

	var types strings.Builder
	if err := writeTypes(&types, reflect.ValueOf(input)); err != nil {
		return "", err
	}
	types.WriteByte('|')
	if err := writeTypes(&types, reflect.ValueOf(metadata)); err != nil {
		return "", err
	}

	d := xxhash.New()
	_, _ = d.Write(payload)
	_, _ = d.WriteString("\x00")
	_, _ = d.WriteString(types.String())
	return strconv.FormatUint(d.Sum64(), 16), nil
}

var (
	jsonMarshalerType = reflect.TypeOf((*json.Marshaler)(nil)).Elem()
	textMarshalerType = reflect.TypeOf((*encoding.TextMarshaler)(nil)).Elem()
)

// writeTypes appends the dynamic type of v and of everything it contains.
// Map entries are emitted in sorted order.
func writeTypes(b *strings.Builder, v reflect.Value) error {
	if !v.IsValid() {
		b.WriteString("nil;")
		return nil
	}
	t := v.Type()
	b.WriteString(t.String())
	b.WriteByte(';')

	if marshalsItself(v) {
		return nil
	}

	switch v.Kind() {
	case reflect.Interface, reflect.Pointer:
		if v.IsNil() {
			return nil
		}
		return writeTypes(b, v.Elem())
	case reflect.Slice, reflect.Array:
		if t.Elem().Kind() == reflect.Uint8 {
			return nil
		}
		b.WriteByte('[')
		for i := 0; i < v.Len(); i++ {
			if err := writeTypes(b, v.Index(i)); err != nil {
				return err
			}
		}
		b.WriteByte(']')
	case reflect.Map:
		entries := make([]string, 0, v.Len())
		iter := v.MapRange()
		for iter.Next() {
			var eb strings.Builder
			eb.WriteString(fmt.Sprint(iter.Key().Interface()))
			eb.WriteByte('=')
			if err := writeTypes(&eb, iter.Value()); err != nil {
				return err
			}
			entries = append(entries, eb.String())
		}
		sort.Strings(entries)
		b.WriteByte('{')
		for _, e := range entries {
			b.WriteString(e)
		}
		b.WriteByte('}')
	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if !f.IsExported() || f.Tag.Get("json") == "-" {
				return fmt.Errorf("%s has fields hidden from JSON and cannot be keyed", t)
			}
		}
		b.WriteByte('{')
		for i := 0; i < t.NumField(); i++ {
			if err := writeTypes(b, v.Field(i)); err != nil {
				return err
			}
		}
		b.WriteByte('}')
	}
	return nil
}

// marshalsItself reports whether JSON encodes v through its own marshaler,
// as with time.Time.
func marshalsItself(v reflect.Value) bool {
	t := v.Type()
	if t.Implements(jsonMarshalerType) || t.Implements(textMarshalerType) {
		return true
	}
	if v.CanAddr() && t.Kind() != reflect.Pointer {
		pt := reflect.PointerTo(t)
		return pt.Implements(jsonMarshalerType) || pt.Implements(textMarshalerType)
	}
	return false
}
