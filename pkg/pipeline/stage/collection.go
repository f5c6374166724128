package stage

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/vnykmshr/flowpipe/pkg/common/validation"
	"github.com/vnykmshr/flowpipe/pkg/pipeline"
)

// sortStage orders a sequence stably with a three-way comparator.
type sortStage struct {
	named
	cmp func(a, b interface{}) int
}

// SortCompare returns a stage that stably sorts a sequence using cmp, which
// returns a negative number when a sorts before b, zero when they are equal,
// and a positive number otherwise. Non-sequence input is returned unchanged.
func SortCompare(name string, cmp func(a, b interface{}) int) (pipeline.Stage, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	if err := checkFunc("cmp", cmp == nil); err != nil {
		return nil, err
	}
	return &sortStage{named: named{name}, cmp: cmp}, nil
}

// Sort returns a stage that stably sorts a sequence using less.
func Sort(name string, less func(a, b interface{}) bool) (pipeline.Stage, error) {
	if err := checkFunc("less", less == nil); err != nil {
		return nil, err
	}
	return SortCompare(name, func(a, b interface{}) int {
		switch {
		case less(a, b):
			return -1
		case less(b, a):
			return 1
		default:
			return 0
		}
	})
}

// SortBy returns a stage that stably sorts a sequence by key(item). Keys are
// compared numerically, as strings, or as times; keys of mixed or other kinds
// compare by their fmt.Sprint form.
func SortBy(name string, key func(item interface{}) interface{}, desc bool) (pipeline.Stage, error) {
	if err := checkFunc("key", key == nil); err != nil {
		return nil, err
	}
	return SortCompare(name, func(a, b interface{}) int {
		c := Compare(key(a), key(b))
		if desc {
			return -c
		}
		return c
	})
}

func (s *sortStage) Process(_ context.Context, input interface{}, _ *pipeline.ExecutionContext) (interface{}, error) {
	items, ok := ToSlice(input)
	if !ok {
		return input, nil
	}

	out := make([]interface{}, len(items))
	copy(out, items)
	sort.SliceStable(out, func(i, j int) bool {
		return s.cmp(out[i], out[j]) < 0
	})
	return out, nil
}

// Compare orders two dynamically typed values. Numbers of any kind compare
// numerically, strings lexically, times chronologically, and false sorts
// before true. nil sorts first. Anything else compares by fmt.Sprint.
func Compare(a, b interface{}) int {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0
		case a == nil:
			return -1
		default:
			return 1
		}
	}

	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			switch {
			case fa < fb:
				return -1
			case fa > fb:
				return 1
			default:
				return 0
			}
		}
	}

	switch av := a.(type) {
	case string:
		if bv, ok := b.(string); ok {
			return strings.Compare(av, bv)
		}
	case time.Time:
		if bv, ok := b.(time.Time); ok {
			return av.Compare(bv)
		}
	case bool:
		if bv, ok := b.(bool); ok {
			switch {
			case av == bv:
				return 0
			case !av:
				return -1
			default:
				return 1
			}
		}
	}

	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func toFloat(v interface{}) (float64, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	default:
		return 0, false
	}
}

type groupByStage struct {
	named
	key func(item interface{}) interface{}
}

// GroupBy returns a stage mapping a sequence to map[string][]interface{},
// keyed by fmt.Sprint(key(item)). Items keep their input order within a
// group. Non-sequence input yields an empty map.
func GroupBy(name string, key func(item interface{}) interface{}) (pipeline.Stage, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	if err := checkFunc("key", key == nil); err != nil {
		return nil, err
	}
	return &groupByStage{named: named{name}, key: key}, nil
}

func (s *groupByStage) Process(_ context.Context, input interface{}, _ *pipeline.ExecutionContext) (interface{}, error) {
	groups := make(map[string][]interface{})
	items, ok := ToSlice(input)
	if !ok {
		return groups, nil
	}
	for _, item := range items {
		k := fmt.Sprint(s.key(item))
		groups[k] = append(groups[k], item)
	}
	return groups, nil
}

type aggregateStage struct {
	named
	seed interface{}
	fn   func(acc, item interface{}) interface{}
}

// Aggregate returns a stage that left-folds a sequence into a single value,
// starting from seed. Non-sequence input yields seed.
func Aggregate(name string, seed interface{}, fn func(acc, item interface{}) interface{}) (pipeline.Stage, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	if err := checkFunc("fn", fn == nil); err != nil {
		return nil, err
	}
	return &aggregateStage{named: named{name}, seed: seed, fn: fn}, nil
}

func (s *aggregateStage) Process(_ context.Context, input interface{}, _ *pipeline.ExecutionContext) (interface{}, error) {
	acc := s.seed
	items, ok := ToSlice(input)
	if !ok {
		return acc, nil
	}
	for _, item := range items {
		acc = s.fn(acc, item)
	}
	return acc, nil
}

type uniqueStage struct {
	named
	key func(item interface{}) interface{}
}

// Unique returns a stage that removes duplicates from a sequence, keeping the
// first occurrence and the input order. Items are compared by key(item), or
// by value when key is nil. Non-sequence input is returned unchanged.
func Unique(name string, key func(item interface{}) interface{}) (pipeline.Stage, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	return &uniqueStage{named: named{name}, key: key}, nil
}

func (s *uniqueStage) Process(_ context.Context, input interface{}, _ *pipeline.ExecutionContext) (interface{}, error) {
	items, ok := ToSlice(input)
	if !ok {
		return input, nil
	}

	seen := make(map[interface{}]struct{})
	var unhashable []interface{}
	out := make([]interface{}, 0, len(items))

	for _, item := range items {
		k := item
		if s.key != nil {
			k = s.key(item)
		}

		if k == nil || reflect.ValueOf(k).Comparable() {
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
		} else {
			if containsDeep(unhashable, k) {
				continue
			}
			unhashable = append(unhashable, k)
		}
		out = append(out, item)
	}
	return out, nil
}

func containsDeep(list []interface{}, v interface{}) bool {
	for _, x := range list {
		if reflect.DeepEqual(x, v) {
			return true
		}
	}
	return false
}

type paginateStage struct {
	named
	page int
	size int
}

// Paginate returns a stage that slices a sequence to the 1-based page of the
// given size. Pages past the end yield an empty slice. Non-sequence input is
// returned unchanged.
func Paginate(name string, page, size int) (pipeline.Stage, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	if err := validation.ValidatePositive(module, "page", page); err != nil {
		return nil, err
	}
	if err := validation.ValidatePositive(module, "size", size); err != nil {
		return nil, err
	}
	return &paginateStage{named: named{name}, page: page, size: size}, nil
}

func (s *paginateStage) Process(_ context.Context, input interface{}, _ *pipeline.ExecutionContext) (interface{}, error) {
	items, ok := ToSlice(input)
	if !ok {
		return input, nil
	}

	// Compare in pages so the offset cannot overflow.
	if len(items) == 0 || s.page-1 > (len(items)-1)/s.size {
		return []interface{}{}, nil
	}
	start := (s.page - 1) * s.size
	end := len(items)
	if len(items)-start > s.size {
		end = start + s.size
	}

	out := make([]interface{}, end-start)
	copy(out, items[start:end])
	return out, nil
}

type flattenStage struct {
	named
	depth int
}

// Flatten returns a stage that splices nested sequences into their parent up
// to depth levels. Depth 0 returns the input unchanged. Non-sequence input is
// returned unchanged.
func Flatten(name string, depth int) (pipeline.Stage, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	if err := validation.ValidateNonNegative(module, "depth", depth); err != nil {
		return nil, err
	}
	return &flattenStage{named: named{name}, depth: depth}, nil
}

func (s *flattenStage) Process(_ context.Context, input interface{}, _ *pipeline.ExecutionContext) (interface{}, error) {
	if s.depth == 0 {
		return input, nil
	}
	items, ok := ToSlice(input)
	if !ok {
		return input, nil
	}
	return flatten(make([]interface{}, 0, len(items)), items, s.depth), nil
}

func flatten(out, items []interface{}, depth int) []interface{} {
	for _, item := range items {
		if depth > 0 {
			if nested, ok := ToSlice(item); ok {
				out = flatten(out, nested, depth-1)
				continue
			}
		}
		out = append(out, item)
	}
	return out
}
