package rediscache

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/vnykmshr/flowpipe/internal/testutil"
	gferrors "github.com/vnykmshr/flowpipe/pkg/common/errors"
	"github.com/vnykmshr/flowpipe/pkg/pipeline"
)

// newTestClient creates a redis.Client backed by miniredis.
func newTestClient(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mini, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mini.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mini.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb, mini
}

func TestNewValidation(t *testing.T) {
	_, err := New(Config{Prefix: "p"})
	testutil.AssertErrorIs(t, err, gferrors.ErrInvalidConfiguration)

	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer func() { _ = rdb.Close() }()

	_, err = New(Config{Redis: rdb})
	testutil.AssertErrorIs(t, err, gferrors.ErrInvalidConfiguration)

	c, err := New(Config{Redis: rdb, Prefix: "p"})
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, c.config.Timeout, 500*time.Millisecond)
	testutil.AssertEqual(t, c.config.ScanCount, int64(100))
}

func TestFactoryPrefixes(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer func() { _ = rdb.Close() }()

	newCache := Factory(rdb, "reports")
	a, ok := newCache().(*Cache)
	testutil.AssertEqual(t, ok, true)
	b := newCache().(*Cache)

	testutil.AssertEqual(t, strings.HasPrefix(a.Prefix(), "reports:"), true)
	if a.Prefix() == b.Prefix() {
		t.Fatal("each cache should get its own prefix")
	}

	_, isMemory := Factory(nil, "x")().(*pipeline.MemoryCache)
	testutil.AssertEqual(t, isMemory, true)
}

func TestUnreachableRedis(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer func() { _ = rdb.Close() }()

	c, err := New(Config{Redis: rdb, Prefix: "down", Timeout: time.Second})
	testutil.AssertNoError(t, err)

	_, _, err = c.Get(context.Background(), "k")
	var rerr *RedisError
	if !errors.As(err, &rerr) {
		t.Fatalf("expected *RedisError, got %v", err)
	}
	testutil.AssertEqual(t, rerr.Operation, "get")

	err = c.Set(context.Background(), "k", func() {}, time.Second)
	if !errors.As(err, &rerr) {
		t.Fatalf("expected *RedisError, got %v", err)
	}
	testutil.AssertEqual(t, rerr.Operation, "encode")
}

func TestCacheRoundTrip(t *testing.T) {
	rdb, mini := newTestClient(t)
	ctx := context.Background()

	c, err := New(Config{Redis: rdb, Prefix: "roundtrip"})
	testutil.AssertNoError(t, err)

	testutil.AssertNoError(t, c.Set(ctx, "k", map[string]interface{}{"n": 1, "s": "x"}, time.Minute))

	v, ok, err := c.Get(ctx, "k")
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, ok, true)
	testutil.AssertDeepEqual(t, v, map[string]interface{}{"n": 1.0, "s": "x"})

	_, ok, err = c.Get(ctx, "missing")
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, ok, false)

	testutil.AssertEqual(t, mini.Exists("roundtrip:k"), true)

	// keys outside the prefix survive Clear
	mini.Set("other:k", "keep")
	testutil.AssertNoError(t, c.Clear(ctx))
	_, ok, _ = c.Get(ctx, "k")
	testutil.AssertEqual(t, ok, false)
	testutil.AssertEqual(t, mini.Exists("other:k"), true)
}

func TestCacheClearManyKeys(t *testing.T) {
	rdb, mini := newTestClient(t)
	ctx := context.Background()

	c, err := New(Config{Redis: rdb, Prefix: "many", ScanCount: 7})
	testutil.AssertNoError(t, err)

	for i := 0; i < 50; i++ {
		testutil.AssertNoError(t, c.Set(ctx, strings.Repeat("k", i+1), i, time.Minute))
	}
	testutil.AssertEqual(t, len(mini.Keys()), 50)

	testutil.AssertNoError(t, c.Clear(ctx))
	testutil.AssertEqual(t, len(mini.Keys()), 0)
}

func TestCorruptValue(t *testing.T) {
	rdb, mini := newTestClient(t)

	c, err := New(Config{Redis: rdb, Prefix: "corrupt"})
	testutil.AssertNoError(t, err)
	testutil.AssertNoError(t, mini.Set("corrupt:k", "{not json"))

	_, _, err = c.Get(context.Background(), "k")
	var rerr *RedisError
	if !errors.As(err, &rerr) {
		t.Fatalf("expected *RedisError, got %v", err)
	}
}

func TestCacheExpiry(t *testing.T) {
	rdb, mini := newTestClient(t)
	ctx := context.Background()

	c, err := New(Config{Redis: rdb, Prefix: "expiry"})
	testutil.AssertNoError(t, err)

	testutil.AssertNoError(t, c.Set(ctx, "k", "v", 50*time.Millisecond))
	_, ok, err := c.Get(ctx, "k")
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, ok, true)

	mini.FastForward(100 * time.Millisecond)
	_, ok, err = c.Get(ctx, "k")
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, ok, false)
}

func TestPipelineWithRedisCache(t *testing.T) {
	rdb, _ := newTestClient(t)

	var calls int
	p, err := pipeline.New(pipeline.Config{ID: "redis", EnableCache: true, CacheTTL: time.Minute},
		pipeline.WithLogger(nil),
		pipeline.WithCache(Factory(rdb, "flowpipe-test")),
	)
	testutil.AssertNoError(t, err)
	t.Cleanup(p.Clear)

	p.AddStageFunc("count", func(_ context.Context, input interface{}, _ *pipeline.ExecutionContext) (interface{}, error) {
		calls++
		return []interface{}{input, calls}, nil
	})

	first, err := p.Execute(context.Background(), "in", nil)
	testutil.AssertNoError(t, err)
	second, err := p.Execute(context.Background(), "in", nil)
	testutil.AssertNoError(t, err)

	testutil.AssertEqual(t, second.Cached, true)
	testutil.AssertEqual(t, calls, 1)
	testutil.AssertDeepEqual(t, second.Output, []interface{}{"in", 1.0})
	testutil.AssertEqual(t, first.Cached, false)

	// clones get their own prefix and therefore their own entries
	clone := p.Clone()
	third, err := clone.Execute(context.Background(), "in", nil)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, third.Cached, false)
}
