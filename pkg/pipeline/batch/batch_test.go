package batch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/vnykmshr/flowpipe/internal/testutil"
	gferrors "github.com/vnykmshr/flowpipe/pkg/common/errors"
	"github.com/vnykmshr/flowpipe/pkg/metrics"
	"github.com/vnykmshr/flowpipe/pkg/pipeline"
)

var errNotInt = errors.New("not an int")

func doubler(t *testing.T) pipeline.Pipeline {
	t.Helper()
	p, err := pipeline.New(pipeline.Config{ID: "double"}, pipeline.WithLogger(nil))
	testutil.AssertNoError(t, err)
	p.AddStageFunc("double", func(_ context.Context, input interface{}, _ *pipeline.ExecutionContext) (interface{}, error) {
		n, ok := input.(int)
		if !ok {
			return nil, errNotInt
		}
		return n * 2, nil
	})
	return p
}

func ints(n int) []Item {
	items := make([]Item, n)
	for i := range items {
		items[i] = Item{Input: i}
	}
	return items
}

func TestConfigValidation(t *testing.T) {
	p := doubler(t)

	_, err := New(nil, Config{})
	testutil.AssertErrorIs(t, err, gferrors.ErrInvalidConfiguration)

	for _, cfg := range []Config{
		{Workers: -1},
		{QueueSize: -1},
		{Rate: -1},
		{Burst: -1},
	} {
		if _, err := New(p, cfg); !errors.Is(err, gferrors.ErrInvalidConfiguration) {
			t.Errorf("New(%+v) error = %v, want invalid configuration", cfg, err)
		}
	}

	r, err := New(p, Config{})
	testutil.AssertNoError(t, err)
	if r.Workers() < 1 {
		t.Errorf("default workers = %d, want at least 1", r.Workers())
	}
	<-r.Shutdown()
}

func TestRunPreservesOrder(t *testing.T) {
	outcomes, err := Run(context.Background(), doubler(t), ints(50), Config{Workers: 4, QueueSize: 8})
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, len(outcomes), 50)

	for i, o := range outcomes {
		testutil.AssertNoError(t, o.Err)
		testutil.AssertEqual(t, o.Index, int64(i))
		testutil.AssertEqual(t, o.Result.Output, interface{}(i*2))
		testutil.AssertEqual(t, o.Status(), StatusSuccess)
	}
}

func TestRunReportsFailures(t *testing.T) {
	reg := metrics.NewRegistry(prometheus.NewRegistry())
	items := []Item{{Input: 1}, {Input: "x"}, {Input: 3}}

	outcomes, err := Run(context.Background(), doubler(t), items, Config{Name: "mixed", Workers: 2, Metrics: reg})
	testutil.AssertNoError(t, err)

	testutil.AssertErrorIs(t, outcomes[1].Err, errNotInt)
	testutil.AssertEqual(t, outcomes[1].Status(), StatusFailure)
	testutil.AssertEqual(t, outcomes[1].Result.Success, false)
	testutil.AssertEqual(t, outcomes[2].Result.Output, interface{}(6))

	testutil.AssertEqual(t, promtest.ToFloat64(reg.BatchSubmitted.WithLabelValues("mixed")), 3.0)
	testutil.AssertEqual(t, promtest.ToFloat64(reg.BatchCompleted.WithLabelValues("mixed", StatusSuccess)), 2.0)
	testutil.AssertEqual(t, promtest.ToFloat64(reg.BatchCompleted.WithLabelValues("mixed", StatusFailure)), 1.0)
	testutil.AssertEqual(t, promtest.ToFloat64(reg.BatchActive.WithLabelValues("mixed")), 0.0)
}

func TestRunCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcomes, err := Run(ctx, doubler(t), ints(3), Config{Workers: 1})
	testutil.AssertErrorIs(t, err, context.Canceled)
	testutil.AssertEqual(t, len(outcomes), 3)
	for _, o := range outcomes {
		if o.Result != nil {
			t.Errorf("item %d should not have run", o.Index)
		}
	}
}

func TestWorkersBoundConcurrency(t *testing.T) {
	var (
		active  int32
		maxSeen int32
	)
	p, err := pipeline.New(pipeline.Config{ID: "slow"}, pipeline.WithLogger(nil))
	testutil.AssertNoError(t, err)
	p.AddStageFunc("track", func(_ context.Context, input interface{}, _ *pipeline.ExecutionContext) (interface{}, error) {
		n := atomic.AddInt32(&active, 1)
		for {
			old := atomic.LoadInt32(&maxSeen)
			if n <= old || atomic.CompareAndSwapInt32(&maxSeen, old, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&active, -1)
		return input, nil
	})

	_, err = Run(context.Background(), p, ints(30), Config{Workers: 3})
	testutil.AssertNoError(t, err)
	if got := atomic.LoadInt32(&maxSeen); got > 3 {
		t.Errorf("max concurrent runs = %d, want at most 3", got)
	}
}

func TestSubmitAndResults(t *testing.T) {
	r, err := New(doubler(t), Config{Workers: 2, QueueSize: 4})
	testutil.AssertNoError(t, err)

	var (
		mu   sync.Mutex
		seen = make(map[int64]interface{})
		wg   sync.WaitGroup
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		for o := range r.Results() {
			mu.Lock()
			seen[o.Index] = o.Result.Output
			mu.Unlock()
		}
	}()

	for i := 0; i < 10; i++ {
		testutil.AssertNoError(t, r.Submit(context.Background(), i, nil))
	}
	<-r.Shutdown()
	wg.Wait()

	testutil.AssertEqual(t, len(seen), 10)
	testutil.AssertEqual(t, seen[7], interface{}(14))

	stats := r.Stats()
	testutil.AssertEqual(t, stats.Submitted, int64(10))
	testutil.AssertEqual(t, stats.Completed, int64(10))
	testutil.AssertEqual(t, stats.Failed, int64(0))
	testutil.AssertEqual(t, stats.Active, 0)

	err = r.Submit(context.Background(), 1, nil)
	testutil.AssertErrorIs(t, err, gferrors.ErrClosed)
}

func TestThrottledRuns(t *testing.T) {
	reg := metrics.NewRegistry(prometheus.NewRegistry())
	start := time.Now()

	outcomes, err := Run(context.Background(), doubler(t), ints(3), Config{
		Name:    "throttled",
		Workers: 3,
		Rate:    Every(50 * time.Millisecond),
		Burst:   1,
		Metrics: reg,
	})
	testutil.AssertNoError(t, err)

	// one immediate run, then one every 50ms
	if elapsed := time.Since(start); elapsed < 90*time.Millisecond {
		t.Errorf("three throttled runs took %v, want at least 100ms", elapsed)
	}
	var throttled int
	for _, o := range outcomes {
		testutil.AssertNoError(t, o.Err)
		if o.Throttled > 0 {
			throttled++
		}
	}
	testutil.AssertEqual(t, throttled, 2)
	testutil.AssertEqual(t, promtest.ToFloat64(reg.BatchThrottled.WithLabelValues("throttled")), 2.0)
}

func TestThrottleWaitCanceled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	outcomes, err := Run(ctx, doubler(t), ints(2), Config{
		Workers: 1,
		Rate:    Every(time.Hour),
		Burst:   1,
	})
	testutil.AssertNoError(t, err)

	testutil.AssertEqual(t, outcomes[0].Status(), StatusSuccess)
	testutil.AssertErrorIs(t, outcomes[1].Err, context.DeadlineExceeded)
	testutil.AssertEqual(t, outcomes[1].Status(), StatusCanceled)
	if outcomes[1].Result != nil {
		t.Error("canceled input should not reach the pipeline")
	}
}
