package scheduler

import (
	"context"
	"errors"
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

func doubler(t *testing.T, id string) pipeline.Pipeline {
	t.Helper()
	p, err := pipeline.New(pipeline.Config{ID: id}, pipeline.WithLogger(nil))
	testutil.AssertNoError(t, err)
	p.AddStageFunc("double", func(_ context.Context, input interface{}, _ *pipeline.ExecutionContext) (interface{}, error) {
		n, ok := input.(int)
		if !ok {
			return nil, errors.New("not an int")
		}
		return n * 2, nil
	})
	return p
}

func constSource(v interface{}) SourceFunc {
	return func(context.Context) (interface{}, map[string]interface{}, error) {
		return v, map[string]interface{}{"source": "test"}, nil
	}
}

func TestScheduleValidation(t *testing.T) {
	s := New(Config{})
	defer func() { <-s.Stop() }()

	p := doubler(t, "p")
	testutil.AssertErrorIs(t, s.Schedule("", "@hourly", p, nil, nil), gferrors.ErrInvalidConfiguration)
	testutil.AssertErrorIs(t, s.Schedule("a", "@hourly", nil, nil, nil), gferrors.ErrInvalidConfiguration)
	testutil.AssertErrorIs(t, s.Schedule("a", "not a spec", p, nil, nil), gferrors.ErrInvalidConfiguration)

	testutil.AssertNoError(t, s.Schedule("a", "@hourly", p, nil, nil))
	testutil.AssertErrorIs(t, s.Schedule("a", "@daily", p, nil, nil), gferrors.ErrAlreadyExists)

	// both five and six field specs parse
	testutil.AssertNoError(t, s.Schedule("five", "*/5 * * * *", p, nil, nil))
	testutil.AssertNoError(t, s.Schedule("six", "*/30 * * * * *", p, nil, nil))
}

func TestListAndCancel(t *testing.T) {
	reg := metrics.NewRegistry(prometheus.NewRegistry())
	s := New(Config{Name: "list", Metrics: reg})
	defer func() { <-s.Stop() }()

	testutil.AssertNoError(t, s.Schedule("b", "@hourly", doubler(t, "pb"), nil, nil))
	testutil.AssertNoError(t, s.Schedule("a", "@daily", doubler(t, "pa"), nil, nil))
	testutil.AssertEqual(t, promtest.ToFloat64(reg.SchedulerJobs.WithLabelValues("list")), 2.0)

	jobs := s.List()
	testutil.AssertEqual(t, len(jobs), 2)
	testutil.AssertEqual(t, jobs[0].ID, "a")
	testutil.AssertEqual(t, jobs[0].PipelineID, "pa")
	testutil.AssertEqual(t, jobs[1].Spec, "@hourly")
	if !jobs[1].NextRun.After(time.Now()) {
		t.Fatalf("next run %v should be in the future", jobs[1].NextRun)
	}

	testutil.AssertEqual(t, s.Cancel("a"), true)
	testutil.AssertEqual(t, s.Cancel("a"), false)
	testutil.AssertEqual(t, len(s.List()), 1)
	testutil.AssertEqual(t, promtest.ToFloat64(reg.SchedulerJobs.WithLabelValues("list")), 1.0)
}

func TestRunNow(t *testing.T) {
	reg := metrics.NewRegistry(prometheus.NewRegistry())
	s := New(Config{Metrics: reg})
	defer func() { <-s.Stop() }()

	var sunk *pipeline.Result
	sink := func(_ context.Context, r *pipeline.Result) { sunk = r }
	testutil.AssertNoError(t, s.Schedule("ok", "@hourly", doubler(t, "p"), constSource(21), sink))

	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	result, err := s.RunNow(ctx, "ok")
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, result.Output, interface{}(42))
	testutil.AssertEqual(t, sunk, result)
	source, _ := result.Context.Get("source")
	testutil.AssertEqual(t, source, interface{}("test"))

	jobs := s.List()
	testutil.AssertEqual(t, jobs[0].Runs, int64(1))
	testutil.AssertEqual(t, jobs[0].Failures, int64(0))
	testutil.AssertEqual(t, promtest.ToFloat64(reg.SchedulerRuns.WithLabelValues("ok")), 1.0)

	_, err = s.RunNow(ctx, "missing")
	testutil.AssertErrorIs(t, err, gferrors.ErrNotFound)
}

func TestRunNowFailures(t *testing.T) {
	reg := metrics.NewRegistry(prometheus.NewRegistry())
	s := New(Config{Metrics: reg})
	defer func() { <-s.Stop() }()

	sourceErr := errors.New("source down")
	failingSource := func(context.Context) (interface{}, map[string]interface{}, error) {
		return nil, nil, sourceErr
	}
	testutil.AssertNoError(t, s.Schedule("src", "@hourly", doubler(t, "p"), failingSource, nil))
	testutil.AssertNoError(t, s.Schedule("bad-input", "@hourly", doubler(t, "p"), constSource("x"), nil))

	_, err := s.RunNow(context.Background(), "src")
	testutil.AssertErrorIs(t, err, sourceErr)

	result, err := s.RunNow(context.Background(), "bad-input")
	testutil.AssertError(t, err)
	testutil.AssertEqual(t, result.Success, false)

	testutil.AssertEqual(t, promtest.ToFloat64(reg.SchedulerFailures.WithLabelValues("src")), 1.0)
	testutil.AssertEqual(t, promtest.ToFloat64(reg.SchedulerFailures.WithLabelValues("bad-input")), 1.0)
	testutil.AssertEqual(t, promtest.ToFloat64(reg.SchedulerRuns.WithLabelValues("src")), 0.0)

	for _, j := range s.List() {
		testutil.AssertEqual(t, j.Failures, int64(1))
	}
}

func TestScheduledRuns(t *testing.T) {
	s := New(Config{})

	var runs int32
	sink := func(_ context.Context, r *pipeline.Result) {
		if r.Success {
			atomic.AddInt32(&runs, 1)
		}
	}
	testutil.AssertNoError(t, s.Schedule("every-second", "* * * * * *", doubler(t, "p"), constSource(1), sink))

	s.Start()
	testutil.WaitForInt32(t, &runs, 1, 3*time.Second)
	<-s.Stop()

	jobs := s.List()
	if jobs[0].PrevRun.IsZero() {
		t.Fatal("PrevRun should be set after a scheduled run")
	}
}

func TestOverlappingRunsAreSkipped(t *testing.T) {
	s := New(Config{})

	var started int32
	release := make(chan struct{})
	slowSource := func(context.Context) (interface{}, map[string]interface{}, error) {
		atomic.AddInt32(&started, 1)
		<-release
		return 1, nil, nil
	}
	testutil.AssertNoError(t, s.Schedule("slow", "* * * * * *", doubler(t, "p"), slowSource, nil))

	s.Start()
	testutil.WaitForInt32(t, &started, 1, 3*time.Second)

	// let at least one more tick pass while the first run is blocked
	time.Sleep(1500 * time.Millisecond)
	testutil.AssertEqual(t, atomic.LoadInt32(&started), int32(1))

	s.Cancel("slow")
	close(release)
	<-s.Stop()
}

func TestStopCancelsSourceContext(t *testing.T) {
	s := New(Config{})

	var canceled int32
	blocking := func(ctx context.Context) (interface{}, map[string]interface{}, error) {
		<-ctx.Done()
		atomic.AddInt32(&canceled, 1)
		return nil, nil, ctx.Err()
	}
	var started int32
	src := func(ctx context.Context) (interface{}, map[string]interface{}, error) {
		atomic.AddInt32(&started, 1)
		return blocking(ctx)
	}
	testutil.AssertNoError(t, s.Schedule("block", "* * * * * *", doubler(t, "p"), src, nil))

	s.Start()
	testutil.WaitForInt32(t, &started, 1, 3*time.Second)

	select {
	case <-s.Stop():
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not finish")
	}
	testutil.AssertEqual(t, atomic.LoadInt32(&canceled), int32(1))
}
