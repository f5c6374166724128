package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/vnykmshr/flowpipe/internal/testutil"
	gferrors "github.com/vnykmshr/flowpipe/pkg/common/errors"
	"github.com/vnykmshr/flowpipe/pkg/metrics"
)

func TestMetricsPipeline(t *testing.T) {
	mp, err := NewWithMetrics(Config{ID: "m", ErrorStrategy: Skip}, "orders", WithLogger(nil))
	testutil.AssertNoError(t, err)

	mp.AddStage(newTestStage("a")).AddStage(failingStage("b", 1))

	_, err = mp.Execute(context.Background(), "x", nil)
	testutil.AssertNoError(t, err)
	_, err = mp.Execute(context.Background(), "x", nil)
	testutil.AssertNoError(t, err)

	reg := mp.Registry()
	testutil.AssertEqual(t, promtest.ToFloat64(reg.PipelineExecutions.WithLabelValues("orders")), 2.0)
	testutil.AssertEqual(t, promtest.ToFloat64(reg.PipelineFailures.WithLabelValues("orders")), 0.0)
	testutil.AssertEqual(t, promtest.ToFloat64(reg.StageExecutions.WithLabelValues("orders", "a")), 2.0)
	testutil.AssertEqual(t, promtest.ToFloat64(reg.StageFailures.WithLabelValues("orders", "b")), 1.0)
}

func TestMetricsPipelineFailuresTimeoutsAndCacheHits(t *testing.T) {
	reg := prometheus.NewRegistry()
	mp, err := NewWithConfigAndMetrics(
		Config{ID: "m", EnableCache: true, CacheTTL: time.Minute, Timeout: 20 * time.Millisecond},
		"reports",
		metrics.Config{Enabled: true, Registry: reg},
		WithLogger(nil),
	)
	testutil.AssertNoError(t, err)

	block := newBlockingStage("block")
	mp.AddStage(block)

	result := <-mp.ExecuteAsync(context.Background(), "slow", nil)
	testutil.AssertErrorIs(t, result.Error, gferrors.ErrTimeout)
	close(block.release)
	testutil.WaitForInt32(t, &block.done, 1, waitTimeout)

	_, _ = mp.Execute(context.Background(), "slow", nil)
	_, _ = mp.Execute(context.Background(), "slow", nil)

	r := mp.Registry()
	testutil.AssertEqual(t, promtest.ToFloat64(r.PipelineExecutions.WithLabelValues("reports")), 3.0)
	testutil.AssertEqual(t, promtest.ToFloat64(r.PipelineFailures.WithLabelValues("reports")), 1.0)
	testutil.AssertEqual(t, promtest.ToFloat64(r.PipelineTimeouts.WithLabelValues("reports")), 1.0)
	testutil.AssertEqual(t, promtest.ToFloat64(r.PipelineCacheHits.WithLabelValues("reports")), 1.0)
}

func TestMetricsPipelineDisabled(t *testing.T) {
	mp, err := NewWithConfigAndMetrics(Config{ID: "m"}, "off", metrics.Config{Enabled: false}, WithLogger(nil))
	testutil.AssertNoError(t, err)
	if mp.Registry() != nil {
		t.Fatal("registry should be nil when metrics are disabled")
	}

	mp.AddStage(newTestStage("a"))
	result, err := mp.Execute(context.Background(), "x", nil)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, result.Output, interface{}("x->a"))
}

func TestMetricsPipelineClone(t *testing.T) {
	mp, err := NewWithMetrics(Config{ID: "m"}, "clone", WithLogger(nil))
	testutil.AssertNoError(t, err)
	mp.AddStage(newTestStage("a"))

	clone := mp.Clone()
	_, err = clone.Execute(context.Background(), "x", nil)
	testutil.AssertNoError(t, err)

	testutil.AssertEqual(t, promtest.ToFloat64(mp.Registry().PipelineExecutions.WithLabelValues("clone")), 1.0)
	testutil.AssertEqual(t, mp.Stats().TotalExecutions, int64(0))
}
