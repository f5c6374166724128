package pipeline

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	gferrors "github.com/vnykmshr/flowpipe/pkg/common/errors"
	"github.com/vnykmshr/flowpipe/pkg/metrics"
)

// MetricsPipeline wraps a Pipeline with Prometheus metrics collection.
type MetricsPipeline struct {
	pipeline Pipeline
	name     string
	registry *metrics.Registry
	opts     []Option
}

// NewWithMetrics creates a pipeline with metrics recorded on a private registry.
func NewWithMetrics(config Config, name string, opts ...Option) (*MetricsPipeline, error) {
	// Use a separate registry for each metrics-enabled component to avoid conflicts
	return NewWithConfigAndMetrics(config, name, metrics.Config{
		Enabled:  true,
		Registry: prometheus.NewRegistry(),
	}, opts...)
}

// NewWithConfigAndMetrics creates a pipeline with custom metrics configuration.
// When metrics are disabled the wrapper records nothing.
func NewWithConfigAndMetrics(config Config, name string, metricsConfig metrics.Config, opts ...Option) (*MetricsPipeline, error) {
	var registry *metrics.Registry
	if metricsConfig.Enabled {
		registry = metrics.FromConfig(metricsConfig)
	}
	return newMetricsPipeline(config, name, registry, opts)
}

func newMetricsPipeline(config Config, name string, registry *metrics.Registry, opts []Option) (*MetricsPipeline, error) {
	mp := &MetricsPipeline{
		name:     name,
		registry: registry,
		opts:     opts,
	}

	all := opts
	if registry != nil {
		all = append(append([]Option{}, opts...), WithHooks(Hooks{
			OnStageComplete: mp.recordStage,
		}))
	}

	p, err := New(config, all...)
	if err != nil {
		return nil, err
	}
	mp.pipeline = p
	return mp, nil
}

func (mp *MetricsPipeline) recordStage(_ *ExecutionContext, step StepResult) {
	mp.registry.StageExecutions.WithLabelValues(mp.name, step.StageName).Inc()
	mp.registry.StageDuration.WithLabelValues(mp.name, step.StageName).Observe(step.Duration.Seconds())
	if !step.Success {
		mp.registry.StageFailures.WithLabelValues(mp.name, step.StageName).Inc()
	}
}

func (mp *MetricsPipeline) recordResult(result *Result) {
	if mp.registry == nil || result == nil {
		return
	}

	mp.registry.PipelineExecutions.WithLabelValues(mp.name).Inc()
	mp.registry.PipelineDuration.WithLabelValues(mp.name).Observe(result.Duration.Seconds())

	if result.Cached {
		mp.registry.PipelineCacheHits.WithLabelValues(mp.name).Inc()
	}
	if !result.Success {
		mp.registry.PipelineFailures.WithLabelValues(mp.name).Inc()
	}
	if errors.Is(result.Error, gferrors.ErrTimeout) {
		mp.registry.PipelineTimeouts.WithLabelValues(mp.name).Inc()
	}
}

// Registry returns the metrics registry, or nil when metrics are disabled.
func (mp *MetricsPipeline) Registry() *metrics.Registry {
	return mp.registry
}

// Execute runs the pipeline and records execution metrics.
func (mp *MetricsPipeline) Execute(ctx context.Context, input interface{}, metadata map[string]interface{}) (*Result, error) {
	result, err := mp.pipeline.Execute(ctx, input, metadata)
	mp.recordResult(result)
	return result, err
}

// ExecuteAsync runs the pipeline asynchronously and records execution metrics.
func (mp *MetricsPipeline) ExecuteAsync(ctx context.Context, input interface{}, metadata map[string]interface{}) <-chan *Result {
	resultCh := make(chan *Result, 1)

	go func() {
		defer close(resultCh)
		result, _ := mp.Execute(ctx, input, metadata)
		resultCh <- result
	}()

	return resultCh
}

// AddStage adds a stage to the pipeline.
func (mp *MetricsPipeline) AddStage(stage Stage) Pipeline {
	mp.pipeline.AddStage(stage)
	return mp
}

// AddStageFunc adds a stage function to the pipeline.
func (mp *MetricsPipeline) AddStageFunc(name string, fn func(ctx context.Context, input interface{}, exec *ExecutionContext) (interface{}, error)) Pipeline {
	mp.pipeline.AddStageFunc(name, fn)
	return mp
}

// InsertStageAt inserts a stage at index.
func (mp *MetricsPipeline) InsertStageAt(index int, stage Stage) error {
	return mp.pipeline.InsertStageAt(index, stage)
}

// RemoveStage removes the stage with the given name.
func (mp *MetricsPipeline) RemoveStage(name string) bool {
	return mp.pipeline.RemoveStage(name)
}

// GetStage returns the stage with the given name.
func (mp *MetricsPipeline) GetStage(name string) (Stage, bool) {
	return mp.pipeline.GetStage(name)
}

// GetStages returns all stages in the pipeline.
func (mp *MetricsPipeline) GetStages() []Stage {
	return mp.pipeline.GetStages()
}

// Clear removes all stages and invalidates the result cache.
func (mp *MetricsPipeline) Clear() {
	mp.pipeline.Clear()
}

// Clone returns an independent copy recording into the same registry.
func (mp *MetricsPipeline) Clone() Pipeline {
	clone, err := newMetricsPipeline(mp.pipeline.Config(), mp.name, mp.registry, mp.opts)
	if err != nil {
		// The config already passed validation.
		return mp.pipeline.Clone()
	}
	for _, s := range mp.pipeline.GetStages() {
		clone.pipeline.AddStage(s)
	}
	return clone
}

// Config returns a copy of the pipeline configuration.
func (mp *MetricsPipeline) Config() Config {
	return mp.pipeline.Config()
}

// Stats returns pipeline execution statistics.
func (mp *MetricsPipeline) Stats() Stats {
	return mp.pipeline.Stats()
}
