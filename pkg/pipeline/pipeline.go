package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	gfcontext "github.com/vnykmshr/flowpipe/pkg/common/context"
	gferrors "github.com/vnykmshr/flowpipe/pkg/common/errors"
	"github.com/vnykmshr/flowpipe/pkg/logging"
)

// Pipeline represents an ordered list of stages that process data sequentially.
type Pipeline interface {
	// Execute runs the pipeline with the given input and metadata. It always
	// returns a Result; the error is Result.Error and is nil on success.
	Execute(ctx context.Context, input interface{}, metadata map[string]interface{}) (*Result, error)

	// ExecuteAsync runs the pipeline asynchronously and returns a channel for the result.
	ExecuteAsync(ctx context.Context, input interface{}, metadata map[string]interface{}) <-chan *Result

	// AddStage appends a stage to the pipeline.
	AddStage(stage Stage) Pipeline

	// AddStageFunc appends a stage function to the pipeline.
	AddStageFunc(name string, fn func(ctx context.Context, input interface{}, exec *ExecutionContext) (interface{}, error)) Pipeline

	// InsertStageAt inserts a stage before position index. index may equal the
	// number of stages, which appends.
	InsertStageAt(index int, stage Stage) error

	// RemoveStage removes the stage with the given name.
	RemoveStage(name string) bool

	// GetStage returns the stage with the given name.
	GetStage(name string) (Stage, bool)

	// GetStages returns all stages in the pipeline.
	GetStages() []Stage

	// Clear removes all stages and invalidates the result cache.
	Clear()

	// Clone returns a pipeline sharing this pipeline's config and stage
	// instances, with its own cache and statistics.
	Clone() Pipeline

	// Config returns a copy of the pipeline configuration.
	Config() Config

	// Stats returns pipeline execution statistics.
	Stats() Stats
}

// pipeline implements the Pipeline interface.
type pipeline struct {
	config Config
	opts   options
	cache  ResultCache

	mu     sync.RWMutex
	stages []Stage

	statsMu sync.Mutex
	stats   Stats
}

// New creates a pipeline with no stages. The configuration is validated.
func New(config Config, opts ...Option) (Pipeline, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return newPipeline(config, buildOptions(opts)), nil
}

func newPipeline(config Config, o options) *pipeline {
	p := &pipeline{
		config: config,
		opts:   o,
		stages: make([]Stage, 0),
		stats: Stats{
			StageStats: make(map[string]StageStats),
		},
	}
	if config.EnableCache {
		p.cache = o.newCache()
	}
	return p
}

// Execute runs the pipeline with the given input data.
func (p *pipeline) Execute(ctx context.Context, input interface{}, metadata map[string]interface{}) (*Result, error) {
	result := p.execute(ctx, input, metadata)
	return result, result.Error
}

// ExecuteAsync runs the pipeline asynchronously and returns a channel for the result.
func (p *pipeline) ExecuteAsync(ctx context.Context, input interface{}, metadata map[string]interface{}) <-chan *Result {
	resultCh := make(chan *Result, 1)

	go func() {
		defer close(resultCh)
		resultCh <- p.execute(ctx, input, metadata)
	}()

	return resultCh
}

// execute runs one pipeline invocation. The stage chain runs on its own
// goroutine with a context that cannot be canceled; the caller waits for it,
// for the configured timeout, or for ctx, whichever comes first. When the
// caller stops waiting, the chain keeps running and its outcome is discarded.
func (p *pipeline) execute(ctx context.Context, input interface{}, metadata map[string]interface{}) *Result {
	if ctx == nil {
		ctx = context.Background()
	}

	stages := p.GetStages()
	exec := newExecutionContext(p.config.ID, len(stages), metadata)

	ctx, span := p.startPipelineSpan(ctx, exec)
	p.notifyPipelineStart(exec, input)

	key := p.cacheKey(exec, input, metadata)
	if key != "" {
		if value, ok := p.lookup(ctx, exec, key); ok {
			return p.finish(span, &Result{
				ExecutionID: exec.ExecutionID,
				Input:       input,
				Output:      value,
				Success:     true,
				Steps:       []StepResult{},
				Context:     exec.Snapshot(),
				Cached:      true,
				StartTime:   exec.StartTime,
			})
		}
	}

	r := &run{p: p, exec: exec, stages: stages, steps: make([]StepResult, 0, len(stages))}
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.execute(gfcontext.Detach(ctx), input)
	}()

	var timeout <-chan time.Time
	if p.config.Timeout > 0 {
		timer := time.NewTimer(p.config.Timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	var result *Result
	select {
	case <-done:
		result = r.result(input, nil)
		if result.Success && key != "" {
			p.store(gfcontext.Detach(ctx), exec, key, result.Output)
		}
	case <-timeout:
		result = r.result(input, &TimeoutError{PipelineID: p.config.ID, Timeout: p.config.Timeout})
		p.opts.logger.Warn("pipeline timed out, remaining stages continue in the background", p.fields(exec, map[string]interface{}{
			"timeout": p.config.Timeout.String(),
		}))
	case <-ctx.Done():
		result = r.result(input, ctx.Err())
	}

	return p.finish(span, result)
}

func (p *pipeline) finish(span trace.Span, result *Result) *Result {
	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(result.StartTime)

	p.updateStats(result)

	for _, h := range p.opts.hooks {
		if h.OnPipelineComplete != nil {
			h.OnPipelineComplete(result)
		}
	}

	endPipelineSpan(span, result)
	return result
}

func (p *pipeline) cacheKey(exec *ExecutionContext, input interface{}, metadata map[string]interface{}) string {
	if !p.config.EnableCache || p.cache == nil {
		return ""
	}
	key, err := CacheKey(input, metadata)
	if err != nil {
		p.opts.logger.Warn("result cache skipped, input is not serializable", p.fields(exec, map[string]interface{}{
			"error": err.Error(),
		}))
		return ""
	}
	return key
}

func (p *pipeline) lookup(ctx context.Context, exec *ExecutionContext, key string) (interface{}, bool) {
	value, ok, err := p.cache.Get(ctx, key)
	if err != nil {
		p.opts.logger.Warn("result cache lookup failed", p.fields(exec, map[string]interface{}{
			"error": err.Error(),
		}))
		return nil, false
	}
	return value, ok
}

func (p *pipeline) store(ctx context.Context, exec *ExecutionContext, key string, value interface{}) {
	if err := p.cache.Set(ctx, key, value, p.config.CacheTTL); err != nil {
		p.opts.logger.Warn("result cache store failed", p.fields(exec, map[string]interface{}{
			"error": err.Error(),
		}))
	}
}

func (p *pipeline) fields(exec *ExecutionContext, extra map[string]interface{}) map[string]interface{} {
	fields := map[string]interface{}{
		logging.FieldPipelineID:  p.config.ID,
		logging.FieldExecutionID: exec.ExecutionID,
	}
	for k, v := range extra {
		fields[k] = v
	}
	return fields
}

// run holds the state of one stage chain execution. It is shared between the
// goroutine running the chain and the caller building the Result.
type run struct {
	p      *pipeline
	exec   *ExecutionContext
	stages []Stage

	mu      sync.Mutex
	steps   []StepResult
	current interface{}
	err     error
}

func (r *run) execute(ctx context.Context, input interface{}) {
	value := input
	r.setCurrent(value)

	for i, stage := range r.stages {
		r.exec.setCurrentStep(i + 1)

		step := r.executeStep(ctx, i, stage, value)
		if !step.Success {
			r.p.notifyError(stage.Name(), step.Error)

			if r.p.config.ErrorStrategy == Stop {
				r.record(step)
				r.fail(&PipelineError{
					PipelineID: r.p.config.ID,
					StepIndex:  i,
					StageName:  stage.Name(),
					Cause:      step.Error,
				})
				return
			}

			r.p.warnRecovered(r.exec, step)
			step.Output = value
		}

		value = step.Output
		r.exec.appendIntermediate(value)
		r.record(step)
		r.setCurrent(value)
	}
}

func (r *run) executeStep(ctx context.Context, index int, stage Stage, input interface{}) StepResult {
	start := time.Now()
	r.p.notifyStageStart(r.exec, stage.Name(), input)

	ctx, span := r.p.startStageSpan(ctx, index, stage)

	attempts := 1
	output, err := r.attempt(ctx, stage, input)
	if err != nil && r.p.config.ErrorStrategy == Retry {
		attempts++
		output, err = r.attempt(ctx, stage, input)
	}

	endStageSpan(span, err, attempts)

	step := StepResult{
		StepIndex: index,
		StageName: stage.Name(),
		Input:     input,
		Duration:  time.Since(start),
		Success:   err == nil,
		Error:     err,
		Attempts:  attempts,
		StartTime: start,
	}
	if err == nil {
		step.Output = output
	}
	return step
}

// attempt validates and processes input once. Panics are returned as errors.
func (r *run) attempt(ctx context.Context, stage Stage, input interface{}) (output interface{}, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			output, err = nil, fmt.Errorf("stage %q panicked: %v", stage.Name(), rec)
		}
	}()

	if v, ok := stage.(Validator); ok && !v.Validate(input) {
		return nil, &ValidationError{
			PipelineID: r.p.config.ID,
			StageName:  stage.Name(),
			Input:      input,
		}
	}
	return stage.Process(ctx, input, r.exec)
}

func (r *run) record(step StepResult) {
	r.mu.Lock()
	r.steps = append(r.steps, step)
	r.mu.Unlock()

	r.p.updateStageStats(step)
	for _, h := range r.p.opts.hooks {
		if h.OnStageComplete != nil {
			h.OnStageComplete(r.exec, step)
		}
	}
}

func (r *run) setCurrent(v interface{}) {
	r.mu.Lock()
	r.current = v
	r.mu.Unlock()
}

func (r *run) fail(err error) {
	r.mu.Lock()
	r.err = err
	r.mu.Unlock()
}

// result builds a Result from the state recorded so far. A non-nil abandon
// error marks a run the caller stopped waiting for.
func (r *run) result(input interface{}, abandon error) *Result {
	r.mu.Lock()
	steps := make([]StepResult, len(r.steps))
	copy(steps, r.steps)
	output := r.current
	err := r.err
	r.mu.Unlock()

	if abandon != nil {
		err = abandon
	}

	return &Result{
		ExecutionID: r.exec.ExecutionID,
		Input:       input,
		Output:      output,
		Success:     err == nil,
		Error:       err,
		Steps:       steps,
		Context:     r.exec.Snapshot(),
		StartTime:   r.exec.StartTime,
	}
}

func (p *pipeline) warnRecovered(exec *ExecutionContext, step StepResult) {
	var msg string
	switch p.config.ErrorStrategy {
	case Skip:
		msg = "stage failed, skipping"
	case UseDefault:
		msg = "stage failed, substituting previous value"
	case Retry:
		msg = "stage failed after retry, continuing"
	default:
		msg = "stage failed"
	}
	p.opts.logger.Warn(msg, p.fields(exec, map[string]interface{}{
		logging.FieldStage: step.StageName,
		logging.FieldStep:  step.StepIndex,
		"error":            fmt.Sprint(step.Error),
	}))
}

func (p *pipeline) notifyPipelineStart(exec *ExecutionContext, input interface{}) {
	for _, h := range p.opts.hooks {
		if h.OnPipelineStart != nil {
			h.OnPipelineStart(exec, input)
		}
	}
}

func (p *pipeline) notifyStageStart(exec *ExecutionContext, name string, input interface{}) {
	for _, h := range p.opts.hooks {
		if h.OnStageStart != nil {
			h.OnStageStart(exec, name, input)
		}
	}
}

func (p *pipeline) notifyError(name string, err error) {
	for _, h := range p.opts.hooks {
		if h.OnError != nil {
			h.OnError(name, err)
		}
	}
}

// AddStage adds a stage to the pipeline.
func (p *pipeline) AddStage(stage Stage) Pipeline {
	if stage == nil {
		return p
	}

	p.mu.Lock()
	duplicate := p.indexOf(stage.Name()) >= 0
	p.stages = append(p.stages, stage)
	p.mu.Unlock()

	if duplicate {
		p.opts.logger.Warn("duplicate stage name, lookups resolve to the first match", map[string]interface{}{
			logging.FieldPipelineID: p.config.ID,
			logging.FieldStage:      stage.Name(),
		})
	}
	return p
}

// AddStageFunc adds a stage function to the pipeline.
func (p *pipeline) AddStageFunc(name string, fn func(ctx context.Context, input interface{}, exec *ExecutionContext) (interface{}, error)) Pipeline {
	return p.AddStage(NewStageFunc(name, fn))
}

// InsertStageAt inserts a stage at index.
func (p *pipeline) InsertStageAt(index int, stage Stage) error {
	if stage == nil {
		return gferrors.NewValidationError("pipeline", "stage", nil, "cannot be nil")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if index < 0 || index > len(p.stages) {
		return fmt.Errorf("%w: %d not in [0, %d]", ErrIndexOutOfRange, index, len(p.stages))
	}
	if p.indexOf(stage.Name()) >= 0 {
		return fmt.Errorf("%w: %q", ErrStageExists, stage.Name())
	}

	p.stages = append(p.stages, nil)
	copy(p.stages[index+1:], p.stages[index:])
	p.stages[index] = stage
	return nil
}

// RemoveStage removes the first stage with the given name.
func (p *pipeline) RemoveStage(name string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	i := p.indexOf(name)
	if i < 0 {
		return false
	}
	p.stages = append(p.stages[:i], p.stages[i+1:]...)
	return true
}

// GetStage returns the first stage with the given name.
func (p *pipeline) GetStage(name string) (Stage, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	i := p.indexOf(name)
	if i < 0 {
		return nil, false
	}
	return p.stages[i], true
}

// indexOf must be called with p.mu held.
func (p *pipeline) indexOf(name string) int {
	for i, s := range p.stages {
		if s.Name() == name {
			return i
		}
	}
	return -1
}

// GetStages returns all stages in the pipeline.
func (p *pipeline) GetStages() []Stage {
	p.mu.RLock()
	defer p.mu.RUnlock()

	stages := make([]Stage, len(p.stages))
	copy(stages, p.stages)
	return stages
}

// Clear removes all stages and invalidates the result cache.
func (p *pipeline) Clear() {
	p.mu.Lock()
	p.stages = make([]Stage, 0)
	p.mu.Unlock()

	if p.cache != nil {
		if err := p.cache.Clear(context.Background()); err != nil {
			p.opts.logger.Warn("result cache clear failed", map[string]interface{}{
				logging.FieldPipelineID: p.config.ID,
				"error":                 err.Error(),
			})
		}
	}
}

// Clone returns a copy sharing config and stages with fresh cache and stats.
func (p *pipeline) Clone() Pipeline {
	clone := newPipeline(p.config, p.opts)
	clone.stages = p.GetStages()
	return clone
}

// Config returns a copy of the configuration.
func (p *pipeline) Config() Config {
	return p.config
}

// Stats returns pipeline execution statistics.
func (p *pipeline) Stats() Stats {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()

	statsCopy := p.stats
	statsCopy.StageStats = make(map[string]StageStats, len(p.stats.StageStats))
	for k, v := range p.stats.StageStats {
		statsCopy.StageStats[k] = v
	}

	if statsCopy.TotalExecutions > 0 {
		statsCopy.AverageDuration = time.Duration(int64(statsCopy.TotalDuration) / statsCopy.TotalExecutions)
	}

	return statsCopy
}

// updateStats updates pipeline statistics.
func (p *pipeline) updateStats(result *Result) {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()

	p.stats.TotalExecutions++
	p.stats.TotalDuration += result.Duration
	p.stats.LastExecutionAt = result.EndTime

	if result.Success {
		p.stats.SuccessfulRuns++
	} else {
		p.stats.FailedRuns++
	}
	if result.Cached {
		p.stats.CacheHits++
	}
	if errors.Is(result.Error, gferrors.ErrTimeout) {
		p.stats.Timeouts++
	}
}

// updateStageStats updates statistics for a specific stage.
func (p *pipeline) updateStageStats(step StepResult) {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()

	stats, exists := p.stats.StageStats[step.StageName]
	if !exists {
		stats = StageStats{Name: step.StageName}
	}

	stats.ExecutionCount++
	stats.TotalDuration += step.Duration

	if step.Success {
		stats.SuccessCount++
	} else {
		stats.ErrorCount++
	}

	stats.AverageDuration = time.Duration(int64(stats.TotalDuration) / stats.ExecutionCount)

	p.stats.StageStats[step.StageName] = stats
}
