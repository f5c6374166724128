package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	gferrors "github.com/vnykmshr/flowpipe/pkg/common/errors"
	"github.com/vnykmshr/flowpipe/pkg/common/validation"
)

// ErrorStrategy decides what happens to a run when a stage fails.
type ErrorStrategy int

const (
	// Stop aborts the run at the failing stage. This is the default.
	Stop ErrorStrategy = iota

	// Skip records the failure, keeps the previous value and continues.
	Skip

	// UseDefault substitutes the previous value for the failed output and
	// continues. It currently behaves exactly like Skip; the name documents intent.
	UseDefault

	// Retry invokes the failing stage once more with the same input. The run
	// continues whether or not the second attempt succeeds.
	Retry
)

// String returns the canonical name of the strategy.
func (s ErrorStrategy) String() string {
	switch s {
	case Stop:
		return "stop"
	case Skip:
		return "skip"
	case UseDefault:
		return "use-default"
	case Retry:
		return "retry"
	default:
		return fmt.Sprintf("ErrorStrategy(%d)", int(s))
	}
}

// ParseErrorStrategy parses a strategy name. The empty string yields Stop.
func ParseErrorStrategy(s string) (ErrorStrategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "stop":
		return Stop, nil
	case "skip":
		return Skip, nil
	case "use-default", "usedefault", "use_default", "default":
		return UseDefault, nil
	case "retry":
		return Retry, nil
	default:
		return Stop, gferrors.NewValidationError("pipeline", "error_strategy", s, "unknown error strategy").
			WithHint("use one of stop, skip, use-default, retry")
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s ErrorStrategy) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *ErrorStrategy) UnmarshalText(text []byte) error {
	parsed, err := ParseErrorStrategy(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Config is the immutable definition of a pipeline instance.
type Config struct {
	// ID identifies the pipeline; it must be unique within a registry.
	ID string

	// Name is a human readable name.
	Name string

	// Description is optional free text.
	Description string

	// EnableCache turns on whole-pipeline result caching keyed by (input, metadata).
	EnableCache bool

	// CacheTTL is how long cached results stay valid. Required when EnableCache is set.
	CacheTTL time.Duration

	// Timeout bounds how long Execute waits for the stage chain. Zero means no timeout.
	// The timeout is advisory: stages keep running after it fires.
	Timeout time.Duration

	// ErrorStrategy governs stage failures. Defaults to Stop.
	ErrorStrategy ErrorStrategy
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if err := validation.ValidateNotEmpty("pipeline", "id", c.ID); err != nil {
		return err
	}
	if err := validation.ValidateNonNegativeDuration("pipeline", "timeout", c.Timeout); err != nil {
		return err
	}
	if c.EnableCache {
		if err := validation.ValidatePositiveDuration("pipeline", "cache_ttl", c.CacheTTL); err != nil {
			return err
		}
	}
	if c.ErrorStrategy < Stop || c.ErrorStrategy > Retry {
		return gferrors.NewValidationError("pipeline", "error_strategy", c.ErrorStrategy, "unknown error strategy")
	}
	return nil
}

// Stage represents a single named processing step in a pipeline.
type Stage interface {
	// Name returns the stage name, unique within one pipeline.
	Name() string

	// Process transforms input. exec carries per-run state shared by all stages.
	Process(ctx context.Context, input interface{}, exec *ExecutionContext) (interface{}, error)
}

// Validator is implemented by stages that check their input before Process runs.
// A false result fails the step with a *ValidationError.
type Validator interface {
	Validate(input interface{}) bool
}

// StageFunc is a function type that implements the Stage interface.
type StageFunc struct {
	name string
	fn   func(ctx context.Context, input interface{}, exec *ExecutionContext) (interface{}, error)
}

// NewStageFunc creates a new stage from a function.
func NewStageFunc(name string, fn func(ctx context.Context, input interface{}, exec *ExecutionContext) (interface{}, error)) Stage {
	return &StageFunc{name: name, fn: fn}
}

// Name returns the stage name.
func (sf *StageFunc) Name() string {
	return sf.name
}

// Process implements the Stage interface for StageFunc.
func (sf *StageFunc) Process(ctx context.Context, input interface{}, exec *ExecutionContext) (interface{}, error) {
	return sf.fn(ctx, input, exec)
}

// Logger is the sink for engine warnings and for the Log stage.
// *logging.Logger implements it.
type Logger interface {
	Warn(msg string, fields map[string]interface{})
	Log(value interface{}, label string)
}

// ExecutionContext is the per-run state threaded through every stage. It is
// created fresh for each Execute call and is safe for concurrent use by
// parallel child stages.
type ExecutionContext struct {
	PipelineID  string
	ExecutionID string
	StartTime   time.Time
	TotalSteps  int

	mu           sync.RWMutex
	currentStep  int
	metadata     map[string]interface{}
	intermediate []interface{}
}

func newExecutionContext(pipelineID string, totalSteps int, metadata map[string]interface{}) *ExecutionContext {
	start := time.Now()
	md := make(map[string]interface{}, len(metadata))
	for k, v := range metadata {
		md[k] = v
	}
	return &ExecutionContext{
		PipelineID:   pipelineID,
		ExecutionID:  newExecutionID(pipelineID, start),
		StartTime:    start,
		TotalSteps:   totalSteps,
		metadata:     md,
		intermediate: make([]interface{}, 0, totalSteps),
	}
}

func newExecutionID(pipelineID string, start time.Time) string {
	random := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%s-%d-%s", pipelineID, start.UnixMilli(), random)
}

// CurrentStep returns the 1-based index of the stage being run.
func (c *ExecutionContext) CurrentStep() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.currentStep
}

// Get returns a metadata value.
func (c *ExecutionContext) Get(key string) (interface{}, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.metadata[key]
	return v, ok
}

// Set stores a metadata value visible to later stages.
func (c *ExecutionContext) Set(key string, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metadata[key] = value
}

// Metadata returns a copy of the metadata map.
func (c *ExecutionContext) Metadata() map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	md := make(map[string]interface{}, len(c.metadata))
	for k, v := range c.metadata {
		md[k] = v
	}
	return md
}

// IntermediateResults returns a copy of the outputs recorded so far, one per
// completed step in step order.
func (c *ExecutionContext) IntermediateResults() []interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]interface{}, len(c.intermediate))
	copy(out, c.intermediate)
	return out
}

// Snapshot returns a frozen copy of the context.
func (c *ExecutionContext) Snapshot() *ExecutionContext {
	c.mu.RLock()
	defer c.mu.RUnlock()
	snap := &ExecutionContext{
		PipelineID:   c.PipelineID,
		ExecutionID:  c.ExecutionID,
		StartTime:    c.StartTime,
		TotalSteps:   c.TotalSteps,
		currentStep:  c.currentStep,
		metadata:     make(map[string]interface{}, len(c.metadata)),
		intermediate: make([]interface{}, len(c.intermediate)),
	}
	for k, v := range c.metadata {
		snap.metadata[k] = v
	}
	copy(snap.intermediate, c.intermediate)
	return snap
}

func (c *ExecutionContext) setCurrentStep(step int) {
	c.mu.Lock()
	c.currentStep = step
	c.mu.Unlock()
}

func (c *ExecutionContext) appendIntermediate(v interface{}) {
	c.mu.Lock()
	c.intermediate = append(c.intermediate, v)
	c.mu.Unlock()
}

// StepResult is the audit record of one stage execution within one run.
type StepResult struct {
	// StepIndex is the 0-based position of the stage.
	StepIndex int

	// StageName is the name of the stage
	StageName string

	// Input is the input to this stage
	Input interface{}

	// Output is the output from this stage, or the substituted value when the
	// stage failed under Skip, UseDefault or Retry.
	Output interface{}

	// Duration is how long this stage took, including a retry.
	Duration time.Duration

	// Success reports whether the stage produced its own output.
	Success bool

	// Error is any error from this stage
	Error error

	// Attempts is 2 when the stage was retried.
	Attempts int

	// StartTime is when the stage started
	StartTime time.Time
}

// Result represents the outcome of a pipeline execution.
type Result struct {
	// ExecutionID identifies the run.
	ExecutionID string

	// Input is the original input data
	Input interface{}

	// Output is the final value. On a Stop failure it is the input of the
	// failing stage.
	Output interface{}

	// Duration is the total execution time as seen by the caller
	Duration time.Duration

	// Success is false for Stop failures, timeouts and caller cancellation.
	Success bool

	// Error is the terminal error, if any.
	Error error

	// Steps contains one record per stage attempted
	Steps []StepResult

	// Context is a frozen copy of the execution context.
	Context *ExecutionContext

	// Cached is true when the result was served from the result cache.
	Cached bool

	// StartTime is when the pipeline execution started
	StartTime time.Time

	// EndTime is when the pipeline execution finished
	EndTime time.Time
}

// Stats holds pipeline execution statistics.
type Stats struct {
	TotalExecutions int64
	SuccessfulRuns  int64
	FailedRuns      int64
	CacheHits       int64
	Timeouts        int64
	TotalDuration   time.Duration
	AverageDuration time.Duration
	StageStats      map[string]StageStats
	LastExecutionAt time.Time
}

// StageStats holds statistics for individual stages.
type StageStats struct {
	Name            string
	ExecutionCount  int64
	SuccessCount    int64
	ErrorCount      int64
	TotalDuration   time.Duration
	AverageDuration time.Duration
}

// Hooks are optional callbacks invoked during execution. Stage hooks run on
// the goroutine executing the stage chain, which may outlive a timed-out
// Execute call.
type Hooks struct {
	// OnPipelineStart is called when pipeline execution starts.
	OnPipelineStart func(exec *ExecutionContext, input interface{})

	// OnStageStart is called when a stage starts execution.
	OnStageStart func(exec *ExecutionContext, stageName string, input interface{})

	// OnStageComplete is called when a stage completes, successfully or not.
	OnStageComplete func(exec *ExecutionContext, result StepResult)

	// OnPipelineComplete is called with the result handed to the caller.
	OnPipelineComplete func(result *Result)

	// OnError is called when a stage fails.
	OnError func(stageName string, err error)
}
