package stage

import (
	"context"
	"time"

	"github.com/vnykmshr/flowpipe/pkg/common/validation"
	"github.com/vnykmshr/flowpipe/pkg/logging"
	"github.com/vnykmshr/flowpipe/pkg/pipeline"
)

type transformStage struct {
	named
	fn func(ctx context.Context, input interface{}) (interface{}, error)
}

// Transform returns a stage that applies fn to the whole input.
func Transform(name string, fn func(ctx context.Context, input interface{}) (interface{}, error)) (pipeline.Stage, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	if err := checkFunc("fn", fn == nil); err != nil {
		return nil, err
	}
	return &transformStage{named: named{name}, fn: fn}, nil
}

func (s *transformStage) Process(ctx context.Context, input interface{}, _ *pipeline.ExecutionContext) (interface{}, error) {
	return s.fn(ctx, input)
}

type validateStage struct {
	named
	predicate func(input interface{}) bool
}

// Validate returns a stage that passes input through when predicate holds
// and fails with *pipeline.ValidationError carrying the input otherwise.
func Validate(name string, predicate func(input interface{}) bool) (pipeline.Stage, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	if err := checkFunc("predicate", predicate == nil); err != nil {
		return nil, err
	}
	return &validateStage{named: named{name}, predicate: predicate}, nil
}

func (s *validateStage) Process(_ context.Context, input interface{}, exec *pipeline.ExecutionContext) (interface{}, error) {
	if s.predicate(input) {
		return input, nil
	}
	verr := &pipeline.ValidationError{StageName: s.name, Input: input}
	if exec != nil {
		verr.PipelineID = exec.PipelineID
	}
	return nil, verr
}

type logStage struct {
	named
	label  string
	logger pipeline.Logger
}

// Log returns a passthrough stage that emits every value to logger under
// label. A nil logger discards the values.
func Log(name, label string, logger pipeline.Logger) (pipeline.Stage, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &logStage{named: named{name}, label: label, logger: logger}, nil
}

func (s *logStage) Process(_ context.Context, input interface{}, _ *pipeline.ExecutionContext) (interface{}, error) {
	s.logger.Log(input, s.label)
	return input, nil
}

type delayStage struct {
	named
	d time.Duration
}

// Delay returns a stage that sleeps for d and then passes its input through.
// The sleep is not interrupted by context cancellation.
func Delay(name string, d time.Duration) (pipeline.Stage, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	if err := validation.ValidateNonNegativeDuration(module, "delay", d); err != nil {
		return nil, err
	}
	return &delayStage{named: named{name}, d: d}, nil
}

func (s *delayStage) Process(_ context.Context, input interface{}, _ *pipeline.ExecutionContext) (interface{}, error) {
	time.Sleep(s.d)
	return input, nil
}
