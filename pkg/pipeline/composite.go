package pipeline

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/vnykmshr/flowpipe/internal/seq"
)

// Conditional delegates to Then when Condition holds for the input, otherwise
// to Else. A nil Else passes the input through unchanged.
type Conditional struct {
	name      string
	Condition func(input interface{}) bool
	Then      Stage
	Else      Stage
}

// NewConditional creates a branching stage.
func NewConditional(name string, condition func(input interface{}) bool, then, otherwise Stage) *Conditional {
	return &Conditional{
		name:      name,
		Condition: condition,
		Then:      then,
		Else:      otherwise,
	}
}

// Name returns the stage name.
func (c *Conditional) Name() string {
	return c.name
}

// Process runs the selected branch.
func (c *Conditional) Process(ctx context.Context, input interface{}, exec *ExecutionContext) (interface{}, error) {
	if c.Condition != nil && c.Condition(input) {
		if c.Then == nil {
			return input, nil
		}
		return c.Then.Process(ctx, input, exec)
	}
	if c.Else == nil {
		return input, nil
	}
	return c.Else.Process(ctx, input, exec)
}

// ParallelStage runs all child stages concurrently against the same input and
// reduces their outputs with Combiner. Outputs are passed in declaration order.
// The first child error fails the stage; the remaining children still run to
// completion.
type ParallelStage struct {
	name     string
	Stages   []Stage
	Combiner func(outputs []interface{}) (interface{}, error)
}

// NewParallel creates a fan-out/fan-in stage. A nil combiner returns the
// outputs slice itself.
func NewParallel(name string, stages []Stage, combiner func(outputs []interface{}) (interface{}, error)) *ParallelStage {
	children := make([]Stage, len(stages))
	copy(children, stages)
	return &ParallelStage{
		name:     name,
		Stages:   children,
		Combiner: combiner,
	}
}

// Name returns the stage name.
func (p *ParallelStage) Name() string {
	return p.name
}

// Process fans input out to every child and waits for all of them.
func (p *ParallelStage) Process(ctx context.Context, input interface{}, exec *ExecutionContext) (interface{}, error) {
	outputs := make([]interface{}, len(p.Stages))

	var g errgroup.Group
	for i, s := range p.Stages {
		i, s := i, s
		g.Go(func() (err error) {
			defer func() {
				if rec := recover(); rec != nil {
					err = fmt.Errorf("parallel child %q panicked: %v", s.Name(), rec)
				}
			}()

			out, err := s.Process(ctx, input, exec)
			if err != nil {
				return fmt.Errorf("parallel child %q: %w", s.Name(), err)
			}
			outputs[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if p.Combiner == nil {
		return outputs, nil
	}
	return p.Combiner(outputs)
}

// filterStage keeps the elements of a sequence input for which predicate
// holds. Non-sequence input passes through unfiltered.
type filterStage struct {
	name      string
	predicate func(item interface{}) bool
}

func (f *filterStage) Name() string {
	return f.name
}

func (f *filterStage) Process(_ context.Context, input interface{}, _ *ExecutionContext) (interface{}, error) {
	items, ok := seq.ToSlice(input)
	if !ok {
		return input, nil
	}

	out := make([]interface{}, 0, len(items))
	for _, item := range items {
		if f.predicate(item) {
			out = append(out, item)
		}
	}
	return out, nil
}
