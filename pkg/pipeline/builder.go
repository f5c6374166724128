package pipeline

import (
	"context"
	"fmt"
)

// Builder assembles a stage list fluently. It is not safe for concurrent use.
type Builder struct {
	stages  []Stage
	counter int
	opts    []Option
}

// NewBuilder creates an empty builder.
func NewBuilder() *Builder {
	return &Builder{}
}

func (b *Builder) nextName(kind string, name []string) string {
	b.counter++
	if len(name) > 0 && name[0] != "" {
		return name[0]
	}
	return fmt.Sprintf("%s-%d", kind, b.counter)
}

// Map appends a stage that applies fn to the whole input.
func (b *Builder) Map(fn func(ctx context.Context, input interface{}) (interface{}, error), name ...string) *Builder {
	n := b.nextName("map", name)
	b.stages = append(b.stages, NewStageFunc(n, func(ctx context.Context, input interface{}, _ *ExecutionContext) (interface{}, error) {
		return fn(ctx, input)
	}))
	return b
}

// Filter appends a stage that keeps the sequence elements matching predicate.
func (b *Builder) Filter(predicate func(item interface{}) bool, name ...string) *Builder {
	b.stages = append(b.stages, &filterStage{
		name:      b.nextName("filter", name),
		predicate: predicate,
	})
	return b
}

// When appends a branching stage. otherwise may be nil.
func (b *Builder) When(condition func(input interface{}) bool, then, otherwise Stage) *Builder {
	b.stages = append(b.stages, NewConditional(b.nextName("when", nil), condition, then, otherwise))
	return b
}

// Parallel appends a fan-out/fan-in stage over stages.
func (b *Builder) Parallel(stages []Stage, combiner func(outputs []interface{}) (interface{}, error), name ...string) *Builder {
	b.stages = append(b.stages, NewParallel(b.nextName("parallel", name), stages, combiner))
	return b
}

// Stage appends an existing stage.
func (b *Builder) Stage(stage Stage) *Builder {
	if stage != nil {
		b.stages = append(b.stages, stage)
	}
	return b
}

// Stages returns a copy of the accumulated stage list.
func (b *Builder) Stages() []Stage {
	stages := make([]Stage, len(b.stages))
	copy(stages, b.stages)
	return stages
}

// Build creates an engine seeded with the accumulated stages in insertion order.
func (b *Builder) Build(config Config, opts ...Option) (Pipeline, error) {
	all := make([]Option, 0, len(b.opts)+len(opts))
	all = append(all, b.opts...)
	all = append(all, opts...)

	p, err := New(config, all...)
	if err != nil {
		return nil, err
	}
	for _, s := range b.stages {
		p.AddStage(s)
	}
	return p, nil
}
