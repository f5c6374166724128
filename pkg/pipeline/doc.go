/*
Package pipeline provides composable, multi-stage data processing with
per-step tracing, error recovery strategies and result caching.

A pipeline is an ordered list of named stages. Execute threads a value
through every stage in order and returns a Result describing the final value
and every step taken.

# Quick Start

	p, err := pipeline.New(pipeline.Config{ID: "orders"})
	if err != nil {
		return err
	}

	p.AddStageFunc("double", func(ctx context.Context, input interface{}, exec *pipeline.ExecutionContext) (interface{}, error) {
		return input.(int) * 2, nil
	})

	result, err := p.Execute(context.Background(), 21, nil)
	fmt.Println(result.Output) // 42

# Builder

	p, err := pipeline.NewBuilder().
		Filter(func(item interface{}) bool { return item.(int) > 0 }).
		Map(sumInts).
		When(isLarge, roundStage, nil).
		Build(pipeline.Config{ID: "totals"})

Parallel runs every child against the same input and hands their outputs, in
declaration order, to a combiner:

	b.Parallel([]pipeline.Stage{countStage, sumStage}, func(outputs []interface{}) (interface{}, error) {
		return map[string]interface{}{"count": outputs[0], "sum": outputs[1]}, nil
	})

# Error Strategies

	Stop        abort on the first failure with a *PipelineError (default)
	Skip        log a warning and carry the previous value forward
	UseDefault  same as Skip with a different warning
	Retry       run the failing stage once more, then continue either way

Stages that implement Validator are checked before Process; a rejected
input fails the step with a *ValidationError and is routed through the
strategy like any other failure. A panic inside a stage is recovered and
treated as a failure.

Execute never reports stage failures as a bare Go error only: the returned
Result always carries Success, Error and the steps recorded so far. The
second return value is Result.Error for convenience.

# Timeouts

Config.Timeout bounds how long Execute waits. It does not cancel anything:
the stage chain runs on a context detached from the caller, so when the
timeout fires (or the caller's context is canceled) Execute returns a
*TimeoutError result immediately while the remaining stages run to
completion in the background and their outcome is discarded. Stages with
external side effects must tolerate being abandoned this way.

# Caching

With EnableCache set, successful results are cached for CacheTTL under a
hash of the JSON encoding of (input, metadata) and the dynamic types of the
values in it. Inputs that cannot be JSON encoded, or that hold structs with
unexported or json:"-" fields, are never cached. The in-memory cache is used
by default; see package rediscache for a shared backend.

A cached Output is the stored value itself, not a copy. Treat Result.Output
as read-only when caching is enabled.

	p, _ := pipeline.New(pipeline.Config{
		ID:          "report",
		EnableCache: true,
		CacheTTL:    5 * time.Minute,
	}, pipeline.WithCache(rediscache.Factory(client, "reports")))

# Factory

A Factory applies one set of options to every engine it creates and keeps a
registry of shared stage instances:

	f := pipeline.NewFactory(pipeline.WithLogger(logger))
	f.RegisterStage("dedupe", dedupe)
	f.RegisterStage("by-date", sortByDate)

	p, err := f.CreateFromStages(pipeline.Config{ID: "feed"}, "dedupe", "by-date")

Unknown names fail at construction with *UnknownStageError.

# Monitoring

Hooks observe every run:

	p, _ := pipeline.New(cfg, pipeline.WithHooks(pipeline.Hooks{
		OnStageComplete: func(exec *pipeline.ExecutionContext, step pipeline.StepResult) {
			log.Printf("%s took %v", step.StageName, step.Duration)
		},
	}))

NewWithMetrics wraps an engine with Prometheus counters and histograms, and
WithTracer emits one OpenTelemetry span per run plus a child span per stage.

# Thread Safety

Engines may be executed concurrently. Each run copies the stage list when it
starts. Stage instances are shared between concurrent runs and must be safe
for that. Builders are not safe for concurrent use.
*/
package pipeline
