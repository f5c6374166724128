/*
Package flowpipe provides composable data-processing pipelines for Go
applications: ordered chains of named stages with per-step tracing, error
recovery strategies, advisory timeouts and result caching.

Pipelines (pkg/pipeline):
  - pipeline: engine, fluent builder, composite stages, factory and registry
  - stage: sort, group, aggregate, unique, paginate, flatten, transform,
    validate, log, delay and memoize stages
  - rediscache: shared result cache on Redis
  - definition: declarative pipelines from YAML, JSON or TOML files
  - batch: bounded, throttled runs over many inputs

Scheduling (pkg/scheduling):
  - scheduler: cron-driven periodic pipeline runs

Observability:
  - logging: structured logging on zerolog
  - metrics: Prometheus collectors for pipelines, stages, batches and schedules

Example usage:

	import (
		"github.com/vnykmshr/flowpipe/pkg/pipeline"
		"github.com/vnykmshr/flowpipe/pkg/pipeline/stage"
	)

	p, _ := pipeline.NewBuilder().
		Stage(stage.Must(stage.Unique("dedupe", nil))).
		Stage(stage.Must(stage.Paginate("first-page", 1, 20))).
		Build(pipeline.Config{ID: "feed"})

	result, err := p.Execute(ctx, items, nil)
*/
package flowpipe
