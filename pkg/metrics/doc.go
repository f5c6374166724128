// Package metrics provides Prometheus instrumentation for flowpipe components.
//
// # Overview
//
// The Registry groups the counters and histograms recorded by:
//   - pipeline engines (executions, failures, timeouts, cache hits, duration)
//   - individual stages (executions, failures, duration)
//   - the cron scheduler (runs, failures, registered jobs)
//   - batch runners (submissions, outcomes, throttling, busy workers)
//
// # Quick Start
//
//	p, _ := pipeline.NewWithConfigAndMetrics(cfg, "orders", metrics.DefaultConfig())
//
//	http.Handle("/metrics", promhttp.Handler())
//	log.Fatal(http.ListenAndServe(":8080", nil))
//
// # Custom Registry
//
// NewWithMetrics records into a private registry, which suits tests. Use a
// custom Prometheus registry to share one between components:
//
//	registry := prometheus.NewRegistry()
//	p, _ := pipeline.NewWithConfigAndMetrics(cfg, "orders", metrics.Config{
//		Enabled:  true,
//		Registry: registry,
//	})
//
// # Available Metrics
//
//   - flowpipe_pipeline_executions_total{pipeline}
//   - flowpipe_pipeline_failures_total{pipeline}
//   - flowpipe_pipeline_timeouts_total{pipeline}
//   - flowpipe_pipeline_cache_hits_total{pipeline}
//   - flowpipe_pipeline_duration_seconds{pipeline}
//   - flowpipe_stage_executions_total{pipeline,stage}
//   - flowpipe_stage_failures_total{pipeline,stage}
//   - flowpipe_stage_duration_seconds{pipeline,stage}
//   - flowpipe_scheduler_runs_total{job}
//   - flowpipe_scheduler_failures_total{job}
//   - flowpipe_scheduler_jobs{scheduler}
//   - flowpipe_batch_submitted_total{runner}
//   - flowpipe_batch_completed_total{runner,status}
//   - flowpipe_batch_throttled_total{runner}
//   - flowpipe_batch_active_workers{runner}
package metrics
