package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "flowpipe"

// Registry holds all metric instances for flowpipe components.
type Registry struct {
	// Pipeline metrics
	PipelineExecutions *prometheus.CounterVec
	PipelineFailures   *prometheus.CounterVec
	PipelineTimeouts   *prometheus.CounterVec
	PipelineCacheHits  *prometheus.CounterVec
	PipelineDuration   *prometheus.HistogramVec

	// Stage metrics
	StageExecutions *prometheus.CounterVec
	StageFailures   *prometheus.CounterVec
	StageDuration   *prometheus.HistogramVec

	// Scheduler metrics
	SchedulerRuns     *prometheus.CounterVec
	SchedulerFailures *prometheus.CounterVec
	SchedulerJobs     *prometheus.GaugeVec

	// Batch runner metrics
	BatchSubmitted *prometheus.CounterVec
	BatchCompleted *prometheus.CounterVec
	BatchThrottled *prometheus.CounterVec
	BatchActive    *prometheus.GaugeVec
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

// Default returns the registry bound to prometheus.DefaultRegisterer. It is
// created on first use.
func Default() *Registry {
	defaultOnce.Do(func() {
		defaultRegistry = NewRegistry(prometheus.DefaultRegisterer)
	})
	return defaultRegistry
}

// FromConfig returns the registry described by cfg: Default() when cfg
// targets the default registerer under the default namespace, otherwise a new
// registry bound to cfg.Registry.
func FromConfig(cfg Config) *Registry {
	defaultNS := cfg.Namespace == "" || cfg.Namespace == DefaultNamespace
	if cfg.Registry == nil || (cfg.Registry == prometheus.DefaultRegisterer && defaultNS) {
		return Default()
	}
	return NewRegistryWithNamespace(cfg.Registry, cfg.Namespace)
}

// NewRegistry creates a new metrics registry with the given Prometheus registerer.
func NewRegistry(reg prometheus.Registerer) *Registry {
	return NewRegistryWithNamespace(reg, DefaultNamespace)
}

// NewRegistryWithNamespace creates a registry whose metrics live under namespace.
func NewRegistryWithNamespace(reg prometheus.Registerer, namespace string) *Registry {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	factory := promauto.With(reg)

	return &Registry{
		PipelineExecutions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "executions_total",
				Help:      "Total number of pipeline executions",
			},
			[]string{"pipeline"},
		),

		PipelineFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "failures_total",
				Help:      "Total number of pipeline executions that did not succeed",
			},
			[]string{"pipeline"},
		),

		PipelineTimeouts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "timeouts_total",
				Help:      "Total number of pipeline executions that exceeded their timeout",
			},
			[]string{"pipeline"},
		),

		PipelineCacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "cache_hits_total",
				Help:      "Total number of pipeline executions served from the result cache",
			},
			[]string{"pipeline"},
		),

		PipelineDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "duration_seconds",
				Help:      "Time spent executing pipelines",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"pipeline"},
		),

		StageExecutions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "stage",
				Name:      "executions_total",
				Help:      "Total number of stage executions",
			},
			[]string{"pipeline", "stage"},
		),

		StageFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "stage",
				Name:      "failures_total",
				Help:      "Total number of failed stage executions",
			},
			[]string{"pipeline", "stage"},
		),

		StageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "stage",
				Name:      "duration_seconds",
				Help:      "Time spent executing stages",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"pipeline", "stage"},
		),

		SchedulerRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "scheduler",
				Name:      "runs_total",
				Help:      "Total number of scheduled pipeline runs",
			},
			[]string{"job"},
		),

		SchedulerFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "scheduler",
				Name:      "failures_total",
				Help:      "Total number of scheduled pipeline runs that failed",
			},
			[]string{"job"},
		),

		SchedulerJobs: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "scheduler",
				Name:      "jobs",
				Help:      "Number of registered scheduler jobs",
			},
			[]string{"scheduler"},
		),

		BatchSubmitted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "batch",
				Name:      "submitted_total",
				Help:      "Total number of inputs submitted to batch runners",
			},
			[]string{"runner"},
		),

		BatchCompleted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "batch",
				Name:      "completed_total",
				Help:      "Total number of batch inputs processed, by status",
			},
			[]string{"runner", "status"},
		),

		BatchThrottled: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "batch",
				Name:      "throttled_total",
				Help:      "Total number of batch inputs that waited for the rate limit",
			},
			[]string{"runner"},
		),

		BatchActive: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "batch",
				Name:      "active_workers",
				Help:      "Number of batch workers currently executing a pipeline",
			},
			[]string{"runner"},
		),
	}
}
