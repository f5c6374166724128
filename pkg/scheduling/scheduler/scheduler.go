package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	gfcontext "github.com/vnykmshr/flowpipe/pkg/common/context"
	gferrors "github.com/vnykmshr/flowpipe/pkg/common/errors"
	"github.com/vnykmshr/flowpipe/pkg/common/validation"
	"github.com/vnykmshr/flowpipe/pkg/logging"
	"github.com/vnykmshr/flowpipe/pkg/metrics"
	"github.com/vnykmshr/flowpipe/pkg/pipeline"
)

const module = "scheduler"

// SourceFunc supplies the input and metadata for one scheduled run, typically
// by fetching from a data source.
type SourceFunc func(ctx context.Context) (input interface{}, metadata map[string]interface{}, err error)

// SinkFunc receives the result of every scheduled run, successful or not.
type SinkFunc func(ctx context.Context, result *pipeline.Result)

// Job describes a scheduled pipeline.
type Job struct {
	ID         string
	Spec       string
	PipelineID string
	NextRun    time.Time
	PrevRun    time.Time
	Runs       int64
	Failures   int64
}

// Config holds scheduler configuration.
type Config struct {
	// Name labels the scheduler's metrics (default: "default")
	Name string

	// Location is the time zone for cron expressions (default: time.Local)
	Location *time.Location

	// Logger receives run failures and cron diagnostics (default: discard)
	Logger *logging.Logger

	// Metrics records runs and failures when set
	Metrics *metrics.Registry
}

type job struct {
	id       string
	spec     string
	schedule cron.Schedule
	pipeline pipeline.Pipeline
	source   SourceFunc
	sink     SinkFunc
	entryID  cron.EntryID

	runs     int64
	failures int64
}

// Scheduler runs pipelines on cron schedules. A run whose previous
// invocation is still in progress is skipped.
type Scheduler struct {
	name     string
	location *time.Location
	log      *logging.Logger
	metrics  *metrics.Registry
	parser   cron.Parser
	cron     *cron.Cron
	chain    cron.Chain

	ctx    context.Context
	cancel context.CancelFunc

	mu   sync.RWMutex
	jobs map[string]*job
}

// New creates a stopped scheduler.
func New(cfg Config) *Scheduler {
	name := cfg.Name
	if name == "" {
		name = "default"
	}
	location := cfg.Location
	if location == nil {
		location = time.Local
	}
	log := cfg.Logger
	if log == nil {
		log = logging.Nop()
	}
	cronLog := log.CronLogger()

	// Seconds field is optional: "*/5 * * * *" and "*/30 * * * * *" both parse
	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		name:     name,
		location: location,
		log:      log,
		metrics:  cfg.Metrics,
		parser:   parser,
		cron: cron.New(
			cron.WithLocation(location),
			cron.WithParser(parser),
			cron.WithLogger(cronLog),
		),
		chain:  cron.NewChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
		ctx:    ctx,
		cancel: cancel,
		jobs:   make(map[string]*job),
	}
}

// Schedule registers p to run on spec. source supplies each run's input and
// may be nil for runs without input; sink may be nil.
func (s *Scheduler) Schedule(id, spec string, p pipeline.Pipeline, source SourceFunc, sink SinkFunc) error {
	if err := validation.ValidateNotEmpty(module, "id", id); err != nil {
		return err
	}
	if p == nil {
		return gferrors.NewValidationError(module, "pipeline", nil, "cannot be nil")
	}
	schedule, err := s.parser.Parse(spec)
	if err != nil {
		return gferrors.NewValidationError(module, "spec", spec, err.Error()).
			WithHint("use five or six cron fields, or a descriptor such as @hourly or @every 1m")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[id]; exists {
		return fmt.Errorf("job %q: %w", id, gferrors.ErrAlreadyExists)
	}

	j := &job{
		id:       id,
		spec:     spec,
		schedule: schedule,
		pipeline: p,
		source:   source,
		sink:     sink,
	}
	j.entryID = s.cron.Schedule(schedule, s.chain.Then(cron.FuncJob(func() {
		_, _ = s.run(s.ctx, j)
	})))
	s.jobs[id] = j
	s.updateJobGauge()
	return nil
}

// Cancel removes a job. Runs already in progress finish.
func (s *Scheduler) Cancel(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, exists := s.jobs[id]
	if !exists {
		return false
	}
	s.cron.Remove(j.entryID)
	delete(s.jobs, id)
	s.updateJobGauge()
	return true
}

// updateJobGauge must be called with s.mu held.
func (s *Scheduler) updateJobGauge() {
	if s.metrics != nil {
		s.metrics.SchedulerJobs.WithLabelValues(s.name).Set(float64(len(s.jobs)))
	}
}

// List returns all jobs sorted by ID.
func (s *Scheduler) List() []Job {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := time.Now().In(s.location)
	jobs := make([]Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		entry := s.cron.Entry(j.entryID)
		next := entry.Next
		if next.IsZero() {
			next = j.schedule.Next(now)
		}
		jobs = append(jobs, Job{
			ID:         j.id,
			Spec:       j.spec,
			PipelineID: j.pipeline.Config().ID,
			NextRun:    next,
			PrevRun:    entry.Prev,
			Runs:       atomic.LoadInt64(&j.runs),
			Failures:   atomic.LoadInt64(&j.failures),
		})
	}

	sort.Slice(jobs, func(i, k int) bool {
		return jobs[i].ID < jobs[k].ID
	})
	return jobs
}

// Start begins running jobs on their schedules.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts scheduling and cancels the context handed to sources and sinks.
// The returned channel closes once running jobs have finished.
func (s *Scheduler) Stop() <-chan struct{} {
	s.cancel()
	return s.cron.Stop().Done()
}

// RunNow runs a job immediately, outside its schedule, and returns the result.
func (s *Scheduler) RunNow(ctx context.Context, id string) (*pipeline.Result, error) {
	s.mu.RLock()
	j, exists := s.jobs[id]
	s.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("job %q: %w", id, gferrors.ErrNotFound)
	}
	return s.run(ctx, j)
}

func (s *Scheduler) run(ctx context.Context, j *job) (*pipeline.Result, error) {
	fields := map[string]interface{}{
		"job":                   j.id,
		logging.FieldPipelineID: j.pipeline.Config().ID,
	}

	var (
		input    interface{}
		metadata map[string]interface{}
	)
	if j.source != nil {
		var err error
		input, metadata, err = j.source(ctx)
		if err != nil {
			s.recordFailure(j)
			if gfcontext.IsCanceled(ctx) {
				s.log.Debug("scheduled run abandoned, context done", fields)
			} else {
				s.log.Error(err, "scheduled run source failed", fields)
			}
			return nil, gferrors.NewOperationError(module, "source", err).WithContext(j.id)
		}
	}

	result, err := j.pipeline.Execute(ctx, input, metadata)
	atomic.AddInt64(&j.runs, 1)
	if s.metrics != nil {
		s.metrics.SchedulerRuns.WithLabelValues(j.id).Inc()
	}
	if err != nil {
		s.recordFailure(j)
		fields[logging.FieldExecutionID] = result.ExecutionID
		s.log.Error(err, "scheduled run failed", fields)
	}

	if j.sink != nil {
		j.sink(ctx, result)
	}
	return result, err
}

func (s *Scheduler) recordFailure(j *job) {
	atomic.AddInt64(&j.failures, 1)
	if s.metrics != nil {
		s.metrics.SchedulerFailures.WithLabelValues(j.id).Inc()
	}
}
