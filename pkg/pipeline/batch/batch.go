package batch

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	gfcontext "github.com/vnykmshr/flowpipe/pkg/common/context"
	gferrors "github.com/vnykmshr/flowpipe/pkg/common/errors"
	"github.com/vnykmshr/flowpipe/pkg/common/validation"
	"github.com/vnykmshr/flowpipe/pkg/logging"
	"github.com/vnykmshr/flowpipe/pkg/metrics"
	"github.com/vnykmshr/flowpipe/pkg/pipeline"
)

const module = "batch"

// Outcome statuses used as metric labels.
const (
	StatusSuccess  = "success"
	StatusFailure  = "failure"
	StatusCanceled = "canceled"
)

// Item is one pipeline input.
type Item struct {
	Input    interface{}
	Metadata map[string]interface{}
}

// Outcome reports how one submitted input was processed.
type Outcome struct {
	// Index is the submission sequence number, starting at 0
	Index int64

	// Input is the submitted input
	Input interface{}

	// Result is nil when the input never reached the pipeline
	Result *pipeline.Result

	// Err is the pipeline error, or the context error when the input was
	// abandoned while waiting for the rate limit
	Err error

	// WorkerID identifies which worker processed the input
	WorkerID int

	// Throttled is how long the worker waited for the rate limit
	Throttled time.Duration
}

// Status returns the outcome's metric label.
func (o Outcome) Status() string {
	switch {
	case o.Err == nil:
		return StatusSuccess
	case o.Result == nil && (errors.Is(o.Err, context.Canceled) || errors.Is(o.Err, context.DeadlineExceeded)):
		return StatusCanceled
	default:
		return StatusFailure
	}
}

// Config holds runner configuration.
type Config struct {
	// Name labels the runner's logs and metrics (default: "default")
	Name string

	// Workers is the number of concurrent pipeline runs (default: GOMAXPROCS)
	Workers int

	// QueueSize is how many submitted inputs may wait for a worker.
	// Zero makes Submit hand inputs directly to a worker.
	QueueSize int

	// Rate limits how many runs start per second across all workers.
	// Zero disables throttling.
	Rate Limit

	// Burst is how many runs may start back to back under Rate (default: 1)
	Burst int

	// Logger receives failed runs (default: discard)
	Logger *logging.Logger

	// Metrics records submissions and outcomes when set
	Metrics *metrics.Registry
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if err := validation.ValidateNonNegative(module, "Workers", c.Workers); err != nil {
		return err
	}
	if err := validation.ValidateNonNegative(module, "QueueSize", c.QueueSize); err != nil {
		return err
	}
	if c.Rate < 0 {
		return gferrors.NewValidationError(module, "Rate", c.Rate, "cannot be negative").
			WithHint("use 0 to disable throttling")
	}
	return validation.ValidateNonNegative(module, "Burst", c.Burst)
}

// Stats is a snapshot of a runner's counters.
type Stats struct {
	Submitted int64
	Completed int64
	Failed    int64
	Active    int
}

type task struct {
	ctx      context.Context
	index    int64
	input    interface{}
	metadata map[string]interface{}
}

// Runner executes one pipeline over many inputs with a fixed set of workers,
// optionally throttled by a token bucket. Outcomes are delivered on Results
// in completion order and must be drained.
type Runner struct {
	name     string
	pipeline pipeline.Pipeline
	limiter  *Limiter
	log      *logging.Logger
	metrics  *metrics.Registry
	workers  int

	queue      chan task
	results    chan Outcome
	shutdownCh chan struct{}
	done       chan struct{}

	mu           sync.RWMutex
	isShutdown   bool
	shutdownOnce sync.Once
	submitters   sync.WaitGroup
	workerWg     sync.WaitGroup

	next      int64
	submitted int64
	completed int64
	failed    int64
	active    int32
}

// New creates a runner for p and starts its workers.
func New(p pipeline.Pipeline, cfg Config) (*Runner, error) {
	if p == nil {
		return nil, gferrors.NewValidationError(module, "pipeline", nil, "cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	name := cfg.Name
	if name == "" {
		name = "default"
	}
	workers := cfg.Workers
	if workers == 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	log := cfg.Logger
	if log == nil {
		log = logging.Nop()
	}

	var limiter *Limiter
	if cfg.Rate > 0 && cfg.Rate != Inf {
		burst := cfg.Burst
		if burst == 0 {
			burst = 1
		}
		var err error
		if limiter, err = NewLimiter(cfg.Rate, burst); err != nil {
			return nil, err
		}
	}

	return start(p, name, workers, cfg.QueueSize, limiter, log, cfg.Metrics), nil
}

func start(p pipeline.Pipeline, name string, workers, queueSize int, limiter *Limiter, log *logging.Logger, reg *metrics.Registry) *Runner {
	r := &Runner{
		name:       name,
		pipeline:   p,
		limiter:    limiter,
		log:        log.WithComponent(module),
		metrics:    reg,
		workers:    workers,
		queue:      make(chan task, queueSize),
		results:    make(chan Outcome, workers),
		shutdownCh: make(chan struct{}),
		done:       make(chan struct{}),
	}

	r.workerWg.Add(workers)
	for i := 0; i < workers; i++ {
		go r.work(i)
	}
	return r
}

// Submit queues input for processing. It blocks while the queue is full,
// and fails once ctx ends or the runner is shut down. ctx is also the
// context the pipeline runs with.
func (r *Runner) Submit(ctx context.Context, input interface{}, metadata map[string]interface{}) error {
	if ctx == nil {
		ctx = context.Background()
	}

	r.mu.RLock()
	if r.isShutdown {
		r.mu.RUnlock()
		return fmt.Errorf("cannot submit: runner %q: %w", r.name, gferrors.ErrClosed)
	}
	r.submitters.Add(1)
	r.mu.RUnlock()
	defer r.submitters.Done()

	select {
	case <-ctx.Done():
		return fmt.Errorf("cannot submit: %w", ctx.Err())
	default:
	}

	t := task{
		ctx:      ctx,
		index:    atomic.AddInt64(&r.next, 1) - 1,
		input:    input,
		metadata: metadata,
	}

	select {
	case r.queue <- t:
		atomic.AddInt64(&r.submitted, 1)
		if r.metrics != nil {
			r.metrics.BatchSubmitted.WithLabelValues(r.name).Inc()
		}
		return nil
	case <-r.shutdownCh:
		return fmt.Errorf("cannot submit: runner %q: %w", r.name, gferrors.ErrClosed)
	case <-ctx.Done():
		return fmt.Errorf("cannot submit: %w", ctx.Err())
	}
}

// Results returns the outcome channel. It is closed after Shutdown once every
// accepted input has been processed.
func (r *Runner) Results() <-chan Outcome {
	return r.results
}

// Shutdown stops accepting inputs. Queued inputs are still processed. The
// returned channel closes once the workers have exited and Results is closed.
func (r *Runner) Shutdown() <-chan struct{} {
	r.shutdownOnce.Do(func() {
		r.mu.Lock()
		r.isShutdown = true
		r.mu.Unlock()
		close(r.shutdownCh)

		go func() {
			r.submitters.Wait()
			close(r.queue)
			r.workerWg.Wait()
			close(r.results)
			close(r.done)
		}()
	})
	return r.done
}

// Stats returns the runner's counters.
func (r *Runner) Stats() Stats {
	return Stats{
		Submitted: atomic.LoadInt64(&r.submitted),
		Completed: atomic.LoadInt64(&r.completed),
		Failed:    atomic.LoadInt64(&r.failed),
		Active:    int(atomic.LoadInt32(&r.active)),
	}
}

// Workers returns the number of workers.
func (r *Runner) Workers() int {
	return r.workers
}

func (r *Runner) work(id int) {
	defer r.workerWg.Done()

	for t := range r.queue {
		r.results <- r.process(id, t)
	}
}

func (r *Runner) process(id int, t task) (outcome Outcome) {
	outcome = Outcome{Index: t.index, Input: t.input, WorkerID: id}

	atomic.AddInt32(&r.active, 1)
	if r.metrics != nil {
		r.metrics.BatchActive.WithLabelValues(r.name).Inc()
	}

	defer func() {
		if rec := recover(); rec != nil {
			outcome.Err = fmt.Errorf("batch worker panicked: %v\nStack trace:\n%s", rec, debug.Stack())
		}
		atomic.AddInt32(&r.active, -1)
		r.record(t.ctx, outcome)
	}()

	if r.limiter != nil {
		waited, err := r.limiter.Wait(t.ctx)
		outcome.Throttled = waited
		if err != nil {
			outcome.Err = err
			return outcome
		}
		if waited > 0 && r.metrics != nil {
			r.metrics.BatchThrottled.WithLabelValues(r.name).Inc()
		}
	}

	outcome.Result, outcome.Err = r.pipeline.Execute(t.ctx, t.input, t.metadata)
	return outcome
}

func (r *Runner) record(ctx context.Context, o Outcome) {
	atomic.AddInt64(&r.completed, 1)
	if o.Err != nil {
		atomic.AddInt64(&r.failed, 1)
		fields := map[string]interface{}{
			"runner": r.name,
			"index":  o.Index,
			"worker": o.WorkerID,
			"error":  o.Err.Error(),
		}
		switch {
		case o.Result != nil:
			fields[logging.FieldExecutionID] = o.Result.ExecutionID
			r.log.Warn("batch input failed", fields)
		case gfcontext.IsCanceled(ctx):
			fields["timed_out"] = gfcontext.IsTimedOut(ctx)
			r.log.Debug("batch input abandoned before it ran", fields)
		default:
			r.log.Warn("batch input failed", fields)
		}
	}

	if r.metrics != nil {
		r.metrics.BatchActive.WithLabelValues(r.name).Dec()
		r.metrics.BatchCompleted.WithLabelValues(r.name, o.Status()).Inc()
	}
}

// Run processes items with a new runner and returns their outcomes in item
// order. The error is non-nil only when submission stopped early because ctx
// ended; outcomes for items that were never submitted are left zero apart
// from Index and Input. Per-item failures are reported on each Outcome.
func Run(ctx context.Context, p pipeline.Pipeline, items []Item, cfg Config) ([]Outcome, error) {
	r, err := New(p, cfg)
	if err != nil {
		return nil, err
	}

	outcomes := make([]Outcome, len(items))
	for i, item := range items {
		outcomes[i] = Outcome{Index: int64(i), Input: item.Input}
	}

	collected := make(chan struct{})
	go func() {
		defer close(collected)
		for o := range r.Results() {
			outcomes[o.Index] = o
		}
	}()

	var submitErr error
	for _, item := range items {
		if submitErr = r.Submit(ctx, item.Input, item.Metadata); submitErr != nil {
			break
		}
	}

	<-r.Shutdown()
	<-collected
	return outcomes, submitErr
}
