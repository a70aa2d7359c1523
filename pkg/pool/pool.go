// Package pool runs compositing jobs on a bounded set of worker goroutines.
//
// The pool owns worker lifecycle: workers pull jobs from a shared channel,
// record heartbeats while working, and are restarted when a job panics. A
// worker that exhausts its restart budget is retired permanently and the
// pool shrinks. Individual jobs are retried on transient failure before
// their error is surfaced to the caller.
package pool

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/layerforge/layerforge/pkg/errors"
	"github.com/layerforge/layerforge/pkg/observability"
)

const (
	// DefaultMaxJobRetries bounds transient retries of a single job before
	// the failure escalates to a worker fault.
	DefaultMaxJobRetries = 2

	// DefaultMaxWorkerRestarts bounds how many times a crashed worker is
	// respawned before it is retired for good.
	DefaultMaxWorkerRestarts = 3

	// DefaultHeartbeatInterval is how often the health monitor scans
	// worker heartbeats.
	DefaultHeartbeatInterval = 500 * time.Millisecond

	// DefaultHeartbeatTimeout is how long a busy worker may go without a
	// heartbeat before it is reported unhealthy.
	DefaultHeartbeatTimeout = 30 * time.Second
)

// Job is a unit of work executed by a pool worker. Run must respect
// context cancellation; Retryable failures are retried in place.
type Job struct {
	// Index identifies the job to the caller. Results carry it back so
	// out-of-order completion can be re-sequenced.
	Index int

	// Run performs the work and returns its output bytes.
	Run func(ctx context.Context) ([]byte, error)
}

// Result is the outcome of one job.
type Result struct {
	Index    int
	Data     []byte
	Err      error
	Attempts int // total Run invocations, including the successful one
}

// Options configure a Pool. Zero values fall back to defaults.
type Options struct {
	// Workers is the number of concurrent worker goroutines. Values < 1
	// default to 1.
	Workers int

	// MaxJobRetries bounds transient retries per job.
	MaxJobRetries int

	// MaxWorkerRestarts bounds respawns per crashed worker slot.
	MaxWorkerRestarts int

	// HeartbeatInterval is the health monitor scan period.
	HeartbeatInterval time.Duration

	// HeartbeatTimeout is the silence threshold for a busy worker.
	HeartbeatTimeout time.Duration
}

// withDefaults fills unset options in place.
func (o Options) withDefaults() Options {
	if o.Workers < 1 {
		o.Workers = 1
	}
	if o.MaxJobRetries <= 0 {
		o.MaxJobRetries = DefaultMaxJobRetries
	}
	if o.MaxWorkerRestarts <= 0 {
		o.MaxWorkerRestarts = DefaultMaxWorkerRestarts
	}
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if o.HeartbeatTimeout <= 0 {
		o.HeartbeatTimeout = DefaultHeartbeatTimeout
	}
	return o
}

// Pool executes jobs on worker goroutines with restart and retry handling.
//
// Use [New] then [Pool.Start]; submit jobs with [Pool.Submit] and read
// completions from [Pool.Results]. Call [Pool.Close] once all jobs are
// submitted; the results channel closes after the last job drains.
type Pool struct {
	opts Options

	jobs    chan Job
	results chan Result

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	beats   map[int]time.Time // worker ID -> last heartbeat
	busy    map[int]bool      // worker ID -> has a job in flight
	retired int32             // atomic count of permanently removed workers

	started bool
	closed  bool
}

// New creates a pool. Call Start before submitting jobs.
func New(opts Options) *Pool {
	opts = opts.withDefaults()
	return &Pool{
		opts:    opts,
		jobs:    make(chan Job, opts.Workers*2),
		results: make(chan Result, opts.Workers*2),
		beats:   make(map[int]time.Time),
		busy:    make(map[int]bool),
	}
}

// Start spawns the workers and the health monitor. The pool stops
// accepting work when ctx is cancelled.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	p.ctx, p.cancel = context.WithCancel(ctx)

	for id := range p.opts.Workers {
		p.spawn(id, p.opts.MaxWorkerRestarts)
	}
	go p.monitor()

	// Close the results channel once every worker slot has exited.
	go func() {
		p.wg.Wait()
		close(p.results)
	}()
}

// Submit enqueues a job. It blocks while the queue is full and returns
// the context error if the pool is shutting down.
func (p *Pool) Submit(job Job) error {
	select {
	case p.jobs <- job:
		return nil
	case <-p.ctx.Done():
		return errors.Wrap(errors.ErrCodeCancelled, p.ctx.Err(), "pool shutting down")
	}
}

// Results returns the completion channel. It closes after Close is called
// and all submitted jobs have finished.
func (p *Pool) Results() <-chan Result {
	return p.results
}

// Close signals that no further jobs will be submitted. Safe to call once.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	close(p.jobs)
}

// Alive reports how many worker slots are still running.
func (p *Pool) Alive() int {
	return p.opts.Workers - int(atomic.LoadInt32(&p.retired))
}

// spawn runs one worker slot. When the worker panics mid-job it is
// respawned with one fewer restart left; at zero the slot is retired.
func (p *Pool) spawn(id, restartsLeft int) {
	p.wg.Add(1)
	observability.Pool().OnWorkerStart(p.ctx, id)
	go func() {
		defer p.wg.Done()
		if crashErr := p.work(id); crashErr != nil {
			if restartsLeft > 0 {
				observability.Pool().OnWorkerRestart(p.ctx, id, restartsLeft-1, crashErr)
				p.spawn(id, restartsLeft-1)
				return
			}
			atomic.AddInt32(&p.retired, 1)
		}
	}()
}

// work pulls jobs until the queue closes. A non-nil return means the
// worker crashed mid-job and should be considered for respawn.
func (p *Pool) work(id int) error {
	for {
		select {
		case job, ok := <-p.jobs:
			if !ok {
				return nil
			}
			if p.ctx.Err() != nil {
				p.deliver(Result{Index: job.Index, Err: errors.Wrap(errors.ErrCodeCancelled, p.ctx.Err(), "job cancelled")})
				continue
			}

			p.setBusy(id, true)
			res, panicked := p.runWithRetry(id, job)
			p.setBusy(id, false)

			p.deliver(res)
			if panicked {
				return res.Err
			}
		case <-p.ctx.Done():
			return nil
		}
	}
}

// runWithRetry executes a job up to MaxJobRetries+1 times. A panic ends
// the attempt loop immediately; persistent failure is reported as a
// worker fault carrying the last error.
func (p *Pool) runWithRetry(id int, job Job) (res Result, panicked bool) {
	var lastErr error
	for attempt := 0; attempt <= p.opts.MaxJobRetries; attempt++ {
		if attempt > 0 {
			observability.Pool().OnJobRetry(p.ctx, job.Index, attempt, lastErr)
		}

		data, err, didPanic := p.runOnce(id, job)
		res.Attempts = attempt + 1
		if didPanic {
			res = Result{
				Index:    job.Index,
				Attempts: attempt + 1,
				Err: errors.New(errors.ErrCodeWorkerFault,
					"worker %d panicked running job %d: %v", id, job.Index, err),
			}
			return res, true
		}
		if err == nil {
			return Result{Index: job.Index, Data: data, Attempts: attempt + 1}, false
		}
		lastErr = err
		if p.ctx.Err() != nil {
			break
		}
	}

	return Result{
		Index:    job.Index,
		Attempts: p.opts.MaxJobRetries + 1,
		Err: errors.Wrap(errors.ErrCodeWorkerFault, lastErr,
			"job %d failed after %d attempts", job.Index, p.opts.MaxJobRetries+1),
	}, false
}

// runOnce executes one attempt with panic recovery and a heartbeat.
func (p *Pool) runOnce(id int, job Job) (data []byte, err error, panicked bool) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%v", r)
			panicked = true
		}
	}()
	p.beat(id)
	data, err = job.Run(p.ctx)
	p.beat(id)
	return data, err, false
}

// deliver sends a result without blocking forever on a cancelled pool.
func (p *Pool) deliver(res Result) {
	select {
	case p.results <- res:
	case <-p.ctx.Done():
	}
}

// beat records a liveness timestamp for the worker.
func (p *Pool) beat(id int) {
	p.mu.Lock()
	p.beats[id] = time.Now()
	p.mu.Unlock()
}

func (p *Pool) setBusy(id int, b bool) {
	p.mu.Lock()
	p.busy[id] = b
	if b {
		p.beats[id] = time.Now()
	}
	p.mu.Unlock()
}

// monitor periodically scans heartbeats and reports busy workers that
// have gone silent past the timeout. Detection is advisory: a wedged
// goroutine cannot be preempted, but the report lets the session's stall
// watchdog act on it.
func (p *Pool) monitor() {
	ticker := time.NewTicker(p.opts.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.checkHealth()
		case <-p.ctx.Done():
			return
		}
	}
}

// checkHealth reports workers whose heartbeat is older than the timeout.
func (p *Pool) checkHealth() {
	now := time.Now()
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, busy := range p.busy {
		if !busy {
			continue
		}
		if last, ok := p.beats[id]; ok && now.Sub(last) > p.opts.HeartbeatTimeout {
			observability.Pool().OnWorkerUnhealthy(p.ctx, id, now.Sub(last))
		}
	}
}
