package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/time/rate"

	"github.com/kitsunehq/kitsune-backend/internal/reporting"
)

// ErrUnknownJob is returned by Enqueue for a name no handler was registered
// under.
var ErrUnknownJob = errors.New("unknown job")

// Handler executes one invocation of a named job. Handlers must be idempotent:
// the dispatcher guarantees at-least-once execution, not exactly-once.
type Handler func(ctx context.Context, arg any) error

// Options control how invocations of one job are throttled.
type Options struct {
	// Rate limits invocations per second across the job (0 = unlimited).
	Rate rate.Limit
	// Burst for the token bucket; defaults to 1 when Rate is set.
	Burst int
	// PerArg gives every distinct argument value its own bucket, e.g. the
	// per-question vote sync runs at most once per second per question.
	PerArg bool
}

type job struct {
	name    string
	handler Handler
	opts    Options

	limiter *rate.Limiter

	mu    sync.Mutex
	keyed map[string]*rate.Limiter
}

func (j *job) wait(ctx context.Context, arg any) error {
	if j.opts.Rate == 0 {
		return nil
	}
	if !j.opts.PerArg {
		return j.limiter.Wait(ctx)
	}

	key := fmt.Sprint(arg)
	j.mu.Lock()
	lim, ok := j.keyed[key]
	if !ok {
		lim = rate.NewLimiter(j.opts.Rate, j.burst())
		j.keyed[key] = lim
	}
	j.mu.Unlock()
	return lim.Wait(ctx)
}

func (j *job) burst() int {
	if j.opts.Burst > 0 {
		return j.opts.Burst
	}
	return 1
}

type invocation struct {
	name string
	arg  any
}

// Dispatcher is an in-process background task queue. Jobs are registered by
// name, enqueued with a single argument and executed asynchronously by a
// worker pool, each invocation single-threaded. Handler errors are the job
// framework's failure signal: they are logged and captured, never retried
// here (idempotent recompute jobs self-heal on their next trigger).
type Dispatcher struct {
	mu    sync.RWMutex
	jobs  map[string]*job
	queue chan invocation
	sink  reporting.Sink
	wg    sync.WaitGroup
}

func New(sink reporting.Sink) *Dispatcher {
	return &Dispatcher{
		jobs:  make(map[string]*job),
		queue: make(chan invocation, 4096),
		sink:  sink,
	}
}

// Register adds a named job. Registering the same name twice replaces the
// previous handler.
func (d *Dispatcher) Register(name string, h Handler, opts Options) {
	j := &job{name: name, handler: h, opts: opts}
	if opts.Rate > 0 {
		if opts.PerArg {
			j.keyed = make(map[string]*rate.Limiter)
		} else {
			j.limiter = rate.NewLimiter(opts.Rate, j.burst())
		}
	}

	d.mu.Lock()
	d.jobs[name] = j
	d.mu.Unlock()
}

// Enqueue schedules one invocation. It blocks if the queue is full rather
// than dropping work.
func (d *Dispatcher) Enqueue(name string, arg any) error {
	d.mu.RLock()
	_, ok := d.jobs[name]
	d.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownJob, name)
	}

	d.queue <- invocation{name: name, arg: arg}
	return nil
}

// Start launches the worker pool. Workers drain until ctx is cancelled.
func (d *Dispatcher) Start(ctx context.Context, workers int) {
	if workers < 1 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.worker(ctx)
	}
}

// Wait blocks until all workers have exited.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) worker(ctx context.Context) {
	defer d.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case inv := <-d.queue:
			d.run(ctx, inv)
		}
	}
}

func (d *Dispatcher) run(ctx context.Context, inv invocation) {
	d.mu.RLock()
	j := d.jobs[inv.name]
	d.mu.RUnlock()
	if j == nil {
		return
	}

	if err := j.wait(ctx, inv.arg); err != nil {
		// Cancelled while throttled; the job stays undone and will be
		// re-derived by its next trigger.
		return
	}

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("job %s panicked: %v", inv.name, r)
			slog.Error("task panic", "job", inv.name, "panic", r)
			d.sink.CaptureException(err)
		}
	}()

	if err := j.handler(ctx, inv.arg); err != nil {
		slog.Error("task failed", "job", inv.name, "error", err)
		d.sink.CaptureException(fmt.Errorf("job %s: %w", inv.name, err))
	}
}
