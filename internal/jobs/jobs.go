// Package jobs runs queries on a bounded background worker pool. A job
// moves from pending through running to one of completed, failed, or
// cancelled; progress is reported at coarse milestones and snapshots
// never move backwards. The pool is sized once and never grows.
package jobs

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tabiq-dev/tabiq/internal/engine"
	"github.com/tabiq-dev/tabiq/internal/errors"
	"github.com/tabiq-dev/tabiq/internal/logging"
)

// State is a job's lifecycle position
type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

const (
	DefaultWorkers   = 4
	DefaultQueueSize = 16

	// Worker backoff after the gate defers a job
	gateRetryDelay = 200 * time.Millisecond
)

// Fn is one unit of background work. Implementations report coarse
// progress through the callback and fold query failures into the
// response; a returned error means the job itself broke, for example a
// file that would not load.
type Fn func(ctx context.Context, report engine.Progress) (*engine.Response, error)

// Gate lets the runner defer jobs while the completion governor has no
// capacity, rescheduling them instead of parking a worker inside it.
type Gate interface {
	Allow() bool
}

// Options size the runner
type Options struct {
	Workers   int
	QueueSize int
	Gate      Gate
}

// Snapshot is the externally visible state of a job at one instant
type Snapshot struct {
	ID        string           `json:"id"`
	Kind      string           `json:"kind"`
	State     State            `json:"state"`
	Percent   int              `json:"percent"`
	Status    string           `json:"status,omitempty"`
	Response  *engine.Response `json:"response,omitempty"`
	Error     string           `json:"error,omitempty"`
	Submitted time.Time        `json:"submitted"`
	Started   time.Time        `json:"started"`
	Finished  time.Time        `json:"finished"`
}

// Done reports whether the job reached a terminal state
func (s *Snapshot) Done() bool {
	switch s.State {
	case StateCompleted, StateFailed, StateCancelled:
		return true
	default:
		return false
	}
}

type job struct {
	id     string
	kind   string
	fn     Fn
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu        sync.Mutex
	state     State
	percent   int
	status    string
	resp      *engine.Response
	err       error
	submitted time.Time
	started   time.Time
	finished  time.Time
}

// Runner owns the worker pool and the job registry. Safe for concurrent
// use.
type Runner struct {
	gate  Gate
	base  context.Context
	stop  context.CancelFunc
	queue chan *job
	wg    sync.WaitGroup

	mu   sync.RWMutex
	jobs map[string]*job
}

// NewRunner starts the workers immediately
func NewRunner(opts Options) *Runner {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}

	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}

	base, stop := context.WithCancel(context.Background())

	r := &Runner{
		gate:  opts.Gate,
		base:  base,
		stop:  stop,
		queue: make(chan *job, opts.QueueSize),
		jobs:  make(map[string]*job),
	}

	for range opts.Workers {
		r.wg.Add(1)

		go r.worker()
	}

	return r
}

// Submit queues a job. It fails fast when the queue is full rather than
// blocking the caller.
func (r *Runner) Submit(kind string, fn Fn) (string, error) {
	if r.base.Err() != nil {
		return "", errors.New(errors.ErrTypeInternal, "job runner is closed")
	}

	ctx, cancel := context.WithCancel(r.base)

	j := &job{
		id:        uuid.New().String(),
		kind:      kind,
		fn:        fn,
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
		state:     StatePending,
		status:    "queued",
		submitted: time.Now(),
	}

	r.mu.Lock()
	r.jobs[j.id] = j
	r.mu.Unlock()

	select {
	case r.queue <- j:
		logging.Debugf("job %s (%s) queued", j.id, kind)
		return j.id, nil
	default:
		r.mu.Lock()
		delete(r.jobs, j.id)
		r.mu.Unlock()

		cancel()

		return "", errors.Newf(errors.ErrTypeRateLimit,
			"job queue is full (%d waiting)", cap(r.queue)).
			WithSuggestion("wait for a running job to finish and submit again")
	}
}

// Status returns a point-in-time snapshot of one job
func (r *Runner) Status(id string) (*Snapshot, error) {
	j, ok := r.get(id)
	if !ok {
		return nil, errors.Newf(errors.ErrTypeNotFound, "job not found: %s", id)
	}

	snap := j.snapshot()

	return &snap, nil
}

// Cancel stops a job. Pending jobs finish as cancelled without running;
// running jobs are interrupted through their context. Cancelling a
// finished job is a no-op.
func (r *Runner) Cancel(id string) error {
	j, ok := r.get(id)
	if !ok {
		return errors.Newf(errors.ErrTypeNotFound, "job not found: %s", id)
	}

	j.cancelNow()

	return nil
}

// Wait blocks until the job reaches a terminal state or the context is
// cancelled.
func (r *Runner) Wait(ctx context.Context, id string) (*Snapshot, error) {
	j, ok := r.get(id)
	if !ok {
		return nil, errors.Newf(errors.ErrTypeNotFound, "job not found: %s", id)
	}

	select {
	case <-j.done:
		snap := j.snapshot()
		return &snap, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// List returns snapshots of every known job, newest first
func (r *Runner) List() []Snapshot {
	r.mu.RLock()

	snaps := make([]Snapshot, 0, len(r.jobs))
	for _, j := range r.jobs {
		snaps = append(snaps, j.snapshot())
	}

	r.mu.RUnlock()

	sort.Slice(snaps, func(i, k int) bool {
		return snaps[i].Submitted.After(snaps[k].Submitted)
	})

	return snaps
}

// Close cancels everything in flight, waits for the workers to exit,
// and finishes still-queued jobs as cancelled.
func (r *Runner) Close() {
	r.stop()
	r.wg.Wait()

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, j := range r.jobs {
		j.cancelNow()
	}
}

func (r *Runner) get(id string) (*job, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	j, ok := r.jobs[id]

	return j, ok
}

func (r *Runner) worker() {
	defer r.wg.Done()

	for {
		select {
		case j := <-r.queue:
			r.runJob(j)
		case <-r.base.Done():
			return
		}
	}
}

func (r *Runner) runJob(j *job) {
	if j.terminal() {
		return
	}

	if r.gate != nil && !r.gate.Allow() {
		r.reschedule(j)
		return
	}

	r.execute(j)
}

// reschedule puts a gated job back on the queue and lets the worker
// breathe before it picks up the next one. When the queue refilled
// behind us the job runs anyway; blocking beats dropping it.
func (r *Runner) reschedule(j *job) {
	select {
	case r.queue <- j:
		logging.Debugf("job %s deferred, no completion capacity", j.id)
	default:
		r.execute(j)
		return
	}

	select {
	case <-time.After(gateRetryDelay):
	case <-r.base.Done():
	}
}

func (r *Runner) execute(j *job) {
	if !j.begin() {
		return
	}

	logging.Debugf("job %s (%s) started", j.id, j.kind)

	resp, err := j.fn(j.ctx, j.report)

	j.finish(resp, err)
}

func (j *job) begin() bool {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.state != StatePending {
		return false
	}

	j.state = StateRunning
	j.started = time.Now()
	j.percent = 0
	j.status = "starting"

	return true
}

// report implements engine.Progress. Percent never moves backwards, so
// a snapshot taken mid-run is always monotone with the previous one.
func (j *job) report(percent int, status string) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.state != StateRunning || percent < j.percent {
		return
	}

	j.percent = percent
	j.status = status
}

func (j *job) finish(resp *engine.Response, err error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.finished = time.Now()

	switch {
	case j.ctx.Err() != nil:
		j.state = StateCancelled
		j.status = "cancelled"
	case err != nil:
		j.state = StateFailed
		j.status = "failed"
		j.err = err
	default:
		j.state = StateCompleted
		j.status = "done"
		j.percent = 100
		j.resp = resp
	}

	j.cancel()
	close(j.done)

	logging.Debugf("job %s finished: %s", j.id, j.state)
}

func (j *job) cancelNow() {
	j.mu.Lock()
	defer j.mu.Unlock()

	switch j.state {
	case StatePending:
		j.state = StateCancelled
		j.status = "cancelled"
		j.finished = time.Now()
		j.cancel()
		close(j.done)
	case StateRunning:
		// finish classifies through the cancelled context
		j.cancel()
	}
}

func (j *job) terminal() bool {
	j.mu.Lock()
	defer j.mu.Unlock()

	switch j.state {
	case StateCompleted, StateFailed, StateCancelled:
		return true
	default:
		return false
	}
}

func (j *job) snapshot() Snapshot {
	j.mu.Lock()
	defer j.mu.Unlock()

	snap := Snapshot{
		ID:        j.id,
		Kind:      j.kind,
		State:     j.state,
		Percent:   j.percent,
		Status:    j.status,
		Response:  j.resp,
		Submitted: j.submitted,
		Started:   j.started,
		Finished:  j.finished,
	}

	if j.err != nil {
		snap.Error = j.err.Error()
	}

	return snap
}
