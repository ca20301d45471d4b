// Package supervisor runs tasks one at a time on a single long-lived worker
// goroutine.
//
// Submit refuses new work while a task is running instead of queueing it, so
// there is never more than one privileged process or one outstanding
// confirmation in flight. A task that panics is reported as an internal fault
// and the worker keeps going.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"runtime/debug"
	"sync"

	"github.com/google/uuid"

	"shree/internal/event"
)

var (
	ErrBusy          = errors.New("a task is already running")
	ErrClosed        = errors.New("supervisor is shut down")
	ErrInternalFault = errors.New("internal fault")
)

type State int

const (
	Idle State = iota
	Running
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Func is a task body. It runs on the worker goroutine.
type Func func(ctx context.Context) event.Result

// Completer hears about every finished task.
type Completer interface {
	OnTaskCompleted(event.Result)
}

type Config struct {
	Notify Completer
	// OnTransition, when set, is called on the worker goroutine for every
	// Idle->Running and Running->Idle transition.
	OnTransition func(from, to State)
}

type Submission struct {
	ID   string
	Name string

	done   chan struct{}
	result event.Result
}

// Done is closed after the task finished, the supervisor went back to Idle
// and observers were notified.
func (s *Submission) Done() <-chan struct{} { return s.done }

// Wait blocks until the task is done and returns its result.
func (s *Submission) Wait() event.Result {
	<-s.done
	return s.result
}

type job struct {
	sub *Submission
	fn  Func
}

type Supervisor struct {
	cfg Config
	ctx context.Context

	mu     sync.Mutex
	state  State
	closed bool

	jobs    chan job
	quit    chan struct{}
	stopped chan struct{}
}

// New starts the worker. ctx is handed to every task.
func New(ctx context.Context, cfg Config) *Supervisor {
	s := &Supervisor{
		cfg: cfg,
		ctx: ctx,
		// Submit only enqueues while Idle, so one slot is enough and the
		// send never blocks.
		jobs:    make(chan job, 1),
		quit:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go s.work()
	return s
}

func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Submit hands fn to the worker. It fails with ErrBusy while another task is
// running.
func (s *Supervisor) Submit(name string, fn Func) (*Submission, error) {
	sub := &Submission{
		ID:   uuid.NewString(),
		Name: name,
		done: make(chan struct{}),
	}

	s.mu.Lock()
	switch {
	case s.closed:
		s.mu.Unlock()
		return nil, ErrClosed
	case s.state == Running:
		s.mu.Unlock()
		return nil, ErrBusy
	}
	s.state = Running
	// Enqueued under mu so Close cannot stop the worker in between.
	s.jobs <- job{sub: sub, fn: fn}
	s.mu.Unlock()

	log.Debug("Task submitted", "task", name, "id", sub.ID)
	return sub, nil
}

// Close waits for the running task, if any, and stops the worker.
func (s *Supervisor) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		<-s.stopped
		return
	}
	s.closed = true
	s.mu.Unlock()

	close(s.quit)
	<-s.stopped
}

func (s *Supervisor) work() {
	defer close(s.stopped)

	for {
		select {
		case j := <-s.jobs:
			s.run(j)
		case <-s.quit:
			select {
			case j := <-s.jobs:
				s.run(j)
			default:
			}
			return
		}
	}
}

func (s *Supervisor) run(j job) {
	s.transition(Idle, Running)
	log.Info("Task started", "task", j.sub.Name, "id", j.sub.ID)

	res := s.invoke(j)
	if res.Task == "" {
		res.Task = j.sub.Name
	}

	s.mu.Lock()
	s.state = Idle
	s.mu.Unlock()
	s.transition(Running, Idle)

	log.Info("Task finished", "task", j.sub.Name, "id", j.sub.ID, "result", res.String())

	j.sub.result = res
	if s.cfg.Notify != nil {
		s.cfg.Notify.OnTaskCompleted(res)
	}
	close(j.sub.done)
}

func (s *Supervisor) invoke(j job) (res event.Result) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("Task panicked", "task", j.sub.Name, "panic", r, "stack", string(debug.Stack()))
			res = event.Failed(
				fmt.Errorf("%w: %v", ErrInternalFault, r),
				"An unexpected error occurred. Please check the logs.",
			)
		}
	}()

	return j.fn(WithSubmission(s.ctx, j.sub))
}

func (s *Supervisor) transition(from, to State) {
	if s.cfg.OnTransition != nil {
		s.cfg.OnTransition(from, to)
	}
}

type submissionKey struct{}

// WithSubmission attaches sub to ctx so task code can tag its events.
func WithSubmission(ctx context.Context, sub *Submission) context.Context {
	return context.WithValue(ctx, submissionKey{}, sub)
}

// IDFromContext returns the ID of the submission running under ctx, or "".
func IDFromContext(ctx context.Context) string {
	if sub, ok := ctx.Value(submissionKey{}).(*Submission); ok {
		return sub.ID
	}
	return ""
}
