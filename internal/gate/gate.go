// Package gate lets a worker ask a human a yes/no question and sleep until the
// answer arrives from another goroutine.
//
// The gate holds at most one outstanding request. The worker calls Request,
// which announces the prompt and suspends on a single-slot channel; the host
// calls Respond with the answer. Each request is satisfied exactly once: a
// second answer, or an answer with nothing pending, is logged and ignored.
// When no answer comes (timeout, cancelled context, host gone) the request
// resolves to the configured default decision instead of hanging.
package gate

import (
	"context"
	"errors"
	log "log/slog"
	"sync"
	"time"
)

var (
	// ErrNoPending is returned by Respond when nothing is waiting.
	ErrNoPending = errors.New("no confirmation pending")
	// ErrPending is returned by Request when another request is outstanding.
	ErrPending = errors.New("confirmation already pending")
)

const DefaultTimeout = 2 * time.Minute

// Prompter is told when a question needs an answer.
type Prompter interface {
	OnConfirmationRequested(prompt string)
}

type Config struct {
	// Timeout bounds how long Request waits. Zero means DefaultTimeout,
	// negative means wait forever.
	Timeout time.Duration
	// Default is what an unanswered request resolves to, DefaultDecision
	// when Undecided.
	Default Decision
}

type Gate struct {
	cfg      Config
	prompter Prompter

	mu      sync.Mutex
	pending *pending

	closed    chan struct{}
	closeOnce sync.Once
}

type pending struct {
	prompt string
	reply  chan Decision
}

func New(cfg Config, prompter Prompter) *Gate {
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Default == Undecided {
		cfg.Default = DefaultDecision
	}
	return &Gate{
		cfg:      cfg,
		prompter: prompter,
		closed:   make(chan struct{}),
	}
}

// Default is the decision unanswered requests resolve to.
func (g *Gate) Default() Decision {
	return g.cfg.Default
}

// Request publishes prompt and blocks the calling goroutine until Respond is
// called, the timeout passes, ctx is done or the gate is closed.
func (g *Gate) Request(ctx context.Context, prompt string) (Decision, error) {
	p, err := g.install(prompt)
	if err != nil {
		return g.cfg.Default, err
	}

	select {
	case <-g.closed:
		g.release(p)
		log.Warn("Confirmation requested after shutdown, using default", "decision", g.cfg.Default)
		return g.cfg.Default, nil
	default:
	}

	if g.prompter != nil {
		g.prompter.OnConfirmationRequested(prompt)
	}

	var timeout <-chan time.Time
	if g.cfg.Timeout > 0 {
		t := time.NewTimer(g.cfg.Timeout)
		defer t.Stop()
		timeout = t.C
	}

	var reason string
	select {
	case d := <-p.reply:
		return d, nil
	case <-timeout:
		reason = "timeout"
	case <-ctx.Done():
		reason = "cancelled"
	case <-g.closed:
		reason = "closed"
	}

	// An answer may have landed between the wake-up and the release.
	if d, ok := g.release(p); ok {
		return d, nil
	}

	log.Warn("No confirmation answer, using default", "reason", reason, "decision", g.cfg.Default)
	return g.cfg.Default, nil
}

// Respond delivers d to the outstanding request. It is safe to call from any
// goroutine; with nothing pending it returns ErrNoPending and changes nothing.
func (g *Gate) Respond(d Decision) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.pending == nil {
		log.Warn("Confirmation answer with nothing pending, ignoring", "decision", d)
		return ErrNoPending
	}

	// reply has room for exactly one value and the slot is cleared right
	// after, so this never blocks.
	g.pending.reply <- d
	g.pending = nil
	return nil
}

// Pending reports the prompt of the outstanding request, if any.
func (g *Gate) Pending() (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.pending == nil {
		return "", false
	}
	return g.pending.prompt, true
}

// Close resolves any outstanding request to the default decision. Later
// requests resolve to it immediately.
func (g *Gate) Close() {
	g.closeOnce.Do(func() { close(g.closed) })
}

func (g *Gate) install(prompt string) (*pending, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.pending != nil {
		return nil, ErrPending
	}
	g.pending = &pending{prompt: prompt, reply: make(chan Decision, 1)}
	return g.pending, nil
}

// release clears p if it is still the outstanding request and returns an
// answer that was delivered to it, if any.
func (g *Gate) release(p *pending) (Decision, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.pending == p {
		g.pending = nil
	}

	select {
	case d := <-p.reply:
		return d, true
	default:
		return Undecided, false
	}
}
