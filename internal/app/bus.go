package app

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"sync"

	"shree/internal/event"
	"shree/internal/gate"
	"shree/internal/supervisor"
	"shree/pkg/protocol"
)

// busQueue bounds the frames waiting for a slow hub.
const busQueue = 256

// busObserver mirrors task events onto the hub. Frames are written from its
// own goroutine; when the hub falls busQueue frames behind, new ones are
// dropped so the worker never waits on the network.
type busObserver struct {
	p      *protocol.Protocol
	frames chan protocol.Frame
	done   chan struct{}

	mu     sync.Mutex
	closed bool
}

func newBusObserver(p *protocol.Protocol) *busObserver {
	b := &busObserver{p: p, frames: make(chan protocol.Frame, busQueue), done: make(chan struct{})}
	go b.loop()
	return b
}

func (b *busObserver) loop() {
	defer close(b.done)
	for f := range b.frames {
		_ = b.p.Send(f)
	}
}

func (b *busObserver) send(f protocol.Frame) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	select {
	case b.frames <- f:
	default:
		log.Warn("Hub is not keeping up, dropping frame", "kind", f.Kind)
	}
}

// close flushes queued frames.
func (b *busObserver) close() {
	b.mu.Lock()
	if !b.closed {
		b.closed = true
		close(b.frames)
	}
	b.mu.Unlock()
	<-b.done
}

func (b *busObserver) OnOutput(o event.Output) {
	b.send(protocol.Frame{
		Kind:    protocol.KindOutput,
		Content: o.Text,
		Task:    o.Task,
		Origin:  o.Origin.String(),
	})
}

func (b *busObserver) OnNotice(text string) {
	b.send(protocol.Frame{Kind: protocol.KindNotice, Content: text})
}

func (b *busObserver) OnConfirmationRequested(prompt string) {
	b.send(protocol.Frame{Kind: protocol.KindConfirm, Content: prompt})
}

func (b *busObserver) OnTaskCompleted(r event.Result) {
	b.send(resultFrame(r))
}

func resultFrame(r event.Result) protocol.Frame {
	f := protocol.Frame{
		Kind:    protocol.KindResult,
		Content: r.Message,
		Task:    r.Task,
		Success: r.Success,
	}
	if r.HasExitCode() {
		code := r.ExitCode
		f.ExitCode = &code
	}
	return f
}

// Bus is a live hub connection.
type Bus struct {
	*protocol.Protocol
	obs    *busObserver
	remove func()
}

// Close stops publishing events, flushes queued frames and disconnects.
func (b *Bus) Close() error {
	b.remove()
	b.obs.close()
	return b.Protocol.Close()
}

// ConnectBus joins the hub named in the configuration. Remote shards can
// then submit commands and answer confirmations, and every task event is
// published. The caller drives the returned connection with Run.
func (a *App) ConnectBus(ctx context.Context) (*Bus, error) {
	var p *protocol.Protocol
	p, err := protocol.Dial(ctx, protocol.Config{
		Shard: a.cfg.Bus.Shard,
		URL:   a.cfg.Bus.URL,
		OnFrame: func(f protocol.Frame) {
			a.onFrame(ctx, p, f)
		},
	})
	if err != nil {
		return nil, err
	}
	obs := newBusObserver(p)
	remove := a.Events.Add(obs)
	log.Info("Joined hub", "url", a.cfg.Bus.URL, "shard", p.Shard())
	return &Bus{Protocol: p, obs: obs, remove: remove}, nil
}

func (a *App) onFrame(ctx context.Context, p *protocol.Protocol, f protocol.Frame) {
	log.Debug("Frame", "from", f.From, "kind", f.Kind)

	var err error
	switch f.Kind {
	case protocol.KindRun:
		_, err = a.Handle(ctx, f.Content)
		if errors.Is(err, supervisor.ErrBusy) {
			// already announced as a notice
			err = nil
		}
	case protocol.KindAnswer:
		err = a.answer(f.Content)
	default:
		return
	}

	if err != nil {
		_ = p.Send(protocol.Frame{To: f.From, Kind: protocol.KindError, Content: err.Error()})
	}
}

var ErrBadAnswer = errors.New("answer yes or no")

func (a *App) answer(text string) error {
	d, ok := gate.ParseDecision(text)
	if !ok {
		return fmt.Errorf("%w: %q", ErrBadAnswer, text)
	}
	return a.Gate.Respond(d)
}
