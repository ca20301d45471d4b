// Package console is the interactive host: it reads commands from the
// terminal (or the microphone), hands them to the app and renders task
// events in order.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	log "log/slog"
	"strings"

	"shree/internal/app"
	"shree/internal/event"
	"shree/internal/gate"
	"shree/internal/nlu"
	"shree/internal/supervisor"
)

// MaxAnswerTries is how many unreadable answers a confirmation gets before
// the default decision is used.
const MaxAnswerTries = 3

const retryAnswer = "Please answer yes or no."

// Listener produces one utterance on demand.
type Listener interface {
	Listen(ctx context.Context) (string, error)
}

type Config struct {
	In  io.Reader
	Out io.Writer
	// Voice replaces In when set.
	Voice Listener
	// First is handled as the first command, before any input is read.
	First string
}

type line struct {
	text string
	err  error
}

type Console struct {
	app   *app.App
	out   io.Writer
	in    *bufio.Reader
	voice Listener
	first string

	events  chan any
	lines   chan line
	done    chan struct{}
	reading bool
	tries   int
}

// New attaches a console to a. The console hears every event a publishes
// from now on.
func New(a *app.App, cfg Config) *Console {
	c := &Console{
		app:    a,
		out:    cfg.Out,
		voice:  cfg.Voice,
		first:  cfg.First,
		events: make(chan any, 64),
		lines:  make(chan line, 1),
		done:   make(chan struct{}),
	}
	if cfg.In != nil {
		c.in = bufio.NewReader(cfg.In)
	}
	a.Events.Add(c)
	return c
}

// Run greets the user and serves until a quit command, the end of input or
// ctx is done. Input is only read while no task runs or while a
// confirmation is waiting, so scripts keep the terminal to themselves.
func (c *Console) Run(ctx context.Context) error {
	defer close(c.done)

	c.say(app.Greeting)
	if c.first == "" {
		c.next(ctx)
	} else {
		fmt.Fprintf(c.out, "> %s\n", c.first)
		if quit := c.handle(ctx, c.first); quit {
			c.drain()
			return nil
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev := <-c.events:
			c.render(ctx, ev)

		case l := <-c.lines:
			c.reading = false
			if l.err != nil {
				if errors.Is(l.err, io.EOF) {
					return nil
				}
				if c.voice == nil || ctx.Err() != nil {
					return l.err
				}
				log.Warn("Did not catch that", "err", l.err)
				c.next(ctx)
				continue
			}
			if quit := c.handle(ctx, l.text); quit {
				c.drain()
				return nil
			}
		}
	}
}

func (c *Console) handle(ctx context.Context, text string) (quit bool) {
	if prompt, ok := c.app.Gate.Pending(); ok {
		c.answer(ctx, prompt, text)
		return false
	}
	if c.app.Supervisor.State() == supervisor.Running {
		c.say(app.BusyNotice)
		return false
	}

	o, err := c.app.Handle(ctx, text)
	switch {
	case errors.Is(err, supervisor.ErrBusy):
	case err != nil:
		log.Error("Failed to handle command", "err", err)
		c.say("Something went wrong: " + err.Error())
	}

	for _, r := range o.History {
		fmt.Fprintln(c.out, r.String())
	}
	if o.Intent.Kind == nlu.Quit {
		return true
	}
	if o.Submission == nil {
		c.next(ctx)
	}
	return false
}

func (c *Console) answer(ctx context.Context, prompt, text string) {
	d, ok := gate.ParseDecision(text)
	if !ok || d == gate.Undecided {
		c.tries++
		if c.tries < MaxAnswerTries {
			c.say(retryAnswer)
			c.next(ctx)
			return
		}
		d = c.app.Gate.Default()
		log.Info("No usable answer, using default", "prompt", prompt, "decision", d)
	}
	c.tries = 0
	if err := c.app.Gate.Respond(d); err != nil {
		log.Warn("Confirmation already resolved", "err", err)
	}
}

// drain renders events that were published before a quit.
func (c *Console) drain() {
	for {
		select {
		case ev := <-c.events:
			c.render(context.Background(), ev)
		default:
			return
		}
	}
}

func (c *Console) render(ctx context.Context, ev any) {
	switch ev := ev.(type) {
	case event.Output:
		if ev.Origin == event.Stderr {
			fmt.Fprintf(c.out, "  ! %s\n", ev.Text)
		} else {
			fmt.Fprintf(c.out, "  | %s\n", ev.Text)
		}

	case notice:
		c.say(string(ev))

	case confirmation:
		c.tries = 0
		fmt.Fprintf(c.out, "Shree: %s (yes/no)\n", string(ev))
		c.next(ctx)

	case event.Result:
		log.Info("Task finished", "task", ev.Task, "success", ev.Success, "code", ev.ExitCode)
		c.next(ctx)
	}
}

func (c *Console) say(text string) {
	fmt.Fprintf(c.out, "Shree: %s\n", text)
}

// next starts reading one line unless a read is already in flight.
func (c *Console) next(ctx context.Context) {
	if c.reading {
		return
	}
	c.reading = true

	if c.voice == nil {
		fmt.Fprint(c.out, "> ")
	}
	go func() {
		var l line
		if c.voice != nil {
			l.text, l.err = c.voice.Listen(ctx)
			if l.err == nil {
				fmt.Fprintf(c.out, "> %s\n", l.text)
			}
		} else {
			l.text, l.err = c.in.ReadString('\n')
			if l.err != nil && errors.Is(l.err, io.EOF) && strings.TrimSpace(l.text) != "" {
				l.err = nil
			}
			l.text = strings.TrimSpace(l.text)
		}
		select {
		case c.lines <- l:
		case <-c.done:
		}
	}()
}

type notice string

type confirmation string

func (c *Console) publish(ev any) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

func (c *Console) OnOutput(o event.Output) { c.publish(o) }

func (c *Console) OnNotice(text string) { c.publish(notice(text)) }

func (c *Console) OnConfirmationRequested(prompt string) { c.publish(confirmation(prompt)) }

func (c *Console) OnTaskCompleted(r event.Result) { c.publish(r) }
