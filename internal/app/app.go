// Package app wires the assistant together: configuration, the task runtime,
// the supervisor and gate, the dispatcher and the optional voice, speech and
// bus integrations. Hosts (console, daemon) drive it through Handle.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	log "log/slog"
	"strings"
	"sync"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"shree/internal/config"
	"shree/internal/event"
	"shree/internal/gate"
	"shree/internal/history"
	"shree/internal/nlu"
	"shree/internal/proxy"
	"shree/internal/pump"
	"shree/internal/runner"
	"shree/internal/script"
	"shree/internal/supervisor"
	"shree/internal/task"
	"shree/internal/web"
)

const (
	Greeting     = "Hello! I am Shree, your voice assistant. How can I help you today?"
	Farewell     = "Goodbye! Have a nice day!"
	Unrecognized = "I didn't understand that command. Please try again."
	BusyNotice   = "I'm still working on the previous command. Please wait until it finishes."
	// FollowUpFailed drops a command whose follow-up question got no usable
	// answer.
	FollowUpFailed = "Sorry, I didn't catch that. Please say the whole command again."
)

type Options struct {
	// Stdin is passed to every script so sudo can ask for a password.
	Stdin io.Reader
	// Analyzer overrides the OpenAI fallback classifier.
	Analyzer nlu.Analyzer
}

type App struct {
	cfg *config.Config

	mu       sync.Mutex
	followUp *task.Request

	Events     *event.Broadcaster
	Gate       *gate.Gate
	Supervisor *supervisor.Supervisor
	Runtime    *task.Runtime
	Dispatcher *nlu.Dispatcher
	History    *history.Log
}

func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	a := &App{
		cfg:     cfg,
		Events:  event.NewBroadcaster(),
		History: history.New(cfg.History.Path),
	}

	a.Gate = gate.New(gate.Config{
		Timeout: cfg.Confirm.Timeout,
		Default: cfg.Confirm.Default(),
	}, a.Events)

	a.Supervisor = supervisor.New(ctx, supervisor.Config{
		Notify: a.Events,
		OnTransition: func(from, to supervisor.State) {
			log.Debug("Supervisor state", "from", from, "to", to)
		},
	})

	a.Runtime = &task.Runtime{
		Scripts: script.NewLocator(cfg.Viper),
		Runner: runner.New(runner.Config{
			Interpreter: cfg.Runner.Interpreter,
			Elevator:    cfg.Runner.Elevator,
			Stdin:       opts.Stdin,
		}),
		Pump: pump.New(pump.Config{
			PollInterval: cfg.Pump.PollInterval,
			DrainGrace:   cfg.Pump.DrainGrace,
		}),
		Gate:     a.Gate,
		Observer: a.Events,
		Browser:  web.NewOpener(cfg.Browser),
		Elevate:  cfg.Runner.Elevate,
	}

	analyzer := opts.Analyzer
	if analyzer == nil && cfg.OpenAI.APIKey != "" {
		c, err := newClassifier(cfg.OpenAI)
		if err != nil {
			return nil, err
		}
		analyzer = c
	}
	a.Dispatcher = nlu.NewDispatcher(analyzer)

	return a, nil
}

func newClassifier(cfg config.OpenAIConfig) (*nlu.Classifier, error) {
	httpClient, err := proxy.NewHTTPClient(cfg.Proxy, 0)
	if err != nil {
		return nil, fmt.Errorf("proxy: %w", err)
	}
	client := openai.NewClient(
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(httpClient),
	)
	log.Debug("Fallback classifier enabled", "proxy", cfg.Proxy != "")
	return nlu.NewClassifier(client, cfg.Model), nil
}

// Outcome is what Handle did with an utterance.
type Outcome struct {
	Intent nlu.Intent
	// Submission is set when a task was started.
	Submission *supervisor.Submission
	// History is set for history requests.
	History []history.Record
}

// Handle interprets text and acts on it. Commands are submitted to the
// supervisor and run in the background; everything else is answered right
// away with a notice. A command missing its JDK version or e-mail is held
// back and the question is asked; the next text answers it. A busy
// supervisor yields supervisor.ErrBusy.
func (a *App) Handle(ctx context.Context, text string) (Outcome, error) {
	if strings.TrimSpace(text) == "" {
		return Outcome{}, nil
	}
	if err := a.History.Append(text); err != nil {
		log.Warn("Failed to record history", "err", err)
	}

	if req, ok := a.takeFollowUp(); ok {
		if in, handled := a.answerFollowUp(req, text); handled {
			return a.submit(in)
		}
	}

	in := a.Dispatcher.Dispatch(ctx, text)
	out := Outcome{Intent: in}

	switch in.Kind {
	case nlu.Quit:
		a.Events.OnNotice(Farewell)
		return out, nil

	case nlu.History:
		recs, err := a.History.Tail(20)
		if err != nil {
			return out, fmt.Errorf("read history: %w", err)
		}
		out.History = recs
		return out, nil

	case nlu.Unknown:
		a.Events.OnNotice(Unrecognized)
		return out, nil
	}

	if in.Request.Missing() != "" {
		a.mu.Lock()
		a.followUp = &in.Request
		a.mu.Unlock()
		a.Events.OnNotice(in.Request.Question())
		return out, nil
	}
	return a.submit(in)
}

// answerFollowUp completes req from text. A quit word or an answer without
// the argument drops the held command; only quit is then handled as usual.
func (a *App) answerFollowUp(req task.Request, text string) (nlu.Intent, bool) {
	if nlu.Parse(text).Kind == nlu.Quit {
		return nlu.Intent{}, false
	}
	filled := nlu.Fill(req, text)
	if filled.Missing() != "" {
		a.Events.OnNotice(FollowUpFailed)
	} else {
		log.Info("Follow-up answered", "task", filled.Name())
	}
	return nlu.Intent{Kind: nlu.Command, Request: filled, Text: nlu.Normalize(text)}, true
}

func (a *App) takeFollowUp() (task.Request, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.followUp == nil {
		return task.Request{}, false
	}
	req := *a.followUp
	a.followUp = nil
	return req, true
}

func (a *App) submit(in nlu.Intent) (Outcome, error) {
	out := Outcome{Intent: in}
	if in.Request.Missing() != "" {
		return out, nil
	}

	req := in.Request
	sub, err := a.Supervisor.Submit(req.Name(), func(ctx context.Context) event.Result {
		return a.Runtime.Execute(ctx, req)
	})
	if errors.Is(err, supervisor.ErrBusy) {
		a.Events.OnNotice(BusyNotice)
	}
	if err != nil {
		return out, err
	}

	out.Submission = sub
	return out, nil
}

// Close releases a pending confirmation and waits for the running task.
func (a *App) Close() {
	a.Gate.Close()
	a.Supervisor.Close()
}
