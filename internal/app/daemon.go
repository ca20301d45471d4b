package app

import (
	"context"
	"errors"
	log "log/slog"

	"shree/internal/event"
	"shree/internal/history"
	"shree/internal/ipc"
	"shree/internal/supervisor"
)

// Listener produces one utterance on demand.
type Listener interface {
	Listen(ctx context.Context) (string, error)
}

// Daemon answers shree-ctl requests.
type Daemon struct {
	app   *App
	voice Listener
}

// NewDaemon returns the control handler. voice may be nil, trigger requests
// then fail.
func NewDaemon(a *App, voice Listener) *Daemon {
	return &Daemon{app: a, voice: voice}
}

func (d *Daemon) Handle(ctx context.Context, req ipc.Request, out ipc.Replier) {
	switch req.Cmd {
	case ipc.CmdRun:
		d.run(ctx, req.Text, out)

	case ipc.CmdTrigger:
		if d.voice == nil {
			replyErr(out, ErrNoMicrophone)
			return
		}
		text, err := d.voice.Listen(ctx)
		if err != nil {
			replyErr(out, err)
			return
		}
		_ = out.Send(ipc.Reply{Kind: ipc.ReplyNotice, Text: "Heard: " + text})
		d.run(ctx, text, out)

	case ipc.CmdAnswer:
		if err := d.app.answer(req.Text); err != nil {
			replyErr(out, err)
			return
		}
		_ = out.Send(ipc.Reply{Kind: ipc.ReplyOK})

	case ipc.CmdStatus:
		r := ipc.Reply{Kind: ipc.ReplyStatus, State: d.app.Supervisor.State().String()}
		if prompt, ok := d.app.Gate.Pending(); ok {
			r.Pending = prompt
		}
		_ = out.Send(r)

	case ipc.CmdHistory:
		recs, err := d.app.History.Tail(20)
		if err != nil {
			replyErr(out, err)
			return
		}
		_ = out.Send(historyReply(recs))

	default:
		_ = out.Send(ipc.Reply{Kind: ipc.ReplyError, Text: "unknown command " + req.Cmd})
	}
}

// run streams every event to the client until the submitted task is done.
// The result is always the last reply. If the client goes away the task
// keeps running.
func (d *Daemon) run(ctx context.Context, text string, out ipc.Replier) {
	remove := d.app.Events.Add(replyObserver{out: out})
	defer remove()

	o, err := d.app.Handle(ctx, text)
	if err != nil {
		if !errors.Is(err, supervisor.ErrBusy) {
			replyErr(out, err)
		}
		return
	}

	if o.History != nil {
		_ = out.Send(historyReply(o.History))
	}
	if o.Submission == nil {
		return
	}

	select {
	case <-o.Submission.Done():
	case <-ctx.Done():
		log.Debug("Control client hung up, task keeps running", "task", o.Submission.Name)
	}
}

func historyReply(recs []history.Record) ipc.Reply {
	lines := make([]string, 0, len(recs))
	for _, r := range recs {
		lines = append(lines, r.String())
	}
	return ipc.Reply{Kind: ipc.ReplyHistory, Lines: lines}
}

func replyErr(out ipc.Replier, err error) {
	_ = out.Send(ipc.Reply{Kind: ipc.ReplyError, Text: err.Error()})
}

type replyObserver struct {
	out ipc.Replier
}

func (r replyObserver) OnOutput(o event.Output) {
	_ = r.out.Send(ipc.Reply{Kind: ipc.ReplyOutput, Text: o.Text, Task: o.Task, Origin: o.Origin.String()})
}

func (r replyObserver) OnNotice(text string) {
	_ = r.out.Send(ipc.Reply{Kind: ipc.ReplyNotice, Text: text})
}

func (r replyObserver) OnConfirmationRequested(prompt string) {
	_ = r.out.Send(ipc.Reply{Kind: ipc.ReplyConfirm, Text: prompt})
}

func (r replyObserver) OnTaskCompleted(res event.Result) {
	reply := ipc.Reply{Kind: ipc.ReplyResult, Text: res.Message, Task: res.Task, Success: res.Success}
	if res.HasExitCode() {
		code := res.ExitCode
		reply.ExitCode = &code
	}
	_ = r.out.Send(reply)
}
