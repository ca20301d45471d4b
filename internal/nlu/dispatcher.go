package nlu

import (
	"context"
	log "log/slog"
	"strings"

	"shree/internal/task"
)

// Analyzer maps free text onto a canonical command.
type Analyzer interface {
	Analyze(ctx context.Context, transcript string) (Classification, error)
}

// Dispatcher resolves utterances with the rule table and, when that fails
// and an analyzer is set, asks the analyzer for the closest command.
type Dispatcher struct {
	analyzer Analyzer
}

func NewDispatcher(analyzer Analyzer) *Dispatcher {
	return &Dispatcher{analyzer: analyzer}
}

func (d *Dispatcher) Dispatch(ctx context.Context, text string) Intent {
	in := Parse(text)
	if in.Kind != Unknown || in.Text == "" || d.analyzer == nil {
		return in
	}

	cls, err := d.analyzer.Analyze(ctx, in.Text)
	if err != nil {
		log.Warn("Classifier failed", "err", err)
		return in
	}

	cmd := Normalize(cls.Command)
	if cmd == "" || cmd == "unknown" {
		return in
	}

	resolved := Parse(cmd)
	if resolved.Kind == Unknown && strings.HasPrefix(cmd, "search") && cls.Query != "" {
		resolved = Intent{Kind: Command, Request: task.Request{Action: task.Search, Query: cls.Query}}
	}
	if resolved.Kind == Command && resolved.Request.Action == task.Search && cls.Query != "" {
		resolved.Request.Query = cls.Query
	}
	if resolved.Kind == Unknown {
		log.Debug("Classifier answer matched nothing", "command", cmd)
		return in
	}

	resolved.Text = in.Text
	log.Info("Classified utterance", "text", in.Text, "command", cmd, "intent", resolved.Kind)
	return resolved
}
