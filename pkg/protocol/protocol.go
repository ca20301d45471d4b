// Package protocol speaks the hub's frame protocol: JSON text frames
// addressed by shard name over a websocket.
package protocol

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	log "log/slog"
	"time"
)

// Broadcast addresses every shard on the hub.
const Broadcast = "ALL"

// Frame kinds.
const (
	KindOutput  = "output"
	KindNotice  = "notice"
	KindConfirm = "confirm"
	KindResult  = "result"
	KindRun     = "run"
	KindAnswer  = "answer"
	KindError   = "error"
)

type Frame struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Kind    string `json:"kind"`
	Content string `json:"content,omitempty"`

	Task     string `json:"task,omitempty"`
	Origin   string `json:"origin,omitempty"`
	Success  bool   `json:"success,omitempty"`
	ExitCode *int   `json:"exit_code,omitempty"`
}

type Config struct {
	// Shard is this process' name on the hub.
	Shard string
	URL   string
	// Backoff between reconnect attempts.
	Backoff time.Duration
	// OnFrame gets every frame addressed to Shard or Broadcast, on the Run
	// goroutine.
	OnFrame func(Frame)
}

type Protocol struct {
	ws      *WebSocket
	shard   string
	onFrame func(Frame)
}

func Dial(ctx context.Context, cfg Config) (*Protocol, error) {
	if cfg.Shard == "" {
		return nil, errors.New("empty shard name")
	}
	web, err := DialWebSocket(ctx, cfg.URL, cfg.Backoff)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", cfg.URL, err)
	}
	return &Protocol{ws: web, shard: cfg.Shard, onFrame: cfg.OnFrame}, nil
}

func (p *Protocol) Shard() string { return p.shard }

// Send stamps f with this shard's name and writes it. Safe for concurrent use.
func (p *Protocol) Send(f Frame) error {
	f.From = p.shard
	if f.To == "" {
		f.To = Broadcast
	}

	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	if err := p.ws.Write(data); err != nil {
		log.Error("Failed to transmit", "kind", f.Kind, "err", err)
		return err
	}
	return nil
}

// Run reads frames until ctx is done, reconnecting when the hub goes away.
func (p *Protocol) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		p.ws.Close()
	}()

	for {
		in := p.ws.Read()
		if ctx.Err() != nil {
			return ctx.Err()
		}

		switch in.Kind {
		case ConnClosed, ReadFailure:
			log.Warn("Bus connection lost, reconnecting", "url", p.ws.url, "err", in.Err)
			if err := p.ws.Reconnect(ctx); err != nil {
				return err
			}
			log.Info("Reconnected to bus")

		case ReadOK:
			f, err := Parse(in.Msg)
			if err != nil {
				log.Warn("Failed to parse frame", "msg", string(in.Msg), "err", err)
				continue
			}
			if !p.addressed(f) {
				continue
			}
			if p.onFrame != nil {
				p.onFrame(f)
			}
		}
	}
}

func (p *Protocol) Close() error {
	return p.ws.Close()
}

func (p *Protocol) addressed(f Frame) bool {
	return f.From != p.shard && (f.To == p.shard || f.To == Broadcast)
}

func Parse(data []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, err
	}
	if f.Kind == "" {
		return Frame{}, errors.New("frame without kind")
	}
	if f.To == "" {
		return Frame{}, errors.New("frame without recipient")
	}
	return f, nil
}
