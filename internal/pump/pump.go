// Package pump turns the two output streams of a child process into a single
// ordered stream of events delivered on the caller's goroutine.
package pump

import (
	"bufio"
	"io"
	log "log/slog"
	"strings"
	"time"

	"shree/internal/event"
)

const (
	DefaultPollInterval = 100 * time.Millisecond
	DefaultDrainGrace   = 500 * time.Millisecond
)

// Source is what the pump follows; *runner.Handle implements it.
type Source interface {
	Stdout() io.Reader
	Stderr() io.Reader
	Done() <-chan struct{}
	Wait() event.Result
	Close() error
}

type Config struct {
	// PollInterval bounds how long the loop goes without re-checking the
	// exit condition.
	PollInterval time.Duration
	// DrainGrace is how long to keep waiting for end-of-stream after the
	// process exited. A descendant that inherited the pipes can hold them
	// open indefinitely.
	DrainGrace time.Duration
}

type Pump struct {
	cfg Config
}

func New(cfg Config) *Pump {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.DrainGrace <= 0 {
		cfg.DrainGrace = DefaultDrainGrace
	}
	return &Pump{cfg: cfg}
}

type chunk struct {
	origin event.Origin
	text   string
	eof    bool
}

// Run follows src until the process has exited and both streams are drained,
// calling onEvent for every line in the order lines became available. It
// closes src and returns the process result; onEvent is never called after
// Run returns.
func (p *Pump) Run(src Source, onEvent func(event.Output)) event.Result {
	lines := make(chan chunk, 64)
	go read(src.Stdout(), event.Stdout, lines)
	go read(src.Stderr(), event.Stderr, lines)

	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	var (
		open     = 2
		exited   = src.Done()
		exitedAt time.Time
		closed   bool
	)

	for open > 0 {
		select {
		case c := <-lines:
			if c.eof {
				open--
				continue
			}
			onEvent(event.Output{Origin: c.origin, Text: c.text})

		case <-exited:
			exited = nil
			exitedAt = time.Now()

		case <-ticker.C:
			if closed || exitedAt.IsZero() || time.Since(exitedAt) < p.cfg.DrainGrace {
				continue
			}
			log.Warn("Output still open after exit, closing", "open", open)
			closed = true
			// Unblocks the readers; whatever they already buffered still
			// arrives before their end-of-stream marker.
			src.Close()
		}
	}

	if err := src.Close(); err != nil && !closed {
		log.Debug("Close output pipes", "err", err)
	}
	return src.Wait()
}

// read forwards one line per send. Any read error counts as end-of-stream.
func read(r io.Reader, origin event.Origin, out chan<- chunk) {
	if r != nil {
		br := bufio.NewReader(r)
		for {
			line, err := br.ReadString('\n')
			if line != "" {
				out <- chunk{origin: origin, text: strings.TrimRight(line, "\r\n")}
			}
			if err != nil {
				if err != io.EOF {
					log.Debug("Stream read ended", "origin", origin, "err", err)
				}
				break
			}
		}
	}
	out <- chunk{origin: origin, eof: true}
}
