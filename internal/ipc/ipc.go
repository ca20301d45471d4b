// Package ipc is the control channel between shree-ctl and the daemon: one
// JSON request per connection, answered by a stream of JSON-line replies.
package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	log "log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Commands.
const (
	CmdRun     = "run"
	CmdAnswer  = "answer"
	CmdStatus  = "status"
	CmdHistory = "history"
	CmdTrigger = "trigger"
)

// Reply kinds.
const (
	ReplyOutput  = "output"
	ReplyNotice  = "notice"
	ReplyConfirm = "confirm"
	ReplyResult  = "result"
	ReplyStatus  = "status"
	ReplyHistory = "history"
	ReplyOK      = "ok"
	ReplyError   = "error"
)

func DefaultSocketPath() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "shree.sock")
	}
	return filepath.Join(os.TempDir(), "shree.sock")
}

type Request struct {
	Cmd  string `json:"cmd"`
	Text string `json:"text,omitempty"`
}

type Reply struct {
	Kind string `json:"kind"`
	Text string `json:"text,omitempty"`

	Task     string   `json:"task,omitempty"`
	Origin   string   `json:"origin,omitempty"`
	Success  bool     `json:"success,omitempty"`
	ExitCode *int     `json:"exit_code,omitempty"`
	State    string   `json:"state,omitempty"`
	Pending  string   `json:"pending,omitempty"`
	Lines    []string `json:"lines,omitempty"`
}

// Replier streams replies back to the client. Send is safe for concurrent
// use.
type Replier interface {
	Send(Reply) error
}

type Handler interface {
	Handle(ctx context.Context, req Request, out Replier)
}

type HandlerFunc func(ctx context.Context, req Request, out Replier)

func (f HandlerFunc) Handle(ctx context.Context, req Request, out Replier) { f(ctx, req, out) }

type Server struct {
	path    string
	handler Handler
	ln      net.Listener
}

// Listen binds the socket, replacing a stale one left by a previous run.
func Listen(path string, handler Handler) (*Server, error) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("remove stale socket: %w", err)
	}
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen: %w", err)
	}
	if err := os.Chmod(path, 0o600); err != nil {
		ln.Close()
		return nil, fmt.Errorf("chmod socket: %w", err)
	}
	return &Server{path: path, handler: handler, ln: ln}, nil
}

func (s *Server) Path() string { return s.path }

// Serve accepts connections until ctx is done.
func (s *Server) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.ln.Close()
	}()

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				os.Remove(s.path)
				return nil
			}
			log.Warn("Accept failed", "err", err)
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			s.serveConn(ctx, conn)
		}()
	}
}

func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	w := newWriter(conn)
	defer w.Close()

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var req Request
	if err := json.NewDecoder(conn).Decode(&req); err != nil {
		log.Debug("Bad control request", "err", err)
		_ = w.Send(Reply{Kind: ReplyError, Text: "bad request"})
		return
	}
	_ = conn.SetReadDeadline(time.Time{})

	// The client sends nothing after its request, so the read only returns
	// once it hung up.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		_, _ = io.Copy(io.Discard, conn)
		cancel()
	}()

	log.Debug("Control request", "cmd", req.Cmd)
	s.handler.Handle(ctx, req, w)
}

const (
	// replyQueue bounds the replies waiting for a slow client.
	replyQueue   = 256
	writeTimeout = 5 * time.Second
)

// ErrSlowClient is returned by Send once a client fell replyQueue replies
// behind. The connection is dropped.
var ErrSlowClient = errors.New("client is not reading replies")

// writer encodes replies on its own goroutine. Send never blocks, so a
// client that stops reading cannot stall whoever produces the replies.
type writer struct {
	conn  net.Conn
	queue chan Reply
	done  chan struct{}

	mu     sync.Mutex
	closed bool
	err    error
}

func newWriter(conn net.Conn) *writer {
	w := &writer{conn: conn, queue: make(chan Reply, replyQueue), done: make(chan struct{})}
	go w.loop()
	return w
}

func (w *writer) loop() {
	defer close(w.done)

	enc := json.NewEncoder(w.conn)
	for r := range w.queue {
		if w.failed() {
			continue
		}
		_ = w.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := enc.Encode(r); err != nil {
			w.fail(err)
		}
	}
}

func (w *writer) Send(r Reply) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch {
	case w.err != nil:
		return w.err
	case w.closed:
		return net.ErrClosed
	}

	select {
	case w.queue <- r:
		return nil
	default:
		log.Warn("Control client fell behind, disconnecting", "queued", len(w.queue))
		w.err = ErrSlowClient
		w.conn.Close()
		return w.err
	}
}

// Close flushes what is queued and stops the writer.
func (w *writer) Close() {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.queue)
	}
	w.mu.Unlock()
	<-w.done
}

func (w *writer) failed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err != nil
}

func (w *writer) fail(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err == nil {
		w.err = err
	}
}

// Do sends req and calls fn for every reply until the daemon closes the
// connection.
func Do(ctx context.Context, path string, req Request, fn func(Reply)) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", path)
	if err != nil {
		return err
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return fmt.Errorf("send request: %w", err)
	}

	sc := bufio.NewScanner(conn)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		var r Reply
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			return fmt.Errorf("decode reply: %w", err)
		}
		fn(r)
	}
	if err := sc.Err(); err != nil && ctx.Err() == nil {
		return err
	}
	return ctx.Err()
}
