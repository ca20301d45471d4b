package protocol

import (
	"context"
	log "log/slog"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"
)

// WebSocket is a reconnecting text-message connection. Writes may come from
// any goroutine; reads belong to a single reader.
type WebSocket struct {
	url     string
	backoff time.Duration

	mu   sync.Mutex
	conn *ws.Conn
}

// writeTimeout bounds a write to a hub that stopped reading.
const writeTimeout = 5 * time.Second

type IncomeKind uint

const (
	ConnClosed IncomeKind = iota
	ReadFailure
	ReadOK
)

type Income struct {
	Kind IncomeKind
	Msg  []byte
	Err  error
}

func DialWebSocket(ctx context.Context, url string, backoff time.Duration) (*WebSocket, error) {
	log.Debug("Dial websocket", "url", url)

	conn, _, err := ws.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	if backoff <= 0 {
		backoff = time.Second
	}
	return &WebSocket{url: url, backoff: backoff, conn: conn}, nil
}

func (web *WebSocket) Write(payload []byte) error {
	web.mu.Lock()
	defer web.mu.Unlock()

	log.Debug("Write ws", "msg", string(payload))
	_ = web.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return web.conn.WriteMessage(ws.TextMessage, payload)
}

func (web *WebSocket) Read() Income {
	web.mu.Lock()
	conn := web.conn
	web.mu.Unlock()

	_, msg, err := conn.ReadMessage()
	if err != nil {
		if isClosed(err) {
			return Income{Kind: ConnClosed, Err: err}
		}
		return Income{Kind: ReadFailure, Err: err}
	}

	log.Debug("Read ws", "msg", string(msg))
	return Income{Kind: ReadOK, Msg: msg}
}

// Reconnect dials until it succeeds or ctx is done.
func (web *WebSocket) Reconnect(ctx context.Context) error {
	for {
		conn, _, err := ws.DefaultDialer.DialContext(ctx, web.url, nil)
		if err == nil {
			web.mu.Lock()
			old := web.conn
			web.conn = conn
			web.mu.Unlock()
			old.Close()
			return nil
		}

		log.Debug("Reconnect failed", "url", web.url, "err", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(web.backoff):
		}
	}
}

func (web *WebSocket) Close() error {
	web.mu.Lock()
	defer web.mu.Unlock()

	_ = web.conn.WriteControl(ws.CloseMessage,
		ws.FormatCloseMessage(ws.CloseNormalClosure, ""), time.Now().Add(time.Second))
	return web.conn.Close()
}

func isClosed(err error) bool {
	return ws.IsCloseError(err,
		ws.CloseNormalClosure,
		ws.CloseGoingAway,
		ws.CloseAbnormalClosure) || ws.IsUnexpectedCloseError(err)
}
