// pattern: Imperative Shell

package broker

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/mochi-mqtt/server/v2/listeners"
)

var errStopping = errors.New("broker is stopping")

// gatedListener wraps a mochi listener. New connections get a deadline for
// their CONNECT packet, and are refused once the gate closes.
type gatedListener struct {
	listeners.Listener
	connectTimeout time.Duration
	open           *atomic.Bool
}

func (l *gatedListener) Serve(establish listeners.EstablishFn) {
	l.Listener.Serve(func(id string, c net.Conn) error {
		if !l.open.Load() {
			_ = c.Close()
			return errStopping
		}
		// The broker replaces this deadline with the keep-alive window once
		// the client is connected.
		_ = c.SetDeadline(time.Now().Add(l.connectTimeout))
		return establish(id, c)
	})
}

// wsListener serves MQTT over WebSocket (subprotocol "mqtt") with
// coder/websocket.
type wsListener struct {
	id        string
	address   string
	readLimit int64

	mu     sync.Mutex
	ln     net.Listener
	server *http.Server
	log    *slog.Logger
	end    atomic.Bool
}

func newWSListener(id, address string, readLimit int64) *wsListener {
	return &wsListener{id: id, address: address, readLimit: readLimit}
}

func (l *wsListener) ID() string { return l.id }

func (l *wsListener) Protocol() string { return "ws" }

func (l *wsListener) Address() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ln != nil {
		return l.ln.Addr().String()
	}
	return l.address
}

func (l *wsListener) Init(log *slog.Logger) error {
	ln, err := net.Listen("tcp", l.address)
	if err != nil {
		return err
	}
	l.mu.Lock()
	l.ln = ln
	l.log = log
	l.mu.Unlock()
	return nil
}

func (l *wsListener) Serve(establish listeners.EstablishFn) {
	l.mu.Lock()
	ln := l.ln
	l.server = &http.Server{
		Handler:           l.handler(establish),
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv := l.server
	l.mu.Unlock()

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) && !l.end.Load() {
		l.log.Error("websocket listener stopped", "listener", l.id, "error", err)
	}
}

func (l *wsListener) handler(establish listeners.EstablishFn) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Browsers on the same host send an Origin; other clients send none.
		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{"mqtt"},
			OriginPatterns: []string{"127.0.0.1:*", "localhost:*"},
		})
		if err != nil {
			l.log.Warn("websocket accept failed", "listener", l.id, "error", err)
			return
		}
		defer func() { _ = c.CloseNow() }()

		if c.Subprotocol() != "mqtt" {
			_ = c.Close(websocket.StatusPolicyViolation, "subprotocol mqtt required")
			return
		}
		c.SetReadLimit(l.readLimit)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		if err := establish(l.id, websocket.NetConn(ctx, c, websocket.MessageBinary)); err != nil {
			l.log.Debug("websocket client ended", "listener", l.id, "error", err)
		}
	})
}

func (l *wsListener) Close(closeClients listeners.CloseFn) {
	if !l.end.CompareAndSwap(false, true) {
		return
	}
	closeClients(l.id)

	l.mu.Lock()
	srv, ln := l.server, l.ln
	l.mu.Unlock()

	if srv != nil {
		_ = srv.Close()
	} else if ln != nil {
		_ = ln.Close()
	}
}
