package lrdnet

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/jpillora/requestlog"
	"github.com/sammck-go/asyncobj"
	"github.com/sammck-go/logger"
)

// ErrAcceptorClosed is returned from Accept after the acceptor has
// been shut down.
var ErrAcceptorClosed = errors.New("lrdnet: acceptor is closed")

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// wsAcceptor hands the accept loop WebSocket clients upgraded by a
// persistent HTTP server. Upgraded connections pass through an
// unbuffered channel, so the accept loop takes one client at a time and
// single-client semantics are preserved. Extra clients are upgraded and
// then wait in the handler until the accept loop takes them, their
// request ends, or the acceptor closes.
type wsAcceptor struct {
	*asyncobj.Helper
	server   *httpServer
	newConns chan net.Conn
	stop     chan struct{}
}

func newWSAcceptor(lg logger.Logger, addr, path string, logRequests bool) (*wsAcceptor, error) {
	a := &wsAcceptor{
		server:   newHTTPServer(lg),
		newConns: make(chan net.Conn),
		stop:     make(chan struct{}),
	}
	a.Helper = asyncobj.NewHelper(lg.ForkLogStr(fmt.Sprintf("<WSAcceptor %s %s>", addr, path)), a)

	var h http.Handler = http.HandlerFunc(a.handleUpgrade)
	if logRequests {
		h = requestlog.Wrap(h)
	}
	mux := http.NewServeMux()
	mux.Handle(path, h)
	if err := a.server.ListenAndServe(addr, mux); err != nil {
		return nil, err
	}
	a.SetIsActivated()
	return a, nil
}

func (a *wsAcceptor) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	// Defer shutdown across the upgrade so a connection is never
	// upgraded into an acceptor that is already tearing down.
	if err := a.DeferShutdown(); err != nil {
		http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
		return
	}
	ws, err := wsUpgrader.Upgrade(w, r, nil)
	a.UndeferShutdown()
	if err != nil {
		a.DLogf("websocket upgrade failed: %s", err)
		return
	}
	conn := newWSConn(ws)
	select {
	case a.newConns <- conn:
	case <-r.Context().Done():
		conn.Close()
	case <-a.stop:
		conn.Close()
	}
}

func (a *wsAcceptor) Accept(ctx context.Context) (net.Conn, error) {
	select {
	case conn := <-a.newConns:
		return conn, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-a.stop:
		return nil, ErrAcceptorClosed
	}
}

// HandleOnceShutdown is called exactly once by the asyncobj.Helper, in
// its own goroutine.
func (a *wsAcceptor) HandleOnceShutdown(completionErr error) error {
	close(a.stop)
	err := a.server.Close()
	if completionErr == nil {
		completionErr = err
	}
	return completionErr
}

func (a *wsAcceptor) Close() error {
	return a.Helper.Close()
}

// Addr returns the HTTP server's bound listen address.
func (a *wsAcceptor) Addr() net.Addr {
	return a.server.Addr()
}

// NewWebSocketBridge creates and starts a Bridge that serves one
// WebSocket client at a time: an HTTP server at addr upgrades requests
// at path and the message payloads are bridged as a raw byte stream,
// with the same accept-loop, pump, and caching behavior as the TCP
// form. logRequests wraps the upgrade endpoint with HTTP request
// logging.
func NewWebSocketBridge(lg logger.Logger, addr, path string, logRequests bool, opts *BridgeOptions) (*Bridge, error) {
	if path == "" {
		path = "/"
	}
	a, err := newWSAcceptor(lg, addr, path, logRequests)
	if err != nil {
		return nil, err
	}
	name := fmt.Sprintf("<Bridge ws %s %s>", addr, path)
	b, err := NewBridgeWithAcceptor(lg, name, a, opts)
	if err != nil {
		a.Close()
		return nil, err
	}
	return b, nil
}

// AcceptorAddr returns the acceptor's bound listen address when it has
// one (the WebSocket acceptor does; the TCP acceptor creates its
// listener per accept cycle and returns nil).
func (b *Bridge) AcceptorAddr() net.Addr {
	if aa, ok := b.acceptor.(interface{ Addr() net.Addr }); ok {
		return aa.Addr()
	}
	return nil
}
