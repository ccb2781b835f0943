package lrdnet

import (
	"net"
	"net/http"

	"github.com/sammck-go/asyncobj"
	"github.com/sammck-go/logger"
)

// httpServer extends net/http Server with the bridge's asynchronous
// shutdown discipline. It backs the WebSocket acceptor's persistent
// upgrade endpoint.
type httpServer struct {
	*asyncobj.Helper
	*http.Server
	listener net.Listener
}

func newHTTPServer(lg logger.Logger) *httpServer {
	h := &httpServer{
		Server: &http.Server{},
	}
	h.Helper = asyncobj.NewHelper(lg.ForkLogStr("<HTTPServer>"), h)
	h.SetIsActivated()
	return h
}

// HandleOnceShutdown is called exactly once by the asyncobj.Helper, in
// its own goroutine. Closing the listener stops Serve; connections it
// already accepted are not closed here.
func (h *httpServer) HandleOnceShutdown(completionErr error) error {
	var err error
	if h.listener != nil {
		err = h.listener.Close()
	}
	if completionErr == nil {
		completionErr = err
	}
	return completionErr
}

// ListenAndServe binds addr and serves handler in the background,
// returning once the listener is up. A Serve failure shuts the server
// down with that error.
func (h *httpServer) ListenAndServe(addr string, handler http.Handler) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	h.Handler = handler
	h.listener = l
	go func() {
		h.StartShutdown(h.Serve(l))
	}()
	return nil
}

// Addr returns the bound listen address.
func (h *httpServer) Addr() net.Addr {
	return h.listener.Addr()
}

// Close completely shuts down the server, then returns the final
// completion code.
func (h *httpServer) Close() error {
	return h.Helper.Close()
}
