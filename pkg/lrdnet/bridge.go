// Package lrdnet implements a persistent TCP-to-stream bridge: a pair
// of long-lived local byte streams coupled to a single-client listener
// whose remote peer may come and go. Bytes written to the outgoing
// stream are shipped to whichever client is currently connected, or
// cached in a fixed-capacity ring while none is; bytes received from
// the current client are delivered through the incoming stream. The
// local streams stay open across disconnects, and a later client
// resumes bridging transparently.
package lrdnet

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/sammck-go/asyncobj"
	"github.com/sammck-go/logger"

	"github.com/toras9000/lrdbridge/pkg/bytepipe"
)

// connDrainDelay is how long the accept loop waits after disposal is
// requested before stopping the outbound pump, so that a peer shutdown
// in progress can deliver its last bytes through the inbound pump.
const connDrainDelay = 500 * time.Millisecond

// inboundReadSize is the socket read buffer used by the inbound pump.
const inboundReadSize = 32 * 1024

// Bridge couples a local stream pair to a transient remote client.
// Create one with NewBridge or NewWebSocketBridge; it starts bridging
// immediately and runs until shut down. Shutdown is asynchronous and
// idempotent via the embedded asyncobj.Helper: StartShutdown schedules
// it, WaitShutdown awaits it, Close does both.
type Bridge struct {
	*asyncobj.Helper

	opts     BridgeOptions
	acceptor Acceptor

	inPipe  *bytepipe.Pipe
	outPipe *bytepipe.Pipe
	remote  *remoteContext

	// Runtime-mutable options, loaded afresh on every loop iteration.
	acceptInterval atomic.Int64 // nanoseconds
	bridgeTimeout  atomic.Int64 // nanoseconds

	lastSocketError atomic.Int32

	// Connection accounting: clients currently bound (0 or 1) and
	// clients accepted over the bridge's lifetime.
	connOpen  atomic.Int32
	connTotal atomic.Int32

	// ctx governs the accept loop and inbound pump. The outbound pump
	// has its own context so it can outlive ctx by connDrainDelay.
	ctx        context.Context
	cancel     context.CancelFunc
	pumpCtx    context.Context
	pumpCancel context.CancelFunc

	acceptDone chan struct{}
	pumpDone   chan struct{}
}

// NewBridge creates and starts a Bridge that listens for one TCP
// client at a time at addr (host:port). A nil opts selects all
// defaults.
func NewBridge(lg logger.Logger, addr string, opts *BridgeOptions) (*Bridge, error) {
	name := fmt.Sprintf("<Bridge tcp %s>", addr)
	return NewBridgeWithAcceptor(lg, name, NewTCPAcceptor(addr), opts)
}

// NewBridgeWithAcceptor creates and starts a Bridge over a custom
// client source. Most callers want NewBridge or NewWebSocketBridge.
func NewBridgeWithAcceptor(lg logger.Logger, name string, acceptor Acceptor, opts *BridgeOptions) (*Bridge, error) {
	o, err := opts.normalized()
	if err != nil {
		return nil, err
	}
	pause := o.PauseWriterThreshold
	if pause == 0 {
		pause = bytepipe.DefaultPauseWriterThreshold
	}
	b := &Bridge{
		opts:     o,
		acceptor: acceptor,
		inPipe:   bytepipe.New(pause),
		outPipe:  bytepipe.New(pause),
		remote:   newRemoteContext(),
	}
	b.acceptInterval.Store(int64(o.AcceptInterval))
	b.bridgeTimeout.Store(int64(o.BridgeTimeout))
	b.ctx, b.cancel = context.WithCancel(context.Background())
	b.pumpCtx, b.pumpCancel = context.WithCancel(context.Background())
	b.acceptDone = make(chan struct{})
	b.pumpDone = make(chan struct{})
	b.Helper = asyncobj.NewHelper(lg.ForkLogStr(name), b)
	b.SetIsActivated()
	go b.runOutboundPump()
	go b.runAcceptLoop()
	return b, nil
}

// Incoming returns the read-only stream carrying bytes received from
// the current client. It remains open across disconnects; closing the
// handle is optional and does not shut the bridge down.
func (b *Bridge) Incoming() io.ReadCloser {
	return &incomingStream{b: b}
}

// Outgoing returns the write-only stream whose bytes are shipped to
// the current client, or cached while none is connected. It remains
// open across disconnects; closing the handle completes the outbound
// byte stream, after which the outbound pump exits and starts bridge
// shutdown.
func (b *Bridge) Outgoing() io.WriteCloser {
	return &outgoingStream{b: b}
}

// AcceptInterval returns the current delay between accept attempts.
func (b *Bridge) AcceptInterval() time.Duration {
	return time.Duration(b.acceptInterval.Load())
}

// SetAcceptInterval changes the delay between accept attempts. It
// takes effect by the next accept-loop iteration.
func (b *Bridge) SetAcceptInterval(d time.Duration) {
	if d < 0 {
		d = 0
	}
	b.acceptInterval.Store(int64(d))
}

// BridgeTimeout returns the current per-operation deadline for inbound
// flushes and outbound sends.
func (b *Bridge) BridgeTimeout() time.Duration {
	return time.Duration(b.bridgeTimeout.Load())
}

// SetBridgeTimeout changes the per-operation deadline. Values below
// the published minimum clamp to it. It takes effect by the next pump
// iteration.
func (b *Bridge) SetBridgeTimeout(d time.Duration) {
	if d < MinBridgeTimeout {
		d = MinBridgeTimeout
	}
	b.bridgeTimeout.Store(int64(d))
}

// LastSocketError returns the last non-success error code from the
// accept/listen path: 0 for none, a positive platform socket error
// code, or -1 for a non-socket failure. It is cleared when a client is
// accepted.
func (b *Bridge) LastSocketError() int {
	return int(b.lastSocketError.Load())
}

// ConnStats returns the current open and total accepted client counts.
func (b *Bridge) ConnStats() (open int32, total int32) {
	return b.connOpen.Load(), b.connTotal.Load()
}

// HandleOnceShutdown is called exactly once by the asyncobj.Helper, in
// its own goroutine. It cancels the accept loop and inbound pump,
// waits for the loop to drain trailing inbound bytes and stop the
// outbound pump, then completes both pipes.
func (b *Bridge) HandleOnceShutdown(completionErr error) error {
	b.cancel()
	b.acceptor.Close()
	<-b.acceptDone
	b.inPipe.Close()
	b.outPipe.Close()
	return completionErr
}

// incomingStream is the consumer-visible read side of the inbound
// pipe. Reads may block indefinitely waiting for a client, so they are
// released by pipe completion at shutdown rather than deferring it.
// Close detaches the handle without affecting the bridge.
type incomingStream struct {
	b *Bridge
}

func (s *incomingStream) Read(p []byte) (int, error) {
	return s.b.inPipe.Read(p)
}

func (s *incomingStream) Close() error {
	return nil
}

// outgoingStream is the producer-visible write side of the outbound
// pipe. Writes and Close defer shutdown for their duration; the pump
// keeps draining while shutdown is deferred, so a backpressured write
// always completes. Close completes the outbound byte stream; the pump
// drains what was written, then exits.
type outgoingStream struct {
	b *Bridge
}

func (s *outgoingStream) Write(p []byte) (int, error) {
	err := s.b.DeferShutdown()
	if err != nil {
		return 0, err
	}
	n, err := s.b.outPipe.Write(p)
	s.b.UndeferShutdown()
	return n, err
}

func (s *outgoingStream) Close() error {
	err := s.b.DeferShutdown()
	if err == nil {
		err = s.b.outPipe.CloseWrite()
		s.b.UndeferShutdown()
	}
	return err
}
