package lrdnet

import (
	"context"
	"net"
	"time"

	"github.com/jpillora/backoff"
)

// socketBufferSetter is satisfied by *net.TCPConn and by the WebSocket
// stream adapter, which delegates to its underlying TCP socket.
type socketBufferSetter interface {
	SetReadBuffer(bytes int) error
	SetWriteBuffer(bytes int) error
}

// runAcceptLoop services one client at a time until disposal: accept,
// apply socket options, bind into the remote context, run the inbound
// pump to completion, unbind, sleep the accept interval, repeat. On
// exit it lingers briefly so trailing inbound bytes arrive, then stops
// the outbound pump.
func (b *Bridge) runAcceptLoop() {
	defer close(b.acceptDone)

	bo := &backoff.Backoff{
		Factor: b.opts.AcceptBackoffFactor,
		Min:    b.AcceptInterval(),
		Max:    b.opts.MaxAcceptInterval,
	}
	if bo.Factor <= 1 {
		bo.Factor = 1
	}
	if bo.Min <= 0 {
		bo.Min = time.Nanosecond
	}

	for b.ctx.Err() == nil {
		conn, err := b.acceptor.Accept(b.ctx)
		if err != nil {
			if b.ctx.Err() != nil {
				break
			}
			b.lastSocketError.Store(socketErrorCode(err))
			// Refresh from the mutable accept interval each failure.
			bo.Min = b.AcceptInterval()
			if bo.Min <= 0 {
				bo.Min = time.Nanosecond
			}
			if bo.Max < bo.Min {
				bo.Max = bo.Min
			}
			d := bo.Duration()
			b.DLogf("accept failed, retrying in %s: %s", d, err)
			if !b.sleep(d) {
				break
			}
			continue
		}
		bo.Reset()

		total := b.connTotal.Add(1)
		b.connOpen.Add(1)
		b.ILogf("client #%d connected: %v", total, conn.RemoteAddr())
		b.applySocketOptions(conn)
		b.lastSocketError.Store(SocketErrNone)

		// Unblock the inbound pump's socket read at disposal time.
		connDone := make(chan struct{})
		go func() {
			select {
			case <-b.ctx.Done():
				conn.Close()
			case <-connDone:
			}
		}()

		b.remote.bind(conn)
		err = b.runInboundPump(conn)
		b.remote.unbind()
		close(connDone)
		conn.Close()
		b.connOpen.Add(-1)

		if err != nil && b.ctx.Err() == nil {
			b.lastSocketError.Store(socketErrorCode(err))
			b.DLogf("client #%d connection failed: %s", total, err)
		} else {
			b.DLogf("client #%d disconnected", total)
		}

		if !b.sleep(b.AcceptInterval()) {
			break
		}
	}

	// Let a peer shutdown in progress deliver its last bytes through
	// the inbound pump before the outbound pump is stopped.
	time.Sleep(connDrainDelay)
	b.pumpCancel()
	<-b.pumpDone
}

// sleep waits for d or until disposal; it reports whether the loop
// should keep running.
func (b *Bridge) sleep(d time.Duration) bool {
	if d <= 0 {
		return b.ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-b.ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// applySocketOptions applies the configured socket buffer sizes to a
// freshly accepted client.
func (b *Bridge) applySocketOptions(conn net.Conn) {
	if b.opts.SendBufferBytes == 0 && b.opts.RecvBufferBytes == 0 {
		return
	}
	s, ok := conn.(socketBufferSetter)
	if !ok {
		b.DLogf("socket buffer options not supported by %T", conn)
		return
	}
	if n := b.opts.SendBufferBytes; n > 0 {
		if err := s.SetWriteBuffer(n); err != nil {
			b.DLogf("SetWriteBuffer(%d) failed: %s", n, err)
		}
	}
	if n := b.opts.RecvBufferBytes; n > 0 {
		if err := s.SetReadBuffer(n); err != nil {
			b.DLogf("SetReadBuffer(%d) failed: %s", n, err)
		}
	}
}

// ShutdownOnContext propagates ctx cancellation into bridge shutdown
// without blocking. Used by callers that constrain a Bridge to a
// context.
func (b *Bridge) ShutdownOnContext(ctx context.Context) {
	go func() {
		select {
		case <-ctx.Done():
			b.StartShutdown(ctx.Err())
		case <-b.ctx.Done():
		}
	}()
}
