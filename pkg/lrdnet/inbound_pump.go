package lrdnet

import (
	"context"
	"errors"
	"io"
	"net"

	"github.com/jpillora/sizestr"
)

// runInboundPump copies bytes from the client socket into the inbound
// pipe until the peer closes (FIN), a socket error occurs, or the
// bridge is disposed. Each flush of the pipe is bounded by the bridge
// timeout: a stalled consumer cancels only the wait for drainage, the
// committed bytes remain queued, and the pump proceeds to its next
// read so the socket is never blocked permanently.
func (b *Bridge) runInboundPump(conn net.Conn) error {
	buf := make([]byte, inboundReadSize)
	var received int64
	defer func() {
		b.DLogf("inbound pump done (received %s)", sizestr.ToString(received))
	}()

	for {
		n, rerr := conn.Read(buf)
		if n > 0 {
			received += int64(n)
			fctx, cancel := context.WithTimeout(b.ctx, b.BridgeTimeout())
			_, werr := b.inPipe.WriteContext(fctx, buf[:n])
			cancel()
			switch {
			case werr == nil:
			case errors.Is(werr, context.DeadlineExceeded):
				// Consumer is stalled; the bytes are committed and
				// will be delivered once it drains. Keep reading.
				b.DLogf("inbound flush timed out after %s, continuing", b.BridgeTimeout())
			default:
				// Pipe completed or bridge disposed.
				return nil
			}
		}
		if rerr != nil {
			if rerr == io.EOF || b.ctx.Err() != nil {
				return nil
			}
			return rerr
		}
	}
}
