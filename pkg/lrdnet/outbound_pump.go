package lrdnet

import (
	"context"
	"errors"
	"io"
	"net"
	"time"

	"github.com/jpillora/sizestr"

	"github.com/toras9000/lrdbridge/pkg/ringbuf"
)

// runOutboundPump is the sole consumer of the outbound pipe. It runs
// for the whole bridge lifetime, even while no client is connected, so
// producer writes never block permanently on backpressure merely
// because the peer is gone: disconnected chunks are accumulated into
// the ring cache (newest wins), connected chunks are sent after any
// ring contents, so cached bytes always precede newer bytes on the
// wire.
func (b *Bridge) runOutboundPump() {
	defer close(b.pumpDone)

	ring, err := ringbuf.New(b.opts.OutgoingCacheBytes)
	if err != nil {
		// Capacity was validated when the options were normalized.
		b.Panicf("outgoing cache: %s", err)
		return
	}
	var sent int64
	defer func() {
		b.DLogf("outbound pump done (sent %s)", sizestr.ToString(sent))
	}()

	for {
		// Subscribe to the connection-established signal before
		// checking the slot: a bind landing before the subscription
		// is seen by the slot check below, one landing after closes
		// the captured channel, so no establishment is ever missed.
		// The signal interrupts the pipe read so the loop can
		// re-evaluate with the new connection; it never discards
		// bytes.
		estCh := b.remote.establishedChan()

		// A client may have bound since the previous iteration's slot
		// check; flush cached bytes before blocking on the pipe again.
		if conn := b.remote.current(); conn != nil && ring.Len() > 0 {
			sent += b.sendConnected(conn, ring, nil)
		}

		rctx, cancel := context.WithCancel(b.pumpCtx)
		watchDone := make(chan struct{})
		go func() {
			select {
			case <-estCh:
				cancel()
			case <-watchDone:
			}
		}()
		chunk, rerr := b.outPipe.ReadChunk(rctx)
		close(watchDone)
		cancel()

		if b.pumpCtx.Err() != nil {
			return
		}
		completed := false
		if rerr != nil && !errors.Is(rerr, context.Canceled) {
			// io.EOF or a closed pipe: deliver what we have, then
			// exit and let the bridge wind down.
			completed = true
		}

		conn := b.remote.current()
		if conn == nil {
			if len(chunk) > 0 {
				if dropped := ring.Accumulate(chunk); dropped > 0 {
					b.DLogf("outgoing cache evicted %s", sizestr.ToString(int64(dropped)))
				}
			}
		} else {
			sent += b.sendConnected(conn, ring, chunk)
		}

		if completed {
			if errors.Is(rerr, io.EOF) {
				b.DLogf("outgoing stream completed")
			}
			if !b.IsStartedShutdown() {
				b.StartShutdown(nil)
			}
			return
		}
	}
}

// sendConnected flushes the ring and then the just-read chunk to the
// connected client, bounded by one bridge timeout for the whole
// iteration. Bytes past the last fully sent position are carried back
// into the ring (newest-wins eviction applies), so a timed-out or
// failed send loses nothing that the ring can still hold. Returns the
// number of bytes actually written to the socket.
func (b *Bridge) sendConnected(conn net.Conn, ring *ringbuf.Ring, chunk []byte) int64 {
	segments := make([][]byte, 0, 3)
	if f := ring.First(); len(f) > 0 {
		segments = append(segments, f)
	}
	if s := ring.Second(); len(s) > 0 {
		segments = append(segments, s)
	}
	if len(chunk) > 0 {
		segments = append(segments, chunk)
	}
	if len(segments) == 0 {
		return 0
	}

	conn.SetWriteDeadline(time.Now().Add(b.BridgeTimeout()))
	defer conn.SetWriteDeadline(time.Time{})

	var sent int64
	var carry []byte
	for i, seg := range segments {
		n, err := conn.Write(seg)
		if n > 0 {
			sent += int64(n)
		}
		// A short write means the remainder of this segment and all
		// following segments were not sent.
		if err != nil || n < len(seg) {
			for _, rest := range segments[i:] {
				carry = append(carry, rest...)
			}
			carry = carry[n:]
			if err != nil {
				b.DLogf("send abandoned after %s: %s", sizestr.ToString(sent), err)
			}
			break
		}
	}

	// The ring's spans alias its storage, so the carryover was copied
	// out above before the ring is reset.
	ring.Clear()
	if len(carry) > 0 {
		if dropped := ring.Accumulate(carry); dropped > 0 {
			b.DLogf("outgoing cache evicted %s", sizestr.ToString(int64(dropped)))
		}
	}
	return sent
}
