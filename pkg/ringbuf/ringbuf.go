// Package ringbuf provides a fixed-capacity byte FIFO with newest-wins
// overflow. The bridge uses one to cache outbound bytes while no client
// is connected, and as the carryover for partial sends.
package ringbuf

import (
	"fmt"
	"math"
)

// Ring is a fixed-capacity byte FIFO. When an Accumulate would exceed
// capacity, the oldest bytes are evicted to make room. The content is
// exposed as at most two contiguous spans, First and Second, which
// concatenated form the buffered bytes in arrival order.
//
// A Ring is not safe for concurrent use. The bridge touches its ring
// from the outbound pump goroutine only.
type Ring struct {
	buf    []byte
	off    int // read cursor
	length int // bytes held
}

// New creates a Ring holding at most capacity bytes. A capacity of 0 is
// legal: every Accumulate is silently discarded and every view is
// empty. Negative capacities and capacities above the signed 32-bit
// range are rejected.
func New(capacity int) (*Ring, error) {
	if capacity < 0 || capacity > math.MaxInt32 {
		return nil, fmt.Errorf("ringbuf: invalid capacity %d", capacity)
	}
	return &Ring{buf: make([]byte, capacity)}, nil
}

// Cap returns the fixed capacity of the ring.
func (r *Ring) Cap() int {
	return len(r.buf)
}

// Len returns the number of bytes currently held.
func (r *Ring) Len() int {
	return r.length
}

// Accumulate appends data to the ring, evicting the oldest held bytes
// as needed to make room. It returns the number of previously held
// bytes that were dropped. Accumulating an empty slice is an identity.
func (r *Ring) Accumulate(data []byte) int {
	if len(data) == 0 {
		return 0
	}
	capacity := len(r.buf)
	if len(data) >= capacity {
		// Existing content is wholly displaced; only the trailing
		// capacity bytes of data survive.
		dropped := r.length
		copy(r.buf, data[len(data)-capacity:])
		r.off = 0
		r.length = capacity
		return dropped
	}
	dropped := 0
	if free := capacity - r.length; free < len(data) {
		dropped = r.Consume(len(data) - free)
	}
	pos := (r.off + r.length) % capacity
	n := copy(r.buf[pos:], data)
	if n < len(data) {
		copy(r.buf, data[n:])
	}
	r.length += len(data)
	return dropped
}

// Consume removes up to n bytes from the front of the ring and returns
// the number actually removed. Non-positive n is a no-op. Consuming
// everything resets the read cursor to 0.
func (r *Ring) Consume(n int) int {
	if n <= 0 {
		return 0
	}
	if n >= r.length {
		removed := r.length
		r.off = 0
		r.length = 0
		return removed
	}
	r.off = (r.off + n) % len(r.buf)
	r.length -= n
	return n
}

// Clear empties the ring.
func (r *Ring) Clear() {
	r.Consume(len(r.buf))
}

// First returns the older contiguous span of content. It is empty when
// the ring is empty. The returned slice aliases the ring's storage and
// is invalidated by the next Accumulate or Consume.
func (r *Ring) First() []byte {
	if r.length == 0 {
		return nil
	}
	n := r.length
	if behind := len(r.buf) - r.off; n > behind {
		n = behind
	}
	return r.buf[r.off : r.off+n]
}

// Second returns the wrapped remainder of the content, empty when the
// content does not wrap. The returned slice aliases the ring's storage.
func (r *Ring) Second() []byte {
	behind := len(r.buf) - r.off
	if r.length <= behind {
		return nil
	}
	return r.buf[:r.length-behind]
}

// Bytes returns a copy of the current content in order.
func (r *Ring) Bytes() []byte {
	out := make([]byte, 0, r.length)
	out = append(out, r.First()...)
	out = append(out, r.Second()...)
	return out
}
