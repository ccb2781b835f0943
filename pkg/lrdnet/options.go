package lrdnet

import (
	"fmt"
	"math"
	"time"
)

// Published defaults and minimums for BridgeOptions. Values below a
// minimum are clamped up at construction.
const (
	DefaultAcceptInterval = 1000 * time.Millisecond
	DefaultBridgeTimeout  = 3000 * time.Millisecond
	DefaultOutgoingCache  = 4096

	MinBridgeTimeout        = 100 * time.Millisecond
	MinPauseWriterThreshold = 1024
	MinSocketBuffer         = 1024
)

// BridgeOptions configures a Bridge. The zero value selects all
// defaults. Fields where an explicit zero is meaningful use a negative
// value for it, so that the zero value of the struct can keep meaning
// "default". Options are immutable after construction except for
// AcceptInterval and BridgeTimeout, which can be changed on a running
// Bridge and take effect by its next loop iteration.
type BridgeOptions struct {
	// AcceptInterval is the delay between accept attempts after a
	// connection ends or a listen error. 0 selects the default
	// (1000ms); a negative value retries immediately.
	AcceptInterval time.Duration

	// BridgeTimeout bounds a single inbound flush or outbound send.
	// On expiry the operation is abandoned: inbound bytes already
	// committed to the pipe stay queued, and unsent outbound bytes are
	// carried back into the ring (where newest-wins eviction applies).
	// 0 selects the default (3000ms); minimum 100ms.
	BridgeTimeout time.Duration

	// OutgoingCacheBytes is the capacity of the ring that holds
	// outbound bytes while no client is connected. 0 selects the
	// default (4096); a negative value disables caching entirely.
	OutgoingCacheBytes int

	// PauseWriterThreshold is the pipe high-water mark at which writes
	// backpressure their producer. 0 selects the library default; set
	// values below 1024 clamp to 1024.
	PauseWriterThreshold int

	// SendBufferBytes and RecvBufferBytes are socket-level buffer
	// sizes applied to each accepted client. 0 leaves the OS default;
	// set values below 1024 clamp to 1024.
	SendBufferBytes int
	RecvBufferBytes int

	// AcceptBackoffFactor grows the retry delay after consecutive
	// listener failures, starting from AcceptInterval. Values <= 1
	// keep the delay fixed at AcceptInterval. Reset on a successful
	// accept.
	AcceptBackoffFactor float64

	// MaxAcceptInterval caps the grown listener-failure delay.
	// 0 means no growth beyond AcceptInterval.
	MaxAcceptInterval time.Duration
}

// normalized returns a copy with defaults filled in and minimums
// applied. Byte sizes above the signed 32-bit range are rejected.
func (o *BridgeOptions) normalized() (BridgeOptions, error) {
	var v BridgeOptions
	if o != nil {
		v = *o
	}
	for _, s := range []struct {
		name string
		val  int
	}{
		{"OutgoingCacheBytes", v.OutgoingCacheBytes},
		{"PauseWriterThreshold", v.PauseWriterThreshold},
		{"SendBufferBytes", v.SendBufferBytes},
		{"RecvBufferBytes", v.RecvBufferBytes},
	} {
		if s.val > math.MaxInt32 {
			return v, fmt.Errorf("lrdnet: %s %d exceeds the signed 32-bit range", s.name, s.val)
		}
	}
	switch {
	case v.AcceptInterval == 0:
		v.AcceptInterval = DefaultAcceptInterval
	case v.AcceptInterval < 0:
		v.AcceptInterval = 0
	}
	if v.BridgeTimeout == 0 {
		v.BridgeTimeout = DefaultBridgeTimeout
	}
	if v.BridgeTimeout < MinBridgeTimeout {
		v.BridgeTimeout = MinBridgeTimeout
	}
	switch {
	case v.OutgoingCacheBytes == 0:
		v.OutgoingCacheBytes = DefaultOutgoingCache
	case v.OutgoingCacheBytes < 0:
		v.OutgoingCacheBytes = 0
	}
	if v.PauseWriterThreshold != 0 && v.PauseWriterThreshold < MinPauseWriterThreshold {
		v.PauseWriterThreshold = MinPauseWriterThreshold
	}
	if v.SendBufferBytes != 0 && v.SendBufferBytes < MinSocketBuffer {
		v.SendBufferBytes = MinSocketBuffer
	}
	if v.RecvBufferBytes != 0 && v.RecvBufferBytes < MinSocketBuffer {
		v.RecvBufferBytes = MinSocketBuffer
	}
	if v.MaxAcceptInterval < v.AcceptInterval {
		v.MaxAcceptInterval = v.AcceptInterval
	}
	return v, nil
}
