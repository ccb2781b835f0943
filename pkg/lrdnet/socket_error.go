package lrdnet

import (
	"errors"
	"syscall"
)

// Codes reported by Bridge.LastSocketError.
const (
	// SocketErrNone means the accept/listen path has seen no failure
	// since the last successful accept.
	SocketErrNone = 0

	// SocketErrOther marks a failure that did not carry a platform
	// socket error code.
	SocketErrOther = -1
)

// socketErrorCode maps an accept/listen/recv failure to the value
// stored in LastSocketError: the platform errno when one is present,
// SocketErrOther otherwise.
func socketErrorCode(err error) int32 {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return int32(errno)
	}
	return SocketErrOther
}
