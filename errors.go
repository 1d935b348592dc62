// Copyright 2015 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package asyncsocket

import (
	"errors"
	"fmt"
)

// SocketError wraps a platform socket/resolution failure, carrying the
// underlying numeric OS error code alongside a human-readable message
// formatted at construction time.
//
// Deliberately does not offer a generic "error kind" accessor beyond
// Error() and the Code field: the original this module is grounded on stubs its generic
// description facility with a "use the message instead" notice, and the
// closest Go equivalent is simply never trying to summarize the error any
// other way.
type SocketError struct {
	Code int
	msg  string
}

func newSocketError(code int, cause error) *SocketError {
	return &SocketError{Code: code, msg: fmt.Sprintf("socket error %d: %v", code, cause)}
}

func newSocketErrorf(code int, format string, args ...interface{}) *SocketError {
	return &SocketError{Code: code, msg: fmt.Sprintf(format, args...)}
}

func (e *SocketError) Error() string {
	return e.msg
}

// errDisposed is the sentinel SocketError reported by every entry point
// called on a disposed Socket.
var errDisposed = &SocketError{Code: 0, msg: "socket: already disposed"}

// logicError signals a misuse of the Socket API: an operation invoked while
// the socket is in a role that does not support it (e.g. Listen before
// Bind), as opposed to a failure reported by the kernel.
type logicError struct {
	msg string
}

func newLogicError(format string, args ...interface{}) *logicError {
	return &logicError{msg: fmt.Sprintf(format, args...)}
}

func (e *logicError) Error() string {
	return "socket: " + e.msg
}

// AwaitableStateError is raised when a ResultCell is settled more than once.
type AwaitableStateError struct {
	msg string
}

func newAwaitableStateError(msg string) *AwaitableStateError {
	return &AwaitableStateError{msg: msg}
}

func (e *AwaitableStateError) Error() string {
	return "awaitable: " + e.msg
}

// AwaitableTimeoutError is raised by a timed wait whose deadline elapses
// before the cell it is waiting on settles.
type AwaitableTimeoutError struct{}

func (e *AwaitableTimeoutError) Error() string {
	return "awaitable: timed out waiting for result"
}

// connResetError is the connection-reset-equivalent reported when a peer
// closes a stream gracefully mid-receive (spec: zero kernel result, zero
// bytes transferred, not a connect operation).
type connResetError struct{}

func (e *connResetError) Error() string {
	return "socket: connection reset by peer"
}

// isConnReset reports whether err is (or wraps) the graceful-close sentinel.
func isConnReset(err error) bool {
	var reset *connResetError
	return errors.As(err, &reset)
}
