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
	"github.com/loopwire/asyncsocket/internal/reqpool"
)

// ioKind identifies the overlapped operation an overlappedRequest was
// submitted for, since the completion policy differs for connect (where
// zero bytes transferred is the normal, successful outcome) versus send and
// receive (where it signals a graceful close).
type ioKind int

const (
	ioConnect ioKind = iota
	ioSend
	ioReceive
	ioAccept
)

// overlappedRequest is the heap-allocated descriptor associating one
// in-flight kernel I/O with its producer Awaitable and an optional
// disconnect-on-failure hook. Exactly one of awaitInt/awaitSocket is set,
// depending on kind.
//
// Ownership: submitted to and "owned" by the completion-port collaborator
// for the duration of the operation. Freed exactly once, either by the
// submitter (synchronous submission failure) or by the completion callback
// (kernel-reported completion) — never both; see settleIO/settleAccept.
type overlappedRequest struct {
	kind ioKind

	awaitInt    *Awaitable[int]
	awaitSocket *Awaitable[*Socket]

	// buf is never copied or retained beyond the awaited operation; the
	// caller owns it for as long as the returned Awaiter is unsettled.
	buf []byte
	// want is the total byte count ReceiveAsync/SendAsync must reach before
	// settling (the "wait for full buffer" semantic), acceptBuf is the raw
	// sockaddr scratch space AcceptAsync hands the kernel.
	want      int
	done      int
	acceptBuf []byte

	// onDisconnect tears down the owning Socket on a connection-fatal
	// error. Socket installs a closure that captures the *Socket itself and
	// calls its (idempotent, mutex-guarded) Dispose, rather than a snapshot
	// of its fields taken at submission time, so the hook always observes
	// the latest state.
	onDisconnect func()
}

var requestPool = reqpool.New(
	func() *overlappedRequest { return &overlappedRequest{} },
	func(r *overlappedRequest) {
		r.kind = 0
		r.awaitInt = nil
		r.awaitSocket = nil
		r.buf = nil
		r.want = 0
		r.done = 0
		r.acceptBuf = nil
		r.onDisconnect = nil
	},
)

func getRequest() *overlappedRequest { return requestPool.Get() }

// free returns the request to the pool. Called exactly once per request,
// from whichever of submission-failure or completion observes the terminal
// outcome first — never from both (the bug flagged in the design notes of
// the specification this module implements: freeing on both the synchronous
// error path and the bottom of the completion callback double-frees).
func (r *overlappedRequest) free() {
	requestPool.Put(r)
}

// settleIO applies the IoCallback completion policy from the specification:
// a non-zero kernel result is an error and tears the connection down; a
// clean zero-result, zero-bytes completion on a non-connect operation is a
// graceful close (also tears the connection down); anything else settles
// with the bytes transferred. The request is freed exactly once, regardless
// of which branch is taken.
func (r *overlappedRequest) settleIO(kernelErr error, n int) {
	defer r.free()

	if kernelErr != nil {
		if r.onDisconnect != nil {
			r.onDisconnect()
		}
		r.awaitInt.SetError(kernelErr)
		return
	}

	if n == 0 && r.kind != ioConnect {
		if r.onDisconnect != nil {
			r.onDisconnect()
		}
		r.awaitInt.SetError(&connResetError{})
		return
	}

	r.awaitInt.SetResult(n)
}

// settleAccept settles an accept request with either the newly constructed
// client Socket or an error, and frees both the accept scratch buffer and
// the request exactly once.
func (r *overlappedRequest) settleAccept(client *Socket, err error) {
	defer r.free()
	r.acceptBuf = nil

	if err != nil {
		r.awaitSocket.SetError(err)
		return
	}
	r.awaitSocket.SetResult(client)
}
