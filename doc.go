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

// Package asyncsocket provides completion-based asynchronous TCP sockets
// whose operations return Awaiters settled by a background completion-port
// worker pool, together with the generic Awaitable/Awaiter suspension
// primitive those operations are built on.
//
// The primary elements of interest are:
//
//   - ResultCell, the one-shot producer/consumer cell Awaitable and Awaiter
//     are thin views over.
//
//   - Socket, which owns a kernel TCP socket and exposes Bind, Listen,
//     ConnectAsync, AcceptAsync, SendAsync, ReceiveAsync and Dispose.
//
//   - ReceiveLineAsync, a byte-at-a-time line-framing helper built on top
//     of Socket.ReceiveAsync.
//
// Debug logging is enabled with the asyncsocket.debug flag; see debug.go
// and config.go for the full set of tunables.
package asyncsocket
