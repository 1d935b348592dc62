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
	"context"
	"log"
	"net"

	"github.com/jacobsa/reqtrace"
	"github.com/jacobsa/syncutil"
	"golang.org/x/sys/unix"

	"github.com/loopwire/asyncsocket/internal/iocp"
)

const invalidFd = -1

// socketRole is the role state machine from the specification: Unbound ->
// (Bind+Listen) -> Server, Unbound -> ConnectAsync -> Client, any -> Dispose
// -> Disposed. An accepted connection is also tagged Client, since it
// supports exactly the same Send/Receive operations a client does.
type socketRole int

const (
	roleUnbound socketRole = iota
	roleServer
	roleClient
	roleDisposed
)

func (r socketRole) String() string {
	switch r {
	case roleUnbound:
		return "unbound"
	case roleServer:
		return "server"
	case roleClient:
		return "client"
	case roleDisposed:
		return "disposed"
	default:
		return "unknown"
	}
}

// Socket wraps one kernel TCP socket and the completion-port binding
// submitted overlapped operations settle through.
//
// GUARDED_BY(mu): fd, role.
type Socket struct {
	family   AddressFamily
	sockType SocketType
	protocol ProtocolType

	mu   syncutil.InvariantMutex
	fd   int
	role socketRole
	port *iocp.Port

	debugLogger *log.Logger
}

// NewSocket constructs an unbound Socket for the given address-family /
// socket-type / protocol triple. The kernel handle itself is not created
// until the first operation that needs one (Bind or ConnectAsync).
func NewSocket(family AddressFamily, sockType SocketType, protocol ProtocolType) *Socket {
	s := &Socket{
		family:      family,
		sockType:    sockType,
		protocol:    protocol,
		fd:          invalidFd,
		debugLogger: getLogger(),
	}
	s.mu = syncutil.NewInvariantMutex(s.checkInvariants)
	return s
}

// NewTCPSocket is a convenience constructor for the IPv4/Stream/TCP triple
// this module's scope is limited to.
func NewTCPSocket() *Socket {
	return NewSocket(AddressFamilyInternetworkV4, SocketTypeStream, ProtocolTypeTCP)
}

func (s *Socket) checkInvariants() {
	if s.role == roleDisposed {
		if s.fd != invalidFd {
			panic("Socket: disposed but the OS handle is still valid")
		}
		return
	}

	if s.role != roleUnbound && s.fd == invalidFd {
		panic("Socket: role implies a live OS handle but fd is invalid")
	}
}

func (s *Socket) debugLog(format string, v ...interface{}) {
	s.debugLogger.Printf(format, v...)
}

func newAcceptedSocket(family AddressFamily, sockType SocketType, protocol ProtocolType, fd int, port *iocp.Port) *Socket {
	s := &Socket{
		family:      family,
		sockType:    sockType,
		protocol:    protocol,
		fd:          fd,
		role:        roleClient,
		port:        port,
		debugLogger: getLogger(),
	}
	s.mu = syncutil.NewInvariantMutex(s.checkInvariants)
	return s
}

// createSocket allocates the kernel handle and binds it to the process-wide
// completion port. Must be called with mu held.
func (s *Socket) createSocket() error {
	domain, err := domainFor(s.family)
	if err != nil {
		return err
	}

	fd, err := unix.Socket(
		domain,
		int(s.sockType)|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC,
		int(s.protocol))
	if err != nil {
		return newSocketError(errnoOf(err), err)
	}

	port, err := iocp.Global(*fCompletionWorkers)
	if err != nil {
		unix.Close(fd)
		return newSocketError(0, err)
	}

	if err := port.Register(fd); err != nil {
		unix.Close(fd)
		return newSocketError(0, err)
	}

	s.fd = fd
	s.port = port
	s.debugLog("created overlapped socket, fd %d", fd)
	return nil
}

// Bind moves an Unbound socket to Server, resolving ip/port and creating
// and binding the overlapped kernel socket.
func (s *Socket) Bind(ip string, port int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.role == roleDisposed {
		return errDisposed
	}
	if s.role != roleUnbound {
		return newLogicError("Bind called on a socket in role %v, want unbound", s.role)
	}

	if s.fd == invalidFd {
		if err := s.createSocket(); err != nil {
			return err
		}
	}

	sa, err := sockaddrFor(s.family, ip, port)
	if err != nil {
		return err
	}

	if err := unix.Bind(s.fd, sa); err != nil {
		// Tear the half-built socket back down rather than leaving s.fd set
		// with role still unbound: a caller that retries Bind would
		// otherwise skip createSocket() above and reuse this fd, which the
		// kernel has already rejected a bind on once.
		s.port.Deregister(s.fd)
		unix.Close(s.fd)
		s.fd = invalidFd
		s.port = nil
		return newSocketError(errnoOf(err), err)
	}

	s.role = roleServer
	return nil
}

// Listen requires a Server-role (bound) socket. backlog <= 0 uses the
// package's ambient default (see config.go).
func (s *Socket) Listen(backlog int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.role == roleDisposed {
		return errDisposed
	}
	if s.role != roleServer {
		return newLogicError("Listen called on a socket in role %v, want server (bound)", s.role)
	}

	if backlog <= 0 {
		backlog = *fDefaultBacklog
	}

	if err := unix.Listen(s.fd, backlog); err != nil {
		return newSocketError(errnoOf(err), err)
	}
	return nil
}

// LocalAddr returns the address the socket is currently bound to. It is the
// only way to discover the port the kernel assigned for an ephemeral
// ("port 0") Bind.
func (s *Socket) LocalAddr() (ip string, port int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.fd == invalidFd {
		return "", 0, newLogicError("LocalAddr called before the socket has a live OS handle")
	}

	sa, gerr := unix.Getsockname(s.fd)
	if gerr != nil {
		return "", 0, newSocketError(errnoOf(gerr), gerr)
	}

	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return net.IP(a.Addr[:]).String(), a.Port, nil
	case *unix.SockaddrInet6:
		return net.IP(a.Addr[:]).String(), a.Port, nil
	default:
		return "", 0, newLogicError("unexpected sockaddr type %T", sa)
	}
}

// ConnectAsync moves an Unbound socket to Client and submits a non-blocking
// connect. The returned Awaiter settles with 0 (the byte count for a pure
// connect) on success.
func (s *Socket) ConnectAsync(ip string, port int) *Awaiter[int] {
	awaitable := NewAwaitable[int]()
	awaiter := awaitable.GetAwaiter()

	s.mu.Lock()

	if s.role == roleDisposed {
		s.mu.Unlock()
		awaitable.SetError(errDisposed)
		return awaiter
	}
	if s.role != roleUnbound {
		s.mu.Unlock()
		awaitable.SetError(newLogicError("ConnectAsync called on a socket in role %v, want unbound", s.role))
		return awaiter
	}

	if s.fd == invalidFd {
		if err := s.createSocket(); err != nil {
			s.mu.Unlock()
			awaitable.SetError(err)
			return awaiter
		}
	}

	// The connect-extension function this is grounded on (Windows
	// ConnectEx) requires the socket to already be bound locally; an
	// ephemeral local address is fine since the caller never observes it.
	localSa, err := sockaddrFor(s.family, wildcardAddress(s.family), 0)
	if err == nil {
		err = unix.Bind(s.fd, localSa)
	}
	if err != nil {
		s.mu.Unlock()
		awaitable.SetError(newSocketError(errnoOf(err), err))
		return awaiter
	}

	remoteSa, err := sockaddrFor(s.family, ip, port)
	if err != nil {
		s.mu.Unlock()
		awaitable.SetError(err)
		return awaiter
	}

	s.role = roleClient
	fd := s.fd
	port2 := s.port
	s.mu.Unlock()

	// Trace, not StartSpan: ConnectAsync has no caller-supplied ctx to
	// inherit a root from, so it opens one of its own. reqtrace.Enabled()
	// gates whether that root actually records anything; report(err)
	// below closes it either way.
	_, report := reqtrace.Trace(context.Background(), "connect")

	req := getRequest()
	req.kind = ioConnect
	req.awaitInt = awaitable
	req.onDisconnect = func() { s.Dispose() }

	connErr := unix.Connect(fd, remoteSa)
	if connErr == nil {
		report(nil)
		req.settleIO(nil, 0)
		return awaiter
	}
	if connErr != unix.EINPROGRESS && connErr != unix.EAGAIN {
		report(connErr)
		req.settleIO(newSocketError(errnoOf(connErr), connErr), 0)
		return awaiter
	}

	armErr := port2.Arm(fd, false, true, func(readable, writable bool) {
		errno, _ := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
		if errno != 0 {
			kernelErr := unix.Errno(errno)
			report(kernelErr)
			req.settleIO(newSocketError(errno, kernelErr), 0)
			return
		}
		report(nil)
		req.settleIO(nil, 0)
	})
	if armErr != nil {
		report(armErr)
		req.settleIO(newSocketError(0, armErr), 0)
	}

	return awaiter
}

// AcceptAsync requires a Server (listening) socket. The returned Awaiter
// settles with the freshly constructed, pre-wrapped client Socket.
func (s *Socket) AcceptAsync() *Awaiter[*Socket] {
	awaitable := NewAwaitable[*Socket]()
	awaiter := awaitable.GetAwaiter()

	s.mu.Lock()
	if s.role == roleDisposed {
		s.mu.Unlock()
		awaitable.SetError(errDisposed)
		return awaiter
	}
	if s.role != roleServer {
		s.mu.Unlock()
		awaitable.SetError(newLogicError("AcceptAsync called on a socket in role %v, want server", s.role))
		return awaiter
	}
	fd := s.fd
	port := s.port
	family, sockType, protocol := s.family, s.sockType, s.protocol
	s.mu.Unlock()

	// See the comment in ConnectAsync on why this is Trace, not StartSpan.
	_, report := reqtrace.Trace(context.Background(), "accept")

	req := getRequest()
	req.kind = ioAccept
	req.awaitSocket = awaitable
	// The overlapped accept address buffer: 2*(sizeof(sockaddr_in)+16).
	req.acceptBuf = make([]byte, 2*(16+16))

	var tryAccept func()
	tryAccept = func() {
		nfd, sa, err := unix.Accept4(fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		switch {
		case err == nil:
			encodeSockaddr(req.acceptBuf, sa)
			if regErr := port.Register(nfd); regErr != nil {
				unix.Close(nfd)
				report(regErr)
				req.settleAccept(nil, newSocketError(0, regErr))
				return
			}
			report(nil)
			req.settleAccept(newAcceptedSocket(family, sockType, protocol, nfd, port), nil)

		case err == unix.EAGAIN || err == unix.EWOULDBLOCK:
			if armErr := port.Arm(fd, true, false, func(readable, writable bool) { tryAccept() }); armErr != nil {
				report(armErr)
				req.settleAccept(nil, newSocketError(0, armErr))
			}

		default:
			report(err)
			req.settleAccept(nil, newSocketError(errnoOf(err), err))
		}
	}

	tryAccept()
	return awaiter
}

// ReceiveAsync requires a connected socket (Client, or accepted via
// AcceptAsync). It uses the "wait for full buffer" semantic: the Awaiter
// does not settle until n bytes have been received or the connection
// closes.
func (s *Socket) ReceiveAsync(buf []byte, n int) *Awaiter[int] {
	return s.rwAsync(ioReceive, buf, n)
}

// SendAsync requires a connected socket and sends exactly n bytes of buf,
// looping past partial writes.
func (s *Socket) SendAsync(buf []byte, n int) *Awaiter[int] {
	return s.rwAsync(ioSend, buf, n)
}

func (s *Socket) rwAsync(kind ioKind, buf []byte, n int) *Awaiter[int] {
	awaitable := NewAwaitable[int]()
	awaiter := awaitable.GetAwaiter()

	s.mu.Lock()
	if s.role == roleDisposed {
		s.mu.Unlock()
		awaitable.SetError(errDisposed)
		return awaiter
	}
	if s.role != roleClient {
		s.mu.Unlock()
		awaitable.SetError(newLogicError("%v called on a socket in role %v, want an established connection", ioKindName(kind), s.role))
		return awaiter
	}
	fd := s.fd
	port := s.port
	s.mu.Unlock()

	// See the comment in ConnectAsync on why this is Trace, not StartSpan.
	_, report := reqtrace.Trace(context.Background(), ioKindName(kind))

	req := getRequest()
	req.kind = kind
	req.awaitInt = awaitable
	req.buf = buf[:n]
	req.want = n
	// Capture the owning Socket itself, not a raw pointer snapshot of its
	// internals: Dispose is idempotent and mutex-guarded, so this hook
	// always observes current state however many times it fires.
	req.onDisconnect = func() { s.Dispose() }

	var step func()
	step = func() {
		for req.done < req.want {
			var k int
			var err error
			if kind == ioSend {
				k, err = unix.Write(fd, req.buf[req.done:req.want])
			} else {
				k, err = unix.Read(fd, req.buf[req.done:req.want])
			}

			if err == nil {
				if k == 0 {
					report(nil)
					req.settleIO(nil, 0)
					return
				}
				req.done += k
				continue
			}

			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				wantRead := kind == ioReceive
				if armErr := port.Arm(fd, wantRead, !wantRead, func(readable, writable bool) { step() }); armErr != nil {
					report(armErr)
					req.settleIO(newSocketError(0, armErr), 0)
				}
				return
			}

			report(err)
			req.settleIO(newSocketError(errnoOf(err), err), 0)
			return
		}

		report(nil)
		req.settleIO(nil, req.done)
	}

	step()
	return awaiter
}

// Dispose closes the OS handle and releases the completion-port binding.
// Idempotent and safe to call from any role.
func (s *Socket) Dispose() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.role == roleDisposed {
		return nil
	}

	if s.fd != invalidFd {
		if s.port != nil {
			s.port.Deregister(s.fd)
		}
		s.debugLog("disposing fd %d (role %v)", s.fd, s.role)
		unix.Close(s.fd)
		s.fd = invalidFd
	}
	s.role = roleDisposed
	return nil
}

func ioKindName(k ioKind) string {
	switch k {
	case ioConnect:
		return "ConnectAsync"
	case ioSend:
		return "SendAsync"
	case ioReceive:
		return "ReceiveAsync"
	case ioAccept:
		return "AcceptAsync"
	default:
		return "unknown"
	}
}

func errnoOf(err error) int {
	if errno, ok := err.(unix.Errno); ok {
		return int(errno)
	}
	return -1
}

func wildcardAddress(family AddressFamily) string {
	if family == AddressFamilyInternetworkV6 {
		return "::"
	}
	return "0.0.0.0"
}

// domainFor maps the wire-level AddressFamily values (reproduced verbatim
// from the spec's Winsock-flavored numbering) to this platform's actual
// socket(2) domain constant, since AF_INET6 in particular differs between
// Winsock (23) and Linux (10).
func domainFor(family AddressFamily) (int, error) {
	switch family {
	case AddressFamilyInternetworkV4:
		return unix.AF_INET, nil
	case AddressFamilyInternetworkV6:
		return unix.AF_INET6, nil
	default:
		return 0, newLogicError("unsupported address family %v", family)
	}
}

func sockaddrFor(family AddressFamily, ip string, port int) (unix.Sockaddr, error) {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return nil, newSocketErrorf(0, "invalid address: %q", ip)
	}

	switch family {
	case AddressFamilyInternetworkV4:
		v4 := parsed.To4()
		if v4 == nil {
			return nil, newSocketErrorf(0, "%q is not an IPv4 address", ip)
		}
		var sa unix.SockaddrInet4
		sa.Port = port
		copy(sa.Addr[:], v4)
		return &sa, nil

	case AddressFamilyInternetworkV6:
		v6 := parsed.To16()
		if v6 == nil {
			return nil, newSocketErrorf(0, "%q is not an IPv6 address", ip)
		}
		var sa unix.SockaddrInet6
		sa.Port = port
		copy(sa.Addr[:], v6)
		return &sa, nil

	default:
		return nil, newLogicError("unsupported address family %v", family)
	}
}

func encodeSockaddr(buf []byte, sa unix.Sockaddr) {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		if len(buf) >= 6 {
			buf[0] = byte(a.Port >> 8)
			buf[1] = byte(a.Port)
			copy(buf[2:6], a.Addr[:])
		}
	case *unix.SockaddrInet6:
		if len(buf) >= 18 {
			buf[0] = byte(a.Port >> 8)
			buf[1] = byte(a.Port)
			copy(buf[2:18], a.Addr[:])
		}
	}
}
