package asyncsocket

import (
	"bytes"
	"testing"
	"time"
)

// newLoopbackPair binds a server socket to an ephemeral localhost port,
// connects a client to it, and returns the connected client and the
// accepted server-side connection. The listening socket itself is
// disposed once the accept completes; it is not needed past that point.
func newLoopbackPair(t *testing.T) (client, serverConn *Socket) {
	t.Helper()

	server := NewTCPSocket()
	if err := server.Bind("127.0.0.1", 0); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if err := server.Listen(8); err != nil {
		t.Fatalf("Listen: %v", err)
	}

	_, port, err := server.LocalAddr()
	if err != nil {
		t.Fatalf("LocalAddr: %v", err)
	}

	acceptAwaiter := server.AcceptAsync()

	client = NewTCPSocket()
	connectAwaiter := client.ConnectAsync("127.0.0.1", port)

	if _, err := connectAwaiter.GetFor(2 * time.Second); err != nil {
		t.Fatalf("ConnectAsync: %v", err)
	}

	serverConn, err = acceptAwaiter.GetFor(2 * time.Second)
	if err != nil {
		t.Fatalf("AcceptAsync: %v", err)
	}

	server.Dispose()

	t.Cleanup(func() {
		client.Dispose()
		serverConn.Dispose()
	})

	return client, serverConn
}

// Boundary scenario 1: loopback echo.
func TestSocketLoopbackEcho(t *testing.T) {
	client, serverConn := newLoopbackPair(t)

	const msg = "hello"
	sendBuf := []byte(msg)
	if _, err := client.SendAsync(sendBuf, len(sendBuf)).GetFor(2 * time.Second); err != nil {
		t.Fatalf("client SendAsync: %v", err)
	}

	recvBuf := make([]byte, len(msg))
	n, err := serverConn.ReceiveAsync(recvBuf, len(recvBuf)).GetFor(2 * time.Second)
	if err != nil {
		t.Fatalf("server ReceiveAsync: %v", err)
	}
	if got, want := n, len(msg); got != want {
		t.Fatalf("server received %d bytes, want %d", got, want)
	}
	if !bytes.Equal(recvBuf, sendBuf) {
		t.Fatalf("server received %q, want %q", recvBuf, sendBuf)
	}

	if _, err := serverConn.SendAsync(recvBuf, len(recvBuf)).GetFor(2 * time.Second); err != nil {
		t.Fatalf("server SendAsync: %v", err)
	}

	echoBuf := make([]byte, len(msg))
	if _, err := client.ReceiveAsync(echoBuf, len(echoBuf)).GetFor(2 * time.Second); err != nil {
		t.Fatalf("client ReceiveAsync: %v", err)
	}
	if !bytes.Equal(echoBuf, sendBuf) {
		t.Fatalf("client echoed %q, want %q", echoBuf, sendBuf)
	}
}

// Boundary scenario 2: graceful close detection.
func TestSocketGracefulCloseIsConnReset(t *testing.T) {
	client, serverConn := newLoopbackPair(t)

	if err := client.Dispose(); err != nil {
		t.Fatalf("client Dispose: %v", err)
	}

	buf := make([]byte, 1)
	_, err := serverConn.ReceiveAsync(buf, 1).GetFor(2 * time.Second)
	if !isConnReset(err) {
		t.Fatalf("server ReceiveAsync error = %#v, want a connection-reset error", err)
	}

	// The disconnect hook must have disposed the server connection.
	if _, sendErr := serverConn.SendAsync(buf, 1).Get(); sendErr != errDisposed {
		t.Fatalf("SendAsync on a torn-down connection = %v, want errDisposed", sendErr)
	}
}

func TestSocketRoleGuards(t *testing.T) {
	s := NewTCPSocket()

	if err := s.Listen(8); err == nil {
		t.Fatal("Listen on an unbound socket succeeded, want a logic error")
	}

	if err := s.Bind("127.0.0.1", 0); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if err := s.Listen(8); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	if err := s.Bind("127.0.0.1", 0); err == nil {
		t.Fatal("second Bind succeeded, want a logic error")
	}

	if _, err := s.ConnectAsync("127.0.0.1", 1).Get(); err == nil {
		t.Fatal("ConnectAsync on a server socket succeeded, want a logic error")
	}
}

func TestSocketDisposeIsIdempotent(t *testing.T) {
	s := NewTCPSocket()
	if err := s.Bind("127.0.0.1", 0); err != nil {
		t.Fatalf("Bind: %v", err)
	}

	if err := s.Dispose(); err != nil {
		t.Fatalf("first Dispose: %v", err)
	}
	if err := s.Dispose(); err != nil {
		t.Fatalf("second Dispose: %v", err)
	}

	if _, _, err := s.LocalAddr(); err == nil {
		t.Fatal("LocalAddr after Dispose succeeded, want an error")
	}
}
