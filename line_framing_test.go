package asyncsocket

import (
	"testing"
	"time"
)

// Round-trip / idempotence: sending "abc\r\n" and reading with CRLF
// terminator yields "abc\r\n".
func TestReceiveLineAsyncCRLFRoundTrip(t *testing.T) {
	client, serverConn := newLoopbackPair(t)

	const msg = "abc\r\n"
	buf := []byte(msg)
	if _, err := client.SendAsync(buf, len(buf)).GetFor(2 * time.Second); err != nil {
		t.Fatalf("SendAsync: %v", err)
	}

	line, err := ReceiveLineAsync(serverConn, LineTerminatorCRLF).GetFor(2 * time.Second)
	if err != nil {
		t.Fatalf("ReceiveLineAsync: %v", err)
	}
	if got, want := line, msg; got != want {
		t.Fatalf("ReceiveLineAsync() = %q, want %q", got, want)
	}
}

// Boundary scenario 5: feed "line1\r\nline2\r" and observe that the first
// call returns "line1\r\n" while a second call remains pending.
func TestReceiveLineAsyncPendingOnPartialSecondLine(t *testing.T) {
	client, serverConn := newLoopbackPair(t)

	const payload = "line1\r\nline2\r"
	buf := []byte(payload)
	if _, err := client.SendAsync(buf, len(buf)).GetFor(2 * time.Second); err != nil {
		t.Fatalf("SendAsync: %v", err)
	}

	first, err := ReceiveLineAsync(serverConn, LineTerminatorCRLF).GetFor(2 * time.Second)
	if err != nil {
		t.Fatalf("first ReceiveLineAsync: %v", err)
	}
	if got, want := first, "line1\r\n"; got != want {
		t.Fatalf("first ReceiveLineAsync() = %q, want %q", got, want)
	}

	second := ReceiveLineAsync(serverConn, LineTerminatorCRLF)
	if second.IsReady() {
		t.Fatal("second ReceiveLineAsync settled before the terminator arrived")
	}
	if _, err := second.GetFor(100 * time.Millisecond); err == nil {
		t.Fatal("second ReceiveLineAsync settled before more data arrived")
	} else if _, ok := err.(*AwaitableTimeoutError); !ok {
		t.Fatalf("second ReceiveLineAsync error = %#v, want *AwaitableTimeoutError", err)
	}

	// Completing the line should now settle it.
	if _, err := client.SendAsync([]byte("\n"), 1).GetFor(2 * time.Second); err != nil {
		t.Fatalf("SendAsync: %v", err)
	}
	rest, err := second.GetFor(2 * time.Second)
	if err != nil {
		t.Fatalf("second ReceiveLineAsync after more data: %v", err)
	}
	if got, want := rest, "line2\r\n"; got != want {
		t.Fatalf("second ReceiveLineAsync() = %q, want %q", got, want)
	}
}

func TestReceiveLineAsyncUnknownTerminator(t *testing.T) {
	client, _ := newLoopbackPair(t)

	_, err := ReceiveLineAsync(client, LineTerminator(99)).Get()
	if _, ok := err.(*logicError); !ok {
		t.Fatalf("ReceiveLineAsync with unknown terminator error = %#v, want *logicError", err)
	}
}
