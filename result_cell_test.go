package asyncsocket

import (
	"sync"
	"testing"
	"time"

	"github.com/jacobsa/timeutil"
)

func TestResultCellGetAfterSetResult(t *testing.T) {
	c := NewResultCell[int]()

	if err := c.SetResult(17); err != nil {
		t.Fatalf("SetResult: %v", err)
	}

	v, err := c.Get()
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got, want := v, 17; got != want {
		t.Errorf("Get() = %d, want %d", got, want)
	}

	if !c.HasResult() {
		t.Error("HasResult() = false after SetResult")
	}
	if c.HasError() {
		t.Error("HasError() = true after SetResult")
	}
}

// Boundary scenario 3: double-settle.
func TestResultCellDoubleSettleFails(t *testing.T) {
	c := NewResultCell[int]()

	if err := c.SetResult(1); err != nil {
		t.Fatalf("first SetResult: %v", err)
	}

	err := c.SetResult(2)
	if _, ok := err.(*AwaitableStateError); !ok {
		t.Fatalf("second SetResult error = %#v, want *AwaitableStateError", err)
	}

	v, getErr := c.Get()
	if getErr != nil {
		t.Fatalf("Get: %v", getErr)
	}
	if got, want := v, 1; got != want {
		t.Errorf("Get() = %d, want %d (the first settle wins)", got, want)
	}
}

func TestResultCellSetErrorRethrows(t *testing.T) {
	c := NewResultCell[int]()
	sentinel := newLogicError("boom")

	if err := c.SetError(sentinel); err != nil {
		t.Fatalf("SetError: %v", err)
	}

	_, err := c.Get()
	if err != sentinel {
		t.Fatalf("Get() error = %v, want %v", err, sentinel)
	}
	if !c.HasError() {
		t.Error("HasError() = false after SetError")
	}
}

// Boundary scenario 4: timeout.
func TestResultCellGetForTimesOut(t *testing.T) {
	c := NewResultCell[int]()

	_, err := c.GetFor(50 * time.Millisecond)
	if _, ok := err.(*AwaitableTimeoutError); !ok {
		t.Fatalf("GetFor error = %#v, want *AwaitableTimeoutError", err)
	}
}

func TestResultCellGetUntilUsesInjectedClock(t *testing.T) {
	var clock timeutil.SimulatedClock
	clock.SetTime(time.Unix(1000, 0))
	c := newResultCellWithClock[int](&clock)

	// A deadline already in the past relative to the injected clock should
	// time out essentially immediately, regardless of the wall clock.
	past := clock.Now().Add(-time.Hour)

	_, err := c.GetUntil(past)
	if _, ok := err.(*AwaitableTimeoutError); !ok {
		t.Fatalf("GetUntil error = %#v, want *AwaitableTimeoutError", err)
	}
}

// Boundary scenario 6: callback ordering.
func TestResultCellCallbackOrdering(t *testing.T) {
	c := NewResultCell[int]()

	var mu sync.Mutex
	var order []string
	record := func(name string) func() {
		return func() {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
		}
	}

	var wg sync.WaitGroup
	wg.Add(3)
	wrap := func(name string) func() {
		fn := record(name)
		return func() {
			fn()
			wg.Done()
		}
	}

	c.AddCallback(wrap("A"))
	c.AddCallback(wrap("B"))
	c.AddCallback(wrap("C"))

	if err := c.SetResult(0); err != nil {
		t.Fatalf("SetResult: %v", err)
	}

	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if got, want := len(order), 3; got != want {
		t.Fatalf("len(order) = %d, want %d", got, want)
	}
	for i, name := range []string{"A", "B", "C"} {
		if order[i] != name {
			t.Errorf("order[%d] = %q, want %q", i, order[i], name)
		}
	}
}

func TestResultCellAddCallbackAfterSettleRunsAsync(t *testing.T) {
	c := NewResultCell[int]()
	if err := c.SetResult(5); err != nil {
		t.Fatalf("SetResult: %v", err)
	}

	called := make(chan struct{})
	c.AddCallback(func() {
		close(called)
	})
	// AddCallback must not have invoked fn synchronously: the channel must
	// still be open immediately after the call returns.
	select {
	case <-called:
		t.Fatal("callback for an already-settled cell ran inline on the registering goroutine")
	default:
	}

	select {
	case <-called:
	case <-time.After(time.Second):
		t.Fatal("callback registered after settle never ran")
	}
}
