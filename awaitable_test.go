package asyncsocket

import (
	"testing"
	"time"
)

func TestAwaitableGetAwaiterSharesState(t *testing.T) {
	a := NewAwaitable[int]()
	w1 := a.GetAwaiter()
	w2 := a.GetAwaiter()

	if w1.IsReady() || w2.IsReady() {
		t.Fatal("IsReady() = true before SetResult")
	}

	if err := a.SetResult(42); err != nil {
		t.Fatalf("SetResult: %v", err)
	}

	for i, w := range []*Awaiter[int]{w1, w2} {
		v, err := w.Get()
		if err != nil {
			t.Fatalf("awaiter %d Get: %v", i, err)
		}
		if got, want := v, 42; got != want {
			t.Errorf("awaiter %d Get() = %d, want %d", i, got, want)
		}
	}
}

func TestAwaiterThenRunsOnSettle(t *testing.T) {
	a := NewAwaitable[int]()
	w := a.GetAwaiter()

	done := make(chan int, 1)
	w.Then(func() {
		v, _ := w.Get()
		done <- v
	})

	if err := a.SetResult(7); err != nil {
		t.Fatalf("SetResult: %v", err)
	}

	select {
	case v := <-done:
		if got, want := v, 7; got != want {
			t.Errorf("Then callback observed %d, want %d", got, want)
		}
	case <-time.After(time.Second):
		t.Fatal("Then callback never ran")
	}
}

func TestWaitAllSucceeds(t *testing.T) {
	a1 := NewAwaitable[int]()
	a2 := NewAwaitable[int]()
	a3 := NewAwaitable[int]()

	for i, a := range []*Awaitable[int]{a1, a2, a3} {
		a := a
		go func(i int) {
			time.Sleep(time.Duration(i) * time.Millisecond)
			a.SetResult(i)
		}(i)
	}

	err := WaitAll(a1.GetAwaiter(), a2.GetAwaiter(), a3.GetAwaiter())
	if err != nil {
		t.Fatalf("WaitAll: %v", err)
	}
}

func TestWaitAllReturnsFirstError(t *testing.T) {
	a1 := NewAwaitable[int]()
	a2 := NewAwaitable[int]()

	sentinel := newLogicError("deliberate failure")
	a1.SetResult(1)
	a2.SetError(sentinel)

	err := WaitAll(a1.GetAwaiter(), a2.GetAwaiter())
	if err != sentinel {
		t.Fatalf("WaitAll error = %v, want %v", err, sentinel)
	}
}

func TestWaitForAllTimesOut(t *testing.T) {
	a := NewAwaitable[int]() // never settled

	err := WaitForAll(10*time.Millisecond, a.GetAwaiter())
	if _, ok := err.(*AwaitableTimeoutError); !ok {
		t.Fatalf("WaitForAll error = %#v, want *AwaitableTimeoutError", err)
	}
}

func TestWaitAllEmpty(t *testing.T) {
	if err := WaitAll[int](); err != nil {
		t.Fatalf("WaitAll() with no awaiters = %v, want nil", err)
	}
}
