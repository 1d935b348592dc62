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

import "time"

// Awaitable is the producer handle over a freshly constructed ResultCell[T].
// It is move-only by convention: exactly one goroutine should hold the
// Awaitable for a given cell and call SetResult/SetError on it.
type Awaitable[T any] struct {
	cell *ResultCell[T]
}

// NewAwaitable constructs a pending Awaitable backed by a fresh cell.
func NewAwaitable[T any]() *Awaitable[T] {
	return &Awaitable[T]{cell: NewResultCell[T]()}
}

// SetResult settles the underlying cell with a value.
func (a *Awaitable[T]) SetResult(v T) error {
	return a.cell.SetResult(v)
}

// SetError settles the underlying cell with an error.
func (a *Awaitable[T]) SetError(err error) error {
	return a.cell.SetError(err)
}

// GetAwaiter returns a new consumer view over the same cell. Any number of
// Awaiters, obtained via any number of calls to GetAwaiter, may share one
// cell; the cell outlives whichever of the producer or its consumers is
// released last.
func (a *Awaitable[T]) GetAwaiter() *Awaiter[T] {
	return &Awaiter[T]{cell: a.cell}
}

// Awaiter is a consumer view over a ResultCell[T]. Unlike Awaitable, any
// number of Awaiters may coexist over the same cell.
type Awaiter[T any] struct {
	cell *ResultCell[T]
}

// IsReady is suspension hook 1: the ready-query a host coroutine mechanism
// polls before deciding whether to suspend at all.
func (w *Awaiter[T]) IsReady() bool { return w.cell.IsReady() }

// HasResult reports whether the awaited cell settled with a value.
func (w *Awaiter[T]) HasResult() bool { return w.cell.HasResult() }

// HasError reports whether the awaited cell settled with an error.
func (w *Awaiter[T]) HasError() bool { return w.cell.HasError() }

// Get is suspension hook 3: completion extraction. It blocks the calling
// goroutine until the cell settles — a parked goroutine is this host's
// native suspension primitive, so there is no separate "resume" step to
// implement.
func (w *Awaiter[T]) Get() (T, error) { return w.cell.Get() }

// GetFor is Get with a relative deadline.
func (w *Awaiter[T]) GetFor(d time.Duration) (T, error) { return w.cell.GetFor(d) }

// GetUntil is Get with an absolute deadline.
func (w *Awaiter[T]) GetUntil(deadline time.Time) (T, error) { return w.cell.GetUntil(deadline) }

// Wait is Get without surfacing the value or error.
func (w *Awaiter[T]) Wait() { w.cell.Wait() }

// WaitFor is Wait with a relative deadline.
func (w *Awaiter[T]) WaitFor(d time.Duration) error { return w.cell.WaitFor(d) }

// WaitUntil is Wait with an absolute deadline.
func (w *Awaiter[T]) WaitUntil(deadline time.Time) error { return w.cell.WaitUntil(deadline) }

// Then is suspension hook 2: suspension registration. fn runs once the
// awaited cell settles, on a background worker, never inline on the caller
// and never while any cell lock is held.
func (w *Awaiter[T]) Then(fn func()) {
	w.cell.AddCallback(fn)
}

// WaitAll blocks until every given Awaiter has settled, or returns the first
// error observed across any of them, whichever happens first. Awaiters still
// pending when an error short-circuits the wait keep running in the
// background; they are not canceled (spec: no per-operation cancellation).
func WaitAll[T any](awaiters ...*Awaiter[T]) error {
	return waitAllImpl(awaiters, -1, false)
}

// WaitForAll is WaitAll with a relative deadline applied to each Awaiter.
func WaitForAll[T any](d time.Duration, awaiters ...*Awaiter[T]) error {
	return waitAllImpl(awaiters, d, true)
}

// WaitUntilAll is WaitAll with an absolute deadline applied to each Awaiter.
func WaitUntilAll[T any](deadline time.Time, awaiters ...*Awaiter[T]) error {
	return waitAllImpl(awaiters, time.Until(deadline), true)
}

func waitAllImpl[T any](awaiters []*Awaiter[T], d time.Duration, timed bool) error {
	if len(awaiters) == 0 {
		return nil
	}

	results := make(chan error, len(awaiters))
	for _, a := range awaiters {
		a := a
		go func() {
			var err error
			if timed {
				_, err = a.GetFor(d)
			} else {
				_, err = a.Get()
			}
			results <- err
		}()
	}

	for remaining := len(awaiters); remaining > 0; remaining-- {
		if err := <-results; err != nil {
			return err
		}
	}
	return nil
}
