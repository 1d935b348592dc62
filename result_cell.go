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
	"sync"
	"time"

	"github.com/jacobsa/syncutil"
	"github.com/jacobsa/timeutil"

	"github.com/loopwire/asyncsocket/internal/executor"
)

var (
	dispatchOnce sync.Once
	dispatchPool *executor.Pool
)

// dispatcher is the background worker pool continuations are scheduled on.
// Shared by every ResultCell in the process; lazily started on first use so
// that a program which never settles a cell never pays for it.
func dispatcher() *executor.Pool {
	dispatchOnce.Do(func() {
		dispatchPool = executor.New(*fDispatchWorkers)
	})
	return dispatchPool
}

// ResultCell is a single-assignment communication cell between exactly one
// producer and any number of consumers. It is the primitive Awaitable/
// Awaiter are thin views over.
//
// GUARDED_BY(mu): settled, hasErr, value, err, callbacks.
type ResultCell[T any] struct {
	mu syncutil.InvariantMutex

	settled   bool
	hasErr    bool
	value     T
	err       error
	callbacks []func() // appended to only while !settled

	readyCh chan struct{} // closed exactly once, when settled flips true
	clock   timeutil.Clock
}

// NewResultCell constructs a pending cell.
func NewResultCell[T any]() *ResultCell[T] {
	c := &ResultCell[T]{
		readyCh: make(chan struct{}),
		clock:   timeutil.RealClock(),
	}
	c.mu = syncutil.NewInvariantMutex(c.checkInvariants)
	return c
}

// newResultCellWithClock is used by tests to inject a deterministic
// timeutil.Clock in place of timeutil.RealClock(), so the timeout boundary
// scenario (spec §8.4) can be exercised without a real sleep.
func newResultCellWithClock[T any](clock timeutil.Clock) *ResultCell[T] {
	c := NewResultCell[T]()
	c.clock = clock
	return c
}

func (c *ResultCell[T]) checkInvariants() {
	if !c.settled {
		if c.err != nil {
			panic("ResultCell: err set on a cell that is not yet settled")
		}
		return
	}

	if c.hasErr != (c.err != nil) {
		panic("ResultCell: hasErr flag inconsistent with err")
	}
}

// SetResult settles the cell with a value. Returns *AwaitableStateError if
// the cell was already settled.
func (c *ResultCell[T]) SetResult(v T) error {
	return c.settle(v, nil)
}

// SetError settles the cell with a terminal error. Returns
// *AwaitableStateError if the cell was already settled.
func (c *ResultCell[T]) SetError(err error) error {
	if err == nil {
		panic("ResultCell.SetError called with a nil error")
	}
	var zero T
	return c.settle(zero, err)
}

func (c *ResultCell[T]) settle(v T, err error) error {
	c.mu.Lock()

	if c.settled {
		c.mu.Unlock()
		return newAwaitableStateError("cell already settled")
	}

	c.value = v
	c.err = err
	c.hasErr = err != nil
	c.settled = true

	// Snapshot and clear the queue before dropping the lock: the contract
	// forbids invoking a callback while mu is held, and forbids inlining it
	// on this goroutine.
	callbacks := c.callbacks
	c.callbacks = nil

	close(c.readyCh)
	c.mu.Unlock()

	// Dispatched as a single batch task, never one task per callback: the
	// pool has multiple workers, and handing out one Submit per callback
	// would let them race across workers and settle in whatever order the
	// scheduler feels like, rather than the registration order callers
	// were promised.
	if len(callbacks) > 0 {
		dispatcher().Submit(func() {
			for _, fn := range callbacks {
				fn()
			}
		})
	}

	return nil
}

// IsReady reports whether the cell has settled, without blocking.
func (c *ResultCell[T]) IsReady() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settled
}

// HasResult reports whether the cell settled with a value.
func (c *ResultCell[T]) HasResult() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settled && !c.hasErr
}

// HasError reports whether the cell settled with an error.
func (c *ResultCell[T]) HasError() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settled && c.hasErr
}

// Get blocks until the cell settles, then returns its value or rethrows its
// error.
func (c *ResultCell[T]) Get() (T, error) {
	<-c.readyCh
	return c.snapshot()
}

func (c *ResultCell[T]) snapshot() (T, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value, c.err
}

// GetFor is like Get but fails with *AwaitableTimeoutError if d elapses
// first.
func (c *ResultCell[T]) GetFor(d time.Duration) (T, error) {
	return c.getUntilDeadline(c.clock.Now().Add(d))
}

// GetUntil is like Get but fails with *AwaitableTimeoutError if the deadline
// elapses first.
func (c *ResultCell[T]) GetUntil(deadline time.Time) (T, error) {
	return c.getUntilDeadline(deadline)
}

// clockPollInterval bounds how stale getUntilDeadline's view of an injected
// timeutil.Clock can be. A single time.NewTimer sized to deadline.Sub(now)
// would be sampled once and drift blind to any later SetTime call on a
// SimulatedClock; polling on this tick keeps the deadline check live against
// whatever c.clock.Now() currently reports.
const clockPollInterval = 5 * time.Millisecond

func (c *ResultCell[T]) getUntilDeadline(deadline time.Time) (v T, err error) {
	if !c.clock.Now().Before(deadline) {
		select {
		case <-c.readyCh:
			return c.snapshot()
		default:
			return v, &AwaitableTimeoutError{}
		}
	}

	ticker := time.NewTicker(clockPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.readyCh:
			return c.snapshot()
		case <-ticker.C:
			if !c.clock.Now().Before(deadline) {
				return v, &AwaitableTimeoutError{}
			}
		}
	}
}

// Wait blocks until the cell settles, without surfacing the value or error.
func (c *ResultCell[T]) Wait() {
	<-c.readyCh
}

// WaitFor is like Wait but fails with *AwaitableTimeoutError if d elapses
// first.
func (c *ResultCell[T]) WaitFor(d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-c.readyCh:
		return nil
	case <-timer.C:
		return &AwaitableTimeoutError{}
	}
}

// WaitUntil is like Wait but fails with *AwaitableTimeoutError if the
// deadline elapses first.
func (c *ResultCell[T]) WaitUntil(deadline time.Time) error {
	return c.WaitFor(deadline.Sub(c.clock.Now()))
}

// AddCallback registers fn to run once the cell settles. If the cell is
// already settled, fn is scheduled immediately but asynchronously: never
// inline on the calling goroutine. If the cell is still pending, fn joins
// the queue dispatched as a batch, in registration order, at settle time.
func (c *ResultCell[T]) AddCallback(fn func()) {
	c.mu.Lock()
	if !c.settled {
		c.callbacks = append(c.callbacks, fn)
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	dispatcher().Submit(fn)
}
