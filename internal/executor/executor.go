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

// Package executor is the "schedule this callback on a background worker"
// collaborator called for in the external-interfaces section of the
// specification this module implements: a small fixed-size worker pool that
// ResultCell continuation dispatch and the completion-port callback path
// (package iocp) both submit fire-and-forget work to.
package executor

import "sync"

// Pool runs submitted functions on a bounded set of long-lived goroutines,
// falling back to a dedicated goroutine per task when the pool is saturated
// so that Submit never blocks the caller and a task is never run inline on
// the submitting goroutine.
type Pool struct {
	tasks chan func()

	closeOnce sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

// New starts a Pool with the given number of worker goroutines. workers <= 0
// is treated as 1.
func New(workers int) *Pool {
	if workers <= 0 {
		workers = 1
	}

	p := &Pool{
		tasks: make(chan func()),
		done:  make(chan struct{}),
	}

	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}

	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		select {
		case fn := <-p.tasks:
			fn()
		case <-p.done:
			return
		}
	}
}

// Submit schedules fn for asynchronous execution. It never calls fn
// synchronously on the calling goroutine, and it never blocks: if every
// worker is busy, Submit spins up a one-off goroutine for fn rather than
// making the caller wait.
func (p *Pool) Submit(fn func()) {
	select {
	case p.tasks <- fn:
	case <-p.done:
	default:
		go func() {
			select {
			case p.tasks <- fn:
			case <-p.done:
			}
		}()
	}
}

// Close stops accepting new work. Tasks already handed to a worker continue
// to run; Close does not wait for them. Idempotent.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		close(p.done)
	})
}
