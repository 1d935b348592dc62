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

// Package reqpool recycles heap-allocated descriptors the same way
// message_provider.go's DefaultMessageProvider recycles fuse InMessage/
// OutMessage buffers: a mutex-guarded slice used as a stack, rather than
// sync.Pool, so that an object handed back is available for immediate
// reuse instead of being subject to GC-driven eviction.
package reqpool

import "sync"

// Pool recycles values of type *T.
type Pool[T any] struct {
	mu    sync.Mutex
	free  []*T // GUARDED_BY(mu)
	newFn func() *T
	reset func(*T)
}

// New creates a Pool. newFn allocates a fresh *T when the pool is empty.
// reset, if non-nil, is called on a value taken from the pool (but not on
// a freshly allocated one) before it is handed back to the caller.
func New[T any](newFn func() *T, reset func(*T)) *Pool[T] {
	return &Pool[T]{newFn: newFn, reset: reset}
}

// Get returns a recycled value if one is available, otherwise a fresh one.
func (p *Pool[T]) Get() *T {
	p.mu.Lock()
	n := len(p.free)
	if n == 0 {
		p.mu.Unlock()
		return p.newFn()
	}

	x := p.free[n-1]
	p.free[n-1] = nil
	p.free = p.free[:n-1]
	p.mu.Unlock()

	if p.reset != nil {
		p.reset(x)
	}
	return x
}

// Put returns x to the pool for later reuse. The caller must not touch x
// again after calling Put.
func (p *Pool[T]) Put(x *T) {
	p.mu.Lock()
	p.free = append(p.free, x)
	p.mu.Unlock()
}
