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

// Package iocp concretizes the completion-port/threadpool runtime that the
// specification this module implements treats as an external collaborator:
// a per-handle "bind this handle" primitive, an "arm expected completion"
// call made before each submit, a "cancel the arming" call for failed
// synchronous submission, and a "schedule this callback on a background
// worker" primitive (package executor).
//
// There being no native IOCP on Linux, Port is built on epoll in one-shot
// mode: EPOLLONESHOT gives each arm call exactly the "expect one completion"
// semantics the real collaborator promises, and the readiness it reports is
// turned into an actual completion (bytes transferred, or an error) by the
// caller performing the non-blocking read/write/connect/accept syscall from
// within the dispatched callback.
package iocp

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/loopwire/asyncsocket/internal/executor"
)

// Callback is invoked once per Arm call, on a background worker, reporting
// which of the armed directions became ready. It is never invoked inline on
// the goroutine that called Arm, and never invoked twice for the same Arm.
type Callback func(readable, writable bool)

// Port is a single epoll instance together with the background worker pool
// its completions are dispatched to.
type Port struct {
	epfd int
	pool *executor.Pool

	mu        sync.Mutex
	callbacks map[int]Callback // GUARDED_BY(mu)

	die       chan struct{}
	closeOnce sync.Once
}

// New creates a Port backed by a fresh epoll instance and the given number
// of background dispatch workers.
func New(workers int) (*Port, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("EpollCreate1: %w", err)
	}

	p := &Port{
		epfd:      epfd,
		pool:      executor.New(workers),
		callbacks: make(map[int]Callback),
		die:       make(chan struct{}),
	}

	go p.loop()
	return p, nil
}

// Register binds fd to the completion port. It must be called exactly once
// per fd before the first Arm.
func (p *Port) Register(fd int) error {
	ev := unix.EpollEvent{Events: 0, Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return fmt.Errorf("EpollCtl(ADD): %w", err)
	}
	return nil
}

// Arm tells the port to expect exactly one completion for fd in the
// requested directions, to be reported to cb. Callers arm once a
// non-blocking operation on fd has returned EAGAIN, and retry that
// operation from within cb.
func (p *Port) Arm(fd int, read, write bool, cb Callback) error {
	p.mu.Lock()
	p.callbacks[fd] = cb
	p.mu.Unlock()

	var events uint32 = unix.EPOLLONESHOT
	if read {
		events |= unix.EPOLLIN
	}
	if write {
		events |= unix.EPOLLOUT
	}

	ev := unix.EpollEvent{Events: events, Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, &ev); err != nil {
		p.mu.Lock()
		delete(p.callbacks, fd)
		p.mu.Unlock()
		return fmt.Errorf("EpollCtl(MOD): %w", err)
	}
	return nil
}

// Cancel undoes an Arm whose synchronous submission failed before the kernel
// accepted it, so a stale callback is never invoked for that fd.
func (p *Port) Cancel(fd int) {
	p.mu.Lock()
	delete(p.callbacks, fd)
	p.mu.Unlock()
}

// Deregister unbinds fd from the port. Call it once, right before closing
// fd.
func (p *Port) Deregister(fd int) {
	p.Cancel(fd)
	unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

func (p *Port) loop() {
	events := make([]unix.EpollEvent, 256)
	for {
		select {
		case <-p.die:
			return
		default:
		}

		n, err := unix.EpollWait(p.epfd, events, -1)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return
		}

		for i := 0; i < n; i++ {
			ev := events[i]
			fd := int(ev.Fd)

			p.mu.Lock()
			cb, ok := p.callbacks[fd]
			delete(p.callbacks, fd) // one-shot: the kernel will not fire again until re-armed
			p.mu.Unlock()

			if !ok {
				continue
			}

			readable := ev.Events&(unix.EPOLLIN|unix.EPOLLHUP|unix.EPOLLERR) != 0
			writable := ev.Events&(unix.EPOLLOUT|unix.EPOLLHUP|unix.EPOLLERR) != 0
			p.pool.Submit(func() { cb(readable, writable) })
		}
	}
}

// Close stops the event loop and releases the epoll fd. Idempotent.
func (p *Port) Close() error {
	var err error
	p.closeOnce.Do(func() {
		close(p.die)
		p.pool.Close()
		err = unix.Close(p.epfd)
	})
	return err
}
