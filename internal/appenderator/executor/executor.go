// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
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

// Package executor implements the single-threaded, bounded-queue task
// runners that back the appenderator's persist, push, and abandon
// executors (spec §4.5). Each Executor drains one goroutine consuming a
// buffered channel, the same Start/Stop/WaitGroup/stop-channel shutdown
// shape as the teacher's background worker, generalized here from a
// fixed pair of ticker loops into an arbitrary FIFO of submitted tasks.
package executor

import (
	"context"
	"sync"
	"sync/atomic"
)

// Task is one unit of work submitted to an Executor. It receives the
// executor's shutdown context so long-running work can observe
// cancellation.
type Task func(ctx context.Context)

// Future resolves once its Task has run (or the executor shut down
// before it could). Wait blocks until resolution and Done polls it. A
// Task returns no error, so Future only signals "done", not
// success/failure — callers thread their own error through shared
// state, the way persistAllAndClear inspects the persist error latch
// after waiting rather than a Future-carried error.
type Future struct {
	done chan struct{}
}

// Wait blocks until the task has finished running.
func (f *Future) Wait() { <-f.done }

// Done reports whether the task has finished without blocking.
func (f *Future) Done() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Executor is a single worker goroutine draining a bounded FIFO queue.
// Capacity 0 means synchronous handoff: Submit blocks until the worker
// goroutine is ready to accept the task (spec §4.5 "abandon" executor).
type Executor struct {
	queue   chan func()
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started uint32
}

// New constructs an Executor with the given queue capacity and
// immediately starts its worker goroutine.
func New(capacity int) *Executor {
	ctx, cancel := context.WithCancel(context.Background())
	e := &Executor{queue: make(chan func(), capacity), ctx: ctx, cancel: cancel}
	e.wg.Add(1)
	atomic.StoreUint32(&e.started, 1)
	go e.run()
	return e
}

func (e *Executor) run() {
	defer e.wg.Done()
	for {
		select {
		case fn, ok := <-e.queue:
			if !ok {
				return
			}
			fn()
		case <-e.ctx.Done():
			// Resolve the futures of tasks still queued; each fn skips
			// its task once the context is cancelled.
			for {
				select {
				case fn := <-e.queue:
					fn()
				default:
					return
				}
			}
		}
	}
}

// Submit enqueues task and returns a Future that resolves once it has
// run. If the executor has already been shut down, the Future resolves
// immediately without running the task.
func (e *Executor) Submit(task Task) *Future {
	fut := &Future{done: make(chan struct{})}
	fn := func() {
		defer close(fut.done)
		if e.ctx.Err() == nil {
			task(e.ctx)
		}
	}
	if e.ctx.Err() != nil {
		close(fut.done)
		return fut
	}
	select {
	case e.queue <- fn:
	case <-e.ctx.Done():
		close(fut.done)
	}
	return fut
}

// SubmitAndWait submits task and blocks until it has run.
func (e *Executor) SubmitAndWait(task Task) {
	e.Submit(task).Wait()
}

// Shutdown signals the worker goroutine to stop accepting new work and
// abandon anything still queued. Equivalent to the teacher's Worker.Stop
// CAS-guarded close(stopChan), generalized to cancel a context instead of
// closing a single channel so in-flight tasks can observe cancellation
// too.
func (e *Executor) Shutdown() {
	e.cancel()
}

// Wait blocks until the worker goroutine has exited, which happens as
// soon as Shutdown is called (queued-but-unstarted tasks are abandoned;
// an in-flight task is allowed to finish since cancellation is advisory).
func (e *Executor) Wait() {
	e.wg.Wait()
}

// WaitTimeout waits up to the deadline carried by ctx for the worker
// goroutine to exit. Used by close's "very long timeout" wait (spec
// §4.5); closeNow instead calls Shutdown without waiting on the push
// executor.
func (e *Executor) WaitTimeout(ctx context.Context) bool {
	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}
