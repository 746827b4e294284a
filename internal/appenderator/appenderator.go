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

package appenderator

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"appenderator/internal/accounting"
	"appenderator/internal/announcer"
	"appenderator/internal/appenderator/dirlock"
	"appenderator/internal/appenderator/errlatch"
	"appenderator/internal/appenderator/executor"
	"appenderator/internal/appenderator/metrics"
	"appenderator/internal/applog"
	"appenderator/internal/deepstorage"
	"appenderator/internal/index"
	"appenderator/pkg/segment"
)

// state is the appenderator's lifecycle state (spec §4.7).
type state int32

const (
	stateCreated state = iota
	stateRunning
	stateClosed
)

// executors bundles the three serial executors spec §4.5 calls for:
// persist (bounded by maxPendingPersists), push (capacity 1), and abandon
// (synchronous handoff, capacity 0).
type executors struct {
	persist *executor.Executor
	push    *executor.Executor
	abandon *executor.Executor
}

func newExecutors(maxPendingPersists int) *executors {
	return &executors{
		persist: executor.New(maxPendingPersists),
		push:    executor.New(1),
		abandon: executor.New(0),
	}
}

// pushBarrier implements the abandon executor's sole duty (spec §4.5):
// enqueue a task on abandon that itself enqueues an empty task on push,
// and resolve only once that empty task has run — i.e. once every merge
// already queued ahead of it has drained.
func (e *executors) pushBarrier() *executor.Future {
	return e.abandon.Submit(func(ctx context.Context) {
		e.push.SubmitAndWait(func(context.Context) {})
	})
}

// latchedErrors wraps errlatch.Latch with the semantics spec §7/§9
// describe: first error wins, and every producer-facing entry point
// checks it before doing work.
type latchedErrors struct {
	err errlatch.Latch
}

// Set latches err if no error has been latched yet.
func (l *latchedErrors) Set(err error) bool { return l.err.Set(err) }

// Get returns the latched error, or nil.
func (l *latchedErrors) Get() error { return l.err.Get() }

// Appenderator is the top-level lifecycle controller (component C7). It
// wires together the sink registry (C1), memory accountant (C2),
// persistence engine (C3), merge & push engine (C4), executor
// orchestrator (C5), directory lock (C6), and query forwarder (C8).
type Appenderator struct {
	cfg    Config
	schema *Schema

	registry      *Registry
	accountant    *accounting.Accountant
	memAccountant *memoryAccountant
	persistEngine *persistEngine
	mergeEngine   *mergeEngine
	executors     *executors
	latch         *latchedErrors
	queries       *queryForwarder
	layout        dirlock.Layout
	log           *applog.Logger

	lock *dirlock.Lock

	state      atomic.Int32
	closeOnce  sync.Once
	closeNowOn sync.Once
}

// Dependencies bundles the external collaborators spec.md places out of
// scope: the index persister/merger, the deep storage pusher, the
// segment announcer, and an optional query walker.
type Dependencies struct {
	NewIndex  func() index.Adder
	Persister index.Persister
	Merger    index.Merger
	Pusher    deepstorage.Pusher
	Announcer announcer.Announcer
	Walker    Walker
	Logger    *applog.Logger
}

// New constructs an Appenderator in the CREATED state. It does not touch
// disk until startJob is called.
func New(cfg Config, schema Schema, deps Dependencies) (*Appenderator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.NewIndex == nil {
		deps.NewIndex = func() index.Adder { return index.NewMemIndex(cfg.MaxRowsPerIndex) }
	}
	if deps.Persister == nil {
		deps.Persister = index.JSONLPersister{}
	}
	if deps.Merger == nil {
		deps.Merger = index.JSONLMerger{}
	}
	if deps.Pusher == nil {
		deps.Pusher = deepstorage.LocalPusher{Root: cfg.BasePersistDirectory + "-deepstorage"}
	}
	if deps.Announcer == nil {
		deps.Announcer = announcer.NoopAnnouncer{}
	}
	if deps.Logger == nil {
		deps.Logger = applog.New(os.Stderr, "appenderator")
	}

	accounts := accounting.NewAccountant(cfg.SkipBytesInMemoryOverheadCheck)
	reg := NewRegistry(&schema, deps.NewIndex, accounts, deps.Announcer)
	execs := newExecutors(cfg.MaxPendingPersists)
	latch := &latchedErrors{}
	layout := dirlock.NewLayout(cfg.BasePersistDirectory)
	memAcct := newMemoryAccountant(accounts, cfg.MaxRowsInMemory, cfg.MaxBytesInMemory, cfg.IntermediatePersistPeriod, cfg.SkipBytesInMemoryOverheadCheck)

	a := &Appenderator{
		cfg:           cfg,
		schema:        &schema,
		registry:      reg,
		accountant:    accounts,
		memAccountant: memAcct,
		persistEngine: &persistEngine{layout: layout, persister: deps.Persister, accounts: memAcct, executors: execs, latch: latch, log: deps.Logger},
		mergeEngine:   &mergeEngine{layout: layout, merger: deps.Merger, pusher: deps.Pusher, log: deps.Logger},
		executors:     execs,
		latch:         latch,
		queries:       &queryForwarder{walker: deps.Walker},
		layout:        layout,
		log:           deps.Logger,
	}
	return a, nil
}

// StartJob acquires the base persist directory's advisory lock and moves
// the appenderator into RUNNING (spec §4.6, §4.7). Lock-acquire failure
// is fatal.
func (a *Appenderator) StartJob() error {
	if !a.state.CompareAndSwap(int32(stateCreated), int32(stateRunning)) {
		return fmt.Errorf("appenderator: startJob called outside CREATED state")
	}
	lock, err := dirlock.Acquire(a.cfg.BasePersistDirectory)
	if err != nil {
		a.state.Store(int32(stateCreated))
		return fmt.Errorf("startJob: %w", err)
	}
	a.lock = lock
	return nil
}

func (a *Appenderator) checkLatch() error {
	if err := a.latch.Get(); err != nil {
		return fmt.Errorf("appenderator: error while persisting: %w", err)
	}
	if state(a.state.Load()) == stateClosed {
		return ErrClosed
	}
	return nil
}

// AddResult is the tuple add() returns on success (spec §6).
type AddResult struct {
	Identifier        segment.Identifier
	NumRowsInSegment  int64
	IsPersistRequired bool
}

// Add validates and routes one row to its sink, then evaluates the four
// persist triggers and, if one fires, synchronously persists and clears
// (spec §4.7, §4.2). Batch mode requires committer to be nil and
// allowIncrementalPersists to be true.
func (a *Appenderator) Add(ctx context.Context, id segment.Identifier, row index.Row, committer any, allowIncrementalPersists bool) (AddResult, error) {
	if err := a.checkLatch(); err != nil {
		return AddResult{}, err
	}
	if committer != nil {
		return AddResult{}, ErrCommitterNotSupported
	}
	if !allowIncrementalPersists {
		return AddResult{}, ErrAllowIncrementalPersistsRequired
	}
	if a.schema != nil && a.schema.DataSource != "" && id.DataSource != a.schema.DataSource {
		return AddResult{}, ErrWrongDataSource
	}

	sink := a.registry.GetOrCreate(ctx, id)
	if !sink.CanAppendRow() {
		return AddResult{}, &IndexSizeExceededError{Identifier: id, Err: index.ErrIndexSizeExceeded}
	}

	bytesDelta, err := sink.Add(row)
	if err != nil {
		return AddResult{}, err
	}

	a.accountant.RowsInMemory.Add(1)
	a.accountant.BytesInMemory.Add(bytesDelta)
	a.accountant.TotalRows.Add(1)
	md := a.registry.MetadataFor(id)
	md.AddRows(1)

	metrics.RowsInMemory.Set(float64(a.accountant.RowsInMemory.Load()))
	metrics.BytesInMemory.Set(float64(a.accountant.BytesInMemory.Load()))

	reason := a.memAccountant.checkTriggers(sink.CanAppendRow())
	if reason != triggerNone {
		if heapErr := a.memAccountant.checkHeapLimit(a.liveSinks()); heapErr != nil {
			return AddResult{}, heapErr
		}
		if err := a.persistEngine.persistAllAndClear(a.registry); err != nil {
			a.latch.Set(err)
			return AddResult{}, err
		}
	}

	return AddResult{Identifier: id, NumRowsInSegment: md.NumRowsInSegment(), IsPersistRequired: false}, nil
}

func (a *Appenderator) liveSinks() []*Sink {
	var out []*Sink
	a.registry.ForEach(func(_ segment.Identifier, s *Sink) { out = append(out, s) })
	return out
}

// GetSegments returns every identifier that has a live in-memory sink;
// identifiers whose sinks were evicted after a persist are not included.
func (a *Appenderator) GetSegments() []segment.Identifier { return a.registry.IDs() }

// GetRowCount returns the cumulative row count for id.
func (a *Appenderator) GetRowCount(id segment.Identifier) int64 {
	return a.registry.MetadataFor(id).NumRowsInSegment()
}

// GetTotalRowCount returns totalRows across every tracked identifier.
func (a *Appenderator) GetTotalRowCount() int64 { return a.accountant.TotalRows.Load() }

// PersistAll persists every live sink's pending hydrants and evicts them
// from memory, keeping their on-disk spills (spec §4.3).
func (a *Appenderator) PersistAll(ctx context.Context) error {
	if err := a.checkLatch(); err != nil {
		return err
	}
	if err := a.persistEngine.persistAllAndClear(a.registry); err != nil {
		a.latch.Set(err)
		return err
	}
	return nil
}

// Push merges and uploads the given identifiers (or every identifier with
// on-disk state, if identifiers is empty) to deep storage (spec §4.4).
func (a *Appenderator) Push(ctx context.Context, identifiers []segment.Identifier, committer any, useUniquePath bool) ([]segment.Descriptor, error) {
	if err := a.checkLatch(); err != nil {
		return nil, err
	}
	if committer != nil {
		return nil, ErrCommitterNotSupported
	}
	return a.push(ctx, identifiers, useUniquePath)
}

// Drop removes a live sink and its metadata, subtracting its rows from
// totalRows, and waits for any in-flight persist/merge of it to finish
// first via the abandon executor's push barrier (spec §3, §4.5).
func (a *Appenderator) Drop(id segment.Identifier) error {
	if err := a.checkLatch(); err != nil {
		return err
	}
	barrier := a.executors.pushBarrier()
	a.executors.persist.SubmitAndWait(func(context.Context) {
		barrier.Wait()
		md := a.registry.MetadataFor(id)
		a.accountant.TotalRows.Add(-md.NumRowsInSegment())
		a.registry.Delete(id)
	})
	return os.RemoveAll(a.layout.SinkDir(id))
}

// Clear drops every live sink without removing on-disk data, blocking
// until complete (spec §4.7, §6).
func (a *Appenderator) Clear() error {
	if err := a.checkLatch(); err != nil {
		return err
	}
	return a.clearAll()
}

// clearAll is Clear's body without the closed-state check, so Close can
// drop every live sink on its way to shutting down the executors without
// immediately tripping on the CLOSED state it just entered.
func (a *Appenderator) clearAll() error {
	barrier := a.executors.pushBarrier()
	a.executors.persist.SubmitAndWait(func(context.Context) {
		barrier.Wait()
		for _, id := range a.registry.IDs() {
			a.registry.EvictSink(id)
		}
	})
	return nil
}

// Close is idempotent: it drops every sink without removing on-disk data,
// waits on all three executors, releases the directory lock, then removes
// every persist directory left under the base dir (spec §4.7).
func (a *Appenderator) Close() error {
	var closeErr error
	a.closeOnce.Do(func() {
		a.state.Store(int32(stateClosed))
		if err := a.clearAll(); err != nil {
			closeErr = err
			return
		}
		a.executors.abandon.Shutdown()
		a.executors.push.Shutdown()
		a.executors.persist.Shutdown()

		longTimeout, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		a.executors.persist.WaitTimeout(longTimeout)
		a.executors.push.WaitTimeout(longTimeout)
		a.executors.abandon.WaitTimeout(longTimeout)

		if a.lock != nil {
			if err := a.lock.Release(); err != nil {
				closeErr = err
				return
			}
		}
		entries, err := os.ReadDir(a.cfg.BasePersistDirectory)
		if err != nil {
			if !os.IsNotExist(err) {
				closeErr = err
			}
			return
		}
		for _, e := range entries {
			if e.Name() == ".lock" {
				continue
			}
			_ = os.RemoveAll(a.cfg.BasePersistDirectory + "/" + e.Name())
		}
	})
	return closeErr
}

// CloseNow marks the appenderator closed, shuts down all three executors
// and waits only on the persist and abandon executors. It does not
// unannounce sinks (the Announcer interface has no unannounce
// operation), and it deliberately does NOT release the directory lock or
// clean up on-disk state (spec §4.7, §9: push tasks are allowed to be
// abandoned and the lock relies on process exit to be released).
func (a *Appenderator) CloseNow() {
	a.closeNowOn.Do(func() {
		a.state.Store(int32(stateClosed))
		a.executors.abandon.Shutdown()
		a.executors.persist.Shutdown()
		a.executors.push.Shutdown()

		timeout, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		a.executors.persist.WaitTimeout(timeout)
		a.executors.abandon.WaitTimeout(timeout)
	})
}
