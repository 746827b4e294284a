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
	"time"

	"appenderator/internal/appenderator/dirlock"
	"appenderator/internal/appenderator/executor"
	"appenderator/internal/appenderator/metrics"
	"appenderator/internal/applog"
	"appenderator/internal/index"
	"appenderator/pkg/segment"
)

// hydrantTask is one (hydrant, identifier) pair queued for persistence
// (spec §4.3: "persistAll() enumerates live sinks and produces a list of
// (hydrant, identifier) pairs").
type hydrantTask struct {
	hydrant    *FireHydrant
	identifier segment.Identifier
}

// persistEngine implements component C3: it freezes swappable sinks,
// drains their frozen hydrants to disk via the persist executor, and
// subtracts the persisted rows/bytes from the memory accountant.
type persistEngine struct {
	layout    dirlock.Layout
	persister index.Persister
	accounts  *memoryAccountant
	executors *executors
	latch     *latchedErrors
	log       *applog.Logger
}

// collectPersistTasks implements spec §4.3 steps 1-3 across every live
// sink in the registry.
func (p *persistEngine) collectPersistTasks(reg *Registry) []hydrantTask {
	var tasks []hydrantTask
	reg.ForEach(func(id segment.Identifier, s *Sink) {
		var addedForThisSink int
		frozen := s.FrozenHydrants()
		for _, h := range frozen {
			if !h.HasSwapped() {
				tasks = append(tasks, hydrantTask{hydrant: h, identifier: id})
				addedForThisSink++
			}
		}
		if s.Swappable() {
			newlyFrozen := s.Swap()
			tasks = append(tasks, hydrantTask{hydrant: newlyFrozen, identifier: id})
			addedForThisSink++
		}
		if addedForThisSink > 0 {
			reg.MetadataFor(id).AddHydrants(addedForThisSink)
		}
	})
	return tasks
}

// persistHydrant implements spec §4.3's per-hydrant persist step. It is
// idempotent: an already-swapped hydrant returns 0 rows without doing
// I/O.
func (p *persistEngine) persistHydrant(ctx context.Context, reg *Registry, t hydrantTask) (rowsPersisted int64, err error) {
	if t.hydrant.HasSwapped() {
		return 0, nil
	}

	start := time.Now()
	defer func() { metrics.ObservePersistDuration(time.Since(start)) }()

	sinkDir := p.layout.SinkDir(t.identifier)
	if err := os.MkdirAll(sinkDir, 0o755); err != nil {
		return 0, fmt.Errorf("persistHydrant: create sink dir: %w", err)
	}
	idFile := p.layout.IdentifierFile(t.identifier)
	if _, err := os.Stat(idFile); os.IsNotExist(err) {
		data, merr := segment.MarshalIdentifier(t.identifier)
		if merr != nil {
			return 0, fmt.Errorf("persistHydrant: marshal identifier: %w", merr)
		}
		if werr := os.WriteFile(idFile, data, 0o644); werr != nil {
			return 0, fmt.Errorf("persistHydrant: write identifier.json: %w", werr)
		}
	}

	md := reg.MetadataFor(t.identifier)
	hydrantNumber := md.PreviousHydrantCount()
	dir := p.layout.HydrantDir(t.identifier, hydrantNumber)

	idx := t.hydrant.Index()
	if idx == nil {
		// Raced with a concurrent swap; treat as already-swapped.
		return 0, nil
	}

	rows, perr := p.persister.Persist(ctx, idx, dir)
	if perr != nil {
		metrics.FailedPersistsTotal.Inc()
		werr := fmt.Errorf("persistHydrant: persist %s/%d: %w", t.identifier, hydrantNumber, perr)
		p.latch.Set(werr)
		return 0, werr
	}

	t.hydrant.swapSegment(dir, rows)
	md.NextHydrantNumber() // advance the monotonic counter past what we just used
	metrics.PersistsTotal.Inc()
	return rows, nil
}

// persistAll submits a single task to the persist executor that persists
// every pending hydrant, then subtracts their rows/bytes from the
// accountant and resets the wall-clock trigger (spec §4.3). It returns a
// future the caller can wait on.
func (p *persistEngine) persistAll(reg *Registry) *executor.Future {
	submittedAt := time.Now()
	tasks := p.collectPersistTasks(reg)

	fut := p.executors.persist.Submit(func(ctx context.Context) {
		delay := time.Since(submittedAt)
		if delay > time.Second {
			metrics.BackpressureWarningsTotal.Inc()
			p.log.Warn("persist backpressure: scheduling delay %s exceeded 1000ms", delay)
		}

		est := p.accounts.accounts.Estimator()
		var rowsPersisted, bytesFreed int64
		for _, t := range tasks {
			before := t.hydrant.BytesInMemory()
			n, err := p.persistHydrant(ctx, reg, t)
			if err != nil {
				p.log.Error("persist failed for %s: %v", t.identifier, err)
				p.latch.Set(err)
				continue
			}
			rowsPersisted += n
			// The swapped hydrant drops its live index but remains
			// memory-mapped, so its in-memory footprint shrinks to the
			// per-hydrant overhead estimate rather than zero (spec §3
			// invariant 4, §4.2).
			bytesFreed += before - t.hydrant.BytesInMemory() - est.PerHydrant()
		}

		p.accounts.accounts.RowsInMemory.Add(-rowsPersisted)
		p.accounts.accounts.BytesInMemory.Add(-bytesFreed)
		p.accounts.resetFlush()
	})
	return fut
}

// persistAllAndClear awaits persistAll's future, then clears every live
// sink from the registry while keeping its on-disk spills (spec §4.3).
func (p *persistEngine) persistAllAndClear(reg *Registry) error {
	fut := p.persistAll(reg)
	fut.Wait()
	if err := p.latch.Get(); err != nil {
		return err
	}
	for _, id := range reg.IDs() {
		reg.EvictSink(id)
	}
	return nil
}
