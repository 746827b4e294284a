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
	"sync"
	"time"

	"appenderator/internal/accounting"
)

// memoryAccountant is the appenderator's memory accounting and admission
// controller (component C2). It wraps an accounting.Accountant with the
// four persist triggers and the nextFlush deadline (spec §4.2).
type memoryAccountant struct {
	mu sync.Mutex

	accounts *accounting.Accountant

	maxRowsInMemory           int64
	maxBytesInMemory          int64
	intermediatePersistPeriod time.Duration
	skipBytesInMemoryOverhead bool
	nextFlush                 time.Time
}

func newMemoryAccountant(accounts *accounting.Accountant, maxRows, maxBytes int64, period time.Duration, skipOverhead bool) *memoryAccountant {
	return &memoryAccountant{
		accounts:                  accounts,
		maxRowsInMemory:           maxRows,
		maxBytesInMemory:          maxBytes,
		intermediatePersistPeriod: period,
		skipBytesInMemoryOverhead: skipOverhead,
		nextFlush:                 time.Now().Add(period),
	}
}

// triggerReason names which of the four persist triggers fired, for
// observability (spec §4.2: "records reason strings for observability").
type triggerReason string

const (
	triggerNone         triggerReason = ""
	triggerCannotAppend triggerReason = "sink cannot append another row"
	triggerWallClock    triggerReason = "intermediatePersistPeriod elapsed"
	triggerMaxRows      triggerReason = "maxRowsInMemory reached"
	triggerMaxBytes     triggerReason = "maxBytesInMemory reached"
)

// checkTriggers evaluates the four persist triggers in the order spec
// §4.2 lists them. canAppendRow reports whether the sink just written to
// can still accept another row.
func (m *memoryAccountant) checkTriggers(canAppendRow bool) triggerReason {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !canAppendRow {
		return triggerCannotAppend
	}
	if m.intermediatePersistPeriod > 0 && time.Now().After(m.nextFlush) {
		return triggerWallClock
	}
	if m.maxRowsInMemory > 0 && m.accounts.RowsInMemory.Load() >= m.maxRowsInMemory {
		return triggerMaxRows
	}
	if m.maxBytesInMemory > 0 && m.accounts.BytesInMemory.Load() >= m.maxBytesInMemory {
		return triggerMaxBytes
	}
	return triggerNone
}

// resetFlush re-arms the wall-clock trigger after a persist completes.
func (m *memoryAccountant) resetFlush() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextFlush = time.Now().Add(m.intermediatePersistPeriod)
}

// bytesToBePersisted sums the in-memory bytes of every live sink, plus for
// every swappable sink the overhead of its current hydrant, which will
// remain memory-mapped after a persist (spec §4.2).
func (m *memoryAccountant) bytesToBePersisted(sinks []*Sink) int64 {
	est := m.accounts.Estimator()
	var total int64
	for _, s := range sinks {
		total += s.BytesInMemory()
		if s.Swappable() {
			total += est.PerHydrant()
		}
	}
	return total
}

// checkHeapLimit enforces the heap-usage-limit assertion before a persist
// is allowed to proceed (spec §4.2, §7). Returns a non-nil
// *HeapLimitExceededError when the check fails; nil when disabled, or
// when bytesInMemory minus bytesToBePersisted stays within budget.
func (m *memoryAccountant) checkHeapLimit(sinks []*Sink) *HeapLimitExceededError {
	if m.skipBytesInMemoryOverhead {
		return nil
	}
	bytesToBePersisted := m.bytesToBePersisted(sinks)
	bytesInMemory := m.accounts.BytesInMemory.Load()
	if bytesInMemory-bytesToBePersisted <= m.maxBytesInMemory {
		return nil
	}

	var hydrantCount int
	var totalRows int64
	for _, s := range sinks {
		hydrantCount += len(s.Hydrants())
	}
	totalRows = m.accounts.TotalRows.Load()

	return &HeapLimitExceededError{
		SinkCount:          len(sinks),
		HydrantCount:       hydrantCount,
		TotalRows:          totalRows,
		BytesInMemory:      bytesInMemory,
		BytesToBePersisted: bytesToBePersisted,
		MaxBytesInMemory:   m.maxBytesInMemory,
	}
}
