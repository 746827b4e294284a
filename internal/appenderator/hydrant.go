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

// Package appenderator implements the batch segment appenderator: the
// memory accounting and admission controller, the persist/merge/push
// state machine, and the executor orchestration described by spec.md.
package appenderator

import (
	"sync"

	"appenderator/internal/index"
)

// FireHydrant is one generation of a sink's index: either an in-memory
// incremental index or, once swapped, a reference to an on-disk queryable
// index (spec §3). Its swap operation is synchronized so persistHydrant
// is idempotent even if called twice concurrently.
type FireHydrant struct {
	mu sync.Mutex

	sequence   int
	idx        index.Adder // nil once swapped
	hasSwapped bool
	segmentDir string // set once swapped; empty before
	rowCount   int64  // valid both before and after swap
}

// NewFireHydrant wraps idx as the sequence-numbered hydrant of a sink.
func NewFireHydrant(sequence int, idx index.Adder) *FireHydrant {
	return &FireHydrant{sequence: sequence, idx: idx}
}

// Sequence returns the hydrant's position within its sink.
func (h *FireHydrant) Sequence() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sequence
}

// HasSwapped reports whether this hydrant's in-memory index has already
// been replaced by a reference to on-disk data.
func (h *FireHydrant) HasSwapped() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.hasSwapped
}

// Index returns the live in-memory index, or nil if this hydrant has
// already swapped.
func (h *FireHydrant) Index() index.Adder {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.idx
}

// RowCount returns the number of rows this hydrant holds, valid whether or
// not it has swapped.
func (h *FireHydrant) RowCount() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.currentRowCount()
}

func (h *FireHydrant) currentRowCount() int64 {
	if h.hasSwapped {
		return h.rowCount
	}
	if h.idx == nil {
		return 0
	}
	return h.idx.Size()
}

// BytesInMemory returns the live index's in-memory footprint, or 0 once
// swapped (its data is owned by the on-disk spill directory, per C6).
func (h *FireHydrant) BytesInMemory() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.hasSwapped || h.idx == nil {
		return 0
	}
	return h.idx.BytesInMemory()
}

// SegmentDir returns the on-disk spill directory once swapped, or "" if
// this hydrant is still memory-resident.
func (h *FireHydrant) SegmentDir() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.segmentDir
}

// withLockedIndex runs fn with the hydrant locked and its live index
// exposed, used by the sink to route Add calls to the current hydrant.
func (h *FireHydrant) withLockedIndex(fn func(idx index.Adder) error) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.hasSwapped || h.idx == nil {
		return errSegmentNotWritable
	}
	return fn(h.idx)
}

// releaseSegment drops this hydrant's reference to its on-disk segment
// after a successful merge (spec §4.4 step "for every hydrant, release
// the mapped segment"). It is a no-op under JSONLPersister/JSONLMerger
// since neither holds long-lived file handles open between calls; it
// exists as the hook a memory-mapped index implementation would use to
// unmap its backing file before the sink directory is removed.
func (h *FireHydrant) releaseSegment() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.segmentDir = ""
}

// swapSegment replaces this hydrant's in-memory index with a reference to
// its on-disk spill directory. It is idempotent: if already swapped it is
// a no-op and reports 0 rows persisted, matching persistHydrant's
// idempotence requirement (spec §4.3).
func (h *FireHydrant) swapSegment(dir string, rowCount int64) (persistedRows int64, alreadySwapped bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.hasSwapped {
		return 0, true
	}
	h.hasSwapped = true
	h.segmentDir = dir
	h.rowCount = rowCount
	h.idx = nil
	return rowCount, false
}
