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
	"testing"

	"appenderator/internal/index"
)

func TestFireHydrant_RowCountAndBytesBeforeSwap(t *testing.T) {
	idx := index.NewMemIndex(0)
	h := NewFireHydrant(0, idx)
	if h.HasSwapped() {
		t.Fatalf("expected fresh hydrant to not be swapped")
	}
	if err := idx.Add(index.Row(`{"a":1}`)); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if h.RowCount() != 1 {
		t.Fatalf("expected row count 1, got %d", h.RowCount())
	}
	if h.BytesInMemory() <= 0 {
		t.Fatalf("expected positive in-memory footprint before swap")
	}
	if h.SegmentDir() != "" {
		t.Fatalf("expected empty segment dir before swap")
	}
}

func TestFireHydrant_SwapSegmentIsIdempotent(t *testing.T) {
	idx := index.NewMemIndex(0)
	_ = idx.Add(index.Row(`{}`))
	h := NewFireHydrant(0, idx)

	n, already := h.swapSegment("/tmp/seg", 1)
	if already {
		t.Fatalf("expected first swap to not report already-swapped")
	}
	if n != 1 {
		t.Fatalf("expected 1 row persisted, got %d", n)
	}
	if !h.HasSwapped() {
		t.Fatalf("expected HasSwapped true after swap")
	}
	if h.BytesInMemory() != 0 {
		t.Fatalf("expected 0 bytes in memory after swap, got %d", h.BytesInMemory())
	}
	if h.Index() != nil {
		t.Fatalf("expected Index() to be nil after swap")
	}
	if h.RowCount() != 1 {
		t.Fatalf("expected row count to survive swap, got %d", h.RowCount())
	}

	n2, already2 := h.swapSegment("/tmp/other", 99)
	if !already2 {
		t.Fatalf("expected second swap to report already-swapped")
	}
	if n2 != 0 {
		t.Fatalf("expected 0 rows reported on repeat swap, got %d", n2)
	}
	if h.SegmentDir() != "/tmp/seg" {
		t.Fatalf("expected segment dir unchanged by repeat swap, got %q", h.SegmentDir())
	}
}

func TestFireHydrant_ReleaseSegmentClearsDir(t *testing.T) {
	idx := index.NewMemIndex(0)
	h := NewFireHydrant(0, idx)
	h.swapSegment("/tmp/seg", 0)
	h.releaseSegment()
	if h.SegmentDir() != "" {
		t.Fatalf("expected segment dir cleared after release, got %q", h.SegmentDir())
	}
}

func TestFireHydrant_WithLockedIndexFailsAfterSwap(t *testing.T) {
	idx := index.NewMemIndex(0)
	h := NewFireHydrant(0, idx)
	h.swapSegment("/tmp/seg", 0)

	err := h.withLockedIndex(func(idx index.Adder) error { return nil })
	if err == nil {
		t.Fatalf("expected error writing to a swapped hydrant's index")
	}
}
