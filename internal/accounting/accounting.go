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

// Package accounting tracks the appenderator's rowsInMemory, bytesInMemory
// and totalRows counters (spec §3 invariant 4, §4.2, §5). bytesInMemory is
// updated on every row add from the producer thread and subtracted in bulk
// from the persist thread on completion, so it is the hottest counter in
// the system; it is striped across cache-line-padded shards the same way
// the VSA accumulator striped its volatile vector to collapse contention,
// rather than behind a single atomic.Int64.
package accounting

import (
	"runtime"
	"sync/atomic"
)

const padSize = 128 - 8

// stripe is a single cache-line-padded atomic counter shard.
type stripe struct {
	val atomic.Int64
	_   [padSize]byte
}

// Counter is a striped, monotonically-adjustable int64 accumulator. Unlike
// the VSA it is adapted from, it has no scalar/gate/commit semantics: the
// appenderator never denies a row, it only decides when to persist, so the
// only operations needed are Add (a negative delta subtracts) and Load.
type Counter struct {
	stripes []stripe
	mask    int
	chooser atomic.Uint64
}

// NewCounter creates a counter striped across nextPow2(clamp(GOMAXPROCS,
// [8,64])) shards, the same default the VSA accumulator used.
func NewCounter() *Counter {
	p := runtime.GOMAXPROCS(0)
	n := nextPow2(clamp(p, 8, 64))
	return &Counter{stripes: make([]stripe, n), mask: n - 1}
}

// Add adds delta (which may be negative) to a stripe chosen round-robin
// by an atomic call counter.
func (c *Counter) Add(delta int64) {
	idx := int(c.chooser.Add(1)) & c.mask
	c.stripes[idx].val.Add(delta)
}

// Load returns the current sum across all stripes. Like the VSA's
// currentVector, this is an exact but not momentarily-atomic snapshot: it
// can race with concurrent Add calls from the other thread touching these
// counters (spec §5 permits this — only atomicity of individual adds is
// required, not snapshot consistency).
func (c *Counter) Load() int64 {
	var sum int64
	for i := range c.stripes {
		sum += c.stripes[i].val.Load()
	}
	return sum
}

func nextPow2(x int) int {
	if x <= 1 {
		return 1
	}
	x--
	x |= x >> 1
	x |= x >> 2
	x |= x >> 4
	x |= x >> 8
	x |= x >> 16
	x |= x >> 32
	return x + 1
}

func clamp(x, lo, hi int) int {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

// Overhead estimate constants from spec §4.2.
const (
	RoughOverheadPerSink    int64 = 5000
	RoughOverheadPerHydrant int64 = 1000
	HydrantHeaderOverhead   int64 = 16
)

// Estimator computes the per-sink and per-hydrant memory overhead used by
// the heap-limit check. When SkipOverheadCheck is set (spec: "Overhead
// checking may be disabled by configuration"), both estimators return
// zero.
type Estimator struct {
	SkipOverheadCheck bool
}

// PerSink returns the overhead charged for one live sink (charged once, at
// creation — spec §4.1 "charges its empty-sink overhead to C2").
func (e Estimator) PerSink() int64 {
	if e.SkipOverheadCheck {
		return 0
	}
	return RoughOverheadPerSink
}

// PerHydrant returns the overhead charged for one memory-mapped (swapped)
// hydrant that remains resident after persist.
func (e Estimator) PerHydrant() int64 {
	if e.SkipOverheadCheck {
		return 0
	}
	return RoughOverheadPerHydrant + HydrantHeaderOverhead
}

// Accountant holds the appenderator's memory accounting counters
// (component C2): rowsInMemory, bytesInMemory and totalRows, plus the
// overhead Estimator. The four persist triggers from spec §4.2 are
// evaluated by the appenderator package's memoryAccountant, not here.
type Accountant struct {
	RowsInMemory  *Counter
	BytesInMemory *Counter
	TotalRows     *Counter

	estimator Estimator
}

// NewAccountant constructs an Accountant. skipOverheadCheck mirrors the
// skipBytesInMemoryOverheadCheck configuration option.
func NewAccountant(skipOverheadCheck bool) *Accountant {
	return &Accountant{
		RowsInMemory:  NewCounter(),
		BytesInMemory: NewCounter(),
		TotalRows:     NewCounter(),
		estimator:     Estimator{SkipOverheadCheck: skipOverheadCheck},
	}
}

// Estimator exposes the overhead estimator so callers can compute
// bytesToBePersisted (spec §4.2) without duplicating the skip-check logic.
func (a *Accountant) Estimator() Estimator { return a.estimator }
