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

import "sync"

// SinkMetadata is retained even after its Sink has been evicted from RAM
// (spec §3). previousHydrantCount must survive eviction since it is the
// only record of how many hydrant spill subdirectories already exist on
// disk for a sink across reincarnations (spec §9 "Monotonic hydrant
// numbering across reincarnations").
type SinkMetadata struct {
	mu sync.Mutex

	numRowsInSegment     int64
	numHydrants          int
	previousHydrantCount int
}

// NumRowsInSegment returns the cumulative rows ever added to this segment.
func (m *SinkMetadata) NumRowsInSegment() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.numRowsInSegment
}

// AddRows increments the cumulative row count.
func (m *SinkMetadata) AddRows(n int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.numRowsInSegment += n
}

// NumHydrants returns the count of hydrants expected on disk.
func (m *SinkMetadata) NumHydrants() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.numHydrants
}

// AddHydrants bumps the expected on-disk hydrant count by n (spec §4.3
// step 3, "Bump the sink's metadata numHydrants by the number of hydrants
// added in this call").
func (m *SinkMetadata) AddHydrants(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.numHydrants += n
}

// NextHydrantNumber returns the next spill subdirectory name to use and
// advances the monotonic counter. It must be used instead of
// len(hydrants) since a sink's in-memory hydrant slice is reset across
// reincarnations but this counter is not (spec §9).
func (m *SinkMetadata) NextHydrantNumber() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := m.previousHydrantCount
	m.previousHydrantCount++
	return n
}

// PreviousHydrantCount reports the monotonic counter's current value
// without advancing it.
func (m *SinkMetadata) PreviousHydrantCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.previousHydrantCount
}
