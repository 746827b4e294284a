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

	"appenderator/internal/index"
	"appenderator/pkg/segment"
)

// Schema is the shared, read-only description of a segment's row shape.
// The appenderator core never interprets it; it exists so callers can
// validate that an identifier's dataSource matches the expected schema
// (spec §4.7 add validation).
type Schema struct {
	DataSource string
}

// Sink owns a (possibly empty) ordered sequence of FireHydrants. Exactly
// the last hydrant, if the sink is writable, is the current one and
// accepts rows; all earlier hydrants are frozen (spec §3).
type Sink struct {
	mu sync.Mutex

	identifier   segment.Identifier
	schema       *Schema
	writable     bool
	hydrants     []*FireHydrant
	newIndex     func() index.Adder
	nextSequence int
}

// newSink creates an empty, writable sink with one fresh current hydrant.
func newSink(id segment.Identifier, schema *Schema, newIndex func() index.Adder) *Sink {
	s := &Sink{
		identifier: id,
		schema:     schema,
		writable:   true,
		newIndex:   newIndex,
	}
	s.appendHydrant()
	return s
}

func (s *Sink) appendHydrant() *FireHydrant {
	h := NewFireHydrant(s.nextSequence, s.newIndex())
	s.nextSequence++
	s.hydrants = append(s.hydrants, h)
	return h
}

// Identifier returns the segment identifier this sink represents.
func (s *Sink) Identifier() segment.Identifier { return s.identifier }

// Writable reports whether this sink currently accepts rows.
func (s *Sink) Writable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writable
}

// MakeImmutable marks the sink as no longer writable without touching its
// hydrants. Used when reconstructing a sink from disk for push (spec
// §4.4: "wrap them in a non-writable Sink").
func (s *Sink) MakeImmutable() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writable = false
}

// Hydrants returns a snapshot of the sink's hydrants in insertion order.
func (s *Sink) Hydrants() []*FireHydrant {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*FireHydrant, len(s.hydrants))
	copy(out, s.hydrants)
	return out
}

func (s *Sink) currentHydrantLocked() *FireHydrant {
	if len(s.hydrants) == 0 {
		return nil
	}
	return s.hydrants[len(s.hydrants)-1]
}

// CanAppendRow reports whether the sink's current hydrant can accept
// another row.
func (s *Sink) CanAppendRow() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.writable {
		return false
	}
	cur := s.currentHydrantLocked()
	if cur == nil {
		return false
	}
	idx := cur.Index()
	return idx != nil && idx.CanAppendRow()
}

// Add routes row to the sink's current hydrant, returning the number of
// bytes it added to that hydrant's in-memory footprint (used by the
// memory accountant to charge bytesInMemory).
func (s *Sink) Add(row index.Row) (bytesDelta int64, err error) {
	s.mu.Lock()
	cur := s.currentHydrantLocked()
	s.mu.Unlock()

	if !s.Writable() || cur == nil {
		return 0, errSegmentNotWritable
	}

	before := cur.BytesInMemory()
	err = cur.withLockedIndex(func(idx index.Adder) error {
		return idx.Add(row)
	})
	if err != nil {
		return 0, err
	}
	after := cur.BytesInMemory()
	return after - before, nil
}

// Swappable reports whether the current hydrant holds at least one row
// and persisting would free memory (spec §3).
func (s *Sink) Swappable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.writable {
		return false
	}
	cur := s.currentHydrantLocked()
	return cur != nil && cur.RowCount() >= 1
}

// Swap freezes the current hydrant and creates a new empty one, returning
// the newly-frozen hydrant.
func (s *Sink) Swap() *FireHydrant {
	s.mu.Lock()
	defer s.mu.Unlock()
	frozen := s.currentHydrantLocked()
	s.appendHydrant()
	return frozen
}

// FrozenHydrants returns every hydrant except the current one if the sink
// is writable (all hydrants if the sink has been made immutable).
func (s *Sink) FrozenHydrants() []*FireHydrant {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.hydrants) == 0 {
		return nil
	}
	end := len(s.hydrants)
	if s.writable {
		end--
	}
	out := make([]*FireHydrant, end)
	copy(out, s.hydrants[:end])
	return out
}

// BytesInMemory sums the in-memory footprint of every hydrant that has not
// yet swapped to disk (spec §3 invariant 4).
func (s *Sink) BytesInMemory() int64 {
	var total int64
	for _, h := range s.Hydrants() {
		total += h.BytesInMemory()
	}
	return total
}

// NumRowsInMemory sums the row counts of every hydrant not yet swapped.
func (s *Sink) NumRowsInMemory() int64 {
	var total int64
	for _, h := range s.Hydrants() {
		if !h.HasSwapped() {
			total += h.RowCount()
		}
	}
	return total
}

// AllSwapped reports whether every hydrant owned by this sink has been
// persisted to disk, the precondition mergeAndPush checks before merging
// (spec §4.4).
func (s *Sink) AllSwapped() bool {
	for _, h := range s.Hydrants() {
		if !h.HasSwapped() {
			return false
		}
	}
	return true
}
