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
	"sync"
	"sync/atomic"
	"time"

	"appenderator/internal/accounting"
	"appenderator/internal/announcer"
	"appenderator/internal/index"
	"appenderator/pkg/segment"
)

// managedSink pairs a live Sink with the SinkMetadata that survives its
// eviction, plus a lastAccessed timestamp for diagnostics. Mirrors the
// teacher's managedVSA wrapper around a VSA instance. sink is nil once
// EvictSink has run; the metadata entry stays reachable so a later
// GetOrCreate for the same identifier can resurrect it without losing
// previousHydrantCount.
type managedSink struct {
	sink         atomic.Pointer[Sink]
	metadata     *SinkMetadata
	lastAccessed int64 // UnixNano, atomic
}

// Registry maps segment identifiers to live Sinks (C1). Metadata for a
// sink persists in the registry even after the sink itself has been
// evicted from memory by persistAllAndClear or a clear, so NextHydrantNumber stays monotonic
// across reincarnations (spec §3, §9).
type Registry struct {
	sinks sync.Map // segment.Identifier -> *managedSink

	schema   *Schema
	newIndex func() index.Adder
	accounts *accounting.Accountant
	announce announcer.Announcer
}

// NewRegistry constructs an empty Registry. announce may be
// announcer.NoopAnnouncer{} when no external coordination is wired.
func NewRegistry(schema *Schema, newIndex func() index.Adder, accounts *accounting.Accountant, announce announcer.Announcer) *Registry {
	if announce == nil {
		announce = announcer.NoopAnnouncer{}
	}
	return &Registry{schema: schema, newIndex: newIndex, accounts: accounts, announce: announce}
}

// GetOrCreate returns the live Sink for id, creating it (and its
// SinkMetadata, on first creation only) if absent. Creation charges the
// memory accountant for the sink's fixed overhead and announces the new
// segment; announce failures are logged but non-fatal (spec §4.1).
//
// The fast path (existing sink) never allocates, matching the teacher's
// Store.GetOrCreate optimization: a plain Load first, and only on a miss
// do we build a new sink and metadata and attempt to publish it.
func (r *Registry) GetOrCreate(ctx context.Context, id segment.Identifier) *Sink {
	if actual, ok := r.sinks.Load(id); ok {
		m := actual.(*managedSink)
		atomic.StoreInt64(&m.lastAccessed, time.Now().UnixNano())
		if s := m.sink.Load(); s != nil {
			return s
		}
		// Metadata survived a prior eviction (spec §9 reincarnation);
		// resurrect the sink but keep the same metadata/counter.
		s := newSink(id, r.schema, r.newIndex)
		if m.sink.CompareAndSwap(nil, s) {
			return s
		}
		return m.sink.Load()
	}

	now := time.Now().UnixNano()
	newManaged := &managedSink{
		metadata:     &SinkMetadata{},
		lastAccessed: now,
	}
	newManaged.sink.Store(newSink(id, r.schema, r.newIndex))

	if actual, loaded := r.sinks.LoadOrStore(id, newManaged); loaded {
		m := actual.(*managedSink)
		atomic.StoreInt64(&m.lastAccessed, now)
		if s := m.sink.Load(); s != nil {
			return s
		}
		s := newSink(id, r.schema, r.newIndex)
		if m.sink.CompareAndSwap(nil, s) {
			return s
		}
		return m.sink.Load()
	}

	if r.accounts != nil {
		r.accounts.BytesInMemory.Add(r.accounts.Estimator().PerSink())
	}
	if err := r.announce.Announce(ctx, id); err != nil {
		applogDefault.Warn("announce failed for new segment %s: %v", id, err)
	}
	return newManaged.sink.Load()
}

// Get returns the live Sink for id, or nil if none is registered or the
// sink has been evicted from RAM (a metadata-only placeholder remains).
func (r *Registry) Get(id segment.Identifier) *Sink {
	actual, ok := r.sinks.Load(id)
	if !ok {
		return nil
	}
	m := actual.(*managedSink)
	atomic.StoreInt64(&m.lastAccessed, time.Now().UnixNano())
	return m.sink.Load()
}

// MetadataFor returns the SinkMetadata for id, allocating an empty one if
// the identifier has never been seen. Metadata is looked up independently
// of the live sink so it is still reachable after EvictSink evicts the
// sink (spec §3 "sink eviction without metadata eviction").
func (r *Registry) MetadataFor(id segment.Identifier) *SinkMetadata {
	if actual, ok := r.sinks.Load(id); ok {
		return actual.(*managedSink).metadata
	}
	// No entry at all: create a metadata-only placeholder that a future
	// GetOrCreate will adopt via LoadOrStore's loaded branch.
	placeholder := &managedSink{metadata: &SinkMetadata{}, lastAccessed: time.Now().UnixNano()}
	actual, _ := r.sinks.LoadOrStore(id, placeholder)
	return actual.(*managedSink).metadata
}

// EvictSink clears id's live Sink from RAM while leaving its SinkMetadata
// in place, so previousHydrantCount keeps naming spill directories
// monotonically across reincarnations (spec §3 invariant 1, §9 "Monotonic
// hydrant numbering across reincarnations"). Used by persistAllAndClear
// and Clear/Close, none of which remove on-disk data. The sink's memory
// accounting contribution should be released by the caller first.
func (r *Registry) EvictSink(id segment.Identifier) {
	if actual, ok := r.sinks.Load(id); ok {
		actual.(*managedSink).sink.Store(nil)
	}
}

// Delete removes both id's live Sink and its SinkMetadata entirely (spec
// §3 "drop(identifier) removes both live Sink and metadata"). Used only
// by Drop, which also removes the identifier's on-disk state.
func (r *Registry) Delete(id segment.Identifier) {
	r.sinks.Delete(id)
}

// IDs returns every segment identifier with a live (in-RAM) Sink, in no
// particular order. Identifiers whose sink has been evicted but whose
// metadata-only placeholder remains are not included.
func (r *Registry) IDs() []segment.Identifier {
	var out []segment.Identifier
	r.sinks.Range(func(key, value any) bool {
		if value.(*managedSink).sink.Load() != nil {
			out = append(out, key.(segment.Identifier))
		}
		return true
	})
	return out
}

// ForEach iterates every (identifier, sink) pair with a live sink.
// Iteration order is unspecified, matching sync.Map.Range.
func (r *Registry) ForEach(f func(id segment.Identifier, s *Sink)) {
	r.sinks.Range(func(key, value any) bool {
		m := value.(*managedSink)
		if s := m.sink.Load(); s != nil {
			f(key.(segment.Identifier), s)
		}
		return true
	})
}

// Len reports the number of sinks currently registered with a live sink.
func (r *Registry) Len() int {
	n := 0
	r.sinks.Range(func(_, value any) bool {
		if value.(*managedSink).sink.Load() != nil {
			n++
		}
		return true
	})
	return n
}
