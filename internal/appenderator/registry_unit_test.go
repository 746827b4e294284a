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
	"errors"
	"testing"

	"appenderator/internal/accounting"
	"appenderator/internal/announcer"
	"appenderator/pkg/segment"
)

type countingAnnouncer struct {
	calls int
	err   error
}

func (a *countingAnnouncer) Announce(ctx context.Context, id segment.Identifier) error {
	a.calls++
	return a.err
}

func TestRegistry_GetOrCreateReturnsSameSinkOnSecondCall(t *testing.T) {
	accounts := accounting.NewAccountant(false)
	reg := NewRegistry(&Schema{}, newTestIndex, accounts, announcer.NoopAnnouncer{})

	id := testSinkIdentifier()
	s1 := reg.GetOrCreate(context.Background(), id)
	s2 := reg.GetOrCreate(context.Background(), id)
	if s1 != s2 {
		t.Fatalf("expected GetOrCreate to return the same sink on repeat calls")
	}
	if reg.Len() != 1 {
		t.Fatalf("expected 1 registered sink, got %d", reg.Len())
	}
}

func TestRegistry_GetOrCreateChargesPerSinkOverheadOnlyOnce(t *testing.T) {
	accounts := accounting.NewAccountant(false)
	reg := NewRegistry(&Schema{}, newTestIndex, accounts, announcer.NoopAnnouncer{})

	id := testSinkIdentifier()
	reg.GetOrCreate(context.Background(), id)
	reg.GetOrCreate(context.Background(), id)

	want := accounts.Estimator().PerSink()
	if got := accounts.BytesInMemory.Load(); got != want {
		t.Fatalf("expected per-sink overhead charged exactly once (%d), got %d", want, got)
	}
}

func TestRegistry_GetOrCreateAnnouncesOnlyOnCreation(t *testing.T) {
	accounts := accounting.NewAccountant(false)
	ann := &countingAnnouncer{}
	reg := NewRegistry(&Schema{}, newTestIndex, accounts, ann)

	id := testSinkIdentifier()
	reg.GetOrCreate(context.Background(), id)
	reg.GetOrCreate(context.Background(), id)
	if ann.calls != 1 {
		t.Fatalf("expected exactly 1 announce call, got %d", ann.calls)
	}
}

func TestRegistry_GetOrCreateSurvivesAnnounceFailure(t *testing.T) {
	accounts := accounting.NewAccountant(false)
	ann := &countingAnnouncer{err: errors.New("broker down")}
	reg := NewRegistry(&Schema{}, newTestIndex, accounts, ann)

	id := testSinkIdentifier()
	sink := reg.GetOrCreate(context.Background(), id)
	if sink == nil {
		t.Fatalf("expected sink to still be registered despite announce failure")
	}
	if reg.Get(id) == nil {
		t.Fatalf("expected Get to find the sink after a non-fatal announce failure")
	}
}

func TestRegistry_GetReturnsNilForUnknownIdentifier(t *testing.T) {
	accounts := accounting.NewAccountant(false)
	reg := NewRegistry(&Schema{}, newTestIndex, accounts, announcer.NoopAnnouncer{})
	if reg.Get(testSinkIdentifier()) != nil {
		t.Fatalf("expected nil for an identifier that was never created")
	}
}

func TestRegistry_MetadataSurvivesEvictSink(t *testing.T) {
	accounts := accounting.NewAccountant(false)
	reg := NewRegistry(&Schema{}, newTestIndex, accounts, announcer.NoopAnnouncer{})

	id := testSinkIdentifier()
	reg.GetOrCreate(context.Background(), id)
	md := reg.MetadataFor(id)
	md.AddHydrants(3)

	reg.EvictSink(id)
	if reg.Get(id) != nil {
		t.Fatalf("expected sink to be gone after EvictSink")
	}

	survived := reg.MetadataFor(id)
	if survived.NumHydrants() != 3 {
		t.Fatalf("expected metadata's numHydrants to survive sink eviction, got %d", survived.NumHydrants())
	}
}

func TestRegistry_DeleteRemovesMetadataToo(t *testing.T) {
	accounts := accounting.NewAccountant(false)
	reg := NewRegistry(&Schema{}, newTestIndex, accounts, announcer.NoopAnnouncer{})

	id := testSinkIdentifier()
	reg.GetOrCreate(context.Background(), id)
	reg.MetadataFor(id).AddHydrants(3)

	reg.Delete(id)
	if reg.Get(id) != nil {
		t.Fatalf("expected sink to be gone after Delete")
	}
	if got := reg.MetadataFor(id).NumHydrants(); got != 0 {
		t.Fatalf("expected Delete to drop metadata too, got numHydrants=%d", got)
	}
}

func TestRegistry_EvictSinkThenGetOrCreateResurrectsWithSameMetadata(t *testing.T) {
	accounts := accounting.NewAccountant(false)
	reg := NewRegistry(&Schema{}, newTestIndex, accounts, announcer.NoopAnnouncer{})

	id := testSinkIdentifier()
	reg.GetOrCreate(context.Background(), id)
	md := reg.MetadataFor(id)
	md.NextHydrantNumber()
	md.NextHydrantNumber()

	reg.EvictSink(id)
	reg.GetOrCreate(context.Background(), id)

	if got := reg.MetadataFor(id).PreviousHydrantCount(); got != 2 {
		t.Fatalf("expected resurrected sink to keep the monotonic hydrant counter at 2, got %d", got)
	}
}

func TestRegistry_ForEachVisitsOnlyLiveSinks(t *testing.T) {
	accounts := accounting.NewAccountant(false)
	reg := NewRegistry(&Schema{}, newTestIndex, accounts, announcer.NoopAnnouncer{})

	idA := testSinkIdentifier()
	idB := idA
	idB.Shard.Partition = 1
	reg.GetOrCreate(context.Background(), idA)
	reg.GetOrCreate(context.Background(), idB)

	// A metadata-only placeholder (evicted sink, or metadata touched via
	// MetadataFor before any GetOrCreate) has no live sink; ForEach must
	// skip it rather than hand callers a nil *Sink to dereference.
	idC := idA
	idC.Shard.Partition = 2
	reg.MetadataFor(idC)
	reg.EvictSink(idB)

	visited := map[segment.Identifier]bool{}
	reg.ForEach(func(id segment.Identifier, s *Sink) {
		if s == nil {
			t.Fatalf("ForEach must never hand a nil sink to its callback")
		}
		visited[id] = true
	})
	if len(visited) != 1 || !visited[idA] {
		t.Fatalf("expected only idA visited, got %v", visited)
	}
}

func TestRegistry_IDsIncludesEveryRegisteredIdentifier(t *testing.T) {
	accounts := accounting.NewAccountant(false)
	reg := NewRegistry(&Schema{}, newTestIndex, accounts, announcer.NoopAnnouncer{})

	id := testSinkIdentifier()
	reg.GetOrCreate(context.Background(), id)
	ids := reg.IDs()
	if len(ids) != 1 || !ids[0].Equal(id) {
		t.Fatalf("expected IDs() == [%v], got %v", id, ids)
	}
}
