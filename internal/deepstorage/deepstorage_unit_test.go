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

package deepstorage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"appenderator/pkg/segment"
)

func testIdentifier(partition int) segment.Identifier {
	return segment.Identifier{
		DataSource: "wikipedia",
		Interval: segment.Interval{
			Start: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
			End:   time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC),
		},
		Version: "2026-01-01T00:00:00.000Z",
		Shard:   segment.ShardSpec{Type: "numbered", Partition: partition},
	}
}

func TestLocalPusher_CopiesTreeAndReturnsDescriptor(t *testing.T) {
	root := t.TempDir()
	mergedDir := filepath.Join(t.TempDir(), "merged")
	if err := os.MkdirAll(mergedDir, 0o755); err != nil {
		t.Fatalf("mkdir mergedDir: %v", err)
	}
	content := []byte(`{"v":1}` + "\n")
	if err := os.WriteFile(filepath.Join(mergedDir, "data.jsonl"), content, 0o644); err != nil {
		t.Fatalf("write data.jsonl: %v", err)
	}

	pusher := LocalPusher{Root: root}
	id := testIdentifier(0)
	desc, err := pusher.Push(context.Background(), mergedDir, id, 1, false)
	if err != nil {
		t.Fatalf("Push: %v", err)
	}
	if desc.NumRows != 1 {
		t.Fatalf("expected NumRows 1, got %d", desc.NumRows)
	}
	if desc.Size != int64(len(content)) {
		t.Fatalf("expected Size %d, got %d", len(content), desc.Size)
	}
	if _, err := os.Stat(filepath.Join(desc.Location, "data.jsonl")); err != nil {
		t.Fatalf("expected pushed file to exist at %s: %v", desc.Location, err)
	}
}

func TestLocalPusher_UniquePathProducesDistinctLocations(t *testing.T) {
	root := t.TempDir()
	mergedDir := filepath.Join(t.TempDir(), "merged")
	if err := os.MkdirAll(mergedDir, 0o755); err != nil {
		t.Fatalf("mkdir mergedDir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(mergedDir, "data.jsonl"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write data.jsonl: %v", err)
	}

	pusher := LocalPusher{Root: root}
	id := testIdentifier(0)
	d1, err := pusher.Push(context.Background(), mergedDir, id, 1, true)
	if err != nil {
		t.Fatalf("Push 1: %v", err)
	}
	d2, err := pusher.Push(context.Background(), mergedDir, id, 1, true)
	if err != nil {
		t.Fatalf("Push 2: %v", err)
	}
	if d1.Location == d2.Location {
		t.Fatalf("expected distinct locations for repeated unique pushes, both got %q", d1.Location)
	}
}

func TestLocalPusher_RespectsCanceledContext(t *testing.T) {
	pusher := LocalPusher{Root: t.TempDir()}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := pusher.Push(ctx, t.TempDir(), testIdentifier(0), 0, false)
	if err == nil {
		t.Fatalf("expected Push to respect a canceled context")
	}
}

type stubPusher struct {
	name   string
	pushed int
}

func (s *stubPusher) Push(ctx context.Context, mergedDir string, id segment.Identifier, numRows int64, useUniquePath bool) (segment.Descriptor, error) {
	s.pushed++
	return segment.Descriptor{Identifier: id, NumRows: numRows, Location: s.name}, nil
}

func TestReplicaSet_RoutesDeterministically(t *testing.T) {
	a := &stubPusher{name: "a"}
	b := &stubPusher{name: "b"}
	rs, err := NewReplicaSet(map[string]Pusher{"a": a, "b": b})
	if err != nil {
		t.Fatalf("NewReplicaSet: %v", err)
	}

	id := testIdentifier(0)
	first := rs.Lookup(id)
	for i := 0; i < 10; i++ {
		if got := rs.Lookup(id); got != first {
			t.Fatalf("expected stable routing for the same identifier, got %q then %q", first, got)
		}
	}

	desc, err := rs.Push(context.Background(), "unused", id, 5, false)
	if err != nil {
		t.Fatalf("Push: %v", err)
	}
	if desc.Location != first {
		t.Fatalf("expected descriptor to come from the resolved pusher %q, got %q", first, desc.Location)
	}
}

func TestReplicaSet_EmptyPushersIsError(t *testing.T) {
	if _, err := NewReplicaSet(nil); err == nil {
		t.Fatalf("expected error constructing a replica set with no pushers")
	}
}

func TestReplicaSet_DistributesAcrossMultipleIdentifiers(t *testing.T) {
	pushers := map[string]Pusher{}
	for i := 0; i < 4; i++ {
		name := fmt.Sprintf("p%d", i)
		pushers[name] = &stubPusher{name: name}
	}
	rs, err := NewReplicaSet(pushers)
	if err != nil {
		t.Fatalf("NewReplicaSet: %v", err)
	}

	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		id := testIdentifier(i)
		seen[rs.Lookup(id)] = true
	}
	if len(seen) < 2 {
		t.Fatalf("expected rendezvous hashing to spread identifiers across more than one backend, saw %v", seen)
	}
}
