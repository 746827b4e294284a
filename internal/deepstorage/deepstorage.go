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

// Package deepstorage implements the external "push(file, descriptor,
// unique) -> descriptor" collaborator spec.md places out of scope, plus a
// ReplicaSet that picks which of several deep-storage backends owns a
// given segment via rendezvous hashing — the same pairing of
// cespare/xxhash/v2 and dgryski/go-rendezvous go-redis's Ring client uses
// internally to assign keys to shards without a full remap on membership
// change.
package deepstorage

import (
	"context"
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/dgryski/go-rendezvous"

	"appenderator/pkg/segment"
)

// Pusher uploads a merged segment directory to durable storage and
// returns the descriptor to persist as descriptor.json (spec §4.4, §6).
type Pusher interface {
	Push(ctx context.Context, mergedDir string, id segment.Identifier, numRows int64, useUniquePath bool) (segment.Descriptor, error)
}

// rendezvousHash matches go-redis's Ring client hasher: fold the node
// seed into a 64-bit xxhash of the key so Lookup's winner changes only
// for keys that were already assigned to an added/removed node.
func rendezvousHash(key string, seed uint64) uint64 {
	return xxhash.Sum64String(key) ^ seed
}

// ReplicaSet deterministically assigns each segment identifier to one of
// several named Pushers using rendezvous hashing, so re-running push for
// the same identifier against an unchanged replica set always resolves to
// the same backend (reinforcing the idempotent-repush invariant across
// restarts where the replica list is stable).
type ReplicaSet struct {
	names   *rendezvous.Rendezvous
	pushers map[string]Pusher
}

// NewReplicaSet builds a ReplicaSet from a name->Pusher map. At least one
// entry is required.
func NewReplicaSet(pushers map[string]Pusher) (*ReplicaSet, error) {
	if len(pushers) == 0 {
		return nil, fmt.Errorf("deepstorage: replica set requires at least one pusher")
	}
	names := make([]string, 0, len(pushers))
	for name := range pushers {
		names = append(names, name)
	}
	return &ReplicaSet{
		names:   rendezvous.New(names, rendezvousHash),
		pushers: pushers,
	}, nil
}

// Lookup returns the name of the Pusher that owns id.
func (rs *ReplicaSet) Lookup(id segment.Identifier) string {
	return rs.names.Lookup(id.DirName())
}

// Push routes to the Pusher that owns id under rendezvous hashing.
func (rs *ReplicaSet) Push(ctx context.Context, mergedDir string, id segment.Identifier, numRows int64, useUniquePath bool) (segment.Descriptor, error) {
	name := rs.Lookup(id)
	pusher, ok := rs.pushers[name]
	if !ok {
		return segment.Descriptor{}, fmt.Errorf("deepstorage: no pusher registered for replica %q", name)
	}
	return pusher.Push(ctx, mergedDir, id, numRows, useUniquePath)
}
