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
	"encoding/json"
	"fmt"
	"os"
	"time"

	"appenderator/internal/appenderator/dirlock"
	"appenderator/internal/appenderator/metrics"
	"appenderator/internal/applog"
	"appenderator/internal/deepstorage"
	"appenderator/internal/index"
	"appenderator/pkg/segment"
)

// mergeEngine implements component C4: it reloads spilled hydrants from
// disk, merges them into one queryable index, uploads the result, and
// cleans up the sink's persist directory.
type mergeEngine struct {
	layout dirlock.Layout
	merger index.Merger
	pusher deepstorage.Pusher
	log    *applog.Logger
}

// reloadedSink reconstructs a non-writable Sink plus its expected
// numHydrants from disk, the counterpart of the source's
// getIdentifierAndSinkForPersistedFile (spec §4.4 step 3).
func (m *mergeEngine) reloadedSink(sinkDir string) (segment.Identifier, *Sink, int, error) {
	idPath := sinkDir + "/identifier.json"
	raw, err := os.ReadFile(idPath)
	if err != nil {
		return segment.Identifier{}, nil, 0, fmt.Errorf("reload sink: read identifier.json: %w", err)
	}
	id, err := segment.UnmarshalIdentifier(raw)
	if err != nil {
		return segment.Identifier{}, nil, 0, fmt.Errorf("reload sink: %w", err)
	}

	dirs, nums, err := dirlock.ListHydrantDirs(sinkDir)
	if err != nil {
		return segment.Identifier{}, nil, 0, fmt.Errorf("reload sink: list hydrant dirs: %w", err)
	}
	for i, n := range nums {
		if n != i {
			return segment.Identifier{}, nil, 0, &SanityError{Identifier: id, Reason: fmt.Sprintf("non-contiguous spill numbering: expected %d, found %d", i, n)}
		}
	}

	s := newSink(id, nil, func() index.Adder { return index.NewMemIndex(0) })
	s.hydrants = s.hydrants[:0]
	for i, dir := range dirs {
		h := NewFireHydrant(i, nil)
		rows, err := countRows(dir)
		if err != nil {
			return segment.Identifier{}, nil, 0, fmt.Errorf("reload sink: count rows in %s: %w", dir, err)
		}
		h.swapSegment(dir, rows)
		s.hydrants = append(s.hydrants, h)
	}
	s.MakeImmutable()
	return id, s, len(dirs), nil
}

func countRows(dir string) (int64, error) {
	rows, err := index.ReadAllRows(dir + "/data.jsonl")
	if err != nil {
		return 0, err
	}
	return int64(len(rows)), nil
}

// push implements C7's public push operation: it persists and clears
// everything first, waits on an empty task so earlier push work has
// drained, then, for each sink directory under the base persist
// directory, reloads the sink on the calling goroutine and submits one
// mergeAndPush task to the push executor, waiting for it before the next
// (spec §4.4 steps 1-4). identifiers, when non-empty, restricts which
// sink directories are processed.
func (a *Appenderator) push(ctx context.Context, identifiers []segment.Identifier, useUniquePath bool) ([]segment.Descriptor, error) {
	if err := a.persistEngine.persistAllAndClear(a.registry); err != nil {
		return nil, fmt.Errorf("push: %w", err)
	}

	fut := a.executors.push.Submit(func(ctx context.Context) {})
	fut.Wait()

	wanted := make(map[string]bool, len(identifiers))
	for _, id := range identifiers {
		wanted[id.DirName()] = true
	}

	sinkDirs, err := a.layout.ListSinkDirs()
	if err != nil {
		return nil, fmt.Errorf("push: list sink dirs: %w", err)
	}

	var descriptors []segment.Descriptor
	var firstErr error
	for _, dir := range sinkDirs {
		dirName := baseName(dir)
		if len(wanted) > 0 && !wanted[dirName] {
			continue
		}
		id, sink, expectedHydrants, err := a.mergeEngine.reloadedSink(dir)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}

		pushFut := a.executors.push.Submit(func(ctx context.Context) {
			desc, err := a.mergeEngine.mergeAndPush(ctx, a.registry, id, sink, expectedHydrants, useUniquePath)
			if err != nil {
				a.log.Error("mergeAndPush failed for %s: %v", id, err)
				return
			}
			if desc != nil {
				descriptors = append(descriptors, *desc)
			}
		})
		pushFut.Wait()
	}

	if firstErr != nil {
		return descriptors, firstErr
	}
	return descriptors, nil
}

func baseName(path string) string {
	i := len(path) - 1
	for i >= 0 && path[i] != '/' {
		i--
	}
	return path[i+1:]
}

// mergeAndPush runs only on the push executor, per spec §4.4. It performs
// the sanity checks, the idempotent descriptor.json short-circuit, the
// merge, the retried upload, and the directory cleanup.
func (m *mergeEngine) mergeAndPush(ctx context.Context, reg *Registry, id segment.Identifier, sink *Sink, expectedHydrants int, useUniquePath bool) (desc *segment.Descriptor, err error) {
	start := time.Now()
	defer func() { metrics.ObservePushDuration(time.Since(start)) }()
	defer func() {
		if err != nil {
			metrics.FailedHandoffsTotal.Inc()
		}
	}()

	if sink.Writable() {
		return nil, &SanityError{Identifier: id, Reason: "sink is writable at merge time"}
	}
	if !sink.AllSwapped() {
		return nil, &SanityError{Identifier: id, Reason: "not every hydrant has been swapped to disk"}
	}
	hydrants := sink.Hydrants()
	if len(hydrants) != expectedHydrants {
		return nil, &SanityError{Identifier: id, Reason: fmt.Sprintf("hydrant count mismatch: have %d, metadata expects %d", len(hydrants), expectedHydrants)}
	}
	if md := reg.MetadataFor(id); md.NumHydrants() != 0 && md.NumHydrants() != len(hydrants) {
		return nil, &SanityError{Identifier: id, Reason: fmt.Sprintf("hydrant count mismatch: sink has %d, metadata numHydrants is %d", len(hydrants), md.NumHydrants())}
	}

	sinkDir := m.layout.SinkDir(id)
	descPath := m.layout.DescriptorFile(id)
	if raw, statErr := os.ReadFile(descPath); statErr == nil {
		if !useUniquePath {
			var existing segment.Descriptor
			if jerr := json.Unmarshal(raw, &existing); jerr == nil {
				return &existing, nil
			}
		}
	}

	mergedDir := m.layout.MergedDir(id)
	if err := os.RemoveAll(mergedDir); err != nil {
		return nil, fmt.Errorf("mergeAndPush: clear stale merged dir: %w", err)
	}

	var spillDirs []string
	var totalRows int64
	for _, h := range hydrants {
		spillDirs = append(spillDirs, h.SegmentDir())
		totalRows += h.RowCount()
	}

	mergedRows, err := m.merger.Merge(ctx, spillDirs, mergedDir)
	if err != nil {
		return nil, fmt.Errorf("mergeAndPush: merge: %w", err)
	}

	var pushed segment.Descriptor
	var pushErr error
	for attempt := 0; attempt < 5; attempt++ {
		pushed, pushErr = m.pusher.Push(ctx, mergedDir, id, mergedRows, useUniquePath)
		if pushErr == nil {
			break
		}
		m.log.Warn("deep storage push attempt %d/5 failed for %s: %v", attempt+1, id, pushErr)
	}
	if pushErr != nil {
		return nil, fmt.Errorf("mergeAndPush: push failed after 5 attempts: %w", pushErr)
	}

	descJSON, err := json.MarshalIndent(pushed, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("mergeAndPush: marshal descriptor: %w", err)
	}
	if err := os.WriteFile(descPath, descJSON, 0o644); err != nil {
		return nil, fmt.Errorf("mergeAndPush: write descriptor.json: %w", err)
	}

	for _, h := range hydrants {
		h.releaseSegment()
	}

	if err := os.RemoveAll(sinkDir); err != nil {
		return nil, fmt.Errorf("mergeAndPush: remove sink dir: %w", err)
	}

	metrics.HandoffsTotal.Inc()
	return &pushed, nil
}
