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

// Package index declares the contract for the in-memory columnar index
// and its persist/merge operations. spec.md places the real implementation
// out of scope ("the in-memory columnar index implementation... the row
// parser and input source"); this package holds only the interfaces the
// appenderator core depends on, plus MemIndex, a minimal concrete
// implementation (JSONL-backed) so the core is testable standalone.
package index

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
)

// Row is one ingested record. Its internal shape is opaque to the
// appenderator core; only its encoded byte length matters for accounting.
type Row = json.RawMessage

// ErrIndexSizeExceeded is returned by Add when the index has reached a
// caller-configured row cap. spec §7: "theoretically unreachable because
// canAppendRow gates it, but propagated faithfully."
var ErrIndexSizeExceeded = fmt.Errorf("index: row count limit exceeded")

// Adder is the live, in-memory index a FireHydrant wraps while it is the
// writable tail of a sink.
type Adder interface {
	Add(row Row) error
	Size() int64
	BytesInMemory() int64
	CanAppendRow() bool
}

// Persister performs the external "persist(index → file)" operation
// (spec §4.3): it drains one in-memory index into a spill directory and
// reports how many rows it wrote.
type Persister interface {
	Persist(ctx context.Context, idx Adder, dir string) (rowCount int64, err error)
}

// Merger performs the external "merge(files → file)" operation (spec
// §4.4): it combines every numbered hydrant spill directory under a sink
// into one merged queryable index directory.
type Merger interface {
	Merge(ctx context.Context, dirs []string, outDir string) (rowCount int64, err error)
}

// rowOverheadBytes approximates the per-row struct overhead on top of the
// row's encoded length, so BytesInMemory reports a realistic non-zero
// figure even for small rows.
const rowOverheadBytes = 64

// MemIndex is a minimal thread-unsafe in-memory row index (a FireHydrant's
// mutex serializes all access to its current index). Its Persist/Merge
// counterparts write/read newline-delimited JSON, the same format
// internal/sinks/sbatch_file_sink.go used for its append-only audit log.
type MemIndex struct {
	rows    []Row
	bytes   int64
	maxRows int64 // 0 means unbounded
}

// NewMemIndex creates an index that refuses further rows once it holds
// maxRows (0 disables the cap, i.e. CanAppendRow always true).
func NewMemIndex(maxRows int64) *MemIndex {
	return &MemIndex{maxRows: maxRows}
}

func (m *MemIndex) Add(row Row) error {
	if m.maxRows > 0 && int64(len(m.rows)) >= m.maxRows {
		return ErrIndexSizeExceeded
	}
	cp := make(Row, len(row))
	copy(cp, row)
	m.rows = append(m.rows, cp)
	m.bytes += int64(len(cp)) + rowOverheadBytes
	return nil
}

func (m *MemIndex) Size() int64 { return int64(len(m.rows)) }

func (m *MemIndex) BytesInMemory() int64 { return m.bytes }

func (m *MemIndex) CanAppendRow() bool {
	return m.maxRows <= 0 || int64(len(m.rows)) < m.maxRows
}

// JSONLPersister writes a MemIndex's rows as newline-delimited JSON into
// dir/data.jsonl, mirroring SBatchFileSink's buffered-append idiom.
type JSONLPersister struct{}

func (JSONLPersister) Persist(ctx context.Context, idx Adder, dir string) (int64, error) {
	mi, ok := idx.(*MemIndex)
	if !ok {
		return 0, fmt.Errorf("index: JSONLPersister requires *MemIndex, got %T", idx)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("mkdir spill dir: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(dir, "data.jsonl"), os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, fmt.Errorf("open spill file: %w", err)
	}
	defer f.Close()
	w := bufio.NewWriterSize(f, 1<<20)
	for _, row := range mi.rows {
		if _, err := w.Write(row); err != nil {
			return 0, fmt.Errorf("write spill row: %w", err)
		}
		if err := w.WriteByte('\n'); err != nil {
			return 0, fmt.Errorf("write spill newline: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		return 0, fmt.Errorf("flush spill file: %w", err)
	}
	return int64(len(mi.rows)), nil
}

// JSONLMerger concatenates the data.jsonl files of every numbered spill
// subdirectory (in numeric order) into outDir/data.jsonl.
type JSONLMerger struct{}

func (JSONLMerger) Merge(ctx context.Context, dirs []string, outDir string) (int64, error) {
	sorted := make([]string, len(dirs))
	copy(sorted, dirs)
	sort.Slice(sorted, func(i, j int) bool {
		ni, erri := strconv.Atoi(filepath.Base(sorted[i]))
		nj, errj := strconv.Atoi(filepath.Base(sorted[j]))
		if erri == nil && errj == nil {
			return ni < nj
		}
		return sorted[i] < sorted[j]
	})
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return 0, fmt.Errorf("mkdir merged dir: %w", err)
	}
	out, err := os.OpenFile(filepath.Join(outDir, "data.jsonl"), os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, fmt.Errorf("open merged file: %w", err)
	}
	defer out.Close()
	w := bufio.NewWriterSize(out, 1<<20)
	var total int64
	for _, d := range sorted {
		n, err := appendFile(w, filepath.Join(d, "data.jsonl"))
		if err != nil {
			return 0, err
		}
		total += n
	}
	if err := w.Flush(); err != nil {
		return 0, fmt.Errorf("flush merged file: %w", err)
	}
	return total, nil
}

func appendFile(w *bufio.Writer, path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open spill %s: %w", path, err)
	}
	defer f.Close()
	var lines int64
	sc := bufio.NewScanner(f)
	buf := make([]byte, 0, 1<<20)
	sc.Buffer(buf, 1<<26)
	for sc.Scan() {
		if _, err := w.Write(sc.Bytes()); err != nil {
			return 0, err
		}
		if err := w.WriteByte('\n'); err != nil {
			return 0, err
		}
		lines++
	}
	return lines, sc.Err()
}

// ReadAllRows reads back a merged or spilled data.jsonl file in full. It is
// the index package's counterpart to SBatchFileSink's ReadAllSLog, used by
// the appenderator to count a reloaded spill's rows and by tests to verify
// round-tripped row counts (spec §8 "Round-trip").
func ReadAllRows(path string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var out []Row
	sc := bufio.NewScanner(f)
	buf := make([]byte, 0, 1<<20)
	sc.Buffer(buf, 1<<26)
	for sc.Scan() {
		line := sc.Bytes()
		cp := make(Row, len(line))
		copy(cp, line)
		out = append(out, cp)
	}
	return out, sc.Err()
}
