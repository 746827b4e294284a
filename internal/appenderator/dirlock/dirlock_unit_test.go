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

package dirlock

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"appenderator/pkg/segment"
)

func testIdentifier() segment.Identifier {
	return segment.Identifier{
		DataSource: "wikipedia",
		Interval: segment.Interval{
			Start: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
			End:   time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC),
		},
		Version: "2026-01-01T00:00:00.000Z",
		Shard:   segment.ShardSpec{Type: "numbered", Partition: 0},
	}
}

func TestAcquire_SucceedsOnFreshDirectory(t *testing.T) {
	base := filepath.Join(t.TempDir(), "base")
	lock, err := Acquire(base)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer lock.Release()

	if lock.Base() != base {
		t.Fatalf("expected Base() == %q, got %q", base, lock.Base())
	}
	if _, err := os.Stat(filepath.Join(base, lockFileName)); err != nil {
		t.Fatalf("expected lock file to exist: %v", err)
	}
}

func TestAcquire_FailsWhenAlreadyLocked(t *testing.T) {
	base := filepath.Join(t.TempDir(), "base")
	first, err := Acquire(base)
	if err != nil {
		t.Fatalf("Acquire (first): %v", err)
	}
	defer first.Release()

	if _, err := Acquire(base); err == nil {
		t.Fatalf("expected second Acquire on the same directory to fail")
	}
}

func TestRelease_AllowsReacquire(t *testing.T) {
	base := filepath.Join(t.TempDir(), "base")
	lock, err := Acquire(base)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	second, err := Acquire(base)
	if err != nil {
		t.Fatalf("expected reacquire after release to succeed: %v", err)
	}
	defer second.Release()
}

func TestLayout_PathsAreNestedUnderSinkDir(t *testing.T) {
	layout := NewLayout("/base")
	id := testIdentifier()
	sinkDir := layout.SinkDir(id)

	if layout.IdentifierFile(id) != filepath.Join(sinkDir, "identifier.json") {
		t.Fatalf("unexpected IdentifierFile path: %s", layout.IdentifierFile(id))
	}
	if layout.HydrantDir(id, 3) != filepath.Join(sinkDir, "3") {
		t.Fatalf("unexpected HydrantDir path: %s", layout.HydrantDir(id, 3))
	}
	if layout.MergedDir(id) != filepath.Join(sinkDir, "merged") {
		t.Fatalf("unexpected MergedDir path: %s", layout.MergedDir(id))
	}
	if layout.DescriptorFile(id) != filepath.Join(sinkDir, "descriptor.json") {
		t.Fatalf("unexpected DescriptorFile path: %s", layout.DescriptorFile(id))
	}
}

func TestListSinkDirs_OnlyReturnsDirsWithIdentifierFile(t *testing.T) {
	base := t.TempDir()
	layout := NewLayout(base)

	valid := filepath.Join(base, "valid-sink")
	if err := os.MkdirAll(valid, 0o755); err != nil {
		t.Fatalf("mkdir valid: %v", err)
	}
	if err := os.WriteFile(filepath.Join(valid, "identifier.json"), []byte("{}"), 0o644); err != nil {
		t.Fatalf("write identifier.json: %v", err)
	}

	stray := filepath.Join(base, "stray-dir")
	if err := os.MkdirAll(stray, 0o755); err != nil {
		t.Fatalf("mkdir stray: %v", err)
	}

	if err := os.WriteFile(filepath.Join(base, lockFileName), []byte{}, 0o644); err != nil {
		t.Fatalf("write lock file: %v", err)
	}

	dirs, err := layout.ListSinkDirs()
	if err != nil {
		t.Fatalf("ListSinkDirs: %v", err)
	}
	if len(dirs) != 1 || dirs[0] != valid {
		t.Fatalf("expected only %q, got %v", valid, dirs)
	}
}

func TestListSinkDirs_MissingBaseReturnsEmpty(t *testing.T) {
	layout := NewLayout(filepath.Join(t.TempDir(), "does-not-exist"))
	dirs, err := layout.ListSinkDirs()
	if err != nil {
		t.Fatalf("ListSinkDirs: %v", err)
	}
	if len(dirs) != 0 {
		t.Fatalf("expected no dirs, got %v", dirs)
	}
}

func TestListHydrantDirs_SortsNumerically(t *testing.T) {
	sinkDir := t.TempDir()
	for _, name := range []string{"10", "2", "0", "1"} {
		if err := os.MkdirAll(filepath.Join(sinkDir, name), 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", name, err)
		}
	}
	// A non-numeric directory must be skipped.
	if err := os.MkdirAll(filepath.Join(sinkDir, "merged"), 0o755); err != nil {
		t.Fatalf("mkdir merged: %v", err)
	}

	dirs, nums, err := ListHydrantDirs(sinkDir)
	if err != nil {
		t.Fatalf("ListHydrantDirs: %v", err)
	}
	wantNums := []int{0, 1, 2, 10}
	if len(nums) != len(wantNums) {
		t.Fatalf("expected %d numeric dirs, got %d (%v)", len(wantNums), len(nums), nums)
	}
	for i, n := range wantNums {
		if nums[i] != n {
			t.Fatalf("expected nums[%d] == %d, got %d", i, n, nums[i])
		}
		if dirs[i] != filepath.Join(sinkDir, itoa(n)) {
			t.Fatalf("expected dirs[%d] == %s, got %s", i, filepath.Join(sinkDir, itoa(n)), dirs[i])
		}
	}
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := []byte{}
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}
