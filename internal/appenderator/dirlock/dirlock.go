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

// Package dirlock guards the appenderator's base persist directory with
// an advisory exclusive lock and computes the on-disk path layout
// described by spec §4.6, so two appenderators can never run against the
// same directory concurrently.
package dirlock

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"appenderator/pkg/segment"
)

const lockFileName = ".lock"

// Lock holds a non-blocking exclusive advisory lock on a base persist
// directory's .lock file, acquired with unix.Flock the way a single
// process-wide instance guarantees exclusive ownership of on-disk state
// for the lifetime of one appenderator job.
type Lock struct {
	base string
	file *os.File
}

// Acquire creates base (if absent), opens base/.lock for create+write, and
// takes a non-blocking exclusive lock on its whole range. Failure to
// acquire — including because another appenderator already holds it — is
// fatal to startJob (spec §4.6, §7).
func Acquire(base string) (*Lock, error) {
	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, fmt.Errorf("dirlock: create base dir: %w", err)
	}
	path := filepath.Join(base, lockFileName)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("dirlock: open lock file: %w", err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		return nil, fmt.Errorf("dirlock: acquire exclusive lock on %s: %w (another appenderator may already be running against this directory)", path, err)
	}
	return &Lock{base: base, file: f}, nil
}

// Release drops the advisory lock and closes the underlying file handle.
// Called only from close, never from closeNow (spec §9: "the persist
// directory lock is deliberately not released" on closeNow, relying on
// process exit to drop it).
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	if err := unix.Flock(int(l.file.Fd()), unix.LOCK_UN); err != nil {
		l.file.Close()
		return fmt.Errorf("dirlock: release lock: %w", err)
	}
	return l.file.Close()
}

// Base returns the locked base persist directory.
func (l *Lock) Base() string { return l.base }

// Layout computes the on-disk paths for one segment identifier's sink
// directory tree (spec §4.6, §6 "on-disk format").
type Layout struct {
	base string
}

// NewLayout constructs a Layout rooted at base.
func NewLayout(base string) Layout { return Layout{base: base} }

// SinkDir returns "<base>/<identifier-string>".
func (l Layout) SinkDir(id segment.Identifier) string {
	return filepath.Join(l.base, id.DirName())
}

// IdentifierFile returns "<base>/<identifier>/identifier.json".
func (l Layout) IdentifierFile(id segment.Identifier) string {
	return filepath.Join(l.SinkDir(id), "identifier.json")
}

// HydrantDir returns "<base>/<identifier>/<n>", the nth hydrant spill.
func (l Layout) HydrantDir(id segment.Identifier, n int) string {
	return filepath.Join(l.SinkDir(id), fmt.Sprintf("%d", n))
}

// MergedDir returns "<base>/<identifier>/merged", the merge workspace.
func (l Layout) MergedDir(id segment.Identifier) string {
	return filepath.Join(l.SinkDir(id), "merged")
}

// DescriptorFile returns "<base>/<identifier>/descriptor.json", the
// post-push receipt.
func (l Layout) DescriptorFile(id segment.Identifier) string {
	return filepath.Join(l.SinkDir(id), "descriptor.json")
}

// ListSinkDirs enumerates every sink directory currently present under
// base, used by push to reconstruct transient sinks from disk (spec
// §4.4 step 3).
func (l Layout) ListSinkDirs() ([]string, error) {
	entries, err := os.ReadDir(l.base)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("dirlock: list base dir: %w", err)
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() || e.Name() == lockFileName {
			continue
		}
		if _, err := os.Stat(filepath.Join(l.base, e.Name(), "identifier.json")); err != nil {
			continue
		}
		out = append(out, filepath.Join(l.base, e.Name()))
	}
	return out, nil
}

// ListHydrantDirs enumerates the numerically-named hydrant spill
// subdirectories under a sink directory, sorted in numeric order (spec
// §3 invariant 3: "contiguous 0..N-1 sequence").
func ListHydrantDirs(sinkDir string) ([]string, []int, error) {
	entries, err := os.ReadDir(sinkDir)
	if err != nil {
		return nil, nil, fmt.Errorf("dirlock: list sink dir: %w", err)
	}
	var dirs []string
	var nums []int
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		n, err := parseNonNegativeInt(e.Name())
		if err != nil {
			continue
		}
		dirs = append(dirs, filepath.Join(sinkDir, e.Name()))
		nums = append(nums, n)
	}
	for i := 1; i < len(nums); i++ {
		for j := i; j > 0 && nums[j-1] > nums[j]; j-- {
			nums[j-1], nums[j] = nums[j], nums[j-1]
			dirs[j-1], dirs[j] = dirs[j], dirs[j-1]
		}
	}
	return dirs, nums, nil
}

func parseNonNegativeInt(s string) (int, error) {
	if s == "" {
		return 0, fmt.Errorf("empty")
	}
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("not numeric: %q", s)
		}
		n = n*10 + int(r-'0')
	}
	return n, nil
}
