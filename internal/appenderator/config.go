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

import "time"

// Config is the flat record of options spec §6 lists. Every field is
// required unless noted; it is populated from command-line flags by
// cmd/appenderatord rather than a config-file library, matching how the
// teacher's own binaries are configured.
type Config struct {
	// BasePersistDirectory is the root of all on-disk state (spec §4.6).
	BasePersistDirectory string

	// MaxRowsInMemory is the row-count persist trigger.
	MaxRowsInMemory int64
	// MaxBytesInMemory is the byte-count persist trigger.
	MaxBytesInMemory int64
	// SkipBytesInMemoryOverheadCheck disables the per-sink/per-hydrant
	// overhead estimators (returns 0) and the heap-limit assertion.
	SkipBytesInMemoryOverheadCheck bool
	// IntermediatePersistPeriod is the wall-clock persist trigger.
	IntermediatePersistPeriod time.Duration
	// MaxPendingPersists is the persist-executor queue capacity
	// (backpressure).
	MaxPendingPersists int

	// MaxRowsPerIndex bounds a single in-memory index (passed through to
	// the external index implementation; spec's appendableIndexSpec
	// analog for the bundled MemIndex).
	MaxRowsPerIndex int64
}

// Validate checks the subset of Config invariants the lifecycle
// controller depends on before startJob can proceed.
func (c Config) Validate() error {
	if c.BasePersistDirectory == "" {
		return errConfigMissingBaseDir
	}
	if c.MaxPendingPersists < 0 {
		return errConfigNegativeQueueCapacity
	}
	return nil
}
