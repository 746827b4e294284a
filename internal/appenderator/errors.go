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
	"errors"
	"fmt"

	"appenderator/pkg/segment"
)

// Sentinel and typed errors for the kinds enumerated in spec §7.
var (
	// errSegmentNotWritable is raised when a row is added to a sink whose
	// current hydrant is not writable (frozen or already swapped).
	errSegmentNotWritable = errors.New("appenderator: segment not writable")

	// ErrSegmentNotWritable is the exported form callers can errors.Is against.
	ErrSegmentNotWritable = errSegmentNotWritable

	// ErrQueriesNotSupported is returned by the query forwarder (C8) when no
	// walker has been configured.
	ErrQueriesNotSupported = errors.New("appenderator: queries not supported on this appenderator")

	// ErrCommitterNotSupported is raised by add/push when a non-nil
	// committer is supplied: batch appenderators never carry committed
	// metadata (spec §1 Non-goals, §4.4 step 1).
	ErrCommitterNotSupported = errors.New("appenderator: committed metadata is not supported in batch mode")

	// ErrAllowIncrementalPersistsRequired is raised by add when
	// allowIncrementalPersists is false; batch always persists eagerly.
	ErrAllowIncrementalPersistsRequired = errors.New("appenderator: allowIncrementalPersists must be true in batch mode")

	// ErrClosed is returned by producer operations once the appenderator has
	// been closed.
	ErrClosed = errors.New("appenderator: closed")

	// ErrWrongDataSource is raised by add when an identifier's dataSource
	// does not match the configured schema (spec §4.7 add validation).
	ErrWrongDataSource = errors.New("appenderator: identifier dataSource does not match schema")

	errConfigMissingBaseDir        = errors.New("appenderator: basePersistDirectory is required")
	errConfigNegativeQueueCapacity = errors.New("appenderator: maxPendingPersists must be >= 0")
)

// HeapLimitExceededError reports that, even after accounting for the bytes
// about to be freed by a persist, bytesInMemory would still exceed
// maxBytesInMemory (spec §4.2, §7).
type HeapLimitExceededError struct {
	SinkCount          int
	HydrantCount       int
	TotalRows          int64
	BytesInMemory      int64
	BytesToBePersisted int64
	MaxBytesInMemory   int64
}

func (e *HeapLimitExceededError) Error() string {
	return fmt.Sprintf(
		"appenderator: heap usage limit exceeded (sinks=%d hydrants=%d rows=%d bytesInMemory=%d bytesToBePersisted=%d maxBytesInMemory=%d); "+
			"set skipBytesInMemoryOverheadCheck or raise maxBytesInMemory",
		e.SinkCount, e.HydrantCount, e.TotalRows, e.BytesInMemory, e.BytesToBePersisted, e.MaxBytesInMemory,
	)
}

// SanityError reports a fatal invariant violation: a missing sink on
// persist, a hydrant-count mismatch at merge time, non-contiguous spill
// numbering, or a sink still writable at merge time (spec §4.4, §7).
type SanityError struct {
	Identifier segment.Identifier
	Reason     string
}

func (e *SanityError) Error() string {
	return fmt.Sprintf("appenderator: sanity violation for %s: %s", e.Identifier, e.Reason)
}

// IndexSizeExceededError wraps the external index's row-cap rejection so
// callers can distinguish it from other Add failures (spec §6).
type IndexSizeExceededError struct {
	Identifier segment.Identifier
	Err        error
}

func (e *IndexSizeExceededError) Error() string {
	return fmt.Sprintf("appenderator: index size exceeded for %s: %v", e.Identifier, e.Err)
}

func (e *IndexSizeExceededError) Unwrap() error { return e.Err }
