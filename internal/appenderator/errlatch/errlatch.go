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

// Package errlatch implements the appenderator's first-error-wins
// semantics (spec §7, §9): a single process-wide error slot, settable
// exactly once, that every producer-facing entry point checks before
// doing work. Modeled as a one-shot settable cell, the way the teacher
// guards its shutdown path with a CAS'd "stopped" flag.
package errlatch

import "sync/atomic"

// Latch holds at most one error. The first call to Set wins; later calls
// are no-ops. Get is safe to call concurrently with Set.
type Latch struct {
	err atomic.Value // stores error
}

// Set records err if no error has been latched yet. Returns true if this
// call was the one that latched it.
func (l *Latch) Set(err error) bool {
	if err == nil {
		return false
	}
	if l.err.Load() != nil {
		return false
	}
	// Wrap in a struct since atomic.Value requires a consistent concrete
	// type and the error interface's dynamic type may vary between calls.
	return l.err.CompareAndSwap(nil, errBox{err})
}

// Get returns the latched error, or nil if none has been set.
func (l *Latch) Get() error {
	v := l.err.Load()
	if v == nil {
		return nil
	}
	return v.(errBox).err
}

type errBox struct{ err error }
