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

import "testing"

func TestSinkMetadata_AddRowsAccumulates(t *testing.T) {
	var m SinkMetadata
	m.AddRows(3)
	m.AddRows(2)
	if m.NumRowsInSegment() != 5 {
		t.Fatalf("expected 5, got %d", m.NumRowsInSegment())
	}
}

func TestSinkMetadata_AddHydrantsAccumulates(t *testing.T) {
	var m SinkMetadata
	m.AddHydrants(1)
	m.AddHydrants(2)
	if m.NumHydrants() != 3 {
		t.Fatalf("expected 3, got %d", m.NumHydrants())
	}
}

func TestSinkMetadata_NextHydrantNumberIsMonotonicAndSurvivesEviction(t *testing.T) {
	var m SinkMetadata
	if n := m.NextHydrantNumber(); n != 0 {
		t.Fatalf("expected first hydrant number 0, got %d", n)
	}
	if n := m.NextHydrantNumber(); n != 1 {
		t.Fatalf("expected second hydrant number 1, got %d", n)
	}
	if m.PreviousHydrantCount() != 2 {
		t.Fatalf("expected PreviousHydrantCount 2, got %d", m.PreviousHydrantCount())
	}
	// Simulate a reincarnation: a fresh metadata object would reset
	// numHydrants/numRowsInSegment, but the counter returned here comes
	// from the same long-lived instance the registry retains across
	// sink eviction, so the next call continues from 2.
	if n := m.NextHydrantNumber(); n != 2 {
		t.Fatalf("expected third hydrant number 2, got %d", n)
	}
}
