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

package accounting

import (
	"sync"
	"testing"
)

func TestCounter_AddAndLoad(t *testing.T) {
	c := NewCounter()
	c.Add(5)
	c.Add(-2)
	c.Add(10)
	if got := c.Load(); got != 13 {
		t.Fatalf("expected 13, got %d", got)
	}
}

func TestCounter_ConcurrentAddsSumCorrectly(t *testing.T) {
	c := NewCounter()
	var wg sync.WaitGroup
	const goroutines = 32
	const perGoroutine = 1000
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				c.Add(1)
			}
		}()
	}
	wg.Wait()
	want := int64(goroutines * perGoroutine)
	if got := c.Load(); got != want {
		t.Fatalf("expected %d, got %d", want, got)
	}
}

func TestEstimator_SkipOverheadCheckReturnsZero(t *testing.T) {
	est := Estimator{SkipOverheadCheck: true}
	if est.PerSink() != 0 {
		t.Fatalf("expected PerSink() == 0 when skipping overhead check")
	}
	if est.PerHydrant() != 0 {
		t.Fatalf("expected PerHydrant() == 0 when skipping overhead check")
	}
}

func TestEstimator_DefaultReturnsRoughConstants(t *testing.T) {
	est := Estimator{}
	if est.PerSink() != RoughOverheadPerSink {
		t.Fatalf("expected PerSink() == %d, got %d", RoughOverheadPerSink, est.PerSink())
	}
	if est.PerHydrant() != RoughOverheadPerHydrant+HydrantHeaderOverhead {
		t.Fatalf("expected PerHydrant() == %d, got %d", RoughOverheadPerHydrant+HydrantHeaderOverhead, est.PerHydrant())
	}
}

func TestNewAccountant_CountersStartAtZero(t *testing.T) {
	a := NewAccountant(false)
	if a.RowsInMemory.Load() != 0 || a.BytesInMemory.Load() != 0 || a.TotalRows.Load() != 0 {
		t.Fatalf("expected fresh accountant counters to start at zero")
	}
	if a.Estimator().SkipOverheadCheck {
		t.Fatalf("expected overhead check enabled when skipOverheadCheck=false")
	}
}

func TestNextPow2(t *testing.T) {
	cases := map[int]int{0: 1, 1: 1, 2: 2, 3: 4, 5: 8, 8: 8, 9: 16}
	for in, want := range cases {
		if got := nextPow2(in); got != want {
			t.Fatalf("nextPow2(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestClamp(t *testing.T) {
	if clamp(5, 8, 64) != 8 {
		t.Fatalf("expected clamp below range to return lower bound")
	}
	if clamp(100, 8, 64) != 64 {
		t.Fatalf("expected clamp above range to return upper bound")
	}
	if clamp(32, 8, 64) != 32 {
		t.Fatalf("expected clamp within range to return input unchanged")
	}
}
