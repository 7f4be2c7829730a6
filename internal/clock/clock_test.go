/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package clock

import (
	"math"
	"testing"
	"time"
)

func TestElapsed(t *testing.T) {
	tests := []struct {
		name     string
		now      Ticks
		deadline Ticks
		expected bool
	}{
		{"deadline in future", 100, 200, false},
		{"deadline now", 200, 200, true},
		{"deadline passed", 300, 200, true},
		{"future across wrap", math.MaxInt32 - 5, math.MinInt32 + 5, false},
		{"passed across wrap", math.MinInt32 + 5, math.MaxInt32 - 5, true},
		{"negative ticks", -100, -200, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Elapsed(tt.now, tt.deadline); got != tt.expected {
				t.Errorf("Elapsed(%d, %d) = %v, want %v", tt.now, tt.deadline, got, tt.expected)
			}
		})
	}
}

func TestBefore(t *testing.T) {
	tests := []struct {
		name     string
		a, b     Ticks
		expected bool
	}{
		{"a earlier", 10, 20, true},
		{"equal", 20, 20, false},
		{"a later", 30, 20, false},
		{"earlier across wrap", math.MaxInt32 - 1, math.MinInt32 + 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Before(tt.a, tt.b); got != tt.expected {
				t.Errorf("Before(%d, %d) = %v, want %v", tt.a, tt.b, got, tt.expected)
			}
		})
	}
}

func TestAdd(t *testing.T) {
	if got := Ticks(100).Add(250 * time.Millisecond); got != 350 {
		t.Errorf("Add() = %d, want 350", got)
	}
	if got := Ticks(100).Add(999 * time.Microsecond); got != 100 {
		t.Errorf("Add() should truncate sub-millisecond durations, got %d", got)
	}

	// Addition near the wrap point must still compare correctly.
	base := Ticks(math.MaxInt32 - 10)
	later := base.Add(100 * time.Millisecond)
	if !Before(base, later) {
		t.Errorf("expected %d before %d across wrap", base, later)
	}
}

func TestSystemClockAdvances(t *testing.T) {
	c := System()
	start := c.Now()
	time.Sleep(5 * time.Millisecond)
	end := c.Now()

	if !Before(start, end) && start != end {
		t.Errorf("system clock went backwards: start=%d end=%d", start, end)
	}
	if end.Sub(start) < 0 {
		t.Errorf("expected non-negative elapsed ticks, got %d", end.Sub(start))
	}
}

func TestManualClock(t *testing.T) {
	m := NewManual(100)
	if got := m.Now(); got != 100 {
		t.Errorf("Now() = %d, want 100", got)
	}

	m.Advance(250 * time.Millisecond)
	if got := m.Now(); got != 350 {
		t.Errorf("Now() after Advance = %d, want 350", got)
	}

	m.Set(math.MaxInt32)
	m.Advance(time.Millisecond)
	if got := m.Now(); got != math.MinInt32 {
		t.Errorf("Now() after wrap = %d, want %d", got, math.MinInt32)
	}
	if !Before(math.MaxInt32, m.Now()) {
		t.Error("wrapped tick should compare as later")
	}
}
