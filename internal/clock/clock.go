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

/*
Package clock provides the wraparound-tolerant tick clock used by the
FlyStream scheduler.

Clock Domain:
=============

Deadlines are expressed as 32-bit millisecond ticks. The counter is allowed
to wrap; all comparisons go through signed subtraction, so two ticks compare
correctly as long as they are less than half the domain (~24.8 days) apart.
This mirrors the low-bits-of-a-counter clocks found on embedded targets,
where a full-width monotonic clock is not available to every subsystem.

The scheduler never interprets ticks against device throughput. How many
ticks of deadline slack a caller grants is caller policy, not ours.
*/
package clock

import (
	"sync/atomic"
	"time"
)

// Ticks is a point in the wraparound millisecond clock domain.
type Ticks int32

// Clock supplies the current tick count. Implementations must be safe for
// concurrent use.
type Clock interface {
	Now() Ticks
}

// Sub returns t - o as a signed difference. The result is meaningful only
// when the two ticks are less than half the domain apart.
func (t Ticks) Sub(o Ticks) int32 {
	return int32(t) - int32(o)
}

// Add returns t advanced by d, truncated to whole milliseconds.
func (t Ticks) Add(d time.Duration) Ticks {
	return t + Ticks(d/time.Millisecond)
}

// Elapsed reports whether deadline is at or before now.
func Elapsed(now, deadline Ticks) bool {
	return now.Sub(deadline) >= 0
}

// Before reports whether a is strictly earlier than b.
func Before(a, b Ticks) bool {
	return a.Sub(b) < 0
}

// systemClock counts milliseconds since process start. Starting from zero
// keeps early ticks far away from the wrap point without changing the
// wraparound semantics.
type systemClock struct {
	epoch time.Time
}

func (c *systemClock) Now() Ticks {
	return Ticks(time.Since(c.epoch) / time.Millisecond)
}

// System returns a Clock backed by the process monotonic clock.
func System() Clock {
	return &systemClock{epoch: time.Now()}
}

// Manual is a hand-advanced Clock for tests and deterministic replays.
type Manual struct {
	now atomic.Int32
}

// NewManual returns a Manual clock starting at the given tick.
func NewManual(start Ticks) *Manual {
	m := &Manual{}
	m.now.Store(int32(start))
	return m
}

func (m *Manual) Now() Ticks {
	return Ticks(m.now.Load())
}

// Advance moves the clock forward by d milliseconds of ticks.
func (m *Manual) Advance(d time.Duration) {
	m.now.Add(int32(d / time.Millisecond))
}

// Set jumps the clock to an absolute tick, wrap included.
func (m *Manual) Set(t Ticks) {
	m.now.Store(int32(t))
}
