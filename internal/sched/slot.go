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

package sched

import (
	"context"
	"sync/atomic"

	"flystream/internal/clock"
	ferrors "flystream/internal/errors"
)

// maxTableSize is the largest slot table addressable by 16-bit queue links,
// reserving one value for the end-of-queue sentinel.
const maxTableSize = 1<<15 - 2

// Slot states. Transitions are one-directional around the cycle; the only
// writers are the submitter (Free->Setup->New), the loop (New->Queued->
// InService->Done) and the reaping waiter (Done->Free).
const (
	slotFree int32 = iota
	slotSetup
	slotNew
	slotQueued
	slotInService
	slotDone
)

// slot is one entry of the fixed request table. The state field arbitrates
// ownership; the remaining fields are only touched by the current owner,
// except result, abort and waiter, which are atomic.
type slot struct {
	state  atomic.Int32
	abort  atomic.Bool
	waiter atomic.Int32

	// done is closed exactly once when the request completes. Replaced
	// with a fresh channel each time the slot is reused.
	done chan struct{}

	buf    []byte
	offset int64
	length int32
	got    int32

	timed    bool
	deadline clock.Ticks

	submitted clock.Ticks
	started   clock.Ticks
	inflight  bool // first chunk has run; started is valid

	result atomic.Int32

	next int16
}

// id converts a slot index to its public request ID.
func id(idx int16) RequestID {
	return RequestID(idx) + 1
}

// index converts a public request ID back to a slot index, reporting whether
// the ID is in range for this table.
func (s *Scheduler) index(rid RequestID) (int16, bool) {
	if rid <= 0 || int(rid) > len(s.slots) {
		return 0, false
	}
	return int16(rid - 1), true
}

// allocate claims a free slot, blocking up to AcquireTimeout when the table
// is full. On success the slot is in Setup and owned by the caller.
func (s *Scheduler) allocate() (int16, error) {
	if s.cfg.AcquireTimeout <= 0 {
		if !s.gate.TryAcquire(1) {
			return 0, ferrors.TableFull(len(s.slots))
		}
	} else {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.AcquireTimeout)
		err := s.gate.Acquire(ctx, 1)
		cancel()
		if err != nil {
			return 0, ferrors.AcquireTimeout()
		}
	}

	// The semaphore guarantees a free slot exists; find it. The table is
	// small, so a linear scan is cheaper than maintaining a free list
	// under contention.
	for i := range s.slots {
		if s.slots[i].state.CompareAndSwap(slotFree, slotSetup) {
			return int16(i), nil
		}
	}

	// Unreachable while the semaphore invariant holds.
	s.gate.Release(1)
	return 0, ferrors.TableFull(len(s.slots))
}

// release returns a reaped slot to the free pool and opens a table permit.
func (s *Scheduler) release(idx int16) {
	sl := &s.slots[idx]
	sl.buf = nil
	sl.done = nil
	sl.got = 0
	sl.inflight = false
	sl.abort.Store(false)
	sl.waiter.Store(0)
	sl.state.Store(slotFree)
	s.gate.Release(1)
}
