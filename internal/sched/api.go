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
	"math"
	"time"

	"flystream/internal/clock"
	ferrors "flystream/internal/errors"
)

// Submit queues an immediate read of length bytes at offset into buf.
// Immediate requests are serviced in submission order.
func (s *Scheduler) Submit(buf []byte, offset int64, length int) (RequestID, error) {
	return s.submit(buf, offset, length, false, 0)
}

// SubmitTimed queues a read whose deadline falls `in` from now. Timed
// requests are serviced in deadline order; a missed deadline promotes the
// request ahead of all other work.
func (s *Scheduler) SubmitTimed(buf []byte, offset int64, length int, in time.Duration) (RequestID, error) {
	if in < 0 {
		return InvalidRequest, ferrors.BadDeadline()
	}
	return s.submit(buf, offset, length, true, s.clk.Now().Add(in))
}

// SubmitTimedAt is SubmitTimed with an absolute deadline tick.
func (s *Scheduler) SubmitTimedAt(buf []byte, offset int64, length int, deadline clock.Ticks) (RequestID, error) {
	return s.submit(buf, offset, length, true, deadline)
}

func (s *Scheduler) submit(buf []byte, offset int64, length int, timed bool, deadline clock.Ticks) (RequestID, error) {
	if buf == nil {
		return InvalidRequest, ferrors.NilBuffer()
	}
	if length < 0 {
		return InvalidRequest, ferrors.NegativeLength(length)
	}
	if int64(length) > math.MaxInt32 {
		// Results carry byte counts as int32.
		return InvalidRequest, ferrors.NewValidationError("length exceeds 32-bit transfer limit")
	}
	if length > len(buf) {
		return InvalidRequest, ferrors.NewValidationError("length exceeds buffer capacity")
	}
	if offset < 0 {
		return InvalidRequest, ferrors.NegativeOffset(offset)
	}

	s.closeMu.RLock()
	closed := s.closed
	s.closeMu.RUnlock()
	if closed {
		return InvalidRequest, ferrors.SchedulerClosed()
	}

	idx, err := s.allocate()
	if err != nil {
		return InvalidRequest, err
	}

	sl := &s.slots[idx]
	sl.buf = buf
	sl.offset = offset
	sl.length = int32(length)
	sl.got = 0
	sl.timed = timed
	sl.deadline = deadline
	sl.submitted = s.clk.Now()
	sl.inflight = false
	sl.done = make(chan struct{})
	sl.result.Store(0)

	// Publishing under the read lock orders the send before any close:
	// whatever lands in the channel here is drained during shutdown.
	s.closeMu.RLock()
	if s.closed {
		s.closeMu.RUnlock()
		s.release(idx)
		return InvalidRequest, ferrors.SchedulerClosed()
	}
	sl.state.Store(slotNew)
	s.newReqs <- idx
	s.closeMu.RUnlock()

	s.nSubmitted.Add(1)
	return id(idx), nil
}

// Check reports the state of a request without consuming it. The result is
// only meaningful once the status is StatusDone.
func (s *Scheduler) Check(rid RequestID) (Status, int32, error) {
	idx, ok := s.index(rid)
	if !ok {
		return StatusPending, 0, ferrors.UnknownRequest(int32(rid))
	}
	sl := &s.slots[idx]
	switch sl.state.Load() {
	case slotNew, slotQueued, slotInService:
		return StatusPending, 0, nil
	case slotDone:
		return StatusDone, sl.result.Load(), nil
	default:
		return StatusPending, 0, ferrors.UnknownRequest(int32(rid))
	}
}

// Wait blocks until the request completes, then consumes it: the slot is
// freed and the ID becomes invalid. At most one waiter may claim a request;
// a second concurrent Wait fails with DoubleWait.
//
// The returned value is the slot result (bytes transferred, or a negated
// error code; see errors.FromResult). The error return covers only the wait
// itself. Cancelling ctx releases the claim and leaves the request
// outstanding, still consuming its slot.
func (s *Scheduler) Wait(ctx context.Context, rid RequestID) (int32, error) {
	idx, ok := s.index(rid)
	if !ok {
		return 0, ferrors.UnknownRequest(int32(rid))
	}
	sl := &s.slots[idx]

	switch sl.state.Load() {
	case slotFree, slotSetup:
		return 0, ferrors.UnknownRequest(int32(rid))
	}

	if !sl.waiter.CompareAndSwap(0, 1) {
		return 0, ferrors.DoubleWait(int32(rid))
	}

	// The claim fences the releaser out, so done is stable from here on.
	done := sl.done
	if done == nil {
		sl.waiter.Store(0)
		return 0, ferrors.UnknownRequest(int32(rid))
	}

	select {
	case <-done:
		res := sl.result.Load()
		s.release(idx)
		return res, nil
	case <-ctx.Done():
		sl.waiter.Store(0)
		return 0, ctx.Err()
	}
}

// Abort flags a pending request for cancellation and reports whether the
// flag was applied. The request still completes, with the canceled code,
// and still has to be consumed by Wait. Aborting an already pending-abort
// request is a no-op that reports true; aborting a completed or unknown
// request reports false.
func (s *Scheduler) Abort(rid RequestID) bool {
	idx, ok := s.index(rid)
	if !ok {
		return false
	}
	sl := &s.slots[idx]
	switch sl.state.Load() {
	case slotNew, slotQueued, slotInService:
		sl.abort.Store(true)
		return true
	default:
		return false
	}
}

// ReadSync performs a blocking read through the scheduler, riding the same
// immediate queue as asynchronous submissions. On success it returns the
// byte count; slot-level failures come back as errors.
func (s *Scheduler) ReadSync(ctx context.Context, buf []byte, offset int64) (int, error) {
	rid, err := s.Submit(buf, offset, len(buf))
	if err != nil {
		return 0, err
	}

	res, err := s.Wait(ctx, rid)
	if err != nil {
		// Abandoning the request would leak its slot; flag it and reap
		// the completion in the background so the table drains.
		s.Abort(rid)
		go func() {
			_, _ = s.Wait(context.Background(), rid)
		}()
		return 0, err
	}
	if res < 0 {
		return 0, ferrors.FromResult(res)
	}
	return int(res), nil
}
