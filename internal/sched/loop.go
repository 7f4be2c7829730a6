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
	"time"

	"flystream/internal/clock"
	ferrors "flystream/internal/errors"
)

// run is the scheduler goroutine. Each pass ingests new submissions,
// services expired deadlines to completion, then transfers at most one
// block before re-evaluating.
func (s *Scheduler) run() {
	defer s.wg.Done()

	for {
		if !s.ingest() {
			return
		}
		now := s.clk.Now()

		// A passed deadline jumps the line and runs to completion.
		for !s.timed.empty() && clock.Elapsed(now, s.slots[s.timed.head].deadline) {
			idx := s.timed.pop(s)
			s.nExpired.Add(1)
			s.logger.Warn("Deadline expired before service",
				"request", int32(id(idx)),
				"late_ticks", now.Sub(s.slots[idx].deadline))
			s.serviceAll(idx)
			// The all-at-once service may have taken a while; the
			// window is measured from its completion, not its start.
			now = s.clk.Now()
			s.enterPriority(now)
		}

		if s.priority {
			if clock.Elapsed(now, s.priorityUntil) {
				s.priority = false
				s.logger.Debug("Leaving deadline-priority mode")
			} else {
				// Only already-expired deadlines run inside the
				// window; those were drained above. The rest of the
				// backlog waits so a late timed submission can still
				// make it.
				if !s.idle(s.cfg.PriorityDelay) {
					return
				}
				continue
			}
		}

		switch {
		case !s.immediate.empty():
			s.serviceChunk(&s.immediate)
		case !s.timed.empty():
			s.serviceChunk(&s.timed)
		default:
			if !s.idle(0) {
				return
			}
		}
	}
}

// ingest drains the submission channel into the queues and parks while
// paused. Returns false when the scheduler is closing.
func (s *Scheduler) ingest() bool {
	for {
		select {
		case <-s.closeCh:
			s.shutdown()
			return false
		default:
		}

		select {
		case idx := <-s.newReqs:
			s.enqueue(idx)
			continue
		default:
		}

		if s.paused.Load() {
			select {
			case <-s.closeCh:
				s.shutdown()
				return false
			case idx := <-s.newReqs:
				s.enqueue(idx)
			case <-s.resumeCh:
			}
			continue
		}
		return true
	}
}

// enqueue moves a freshly submitted slot into its class queue.
func (s *Scheduler) enqueue(idx int16) {
	sl := &s.slots[idx]
	sl.state.Store(slotQueued)
	if sl.timed {
		s.timed.insertByDeadline(s, idx)
	} else {
		s.immediate.push(s, idx)
	}
}

// enterPriority opens (or extends) the deadline-priority window.
func (s *Scheduler) enterPriority(now clock.Ticks) {
	if !s.priority {
		s.nPriority.Add(1)
		s.logger.Debug("Entering deadline-priority mode",
			"window_ms", s.cfg.PriorityWindow.Milliseconds())
	}
	s.priority = true
	s.priorityUntil = now.Add(s.cfg.PriorityWindow)
}

// idle blocks until new work, a resume, the timeout, or close. A zero
// timeout waits indefinitely. Returns false when the scheduler is closing.
func (s *Scheduler) idle(d time.Duration) bool {
	if d <= 0 {
		select {
		case <-s.closeCh:
			s.shutdown()
			return false
		case idx := <-s.newReqs:
			s.enqueue(idx)
			return true
		case <-s.resumeCh:
			return true
		}
	}

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-s.closeCh:
		s.shutdown()
		return false
	case idx := <-s.newReqs:
		s.enqueue(idx)
		return true
	case <-t.C:
		return true
	}
}

// shutdown fails every request still alive so no waiter is stranded. New
// submissions are fenced off by the closed flag before closeCh is closed,
// so the channel drain here observes everything that was ever sent.
func (s *Scheduler) shutdown() {
	for {
		select {
		case idx := <-s.newReqs:
			s.enqueue(idx)
		default:
			if n := s.immediate.size + s.timed.size; n > 0 {
				s.logger.Info("Failing requests on shutdown", "pending", n)
			}
			closedRes := ferrors.ResultCode(ferrors.SchedulerClosed())
			for !s.immediate.empty() {
				s.finish(s.immediate.pop(s), closedRes, false)
			}
			for !s.timed.empty() {
				s.finish(s.timed.pop(s), closedRes, false)
			}
			return
		}
	}
}

// drainOnClose handles shutdown for a scheduler that was never started.
func (s *Scheduler) drainOnClose() {
	s.shutdown()
}
