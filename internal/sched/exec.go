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
	"errors"
	"io"

	"flystream/internal/clock"
	ferrors "flystream/internal/errors"
)

// serviceChunk transfers at most one block of the queue head. The slot stays
// at the head until it finishes, so interleaved passes resume it in place.
func (s *Scheduler) serviceChunk(q *queue) {
	idx := q.head
	sl := &s.slots[idx]

	if sl.abort.Load() {
		q.pop(s)
		s.abortFinish(idx)
		return
	}

	s.beginService(sl)
	done, err := s.transfer(sl)
	if err != nil {
		q.pop(s)
		s.logger.Error("Transfer failed",
			"request", int32(id(idx)), "error", ferrors.FormatError(err))
		s.finish(idx, ferrors.ResultCode(err), s.pastDeadline(sl))
		return
	}
	if done {
		q.pop(s)
		s.finish(idx, sl.got, s.pastDeadline(sl))
	}
}

// serviceAll runs an expired request to completion in one pass. The caller
// has already removed the slot from its queue.
func (s *Scheduler) serviceAll(idx int16) {
	sl := &s.slots[idx]
	for {
		if sl.abort.Load() {
			s.abortFinish(idx)
			return
		}
		s.beginService(sl)
		done, err := s.transfer(sl)
		if err != nil {
			s.finish(idx, ferrors.ResultCode(err), true)
			return
		}
		if done {
			s.finish(idx, sl.got, true)
			return
		}
	}
}

// beginService marks the first transfer of a request.
func (s *Scheduler) beginService(sl *slot) {
	if !sl.inflight {
		sl.inflight = true
		sl.started = s.clk.Now()
		sl.state.Store(slotInService)
	}
}

// transfer moves up to one block from the device into the request buffer.
// It reports done when the request is satisfied or the device hit EOF;
// a short read at EOF is a successful, shorter completion.
func (s *Scheduler) transfer(sl *slot) (bool, error) {
	want := sl.length - sl.got
	if want > s.cfg.BlockSize {
		want = s.cfg.BlockSize
	}
	if want <= 0 {
		return true, nil
	}

	pos := sl.offset + int64(sl.got)
	if err := s.dev.Seek(pos); err != nil {
		return false, ferrors.SeekFailed(pos, err)
	}

	var read int32
	eof := false
	for read < want {
		n, err := s.dev.Read(sl.buf[sl.got+read : sl.got+want])
		read += int32(n)
		if err != nil {
			if errors.Is(err, io.EOF) {
				eof = true
				break
			}
			sl.got += read
			return false, ferrors.ReadFailed(err)
		}
		if n == 0 {
			eof = true
			break
		}
	}
	sl.got += read
	if read > 0 {
		s.nChunks.Add(1)
		s.nBytes.Add(uint64(read))
	}
	return eof || sl.got == sl.length, nil
}

// abortFinish completes a request that was flagged for abort.
func (s *Scheduler) abortFinish(idx int16) {
	s.nAborted.Add(1)
	s.logger.Debug("Request aborted", "request", int32(id(idx)))
	s.finish(idx, ferrors.ResultCode(ferrors.Canceled(int32(id(idx)))), false)
}

// pastDeadline reports whether a timed request finished late.
func (s *Scheduler) pastDeadline(sl *slot) bool {
	return sl.timed && clock.Elapsed(s.clk.Now(), sl.deadline)
}

// finish publishes a result. The store order matters: result first, then
// state, then the done channel close that releases waiters.
func (s *Scheduler) finish(idx int16, result int32, expired bool) {
	sl := &s.slots[idx]
	now := s.clk.Now()
	sl.result.Store(result)

	if s.cfg.OnComplete != nil {
		c := Completion{
			ID:       id(idx),
			Timed:    sl.timed,
			Expired:  expired,
			Offset:   sl.offset,
			Length:   sl.length,
			Result:   result,
			Latency:  now.Sub(sl.submitted),
			Finished: now,
		}
		if sl.timed {
			c.Slack = sl.deadline.Sub(now)
		}
		if sl.inflight {
			c.Service = now.Sub(sl.started)
		}
		s.cfg.OnComplete(c)
	}

	s.nCompleted.Add(1)
	sl.state.Store(slotDone)
	close(sl.done)
}
