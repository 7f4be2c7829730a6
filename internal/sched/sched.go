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
Package sched implements the FlyStream asynchronous storage-read scheduler.

The scheduler owns a single storage device and services read requests from a
fixed-capacity slot table. Callers submit reads, continue with other work, and
later check or wait for completion. Two request classes are supported:

  - Immediate requests are serviced in submission order (FIFO).
  - Timed requests carry a deadline in the wraparound tick domain and are
    serviced in deadline order.

Scheduling Model:
=================

A single goroutine owns the device and both queues. Each pass it ingests
newly submitted slots from a buffered channel, services any timed request
whose deadline has already passed (all at once, to completion), and otherwise
transfers one block of the front request before re-evaluating. Bounding each
pass to one block keeps a newly expired deadline from waiting behind a large
immediate transfer.

When a deadline is missed the scheduler enters deadline-priority mode for a
configurable window, measured from the end of the expired service. Inside the
window only requests whose deadlines have already passed are serviced; the
remaining backlog, timed and immediate alike, is re-checked every
PriorityDelay, so a burst of traffic cannot starve a timed request that is
about to come due.

Slot Lifecycle:
===============

Each slot moves through an atomic state machine:

	Free -> Setup -> New -> Queued -> InService -> Done -> Free

Submitters own a slot from Setup until it is handed to the loop over the
submission channel; the loop owns it until completion; the waiter that claims
the completion owns the final release. Completion is published by closing the
slot's done channel, so any number of observers may Check while exactly one
Wait consumes the result.

Results:
========

A completed request carries a 32-bit result: non-negative values are bytes
transferred, negative values are negated error codes from internal/errors
(see errors.FromResult). Aborted requests complete with the canceled code;
requests alive at Close complete with the closed code. No request ever
vanishes without a result.

Thread Safety:
==============

All exported methods are safe for concurrent use. Submit, Check, Wait and
Abort may be called from any goroutine; the device itself is only ever
touched by the scheduler goroutine.
*/
package sched

import (
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"flystream/internal/clock"
	"flystream/internal/device"
	ferrors "flystream/internal/errors"
	"flystream/internal/logging"
)

// ============================================================================
// Configuration
// ============================================================================

// Config holds scheduler tuning parameters.
type Config struct {
	// BlockSize is the largest transfer performed in one scheduler pass.
	BlockSize int32

	// MaxRequests is the slot table capacity.
	MaxRequests int

	// PriorityWindow is how long deadline-priority mode lasts after a
	// missed deadline.
	PriorityWindow time.Duration

	// PriorityDelay is how long the held backlog waits between service
	// attempts while deadline-priority mode is active.
	PriorityDelay time.Duration

	// AcquireTimeout bounds how long Submit waits for a free slot. Zero
	// means fail immediately when the table is full.
	AcquireTimeout time.Duration

	// Clock supplies ticks for deadlines. Defaults to the process clock.
	Clock clock.Clock

	// OnComplete, if set, is invoked from the scheduler goroutine after
	// every completion, before waiters are released. It must not block.
	OnComplete func(Completion)
}

// DefaultConfig returns the stock scheduler configuration.
func DefaultConfig() Config {
	return Config{
		BlockSize:      32 * 1024,
		MaxRequests:    32,
		PriorityWindow: 100 * time.Millisecond,
		PriorityDelay:  5 * time.Millisecond,
		AcquireTimeout: 1 * time.Second,
	}
}

// Validate checks the configuration for usable values.
func (c *Config) Validate() error {
	if c.BlockSize <= 0 {
		return ferrors.NewValidationError("block size must be positive").
			WithDetail("a zero block size would make every transfer a no-op")
	}
	if c.MaxRequests <= 0 {
		return ferrors.NewValidationError("max requests must be positive")
	}
	if c.MaxRequests > maxTableSize {
		// Queue links are 16-bit slot indexes.
		return ferrors.NewValidationError("max requests exceeds slot index range")
	}
	if c.PriorityWindow < 0 || c.PriorityDelay < 0 {
		return ferrors.NewValidationError("priority durations must not be negative")
	}
	if c.PriorityDelay > c.PriorityWindow && c.PriorityWindow > 0 {
		return ferrors.NewValidationError("priority delay must not exceed the priority window")
	}
	if c.AcquireTimeout < 0 {
		return ferrors.NewValidationError("acquire timeout must not be negative")
	}
	return nil
}

// ============================================================================
// Public types
// ============================================================================

// RequestID identifies an outstanding request. IDs are slot-table indexes
// offset by one, so the zero value is never a valid ID.
type RequestID int32

// InvalidRequest is the zero RequestID returned by failed submissions.
const InvalidRequest RequestID = 0

// Status is the externally visible state of a request.
type Status int

const (
	// StatusPending means the request is queued or being serviced.
	StatusPending Status = iota

	// StatusDone means the request has completed and carries a result.
	StatusDone
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "PENDING"
	case StatusDone:
		return "DONE"
	default:
		return "UNKNOWN"
	}
}

// Completion describes one finished request. It is handed to the OnComplete
// hook and is the unit recorded by the trace package.
type Completion struct {
	ID       RequestID
	Timed    bool
	Expired  bool // deadline had passed before service finished
	Offset   int64
	Length   int32
	Result   int32 // bytes transferred, or a negated error code
	Slack    int32 // ticks remaining at completion; negative when late
	Service  int32 // ticks from first transfer to completion
	Latency  int32 // ticks from submission to completion
	Finished clock.Ticks
}

// Stats is a point-in-time snapshot of scheduler counters.
type Stats struct {
	Submitted       uint64
	Completed       uint64
	Aborted         uint64
	Expired         uint64
	PriorityWindows uint64
	BytesRead       uint64
	Chunks          uint64
}

// ============================================================================
// Scheduler
// ============================================================================

// Scheduler services asynchronous reads against a single device.
type Scheduler struct {
	cfg    Config
	dev    device.Device
	clk    clock.Clock
	logger *logging.Logger

	slots []slot
	gate  *semaphore.Weighted

	// newReqs carries slot indexes from submitters to the loop. Capacity
	// equals the table size, so a send never blocks while the semaphore
	// is held.
	newReqs chan int16

	immediate queue
	timed     queue

	// Deadline-priority mode state, owned by the loop goroutine.
	priority      bool
	priorityUntil clock.Ticks

	paused   atomic.Bool
	resumeCh chan struct{}

	closeMu sync.RWMutex
	closed  bool
	closeCh chan struct{}
	wg      sync.WaitGroup
	started atomic.Bool

	nSubmitted atomic.Uint64
	nCompleted atomic.Uint64
	nAborted   atomic.Uint64
	nExpired   atomic.Uint64
	nPriority  atomic.Uint64
	nBytes     atomic.Uint64
	nChunks    atomic.Uint64
}

// New creates a scheduler over the given device. Start must be called before
// submitted requests are serviced.
func New(dev device.Device, cfg Config) (*Scheduler, error) {
	if dev == nil {
		return nil, ferrors.NilDevice()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.System()
	}

	s := &Scheduler{
		cfg:       cfg,
		dev:       dev,
		clk:       clk,
		logger:    logging.NewLogger("sched"),
		slots:     make([]slot, cfg.MaxRequests),
		gate:      semaphore.NewWeighted(int64(cfg.MaxRequests)),
		newReqs:   make(chan int16, cfg.MaxRequests),
		immediate: newQueue(),
		timed:     newQueue(),
		resumeCh:  make(chan struct{}, 1),
		closeCh:   make(chan struct{}),
	}
	return s, nil
}

// Start launches the scheduler goroutine. Calling Start more than once is a
// no-op.
func (s *Scheduler) Start() {
	if !s.started.CompareAndSwap(false, true) {
		return
	}
	s.wg.Add(1)
	go s.run()
	s.logger.Info("Scheduler started",
		"block_size", s.cfg.BlockSize,
		"max_requests", s.cfg.MaxRequests)
}

// Close shuts the scheduler down. Every request still alive completes with
// the closed error code, so outstanding waiters are released rather than
// stranded. Close blocks until the loop has exited. Subsequent submissions
// fail with SchedulerClosed.
func (s *Scheduler) Close() error {
	s.closeMu.Lock()
	if s.closed {
		s.closeMu.Unlock()
		return nil
	}
	s.closed = true
	s.closeMu.Unlock()

	close(s.closeCh)
	if s.started.Load() {
		s.wg.Wait()
	} else {
		// Loop never ran; fail anything sitting in the channel ourselves.
		s.drainOnClose()
	}
	s.logger.Info("Scheduler closed", "completed", s.nCompleted.Load())
	return nil
}

// Pause holds servicing after the current pass. Submissions still succeed
// and queue up; nothing is transferred until Resume.
func (s *Scheduler) Pause() {
	s.paused.Store(true)
}

// Resume releases a prior Pause.
func (s *Scheduler) Resume() {
	s.paused.Store(false)
	select {
	case s.resumeCh <- struct{}{}:
	default:
	}
}

// Stats returns a snapshot of the scheduler counters.
func (s *Scheduler) Stats() Stats {
	return Stats{
		Submitted:       s.nSubmitted.Load(),
		Completed:       s.nCompleted.Load(),
		Aborted:         s.nAborted.Load(),
		Expired:         s.nExpired.Load(),
		PriorityWindows: s.nPriority.Load(),
		BytesRead:       s.nBytes.Load(),
		Chunks:          s.nChunks.Load(),
	}
}
