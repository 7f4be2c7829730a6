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
	"bytes"
	"context"
	"errors"
	"math"
	"strconv"
	"sync"
	"testing"
	"time"

	"flystream/internal/device"
	ferrors "flystream/internal/errors"
)

// recorder collects completions from the OnComplete hook.
type recorder struct {
	mu   sync.Mutex
	list []Completion
}

func (r *recorder) add(c Completion) {
	r.mu.Lock()
	r.list = append(r.list, c)
	r.mu.Unlock()
}

func (r *recorder) ids() []RequestID {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]RequestID, len(r.list))
	for i, c := range r.list {
		out[i] = c.ID
	}
	return out
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.list)
}

// testPattern fills n bytes with a recognizable sequence.
func testPattern(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i * 7)
	}
	return data
}

// newTestScheduler builds and starts a scheduler over an in-memory device.
func newTestScheduler(t *testing.T, data []byte, mutate func(*Config)) (*Scheduler, *device.MemDevice, *recorder) {
	t.Helper()

	dev := device.NewMemDevice(data)
	rec := &recorder{}
	cfg := DefaultConfig()
	cfg.OnComplete = rec.add
	if mutate != nil {
		mutate(&cfg)
	}

	s, err := New(dev, cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	s.Start()
	t.Cleanup(func() { s.Close() })
	return s, dev, rec
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", nil, false},
		{"zero block size", func(c *Config) { c.BlockSize = 0 }, true},
		{"negative block size", func(c *Config) { c.BlockSize = -1 }, true},
		{"zero max requests", func(c *Config) { c.MaxRequests = 0 }, true},
		{"table over index range", func(c *Config) { c.MaxRequests = maxTableSize + 1 }, true},
		{"table at index range", func(c *Config) { c.MaxRequests = maxTableSize }, false},
		{"negative priority window", func(c *Config) { c.PriorityWindow = -time.Second }, true},
		{"delay exceeds window", func(c *Config) {
			c.PriorityWindow = time.Millisecond
			c.PriorityDelay = 2 * time.Millisecond
		}, true},
		{"negative acquire timeout", func(c *Config) { c.AcquireTimeout = -1 }, true},
		{"zero acquire timeout", func(c *Config) { c.AcquireTimeout = 0 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			if tt.mutate != nil {
				tt.mutate(&cfg)
			}
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !ferrors.IsValidationError(err) {
				t.Errorf("Validate() error category = %v, want validation", err)
			}
		})
	}
}

func TestNewRejectsNilDevice(t *testing.T) {
	if _, err := New(nil, DefaultConfig()); err == nil {
		t.Error("New(nil device) error = nil, want error")
	}
}

func TestSubmitValidation(t *testing.T) {
	s, _, _ := newTestScheduler(t, testPattern(1024), nil)
	buf := make([]byte, 64)

	tests := []struct {
		name   string
		submit func() (RequestID, error)
	}{
		{"nil buffer", func() (RequestID, error) { return s.Submit(nil, 0, 0) }},
		{"negative length", func() (RequestID, error) { return s.Submit(buf, 0, -1) }},
		{"length exceeds buffer", func() (RequestID, error) { return s.Submit(buf, 0, 65) }},
		{"negative offset", func() (RequestID, error) { return s.Submit(buf, -1, 64) }},
		{"negative deadline offset", func() (RequestID, error) { return s.SubmitTimed(buf, 0, 64, -time.Second) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rid, err := tt.submit()
			if err == nil {
				t.Fatal("submit error = nil, want validation error")
			}
			if !ferrors.IsValidationError(err) {
				t.Errorf("submit error = %v, want validation category", err)
			}
			if rid != InvalidRequest {
				t.Errorf("submit id = %d, want InvalidRequest", rid)
			}
		})
	}
}

func TestSubmitLengthOverflow(t *testing.T) {
	if strconv.IntSize < 64 {
		t.Skip("needs a 64-bit int to express the length")
	}
	s, _, _ := newTestScheduler(t, testPattern(64), nil)

	// Results carry byte counts as int32, so larger lengths are rejected
	// before the buffer capacity check can truncate them.
	rid, err := s.Submit(make([]byte, 1), 0, int(int64(math.MaxInt32)+1))
	if err == nil {
		t.Fatal("Submit() error = nil, want validation error")
	}
	if !ferrors.IsValidationError(err) {
		t.Errorf("Submit() error = %v, want validation category", err)
	}
	if rid != InvalidRequest {
		t.Errorf("Submit() id = %d, want InvalidRequest", rid)
	}
}

func TestImmediateReadRoundTrip(t *testing.T) {
	data := testPattern(4096)
	s, _, _ := newTestScheduler(t, data, nil)

	buf := make([]byte, 1024)
	rid, err := s.Submit(buf, 512, len(buf))
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	res, err := s.Wait(context.Background(), rid)
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if res != 1024 {
		t.Errorf("Wait() result = %d, want 1024", res)
	}
	if !bytes.Equal(buf, data[512:1536]) {
		t.Error("buffer contents do not match device data")
	}
}

func TestImmediateFIFOOrder(t *testing.T) {
	s, _, rec := newTestScheduler(t, testPattern(8192), nil)
	s.Pause()

	var ids []RequestID
	for i := 0; i < 5; i++ {
		buf := make([]byte, 256)
		rid, err := s.Submit(buf, int64(i*256), len(buf))
		if err != nil {
			t.Fatalf("Submit() #%d error = %v", i, err)
		}
		ids = append(ids, rid)
	}
	s.Resume()

	for _, rid := range ids {
		if _, err := s.Wait(context.Background(), rid); err != nil {
			t.Fatalf("Wait(%d) error = %v", rid, err)
		}
	}

	got := rec.ids()
	if len(got) != len(ids) {
		t.Fatalf("completions = %d, want %d", len(got), len(ids))
	}
	for i := range ids {
		if got[i] != ids[i] {
			t.Errorf("completion #%d = request %d, want %d", i, got[i], ids[i])
		}
	}
}

func TestShortReadAtEOF(t *testing.T) {
	s, _, _ := newTestScheduler(t, testPattern(1000), nil)

	buf := make([]byte, 256)
	rid, err := s.Submit(buf, 900, len(buf))
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	res, err := s.Wait(context.Background(), rid)
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if res != 100 {
		t.Errorf("Wait() result = %d, want 100 (short read at end of device)", res)
	}
}

func TestReadPastEOF(t *testing.T) {
	s, _, _ := newTestScheduler(t, testPattern(100), nil)

	buf := make([]byte, 64)
	rid, err := s.Submit(buf, 1000, len(buf))
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	res, err := s.Wait(context.Background(), rid)
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if res != 0 {
		t.Errorf("Wait() result = %d, want 0", res)
	}
}

func TestZeroLengthRead(t *testing.T) {
	s, _, _ := newTestScheduler(t, testPattern(100), nil)

	rid, err := s.Submit([]byte{}, 0, 0)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	res, err := s.Wait(context.Background(), rid)
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if res != 0 {
		t.Errorf("Wait() result = %d, want 0", res)
	}
}

func TestChunkedTransferAccounting(t *testing.T) {
	const blockSize = 256
	length := 3*blockSize + 7
	s, _, _ := newTestScheduler(t, testPattern(4096), func(c *Config) {
		c.BlockSize = blockSize
	})

	buf := make([]byte, length)
	rid, err := s.Submit(buf, 0, length)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	res, err := s.Wait(context.Background(), rid)
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if res != int32(length) {
		t.Errorf("Wait() result = %d, want %d", res, length)
	}

	st := s.Stats()
	if st.Chunks != 4 {
		t.Errorf("Stats().Chunks = %d, want 4 (three full blocks plus remainder)", st.Chunks)
	}
	if st.BytesRead != uint64(length) {
		t.Errorf("Stats().BytesRead = %d, want %d", st.BytesRead, length)
	}
}

func TestTableFull(t *testing.T) {
	s, _, _ := newTestScheduler(t, testPattern(1024), func(c *Config) {
		c.MaxRequests = 2
		c.AcquireTimeout = 0
	})
	s.Pause()

	var ids []RequestID
	for i := 0; i < 2; i++ {
		rid, err := s.Submit(make([]byte, 16), 0, 16)
		if err != nil {
			t.Fatalf("Submit() #%d error = %v", i, err)
		}
		ids = append(ids, rid)
	}

	_, err := s.Submit(make([]byte, 16), 0, 16)
	if err == nil {
		t.Fatal("Submit() over capacity error = nil, want capacity error")
	}
	if !ferrors.IsCapacityError(err) {
		t.Errorf("Submit() over capacity error = %v, want capacity category", err)
	}

	// Draining the table frees capacity for new submissions.
	s.Resume()
	for _, rid := range ids {
		if _, err := s.Wait(context.Background(), rid); err != nil {
			t.Fatalf("Wait(%d) error = %v", rid, err)
		}
	}
	if _, err := s.Submit(make([]byte, 16), 0, 16); err != nil {
		t.Errorf("Submit() after drain error = %v", err)
	}
}

func TestCheckLifecycle(t *testing.T) {
	s, _, _ := newTestScheduler(t, testPattern(1024), nil)
	s.Pause()

	rid, err := s.Submit(make([]byte, 64), 0, 64)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	st, _, err := s.Check(rid)
	if err != nil {
		t.Fatalf("Check() while queued error = %v", err)
	}
	if st != StatusPending {
		t.Errorf("Check() while queued = %v, want %v", st, StatusPending)
	}

	s.Resume()
	res, err := s.Wait(context.Background(), rid)
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if res != 64 {
		t.Errorf("Wait() result = %d, want 64", res)
	}

	// Wait consumed the request, so the ID is no longer valid.
	if _, _, err := s.Check(rid); err == nil {
		t.Error("Check() after Wait error = nil, want unknown request")
	}
}

func TestCheckDoneBeforeWait(t *testing.T) {
	s, _, _ := newTestScheduler(t, testPattern(1024), nil)

	rid, err := s.Submit(make([]byte, 64), 0, 64)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		st, res, err := s.Check(rid)
		if err != nil {
			t.Fatalf("Check() error = %v", err)
		}
		if st == StatusDone {
			if res != 64 {
				t.Errorf("Check() result = %d, want 64", res)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("request did not complete in time")
		}
		time.Sleep(time.Millisecond)
	}

	// Check does not consume; Wait still returns the same result.
	res, err := s.Wait(context.Background(), rid)
	if err != nil {
		t.Fatalf("Wait() after Check error = %v", err)
	}
	if res != 64 {
		t.Errorf("Wait() result = %d, want 64", res)
	}
}

func TestCheckUnknown(t *testing.T) {
	s, _, _ := newTestScheduler(t, nil, nil)

	for _, rid := range []RequestID{0, -1, 9999} {
		if _, _, err := s.Check(rid); err == nil {
			t.Errorf("Check(%d) error = nil, want unknown request", rid)
		}
	}
}

func TestDoubleWait(t *testing.T) {
	s, _, _ := newTestScheduler(t, testPattern(1024), nil)
	s.Pause()

	rid, err := s.Submit(make([]byte, 64), 0, 64)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	firstDone := make(chan int32, 1)
	go func() {
		res, _ := s.Wait(context.Background(), rid)
		firstDone <- res
	}()

	// Give the first waiter time to claim the request.
	time.Sleep(50 * time.Millisecond)

	_, err = s.Wait(context.Background(), rid)
	if err == nil {
		t.Fatal("second Wait() error = nil, want double-wait error")
	}
	var fe *ferrors.FlyStreamError
	if !errors.As(err, &fe) || fe.Code != ferrors.ErrCodeDoubleWait {
		t.Errorf("second Wait() error = %v, want double-wait code", err)
	}

	s.Resume()
	if res := <-firstDone; res != 64 {
		t.Errorf("first Wait() result = %d, want 64", res)
	}
}

func TestWaitContextCancel(t *testing.T) {
	s, _, _ := newTestScheduler(t, testPattern(1024), nil)
	s.Pause()

	rid, err := s.Submit(make([]byte, 64), 0, 64)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := s.Wait(ctx, rid); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Wait() error = %v, want context deadline exceeded", err)
	}

	// The request survives a cancelled wait and can still be claimed.
	if st, _, err := s.Check(rid); err != nil || st != StatusPending {
		t.Fatalf("Check() after cancelled Wait = %v, %v, want pending", st, err)
	}

	s.Resume()
	res, err := s.Wait(context.Background(), rid)
	if err != nil {
		t.Fatalf("Wait() after cancel error = %v", err)
	}
	if res != 64 {
		t.Errorf("Wait() result = %d, want 64", res)
	}
}

func TestAbortBeforeService(t *testing.T) {
	s, _, rec := newTestScheduler(t, testPattern(1024), nil)
	s.Pause()

	rid, err := s.Submit(make([]byte, 64), 0, 64)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	if !s.Abort(rid) {
		t.Error("Abort() = false, want true")
	}
	// Aborting twice is harmless.
	if !s.Abort(rid) {
		t.Error("second Abort() = false, want true")
	}

	s.Resume()
	res, err := s.Wait(context.Background(), rid)
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if res >= 0 {
		t.Fatalf("Wait() result = %d, want negative error code", res)
	}
	if !ferrors.IsCanceled(ferrors.FromResult(res)) {
		t.Errorf("FromResult(%d) = %v, want canceled", res, ferrors.FromResult(res))
	}

	if s.Abort(rid) {
		t.Error("Abort() after completion = true, want false")
	}
	if got := s.Stats().Aborted; got != 1 {
		t.Errorf("Stats().Aborted = %d, want 1", got)
	}
	if n := rec.count(); n != 1 {
		t.Errorf("completions = %d, want 1", n)
	}
}

func TestAbortUnknown(t *testing.T) {
	s, _, _ := newTestScheduler(t, nil, nil)
	for _, rid := range []RequestID{0, -3, 500} {
		if s.Abort(rid) {
			t.Errorf("Abort(%d) = true, want false", rid)
		}
	}
}

func TestDeviceReadFailure(t *testing.T) {
	s, dev, _ := newTestScheduler(t, testPattern(1024), nil)
	dev.FailNext(errors.New("bad sector"))

	rid, err := s.Submit(make([]byte, 64), 0, 64)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	res, err := s.Wait(context.Background(), rid)
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if res >= 0 {
		t.Fatalf("Wait() result = %d, want negative error code", res)
	}
	if !ferrors.IsIOError(ferrors.FromResult(res)) {
		t.Errorf("FromResult(%d) category = %v, want IO", res, ferrors.FromResult(res))
	}

	// The fault is one-shot; the next request succeeds.
	rid, err = s.Submit(make([]byte, 64), 0, 64)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if res, _ := s.Wait(context.Background(), rid); res != 64 {
		t.Errorf("Wait() after fault result = %d, want 64", res)
	}
}

func TestCloseFailsPending(t *testing.T) {
	s, _, _ := newTestScheduler(t, testPattern(1024), nil)
	s.Pause()

	var ids []RequestID
	for i := 0; i < 3; i++ {
		rid, err := s.Submit(make([]byte, 64), 0, 64)
		if err != nil {
			t.Fatalf("Submit() #%d error = %v", i, err)
		}
		ids = append(ids, rid)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	for _, rid := range ids {
		res, err := s.Wait(context.Background(), rid)
		if err != nil {
			t.Fatalf("Wait(%d) after Close error = %v", rid, err)
		}
		if res >= 0 {
			t.Fatalf("Wait(%d) result = %d, want negative error code", rid, res)
		}
		if got := ferrors.GetCode(ferrors.FromResult(res)); got != ferrors.ErrCodeClosed {
			t.Errorf("Wait(%d) result code = %d, want %d", rid, got, ferrors.ErrCodeClosed)
		}
	}
}

func TestSubmitAfterClose(t *testing.T) {
	s, _, _ := newTestScheduler(t, nil, nil)
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	_, err := s.Submit(make([]byte, 16), 0, 16)
	if err == nil {
		t.Fatal("Submit() after Close error = nil, want closed error")
	}
	if got := ferrors.GetCode(err); got != ferrors.ErrCodeClosed {
		t.Errorf("Submit() after Close code = %d, want %d", got, ferrors.ErrCodeClosed)
	}

	// Close is idempotent.
	if err := s.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestReadSync(t *testing.T) {
	data := testPattern(2048)
	s, _, _ := newTestScheduler(t, data, nil)

	buf := make([]byte, 512)
	n, err := s.ReadSync(context.Background(), buf, 1024)
	if err != nil {
		t.Fatalf("ReadSync() error = %v", err)
	}
	if n != 512 {
		t.Errorf("ReadSync() n = %d, want 512", n)
	}
	if !bytes.Equal(buf, data[1024:1536]) {
		t.Error("ReadSync() buffer contents do not match device data")
	}
}

func TestReadSyncDeviceFailure(t *testing.T) {
	s, dev, _ := newTestScheduler(t, testPattern(1024), nil)
	dev.FailNext(errors.New("bad sector"))

	_, err := s.ReadSync(context.Background(), make([]byte, 64), 0)
	if err == nil {
		t.Fatal("ReadSync() error = nil, want IO error")
	}
	if !ferrors.IsIOError(err) {
		t.Errorf("ReadSync() error = %v, want IO category", err)
	}
}

func TestStatsCounters(t *testing.T) {
	s, _, _ := newTestScheduler(t, testPattern(4096), nil)

	for i := 0; i < 4; i++ {
		rid, err := s.Submit(make([]byte, 128), int64(i*128), 128)
		if err != nil {
			t.Fatalf("Submit() #%d error = %v", i, err)
		}
		if _, err := s.Wait(context.Background(), rid); err != nil {
			t.Fatalf("Wait() #%d error = %v", i, err)
		}
	}

	st := s.Stats()
	if st.Submitted != 4 {
		t.Errorf("Stats().Submitted = %d, want 4", st.Submitted)
	}
	if st.Completed != 4 {
		t.Errorf("Stats().Completed = %d, want 4", st.Completed)
	}
	if st.BytesRead != 512 {
		t.Errorf("Stats().BytesRead = %d, want 512", st.BytesRead)
	}
	if st.Expired != 0 || st.Aborted != 0 {
		t.Errorf("Stats() expired/aborted = %d/%d, want 0/0", st.Expired, st.Aborted)
	}
}

func TestSlotReuseAfterDrain(t *testing.T) {
	s, _, _ := newTestScheduler(t, testPattern(1024), func(c *Config) {
		c.MaxRequests = 1
	})

	// With a single slot every request reuses it; the ID stays stable.
	for i := 0; i < 5; i++ {
		rid, err := s.Submit(make([]byte, 32), 0, 32)
		if err != nil {
			t.Fatalf("Submit() #%d error = %v", i, err)
		}
		if rid != 1 {
			t.Errorf("Submit() #%d id = %d, want 1", i, rid)
		}
		if res, err := s.Wait(context.Background(), rid); err != nil || res != 32 {
			t.Fatalf("Wait() #%d = %d, %v, want 32, nil", i, res, err)
		}
	}
}
