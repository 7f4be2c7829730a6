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

package device

import (
	"io"
	"sync"
	"time"
)

// MemDevice is an in-memory Device used by tests, benchmarks, and the demo.
// It can simulate a slow medium (per-read delay), a stalled medium (Hold /
// Release), and a failing medium (FailNext).
type MemDevice struct {
	mu        sync.Mutex
	data      []byte
	pos       int64
	readDelay time.Duration
	failNext  error
	gate      chan struct{}

	reads int64
	bytes int64
}

// NewMemDevice creates a device serving the given bytes.
func NewMemDevice(data []byte) *MemDevice {
	return &MemDevice{data: data}
}

// SetReadDelay makes every subsequent Read sleep for d before returning.
func (d *MemDevice) SetReadDelay(delay time.Duration) {
	d.mu.Lock()
	d.readDelay = delay
	d.mu.Unlock()
}

// FailNext makes the next Read return err instead of data.
func (d *MemDevice) FailNext(err error) {
	d.mu.Lock()
	d.failNext = err
	d.mu.Unlock()
}

// Hold stalls all subsequent Reads until Release is called.
func (d *MemDevice) Hold() {
	d.mu.Lock()
	if d.gate == nil {
		d.gate = make(chan struct{})
	}
	d.mu.Unlock()
}

// Release unblocks Reads stalled by Hold.
func (d *MemDevice) Release() {
	d.mu.Lock()
	if d.gate != nil {
		close(d.gate)
		d.gate = nil
	}
	d.mu.Unlock()
}

// Seek implements Device. Seeking beyond the end is not an error; the next
// Read reports io.EOF, matching file semantics.
func (d *MemDevice) Seek(offset int64) error {
	d.mu.Lock()
	d.pos = offset
	d.mu.Unlock()
	return nil
}

// Read implements Device.
func (d *MemDevice) Read(p []byte) (int, error) {
	d.mu.Lock()
	gate := d.gate
	delay := d.readDelay
	d.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if delay > 0 {
		time.Sleep(delay)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.failNext != nil {
		err := d.failNext
		d.failNext = nil
		return 0, err
	}
	if d.pos >= int64(len(d.data)) {
		return 0, io.EOF
	}

	n := copy(p, d.data[d.pos:])
	d.pos += int64(n)
	d.reads++
	d.bytes += int64(n)
	return n, nil
}

// Reads returns the number of successful Read calls, for assertions on
// chunking behavior.
func (d *MemDevice) Reads() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.reads
}

// BytesServed returns the total bytes handed out.
func (d *MemDevice) BytesServed() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.bytes
}
