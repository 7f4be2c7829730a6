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
Package trace records scheduler completions for post-hoc inspection.

The trace system captures every request completion — class, deadline slack,
service time, result — for tuning, regression hunting, and field debugging
of deadline misses.

Trace Storage:
==============

Records are appended to a JSON-lines file, one object per completion:

  - seq: monotonically increasing record number
  - time: wall-clock completion time
  - request: request ID
  - timed / expired: request class and whether the deadline was missed
  - offset, length, result: the transfer and its outcome
  - error: decoded message when the result is a negated error code
  - slack_ms, service_ms, latency_ms: timing breakdown in ticks

When the active file exceeds the configured size it is rotated aside with a
timestamp suffix and optionally compressed (see internal/compression); a
fresh file takes its place.

Performance:
============

Recording is designed to stay off the scheduler's critical path:
  - Asynchronous recording with a buffered channel
  - Batched writes with a periodic flush
  - Records are dropped, and counted, rather than ever blocking the hook

Thread Safety:
==============

The recorder is safe for concurrent use. The completion hook may be called
from the scheduler goroutine while control methods run elsewhere.
*/
package trace

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"flystream/internal/compression"
	ferrors "flystream/internal/errors"
	"flystream/internal/logging"
	"flystream/internal/sched"
)

// Record is one completion as stored in the trace file.
type Record struct {
	Seq       int64     `json:"seq"`
	Time      time.Time `json:"time"`
	Request   int32     `json:"request"`
	Timed     bool      `json:"timed"`
	Expired   bool      `json:"expired,omitempty"`
	Offset    int64     `json:"offset"`
	Length    int32     `json:"length"`
	Result    int32     `json:"result"`
	Error     string    `json:"error,omitempty"`
	SlackMs   int32     `json:"slack_ms,omitempty"`
	ServiceMs int32     `json:"service_ms"`
	LatencyMs int32     `json:"latency_ms"`
}

// Config holds trace recorder configuration.
type Config struct {
	Enabled          bool                  `json:"enabled"`
	Path             string                `json:"path"`
	BufferSize       int                   `json:"buffer_size"`
	FlushIntervalSec int                   `json:"flush_interval_sec"`
	MaxSizeKB        int                   `json:"max_size_kb"` // rotate threshold; 0 = never
	Compression      compression.Algorithm `json:"compression"` // applied to rotated files
	RecordImmediate  bool                  `json:"record_immediate"`
	RecordTimed      bool                  `json:"record_timed"`
	ExpiredOnly      bool                  `json:"expired_only"`
}

// DefaultConfig returns default trace configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:          true,
		Path:             "flystream.trace",
		BufferSize:       1024,
		FlushIntervalSec: 5,
		MaxSizeKB:        1024,
		Compression:      compression.AlgorithmNone,
		RecordImmediate:  true,
		RecordTimed:      true,
		ExpiredOnly:      false,
	}
}

// Recorder writes completion records to disk.
type Recorder struct {
	config  Config
	logger  *logging.Logger
	comp    *compression.Compressor
	buffer  chan Record
	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.RWMutex
	enabled bool

	seq     atomic.Int64
	dropped atomic.Uint64

	// file and size are owned by the worker goroutine after start.
	file *os.File
	size int64
}

// NewRecorder opens the trace file and starts the background writer.
func NewRecorder(config Config) (*Recorder, error) {
	ccfg := compression.DefaultConfig()
	ccfg.Algorithm = config.Compression
	ccfg.MinSize = 0

	r := &Recorder{
		config:  config,
		logger:  logging.NewLogger("trace"),
		comp:    compression.NewCompressor(ccfg),
		buffer:  make(chan Record, config.BufferSize),
		stopCh:  make(chan struct{}),
		enabled: config.Enabled,
	}

	if config.Enabled {
		if err := r.open(); err != nil {
			return nil, err
		}
		r.wg.Add(1)
		go r.worker()
	}
	return r, nil
}

func (r *Recorder) open() error {
	if dir := filepath.Dir(r.config.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create trace directory: %w", err)
		}
	}
	f, err := os.OpenFile(r.config.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open trace file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("failed to stat trace file: %w", err)
	}
	r.file = f
	r.size = info.Size()
	return nil
}

// Hook adapts the recorder to the scheduler's completion callback.
func (r *Recorder) Hook() func(sched.Completion) {
	return func(c sched.Completion) {
		r.Log(fromCompletion(r.seq.Add(1), c))
	}
}

func fromCompletion(seq int64, c sched.Completion) Record {
	rec := Record{
		Seq:       seq,
		Time:      time.Now(),
		Request:   int32(c.ID),
		Timed:     c.Timed,
		Expired:   c.Expired,
		Offset:    c.Offset,
		Length:    c.Length,
		Result:    c.Result,
		SlackMs:   c.Slack,
		ServiceMs: c.Service,
		LatencyMs: c.Latency,
	}
	if c.Result < 0 {
		rec.Error = ferrors.FromResult(c.Result).Message
	}
	return rec
}

// Log records a completion asynchronously. The call never blocks; when the
// buffer is full the record is dropped and counted.
func (r *Recorder) Log(rec Record) {
	r.mu.RLock()
	enabled := r.enabled
	r.mu.RUnlock()

	if !enabled || !r.shouldRecord(rec) {
		return
	}

	select {
	case r.buffer <- rec:
	default:
		r.dropped.Add(1)
	}
}

// shouldRecord applies class filters from the configuration.
func (r *Recorder) shouldRecord(rec Record) bool {
	if rec.Timed && !r.config.RecordTimed {
		return false
	}
	if !rec.Timed && !r.config.RecordImmediate {
		return false
	}
	if r.config.ExpiredOnly && !rec.Expired {
		return false
	}
	return true
}

// Dropped returns how many records were lost to a full buffer.
func (r *Recorder) Dropped() uint64 {
	return r.dropped.Load()
}

// worker drains the buffer in batches.
func (r *Recorder) worker() {
	defer r.wg.Done()

	interval := time.Duration(r.config.FlushIntervalSec) * time.Second
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	batch := make([]Record, 0, 100)

	for {
		select {
		case rec := <-r.buffer:
			batch = append(batch, rec)
			if len(batch) >= 100 {
				r.flushBatch(batch)
				batch = batch[:0]
			}

		case <-ticker.C:
			if len(batch) > 0 {
				r.flushBatch(batch)
				batch = batch[:0]
			}

		case <-r.stopCh:
			for len(r.buffer) > 0 {
				batch = append(batch, <-r.buffer)
			}
			if len(batch) > 0 {
				r.flushBatch(batch)
			}
			if r.file != nil {
				r.file.Close()
				r.file = nil
			}
			return
		}
	}
}

// flushBatch appends a batch of records to the trace file.
func (r *Recorder) flushBatch(batch []Record) {
	for _, rec := range batch {
		if err := r.writeRecord(rec); err != nil {
			r.logger.Error("Failed to write trace record", "error", err, "seq", rec.Seq)
		}
	}
	if err := r.rotateIfNeeded(); err != nil {
		r.logger.Error("Trace rotation failed", "error", err)
	}
}

func (r *Recorder) writeRecord(rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal trace record: %w", err)
	}
	data = append(data, '\n')
	n, err := r.file.Write(data)
	r.size += int64(n)
	return err
}

// rotateIfNeeded moves an oversized trace file aside and opens a fresh one.
// Rotated files carry a timestamp suffix and, when configured, a
// compression extension.
func (r *Recorder) rotateIfNeeded() error {
	if r.config.MaxSizeKB <= 0 || r.size < int64(r.config.MaxSizeKB)*1024 {
		return nil
	}

	if err := r.file.Close(); err != nil {
		return err
	}
	rotated := fmt.Sprintf("%s.%d", r.config.Path, time.Now().UnixNano())
	if err := os.Rename(r.config.Path, rotated); err != nil {
		return err
	}

	if r.config.Compression != compression.AlgorithmNone {
		if err := r.compressRotated(rotated); err != nil {
			// The uncompressed rotation is still intact; keep going.
			r.logger.Warn("Failed to compress rotated trace", "file", rotated, "error", err)
		}
	}

	r.logger.Info("Rotated trace file", "file", rotated)
	return r.open()
}

func (r *Recorder) compressRotated(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	packed, err := r.comp.Compress(raw)
	if err != nil {
		return err
	}
	out := path + "." + CompressedExt(r.config.Compression)
	if err := os.WriteFile(out, packed, 0o644); err != nil {
		return err
	}
	return os.Remove(path)
}

// Stop flushes pending records and closes the trace file.
func (r *Recorder) Stop() {
	r.mu.Lock()
	if !r.enabled {
		r.mu.Unlock()
		return
	}
	r.enabled = false
	r.mu.Unlock()

	if r.config.Enabled {
		close(r.stopCh)
		r.wg.Wait()
	}
	if n := r.dropped.Load(); n > 0 {
		r.logger.Warn("Trace records dropped", "count", n)
	}
}

// CompressedExt returns the filename extension used for rotated files
// compressed with the given algorithm.
func CompressedExt(a compression.Algorithm) string {
	switch a {
	case compression.AlgorithmGzip:
		return "gz"
	case compression.AlgorithmLZ4:
		return "lz4"
	case compression.AlgorithmSnappy:
		return "sz"
	case compression.AlgorithmZstd:
		return "zst"
	default:
		return ""
	}
}

// AlgorithmForExt maps a rotated-file extension back to its algorithm.
func AlgorithmForExt(ext string) (compression.Algorithm, bool) {
	switch ext {
	case "gz":
		return compression.AlgorithmGzip, true
	case "lz4":
		return compression.AlgorithmLZ4, true
	case "sz":
		return compression.AlgorithmSnappy, true
	case "zst":
		return compression.AlgorithmZstd, true
	default:
		return compression.AlgorithmNone, false
	}
}
