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
Package compression provides configurable compression for FlyStream.

Compression Overview:
=====================

This module implements configurable compression for:
- Rotated completion-trace archives to reduce disk footprint
- Trace export payloads
- Batched trace records for better compression ratios

Supported Algorithms:
=====================

1. LZ4: Fast compression/decompression, moderate ratio
2. Snappy: Very fast, lower ratio, good for real-time
3. Zstd: Best ratio, configurable speed/ratio tradeoff
4. Gzip: Ubiquitous, useful when archives leave the device

Batch Compression:
==================

Batching multiple records before compression improves ratios:
1. Collect records into a batch
2. Compress the entire batch
3. Store/transmit compressed batch
4. Decompress and split on read
*/
package compression

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Algorithm represents a compression algorithm
type Algorithm int

const (
	AlgorithmNone Algorithm = iota
	AlgorithmGzip
	AlgorithmLZ4
	AlgorithmSnappy
	AlgorithmZstd
)

func (a Algorithm) String() string {
	switch a {
	case AlgorithmNone:
		return "none"
	case AlgorithmGzip:
		return "gzip"
	case AlgorithmLZ4:
		return "lz4"
	case AlgorithmSnappy:
		return "snappy"
	case AlgorithmZstd:
		return "zstd"
	default:
		return "unknown"
	}
}

// ParseAlgorithm parses a compression algorithm from string
func ParseAlgorithm(s string) (Algorithm, error) {
	switch s {
	case "none", "":
		return AlgorithmNone, nil
	case "gzip":
		return AlgorithmGzip, nil
	case "lz4":
		return AlgorithmLZ4, nil
	case "snappy":
		return AlgorithmSnappy, nil
	case "zstd":
		return AlgorithmZstd, nil
	default:
		return AlgorithmNone, fmt.Errorf("unknown compression algorithm: %s", s)
	}
}

// Level represents compression level
type Level int

const (
	LevelFastest Level = 1
	LevelDefault Level = 5
	LevelBest    Level = 9
)

// Config holds compression configuration
type Config struct {
	Algorithm    Algorithm `json:"algorithm"`
	Level        Level     `json:"level"`
	MinSize      int       `json:"min_size"`         // Minimum size to compress
	BatchSize    int       `json:"batch_size"`       // Number of records per batch
	BatchTimeout int       `json:"batch_timeout_ms"` // Max wait time for batch (ms)
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Algorithm:    AlgorithmZstd,
		Level:        LevelDefault,
		MinSize:      256,
		BatchSize:    100,
		BatchTimeout: 10,
	}
}

// Errors
var (
	ErrDataTooSmall     = errors.New("data too small to compress")
	ErrInvalidHeader    = errors.New("invalid compression header")
	ErrUnsupportedAlgo  = errors.New("unsupported compression algorithm")
	ErrDecompressFailed = errors.New("decompression failed")
)

// Compressor provides compression/decompression operations
type Compressor struct {
	config     Config
	gzipPool   sync.Pool
	bufferPool sync.Pool
}

// NewCompressor creates a new compressor
func NewCompressor(config Config) *Compressor {
	return &Compressor{
		config: config,
		gzipPool: sync.Pool{
			New: func() interface{} {
				return gzip.NewWriter(nil)
			},
		},
		bufferPool: sync.Pool{
			New: func() interface{} {
				return new(bytes.Buffer)
			},
		},
	}
}

// Compress compresses data with the configured algorithm. Inputs below
// MinSize come back unchanged with ErrDataTooSmall so callers can store
// them raw.
func (c *Compressor) Compress(data []byte) ([]byte, error) {
	if len(data) < c.config.MinSize {
		return data, ErrDataTooSmall
	}

	switch c.config.Algorithm {
	case AlgorithmNone:
		out := make([]byte, len(data))
		copy(out, data)
		return out, nil

	case AlgorithmSnappy:
		return snappy.Encode(nil, data), nil

	case AlgorithmGzip:
		return c.compressGzip(data)

	case AlgorithmLZ4:
		return c.compressLZ4(data)

	case AlgorithmZstd:
		return c.compressZstd(data)

	default:
		return nil, ErrUnsupportedAlgo
	}
}

// Decompress reverses Compress for the given algorithm.
func (c *Compressor) Decompress(data []byte, algo Algorithm) ([]byte, error) {
	switch algo {
	case AlgorithmNone:
		out := make([]byte, len(data))
		copy(out, data)
		return out, nil

	case AlgorithmSnappy:
		out, err := snappy.Decode(nil, data)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecompressFailed, err)
		}
		return out, nil

	case AlgorithmGzip:
		return c.decompressGzip(data)

	case AlgorithmLZ4:
		return decompressStream(lz4.NewReader(bytes.NewReader(data)))

	case AlgorithmZstd:
		return c.decompressZstd(data)

	default:
		return nil, ErrUnsupportedAlgo
	}
}

func (c *Compressor) compressGzip(data []byte) ([]byte, error) {
	buf := c.bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer c.bufferPool.Put(buf)

	w := c.gzipPool.Get().(*gzip.Writer)
	w.Reset(buf)
	defer c.gzipPool.Put(w)

	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out, nil
}

func (c *Compressor) decompressGzip(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecompressFailed, err)
	}
	defer r.Close()
	return decompressStream(r)
}

func (c *Compressor) compressLZ4(data []byte) ([]byte, error) {
	buf := c.bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer c.bufferPool.Put(buf)

	w := lz4.NewWriter(buf)
	if err := w.Apply(lz4.CompressionLevelOption(c.lz4Level())); err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out, nil
}

func (c *Compressor) compressZstd(data []byte) ([]byte, error) {
	w, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(c.zstdLevel()))
	if err != nil {
		return nil, err
	}
	out := w.EncodeAll(data, nil)
	w.Close()
	return out, nil
}

func (c *Compressor) decompressZstd(data []byte) ([]byte, error) {
	r, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	out, err := r.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecompressFailed, err)
	}
	return out, nil
}

func (c *Compressor) lz4Level() lz4.CompressionLevel {
	switch {
	case c.config.Level <= LevelFastest:
		return lz4.Fast
	case c.config.Level >= LevelBest:
		return lz4.Level9
	default:
		return lz4.Level5
	}
}

func (c *Compressor) zstdLevel() zstd.EncoderLevel {
	switch {
	case c.config.Level <= LevelFastest:
		return zstd.SpeedFastest
	case c.config.Level >= LevelBest:
		return zstd.SpeedBestCompression
	default:
		return zstd.SpeedDefault
	}
}

func decompressStream(r io.Reader) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecompressFailed, err)
	}
	return buf.Bytes(), nil
}

// ============================================================================
// Batch compression
// ============================================================================

// BatchCompressor collects records and compresses them as one unit. Records
// are length-prefixed so the batch can be split again after decompression.
type BatchCompressor struct {
	compressor *Compressor
	mu         sync.Mutex
	records    [][]byte
}

// NewBatchCompressor creates a batch compressor
func NewBatchCompressor(config Config) *BatchCompressor {
	return &BatchCompressor{
		compressor: NewCompressor(config),
	}
}

// Add appends a record to the pending batch and reports whether the batch
// has reached the configured size.
func (b *BatchCompressor) Add(record []byte) bool {
	cp := make([]byte, len(record))
	copy(cp, record)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.records = append(b.records, cp)
	return b.compressor.config.BatchSize > 0 && len(b.records) >= b.compressor.config.BatchSize
}

// Pending returns the number of records waiting in the batch.
func (b *BatchCompressor) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.records)
}

// Flush serializes and compresses the pending batch, then resets it.
func (b *BatchCompressor) Flush() ([]byte, error) {
	b.mu.Lock()
	records := b.records
	b.records = nil
	b.mu.Unlock()

	var raw bytes.Buffer
	var hdr [binary.MaxVarintLen64]byte

	n := binary.PutUvarint(hdr[:], uint64(len(records)))
	raw.Write(hdr[:n])
	for _, rec := range records {
		n = binary.PutUvarint(hdr[:], uint64(len(rec)))
		raw.Write(hdr[:n])
		raw.Write(rec)
	}

	out, err := b.compressor.Compress(raw.Bytes())
	if errors.Is(err, ErrDataTooSmall) {
		// Small batches are still valid; store them raw.
		return out, nil
	}
	return out, err
}

// DecompressBatch decompresses a batch and splits it back into records.
func (b *BatchCompressor) DecompressBatch(data []byte, algo Algorithm) ([][]byte, error) {
	raw, err := b.compressor.Decompress(data, algo)
	if err != nil {
		return nil, err
	}

	count, n := binary.Uvarint(raw)
	if n <= 0 {
		return nil, ErrInvalidHeader
	}
	raw = raw[n:]

	records := make([][]byte, 0, count)
	for i := uint64(0); i < count; i++ {
		size, n := binary.Uvarint(raw)
		if n <= 0 || uint64(len(raw)-n) < size {
			return nil, ErrInvalidHeader
		}
		raw = raw[n:]
		rec := make([]byte, size)
		copy(rec, raw[:size])
		records = append(records, rec)
		raw = raw[size:]
	}
	return records, nil
}
