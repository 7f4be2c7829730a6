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
Package device abstracts the blocking seek+read primitive the FlyStream
scheduler drives.

A Device is deliberately minimal: position the head, transfer bytes. The
scheduler is the only component that touches a device, and it does so from a
single goroutine, so implementations do not need to tolerate concurrent
calls to Seek/Read. Opening, closing, and pathname resolution belong to the
file layer above the scheduler; fault retry policy belongs to the caller.
Neither lives here.
*/
package device

import (
	"io"
	"os"
)

// Device is a seekable, blocking byte source. The scheduler serializes all
// access; implementations may assume Seek and Read are never called
// concurrently.
type Device interface {
	// Seek positions the device at an absolute byte offset.
	Seek(offset int64) error

	// Read transfers up to len(p) bytes from the current position. It
	// returns io.EOF (possibly alongside a short count on the preceding
	// call) when the medium is exhausted.
	Read(p []byte) (int, error)
}

// FileDevice adapts an *os.File to the Device interface.
type FileDevice struct {
	f *os.File
}

// Open opens the file at path for reading and hints the kernel that access
// will be sequential where the platform supports it.
func Open(path string) (*FileDevice, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	advise(f)
	return &FileDevice{f: f}, nil
}

// NewFileDevice wraps an already-open file. The caller retains ownership of
// the handle.
func NewFileDevice(f *os.File) *FileDevice {
	return &FileDevice{f: f}
}

// Seek implements Device.
func (d *FileDevice) Seek(offset int64) error {
	_, err := d.f.Seek(offset, io.SeekStart)
	return err
}

// Read implements Device.
func (d *FileDevice) Read(p []byte) (int, error) {
	return d.f.Read(p)
}

// Close closes the underlying file.
func (d *FileDevice) Close() error {
	return d.f.Close()
}
