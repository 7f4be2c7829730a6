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
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFileDeviceSeekRead(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "flystream_device_test_*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	content := make([]byte, 1024)
	for i := range content {
		content[i] = byte(i % 251)
	}
	path := filepath.Join(tmpDir, "medium.bin")
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}

	dev, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer dev.Close()

	if err := dev.Seek(256); err != nil {
		t.Fatalf("Seek failed: %v", err)
	}

	buf := make([]byte, 128)
	n, err := dev.Read(buf)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if n != 128 {
		t.Errorf("Read() = %d bytes, want 128", n)
	}
	if !bytes.Equal(buf, content[256:384]) {
		t.Error("Read returned wrong bytes after seek")
	}
}

func TestFileDeviceEOF(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "flystream_device_test_*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	path := filepath.Join(tmpDir, "short.bin")
	if err := os.WriteFile(path, []byte("abc"), 0644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}

	dev, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer dev.Close()

	if err := dev.Seek(10); err != nil {
		t.Fatalf("Seek past EOF should not fail, got: %v", err)
	}
	n, err := dev.Read(make([]byte, 8))
	if n != 0 || err != io.EOF {
		t.Errorf("Read past EOF = (%d, %v), want (0, io.EOF)", n, err)
	}
}

func TestMemDeviceReadAdvancesPosition(t *testing.T) {
	dev := NewMemDevice([]byte("0123456789"))

	buf := make([]byte, 4)
	n, err := dev.Read(buf)
	if n != 4 || err != nil {
		t.Fatalf("Read() = (%d, %v), want (4, nil)", n, err)
	}
	if string(buf) != "0123" {
		t.Errorf("Read() = %q, want \"0123\"", buf)
	}

	n, err = dev.Read(buf)
	if n != 4 || err != nil {
		t.Fatalf("Read() = (%d, %v), want (4, nil)", n, err)
	}
	if string(buf) != "4567" {
		t.Errorf("Read() = %q, want \"4567\"", buf)
	}
}

func TestMemDeviceShortReadThenEOF(t *testing.T) {
	dev := NewMemDevice([]byte("abcde"))

	buf := make([]byte, 8)
	n, err := dev.Read(buf)
	if n != 5 || err != nil {
		t.Fatalf("Read() = (%d, %v), want short read (5, nil)", n, err)
	}

	n, err = dev.Read(buf)
	if n != 0 || err != io.EOF {
		t.Errorf("Read() at end = (%d, %v), want (0, io.EOF)", n, err)
	}
}

func TestMemDeviceSeek(t *testing.T) {
	dev := NewMemDevice([]byte("0123456789"))

	if err := dev.Seek(7); err != nil {
		t.Fatalf("Seek failed: %v", err)
	}
	buf := make([]byte, 3)
	n, err := dev.Read(buf)
	if n != 3 || err != nil {
		t.Fatalf("Read() = (%d, %v), want (3, nil)", n, err)
	}
	if string(buf) != "789" {
		t.Errorf("Read() = %q, want \"789\"", buf)
	}
}

func TestMemDeviceFailNext(t *testing.T) {
	dev := NewMemDevice([]byte("0123456789"))
	boom := errors.New("medium error")
	dev.FailNext(boom)

	_, err := dev.Read(make([]byte, 4))
	if err != boom {
		t.Errorf("Read() error = %v, want injected error", err)
	}

	// Fault is one-shot.
	n, err := dev.Read(make([]byte, 4))
	if n != 4 || err != nil {
		t.Errorf("Read() after fault = (%d, %v), want (4, nil)", n, err)
	}
}

func TestMemDeviceHoldRelease(t *testing.T) {
	dev := NewMemDevice([]byte("0123456789"))
	dev.Hold()

	done := make(chan struct{})
	go func() {
		dev.Read(make([]byte, 4))
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Read completed while device was held")
	case <-time.After(20 * time.Millisecond):
	}

	dev.Release()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Read did not complete after Release")
	}
}
