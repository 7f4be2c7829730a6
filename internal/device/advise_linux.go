/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 * Licensed under the Apache License, Version 2.0
 */

//go:build linux

package device

import (
	"os"

	"golang.org/x/sys/unix"
)

// advise tells the kernel the file will be read sequentially, so readahead
// can be sized for streaming. Failure is harmless.
func advise(f *os.File) {
	_ = unix.Fadvise(int(f.Fd()), 0, 0, unix.FADV_SEQUENTIAL)
}
