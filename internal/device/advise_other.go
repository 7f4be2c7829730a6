/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 * Licensed under the Apache License, Version 2.0
 */

//go:build !linux

package device

import "os"

func advise(_ *os.File) {}
