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
Package config provides configuration management for FlyStream.

Configuration Sources (later sources override earlier ones):
============================================================

1. Built-in defaults (DefaultConfig)
2. Configuration file (TOML-style key = value lines)
3. Environment variables (FLYSTREAM_*)

Scheduler Tuning Knobs:
=======================

  block_size          Bytes transferred per scheduler iteration for one
                      request. Large enough to amortize per-call overhead,
                      small enough that no request monopolizes the device.
  max_requests        Request table capacity: expected peak concurrent
                      asynchronous reads plus headroom for synchronous reads.
  priority_window_ms  How long the scheduler stays in deadline-priority mode
                      after servicing an expired timed request.
  priority_delay_ms   Idle retry interval while deadline-priority mode has
                      no expired request to service.
  acquire_timeout_ms  Upper bound on waiting for the slot allocation lock.

Deadline offsets themselves are supplied by callers per request and carry
no unit policy here.
*/
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"flystream/internal/sched"
)

// Environment variable names.
const (
	EnvBlockSize        = "FLYSTREAM_BLOCK_SIZE"
	EnvMaxRequests      = "FLYSTREAM_MAX_REQUESTS"
	EnvPriorityWindow   = "FLYSTREAM_PRIORITY_WINDOW_MS"
	EnvPriorityDelay    = "FLYSTREAM_PRIORITY_DELAY_MS"
	EnvAcquireTimeout   = "FLYSTREAM_ACQUIRE_TIMEOUT_MS"
	EnvLogLevel         = "FLYSTREAM_LOG_LEVEL"
	EnvLogJSON          = "FLYSTREAM_LOG_JSON"
	EnvTracePath        = "FLYSTREAM_TRACE_PATH"
	EnvTraceCompression = "FLYSTREAM_TRACE_COMPRESSION"
)

// Config holds the FlyStream configuration.
type Config struct {
	// Scheduler
	BlockSize        int // bytes per chunk
	MaxRequests      int // request table capacity
	PriorityWindowMs int // deadline-priority mode window
	PriorityDelayMs  int // idle retry interval in priority mode
	AcquireTimeoutMs int // allocation lock acquire timeout

	// Logging
	LogLevel string
	LogJSON  bool

	// Completion tracing
	TracePath        string // empty disables tracing
	TraceCompression string // none, gzip, lz4, snappy, zstd
	TraceMaxSizeKB   int    // rotation threshold

	// Metadata
	ConfigFile string
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		BlockSize:        32768,
		MaxRequests:      32,
		PriorityWindowMs: 100,
		PriorityDelayMs:  5,
		AcquireTimeoutMs: 1000,
		LogLevel:         "info",
		LogJSON:          false,
		TracePath:        "",
		TraceCompression: "none",
		TraceMaxSizeKB:   1024,
	}
}

var validCompression = map[string]bool{
	"none": true, "gzip": true, "lz4": true, "snappy": true, "zstd": true,
}

var validLogLevels = map[string]bool{
	"debug": true, "info": true, "warn": true, "error": true,
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if c.BlockSize <= 0 {
		return fmt.Errorf("block_size must be positive, got %d", c.BlockSize)
	}
	if c.MaxRequests <= 0 {
		return fmt.Errorf("max_requests must be positive, got %d", c.MaxRequests)
	}
	// Queue links are 16-bit slot indexes.
	if c.MaxRequests > 32766 {
		return fmt.Errorf("max_requests must be at most 32766, got %d", c.MaxRequests)
	}
	if c.PriorityWindowMs <= 0 {
		return fmt.Errorf("priority_window_ms must be positive, got %d", c.PriorityWindowMs)
	}
	if c.PriorityDelayMs <= 0 {
		return fmt.Errorf("priority_delay_ms must be positive, got %d", c.PriorityDelayMs)
	}
	if c.PriorityDelayMs > c.PriorityWindowMs {
		return fmt.Errorf("priority_delay_ms (%d) must not exceed priority_window_ms (%d)",
			c.PriorityDelayMs, c.PriorityWindowMs)
	}
	if c.AcquireTimeoutMs <= 0 {
		return fmt.Errorf("acquire_timeout_ms must be positive, got %d", c.AcquireTimeoutMs)
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		return fmt.Errorf("invalid log_level: %s", c.LogLevel)
	}
	if !validCompression[strings.ToLower(c.TraceCompression)] {
		return fmt.Errorf("invalid trace_compression: %s", c.TraceCompression)
	}
	if c.TraceMaxSizeKB <= 0 {
		return fmt.Errorf("trace_max_size_kb must be positive, got %d", c.TraceMaxSizeKB)
	}
	return nil
}

// Manager loads and serves the process configuration.
type Manager struct {
	mu  sync.RWMutex
	cfg *Config
}

// NewManager creates a manager holding the default configuration.
func NewManager() *Manager {
	return &Manager{cfg: DefaultConfig()}
}

// Get returns the current configuration.
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

// LoadFromFile loads configuration from a TOML-style file. Unknown keys are
// ignored so that newer config files keep working with older binaries.
func (m *Manager) LoadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for lineNo, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return fmt.Errorf("malformed config line %d: %s", lineNo+1, line)
		}
		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), `"`)

		if err := m.apply(key, value); err != nil {
			return fmt.Errorf("config line %d: %w", lineNo+1, err)
		}
	}

	m.cfg.ConfigFile = path
	return nil
}

// LoadFromEnv overrides configuration from environment variables.
func (m *Manager) LoadFromEnv() {
	m.mu.Lock()
	defer m.mu.Unlock()

	envKeys := map[string]string{
		EnvBlockSize:        "block_size",
		EnvMaxRequests:      "max_requests",
		EnvPriorityWindow:   "priority_window_ms",
		EnvPriorityDelay:    "priority_delay_ms",
		EnvAcquireTimeout:   "acquire_timeout_ms",
		EnvLogLevel:         "log_level",
		EnvLogJSON:          "log_json",
		EnvTracePath:        "trace_path",
		EnvTraceCompression: "trace_compression",
	}
	for env, key := range envKeys {
		if v := os.Getenv(env); v != "" {
			// Env values are operator-supplied; a bad one falls through to
			// Validate rather than failing the load.
			_ = m.apply(key, v)
		}
	}
}

func (m *Manager) apply(key, value string) error {
	switch key {
	case "block_size":
		return setInt(&m.cfg.BlockSize, key, value)
	case "max_requests":
		return setInt(&m.cfg.MaxRequests, key, value)
	case "priority_window_ms":
		return setInt(&m.cfg.PriorityWindowMs, key, value)
	case "priority_delay_ms":
		return setInt(&m.cfg.PriorityDelayMs, key, value)
	case "acquire_timeout_ms":
		return setInt(&m.cfg.AcquireTimeoutMs, key, value)
	case "log_level":
		m.cfg.LogLevel = value
	case "log_json":
		m.cfg.LogJSON = value == "true"
	case "trace_path":
		m.cfg.TracePath = value
	case "trace_compression":
		m.cfg.TraceCompression = value
	case "trace_max_size_kb":
		return setInt(&m.cfg.TraceMaxSizeKB, key, value)
	}
	return nil
}

func setInt(dst *int, key, value string) error {
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid integer for %s: %q", key, value)
	}
	*dst = n
	return nil
}

// SchedulerConfig converts the scheduler fields into a sched.Config. The
// hook and clock fields are left for the caller to fill in.
func (c *Config) SchedulerConfig() sched.Config {
	sc := sched.DefaultConfig()
	sc.BlockSize = int32(c.BlockSize)
	sc.MaxRequests = c.MaxRequests
	sc.PriorityWindow = time.Duration(c.PriorityWindowMs) * time.Millisecond
	sc.PriorityDelay = time.Duration(c.PriorityDelayMs) * time.Millisecond
	sc.AcquireTimeout = time.Duration(c.AcquireTimeoutMs) * time.Millisecond
	return sc
}

// ToTOML renders the configuration as a TOML document.
func (c *Config) ToTOML() string {
	var sb strings.Builder
	sb.WriteString("# FlyStream configuration\n\n")
	fmt.Fprintf(&sb, "block_size = %d\n", c.BlockSize)
	fmt.Fprintf(&sb, "max_requests = %d\n", c.MaxRequests)
	fmt.Fprintf(&sb, "priority_window_ms = %d\n", c.PriorityWindowMs)
	fmt.Fprintf(&sb, "priority_delay_ms = %d\n", c.PriorityDelayMs)
	fmt.Fprintf(&sb, "acquire_timeout_ms = %d\n", c.AcquireTimeoutMs)
	fmt.Fprintf(&sb, "log_level = %q\n", c.LogLevel)
	fmt.Fprintf(&sb, "log_json = %v\n", c.LogJSON)
	if c.TracePath != "" {
		fmt.Fprintf(&sb, "trace_path = %q\n", c.TracePath)
		fmt.Fprintf(&sb, "trace_compression = %q\n", c.TraceCompression)
		fmt.Fprintf(&sb, "trace_max_size_kb = %d\n", c.TraceMaxSizeKB)
	}
	return sb.String()
}

// SaveToFile writes the configuration to path, creating parent directories
// as needed.
func (c *Config) SaveToFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(c.ToTOML()), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
