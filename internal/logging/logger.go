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
Package logging provides structured, leveled logging for FlyStream.

Loggers are cheap handles named after the component they serve. Output is a
single process-wide sink with two wire formats:

  - Text: "2026-01-02 15:04:05.000 [INFO ] [sched] message key=value"
  - JSON: one Entry object per line, for log shippers

Levels, output destination, and the JSON switch are global so that embedded
integrations can redirect everything with three calls at startup. Key/value
fields ride along variadically, slog-style; With() pre-binds fields for
loggers that always annotate the same context.
*/
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Level represents a log severity level.
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

// String returns the canonical upper-case name of the level.
func (l Level) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "INFO"
	}
}

// ParseLevel parses a level name, case-insensitively. Unknown names map to
// INFO.
func ParseLevel(s string) Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return DEBUG
	case "INFO":
		return INFO
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	default:
		return INFO
	}
}

// Entry is the JSON wire format of a single log record.
type Entry struct {
	Timestamp string            `json:"timestamp"`
	Level     string            `json:"level"`
	Component string            `json:"component"`
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields,omitempty"`
}

var global = struct {
	mu       sync.Mutex
	out      io.Writer
	level    Level
	jsonMode bool
}{
	out:   os.Stderr,
	level: INFO,
}

// SetGlobalOutput redirects all loggers to w.
func SetGlobalOutput(w io.Writer) {
	global.mu.Lock()
	global.out = w
	global.mu.Unlock()
}

// SetGlobalLevel sets the minimum level emitted by all loggers.
func SetGlobalLevel(l Level) {
	global.mu.Lock()
	global.level = l
	global.mu.Unlock()
}

// SetJSONMode toggles JSON output for all loggers.
func SetJSONMode(on bool) {
	global.mu.Lock()
	global.jsonMode = on
	global.mu.Unlock()
}

// Logger emits records tagged with a component name.
type Logger struct {
	component string
	bound     []string // alternating key, value
}

// NewLogger creates a logger for the named component.
func NewLogger(component string) *Logger {
	return &Logger{component: component}
}

// With returns a logger that attaches the given key/value pairs to every
// record it emits.
func (l *Logger) With(kv ...any) *Logger {
	bound := make([]string, 0, len(l.bound)+len(kv))
	bound = append(bound, l.bound...)
	for i := 0; i+1 < len(kv); i += 2 {
		bound = append(bound, fmt.Sprint(kv[i]), fmt.Sprint(kv[i+1]))
	}
	return &Logger{component: l.component, bound: bound}
}

// Debug logs at DEBUG level.
func (l *Logger) Debug(msg string, kv ...any) { l.log(DEBUG, msg, kv) }

// Info logs at INFO level.
func (l *Logger) Info(msg string, kv ...any) { l.log(INFO, msg, kv) }

// Warn logs at WARN level.
func (l *Logger) Warn(msg string, kv ...any) { l.log(WARN, msg, kv) }

// Error logs at ERROR level.
func (l *Logger) Error(msg string, kv ...any) { l.log(ERROR, msg, kv) }

func (l *Logger) log(level Level, msg string, kv []any) {
	global.mu.Lock()
	defer global.mu.Unlock()

	if level < global.level {
		return
	}

	fields := make(map[string]string, len(l.bound)/2+len(kv)/2)
	var order []string
	for i := 0; i+1 < len(l.bound); i += 2 {
		if _, seen := fields[l.bound[i]]; !seen {
			order = append(order, l.bound[i])
		}
		fields[l.bound[i]] = l.bound[i+1]
	}
	for i := 0; i+1 < len(kv); i += 2 {
		k := fmt.Sprint(kv[i])
		if _, seen := fields[k]; !seen {
			order = append(order, k)
		}
		fields[k] = fmt.Sprint(kv[i+1])
	}

	now := time.Now()

	if global.jsonMode {
		entry := Entry{
			Timestamp: now.Format(time.RFC3339Nano),
			Level:     level.String(),
			Component: l.component,
			Message:   msg,
		}
		if len(fields) > 0 {
			entry.Fields = fields
		}
		if data, err := json.Marshal(entry); err == nil {
			fmt.Fprintln(global.out, string(data))
		}
		return
	}

	var sb strings.Builder
	sb.WriteString(now.Format("2006-01-02 15:04:05.000"))
	fmt.Fprintf(&sb, " [%-5s] [%s] %s", level.String(), l.component, msg)
	for _, k := range order {
		fmt.Fprintf(&sb, " %s=%s", k, fields[k])
	}
	fmt.Fprintln(global.out, sb.String())
}
