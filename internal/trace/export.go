/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 * Licensed under the Apache License, Version 2.0
 */

package trace

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"flystream/internal/compression"
)

// Filter selects records when reading a trace.
type Filter struct {
	Since       time.Time
	Until       time.Time
	Request     int32 // 0 matches all
	TimedOnly   bool
	ExpiredOnly bool
	ErrorsOnly  bool
	Limit       int
	Offset      int
}

// Match reports whether a record passes the filter.
func (f *Filter) Match(rec Record) bool {
	if !f.Since.IsZero() && rec.Time.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && rec.Time.After(f.Until) {
		return false
	}
	if f.Request != 0 && rec.Request != f.Request {
		return false
	}
	if f.TimedOnly && !rec.Timed {
		return false
	}
	if f.ExpiredOnly && !rec.Expired {
		return false
	}
	if f.ErrorsOnly && rec.Result >= 0 {
		return false
	}
	return true
}

// ReadFile loads a trace file, transparently decompressing rotated files by
// their extension, and returns the records passing the filter.
func ReadFile(path string, filter Filter) ([]Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read trace file: %w", err)
	}

	ext := strings.TrimPrefix(strings.ToLower(pathExt(path)), ".")
	if algo, ok := AlgorithmForExt(ext); ok {
		comp := compression.NewCompressor(compression.DefaultConfig())
		data, err = comp.Decompress(data, algo)
		if err != nil {
			return nil, fmt.Errorf("failed to decompress trace file: %w", err)
		}
	}

	return parseRecords(bytes.NewReader(data), filter)
}

func pathExt(path string) string {
	if i := strings.LastIndexByte(path, '.'); i >= 0 {
		return path[i:]
	}
	return ""
}

// parseRecords decodes JSON-lines trace data, applying the filter and its
// offset/limit window.
func parseRecords(r io.Reader, filter Filter) ([]Record, error) {
	var records []Record
	skipped := 0

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, fmt.Errorf("malformed trace record: %w", err)
		}
		if !filter.Match(rec) {
			continue
		}
		if skipped < filter.Offset {
			skipped++
			continue
		}
		records = append(records, rec)
		if filter.Limit > 0 && len(records) >= filter.Limit {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan trace file: %w", err)
	}
	return records, nil
}

// Summary aggregates a set of records.
type Summary struct {
	Records      int
	Timed        int
	Expired      int
	Errors       int
	BytesRead    int64
	WorstSlackMs int32
}

// Summarize computes aggregate figures over records.
func Summarize(records []Record) Summary {
	var s Summary
	s.Records = len(records)
	for _, rec := range records {
		if rec.Timed {
			s.Timed++
			if rec.SlackMs < s.WorstSlackMs {
				s.WorstSlackMs = rec.SlackMs
			}
		}
		if rec.Expired {
			s.Expired++
		}
		if rec.Result < 0 {
			s.Errors++
		} else {
			s.BytesRead += int64(rec.Result)
		}
	}
	return s
}

// ExportJSON writes records to w as an indented JSON array.
func ExportJSON(w io.Writer, records []Record) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(records); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}

// ExportCSV writes records to w as CSV with a header row.
func ExportCSV(w io.Writer, records []Record) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	header := []string{
		"Seq", "Time", "Request", "Timed", "Expired",
		"Offset", "Length", "Result", "Error",
		"SlackMs", "ServiceMs", "LatencyMs",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, rec := range records {
		row := []string{
			strconv.FormatInt(rec.Seq, 10),
			rec.Time.Format("2006-01-02 15:04:05.000"),
			strconv.FormatInt(int64(rec.Request), 10),
			strconv.FormatBool(rec.Timed),
			strconv.FormatBool(rec.Expired),
			strconv.FormatInt(rec.Offset, 10),
			strconv.FormatInt(int64(rec.Length), 10),
			strconv.FormatInt(int64(rec.Result), 10),
			rec.Error,
			strconv.FormatInt(int64(rec.SlackMs), 10),
			strconv.FormatInt(int64(rec.ServiceMs), 10),
			strconv.FormatInt(int64(rec.LatencyMs), 10),
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}
	return nil
}
