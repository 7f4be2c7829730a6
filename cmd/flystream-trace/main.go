/*
 * Copyright (c) 2026 FlyStream Authors.
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
flystream-trace - FlyStream Completion Trace Inspector

This tool reads completion trace files written by the FlyStream scheduler and
renders them for inspection. Rotated traces compressed by the recorder are
decompressed transparently.

Usage:
    flystream-trace file.trace                # Human-readable listing
    flystream-trace --expired file.trace      # Only missed deadlines
    flystream-trace --errors file.trace       # Only failed requests
    flystream-trace --json file.trace         # Output as JSON
    flystream-trace --csv file.trace          # Output as CSV
    flystream-trace --quiet file.trace        # Summary line only (for scripting)
*/
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	ferrors "flystream/internal/errors"
	"flystream/internal/trace"
)

const (
	version   = "1.0.0"
	copyright = "Copyright (c) 2026 FlyStream Authors"
)

// ANSI color codes
const (
	reset  = "\033[0m"
	bold   = "\033[1m"
	dim    = "\033[2m"
	red    = "\033[31m"
	green  = "\033[32m"
	yellow = "\033[33m"
	cyan   = "\033[36m"
)

func main() {
	expiredOnly := flag.Bool("expired", false, "Only show requests that missed their deadline")
	timedOnly := flag.Bool("timed", false, "Only show timed requests")
	errorsOnly := flag.Bool("errors", false, "Only show failed requests")
	request := flag.Int("request", 0, "Only show a specific request ID")
	limit := flag.Int("limit", 0, "Stop after this many records (0 = all)")
	jsonOutput := flag.Bool("json", false, "Output as JSON")
	csvOutput := flag.Bool("csv", false, "Output as CSV")
	quiet := flag.Bool("quiet", false, "Only output the summary line (for scripting)")
	help := flag.Bool("help", false, "Show help")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.BoolVar(quiet, "q", false, "Only output the summary line (for scripting)")
	flag.BoolVar(help, "h", false, "Show help")
	flag.BoolVar(showVersion, "v", false, "Show version information")

	flag.Parse()

	if *help {
		printUsage()
		os.Exit(0)
	}

	if *showVersion {
		printVersion()
		os.Exit(0)
	}

	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "%s%s✗%s Expected exactly one trace file argument.\n", red, bold, reset)
		fmt.Fprintf(os.Stderr, "%sRun flystream-trace --help for usage.%s\n", dim, reset)
		os.Exit(2)
	}
	path := flag.Arg(0)

	filter := buildFilter(*expiredOnly, *timedOnly, *errorsOnly, *request, *limit)
	records, err := trace.ReadFile(path, filter)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s%s✗%s Failed to read trace: %v\n", red, bold, reset, err)
		os.Exit(1)
	}

	switch {
	case *jsonOutput:
		if err := trace.ExportJSON(os.Stdout, records); err != nil {
			fmt.Fprintf(os.Stderr, "%s%s✗%s %v\n", red, bold, reset, err)
			os.Exit(1)
		}
	case *csvOutput:
		if err := trace.ExportCSV(os.Stdout, records); err != nil {
			fmt.Fprintf(os.Stderr, "%s%s✗%s %v\n", red, bold, reset, err)
			os.Exit(1)
		}
	case *quiet:
		outputQuiet(records)
	default:
		outputHuman(path, records)
	}
}

// buildFilter assembles the record filter from command-line switches.
func buildFilter(expiredOnly, timedOnly, errorsOnly bool, request, limit int) trace.Filter {
	return trace.Filter{
		ExpiredOnly: expiredOnly,
		TimedOnly:   timedOnly,
		ErrorsOnly:  errorsOnly,
		Request:     int32(request),
		Limit:       limit,
	}
}

// formatResult renders a slot result for human output.
func formatResult(result int32, errMsg string) string {
	if result >= 0 {
		return strconv.FormatInt(int64(result), 10) + " B"
	}
	if errMsg == "" {
		errMsg = ferrors.FromResult(result).Message
	}
	return errMsg
}

// formatClass renders the request class column.
func formatClass(timed, expired bool) string {
	switch {
	case expired:
		return "timed/expired"
	case timed:
		return "timed"
	default:
		return "immediate"
	}
}

func outputHuman(path string, records []trace.Record) {
	printBanner()
	fmt.Printf("%s  Trace:%s %s\n\n", bold, reset, path)

	if len(records) == 0 {
		fmt.Printf("%s%s⚠%s No matching records.\n\n", yellow, bold, reset)
		return
	}

	fmt.Printf("  %s%-6s %-24s %-8s %-14s %-10s %-8s %s%s\n",
		dim, "SEQ", "TIME", "REQ", "CLASS", "OFFSET", "LEN", "RESULT", reset)

	for _, rec := range records {
		color := green
		if rec.Result < 0 {
			color = red
		} else if rec.Expired {
			color = yellow
		}
		fmt.Printf("  %-6d %-24s %-8d %-14s %-10d %-8d %s%s%s\n",
			rec.Seq,
			rec.Time.Format("2006-01-02 15:04:05.000"),
			rec.Request,
			formatClass(rec.Timed, rec.Expired),
			rec.Offset,
			rec.Length,
			color, formatResult(rec.Result, rec.Error), reset)
	}

	s := trace.Summarize(records)
	fmt.Printf("\n%s%sSUMMARY%s\n\n", bold, cyan, reset)
	fmt.Printf("    %sRecords:%s      %d\n", dim, reset, s.Records)
	fmt.Printf("    %sTimed:%s        %d\n", dim, reset, s.Timed)
	fmt.Printf("    %sExpired:%s      %d\n", dim, reset, s.Expired)
	fmt.Printf("    %sErrors:%s       %d\n", dim, reset, s.Errors)
	fmt.Printf("    %sBytes read:%s   %d\n", dim, reset, s.BytesRead)
	if s.Timed > 0 {
		fmt.Printf("    %sWorst slack:%s  %d ms\n", dim, reset, s.WorstSlackMs)
	}
	fmt.Println()
}

func outputQuiet(records []trace.Record) {
	s := trace.Summarize(records)
	fmt.Printf("records=%d timed=%d expired=%d errors=%d bytes=%d worst_slack_ms=%d\n",
		s.Records, s.Timed, s.Expired, s.Errors, s.BytesRead, s.WorstSlackMs)
}

func printBanner() {
	fmt.Println()
	fmt.Printf("  %s%sFlyStream Trace%s %sv%s%s\n", green, bold, reset, dim, version, reset)
	fmt.Printf("  %sCompletion Trace Inspector%s\n\n", dim, reset)
}

func printVersion() {
	fmt.Println()
	fmt.Printf("  %s%sFlyStream Trace%s %sv%s%s\n", cyan, bold, reset, dim, version, reset)
	fmt.Printf("  %sCompletion Trace Inspector%s\n\n", dim, reset)
	fmt.Printf("  %s%s%s\n\n", dim, copyright, reset)
}

func printUsage() {
	printBanner()

	fmt.Printf("%s  Reads completion traces written by the FlyStream scheduler.%s\n", dim, reset)
	fmt.Printf("%s  Rotated traces compressed by the recorder are handled transparently.%s\n\n", dim, reset)

	fmt.Printf("%sUsage:%s flystream-trace [options] <trace-file>\n\n", bold, reset)

	fmt.Printf("%s%sOPTIONS%s\n\n", bold, cyan, reset)
	fmt.Printf("    %s--expired%s            Only show requests that missed their deadline\n", green, reset)
	fmt.Printf("    %s--timed%s              Only show timed requests\n", green, reset)
	fmt.Printf("    %s--errors%s             Only show failed requests\n", green, reset)
	fmt.Printf("    %s--request%s <id>       Only show a specific request ID\n", green, reset)
	fmt.Printf("    %s--limit%s <n>          Stop after n records\n", green, reset)
	fmt.Printf("    %s--json%s               Output results as JSON\n", green, reset)
	fmt.Printf("    %s--csv%s                Output results as CSV\n", green, reset)
	fmt.Printf("    %s--quiet%s, %s-q%s          Only output the summary line\n", green, reset, green, reset)
	fmt.Printf("    %s--version%s, %s-v%s        Show version information\n", green, reset, green, reset)
	fmt.Printf("    %s--help%s, %s-h%s           Show this help message\n\n", green, reset, green, reset)

	fmt.Printf("%s%sEXAMPLES%s\n\n", bold, cyan, reset)
	fmt.Printf("%s    # List every completion in a trace%s\n", dim, reset)
	fmt.Println("    flystream-trace flystream.trace")
	fmt.Println()
	fmt.Printf("%s    # Hunt for missed deadlines%s\n", dim, reset)
	fmt.Println("    flystream-trace --expired flystream.trace")
	fmt.Println()
	fmt.Printf("%s    # Inspect a compressed rotation%s\n", dim, reset)
	fmt.Println("    flystream-trace flystream.trace.1756600000.zst")
	fmt.Println()
	fmt.Printf("%s    # Feed the failure count to a script%s\n", dim, reset)
	fmt.Println("    FAILS=$(flystream-trace --errors --quiet flystream.trace)")
	fmt.Println()
}
