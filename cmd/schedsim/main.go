// Command schedsim drives the three job-scheduling policies
// (FCFS/SRTN/Round-Robin) over a trace file and reports per-job finish
// and turnaround times plus the run's preemption count.
package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/opslab-sim/coresim/internal/sched"
	"github.com/opslab-sim/coresim/internal/telemetry"
)

// Exit codes
const (
	ExitOK    = 0
	ExitUsage = 1
	ExitIO    = 2
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) < 3 || len(args) > 4 {
		usage()
		return ExitUsage
	}

	policyNum, err := strconv.Atoi(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: invalid policy %q: %v\n", args[0], err)
		return ExitUsage
	}
	policy, err := sched.ParsePolicy(policyNum)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return ExitUsage
	}

	traceInPath := args[1]
	resultsOutPath := args[2]
	debug := len(args) == 4 && args[3] == "d"
	if len(args) == 4 && !debug {
		fmt.Fprintf(os.Stderr, "error: unrecognized fourth argument %q (expected \"d\")\n", args[3])
		return ExitUsage
	}

	traceIn, err := os.Open(traceInPath) //nolint:gosec // G304: path is operator-supplied
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: cannot open trace file: %v\n", err)
		return ExitIO
	}
	defer func() { _ = traceIn.Close() }()

	reader, err := sched.NewTraceReader(traceIn)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return ExitIO
	}

	opts := []sched.Option{}
	if debug {
		opts = append(opts, sched.WithDebug(os.Stderr))
		opts = append(opts, sched.WithTelemetry(telemetry.NewWriterFile(os.Stderr)))
	}

	scheduler := sched.New(policy, reader, opts...)
	results, preemptions, err := scheduler.Run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return ExitIO
	}

	resultsOut, err := os.Create(resultsOutPath) //nolint:gosec // G304: path is operator-supplied
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: cannot create results file: %v\n", err)
		return ExitIO
	}
	defer func() { _ = resultsOut.Close() }()

	for _, r := range results {
		if _, err := fmt.Fprintf(resultsOut, "%s %d %d\n", r.Name, r.Finish, r.Turnaround); err != nil {
			fmt.Fprintf(os.Stderr, "error: writing results: %v\n", err)
			return ExitIO
		}
	}
	if _, err := fmt.Fprintf(resultsOut, "%d\n", preemptions); err != nil {
		fmt.Fprintf(os.Stderr, "error: writing results: %v\n", err)
		return ExitIO
	}

	return ExitOK
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: schedsim <policy> <trace-in> <results-out> [d]")
	fmt.Fprintln(os.Stderr, "  policy: 1 = FCFS, 2 = SRTN, 3 = Round-Robin")
	fmt.Fprintln(os.Stderr, "  d:      enable verbose debug output on stderr")
}
