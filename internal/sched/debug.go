package sched

import (
	"fmt"
	"io"

	"github.com/opslab-sim/coresim/internal/telemetry"
)

// FormatEvent renders a telemetry event as one line of the verbose
// "-d" debug trace spec.md §6.1 asks for, in the terse style of the
// original's "[DEBUG] ..." lines.
func FormatEvent(e *telemetry.Event) string {
	switch e.Kind {
	case telemetry.EventAdmit:
		return fmt.Sprintf("[DEBUG] @%ds: admitted %s", e.Tick, e.Job)
	case telemetry.EventSelect:
		return fmt.Sprintf("[DEBUG] @%ds: running %s", e.Tick, e.Job)
	case telemetry.EventPreempt:
		from, _ := e.Extra["from"].(string)
		return fmt.Sprintf("[DEBUG] @%ds: preempted %s for %s", e.Tick, from, e.Job)
	case telemetry.EventComplete:
		return fmt.Sprintf("[DEBUG] @%ds: %s finished", e.Tick, e.Job)
	case telemetry.EventTick:
		return fmt.Sprintf("[DEBUG] @%ds: tick", e.Tick)
	default:
		return fmt.Sprintf("[DEBUG] @%ds: %s %s", e.Tick, e.Kind, e.Job)
	}
}

// debugWriter adapts a plain io.Writer (typically os.Stderr) into
// something Scheduler can hand formatted lines to alongside whatever
// structured telemetry.Writer it was given.
type debugWriter struct {
	out io.Writer
}

func (d *debugWriter) write(e *telemetry.Event) {
	if d == nil || d.out == nil {
		return
	}
	fmt.Fprintln(d.out, FormatEvent(e))
}

// WithDebug attaches a human-readable verbose trace sink, matching the
// original simulator's "[DEBUG] ..." lines on stderr when invoked with
// the trailing "d" CLI argument.
func WithDebug(out io.Writer) Option {
	return func(s *Scheduler) { s.debug = &debugWriter{out: out} }
}
