package sched

import "time"

// Worker owns one Job's execution timeline, the same one-goroutine-per-unit
// of work shape the teacher's demo.Worker uses for mosaic tiles: it waits
// while paused, advances one tick, and repeats until the job is done. The
// worker never decides what runs next — only the scheduler does that.
type Worker struct {
	Job          *Job
	TickInterval time.Duration
}

// run is the worker goroutine body. It returns once Job.Remaining reaches
// zero; the scheduler observes this asynchronously (no later than one
// tick later) rather than being signalled directly, keeping the worker
// free of any dependency on the scheduler lock.
func (w *Worker) run() {
	for {
		remaining := w.Job.awaitResumed()
		if remaining == 0 {
			return
		}

		time.Sleep(w.TickInterval)

		if justFinished := w.Job.tick(); justFinished {
			return
		}
	}
}
