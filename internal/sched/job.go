package sched

import "sync"

// State is a Job's position in the Waiting -> Ready -> Running -> Done
// state machine.
type State int

const (
	Waiting State = iota
	Ready
	Running
	Done
)

func (s State) String() string {
	switch s {
	case Waiting:
		return "waiting"
	case Ready:
		return "ready"
	case Running:
		return "running"
	case Done:
		return "done"
	default:
		return "unknown"
	}
}

// Job holds one trace line's static parameters plus the mutable state a
// worker goroutine and the scheduler loop cooperate over. A per-job mutex
// and condition variable gate the worker: it waits while Paused is true
// and is woken by Resume.
type Job struct {
	Name     string
	Arrival  int
	Duration int
	Deadline int

	mu        sync.Mutex
	cond      *sync.Cond
	remaining int
	finish    int // -1 until set
	paused    bool
	state     State
	started   bool
}

// NewJob creates a Job in the Waiting state with Remaining == Duration.
func NewJob(name string, arrival, duration, deadline int) *Job {
	j := &Job{
		Name:      name,
		Arrival:   arrival,
		Duration:  duration,
		Deadline:  deadline,
		remaining: duration,
		finish:    -1,
		paused:    true,
		state:     Waiting,
	}
	j.cond = sync.NewCond(&j.mu)
	return j
}

// Remaining returns the job's remaining simulated seconds.
func (j *Job) Remaining() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.remaining
}

// Finish returns the job's completion instant, or -1 if still running.
func (j *Job) Finish() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.finish
}

// State returns the job's current lifecycle state.
func (j *Job) State() State {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// setFinish records the completion instant. Called by the scheduler while
// it holds the scheduler lock; does not take the scheduler lock itself, so
// callers must ensure ordering (scheduler lock before per-job lock).
func (j *Job) setFinish(tau int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.finish == -1 {
		j.finish = tau
	}
	j.state = Done
}

// markStarted reports whether this is the job's first selection, flipping
// started to true as a side effect. The caller starts a Worker goroutine
// exactly once, the first time this returns false.
func (j *Job) markStarted() (alreadyStarted bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	alreadyStarted = j.started
	j.started = true
	return alreadyStarted
}

// Pause closes the job's gate: the worker blocks on its condition variable
// until the next Resume. Safe to call on an already-paused job.
func (j *Job) Pause() {
	j.mu.Lock()
	j.paused = true
	if j.state == Running {
		j.state = Ready
	}
	j.mu.Unlock()
}

// Resume opens the job's gate and wakes its worker.
func (j *Job) Resume() {
	j.mu.Lock()
	j.paused = false
	j.state = Running
	j.cond.Signal()
	j.mu.Unlock()
}

// awaitResumed blocks while the job is paused, re-checking after each
// wake-up to tolerate spurious wake-ups. Returns the remaining count
// observed once resumed.
func (j *Job) awaitResumed() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	for j.paused {
		j.cond.Wait()
	}
	return j.remaining
}

// tick decrements remaining by one simulated second and reports whether
// the job just reached zero.
func (j *Job) tick() (justFinished bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.remaining > 0 {
		j.remaining--
	}
	return j.remaining == 0
}
