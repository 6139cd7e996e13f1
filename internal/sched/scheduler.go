package sched

import (
	"sync"
	"time"

	"github.com/opslab-sim/coresim/internal/telemetry"
)

// Policy selects one of the three scheduling disciplines spec.md's
// "Scheduler Loop" table names.
type Policy int

const (
	FCFS Policy = 1
	SRTN Policy = 2
	RR   Policy = 3
)

func (p Policy) String() string {
	switch p {
	case FCFS:
		return "FCFS"
	case SRTN:
		return "SRTN"
	case RR:
		return "RR"
	default:
		return "unknown"
	}
}

// ParsePolicy maps the CLI's numeric policy argument to a Policy, or
// ErrUnknownPolicy if it names none of {1, 2, 3}.
func ParsePolicy(n int) (Policy, error) {
	switch Policy(n) {
	case FCFS, SRTN, RR:
		return Policy(n), nil
	default:
		return 0, ErrUnknownPolicy
	}
}

func (p Policy) admissionMode() AdmissionMode {
	if p == FCFS {
		return ModeNowOrBefore
	}
	return ModeNow
}

// DefaultMaxJobs is the ready-list capacity spec.md's data model requires
// ("length <= MAX_JOBS ... >= 100"); 1024 comfortably covers any trace a
// shell-driven exercise would realistically feed the simulator.
const DefaultMaxJobs = 1024

// DefaultTickInterval is how long one simulated second takes in real
// time. The original C programs call sleep(1) so the run is watchable
// interactively; a batch Go simulator has no such audience, so this is
// small enough to make runs and tests fast while preserving every
// ordering guarantee spec.md §5 describes (which depend only on the
// relative ordering of ticks, never on wall-clock duration).
const DefaultTickInterval = time.Millisecond

// Result is one job's row in the output file: its completion instant and
// turnaround time. Run returns the rows in completion order, with the
// run's total preemption count as a separate value.
type Result struct {
	Name       string
	Finish     int
	Turnaround int
}

// Scheduler runs one policy over a trace to completion. It is the
// "controller" of spec.md §5: a single goroutine serializes every
// structural change to the ready list while each Job's own worker
// goroutine advances that job's remaining time.
type Scheduler struct {
	mu      sync.Mutex
	policy  Policy
	ready   *readyList
	done    []*Job
	current *Job
	tau     int

	preemptions int
	maxJobs     int

	reader *TraceReader
	tick   time.Duration
	trace  *telemetry.Writer
	debug  *debugWriter
	wg     sync.WaitGroup
}

// Option configures a Scheduler at construction time.
type Option func(*Scheduler)

// WithMaxJobs overrides DefaultMaxJobs.
func WithMaxJobs(n int) Option {
	return func(s *Scheduler) { s.maxJobs = n }
}

// WithTickInterval overrides DefaultTickInterval.
func WithTickInterval(d time.Duration) Option {
	return func(s *Scheduler) { s.tick = d }
}

// WithTelemetry attaches a trace writer; nil (the default) disables
// tracing entirely, matching the "-d" flag being optional in spec.md §6.1.
func WithTelemetry(w *telemetry.Writer) Option {
	return func(s *Scheduler) { s.trace = w }
}

// New creates a Scheduler for policy, reading admissions from reader.
func New(policy Policy, reader *TraceReader, opts ...Option) *Scheduler {
	s := &Scheduler{
		policy:  policy,
		ready:   newReadyList(),
		reader:  reader,
		maxJobs: DefaultMaxJobs,
		tick:    DefaultTickInterval,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run drives the simulation to completion: admitting arrivals, selecting
// and resuming one job per tick, and joining every worker before
// returning. It implements spec.md §4.3's per-tick ordering: pause
// current, admit arrivals, select next, resume selected.
func (s *Scheduler) Run() ([]Result, int, error) {
	for {
		s.mu.Lock()

		prev := s.current
		if prev != nil && prev.Remaining() == 0 {
			s.finalizeLocked(prev)
		}

		if s.policy != FCFS && prev != nil && prev.Remaining() > 0 {
			prev.Pause()
		}

		if err := s.admitArrivalsLocked(); err != nil {
			s.mu.Unlock()
			return nil, 0, err
		}

		next := s.selectNextLocked(prev)

		if s.policy != FCFS && prev != nil && next != nil && prev.Name != next.Name {
			s.preemptions++
			s.emitLocked(&telemetry.Event{Kind: telemetry.EventPreempt, Tick: s.tau, Job: next.Name,
				Extra: map[string]any{"from": prev.Name}})
		}

		s.current = next
		if next != nil {
			s.emitLocked(&telemetry.Event{Kind: telemetry.EventSelect, Tick: s.tau, Job: next.Name})
			s.startOrResumeLocked(next)
		}

		finished := s.ready.Len() == 0 && next == nil && s.reader.Exhausted()
		tau := s.tau
		s.mu.Unlock()

		tickEvent := &telemetry.Event{Kind: telemetry.EventTick, Tick: tau}
		s.trace.Emit(tickEvent)
		s.debug.write(tickEvent)

		if finished {
			break
		}
		s.tau++
		time.Sleep(s.tick)
	}

	s.wg.Wait()

	results := make([]Result, 0, len(s.done))
	for _, j := range s.done {
		results = append(results, Result{Name: j.Name, Finish: j.Finish(), Turnaround: j.Finish() - j.Arrival})
	}
	return results, s.preemptions, nil
}

// admitArrivalsLocked pulls every job the trace admits at the current
// tick and inserts it into the ready list per policy, short-circuiting
// the zero-duration edge case (spec.md §4.3: "a job whose dt = 0
// completes on the tick it arrives").
func (s *Scheduler) admitArrivalsLocked() error {
	lines := s.reader.Next(s.policy.admissionMode(), s.tau)
	for _, line := range lines {
		job := NewJob(line.Name, line.Arrival, line.Duration, line.Deadline)
		s.emitLocked(&telemetry.Event{Kind: telemetry.EventAdmit, Tick: s.tau, Job: job.Name})

		if job.Duration == 0 {
			job.state = Ready
			s.finalizeLocked(job)
			continue
		}

		if s.ready.Len() >= s.maxJobs {
			return &TooManyJobsError{MaxJobs: s.maxJobs}
		}

		switch s.policy {
		case SRTN:
			s.ready.InsertSorted(job)
		default: // FCFS, RR
			s.ready.Append(job)
		}
	}
	return nil
}

// selectNextLocked applies spec.md §4.3's per-policy selection rule,
// re-queuing the previously running job first when the policy requires it.
func (s *Scheduler) selectNextLocked(prev *Job) *Job {
	switch s.policy {
	case FCFS:
		if prev != nil && prev.Remaining() > 0 {
			return prev
		}
		return s.ready.PopHead()
	case SRTN:
		if prev != nil && prev.Remaining() > 0 {
			s.ready.InsertSorted(prev)
		}
		return s.ready.PopHead()
	case RR:
		if prev != nil && prev.Remaining() > 0 {
			s.ready.Append(prev)
		}
		return s.ready.PopHead()
	default:
		return nil
	}
}

// startOrResumeLocked lazily starts next's worker goroutine on its first
// selection, then resumes it.
func (s *Scheduler) startOrResumeLocked(next *Job) {
	if !next.markStarted() {
		w := &Worker{Job: next, TickInterval: s.tick}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			w.run()
		}()
	}
	next.Resume()
}

// finalizeLocked records a job's completion instant and moves it to the
// done list, in completion order.
func (s *Scheduler) finalizeLocked(j *Job) {
	j.setFinish(s.tau)
	s.done = append(s.done, j)
	s.emitLocked(&telemetry.Event{Kind: telemetry.EventComplete, Tick: s.tau, Job: j.Name,
		Extra: map[string]any{"finish": j.Finish(), "turnaround": j.Finish() - j.Arrival}})
}

func (s *Scheduler) emitLocked(e *telemetry.Event) {
	s.trace.Emit(e)
	s.debug.write(e)
}

// Preemptions returns the run's preemption count. Only meaningful after
// Run returns.
func (s *Scheduler) Preemptions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.preemptions
}
