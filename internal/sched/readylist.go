package sched

// readyList is the ordered container of runnable jobs described in
// spec's "Ready List" component: sorted insertion by remaining time for
// SRTN, FIFO append for FCFS/RR, and removal by identity.
//
// It is not safe for concurrent use on its own — callers hold the
// scheduler lock around every readyList method call.
type readyList struct {
	jobs []*Job
}

func newReadyList() *readyList {
	return &readyList{}
}

// Len reports the number of jobs currently queued.
func (r *readyList) Len() int {
	return len(r.jobs)
}

// Append adds a job to the tail (FIFO order, used by FCFS arrivals and RR
// requeueing).
func (r *readyList) Append(j *Job) {
	r.jobs = append(r.jobs, j)
}

// InsertSorted inserts a job keeping the list sorted ascending by
// Remaining(). Ties are broken by insertion order: a job already present
// with equal remaining time stays ahead of a job inserted after it,
// mirroring the teacher lineage's stable insert-by-shifting approach.
func (r *readyList) InsertSorted(j *Job) {
	remaining := j.Remaining()
	i := len(r.jobs)
	r.jobs = append(r.jobs, nil)
	for i > 0 && r.jobs[i-1].Remaining() > remaining {
		r.jobs[i] = r.jobs[i-1]
		i--
	}
	r.jobs[i] = j
}

// PopHead removes and returns the first job in the list, or nil if empty.
// It is expressed as peek-then-remove-by-identity, the same two steps
// spec's Scheduler Loop names separately ("Head of ready list" selection,
// then "remove selected ... from ready list").
func (r *readyList) PopHead() *Job {
	j := r.Head()
	if j == nil {
		return nil
	}
	r.RemoveByIdentity(j)
	return j
}

// Head returns the first job without removing it, or nil if empty.
func (r *readyList) Head() *Job {
	if len(r.jobs) == 0 {
		return nil
	}
	return r.jobs[0]
}

// RemoveByIdentity removes the first job pointer-equal to j, reporting
// whether one was found.
func (r *readyList) RemoveByIdentity(j *Job) bool {
	for i, cand := range r.jobs {
		if cand == j {
			r.jobs = append(r.jobs[:i], r.jobs[i+1:]...)
			return true
		}
	}
	return false
}
