package tracker

import (
	"regexp"
	"strconv"

	"imaigine-lab/internal/domain"
	"imaigine-lab/internal/jobs"
)

var percentRe = regexp.MustCompile(`(\d+)%`)

// ParseProgress returns the first percentage found in line, clamped to 100.
func ParseProgress(line string) (int, bool) {
	m := percentRe.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	v, err := strconv.Atoi(m[1])
	if err != nil {
		// more digits than an int holds
		return 100, true
	}
	if v > 100 {
		v = 100
	}
	return v, true
}

// Transition applies one status event to job and reports whether anything
// observable changed. A terminal job is returned unchanged.
//
// The newest log line of every batch is scanned. Batches may be incremental
// or cumulative; progress only moves up either way.
func Transition(job domain.Job, ev jobs.StatusEvent) (domain.Job, bool) {
	if job.Status.IsTerminal() {
		return job, false
	}
	prev := job

	if n := len(ev.Logs); n > 0 {
		if p, ok := ParseProgress(ev.Logs[n-1].Message); ok && p > job.Progress {
			job.Progress = p
		}
		job.LastLogOffset += n
	}

	switch {
	case ev.Failed():
		job.Status = domain.JobStatusFailed
		job.Error = ev.Error
		job.QueuePosition = nil
	case ev.Status == jobs.StatusCompleted:
		job.Status = domain.JobStatusDone
		job.Progress = 100
		job.QueuePosition = nil
	case ev.Status == jobs.StatusInProgress:
		job.Status = domain.JobStatusInProgress
		job.QueuePosition = nil
	case ev.Status == jobs.StatusInQueue && job.Status == domain.JobStatusQueued:
		if ev.QueuePosition != nil {
			pos := *ev.QueuePosition
			job.QueuePosition = &pos
		}
	}

	return job, changed(prev, job)
}

func changed(a, b domain.Job) bool {
	if a.Status != b.Status || a.Progress != b.Progress || a.Error != b.Error {
		return true
	}
	if (a.QueuePosition == nil) != (b.QueuePosition == nil) {
		return true
	}
	return a.QueuePosition != nil && *a.QueuePosition != *b.QueuePosition
}
