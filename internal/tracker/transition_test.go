package tracker

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imaigine-lab/internal/domain"
	"imaigine-lab/internal/jobs"
)

func logs(lines ...string) []jobs.LogLine {
	out := make([]jobs.LogLine, len(lines))
	for i, l := range lines {
		out[i] = jobs.LogLine{Message: l}
	}
	return out
}

func TestParseProgress(t *testing.T) {
	tests := []struct {
		line string
		want int
		ok   bool
	}{
		{"10%", 10, true},
		{"Training: 45%|████      | 450/1000", 45, true},
		{"step 3 of 7", 0, false},
		{"150% done", 100, true},
		{"0%", 0, true},
		{"", 0, false},
		{"99999999999999999999999%", 100, true},
	}
	for _, tt := range tests {
		got, ok := ParseProgress(tt.line)
		assert.Equal(t, tt.ok, ok, tt.line)
		assert.Equal(t, tt.want, got, tt.line)
	}
}

func TestTransition_ProgressSequence(t *testing.T) {
	job := domain.Job{ID: "req-1", Kind: domain.JobKindTraining, Status: domain.JobStatusQueued}
	events := []jobs.StatusEvent{
		{Status: jobs.StatusInProgress, Logs: logs("10%")},
		{Status: jobs.StatusInProgress, Logs: logs("10%", "5%")},
		{Status: jobs.StatusCompleted},
	}

	var seen []int
	for _, ev := range events {
		job, _ = Transition(job, ev)
		seen = append(seen, job.Progress)
	}

	assert.Equal(t, []int{10, 10, 100}, seen)
	assert.Equal(t, domain.JobStatusDone, job.Status)
}

func TestTransition_SingleLineBatches(t *testing.T) {
	tests := []struct {
		name  string
		lines []string
		want  []int
	}{
		{"scenario", []string{"10%", "5%"}, []int{10, 10}},
		{"rising", []string{"10%", "50%", "80%"}, []int{10, 50, 80}},
		{"noise between", []string{"20%", "loading", "35%"}, []int{20, 20, 35}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := domain.Job{ID: "req-1", Kind: domain.JobKindTraining, Status: domain.JobStatusQueued}
			var seen []int
			for _, line := range tt.lines {
				job, _ = Transition(job, jobs.StatusEvent{Status: jobs.StatusInProgress, Logs: logs(line)})
				seen = append(seen, job.Progress)
			}
			assert.Equal(t, tt.want, seen)
			assert.Equal(t, len(tt.lines), job.LastLogOffset)

			job, _ = Transition(job, jobs.StatusEvent{Status: jobs.StatusCompleted})
			assert.Equal(t, 100, job.Progress)
		})
	}
}

func TestTransition_MonotonicUnderShuffle(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for round := 0; round < 200; round++ {
		var events []jobs.StatusEvent
		var lines []string
		for i := 0; i < 8; i++ {
			lines = append(lines, []string{"3%", "17%", "42%", "8%", "60%", "loading", "91%", "2%"}[rng.Intn(8)])
			events = append(events, jobs.StatusEvent{Status: jobs.StatusInProgress, Logs: logs(lines...)})
		}
		rng.Shuffle(len(events), func(i, j int) { events[i], events[j] = events[j], events[i] })

		job := domain.Job{Status: domain.JobStatusQueued}
		last := 0
		for _, ev := range events {
			job, _ = Transition(job, ev)
			require.GreaterOrEqual(t, job.Progress, last)
			last = job.Progress
		}
	}
}

func TestTransition_TerminalIsFinal(t *testing.T) {
	for _, final := range []jobs.StatusEvent{
		{Status: jobs.StatusCompleted},
		{Error: "out of memory"},
	} {
		job, changed := Transition(domain.Job{Status: domain.JobStatusInProgress, Progress: 30}, final)
		require.True(t, changed)
		require.True(t, job.Status.IsTerminal())

		for _, ev := range []jobs.StatusEvent{
			{Status: jobs.StatusInProgress, Logs: logs("99%")},
			{Status: jobs.StatusInQueue},
			{Status: jobs.StatusCompleted},
			{Error: "again"},
		} {
			next, changed := Transition(job, ev)
			assert.False(t, changed)
			assert.Equal(t, job, next)
		}
	}
}

func TestTransition_Failure(t *testing.T) {
	job, changed := Transition(domain.Job{Status: domain.JobStatusInProgress, Progress: 20}, jobs.StatusEvent{Error: "gpu lost"})
	require.True(t, changed)
	assert.Equal(t, domain.JobStatusFailed, job.Status)
	assert.Equal(t, "gpu lost", job.Error)
	assert.Equal(t, 20, job.Progress)
}

func TestTransition_QueuePosition(t *testing.T) {
	pos := func(v int) *int { return &v }

	job, changed := Transition(domain.Job{Status: domain.JobStatusQueued}, jobs.StatusEvent{Status: jobs.StatusInQueue, QueuePosition: pos(3)})
	require.True(t, changed)
	require.NotNil(t, job.QueuePosition)
	assert.Equal(t, 3, *job.QueuePosition)

	_, changed = Transition(job, jobs.StatusEvent{Status: jobs.StatusInQueue, QueuePosition: pos(3)})
	assert.False(t, changed)

	job, changed = Transition(job, jobs.StatusEvent{Status: jobs.StatusInProgress})
	require.True(t, changed)
	assert.Nil(t, job.QueuePosition)

	// a late queue report does not move the job back
	job, _ = Transition(job, jobs.StatusEvent{Status: jobs.StatusInQueue, QueuePosition: pos(1)})
	assert.Equal(t, domain.JobStatusInProgress, job.Status)
	assert.Nil(t, job.QueuePosition)
}

func TestTransition_SameLogLengthIsNotRescanned(t *testing.T) {
	job := domain.Job{Status: domain.JobStatusInProgress}
	job, _ = Transition(job, jobs.StatusEvent{Status: jobs.StatusInProgress, Logs: logs("a", "40%")})
	assert.Equal(t, 40, job.Progress)
	assert.Equal(t, 2, job.LastLogOffset)

	_, changed := Transition(job, jobs.StatusEvent{Status: jobs.StatusInProgress, Logs: logs("a", "40%")})
	assert.False(t, changed)
}
