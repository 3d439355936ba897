package domain

import "time"

// JobKind is the kind of remote computation behind a job.
type JobKind string

const (
	JobKindTraining   JobKind = "TRAINING"
	JobKindGeneration JobKind = "GENERATION"
)

// String returns the string representation of JobKind.
func (k JobKind) String() string {
	return string(k)
}

// IsValid checks if the kind is a valid value.
func (k JobKind) IsValid() bool {
	return k == JobKindTraining || k == JobKindGeneration
}

// JobStatus is the tracked lifecycle state of a job.
type JobStatus string

const (
	JobStatusQueued     JobStatus = "QUEUED"
	JobStatusInProgress JobStatus = "IN_PROGRESS"
	JobStatusDone       JobStatus = "DONE"
	JobStatusFailed     JobStatus = "FAILED"
)

// String returns the string representation of JobStatus.
func (s JobStatus) String() string {
	return string(s)
}

// IsValid checks if the status is a valid value.
func (s JobStatus) IsValid() bool {
	switch s {
	case JobStatusQueued, JobStatusInProgress, JobStatusDone, JobStatusFailed:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is possible.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusDone || s == JobStatusFailed
}

// Job is the tracker-owned view of a remote job.
type Job struct {
	ID            string
	Kind          JobKind
	Status        JobStatus
	Progress      int  // 0-100, never decreases
	LastLogOffset int  // log lines received so far, across all batches
	QueuePosition *int // set while queued, when the backend reports it
	Error         string
	UpdatedAt     time.Time
}

// File is a file produced by a remote job.
type File struct {
	URL         string `json:"url"`
	ContentType string `json:"content_type,omitempty"`
	FileName    string `json:"file_name,omitempty"`
	FileSize    int64  `json:"file_size,omitempty"`
}

// Image is a generated image.
type Image struct {
	URL         string `json:"url"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	ContentType string `json:"content_type,omitempty"`
}

// JobResult is the immutable output of a finished job.
type JobResult interface {
	Kind() JobKind
}

// TrainingResult is the output of a fine-tuning job.
type TrainingResult struct {
	ConfigFile  File `json:"config_file"`
	WeightsFile File `json:"diffusers_lora_file"`
}

// Kind implements JobResult.
func (TrainingResult) Kind() JobKind { return JobKindTraining }

// GenerationResult is the output of an image generation job.
type GenerationResult struct {
	Images []Image `json:"images"`
	Seed   int64   `json:"seed"`
}

// Kind implements JobResult.
func (GenerationResult) Kind() JobKind { return JobKindGeneration }

// JobHandle is the persisted reference to a submitted job, keyed by the paying wallet.
// It lets a client resume tracking after a restart.
type JobHandle struct {
	ID          string // remote request id
	Kind        JobKind
	Owner       string // wallet address that paid for the job
	App         string // remote application id
	ModelType   *ModelType
	TriggerWord string
	ModelID     string // model used for generation jobs
	Prompt      string
	Status      JobStatus
	Progress    int
	MintDigest  *string // digest of the mint transaction, set once
	CreatedAt   int64   // ms
	UpdatedAt   int64   // ms
}

// JobEvent is one applied tracker transition. Append-only.
type JobEvent struct {
	JobID      string
	Seq        int64
	Status     JobStatus
	Progress   int
	Message    string
	ObservedAt int64 // ms
}
