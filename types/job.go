package types

// JobState represents where a tracked download job is in its lifecycle
type JobState string

const (
	JobStateStarting  JobState = "starting"
	JobStatePolling   JobState = "polling"
	JobStateCompleted JobState = "completed"
	JobStateFailed    JobState = "failed"
	JobStateTimedOut  JobState = "timed_out"
)

// IsTerminal returns true once no further polling may happen
func (s JobState) IsTerminal() bool {
	return s == JobStateCompleted || s == JobStateFailed || s == JobStateTimedOut
}

// ProgressSnapshot is the normalized progress extracted from one status poll.
// Every field is optional; presence depends on the backend payload.
type ProgressSnapshot struct {
	Progress     *float64 `json:"progress,omitempty"`     // 0-100 percentage
	CurrentTrack *int     `json:"currentTrack,omitempty"` // set together with TotalTracks
	TotalTracks  *int     `json:"totalTracks,omitempty"`
	Message      string   `json:"message,omitempty"`
}

// IsEmpty reports whether the backend supplied nothing usable
func (p ProgressSnapshot) IsEmpty() bool {
	return p.Progress == nil && p.CurrentTrack == nil && p.TotalTracks == nil && p.Message == ""
}

// Job represents one in-flight or completed download request
type Job struct {
	ID       string           `json:"id"`
	State    JobState         `json:"state"`
	Attempt  int              `json:"attempt"`
	Snapshot ProgressSnapshot `json:"snapshot"`
}

// Outcome is the single terminal result of tracking a job
type Outcome struct {
	JobID    string   `json:"jobId"`
	State    JobState `json:"state"`
	Message  string   `json:"message,omitempty"`
	Attempts int      `json:"attempts"`
	Err      error    `json:"-"`
}

// Succeeded returns true for a completed job
func (o Outcome) Succeeded() bool {
	return o.State == JobStateCompleted
}
