package services

import (
	"albumgrab/config"
	"albumgrab/types"
	"context"
	"fmt"
	"log"
	"time"
)

// StatusFetcher is the slice of BackendClient the tracker needs
type StatusFetcher interface {
	GetStatus(ctx context.Context, downloadID string) (*types.StatusResponse, error)
}

// JobTracker polls the backend for one job at a time until it reaches a
// terminal outcome. It holds no per-job state, so one tracker serves any
// number of concurrent Track calls.
type JobTracker struct {
	backend      StatusFetcher
	initialDelay time.Duration
	interval     time.Duration
}

// NewJobTracker creates a tracker using the poll delays from timings
func NewJobTracker(backend StatusFetcher, timings config.Timings) *JobTracker {
	return &JobTracker{
		backend:      backend,
		initialDelay: timings.InitialPollDelay,
		interval:     timings.PollInterval,
	}
}

// Track runs the poll loop on its own goroutine and calls onTerminal exactly
// once with the outcome
func (t *JobTracker) Track(ctx context.Context, jobID string, ceiling int, onProgress func(types.ProgressSnapshot), onTerminal func(types.Outcome)) {
	go func() {
		outcome := t.Run(ctx, jobID, ceiling, onProgress)
		if onTerminal != nil {
			onTerminal(outcome)
		}
	}()
}

// Run polls jobID until completed, error, a transport failure, or ceiling
// non-terminal polls. onProgress is called at most once per poll.
func (t *JobTracker) Run(ctx context.Context, jobID string, ceiling int, onProgress func(types.ProgressSnapshot)) types.Outcome {
	job := &types.Job{ID: jobID, State: types.JobStateStarting}

	// The backend needs a moment to persist the job before the first poll
	wait := t.initialDelay
	timer := time.NewTimer(wait)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return finish(job, types.JobStateFailed, "Download tracking stopped", ctx.Err())
		case <-timer.C:
		}

		job.Attempt++
		job.State = types.JobStatePolling

		status, err := t.backend.GetStatus(ctx, jobID)
		if err != nil {
			log.Printf("[tracker] Poll %d for job %s failed: %v", job.Attempt, jobID, err)
			return finish(job, types.JobStateFailed, "Download failed", err)
		}

		switch status.Status {
		case types.StatusCompleted:
			return finish(job, types.JobStateCompleted, status.Message, nil)

		case types.StatusError:
			msg := status.Message
			if msg == "" {
				msg = "Download failed"
			}
			return finish(job, types.JobStateFailed, msg, fmt.Errorf("%w: %s", ErrJobFailed, msg))

		case types.StatusDownloading:
			job.Snapshot = SnapshotFrom(status)
			if onProgress != nil {
				onProgress(job.Snapshot)
			}

		default:
			// starting, not_found and statuses added later keep the loop going
		}

		if job.Attempt >= ceiling {
			return finish(job, types.JobStateTimedOut, "Download timed out",
				fmt.Errorf("%w after %d polls", ErrJobTimedOut, job.Attempt))
		}

		timer.Reset(t.interval)
	}
}

// SnapshotFrom normalizes whatever subset of progress fields the backend sent
func SnapshotFrom(status *types.StatusResponse) types.ProgressSnapshot {
	snapshot := types.ProgressSnapshot{
		Progress: status.Progress,
		Message:  status.Message,
	}
	if status.CurrentTrack != nil && status.TotalTracks != nil {
		snapshot.CurrentTrack = status.CurrentTrack
		snapshot.TotalTracks = status.TotalTracks
	}
	return snapshot
}

func finish(job *types.Job, state types.JobState, message string, err error) types.Outcome {
	job.State = state
	return types.Outcome{
		JobID:    job.ID,
		State:    state,
		Message:  message,
		Attempts: job.Attempt,
		Err:      err,
	}
}
