package services

import (
	"albumgrab/types"
	"context"
	"log"
	"regexp"
	"strings"
	"time"
)

// downloadRunner drives one control through health check, job start and
// tracking. Shared by the listing scanner and the release page trigger.
type downloadRunner struct {
	backend      BackendClient
	tracker      *JobTracker
	errorDisplay time.Duration

	// trackCtx outlives page scopes: abandoned loops run to their own ceiling
	trackCtx context.Context
}

// start runs the synchronous part of the flow and hands the job to the
// tracker. Failures before the job exists flash the control immediately.
func (r *downloadRunner) start(ctx context.Context, ctl *Control, ceiling int, onSuccess func()) error {
	if !ctl.begin() {
		return ErrControlBusy
	}

	entity := ctl.Entity()
	log.Printf("[download] Starting download for %s by %s", entity.DisplayName, entity.OwnerName)

	if err := r.backend.Health(ctx); err != nil {
		log.Printf("[download] Backend server is not running: %v", err)
		r.fail(ctl, "Backend server is not running")
		return err
	}

	downloadID, err := r.backend.StartDownload(ctx, types.DownloadRequest{
		URL:    entity.ResourceURL,
		Artist: SanitizeFilename(entity.OwnerName),
		Album:  SanitizeFilename(entity.DisplayName),
		Type:   entity.Kind,
	})
	if err != nil {
		log.Printf("[download] Download request for %s failed: %v", entity.DisplayName, err)
		r.fail(ctl, err.Error())
		return err
	}

	ctl.showProgress("Downloading...", nil)

	r.tracker.Track(r.trackCtx, downloadID, ceiling,
		func(snapshot types.ProgressSnapshot) {
			s := snapshot
			ctl.showProgress(progressLabel(s), &s)
		},
		func(outcome types.Outcome) {
			if outcome.Succeeded() {
				log.Printf("[download] Job %s for %s completed after %d polls", downloadID, entity.DisplayName, outcome.Attempts)
				ctl.complete(outcome.Message)
				if onSuccess != nil {
					onSuccess()
				}
				return
			}
			log.Printf("[download] Job %s for %s ended as %s: %v", downloadID, entity.DisplayName, outcome.State, outcome.Err)
			r.fail(ctl, outcome.Message)
		},
	)
	return nil
}

// fail shows the transient error indicator, then re-enables the control
func (r *downloadRunner) fail(ctl *Control, message string) {
	ctl.flashError(message)
	time.AfterFunc(r.errorDisplay, ctl.revert)
}

var illegalFilenameChars = regexp.MustCompile(`[<>:"/\\|?*]`)

// SanitizeFilename makes a name safe as a Windows path segment
func SanitizeFilename(name string) string {
	name = illegalFilenameChars.ReplaceAllString(name, "_")
	return strings.Join(strings.Fields(name), " ")
}
