package services

import (
	"albumgrab/config"
	"albumgrab/types"
	"context"
	"fmt"
	"log"
	"time"

	"github.com/cenkalti/backoff"
)

// PushSettings sends the user's download preferences to the backend,
// retrying with exponential backoff for up to maxElapsed. The backend is
// often started after the companion, so early failures are expected.
func PushSettings(ctx context.Context, backend BackendClient, settings config.UserSettings, maxElapsed time.Duration) error {
	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.MaxElapsedTime = maxElapsed
	expBackoff.InitialInterval = 500 * time.Millisecond

	req := types.SettingsRequest{
		DownloadPath: settings.DownloadPath,
		AudioFormat:  settings.AudioFormat,
	}

	attempt := 0
	operation := func() error {
		attempt++
		if err := backend.UpdateSettings(ctx, req); err != nil {
			log.Printf("[settings] Push attempt %d failed: %v", attempt, err)
			return err
		}
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(expBackoff, ctx)); err != nil {
		return fmt.Errorf("failed to push settings after %d attempts: %w", attempt, err)
	}

	log.Printf("[settings] Backend now saves %s files to %s", settings.AudioFormat, settings.DownloadPath)
	return nil
}
