package main

import (
	"albumgrab/cmd"
	"albumgrab/config"
	"albumgrab/services"
	"albumgrab/types"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/schollz/progressbar/v3"
)

func main() {
	var (
		server     bool
		port       int
		page       string
		render     bool
		renderWait time.Duration
		track      string
		health     bool
	)

	flag.BoolVar(&server, "server", false, "Follow a page and serve the host shell API")
	flag.IntVar(&port, "port", 8090, "Port for server mode")
	flag.StringVar(&page, "page", config.GetWatchURL(), "Page URL to follow in server mode")
	flag.BoolVar(&render, "render", false, "Render the page in headless Chrome instead of fetching raw HTML")
	flag.DurationVar(&renderWait, "render-wait", 3*time.Second, "Time to let a rendered page settle before the first snapshot")
	flag.StringVar(&track, "track", "", "Follow a backend download job by id until it finishes")
	flag.BoolVar(&health, "health", false, "Check whether the download backend is running")
	flag.Parse()

	timings, err := config.LoadTimings(config.Env["ALBUMGRAB_CONFIG"])
	if err != nil {
		log.Fatalf("Invalid timings: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend := services.NewBackendClient(config.GetBackendURL(), timings.RequestTimeout)

	switch {
	case server:
		err = cmd.StartCompanion(ctx, cmd.Options{
			Port:         port,
			PageURL:      page,
			Render:       render,
			RenderWait:   renderWait,
			SettingsPath: config.GetSettingsFilePath(),
			Timings:      timings,
		})
		if err != nil {
			log.Fatalf("Companion stopped: %v", err)
		}

	case health:
		if err := backend.Health(ctx); err != nil {
			log.Fatalf("Backend at %s is not running: %v", config.GetBackendURL(), err)
		}
		fmt.Printf("Backend at %s is running\n", config.GetBackendURL())

	case track != "":
		if err := trackJob(ctx, backend, track, timings); err != nil {
			log.Fatalf("%v", err)
		}

	default:
		flag.Usage()
	}
}

// trackJob follows one job in the terminal with a progress bar
func trackJob(ctx context.Context, backend services.BackendClient, jobID string, timings config.Timings) error {
	bar := progressbar.NewOptions(100,
		progressbar.OptionSetDescription("Starting..."),
		progressbar.OptionSetWidth(30),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(false),
	)

	tracker := services.NewJobTracker(backend, timings)
	outcome := tracker.Run(ctx, jobID, timings.LongCeiling, func(s types.ProgressSnapshot) {
		percent, label, ok := barPosition(s)
		if ok {
			bar.Set(percent)
		}
		bar.Describe(label)
	})

	if !outcome.Succeeded() {
		bar.Exit()
		fmt.Println()
		return fmt.Errorf("job %s %s: %s", jobID, outcome.State, outcome.Message)
	}

	bar.Describe("Downloaded")
	bar.Finish()
	fmt.Println()
	if outcome.Message != "" {
		fmt.Println(outcome.Message)
	}
	return nil
}

// barPosition maps a snapshot onto the bar's 0-100 scale. Track pairs win
// over a bare percentage, as they do for control labels.
func barPosition(s types.ProgressSnapshot) (int, string, bool) {
	switch {
	case s.CurrentTrack != nil && s.TotalTracks != nil && *s.TotalTracks > 0:
		current := min(max(*s.CurrentTrack, 0), *s.TotalTracks)
		return current * 100 / *s.TotalTracks, fmt.Sprintf("Track %d/%d", *s.CurrentTrack, *s.TotalTracks), true
	case s.Progress != nil:
		return int(min(max(*s.Progress, 0), 100)), "Downloading...", true
	default:
		return 0, "Downloading...", false
	}
}
