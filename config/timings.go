package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Timings holds every delay, interval and budget the companion uses
type Timings struct {
	InitialPollDelay time.Duration `yaml:"initial_poll_delay"`
	PollInterval     time.Duration `yaml:"poll_interval"`
	ShortCeiling     int           `yaml:"short_ceiling"`
	LongCeiling      int           `yaml:"long_ceiling"`

	FreshnessWindow time.Duration `yaml:"freshness_window"`
	ErrorDisplay    time.Duration `yaml:"error_display"`
	// How long the release page control shows success before re-enabling
	CompleteDisplay time.Duration `yaml:"complete_display"`
	RescanInterval  time.Duration `yaml:"rescan_interval"`

	ContentDebounce    time.Duration `yaml:"content_debounce"`
	NavigationDebounce time.Duration `yaml:"navigation_debounce"`
	WatchInterval      time.Duration `yaml:"watch_interval"`

	// Backend completion checks per second and burst within one sweep
	CheckRate        float64 `yaml:"check_rate"`
	CheckBurst       int     `yaml:"check_burst"`
	CheckConcurrency int     `yaml:"check_concurrency"`

	RequestTimeout      time.Duration `yaml:"request_timeout"`
	SettingsPushTimeout time.Duration `yaml:"settings_push_timeout"`
}

// DefaultTimings returns the stock timing profile
func DefaultTimings() Timings {
	return Timings{
		InitialPollDelay:    1 * time.Second,
		PollInterval:        2500 * time.Millisecond,
		ShortCeiling:        120, // ~5 minutes
		LongCeiling:         240, // ~10 minutes
		FreshnessWindow:     30 * time.Second,
		ErrorDisplay:        3 * time.Second,
		CompleteDisplay:     3 * time.Second,
		RescanInterval:      5 * time.Second,
		ContentDebounce:     1 * time.Second,
		NavigationDebounce:  2 * time.Second,
		WatchInterval:       2 * time.Second,
		CheckRate:           10,
		CheckBurst:          5,
		CheckConcurrency:    4,
		RequestTimeout:      10 * time.Second,
		SettingsPushTimeout: 1 * time.Minute,
	}
}

// LoadTimings overlays the YAML file at path on the defaults. An empty path
// returns the defaults.
func LoadTimings(path string) (Timings, error) {
	timings := DefaultTimings()
	if path == "" {
		return timings, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return timings, fmt.Errorf("failed to read timings file: %w", err)
	}

	if err := yaml.Unmarshal(data, &timings); err != nil {
		return timings, fmt.Errorf("failed to parse timings file: %w", err)
	}

	if err := timings.Validate(); err != nil {
		return timings, err
	}
	return timings, nil
}

// Validate rejects profiles that would make a loop spin or never start
func (t Timings) Validate() error {
	if t.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive")
	}
	if t.ShortCeiling < 1 || t.LongCeiling < 1 {
		return fmt.Errorf("poll ceilings must be at least 1")
	}
	if t.RescanInterval <= 0 || t.WatchInterval <= 0 {
		return fmt.Errorf("rescan_interval and watch_interval must be positive")
	}
	if t.CheckRate <= 0 || t.CheckBurst < 1 {
		return fmt.Errorf("check_rate and check_burst must be positive")
	}
	return nil
}
