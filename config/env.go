package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
)

var Env = map[string]string{
	"BACKEND_URL":        os.Getenv("BACKEND_URL"),
	"WATCH_URL":          os.Getenv("WATCH_URL"),
	"ALBUMGRAB_CONFIG":   os.Getenv("ALBUMGRAB_CONFIG"),
	"ALBUMGRAB_SETTINGS": os.Getenv("ALBUMGRAB_SETTINGS"),
}

// GetBackendURL returns the base URL of the local download backend
func GetBackendURL() string {
	endpoint := Env["BACKEND_URL"]
	if endpoint != "" {
		return strings.TrimRight(endpoint, "/")
	}
	return "http://localhost:8080"
}

// GetWatchURL returns the page the companion should observe, if any
func GetWatchURL() string {
	return Env["WATCH_URL"]
}

// GetCORSOrigins returns the origins allowed to call the host shell API
func GetCORSOrigins() []string {
	corsOrigins := os.Getenv("CORS_ORIGINS")
	if corsOrigins == "" {
		corsOrigins = "https://open.spotify.com,http://localhost:3000"
	}
	return strings.Split(corsOrigins, ",")
}

// UserSettings represents the user's download preferences forwarded to the backend
type UserSettings struct {
	DownloadPath string `json:"downloadPath"`
	AudioFormat  string `json:"audioFormat"`
}

// DefaultSettings returns the settings used before the user saved any
func DefaultSettings() UserSettings {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}
	return UserSettings{
		DownloadPath: filepath.Join(homeDir, "Downloads", "SpotifyDownloads"),
		AudioFormat:  "mp3",
	}
}

// GetSettingsFilePath returns the path to the settings file
func GetSettingsFilePath() string {
	if custom := Env["ALBUMGRAB_SETTINGS"]; custom != "" {
		return custom
	}
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".albumgrab-settings.json")
}

// LoadSettings reads the settings file, falling back to defaults for a
// missing file or missing fields
func LoadSettings(path string) (UserSettings, error) {
	settings := DefaultSettings()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return settings, nil
	}
	if err != nil {
		return settings, err
	}

	var stored UserSettings
	if err := json.Unmarshal(data, &stored); err != nil {
		return settings, err
	}

	if stored.DownloadPath != "" {
		settings.DownloadPath = stored.DownloadPath
	}
	if stored.AudioFormat != "" {
		settings.AudioFormat = stored.AudioFormat
	}
	return settings, nil
}

// SaveSettings writes the settings file
func SaveSettings(path string, settings UserSettings) error {
	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
