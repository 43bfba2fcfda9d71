package types

// DownloadRequest is the body of POST /download on the backend
type DownloadRequest struct {
	URL    string     `json:"url"`
	Artist string     `json:"artist"`
	Album  string     `json:"album"`
	Type   EntityKind `json:"type"`
}

// DownloadResponse is returned by POST /download
type DownloadResponse struct {
	Success    bool   `json:"success"`
	DownloadID string `json:"download_id,omitempty"`
	Message    string `json:"message,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Backend status values reported by GET /download/status/{id}
const (
	StatusStarting    = "starting"
	StatusDownloading = "downloading"
	StatusCompleted   = "completed"
	StatusError       = "error"
	StatusNotFound    = "not_found"
)

// StatusResponse is returned by GET /download/status/{id}
type StatusResponse struct {
	Status       string   `json:"status"`
	Progress     *float64 `json:"progress,omitempty"`
	CurrentTrack *int     `json:"current_track,omitempty"`
	TotalTracks  *int     `json:"total_tracks,omitempty"`
	Message      string   `json:"message,omitempty"`
	Path         string   `json:"path,omitempty"`
}

// CheckRequest is the body of POST /check-download
type CheckRequest struct {
	Artist string `json:"artist"`
	Album  string `json:"album"`
}

// CheckResponse is returned by POST /check-download
type CheckResponse struct {
	Exists bool `json:"exists"`
}

// SettingsRequest is the body of POST /settings
type SettingsRequest struct {
	DownloadPath string `json:"downloadPath"`
	AudioFormat  string `json:"audioFormat"`
}

// SettingsResponse acknowledges POST /settings
type SettingsResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}
