package handlers

import (
	"albumgrab/services"
	"log"
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"
)

// DownloadHandler exposes the backend's job table to the host shell
type DownloadHandler struct {
	backend services.BackendClient
}

// NewDownloadHandler creates a new download handler
func NewDownloadHandler(backend services.BackendClient) *DownloadHandler {
	return &DownloadHandler{backend: backend}
}

// downloadEntry flattens one backend job for listing
type downloadEntry struct {
	ID      string   `json:"id"`
	Status  string   `json:"status"`
	Message string   `json:"message,omitempty"`
	Path    string   `json:"path,omitempty"`
	Percent *float64 `json:"progress,omitempty"`
}

// GetAllJobs returns every job the backend knows about
func (h *DownloadHandler) GetAllJobs(c *gin.Context) {
	jobs, err := h.backend.ListDownloads(c.Request.Context())
	if err != nil {
		log.Printf("[handlers] Listing backend downloads failed: %v", err)
		c.JSON(statusFor(err), gin.H{
			"error":   "Failed to list downloads",
			"details": err.Error(),
		})
		return
	}

	entries := make([]downloadEntry, 0, len(jobs))
	for id, job := range jobs {
		entries = append(entries, downloadEntry{
			ID:      id,
			Status:  job.Status,
			Message: job.Message,
			Path:    job.Path,
			Percent: job.Progress,
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })

	c.JSON(http.StatusOK, gin.H{
		"jobs":  entries,
		"total": len(entries),
	})
}
