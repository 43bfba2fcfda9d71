package handlers

import (
	"albumgrab/config"
	"albumgrab/services"
	"albumgrab/types"
	"context"
	"fmt"
	"log"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// Formats the backend's converter accepts
var supportedFormats = map[string]bool{
	"mp3":  true,
	"flac": true,
	"m4a":  true,
	"opus": true,
	"ogg":  true,
	"wav":  true,
}

// SettingsHandler handles settings-related endpoints. Saved settings are
// forwarded to the backend, which owns the actual download directory.
type SettingsHandler struct {
	backend services.BackendClient
	path    string
	timeout time.Duration
}

// NewSettingsHandler creates a new settings handler backed by the file at path
func NewSettingsHandler(backend services.BackendClient, path string, timeout time.Duration) *SettingsHandler {
	return &SettingsHandler{backend: backend, path: path, timeout: timeout}
}

func validateSettings(s config.UserSettings) error {
	if strings.TrimSpace(s.DownloadPath) == "" {
		return fmt.Errorf("download path is required")
	}
	if !filepath.IsAbs(s.DownloadPath) {
		return fmt.Errorf("download path must be absolute")
	}
	if !supportedFormats[strings.ToLower(s.AudioFormat)] {
		return fmt.Errorf("unsupported audio format %q", s.AudioFormat)
	}
	return nil
}

// GetSettings returns the current settings
func (h *SettingsHandler) GetSettings(c *gin.Context) {
	settings, err := config.LoadSettings(h.path)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to load settings",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, settings)
}

// UpdateSettings saves the settings and pushes them to the backend
func (h *SettingsHandler) UpdateSettings(c *gin.Context) {
	newSettings := config.DefaultSettings()
	if err := c.ShouldBindJSON(&newSettings); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid settings format",
			"details": err.Error(),
		})
		return
	}
	newSettings.AudioFormat = strings.ToLower(newSettings.AudioFormat)

	if err := validateSettings(newSettings); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid settings",
			"details": err.Error(),
		})
		return
	}

	if err := config.SaveSettings(h.path, newSettings); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to save settings",
			"details": err.Error(),
		})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	resp := gin.H{
		"message":  "Settings updated successfully",
		"settings": newSettings,
		"pushed":   true,
	}
	err := h.backend.UpdateSettings(ctx, types.SettingsRequest{
		DownloadPath: newSettings.DownloadPath,
		AudioFormat:  newSettings.AudioFormat,
	})
	if err != nil {
		// Saved locally; the next startup push retries
		log.Printf("[settings] Backend did not accept settings: %v", err)
		resp["pushed"] = false
		resp["warning"] = err.Error()
	}

	c.JSON(http.StatusOK, resp)
}
