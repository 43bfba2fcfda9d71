// Package backendtest provides a scriptable download backend for tests.
package backendtest

import (
	"albumgrab/types"
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/gin-gonic/gin"
)

// Backend is an in-process stand-in for the local download backend. Every
// field may be changed between requests; access goes through the mutex.
type Backend struct {
	Server *httptest.Server

	mu sync.Mutex

	HealthCode int

	StartCode     int
	StartResponse types.DownloadResponse

	// Statuses are served in order per job; the last one repeats
	Statuses   []types.StatusResponse
	StatusCode int

	// Exists answers check-download, keyed by Key(artist, album)
	Exists    map[string]bool
	CheckCode int

	SettingsCode int
	Downloads    map[string]types.StatusResponse

	calls     map[string]int
	polls     map[string]int
	downloads []types.DownloadRequest
	checks    []types.CheckRequest
	settings  []types.SettingsRequest
}

// Key builds the Exists key for an artist and album
func Key(artist, album string) string {
	return artist + "|" + album
}

// New starts a backend that is healthy, accepts downloads as job "job-1"
// and reports every job completed
func New() *Backend {
	b := &Backend{
		HealthCode:    http.StatusOK,
		StartCode:     http.StatusOK,
		StartResponse: types.DownloadResponse{Success: true, DownloadID: "job-1"},
		Statuses:      []types.StatusResponse{{Status: types.StatusCompleted, Message: "Download completed"}},
		StatusCode:    http.StatusOK,
		Exists:        make(map[string]bool),
		CheckCode:     http.StatusOK,
		SettingsCode:  http.StatusOK,
		Downloads:     make(map[string]types.StatusResponse),
		calls:         make(map[string]int),
		polls:         make(map[string]int),
	}

	gin.SetMode(gin.TestMode)
	router := gin.New()

	router.GET("/health", func(c *gin.Context) {
		code := b.record("/health", func() int { return b.HealthCode })
		c.JSON(code, gin.H{"status": "healthy"})
	})

	router.POST("/download", func(c *gin.Context) {
		var req types.DownloadRequest
		c.ShouldBindJSON(&req)
		b.mu.Lock()
		b.calls["/download"]++
		b.downloads = append(b.downloads, req)
		code, resp := b.StartCode, b.StartResponse
		b.mu.Unlock()
		c.JSON(code, resp)
	})

	router.GET("/download/status/:id", func(c *gin.Context) {
		id := c.Param("id")
		b.mu.Lock()
		b.calls["/download/status"]++
		idx := b.polls[id]
		b.polls[id]++
		if idx >= len(b.Statuses) {
			idx = len(b.Statuses) - 1
		}
		status, code := b.Statuses[idx], b.StatusCode
		b.mu.Unlock()
		c.JSON(code, status)
	})

	router.POST("/check-download", func(c *gin.Context) {
		var req types.CheckRequest
		c.ShouldBindJSON(&req)
		b.mu.Lock()
		b.calls["/check-download"]++
		b.checks = append(b.checks, req)
		code, exists := b.CheckCode, b.Exists[Key(req.Artist, req.Album)]
		b.mu.Unlock()
		c.JSON(code, types.CheckResponse{Exists: exists})
	})

	router.POST("/settings", func(c *gin.Context) {
		var req types.SettingsRequest
		c.ShouldBindJSON(&req)
		b.mu.Lock()
		b.calls["/settings"]++
		b.settings = append(b.settings, req)
		code := b.SettingsCode
		b.mu.Unlock()
		if code >= 300 {
			c.JSON(code, types.SettingsResponse{Error: "settings rejected"})
			return
		}
		c.JSON(code, types.SettingsResponse{Success: true})
	})

	router.GET("/downloads", func(c *gin.Context) {
		b.mu.Lock()
		b.calls["/downloads"]++
		downloads := make(map[string]types.StatusResponse, len(b.Downloads))
		for id, s := range b.Downloads {
			downloads[id] = s
		}
		b.mu.Unlock()
		c.JSON(http.StatusOK, downloads)
	})

	b.Server = httptest.NewServer(router)
	return b
}

func (b *Backend) record(path string, code func() int) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls[path]++
	return code()
}

// URL returns the base URL of the backend
func (b *Backend) URL() string {
	return b.Server.URL
}

// Close shuts the server down
func (b *Backend) Close() {
	b.Server.Close()
}

// Update runs fn with the backend locked, for changing its script
func (b *Backend) Update(fn func(b *Backend)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fn(b)
}

// Calls counts requests to path ("/download/status" covers every job)
func (b *Backend) Calls(path string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[path]
}

// DownloadRequests returns every accepted POST /download body
func (b *Backend) DownloadRequests() []types.DownloadRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]types.DownloadRequest(nil), b.downloads...)
}

// CheckRequests returns every POST /check-download body
func (b *Backend) CheckRequests() []types.CheckRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]types.CheckRequest(nil), b.checks...)
}

// SettingsRequests returns every POST /settings body
func (b *Backend) SettingsRequests() []types.SettingsRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]types.SettingsRequest(nil), b.settings...)
}
