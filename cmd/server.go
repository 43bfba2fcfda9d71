package cmd

import (
	"albumgrab/config"
	"albumgrab/document"
	"albumgrab/handlers"
	"albumgrab/middleware"
	"albumgrab/services"
	"albumgrab/websocket"
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// Options configures a companion process
type Options struct {
	Port         int
	PageURL      string
	Render       bool
	RenderWait   time.Duration
	SettingsPath string
	Timings      config.Timings
}

// StartCompanion follows the page at opts.PageURL, keeps its download
// controls in sync and serves the host shell API until ctx is cancelled
func StartCompanion(ctx context.Context, opts Options) error {
	// Set production mode if not specified
	if mode := os.Getenv("GIN_MODE"); mode != "" {
		gin.SetMode(mode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	timings := opts.Timings

	// Initialize services
	hub := websocket.NewHub()
	go hub.Run()

	backend := services.NewBackendClient(config.GetBackendURL(), timings.RequestTimeout)

	settings, err := config.LoadSettings(opts.SettingsPath)
	if err != nil {
		log.Printf("[server] Could not read settings, using defaults: %v", err)
	}
	go func() {
		if err := services.PushSettings(ctx, backend, settings, timings.SettingsPushTimeout); err != nil {
			log.Printf("[server] %v", err)
		}
	}()

	doc, err := document.ParseString(opts.PageURL, "")
	if err != nil {
		return err
	}

	var source document.Source
	if opts.Render {
		rendered := document.NewRenderedSource(ctx, opts.PageURL, opts.RenderWait)
		defer rendered.Close()
		source = rendered
	} else {
		source = document.NewHTTPSource(opts.PageURL, timings.RequestTimeout)
	}
	watcher := document.NewWatcher(source, doc, timings.WatchInterval)

	session := services.NewSession(ctx, doc, watcher.Feed(), backend, hub, timings)
	session.Start()
	defer session.Stop()

	if opts.PageURL != "" {
		go watcher.Run(ctx)
	} else {
		log.Printf("[server] No page to follow; only the API is served")
	}

	r := NewRouter(session, backend, hub, opts.SettingsPath, timings)

	portStr := strconv.Itoa(opts.Port)
	if serverPort := os.Getenv("SERVER_PORT"); serverPort != "" {
		portStr = serverPort
	}
	srv := &http.Server{Addr: ":" + portStr, Handler: r}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("[server] Albumgrab companion starting on port %s", portStr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	log.Printf("[server] Shutting down")
	return srv.Shutdown(shutdownCtx)
}

// NewRouter builds the host shell API
func NewRouter(session *services.Session, backend services.BackendClient, hub websocket.Hub, settingsPath string, timings config.Timings) *gin.Engine {
	controlHandler := handlers.NewControlHandler(session, hub)
	downloadHandler := handlers.NewDownloadHandler(backend)
	healthHandler := handlers.NewHealthHandler(backend, hub, session.Status)
	settingsHandler := handlers.NewSettingsHandler(backend, settingsPath, timings.RequestTimeout)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.CORS())
	r.Use(middleware.Logging())

	setupRoutes(r, controlHandler, downloadHandler, healthHandler, settingsHandler)
	return r
}

// setupRoutes configures all the HTTP routes
func setupRoutes(r *gin.Engine, controlHandler *handlers.ControlHandler, downloadHandler *handlers.DownloadHandler, healthHandler *handlers.HealthHandler, settingsHandler *handlers.SettingsHandler) {
	// Health check endpoint
	r.GET("/health", healthHandler.HealthCheck)

	// API routes group
	apiGroup := r.Group("/api")
	{
		apiGroup.GET("/status", healthHandler.APIStatus)

		// Controls on the followed page
		apiGroup.GET("/controls", controlHandler.ListControls)
		apiGroup.POST("/controls/download", controlHandler.Download)
		apiGroup.POST("/scan", controlHandler.Scan)
		apiGroup.POST("/trigger", controlHandler.Trigger)

		// Backend job table
		apiGroup.GET("/downloads", downloadHandler.GetAllJobs)

		// WebSocket endpoints for live control updates
		wsGroup := apiGroup.Group("/ws")
		{
			wsGroup.GET("/controls/:controlId", controlHandler.HandleWebSocketConnection)
			wsGroup.GET("/controls", controlHandler.HandleWebSocketAllConnection)
		}

		// Settings endpoints
		apiGroup.GET("/settings", settingsHandler.GetSettings)
		apiGroup.POST("/settings", settingsHandler.UpdateSettings)
	}
}
