package cmd

import (
	"albumgrab/config"
	"albumgrab/document"
	"albumgrab/services"
	"albumgrab/services/backendtest"
	"albumgrab/websocket"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	gorilla "github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

const (
	testListingURL = "https://open.spotify.com/artist/4hy/discography/all"
	testAlbumURL   = "https://open.spotify.com/album/aaa"
)

const testListingMarkup = `<html><head><title>Pete Seeger - Discography | Spotify</title></head><body>
<div data-testid="grid-container">
  <div data-encore-id="card"><div><a href="/album/aaa">Song of Hope</a></div><span>Album</span></div>
  <div data-encore-id="card"><div><a href="/album/bbb">Little Boxes</a></div><span>Single</span></div>
</div>
</body></html>`

// TestHelper runs the companion API against a fake backend and a fixed page
type TestHelper struct {
	Server       *httptest.Server
	Backend      *backendtest.Backend
	Session      *services.Session
	Hub          websocket.Hub
	Doc          *document.Document
	SettingsPath string
}

// NewTestHelper creates a new test helper following the listing fixture
func NewTestHelper(t *testing.T) *TestHelper {
	gin.SetMode(gin.TestMode)

	fake := backendtest.New()

	timings := config.DefaultTimings()
	timings.InitialPollDelay = time.Millisecond
	timings.PollInterval = time.Millisecond
	timings.ErrorDisplay = 20 * time.Millisecond
	timings.ContentDebounce = 5 * time.Millisecond
	timings.NavigationDebounce = 5 * time.Millisecond
	timings.RequestTimeout = 2 * time.Second

	doc, err := document.ParseString(testListingURL, testListingMarkup)
	require.NoError(t, err)

	hub := websocket.NewHub()
	go hub.Run()

	backend := services.NewBackendClient(fake.URL(), timings.RequestTimeout)
	session := services.NewSession(context.Background(), doc, document.NewBroadcaster(), backend, hub, timings)
	session.Start()

	settingsPath := filepath.Join(t.TempDir(), "settings.json")
	router := NewRouter(session, backend, hub, settingsPath, timings)

	return &TestHelper{
		Server:       httptest.NewServer(router),
		Backend:      fake,
		Session:      session,
		Hub:          hub,
		Doc:          doc,
		SettingsPath: settingsPath,
	}
}

// Cleanup cleans up test resources
func (h *TestHelper) Cleanup(t *testing.T) {
	h.Server.Close()
	h.Session.Stop()
	h.Backend.Close()
}

// MakeRequest makes an HTTP request to the test server
func (h *TestHelper) MakeRequest(t *testing.T, method, path string, body interface{}) *http.Response {
	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		require.NoError(t, err)
		reqBody = bytes.NewBuffer(jsonBody)
	}

	req, err := http.NewRequest(method, h.Server.URL+path, reqBody)
	require.NoError(t, err)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)

	return resp
}

// GetJSON makes a GET request and unmarshals JSON response
func (h *TestHelper) GetJSON(t *testing.T, path string, target interface{}) *http.Response {
	return h.decode(t, h.MakeRequest(t, http.MethodGet, path, nil), target)
}

// PostJSON makes a POST request with JSON body and unmarshals JSON response
func (h *TestHelper) PostJSON(t *testing.T, path string, requestBody interface{}, target interface{}) *http.Response {
	return h.decode(t, h.MakeRequest(t, http.MethodPost, path, requestBody), target)
}

func (h *TestHelper) decode(t *testing.T, resp *http.Response, target interface{}) *http.Response {
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	if target != nil {
		require.NoError(t, json.Unmarshal(body, target), string(body))
	}
	return resp
}

// ConnectWebSocket connects to a WebSocket endpoint
func (h *TestHelper) ConnectWebSocket(t *testing.T, path string) *gorilla.Conn {
	wsURL := "ws" + h.Server.URL[4:] + path // Replace http:// with ws://

	conn, _, err := gorilla.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)

	return conn
}
