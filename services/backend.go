package services

import (
	"albumgrab/types"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// BackendClient defines the calls the companion makes to the download backend
type BackendClient interface {
	Health(ctx context.Context) error
	StartDownload(ctx context.Context, req types.DownloadRequest) (string, error)
	GetStatus(ctx context.Context, downloadID string) (*types.StatusResponse, error)
	CheckDownload(ctx context.Context, artist, album string) (bool, error)
	UpdateSettings(ctx context.Context, req types.SettingsRequest) error
	ListDownloads(ctx context.Context) (map[string]types.StatusResponse, error)
}

// httpBackend implements BackendClient over HTTP+JSON
type httpBackend struct {
	baseURL string
	client  *http.Client
}

// NewBackendClient creates a client for the backend at baseURL
func NewBackendClient(baseURL string, timeout time.Duration) BackendClient {
	return &httpBackend{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// Health returns nil when the backend answers /health with a 2xx
func (b *httpBackend) Health(ctx context.Context) error {
	resp, err := b.do(ctx, http.MethodGet, "/health", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if !isSuccess(resp.StatusCode) {
		return fmt.Errorf("%w: health check returned %d", ErrBackendUnreachable, resp.StatusCode)
	}
	return nil
}

// StartDownload asks the backend to start a job and returns its id
func (b *httpBackend) StartDownload(ctx context.Context, req types.DownloadRequest) (string, error) {
	resp, err := b.do(ctx, http.MethodPost, "/download", req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var result types.DownloadResponse
	decodeErr := json.NewDecoder(resp.Body).Decode(&result)

	if !isSuccess(resp.StatusCode) || decodeErr != nil || result.DownloadID == "" {
		msg := result.Error
		if msg == "" {
			msg = "Download failed"
		}
		return "", fmt.Errorf("%w: %s (status %d)", ErrBackendRejected, msg, resp.StatusCode)
	}
	return result.DownloadID, nil
}

// GetStatus fetches the status of one job. Unknown payload fields are ignored.
func (b *httpBackend) GetStatus(ctx context.Context, downloadID string) (*types.StatusResponse, error) {
	resp, err := b.do(ctx, http.MethodGet, "/download/status/"+url.PathEscape(downloadID), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var status types.StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("%w: unreadable status payload: %v", ErrBackendUnreachable, err)
	}
	return &status, nil
}

// CheckDownload asks whether artist/album is already downloaded
func (b *httpBackend) CheckDownload(ctx context.Context, artist, album string) (bool, error) {
	resp, err := b.do(ctx, http.MethodPost, "/check-download", types.CheckRequest{Artist: artist, Album: album})
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if !isSuccess(resp.StatusCode) {
		return false, fmt.Errorf("%w: check-download returned %d", ErrBackendRejected, resp.StatusCode)
	}

	var result types.CheckResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return false, fmt.Errorf("%w: unreadable check payload: %v", ErrBackendRejected, err)
	}
	return result.Exists, nil
}

// UpdateSettings forwards the user's download preferences
func (b *httpBackend) UpdateSettings(ctx context.Context, req types.SettingsRequest) error {
	resp, err := b.do(ctx, http.MethodPost, "/settings", req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if !isSuccess(resp.StatusCode) {
		var result types.SettingsResponse
		json.NewDecoder(resp.Body).Decode(&result)
		return fmt.Errorf("%w: settings update returned %d: %s", ErrBackendRejected, resp.StatusCode, result.Error)
	}
	return nil
}

// ListDownloads returns every job the backend knows about
func (b *httpBackend) ListDownloads(ctx context.Context) (map[string]types.StatusResponse, error) {
	resp, err := b.do(ctx, http.MethodGet, "/downloads", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if !isSuccess(resp.StatusCode) {
		return nil, fmt.Errorf("%w: downloads listing returned %d", ErrBackendRejected, resp.StatusCode)
	}

	downloads := make(map[string]types.StatusResponse)
	if err := json.NewDecoder(resp.Body).Decode(&downloads); err != nil {
		return nil, fmt.Errorf("%w: unreadable downloads payload: %v", ErrBackendRejected, err)
	}
	return downloads, nil
}

// do issues a request; transport failures come back as ErrBackendUnreachable
func (b *httpBackend) do(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnreachable, err)
	}
	return resp, nil
}

func isSuccess(code int) bool {
	return code >= 200 && code < 300
}
