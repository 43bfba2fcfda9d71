package document

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"golang.org/x/net/html"
)

// Source produces snapshots of the observed page
type Source interface {
	Fetch(ctx context.Context) (location string, markup []byte, err error)
}

// Watcher polls a Source and turns differences between snapshots into
// ChangeFeed notifications against a Document
type Watcher struct {
	source   Source
	doc      *Document
	feed     *Broadcaster
	interval time.Duration

	lastSum [sha256.Size]byte
}

// NewWatcher creates a watcher that keeps doc in sync with source
func NewWatcher(source Source, doc *Document, interval time.Duration) *Watcher {
	return &Watcher{
		source:   source,
		doc:      doc,
		feed:     NewBroadcaster(),
		interval: interval,
	}
}

// Feed returns the change feed the watcher publishes on
func (w *Watcher) Feed() ChangeFeed {
	return w.feed
}

// Run polls until ctx is cancelled
func (w *Watcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.Poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Poll(ctx)
		}
	}
}

// Poll takes one snapshot and publishes whatever changed
func (w *Watcher) Poll(ctx context.Context) {
	location, markup, err := w.source.Fetch(ctx)
	if err != nil {
		log.Printf("[watcher] Snapshot failed: %v", err)
		return
	}

	locationChanged := location != w.doc.Location()
	sum := sha256.Sum256(markup)
	contentChanged := sum != w.lastSum

	if contentChanged {
		root, err := html.Parse(bytes.NewReader(markup))
		if err != nil {
			log.Printf("[watcher] Could not parse snapshot of %s: %v", location, err)
			return
		}
		w.lastSum = sum
		w.doc.Replace(location, root)
	} else if locationChanged {
		w.doc.SetLocation(location)
	}

	if locationChanged {
		w.feed.Publish(Change{Kind: LocationChanged, Location: location})
	}
	if contentChanged {
		w.feed.Publish(Change{Kind: ContentChanged, Location: location, Mutations: 1})
	}
}

// HTTPSource fetches server rendered markup with a plain GET
type HTTPSource struct {
	URL    string
	Client *http.Client
}

// NewHTTPSource creates a source for url
func NewHTTPSource(url string, timeout time.Duration) *HTTPSource {
	return &HTTPSource{
		URL:    url,
		Client: &http.Client{Timeout: timeout},
	}
}

// Fetch implements Source
func (s *HTTPSource) Fetch(ctx context.Context) (string, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return "", nil, err
	}
	// Streaming sites answer 403 to the default Go user agent
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")

	resp, err := s.Client.Do(req)
	if err != nil {
		return "", nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", nil, fmt.Errorf("unexpected status %d for %s", resp.StatusCode, s.URL)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", nil, err
	}
	return resp.Request.URL.String(), body, nil
}
