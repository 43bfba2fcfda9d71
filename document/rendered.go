package document

import (
	"context"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
)

// RenderedSource snapshots a single page app through headless Chrome. One
// tab stays open for the lifetime of the source, so in-app navigation is
// observed as a location change rather than a reload.
type RenderedSource struct {
	url        string
	renderWait time.Duration

	mu        sync.Mutex
	browser   context.Context
	cancel    context.CancelFunc
	started   bool
	navigated bool
}

// NewRenderedSource starts a headless browser for url
func NewRenderedSource(ctx context.Context, url string, renderWait time.Duration) *RenderedSource {
	allocatorCtx, allocatorCancel := chromedp.NewExecAllocator(
		ctx,
		append(
			chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", true),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
		)...,
	)
	browserCtx, browserCancel := chromedp.NewContext(allocatorCtx)

	return &RenderedSource{
		url:        url,
		renderWait: renderWait,
		browser:    browserCtx,
		cancel: func() {
			browserCancel()
			allocatorCancel()
		},
	}
}

// Fetch implements Source. The first call navigates; later calls only read
// the live DOM.
func (s *RenderedSource) Fetch(ctx context.Context) (string, []byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return "", nil, err
	}

	var actions []chromedp.Action
	if !s.navigated {
		actions = append(actions,
			chromedp.Navigate(s.url),
			chromedp.Sleep(s.renderWait), // let the app render its first view
		)
	}

	var location, markup string
	actions = append(actions,
		chromedp.Location(&location),
		chromedp.OuterHTML("html", &markup),
	)

	// The first Run on the browser context owns the Chrome process, so it
	// must not carry the caller's deadline
	if !s.started {
		if err := chromedp.Run(s.browser); err != nil {
			return "", nil, err
		}
		s.started = true
	}

	runCtx, cancel := context.WithCancel(s.browser)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return "", nil, ctx.Err()
		}
		return "", nil, err
	}
	s.navigated = true
	return location, []byte(markup), nil
}

// Close shuts the browser down
func (s *RenderedSource) Close() {
	s.cancel()
}
