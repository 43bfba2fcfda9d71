package services

import (
	"albumgrab/config"
	"albumgrab/document"
	"albumgrab/types"
	"context"
	"log"
	"sync"
	"time"

	"golang.org/x/net/html"
)

// Places on a release page where the page control goes, best first
var actionBarTargets = []document.Matcher{
	document.ByAttr("data-testid", "action-bar-row"),
	document.ByAttr("data-testid", "more-button"),
	document.ByClass("main-actionBar-ActionBar"),
	document.ByClass("main-actionBarRow-ActionBarRow"),
}

// PageStatus describes what the session currently sees
type PageStatus struct {
	Location      string `json:"location"`
	ListingPage   bool   `json:"listingPage"`
	ReleasePage   bool   `json:"releasePage"`
	Controls      int    `json:"controls"`
	PageControlID string `json:"pageControlId,omitempty"`
}

// Session follows the page through a ChangeFeed. While a listing page is
// shown it owns an EntityScanner and a periodic rescan; on a release page
// it owns the single page control used by the trigger.
type Session struct {
	ctx       context.Context
	doc       *document.Document
	feed      document.ChangeFeed
	backend   BackendClient
	tracker   *JobTracker
	presenter Presenter
	timings   config.Timings

	contentDebounce *document.Debouncer
	navDebounce     *document.Debouncer
	unsubscribe     func()

	mu          sync.Mutex
	scanner     *EntityScanner
	scope       context.Context
	stopRescan  context.CancelFunc
	pageControl *Control
	runner      *downloadRunner
}

// NewSession wires a session. ctx is the process lifetime: poll loops are
// bound to it rather than to any page scope.
func NewSession(ctx context.Context, doc *document.Document, feed document.ChangeFeed, backend BackendClient, presenter Presenter, timings config.Timings) *Session {
	tracker := NewJobTracker(backend, timings)
	return &Session{
		ctx:             ctx,
		doc:             doc,
		feed:            feed,
		backend:         backend,
		tracker:         tracker,
		presenter:       presenter,
		timings:         timings,
		contentDebounce: document.NewDebouncer(timings.ContentDebounce),
		navDebounce:     document.NewDebouncer(timings.NavigationDebounce),
		runner: &downloadRunner{
			backend:      backend,
			tracker:      tracker,
			errorDisplay: timings.ErrorDisplay,
			trackCtx:     ctx,
		},
	}
}

// Start subscribes to the feed and evaluates the current page right away
func (s *Session) Start() {
	s.unsubscribe = s.feed.Subscribe(s.onChange)
	s.Refresh()
}

// Stop unsubscribes and tears down any page scope
func (s *Session) Stop() {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	s.contentDebounce.Stop()
	s.navDebounce.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.leaveListingLocked()
	s.dropPageControlLocked()
}

func (s *Session) onChange(change document.Change) {
	switch change.Kind {
	case document.LocationChanged:
		// Leaving a listing page tears its scope down at once; entering one
		// waits for the page to settle
		if !document.IsListingPage(change.Location) {
			s.mu.Lock()
			s.leaveListingLocked()
			s.mu.Unlock()
		}
		s.navDebounce.Trigger(s.Refresh)
	default:
		s.contentDebounce.Trigger(s.Refresh)
	}
}

// Refresh reconciles the session with the current document
func (s *Session) Refresh() {
	location := s.doc.Location()

	s.mu.Lock()
	var scanner *EntityScanner
	var scanCtx context.Context
	if document.IsListingPage(location) {
		scanner, scanCtx = s.enterListingLocked()
	} else {
		s.leaveListingLocked()
	}
	if document.IsReleasePage(location) {
		s.ensurePageControlLocked()
	} else {
		s.dropPageControlLocked()
	}
	s.mu.Unlock()

	if scanner != nil {
		if _, err := scanner.Scan(scanCtx); err != nil && scanCtx.Err() == nil {
			log.Printf("[session] Scan failed: %v", err)
		}
	}
}

// enterListingLocked creates the listing scope if needed and returns its
// scanner with the scope context
func (s *Session) enterListingLocked() (*EntityScanner, context.Context) {
	if s.scanner != nil {
		return s.scanner, s.scopeCtxLocked()
	}

	log.Printf("[session] Entering listing page %s", s.doc.Location())
	scopeCtx, cancel := context.WithCancel(s.ctx)
	s.scanner = NewEntityScanner(s.ctx, s.doc, s.backend, s.tracker, s.presenter, s.timings)
	s.stopRescan = cancel
	s.scope = scopeCtx

	go s.rescanLoop(scopeCtx, s.scanner)
	return s.scanner, scopeCtx
}

func (s *Session) scopeCtxLocked() context.Context {
	if s.scope != nil {
		return s.scope
	}
	return s.ctx
}

func (s *Session) leaveListingLocked() {
	if s.scanner == nil {
		return
	}
	log.Printf("[session] Leaving listing page scope")
	s.stopRescan()
	s.scanner.Close()
	s.scanner = nil
	s.stopRescan = nil
	s.scope = nil
}

// rescanLoop sweeps the listing periodically, catching entities that appear
// without a mutation the feed reports
func (s *Session) rescanLoop(ctx context.Context, scanner *EntityScanner) {
	ticker := time.NewTicker(s.timings.RescanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if !document.IsListingPage(s.doc.Location()) {
			s.mu.Lock()
			if s.scanner == scanner {
				s.leaveListingLocked()
			}
			s.mu.Unlock()
			return
		}

		if n := scanner.EvictStale(); n > 0 {
			log.Printf("[session] Evicted %d stale completion entries", n)
		}
		if _, err := scanner.Scan(ctx); err != nil && ctx.Err() == nil {
			log.Printf("[session] Periodic scan failed: %v", err)
		}
	}
}

// pageEntity derives the release described by the current page
func (s *Session) pageEntity() (types.Entity, bool) {
	location := s.doc.Location()
	release, ok := document.ParseReleaseTitle(s.doc.Title(), location)
	if !ok {
		return types.Entity{}, false
	}

	identity := document.CanonicalURL(location, location)
	if identity == "" {
		identity = normalizeName(release.Artist) + "|" + normalizeName(release.Name)
	}
	return types.Entity{
		Identity:    identity,
		DisplayName: release.Name,
		ResourceURL: release.URL,
		OwnerName:   release.Artist,
		Kind:        types.EntityKind(release.Type),
		Completion:  types.CompletionUnknown,
	}, true
}

// ensurePageControlLocked makes sure the release page has its control and
// that it sits in the action bar when one exists
func (s *Session) ensurePageControlLocked() *Control {
	entity, ok := s.pageEntity()
	if !ok {
		s.dropPageControlLocked()
		return nil
	}

	if s.pageControl != nil && s.pageControl.Entity().Identity != entity.Identity {
		s.dropPageControlLocked()
	}
	if s.pageControl == nil {
		s.pageControl = newControl(entity, s.doc, s.presenter)
		log.Printf("[session] Release page control for %s by %s", entity.DisplayName, entity.OwnerName)
		if s.presenter != nil {
			s.presenter.BroadcastControl(s.pageControl.Snapshot())
		}
	}

	ctl := s.pageControl
	s.doc.Mutate(func(root *html.Node) {
		if document.Contains(root, ctl.node) {
			return
		}
		for _, match := range actionBarTargets {
			target := document.FindFirst(root, match)
			if target == nil {
				continue
			}
			document.Detach(ctl.node)
			target.AppendChild(ctl.node)
			return
		}
	})
	return ctl
}

func (s *Session) dropPageControlLocked() {
	if s.pageControl == nil {
		return
	}
	ctl := s.pageControl
	ctl.detach()
	s.doc.Mutate(func(*html.Node) { document.Detach(ctl.node) })
	s.pageControl = nil
}

// rearm returns the success hook for the page control: it shows completion
// for CompleteDisplay, then becomes actionable again
func (s *Session) rearm(ctl *Control) func() {
	return func() {
		time.AfterFunc(s.timings.CompleteDisplay, ctl.reset)
	}
}

// TriggerDownload starts a download for the release the current page shows,
// as the keyboard shortcut or toolbar action does
func (s *Session) TriggerDownload(ctx context.Context) (types.ControlMessage, error) {
	if !document.IsReleasePage(s.doc.Location()) {
		return types.ControlMessage{}, ErrNoPageEntity
	}

	s.mu.Lock()
	ctl := s.ensurePageControlLocked()
	s.mu.Unlock()
	if ctl == nil {
		return types.ControlMessage{}, ErrNoPageEntity
	}

	if err := s.runner.start(ctx, ctl, s.timings.ShortCeiling, s.rearm(ctl)); err != nil {
		return ctl.Snapshot(), err
	}
	return ctl.Snapshot(), nil
}

// DownloadEntity starts a download through the control for identity,
// whether it is the page control or a listing control
func (s *Session) DownloadEntity(ctx context.Context, identity string) (types.ControlMessage, error) {
	s.mu.Lock()
	page := s.pageControl
	scanner := s.scanner
	s.mu.Unlock()

	if page != nil && page.Entity().Identity == identity {
		err := s.runner.start(ctx, page, s.timings.ShortCeiling, s.rearm(page))
		return page.Snapshot(), err
	}
	if scanner == nil {
		return types.ControlMessage{}, ErrControlNotFound
	}
	ctl, ok := scanner.Control(identity)
	if !ok {
		return types.ControlMessage{}, ErrControlNotFound
	}
	err := scanner.DownloadEntity(ctx, identity)
	return ctl.Snapshot(), err
}

// Scan forces a sweep of the current listing page
func (s *Session) Scan(ctx context.Context) (ScanReport, error) {
	s.mu.Lock()
	scanner := s.scanner
	s.mu.Unlock()
	if scanner == nil {
		return ScanReport{}, nil
	}
	return scanner.Scan(ctx)
}

// Controls lists every live control
func (s *Session) Controls() []types.ControlMessage {
	s.mu.Lock()
	page := s.pageControl
	scanner := s.scanner
	s.mu.Unlock()

	var out []types.ControlMessage
	if page != nil {
		out = append(out, page.Snapshot())
	}
	if scanner != nil {
		out = append(out, scanner.Controls()...)
	}
	return out
}

// Status reports the page the session is looking at
func (s *Session) Status() PageStatus {
	location := s.doc.Location()
	status := PageStatus{
		Location:    location,
		ListingPage: document.IsListingPage(location),
		ReleasePage: document.IsReleasePage(location),
	}
	status.Controls = len(s.Controls())

	s.mu.Lock()
	if s.pageControl != nil {
		status.PageControlID = s.pageControl.ID
	}
	s.mu.Unlock()
	return status
}
