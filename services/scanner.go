package services

import (
	"albumgrab/config"
	"albumgrab/document"
	"albumgrab/types"
	"context"
	"log"
	"sort"
	"sync"
	"sync/atomic"

	"golang.org/x/net/html"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// ScanReport summarizes one sweep
type ScanReport struct {
	Strategy     string `json:"strategy"`
	Discovered   int    `json:"discovered"`
	Rejected     int    `json:"rejected"`
	Materialized int    `json:"materialized"`
	Reattached   int    `json:"reattached"`
	Removed      int    `json:"removed"`
	Checks       int    `json:"checks"`
	CacheHits    int    `json:"cacheHits"`
}

// EntityScanner finds release entities on a listing page and keeps exactly
// one control per identity in the document. The registry is authoritative:
// a node it owns always wins over any other node carrying the same identity.
type EntityScanner struct {
	doc        *document.Document
	backend    BackendClient
	presenter  Presenter
	cache      *CompletionCache
	limiter    *rate.Limiter
	strategies []Strategy
	runner     *downloadRunner

	checkConcurrency int
	ceiling          int

	mu        sync.Mutex
	controls  map[string]*Control
	completed map[string]bool
	closed    bool
}

// NewEntityScanner creates a scanner for one listing page scope. trackCtx
// bounds the poll loops of downloads started from it and should outlive the
// scope.
func NewEntityScanner(trackCtx context.Context, doc *document.Document, backend BackendClient, tracker *JobTracker, presenter Presenter, timings config.Timings) *EntityScanner {
	concurrency := timings.CheckConcurrency
	if concurrency < 1 {
		concurrency = 1
	}
	return &EntityScanner{
		doc:        doc,
		backend:    backend,
		presenter:  presenter,
		cache:      NewCompletionCache(timings.FreshnessWindow),
		limiter:    rate.NewLimiter(rate.Limit(timings.CheckRate), timings.CheckBurst),
		strategies: DefaultStrategies(),
		runner: &downloadRunner{
			backend:      backend,
			tracker:      tracker,
			errorDisplay: timings.ErrorDisplay,
			trackCtx:     trackCtx,
		},
		checkConcurrency: concurrency,
		ceiling:          timings.LongCeiling,
		controls:         make(map[string]*Control),
		completed:        make(map[string]bool),
	}
}

// Scan runs one sweep. Repeated scans over an unchanged document change
// nothing, and overlapping scans never produce two controls for an identity.
func (s *EntityScanner) Scan(ctx context.Context) (ScanReport, error) {
	var report ScanReport

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return report, nil
	}
	report.Removed = s.sweepLocked()
	s.mu.Unlock()

	candidates, strategy, rejected := s.discover()
	report.Strategy = strategy
	report.Discovered = len(candidates)
	report.Rejected = rejected

	var fresh []candidate
	for _, c := range candidates {
		s.mu.Lock()
		ctl, known := s.controls[c.entity.Identity]
		if known && s.reattachLocked(ctl, c.anchor) {
			report.Reattached++
		}
		s.mu.Unlock()
		if !known {
			fresh = append(fresh, c)
		}
	}

	var checks, hits atomic.Int32
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.checkConcurrency)
	for i := range fresh {
		i := i
		g.Go(func() error {
			fresh[i].entity = s.resolveCompletion(gctx, fresh[i].entity, &checks, &hits)
			return nil
		})
	}
	_ = g.Wait()
	report.Checks = int(checks.Load())
	report.CacheHits = int(hits.Load())

	for _, c := range fresh {
		if s.materialize(c) {
			report.Materialized++
		}
	}

	if report.Materialized > 0 || report.Reattached > 0 || report.Removed > 0 {
		log.Printf("[scanner] Sweep via %s: %d found, %d new, %d reattached, %d removed",
			report.Strategy, report.Discovered, report.Materialized, report.Reattached, report.Removed)
	}
	return report, ctx.Err()
}

// sweepLocked removes untagged controls and every node for an identity
// other than the one the registry owns. Callers hold s.mu.
func (s *EntityScanner) sweepLocked() int {
	owned := make(map[*html.Node]bool, len(s.controls))
	for _, ctl := range s.controls {
		owned[ctl.node] = true
	}

	removed := 0
	s.doc.Mutate(func(root *html.Node) {
		kept := make(map[string]*html.Node)
		for _, n := range document.FindAll(root, IsControlNode) {
			identity, ok := document.Attr(n, IdentityAttr)
			if !ok || identity == "" || !owned[n] {
				document.Detach(n)
				removed++
				continue
			}
			if _, dup := kept[identity]; dup {
				document.Detach(n)
				removed++
				continue
			}
			kept[identity] = n
		}
	})
	return removed
}

// discover returns the candidates of the first strategy that yields any,
// deduplicated by identity in document order, and how many anchors it
// discarded
func (s *EntityScanner) discover() ([]candidate, string, int) {
	title := s.doc.Title()
	location := s.doc.Location()

	var found []candidate
	var strategy string
	// Anchors discarded by one strategy stay discarded for the sweep
	rejected := make(map[*html.Node]bool)
	discarded := 0
	s.doc.Read(func(root *html.Node) {
		owner := pageOwnerOf(title, root)
		for _, st := range s.strategies {
			seen := make(map[string]bool)
			var batch []candidate
			for _, anchor := range st.Find(root) {
				if rejected[anchor] {
					continue
				}
				c, err := resolveCandidate(anchor, location, owner)
				if err != nil {
					rejected[anchor] = true
					discarded++
					continue
				}
				if seen[c.entity.Identity] {
					continue
				}
				seen[c.entity.Identity] = true
				batch = append(batch, c)
			}
			if len(batch) > 0 {
				found, strategy = batch, st.Name
				return
			}
		}
	})
	return found, strategy, discarded
}

// resolveCompletion fills in the completion status from the cache or the
// backend. A failed check leaves the status unknown and caches nothing.
func (s *EntityScanner) resolveCompletion(ctx context.Context, entity types.Entity, checks, hits *atomic.Int32) types.Entity {
	s.mu.Lock()
	done := s.completed[entity.Identity]
	s.mu.Unlock()
	if done {
		entity.Completion = types.CompletionDownloaded
		return entity
	}

	if entry, ok := s.cache.Get(entity.Identity); ok {
		hits.Add(1)
		entity.Completion = entry.Status
		entity.ConfirmedAt = entry.ObservedAt
		return entity
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return entity
	}
	checks.Add(1)

	exists, err := s.backend.CheckDownload(ctx, SanitizeFilename(entity.OwnerName), SanitizeFilename(entity.DisplayName))
	if err != nil {
		log.Printf("[scanner] Completion check for %s failed: %v", entity.DisplayName, err)
		return entity
	}

	status := types.CompletionNotDownloaded
	if exists {
		status = types.CompletionDownloaded
	}
	entry := s.cache.Put(entity.Identity, status)
	entity.Completion = entry.Status
	entity.ConfirmedAt = entry.ObservedAt
	return entity
}

// materialize creates and inserts the control for c unless a concurrent
// sweep got there first or the anchor has gone
func (s *EntityScanner) materialize(c candidate) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	if _, exists := s.controls[c.entity.Identity]; exists {
		return false
	}
	if s.completed[c.entity.Identity] {
		c.entity.Completion = types.CompletionDownloaded
	}

	ctl := newControl(c.entity, s.doc, s.presenter)
	inserted := false
	s.doc.Mutate(func(root *html.Node) {
		if !document.Contains(root, c.anchor) || c.anchor.Parent == nil {
			return
		}
		if holdsControl(c.anchor.Parent, c.entity.Identity) {
			return
		}
		c.anchor.Parent.AppendChild(ctl.node)
		inserted = true
	})
	if !inserted {
		return false
	}

	s.controls[c.entity.Identity] = ctl
	if s.presenter != nil {
		s.presenter.BroadcastControl(ctl.Snapshot())
	}
	return true
}

// reattachLocked puts a registry control whose node fell out of the tree
// back next to anchor. Callers hold s.mu.
func (s *EntityScanner) reattachLocked(ctl *Control, anchor *html.Node) bool {
	if s.closed {
		return false
	}
	reattached := false
	s.doc.Mutate(func(root *html.Node) {
		if document.Contains(root, ctl.node) {
			return
		}
		if !document.Contains(root, anchor) || anchor.Parent == nil {
			return
		}
		// The node may still hang off a tree that was replaced
		document.Detach(ctl.node)
		anchor.Parent.AppendChild(ctl.node)
		reattached = true
	})
	return reattached
}

func holdsControl(container *html.Node, identity string) bool {
	for ch := container.FirstChild; ch != nil; ch = ch.NextSibling {
		if ch.Type != html.ElementNode || !IsControlNode(ch) {
			continue
		}
		if id, _ := document.Attr(ch, IdentityAttr); id == identity {
			return true
		}
	}
	return false
}

// DownloadEntity starts a download for the control registered to identity
func (s *EntityScanner) DownloadEntity(ctx context.Context, identity string) error {
	s.mu.Lock()
	ctl, ok := s.controls[identity]
	s.mu.Unlock()
	if !ok {
		return ErrControlNotFound
	}

	return s.runner.start(ctx, ctl, s.ceiling, func() {
		s.cache.Invalidate(identity)
		s.mu.Lock()
		s.completed[identity] = true
		s.mu.Unlock()
	})
}

// Control returns the registered control for identity
func (s *EntityScanner) Control(identity string) (*Control, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctl, ok := s.controls[identity]
	return ctl, ok
}

// Controls snapshots every registered control, ordered by name
func (s *EntityScanner) Controls() []types.ControlMessage {
	s.mu.Lock()
	list := make([]*Control, 0, len(s.controls))
	for _, ctl := range s.controls {
		list = append(list, ctl)
	}
	s.mu.Unlock()

	out := make([]types.ControlMessage, 0, len(list))
	for _, ctl := range list {
		out = append(out, ctl.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DisplayName == out[j].DisplayName {
			return out[i].Identity < out[j].Identity
		}
		return out[i].DisplayName < out[j].DisplayName
	})
	return out
}

// EvictStale drops expired cache entries
func (s *EntityScanner) EvictStale() int {
	return s.cache.Evict()
}

// Close ends the page scope: the cache and registry are cleared and every
// control is detached and removed from the document
func (s *EntityScanner) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true

	for _, ctl := range s.controls {
		ctl.detach()
	}
	s.doc.Mutate(func(*html.Node) {
		for _, ctl := range s.controls {
			document.Detach(ctl.node)
		}
	})
	s.controls = make(map[string]*Control)
	s.completed = make(map[string]bool)
	s.cache.Clear()
}
