package services

import (
	"albumgrab/document"
	"albumgrab/services/backendtest"
	"albumgrab/types"
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
)

const listingURL = "https://open.spotify.com/artist/4hy/discography/all"

const listingMarkup = `<html><head><title>Pete Seeger - Discography | Spotify</title></head><body>
<h1>Pete Seeger</h1>
<div data-testid="grid-container">
  <div data-encore-id="card">
    <div class="cover"><a href="/album/aaa">Song of Hope</a></div>
    <span>2020 • Album</span>
  </div>
  <div data-encore-id="card">
    <div class="cover"><a href="/album/bbb?si=tracking">Little Boxes</a></div>
    <span>1963 • Single</span>
  </div>
  <div data-encore-id="card">
    <div class="cover"><a href="/album/ccc">Spotify Picks For You</a></div>
  </div>
  <div data-encore-id="card">
    <div class="cover"><a href="/album/aaa#top">Song of Hope</a></div>
  </div>
</div>
</body></html>`

const (
	songOfHope  = "https://open.spotify.com/album/aaa"
	littleBoxes = "https://open.spotify.com/album/bbb"
)

type recordingPresenter struct {
	mu   sync.Mutex
	msgs []types.ControlMessage
}

func (p *recordingPresenter) BroadcastControl(msg types.ControlMessage) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, msg)
}

func (p *recordingPresenter) Messages() []types.ControlMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]types.ControlMessage(nil), p.msgs...)
}

type scannerFixture struct {
	scanner   *EntityScanner
	doc       *document.Document
	backend   *backendtest.Backend
	presenter *recordingPresenter
}

func newScannerFixture(t *testing.T, markup string) *scannerFixture {
	t.Helper()
	doc, err := document.ParseString(listingURL, markup)
	require.NoError(t, err)

	fake := backendtest.New()
	t.Cleanup(fake.Close)

	timings := fastTimings()
	client := NewBackendClient(fake.URL(), timings.RequestTimeout)
	presenter := &recordingPresenter{}
	scanner := NewEntityScanner(context.Background(), doc, client, NewJobTracker(client, timings), presenter, timings)
	t.Cleanup(scanner.Close)

	return &scannerFixture{scanner: scanner, doc: doc, backend: fake, presenter: presenter}
}

func controlNodes(doc *document.Document) map[string]int {
	counts := make(map[string]int)
	doc.Read(func(root *html.Node) {
		for _, n := range document.FindAll(root, IsControlNode) {
			id, _ := document.Attr(n, IdentityAttr)
			counts[id]++
		}
	})
	return counts
}

func TestScanMaterializesOneControlPerEntity(t *testing.T) {
	f := newScannerFixture(t, listingMarkup)

	report, err := f.scanner.Scan(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "card", report.Strategy)
	assert.Equal(t, 2, report.Discovered)
	assert.Equal(t, 2, report.Materialized)
	assert.Equal(t, 2, report.Checks)
	assert.Equal(t, map[string]int{songOfHope: 1, littleBoxes: 1}, controlNodes(f.doc))

	ctl, ok := f.scanner.Control(littleBoxes)
	require.True(t, ok)
	assert.Equal(t, types.EntityKindSingle, ctl.Entity().Kind)
	assert.Equal(t, "Pete Seeger", ctl.Entity().OwnerName)
	assert.Equal(t, types.ControlStateActionable, ctl.State())
	assert.Equal(t, "Download single", ctl.Snapshot().Label)

	checks := f.backend.CheckRequests()
	require.Len(t, checks, 2)
	assert.ElementsMatch(t, []string{"Song of Hope", "Little Boxes"}, []string{checks[0].Album, checks[1].Album})
}

func TestScanIsIdempotent(t *testing.T) {
	f := newScannerFixture(t, listingMarkup)

	_, err := f.scanner.Scan(context.Background())
	require.NoError(t, err)
	before, err := f.doc.Render()
	require.NoError(t, err)

	report, err := f.scanner.Scan(context.Background())
	require.NoError(t, err)
	after, err := f.doc.Render()
	require.NoError(t, err)

	assert.Equal(t, 0, report.Materialized)
	assert.Equal(t, 0, report.Removed)
	assert.Equal(t, 0, report.Checks)
	assert.Equal(t, before, after)
	assert.Equal(t, 2, f.backend.Calls("/check-download"))
}

func TestScanMarksDownloadedEntities(t *testing.T) {
	f := newScannerFixture(t, listingMarkup)
	f.backend.Update(func(b *backendtest.Backend) {
		b.Exists[backendtest.Key("Pete Seeger", "Song of Hope")] = true
	})

	_, err := f.scanner.Scan(context.Background())
	require.NoError(t, err)

	ctl, ok := f.scanner.Control(songOfHope)
	require.True(t, ok)
	snap := ctl.Snapshot()
	assert.Equal(t, types.ControlStateCompleted, snap.State)
	assert.Equal(t, "Downloaded", snap.Label)
	assert.True(t, snap.Disabled)

	entry, ok := f.scanner.cache.Get(songOfHope)
	require.True(t, ok)
	assert.Equal(t, types.CompletionDownloaded, entry.Status)
}

func TestScanFailedCheckLeavesStatusUnknown(t *testing.T) {
	f := newScannerFixture(t, listingMarkup)
	f.backend.Update(func(b *backendtest.Backend) { b.CheckCode = http.StatusInternalServerError })

	_, err := f.scanner.Scan(context.Background())
	require.NoError(t, err)

	ctl, ok := f.scanner.Control(songOfHope)
	require.True(t, ok)
	assert.Equal(t, types.CompletionUnknown, ctl.Entity().Completion)
	assert.Equal(t, types.ControlStateActionable, ctl.State())
	assert.Equal(t, 0, f.scanner.cache.Len())
}

func TestResolveCompletionHonorsFreshness(t *testing.T) {
	f := newScannerFixture(t, listingMarkup)
	now := time.Now()
	f.scanner.cache.now = func() time.Time { return now }
	f.scanner.cache.freshness = 30 * time.Second

	entity := types.Entity{Identity: songOfHope, DisplayName: "Song of Hope", OwnerName: "Pete Seeger"}
	f.scanner.cache.Put(songOfHope, types.CompletionNotDownloaded)

	var checks, hits atomic.Int32
	got := f.scanner.resolveCompletion(context.Background(), entity, &checks, &hits)
	assert.Equal(t, types.CompletionNotDownloaded, got.Completion)
	assert.Equal(t, int32(1), hits.Load())
	assert.Equal(t, 0, f.backend.Calls("/check-download"))

	// Past the window the cached answer may be out of date
	f.backend.Update(func(b *backendtest.Backend) {
		b.Exists[backendtest.Key("Pete Seeger", "Song of Hope")] = true
	})
	now = now.Add(31 * time.Second)
	got = f.scanner.resolveCompletion(context.Background(), entity, &checks, &hits)
	assert.Equal(t, types.CompletionDownloaded, got.Completion)
	assert.Equal(t, int32(1), checks.Load())
	assert.Equal(t, 1, f.backend.Calls("/check-download"))
}

func TestScanRemovesStrayControls(t *testing.T) {
	f := newScannerFixture(t, listingMarkup)
	_, err := f.scanner.Scan(context.Background())
	require.NoError(t, err)

	// A duplicate for a known identity and one without any identity
	f.doc.Mutate(func(root *html.Node) {
		grid := document.FindFirst(root, document.ByAttr("data-testid", "grid-container"))
		dup := newControl(types.Entity{Identity: songOfHope, Kind: types.EntityKindAlbum}, nil, nil)
		grid.AppendChild(dup.node)
		bare := newControl(types.Entity{Kind: types.EntityKindAlbum}, nil, nil)
		document.RemoveAttr(bare.node, IdentityAttr)
		grid.AppendChild(bare.node)
	})

	report, err := f.scanner.Scan(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, report.Removed)
	assert.Equal(t, map[string]int{songOfHope: 1, littleBoxes: 1}, controlNodes(f.doc))

	ctl, _ := f.scanner.Control(songOfHope)
	assert.True(t, f.doc.Attached(ctl.node), "the registry's node must survive")
}

func TestScanReattachesAfterRerender(t *testing.T) {
	f := newScannerFixture(t, listingMarkup)
	_, err := f.scanner.Scan(context.Background())
	require.NoError(t, err)
	original, _ := f.scanner.Control(songOfHope)

	fresh, err := document.ParseString(listingURL, listingMarkup)
	require.NoError(t, err)
	var root *html.Node
	fresh.Read(func(r *html.Node) { root = r })
	f.doc.Replace(listingURL, root)
	assert.Empty(t, controlNodes(f.doc))

	report, err := f.scanner.Scan(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, report.Reattached)
	assert.Equal(t, 0, report.Materialized)
	assert.Equal(t, 2, f.backend.Calls("/check-download"))
	assert.Equal(t, map[string]int{songOfHope: 1, littleBoxes: 1}, controlNodes(f.doc))

	again, _ := f.scanner.Control(songOfHope)
	assert.Equal(t, original.ID, again.ID)
}

func TestOverlappingScansProduceOneControl(t *testing.T) {
	f := newScannerFixture(t, listingMarkup)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.scanner.Scan(context.Background())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, map[string]int{songOfHope: 1, littleBoxes: 1}, controlNodes(f.doc))
	assert.Len(t, f.scanner.Controls(), 2)
}

func TestScanFallsBackToPlainLinks(t *testing.T) {
	markup := `<html><head><title>Odetta | Spotify</title></head><body>
<ul>
  <li><a href="/album/x1" aria-label="Odetta Sings Ballads and Blues"></a></li>
  <li><section><h3>Tin Angel</h3><div><a href="/album/x2"><img src="c.jpg"></a></div></section></li>
  <li><a href="/playlist/p1">Not a release</a></li>
</ul>
</body></html>`
	f := newScannerFixture(t, markup)
	f.doc.SetLocation("https://open.spotify.com/artist/odetta")

	report, err := f.scanner.Scan(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "release-link", report.Strategy)
	assert.Equal(t, 2, report.Materialized)

	names := make([]string, 0)
	for _, ctl := range f.scanner.Controls() {
		names = append(names, ctl.DisplayName)
	}
	assert.ElementsMatch(t, []string{"Odetta Sings Ballads and Blues", "Tin Angel"}, names)

	ctl, ok := f.scanner.Control("https://open.spotify.com/album/x1")
	require.True(t, ok)
	assert.Equal(t, "Odetta", ctl.Entity().OwnerName)
}

func TestScanRejectsImplausibleNames(t *testing.T) {
	long := make([]rune, 250)
	for i := range long {
		long[i] = 'a'
	}
	markup := `<html><body>
<a href="/album/1">` + string(long) + `</a>
<a href="/album/2">Sponsored content</a>
<a href="/album/3">Advertisement</a>
<a href="/album/4"></a>
</body></html>`
	f := newScannerFixture(t, markup)

	report, err := f.scanner.Scan(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, report.Discovered)
	assert.Equal(t, 4, report.Rejected)
	assert.Empty(t, controlNodes(f.doc))
}

func TestScanDiscardsCandidateOncePerSweep(t *testing.T) {
	// The sponsored card matches card, grid and release-link lookups
	markup := `<html><head><title>Odetta | Spotify</title></head><body>
<div data-testid="grid-container">
  <div data-encore-id="card"><a href="/album/9">Sponsored pick</a></div>
</div>
<a href="/album/5">Odetta at Carnegie Hall</a>
</body></html>`
	f := newScannerFixture(t, markup)

	report, err := f.scanner.Scan(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "release-link", report.Strategy)
	assert.Equal(t, 1, report.Discovered)
	assert.Equal(t, 1, report.Rejected)
	assert.Equal(t, map[string]int{"https://open.spotify.com/album/5": 1}, controlNodes(f.doc))
}

func TestDownloadEntityCompletesAndStaysCompleted(t *testing.T) {
	f := newScannerFixture(t, listingMarkup)
	f.backend.Update(func(b *backendtest.Backend) {
		b.Statuses = []types.StatusResponse{
			{Status: types.StatusDownloading, CurrentTrack: intPtr(1), TotalTracks: intPtr(2)},
			{Status: types.StatusCompleted, Message: "Done"},
		}
	})
	_, err := f.scanner.Scan(context.Background())
	require.NoError(t, err)

	require.NoError(t, f.scanner.DownloadEntity(context.Background(), songOfHope))
	ctl, _ := f.scanner.Control(songOfHope)

	assert.Eventually(t, func() bool {
		return ctl.State() == types.ControlStateCompleted
	}, 2*time.Second, 5*time.Millisecond)

	reqs := f.backend.DownloadRequests()
	require.Len(t, reqs, 1)
	assert.Equal(t, songOfHope, reqs[0].URL)
	assert.Equal(t, "Pete Seeger", reqs[0].Artist)
	assert.Equal(t, "Song of Hope", reqs[0].Album)
	assert.Equal(t, types.EntityKindAlbum, reqs[0].Type)

	assert.Eventually(t, func() bool {
		_, cached := f.scanner.cache.Get(songOfHope)
		return !cached
	}, time.Second, 5*time.Millisecond)

	// Busy, progress and completed states all reached the presenter
	var labels []string
	for _, msg := range f.presenter.Messages() {
		if msg.Identity == songOfHope {
			labels = append(labels, msg.Label)
		}
	}
	assert.Contains(t, labels, "Starting...")
	assert.Contains(t, labels, "Downloading track 1/2")
	assert.Equal(t, "Downloaded", labels[len(labels)-1])

	// A completed control is never actionable again
	assert.ErrorIs(t, f.scanner.DownloadEntity(context.Background(), songOfHope), ErrControlBusy)
	_, err = f.scanner.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.ControlStateCompleted, ctl.State())
}

func TestDownloadEntitySkipsStartWhenBackendDown(t *testing.T) {
	f := newScannerFixture(t, listingMarkup)
	_, err := f.scanner.Scan(context.Background())
	require.NoError(t, err)
	f.backend.Update(func(b *backendtest.Backend) { b.HealthCode = http.StatusServiceUnavailable })

	err = f.scanner.DownloadEntity(context.Background(), littleBoxes)
	assert.ErrorIs(t, err, ErrBackendUnreachable)
	assert.Equal(t, 0, f.backend.Calls("/download"))

	ctl, _ := f.scanner.Control(littleBoxes)
	assert.Equal(t, types.ControlStateError, ctl.State())
	assert.Equal(t, "Backend server is not running", ctl.Snapshot().Message)

	assert.Eventually(t, func() bool {
		return ctl.State() == types.ControlStateActionable
	}, time.Second, 5*time.Millisecond)
}

func TestDownloadEntityRejectedStart(t *testing.T) {
	f := newScannerFixture(t, listingMarkup)
	f.backend.Update(func(b *backendtest.Backend) {
		b.StartCode = http.StatusInternalServerError
		b.StartResponse = types.DownloadResponse{Error: "disk full"}
	})
	_, err := f.scanner.Scan(context.Background())
	require.NoError(t, err)

	err = f.scanner.DownloadEntity(context.Background(), songOfHope)
	assert.ErrorIs(t, err, ErrBackendRejected)
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, 0, f.backend.Calls("/download/status"))
}

func TestDownloadEntityUnknownIdentity(t *testing.T) {
	f := newScannerFixture(t, listingMarkup)
	assert.ErrorIs(t, f.scanner.DownloadEntity(context.Background(), "nope"), ErrControlNotFound)
}

func TestCloseDetachesControls(t *testing.T) {
	f := newScannerFixture(t, listingMarkup)
	_, err := f.scanner.Scan(context.Background())
	require.NoError(t, err)
	ctl, _ := f.scanner.Control(songOfHope)

	f.scanner.Close()

	assert.Empty(t, controlNodes(f.doc))
	assert.Empty(t, f.scanner.Controls())
	assert.Equal(t, 0, f.scanner.cache.Len())

	// Updates from an abandoned poll loop are dropped
	before := len(f.presenter.Messages())
	ctl.complete("late")
	assert.Len(t, f.presenter.Messages(), before)

	report, err := f.scanner.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, report.Materialized)
}
