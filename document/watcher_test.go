package document

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
)

// pageServer serves whatever markup is currently set for a path
type pageServer struct {
	mu     sync.Mutex
	pages  map[string]string
	server *httptest.Server
}

func newPageServer() *pageServer {
	p := &pageServer{pages: make(map[string]string)}
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.NoRoute(func(c *gin.Context) {
		p.mu.Lock()
		markup, ok := p.pages[c.Request.URL.Path]
		p.mu.Unlock()
		if !ok {
			c.Status(http.StatusNotFound)
			return
		}
		c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(markup))
	})
	p.server = httptest.NewServer(router)
	return p
}

func (p *pageServer) set(path, markup string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pages[path] = markup
}

func TestWatcherPublishesChanges(t *testing.T) {
	pages := newPageServer()
	defer pages.server.Close()
	pages.set("/artist/1", `<html><head><title>One | Spotify</title></head><body><a href="/album/a">A</a></body></html>`)

	url := pages.server.URL + "/artist/1"
	doc, err := ParseString("", "")
	require.NoError(t, err)
	w := NewWatcher(NewHTTPSource(url, time.Second), doc, time.Hour)

	var changes []Change
	w.Feed().Subscribe(func(c Change) { changes = append(changes, c) })

	w.Poll(context.Background())
	require.Len(t, changes, 2)
	assert.Equal(t, LocationChanged, changes[0].Kind)
	assert.Equal(t, ContentChanged, changes[1].Kind)
	assert.Equal(t, url, doc.Location())
	assert.Equal(t, "One | Spotify", doc.Title())

	// Identical snapshot: nothing to report
	w.Poll(context.Background())
	assert.Len(t, changes, 2)

	pages.set("/artist/1", `<html><head><title>One | Spotify</title></head><body><a href="/album/a">A</a><a href="/album/b">B</a></body></html>`)
	w.Poll(context.Background())
	require.Len(t, changes, 3)
	assert.Equal(t, ContentChanged, changes[2].Kind)

	var links int
	doc.Read(func(root *html.Node) { links = len(FindAll(root, ByTag("a"))) })
	assert.Equal(t, 2, links)
}

func TestWatcherKeepsDocumentOnFetchError(t *testing.T) {
	pages := newPageServer()
	defer pages.server.Close()

	doc, err := ParseString("https://example.com/x", "<p>kept</p>")
	require.NoError(t, err)
	w := NewWatcher(NewHTTPSource(pages.server.URL+"/missing", time.Second), doc, time.Hour)

	var changes int
	w.Feed().Subscribe(func(Change) { changes++ })
	w.Poll(context.Background())

	assert.Equal(t, 0, changes)
	assert.Equal(t, "https://example.com/x", doc.Location())
}
