package services

import (
	"albumgrab/document"
	"albumgrab/types"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
)

// Strategy is one structural lookup over the document. Strategies are tried
// in priority order and the first one producing a usable entity wins, so
// the list tolerates the host page changing its markup between releases.
type Strategy struct {
	Name string
	Find func(root *html.Node) []*html.Node
}

// SelectorStrategy builds a strategy from a matcher
func SelectorStrategy(name string, match document.Matcher) Strategy {
	return Strategy{
		Name: name,
		Find: func(root *html.Node) []*html.Node {
			return document.FindAll(root, match)
		},
	}
}

var releaseLink = document.And(document.ByTag("a"), document.ByAttrContains("href", "/album/"))

// DefaultStrategies returns the lookups for release listings, best first
func DefaultStrategies() []Strategy {
	return []Strategy{
		SelectorStrategy("card", document.Within(document.ByAttr("data-encore-id", "card"), releaseLink)),
		SelectorStrategy("grid", document.Within(document.ByAttr("data-testid", "grid-container"), releaseLink)),
		SelectorStrategy("row", document.Within(document.ByAttr("role", "row"), releaseLink)),
		SelectorStrategy("release-link", releaseLink),
	}
}

const maxNameLength = 200

// Substrings that mark a candidate as page chrome rather than a release
var rejectMarkers = []string{"spotify", "advertisement", "sponsored"}

var cardContainer = document.Or(
	document.ByAttr("data-encore-id", "card"),
	document.ByAttr("role", "row"),
	document.ByAttr("data-testid", "grid-item"),
)

// candidate is a resolved entity plus where it sits in the document
type candidate struct {
	anchor *html.Node
	entity types.Entity
}

// resolveCandidate derives name, owner, kind and identity for an anchor.
// Callers hold at least the document read lock.
func resolveCandidate(anchor *html.Node, location, pageOwner string) (candidate, error) {
	name := resolveName(anchor)
	if !plausibleName(name) {
		return candidate{}, fmt.Errorf("%w: name %q", ErrEntityUnresolvable, name)
	}

	card := document.Closest(anchor, cardContainer, 4)
	if card == nil {
		card = anchor.Parent
	}

	owner := pageOwner
	if artistLink := document.FindFirst(card, document.And(document.ByTag("a"), document.ByAttrContains("href", "/artist/"))); artistLink != nil {
		if text := document.Text(artistLink); text != "" {
			owner = text
		}
	}

	kind := types.EntityKindAlbum
	if strings.Contains(document.Text(card), "Single") {
		kind = types.EntityKindSingle
	}

	href, _ := document.Attr(anchor, "href")
	resourceURL := document.CanonicalURL(location, href)

	identity := resourceURL
	if identity == "" {
		identity = normalizeName(owner) + "|" + normalizeName(name)
	}

	return candidate{
		anchor: anchor,
		entity: types.Entity{
			Identity:    identity,
			DisplayName: name,
			ResourceURL: resourceURL,
			OwnerName:   owner,
			Kind:        kind,
			Completion:  types.CompletionUnknown,
		},
	}, nil
}

// resolveName walks the fallback chain: visible text, accessible label,
// title attribute, nearby heading
func resolveName(anchor *html.Node) string {
	if text := document.Text(anchor); text != "" {
		return text
	}
	if label, ok := document.Attr(anchor, "aria-label"); ok && strings.TrimSpace(label) != "" {
		return strings.TrimSpace(label)
	}
	if title, ok := document.Attr(anchor, "title"); ok && strings.TrimSpace(title) != "" {
		return strings.TrimSpace(title)
	}
	for p, depth := anchor.Parent, 0; p != nil && depth < 3; p, depth = p.Parent, depth+1 {
		if heading := document.FindFirst(p, document.IsHeading); heading != nil {
			if text := document.Text(heading); text != "" {
				return text
			}
		}
	}
	return ""
}

func plausibleName(name string) bool {
	if name == "" || utf8.RuneCountInString(name) >= maxNameLength {
		return false
	}
	lower := strings.ToLower(name)
	for _, marker := range rejectMarkers {
		if strings.Contains(lower, marker) {
			return false
		}
	}
	return true
}

func normalizeName(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

// pageOwnerOf finds the artist a listing page belongs to: the page title
// first, then the main heading
func pageOwnerOf(title string, root *html.Node) string {
	if owner, ok := document.ParseOwnerTitle(title); ok {
		return owner
	}
	if h1 := document.FindFirst(root, document.ByTag("h1")); h1 != nil {
		return document.Text(h1)
	}
	return ""
}
