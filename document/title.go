package document

import (
	"net/url"
	"regexp"
	"strings"
)

// Release is the entity described by a release page title
type Release struct {
	Name   string
	Type   string // "album" or "single"
	Artist string
	URL    string
}

// Examples:
// "Think Globally Sing Locally - Album by Pete Seeger | Spotify"
// "My Dirty Stream (The Hudson River Song) - Single by Pete Seeger | Spotify"
var releaseTitle = regexp.MustCompile(`(.+?) - (Album|Single) by (.+?) \| Spotify`)

// "Pete Seeger - Discography | Spotify", "Pete Seeger | Spotify"
var ownerTitle = regexp.MustCompile(`^(.+?)(?: - (?:Discography|Albums|Singles and EPs))? \| Spotify$`)

// ParseReleaseTitle extracts the release described by a page title
func ParseReleaseTitle(title, location string) (Release, bool) {
	match := releaseTitle.FindStringSubmatch(title)
	if match == nil {
		return Release{}, false
	}
	return Release{
		Name:   strings.TrimSpace(match[1]),
		Type:   strings.ToLower(match[2]),
		Artist: strings.TrimSpace(match[3]),
		URL:    location,
	}, true
}

// ParseOwnerTitle extracts the artist a listing page belongs to
func ParseOwnerTitle(title string) (string, bool) {
	match := ownerTitle.FindStringSubmatch(strings.TrimSpace(title))
	if match == nil {
		return "", false
	}
	return strings.TrimSpace(match[1]), true
}

// IsReleasePage reports whether location shows a single album or single
func IsReleasePage(location string) bool {
	return strings.Contains(pathOf(location), "/album/")
}

// IsListingPage reports whether location lists many releases of an artist
func IsListingPage(location string) bool {
	path := pathOf(location)
	return strings.Contains(path, "/artist/") &&
		(strings.Contains(path, "/discography") || strings.Count(strings.Trim(path, "/"), "/") == 1)
}

func pathOf(location string) string {
	u, err := url.Parse(location)
	if err != nil {
		return location
	}
	return u.Path
}

// CanonicalURL resolves href against base and strips query and fragment,
// giving a stable key for a resource across re-renders
func CanonicalURL(base, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if b, err := url.Parse(base); err == nil && base != "" {
		ref = b.ResolveReference(ref)
	}
	if ref.Scheme != "http" && ref.Scheme != "https" {
		return ""
	}
	ref.RawQuery = ""
	ref.Fragment = ""
	return strings.TrimRight(ref.String(), "/")
}
