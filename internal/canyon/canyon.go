package canyon

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strconv"
	"strings"
)

const (
	BaseURL           = "https://www.descente-canyon.com/canyoning"
	DefaultListingURL = BaseURL + "/lieu/01025/Haute-Savoie.html"
)

// ErrInvalidID is returned when no positive canyon ID can be resolved.
var ErrInvalidID = errors.New("no valid canyon identifier")

var (
	// Known page templates, tried before the generic digit segment.
	templateIDPattern = regexp.MustCompile(`/canyon(?:-carte|-description)?/(\d+)/`)
	segmentIDPattern  = regexp.MustCompile(`/(\d+)/`)
)

// ID identifies a canyon on the source site
type ID int

func (id ID) String() string {
	return strconv.Itoa(int(id))
}

// Filename returns the suggested download name for the canyon's GPX file
func (id ID) Filename() string {
	return fmt.Sprintf("canyon-%d.gpx", id)
}

// ParseID parses a decimal canyon ID. Only positive integers are accepted.
func ParseID(s string) (ID, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n <= 0 {
		return 0, false
	}
	return ID(n), true
}

// FromURL extracts the canyon ID from a page URL. Segments matching one of the
// site's page templates win over the first bare numeric path segment.
func FromURL(raw string) (ID, bool) {
	for _, re := range []*regexp.Regexp{templateIDPattern, segmentIDPattern} {
		if m := re.FindStringSubmatch(raw); m != nil {
			if id, ok := ParseID(m[1]); ok {
				return id, true
			}
		}
	}
	return 0, false
}

// Resolve picks the canyon ID from an explicit id value, falling back to the
// URL when the id is empty or invalid.
func Resolve(id, rawURL string) (ID, error) {
	if v, ok := ParseID(id); ok {
		return v, nil
	}
	if v, ok := FromURL(rawURL); ok {
		return v, nil
	}
	if id == "" && rawURL == "" {
		return 0, fmt.Errorf("%w: neither id nor url given", ErrInvalidID)
	}
	return 0, fmt.Errorf("%w: id=%q url=%q", ErrInvalidID, id, rawURL)
}

// Sources holds the pages derived from a canyon ID
type Sources struct {
	Map       string
	Topo      string
	Canonical string
}

// SourcesFor derives the map, topo and canonical page URLs under base
func SourcesFor(base string, id ID) Sources {
	base = strings.TrimRight(base, "/")
	return Sources{
		Map:       fmt.Sprintf("%s/canyon-carte/%d/carte.html", base, id),
		Topo:      fmt.Sprintf("%s/canyon-description/%d/topo.html", base, id),
		Canonical: fmt.Sprintf("%s/canyon/%d/", base, id),
	}
}

// ListingFilename derives the download name for a regional listing, e.g.
// ".../lieu/01025/Haute-Savoie.html" gives "canyons-haute-savoie.gpx".
func ListingFilename(listingURL string) string {
	p := listingURL
	if u, err := url.Parse(listingURL); err == nil && u.Path != "" {
		p = u.Path
	}
	name := strings.TrimSuffix(path.Base(p), path.Ext(p))

	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-' || r == '_' || r == ' ':
			b.WriteRune('-')
		}
	}
	slug := strings.Trim(b.String(), "-")
	if slug == "" {
		return "canyons.gpx"
	}
	return "canyons-" + slug + ".gpx"
}
