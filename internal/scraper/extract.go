package scraper

import (
	"iter"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/pfrederiksen/canyon-gpx/internal/canyon"
)

// DefaultTitle is used when a topo page has no usable heading
const DefaultTitle = "Canyon"

var (
	// pointStart matches the opening of a "var point = { ... };" assignment.
	pointStart = regexp.MustCompile(`var\s+point\s*=\s*\{`)

	// listingPattern isolates the rows array of a regional listing page.
	listingPattern = regexp.MustCompile(`(?s)var\s+rows\s*=\s*(.*?),\s*searchNom\s*=`)

	listingIDPattern = regexp.MustCompile(`canyon/(\d+)/`)
)

const (
	namedHeadingSelector = "h1.nom, h2.nom, h3.nom, h4.nom, h5.nom, h6.nom"
	headingSelector      = "h1, h2, h3, h4, h5, h6"
)

// Fragments yields the body of every point assignment in a map page, in
// document order. Braces and semicolons inside string literals do not end a
// body. Matches never overlap.
func Fragments(mapDoc string) iter.Seq[string] {
	return func(yield func(string) bool) {
		rest := mapDoc
		for {
			loc := pointStart.FindStringIndex(rest)
			if loc == nil {
				return
			}
			end, ok := objectEnd(rest, loc[1])
			if !ok {
				rest = rest[loc[1]:]
				continue
			}
			if !yield(rest[loc[1]:end]) {
				return
			}
			rest = rest[statementEnd(rest, end):]
		}
	}
}

// objectEnd returns the index of the brace closing the object literal whose
// body starts at start, provided a semicolon follows it.
func objectEnd(s string, start int) (int, bool) {
	depth := 0
	for i := start; i < len(s); i++ {
		switch s[i] {
		case '\'', '"', '`':
			i = skipString(s, i)
		case '{':
			depth++
		case '}':
			if depth > 0 {
				depth--
				continue
			}
			if statementEnd(s, i) < 0 {
				return 0, false
			}
			return i, true
		}
	}
	return 0, false
}

// skipString returns the index of the quote closing the literal opened at
// s[open], or len(s) when the literal never closes.
func skipString(s string, open int) int {
	quote := s[open]
	for i := open + 1; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
		case quote:
			return i
		}
	}
	return len(s)
}

// statementEnd returns the index just past the semicolon following the brace
// at s[brace], or -1 if anything other than whitespace comes first.
func statementEnd(s string, brace int) int {
	for i := brace + 1; i < len(s); i++ {
		switch s[i] {
		case ' ', '\t', '\n', '\r':
		case ';':
			return i + 1
		default:
			return -1
		}
	}
	return -1
}

// Title extracts the canyon name from a topo page. Headings classed "nom" are
// preferred over headings of any level; the first one with text wins and
// DefaultTitle is returned when none has any.
func Title(topoDoc string) string {
	return headingText(topoDoc, DefaultTitle)
}

// headingText returns the collapsed text of the preferred heading of page
func headingText(page, fallback string) string {
	if strings.TrimSpace(page) == "" {
		return fallback
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return fallback
	}

	for _, selector := range []string{namedHeadingSelector, headingSelector} {
		var text string
		doc.Find(selector).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
			text = collapseSpace(sel.Text())
			return text == ""
		})
		if text != "" {
			return text
		}
	}
	return fallback
}

// ListingTitle extracts the region name from a listing page
func ListingTitle(listingDoc string) string {
	return headingText(listingDoc, "Canyons")
}

// ListingIDs returns the canyon IDs referenced by the rows array of a regional
// listing page, in order of first appearance.
func ListingIDs(listingDoc string) []canyon.ID {
	m := listingPattern.FindStringSubmatch(listingDoc)
	if m == nil {
		return nil
	}

	seen := make(map[canyon.ID]bool)
	ids := make([]canyon.ID, 0)
	for _, match := range listingIDPattern.FindAllStringSubmatch(m[1], -1) {
		id, ok := canyon.ParseID(match[1])
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
