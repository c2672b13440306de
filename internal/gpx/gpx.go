package gpx

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	Creator         = "Descente Canyon Converter"
	Namespace       = "http://www.topografix.com/GPX/1/1"
	DefaultLinkText = "Lien vers le topo"
)

// Document is the content of one GPX file
type Document struct {
	Name      string
	Link      string // canonical page, never the scraped map page
	LinkText  string
	Waypoints []Waypoint
}

// Waypoint is a rendered <wpt> element
type Waypoint struct {
	Lat    float64
	Lon    float64
	Name   string
	Symbol string
	Type   string
	Link   string
}

var escaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&apos;",
)

// Escape replaces the five predefined XML entities in s and drops characters
// XML 1.0 cannot carry.
func Escape(s string) string {
	return escaper.Replace(strings.Map(xmlChar, s))
}

func xmlChar(r rune) rune {
	switch {
	case r == '\t' || r == '\n' || r == '\r':
		return r
	case r < 0x20, r == 0xFFFE, r == 0xFFFF:
		return -1
	}
	return r
}

// Generate builds the complete GPX text for doc
func Generate(doc *Document) string {
	var gpx strings.Builder

	linkText := doc.LinkText
	if linkText == "" {
		linkText = DefaultLinkText
	}

	gpx.WriteString("<?xml version=\"1.0\" encoding=\"UTF-8\" standalone=\"no\" ?>\n")
	gpx.WriteString(fmt.Sprintf("<gpx xmlns=\"%s\" version=\"1.1\" creator=\"%s\">\n", Namespace, Escape(Creator)))

	gpx.WriteString("  <metadata>\n")
	if doc.Name != "" {
		gpx.WriteString(fmt.Sprintf("    <name>%s</name>\n", Escape(doc.Name)))
	}
	if doc.Link != "" {
		writeLink(&gpx, "    ", doc.Link, linkText)
	}
	gpx.WriteString("  </metadata>\n")

	for _, w := range doc.Waypoints {
		gpx.WriteString(fmt.Sprintf("  <wpt lat=\"%s\" lon=\"%s\">\n", formatCoord(w.Lat), formatCoord(w.Lon)))
		gpx.WriteString(fmt.Sprintf("    <name>%s</name>\n", Escape(w.Name)))
		// GPX 1.1 orders wpt children as name, link, sym, type.
		if w.Link != "" {
			writeLink(&gpx, "    ", w.Link, linkText)
		}
		gpx.WriteString(fmt.Sprintf("    <sym>%s</sym>\n", Escape(w.Symbol)))
		gpx.WriteString(fmt.Sprintf("    <type>%s</type>\n", Escape(w.Type)))
		gpx.WriteString("  </wpt>\n")
	}

	gpx.WriteString("</gpx>\n")

	return gpx.String()
}

func writeLink(b *strings.Builder, indent, href, text string) {
	b.WriteString(fmt.Sprintf("%s<link href=\"%s\">\n", indent, Escape(href)))
	b.WriteString(fmt.Sprintf("%s  <text>%s</text>\n", indent, Escape(text)))
	b.WriteString(fmt.Sprintf("%s</link>\n", indent))
}

// formatCoord prints the shortest decimal that parses back to v
func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
