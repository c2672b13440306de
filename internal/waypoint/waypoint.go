package waypoint

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf16"
	"unicode/utf8"
)

var (
	coordinatesPattern = regexp.MustCompile(`LatLng\s*\(\s*([-+]?\d+(?:\.\d+)?)\s*,\s*([-+]?\d+(?:\.\d+)?)\s*\)`)
	categoryPattern    = regexp.MustCompile(`\btype["']?\s*:\s*(?:'((?:[^'\\]|\\.)*)'|"((?:[^"\\]|\\.)*)")`)
	notePattern        = regexp.MustCompile(`\bremarque["']?\s*:\s*(?:'((?:[^'\\]|\\.)*)'|"((?:[^"\\]|\\.)*)")`)
)

// Waypoint is a canonical point extracted from a map page
type Waypoint struct {
	Lat      float64
	Lon      float64
	Category string
	Note     string
	HasNote  bool // a present but empty note is not the same as no note
}

// Normalize builds a Waypoint from one raw point fragment. Fragments without
// parseable coordinates or without a category are rejected.
func Normalize(fragment string) (Waypoint, bool) {
	lat, lon, ok := MatchCoordinates(fragment)
	if !ok {
		return Waypoint{}, false
	}

	category, ok := MatchCategory(fragment)
	if !ok {
		return Waypoint{}, false
	}

	note, hasNote := MatchNote(fragment)

	return Waypoint{
		Lat:      lat,
		Lon:      lon,
		Category: category,
		Note:     note,
		HasNote:  hasNote,
	}, true
}

// MatchCoordinates finds the latitude and longitude passed to a LatLng(...) call
func MatchCoordinates(s string) (lat, lon float64, ok bool) {
	m := coordinatesPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, 0, false
	}

	lat, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, 0, false
	}
	lon, err = strconv.ParseFloat(m[2], 64)
	if err != nil {
		return 0, 0, false
	}
	return lat, lon, true
}

// MatchCategory finds the quoted value bound to the type key
func MatchCategory(s string) (string, bool) {
	return matchQuoted(categoryPattern, s)
}

// MatchNote finds the quoted value bound to the remarque key
func MatchNote(s string) (string, bool) {
	return matchQuoted(notePattern, s)
}

// matchQuoted returns the first single- or double-quoted literal captured by re
func matchQuoted(re *regexp.Regexp, s string) (string, bool) {
	m := re.FindStringSubmatchIndex(s)
	if m == nil {
		return "", false
	}
	// Group 1 is the single-quoted form, group 2 the double-quoted one.
	for g := 1; g <= 2; g++ {
		if m[2*g] >= 0 {
			return unescapeLiteral(s[m[2*g]:m[2*g+1]]), true
		}
	}
	return "", false
}

// unescapeLiteral resolves the backslash escapes of a script string literal.
// Malformed \x and \u escapes are kept as written.
func unescapeLiteral(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		if s[i] != '\\' || i+1 == len(s) {
			b.WriteByte(s[i])
			i++
			continue
		}
		text, n := unescape(s[i+1:])
		b.WriteString(text)
		i += 1 + n
	}
	return b.String()
}

// unescape decodes the escape sequence at the start of s, which follows a
// backslash, and returns its text and the number of bytes consumed.
func unescape(s string) (string, int) {
	switch s[0] {
	case 'n':
		return "\n", 1
	case 't':
		return "\t", 1
	case 'r':
		return "\r", 1
	case 'b':
		return "\b", 1
	case 'f':
		return "\f", 1
	case 'v':
		return "\v", 1
	case '0':
		if len(s) == 1 || s[1] < '0' || s[1] > '9' {
			return "\x00", 1
		}
	case '\n':
		return "", 1
	case '\r':
		if len(s) > 1 && s[1] == '\n' {
			return "", 2
		}
		return "", 1
	case 'x':
		if r, ok := parseHex(s[1:], 2); ok {
			return string(r), 3
		}
		return `\x`, 1
	case 'u':
		if r, n, ok := parseUnicode(s); ok {
			return string(r), n
		}
		return `\u`, 1
	}

	r, size := utf8.DecodeRuneInString(s)
	return string(r), size
}

// parseUnicode decodes \uXXXX (joining a following low surrogate) or
// \u{X...}. s starts at the 'u'.
func parseUnicode(s string) (rune, int, bool) {
	if strings.HasPrefix(s, "u{") {
		end := strings.IndexByte(s, '}')
		if end < 3 || end > 8 {
			return 0, 0, false
		}
		r, ok := parseHex(s[2:end], end-2)
		if !ok || !utf8.ValidRune(r) {
			return 0, 0, false
		}
		return r, end + 1, true
	}

	r, ok := parseHex(s[1:], 4)
	if !ok {
		return 0, 0, false
	}
	if !utf16.IsSurrogate(r) {
		return r, 5, true
	}
	if strings.HasPrefix(s[5:], `\u`) {
		if low, ok := parseHex(s[7:], 4); ok {
			if pair := utf16.DecodeRune(r, low); pair != utf8.RuneError {
				return pair, 11, true
			}
		}
	}
	return utf8.RuneError, 5, true
}

// parseHex parses exactly n hex digits at the start of s
func parseHex(s string, n int) (rune, bool) {
	if len(s) < n {
		return 0, false
	}
	v, err := strconv.ParseUint(s[:n], 16, 32)
	if err != nil {
		return 0, false
	}
	return rune(v), true
}
