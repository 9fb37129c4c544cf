package playlist

import "strings"

// mapTagPrefix is the one directive rewritten by literal prefix match rather
// than attribute scanning, because players require its URI first.
const mapTagPrefix = `#EXT-X-MAP:URI="`

// lineKind classifies one playlist line into exactly one variant.
type lineKind int

const (
	lineBlank   lineKind = iota // empty or whitespace-only
	lineMapURI                  // #EXT-X-MAP:URI="..." special case
	lineAttrURI                 // directive carrying a quoted URI/URL attribute
	lineComment                 // any other #-prefixed or unrecognized line
	lineSegment                 // bare segment reference
)

// parsedLine is the result of classifying a single line. Fields beyond kind
// are populated only for the variants that need them.
type parsedLine struct {
	kind lineKind

	// uri is the embedded reference for lineMapURI; suffix is whatever
	// followed its closing quote and is re-emitted verbatim.
	uri    string
	suffix string

	// attrs is the ordered attribute list for lineAttrURI, uriAt the index
	// of the attribute to rewrite, and tagEnd the offset just past the ':'
	// separating the directive name from its attributes.
	attrs  []attribute
	uriAt  int
	tagEnd int
}

// attribute is one KEY=VALUE element of a directive attribute list. raw holds
// the original text and is emitted verbatim unless the value is rewritten.
type attribute struct {
	raw    string
	key    string
	value  string
	quoted bool
}

func parseLine(line string) parsedLine {
	if strings.TrimSpace(line) == "" {
		return parsedLine{kind: lineBlank}
	}

	if rest, ok := strings.CutPrefix(line, mapTagPrefix); ok {
		if uri, suffix, ok := strings.Cut(rest, `"`); ok {
			return parsedLine{kind: lineMapURI, uri: uri, suffix: suffix}
		}
		// Unterminated quote: treat the remainder as the reference.
		return parsedLine{kind: lineMapURI, uri: rest}
	}

	if strings.HasPrefix(line, "#") {
		colon := strings.IndexByte(line, ':')
		if colon < 0 {
			return parsedLine{kind: lineComment}
		}
		attrs := parseAttributes(line[colon+1:])
		for i, a := range attrs {
			if a.quoted && isURIKey(a.key) {
				return parsedLine{kind: lineAttrURI, attrs: attrs, uriAt: i, tagEnd: colon + 1}
			}
		}
		return parsedLine{kind: lineComment}
	}

	return parsedLine{kind: lineSegment}
}

func isURIKey(key string) bool {
	return strings.EqualFold(key, "URI") || strings.EqualFold(key, "URL")
}

// parseAttributes splits a directive's attribute list on commas, honoring
// quoted values that may themselves contain commas (e.g. CODECS lists).
func parseAttributes(s string) []attribute {
	var attrs []attribute
	for _, part := range splitAttributeList(s) {
		attrs = append(attrs, parseAttribute(part))
	}
	return attrs
}

func splitAttributeList(s string) []string {
	var parts []string
	start := 0
	inQuotes := false
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '"':
			inQuotes = !inQuotes
		case ',':
			if !inQuotes {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, s[start:])
}

func parseAttribute(raw string) attribute {
	eq := strings.IndexByte(raw, '=')
	if eq < 0 {
		return attribute{raw: raw}
	}
	a := attribute{raw: raw, key: raw[:eq], value: raw[eq+1:]}
	if len(a.value) >= 2 && a.value[0] == '"' && a.value[len(a.value)-1] == '"' {
		a.quoted = true
		a.value = a.value[1 : len(a.value)-1]
	}
	return a
}
