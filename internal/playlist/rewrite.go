package playlist

import (
	"net/url"
	"strings"
)

const (
	// MaxBodyBytes caps playlist bodies; larger inputs are rejected outright.
	MaxBodyBytes = 10_000_000

	// MaxLines caps how many lines a single playlist may contain; lines past
	// the cap are dropped silently.
	MaxLines = 200_000
)

// Rewriter rewrites playlist text line by line so every embedded reference
// becomes a proxy-relative link resolved against the playlist's own URL.
//
// A Rewriter is built per request and never mutated; the headers JSON is the
// raw query parameter of the originating request, re-embedded in every
// rewritten link so the forwarded header set survives follow-up fetches.
type Rewriter struct {
	base        *url.URL
	headersJSON string
}

// NewRewriter creates a Rewriter for one playlist. base is the playlist's own
// absolute URL; headersJSON may be empty.
func NewRewriter(base *url.URL, headersJSON string) *Rewriter {
	return &Rewriter{base: base, headersJSON: headersJSON}
}

// Stats reports what a Rewrite pass did.
type Stats struct {
	Lines     int // lines processed (after the line cap)
	Rewritten int // references rewritten into proxy links
}

// Rewrite transforms the whole playlist body. Line order and count are
// preserved up to MaxLines; lines whose reference cannot be resolved pass
// through unchanged rather than failing the playlist.
func (rw *Rewriter) Rewrite(body string) (string, Stats) {
	lines := splitLines(body)
	if len(lines) > MaxLines {
		lines = lines[:MaxLines]
	}

	var stats Stats
	stats.Lines = len(lines)
	for i, line := range lines {
		out, rewritten := rw.rewriteLine(line)
		if rewritten {
			stats.Rewritten++
		}
		lines[i] = out
	}
	return strings.Join(lines, "\n"), stats
}

// rewriteLine processes one line and reports whether a reference was rewritten.
func (rw *Rewriter) rewriteLine(line string) (string, bool) {
	p := parseLine(line)
	switch p.kind {
	case lineMapURI:
		u, err := Resolve(p.uri, rw.base)
		if err != nil {
			return line, false
		}
		return mapTagPrefix + rw.ref(u) + `"` + p.suffix, true

	case lineAttrURI:
		u, err := Resolve(p.attrs[p.uriAt].value, rw.base)
		if err != nil {
			return line, false
		}
		a := p.attrs[p.uriAt]
		p.attrs[p.uriAt].raw = a.key + `="` + rw.ref(u) + `"`
		return line[:p.tagEnd] + joinAttributes(p.attrs), true

	case lineSegment:
		u, err := Resolve(line, rw.base)
		if err != nil {
			return line, false
		}
		return rw.ref(u), true

	default: // lineBlank, lineComment
		return line, false
	}
}

// ref encodes a resolved absolute URL as a proxy-relative link.
func (rw *Rewriter) ref(u *url.URL) string {
	s := "/?url=" + url.QueryEscape(u.String())
	if rw.headersJSON != "" {
		s += "&headers=" + url.QueryEscape(rw.headersJSON)
	}
	return s
}

// Resolve interprets candidate as an absolute URL, falling back to a relative
// join against the playlist base when it is not absolute on its own.
func Resolve(candidate string, base *url.URL) (*url.URL, error) {
	if u, err := url.Parse(candidate); err == nil && u.IsAbs() {
		return u, nil
	}
	return base.Parse(candidate)
}

func joinAttributes(attrs []attribute) string {
	raws := make([]string, len(attrs))
	for i, a := range attrs {
		raws[i] = a.raw
	}
	return strings.Join(raws, ",")
}

// splitLines splits on \n and tolerates CRLF input; playlists are re-joined
// with bare \n on the way out.
func splitLines(body string) []string {
	lines := strings.Split(body, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}
