// Package playlist classifies upstream responses and rewrites HLS playlist
// text so that every embedded reference routes back through the relay.
package playlist

import (
	"net/url"
	"strings"
)

// ContentType is emitted on every rewritten playlist response.
const ContentType = "application/vnd.apple.mpegurl"

// hlsMIMETokens mark a Content-Type as an HLS playlist when contained in it.
var hlsMIMETokens = []string{
	"mpegurl",
	"application/vnd.apple.mpegurl",
	"application/x-mpegurl",
}

// IsPlaylist reports whether the response should be treated as an m3u8
// playlist. A target path ending in .m3u8 always wins, regardless of the
// declared content type; otherwise the lowercased content type is checked
// for the known HLS MIME tokens.
func IsPlaylist(target *url.URL, contentType string) bool {
	if strings.HasSuffix(target.Path, ".m3u8") {
		return true
	}
	for _, token := range hlsMIMETokens {
		if strings.Contains(contentType, token) {
			return true
		}
	}
	return false
}
