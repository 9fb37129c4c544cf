// Package model defines shared types for the relay.
package model

import (
	"context"
	"io"
	"net/http"
	"net/url"
)

// ProxyRequest is a fully parsed and validated relay request. It is built once
// from the inbound query string and not mutated afterwards.
type ProxyRequest struct {
	Ctx context.Context

	// TargetURL is the absolute URL of the upstream resource.
	TargetURL *url.URL

	// ForwardHeaders is sent verbatim on the upstream GET. It already contains
	// the client-supplied header set, the inbound Range header, and the Origin
	// override, applied in that order.
	ForwardHeaders http.Header

	// RawHeadersJSON is the headers query parameter exactly as received.
	// Rewritten playlist references re-embed it so the header set survives
	// the hop to the next segment request.
	RawHeadersJSON string
}

// UpstreamResponse is the upstream reply handed back through the pipeline.
// The body is a stream; for playlists the service drains it under the size
// cap, for everything else it is copied to the client incrementally.
type UpstreamResponse struct {
	StatusCode int
	Header     http.Header

	// ContentType is the upstream Content-Type lowered for classification.
	// The original casing is still available in Header for pass-through.
	ContentType string

	Body io.ReadCloser
}
