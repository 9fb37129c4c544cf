package handler

import (
	"encoding/json"
	"net/http"
	"net/url"

	"golang.org/x/net/http/httpguts"

	"hls-relay-go/internal/model"
)

// maxForwardHeaders caps the client-supplied header set.
const maxForwardHeaders = 50

// requestError is a terminal parse failure reported to the client as a
// plain-text response.
type requestError struct {
	status  int
	message string
}

// parseProxyRequest builds an immutable ProxyRequest from the inbound query
// string. Headers are applied in a fixed order: the JSON set first, then the
// inbound Range header (so the client set cannot suppress or replace it),
// then the Origin override on top of both.
func parseProxyRequest(req *http.Request) (*model.ProxyRequest, *requestError) {
	q := req.URL.Query()

	target, err := url.Parse(q.Get("url"))
	if err != nil || !target.IsAbs() || target.Host == "" {
		return nil, &requestError{http.StatusBadRequest, "Invalid URL format"}
	}

	forward := make(http.Header)
	rawHeaders := q.Get("headers")
	if rawHeaders != "" {
		var parsed map[string]string
		if err := json.Unmarshal([]byte(rawHeaders), &parsed); err != nil {
			return nil, &requestError{http.StatusBadRequest, "Invalid headers JSON"}
		}
		if len(parsed) > maxForwardHeaders {
			return nil, &requestError{http.StatusBadRequest, "Too many headers"}
		}
		for k, v := range parsed {
			if !httpguts.ValidHeaderFieldName(k) || !httpguts.ValidHeaderFieldValue(v) {
				return nil, &requestError{http.StatusBadRequest, "Invalid header format"}
			}
			forward.Set(k, v)
		}
	}

	if r := req.Header.Get("Range"); r != "" {
		forward.Set("Range", r)
	}

	if origin := q.Get("origin"); origin != "" {
		if !httpguts.ValidHeaderFieldValue(origin) {
			return nil, &requestError{http.StatusBadRequest, "Invalid Origin header"}
		}
		forward.Set("Origin", origin)
	}

	return &model.ProxyRequest{
		Ctx:            req.Context(),
		TargetURL:      target,
		ForwardHeaders: forward,
		RawHeadersJSON: rawHeaders,
	}, nil
}
