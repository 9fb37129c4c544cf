package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"hls-relay-go/internal/playlist"
	"hls-relay-go/internal/service"
)

// forwardableResponseHeaders are the upstream response headers passed through
// on the opaque streaming path. Content-Range and Accept-Ranges keep
// byte-range playback working through the relay.
var forwardableResponseHeaders = []string{
	"Content-Type",
	"Content-Length",
	"Content-Range",
	"Accept-Ranges",
	"Content-Encoding",
	"Cache-Control",
	"Date",
}

// RelayHandler serves the single relay endpoint.
type RelayHandler struct {
	policy  *service.OriginPolicy
	service *service.RelayService
	logger  *slog.Logger
}

// NewRelayHandler creates a RelayHandler.
func NewRelayHandler(policy *service.OriginPolicy, svc *service.RelayService, logger *slog.Logger) *RelayHandler {
	return &RelayHandler{
		policy:  policy,
		service: svc,
		logger:  logger.With("component", "relay_handler"),
	}
}

// Handle runs the relay pipeline: origin gate, query parse, upstream fetch,
// then either the rewritten playlist or an incremental copy of the upstream
// body. Every response carries an Access-Control-Allow-Origin header so the
// browser can surface errors instead of swallowing them.
func (h *RelayHandler) Handle(c echo.Context) error {
	req := c.Request()
	origin := req.Header.Get("Origin")

	if !h.policy.Allow(origin, req.Header.Get("Referer")) {
		c.Response().Header().Set(echo.HeaderAccessControlAllowOrigin, "*")
		return c.String(http.StatusForbidden, "Access denied: Origin not allowed")
	}

	corsOrigin := origin
	if corsOrigin == "" {
		corsOrigin = "*"
	}
	c.Response().Header().Set(echo.HeaderAccessControlAllowOrigin, corsOrigin)

	pr, perr := parseProxyRequest(req)
	if perr != nil {
		return c.String(perr.status, perr.message)
	}

	res, err := h.service.Relay(pr)
	if err != nil {
		return h.mapError(c, err)
	}

	if res.Playlist {
		// A successfully rewritten playlist is always reported as 200,
		// regardless of the upstream status.
		return c.Blob(http.StatusOK, playlist.ContentType, []byte(res.PlaylistBody))
	}

	up := res.Upstream
	defer func() { _ = up.Body.Close() }()

	header := c.Response().Header()
	for _, key := range forwardableResponseHeaders {
		if vals := up.Header.Values(key); len(vals) > 0 {
			header[http.CanonicalHeaderKey(key)] = vals
		}
	}

	c.Response().WriteHeader(up.StatusCode)

	// Stream the upstream body directly to the client. If io.Copy fails
	// mid-stream (client disconnect, upstream reset), the status line has
	// already been sent, so the client sees a truncated response. That
	// matches the underlying transport's behavior; log it and move on.
	if _, err := io.Copy(c.Response(), up.Body); err != nil {
		h.logger.Error("streaming upstream body",
			"err", err,
			"url", pr.TargetURL.String(),
		)
	}

	return nil
}

func (h *RelayHandler) mapError(c echo.Context, err error) error {
	h.logger.Error("relay error",
		"err", err,
		"url", c.QueryParam("url"),
	)

	switch {
	case errors.Is(err, service.ErrPlaylistTooLarge):
		return c.String(http.StatusBadRequest, "m3u8 file too large")
	case errors.Is(err, service.ErrPlaylistRead):
		return c.String(http.StatusInternalServerError, "Failed to read m3u8")
	default:
		return c.String(http.StatusInternalServerError, "Failed to fetch target URL")
	}
}
