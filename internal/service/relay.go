// Package service implements the core relay pipeline: fetch, classify,
// rewrite or hand back the stream.
package service

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"hls-relay-go/internal/client"
	"hls-relay-go/internal/metrics"
	"hls-relay-go/internal/model"
	"hls-relay-go/internal/playlist"
)

// Sentinel errors mapped to HTTP responses by the handler.
var (
	ErrUpstreamFetch    = errors.New("failed to fetch target URL")
	ErrPlaylistTooLarge = errors.New("m3u8 file too large")
	ErrPlaylistRead     = errors.New("failed to read m3u8")
)

// RelayResult is the outcome of one relay pass: either a fully rewritten
// playlist body or the untouched upstream response to be streamed through.
type RelayResult struct {
	Playlist     bool
	PlaylistBody string

	// Upstream is set on the non-playlist path; the caller owns and must
	// close its body.
	Upstream *model.UpstreamResponse
}

// RelayService runs the fetch/classify/rewrite pipeline for one request.
type RelayService struct {
	client  *client.UpstreamClient
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewRelayService creates a RelayService. The metrics parameter is optional;
// pass nil to disable playlist metrics recording.
func NewRelayService(c *client.UpstreamClient, logger *slog.Logger, m *metrics.Metrics) *RelayService {
	return &RelayService{
		client:  c,
		logger:  logger.With("component", "relay_service"),
		metrics: m,
	}
}

// Relay fetches the target resource and either rewrites it as a playlist or
// returns the raw upstream response for streaming. A single upstream failure
// is terminal; there are no retries.
func (s *RelayService) Relay(pr *model.ProxyRequest) (*RelayResult, error) {
	resp, err := s.client.Fetch(pr.Ctx, pr.TargetURL.String(), pr.ForwardHeaders)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamFetch, err)
	}

	if !playlist.IsPlaylist(pr.TargetURL, resp.ContentType) {
		return &RelayResult{Upstream: resp}, nil
	}

	defer func() { _ = resp.Body.Close() }()

	body, err := readCapped(resp.Body)
	if err != nil {
		return nil, err
	}

	rw := playlist.NewRewriter(pr.TargetURL, pr.RawHeadersJSON)
	out, stats := rw.Rewrite(body)

	s.logger.Debug("rewrote playlist",
		"url", pr.TargetURL.String(),
		"lines", stats.Lines,
		"rewritten", stats.Rewritten,
	)
	if s.metrics != nil {
		s.metrics.PlaylistsRewritten.Inc()
		s.metrics.ReferencesRewritten.Add(float64(stats.Rewritten))
	}

	return &RelayResult{Playlist: true, PlaylistBody: out}, nil
}

// readCapped drains the playlist body under the size cap. The limit is
// enforced while downloading, so an oversized upstream body never
// materializes in memory beyond the cap.
func readCapped(r io.Reader) (string, error) {
	data, err := io.ReadAll(io.LimitReader(r, playlist.MaxBodyBytes+1))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrPlaylistRead, err)
	}
	if len(data) > playlist.MaxBodyBytes {
		return "", ErrPlaylistTooLarge
	}
	return string(data), nil
}
