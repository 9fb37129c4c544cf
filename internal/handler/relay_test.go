package handler

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/labstack/echo/v4"

	"hls-relay-go/internal/client"
	"hls-relay-go/internal/config"
	"hls-relay-go/internal/playlist"
	"hls-relay-go/internal/service"
)

func newRelayHandler(t *testing.T, cfg *config.Config) *RelayHandler {
	t.Helper()
	if cfg == nil {
		cfg = &config.Config{}
	}
	if cfg.Upstream.TimeoutSeconds == 0 {
		cfg.Upstream = config.UpstreamConfig{TimeoutSeconds: 10, IdleConnections: 10}
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	uc := client.NewUpstreamClient(cfg, logger, nil)
	svc := service.NewRelayService(uc, logger, nil)
	return NewRelayHandler(service.NewOriginPolicy(cfg), svc, logger)
}

func doRelay(t *testing.T, h *RelayHandler, target string, mod func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, target, http.NoBody)
	if mod != nil {
		mod(req)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.Handle(c); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	return rec
}

func TestRelayHandler_PlaylistRewrite(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusPartialContent) // playlist responses are forced to 200
		_, _ = w.Write([]byte("#EXTM3U\nseg1.ts\n"))
	}))
	defer upstream.Close()

	h := newRelayHandler(t, nil)
	rec := doRelay(t, h, "/?url="+url.QueryEscape(upstream.URL+"/a.m3u8"), nil)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if ct := rec.Header().Get("Content-Type"); ct != playlist.ContentType {
		t.Errorf("Content-Type = %q, want %q", ct, playlist.ContentType)
	}
	if cors := rec.Header().Get("Access-Control-Allow-Origin"); cors != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q, want %q", cors, "*")
	}

	wantLine := "/?url=" + url.QueryEscape(upstream.URL+"/seg1.ts")
	if !strings.Contains(rec.Body.String(), wantLine) {
		t.Errorf("body = %q, want line %q", rec.Body.String(), wantLine)
	}
}

func TestRelayHandler_PlaylistCarriesHeaders(t *testing.T) {
	var gotAuth string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte("#EXTM3U\nseg1.ts\n"))
	}))
	defer upstream.Close()

	headersJSON := `{"Authorization":"Bearer x"}`
	target := "/?url=" + url.QueryEscape(upstream.URL+"/a.m3u8") + "&headers=" + url.QueryEscape(headersJSON)

	h := newRelayHandler(t, nil)
	rec := doRelay(t, h, target, nil)

	if gotAuth != "Bearer x" {
		t.Errorf("upstream Authorization = %q, want %q", gotAuth, "Bearer x")
	}

	// Every rewritten segment link re-embeds the original headers JSON.
	wantParam := "&headers=" + url.QueryEscape(headersJSON)
	for _, line := range strings.Split(rec.Body.String(), "\n") {
		if strings.HasPrefix(line, "/?url=") && !strings.Contains(line, wantParam) {
			t.Errorf("rewritten line %q missing %q", line, wantParam)
		}
	}
}

func TestRelayHandler_OpaqueStream(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "video/mp2t")
		w.Header().Set("Accept-Ranges", "bytes")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("segment-bytes"))
	}))
	defer upstream.Close()

	h := newRelayHandler(t, nil)
	rec := doRelay(t, h, "/?url="+url.QueryEscape(upstream.URL+"/seg1.ts"), nil)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "video/mp2t" {
		t.Errorf("Content-Type = %q, want %q", ct, "video/mp2t")
	}
	if ar := rec.Header().Get("Accept-Ranges"); ar != "bytes" {
		t.Errorf("Accept-Ranges = %q, want %q", ar, "bytes")
	}
	if rec.Body.String() != "segment-bytes" {
		t.Errorf("body = %q, want %q", rec.Body.String(), "segment-bytes")
	}
}

func TestRelayHandler_UpstreamStatusPreserved(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("missing"))
	}))
	defer upstream.Close()

	h := newRelayHandler(t, nil)
	rec := doRelay(t, h, "/?url="+url.QueryEscape(upstream.URL+"/seg1.ts"), nil)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestRelayHandler_ForbiddenOrigin_NoUpstreamCall(t *testing.T) {
	var calls atomic.Int64
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte("#EXTM3U\n"))
	}))
	defer upstream.Close()

	cfg := &config.Config{
		Relay: config.RelayConfig{
			RestrictOrigins: true,
			AllowedOrigins:  []string{"http://localhost:5173"},
		},
	}
	h := newRelayHandler(t, cfg)
	rec := doRelay(t, h, "/?url="+url.QueryEscape(upstream.URL+"/a.m3u8"), func(r *http.Request) {
		r.Header.Set("Origin", "http://evil.example.com")
	})

	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusForbidden)
	}
	if rec.Body.String() != "Access denied: Origin not allowed" {
		t.Errorf("body = %q", rec.Body.String())
	}
	if cors := rec.Header().Get("Access-Control-Allow-Origin"); cors != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q, want %q", cors, "*")
	}
	if n := calls.Load(); n != 0 {
		t.Errorf("upstream calls = %d, want 0", n)
	}
}

func TestRelayHandler_AllowedOriginEchoedInCORS(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("#EXTM3U\n"))
	}))
	defer upstream.Close()

	cfg := &config.Config{
		Relay: config.RelayConfig{
			RestrictOrigins: true,
			AllowedOrigins:  []string{"http://localhost:5173"},
		},
	}
	h := newRelayHandler(t, cfg)
	rec := doRelay(t, h, "/?url="+url.QueryEscape(upstream.URL+"/a.m3u8"), func(r *http.Request) {
		r.Header.Set("Origin", "http://localhost:5173")
	})

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if cors := rec.Header().Get("Access-Control-Allow-Origin"); cors != "http://localhost:5173" {
		t.Errorf("Access-Control-Allow-Origin = %q, want caller's origin", cors)
	}
}

func TestRelayHandler_BadRequest(t *testing.T) {
	h := newRelayHandler(t, nil)

	rec := doRelay(t, h, "/?url=not-a-url", nil)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	if rec.Body.String() != "Invalid URL format" {
		t.Errorf("body = %q, want %q", rec.Body.String(), "Invalid URL format")
	}
	if cors := rec.Header().Get("Access-Control-Allow-Origin"); cors != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q, want %q on error responses", cors, "*")
	}
}

func TestRelayHandler_FetchFailure(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {}))
	upstream.Close()

	h := newRelayHandler(t, nil)
	rec := doRelay(t, h, "/?url="+url.QueryEscape(upstream.URL+"/a.m3u8"), nil)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}
	if rec.Body.String() != "Failed to fetch target URL" {
		t.Errorf("body = %q, want %q", rec.Body.String(), "Failed to fetch target URL")
	}
}

func TestRelayHandler_RangeForwarded(t *testing.T) {
	var gotRange string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotRange = r.Header.Get("Range")
		w.Header().Set("Content-Type", "video/mp2t")
		w.Header().Set("Content-Range", "bytes 0-1023/4096")
		w.WriteHeader(http.StatusPartialContent)
	}))
	defer upstream.Close()

	h := newRelayHandler(t, nil)
	rec := doRelay(t, h, "/?url="+url.QueryEscape(upstream.URL+"/seg1.ts"), func(r *http.Request) {
		r.Header.Set("Range", "bytes=0-1023")
	})

	if gotRange != "bytes=0-1023" {
		t.Errorf("upstream Range = %q, want %q", gotRange, "bytes=0-1023")
	}
	if rec.Code != http.StatusPartialContent {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusPartialContent)
	}
	if cr := rec.Header().Get("Content-Range"); cr != "bytes 0-1023/4096" {
		t.Errorf("Content-Range = %q, want pass-through", cr)
	}
}
