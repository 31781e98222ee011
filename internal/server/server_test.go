// internal/server/server_test.go
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/colebrumley/zplot/internal/executor"
	"github.com/colebrumley/zplot/internal/history"
	"github.com/colebrumley/zplot/internal/render"
	"github.com/colebrumley/zplot/internal/surface"
	"github.com/colebrumley/zplot/internal/visualizer"
)

// fakeEncoder writes a placeholder video instead of running ffmpeg.
type fakeEncoder struct{}

func (fakeEncoder) Start(ctx context.Context, out executor.Output) (executor.Session, error) {
	return fakeSession{out: out}, nil
}

type fakeSession struct{ out executor.Output }

func (fakeSession) WriteFrame(img *image.RGBA) error { return nil }

func (s fakeSession) Close() error {
	return os.WriteFile(s.out.Path, []byte("\x00\x00\x00\x18ftypmp42fakevideo"), 0600)
}

func testSettings() render.Settings {
	s := render.DefaultSettings()
	s.Width, s.Height, s.FPS = 32, 24, 2
	s.Grid = surface.Grid{Min: -3, Max: 3, Resolution: 6}
	s.AxesDuration = 500 * time.Millisecond
	s.SurfaceDuration = 500 * time.Millisecond
	s.HoldDuration = 500 * time.Millisecond
	return s
}

func newTestServer(t *testing.T, hist HistoryStore, opts Options) *Server {
	t.Helper()
	vis := visualizer.New(visualizer.Options{WorkDir: t.TempDir()}, fakeEncoder{}, nil)
	return New(vis, testSettings, hist, opts, nil)
}

func openHistory(t *testing.T) *history.DB {
	t.Helper()
	db, err := history.Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("history.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func visualizeURL(fn string) string {
	return "/visualize?function=" + url.QueryEscape(fn)
}

func decodeDetail(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Detail string `json:"detail"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decoding error body: %v", err)
	}
	return body.Detail
}

func TestHome(t *testing.T) {
	srv := newTestServer(t, nil, Options{})
	rec := get(t, srv, "/")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]string
	json.NewDecoder(rec.Body).Decode(&body)
	if body["message"] != "Welcome to the Complex Function Visualizer API" {
		t.Errorf("message = %q", body["message"])
	}
	if rec.Header().Get(RequestIDHeader) == "" {
		t.Error("response should carry a request id")
	}
}

func TestVisualize_Success(t *testing.T) {
	srv := newTestServer(t, nil, Options{})
	rec := get(t, srv, visualizeURL("z**2+1"))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "video/mp4" {
		t.Errorf("Content-Type = %q", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); cd != "attachment; filename=visualization.mp4" {
		t.Errorf("Content-Disposition = %q", cd)
	}
	if rec.Body.Len() == 0 {
		t.Error("body should not be empty")
	}
}

func TestVisualize_Forbidden(t *testing.T) {
	srv := newTestServer(t, nil, Options{})
	rec := get(t, srv, visualizeURL("while True: pass"))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	if detail := decodeDetail(t, rec); !strings.Contains(detail, "forbidden terms") {
		t.Errorf("detail = %q", detail)
	}
}

func TestVisualize_Errors(t *testing.T) {
	srv := newTestServer(t, nil, Options{})

	tests := []struct {
		name   string
		target string
		detail string
	}{
		{"missing parameter", "/visualize", "missing required query parameter: function"},
		{"too long", visualizeURL(strings.Repeat("z", 101)), "function expression too long"},
		{"parse error", visualizeURL("z+*"), "invalid function expression: z+*:"},
		{"empty", "/visualize?function=", "invalid function expression"},
		{"unsafe", visualizeURL("1/z"), "error generating visualization: function might lead to unstable behavior"},
		{"bad coloring", visualizeURL("z") + "&coloring=plaid", "unknown coloring"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := get(t, srv, tt.target)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
			if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q", ct)
			}
			if detail := decodeDetail(t, rec); !strings.Contains(detail, tt.detail) {
				t.Errorf("detail = %q, want it to contain %q", detail, tt.detail)
			}
		})
	}
}

func TestVisualize_DomainColoring(t *testing.T) {
	srv := newTestServer(t, nil, Options{})
	rec := get(t, srv, visualizeURL("z")+"&coloring=domain")
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
}

func TestVisualize_RecordsHistory(t *testing.T) {
	db := openHistory(t)
	srv := newTestServer(t, db, Options{})

	ok := get(t, srv, visualizeURL("sin(z)"))
	bad := get(t, srv, visualizeURL("import os"))
	unsafe := get(t, srv, visualizeURL("1/z"))
	if ok.Code != http.StatusOK || bad.Code != http.StatusBadRequest || unsafe.Code != http.StatusBadRequest {
		t.Fatalf("statuses = %d, %d, %d", ok.Code, bad.Code, unsafe.Code)
	}

	got, err := db.Get(ok.Header().Get(RequestIDHeader))
	if err != nil {
		t.Fatalf("history.Get() error = %v", err)
	}
	if got.State != history.StateSuccess || got.Expression != "sin(z)" || got.Bytes == 0 || got.Frames == 0 {
		t.Errorf("success record = %+v", got)
	}

	got, err = db.Get(bad.Header().Get(RequestIDHeader))
	if err != nil {
		t.Fatal(err)
	}
	if got.State != history.StateInvalid || got.Error == "" {
		t.Errorf("invalid record = %+v", got)
	}

	got, err = db.Get(unsafe.Header().Get(RequestIDHeader))
	if err != nil {
		t.Fatal(err)
	}
	if got.State != history.StateFailure {
		t.Errorf("unsafe record state = %s, want failure", got.State)
	}
}

func TestPreview(t *testing.T) {
	srv := newTestServer(t, nil, Options{})
	rec := get(t, srv, "/preview?function="+url.QueryEscape("z**2"))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("Content-Type = %q", ct)
	}
	if _, err := png.Decode(bytes.NewReader(rec.Body.Bytes())); err != nil {
		t.Errorf("body is not a PNG: %v", err)
	}

	if rec := get(t, srv, "/preview"); rec.Code != http.StatusBadRequest {
		t.Errorf("missing function status = %d", rec.Code)
	}
}

func TestProbe(t *testing.T) {
	srv := newTestServer(t, nil, Options{})

	rec := get(t, srv, "/probe?function="+url.QueryEscape("1/z"))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var rep visualizer.ProbeResult
	if err := json.NewDecoder(rec.Body).Decode(&rep); err != nil {
		t.Fatal(err)
	}
	if rep.Safe || len(rep.Samples) != 9 {
		t.Errorf("probe report = %+v", rep)
	}

	if rec := get(t, srv, "/probe?function=exec"); rec.Code != http.StatusBadRequest {
		t.Errorf("forbidden probe status = %d", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, nil, Options{})
	rec := get(t, srv, "/health")

	var body map[string]any
	json.NewDecoder(rec.Body).Decode(&body)
	if body["status"] != "ok" {
		t.Errorf("status = %v", body["status"])
	}
	if body["history_enabled"] != false {
		t.Errorf("history_enabled = %v", body["history_enabled"])
	}
}

func TestHistoryAPI(t *testing.T) {
	db := openHistory(t)
	srv := newTestServer(t, db, Options{})

	get(t, srv, visualizeURL("z"))
	get(t, srv, visualizeURL("eval"))

	rec := get(t, srv, "/api/history")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var records []history.Record
	json.NewDecoder(rec.Body).Decode(&records)
	if len(records) != 2 {
		t.Errorf("records = %d, want 2", len(records))
	}

	rec = get(t, srv, "/api/history?state=invalid&limit=10")
	records = nil
	json.NewDecoder(rec.Body).Decode(&records)
	if len(records) != 1 || records[0].State != history.StateInvalid {
		t.Errorf("filtered records = %+v", records)
	}

	if rec := get(t, srv, "/api/history?limit=abc"); rec.Code != http.StatusBadRequest {
		t.Errorf("bad limit status = %d", rec.Code)
	}

	rec = get(t, srv, "/api/history/stats")
	var st history.Stats
	json.NewDecoder(rec.Body).Decode(&st)
	if st.Total != 2 {
		t.Errorf("stats total = %d", st.Total)
	}

	if rec := get(t, srv, "/api/history/nope"); rec.Code != http.StatusNotFound {
		t.Errorf("unknown request id status = %d", rec.Code)
	}
}

func TestHistoryAPI_Disabled(t *testing.T) {
	srv := newTestServer(t, nil, Options{})

	rec := get(t, srv, "/api/history")
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("disabled history = %d %q", rec.Code, rec.Body.String())
	}
	if rec := get(t, srv, "/api/history/stats"); rec.Code != http.StatusNotFound {
		t.Errorf("stats status = %d", rec.Code)
	}
}

func TestNotFoundAndMethod(t *testing.T) {
	srv := newTestServer(t, nil, Options{})

	if rec := get(t, srv, "/nope"); rec.Code != http.StatusNotFound {
		t.Errorf("unknown path status = %d", rec.Code)
	}
	req := httptest.NewRequest(http.MethodPost, "/visualize?function=z", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST status = %d", rec.Code)
	}
}

func TestRateLimit(t *testing.T) {
	srv := newTestServer(t, nil, Options{RateLimit: 2})

	for i := 0; i < 2; i++ {
		if rec := get(t, srv, "/probe?function=z"); rec.Code != http.StatusOK {
			t.Fatalf("request %d status = %d", i, rec.Code)
		}
	}
	rec := get(t, srv, "/probe?function=z")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After")
	}

	// unlimited endpoints stay available
	if rec := get(t, srv, "/health"); rec.Code != http.StatusOK {
		t.Errorf("health status = %d", rec.Code)
	}
}

func TestRateLimiter_PerClientAndRefill(t *testing.T) {
	l := newRateLimiter(60, 1)
	now := time.Now()
	l.now = func() time.Time { return now }

	if !l.allow("a") {
		t.Fatal("first request should pass")
	}
	if l.allow("a") {
		t.Fatal("second request should be limited")
	}
	if !l.allow("b") {
		t.Error("other clients have their own bucket")
	}

	now = now.Add(time.Second)
	if !l.allow("a") {
		t.Error("one token should refill after a second at 60/min")
	}
	if got := l.retryAfter(); got != 1 {
		t.Errorf("retryAfter() = %d, want 1", got)
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.7:5555"
	if got := clientIP(req); got != "192.0.2.7" {
		t.Errorf("clientIP() = %q", got)
	}
	req.RemoteAddr = "192.0.2.8"
	if got := clientIP(req); got != "192.0.2.8" {
		t.Errorf("clientIP() without port = %q", got)
	}
}

func getFrom(t *testing.T, h http.Handler, target, remote, forwarded string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req.RemoteAddr = remote
	if forwarded != "" {
		req.Header.Set("X-Forwarded-For", forwarded)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRateLimit_IgnoresForwardedHeaders(t *testing.T) {
	srv := newTestServer(t, nil, Options{RateLimit: 1, RateBurst: 1})

	var codes []int
	for i := 0; i < 5; i++ {
		rec := getFrom(t, srv, "/probe?function=z", "192.0.2.10:4000", fmt.Sprintf("10.0.0.%d", i))
		codes = append(codes, rec.Code)
	}
	if codes[0] != http.StatusOK {
		t.Fatalf("first request status = %d", codes[0])
	}
	for i, c := range codes[1:] {
		if c != http.StatusTooManyRequests {
			t.Errorf("request %d with a new X-Forwarded-For status = %d, want 429", i+1, c)
		}
	}
}

func TestRateLimit_TrustProxy(t *testing.T) {
	srv := newTestServer(t, nil, Options{RateLimit: 1, RateBurst: 1, TrustProxy: true})

	for i := 0; i < 3; i++ {
		rec := getFrom(t, srv, "/probe?function=z", "192.0.2.10:4000", fmt.Sprintf("10.0.0.%d", i))
		if rec.Code != http.StatusOK {
			t.Errorf("client 10.0.0.%d status = %d, want 200", i, rec.Code)
		}
	}
	if rec := getFrom(t, srv, "/probe?function=z", "192.0.2.10:4000", "10.0.0.0"); rec.Code != http.StatusTooManyRequests {
		t.Errorf("repeat client status = %d, want 429", rec.Code)
	}
}

func TestHistory_ClientIsRemoteAddr(t *testing.T) {
	db := openHistory(t)
	srv := newTestServer(t, db, Options{})

	rec := getFrom(t, srv, visualizeURL("eval"), "192.0.2.20:5000", "203.0.113.9")
	got, err := db.Get(rec.Header().Get(RequestIDHeader))
	if err != nil {
		t.Fatalf("history.Get() error = %v", err)
	}
	if got.Client != "192.0.2.20" {
		t.Errorf("client = %q, want 192.0.2.20", got.Client)
	}
}
