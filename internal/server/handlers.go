// internal/server/handlers.go
package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/colebrumley/zplot/internal/history"
	"github.com/colebrumley/zplot/internal/logging"
	"github.com/colebrumley/zplot/internal/render"
	"github.com/colebrumley/zplot/internal/security"
	"github.com/colebrumley/zplot/internal/visualizer"
)

const missingFunction = "missing required query parameter: function"

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": WelcomeMessage})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status":          "ok",
		"uptime":          time.Since(s.start).Truncate(time.Second).String(),
		"history_enabled": s.history != nil,
	}
	writeJSON(w, http.StatusOK, resp)
}

// functionParam returns the function query parameter; an empty value is
// passed through and rejected by the parser.
func functionParam(r *http.Request) (string, bool) {
	vals, ok := r.URL.Query()["function"]
	if !ok || len(vals) == 0 {
		return "", false
	}
	return vals[0], true
}

// requestSettings applies the optional coloring and quality overrides to
// the current settings snapshot.
func (s *Server) requestSettings(r *http.Request) (render.Settings, error) {
	settings := s.settings()
	q := r.URL.Query()
	if c := q.Get("coloring"); c != "" {
		coloring, err := render.ParseColoring(c)
		if err != nil {
			return settings, err
		}
		settings.Coloring = coloring
	}
	if quality := q.Get("quality"); quality != "" {
		var err error
		if settings, err = settings.WithQuality(quality); err != nil {
			return settings, err
		}
	}
	return settings, nil
}

func (s *Server) handleVisualize(w http.ResponseWriter, r *http.Request) {
	fn, ok := functionParam(r)
	if !ok {
		writeDetail(w, http.StatusBadRequest, missingFunction)
		return
	}
	settings, err := s.requestSettings(r)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	}

	start := time.Now()
	res, err := s.vis.Generate(r.Context(), fn, settings)

	rec := history.Record{
		RequestID:  RequestID(r.Context()),
		Source:     "http",
		Client:     clientIP(r),
		Expression: fn,
		StartedAt:  start,
		FinishedAt: time.Now(),
	}
	if res != nil {
		rec.Normalized = res.Normalized
		rec.Frames = res.Frames
		rec.Bytes = int64(len(res.Video))
	}
	s.record(rec, err)

	if err != nil {
		s.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "video/mp4")
	w.Header().Set("Content-Disposition", "attachment; filename=visualization.mp4")
	w.Header().Set("Content-Length", strconv.Itoa(len(res.Video)))
	w.WriteHeader(http.StatusOK)
	w.Write(res.Video)
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	fn, ok := functionParam(r)
	if !ok {
		writeDetail(w, http.StatusBadRequest, missingFunction)
		return
	}
	settings, err := s.requestSettings(r)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	}

	img, err := s.vis.Preview(r.Context(), fn, settings)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(img)))
	w.WriteHeader(http.StatusOK)
	w.Write(img)
}

func (s *Server) handleProbe(w http.ResponseWriter, r *http.Request) {
	fn, ok := functionParam(r)
	if !ok {
		writeDetail(w, http.StatusBadRequest, missingFunction)
		return
	}
	rep, err := s.vis.ProbeReport(fn)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) handleHistoryList(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeJSON(w, http.StatusOK, []history.Record{})
		return
	}

	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 1 {
			writeDetail(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	if limit > 500 {
		limit = 500
	}

	records, err := s.history.List(r.URL.Query().Get("state"), limit)
	if err != nil {
		s.logger.Error("querying history", "error", err)
		writeDetail(w, http.StatusInternalServerError, "querying history failed")
		return
	}
	if records == nil {
		records = []history.Record{}
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleHistoryStats(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeDetail(w, http.StatusNotFound, "history is disabled")
		return
	}
	st, err := s.history.Stats()
	if err != nil {
		s.logger.Error("querying history stats", "error", err)
		writeDetail(w, http.StatusInternalServerError, "querying history failed")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleHistoryGet(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeDetail(w, http.StatusNotFound, "history is disabled")
		return
	}
	rec, err := s.history.Get(chi.URLParam(r, "requestID"))
	if errors.Is(err, history.ErrNotFound) {
		writeDetail(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		s.logger.Error("querying history", "error", err)
		writeDetail(w, http.StatusInternalServerError, "querying history failed")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// writeError maps visualizer failures to 400 and anything else to 500.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	logger := logging.WithRequest(s.logger, RequestID(r.Context()))
	if _, ok := visualizer.KindOf(err); ok {
		logger.Info("request rejected", "error", err)
		writeDetail(w, http.StatusBadRequest, security.ScrubDetail(err.Error()))
		return
	}
	logger.Error("request failed", "error", err)
	writeDetail(w, http.StatusInternalServerError, "internal server error")
}

func (s *Server) record(rec history.Record, err error) {
	if s.history == nil {
		return
	}
	rec.State = history.StateOf(err)
	if err != nil {
		rec.Error = security.ScrubDetail(err.Error())
	}
	if _, herr := s.history.Record(rec); herr != nil {
		logging.WithRequest(s.logger, rec.RequestID).Warn("failed to record history", "error", herr)
	}
}
