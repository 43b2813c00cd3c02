package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/jellydator/ttlcache/v3"

	"github.com/sensorbench/sensorbench/internal/metrics"
	"github.com/sensorbench/sensorbench/internal/sample"
	"github.com/sensorbench/sensorbench/internal/store"
)

type labelsResponse struct {
	Labels []store.Label `json:"labels"`
}

type createLabelRequest struct {
	Name string `json:"name"`
}

type createLabelResponse struct {
	Name string `json:"name"`
}

type recordingsResponse struct {
	Label      string   `json:"label"`
	Recordings []string `json:"recordings"`
}

type recordingResponse struct {
	Label   string         `json:"label"`
	Name    string         `json:"name"`
	TakenAt string         `json:"taken_at,omitempty"`
	Frames  []sample.Frame `json:"frames"`
}

type previewResponse struct {
	Label    string                    `json:"label"`
	Name     string                    `json:"name"`
	Smoothed bool                      `json:"smoothed"`
	Window   int                       `json:"window"`
	Order    int                       `json:"order"`
	Channels []string                  `json:"channels"`
	Frames   []sample.Frame            `json:"frames"`
	Stats    map[string]sample.Summary `json:"stats"`
}

type recordRequest struct {
	Label string `json:"label"`
}

type recordResponse struct {
	Label  string `json:"label"`
	Name   string `json:"name"`
	Frames int    `json:"frames"`
}

type deleteResponse struct {
	Deleted string `json:"deleted"`
	Next    string `json:"next,omitempty"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleLabelsList(w http.ResponseWriter, r *http.Request) {
	labels, err := s.cfg.Store.Labels()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if labels == nil {
		labels = []store.Label{}
	}
	s.writeJSON(w, http.StatusOK, labelsResponse{Labels: labels})
}

func (s *Server) handleLabelsCreate(w http.ResponseWriter, r *http.Request) {
	var req createLabelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	name, err := s.cfg.Store.CreateLabel(req.Name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, createLabelResponse{Name: name})
}

func (s *Server) handleRecordingsList(w http.ResponseWriter, r *http.Request) {
	label := r.PathValue("label")
	names, err := s.cfg.Store.List(label)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if names == nil {
		names = []string{}
	}
	s.writeJSON(w, http.StatusOK, recordingsResponse{Label: label, Recordings: names})
}

func (s *Server) handleRecordingGet(w http.ResponseWriter, r *http.Request) {
	rec, err := s.loadCached(r.PathValue("label"), r.PathValue("file"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	resp := recordingResponse{
		Label:  rec.Label,
		Name:   r.PathValue("file"),
		Frames: rec.Frames,
	}
	if !rec.TakenAt.IsZero() {
		resp.TakenAt = rec.TakenAt.UTC().Format("2006-01-02T15:04:05Z07:00")
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRecordingPreview(w http.ResponseWriter, r *http.Request) {
	rec, err := s.loadCached(r.PathValue("label"), r.PathValue("file"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	smoothedFrames, smoothed, err := sample.SmoothRecording(rec.Frames, s.cfg.SmoothingWindow, s.cfg.SmoothingOrder)
	if err != nil {
		metrics.Errors.WithLabelValues(metrics.ErrorTypePreviewSmooth).Inc()
		s.log.Error("Failed to smooth recording", "label", rec.Label, "file", r.PathValue("file"), "error", err)
		http.Error(w, "failed to smooth recording", http.StatusInternalServerError)
		return
	}

	stats := make(map[string]sample.Summary, sample.Columns)
	for ch, summary := range sample.SummarizeChannels(smoothedFrames) {
		stats[sample.ChannelNames[ch]] = summary
	}

	s.writeJSON(w, http.StatusOK, previewResponse{
		Label:    rec.Label,
		Name:     r.PathValue("file"),
		Smoothed: smoothed,
		Window:   s.cfg.SmoothingWindow,
		Order:    s.cfg.SmoothingOrder,
		Channels: sample.ChannelNames[:],
		Frames:   smoothedFrames,
		Stats:    stats,
	})
}

func (s *Server) handleRecordingDelete(w http.ResponseWriter, r *http.Request) {
	label := r.PathValue("label")
	file := r.PathValue("file")

	next, err := s.cfg.Store.Delete(label, file)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.cache.Delete(cacheKey(label, file))
	s.writeJSON(w, http.StatusOK, deleteResponse{Deleted: file, Next: next})
}

func (s *Server) handleRecord(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Recorder == nil {
		http.Error(w, "no device attached", http.StatusServiceUnavailable)
		return
	}

	var req recordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Label == "" {
		http.Error(w, "label is required", http.StatusBadRequest)
		return
	}

	rec, name, err := s.cfg.Recorder.Record(r.Context(), req.Label)
	if err != nil {
		metrics.Errors.WithLabelValues(metrics.ErrorTypeRecord).Inc()
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, recordResponse{
		Label:  rec.Label,
		Name:   name,
		Frames: len(rec.Frames),
	})
}

func cacheKey(label, file string) string {
	return label + "/" + file
}

// loadCached returns the parsed recording, reading through the preview cache.
func (s *Server) loadCached(label, file string) (*sample.Recording, error) {
	key := cacheKey(label, file)
	if item := s.cache.Get(key); item != nil {
		return item.Value(), nil
	}
	rec, err := s.cfg.Store.Load(label, file)
	if err != nil {
		return nil, err
	}
	s.cache.Set(key, rec, ttlcache.DefaultTTL)
	return rec, nil
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, store.ErrInvalidLabel):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, store.ErrLabelNotFound), errors.Is(err, store.ErrRecordingNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	default:
		s.log.Error("Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		metrics.Errors.WithLabelValues(metrics.ErrorTypeServerEncode).Inc()
		s.log.Error("Failed to encode response", "error", err)
	}
}
