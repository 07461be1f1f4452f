// Package api exposes the queue over HTTP for admission and control.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"sync"

	"ytqueue/internal/config"
	"ytqueue/internal/domain"
	"ytqueue/internal/engine"
	"ytqueue/internal/history"
)

// Server is the HTTP adapter in front of the queue engine.
type Server struct {
	engine  *engine.Engine
	archive *history.Archive
	mux     *http.ServeMux
	server  *http.Server

	settingsMu   sync.Mutex
	settings     config.Settings
	settingsPath string
}

// NewServer creates a new HTTP server controlling eng. archive may be nil.
func NewServer(eng *engine.Engine, archive *history.Archive, settings config.Settings, settingsPath, addr string) *Server {
	s := &Server{
		engine:       eng,
		archive:      archive,
		settings:     settings,
		settingsPath: settingsPath,
		mux:          http.NewServeMux(),
	}
	s.routes()
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.mux,
	}
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("POST /jobs", s.handleEnqueue)
	s.mux.HandleFunc("GET /jobs", s.handleListJobs)
	s.mux.HandleFunc("DELETE /jobs/{index}", s.handleRemoveJob)
	s.mux.HandleFunc("POST /queue/start", s.handleStart)
	s.mux.HandleFunc("POST /queue/cancel", s.handleCancel)
	s.mux.HandleFunc("POST /queue/clear", s.handleClear)
	s.mux.HandleFunc("GET /stats", s.handleStats)
	s.mux.HandleFunc("GET /history", s.handleHistory)
	s.mux.HandleFunc("GET /health", s.handleHealth)
}

// enqueueRequest is the request body for POST /jobs. Omitted fields fall
// back to the last-used settings.
type enqueueRequest struct {
	URL         string `json:"url"`
	MediaKind   string `json:"media_kind"`
	Quality     string `json:"quality"`
	AudioFormat string `json:"audio_format"`
	DestDir     string `json:"dest_dir"`
	ToolPath    string `json:"tool_path"`
}

// jobResponse is the JSON shape for job entries.
type jobResponse struct {
	URL         string `json:"url"`
	MediaKind   string `json:"media_kind"`
	Quality     string `json:"quality"`
	AudioFormat string `json:"audio_format,omitempty"`
	DestDir     string `json:"dest_dir"`
	RetryCount  int    `json:"retry_count"`
	Status      string `json:"status"`
}

// errorResponse is the JSON error response.
type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	var req enqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.URL == "" {
		s.writeError(w, http.StatusBadRequest, "url is required")
		return
	}

	job := s.jobFromRequest(req)
	if err := s.engine.Enqueue(job); err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidURL),
			errors.Is(err, domain.ErrInvalidJob),
			errors.Is(err, domain.ErrInvalidTool):
			s.writeError(w, http.StatusBadRequest, err.Error())
		default:
			log.Printf("enqueue error: %v", err)
			s.writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	s.rememberSettings(job)
	s.writeJSON(w, http.StatusCreated, jobToResponse(job))
}

// jobFromRequest fills omitted fields from the last-used settings.
func (s *Server) jobFromRequest(req enqueueRequest) domain.Job {
	s.settingsMu.Lock()
	defaults := s.settings
	s.settingsMu.Unlock()

	kind := domain.MediaKind(req.MediaKind)
	if req.MediaKind == "" {
		kind = domain.MediaKind(defaults.MediaKind)
	}
	quality := req.Quality
	if quality == "" {
		if kind == domain.KindAudio {
			quality = defaults.AudioQuality
		} else {
			quality = defaults.VideoResolution
		}
	}
	format := req.AudioFormat
	if format == "" && kind == domain.KindAudio {
		format = defaults.AudioFormat
	}
	destDir := req.DestDir
	if destDir == "" {
		destDir = defaults.DownloadPath
	}
	toolPath := req.ToolPath
	if toolPath == "" {
		toolPath = defaults.ToolPath
	}

	return domain.Job{
		URL:         req.URL,
		DestDir:     destDir,
		ToolPath:    toolPath,
		MediaKind:   kind,
		Quality:     quality,
		AudioFormat: format,
		Status:      domain.StatusQueued,
	}
}

// rememberSettings persists the admitted job's options as the new
// last-used defaults. Best effort.
func (s *Server) rememberSettings(job domain.Job) {
	s.settingsMu.Lock()
	defer s.settingsMu.Unlock()
	s.settings.DownloadPath = job.DestDir
	s.settings.ToolPath = job.ToolPath
	s.settings.MediaKind = string(job.MediaKind)
	if job.MediaKind == domain.KindAudio {
		s.settings.AudioQuality = job.Quality
		s.settings.AudioFormat = job.AudioFormat
	} else {
		s.settings.VideoResolution = job.Quality
	}
	if s.settingsPath == "" {
		return
	}
	if err := s.settings.Save(s.settingsPath); err != nil {
		log.Printf("save settings: %v", err)
	}
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	type listResponse struct {
		State   string        `json:"state"`
		Current *jobResponse  `json:"current,omitempty"`
		Queue   []jobResponse `json:"queue"`
	}
	resp := listResponse{
		State: s.engine.State().String(),
		Queue: []jobResponse{},
	}
	if cur, ok := s.engine.Current(); ok {
		jr := jobToResponse(cur)
		resp.Current = &jr
	}
	for _, j := range s.engine.Jobs() {
		resp.Queue = append(resp.Queue, jobToResponse(j))
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRemoveJob(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid queue index")
		return
	}
	if err := s.engine.RemoveAt(index); err != nil {
		if errors.Is(err, domain.ErrIndexOutOfRange) {
			s.writeError(w, http.StatusNotFound, "no job at index")
			return
		}
		log.Printf("remove job error: %v", err)
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	s.engine.Start()
	s.writeJSON(w, http.StatusAccepted, map[string]string{"state": s.engine.State().String()})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	s.engine.Cancel()
	s.writeJSON(w, http.StatusAccepted, map[string]string{"state": s.engine.State().String()})
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.ClearQueue(); err != nil {
		log.Printf("clear queue error: %v", err)
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.engine.Stats().Snapshot())
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		s.writeJSON(w, http.StatusOK, []history.Outcome{})
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	outcomes, err := s.archive.Recent(r.Context(), limit)
	if err != nil {
		log.Printf("history error: %v", err)
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if outcomes == nil {
		outcomes = []history.Outcome{}
	}
	s.writeJSON(w, http.StatusOK, outcomes)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, errorResponse{Error: msg})
}

func jobToResponse(job domain.Job) jobResponse {
	return jobResponse{
		URL:         job.URL,
		MediaKind:   string(job.MediaKind),
		Quality:     job.Quality,
		AudioFormat: job.AudioFormat,
		DestDir:     job.DestDir,
		RetryCount:  job.RetryCount,
		Status:      string(job.Status),
	}
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// ServeHTTP implements http.Handler for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}
