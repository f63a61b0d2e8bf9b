package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/nakatsu/shirabe/internal/analysis"
	"github.com/nakatsu/shirabe/internal/config"
	"github.com/nakatsu/shirabe/internal/models"
)

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]any{"files": s.session.Store().Records()})
}

type addFilesRequest struct {
	Paths []string `json:"paths"`
}

func (s *Server) handleAddFiles(w http.ResponseWriter, r *http.Request) {
	var req addFilesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Paths) == 0 {
		s.respondError(w, http.StatusBadRequest, "paths is required")
		return
	}
	s.logger.Debug("add files request", zap.Int("paths", len(req.Paths)))
	added := s.session.AddFiles(req.Paths)
	s.respondJSON(w, http.StatusCreated, map[string]int{"added": added})
}

func (s *Server) handleClearFiles(w http.ResponseWriter, r *http.Request) {
	s.session.Clear()
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (s *Server) handleRemoveFile(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid index")
		return
	}
	if !s.session.Store().Remove(index) {
		s.respondError(w, http.StatusNotFound, "no file at index")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

type checkRequest struct {
	Checked bool `json:"checked"`
}

func (s *Server) handleCheckFile(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid index")
		return
	}
	var req checkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !s.session.Store().SetChecked(index, req.Checked) {
		s.respondError(w, http.StatusNotFound, "no file at index")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSelectAll(w http.ResponseWriter, r *http.Request) {
	s.session.Store().SelectAll()
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSelectNone(w http.ResponseWriter, r *http.Request) {
	s.session.Store().SelectNone()
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleUIState(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.session.UIState())
}

type instructionRequest struct {
	Instruction string `json:"instruction"`
}

func (s *Server) handleSetInstruction(w http.ResponseWriter, r *http.Request) {
	var req instructionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.session.SetInstruction(req.Instruction)
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"result": s.session.ResultText()})
}

func (s *Server) handleTranscript(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]any{"transcript": s.session.Transcript()})
}

type analyzeRequest struct {
	Mode string `json:"mode"`
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	mode := req.Mode
	if mode == "" {
		mode = models.ModeIndividual
	}
	if mode != models.ModeIndividual && mode != models.ModeCompare {
		s.respondError(w, http.StatusBadRequest, "mode must be individual or compare")
		return
	}
	s.logger.Debug("analyze request", zap.String("mode", mode))
	response, err := s.session.Analyze(r.Context(), mode)
	if err != nil {
		s.respondRunError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"response": response,
		"files":    s.session.Store().Records(),
	})
}

func (s *Server) handleGuidelines(w http.ResponseWriter, r *http.Request) {
	doc, err := s.session.Guidelines(r.Context())
	if err != nil {
		s.respondRunError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"guidelines": doc})
}

func (s *Server) respondRunError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, analysis.ErrNoSelection), errors.Is(err, analysis.ErrNoAnalyzedSelection):
		s.respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, analysis.ErrRunInFlight):
		s.respondError(w, http.StatusConflict, err.Error())
	default:
		s.logger.Error("run failed", zap.Error(err))
		s.respondError(w, http.StatusBadGateway, err.Error())
	}
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.respondError(w, http.StatusNotImplemented, "history not enabled")
		return
	}
	ctx := r.Context()
	if folder := r.URL.Query().Get("folder"); folder != "" {
		entries, err := s.history.ByFolder(ctx, folder)
		if err != nil {
			s.respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		s.respondJSON(w, http.StatusOK, map[string]any{"entries": entries})
		return
	}
	entries, err := s.history.All(ctx)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleWatchDirectoriesList(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"directories": s.watch.Directories()})
}

type watchAddRequest struct {
	Path string `json:"path"`
	Scan *bool  `json:"scan,omitempty"`
}

func (s *Server) handleWatchDirectoriesAdd(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	var req watchAddRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Path == "" {
		s.respondError(w, http.StatusBadRequest, "path is required")
		return
	}
	abs, err := filepath.Abs(req.Path)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid path")
		return
	}
	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			s.respondError(w, http.StatusNotFound, "directory not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !info.IsDir() {
		s.respondError(w, http.StatusBadRequest, "path is not a directory")
		return
	}
	scanExisting := true
	if req.Scan != nil {
		scanExisting = *req.Scan
	}
	s.logger.Debug("watch add directory request", zap.String("path", abs), zap.Bool("scan_existing", scanExisting))
	if err := s.watch.AddDirectory(abs, scanExisting); err != nil {
		s.logger.Error("watch add directory failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.persistWatchDirectories()
	s.respondJSON(w, http.StatusCreated, map[string]string{"path": abs, "status": "added"})
}

func (s *Server) handleWatchDirectoriesRemove(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	path := r.URL.Query().Get("path")
	if path == "" {
		var body struct {
			Path string `json:"path"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err == nil && body.Path != "" {
			path = body.Path
		}
	}
	if path == "" {
		s.respondError(w, http.StatusBadRequest, "path is required (query or body)")
		return
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid path")
		return
	}
	s.logger.Debug("watch remove directory request", zap.String("path", abs))
	if err := s.watch.RemoveDirectory(abs); err != nil {
		s.logger.Error("watch remove directory failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.persistWatchDirectories()
	s.respondJSON(w, http.StatusOK, map[string]string{"path": abs, "status": "removed"})
}

func (s *Server) persistWatchDirectories() {
	if s.configPath == "" || s.cfg == nil {
		return
	}
	s.configMu.Lock()
	s.cfg.Watch.Directories = s.watch.Directories()
	err := config.Save(s.configPath, s.cfg)
	s.configMu.Unlock()
	if err != nil {
		s.logger.Warn("failed to persist watch config", zap.Error(err))
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
