package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/Ulysse-Dev-Serre/App-Maker/internal/events"
	"github.com/Ulysse-Dev-Serre/App-Maker/internal/metrics"
	"github.com/Ulysse-Dev-Serre/App-Maker/pkg/logparse"
	"github.com/Ulysse-Dev-Serre/App-Maker/pkg/models"
	"github.com/Ulysse-Dev-Serre/App-Maker/pkg/protocol"
	"github.com/Ulysse-Dev-Serre/App-Maker/pkg/tree"
)

// ─── Health ─────────────────────────────────────────────────────────────────

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": s.version})
}

// ─── State ──────────────────────────────────────────────────────────────────

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, s.session.Snapshot())
}

func (s *Server) handleTree(w http.ResponseWriter, r *http.Request) {
	st := s.session.Snapshot()
	s.sendJSON(w, http.StatusOK, protocol.TreeResponse{
		ProjectID: st.ActiveProjectID,
		Selected:  st.SelectedPath,
		Tree:      tree.Build(st.Files),
	})
}

func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	path := chi.URLParam(r, "*")
	st := s.session.Snapshot()
	content, ok := st.Files[path]
	if !ok {
		s.sendError(w, http.StatusNotFound, "file not found: "+path)
		return
	}
	s.sendJSON(w, http.StatusOK, protocol.FileResponse{Path: path, Content: content})
}

func (s *Server) handleSelectFile(w http.ResponseWriter, r *http.Request) {
	var req protocol.SelectFileRequest
	if err := decodeBody(r, &req); err != nil {
		s.sendError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.session.SelectFile(req.Path); err != nil {
		s.sendErr(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusOK, s.session.Snapshot())
}

// ─── Logs and problem ───────────────────────────────────────────────────────

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	entries := s.session.Logs()

	if level := strings.ToUpper(r.URL.Query().Get("level")); level != "" {
		filtered := entries[:0:0]
		for _, e := range entries {
			if string(e.Level) == level {
				filtered = append(filtered, e)
			}
		}
		entries = filtered
	}
	if v := r.URL.Query().Get("tail"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.sendError(w, http.StatusBadRequest, "tail must be a non-negative integer")
			return
		}
		entries = logparse.Tail(entries, n)
	}
	if entries == nil {
		entries = []models.LogEntry{}
	}

	s.sendJSON(w, http.StatusOK, protocol.LogView{
		Entries: entries,
		Counts:  logparse.Summarize(entries),
	})
}

func (s *Server) handleRefreshLogs(w http.ResponseWriter, r *http.Request) {
	if err := s.session.RefreshLogs(r.Context()); err != nil {
		s.sendErr(w, r, err)
		return
	}
	s.handleLogs(w, r)
}

func (s *Server) handleProblem(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, protocol.ProblemResponse{Problem: s.session.Snapshot().Problem})
}

func (s *Server) handlePolling(w http.ResponseWriter, r *http.Request) {
	var req protocol.PollingRequest
	if err := decodeBody(r, &req); err != nil {
		s.sendError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.session.SetPolling(req.Enabled); err != nil {
		s.sendErr(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusOK, s.session.Snapshot())
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	opts, err := s.session.LLMOptions(r.Context())
	if err != nil {
		s.sendErr(w, r, err)
		return
	}
	provider, model := s.session.DefaultModel(opts)
	s.sendJSON(w, http.StatusOK, protocol.ModelsResponse{
		Options:         opts,
		DefaultProvider: provider,
		DefaultModel:    model,
	})
}

// ─── Projects ───────────────────────────────────────────────────────────────

func (s *Server) handleProjects(w http.ResponseWriter, r *http.Request) {
	if refresh, _ := strconv.ParseBool(r.URL.Query().Get("refresh")); refresh {
		if _, err := s.session.RefreshProjects(r.Context()); err != nil {
			s.sendErr(w, r, err)
			return
		}
	}
	projects := s.session.Snapshot().Projects
	if projects == nil {
		projects = []models.ProjectSummary{}
	}
	s.sendJSON(w, http.StatusOK, projects)
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	var req protocol.SelectRequest
	if err := decodeBody(r, &req); err != nil {
		s.sendError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.ProjectID) == "" {
		s.sendError(w, http.StatusBadRequest, "project_id is required")
		return
	}
	if err := s.session.Select(r.Context(), req.ProjectID); err != nil {
		s.sendErr(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusOK, s.session.Snapshot())
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req protocol.GenerateRequest
	if err := decodeBody(r, &req); err != nil {
		s.sendError(w, http.StatusBadRequest, err.Error())
		return
	}
	id, err := s.session.Generate(r.Context(), req.Prompt, req.LLMProvider, req.ModelName)
	if err != nil {
		s.sendErr(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusCreated, protocol.GenerateResult{ProjectID: id})
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var req protocol.GenerateRequest
	if err := decodeBody(r, &req); err != nil {
		s.sendError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.session.Update(r.Context(), req.Prompt, req.LLMProvider, req.ModelName); err != nil {
		s.sendErr(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusOK, s.session.Snapshot())
}

func (s *Server) handleFix(w http.ResponseWriter, r *http.Request) {
	var req protocol.GenerateRequest
	if err := decodeOptionalBody(r, &req); err != nil {
		s.sendError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.session.Fix(r.Context(), req.LLMProvider, req.ModelName); err != nil {
		s.sendErr(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusOK, s.session.Snapshot())
}

func (s *Server) handleRename(w http.ResponseWriter, r *http.Request) {
	var req protocol.RenameRequest
	if err := decodeBody(r, &req); err != nil {
		s.sendError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.NewName) == "" {
		s.sendError(w, http.StatusBadRequest, "new_name is required")
		return
	}
	if err := s.session.Rename(r.Context(), chi.URLParam(r, "id"), req.NewName); err != nil {
		s.sendErr(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusOK, protocol.MessageResponse{Message: "renamed"})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.session.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.sendErr(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusOK, protocol.MessageResponse{Message: "deleted"})
}

// ─── Runner ─────────────────────────────────────────────────────────────────

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if err := s.session.Run(r.Context()); err != nil {
		s.sendErr(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusAccepted, s.session.Snapshot())
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if err := s.session.Stop(r.Context()); err != nil {
		s.sendErr(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusOK, s.session.Snapshot())
}

// ─── SSE Events ─────────────────────────────────────────────────────────────

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.sendError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := s.session.Subscribe()
	defer s.session.Unsubscribe(ch)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			data, err := events.MarshalEvent(event)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, data)
			flusher.Flush()
			metrics.RecordSSEEvent(event.Type)
		}
	}
}
