// VodHive - Video Catalog Aggregation and Discovery Platform
// Copyright 2026 VodHive contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vodhive/vodhive

package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vodhive/vodhive/internal/database"
	"github.com/vodhive/vodhive/internal/models"
	"github.com/vodhive/vodhive/internal/tasks"
)

// sourceHealthView joins a source with its rolling health record.
type sourceHealthView struct {
	Source *models.Source       `json:"source"`
	Health *models.SourceHealth `json:"health"`
}

func (s *Server) handleSourceHealth(w http.ResponseWriter, r *http.Request) {
	sources, err := s.db.ListSources(r.Context(), false)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "db_error", "failed to list sources")
		return
	}
	records, err := s.db.ListSourceHealth(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "db_error", "failed to list health records")
		return
	}

	byID := make(map[int64]*models.SourceHealth, len(records))
	for _, h := range records {
		byID[h.SourceID] = h
	}
	out := make([]sourceHealthView, 0, len(sources))
	for _, src := range sources {
		h := byID[src.ID]
		if h == nil {
			h = &models.SourceHealth{SourceID: src.ID, Status: models.StatusUnknown}
		}
		out = append(out, sourceHealthView{Source: src, Health: h})
	}
	writeJSON(w, http.StatusOK, out)
}

// createTaskRequest is the admin payload for queueing a collection task.
type createTaskRequest struct {
	Kind     models.TaskKind   `json:"kind"`
	Priority int               `json:"priority"`
	Config   models.TaskConfig `json:"config"`
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}

	task, err := s.manager.Create(r.Context(), req.Kind, req.Priority, req.Config)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_task", err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := database.TaskFilter{
		Status: models.TaskStatus(q.Get("status")),
		Kind:   models.TaskKind(q.Get("kind")),
		Limit:  queryInt(q.Get("limit"), 50),
		Offset: queryInt(q.Get("offset"), 0),
	}
	list, err := s.manager.List(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "db_error", "failed to list tasks")
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	task, err := s.manager.Get(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, database.ErrTaskNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "task not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "db_error", "failed to load task")
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) handlePauseTask(w http.ResponseWriter, r *http.Request) {
	s.transitionTask(w, r, s.manager.Pause)
}

func (s *Server) handleResumeTask(w http.ResponseWriter, r *http.Request) {
	s.transitionTask(w, r, s.manager.Resume)
}

func (s *Server) handleCancelTask(w http.ResponseWriter, r *http.Request) {
	s.transitionTask(w, r, s.manager.Cancel)
}

func (s *Server) transitionTask(w http.ResponseWriter, r *http.Request,
	fn func(ctx context.Context, id string) (*models.Task, error)) {
	task, err := fn(r.Context(), chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, database.ErrTaskNotFound):
		writeError(w, http.StatusNotFound, "not_found", "task not found")
	case errors.Is(err, tasks.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid_transition", err.Error())
	case err != nil:
		writeError(w, http.StatusInternalServerError, "db_error", "task update failed")
	default:
		writeJSON(w, http.StatusOK, task)
	}
}

func (s *Server) handleTaskLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	logs, err := s.db.ListCollectLogs(r.Context(), chi.URLParam(r, "id"),
		int64(queryInt(q.Get("after_id"), 0)), queryInt(q.Get("limit"), 100))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "db_error", "failed to load logs")
		return
	}
	writeJSON(w, http.StatusOK, logs)
}
