// Package api exposes migration projects over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/crossorg/migrator/internal/domain"
	"github.com/crossorg/migrator/internal/export"
	"github.com/crossorg/migrator/internal/migration"
	"github.com/crossorg/migrator/internal/repository"
)

// Handler routes migration project requests to the engine and the stores.
type Handler struct {
	projects repository.ProjectRepository
	sessions repository.SessionRepository
	engine   *migration.Engine
	reports  *export.Service
}

// NewHTTPHandler wires the migration endpoints.
func NewHTTPHandler(projects repository.ProjectRepository, sessions repository.SessionRepository, engine *migration.Engine, reports *export.Service) http.Handler {
	return &Handler{
		projects: projects,
		sessions: sessions,
		engine:   engine,
		reports:  reports,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/cancel"):
		h.handleCancel(w, r)
		return
	case r.Method == http.MethodPost:
		h.handleStart(w, r)
		return
	case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/report"):
		h.handleReport(w, r)
		return
	case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/migrations"):
		h.handleList(w, r)
		return
	case r.Method == http.MethodGet:
		h.handleStatus(w, r)
		return
	default:
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
}

type orgPayload struct {
	Name        string `json:"name"`
	InstanceURL string `json:"instanceUrl"`
	Namespace   string `json:"namespace"`
}

type optionsPayload struct {
	BatchSize             *int  `json:"batchSize"`
	BulkThreshold         *int  `json:"bulkThreshold"`
	PreserveRelationships *bool `json:"preserveRelationships"`
	AllowPartialSuccess   *bool `json:"allowPartialSuccess"`
}

type startMigrationPayload struct {
	Name        string          `json:"name"`
	SourceOrg   orgPayload      `json:"sourceOrg"`
	TargetOrg   orgPayload      `json:"targetOrg"`
	ObjectTypes []string        `json:"objectTypes"`
	Options     *optionsPayload `json:"options"`
}

type statusResponse struct {
	Project  domain.MigrationProject   `json:"project"`
	Sessions []domain.MigrationSession `json:"sessions"`
}

func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var payload startMigrationPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, fmt.Sprintf("invalid payload: %v", err), http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(payload.Name) == "" {
		http.Error(w, "name is required", http.StatusBadRequest)
		return
	}
	if len(payload.ObjectTypes) == 0 {
		http.Error(w, "objectTypes is required", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(payload.SourceOrg.InstanceURL) == "" || strings.TrimSpace(payload.TargetOrg.InstanceURL) == "" {
		http.Error(w, "sourceOrg and targetOrg instance URLs are required", http.StatusBadRequest)
		return
	}

	project := domain.NewMigrationProject(
		strings.TrimSpace(payload.Name),
		toOrgConnection(payload.SourceOrg),
		toOrgConnection(payload.TargetOrg),
		payload.ObjectTypes,
		toMigrationOptions(payload.Options),
	)
	if err := h.projects.Create(r.Context(), project); err != nil {
		http.Error(w, fmt.Sprintf("create project: %v", err), http.StatusInternalServerError)
		return
	}

	// The run outlives the request; cancellation goes through the engine.
	go func() {
		result := h.engine.ExecuteMigration(context.Background(), project)
		log.Printf("[API] project %s finished: success=%t total=%d failed=%d duration=%s",
			project.ID, result.Success, result.TotalRecords, result.FailedRecords, result.Duration)
	}()

	writeJSON(w, http.StatusAccepted, project)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	projects, err := h.projects.List(r.Context())
	if err != nil {
		http.Error(w, fmt.Sprintf("list projects: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, projects)
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	projectID, ok := h.projectID(w, r.URL.Path, "")
	if !ok {
		return
	}
	project, err := h.projects.GetByID(r.Context(), projectID)
	if err != nil {
		h.projectError(w, err)
		return
	}
	sessions, err := h.sessions.ListByProject(r.Context(), projectID)
	if err != nil {
		http.Error(w, fmt.Sprintf("list sessions: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Project: project, Sessions: sessions})
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	projectID, ok := h.projectID(w, r.URL.Path, "/cancel")
	if !ok {
		return
	}
	if _, err := h.projects.GetByID(r.Context(), projectID); err != nil {
		h.projectError(w, err)
		return
	}
	if !h.engine.Cancel(projectID) {
		http.Error(w, "no active migration for this project", http.StatusConflict)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "cancelling"})
}

func (h *Handler) handleReport(w http.ResponseWriter, r *http.Request) {
	projectID, ok := h.projectID(w, r.URL.Path, "/report")
	if !ok {
		return
	}
	project, err := h.projects.GetByID(r.Context(), projectID)
	if err != nil {
		h.projectError(w, err)
		return
	}
	filename := h.reports.ReportFileName(project)
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	if err := h.reports.WriteProjectReport(r.Context(), projectID, w); err != nil {
		log.Printf("[API] report for project %s: %v", projectID, err)
	}
}

// projectID pulls the project identifier from the path, after stripping the
// given trailing action segment.
func (h *Handler) projectID(w http.ResponseWriter, path, action string) (uuid.UUID, bool) {
	path = strings.TrimSuffix(strings.TrimSuffix(path, "/"), action)
	idx := strings.LastIndex(path, "/")
	if idx == -1 || idx == len(path)-1 {
		http.Error(w, "missing project identifier", http.StatusBadRequest)
		return uuid.Nil, false
	}
	id, err := uuid.Parse(path[idx+1:])
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid project identifier: %v", err), http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) projectError(w http.ResponseWriter, err error) {
	if errors.Is(err, domain.ErrProjectNotFound) {
		http.Error(w, "project not found", http.StatusNotFound)
		return
	}
	http.Error(w, err.Error(), http.StatusInternalServerError)
}

func toOrgConnection(payload orgPayload) domain.OrgConnection {
	return domain.OrgConnection{
		ID:          uuid.New(),
		Name:        strings.TrimSpace(payload.Name),
		InstanceURL: strings.TrimSpace(payload.InstanceURL),
		Namespace:   strings.TrimSpace(payload.Namespace),
	}
}

func toMigrationOptions(payload *optionsPayload) domain.MigrationOptions {
	opts := domain.MigrationOptions{}
	if payload == nil {
		return opts
	}
	if payload.BatchSize != nil {
		opts.BatchSize = *payload.BatchSize
	}
	if payload.BulkThreshold != nil {
		opts.BulkThreshold = *payload.BulkThreshold
	}
	if payload.PreserveRelationships != nil {
		opts.PreserveRelationships = *payload.PreserveRelationships
	}
	if payload.AllowPartialSuccess != nil {
		opts.AllowPartialSuccess = *payload.AllowPartialSuccess
	}
	return opts
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}
