package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/studysync-app/studysync/internal/model"
	"github.com/studysync-app/studysync/internal/outbox"
	"github.com/studysync-app/studysync/internal/schedule"
	"github.com/studysync-app/studysync/internal/storage"
)

const EventSessionBooked = "schedule.session.booked.v1"

type ProjectStore interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Create(ctx context.Context, project model.Project) error
	List(ctx context.Context) ([]model.Project, error)
	Get(ctx context.Context, id string) (model.Project, error)
	AddParticipant(ctx context.Context, projectID, userID string) error
	Sessions(ctx context.Context, projectID string) ([]model.WorkSession, error)
	CreateSessionTx(ctx context.Context, tx pgx.Tx, session model.WorkSession) error
}

type OutboxStore interface {
	Insert(ctx context.Context, tx pgx.Tx, evt outbox.Event) error
}

type ProjectHandler struct {
	projects ProjectStore
	outbox   OutboxStore
	engine   *schedule.Engine
	logger   *slog.Logger
}

func NewProjectHandler(projects ProjectStore, outboxRepo OutboxStore, engine *schedule.Engine, logger *slog.Logger) *ProjectHandler {
	return &ProjectHandler{projects: projects, outbox: outboxRepo, engine: engine, logger: logger}
}

type createProjectRequest struct {
	Name           string `json:"name"`
	GroupID        string `json:"group_id"`
	Deadline       string `json:"deadline"`
	EstimatedHours int    `json:"estimated_hours"`
}

type projectItem struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	GroupID        string `json:"group_id"`
	Deadline       string `json:"deadline"`
	EstimatedHours int    `json:"estimated_hours"`
}

func (h *ProjectHandler) Projects(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.create(w, r)
	case http.MethodGet:
		h.list(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (h *ProjectHandler) create(w http.ResponseWriter, r *http.Request) {
	var req createProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || req.GroupID == "" {
		writeError(w, http.StatusBadRequest, "name and group_id are required")
		return
	}
	deadline, err := parseTime(req.Deadline)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid deadline")
		return
	}

	project := model.Project{
		ID:             uuid.NewString(),
		Name:           req.Name,
		GroupID:        req.GroupID,
		Deadline:       deadline,
		EstimatedHours: req.EstimatedHours,
	}
	if err := h.projects.Create(r.Context(), project); err != nil {
		if storage.IsForeignKeyViolation(err) {
			writeError(w, http.StatusNotFound, "group not found")
			return
		}
		h.logger.Error("project create failed", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to create project")
		return
	}
	writeJSON(w, http.StatusCreated, projectItem{
		ID:             project.ID,
		Name:           project.Name,
		GroupID:        project.GroupID,
		Deadline:       formatTime(project.Deadline),
		EstimatedHours: project.EstimatedHours,
	})
}

func (h *ProjectHandler) list(w http.ResponseWriter, r *http.Request) {
	projects, err := h.projects.List(r.Context())
	if err != nil {
		h.logger.Error("project list failed", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to list projects")
		return
	}
	items := make([]projectItem, 0, len(projects))
	for _, project := range projects {
		items = append(items, projectItem{
			ID:             project.ID,
			Name:           project.Name,
			GroupID:        project.GroupID,
			Deadline:       formatTime(project.Deadline),
			EstimatedHours: project.EstimatedHours,
		})
	}
	writeJSON(w, http.StatusOK, items)
}

type addParticipantRequest struct {
	ProjectID string `json:"project_id"`
	UserID    string `json:"user_id"`
}

func (h *ProjectHandler) AddParticipant(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req addParticipantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if req.ProjectID == "" || req.UserID == "" {
		writeError(w, http.StatusBadRequest, "project_id and user_id are required")
		return
	}
	if err := h.projects.AddParticipant(r.Context(), req.ProjectID, req.UserID); err != nil {
		if storage.IsForeignKeyViolation(err) {
			writeError(w, http.StatusNotFound, "project or user not found")
			return
		}
		h.logger.Error("add participant failed", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to add participant")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type slotItem struct {
	Start           string `json:"start"`
	End             string `json:"end"`
	DurationMinutes int    `json:"duration_minutes"`
}

// Suggest computes common free windows for the project's participant set,
// bounded by the project deadline.
func (h *ProjectHandler) Suggest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	projectID := strings.TrimSpace(r.URL.Query().Get("project_id"))
	if projectID == "" {
		writeError(w, http.StatusBadRequest, "project_id is required")
		return
	}

	project, err := h.projects.Get(r.Context(), projectID)
	if err != nil {
		if storage.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "project not found")
			return
		}
		h.logger.Error("project fetch failed", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to load project")
		return
	}

	members, err := h.engine.ResolveParticipants(r.Context(), project.ID, project.GroupID)
	if err != nil {
		h.logger.Error("participant resolution failed", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to resolve participants")
		return
	}

	req := schedule.SuggestRequest{
		Members: members,
		Cutoff:  &project.Deadline,
	}
	if v := strings.TrimSpace(r.URL.Query().Get("min_minutes")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "min_minutes must be a positive integer")
			return
		}
		req.MinDuration = time.Duration(n) * time.Minute
	}
	if v := strings.TrimSpace(r.URL.Query().Get("max_results")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "max_results must be a positive integer")
			return
		}
		req.MaxResults = n
	}

	slots, err := h.engine.SuggestSlots(r.Context(), req)
	if err != nil {
		if errors.Is(err, schedule.ErrNoParticipants) {
			writeError(w, http.StatusNotFound, "no participants or group members found")
			return
		}
		h.logger.Error("slot suggestion failed", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to compute suggestions")
		return
	}

	items := make([]slotItem, 0, len(slots))
	for _, slot := range slots {
		items = append(items, slotItem{
			Start:           formatTime(slot.Start),
			End:             formatTime(slot.End),
			DurationMinutes: int(slot.Duration / time.Minute),
		})
	}
	writeJSON(w, http.StatusOK, items)
}

type bookRequest struct {
	ProjectID string `json:"project_id"`
	Start     string `json:"start"`
	End       string `json:"end"`
}

type bookResponse struct {
	SessionID string `json:"session_id"`
}

// Book persists an accepted slot as a work session. No conflict detection is
// performed against other sessions or member busy time.
func (h *ProjectHandler) Book(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req bookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if req.ProjectID == "" {
		writeError(w, http.StatusBadRequest, "project_id is required")
		return
	}
	start, err := parseTime(req.Start)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid start")
		return
	}
	end, err := parseTime(req.End)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid end")
		return
	}
	if !start.Before(end) {
		writeError(w, http.StatusBadRequest, "start must be before end")
		return
	}

	ctx := r.Context()
	session := model.WorkSession{
		ID:        uuid.NewString(),
		ProjectID: req.ProjectID,
		Start:     start,
		End:       end,
	}

	tx, err := h.projects.Begin(ctx)
	if err != nil {
		h.logger.Error("begin failed", "err", err)
		writeError(w, http.StatusInternalServerError, "db error")
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := h.projects.CreateSessionTx(ctx, tx, session); err != nil {
		if storage.IsForeignKeyViolation(err) {
			writeError(w, http.StatusNotFound, "project not found")
			return
		}
		h.logger.Error("session create failed", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to book session")
		return
	}

	payload, err := json.Marshal(map[string]any{
		"session_id": session.ID,
		"project_id": session.ProjectID,
		"start":      formatTime(session.Start),
		"end":        formatTime(session.End),
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to build event payload")
		return
	}
	if err := h.outbox.Insert(ctx, tx, outbox.Event{
		AggregateType: "work_session",
		AggregateID:   session.ID,
		EventType:     EventSessionBooked,
		Payload:       payload,
	}); err != nil {
		h.logger.Error("outbox insert failed", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to record booking event")
		return
	}

	if err := tx.Commit(ctx); err != nil {
		h.logger.Error("commit failed", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to commit")
		return
	}

	writeJSON(w, http.StatusCreated, bookResponse{SessionID: session.ID})
}

type sessionItem struct {
	ID    string `json:"id"`
	Start string `json:"start"`
	End   string `json:"end"`
}

func (h *ProjectHandler) Sessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	projectID := strings.TrimSpace(r.URL.Query().Get("project_id"))
	if projectID == "" {
		writeError(w, http.StatusBadRequest, "project_id is required")
		return
	}
	sessions, err := h.projects.Sessions(r.Context(), projectID)
	if err != nil {
		h.logger.Error("session list failed", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}
	items := make([]sessionItem, 0, len(sessions))
	for _, session := range sessions {
		items = append(items, sessionItem{ID: session.ID, Start: formatTime(session.Start), End: formatTime(session.End)})
	}
	writeJSON(w, http.StatusOK, items)
}
