package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/studysync-app/studysync/internal/model"
	"github.com/studysync-app/studysync/internal/schedule"
	"github.com/studysync-app/studysync/internal/storage"
)

type GroupStore interface {
	Create(ctx context.Context, group model.Group) error
	List(ctx context.Context) ([]model.Group, error)
	AddMember(ctx context.Context, groupID, userID string) error
	Members(ctx context.Context, groupID string) ([]string, error)
}

type GroupSessionStore interface {
	GroupSessions(ctx context.Context, groupID string) ([]model.WorkSession, error)
}

type GroupHandler struct {
	groups   GroupStore
	sessions GroupSessionStore
	engine   *schedule.Engine
	logger   *slog.Logger
}

func NewGroupHandler(groups GroupStore, sessions GroupSessionStore, engine *schedule.Engine, logger *slog.Logger) *GroupHandler {
	return &GroupHandler{groups: groups, sessions: sessions, engine: engine, logger: logger}
}

type createGroupRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type groupItem struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (h *GroupHandler) Groups(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.create(w, r)
	case http.MethodGet:
		h.list(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (h *GroupHandler) create(w http.ResponseWriter, r *http.Request) {
	var req createGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	group := model.Group{
		ID:          uuid.NewString(),
		Name:        req.Name,
		Description: strings.TrimSpace(req.Description),
	}
	if err := h.groups.Create(r.Context(), group); err != nil {
		h.logger.Error("group create failed", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to create group")
		return
	}
	writeJSON(w, http.StatusCreated, groupItem{ID: group.ID, Name: group.Name, Description: group.Description})
}

func (h *GroupHandler) list(w http.ResponseWriter, r *http.Request) {
	groups, err := h.groups.List(r.Context())
	if err != nil {
		h.logger.Error("group list failed", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to list groups")
		return
	}
	items := make([]groupItem, 0, len(groups))
	for _, group := range groups {
		items = append(items, groupItem{ID: group.ID, Name: group.Name, Description: group.Description})
	}
	writeJSON(w, http.StatusOK, items)
}

type addMemberRequest struct {
	GroupID string `json:"group_id"`
	UserID  string `json:"user_id"`
}

func (h *GroupHandler) AddMember(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req addMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if req.GroupID == "" || req.UserID == "" {
		writeError(w, http.StatusBadRequest, "group_id and user_id are required")
		return
	}
	if err := h.groups.AddMember(r.Context(), req.GroupID, req.UserID); err != nil {
		if storage.IsForeignKeyViolation(err) {
			writeError(w, http.StatusNotFound, "group or user not found")
			return
		}
		h.logger.Error("add member failed", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to add member")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type calendarEvent struct {
	Title string `json:"title"`
	Start string `json:"start"`
	End   string `json:"end"`
	Color string `json:"color"`
}

// Calendar returns the group feed: windows when every member is free plus
// the booked sessions of the group's projects.
func (h *GroupHandler) Calendar(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	groupID := strings.TrimSpace(r.URL.Query().Get("group_id"))
	if groupID == "" {
		writeError(w, http.StatusBadRequest, "group_id is required")
		return
	}

	members, err := h.groups.Members(r.Context(), groupID)
	if err != nil {
		h.logger.Error("group members fetch failed", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to load group members")
		return
	}

	events := []calendarEvent{}
	common, err := h.engine.CommonWindows(r.Context(), members)
	if err != nil && !errors.Is(err, schedule.ErrNoParticipants) {
		h.logger.Error("common windows failed", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to compute common windows")
		return
	}
	for _, window := range common {
		events = append(events, calendarEvent{
			Title: "ALL free",
			Start: formatTime(window.Start),
			End:   formatTime(window.End),
			Color: "blue",
		})
	}

	sessions, err := h.sessions.GroupSessions(r.Context(), groupID)
	if err != nil {
		h.logger.Error("group sessions fetch failed", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to load sessions")
		return
	}
	for _, session := range sessions {
		events = append(events, calendarEvent{
			Title: "Session",
			Start: formatTime(session.Start),
			End:   formatTime(session.End),
			Color: "purple",
		})
	}

	writeJSON(w, http.StatusOK, events)
}
