package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/studysync-app/studysync/internal/model"
)

type UserFeedStore interface {
	ListAvailability(ctx context.Context, userID string, endBefore *time.Time) ([]model.AvailabilityInterval, error)
	ListBusy(ctx context.Context, userID string) ([]model.BusyInterval, error)
}

type UserProjectStore interface {
	ListForUser(ctx context.Context, userID string) ([]model.Project, error)
	SessionsForUser(ctx context.Context, userID string) ([]model.WorkSession, error)
}

type CalendarHandler struct {
	intervals UserFeedStore
	projects  UserProjectStore
	logger    *slog.Logger
}

func NewCalendarHandler(intervals UserFeedStore, projects UserProjectStore, logger *slog.Logger) *CalendarHandler {
	return &CalendarHandler{intervals: intervals, projects: projects, logger: logger}
}

// UserFeed returns everything a user's personal calendar renders: free
// windows, imported busy time, booked sessions and project deadlines.
func (h *CalendarHandler) UserFeed(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	ctx := r.Context()

	availability, err := h.intervals.ListAvailability(ctx, userID, nil)
	if err != nil {
		h.logger.Error("availability fetch failed", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to load availability")
		return
	}
	busy, err := h.intervals.ListBusy(ctx, userID)
	if err != nil {
		h.logger.Error("busy fetch failed", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to load busy time")
		return
	}
	projects, err := h.projects.ListForUser(ctx, userID)
	if err != nil {
		h.logger.Error("project fetch failed", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to load projects")
		return
	}
	sessions, err := h.projects.SessionsForUser(ctx, userID)
	if err != nil {
		h.logger.Error("session fetch failed", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to load sessions")
		return
	}

	events := []calendarEvent{}
	for _, avail := range availability {
		title := "Available"
		if avail.Source == model.SourceManual {
			title = "Available (manual)"
		}
		events = append(events, calendarEvent{
			Title: title,
			Start: formatTime(avail.Start),
			End:   formatTime(avail.End),
			Color: "green",
		})
	}
	for _, b := range busy {
		title := b.Description
		if title == "" {
			title = "Busy"
		}
		events = append(events, calendarEvent{
			Title: title,
			Start: formatTime(b.Start),
			End:   formatTime(b.End),
			Color: "red",
		})
	}
	for _, session := range sessions {
		events = append(events, calendarEvent{
			Title: "Session",
			Start: formatTime(session.Start),
			End:   formatTime(session.End),
			Color: "purple",
		})
	}
	for _, project := range projects {
		events = append(events, calendarEvent{
			Title: "Deadline: " + project.Name,
			Start: formatTime(project.Deadline),
			End:   formatTime(project.Deadline),
			Color: "orange",
		})
	}

	writeJSON(w, http.StatusOK, events)
}
