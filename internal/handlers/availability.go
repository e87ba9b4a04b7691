package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/studysync-app/studysync/internal/ics"
	"github.com/studysync-app/studysync/internal/model"
	"github.com/studysync-app/studysync/internal/schedule"
	"github.com/studysync-app/studysync/internal/storage"
)

// 5 MiB is generous for an exported semester calendar.
const maxUploadBytes = 5 << 20

type AvailabilityStore interface {
	InsertAvailability(ctx context.Context, avail model.AvailabilityInterval) (bool, error)
	ListAvailability(ctx context.Context, userID string, endBefore *time.Time) ([]model.AvailabilityInterval, error)
	UpdateAvailability(ctx context.Context, id string, start, end time.Time) error
	DeleteAvailability(ctx context.Context, id string) error
	InsertBusy(ctx context.Context, busy model.BusyInterval) (bool, error)
}

type AvailabilityHandler struct {
	store  AvailabilityStore
	engine *schedule.Engine
	logger *slog.Logger
}

func NewAvailabilityHandler(store AvailabilityStore, engine *schedule.Engine, logger *slog.Logger) *AvailabilityHandler {
	return &AvailabilityHandler{store: store, engine: engine, logger: logger}
}

type availabilityItem struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`
	Start  string `json:"start"`
	End    string `json:"end"`
	Source string `json:"source"`
}

func (h *AvailabilityHandler) Availability(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.create(w, r)
	case http.MethodGet:
		h.list(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

type createAvailabilityRequest struct {
	UserID string `json:"user_id"`
	Start  string `json:"start"`
	End    string `json:"end"`
}

func (h *AvailabilityHandler) create(w http.ResponseWriter, r *http.Request) {
	var req createAvailabilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
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

	avail := model.AvailabilityInterval{
		ID:     uuid.NewString(),
		UserID: req.UserID,
		Start:  start,
		End:    end,
		Source: model.SourceManual,
	}
	inserted, err := h.store.InsertAvailability(r.Context(), avail)
	if err != nil {
		if storage.IsForeignKeyViolation(err) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		h.logger.Error("availability create failed", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to create availability")
		return
	}
	if !inserted {
		writeError(w, http.StatusConflict, "identical interval already exists")
		return
	}
	writeJSON(w, http.StatusCreated, availabilityItem{
		ID:     avail.ID,
		UserID: avail.UserID,
		Start:  formatTime(avail.Start),
		End:    formatTime(avail.End),
		Source: avail.Source,
	})
}

func (h *AvailabilityHandler) list(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	var endBefore *time.Time
	if raw := strings.TrimSpace(r.URL.Query().Get("end_before")); raw != "" {
		t, err := parseTime(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid end_before")
			return
		}
		endBefore = &t
	}

	intervals, err := h.store.ListAvailability(r.Context(), userID, endBefore)
	if err != nil {
		h.logger.Error("availability list failed", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to list availability")
		return
	}
	items := make([]availabilityItem, 0, len(intervals))
	for _, avail := range intervals {
		items = append(items, availabilityItem{
			ID:     avail.ID,
			UserID: avail.UserID,
			Start:  formatTime(avail.Start),
			End:    formatTime(avail.End),
			Source: avail.Source,
		})
	}
	writeJSON(w, http.StatusOK, items)
}

type updateAvailabilityRequest struct {
	ID    string `json:"id"`
	Start string `json:"start"`
	End   string `json:"end"`
}

func (h *AvailabilityHandler) Update(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req updateAvailabilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if req.ID == "" {
		writeError(w, http.StatusBadRequest, "id is required")
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
	if err := h.store.UpdateAvailability(r.Context(), req.ID, start, end); err != nil {
		if storage.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "availability not found")
			return
		}
		h.logger.Error("availability update failed", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to update availability")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AvailabilityHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ID == "" {
		writeError(w, http.StatusBadRequest, "id is required")
		return
	}
	if err := h.store.DeleteAvailability(r.Context(), req.ID); err != nil {
		h.logger.Error("availability delete failed", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to delete availability")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type deriveResponse struct {
	RowsWritten int `json:"rows_written"`
}

// Derive recomputes a user's automatic free windows from their stored busy
// intervals.
func (h *AvailabilityHandler) Derive(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req struct {
		UserID string `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	written, err := h.engine.DeriveAvailability(r.Context(), req.UserID)
	if err != nil {
		h.logger.Error("availability derivation failed", "user_id", req.UserID, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to derive availability")
		return
	}
	writeJSON(w, http.StatusOK, deriveResponse{RowsWritten: written})
}

type importResponse struct {
	EventsImported int `json:"events_imported"`
	EventsSkipped  int `json:"events_skipped"`
	RowsWritten    int `json:"rows_written"`
}

// Import ingests an uploaded .ics file as busy time for a user and re-derives
// their availability. Duplicate events from a re-upload are skipped.
func (h *AvailabilityHandler) Import(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}
	userID := strings.TrimSpace(r.FormValue("user_id"))
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	loc := time.Local
	if tz := strings.TrimSpace(r.FormValue("timezone")); tz != "" {
		parsed, err := time.LoadLocation(tz)
		if err != nil {
			writeError(w, http.StatusBadRequest, "unknown timezone")
			return
		}
		loc = parsed
	}

	events, err := ics.Decode(file, loc)
	if err != nil {
		writeError(w, http.StatusBadRequest, "could not parse calendar file")
		return
	}

	calendarID := strings.TrimSpace(r.FormValue("calendar_id"))
	if calendarID == "" {
		calendarID = header.Filename
	}

	imported, skipped := 0, 0
	for _, ev := range events {
		inserted, err := h.store.InsertBusy(r.Context(), model.BusyInterval{
			ID:          uuid.NewString(),
			UserID:      userID,
			Start:       ev.Start,
			End:         ev.End,
			Description: ev.Description,
			CalendarID:  calendarID,
		})
		if err != nil {
			if storage.IsForeignKeyViolation(err) {
				writeError(w, http.StatusNotFound, "user not found")
				return
			}
			h.logger.Error("busy insert failed", "user_id", userID, "err", err)
			writeError(w, http.StatusInternalServerError, "failed to store events")
			return
		}
		if inserted {
			imported++
		} else {
			skipped++
		}
	}

	written, err := h.engine.DeriveAvailability(r.Context(), userID)
	if err != nil {
		h.logger.Error("post-import derivation failed", "user_id", userID, "err", err)
		writeError(w, http.StatusInternalServerError, "imported events but failed to derive availability")
		return
	}

	h.logger.Info("calendar imported",
		"user_id", userID, "calendar_id", calendarID,
		"imported", imported, "skipped", skipped, "rows", written)
	writeJSON(w, http.StatusOK, importResponse{
		EventsImported: imported,
		EventsSkipped:  skipped,
		RowsWritten:    written,
	})
}
