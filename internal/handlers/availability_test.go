package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/studysync-app/studysync/internal/interval"
	"github.com/studysync-app/studysync/internal/model"
	"github.com/studysync-app/studysync/internal/schedule"
)

// fakeIntervalStore backs both the handler and the schedule engine so an
// import followed by a derivation can be exercised end to end.
type fakeIntervalStore struct {
	availability []model.AvailabilityInterval
	busy         []model.BusyInterval
	duplicate    bool
}

func (s *fakeIntervalStore) InsertAvailability(_ context.Context, avail model.AvailabilityInterval) (bool, error) {
	if s.duplicate {
		return false, nil
	}
	s.availability = append(s.availability, avail)
	return true, nil
}

func (s *fakeIntervalStore) ListAvailability(_ context.Context, userID string, endBefore *time.Time) ([]model.AvailabilityInterval, error) {
	var out []model.AvailabilityInterval
	for _, a := range s.availability {
		if a.UserID != userID {
			continue
		}
		if endBefore != nil && a.End.After(*endBefore) {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func (s *fakeIntervalStore) UpdateAvailability(_ context.Context, id string, start, end time.Time) error {
	for i := range s.availability {
		if s.availability[i].ID == id {
			s.availability[i].Start = start
			s.availability[i].End = end
			return nil
		}
	}
	return pgx.ErrNoRows
}

func (s *fakeIntervalStore) DeleteAvailability(_ context.Context, id string) error {
	for i := range s.availability {
		if s.availability[i].ID == id {
			s.availability = append(s.availability[:i], s.availability[i+1:]...)
			return nil
		}
	}
	return nil
}

func (s *fakeIntervalStore) InsertBusy(_ context.Context, busy model.BusyInterval) (bool, error) {
	for _, b := range s.busy {
		if b.UserID == busy.UserID && b.Start.Equal(busy.Start) && b.End.Equal(busy.End) && b.CalendarID == busy.CalendarID {
			return false, nil
		}
	}
	s.busy = append(s.busy, busy)
	return true, nil
}

func (s *fakeIntervalStore) ListBusy(_ context.Context, userID string) ([]model.BusyInterval, error) {
	var out []model.BusyInterval
	for _, b := range s.busy {
		if b.UserID == userID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *fakeIntervalStore) ReplaceAutoAvailability(_ context.Context, userID string, dayStart, dayEnd time.Time, free []interval.Interval) (int, error) {
	kept := s.availability[:0]
	for _, a := range s.availability {
		stale := a.UserID == userID && a.Source == model.SourceAuto &&
			!a.Start.Before(dayStart) && !a.End.After(dayEnd)
		if !stale {
			kept = append(kept, a)
		}
	}
	s.availability = kept
	for _, window := range free {
		s.availability = append(s.availability, model.AvailabilityInterval{
			UserID: userID,
			Start:  window.Start,
			End:    window.End,
			Source: model.SourceAuto,
		})
	}
	return len(free), nil
}

type fakeDirectory struct {
	members      map[string][]string
	participants map[string][]string
}

func (d *fakeDirectory) GroupMembers(_ context.Context, groupID string) ([]string, error) {
	return d.members[groupID], nil
}

func (d *fakeDirectory) ProjectParticipants(_ context.Context, projectID string) ([]string, error) {
	return d.participants[projectID], nil
}

func newTestEngine(store *fakeIntervalStore, dir *fakeDirectory) *schedule.Engine {
	if dir == nil {
		dir = &fakeDirectory{}
	}
	return schedule.NewEngine(store, dir, discardLogger())
}

func TestAvailabilityCreate(t *testing.T) {
	store := &fakeIntervalStore{}
	h := NewAvailabilityHandler(store, newTestEngine(store, nil), discardLogger())

	body := `{"user_id":"u1","start":"2026-03-02T09:00:00","end":"2026-03-02T11:00:00"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/availability", strings.NewReader(body))
	rw := httptest.NewRecorder()
	h.Availability(rw, req)

	if rw.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rw.Code, rw.Body.String())
	}
	if len(store.availability) != 1 {
		t.Fatalf("expected 1 stored interval, got %d", len(store.availability))
	}
	if store.availability[0].Source != model.SourceManual {
		t.Fatalf("expected manual source, got %q", store.availability[0].Source)
	}
}

func TestAvailabilityCreateRejectsInvalidInterval(t *testing.T) {
	store := &fakeIntervalStore{}
	h := NewAvailabilityHandler(store, newTestEngine(store, nil), discardLogger())

	cases := []string{
		`{"user_id":"u1","start":"2026-03-02T11:00:00","end":"2026-03-02T09:00:00"}`,
		`{"user_id":"u1","start":"2026-03-02T09:00:00","end":"2026-03-02T09:00:00"}`,
		`{"user_id":"","start":"2026-03-02T09:00:00","end":"2026-03-02T11:00:00"}`,
		`{"user_id":"u1","start":"garbage","end":"2026-03-02T11:00:00"}`,
	}
	for _, body := range cases {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/availability", strings.NewReader(body))
		rw := httptest.NewRecorder()
		h.Availability(rw, req)
		if rw.Code != http.StatusBadRequest {
			t.Fatalf("body %q: expected 400, got %d", body, rw.Code)
		}
	}
	if len(store.availability) != 0 {
		t.Fatal("invalid intervals must not be stored")
	}
}

func TestAvailabilityCreateDuplicate(t *testing.T) {
	store := &fakeIntervalStore{duplicate: true}
	h := NewAvailabilityHandler(store, newTestEngine(store, nil), discardLogger())

	body := `{"user_id":"u1","start":"2026-03-02T09:00:00","end":"2026-03-02T11:00:00"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/availability", strings.NewReader(body))
	rw := httptest.NewRecorder()
	h.Availability(rw, req)
	if rw.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rw.Code)
	}
}

func TestAvailabilityDerive(t *testing.T) {
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	store := &fakeIntervalStore{busy: []model.BusyInterval{
		{UserID: "u1", Start: day.Add(9 * time.Hour), End: day.Add(10 * time.Hour)},
	}}
	h := NewAvailabilityHandler(store, newTestEngine(store, nil), discardLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/availability/derive", strings.NewReader(`{"user_id":"u1"}`))
	rw := httptest.NewRecorder()
	h.Derive(rw, req)

	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rw.Code, rw.Body.String())
	}
	var resp struct {
		RowsWritten int `json:"rows_written"`
	}
	if err := json.Unmarshal(rw.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid response: %v", err)
	}
	// 08:00-09:00 and 10:00-20:00.
	if resp.RowsWritten != 2 {
		t.Fatalf("expected 2 rows written, got %d", resp.RowsWritten)
	}
}

const importFixture = "BEGIN:VCALENDAR\r\n" +
	"VERSION:2.0\r\n" +
	"PRODID:-//test//test//EN\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:ev-1\r\n" +
	"DTSTAMP:20260301T000000Z\r\n" +
	"DTSTART:20260302T090000\r\n" +
	"DTEND:20260302T103000\r\n" +
	"SUMMARY:Lecture\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:ev-2\r\n" +
	"DTSTAMP:20260301T000000Z\r\n" +
	"DTSTART:20260302T150000\r\n" +
	"DTEND:20260302T160000\r\n" +
	"SUMMARY:Lab\r\n" +
	"END:VEVENT\r\n" +
	"END:VCALENDAR\r\n"

func multipartImportRequest(t *testing.T, userID, fixture string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("user_id", userID); err != nil {
		t.Fatalf("write field: %v", err)
	}
	if err := mw.WriteField("timezone", "UTC"); err != nil {
		t.Fatalf("write field: %v", err)
	}
	fw, err := mw.CreateFormFile("file", "schedule.ics")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := fw.Write([]byte(fixture)); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/calendar/import", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestAvailabilityImport(t *testing.T) {
	store := &fakeIntervalStore{}
	h := NewAvailabilityHandler(store, newTestEngine(store, nil), discardLogger())

	rw := httptest.NewRecorder()
	h.Import(rw, multipartImportRequest(t, "u1", importFixture))
	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rw.Code, rw.Body.String())
	}

	var resp struct {
		EventsImported int `json:"events_imported"`
		EventsSkipped  int `json:"events_skipped"`
		RowsWritten    int `json:"rows_written"`
	}
	if err := json.Unmarshal(rw.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid response: %v", err)
	}
	if resp.EventsImported != 2 || resp.EventsSkipped != 0 {
		t.Fatalf("expected 2 imported / 0 skipped, got %+v", resp)
	}
	// Free windows: 08:00-09:00, 10:30-15:00, 16:00-20:00.
	if resp.RowsWritten != 3 {
		t.Fatalf("expected 3 availability rows, got %d", resp.RowsWritten)
	}

	// Re-importing the same file skips every event but re-derives the same
	// windows.
	rw = httptest.NewRecorder()
	h.Import(rw, multipartImportRequest(t, "u1", importFixture))
	if rw.Code != http.StatusOK {
		t.Fatalf("re-import: expected 200, got %d", rw.Code)
	}
	if err := json.Unmarshal(rw.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid response: %v", err)
	}
	if resp.EventsImported != 0 || resp.EventsSkipped != 2 {
		t.Fatalf("re-import: expected 0 imported / 2 skipped, got %+v", resp)
	}
	if len(store.busy) != 2 {
		t.Fatalf("expected 2 busy rows after re-import, got %d", len(store.busy))
	}
}

func TestAvailabilityImportRejectsGarbage(t *testing.T) {
	store := &fakeIntervalStore{}
	h := NewAvailabilityHandler(store, newTestEngine(store, nil), discardLogger())

	rw := httptest.NewRecorder()
	h.Import(rw, multipartImportRequest(t, "u1", "not a calendar"))
	if rw.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rw.Code)
	}
}
