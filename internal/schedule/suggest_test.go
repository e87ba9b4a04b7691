package schedule

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/studysync-app/studysync/internal/model"
)

func availAt(userID string, day time.Time, startHour, endHour int) model.AvailabilityInterval {
	return model.AvailabilityInterval{
		UserID: userID,
		Start:  day.Add(time.Duration(startHour) * time.Hour),
		End:    day.Add(time.Duration(endHour) * time.Hour),
		Source: model.SourceAuto,
	}
}

func TestSuggestSlots_TwoMembers(t *testing.T) {
	day := deriveDay
	store := &fakeStore{availability: map[string][]model.AvailabilityInterval{
		"u1": {availAt("u1", day, 9, 12), availAt("u1", day, 14, 16)},
		"u2": {availAt("u2", day, 11, 15)},
	}}
	engine := NewEngine(store, &fakeDirectory{}, nil)

	slots, err := engine.SuggestSlots(context.Background(), SuggestRequest{Members: []string{"u1", "u2"}})
	if err != nil {
		t.Fatalf("SuggestSlots failed: %v", err)
	}
	if len(slots) != 2 {
		t.Fatalf("expected 2 slots, got %d: %v", len(slots), slots)
	}
	if !slots[0].Start.Equal(day.Add(11*time.Hour)) || !slots[0].End.Equal(day.Add(12*time.Hour)) {
		t.Fatalf("first slot: got [%s, %s)", slots[0].Start, slots[0].End)
	}
	if !slots[1].Start.Equal(day.Add(14*time.Hour)) || !slots[1].End.Equal(day.Add(15*time.Hour)) {
		t.Fatalf("second slot: got [%s, %s)", slots[1].Start, slots[1].End)
	}
	if slots[0].Duration != time.Hour {
		t.Fatalf("expected 1h duration, got %s", slots[0].Duration)
	}
}

func TestSuggestSlots_MinDurationFiltersShortWindows(t *testing.T) {
	day := deriveDay
	store := &fakeStore{availability: map[string][]model.AvailabilityInterval{
		"u1": {availAt("u1", day, 9, 12), availAt("u1", day, 14, 16)},
		"u2": {availAt("u2", day, 11, 15)},
	}}
	engine := NewEngine(store, &fakeDirectory{}, nil)

	slots, err := engine.SuggestSlots(context.Background(), SuggestRequest{
		Members:     []string{"u1", "u2"},
		MinDuration: 2 * time.Hour,
	})
	if err != nil {
		t.Fatalf("SuggestSlots failed: %v", err)
	}
	if len(slots) != 0 {
		t.Fatalf("expected no slots of 2h or longer, got %v", slots)
	}
}

func TestSuggestSlots_NoMembers(t *testing.T) {
	engine := NewEngine(&fakeStore{}, &fakeDirectory{}, nil)
	if _, err := engine.SuggestSlots(context.Background(), SuggestRequest{}); !errors.Is(err, ErrNoParticipants) {
		t.Fatalf("expected ErrNoParticipants, got %v", err)
	}
}

func TestSuggestSlots_MemberWithoutAvailability(t *testing.T) {
	day := deriveDay
	store := &fakeStore{availability: map[string][]model.AvailabilityInterval{
		"u1": {availAt("u1", day, 9, 17)},
		"u2": {availAt("u2", day, 9, 17)},
		// u3 has no rows at all.
	}}
	engine := NewEngine(store, &fakeDirectory{}, nil)

	for _, members := range [][]string{
		{"u3", "u1", "u2"},
		{"u1", "u3", "u2"},
		{"u1", "u2", "u3"},
	} {
		slots, err := engine.SuggestSlots(context.Background(), SuggestRequest{Members: members})
		if err != nil {
			t.Fatalf("SuggestSlots failed: %v", err)
		}
		if len(slots) != 0 {
			t.Fatalf("members %v: a member without availability must empty the result, got %v", members, slots)
		}
	}
}

func TestSuggestSlots_CapsResults(t *testing.T) {
	store := &fakeStore{availability: map[string][]model.AvailabilityInterval{}}
	var rows []model.AvailabilityInterval
	for i := 0; i < 7; i++ {
		day := deriveDay.AddDate(0, 0, i)
		rows = append(rows, availAt("u1", day, 9, 11))
	}
	store.availability["u1"] = rows
	engine := NewEngine(store, &fakeDirectory{}, nil)

	slots, err := engine.SuggestSlots(context.Background(), SuggestRequest{Members: []string{"u1"}})
	if err != nil {
		t.Fatalf("SuggestSlots failed: %v", err)
	}
	if len(slots) != DefaultMaxResults {
		t.Fatalf("expected %d slots, got %d", DefaultMaxResults, len(slots))
	}
	// Earliest slots win the cap.
	if !slots[0].Start.Equal(deriveDay.Add(9 * time.Hour)) {
		t.Fatalf("expected earliest slot first, got %s", slots[0].Start)
	}
	for i := 1; i < len(slots); i++ {
		if slots[i].Start.Before(slots[i-1].Start) {
			t.Fatal("slots are not sorted by start")
		}
	}
}

func TestSuggestSlots_CutoffPassedToStore(t *testing.T) {
	day := deriveDay
	cutoff := day.Add(13 * time.Hour)
	store := &fakeStore{availability: map[string][]model.AvailabilityInterval{
		"u1": {availAt("u1", day, 9, 12), availAt("u1", day, 14, 16)},
	}}
	engine := NewEngine(store, &fakeDirectory{}, nil)

	slots, err := engine.SuggestSlots(context.Background(), SuggestRequest{
		Members: []string{"u1"},
		Cutoff:  &cutoff,
	})
	if err != nil {
		t.Fatalf("SuggestSlots failed: %v", err)
	}
	if store.lastCutoff == nil || !store.lastCutoff.Equal(cutoff) {
		t.Fatalf("cutoff was not forwarded to the store: %v", store.lastCutoff)
	}
	if len(slots) != 1 || !slots[0].End.Equal(day.Add(12*time.Hour)) {
		t.Fatalf("expected only the pre-deadline window, got %v", slots)
	}
}

func TestSuggestSlots_StoreErrorPropagates(t *testing.T) {
	wantErr := errors.New("db down")
	engine := NewEngine(&fakeStore{listErr: wantErr}, &fakeDirectory{}, nil)

	if _, err := engine.SuggestSlots(context.Background(), SuggestRequest{Members: []string{"u1"}}); !errors.Is(err, wantErr) {
		t.Fatalf("expected wrapped store error, got %v", err)
	}
}

func TestCommonWindows_NoDurationFilter(t *testing.T) {
	day := deriveDay
	store := &fakeStore{availability: map[string][]model.AvailabilityInterval{
		"u1": {availAt("u1", day, 9, 12)},
		"u2": {{UserID: "u2", Start: day.Add(11*time.Hour + 30*time.Minute), End: day.Add(13 * time.Hour)}},
	}}
	engine := NewEngine(store, &fakeDirectory{}, nil)

	windows, err := engine.CommonWindows(context.Background(), []string{"u1", "u2"})
	if err != nil {
		t.Fatalf("CommonWindows failed: %v", err)
	}
	// A 30 minute overlap survives here even though SuggestSlots would drop it.
	if len(windows) != 1 {
		t.Fatalf("expected 1 window, got %d", len(windows))
	}
	if !windows[0].Start.Equal(day.Add(11*time.Hour+30*time.Minute)) || !windows[0].End.Equal(day.Add(12*time.Hour)) {
		t.Fatalf("got [%s, %s)", windows[0].Start, windows[0].End)
	}
}

func TestResolveParticipants(t *testing.T) {
	dir := &fakeDirectory{
		participants: map[string][]string{"p1": {"u1", "u2"}},
		members:      map[string][]string{"g1": {"u1", "u2", "u3"}},
	}
	engine := NewEngine(&fakeStore{}, dir, nil)

	got, err := engine.ResolveParticipants(context.Background(), "p1", "g1")
	if err != nil {
		t.Fatalf("ResolveParticipants failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected the explicit participants, got %v", got)
	}

	// A project without participants falls back to the whole group.
	got, err = engine.ResolveParticipants(context.Background(), "p2", "g1")
	if err != nil {
		t.Fatalf("ResolveParticipants failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected group members fallback, got %v", got)
	}
}
