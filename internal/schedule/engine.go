// Package schedule implements the availability derivation and slot
// suggestion engine.
package schedule

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/studysync-app/studysync/internal/interval"
	"github.com/studysync-app/studysync/internal/model"
)

// ErrNoParticipants signals that a suggestion request resolved to zero
// members. Callers must treat this separately from an empty suggestion list,
// which means the members exist but share no free window.
var ErrNoParticipants = errors.New("no participants or group members found")

// IntervalStore is the persistence surface the engine computes over. Errors
// from it are propagated as-is; the engine never converts a storage failure
// into an empty result.
type IntervalStore interface {
	ListBusy(ctx context.Context, userID string) ([]model.BusyInterval, error)
	ListAvailability(ctx context.Context, userID string, endBefore *time.Time) ([]model.AvailabilityInterval, error)
	ReplaceAutoAvailability(ctx context.Context, userID string, dayStart, dayEnd time.Time, free []interval.Interval) (int, error)
}

// MemberDirectory resolves the participant set for a suggestion request.
type MemberDirectory interface {
	GroupMembers(ctx context.Context, groupID string) ([]string, error)
	ProjectParticipants(ctx context.Context, projectID string) ([]string, error)
}

type Engine struct {
	store  IntervalStore
	dir    MemberDirectory
	logger *slog.Logger
}

func NewEngine(store IntervalStore, dir MemberDirectory, logger *slog.Logger) *Engine {
	return &Engine{store: store, dir: dir, logger: logger}
}

// ResolveParticipants returns the project's explicit participants when any
// exist, otherwise the owning group's membership.
func (e *Engine) ResolveParticipants(ctx context.Context, projectID, groupID string) ([]string, error) {
	participants, err := e.dir.ProjectParticipants(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if len(participants) > 0 {
		return participants, nil
	}
	return e.dir.GroupMembers(ctx, groupID)
}
