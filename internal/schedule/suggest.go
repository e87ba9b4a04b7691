package schedule

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/studysync-app/studysync/internal/interval"
	"github.com/studysync-app/studysync/internal/model"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultMinDuration = time.Hour
	DefaultMaxResults  = 5
)

type SuggestRequest struct {
	Members []string
	// Cutoff, when set, excludes availability ending after it (a deadline).
	Cutoff *time.Time
	// MinDuration defaults to one hour when zero.
	MinDuration time.Duration
	// MaxResults defaults to five when zero.
	MaxResults int
}

// SuggestSlots returns the windows during which every member is free, capped
// for presentation: filtered to MinDuration, sorted by start, truncated to
// MaxResults. An empty result with a nil error means the members simply share
// no qualifying window.
//
// Every member must contribute availability: a member with zero rows makes
// the intersection empty no matter where they appear in the list.
func (e *Engine) SuggestSlots(ctx context.Context, req SuggestRequest) ([]model.SuggestedSlot, error) {
	ctx, span := otel.Tracer("schedule").Start(ctx, "schedule.suggest",
		trace.WithAttributes(attribute.Int("members", len(req.Members))))
	defer span.End()

	if len(req.Members) == 0 {
		return nil, ErrNoParticipants
	}

	minDuration := req.MinDuration
	if minDuration <= 0 {
		minDuration = DefaultMinDuration
	}
	maxResults := req.MaxResults
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}

	sets, err := e.availabilitySets(ctx, req.Members, req.Cutoff)
	if err != nil {
		return nil, err
	}
	for _, set := range sets {
		if len(set) == 0 {
			return nil, nil
		}
	}

	common := interval.Intersect(sets)

	slots := make([]model.SuggestedSlot, 0, len(common))
	for _, window := range common {
		if window.Duration() < minDuration {
			continue
		}
		slots = append(slots, model.SuggestedSlot{
			Start:    window.Start,
			End:      window.End,
			Duration: window.Duration(),
		})
	}

	sort.SliceStable(slots, func(i, j int) bool {
		return slots[i].Start.Before(slots[j].Start)
	})
	if len(slots) > maxResults {
		slots = slots[:maxResults]
	}
	return slots, nil
}

// CommonWindows is the uncapped variant used by the group calendar feed:
// every window shared by all members, no duration filter, no result cap.
func (e *Engine) CommonWindows(ctx context.Context, members []string) ([]interval.Interval, error) {
	if len(members) == 0 {
		return nil, ErrNoParticipants
	}

	sets, err := e.availabilitySets(ctx, members, nil)
	if err != nil {
		return nil, err
	}
	for _, set := range sets {
		if len(set) == 0 {
			return nil, nil
		}
	}

	common := interval.Intersect(sets)
	sort.Slice(common, func(i, j int) bool {
		return common[i].Start.Before(common[j].Start)
	})
	return common, nil
}

func (e *Engine) availabilitySets(ctx context.Context, members []string, cutoff *time.Time) ([][]interval.Interval, error) {
	sets := make([][]interval.Interval, 0, len(members))
	for _, userID := range members {
		avail, err := e.store.ListAvailability(ctx, userID, cutoff)
		if err != nil {
			return nil, fmt.Errorf("list availability for %s: %w", userID, err)
		}
		set := make([]interval.Interval, 0, len(avail))
		for _, a := range avail {
			set = append(set, interval.Interval{Start: a.Start, End: a.End})
		}
		sets = append(sets, set)
	}
	return sets, nil
}
