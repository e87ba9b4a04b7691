package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/studysync-app/studysync/internal/interval"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Daily window inside which free time is derived. Times are local naive;
// upstream import resolves timezones before the engine sees any data.
const (
	dayStartHour = 8
	dayEndHour   = 20
)

// DeriveAvailability recomputes a user's derived free windows from their busy
// intervals, one calendar day at a time: busy spans are clipped to the
// 08:00-20:00 window, merged, and the gaps stored with source "auto". Days
// with no busy data produce nothing: "no row" means unknown, not fully free.
//
// Each touched day is replaced wholesale, so re-running after busy data
// changed (including deletions upstream) converges to the same result.
// Returns the number of availability rows written.
func (e *Engine) DeriveAvailability(ctx context.Context, userID string) (int, error) {
	ctx, span := otel.Tracer("schedule").Start(ctx, "schedule.derive",
		trace.WithAttributes(attribute.String("user.id", userID)))
	defer span.End()

	busy, err := e.store.ListBusy(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("list busy intervals: %w", err)
	}

	byDay := make(map[time.Time][]interval.Interval)
	var days []time.Time
	for _, b := range busy {
		day := time.Date(b.Start.Year(), b.Start.Month(), b.Start.Day(), 0, 0, 0, 0, b.Start.Location())
		if _, seen := byDay[day]; !seen {
			days = append(days, day)
		}
		byDay[day] = append(byDay[day], interval.Interval{Start: b.Start, End: b.End})
	}

	written := 0
	for _, day := range days {
		dayStart := day.Add(dayStartHour * time.Hour)
		dayEnd := day.Add(dayEndHour * time.Hour)

		free := freeWindows(byDay[day], dayStart, dayEnd)
		n, err := e.store.ReplaceAutoAvailability(ctx, userID, dayStart, dayEnd, free)
		if err != nil {
			return written, fmt.Errorf("replace availability for %s: %w", day.Format("2006-01-02"), err)
		}
		written += n
	}

	if e.logger != nil {
		e.logger.Info("availability derived", "user_id", userID, "days", len(days), "rows", written)
	}
	return written, nil
}

// freeWindows subtracts the busy spans from [dayStart, dayEnd). Busy spans
// are clipped to the window first; spans entirely outside it are dropped.
func freeWindows(busy []interval.Interval, dayStart, dayEnd time.Time) []interval.Interval {
	clipped := make([]interval.Interval, 0, len(busy))
	for _, b := range busy {
		start := b.Start
		if start.Before(dayStart) {
			start = dayStart
		}
		end := b.End
		if end.After(dayEnd) {
			end = dayEnd
		}
		if start.Before(end) {
			clipped = append(clipped, interval.Interval{Start: start, End: end})
		}
	}

	var free []interval.Interval
	cursor := dayStart
	for _, b := range interval.Merge(clipped) {
		if cursor.Before(b.Start) {
			free = append(free, interval.Interval{Start: cursor, End: b.Start})
		}
		if b.End.After(cursor) {
			cursor = b.End
		}
	}
	if cursor.Before(dayEnd) {
		free = append(free, interval.Interval{Start: cursor, End: dayEnd})
	}
	return free
}
