package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/studysync-app/studysync/internal/interval"
	"github.com/studysync-app/studysync/internal/model"
)

// ScheduleRepository persists busy and availability intervals. Inserts are
// idempotent on the natural keys the scheduling engine relies on.
type ScheduleRepository struct {
	pool *Pool
}

func NewScheduleRepository(pool *Pool) *ScheduleRepository {
	return &ScheduleRepository{pool: pool}
}

// InsertBusy reports whether a row was actually inserted; a duplicate of an
// identical (user, start, end, calendar) import is a no-op.
func (r *ScheduleRepository) InsertBusy(ctx context.Context, busy model.BusyInterval) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO busy_times (id, user_id, start_time, end_time, description, calendar_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, start_time, end_time, calendar_id) DO NOTHING
	`, busy.ID, busy.UserID, busy.Start, busy.End, busy.Description, busy.CalendarID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *ScheduleRepository) ListBusy(ctx context.Context, userID string) ([]model.BusyInterval, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, start_time, end_time, description, calendar_id
		FROM busy_times
		WHERE user_id = $1
		ORDER BY start_time
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var intervals []model.BusyInterval
	for rows.Next() {
		var busy model.BusyInterval
		if err := rows.Scan(&busy.ID, &busy.UserID, &busy.Start, &busy.End, &busy.Description, &busy.CalendarID); err != nil {
			return nil, err
		}
		intervals = append(intervals, busy)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return intervals, nil
}

// InsertAvailability is idempotent on (user, start, end).
func (r *ScheduleRepository) InsertAvailability(ctx context.Context, avail model.AvailabilityInterval) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO availabilities (id, user_id, start_time, end_time, source)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, start_time, end_time) DO NOTHING
	`, avail.ID, avail.UserID, avail.Start, avail.End, avail.Source)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ListAvailability returns a user's availability ordered by start, optionally
// restricted to intervals ending at or before endBefore.
func (r *ScheduleRepository) ListAvailability(ctx context.Context, userID string, endBefore *time.Time) ([]model.AvailabilityInterval, error) {
	query := `
		SELECT id, user_id, start_time, end_time, source
		FROM availabilities
		WHERE user_id = $1
		ORDER BY start_time
	`
	args := []any{userID}
	if endBefore != nil {
		query = `
			SELECT id, user_id, start_time, end_time, source
			FROM availabilities
			WHERE user_id = $1 AND end_time <= $2
			ORDER BY start_time
		`
		args = append(args, *endBefore)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var intervals []model.AvailabilityInterval
	for rows.Next() {
		var avail model.AvailabilityInterval
		if err := rows.Scan(&avail.ID, &avail.UserID, &avail.Start, &avail.End, &avail.Source); err != nil {
			return nil, err
		}
		intervals = append(intervals, avail)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return intervals, nil
}

// UpdateAvailability resizes a manual window. Source is never changed.
func (r *ScheduleRepository) UpdateAvailability(ctx context.Context, id string, start, end time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE availabilities
		SET start_time = $2, end_time = $3
		WHERE id = $1
	`, id, start, end)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errNoRows
	}
	return nil
}

func (r *ScheduleRepository) DeleteAvailability(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM availabilities WHERE id = $1`, id)
	return err
}

// ReplaceAutoAvailability swaps one day's derived rows for the freshly
// computed free windows, in a single transaction so stale gaps from removed
// busy events cannot survive a re-derivation. Manual rows are untouched.
// Returns the number of rows inserted.
func (r *ScheduleRepository) ReplaceAutoAvailability(ctx context.Context, userID string, dayStart, dayEnd time.Time, free []interval.Interval) (int, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		DELETE FROM availabilities
		WHERE user_id = $1
			AND source = 'auto'
			AND start_time >= $2
			AND end_time <= $3
	`, userID, dayStart, dayEnd)
	if err != nil {
		return 0, err
	}

	inserted := 0
	for _, window := range free {
		tag, err := tx.Exec(ctx, `
			INSERT INTO availabilities (id, user_id, start_time, end_time, source)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (user_id, start_time, end_time) DO NOTHING
		`, uuid.NewString(), userID, window.Start, window.End, model.SourceAuto)
		if err != nil {
			return 0, err
		}
		inserted += int(tag.RowsAffected())
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return inserted, nil
}
