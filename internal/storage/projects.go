package storage

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/studysync-app/studysync/internal/model"
)

type ProjectRepository struct {
	pool *Pool
}

func NewProjectRepository(pool *Pool) *ProjectRepository {
	return &ProjectRepository{pool: pool}
}

func (r *ProjectRepository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

func (r *ProjectRepository) Create(ctx context.Context, project model.Project) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO projects (id, project_name, group_id, deadline, estimated_hours)
		VALUES ($1, $2, $3, $4, $5)
	`, project.ID, project.Name, project.GroupID, project.Deadline, project.EstimatedHours)
	return err
}

func (r *ProjectRepository) Get(ctx context.Context, id string) (model.Project, error) {
	var project model.Project
	err := r.pool.QueryRow(ctx, `
		SELECT id, project_name, group_id, deadline, estimated_hours, created_at
		FROM projects
		WHERE id = $1
	`, id).Scan(&project.ID, &project.Name, &project.GroupID, &project.Deadline,
		&project.EstimatedHours, &project.CreatedAt)
	if err != nil {
		return model.Project{}, err
	}
	return project, nil
}

func (r *ProjectRepository) List(ctx context.Context) ([]model.Project, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, project_name, group_id, deadline, estimated_hours, created_at
		FROM projects
		ORDER BY deadline
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var projects []model.Project
	for rows.Next() {
		var project model.Project
		if err := rows.Scan(&project.ID, &project.Name, &project.GroupID, &project.Deadline,
			&project.EstimatedHours, &project.CreatedAt); err != nil {
			return nil, err
		}
		projects = append(projects, project)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return projects, nil
}

func (r *ProjectRepository) Delete(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM projects WHERE id = $1`, id)
	return err
}

// AddParticipant is idempotent on (project, user).
func (r *ProjectRepository) AddParticipant(ctx context.Context, projectID, userID string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO participation (project_id, user_id)
		VALUES ($1, $2)
		ON CONFLICT (project_id, user_id) DO NOTHING
	`, projectID, userID)
	return err
}

func (r *ProjectRepository) Participants(ctx context.Context, projectID string) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT user_id
		FROM participation
		WHERE project_id = $1
		ORDER BY user_id
	`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var participants []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		participants = append(participants, id)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return participants, nil
}

func (r *ProjectRepository) ParticipantEmails(ctx context.Context, projectID string) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT u.email
		FROM participation p
		JOIN users u ON u.id = p.user_id
		WHERE p.project_id = $1
	`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var emails []string
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, err
		}
		emails = append(emails, email)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return emails, nil
}

// CreateSessionTx runs inside the caller's transaction so a booking and its
// outbox event commit together.
func (r *ProjectRepository) CreateSessionTx(ctx context.Context, tx pgx.Tx, session model.WorkSession) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO work_sessions (id, project_id, start_time, end_time)
		VALUES ($1, $2, $3, $4)
	`, session.ID, session.ProjectID, session.Start, session.End)
	return err
}

func (r *ProjectRepository) Sessions(ctx context.Context, projectID string) ([]model.WorkSession, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, project_id, start_time, end_time, created_at
		FROM work_sessions
		WHERE project_id = $1
		ORDER BY start_time
	`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []model.WorkSession
	for rows.Next() {
		var session model.WorkSession
		if err := rows.Scan(&session.ID, &session.ProjectID, &session.Start, &session.End, &session.CreatedAt); err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return sessions, nil
}

func (r *ProjectRepository) GroupSessions(ctx context.Context, groupID string) ([]model.WorkSession, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT ws.id, ws.project_id, ws.start_time, ws.end_time, ws.created_at
		FROM work_sessions ws
		JOIN projects p ON p.id = ws.project_id
		WHERE p.group_id = $1
		ORDER BY ws.start_time
	`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []model.WorkSession
	for rows.Next() {
		var session model.WorkSession
		if err := rows.Scan(&session.ID, &session.ProjectID, &session.Start, &session.End, &session.CreatedAt); err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return sessions, nil
}

// ListForUser returns the projects a user is involved in, either through
// explicit participation or through membership in the owning group.
func (r *ProjectRepository) ListForUser(ctx context.Context, userID string) ([]model.Project, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT p.id, p.project_name, p.group_id, p.deadline, p.estimated_hours, p.created_at
		FROM projects p
		LEFT JOIN participation pt ON pt.project_id = p.id
		LEFT JOIN memberships m ON m.group_id = p.group_id
		WHERE pt.user_id = $1 OR m.user_id = $1
		ORDER BY p.deadline
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var projects []model.Project
	for rows.Next() {
		var project model.Project
		if err := rows.Scan(&project.ID, &project.Name, &project.GroupID, &project.Deadline,
			&project.EstimatedHours, &project.CreatedAt); err != nil {
			return nil, err
		}
		projects = append(projects, project)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return projects, nil
}

// SessionsForUser returns the booked sessions of every project the user is
// involved in.
func (r *ProjectRepository) SessionsForUser(ctx context.Context, userID string) ([]model.WorkSession, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT ws.id, ws.project_id, ws.start_time, ws.end_time, ws.created_at
		FROM work_sessions ws
		JOIN projects p ON p.id = ws.project_id
		LEFT JOIN participation pt ON pt.project_id = p.id
		LEFT JOIN memberships m ON m.group_id = p.group_id
		WHERE pt.user_id = $1 OR m.user_id = $1
		ORDER BY ws.start_time
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []model.WorkSession
	for rows.Next() {
		var session model.WorkSession
		if err := rows.Scan(&session.ID, &session.ProjectID, &session.Start, &session.End, &session.CreatedAt); err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return sessions, nil
}

// DueForReminder locks projects whose deadline falls inside [now, now+window)
// and that have not been notified yet. Row locks keep concurrent workers from
// double-sending.
func (r *ProjectRepository) DueForReminder(ctx context.Context, tx pgx.Tx, now time.Time, window time.Duration, limit int) ([]model.Project, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, project_name, group_id, deadline, estimated_hours, created_at
		FROM projects
		WHERE deadline >= $1
			AND deadline < $2
			AND deadline_notified_at IS NULL
		ORDER BY deadline
		LIMIT $3
		FOR UPDATE SKIP LOCKED
	`, now, now.Add(window), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var projects []model.Project
	for rows.Next() {
		var project model.Project
		if err := rows.Scan(&project.ID, &project.Name, &project.GroupID, &project.Deadline,
			&project.EstimatedHours, &project.CreatedAt); err != nil {
			return nil, err
		}
		projects = append(projects, project)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return projects, nil
}

func (r *ProjectRepository) MarkDeadlineNotified(ctx context.Context, tx pgx.Tx, projectID string) error {
	_, err := tx.Exec(ctx, `
		UPDATE projects
		SET deadline_notified_at = now()
		WHERE id = $1
	`, projectID)
	return err
}
