package storage

import (
	"context"

	"github.com/studysync-app/studysync/internal/model"
)

type GroupRepository struct {
	pool *Pool
}

func NewGroupRepository(pool *Pool) *GroupRepository {
	return &GroupRepository{pool: pool}
}

func (r *GroupRepository) Create(ctx context.Context, group model.Group) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO groups (id, group_name, description)
		VALUES ($1, $2, $3)
	`, group.ID, group.Name, group.Description)
	return err
}

func (r *GroupRepository) Get(ctx context.Context, id string) (model.Group, error) {
	var group model.Group
	err := r.pool.QueryRow(ctx, `
		SELECT id, group_name, description, created_at
		FROM groups
		WHERE id = $1
	`, id).Scan(&group.ID, &group.Name, &group.Description, &group.CreatedAt)
	if err != nil {
		return model.Group{}, err
	}
	return group, nil
}

func (r *GroupRepository) List(ctx context.Context) ([]model.Group, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, group_name, description, created_at
		FROM groups
		ORDER BY group_name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var groups []model.Group
	for rows.Next() {
		var group model.Group
		if err := rows.Scan(&group.ID, &group.Name, &group.Description, &group.CreatedAt); err != nil {
			return nil, err
		}
		groups = append(groups, group)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return groups, nil
}

func (r *GroupRepository) Delete(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM groups WHERE id = $1`, id)
	return err
}

// AddMember is idempotent: adding an existing member is a no-op.
func (r *GroupRepository) AddMember(ctx context.Context, groupID, userID string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO memberships (group_id, user_id)
		VALUES ($1, $2)
		ON CONFLICT (group_id, user_id) DO NOTHING
	`, groupID, userID)
	return err
}

func (r *GroupRepository) Members(ctx context.Context, groupID string) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT m.user_id
		FROM memberships m
		JOIN users u ON u.id = m.user_id
		WHERE m.group_id = $1
		ORDER BY u.username
	`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		members = append(members, id)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return members, nil
}

func (r *GroupRepository) MemberEmails(ctx context.Context, groupID string) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT u.email
		FROM memberships m
		JOIN users u ON u.id = m.user_id
		WHERE m.group_id = $1
	`, groupID)
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
