package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/jishnu70/Chat-app-backend/internal/models"
)

// GroupRepository abstracts group and membership persistence.
type GroupRepository interface {
	CreateGroup(ctx context.Context, creatorID int, name string) (models.Group, error)
	AddMember(ctx context.Context, groupID int, userID int) (models.GroupMember, error)
	GetGroup(ctx context.Context, groupID int) (models.Group, error)
	IsMember(ctx context.Context, groupID int, userID int) (bool, error)
	ListGroupsForUser(ctx context.Context, userID int) ([]models.Group, error)
	ListMembers(ctx context.Context, groupID int) ([]models.GroupMember, error)
}

// GroupRepo is a sqlx implementation of GroupRepository.
type GroupRepo struct {
	db *sqlx.DB
}

// NewGroupRepo constructs a GroupRepo.
func NewGroupRepo(db *sqlx.DB) *GroupRepo {
	return &GroupRepo{db: db}
}

// CreateGroup creates a group with its creator as the first member atomically.
func (r *GroupRepo) CreateGroup(ctx context.Context, creatorID int, name string) (models.Group, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Group{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var group models.Group
	if err = tx.GetContext(ctx, &group, `INSERT INTO groups (name, creator_id) VALUES ($1, $2) RETURNING id, name, creator_id, created_at`, name, creatorID); err != nil {
		if pqCode(err) == pqForeignKeyViolation {
			return models.Group{}, ErrUserNotFound
		}
		return models.Group{}, err
	}

	if _, err = tx.ExecContext(ctx, `INSERT INTO group_members (group_id, user_id) VALUES ($1, $2)`, group.ID, creatorID); err != nil {
		return models.Group{}, err
	}

	if err = tx.Commit(); err != nil {
		return models.Group{}, err
	}
	return group, nil
}

// AddMember inserts a membership row. The (group, user) primary key makes a
// second insert fail with ErrAlreadyMember.
func (r *GroupRepo) AddMember(ctx context.Context, groupID int, userID int) (models.GroupMember, error) {
	var member models.GroupMember
	err := r.db.GetContext(ctx, &member, `INSERT INTO group_members (group_id, user_id) VALUES ($1, $2) RETURNING group_id, user_id, added_at`, groupID, userID)
	switch pqCode(err) {
	case pqUniqueViolation:
		return models.GroupMember{}, ErrAlreadyMember
	case pqForeignKeyViolation:
		return models.GroupMember{}, ErrUserNotFound
	}
	return member, err
}

// GetGroup fetches a single group.
func (r *GroupRepo) GetGroup(ctx context.Context, groupID int) (models.Group, error) {
	var group models.Group
	err := r.db.GetContext(ctx, &group, `SELECT id, name, creator_id, created_at FROM groups WHERE id=$1`, groupID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Group{}, ErrGroupNotFound
	}
	return group, err
}

// IsMember checks membership.
func (r *GroupRepo) IsMember(ctx context.Context, groupID int, userID int) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM group_members WHERE group_id=$1 AND user_id=$2)`, groupID, userID)
	return exists, err
}

// ListGroupsForUser returns groups that include the user, newest first.
func (r *GroupRepo) ListGroupsForUser(ctx context.Context, userID int) ([]models.Group, error) {
	var groups []models.Group
	err := r.db.SelectContext(ctx, &groups, `SELECT g.id, g.name, g.creator_id, g.created_at FROM groups g INNER JOIN group_members gm ON gm.group_id = g.id WHERE gm.user_id=$1 ORDER BY g.created_at DESC, g.id DESC`, userID)
	return groups, err
}

// ListMembers returns the membership rows of a group.
func (r *GroupRepo) ListMembers(ctx context.Context, groupID int) ([]models.GroupMember, error) {
	var members []models.GroupMember
	err := r.db.SelectContext(ctx, &members, `SELECT group_id, user_id, added_at FROM group_members WHERE group_id=$1 ORDER BY added_at ASC`, groupID)
	return members, err
}
