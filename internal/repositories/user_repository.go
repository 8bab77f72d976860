package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/jishnu70/Chat-app-backend/internal/models"
)

// UserRepository abstracts user persistence.
type UserRepository interface {
	UpsertByExternalUID(ctx context.Context, externalUID, email string, displayName *string) (int, error)
	Create(ctx context.Context, user models.User) (models.User, error)
	GetByID(ctx context.Context, userID int) (models.User, error)
	GetByExternalUID(ctx context.Context, externalUID string) (models.User, error)
	GetByIDs(ctx context.Context, ids []int) ([]models.User, error)
	Exists(ctx context.Context, userID int) (bool, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
}

// UserRepo is a sqlx implementation of UserRepository.
type UserRepo struct {
	db *sqlx.DB
}

// NewUserRepo constructs a UserRepo.
func NewUserRepo(db *sqlx.DB) *UserRepo {
	return &UserRepo{db: db}
}

const userColumns = `id, external_uid, email, display_name, public_key, created_at`

// UpsertByExternalUID returns the internal id for externalUID, creating the
// user on first sight. Concurrent first logins converge on a single row.
func (r *UserRepo) UpsertByExternalUID(ctx context.Context, externalUID, email string, displayName *string) (int, error) {
	var id int
	err := r.db.GetContext(ctx, &id, `INSERT INTO users (external_uid, email, display_name) VALUES ($1, $2, $3)
        ON CONFLICT (external_uid) DO UPDATE SET external_uid = EXCLUDED.external_uid
        RETURNING id`, externalUID, email, displayName)
	return id, err
}

// Create registers a user explicitly.
func (r *UserRepo) Create(ctx context.Context, user models.User) (models.User, error) {
	var created models.User
	err := r.db.GetContext(ctx, &created, `INSERT INTO users (external_uid, email, display_name, public_key) VALUES ($1, $2, $3, $4)
        RETURNING `+userColumns, user.ExternalUID, user.Email, user.DisplayName, user.PublicKey)
	if pqCode(err) == pqUniqueViolation {
		return models.User{}, ErrUserExists
	}
	return created, err
}

// GetByID fetches a user by internal id.
func (r *UserRepo) GetByID(ctx context.Context, userID int) (models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user, `SELECT `+userColumns+` FROM users WHERE id=$1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrUserNotFound
	}
	return user, err
}

// GetByExternalUID fetches a user by identity-provider subject.
func (r *UserRepo) GetByExternalUID(ctx context.Context, externalUID string) (models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user, `SELECT `+userColumns+` FROM users WHERE external_uid=$1`, externalUID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrUserNotFound
	}
	return user, err
}

// GetByIDs fetches several users at once; unknown ids are skipped.
func (r *UserRepo) GetByIDs(ctx context.Context, ids []int) ([]models.User, error) {
	if len(ids) == 0 {
		return []models.User{}, nil
	}
	query, args, err := sqlx.In(`SELECT `+userColumns+` FROM users WHERE id IN (?)`, ids)
	if err != nil {
		return nil, err
	}
	var users []models.User
	err = r.db.SelectContext(ctx, &users, r.db.Rebind(query), args...)
	return users, err
}

// Exists checks whether a user id is known.
func (r *UserRepo) Exists(ctx context.Context, userID int) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM users WHERE id=$1)`, userID)
	return exists, err
}

// ExistsByEmail checks whether an email is already registered.
func (r *UserRepo) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM users WHERE email=$1 AND email <> '')`, email)
	return exists, err
}
