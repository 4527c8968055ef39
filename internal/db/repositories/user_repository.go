// Package repositories implements the data access layer (repository pattern) for the Kafka portal.
// Each repository type encapsulates all database queries for a domain entity.
// Handlers never issue SQL directly — all database access goes through this layer, which makes query logic testable in isolation and prevents accidental cross-domain data access.
package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/kafka-portal/kafka-portal/internal/db/models"
)

// UserRepository handles user database operations
type UserRepository struct {
	db *sql.DB
}

// NewUserRepository creates a new UserRepository
func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

// BeginTx starts a transaction for a user mutation coupled to an audit entry.
func (r *UserRepository) BeginTx(ctx context.Context) (*sql.Tx, error) {
	return r.db.BeginTx(ctx, nil)
}

// CreateUser creates a new user record. Pass the surrounding transaction as q,
// or the repository's handle is fine for standalone writes.
func (r *UserRepository) CreateUser(ctx context.Context, q Execer, user *models.User) error {
	user.ID = uuid.New().String()
	user.CreatedAt = time.Now()

	query := `
		INSERT INTO users (id, username, email, is_admin, is_active, created_at, last_login)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := q.ExecContext(ctx, query,
		user.ID,
		user.Username,
		user.Email,
		user.IsAdmin,
		user.IsActive,
		user.CreatedAt,
		user.LastLogin,
	)

	return err
}

// GetUserByID retrieves a user by ID
func (r *UserRepository) GetUserByID(ctx context.Context, userID string) (*models.User, error) {
	query := `
		SELECT id, username, email, is_admin, is_active, created_at, last_login
		FROM users
		WHERE id = $1
	`

	user := &models.User{}
	err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.IsAdmin,
		&user.IsActive,
		&user.CreatedAt,
		&user.LastLogin,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}

	if err != nil {
		return nil, err
	}

	return user, nil
}

// GetUserByUsername retrieves a user by username
func (r *UserRepository) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	query := `
		SELECT id, username, email, is_admin, is_active, created_at, last_login
		FROM users
		WHERE username = $1
	`

	user := &models.User{}
	err := r.db.QueryRowContext(ctx, query, username).Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.IsAdmin,
		&user.IsActive,
		&user.CreatedAt,
		&user.LastLogin,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}

	if err != nil {
		return nil, err
	}

	return user, nil
}

// RecordLogin stamps last_login and synchronizes the admin flag from the
// directory on every successful login.
func (r *UserRepository) RecordLogin(ctx context.Context, q Execer, userID string, isAdmin bool, at time.Time) error {
	query := `
		UPDATE users
		SET last_login = $2, is_admin = $3
		WHERE id = $1
	`

	_, err := q.ExecContext(ctx, query, userID, at, isAdmin)
	return err
}

// SetAdmin updates the admin flag for a user
func (r *UserRepository) SetAdmin(ctx context.Context, q Execer, userID string, isAdmin bool) error {
	query := `
		UPDATE users
		SET is_admin = $2
		WHERE id = $1
	`

	result, err := q.ExecContext(ctx, query, userID, isAdmin)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return sql.ErrNoRows
	}

	return nil
}

// CountAdmins returns the number of active admin users
func (r *UserRepository) CountAdmins(ctx context.Context) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM users
		WHERE is_admin = true AND is_active = true
	`

	var count int
	if err := r.db.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, err
	}

	return count, nil
}
