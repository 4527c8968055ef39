// request_repository.go implements RequestRepository, providing database queries for
// topic and ACL provisioning requests and their lifecycle transitions.
package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/kafka-portal/kafka-portal/internal/db/models"
)

// RequestFilters narrows request listings. Zero values mean "no filter".
type RequestFilters struct {
	UserID string
	Status models.RequestStatus
	Kind   models.RequestKind
	Limit  int
	Offset int
}

// RequestRepository handles database operations for provisioning requests
type RequestRepository struct {
	db *sqlx.DB
}

// NewRequestRepository creates a new request repository
func NewRequestRepository(db *sqlx.DB) *RequestRepository {
	return &RequestRepository{db: db}
}

// BeginTx starts a transaction for a multi-statement request mutation.
func (r *RequestRepository) BeginTx(ctx context.Context) (*sqlx.Tx, error) {
	return r.db.BeginTxx(ctx, nil)
}

// Create inserts a new request inside the given transaction.
func (r *RequestRepository) Create(ctx context.Context, tx *sqlx.Tx, req *models.Request) error {
	req.ID = uuid.New().String()
	req.Status = models.RequestStatusPending
	req.CreatedAt = time.Now()

	query := `
		INSERT INTO requests (id, user_id, kind, status, payload, rationale, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := tx.ExecContext(ctx, query,
		req.ID,
		req.UserID,
		req.Kind,
		req.Status,
		req.Payload,
		req.Rationale,
		req.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	return nil
}

const requestColumns = `
	r.id, r.user_id, r.kind, r.status, r.payload, r.rationale,
	r.created_at, r.approved_at, r.rejected_at, r.decided_by, r.rejection_reason,
	u.username AS requester_username
`

// GetByID retrieves a request by ID, including the requester's username.
func (r *RequestRepository) GetByID(ctx context.Context, id string) (*models.Request, error) {
	query := `
		SELECT ` + requestColumns + `
		FROM requests r
		JOIN users u ON u.id = r.user_id
		WHERE r.id = $1
	`

	var req models.Request
	err := r.db.GetContext(ctx, &req, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get request: %w", err)
	}

	return &req, nil
}

// List retrieves requests matching the filters, newest first.
func (r *RequestRepository) List(ctx context.Context, filters RequestFilters) ([]*models.Request, error) {
	query := `
		SELECT ` + requestColumns + `
		FROM requests r
		JOIN users u ON u.id = r.user_id
		WHERE 1=1
	`

	args := []interface{}{}
	argPos := 1

	if filters.UserID != "" {
		query += fmt.Sprintf(" AND r.user_id = $%d", argPos)
		args = append(args, filters.UserID)
		argPos++
	}
	if filters.Status != "" {
		query += fmt.Sprintf(" AND r.status = $%d", argPos)
		args = append(args, filters.Status)
		argPos++
	}
	if filters.Kind != "" {
		query += fmt.Sprintf(" AND r.kind = $%d", argPos)
		args = append(args, filters.Kind)
		argPos++
	}

	query += " ORDER BY r.created_at DESC"

	if filters.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argPos)
		args = append(args, filters.Limit)
		argPos++
	}
	if filters.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argPos)
		args = append(args, filters.Offset)
	}

	var requests []*models.Request
	if err := r.db.SelectContext(ctx, &requests, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list requests: %w", err)
	}

	return requests, nil
}

// GetForUpdate locks a request row for the duration of the transaction.
// Concurrent deciders serialize on this lock; the caller inspects the status
// so a missing row and an already-decided one produce different errors.
func (r *RequestRepository) GetForUpdate(ctx context.Context, tx *sqlx.Tx, id string) (*models.Request, error) {
	query := `
		SELECT id, user_id, kind, status, payload, rationale,
		       created_at, approved_at, rejected_at, decided_by, rejection_reason
		FROM requests
		WHERE id = $1
		FOR UPDATE
	`

	var req models.Request
	err := tx.GetContext(ctx, &req, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock request: %w", err)
	}

	return &req, nil
}

// MarkApproved transitions a PENDING request to APPROVED. The status guard in
// the WHERE clause makes the transition at-most-once: the returned bool is
// false when another decision already landed.
func (r *RequestRepository) MarkApproved(ctx context.Context, tx *sqlx.Tx, id, adminID string, at time.Time) (bool, error) {
	query := `
		UPDATE requests
		SET status = $3, approved_at = $4, decided_by = $5
		WHERE id = $1 AND status = $2
	`

	result, err := tx.ExecContext(ctx, query, id, models.RequestStatusPending, models.RequestStatusApproved, at, adminID)
	if err != nil {
		return false, fmt.Errorf("failed to approve request: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return rows == 1, nil
}

// MarkRejected transitions a PENDING request to REJECTED with a reason.
func (r *RequestRepository) MarkRejected(ctx context.Context, tx *sqlx.Tx, id, adminID, reason string, at time.Time) (bool, error) {
	query := `
		UPDATE requests
		SET status = $3, rejected_at = $4, decided_by = $5, rejection_reason = $6
		WHERE id = $1 AND status = $2
	`

	result, err := tx.ExecContext(ctx, query, id, models.RequestStatusPending, models.RequestStatusRejected, at, adminID, reason)
	if err != nil {
		return false, fmt.Errorf("failed to reject request: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return rows == 1, nil
}

// MarkCancelled transitions a requester's own PENDING request to CANCELLED.
func (r *RequestRepository) MarkCancelled(ctx context.Context, tx *sqlx.Tx, id, userID string) (bool, error) {
	query := `
		UPDATE requests
		SET status = $3
		WHERE id = $1 AND status = $2 AND user_id = $4
	`

	result, err := tx.ExecContext(ctx, query, id, models.RequestStatusPending, models.RequestStatusCancelled, userID)
	if err != nil {
		return false, fmt.Errorf("failed to cancel request: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return rows == 1, nil
}
