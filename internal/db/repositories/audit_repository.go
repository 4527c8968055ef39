// audit_repository.go implements AuditRepository, the write and query path for the
// append-only audit trail. Inserts accept any execer so callers can couple the
// audit record to the transaction of the mutation it describes.
package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kafka-portal/kafka-portal/internal/db/models"
)

// maxAuditPageSize caps audit listings so an unbounded query cannot drag the
// whole trail into memory.
const maxAuditPageSize = 1000

const defaultAuditPageSize = 100

// Execer is satisfied by *sql.DB, *sql.Tx and *sqlx.Tx.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// AuditFilters narrows audit trail listings. Zero values mean "no filter".
type AuditFilters struct {
	UserID       string
	Action       string
	ResourceType string
	ResourceID   string
	Since        time.Time
	Until        time.Time
	Limit        int
	Offset       int
}

// AuditRepository handles database operations for audit log entries
type AuditRepository struct {
	db *sql.DB
}

// NewAuditRepository creates a new AuditRepository
func NewAuditRepository(db *sql.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Append writes a single audit entry. Pass the transaction of the mutation
// being audited as q so the entry commits or rolls back with it; pass the
// repository's own handle via AppendStandalone for entries with no
// surrounding transaction.
func (r *AuditRepository) Append(ctx context.Context, q Execer, entry *models.AuditLog) error {
	entry.ID = uuid.New().String()
	entry.CreatedAt = time.Now()

	var details []byte
	if entry.Details != nil {
		var err error
		details, err = json.Marshal(entry.Details)
		if err != nil {
			return fmt.Errorf("failed to marshal audit details: %w", err)
		}
	}

	query := `
		INSERT INTO audit_logs (id, user_id, action, resource_type, resource_id, details, ip_address, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := q.ExecContext(ctx, query,
		entry.ID,
		entry.UserID,
		entry.Action,
		entry.ResourceType,
		entry.ResourceID,
		details,
		entry.IPAddress,
		entry.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}

	return nil
}

// AppendStandalone writes an audit entry outside any transaction.
func (r *AuditRepository) AppendStandalone(ctx context.Context, entry *models.AuditLog) error {
	return r.Append(ctx, r.db, entry)
}

// List retrieves audit entries matching the filters, newest first.
func (r *AuditRepository) List(ctx context.Context, filters AuditFilters) ([]*models.AuditLog, error) {
	query := `
		SELECT a.id, a.user_id, a.action, a.resource_type, a.resource_id,
		       a.details, a.ip_address, a.created_at, u.username
		FROM audit_logs a
		JOIN users u ON u.id = a.user_id
		WHERE 1=1
	`

	args := []interface{}{}
	argPos := 1

	if filters.UserID != "" {
		query += fmt.Sprintf(" AND a.user_id = $%d", argPos)
		args = append(args, filters.UserID)
		argPos++
	}
	if filters.Action != "" {
		query += fmt.Sprintf(" AND a.action = $%d", argPos)
		args = append(args, filters.Action)
		argPos++
	}
	if filters.ResourceType != "" {
		query += fmt.Sprintf(" AND a.resource_type = $%d", argPos)
		args = append(args, filters.ResourceType)
		argPos++
	}
	if filters.ResourceID != "" {
		query += fmt.Sprintf(" AND a.resource_id = $%d", argPos)
		args = append(args, filters.ResourceID)
		argPos++
	}
	if !filters.Since.IsZero() {
		query += fmt.Sprintf(" AND a.created_at >= $%d", argPos)
		args = append(args, filters.Since)
		argPos++
	}
	if !filters.Until.IsZero() {
		query += fmt.Sprintf(" AND a.created_at <= $%d", argPos)
		args = append(args, filters.Until)
		argPos++
	}

	limit := filters.Limit
	if limit <= 0 {
		limit = defaultAuditPageSize
	}
	if limit > maxAuditPageSize {
		limit = maxAuditPageSize
	}

	query += fmt.Sprintf(" ORDER BY a.created_at DESC LIMIT $%d", argPos)
	args = append(args, limit)
	argPos++

	if filters.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argPos)
		args = append(args, filters.Offset)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []*models.AuditLog
	for rows.Next() {
		entry := &models.AuditLog{}
		var details []byte

		err := rows.Scan(
			&entry.ID,
			&entry.UserID,
			&entry.Action,
			&entry.ResourceType,
			&entry.ResourceID,
			&details,
			&entry.IPAddress,
			&entry.CreatedAt,
			&entry.Username,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}

		if len(details) > 0 {
			if err := json.Unmarshal(details, &entry.Details); err != nil {
				return nil, fmt.Errorf("failed to unmarshal audit details: %w", err)
			}
		}

		entries = append(entries, entry)
	}

	return entries, rows.Err()
}
