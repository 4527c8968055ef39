// settings_repository.go implements SettingsRepository, a small key/value store for
// instance-level settings such as the one-time admin bootstrap token hash.
package repositories

import (
	"context"
	"database/sql"
	"time"
)

// Setting keys used by the portal.
const (
	SettingBootstrapTokenHash = "bootstrap_token_hash"
	SettingBootstrapCompleted = "bootstrap_completed"
)

// SettingsRepository handles database operations for system settings
type SettingsRepository struct {
	db *sql.DB
}

// NewSettingsRepository creates a new SettingsRepository
func NewSettingsRepository(db *sql.DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// Get retrieves a setting value. Returns ("", nil) when the key is absent.
func (r *SettingsRepository) Get(ctx context.Context, key string) (string, error) {
	query := `
		SELECT value
		FROM system_settings
		WHERE key = $1
	`

	var value string
	err := r.db.QueryRowContext(ctx, query, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}

	return value, nil
}

// Set upserts a setting value
func (r *SettingsRepository) Set(ctx context.Context, key, value string) error {
	query := `
		INSERT INTO system_settings (key, value, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at
	`

	_, err := r.db.ExecContext(ctx, query, key, value, time.Now())
	return err
}

// Delete removes a setting
func (r *SettingsRepository) Delete(ctx context.Context, key string) error {
	query := `
		DELETE FROM system_settings
		WHERE key = $1
	`

	_, err := r.db.ExecContext(ctx, query, key)
	return err
}
