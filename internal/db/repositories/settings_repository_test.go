package repositories

import (
	"context"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
)

func newSettingsRepo(t *testing.T) (*SettingsRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewSettingsRepository(db), mock
}

func TestSettingsGet_Absent(t *testing.T) {
	repo, mock := newSettingsRepo(t)
	mock.ExpectQuery("SELECT value.*FROM system_settings").
		WillReturnRows(sqlmock.NewRows([]string{"value"}))

	v, err := repo.Get(context.Background(), SettingBootstrapTokenHash)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != "" {
		t.Errorf("value = %q, want empty", v)
	}
}

func TestSettingsGet_Present(t *testing.T) {
	repo, mock := newSettingsRepo(t)
	mock.ExpectQuery("SELECT value.*FROM system_settings").
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow("hash-value"))

	v, err := repo.Get(context.Background(), SettingBootstrapTokenHash)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != "hash-value" {
		t.Errorf("value = %q, want hash-value", v)
	}
}

func TestSettingsSet_Upsert(t *testing.T) {
	repo, mock := newSettingsRepo(t)
	mock.ExpectExec("INSERT INTO system_settings.*ON CONFLICT").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Set(context.Background(), SettingBootstrapCompleted, "true"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSettingsDelete(t *testing.T) {
	repo, mock := newSettingsRepo(t)
	mock.ExpectExec("DELETE FROM system_settings").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Delete(context.Background(), SettingBootstrapTokenHash); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
