package repositories

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/kafka-portal/kafka-portal/internal/db/models"
)

var requestCols = []string{
	"id", "user_id", "kind", "status", "payload", "rationale",
	"created_at", "approved_at", "rejected_at", "decided_by", "rejection_reason",
	"requester_username",
}

var requestLockCols = requestCols[:11]

func sampleRequestRow(status models.RequestStatus) *sqlmock.Rows {
	payload := []byte(`{"topic_name":"orders.events","partitions":3,"replication_factor":2}`)
	return sqlmock.NewRows(requestCols).
		AddRow("req-1", "user-1", models.RequestKindTopic, status, payload,
			"need a topic for order events", time.Now(), nil, nil, nil, nil, "jdoe")
}

func sampleLockedRow() *sqlmock.Rows {
	payload := []byte(`{"topic_name":"orders.events","partitions":3,"replication_factor":2}`)
	return sqlmock.NewRows(requestLockCols).
		AddRow("req-1", "user-1", models.RequestKindTopic, models.RequestStatusPending, payload,
			"need a topic for order events", time.Now(), nil, nil, nil, nil)
}

func newRequestRepo(t *testing.T) (*RequestRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewRequestRepository(sqlx.NewDb(db, "sqlmock")), mock
}

func beginTx(t *testing.T, repo *RequestRepository, mock sqlmock.Sqlmock) *sqlx.Tx {
	t.Helper()
	mock.ExpectBegin()
	tx, err := repo.BeginTx(context.Background())
	if err != nil {
		t.Fatalf("BeginTx: %v", err)
	}
	return tx
}

func TestCreateRequest_Success(t *testing.T) {
	repo, mock := newRequestRepo(t)
	tx := beginTx(t, repo, mock)
	mock.ExpectExec("INSERT INTO requests").
		WillReturnResult(sqlmock.NewResult(0, 1))

	req := &models.Request{
		UserID:    "user-1",
		Kind:      models.RequestKindTopic,
		Payload:   []byte(`{"topic_name":"orders.events"}`),
		Rationale: "need a topic for order events",
	}
	if err := repo.Create(context.Background(), tx, req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.ID == "" {
		t.Error("expected generated ID, got empty")
	}
	if req.Status != models.RequestStatusPending {
		t.Errorf("Status = %s, want PENDING", req.Status)
	}
}

func TestGetRequestByID_Found(t *testing.T) {
	repo, mock := newRequestRepo(t)
	mock.ExpectQuery("SELECT.*FROM requests r.*JOIN users u.*WHERE r.id").
		WillReturnRows(sampleRequestRow(models.RequestStatusPending))

	req, err := repo.GetByID(context.Background(), "req-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req == nil {
		t.Fatal("expected request, got nil")
	}
	if req.RequesterUsername != "jdoe" {
		t.Errorf("RequesterUsername = %s, want jdoe", req.RequesterUsername)
	}
}

func TestGetRequestByID_NotFound(t *testing.T) {
	repo, mock := newRequestRepo(t)
	mock.ExpectQuery("SELECT.*FROM requests r.*JOIN users u.*WHERE r.id").
		WillReturnRows(sqlmock.NewRows(requestCols))

	req, err := repo.GetByID(context.Background(), "ghost")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req != nil {
		t.Error("expected nil, got non-nil")
	}
}

func TestListRequests_FiltersByOwnerAndStatus(t *testing.T) {
	repo, mock := newRequestRepo(t)
	mock.ExpectQuery(`SELECT.*FROM requests r.*AND r\.user_id = \$1 AND r\.status = \$2.*ORDER BY r\.created_at DESC`).
		WithArgs("user-1", models.RequestStatusPending).
		WillReturnRows(sampleRequestRow(models.RequestStatusPending))

	requests, err := repo.List(context.Background(), RequestFilters{
		UserID: "user-1",
		Status: models.RequestStatusPending,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(requests) != 1 {
		t.Fatalf("len = %d, want 1", len(requests))
	}
}

func TestListRequests_NoFilters(t *testing.T) {
	repo, mock := newRequestRepo(t)
	mock.ExpectQuery(`SELECT.*FROM requests r.*ORDER BY r\.created_at DESC`).
		WillReturnRows(sqlmock.NewRows(requestCols))

	requests, err := repo.List(context.Background(), RequestFilters{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(requests) != 0 {
		t.Errorf("len = %d, want 0", len(requests))
	}
}

func TestGetForUpdate_Locked(t *testing.T) {
	repo, mock := newRequestRepo(t)
	tx := beginTx(t, repo, mock)
	mock.ExpectQuery("SELECT.*FROM requests.*FOR UPDATE").
		WithArgs("req-1").
		WillReturnRows(sampleLockedRow())

	req, err := repo.GetForUpdate(context.Background(), tx, "req-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req == nil {
		t.Fatal("expected request, got nil")
	}
	if req.Status != models.RequestStatusPending {
		t.Errorf("Status = %s, want PENDING", req.Status)
	}
}

func TestGetForUpdate_Missing(t *testing.T) {
	repo, mock := newRequestRepo(t)
	tx := beginTx(t, repo, mock)
	mock.ExpectQuery("SELECT.*FROM requests.*FOR UPDATE").
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows(requestLockCols))

	req, err := repo.GetForUpdate(context.Background(), tx, "ghost")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req != nil {
		t.Error("expected nil for missing row, got non-nil")
	}
}

func TestMarkApproved_Success(t *testing.T) {
	repo, mock := newRequestRepo(t)
	tx := beginTx(t, repo, mock)
	mock.ExpectExec("UPDATE requests").
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := repo.MarkApproved(context.Background(), tx, "req-1", "admin-1", time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Error("expected transition to apply")
	}
}

func TestMarkApproved_LostRace(t *testing.T) {
	repo, mock := newRequestRepo(t)
	tx := beginTx(t, repo, mock)
	mock.ExpectExec("UPDATE requests").
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repo.MarkApproved(context.Background(), tx, "req-1", "admin-1", time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("expected no-op when status guard rejects the update")
	}
}

func TestMarkRejected_Success(t *testing.T) {
	repo, mock := newRequestRepo(t)
	tx := beginTx(t, repo, mock)
	mock.ExpectExec("UPDATE requests").
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := repo.MarkRejected(context.Background(), tx, "req-1", "admin-1", "quota exceeded", time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Error("expected transition to apply")
	}
}

func TestMarkCancelled_WrongOwner(t *testing.T) {
	repo, mock := newRequestRepo(t)
	tx := beginTx(t, repo, mock)
	mock.ExpectExec("UPDATE requests").
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repo.MarkCancelled(context.Background(), tx, "req-1", "someone-else")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("expected no-op for non-owner cancel")
	}
}
