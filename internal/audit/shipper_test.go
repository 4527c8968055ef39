package audit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kafka-portal/kafka-portal/internal/config"
	"github.com/kafka-portal/kafka-portal/internal/db/models"
)

func testEntry() *models.AuditLog {
	id := "req-1"
	return &models.AuditLog{
		ID:           "audit-1",
		UserID:       "u-1",
		Action:       models.ActionRequestApproved,
		ResourceType: models.AuditResourceRequest,
		ResourceID:   &id,
		CreatedAt:    time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC),
	}
}

func TestNewShipper_NoDestinationsReturnsNil(t *testing.T) {
	s, err := NewShipper(config.AuditConfig{})
	if err != nil {
		t.Fatalf("NewShipper: %v", err)
	}
	if s != nil {
		t.Errorf("expected nil shipper when nothing is configured")
	}
}

func TestFileShipper_WritesJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	fs, err := NewFileShipper(path, 10)
	if err != nil {
		t.Fatalf("NewFileShipper: %v", err)
	}
	defer fs.Close()

	entry := testEntry()
	if err := fs.Ship(context.Background(), entry); err != nil {
		t.Fatalf("Ship: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	var got models.AuditLog
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal written line: %v", err)
	}
	if got.Action != models.ActionRequestApproved {
		t.Errorf("action = %q, want %q", got.Action, models.ActionRequestApproved)
	}
	if data[len(data)-1] != '\n' {
		t.Errorf("entry is not newline-terminated")
	}
}

func TestFileShipper_RotatesAtSizeLimit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	fs, err := NewFileShipper(path, 1)
	if err != nil {
		t.Fatalf("NewFileShipper: %v", err)
	}
	defer fs.Close()

	// Force the size check over the 1 MB threshold so the next write rotates.
	fs.mu.Lock()
	if _, err := fs.file.Write(make([]byte, 1024*1024)); err != nil {
		fs.mu.Unlock()
		t.Fatalf("prefill: %v", err)
	}
	fs.mu.Unlock()

	if err := fs.Ship(context.Background(), testEntry()); err != nil {
		t.Fatalf("Ship: %v", err)
	}

	if _, err := os.Stat(path + ".1"); err != nil {
		t.Errorf("expected rotated backup at %s.1: %v", path, err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Size() >= 1024*1024 {
		t.Errorf("current file was not reset by rotation, size = %d", info.Size())
	}
}

func TestWebhookShipper_PostsEntry(t *testing.T) {
	var received models.AuditLog
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	ws := NewWebhookShipper(srv.URL, time.Second)
	if err := ws.Ship(context.Background(), testEntry()); err != nil {
		t.Fatalf("Ship: %v", err)
	}
	if received.UserID != "u-1" {
		t.Errorf("user_id = %q, want u-1", received.UserID)
	}
}

func TestWebhookShipper_ErrorStatusFailsDelivery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	ws := NewWebhookShipper(srv.URL, time.Second)
	if err := ws.Ship(context.Background(), testEntry()); err == nil {
		t.Errorf("expected error on 502 response")
	}
}

func TestMultiShipper_ContinuesPastFailures(t *testing.T) {
	srvDown := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srvDown.Close()

	var delivered int
	srvUp := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		delivered++
		w.WriteHeader(http.StatusOK)
	}))
	defer srvUp.Close()

	ms := &MultiShipper{shippers: []Shipper{
		NewWebhookShipper(srvDown.URL, time.Second),
		NewWebhookShipper(srvUp.URL, time.Second),
	}}

	if err := ms.Ship(context.Background(), testEntry()); err == nil {
		t.Errorf("expected aggregate error from failing destination")
	}
	if delivered != 1 {
		t.Errorf("healthy destination deliveries = %d, want 1", delivered)
	}
}
