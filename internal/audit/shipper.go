// Package audit ships committed audit trail entries to external destinations.
// The Postgres audit_log table is always the system of record; shipping exists
// because audit records have different consumers than application logs —
// security teams and SIEM pipelines rather than on-call engineers — and those
// consumers usually want a copy outside the application database. Shipping is
// best-effort: a failed delivery is logged and never affects the request that
// produced the entry.
package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/kafka-portal/kafka-portal/internal/config"
	"github.com/kafka-portal/kafka-portal/internal/db/models"
)

// Shipper delivers one committed audit entry to a destination.
// Implementations must be safe for concurrent use.
type Shipper interface {
	Ship(ctx context.Context, entry *models.AuditLog) error
	Close() error
}

// NewShipper builds a shipper from config. It returns nil when no destination
// is configured, which callers treat as shipping disabled.
func NewShipper(cfg config.AuditConfig) (Shipper, error) {
	var shippers []Shipper

	if cfg.FilePath != "" {
		fs, err := NewFileShipper(cfg.FilePath, cfg.FileMaxSizeMB)
		if err != nil {
			return nil, fmt.Errorf("failed to create file shipper: %w", err)
		}
		shippers = append(shippers, fs)
	}
	if cfg.WebhookURL != "" {
		shippers = append(shippers, NewWebhookShipper(cfg.WebhookURL, cfg.WebhookTimeout))
	}

	switch len(shippers) {
	case 0:
		return nil, nil
	case 1:
		return shippers[0], nil
	default:
		return &MultiShipper{shippers: shippers}, nil
	}
}

// MultiShipper fans one entry out to every configured destination. A failure
// on one destination does not stop delivery to the others.
type MultiShipper struct {
	shippers []Shipper
}

func (ms *MultiShipper) Ship(ctx context.Context, entry *models.AuditLog) error {
	var lastErr error
	for _, s := range ms.shippers {
		if err := s.Ship(ctx, entry); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

func (ms *MultiShipper) Close() error {
	var lastErr error
	for _, s := range ms.shippers {
		if err := s.Close(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// FileShipper appends entries as JSON lines to a local file, rotating it once
// it exceeds the configured size. Rotation keeps a single .1 backup; long-term
// retention is the log collector's job.
type FileShipper struct {
	path      string
	maxSizeMB int

	mu   sync.Mutex
	file *os.File
}

// NewFileShipper opens (or creates) the audit file in append mode.
func NewFileShipper(path string, maxSizeMB int) (*FileShipper, error) {
	if maxSizeMB <= 0 {
		maxSizeMB = 100
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit file: %w", err)
	}
	return &FileShipper{path: path, maxSizeMB: maxSizeMB, file: f}, nil
}

func (fs *FileShipper) Ship(_ context.Context, entry *models.AuditLog) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode audit entry: %w", err)
	}
	data = append(data, '\n')

	fs.mu.Lock()
	defer fs.mu.Unlock()

	if err := fs.rotateIfNeeded(int64(len(data))); err != nil {
		return err
	}
	if _, err := fs.file.Write(data); err != nil {
		return fmt.Errorf("failed to write audit entry: %w", err)
	}
	return nil
}

// rotateIfNeeded renames the current file to <path>.1 when the next write
// would push it past the size limit. Caller holds fs.mu.
func (fs *FileShipper) rotateIfNeeded(incoming int64) error {
	info, err := fs.file.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat audit file: %w", err)
	}
	if info.Size()+incoming < int64(fs.maxSizeMB)*1024*1024 {
		return nil
	}

	if err := fs.file.Close(); err != nil {
		return fmt.Errorf("failed to close audit file for rotation: %w", err)
	}
	if err := os.Rename(fs.path, fs.path+".1"); err != nil {
		return fmt.Errorf("failed to rotate audit file: %w", err)
	}
	f, err := os.OpenFile(fs.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return fmt.Errorf("failed to reopen audit file: %w", err)
	}
	fs.file = f
	return nil
}

func (fs *FileShipper) Close() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.file.Close()
}

// WebhookShipper POSTs each entry as a JSON document to a single endpoint.
type WebhookShipper struct {
	url    string
	client *http.Client
}

// NewWebhookShipper creates a shipper that delivers to the given URL.
func NewWebhookShipper(url string, timeout time.Duration) *WebhookShipper {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookShipper{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

func (ws *WebhookShipper) Ship(ctx context.Context, entry *models.AuditLog) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode audit entry: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ws.url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := ws.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to deliver audit entry: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("audit webhook returned status %d", resp.StatusCode)
	}
	return nil
}

func (ws *WebhookShipper) Close() error { return nil }
