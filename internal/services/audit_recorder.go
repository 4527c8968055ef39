// Package services implements higher-level business logic that coordinates across multiple repositories and external systems.
// The request service, for example, orchestrates locking a pending request, provisioning the broker resource, committing the state transition, and appending the audit entry — a multi-step operation that spans several domain boundaries.
package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/kafka-portal/kafka-portal/internal/apperr"
	"github.com/kafka-portal/kafka-portal/internal/audit"
	"github.com/kafka-portal/kafka-portal/internal/db/models"
	"github.com/kafka-portal/kafka-portal/internal/db/repositories"
	"github.com/kafka-portal/kafka-portal/internal/safego"
)

// AuditRecorder appends entries to the immutable audit trail. When an entry
// describes a database mutation, callers pass that mutation's transaction so
// the entry commits or rolls back with it: an audited action either happens
// with its audit record or not at all.
type AuditRecorder struct {
	repo    *repositories.AuditRepository
	shipper audit.Shipper
}

// NewAuditRecorder creates an AuditRecorder. shipper may be nil, which
// disables external shipping.
func NewAuditRecorder(repo *repositories.AuditRepository, shipper audit.Shipper) *AuditRecorder {
	return &AuditRecorder{repo: repo, shipper: shipper}
}

// Append writes an entry inside the caller's transaction.
func (r *AuditRecorder) Append(ctx context.Context, tx repositories.Execer, entry *models.AuditLog) error {
	if err := r.repo.Append(ctx, tx, entry); err != nil {
		return apperr.Wrap(apperr.KindStorage, "failed to record audit entry", err)
	}
	return nil
}

// AppendStandalone writes an entry with no surrounding transaction, for
// actions that do not mutate the database (e.g. login events). The entry ships
// immediately since there is no commit to wait for.
func (r *AuditRecorder) AppendStandalone(ctx context.Context, entry *models.AuditLog) error {
	if err := r.repo.AppendStandalone(ctx, entry); err != nil {
		return apperr.Wrap(apperr.KindStorage, "failed to record audit entry", err)
	}
	r.ShipCommitted(entry)
	return nil
}

// ShipCommitted forwards a committed entry to the external sinks, if any are
// configured. Services call it after the surrounding transaction commits;
// delivery runs in the background and failures only produce a log line.
func (r *AuditRecorder) ShipCommitted(entry *models.AuditLog) {
	if r.shipper == nil {
		return
	}
	safego.Go(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := r.shipper.Ship(ctx, entry); err != nil {
			slog.Warn("audit shipping failed", "action", entry.Action, "error", err)
		}
	})
}

// List exposes the trail for the admin audit endpoint.
func (r *AuditRecorder) List(ctx context.Context, filters repositories.AuditFilters) ([]*models.AuditLog, error) {
	entries, err := r.repo.List(ctx, filters)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, "failed to list audit entries", err)
	}
	return entries, nil
}
