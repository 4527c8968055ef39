// request_service.go implements the request lifecycle: submission, listing,
// and the approve/reject/cancel transitions.
//
// Locking model: a decision locks the request row with SELECT ... FOR UPDATE
// and holds the lock across the provisioning call, so concurrent decisions on
// one request serialize and exactly one wins. Provisioning happens before the
// local transition commits: the record never says APPROVED for a resource the
// cluster provably does not have, and a cluster outage leaves the request
// PENDING for a later retry.
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jmoiron/sqlx"
	"github.com/kafka-portal/kafka-portal/internal/apperr"
	"github.com/kafka-portal/kafka-portal/internal/db/models"
	"github.com/kafka-portal/kafka-portal/internal/db/repositories"
	"github.com/kafka-portal/kafka-portal/internal/kafka"
	"github.com/kafka-portal/kafka-portal/internal/safego"
	"github.com/kafka-portal/kafka-portal/internal/telemetry"
)

// RequestService owns the request state machine.
type RequestService struct {
	requests    *repositories.RequestRepository
	audit       *AuditRecorder
	provisioner kafka.Provisioner
}

// NewRequestService creates a RequestService.
func NewRequestService(requests *repositories.RequestRepository, audit *AuditRecorder, provisioner kafka.Provisioner) *RequestService {
	return &RequestService{requests: requests, audit: audit, provisioner: provisioner}
}

// validateRationale bounds the rationale in characters, not bytes, so a
// multibyte rationale is judged by its visible length.
func validateRationale(rationale string) error {
	n := utf8.RuneCountInString(strings.TrimSpace(rationale))
	if n < models.MinRationaleLength || n > models.MaxRationaleLength {
		return apperr.Newf(apperr.KindValidation, "rationale must be between %d and %d characters",
			models.MinRationaleLength, models.MaxRationaleLength)
	}
	return nil
}

// SubmitTopic creates a PENDING topic request.
func (s *RequestService) SubmitTopic(ctx context.Context, user *models.User, payload *models.TopicPayload, rationale, clientIP string) (*models.Request, error) {
	if err := validateRationale(rationale); err != nil {
		return nil, err
	}
	if err := payload.Validate(); err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, err.Error(), err)
	}

	details := map[string]interface{}{
		"topic_name":         payload.TopicName,
		"partitions":         payload.Partitions,
		"replication_factor": payload.ReplicationFactor,
	}

	return s.submit(ctx, user, models.RequestKindTopic, payload, rationale, models.ActionTopicRequestCreated, details, clientIP)
}

// SubmitACL creates a PENDING ACL request.
func (s *RequestService) SubmitACL(ctx context.Context, user *models.User, payload *models.ACLPayload, rationale, clientIP string) (*models.Request, error) {
	if err := validateRationale(rationale); err != nil {
		return nil, err
	}
	if err := payload.Validate(); err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, err.Error(), err)
	}

	details := map[string]interface{}{
		"principal":     payload.Principal,
		"operation":     payload.Operation,
		"resource_type": payload.ResourceType,
		"resource_name": payload.ResourceName,
	}

	return s.submit(ctx, user, models.RequestKindACL, payload, rationale, models.ActionACLRequestCreated, details, clientIP)
}

// submit persists the request and its audit entry in one transaction. A failed
// audit append fails the whole submission.
func (s *RequestService) submit(ctx context.Context, user *models.User, kind models.RequestKind, payload interface{}, rationale, action string, details map[string]interface{}, clientIP string) (*models.Request, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, "failed to encode request payload", err)
	}

	req := &models.Request{
		UserID:    user.ID,
		Kind:      kind,
		Payload:   raw,
		Rationale: strings.TrimSpace(rationale),
	}

	tx, err := s.requests.BeginTx(ctx)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, "failed to begin transaction", err)
	}
	defer tx.Rollback()

	if err := s.requests.Create(ctx, tx, req); err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, "failed to create request", err)
	}

	entry := &models.AuditLog{
		UserID:       user.ID,
		Action:       action,
		ResourceType: models.AuditResourceRequest,
		ResourceID:   &req.ID,
		Details:      details,
		IPAddress:    optionalIP(clientIP),
	}
	if err := s.audit.Append(ctx, tx, entry); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, "failed to commit request", err)
	}

	telemetry.RequestSubmissionsTotal.WithLabelValues(string(kind)).Inc()
	s.audit.ShipCommitted(entry)
	req.RequesterUsername = user.Username

	slog.Info("request submitted", "request_id", req.ID, "kind", string(kind), "user", user.Username)
	return req, nil
}

// List returns requests visible to the actor, newest first. Non-admins only
// ever see their own.
func (s *RequestService) List(ctx context.Context, actor *models.User, filters repositories.RequestFilters) ([]*models.Request, error) {
	if !actor.IsAdmin {
		filters.UserID = actor.ID
	}

	requests, err := s.requests.List(ctx, filters)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, "failed to list requests", err)
	}

	return requests, nil
}

// Get returns a single request. A request owned by someone else looks
// identical to a missing one for non-admins.
func (s *RequestService) Get(ctx context.Context, actor *models.User, id string) (*models.Request, error) {
	req, err := s.requests.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, "failed to get request", err)
	}
	if req == nil {
		return nil, apperr.New(apperr.KindNotFound, "request not found")
	}
	if !actor.IsAdmin && req.UserID != actor.ID {
		return nil, apperr.New(apperr.KindNotFound, "request not found")
	}

	return req, nil
}

// Approve provisions the requested resource and, on success or an outcome on
// the soft-failure allowlist (already exists, cluster has authorization
// disabled), commits the APPROVED transition with its audit entry. Any other
// provisioning outcome rolls everything back and leaves the request PENDING.
func (s *RequestService) Approve(ctx context.Context, admin *models.User, id, clientIP string) (*models.Request, error) {
	tx, err := s.requests.BeginTx(ctx)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, "failed to begin transaction", err)
	}
	defer tx.Rollback()

	req, err := s.lockPending(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	topic, acl, err := decodePayload(req)
	if err != nil {
		return nil, err
	}

	outcome, provErr := kafka.ProvisionFor(ctx, s.provisioner, req.Kind, topic, acl)
	if !outcome.Applied() {
		slog.Warn("provisioning failed, request stays pending",
			"request_id", req.ID, "kind", string(req.Kind), "outcome", string(outcome), "error", provErr)
		if outcome == kafka.OutcomeUnavailable {
			// A fresh connection gives the retried approval a chance.
			safego.Go(func() {
				if err := s.provisioner.Reconnect(); err != nil {
					slog.Warn("broker reconnect failed", "error", err)
				}
			})
		}
		return nil, apperr.Wrap(apperr.KindUpstream,
			fmt.Sprintf("provisioning failed (%s); the request remains pending and the approval can be retried", outcome), provErr)
	}

	now := time.Now()
	applied, err := s.requests.MarkApproved(ctx, tx, req.ID, admin.ID, now)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, "failed to approve request", err)
	}
	if !applied {
		// The row lock makes this unreachable; the status guard stays as a
		// second line of defense.
		return nil, apperr.New(apperr.KindConflict, "request was decided concurrently")
	}

	entry := &models.AuditLog{
		UserID:       admin.ID,
		Action:       models.ActionRequestApproved,
		ResourceType: models.AuditResourceRequest,
		ResourceID:   &req.ID,
		Details: map[string]interface{}{
			"kind":                string(req.Kind),
			"provisioning_result": string(outcome),
		},
		IPAddress: optionalIP(clientIP),
	}
	if err := s.audit.Append(ctx, tx, entry); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, "failed to commit approval", err)
	}

	telemetry.RequestDecisionsTotal.WithLabelValues(string(req.Kind), "approved").Inc()
	s.audit.ShipCommitted(entry)

	req.Status = models.RequestStatusApproved
	req.ApprovedAt = &now
	req.DecidedBy = &admin.ID

	slog.Info("request approved", "request_id", req.ID, "kind", string(req.Kind),
		"admin", admin.Username, "outcome", string(outcome))
	return req, nil
}

// Reject commits the REJECTED transition with the admin's reason. No
// provisioning side effect.
func (s *RequestService) Reject(ctx context.Context, admin *models.User, id, reason, clientIP string) (*models.Request, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperr.New(apperr.KindValidation, "rejection_reason is required")
	}

	tx, err := s.requests.BeginTx(ctx)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, "failed to begin transaction", err)
	}
	defer tx.Rollback()

	req, err := s.lockPending(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	applied, err := s.requests.MarkRejected(ctx, tx, req.ID, admin.ID, reason, now)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, "failed to reject request", err)
	}
	if !applied {
		return nil, apperr.New(apperr.KindConflict, "request was decided concurrently")
	}

	entry := &models.AuditLog{
		UserID:       admin.ID,
		Action:       models.ActionRequestRejected,
		ResourceType: models.AuditResourceRequest,
		ResourceID:   &req.ID,
		Details: map[string]interface{}{
			"kind":   string(req.Kind),
			"reason": reason,
		},
		IPAddress: optionalIP(clientIP),
	}
	if err := s.audit.Append(ctx, tx, entry); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, "failed to commit rejection", err)
	}

	telemetry.RequestDecisionsTotal.WithLabelValues(string(req.Kind), "rejected").Inc()
	s.audit.ShipCommitted(entry)

	req.Status = models.RequestStatusRejected
	req.RejectedAt = &now
	req.DecidedBy = &admin.ID
	req.RejectionReason = &reason

	slog.Info("request rejected", "request_id", req.ID, "kind", string(req.Kind), "admin", admin.Username)
	return req, nil
}

// Cancel lets the owner withdraw a still-pending request.
func (s *RequestService) Cancel(ctx context.Context, owner *models.User, id, clientIP string) (*models.Request, error) {
	tx, err := s.requests.BeginTx(ctx)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, "failed to begin transaction", err)
	}
	defer tx.Rollback()

	req, err := s.requests.GetForUpdate(ctx, tx, id)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, "failed to load request", err)
	}
	if req == nil || req.UserID != owner.ID {
		// A foreign request is indistinguishable from a missing one.
		return nil, apperr.New(apperr.KindNotFound, "request not found")
	}
	if req.Status.Terminal() {
		return nil, apperr.Newf(apperr.KindConflict, "request is already %s", req.Status)
	}

	applied, err := s.requests.MarkCancelled(ctx, tx, req.ID, owner.ID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, "failed to cancel request", err)
	}
	if !applied {
		return nil, apperr.New(apperr.KindConflict, "request was decided concurrently")
	}

	entry := &models.AuditLog{
		UserID:       owner.ID,
		Action:       models.ActionRequestCancelled,
		ResourceType: models.AuditResourceRequest,
		ResourceID:   &req.ID,
		Details:      map[string]interface{}{"kind": string(req.Kind)},
		IPAddress:    optionalIP(clientIP),
	}
	if err := s.audit.Append(ctx, tx, entry); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, "failed to commit cancellation", err)
	}

	telemetry.RequestDecisionsTotal.WithLabelValues(string(req.Kind), "cancelled").Inc()
	s.audit.ShipCommitted(entry)

	req.Status = models.RequestStatusCancelled

	slog.Info("request cancelled", "request_id", req.ID, "kind", string(req.Kind), "user", owner.Username)
	return req, nil
}

// lockPending locks the row and verifies it is still open for a decision.
// Missing requests and other users' state are reported identically; a request
// already in a terminal state names that state.
func (s *RequestService) lockPending(ctx context.Context, tx *sqlx.Tx, id string) (*models.Request, error) {
	req, err := s.requests.GetForUpdate(ctx, tx, id)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, "failed to load request", err)
	}
	if req == nil {
		return nil, apperr.New(apperr.KindNotFound, "request not found")
	}
	if req.Status.Terminal() {
		return nil, apperr.Newf(apperr.KindConflict, "request is already %s", req.Status)
	}

	return req, nil
}

func decodePayload(req *models.Request) (*models.TopicPayload, *models.ACLPayload, error) {
	switch req.Kind {
	case models.RequestKindTopic:
		var p models.TopicPayload
		if err := json.Unmarshal(req.Payload, &p); err != nil {
			return nil, nil, apperr.Wrap(apperr.KindStorage, "stored topic payload is unreadable", err)
		}
		return &p, nil, nil
	case models.RequestKindACL:
		var p models.ACLPayload
		if err := json.Unmarshal(req.Payload, &p); err != nil {
			return nil, nil, apperr.Wrap(apperr.KindStorage, "stored ACL payload is unreadable", err)
		}
		return nil, &p, nil
	}
	return nil, nil, apperr.Newf(apperr.KindStorage, "unknown request kind: %q", req.Kind)
}

func optionalIP(ip string) *string {
	if ip == "" {
		return nil
	}
	return &ip
}
