// Package models - audit_log.go defines the AuditLog model for recording
// security-relevant events, capturing actor, action, affected resource, client
// IP, and arbitrary detail payload.
package models

import "time"

// Audit action labels written by the portal. Kept as constants so queries and
// tests never drift from what the services record.
const (
	ActionTopicRequestCreated = "TOPIC_REQUEST_CREATED"
	ActionACLRequestCreated   = "ACL_REQUEST_CREATED"
	ActionRequestApproved     = "REQUEST_APPROVED"
	ActionRequestRejected     = "REQUEST_REJECTED"
	ActionRequestCancelled    = "REQUEST_CANCELLED"
	ActionUserCreated         = "USER_CREATED"
	ActionUserRoleUpdated     = "USER_ROLE_UPDATED"
	ActionAdminBootstrapped   = "ADMIN_BOOTSTRAPPED"
)

// Audit resource types.
const (
	AuditResourceRequest = "REQUEST"
	AuditResourceUser    = "USER"
)

// AuditLog represents an immutable audit trail entry. Rows are append-only:
// no update or delete path exists in the repository layer, and the schema
// enforces the same at the database level.
type AuditLog struct {
	ID           string                 `db:"id" json:"id"`
	UserID       string                 `db:"user_id" json:"user_id"`
	Action       string                 `db:"action" json:"action"`
	ResourceType string                 `db:"resource_type" json:"resource_type"`
	ResourceID   *string                `db:"resource_id" json:"resource_id,omitempty"`
	Details      map[string]interface{} `db:"-" json:"details,omitempty"`
	IPAddress    *string                `db:"ip_address" json:"ip_address,omitempty"`
	CreatedAt    time.Time              `db:"created_at" json:"created_at"`

	// Username is populated from the users join on read paths. It is never
	// written to the audit_logs table.
	Username string `db:"username" json:"username,omitempty"`
}
