// Package models - request.go defines the Request model, the central entity of
// the portal, together with its kind-specific payloads and status state machine
// vocabulary.
package models

import (
	"fmt"
	"regexp"
	"time"
)

// RequestKind identifies what broker resource a request asks for.
type RequestKind string

const (
	RequestKindTopic RequestKind = "TOPIC"
	RequestKindACL   RequestKind = "ACL"
)

// Valid reports whether the kind is one of the known values.
func (k RequestKind) Valid() bool {
	return k == RequestKindTopic || k == RequestKindACL
}

// RequestStatus is the lifecycle state of a request.
//
// PENDING is the only non-terminal state. APPROVED, REJECTED, and CANCELLED are
// terminal: once reached, the request is permanently frozen.
type RequestStatus string

const (
	RequestStatusPending   RequestStatus = "PENDING"
	RequestStatusApproved  RequestStatus = "APPROVED"
	RequestStatusRejected  RequestStatus = "REJECTED"
	RequestStatusCancelled RequestStatus = "CANCELLED"
)

// Terminal reports whether no further transition is permitted from s.
func (s RequestStatus) Terminal() bool {
	return s == RequestStatusApproved || s == RequestStatusRejected || s == RequestStatusCancelled
}

// ACLOperation enumerates the broker operations an access-control entry can grant.
type ACLOperation string

const (
	ACLOperationRead          ACLOperation = "READ"
	ACLOperationWrite         ACLOperation = "WRITE"
	ACLOperationCreate        ACLOperation = "CREATE"
	ACLOperationDelete        ACLOperation = "DELETE"
	ACLOperationAlter         ACLOperation = "ALTER"
	ACLOperationDescribe      ACLOperation = "DESCRIBE"
	ACLOperationClusterAction ACLOperation = "CLUSTER_ACTION"
	ACLOperationAll           ACLOperation = "ALL"
)

// Valid reports whether the operation is one of the known values.
func (o ACLOperation) Valid() bool {
	switch o {
	case ACLOperationRead, ACLOperationWrite, ACLOperationCreate, ACLOperationDelete,
		ACLOperationAlter, ACLOperationDescribe, ACLOperationClusterAction, ACLOperationAll:
		return true
	}
	return false
}

// ACLResourceType enumerates the broker resource classes an entry can apply to.
type ACLResourceType string

const (
	ACLResourceTopic           ACLResourceType = "TOPIC"
	ACLResourceGroup           ACLResourceType = "GROUP"
	ACLResourceCluster         ACLResourceType = "CLUSTER"
	ACLResourceTransactionalID ACLResourceType = "TRANSACTIONAL_ID"
)

// Valid reports whether the resource type is one of the known values.
func (r ACLResourceType) Valid() bool {
	switch r {
	case ACLResourceTopic, ACLResourceGroup, ACLResourceCluster, ACLResourceTransactionalID:
		return true
	}
	return false
}

// topicNamePattern is the character set brokers accept for topic names.
var topicNamePattern = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)

const (
	// MinPartitions / MaxPartitions bound the partition count a self-service
	// request may ask for.
	MinPartitions = 1
	MaxPartitions = 100

	// MinReplicationFactor / MaxReplicationFactor bound the replication factor.
	MinReplicationFactor = 1
	MaxReplicationFactor = 3

	// MaxTopicNameLength matches the broker's own limit.
	MaxTopicNameLength = 255
)

// TopicPayload is the kind-specific payload of a TOPIC request.
type TopicPayload struct {
	TopicName         string            `json:"topic_name"`
	Partitions        int32             `json:"partitions"`
	ReplicationFactor int16             `json:"replication_factor"`
	Config            map[string]string `json:"config,omitempty"`
	Description       string            `json:"description,omitempty"`
}

// Validate checks the payload against the self-service constraints.
func (p *TopicPayload) Validate() error {
	if p.TopicName == "" {
		return fmt.Errorf("topic_name is required")
	}
	if len(p.TopicName) > MaxTopicNameLength {
		return fmt.Errorf("topic_name exceeds %d characters", MaxTopicNameLength)
	}
	if !topicNamePattern.MatchString(p.TopicName) {
		return fmt.Errorf("topic_name may only contain letters, numbers, dots, underscores, and hyphens")
	}
	if p.Partitions < MinPartitions || p.Partitions > MaxPartitions {
		return fmt.Errorf("partitions must be between %d and %d", MinPartitions, MaxPartitions)
	}
	if p.ReplicationFactor < MinReplicationFactor || p.ReplicationFactor > MaxReplicationFactor {
		return fmt.Errorf("replication_factor must be between %d and %d", MinReplicationFactor, MaxReplicationFactor)
	}
	return nil
}

// ACLPayload is the kind-specific payload of an ACL request.
type ACLPayload struct {
	Principal    string          `json:"principal"`
	Operation    ACLOperation    `json:"operation"`
	ResourceType ACLResourceType `json:"resource_type"`
	ResourceName string          `json:"resource_name"`
	HostPattern  string          `json:"host_pattern"`
}

// Validate checks the payload and applies the wildcard host default.
func (p *ACLPayload) Validate() error {
	if p.Principal == "" {
		return fmt.Errorf("principal is required")
	}
	if !p.Operation.Valid() {
		return fmt.Errorf("unknown ACL operation: %q", p.Operation)
	}
	if !p.ResourceType.Valid() {
		return fmt.Errorf("unknown ACL resource type: %q", p.ResourceType)
	}
	if p.ResourceName == "" {
		return fmt.Errorf("resource_name is required")
	}
	if p.HostPattern == "" {
		p.HostPattern = "*"
	}
	return nil
}

// Rationale length bounds for all request kinds.
const (
	MinRationaleLength = 10
	MaxRationaleLength = 1000
)

// Request represents a self-service request for a broker resource. Payload holds
// the raw kind-specific JSON document; decode it with TopicPayload or ACLPayload
// according to Kind.
type Request struct {
	ID        string        `db:"id" json:"id"`
	UserID    string        `db:"user_id" json:"user_id"`
	Kind      RequestKind   `db:"kind" json:"kind"`
	Status    RequestStatus `db:"status" json:"status"`
	Payload   []byte        `db:"payload" json:"-"`
	Rationale string        `db:"rationale" json:"rationale"`

	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	ApprovedAt *time.Time `db:"approved_at" json:"approved_at,omitempty"`
	RejectedAt *time.Time `db:"rejected_at" json:"rejected_at,omitempty"`

	DecidedBy       *string `db:"decided_by" json:"decided_by,omitempty"`
	RejectionReason *string `db:"rejection_reason" json:"rejection_reason,omitempty"`

	// RequesterUsername is joined from users for list views, not stored on the row.
	RequesterUsername string `db:"requester_username" json:"requester_username,omitempty"`
}
