// Package kafka provisions broker resources for approved requests.
//
// The package wraps sarama's cluster admin client behind the Provisioner
// interface so the approval flow can be tested against a fake, and so the
// connection lifecycle is owned by whoever wired the service up rather than a
// package-level singleton.
package kafka

import (
	"context"
	"fmt"

	"github.com/kafka-portal/kafka-portal/internal/db/models"
)

// OutcomeCode classifies the result of a provisioning call. The classification
// comes from broker error codes, never from matching error message text.
type OutcomeCode string

const (
	// OutcomeOK means the resource was created.
	OutcomeOK OutcomeCode = "ok"
	// OutcomeAlreadyExists means the resource was present before the call.
	// Treated as success: the desired state holds.
	OutcomeAlreadyExists OutcomeCode = "already_exists"
	// OutcomeAuthorizationDisabled means the cluster runs without an
	// authorizer, so an ACL cannot be installed. Treated as success so an
	// approval on such a cluster does not wedge the request.
	OutcomeAuthorizationDisabled OutcomeCode = "authorization_disabled"
	// OutcomeUnauthorized means the portal's own credentials lack permission.
	OutcomeUnauthorized OutcomeCode = "unauthorized"
	// OutcomeUnavailable means the cluster could not be reached or did not
	// answer in time.
	OutcomeUnavailable OutcomeCode = "unavailable"
	// OutcomeFailed covers everything else the broker rejected.
	OutcomeFailed OutcomeCode = "failed"
)

// Applied reports whether the outcome leaves the cluster in the requested
// state, i.e. whether an approval may commit.
func (c OutcomeCode) Applied() bool {
	switch c {
	case OutcomeOK, OutcomeAlreadyExists, OutcomeAuthorizationDisabled:
		return true
	}
	return false
}

// TopicSpec describes a topic to create.
type TopicSpec struct {
	Name              string
	Partitions        int32
	ReplicationFactor int16
	Config            map[string]string
}

// ACLSpec describes an access-control entry to create.
type ACLSpec struct {
	Principal    string
	HostPattern  string
	Operation    models.ACLOperation
	ResourceType models.ACLResourceType
	ResourceName string
}

// TopicInfo summarizes an existing topic for the admin read endpoints.
type TopicInfo struct {
	Name              string `json:"name"`
	Partitions        int32  `json:"partitions"`
	ReplicationFactor int16  `json:"replication_factor"`
}

// ACLInfo summarizes an existing access-control entry.
type ACLInfo struct {
	Principal      string `json:"principal"`
	Host           string `json:"host"`
	Operation      string `json:"operation"`
	PermissionType string `json:"permission_type"`
	ResourceType   string `json:"resource_type"`
	ResourceName   string `json:"resource_name"`
}

// ClusterInfo summarizes the cluster for the admin read endpoints.
type ClusterInfo struct {
	ControllerID int32        `json:"controller_id"`
	Brokers      []BrokerInfo `json:"brokers"`
}

// BrokerInfo is one broker in a ClusterInfo.
type BrokerInfo struct {
	ID   int32  `json:"id"`
	Addr string `json:"addr"`
}

// Provisioner applies approved requests to the cluster and serves the admin
// read endpoints. Implementations must be safe for concurrent use.
type Provisioner interface {
	// CreateTopic creates a topic. The outcome is always meaningful; err is
	// non-nil only when the outcome does not apply the requested state.
	CreateTopic(ctx context.Context, spec TopicSpec) (OutcomeCode, error)
	// CreateACL installs an access-control entry, with the same contract as
	// CreateTopic.
	CreateACL(ctx context.Context, spec ACLSpec) (OutcomeCode, error)

	ListTopics(ctx context.Context) ([]TopicInfo, error)
	ListACLs(ctx context.Context) ([]ACLInfo, error)
	DescribeCluster(ctx context.Context) (*ClusterInfo, error)

	// Ping verifies the cluster connection, for readiness checks.
	Ping(ctx context.Context) error
	// Reconnect replaces the underlying connection after an outage.
	Reconnect() error
	// Close releases the underlying connection.
	Close() error
}

// ProvisionFor converts a request's decoded payload into the matching
// provisioning call.
func ProvisionFor(ctx context.Context, p Provisioner, kind models.RequestKind, topic *models.TopicPayload, acl *models.ACLPayload) (OutcomeCode, error) {
	switch kind {
	case models.RequestKindTopic:
		return p.CreateTopic(ctx, TopicSpec{
			Name:              topic.TopicName,
			Partitions:        topic.Partitions,
			ReplicationFactor: topic.ReplicationFactor,
			Config:            topic.Config,
		})
	case models.RequestKindACL:
		return p.CreateACL(ctx, ACLSpec{
			Principal:    acl.Principal,
			HostPattern:  acl.HostPattern,
			Operation:    acl.Operation,
			ResourceType: acl.ResourceType,
			ResourceName: acl.ResourceName,
		})
	}
	return OutcomeFailed, fmt.Errorf("unknown request kind: %q", kind)
}
