// admin.go implements Provisioner on top of sarama's ClusterAdmin.
package kafka

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/kafka-portal/kafka-portal/internal/config"
	"github.com/kafka-portal/kafka-portal/internal/db/models"
	"github.com/kafka-portal/kafka-portal/internal/telemetry"
)

// ClusterAdmin is the sarama-backed Provisioner. A single admin connection is
// shared behind a mutex; administrative traffic is low-volume enough that
// serializing calls is simpler than pooling.
type ClusterAdmin struct {
	cfg config.KafkaConfig

	mu    sync.Mutex
	admin sarama.ClusterAdmin
}

// NewClusterAdmin connects to the cluster and returns a ready Provisioner.
func NewClusterAdmin(cfg config.KafkaConfig) (*ClusterAdmin, error) {
	a := &ClusterAdmin{cfg: cfg}
	if err := a.connect(); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *ClusterAdmin) connect() error {
	config := sarama.NewConfig()
	config.ClientID = a.cfg.ClientID
	config.Admin.Timeout = a.cfg.AdminTimeout
	config.Net.DialTimeout = a.cfg.AdminTimeout
	config.Version = sarama.V2_8_0_0

	if a.cfg.SecurityProtocol == "tls" {
		config.Net.TLS.Enable = true
		config.Net.TLS.Config = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	admin, err := sarama.NewClusterAdmin(a.cfg.BootstrapServerList(), config)
	if err != nil {
		return fmt.Errorf("failed to connect cluster admin: %w", err)
	}

	a.admin = admin
	return nil
}

// Reconnect drops the current connection and establishes a fresh one. Callers
// use it after an unavailable outcome; a failed reconnect leaves the old
// (possibly broken) connection in place for the next attempt.
func (a *ClusterAdmin) Reconnect() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	old := a.admin
	if err := a.connect(); err != nil {
		return err
	}
	if old != nil {
		if err := old.Close(); err != nil {
			slog.Warn("failed to close stale cluster admin connection", "error", err)
		}
	}

	return nil
}

// Close releases the admin connection.
func (a *ClusterAdmin) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.admin == nil {
		return nil
	}
	err := a.admin.Close()
	a.admin = nil
	return err
}

// CreateTopic creates a topic and classifies the result.
func (a *ClusterAdmin) CreateTopic(ctx context.Context, spec TopicSpec) (OutcomeCode, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	detail := &sarama.TopicDetail{
		NumPartitions:     spec.Partitions,
		ReplicationFactor: spec.ReplicationFactor,
	}
	if len(spec.Config) > 0 {
		detail.ConfigEntries = make(map[string]*string, len(spec.Config))
		for k, v := range spec.Config {
			v := v
			detail.ConfigEntries[k] = &v
		}
	}

	start := time.Now()
	err := a.admin.CreateTopic(spec.Name, detail, false)
	return a.finish("create_topic", start, err)
}

// CreateACL installs an access-control entry and classifies the result.
func (a *ClusterAdmin) CreateACL(ctx context.Context, spec ACLSpec) (OutcomeCode, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	resource := sarama.Resource{
		ResourceType:        resourceTypeToSarama(spec.ResourceType),
		ResourceName:        spec.ResourceName,
		ResourcePatternType: sarama.AclPatternLiteral,
	}
	acl := sarama.Acl{
		Principal:      spec.Principal,
		Host:           spec.HostPattern,
		Operation:      operationToSarama(spec.Operation),
		PermissionType: sarama.AclPermissionAllow,
	}

	start := time.Now()
	err := a.admin.CreateACL(resource, acl)
	return a.finish("create_acl", start, err)
}

// finish records metrics for a provisioning call and maps its error to an
// outcome. Must be called with the mutex held.
func (a *ClusterAdmin) finish(operation string, start time.Time, err error) (OutcomeCode, error) {
	outcome := Classify(err)
	telemetry.ProvisionDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	telemetry.ProvisionOutcomesTotal.WithLabelValues(operation, string(outcome)).Inc()

	if outcome.Applied() {
		if outcome != OutcomeOK {
			slog.Info("provisioning outcome treated as success",
				"operation", operation, "outcome", string(outcome))
		}
		return outcome, nil
	}

	return outcome, err
}

// ListTopics returns every topic the portal's credentials can see.
func (a *ClusterAdmin) ListTopics(ctx context.Context) ([]TopicInfo, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	details, err := a.admin.ListTopics()
	if err != nil {
		return nil, fmt.Errorf("failed to list topics: %w", err)
	}

	topics := make([]TopicInfo, 0, len(details))
	for name, d := range details {
		topics = append(topics, TopicInfo{
			Name:              name,
			Partitions:        d.NumPartitions,
			ReplicationFactor: d.ReplicationFactor,
		})
	}

	return topics, nil
}

// ListACLs returns every access-control entry on the cluster.
func (a *ClusterAdmin) ListACLs(ctx context.Context) ([]ACLInfo, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	filter := sarama.AclFilter{
		ResourceType:              sarama.AclResourceAny,
		ResourcePatternTypeFilter: sarama.AclPatternAny,
		Operation:                 sarama.AclOperationAny,
		PermissionType:            sarama.AclPermissionAny,
	}

	resourceACLs, err := a.admin.ListAcls(filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list ACLs: %w", err)
	}

	var acls []ACLInfo
	for _, r := range resourceACLs {
		for _, entry := range r.Acls {
			acls = append(acls, ACLInfo{
				Principal:      entry.Principal,
				Host:           entry.Host,
				Operation:      entry.Operation.String(),
				PermissionType: entry.PermissionType.String(),
				ResourceType:   r.ResourceType.String(),
				ResourceName:   r.ResourceName,
			})
		}
	}

	return acls, nil
}

// DescribeCluster returns broker and controller information.
func (a *ClusterAdmin) DescribeCluster(ctx context.Context) (*ClusterInfo, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	brokers, controllerID, err := a.admin.DescribeCluster()
	if err != nil {
		return nil, fmt.Errorf("failed to describe cluster: %w", err)
	}

	info := &ClusterInfo{ControllerID: controllerID}
	for _, b := range brokers {
		info.Brokers = append(info.Brokers, BrokerInfo{ID: b.ID(), Addr: b.Addr()})
	}

	return info, nil
}

// Ping verifies the connection by asking the cluster to describe itself.
func (a *ClusterAdmin) Ping(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	_, _, err := a.admin.DescribeCluster()
	return err
}

// Classify maps a sarama error to an OutcomeCode using broker error codes.
func Classify(err error) OutcomeCode {
	if err == nil {
		return OutcomeOK
	}

	var topicErr *sarama.TopicError
	if errors.As(err, &topicErr) {
		return classifyKError(topicErr.Err)
	}

	var kerr sarama.KError
	if errors.As(err, &kerr) {
		return classifyKError(kerr)
	}

	if errors.Is(err, sarama.ErrOutOfBrokers) || errors.Is(err, sarama.ErrClosedClient) {
		return OutcomeUnavailable
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return OutcomeUnavailable
	}

	return OutcomeFailed
}

func classifyKError(kerr sarama.KError) OutcomeCode {
	switch kerr {
	case sarama.ErrNoError:
		return OutcomeOK
	case sarama.ErrTopicAlreadyExists:
		return OutcomeAlreadyExists
	case sarama.ErrSecurityDisabled:
		return OutcomeAuthorizationDisabled
	case sarama.ErrClusterAuthorizationFailed, sarama.ErrTopicAuthorizationFailed:
		return OutcomeUnauthorized
	case sarama.ErrRequestTimedOut, sarama.ErrBrokerNotAvailable,
		sarama.ErrLeaderNotAvailable, sarama.ErrNotController,
		sarama.ErrNetworkException:
		return OutcomeUnavailable
	default:
		return OutcomeFailed
	}
}

func operationToSarama(op models.ACLOperation) sarama.AclOperation {
	switch op {
	case models.ACLOperationRead:
		return sarama.AclOperationRead
	case models.ACLOperationWrite:
		return sarama.AclOperationWrite
	case models.ACLOperationCreate:
		return sarama.AclOperationCreate
	case models.ACLOperationDelete:
		return sarama.AclOperationDelete
	case models.ACLOperationAlter:
		return sarama.AclOperationAlter
	case models.ACLOperationDescribe:
		return sarama.AclOperationDescribe
	case models.ACLOperationClusterAction:
		return sarama.AclOperationClusterAction
	case models.ACLOperationAll:
		return sarama.AclOperationAll
	default:
		return sarama.AclOperationUnknown
	}
}

func resourceTypeToSarama(rt models.ACLResourceType) sarama.AclResourceType {
	switch rt {
	case models.ACLResourceTopic:
		return sarama.AclResourceTopic
	case models.ACLResourceGroup:
		return sarama.AclResourceGroup
	case models.ACLResourceCluster:
		return sarama.AclResourceCluster
	case models.ACLResourceTransactionalID:
		return sarama.AclResourceTransactionalID
	default:
		return sarama.AclResourceUnknown
	}
}
