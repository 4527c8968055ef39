package kafka

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/IBM/sarama"
	"github.com/kafka-portal/kafka-portal/internal/db/models"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want OutcomeCode
	}{
		{"nil", nil, OutcomeOK},
		{"topic already exists", &sarama.TopicError{Err: sarama.ErrTopicAlreadyExists}, OutcomeAlreadyExists},
		{"security disabled", sarama.ErrSecurityDisabled, OutcomeAuthorizationDisabled},
		{"cluster authorization failed", sarama.ErrClusterAuthorizationFailed, OutcomeUnauthorized},
		{"topic authorization failed", &sarama.TopicError{Err: sarama.ErrTopicAuthorizationFailed}, OutcomeUnauthorized},
		{"out of brokers", sarama.ErrOutOfBrokers, OutcomeUnavailable},
		{"request timed out", sarama.ErrRequestTimedOut, OutcomeUnavailable},
		{"wrapped kerror", fmt.Errorf("create failed: %w", sarama.ErrTopicAlreadyExists), OutcomeAlreadyExists},
		{"invalid partitions", &sarama.TopicError{Err: sarama.ErrInvalidPartitions}, OutcomeFailed},
		{"plain error", errors.New("boom"), OutcomeFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify(%v) = %s, want %s", tt.err, got, tt.want)
			}
		})
	}
}

func TestOutcomeApplied(t *testing.T) {
	applied := []OutcomeCode{OutcomeOK, OutcomeAlreadyExists, OutcomeAuthorizationDisabled}
	for _, c := range applied {
		if !c.Applied() {
			t.Errorf("%s.Applied() = false, want true", c)
		}
	}

	notApplied := []OutcomeCode{OutcomeUnauthorized, OutcomeUnavailable, OutcomeFailed}
	for _, c := range notApplied {
		if c.Applied() {
			t.Errorf("%s.Applied() = true, want false", c)
		}
	}
}

func TestOperationToSarama(t *testing.T) {
	tests := []struct {
		op   models.ACLOperation
		want sarama.AclOperation
	}{
		{models.ACLOperationRead, sarama.AclOperationRead},
		{models.ACLOperationWrite, sarama.AclOperationWrite},
		{models.ACLOperationClusterAction, sarama.AclOperationClusterAction},
		{models.ACLOperationAll, sarama.AclOperationAll},
		{models.ACLOperation("BOGUS"), sarama.AclOperationUnknown},
	}

	for _, tt := range tests {
		if got := operationToSarama(tt.op); got != tt.want {
			t.Errorf("operationToSarama(%s) = %v, want %v", tt.op, got, tt.want)
		}
	}
}

func TestResourceTypeToSarama(t *testing.T) {
	tests := []struct {
		rt   models.ACLResourceType
		want sarama.AclResourceType
	}{
		{models.ACLResourceTopic, sarama.AclResourceTopic},
		{models.ACLResourceGroup, sarama.AclResourceGroup},
		{models.ACLResourceCluster, sarama.AclResourceCluster},
		{models.ACLResourceTransactionalID, sarama.AclResourceTransactionalID},
		{models.ACLResourceType("BOGUS"), sarama.AclResourceUnknown},
	}

	for _, tt := range tests {
		if got := resourceTypeToSarama(tt.rt); got != tt.want {
			t.Errorf("resourceTypeToSarama(%s) = %v, want %v", tt.rt, got, tt.want)
		}
	}
}

type fakeProvisioner struct {
	Provisioner
	topicSpec *TopicSpec
	aclSpec   *ACLSpec
}

func (f *fakeProvisioner) CreateTopic(_ context.Context, spec TopicSpec) (OutcomeCode, error) {
	f.topicSpec = &spec
	return OutcomeOK, nil
}

func (f *fakeProvisioner) CreateACL(_ context.Context, spec ACLSpec) (OutcomeCode, error) {
	f.aclSpec = &spec
	return OutcomeOK, nil
}

func TestProvisionFor_RoutesByKind(t *testing.T) {
	fake := &fakeProvisioner{}

	topic := &models.TopicPayload{TopicName: "orders.events", Partitions: 3, ReplicationFactor: 2}
	outcome, err := ProvisionFor(context.Background(), fake, models.RequestKindTopic, topic, nil)
	if err != nil || outcome != OutcomeOK {
		t.Fatalf("topic: outcome=%s err=%v", outcome, err)
	}
	if fake.topicSpec == nil || fake.topicSpec.Name != "orders.events" {
		t.Errorf("topic spec not forwarded: %+v", fake.topicSpec)
	}

	acl := &models.ACLPayload{
		Principal:    "User:svc-orders",
		Operation:    models.ACLOperationRead,
		ResourceType: models.ACLResourceTopic,
		ResourceName: "orders.events",
		HostPattern:  "*",
	}
	outcome, err = ProvisionFor(context.Background(), fake, models.RequestKindACL, nil, acl)
	if err != nil || outcome != OutcomeOK {
		t.Fatalf("acl: outcome=%s err=%v", outcome, err)
	}
	if fake.aclSpec == nil || fake.aclSpec.Principal != "User:svc-orders" {
		t.Errorf("acl spec not forwarded: %+v", fake.aclSpec)
	}
}

func TestProvisionFor_UnknownKind(t *testing.T) {
	outcome, err := ProvisionFor(context.Background(), &fakeProvisioner{}, models.RequestKind("BOGUS"), nil, nil)
	if err == nil {
		t.Error("expected error for unknown kind")
	}
	if outcome != OutcomeFailed {
		t.Errorf("outcome = %s, want failed", outcome)
	}
}
