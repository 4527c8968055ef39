package ldap

import (
	"context"
	"testing"

	goldap "github.com/go-ldap/ldap/v3"
	"github.com/kafka-portal/kafka-portal/internal/config"
)

const adminGroup = "cn=kafka-admins,ou=groups,dc=example,dc=com"

func TestMemberOf(t *testing.T) {
	tests := []struct {
		name   string
		groups []string
		want   bool
	}{
		{"exact match", []string{adminGroup}, true},
		{"case insensitive", []string{"CN=Kafka-Admins,OU=Groups,DC=example,DC=com"}, true},
		{"whitespace around separators", []string{"cn=kafka-admins, ou=groups, dc=example, dc=com"}, true},
		{"among other groups", []string{"cn=devs,ou=groups,dc=example,dc=com", adminGroup}, true},
		{"no match", []string{"cn=devs,ou=groups,dc=example,dc=com"}, false},
		{"empty", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := memberOf(tt.groups, adminGroup); got != tt.want {
				t.Errorf("memberOf(%v) = %v, want %v", tt.groups, got, tt.want)
			}
		})
	}
}

func testDirectory() *Directory {
	return NewDirectory(config.LDAPConfig{
		AdminGroupDN: adminGroup,
		EmailDomain:  "example.com",
	})
}

func TestIdentityFromEntry_MailAndAdmin(t *testing.T) {
	entry := goldap.NewEntry("uid=jdoe,ou=people,dc=example,dc=com", map[string][]string{
		"mail":     {"jane.doe@example.com"},
		"cn":       {"Jane Doe"},
		"memberOf": {"CN=Kafka-Admins,OU=Groups,DC=example,DC=com"},
	})

	id := testDirectory().identityFromEntry("jdoe", entry)
	if id.Email != "jane.doe@example.com" {
		t.Errorf("Email = %s, want jane.doe@example.com", id.Email)
	}
	if id.DisplayName != "Jane Doe" {
		t.Errorf("DisplayName = %s, want Jane Doe", id.DisplayName)
	}
	if !id.IsAdmin {
		t.Error("expected admin flag from group membership")
	}
	if len(id.Groups) != 1 || id.Groups[0] != adminGroup {
		t.Errorf("Groups = %v, want normalized %s", id.Groups, adminGroup)
	}
}

func TestIdentityFromEntry_FallbackEmail(t *testing.T) {
	entry := goldap.NewEntry("uid=jdoe,ou=people,dc=example,dc=com", map[string][]string{
		"memberOf": {"cn=devs,ou=groups,dc=example,dc=com"},
	})

	id := testDirectory().identityFromEntry("jdoe", entry)
	if id.Email != "jdoe@example.com" {
		t.Errorf("Email = %s, want jdoe@example.com", id.Email)
	}
	if id.IsAdmin {
		t.Error("expected non-admin for unrelated group")
	}
}

func TestIdentityFromEntry_NilEntry(t *testing.T) {
	id := testDirectory().identityFromEntry("jdoe", nil)
	if id.Email != "jdoe@example.com" {
		t.Errorf("Email = %s, want jdoe@example.com", id.Email)
	}
	if id.IsAdmin {
		t.Error("expected non-admin when entry is missing")
	}
}

func TestAuthenticate_EmptyCredentials(t *testing.T) {
	d := testDirectory()
	if _, err := d.Authenticate(context.Background(), "", "secret"); err == nil {
		t.Error("expected error for empty username")
	}
	if _, err := d.Authenticate(context.Background(), "jdoe", ""); err == nil {
		t.Error("expected error for empty password")
	}
}
