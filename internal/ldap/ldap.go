// Package ldap authenticates portal users against a corporate directory.
//
// Authentication is a bind with the user's own credentials: the directory,
// not the portal, verifies the password. After a successful bind the user's
// entry is read for mail and group membership, and membership in the
// configured admin group decides the portal admin flag. There is no fallback
// path: when the directory is unreachable, nobody logs in.
package ldap

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strings"

	goldap "github.com/go-ldap/ldap/v3"
	"github.com/kafka-portal/kafka-portal/internal/apperr"
	"github.com/kafka-portal/kafka-portal/internal/config"
)

// Identity is what the directory asserts about a user after a successful bind.
type Identity struct {
	Username    string
	Email       string
	DisplayName string
	IsAdmin     bool
	Groups      []string
}

// Authenticator verifies directory credentials and resolves the user's
// identity.
type Authenticator interface {
	Authenticate(ctx context.Context, username, password string) (*Identity, error)
}

// Directory is the go-ldap backed Authenticator.
type Directory struct {
	cfg config.LDAPConfig
}

// NewDirectory creates a Directory from configuration.
func NewDirectory(cfg config.LDAPConfig) *Directory {
	return &Directory{cfg: cfg}
}

// Authenticate binds as the user and reads their entry. Invalid credentials
// map to an unauthorized error; an unreachable or misbehaving directory maps
// to an upstream error so callers can distinguish "wrong password" from
// "directory down".
func (d *Directory) Authenticate(ctx context.Context, username, password string) (*Identity, error) {
	if username == "" || password == "" {
		return nil, apperr.New(apperr.KindUnauthorized, "username and password are required")
	}

	conn, err := d.dial(ctx)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUpstream, "directory unavailable", err)
	}
	defer conn.Close()

	userDN := fmt.Sprintf(d.cfg.UserDNTemplate, goldap.EscapeDN(username))
	if err := conn.Bind(userDN, password); err != nil {
		if goldap.IsErrorWithCode(err, goldap.LDAPResultInvalidCredentials) {
			return nil, apperr.New(apperr.KindUnauthorized, "invalid credentials")
		}
		return nil, apperr.Wrap(apperr.KindUpstream, "directory bind failed", err)
	}

	entry, err := d.searchUser(conn, username)
	if err != nil {
		return nil, err
	}

	return d.identityFromEntry(username, entry), nil
}

func (d *Directory) dial(ctx context.Context) (*goldap.Conn, error) {
	dialer := &net.Dialer{Timeout: d.cfg.ConnectTimeout}
	if deadline, ok := ctx.Deadline(); ok {
		dialer.Deadline = deadline
	}

	opts := []goldap.DialOpt{goldap.DialWithDialer(dialer)}
	if strings.HasPrefix(d.cfg.URL, "ldaps://") {
		opts = append(opts, goldap.DialWithTLSConfig(&tls.Config{
			InsecureSkipVerify: d.cfg.SkipTLSVerify,
		}))
	}

	conn, err := goldap.DialURL(d.cfg.URL, opts...)
	if err != nil {
		return nil, err
	}
	conn.SetTimeout(d.cfg.ConnectTimeout)

	return conn, nil
}

func (d *Directory) searchUser(conn *goldap.Conn, username string) (*goldap.Entry, error) {
	req := goldap.NewSearchRequest(
		d.cfg.BaseDN,
		goldap.ScopeWholeSubtree,
		goldap.NeverDerefAliases,
		1, 0, false,
		fmt.Sprintf("(uid=%s)", goldap.EscapeFilter(username)),
		[]string{"mail", "cn", "memberOf"},
		nil,
	)

	res, err := conn.Search(req)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUpstream, "directory search failed", err)
	}
	if len(res.Entries) == 0 {
		// The bind succeeded so the entry exists; an empty result means the
		// search base or filter is misconfigured, not that the user is gone.
		return nil, nil
	}

	return res.Entries[0], nil
}

func (d *Directory) identityFromEntry(username string, entry *goldap.Entry) *Identity {
	id := &Identity{
		Username: username,
		Email:    fallbackEmail(username, d.cfg.EmailDomain),
	}

	if entry == nil {
		return id
	}

	if mail := entry.GetAttributeValue("mail"); mail != "" {
		id.Email = mail
	}
	id.DisplayName = entry.GetAttributeValue("cn")

	groups := entry.GetAttributeValues("memberOf")
	id.Groups = make([]string, 0, len(groups))
	for _, g := range groups {
		id.Groups = append(id.Groups, normalizeDN(g))
	}
	id.IsAdmin = memberOf(groups, d.cfg.AdminGroupDN)

	return id
}

func fallbackEmail(username, domain string) string {
	return fmt.Sprintf("%s@%s", username, domain)
}

// memberOf reports whether any of the entry's groups matches the admin group
// DN. DNs compare case-insensitively with whitespace around RDN separators
// ignored, since directories are inconsistent about both.
func memberOf(groups []string, adminGroupDN string) bool {
	want := normalizeDN(adminGroupDN)
	for _, g := range groups {
		if normalizeDN(g) == want {
			return true
		}
	}
	return false
}

func normalizeDN(dn string) string {
	parts := strings.Split(dn, ",")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(strings.ToLower(p))
	}
	return strings.Join(parts, ",")
}
