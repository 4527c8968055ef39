// login_service.go implements directory login: bind against the corporate
// directory, synchronize the local user record with what the directory
// asserts, and issue a session token.
package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/kafka-portal/kafka-portal/internal/apperr"
	"github.com/kafka-portal/kafka-portal/internal/auth"
	"github.com/kafka-portal/kafka-portal/internal/db/models"
	"github.com/kafka-portal/kafka-portal/internal/db/repositories"
	"github.com/kafka-portal/kafka-portal/internal/ldap"
	"github.com/kafka-portal/kafka-portal/internal/telemetry"
)

// LoginService authenticates users against the directory and manages the
// local user records that mirror it.
type LoginService struct {
	users         *repositories.UserRepository
	audit         *AuditRecorder
	authenticator ldap.Authenticator
	tokenTTL      time.Duration
}

// NewLoginService creates a LoginService.
func NewLoginService(users *repositories.UserRepository, audit *AuditRecorder, authenticator ldap.Authenticator, tokenTTL time.Duration) *LoginService {
	return &LoginService{users: users, audit: audit, authenticator: authenticator, tokenTTL: tokenTTL}
}

// Login verifies credentials with the directory and returns a session token
// plus the local user. The first successful login creates the local record;
// every login re-syncs the admin flag from directory group membership, with a
// role change recorded in the audit trail. There is no local password and no
// fallback when the directory is down.
func (s *LoginService) Login(ctx context.Context, username, password, clientIP string) (string, *models.User, error) {
	identity, err := s.authenticator.Authenticate(ctx, username, password)
	if err != nil {
		result := "failure"
		if apperr.IsKind(err, apperr.KindUpstream) {
			result = "directory_unavailable"
		}
		telemetry.LoginAttemptsTotal.WithLabelValues(result).Inc()
		return "", nil, err
	}

	user, err := s.users.GetUserByUsername(ctx, identity.Username)
	if err != nil {
		return "", nil, apperr.Wrap(apperr.KindStorage, "failed to load user", err)
	}

	if user != nil && !user.IsActive {
		telemetry.LoginAttemptsTotal.WithLabelValues("failure").Inc()
		return "", nil, apperr.New(apperr.KindUnauthorized, "account is disabled")
	}

	if user == nil {
		user, err = s.createFromIdentity(ctx, identity, clientIP)
	} else {
		err = s.syncFromIdentity(ctx, user, identity, clientIP)
	}
	if err != nil {
		return "", nil, err
	}

	token, err := auth.GenerateJWT(user.ID, user.Username, s.tokenTTL)
	if err != nil {
		return "", nil, apperr.Wrap(apperr.KindStorage, "failed to issue session token", err)
	}

	telemetry.LoginAttemptsTotal.WithLabelValues("success").Inc()
	slog.Info("user logged in", "user", user.Username, "admin", user.IsAdmin)

	return token, user, nil
}

func (s *LoginService) createFromIdentity(ctx context.Context, identity *ldap.Identity, clientIP string) (*models.User, error) {
	now := time.Now()
	user := &models.User{
		Username: identity.Username,
		Email:    identity.Email,
		IsAdmin:  identity.IsAdmin,
		IsActive: true,
		LastLogin: &now,
	}

	tx, err := s.users.BeginTx(ctx)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, "failed to begin transaction", err)
	}
	defer tx.Rollback()

	if err := s.users.CreateUser(ctx, tx, user); err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, "failed to create user", err)
	}

	entry := &models.AuditLog{
		UserID:       user.ID,
		Action:       models.ActionUserCreated,
		ResourceType: models.AuditResourceUser,
		ResourceID:   &user.ID,
		Details: map[string]interface{}{
			"username": user.Username,
			"is_admin": user.IsAdmin,
		},
		IPAddress: optionalIP(clientIP),
	}
	if err := s.audit.Append(ctx, tx, entry); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, "failed to commit user creation", err)
	}

	s.audit.ShipCommitted(entry)
	slog.Info("user created from directory", "user", user.Username, "admin", user.IsAdmin)
	return user, nil
}

func (s *LoginService) syncFromIdentity(ctx context.Context, user *models.User, identity *ldap.Identity, clientIP string) error {
	now := time.Now()
	roleChanged := user.IsAdmin != identity.IsAdmin

	tx, err := s.users.BeginTx(ctx)
	if err != nil {
		return apperr.Wrap(apperr.KindStorage, "failed to begin transaction", err)
	}
	defer tx.Rollback()

	if err := s.users.RecordLogin(ctx, tx, user.ID, identity.IsAdmin, now); err != nil {
		return apperr.Wrap(apperr.KindStorage, "failed to record login", err)
	}

	var entry *models.AuditLog
	if roleChanged {
		entry = &models.AuditLog{
			UserID:       user.ID,
			Action:       models.ActionUserRoleUpdated,
			ResourceType: models.AuditResourceUser,
			ResourceID:   &user.ID,
			Details: map[string]interface{}{
				"username":   user.Username,
				"was_admin":  user.IsAdmin,
				"is_admin":   identity.IsAdmin,
				"changed_by": "directory group sync",
			},
			IPAddress: optionalIP(clientIP),
		}
		if err := s.audit.Append(ctx, tx, entry); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return apperr.Wrap(apperr.KindStorage, "failed to commit login sync", err)
	}

	if entry != nil {
		s.audit.ShipCommitted(entry)
	}

	user.IsAdmin = identity.IsAdmin
	user.LastLogin = &now

	if roleChanged {
		slog.Info("user role synced from directory", "user", user.Username, "admin", user.IsAdmin)
	}

	return nil
}
