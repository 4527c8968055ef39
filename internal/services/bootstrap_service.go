// bootstrap_service.go implements first-admin bootstrap. A fresh install has
// no admin because the admin flag comes from directory group membership and a
// directory group may not exist yet. At startup, when no admin exists, the
// server generates a one-time token, stores only its bcrypt hash, and prints
// the plaintext once to the operator's log. Any logged-in user who presents
// the token becomes the first admin, and the claim lands in the audit trail.
// There is no silent fallback path to admin.
package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"

	"github.com/kafka-portal/kafka-portal/internal/apperr"
	"github.com/kafka-portal/kafka-portal/internal/db/models"
	"github.com/kafka-portal/kafka-portal/internal/db/repositories"
	"golang.org/x/crypto/bcrypt"
)

// BootstrapService manages the one-time admin bootstrap token.
type BootstrapService struct {
	users    *repositories.UserRepository
	settings *repositories.SettingsRepository
	audit    *AuditRecorder
}

// NewBootstrapService creates a BootstrapService.
func NewBootstrapService(users *repositories.UserRepository, settings *repositories.SettingsRepository, audit *AuditRecorder) *BootstrapService {
	return &BootstrapService{users: users, settings: settings, audit: audit}
}

// EnsureToken generates and stores a bootstrap token when the instance has no
// admin yet. It returns the plaintext token exactly once, at generation time;
// every other call returns "".
func (s *BootstrapService) EnsureToken(ctx context.Context) (string, error) {
	completed, err := s.settings.Get(ctx, repositories.SettingBootstrapCompleted)
	if err != nil {
		return "", apperr.Wrap(apperr.KindStorage, "failed to read bootstrap state", err)
	}
	if completed == "true" {
		return "", nil
	}

	admins, err := s.users.CountAdmins(ctx)
	if err != nil {
		return "", apperr.Wrap(apperr.KindStorage, "failed to count admins", err)
	}
	if admins > 0 {
		// An admin already exists (e.g. via directory group), so the token
		// phase is over.
		if err := s.finish(ctx); err != nil {
			return "", err
		}
		return "", nil
	}

	existing, err := s.settings.Get(ctx, repositories.SettingBootstrapTokenHash)
	if err != nil {
		return "", apperr.Wrap(apperr.KindStorage, "failed to read bootstrap token", err)
	}
	if existing != "" {
		// A token was already issued; its plaintext only exists in the log
		// of the run that generated it.
		return "", nil
	}

	token, err := generateBootstrapToken()
	if err != nil {
		return "", apperr.Wrap(apperr.KindStorage, "failed to generate bootstrap token", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", apperr.Wrap(apperr.KindStorage, "failed to hash bootstrap token", err)
	}

	if err := s.settings.Set(ctx, repositories.SettingBootstrapTokenHash, string(hash)); err != nil {
		return "", apperr.Wrap(apperr.KindStorage, "failed to store bootstrap token", err)
	}

	return token, nil
}

// ClaimAdmin promotes the calling user to admin when the presented token
// matches the stored hash. The promotion and its audit entry commit together;
// the token is single-use.
func (s *BootstrapService) ClaimAdmin(ctx context.Context, user *models.User, token, clientIP string) error {
	completed, err := s.settings.Get(ctx, repositories.SettingBootstrapCompleted)
	if err != nil {
		return apperr.Wrap(apperr.KindStorage, "failed to read bootstrap state", err)
	}
	if completed == "true" {
		return apperr.New(apperr.KindConflict, "instance is already bootstrapped")
	}

	admins, err := s.users.CountAdmins(ctx)
	if err != nil {
		return apperr.Wrap(apperr.KindStorage, "failed to count admins", err)
	}
	if admins > 0 {
		return apperr.New(apperr.KindConflict, "instance is already bootstrapped")
	}

	hash, err := s.settings.Get(ctx, repositories.SettingBootstrapTokenHash)
	if err != nil {
		return apperr.Wrap(apperr.KindStorage, "failed to read bootstrap token", err)
	}
	if hash == "" {
		return apperr.New(apperr.KindConflict, "bootstrap is not available on this instance")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(token)); err != nil {
		return apperr.New(apperr.KindUnauthorized, "invalid bootstrap token")
	}

	tx, err := s.users.BeginTx(ctx)
	if err != nil {
		return apperr.Wrap(apperr.KindStorage, "failed to begin transaction", err)
	}
	defer tx.Rollback()

	if err := s.users.SetAdmin(ctx, tx, user.ID, true); err != nil {
		return apperr.Wrap(apperr.KindStorage, "failed to promote user", err)
	}

	entry := &models.AuditLog{
		UserID:       user.ID,
		Action:       models.ActionAdminBootstrapped,
		ResourceType: models.AuditResourceUser,
		ResourceID:   &user.ID,
		Details:      map[string]interface{}{"username": user.Username},
		IPAddress:    optionalIP(clientIP),
	}
	if err := s.audit.Append(ctx, tx, entry); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return apperr.Wrap(apperr.KindStorage, "failed to commit bootstrap", err)
	}

	s.audit.ShipCommitted(entry)

	if err := s.finish(ctx); err != nil {
		// The promotion is committed; a failure here only means the next
		// startup re-checks and finds an admin.
		slog.Warn("failed to mark bootstrap complete", "error", err)
	}

	user.IsAdmin = true
	slog.Info("first admin bootstrapped", "user", user.Username)

	return nil
}

func (s *BootstrapService) finish(ctx context.Context) error {
	if err := s.settings.Set(ctx, repositories.SettingBootstrapCompleted, "true"); err != nil {
		return apperr.Wrap(apperr.KindStorage, "failed to mark bootstrap complete", err)
	}
	if err := s.settings.Delete(ctx, repositories.SettingBootstrapTokenHash); err != nil {
		return apperr.Wrap(apperr.KindStorage, "failed to discard bootstrap token", err)
	}
	return nil
}

func generateBootstrapToken() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return hex.EncodeToString(bytes), nil
}
