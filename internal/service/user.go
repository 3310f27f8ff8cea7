package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/dtroode/vault-protector/internal/apperr"
	"github.com/dtroode/vault-protector/internal/logger"
	"github.com/dtroode/vault-protector/internal/model"
)

const (
	DefaultAuditPageSize = 20
	MaxAuditPageSize     = 100
)

// AuditQuery selects one page of the caller's audit log.
type AuditQuery struct {
	Page   int
	Limit  int
	Action model.AuditAction
}

// AuditPage is one page of audit entries.
type AuditPage struct {
	Entries    []model.AuditEntry
	Page       int
	Limit      int
	Total      int
	TotalPages int
}

// User serves account-level operations: profile, audit log and deletion.
type User struct {
	users    model.UserStore
	audits   model.AuditStore
	hasher   model.VerifierHasher
	sessions *SessionManager
	vaults   *Vault
	prelogin model.PreloginCache
	tx       model.Transactor
	auditor  model.Auditor
	logger   *logger.Logger
}

func NewUser(
	users model.UserStore,
	audits model.AuditStore,
	hasher model.VerifierHasher,
	sessions *SessionManager,
	vaults *Vault,
	prelogin model.PreloginCache,
	tx model.Transactor,
	auditor model.Auditor,
	logger *logger.Logger,
) *User {
	return &User{
		users:    users,
		audits:   audits,
		hasher:   hasher,
		sessions: sessions,
		vaults:   vaults,
		prelogin: prelogin,
		tx:       tx,
		auditor:  auditor,
		logger:   logger,
	}
}

func (s *User) Profile(ctx context.Context, userID uuid.UUID) (model.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if errors.Is(err, model.ErrNotFound) {
		return model.User{}, apperr.NotFound("user not found")
	}
	if err != nil {
		return model.User{}, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

func (s *User) AuditLogs(ctx context.Context, userID uuid.UUID, q AuditQuery) (AuditPage, error) {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit <= 0 {
		q.Limit = DefaultAuditPageSize
	}
	if q.Limit > MaxAuditPageSize {
		q.Limit = MaxAuditPageSize
	}

	entries, total, err := s.audits.ListByUser(ctx, userID, model.AuditFilter{
		Action: q.Action,
		Limit:  q.Limit,
		Offset: (q.Page - 1) * q.Limit,
	})
	if err != nil {
		return AuditPage{}, fmt.Errorf("failed to list audit logs: %w", err)
	}

	return AuditPage{
		Entries:    entries,
		Page:       q.Page,
		Limit:      q.Limit,
		Total:      total,
		TotalPages: (total + q.Limit - 1) / q.Limit,
	}, nil
}

// DeleteAccount permanently removes the caller's account. The verifier must
// match; every session, including the current one, is revoked first.
func (s *User) DeleteAccount(ctx context.Context, principal model.Principal, authVerifier string, meta model.RequestMeta) error {
	ctx, span := tracer.Start(ctx, "User.DeleteAccount")
	defer span.End()

	user, err := s.Profile(ctx, principal.UserID)
	if err != nil {
		return err
	}

	ok, err := s.hasher.Verify(authVerifier, user.VerifierHash)
	if err != nil {
		return fmt.Errorf("failed to verify verifier: %w", err)
	}
	if !ok {
		return apperr.Unauthorized("password is incorrect")
	}

	if _, err := s.sessions.RevokeAllExcept(ctx, user.ID, uuid.Nil, model.RevokeReasonAccountDeleted); err != nil {
		return err
	}

	if err := s.vaults.PurgeArchive(ctx, user.ID); err != nil {
		s.logger.Warn("User service: failed to purge vault archive",
			"user_id", user.ID,
			"error", err.Error())
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.audits.AnonymizeUser(ctx, user.ID); err != nil {
			return err
		}
		return s.users.Delete(ctx, user.ID)
	})
	if err != nil {
		s.logger.Error("User service: failed to delete account",
			"user_id", user.ID,
			"error", err.Error())
		return fmt.Errorf("failed to delete account: %w", err)
	}

	if err := s.prelogin.Delete(ctx, user.Email); err != nil {
		s.logger.Warn("User service: failed to evict prelogin cache",
			"error", err.Error())
	}

	s.auditor.Log(ctx, model.AuditEntry{
		Action:    model.AuditUserDelete,
		Status:    model.AuditSuccess,
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
	})

	s.logger.Info("User service: account deleted",
		"user_id", user.ID)

	return nil
}
