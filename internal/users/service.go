package users

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/guardpost/guardpost/internal/guard"
	"github.com/guardpost/guardpost/internal/shared"
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	ListUsers(ctx context.Context) ([]User, error)
	GetUser(ctx context.Context, id int64) (User, error)
	CreateUser(ctx context.Context, email, name, passwordHash string) (User, error)
	SetSuperuser(ctx context.Context, id int64, superuser bool) (User, error)
	SetActive(ctx context.Context, id int64, active bool) (User, error)
	ListGrants(ctx context.Context, userID int64) ([]string, error)
	AddGrant(ctx context.Context, userID int64, permission string) error
	RemoveGrant(ctx context.Context, userID int64, permission string) error
}

// Auditor records management actions.
type Auditor interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service handles user business logic.
type Service struct {
	repo   RepositoryPort
	audit  Auditor
	logger *slog.Logger
}

// NewService builds Service instance. Audit may be nil.
func NewService(repo RepositoryPort, audit Auditor, logger *slog.Logger) *Service {
	return &Service{repo: repo, audit: audit, logger: logger}
}

// ListUsers returns all users.
func (s *Service) ListUsers(ctx context.Context) ([]User, error) {
	return s.repo.ListUsers(ctx)
}

// GetUser fetches one user.
func (s *Service) GetUser(ctx context.Context, id int64) (User, error) {
	return s.repo.GetUser(ctx, id)
}

// CreateUser registers an account with a bcrypt-hashed password.
func (s *Service) CreateUser(ctx context.Context, actorID int64, email, name, password string) (User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	name = strings.TrimSpace(name)
	if email == "" {
		return User{}, errors.New("users: email required")
	}
	if len(password) < 8 {
		return User{}, errors.New("users: password must be at least 8 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, err
	}
	user, err := s.repo.CreateUser(ctx, email, name, string(hash))
	if err != nil {
		return User{}, err
	}
	s.recordAudit(ctx, actorID, "user.create", user.ID, nil)
	return user, nil
}

// SetSuperuser toggles the privileged flag on an account.
func (s *Service) SetSuperuser(ctx context.Context, actorID, id int64, superuser bool) (User, error) {
	user, err := s.repo.SetSuperuser(ctx, id, superuser)
	if err != nil {
		return User{}, err
	}
	s.recordAudit(ctx, actorID, "user.superuser", user.ID, map[string]any{"is_superuser": superuser})
	return user, nil
}

// SetActive toggles the active flag on an account.
func (s *Service) SetActive(ctx context.Context, actorID, id int64, active bool) (User, error) {
	user, err := s.repo.SetActive(ctx, id, active)
	if err != nil {
		return User{}, err
	}
	s.recordAudit(ctx, actorID, "user.active", user.ID, map[string]any{"is_active": active})
	return user, nil
}

// Grants returns a user's management permissions.
func (s *Service) Grants(ctx context.Context, userID int64) ([]string, error) {
	return s.repo.ListGrants(ctx, userID)
}

// ReplaceGrants swaps a user's management permission set.
func (s *Service) ReplaceGrants(ctx context.Context, actorID, userID int64, permissions []string) error {
	if _, err := s.repo.GetUser(ctx, userID); err != nil {
		return err
	}
	current, err := s.repo.ListGrants(ctx, userID)
	if err != nil {
		return err
	}
	existing := make(map[string]struct{}, len(current))
	for _, p := range current {
		existing[p] = struct{}{}
	}

	desired := guard.NewPermissionSet(permissions)
	for p := range desired {
		if _, ok := existing[p]; !ok {
			if err := s.repo.AddGrant(ctx, userID, p); err != nil {
				return err
			}
		}
	}
	for p := range existing {
		if !desired.Has(p) {
			if err := s.repo.RemoveGrant(ctx, userID, p); err != nil {
				return err
			}
		}
	}
	s.recordAudit(ctx, actorID, "user.grants.replace", userID, map[string]any{"permissions": desired.Slice()})
	return nil
}

// Principal resolves the acting user and its grants for the guard
// middleware. Deleted and inactive accounts resolve to
// guard.ErrUnknownPrincipal so stale sessions deny instead of erroring.
func (s *Service) Principal(ctx context.Context, userID int64) (guard.Principal, guard.PermissionSet, error) {
	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil, guard.ErrUnknownPrincipal
		}
		return nil, nil, err
	}
	if !user.IsActive {
		return nil, nil, guard.ErrUnknownPrincipal
	}
	grants, err := s.repo.ListGrants(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	return user, guard.NewPermissionSet(grants), nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, userID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "user",
		EntityID: strconv.FormatInt(userID, 10),
		Meta:     meta,
	}); err != nil && s.logger != nil {
		s.logger.Warn("users audit", slog.Any("error", err))
	}
}
