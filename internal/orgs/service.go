package orgs

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"

	"github.com/guardpost/guardpost/internal/guard"
	"github.com/guardpost/guardpost/internal/shared"
)

// RepositoryPort defines data access methods for organizations.
type RepositoryPort interface {
	ListOrganizations(ctx context.Context) ([]Organization, error)
	GetOrganization(ctx context.Context, id int64) (Organization, error)
	GetOrganizationBySlug(ctx context.Context, slug string) (Organization, error)
	CreateOrganization(ctx context.Context, slug, name string) (Organization, error)
	UpdateOrganization(ctx context.Context, id int64, name string, isActive bool) (Organization, error)
	DeleteOrganization(ctx context.Context, id int64) error
	ListGrants(ctx context.Context, orgID int64) ([]Grant, error)
	UpdateGrants(ctx context.Context, orgID int64, attach, detach []string) error
}

// Auditor records management actions.
type Auditor interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Enqueuer schedules grant cache refreshes after mutations.
type Enqueuer interface {
	EnqueueGrantsRefresh(ctx context.Context, slug string) error
}

// Service orchestrates organization management.
type Service struct {
	repo   RepositoryPort
	audit  Auditor
	queue  Enqueuer
	logger *slog.Logger
}

// NewService constructs a Service. Audit and queue may be nil.
func NewService(repo RepositoryPort, audit Auditor, queue Enqueuer, logger *slog.Logger) *Service {
	return &Service{repo: repo, audit: audit, queue: queue, logger: logger}
}

// ListOrganizations returns all organizations.
func (s *Service) ListOrganizations(ctx context.Context) ([]Organization, error) {
	return s.repo.ListOrganizations(ctx)
}

// GetOrganization fetches one organization by ID.
func (s *Service) GetOrganization(ctx context.Context, id int64) (Organization, error) {
	return s.repo.GetOrganization(ctx, id)
}

// CreateOrganization registers a new tenant.
func (s *Service) CreateOrganization(ctx context.Context, actorID int64, slug, name string) (Organization, error) {
	slug = NormalizeSlug(slug)
	name = strings.TrimSpace(name)
	if slug == "" {
		return Organization{}, errors.New("orgs: slug required")
	}
	if name == "" {
		return Organization{}, errors.New("orgs: name required")
	}
	org, err := s.repo.CreateOrganization(ctx, slug, name)
	if err != nil {
		return Organization{}, err
	}
	s.recordAudit(ctx, actorID, "org.create", org, nil)
	return org, nil
}

// UpdateOrganization updates name and active flag.
func (s *Service) UpdateOrganization(ctx context.Context, actorID, id int64, name string, isActive bool) (Organization, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Organization{}, errors.New("orgs: name required")
	}
	org, err := s.repo.UpdateOrganization(ctx, id, name, isActive)
	if err != nil {
		return Organization{}, err
	}
	s.recordAudit(ctx, actorID, "org.update", org, map[string]any{"is_active": isActive})
	s.refreshGrants(ctx, org.Slug)
	return org, nil
}

// DeleteOrganization removes a tenant and schedules its cache entry drop.
func (s *Service) DeleteOrganization(ctx context.Context, actorID, id int64) error {
	org, err := s.repo.GetOrganization(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteOrganization(ctx, id); err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "org.delete", org, nil)
	s.refreshGrants(ctx, org.Slug)
	return nil
}

// Grants returns the grant rows for an organization.
func (s *Service) Grants(ctx context.Context, orgID int64) ([]Grant, error) {
	return s.repo.ListGrants(ctx, orgID)
}

// ReplaceGrants swaps the organization's grant set for the provided
// permissions, attaching missing ones and detaching extras.
func (s *Service) ReplaceGrants(ctx context.Context, actorID, orgID int64, permissions []string) error {
	org, err := s.repo.GetOrganization(ctx, orgID)
	if err != nil {
		return err
	}

	current, err := s.repo.ListGrants(ctx, orgID)
	if err != nil {
		return err
	}
	existing := make(map[string]struct{}, len(current))
	for _, g := range current {
		existing[g.Permission] = struct{}{}
	}

	desired := guard.NewPermissionSet(permissions)
	var attach, detach []string
	for p := range desired {
		if _, ok := existing[p]; !ok {
			attach = append(attach, p)
		}
	}
	for p := range existing {
		if !desired.Has(p) {
			detach = append(detach, p)
		}
	}
	if len(attach) > 0 || len(detach) > 0 {
		if err := s.repo.UpdateGrants(ctx, orgID, attach, detach); err != nil {
			return err
		}
	}

	s.recordAudit(ctx, actorID, "org.grants.replace", org, map[string]any{"permissions": desired.Slice()})
	s.refreshGrants(ctx, org.Slug)
	return nil
}

// NormalizeSlug canonicalizes an organization slug.
func NormalizeSlug(slug string) string {
	return strings.ToLower(strings.TrimSpace(slug))
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, org Organization, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "organization",
		EntityID: strconv.FormatInt(org.ID, 10),
		Meta:     meta,
	}); err != nil && s.logger != nil {
		s.logger.Warn("orgs audit", slog.Any("error", err))
	}
}

func (s *Service) refreshGrants(ctx context.Context, slug string) {
	if s.queue == nil {
		return
	}
	if err := s.queue.EnqueueGrantsRefresh(ctx, slug); err != nil && s.logger != nil {
		s.logger.Warn("orgs enqueue grants refresh", slog.String("slug", slug), slog.Any("error", err))
	}
}
