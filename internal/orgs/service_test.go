package orgs

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/guardpost/guardpost/internal/shared"
)

type memoryOrgsRepo struct {
	orgs   map[int64]Organization
	grants map[int64]map[string]struct{}
	nextID int64
}

func newMemoryOrgsRepo() *memoryOrgsRepo {
	return &memoryOrgsRepo{
		orgs:   make(map[int64]Organization),
		grants: make(map[int64]map[string]struct{}),
	}
}

func (r *memoryOrgsRepo) ListOrganizations(ctx context.Context) ([]Organization, error) {
	orgs := make([]Organization, 0, len(r.orgs))
	for _, o := range r.orgs {
		orgs = append(orgs, o)
	}
	sort.Slice(orgs, func(i, j int) bool { return orgs[i].Slug < orgs[j].Slug })
	return orgs, nil
}

func (r *memoryOrgsRepo) GetOrganization(ctx context.Context, id int64) (Organization, error) {
	org, ok := r.orgs[id]
	if !ok {
		return Organization{}, ErrNotFound
	}
	return org, nil
}

func (r *memoryOrgsRepo) GetOrganizationBySlug(ctx context.Context, slug string) (Organization, error) {
	for _, o := range r.orgs {
		if o.Slug == slug {
			return o, nil
		}
	}
	return Organization{}, ErrNotFound
}

func (r *memoryOrgsRepo) CreateOrganization(ctx context.Context, slug, name string) (Organization, error) {
	for _, o := range r.orgs {
		if o.Slug == slug {
			return Organization{}, ErrDuplicateSlug
		}
	}
	r.nextID++
	org := Organization{ID: r.nextID, Slug: slug, Name: name, IsActive: true, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	r.orgs[org.ID] = org
	return org, nil
}

func (r *memoryOrgsRepo) UpdateOrganization(ctx context.Context, id int64, name string, isActive bool) (Organization, error) {
	org, ok := r.orgs[id]
	if !ok {
		return Organization{}, ErrNotFound
	}
	org.Name = name
	org.IsActive = isActive
	org.UpdatedAt = time.Now()
	r.orgs[id] = org
	return org, nil
}

func (r *memoryOrgsRepo) DeleteOrganization(ctx context.Context, id int64) error {
	if _, ok := r.orgs[id]; !ok {
		return ErrNotFound
	}
	delete(r.orgs, id)
	delete(r.grants, id)
	return nil
}

func (r *memoryOrgsRepo) ListGrants(ctx context.Context, orgID int64) ([]Grant, error) {
	grants := make([]Grant, 0, len(r.grants[orgID]))
	for p := range r.grants[orgID] {
		grants = append(grants, Grant{OrgID: orgID, Permission: p})
	}
	sort.Slice(grants, func(i, j int) bool { return grants[i].Permission < grants[j].Permission })
	return grants, nil
}

func (r *memoryOrgsRepo) UpdateGrants(ctx context.Context, orgID int64, attach, detach []string) error {
	if r.grants[orgID] == nil {
		r.grants[orgID] = make(map[string]struct{})
	}
	for _, p := range attach {
		r.grants[orgID][p] = struct{}{}
	}
	for _, p := range detach {
		delete(r.grants[orgID], p)
	}
	return nil
}

type captureAuditor struct {
	logs []shared.AuditLog
}

func (a *captureAuditor) Record(ctx context.Context, log shared.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

type captureEnqueuer struct {
	slugs []string
}

func (e *captureEnqueuer) EnqueueGrantsRefresh(ctx context.Context, slug string) error {
	e.slugs = append(e.slugs, slug)
	return nil
}

func TestCreateOrganizationNormalizesSlug(t *testing.T) {
	repo := newMemoryOrgsRepo()
	svc := NewService(repo, nil, nil, nil)

	org, err := svc.CreateOrganization(context.Background(), 1, "  ACME  ", "Acme Corp")
	require.NoError(t, err)
	require.Equal(t, "acme", org.Slug)
	require.True(t, org.IsActive)

	_, err = svc.CreateOrganization(context.Background(), 1, "acme", "Duplicate")
	require.ErrorIs(t, err, ErrDuplicateSlug)
}

func TestCreateOrganizationRequiresFields(t *testing.T) {
	svc := NewService(newMemoryOrgsRepo(), nil, nil, nil)

	_, err := svc.CreateOrganization(context.Background(), 1, "", "Acme")
	require.Error(t, err)

	_, err = svc.CreateOrganization(context.Background(), 1, "acme", "  ")
	require.Error(t, err)
}

func TestReplaceGrantsDiffsAttachAndDetach(t *testing.T) {
	repo := newMemoryOrgsRepo()
	auditor := &captureAuditor{}
	queue := &captureEnqueuer{}
	svc := NewService(repo, auditor, queue, nil)

	org, err := svc.CreateOrganization(context.Background(), 1, "acme", "Acme Corp")
	require.NoError(t, err)

	require.NoError(t, svc.ReplaceGrants(context.Background(), 1, org.ID, []string{"billing.view", "reports.view"}))
	require.NoError(t, svc.ReplaceGrants(context.Background(), 1, org.ID, []string{"Reports.View", "reports.export"}))

	grants, err := svc.Grants(context.Background(), org.ID)
	require.NoError(t, err)
	names := make([]string, 0, len(grants))
	for _, g := range grants {
		names = append(names, g.Permission)
	}
	require.Equal(t, []string{"reports.export", "reports.view"}, names)

	// Every mutation schedules a cache refresh for the slug.
	require.Equal(t, []string{"acme", "acme"}, queue.slugs)

	var actions []string
	for _, l := range auditor.logs {
		actions = append(actions, l.Action)
	}
	require.Contains(t, actions, "org.create")
	require.Contains(t, actions, "org.grants.replace")
}

func TestDeleteOrganizationSchedulesRefresh(t *testing.T) {
	repo := newMemoryOrgsRepo()
	queue := &captureEnqueuer{}
	svc := NewService(repo, nil, queue, nil)

	org, err := svc.CreateOrganization(context.Background(), 1, "acme", "Acme Corp")
	require.NoError(t, err)

	require.NoError(t, svc.DeleteOrganization(context.Background(), 1, org.ID))
	require.Equal(t, []string{"acme"}, queue.slugs)

	_, err = svc.GetOrganization(context.Background(), org.ID)
	require.ErrorIs(t, err, ErrNotFound)
}
