package orgs

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/guardpost/guardpost/internal/platform/db"
)

var (
	// ErrNotFound indicates that the requested record does not exist.
	ErrNotFound = errors.New("orgs: not found")
	// ErrDuplicateSlug indicates a slug collision on create.
	ErrDuplicateSlug = errors.New("orgs: slug already exists")
)

// Repository provides PostgreSQL backed persistence for organizations.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListOrganizations returns all organizations ordered by slug.
func (r *Repository) ListOrganizations(ctx context.Context) ([]Organization, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, slug, name, is_active, created_at, updated_at FROM organizations ORDER BY slug`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orgs := make([]Organization, 0)
	for rows.Next() {
		var o Organization
		if err := rows.Scan(&o.ID, &o.Slug, &o.Name, &o.IsActive, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, err
		}
		orgs = append(orgs, o)
	}
	return orgs, rows.Err()
}

// GetOrganization fetches an organization by ID.
func (r *Repository) GetOrganization(ctx context.Context, id int64) (Organization, error) {
	var o Organization
	err := r.pool.QueryRow(ctx, `SELECT id, slug, name, is_active, created_at, updated_at FROM organizations WHERE id = $1`, id).
		Scan(&o.ID, &o.Slug, &o.Name, &o.IsActive, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Organization{}, ErrNotFound
		}
		return Organization{}, err
	}
	return o, nil
}

// GetOrganizationBySlug fetches an organization by slug.
func (r *Repository) GetOrganizationBySlug(ctx context.Context, slug string) (Organization, error) {
	var o Organization
	err := r.pool.QueryRow(ctx, `SELECT id, slug, name, is_active, created_at, updated_at FROM organizations WHERE slug = $1`, slug).
		Scan(&o.ID, &o.Slug, &o.Name, &o.IsActive, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Organization{}, ErrNotFound
		}
		return Organization{}, err
	}
	return o, nil
}

// CreateOrganization inserts a new organization.
func (r *Repository) CreateOrganization(ctx context.Context, slug, name string) (Organization, error) {
	var o Organization
	err := r.pool.QueryRow(ctx, `INSERT INTO organizations (slug, name) VALUES ($1, $2) RETURNING id, slug, name, is_active, created_at, updated_at`, slug, name).
		Scan(&o.ID, &o.Slug, &o.Name, &o.IsActive, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Organization{}, ErrDuplicateSlug
		}
		return Organization{}, err
	}
	return o, nil
}

// UpdateOrganization updates name and active flag of an organization.
func (r *Repository) UpdateOrganization(ctx context.Context, id int64, name string, isActive bool) (Organization, error) {
	var o Organization
	err := r.pool.QueryRow(ctx, `UPDATE organizations SET name = $2, is_active = $3, updated_at = NOW() WHERE id = $1 RETURNING id, slug, name, is_active, created_at, updated_at`, id, name, isActive).
		Scan(&o.ID, &o.Slug, &o.Name, &o.IsActive, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Organization{}, ErrNotFound
		}
		return Organization{}, err
	}
	return o, nil
}

// DeleteOrganization removes an organization. Returns ErrNotFound if nothing
// was deleted.
func (r *Repository) DeleteOrganization(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM organizations WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListGrants returns the grant rows for an organization.
func (r *Repository) ListGrants(ctx context.Context, orgID int64) ([]Grant, error) {
	rows, err := r.pool.Query(ctx, `SELECT org_id, permission, created_at FROM organization_grants WHERE org_id = $1 ORDER BY permission`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	grants := make([]Grant, 0)
	for rows.Next() {
		var g Grant
		if err := rows.Scan(&g.OrgID, &g.Permission, &g.CreatedAt); err != nil {
			return nil, err
		}
		grants = append(grants, g)
	}
	return grants, rows.Err()
}

// GrantNamesBySlug returns the permission names granted to the organization
// identified by slug. Missing organizations yield ErrNotFound.
func (r *Repository) GrantNamesBySlug(ctx context.Context, slug string) ([]string, error) {
	var orgID int64
	err := r.pool.QueryRow(ctx, `SELECT id FROM organizations WHERE slug = $1 AND is_active`, slug).Scan(&orgID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	rows, err := r.pool.Query(ctx, `SELECT permission FROM organization_grants WHERE org_id = $1 ORDER BY permission`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	perms := make([]string, 0)
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

// UpdateGrants attaches and detaches permissions in a single transaction.
// Attaching an existing grant is a no-op.
func (r *Repository) UpdateGrants(ctx context.Context, orgID int64, attach, detach []string) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		for _, p := range attach {
			if _, err := tx.Exec(ctx, `INSERT INTO organization_grants (org_id, permission) VALUES ($1, $2) ON CONFLICT DO NOTHING`, orgID, p); err != nil {
				return err
			}
		}
		for _, p := range detach {
			if _, err := tx.Exec(ctx, `DELETE FROM organization_grants WHERE org_id = $1 AND permission = $2`, orgID, p); err != nil {
				return err
			}
		}
		return nil
	})
}

// ListActiveSlugs returns the slugs of all active organizations.
func (r *Repository) ListActiveSlugs(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT slug FROM organizations WHERE is_active ORDER BY slug`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	slugs := make([]string, 0)
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		slugs = append(slugs, s)
	}
	return slugs, rows.Err()
}
