package orgs

import "time"

// Organization is a tenant whose granted permissions drive access decisions.
type Organization struct {
	ID        int64     `json:"id"`
	Slug      string    `json:"slug"`
	Name      string    `json:"name"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Grant ties a permission to an organization.
type Grant struct {
	OrgID      int64     `json:"org_id"`
	Permission string    `json:"permission"`
	CreatedAt  time.Time `json:"created_at"`
}
