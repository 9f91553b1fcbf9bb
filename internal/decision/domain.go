// Package decision exposes the access decision API: it resolves an
// organization's granted permissions and the current user, runs the guard
// evaluation, and returns the rendering outcome. It is the explicit
// replacement for ambient-context lookups on the caller side.
package decision

import "time"

// Record captures one evaluated decision for the audit trail.
type Record struct {
	OrgSlug      string    `json:"org_slug"`
	ActorID      int64     `json:"actor_id"`
	Mode         string    `json:"mode"`
	Required     []string  `json:"required"`
	HasAccess    bool      `json:"has_access"`
	HasSuperuser bool      `json:"has_superuser"`
	ShouldRender bool      `json:"should_render"`
	At           time.Time `json:"at"`
}
