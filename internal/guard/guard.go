// Package guard implements the access decision engine: a pure evaluation of
// required permissions against a granted set, plus an optional superuser
// gate. Everything else in Guardpost exists to feed this package real data.
package guard

import "strings"

// Mode selects how multiple required permissions combine.
type Mode int

const (
	// ModeAll grants access only when every required permission is present.
	ModeAll Mode = iota
	// ModeAny grants access when at least one required permission is present.
	ModeAny
)

// String returns the wire name of the mode.
func (m Mode) String() string {
	if m == ModeAny {
		return "any"
	}
	return "all"
}

// ParseMode maps a wire name to a Mode. Unknown values fall back to ModeAll,
// the conservative default.
func ParseMode(s string) Mode {
	if strings.EqualFold(strings.TrimSpace(s), "any") {
		return ModeAny
	}
	return ModeAll
}

// PermissionSet is a normalized set of permission identifiers.
type PermissionSet map[string]struct{}

// NewPermissionSet builds a set from raw permission strings. Entries are
// trimmed and lowercased; empty entries are dropped. A nil slice yields an
// empty set.
func NewPermissionSet(perms []string) PermissionSet {
	set := make(PermissionSet, len(perms))
	for _, p := range perms {
		p = Normalize(p)
		if p == "" {
			continue
		}
		set[p] = struct{}{}
	}
	return set
}

// Normalize canonicalizes a single permission identifier.
func Normalize(perm string) string {
	return strings.ToLower(strings.TrimSpace(perm))
}

// Has reports whether the set contains the permission.
func (s PermissionSet) Has(perm string) bool {
	_, ok := s[Normalize(perm)]
	return ok
}

// HasAll reports whether every required permission is present. An empty
// required list is vacuously satisfied.
func (s PermissionSet) HasAll(required []string) bool {
	for _, r := range required {
		if !s.Has(r) {
			return false
		}
	}
	return true
}

// HasAny reports whether at least one required permission is present. An
// empty required list is vacuously satisfied.
func (s PermissionSet) HasAny(required []string) bool {
	if len(required) == 0 {
		return true
	}
	for _, r := range required {
		if s.Has(r) {
			return true
		}
	}
	return false
}

// Slice returns the set members in no particular order, mainly for caching
// and logging.
func (s PermissionSet) Slice() []string {
	out := make([]string, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	return out
}

// Principal describes the authenticated actor.
type Principal interface {
	GetID() int64
	IsSuperUser() bool
}

// Request captures what a caller demands before content may be shown.
type Request struct {
	Required         []string
	Mode             Mode
	RequireSuperuser bool
}

// Result carries the outcome of a single evaluation.
type Result struct {
	HasAccess    bool `json:"has_access"`
	HasSuperuser bool `json:"has_superuser"`
	ShouldRender bool `json:"should_render"`
}

// Evaluate runs the permission check. It never fails: a nil granted set acts
// as empty, a nil principal as a non-superuser. An empty required list always
// yields access regardless of mode or grants.
func Evaluate(granted PermissionSet, req Request, who Principal) Result {
	required := make([]string, 0, len(req.Required))
	for _, r := range req.Required {
		if n := Normalize(r); n != "" {
			required = append(required, n)
		}
	}

	hasAccess := true
	if len(required) > 0 {
		switch req.Mode {
		case ModeAny:
			hasAccess = granted.HasAny(required)
		default:
			hasAccess = granted.HasAll(required)
		}
	}

	hasSuperuser := who != nil && who.IsSuperUser()

	return Result{
		HasAccess:    hasAccess,
		HasSuperuser: hasSuperuser,
		ShouldRender: hasAccess && (!req.RequireSuperuser || hasSuperuser),
	}
}
