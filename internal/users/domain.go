package users

import "time"

// User represents a managed account. Superuser is the privileged flag the
// decision engine consults independently of any permission grant.
type User struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Superuser bool      `json:"is_superuser"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// GetID implements guard.Principal.
func (u User) GetID() int64 { return u.ID }

// IsSuperUser implements guard.Principal.
func (u User) IsSuperUser() bool { return u.Superuser }
