package model

import "time"

// Tenant is an isolation boundary for fitness data: a club, a coaching
// organization, or a single athlete's personal tenant.
type Tenant struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Status    string    `json:"status" db:"status"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// TenantMembership links a user to a tenant with a role.
type TenantMembership struct {
	TenantID string    `json:"tenant_id" db:"tenant_id"`
	UserID   string    `json:"user_id" db:"user_id"`
	Role     string    `json:"role" db:"role"`
	JoinedAt time.Time `json:"joined_at" db:"joined_at"`
}
