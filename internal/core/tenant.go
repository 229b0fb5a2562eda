package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/oskar/fitness/internal/model"
)

// TenantService reads tenants and tenant memberships.
type TenantService struct {
	db     DB
	logger zerolog.Logger
}

func NewTenantService(db DB, logger zerolog.Logger) *TenantService {
	return &TenantService{db: db, logger: logger}
}

func (s *TenantService) GetByID(ctx context.Context, id string) (*model.Tenant, error) {
	var t model.Tenant
	err := s.db.QueryRow(ctx,
		`SELECT id, name, status, created_at, updated_at FROM tenants WHERE id = $1`,
		id,
	).Scan(&t.ID, &t.Name, &t.Status, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get tenant: %w", err)
	}
	return &t, nil
}

// ListMembershipsForUser returns the user's tenant memberships ordered by
// join time, oldest first.
func (s *TenantService) ListMembershipsForUser(ctx context.Context, userID string) ([]model.TenantMembership, error) {
	rows, err := s.db.Query(ctx,
		`SELECT tenant_id, user_id, role, joined_at FROM tenant_members WHERE user_id = $1 ORDER BY joined_at`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list tenant memberships: %w", err)
	}
	defer rows.Close()

	var memberships []model.TenantMembership
	for rows.Next() {
		var m model.TenantMembership
		if err := rows.Scan(&m.TenantID, &m.UserID, &m.Role, &m.JoinedAt); err != nil {
			return nil, fmt.Errorf("scan tenant membership: %w", err)
		}
		memberships = append(memberships, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list tenant memberships: %w", err)
	}
	return memberships, nil
}

// IsMember reports whether the user belongs to the tenant.
func (s *TenantService) IsMember(ctx context.Context, tenantID, userID string) (bool, error) {
	var one int
	err := s.db.QueryRow(ctx,
		`SELECT 1 FROM tenant_members WHERE tenant_id = $1 AND user_id = $2`,
		tenantID, userID,
	).Scan(&one)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check tenant membership: %w", err)
	}
	return true, nil
}
