package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/edvin/tenant-backup/internal/model"
)

const selectTenant = `SELECT id, name, created_at FROM companies WHERE id = $1`

// TenantService reads company accounts. Backups never write tenants.
type TenantService struct {
	db DB
}

func NewTenantService(db DB) *TenantService {
	return &TenantService{db: db}
}

// GetByID returns ErrTenantNotFound for unknown ids, including the empty id.
func (s *TenantService) GetByID(ctx context.Context, id string) (*model.Tenant, error) {
	if id == "" {
		return nil, fmt.Errorf("get tenant: %w", ErrTenantNotFound)
	}
	t := &model.Tenant{}
	switch err := s.db.QueryRow(ctx, selectTenant, id).Scan(&t.ID, &t.Name, &t.CreatedAt); {
	case errors.Is(err, pgx.ErrNoRows):
		return nil, fmt.Errorf("get tenant %s: %w", id, ErrTenantNotFound)
	case err != nil:
		return nil, fmt.Errorf("get tenant %s: %w", id, err)
	}
	return t, nil
}
