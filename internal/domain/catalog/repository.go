package catalog

import (
	"context"

	"github.com/dentalclinic/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// ProcedureFilter defines filtering options for fee schedule queries
type ProcedureFilter struct {
	shared.Filter
	Active *bool  // Filter by active flag
	Search string // Match against code or name
}

// ProcedureRepository defines the interface for fee schedule persistence
type ProcedureRepository interface {
	// FindByID finds a procedure by ID
	FindByID(ctx context.Context, id uuid.UUID) (*Procedure, error)

	// FindByIDForTenant finds a procedure by ID for a specific tenant
	FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*Procedure, error)

	// FindByCode finds a procedure by its code for a tenant
	FindByCode(ctx context.Context, tenantID uuid.UUID, code string) (*Procedure, error)

	// FindAllForTenant finds all procedures for a tenant with filtering
	FindAllForTenant(ctx context.Context, tenantID uuid.UUID, filter ProcedureFilter) ([]Procedure, error)

	// Save creates or updates a procedure
	Save(ctx context.Context, procedure *Procedure) error

	// ExistsByCode checks if a procedure code exists for a tenant
	ExistsByCode(ctx context.Context, tenantID uuid.UUID, code string) (bool, error)
}
