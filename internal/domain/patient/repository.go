package patient

import (
	"context"

	"github.com/dentalclinic/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// PatientFilter defines filtering options for patient queries
type PatientFilter struct {
	shared.Filter
	Status *PatientStatus // Filter by status
	Search string         // Match against name, email or phone
}

// PatientRepository defines the interface for patient persistence
type PatientRepository interface {
	// FindByID finds a patient by ID
	FindByID(ctx context.Context, id uuid.UUID) (*Patient, error)

	// FindByIDForTenant finds a patient by ID for a specific tenant
	FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*Patient, error)

	// FindAllForTenant finds all patients for a tenant with filtering
	FindAllForTenant(ctx context.Context, tenantID uuid.UUID, filter PatientFilter) ([]Patient, error)

	// Save creates or updates a patient
	Save(ctx context.Context, patient *Patient) error

	// CountForTenant counts patients for a tenant
	CountForTenant(ctx context.Context, tenantID uuid.UUID, filter PatientFilter) (int64, error)
}
