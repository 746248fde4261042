package patient

import (
	"fmt"
	"time"

	"github.com/dentalclinic/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// PatientStatus represents the status of a patient record
type PatientStatus string

const (
	PatientStatusActive   PatientStatus = "ACTIVE"
	PatientStatusArchived PatientStatus = "ARCHIVED"
)

// IsValid checks if the status is a valid PatientStatus
func (s PatientStatus) IsValid() bool {
	return s == PatientStatusActive || s == PatientStatusArchived
}

// Patient is the billing-facing view of a patient record. Clinical data lives
// elsewhere; this aggregate carries only what invoicing and statements need.
type Patient struct {
	shared.TenantAggregateRoot
	FirstName   string        `json:"first_name"`
	LastName    string        `json:"last_name"`
	Email       string        `json:"email,omitempty"`
	Phone       string        `json:"phone,omitempty"`
	DateOfBirth *time.Time    `json:"date_of_birth,omitempty"`
	Status      PatientStatus `json:"status"`
	ArchivedAt  *time.Time    `json:"archived_at,omitempty"`
}

// NewPatient creates a new active patient record
func NewPatient(tenantID uuid.UUID, firstName, lastName, email, phone string) (*Patient, error) {
	if firstName == "" {
		return nil, shared.NewValidationError("INVALID_NAME", "First name cannot be empty")
	}
	if lastName == "" {
		return nil, shared.NewValidationError("INVALID_NAME", "Last name cannot be empty")
	}

	return &Patient{
		TenantAggregateRoot: shared.NewTenantAggregateRoot(tenantID),
		FirstName:           firstName,
		LastName:            lastName,
		Email:               email,
		Phone:               phone,
		Status:              PatientStatusActive,
	}, nil
}

// FullName returns the patient's display name
func (p *Patient) FullName() string {
	return fmt.Sprintf("%s %s", p.FirstName, p.LastName)
}

// IsActive returns true if the patient record is active
func (p *Patient) IsActive() bool {
	return p.Status == PatientStatusActive
}

// UpdateContact updates the patient's contact details
func (p *Patient) UpdateContact(email, phone string) {
	p.Email = email
	p.Phone = phone
	p.UpdatedAt = time.Now()
}

// Archive marks the patient record inactive. Archived patients keep their
// financial history but cannot receive new invoices.
func (p *Patient) Archive() error {
	if p.Status == PatientStatusArchived {
		return shared.NewConflictError("ALREADY_ARCHIVED", "Patient is already archived")
	}
	now := time.Now()
	p.Status = PatientStatusArchived
	p.ArchivedAt = &now
	p.UpdatedAt = now
	return nil
}

// Restore reactivates an archived patient record
func (p *Patient) Restore() error {
	if p.Status == PatientStatusActive {
		return shared.NewConflictError("ALREADY_ACTIVE", "Patient is already active")
	}
	p.Status = PatientStatusActive
	p.ArchivedAt = nil
	p.UpdatedAt = time.Now()
	return nil
}
