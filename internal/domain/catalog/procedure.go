package catalog

import (
	"time"

	"github.com/dentalclinic/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Procedure is a billable service from the clinic's fee schedule. Invoice
// items reference procedures for their code and default fee; the fee on the
// invoice line can still be adjusted per case.
type Procedure struct {
	shared.TenantAggregateRoot
	Code        string          `json:"code"` // ADA/CDT style code, unique per tenant
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	DefaultFee  decimal.Decimal `json:"default_fee"`
	Active      bool            `json:"active"`
}

// NewProcedure creates a new active procedure in the fee schedule
func NewProcedure(tenantID uuid.UUID, code, name string, defaultFee decimal.Decimal) (*Procedure, error) {
	if code == "" {
		return nil, shared.NewValidationError("INVALID_CODE", "Procedure code cannot be empty")
	}
	if name == "" {
		return nil, shared.NewValidationError("INVALID_NAME", "Procedure name cannot be empty")
	}
	if defaultFee.IsNegative() {
		return nil, shared.NewValidationError("INVALID_FEE", "Default fee cannot be negative")
	}

	return &Procedure{
		TenantAggregateRoot: shared.NewTenantAggregateRoot(tenantID),
		Code:                code,
		Name:                name,
		DefaultFee:          defaultFee,
		Active:              true,
	}, nil
}

// UpdateFee changes the default fee
func (p *Procedure) UpdateFee(fee decimal.Decimal) error {
	if fee.IsNegative() {
		return shared.NewValidationError("INVALID_FEE", "Default fee cannot be negative")
	}
	p.DefaultFee = fee
	p.UpdatedAt = time.Now()
	return nil
}

// Deactivate removes the procedure from the active fee schedule without
// breaking historical invoice references.
func (p *Procedure) Deactivate() {
	p.Active = false
	p.UpdatedAt = time.Now()
}

// Activate returns the procedure to the active fee schedule
func (p *Procedure) Activate() {
	p.Active = true
	p.UpdatedAt = time.Now()
}
