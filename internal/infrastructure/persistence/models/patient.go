package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/dentalclinic/backend/internal/domain/catalog"
	"github.com/dentalclinic/backend/internal/domain/patient"
	"github.com/dentalclinic/backend/internal/domain/shared"
)

// PatientModel is the persistence model for the Patient aggregate root.
type PatientModel struct {
	TenantAggregateModel
	FirstName   string                `gorm:"type:varchar(100);not null"`
	LastName    string                `gorm:"type:varchar(100);not null;index"`
	Email       string                `gorm:"type:varchar(200)"`
	Phone       string                `gorm:"type:varchar(50)"`
	DateOfBirth *time.Time            `gorm:"type:date"`
	Status      patient.PatientStatus `gorm:"type:varchar(20);not null;default:'ACTIVE';index"`
	ArchivedAt  *time.Time
}

// TableName returns the table name for GORM
func (PatientModel) TableName() string {
	return "patients"
}

// ToDomain converts the persistence model to a domain Patient entity.
func (m *PatientModel) ToDomain() *patient.Patient {
	return &patient.Patient{
		TenantAggregateRoot: shared.TenantAggregateRoot{
			BaseAggregateRoot: shared.BaseAggregateRoot{
				BaseEntity: shared.BaseEntity{
					ID:        m.ID,
					CreatedAt: m.CreatedAt,
					UpdatedAt: m.UpdatedAt,
				},
				Version: m.Version,
			},
			TenantID:  m.TenantID,
			CreatedBy: m.CreatedBy,
		},
		FirstName:   m.FirstName,
		LastName:    m.LastName,
		Email:       m.Email,
		Phone:       m.Phone,
		DateOfBirth: m.DateOfBirth,
		Status:      m.Status,
		ArchivedAt:  m.ArchivedAt,
	}
}

// FromDomain populates the persistence model from a domain Patient entity.
func (m *PatientModel) FromDomain(p *patient.Patient) {
	m.FromDomainTenantAggregateRoot(p.TenantAggregateRoot)
	m.FirstName = p.FirstName
	m.LastName = p.LastName
	m.Email = p.Email
	m.Phone = p.Phone
	m.DateOfBirth = p.DateOfBirth
	m.Status = p.Status
	m.ArchivedAt = p.ArchivedAt
}

// PatientModelFromDomain creates a new persistence model from a domain Patient.
func PatientModelFromDomain(p *patient.Patient) *PatientModel {
	m := &PatientModel{}
	m.FromDomain(p)
	return m
}

// ProcedureModel is the persistence model for fee-schedule procedures.
type ProcedureModel struct {
	TenantAggregateModel
	Code        string          `gorm:"type:varchar(20);not null;uniqueIndex:idx_procedure_tenant_code,priority:2"`
	Name        string          `gorm:"type:varchar(200);not null"`
	Description string          `gorm:"type:text"`
	DefaultFee  decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	Active      bool            `gorm:"not null;default:true;index"`
}

// TableName returns the table name for GORM
func (ProcedureModel) TableName() string {
	return "procedures"
}

// ToDomain converts the persistence model to a domain Procedure entity.
func (m *ProcedureModel) ToDomain() *catalog.Procedure {
	return &catalog.Procedure{
		TenantAggregateRoot: shared.TenantAggregateRoot{
			BaseAggregateRoot: shared.BaseAggregateRoot{
				BaseEntity: shared.BaseEntity{
					ID:        m.ID,
					CreatedAt: m.CreatedAt,
					UpdatedAt: m.UpdatedAt,
				},
				Version: m.Version,
			},
			TenantID:  m.TenantID,
			CreatedBy: m.CreatedBy,
		},
		Code:        m.Code,
		Name:        m.Name,
		Description: m.Description,
		DefaultFee:  m.DefaultFee,
		Active:      m.Active,
	}
}

// FromDomain populates the persistence model from a domain Procedure entity.
func (m *ProcedureModel) FromDomain(p *catalog.Procedure) {
	m.FromDomainTenantAggregateRoot(p.TenantAggregateRoot)
	m.Code = p.Code
	m.Name = p.Name
	m.Description = p.Description
	m.DefaultFee = p.DefaultFee
	m.Active = p.Active
}

// ProcedureModelFromDomain creates a new persistence model from a domain Procedure.
func ProcedureModelFromDomain(p *catalog.Procedure) *ProcedureModel {
	m := &ProcedureModel{}
	m.FromDomain(p)
	return m
}
