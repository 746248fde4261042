package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dentalclinic/backend/internal/domain/billing"
	"github.com/dentalclinic/backend/internal/domain/shared"
)

// InvoiceModel is the persistence model for the Invoice aggregate root.
type InvoiceModel struct {
	TenantAggregateModel
	InvoiceNumber    string                      `gorm:"type:varchar(50);not null;uniqueIndex:idx_invoice_tenant_number,priority:2"`
	PatientID        uuid.UUID                   `gorm:"type:uuid;not null;index"`
	PatientName      string                      `gorm:"type:varchar(200);not null"`
	IssueDate        time.Time                   `gorm:"not null;index"`
	DueDate          time.Time                   `gorm:"not null;index"`
	Subtotal         decimal.Decimal             `gorm:"type:decimal(18,4);not null"`
	DiscountAmount   decimal.Decimal             `gorm:"type:decimal(18,4);not null"`
	TaxAmount        decimal.Decimal             `gorm:"type:decimal(18,4);not null"`
	AdjustmentAmount decimal.Decimal             `gorm:"type:decimal(18,4);not null"`
	WriteOffAmount   decimal.Decimal             `gorm:"type:decimal(18,4);not null"`
	TotalAmount      decimal.Decimal             `gorm:"type:decimal(18,4);not null"`
	AmountPaid       decimal.Decimal             `gorm:"type:decimal(18,4);not null"`
	AmountDue        decimal.Decimal             `gorm:"type:decimal(18,4);not null;index"`
	Status           billing.InvoiceStatus       `gorm:"type:varchar(20);not null;default:'UNPAID';index"`
	Items            billing.InvoiceItems        `gorm:"type:jsonb;default:'[]'"`
	AppliedPayments  billing.PaymentApplications `gorm:"type:jsonb;default:'[]'"`
	Notes            string                      `gorm:"type:text"`
	DiscountReason   string                      `gorm:"type:varchar(500)"`
	PaidAt           *time.Time
	OverdueAt        *time.Time
	CancelledAt      *time.Time
	CancelReason     string `gorm:"type:varchar(500)"`
	WrittenOffAt     *time.Time
	WriteOffReason   string `gorm:"type:varchar(500)"`
}

// TableName returns the table name for GORM
func (InvoiceModel) TableName() string {
	return "invoices"
}

// ToDomain converts the persistence model to a domain Invoice entity.
func (m *InvoiceModel) ToDomain() *billing.Invoice {
	return &billing.Invoice{
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
		InvoiceNumber:    m.InvoiceNumber,
		PatientID:        m.PatientID,
		PatientName:      m.PatientName,
		IssueDate:        m.IssueDate,
		DueDate:          m.DueDate,
		Subtotal:         m.Subtotal,
		DiscountAmount:   m.DiscountAmount,
		TaxAmount:        m.TaxAmount,
		AdjustmentAmount: m.AdjustmentAmount,
		WriteOffAmount:   m.WriteOffAmount,
		TotalAmount:      m.TotalAmount,
		AmountPaid:       m.AmountPaid,
		AmountDue:        m.AmountDue,
		Status:           m.Status,
		Items:            m.Items,
		AppliedPayments:  m.AppliedPayments,
		Notes:            m.Notes,
		DiscountReason:   m.DiscountReason,
		PaidAt:           m.PaidAt,
		OverdueAt:        m.OverdueAt,
		CancelledAt:      m.CancelledAt,
		CancelReason:     m.CancelReason,
		WrittenOffAt:     m.WrittenOffAt,
		WriteOffReason:   m.WriteOffReason,
	}
}

// FromDomain populates the persistence model from a domain Invoice entity.
func (m *InvoiceModel) FromDomain(inv *billing.Invoice) {
	m.FromDomainTenantAggregateRoot(inv.TenantAggregateRoot)
	m.InvoiceNumber = inv.InvoiceNumber
	m.PatientID = inv.PatientID
	m.PatientName = inv.PatientName
	m.IssueDate = inv.IssueDate
	m.DueDate = inv.DueDate
	m.Subtotal = inv.Subtotal
	m.DiscountAmount = inv.DiscountAmount
	m.TaxAmount = inv.TaxAmount
	m.AdjustmentAmount = inv.AdjustmentAmount
	m.WriteOffAmount = inv.WriteOffAmount
	m.TotalAmount = inv.TotalAmount
	m.AmountPaid = inv.AmountPaid
	m.AmountDue = inv.AmountDue
	m.Status = inv.Status
	m.Items = inv.Items
	m.AppliedPayments = inv.AppliedPayments
	m.Notes = inv.Notes
	m.DiscountReason = inv.DiscountReason
	m.PaidAt = inv.PaidAt
	m.OverdueAt = inv.OverdueAt
	m.CancelledAt = inv.CancelledAt
	m.CancelReason = inv.CancelReason
	m.WrittenOffAt = inv.WrittenOffAt
	m.WriteOffReason = inv.WriteOffReason
}

// InvoiceModelFromDomain creates a new persistence model from a domain Invoice.
func InvoiceModelFromDomain(inv *billing.Invoice) *InvoiceModel {
	m := &InvoiceModel{}
	m.FromDomain(inv)
	return m
}

// PaymentModel is the persistence model for the Payment aggregate root.
type PaymentModel struct {
	TenantAggregateModel
	PaymentNumber string              `gorm:"type:varchar(50);not null;uniqueIndex:idx_payment_tenant_number,priority:2"`
	PatientID     uuid.UUID           `gorm:"type:uuid;not null;index"`
	PatientName   string              `gorm:"type:varchar(200);not null"`
	Type          billing.PaymentType `gorm:"column:payment_type;type:varchar(20);not null;default:'PAYMENT';index"`
	Amount        decimal.Decimal     `gorm:"type:decimal(18,4);not null"`
	// AllocatedAmount is denormalized from the allocations so credit queries
	// can run in SQL. The domain derives it from Allocations.
	AllocatedAmount decimal.Decimal            `gorm:"type:decimal(18,4);not null"`
	RefundedAmount  decimal.Decimal            `gorm:"type:decimal(18,4);not null"`
	Method          billing.PaymentMethod      `gorm:"type:varchar(20);not null"`
	Reference       string                     `gorm:"type:varchar(100)"`
	PaymentDate     time.Time                  `gorm:"not null;index"`
	Status          billing.PaymentStatus      `gorm:"type:varchar(20);not null;default:'COMPLETED';index"`
	Allocations     billing.PaymentAllocations `gorm:"type:jsonb;default:'[]'"`
	Notes           string                     `gorm:"type:text"`
	VoidedAt        *time.Time
	VoidReason      string `gorm:"type:varchar(500)"`
}

// TableName returns the table name for GORM
func (PaymentModel) TableName() string {
	return "payments"
}

// ToDomain converts the persistence model to a domain Payment entity.
func (m *PaymentModel) ToDomain() *billing.Payment {
	return &billing.Payment{
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
		PaymentNumber:  m.PaymentNumber,
		PatientID:      m.PatientID,
		PatientName:    m.PatientName,
		Type:           m.Type,
		Amount:         m.Amount,
		Method:         m.Method,
		Reference:      m.Reference,
		PaymentDate:    m.PaymentDate,
		Status:         m.Status,
		Allocations:    m.Allocations,
		RefundedAmount: m.RefundedAmount,
		Notes:          m.Notes,
		VoidedAt:       m.VoidedAt,
		VoidReason:     m.VoidReason,
	}
}

// FromDomain populates the persistence model from a domain Payment entity.
func (m *PaymentModel) FromDomain(p *billing.Payment) {
	m.FromDomainTenantAggregateRoot(p.TenantAggregateRoot)
	m.PaymentNumber = p.PaymentNumber
	m.PatientID = p.PatientID
	m.PatientName = p.PatientName
	m.Type = p.Type
	m.Amount = p.Amount
	m.AllocatedAmount = p.AllocatedAmount()
	m.RefundedAmount = p.RefundedAmount
	m.Method = p.Method
	m.Reference = p.Reference
	m.PaymentDate = p.PaymentDate
	m.Status = p.Status
	m.Allocations = p.Allocations
	m.Notes = p.Notes
	m.VoidedAt = p.VoidedAt
	m.VoidReason = p.VoidReason
}

// PaymentModelFromDomain creates a new persistence model from a domain Payment.
func PaymentModelFromDomain(p *billing.Payment) *PaymentModel {
	m := &PaymentModel{}
	m.FromDomain(p)
	return m
}

// LedgerEntryModel is the persistence model for append-only ledger entries.
type LedgerEntryModel struct {
	BaseModel
	TenantID    uuid.UUID               `gorm:"type:uuid;not null;index:idx_ledger_tenant_patient,priority:1"`
	PatientID   uuid.UUID               `gorm:"type:uuid;not null;index:idx_ledger_tenant_patient,priority:2"`
	EntryType   billing.LedgerEntryType `gorm:"type:varchar(20);not null;index"`
	Amount      decimal.Decimal         `gorm:"type:decimal(18,4);not null"`
	InvoiceID   *uuid.UUID              `gorm:"type:uuid;index"`
	PaymentID   *uuid.UUID              `gorm:"type:uuid;index"`
	RefundID    *uuid.UUID              `gorm:"type:uuid;index"`
	ReversesID  *uuid.UUID              `gorm:"type:uuid"`
	Description string                  `gorm:"type:varchar(500)"`
	EntryDate   time.Time               `gorm:"not null;index"`
	CreatedBy   *uuid.UUID              `gorm:"type:uuid"`
}

// TableName returns the table name for GORM
func (LedgerEntryModel) TableName() string {
	return "ledger_entries"
}

// ToDomain converts the persistence model to a domain LedgerEntry entity.
func (m *LedgerEntryModel) ToDomain() *billing.LedgerEntry {
	return &billing.LedgerEntry{
		BaseEntity:  m.BaseModel.ToDomain(),
		TenantID:    m.TenantID,
		PatientID:   m.PatientID,
		EntryType:   m.EntryType,
		Amount:      m.Amount,
		InvoiceID:   m.InvoiceID,
		PaymentID:   m.PaymentID,
		RefundID:    m.RefundID,
		ReversesID:  m.ReversesID,
		Description: m.Description,
		EntryDate:   m.EntryDate,
		CreatedBy:   m.CreatedBy,
	}
}

// LedgerEntryModelFromDomain creates a new persistence model from a domain LedgerEntry.
func LedgerEntryModelFromDomain(e *billing.LedgerEntry) *LedgerEntryModel {
	m := &LedgerEntryModel{}
	m.FromDomainBaseEntity(e.BaseEntity)
	m.TenantID = e.TenantID
	m.PatientID = e.PatientID
	m.EntryType = e.EntryType
	m.Amount = e.Amount
	m.InvoiceID = e.InvoiceID
	m.PaymentID = e.PaymentID
	m.RefundID = e.RefundID
	m.ReversesID = e.ReversesID
	m.Description = e.Description
	m.EntryDate = e.EntryDate
	m.CreatedBy = e.CreatedBy
	return m
}

// RefundModel is the persistence model for the Refund aggregate root.
type RefundModel struct {
	TenantAggregateModel
	RefundNumber string                `gorm:"type:varchar(50);not null;uniqueIndex:idx_refund_tenant_number,priority:2"`
	PatientID    uuid.UUID             `gorm:"type:uuid;not null;index"`
	PatientName  string                `gorm:"type:varchar(200);not null"`
	Source       billing.RefundSource  `gorm:"type:varchar(20);not null"`
	PaymentID    *uuid.UUID            `gorm:"type:uuid;index"`
	Amount       decimal.Decimal       `gorm:"type:decimal(18,4);not null"`
	Method       billing.PaymentMethod `gorm:"type:varchar(20);not null"`
	Reason       string                `gorm:"type:varchar(500);not null"`
	Status       billing.RefundStatus  `gorm:"type:varchar(20);not null;default:'PENDING';index"`
	RequestedAt  time.Time             `gorm:"not null"`
	ApprovedAt   *time.Time
	ApprovedBy   *uuid.UUID `gorm:"type:uuid"`
	ProcessedAt  *time.Time
	Reference    string `gorm:"type:varchar(100)"`
	RejectedAt   *time.Time
	RejectReason string `gorm:"type:varchar(500)"`
	CancelledAt  *time.Time
	CancelReason string `gorm:"type:varchar(500)"`
}

// TableName returns the table name for GORM
func (RefundModel) TableName() string {
	return "refunds"
}

// ToDomain converts the persistence model to a domain Refund entity.
func (m *RefundModel) ToDomain() *billing.Refund {
	return &billing.Refund{
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
		RefundNumber: m.RefundNumber,
		PatientID:    m.PatientID,
		PatientName:  m.PatientName,
		Source:       m.Source,
		PaymentID:    m.PaymentID,
		Amount:       m.Amount,
		Method:       m.Method,
		Reason:       m.Reason,
		Status:       m.Status,
		RequestedAt:  m.RequestedAt,
		ApprovedAt:   m.ApprovedAt,
		ApprovedBy:   m.ApprovedBy,
		ProcessedAt:  m.ProcessedAt,
		Reference:    m.Reference,
		RejectedAt:   m.RejectedAt,
		RejectReason: m.RejectReason,
		CancelledAt:  m.CancelledAt,
		CancelReason: m.CancelReason,
	}
}

// FromDomain populates the persistence model from a domain Refund entity.
func (m *RefundModel) FromDomain(r *billing.Refund) {
	m.FromDomainTenantAggregateRoot(r.TenantAggregateRoot)
	m.RefundNumber = r.RefundNumber
	m.PatientID = r.PatientID
	m.PatientName = r.PatientName
	m.Source = r.Source
	m.PaymentID = r.PaymentID
	m.Amount = r.Amount
	m.Method = r.Method
	m.Reason = r.Reason
	m.Status = r.Status
	m.RequestedAt = r.RequestedAt
	m.ApprovedAt = r.ApprovedAt
	m.ApprovedBy = r.ApprovedBy
	m.ProcessedAt = r.ProcessedAt
	m.Reference = r.Reference
	m.RejectedAt = r.RejectedAt
	m.RejectReason = r.RejectReason
	m.CancelledAt = r.CancelledAt
	m.CancelReason = r.CancelReason
}

// RefundModelFromDomain creates a new persistence model from a domain Refund.
func RefundModelFromDomain(r *billing.Refund) *RefundModel {
	m := &RefundModel{}
	m.FromDomain(r)
	return m
}

// PaymentPlanModel is the persistence model for the PaymentPlan aggregate root.
type PaymentPlanModel struct {
	TenantAggregateModel
	PlanNumber    string                    `gorm:"type:varchar(50);not null;uniqueIndex:idx_plan_tenant_number,priority:2"`
	InvoiceID     uuid.UUID                 `gorm:"type:uuid;not null;index"`
	InvoiceNumber string                    `gorm:"type:varchar(50);not null"`
	PatientID     uuid.UUID                 `gorm:"type:uuid;not null;index"`
	TotalAmount   decimal.Decimal           `gorm:"type:decimal(18,4);not null"`
	Status        billing.PaymentPlanStatus `gorm:"type:varchar(20);not null;default:'ACTIVE';index"`
	Installments  billing.Installments      `gorm:"type:jsonb;default:'[]'"`
	Notes         string                    `gorm:"type:text"`
	CompletedAt   *time.Time
	DefaultedAt   *time.Time
	CancelledAt   *time.Time
	CancelReason  string `gorm:"type:varchar(500)"`
}

// TableName returns the table name for GORM
func (PaymentPlanModel) TableName() string {
	return "payment_plans"
}

// ToDomain converts the persistence model to a domain PaymentPlan entity.
func (m *PaymentPlanModel) ToDomain() *billing.PaymentPlan {
	return &billing.PaymentPlan{
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
		PlanNumber:    m.PlanNumber,
		InvoiceID:     m.InvoiceID,
		InvoiceNumber: m.InvoiceNumber,
		PatientID:     m.PatientID,
		TotalAmount:   m.TotalAmount,
		Status:        m.Status,
		Installments:  m.Installments,
		Notes:         m.Notes,
		CompletedAt:   m.CompletedAt,
		DefaultedAt:   m.DefaultedAt,
		CancelledAt:   m.CancelledAt,
		CancelReason:  m.CancelReason,
	}
}

// FromDomain populates the persistence model from a domain PaymentPlan entity.
func (m *PaymentPlanModel) FromDomain(p *billing.PaymentPlan) {
	m.FromDomainTenantAggregateRoot(p.TenantAggregateRoot)
	m.PlanNumber = p.PlanNumber
	m.InvoiceID = p.InvoiceID
	m.InvoiceNumber = p.InvoiceNumber
	m.PatientID = p.PatientID
	m.TotalAmount = p.TotalAmount
	m.Status = p.Status
	m.Installments = p.Installments
	m.Notes = p.Notes
	m.CompletedAt = p.CompletedAt
	m.DefaultedAt = p.DefaultedAt
	m.CancelledAt = p.CancelledAt
	m.CancelReason = p.CancelReason
}

// PaymentPlanModelFromDomain creates a new persistence model from a domain PaymentPlan.
func PaymentPlanModelFromDomain(p *billing.PaymentPlan) *PaymentPlanModel {
	m := &PaymentPlanModel{}
	m.FromDomain(p)
	return m
}
