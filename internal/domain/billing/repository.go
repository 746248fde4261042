package billing

import (
	"context"
	"time"

	"github.com/dentalclinic/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InvoiceFilter defines filtering options for invoice queries
type InvoiceFilter struct {
	shared.Filter
	PatientID *uuid.UUID       // Filter by patient
	Status    *InvoiceStatus   // Filter by status
	FromDate  *time.Time       // Filter by issue date range start
	ToDate    *time.Time       // Filter by issue date range end
	DueFrom   *time.Time       // Filter by due date range start
	DueTo     *time.Time       // Filter by due date range end
	Overdue   *bool            // Filter only overdue invoices
	MinAmount *decimal.Decimal // Filter by minimum amount due
	MaxAmount *decimal.Decimal // Filter by maximum amount due
}

// InvoiceRepository defines the interface for invoice persistence
type InvoiceRepository interface {
	// FindByID finds an invoice by ID
	FindByID(ctx context.Context, id uuid.UUID) (*Invoice, error)

	// FindByIDForTenant finds an invoice by ID for a specific tenant
	FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*Invoice, error)

	// FindByInvoiceNumber finds by invoice number for a tenant
	FindByInvoiceNumber(ctx context.Context, tenantID uuid.UUID, invoiceNumber string) (*Invoice, error)

	// FindAllForTenant finds all invoices for a tenant with filtering
	FindAllForTenant(ctx context.Context, tenantID uuid.UUID, filter InvoiceFilter) ([]Invoice, error)

	// FindByPatient finds invoices for a patient
	FindByPatient(ctx context.Context, tenantID, patientID uuid.UUID, filter InvoiceFilter) ([]Invoice, error)

	// FindOutstanding finds all invoices with a balance remaining for a patient
	FindOutstanding(ctx context.Context, tenantID, patientID uuid.UUID) ([]Invoice, error)

	// FindPastDue finds unpaid or partially paid invoices whose due date has
	// passed but are not yet flagged OVERDUE
	FindPastDue(ctx context.Context, tenantID uuid.UUID, asOf time.Time, limit int) ([]Invoice, error)

	// Save creates or updates an invoice
	Save(ctx context.Context, invoice *Invoice) error

	// SaveWithLock saves with optimistic locking (version check)
	SaveWithLock(ctx context.Context, invoice *Invoice) error

	// DeleteForTenant soft deletes an invoice for a tenant
	DeleteForTenant(ctx context.Context, tenantID, id uuid.UUID) error

	// CountForTenant counts invoices for a tenant with optional filters
	CountForTenant(ctx context.Context, tenantID uuid.UUID, filter InvoiceFilter) (int64, error)

	// SumOutstandingByPatient calculates the total amount due across a patient's invoices
	SumOutstandingByPatient(ctx context.Context, tenantID, patientID uuid.UUID) (decimal.Decimal, error)

	// SumOutstandingForTenant calculates the total amount due across a tenant's invoices
	SumOutstandingForTenant(ctx context.Context, tenantID uuid.UUID) (decimal.Decimal, error)

	// ExistsByInvoiceNumber checks if an invoice number exists for a tenant
	ExistsByInvoiceNumber(ctx context.Context, tenantID uuid.UUID, invoiceNumber string) (bool, error)

	// GenerateInvoiceNumber generates a unique sequential invoice number for a tenant
	GenerateInvoiceNumber(ctx context.Context, tenantID uuid.UUID) (string, error)
}

// PaymentFilter defines filtering options for payment queries
type PaymentFilter struct {
	shared.Filter
	PatientID *uuid.UUID     // Filter by patient
	Status    *PaymentStatus // Filter by status
	Type      *PaymentType   // Filter by payment type
	Method    *PaymentMethod // Filter by payment method
	FromDate  *time.Time     // Filter by payment date range start
	ToDate    *time.Time     // Filter by payment date range end
}

// PaymentRepository defines the interface for payment persistence
type PaymentRepository interface {
	// FindByID finds a payment by ID
	FindByID(ctx context.Context, id uuid.UUID) (*Payment, error)

	// FindByIDForTenant finds a payment by ID for a specific tenant
	FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*Payment, error)

	// FindByPaymentNumber finds by payment number for a tenant
	FindByPaymentNumber(ctx context.Context, tenantID uuid.UUID, paymentNumber string) (*Payment, error)

	// FindAllForTenant finds all payments for a tenant with filtering
	FindAllForTenant(ctx context.Context, tenantID uuid.UUID, filter PaymentFilter) ([]Payment, error)

	// FindByPatient finds payments for a patient
	FindByPatient(ctx context.Context, tenantID, patientID uuid.UUID, filter PaymentFilter) ([]Payment, error)

	// FindWithCredit finds completed payments with unallocated amounts for a
	// patient, oldest payment date first
	FindWithCredit(ctx context.Context, tenantID, patientID uuid.UUID) ([]Payment, error)

	// Save creates or updates a payment
	Save(ctx context.Context, payment *Payment) error

	// SaveWithLock saves with optimistic locking (version check)
	SaveWithLock(ctx context.Context, payment *Payment) error

	// CountForTenant counts payments for a tenant with optional filters
	CountForTenant(ctx context.Context, tenantID uuid.UUID, filter PaymentFilter) (int64, error)

	// SumCreditByPatient calculates the total unallocated amount across a
	// patient's completed payments
	SumCreditByPatient(ctx context.Context, tenantID, patientID uuid.UUID) (decimal.Decimal, error)

	// SumReceivedForTenant calculates total completed payment amounts within a date range
	SumReceivedForTenant(ctx context.Context, tenantID uuid.UUID, from, to time.Time) (decimal.Decimal, error)

	// GeneratePaymentNumber generates a unique sequential payment number for a tenant
	GeneratePaymentNumber(ctx context.Context, tenantID uuid.UUID) (string, error)
}

// LedgerFilter defines filtering options for ledger queries
type LedgerFilter struct {
	shared.Filter
	EntryType *LedgerEntryType // Filter by entry type
	InvoiceID *uuid.UUID       // Filter by source invoice
	PaymentID *uuid.UUID       // Filter by source payment
	FromDate  *time.Time       // Filter by entry date range start
	ToDate    *time.Time       // Filter by entry date range end
}

// LedgerRepository defines the interface for the append-only patient ledger.
// Entries are never updated or deleted; corrections append reversal entries.
type LedgerRepository interface {
	// Append stores new ledger entries
	Append(ctx context.Context, entries ...*LedgerEntry) error

	// FindByPatient returns a patient's entries, oldest first
	FindByPatient(ctx context.Context, tenantID, patientID uuid.UUID, filter LedgerFilter) (LedgerEntries, error)

	// FindByInvoice returns all entries referencing an invoice
	FindByInvoice(ctx context.Context, tenantID, invoiceID uuid.UUID) (LedgerEntries, error)

	// BalanceByPatient computes the net signed balance from the patient's entries
	BalanceByPatient(ctx context.Context, tenantID, patientID uuid.UUID) (decimal.Decimal, error)

	// CountByPatient counts a patient's ledger entries
	CountByPatient(ctx context.Context, tenantID, patientID uuid.UUID, filter LedgerFilter) (int64, error)
}

// RefundFilter defines filtering options for refund queries
type RefundFilter struct {
	shared.Filter
	PatientID *uuid.UUID    // Filter by patient
	Status    *RefundStatus // Filter by status
	Source    *RefundSource // Filter by refund source
	FromDate  *time.Time    // Filter by request date range start
	ToDate    *time.Time    // Filter by request date range end
}

// RefundRepository defines the interface for refund persistence
type RefundRepository interface {
	// FindByID finds a refund by ID
	FindByID(ctx context.Context, id uuid.UUID) (*Refund, error)

	// FindByIDForTenant finds a refund by ID for a specific tenant
	FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*Refund, error)

	// FindAllForTenant finds all refunds for a tenant with filtering
	FindAllForTenant(ctx context.Context, tenantID uuid.UUID, filter RefundFilter) ([]Refund, error)

	// FindByPatient finds refunds for a patient
	FindByPatient(ctx context.Context, tenantID, patientID uuid.UUID, filter RefundFilter) ([]Refund, error)

	// FindByPayment finds refunds drawing from a specific payment
	FindByPayment(ctx context.Context, tenantID, paymentID uuid.UUID) ([]Refund, error)

	// Save creates or updates a refund
	Save(ctx context.Context, refund *Refund) error

	// SaveWithLock saves with optimistic locking (version check)
	SaveWithLock(ctx context.Context, refund *Refund) error

	// SumRefundedByPayment calculates the total processed refund amount drawn from a payment
	SumRefundedByPayment(ctx context.Context, tenantID, paymentID uuid.UUID) (decimal.Decimal, error)

	// SumProcessedByPatient calculates the total processed refund amount for a patient
	SumProcessedByPatient(ctx context.Context, tenantID, patientID uuid.UUID) (decimal.Decimal, error)

	// GenerateRefundNumber generates a unique sequential refund number for a tenant
	GenerateRefundNumber(ctx context.Context, tenantID uuid.UUID) (string, error)
}

// PaymentPlanFilter defines filtering options for payment plan queries
type PaymentPlanFilter struct {
	shared.Filter
	PatientID *uuid.UUID         // Filter by patient
	InvoiceID *uuid.UUID         // Filter by invoice
	Status    *PaymentPlanStatus // Filter by status
}

// PaymentPlanRepository defines the interface for payment plan persistence
type PaymentPlanRepository interface {
	// FindByID finds a payment plan by ID
	FindByID(ctx context.Context, id uuid.UUID) (*PaymentPlan, error)

	// FindByIDForTenant finds a payment plan by ID for a specific tenant
	FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*PaymentPlan, error)

	// FindByInvoice finds the plan covering an invoice, if any
	FindByInvoice(ctx context.Context, tenantID, invoiceID uuid.UUID) (*PaymentPlan, error)

	// FindAllForTenant finds all payment plans for a tenant with filtering
	FindAllForTenant(ctx context.Context, tenantID uuid.UUID, filter PaymentPlanFilter) ([]PaymentPlan, error)

	// FindActiveWithDueInstallments finds active plans holding installments due
	// on or before the given date
	FindActiveWithDueInstallments(ctx context.Context, tenantID uuid.UUID, asOf time.Time) ([]PaymentPlan, error)

	// Save creates or updates a payment plan
	Save(ctx context.Context, plan *PaymentPlan) error

	// SaveWithLock saves with optimistic locking (version check)
	SaveWithLock(ctx context.Context, plan *PaymentPlan) error

	// GeneratePlanNumber generates a unique sequential plan number for a tenant
	GeneratePlanNumber(ctx context.Context, tenantID uuid.UUID) (string, error)
}
