package billing

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dentalclinic/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentPlanStatus represents the lifecycle status of a payment plan
type PaymentPlanStatus string

const (
	PaymentPlanStatusActive    PaymentPlanStatus = "ACTIVE"
	PaymentPlanStatusCompleted PaymentPlanStatus = "COMPLETED" // All installments paid, terminal
	PaymentPlanStatusDefaulted PaymentPlanStatus = "DEFAULTED" // Patient stopped paying
	PaymentPlanStatusCancelled PaymentPlanStatus = "CANCELLED" // Terminal
)

// IsValid checks if the status is a valid PaymentPlanStatus
func (s PaymentPlanStatus) IsValid() bool {
	switch s {
	case PaymentPlanStatusActive, PaymentPlanStatusCompleted,
		PaymentPlanStatusDefaulted, PaymentPlanStatusCancelled:
		return true
	}
	return false
}

// String returns the string representation of PaymentPlanStatus
func (s PaymentPlanStatus) String() string {
	return string(s)
}

// IsTerminal returns true if the plan can no longer change
func (s PaymentPlanStatus) IsTerminal() bool {
	return s == PaymentPlanStatusCompleted || s == PaymentPlanStatusCancelled
}

// InstallmentStatus represents the status of a single installment
type InstallmentStatus string

const (
	InstallmentStatusPending       InstallmentStatus = "PENDING"
	InstallmentStatusPartiallyPaid InstallmentStatus = "PARTIALLY_PAID"
	InstallmentStatusPaid          InstallmentStatus = "PAID"
	InstallmentStatusOverdue       InstallmentStatus = "OVERDUE"
	InstallmentStatusDefaulted     InstallmentStatus = "DEFAULTED"
)

// Installment is one scheduled portion of a payment plan, a value object
// stored as JSONB within the PaymentPlan aggregate. PaidAmount accumulates
// partial payments until it reaches Amount.
type Installment struct {
	ID         uuid.UUID         `json:"id"`
	Sequence   int               `json:"sequence"`
	Amount     decimal.Decimal   `json:"amount"`
	PaidAmount decimal.Decimal   `json:"paid_amount"`
	DueDate    time.Time         `json:"due_date"`
	Status     InstallmentStatus `json:"status"`
	PaidAt     *time.Time        `json:"paid_at,omitempty"`
	PaymentID  *uuid.UUID        `json:"payment_id,omitempty"`
}

// IsSettled returns true if the installment no longer awaits payment
func (i *Installment) IsSettled() bool {
	return i.Status == InstallmentStatusPaid
}

// RemainingAmount returns how much of the installment is still owed
func (i *Installment) RemainingAmount() decimal.Decimal {
	return i.Amount.Sub(i.PaidAmount)
}

// Installments is a slice of Installment that implements GORM Scanner/Valuer for JSONB storage
type Installments []Installment

// Value implements driver.Valuer interface for GORM to store as JSONB
func (ins Installments) Value() (driver.Value, error) {
	if ins == nil {
		return "[]", nil
	}
	return json.Marshal(ins)
}

// Scan implements sql.Scanner interface for GORM to read from JSONB
func (ins *Installments) Scan(value interface{}) error {
	if value == nil {
		*ins = Installments{}
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return errors.New("failed to scan Installments: unsupported type")
	}
	if len(bytes) == 0 {
		*ins = Installments{}
		return nil
	}
	return json.Unmarshal(bytes, ins)
}

// Total returns the sum of all installment amounts
func (ins Installments) Total() decimal.Decimal {
	total := decimal.Zero
	for i := range ins {
		total = total.Add(ins[i].Amount)
	}
	return total
}

// InstallmentSpec describes one installment when creating a plan
type InstallmentSpec struct {
	Amount  decimal.Decimal
	DueDate time.Time
}

// PaymentPlan schedules the balance of an invoice across multiple dated
// installments. The installment amounts must sum exactly to the plan total.
type PaymentPlan struct {
	shared.TenantAggregateRoot
	PlanNumber    string            `json:"plan_number"`
	InvoiceID     uuid.UUID         `json:"invoice_id"`
	InvoiceNumber string            `json:"invoice_number"`
	PatientID     uuid.UUID         `json:"patient_id"`
	TotalAmount   decimal.Decimal   `json:"total_amount"`
	Status        PaymentPlanStatus `json:"status"`
	Installments  Installments      `json:"installments"`
	Notes         string            `json:"notes"`
	CompletedAt   *time.Time        `json:"completed_at,omitempty"`
	DefaultedAt   *time.Time        `json:"defaulted_at,omitempty"`
	CancelledAt   *time.Time        `json:"cancelled_at,omitempty"`
	CancelReason  string            `json:"cancel_reason,omitempty"`
}

// NewPaymentPlan creates an active plan over the given invoice balance.
// Installments must be non-empty, strictly date-ordered, each positive, and
// sum exactly to totalAmount.
func NewPaymentPlan(
	tenantID uuid.UUID,
	planNumber string,
	invoiceID uuid.UUID,
	invoiceNumber string,
	patientID uuid.UUID,
	totalAmount decimal.Decimal,
	specs []InstallmentSpec,
	notes string,
) (*PaymentPlan, error) {
	if planNumber == "" {
		return nil, shared.NewValidationError("INVALID_PLAN_NUMBER", "Plan number cannot be empty")
	}
	if invoiceID == uuid.Nil {
		return nil, shared.NewValidationError("INVALID_INVOICE", "Invoice ID cannot be empty")
	}
	if patientID == uuid.Nil {
		return nil, shared.NewValidationError("INVALID_PATIENT", "Patient ID cannot be empty")
	}
	if totalAmount.LessThanOrEqual(decimal.Zero) {
		return nil, shared.NewValidationError("INVALID_AMOUNT", "Plan total must be positive")
	}
	if len(specs) < 2 {
		return nil, shared.NewValidationError("TOO_FEW_INSTALLMENTS", "Plan must have at least two installments")
	}

	installments := make(Installments, len(specs))
	var prev time.Time
	for i, spec := range specs {
		if spec.Amount.LessThanOrEqual(decimal.Zero) {
			return nil, shared.NewValidationError("INVALID_INSTALLMENT_AMOUNT",
				fmt.Sprintf("Installment %d amount must be positive", i+1))
		}
		if spec.DueDate.IsZero() {
			return nil, shared.NewValidationError("INVALID_INSTALLMENT_DATE",
				fmt.Sprintf("Installment %d due date is required", i+1))
		}
		if i > 0 && !spec.DueDate.After(prev) {
			return nil, shared.NewValidationError("INVALID_INSTALLMENT_DATE",
				"Installment due dates must be strictly increasing")
		}
		prev = spec.DueDate
		installments[i] = Installment{
			ID:         uuid.New(),
			Sequence:   i + 1,
			Amount:     spec.Amount,
			PaidAmount: decimal.Zero,
			DueDate:    spec.DueDate,
			Status:     InstallmentStatusPending,
		}
	}

	if !installments.Total().Equal(totalAmount) {
		return nil, shared.NewValidationError("INSTALLMENT_SUM_MISMATCH",
			fmt.Sprintf("Installments sum to %.2f, expected %.2f",
				installments.Total().InexactFloat64(), totalAmount.InexactFloat64()))
	}

	p := &PaymentPlan{
		TenantAggregateRoot: shared.NewTenantAggregateRoot(tenantID),
		PlanNumber:          planNumber,
		InvoiceID:           invoiceID,
		InvoiceNumber:       invoiceNumber,
		PatientID:           patientID,
		TotalAmount:         totalAmount,
		Status:              PaymentPlanStatusActive,
		Installments:        installments,
		Notes:               notes,
	}

	p.AddDomainEvent(NewPaymentPlanCreatedEvent(p))

	return p, nil
}

// NextUnpaidInstallment returns the earliest installment still awaiting
// payment, or nil if all are settled.
func (p *PaymentPlan) NextUnpaidInstallment() *Installment {
	for i := range p.Installments {
		if !p.Installments[i].IsSettled() {
			return &p.Installments[i]
		}
	}
	return nil
}

// RecordInstallmentPayment applies amount to the given installment's paid
// amount. Installments must be settled in sequence order; an amount exceeding
// the installment's remainder is rejected rather than spilled onto the next
// one. When the last installment settles the plan completes.
func (p *PaymentPlan) RecordInstallmentPayment(installmentID, paymentID uuid.UUID, amount decimal.Decimal, paidAt time.Time) error {
	if p.Status != PaymentPlanStatusActive && p.Status != PaymentPlanStatusDefaulted {
		return shared.NewConflictError("INVALID_STATE",
			fmt.Sprintf("Cannot record installment payment on plan in %s status", p.Status))
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return shared.NewValidationError("INVALID_AMOUNT", "Installment payment must be positive")
	}

	next := p.NextUnpaidInstallment()
	if next == nil {
		return shared.NewConflictError("PLAN_SETTLED", "All installments are already paid")
	}
	if next.ID != installmentID {
		return shared.NewValidationError("OUT_OF_ORDER",
			fmt.Sprintf("Installments must be paid in order, next due is #%d", next.Sequence))
	}
	if amount.GreaterThan(next.RemainingAmount()) {
		return shared.NewValidationError("EXCEEDS_INSTALLMENT",
			fmt.Sprintf("Amount %.2f exceeds remaining %.2f on installment #%d",
				amount.InexactFloat64(), next.RemainingAmount().InexactFloat64(), next.Sequence))
	}

	now := time.Now()
	if paidAt.IsZero() {
		paidAt = now
	}
	next.PaidAmount = next.PaidAmount.Add(amount)
	next.PaymentID = &paymentID
	if next.PaidAmount.GreaterThanOrEqual(next.Amount) {
		next.Status = InstallmentStatusPaid
		next.PaidAt = &paidAt
	} else {
		next.Status = InstallmentStatusPartiallyPaid
	}

	// A defaulted plan that resumes paying returns to active; the remaining
	// defaulted installments go back to overdue until the schedule catches up.
	if p.Status == PaymentPlanStatusDefaulted {
		p.Status = PaymentPlanStatusActive
		p.DefaultedAt = nil
		for i := range p.Installments {
			if p.Installments[i].Status == InstallmentStatusDefaulted {
				p.Installments[i].Status = InstallmentStatusOverdue
			}
		}
	}

	if p.NextUnpaidInstallment() == nil {
		p.Status = PaymentPlanStatusCompleted
		p.CompletedAt = &now
		p.AddDomainEvent(NewPaymentPlanCompletedEvent(p))
	}

	p.UpdatedAt = now
	return nil
}

// RefreshOverdue flags pending and partially paid installments past their due
// date as OVERDUE. Returns the number of installments newly flagged.
func (p *PaymentPlan) RefreshOverdue(asOf time.Time) int {
	if p.Status != PaymentPlanStatusActive {
		return 0
	}
	flagged := 0
	for i := range p.Installments {
		ins := &p.Installments[i]
		if (ins.Status == InstallmentStatusPending || ins.Status == InstallmentStatusPartiallyPaid) &&
			asOf.After(ins.DueDate) {
			ins.Status = InstallmentStatusOverdue
			flagged++
		}
	}
	if flagged > 0 {
		p.UpdatedAt = time.Now()
	}
	return flagged
}

// MarkDefaulted flags the plan and all its unsettled installments as
// defaulted. Only active plans with at least one overdue installment default.
func (p *PaymentPlan) MarkDefaulted() error {
	if p.Status != PaymentPlanStatusActive {
		return shared.NewConflictError("INVALID_STATE",
			fmt.Sprintf("Cannot default plan in %s status", p.Status))
	}

	hasOverdue := false
	for i := range p.Installments {
		if p.Installments[i].Status == InstallmentStatusOverdue {
			hasOverdue = true
			break
		}
	}
	if !hasOverdue {
		return shared.NewValidationError("NOT_OVERDUE", "Plan has no overdue installments")
	}

	now := time.Now()
	for i := range p.Installments {
		ins := &p.Installments[i]
		if ins.Status == InstallmentStatusPending || ins.Status == InstallmentStatusOverdue {
			ins.Status = InstallmentStatusDefaulted
		}
	}
	p.Status = PaymentPlanStatusDefaulted
	p.DefaultedAt = &now
	p.AddDomainEvent(NewPaymentPlanDefaultedEvent(p))
	p.UpdatedAt = now
	return nil
}

// Cancel terminates the plan; the invoice balance falls back to ordinary
// collection. Plans with no installments paid yet or partially paid plans can
// both be cancelled.
func (p *PaymentPlan) Cancel(reason string) error {
	if p.Status.IsTerminal() {
		return shared.NewConflictError("INVALID_STATE",
			fmt.Sprintf("Cannot cancel plan in %s status", p.Status))
	}
	if reason == "" {
		return shared.NewValidationError("INVALID_REASON", "Cancel reason is required")
	}

	now := time.Now()
	p.Status = PaymentPlanStatusCancelled
	p.CancelledAt = &now
	p.CancelReason = reason
	p.UpdatedAt = now
	return nil
}

// PaidAmount returns the total applied across all installments, partial
// payments included.
func (p *PaymentPlan) PaidAmount() decimal.Decimal {
	total := decimal.Zero
	for i := range p.Installments {
		total = total.Add(p.Installments[i].PaidAmount)
	}
	return total
}

// RemainingAmount returns how much of the plan total is still owed
func (p *PaymentPlan) RemainingAmount() decimal.Decimal {
	return p.TotalAmount.Sub(p.PaidAmount())
}
