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

// PaymentStatus represents the lifecycle status of a payment
type PaymentStatus string

const (
	PaymentStatusCompleted PaymentStatus = "COMPLETED" // Recorded and applied, the normal state
	PaymentStatusVoided    PaymentStatus = "VOIDED"    // Reversed, allocations released
)

// IsValid checks if the status is a valid PaymentStatus
func (s PaymentStatus) IsValid() bool {
	return s == PaymentStatusCompleted || s == PaymentStatusVoided
}

// String returns the string representation of PaymentStatus
func (s PaymentStatus) String() string {
	return string(s)
}

// PaymentType distinguishes money coming in from money going back out
type PaymentType string

const (
	PaymentTypePayment PaymentType = "PAYMENT" // Money received against treatment
	PaymentTypeCredit  PaymentType = "CREDIT"  // Advance payment with no invoice link yet
	PaymentTypeRefund  PaymentType = "REFUND"  // Money returned to the patient
)

// IsValid checks if the payment type is valid
func (t PaymentType) IsValid() bool {
	return t == PaymentTypePayment || t == PaymentTypeCredit || t == PaymentTypeRefund
}

// String returns the string representation of PaymentType
func (t PaymentType) String() string {
	return string(t)
}

// PaymentMethod represents how a payment was tendered
type PaymentMethod string

const (
	PaymentMethodCash         PaymentMethod = "CASH"
	PaymentMethodCard         PaymentMethod = "CARD"
	PaymentMethodBankTransfer PaymentMethod = "BANK_TRANSFER"
	PaymentMethodCheck        PaymentMethod = "CHECK"
	PaymentMethodInsurance    PaymentMethod = "INSURANCE"
	PaymentMethodOther        PaymentMethod = "OTHER"
)

// IsValid checks if the payment method is valid
func (m PaymentMethod) IsValid() bool {
	switch m {
	case PaymentMethodCash, PaymentMethodCard, PaymentMethodBankTransfer,
		PaymentMethodCheck, PaymentMethodInsurance, PaymentMethodOther:
		return true
	}
	return false
}

// String returns the string representation of PaymentMethod
func (m PaymentMethod) String() string {
	return string(m)
}

// PaymentAllocation records how much of this payment was allocated to one
// invoice. It is the payment-side view of a PaymentApplication, stored as
// JSONB within the Payment aggregate.
type PaymentAllocation struct {
	ID            uuid.UUID       `json:"id"`
	InvoiceID     uuid.UUID       `json:"invoice_id"`
	InvoiceNumber string          `json:"invoice_number"`
	Amount        decimal.Decimal `json:"amount"`
	AllocatedAt   time.Time       `json:"allocated_at"`
	Remark        string          `json:"remark,omitempty"`
}

// PaymentAllocations is a slice of PaymentAllocation that implements GORM Scanner/Valuer for JSONB storage
type PaymentAllocations []PaymentAllocation

// Value implements driver.Valuer interface for GORM to store as JSONB
func (a PaymentAllocations) Value() (driver.Value, error) {
	if a == nil {
		return "[]", nil
	}
	return json.Marshal(a)
}

// Scan implements sql.Scanner interface for GORM to read from JSONB
func (a *PaymentAllocations) Scan(value interface{}) error {
	if value == nil {
		*a = PaymentAllocations{}
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return errors.New("failed to scan PaymentAllocations: unsupported type")
	}
	if len(bytes) == 0 {
		*a = PaymentAllocations{}
		return nil
	}
	return json.Unmarshal(bytes, a)
}

// Total returns the sum of all allocation amounts
func (a PaymentAllocations) Total() decimal.Decimal {
	total := decimal.Zero
	for i := range a {
		total = total.Add(a[i].Amount)
	}
	return total
}

// Payment represents money received from (or on behalf of) a patient. The
// invariant sum(allocations) <= amount always holds; the unallocated remainder
// is the patient's credit balance contribution.
type Payment struct {
	shared.TenantAggregateRoot
	PaymentNumber string             `json:"payment_number"`
	PatientID     uuid.UUID          `json:"patient_id"`
	PatientName   string             `json:"patient_name"`
	Type          PaymentType        `json:"type"`
	Amount        decimal.Decimal    `json:"amount"`
	Method        PaymentMethod      `json:"method"`
	Reference     string             `json:"reference,omitempty"` // Check number, card auth code, transfer id
	PaymentDate   time.Time          `json:"payment_date"`
	Status        PaymentStatus      `json:"status"`
	Allocations   PaymentAllocations `json:"allocations"`
	// RefundedAmount is how much of this payment has been returned to the
	// patient. Refunded money leaves the unallocated pool permanently.
	RefundedAmount decimal.Decimal `json:"refunded_amount"`
	Notes          string          `json:"notes"`
	VoidedAt      *time.Time         `json:"voided_at,omitempty"`
	VoidReason    string             `json:"void_reason,omitempty"`
}

// NewPayment creates a new completed payment with no allocations
func NewPayment(
	tenantID uuid.UUID,
	paymentNumber string,
	patientID uuid.UUID,
	patientName string,
	amount decimal.Decimal,
	method PaymentMethod,
	reference string,
	paymentDate time.Time,
	notes string,
) (*Payment, error) {
	return newPayment(tenantID, paymentNumber, patientID, patientName, PaymentTypePayment, amount, method, reference, paymentDate, notes)
}

// NewAdvancePayment creates a CREDIT payment: money received with no invoice
// link, held as patient credit until applied.
func NewAdvancePayment(
	tenantID uuid.UUID,
	paymentNumber string,
	patientID uuid.UUID,
	patientName string,
	amount decimal.Decimal,
	method PaymentMethod,
	reference string,
	paymentDate time.Time,
	notes string,
) (*Payment, error) {
	return newPayment(tenantID, paymentNumber, patientID, patientName, PaymentTypeCredit, amount, method, reference, paymentDate, notes)
}

// NewRefundPayment creates a REFUND payment: money going back out to the
// patient. Refund payments are never allocated and contribute no credit.
func NewRefundPayment(
	tenantID uuid.UUID,
	paymentNumber string,
	patientID uuid.UUID,
	patientName string,
	amount decimal.Decimal,
	method PaymentMethod,
	reference string,
	paymentDate time.Time,
	notes string,
) (*Payment, error) {
	return newPayment(tenantID, paymentNumber, patientID, patientName, PaymentTypeRefund, amount, method, reference, paymentDate, notes)
}

func newPayment(
	tenantID uuid.UUID,
	paymentNumber string,
	patientID uuid.UUID,
	patientName string,
	paymentType PaymentType,
	amount decimal.Decimal,
	method PaymentMethod,
	reference string,
	paymentDate time.Time,
	notes string,
) (*Payment, error) {
	if paymentNumber == "" {
		return nil, shared.NewValidationError("INVALID_PAYMENT_NUMBER", "Payment number cannot be empty")
	}
	if patientID == uuid.Nil {
		return nil, shared.NewValidationError("INVALID_PATIENT", "Patient ID cannot be empty")
	}
	if patientName == "" {
		return nil, shared.NewValidationError("INVALID_PATIENT_NAME", "Patient name cannot be empty")
	}
	if !paymentType.IsValid() {
		return nil, shared.NewValidationError("INVALID_TYPE", fmt.Sprintf("Unknown payment type %q", paymentType))
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, shared.NewValidationError("INVALID_AMOUNT", "Payment amount must be positive")
	}
	if !method.IsValid() {
		return nil, shared.NewValidationError("INVALID_METHOD", fmt.Sprintf("Unknown payment method %q", method))
	}
	if paymentDate.IsZero() {
		return nil, shared.NewValidationError("INVALID_PAYMENT_DATE", "Payment date is required")
	}

	p := &Payment{
		TenantAggregateRoot: shared.NewTenantAggregateRoot(tenantID),
		PaymentNumber:       paymentNumber,
		PatientID:           patientID,
		PatientName:         patientName,
		Type:                paymentType,
		Amount:              amount,
		Method:              method,
		Reference:           reference,
		PaymentDate:         paymentDate,
		Status:              PaymentStatusCompleted,
		Allocations:         PaymentAllocations{},
		RefundedAmount:      decimal.Zero,
		Notes:               notes,
	}

	p.AddDomainEvent(NewPaymentRecordedEvent(p))

	return p, nil
}

// AllocatedAmount returns the total amount already allocated to invoices
func (p *Payment) AllocatedAmount() decimal.Decimal {
	return p.Allocations.Total()
}

// UnallocatedAmount returns the remaining amount available for allocation.
// Voided payments and outbound refunds contribute nothing; refunded money
// is gone from the pool.
func (p *Payment) UnallocatedAmount() decimal.Decimal {
	if p.Status == PaymentStatusVoided || p.Type == PaymentTypeRefund {
		return decimal.Zero
	}
	return p.Amount.Sub(p.AllocatedAmount()).Sub(p.RefundedAmount)
}

// IsFullyAllocated returns true if no unallocated amount remains
func (p *Payment) IsFullyAllocated() bool {
	return p.UnallocatedAmount().IsZero()
}

// HasAllocationFor returns true if an allocation to the given invoice exists
func (p *Payment) HasAllocationFor(invoiceID uuid.UUID) bool {
	for i := range p.Allocations {
		if p.Allocations[i].InvoiceID == invoiceID {
			return true
		}
	}
	return false
}

// Allocate records an allocation of part of this payment to an invoice.
// Duplicate allocations to the same invoice are rejected; the sum of
// allocations can never exceed the payment amount.
func (p *Payment) Allocate(invoiceID uuid.UUID, invoiceNumber string, amount decimal.Decimal, remark string) error {
	if p.Status != PaymentStatusCompleted {
		return shared.NewConflictError("INVALID_STATE",
			fmt.Sprintf("Cannot allocate payment in %s status", p.Status))
	}
	if p.Type == PaymentTypeRefund {
		return shared.NewConflictError("INVALID_STATE", "Refund payments cannot be allocated")
	}
	if invoiceID == uuid.Nil {
		return shared.NewValidationError("INVALID_INVOICE", "Invoice ID cannot be empty")
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return shared.NewValidationError("INVALID_AMOUNT", "Allocation amount must be positive")
	}
	if p.HasAllocationFor(invoiceID) {
		return shared.NewConflictError("DUPLICATE_ALLOCATION",
			fmt.Sprintf("Payment already allocated to invoice %s", invoiceNumber))
	}
	if amount.GreaterThan(p.UnallocatedAmount()) {
		return shared.NewValidationError("EXCEEDS_UNALLOCATED",
			fmt.Sprintf("Allocation %.2f exceeds unallocated amount %.2f",
				amount.InexactFloat64(), p.UnallocatedAmount().InexactFloat64()))
	}

	p.Allocations = append(p.Allocations, PaymentAllocation{
		ID:            uuid.New(),
		InvoiceID:     invoiceID,
		InvoiceNumber: invoiceNumber,
		Amount:        amount,
		AllocatedAt:   time.Now(),
		Remark:        remark,
	})

	p.AddDomainEvent(NewPaymentAllocatedEvent(p, invoiceID, amount))
	p.UpdatedAt = time.Now()
	return nil
}

// ReleaseAllocation removes the allocation to the given invoice, returning the
// released amount to the unallocated pool.
func (p *Payment) ReleaseAllocation(invoiceID uuid.UUID) (decimal.Decimal, error) {
	if p.Status != PaymentStatusCompleted {
		return decimal.Zero, shared.NewConflictError("INVALID_STATE",
			fmt.Sprintf("Cannot release allocation of payment in %s status", p.Status))
	}

	idx := -1
	for i := range p.Allocations {
		if p.Allocations[i].InvoiceID == invoiceID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return decimal.Zero, shared.NewNotFoundError("ALLOCATION_NOT_FOUND",
			"Payment has no allocation to this invoice")
	}

	released := p.Allocations[idx].Amount
	p.Allocations = append(p.Allocations[:idx], p.Allocations[idx+1:]...)
	p.UpdatedAt = time.Now()
	return released, nil
}

// AllocationRelease records an amount returned from one invoice when part of a
// payment is unwound.
type AllocationRelease struct {
	InvoiceID     uuid.UUID
	InvoiceNumber string
	Amount        decimal.Decimal
}

// Deallocate returns amount from the allocated pool, unwinding allocations
// newest first. A partially consumed allocation is reduced in place. The
// returned releases tell the caller which invoices to back out.
func (p *Payment) Deallocate(amount decimal.Decimal) ([]AllocationRelease, error) {
	if p.Status != PaymentStatusCompleted {
		return nil, shared.NewConflictError("INVALID_STATE",
			fmt.Sprintf("Cannot deallocate payment in %s status", p.Status))
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, shared.NewValidationError("INVALID_AMOUNT", "Deallocation amount must be positive")
	}
	if amount.GreaterThan(p.AllocatedAmount()) {
		return nil, shared.NewValidationError("EXCEEDS_ALLOCATED",
			fmt.Sprintf("Deallocation %.2f exceeds allocated amount %.2f",
				amount.InexactFloat64(), p.AllocatedAmount().InexactFloat64()))
	}

	var releases []AllocationRelease
	remaining := amount
	for i := len(p.Allocations) - 1; i >= 0 && remaining.IsPositive(); i-- {
		alloc := &p.Allocations[i]
		portion := decimal.Min(alloc.Amount, remaining)
		releases = append(releases, AllocationRelease{
			InvoiceID:     alloc.InvoiceID,
			InvoiceNumber: alloc.InvoiceNumber,
			Amount:        portion,
		})
		remaining = remaining.Sub(portion)
		if portion.Equal(alloc.Amount) {
			p.Allocations = append(p.Allocations[:i], p.Allocations[i+1:]...)
		} else {
			alloc.Amount = alloc.Amount.Sub(portion)
		}
	}

	p.UpdatedAt = time.Now()
	return releases, nil
}

// MarkRefunded moves amount from the unallocated pool into the refunded
// total. The caller must have freed enough of the payment first; refunded
// money can never be allocated again.
func (p *Payment) MarkRefunded(amount decimal.Decimal) error {
	if p.Status != PaymentStatusCompleted {
		return shared.NewConflictError("INVALID_STATE",
			fmt.Sprintf("Cannot refund payment in %s status", p.Status))
	}
	if p.Type == PaymentTypeRefund {
		return shared.NewConflictError("INVALID_STATE", "Refund payments cannot themselves be refunded")
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return shared.NewValidationError("INVALID_AMOUNT", "Refunded amount must be positive")
	}
	if amount.GreaterThan(p.UnallocatedAmount()) {
		return shared.NewValidationError("EXCEEDS_UNALLOCATED",
			fmt.Sprintf("Refund %.2f exceeds unallocated amount %.2f",
				amount.InexactFloat64(), p.UnallocatedAmount().InexactFloat64()))
	}

	p.RefundedAmount = p.RefundedAmount.Add(amount)
	p.UpdatedAt = time.Now()
	return nil
}

// Void reverses the payment. The service layer releases its applications from
// the affected invoices; the allocation records stay on the payment for audit.
// Voiding an already-voided payment is a conflict.
func (p *Payment) Void(reason string) error {
	if p.Status == PaymentStatusVoided {
		return shared.NewConflictError("ALREADY_VOIDED", "Payment is already voided")
	}
	if reason == "" {
		return shared.NewValidationError("INVALID_REASON", "Void reason is required")
	}

	now := time.Now()
	p.Status = PaymentStatusVoided
	p.VoidedAt = &now
	p.VoidReason = reason
	p.AddDomainEvent(NewPaymentVoidedEvent(p, reason))
	p.UpdatedAt = now
	return nil
}

// IsVoided returns true if the payment has been voided
func (p *Payment) IsVoided() bool {
	return p.Status == PaymentStatusVoided
}
