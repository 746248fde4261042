package billing

import (
	"time"

	"github.com/dentalclinic/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InvoiceCreatedEvent is raised when a new invoice is issued
type InvoiceCreatedEvent struct {
	shared.BaseDomainEvent
	InvoiceID     uuid.UUID       `json:"invoice_id"`
	InvoiceNumber string          `json:"invoice_number"`
	PatientID     uuid.UUID       `json:"patient_id"`
	PatientName   string          `json:"patient_name"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	IssueDate     time.Time       `json:"issue_date"`
	DueDate       time.Time       `json:"due_date"`
	ItemCount     int             `json:"item_count"`
}

// EventType returns the event type name
func (e *InvoiceCreatedEvent) EventType() string {
	return "InvoiceCreated"
}

// NewInvoiceCreatedEvent creates a new InvoiceCreatedEvent
func NewInvoiceCreatedEvent(inv *Invoice) *InvoiceCreatedEvent {
	return &InvoiceCreatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent("InvoiceCreated", "Invoice", inv.ID, inv.TenantID),
		InvoiceID:       inv.ID,
		InvoiceNumber:   inv.InvoiceNumber,
		PatientID:       inv.PatientID,
		PatientName:     inv.PatientName,
		TotalAmount:     inv.TotalAmount,
		IssueDate:       inv.IssueDate,
		DueDate:         inv.DueDate,
		ItemCount:       len(inv.Items),
	}
}

// InvoicePaidEvent is raised when an invoice becomes fully paid
type InvoicePaidEvent struct {
	shared.BaseDomainEvent
	InvoiceID     uuid.UUID       `json:"invoice_id"`
	InvoiceNumber string          `json:"invoice_number"`
	PatientID     uuid.UUID       `json:"patient_id"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	AmountPaid    decimal.Decimal `json:"amount_paid"`
	PaidAt        time.Time       `json:"paid_at"`
}

// EventType returns the event type name
func (e *InvoicePaidEvent) EventType() string {
	return "InvoicePaid"
}

// NewInvoicePaidEvent creates a new InvoicePaidEvent
func NewInvoicePaidEvent(inv *Invoice) *InvoicePaidEvent {
	paidAt := time.Now()
	if inv.PaidAt != nil {
		paidAt = *inv.PaidAt
	}
	return &InvoicePaidEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent("InvoicePaid", "Invoice", inv.ID, inv.TenantID),
		InvoiceID:       inv.ID,
		InvoiceNumber:   inv.InvoiceNumber,
		PatientID:       inv.PatientID,
		TotalAmount:     inv.TotalAmount,
		AmountPaid:      inv.AmountPaid,
		PaidAt:          paidAt,
	}
}

// InvoicePartiallyPaidEvent is raised when a payment covers part of an invoice
type InvoicePartiallyPaidEvent struct {
	shared.BaseDomainEvent
	InvoiceID     uuid.UUID       `json:"invoice_id"`
	InvoiceNumber string          `json:"invoice_number"`
	PatientID     uuid.UUID       `json:"patient_id"`
	AppliedAmount decimal.Decimal `json:"applied_amount"`
	AmountPaid    decimal.Decimal `json:"amount_paid"`
	AmountDue     decimal.Decimal `json:"amount_due"`
}

// EventType returns the event type name
func (e *InvoicePartiallyPaidEvent) EventType() string {
	return "InvoicePartiallyPaid"
}

// NewInvoicePartiallyPaidEvent creates a new InvoicePartiallyPaidEvent
func NewInvoicePartiallyPaidEvent(inv *Invoice, appliedAmount decimal.Decimal) *InvoicePartiallyPaidEvent {
	return &InvoicePartiallyPaidEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent("InvoicePartiallyPaid", "Invoice", inv.ID, inv.TenantID),
		InvoiceID:       inv.ID,
		InvoiceNumber:   inv.InvoiceNumber,
		PatientID:       inv.PatientID,
		AppliedAmount:   appliedAmount,
		AmountPaid:      inv.AmountPaid,
		AmountDue:       inv.AmountDue,
	}
}

// InvoicePaymentReleasedEvent is raised when a voided payment is released from an invoice
type InvoicePaymentReleasedEvent struct {
	shared.BaseDomainEvent
	InvoiceID      uuid.UUID       `json:"invoice_id"`
	InvoiceNumber  string          `json:"invoice_number"`
	PatientID      uuid.UUID       `json:"patient_id"`
	PaymentID      uuid.UUID       `json:"payment_id"`
	ReleasedAmount decimal.Decimal `json:"released_amount"`
	PreviousStatus InvoiceStatus   `json:"previous_status"`
	CurrentStatus  InvoiceStatus   `json:"current_status"`
}

// EventType returns the event type name
func (e *InvoicePaymentReleasedEvent) EventType() string {
	return "InvoicePaymentReleased"
}

// NewInvoicePaymentReleasedEvent creates a new InvoicePaymentReleasedEvent
func NewInvoicePaymentReleasedEvent(inv *Invoice, paymentID uuid.UUID, released decimal.Decimal, previousStatus InvoiceStatus) *InvoicePaymentReleasedEvent {
	return &InvoicePaymentReleasedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent("InvoicePaymentReleased", "Invoice", inv.ID, inv.TenantID),
		InvoiceID:       inv.ID,
		InvoiceNumber:   inv.InvoiceNumber,
		PatientID:       inv.PatientID,
		PaymentID:       paymentID,
		ReleasedAmount:  released,
		PreviousStatus:  previousStatus,
		CurrentStatus:   inv.Status,
	}
}

// InvoiceDiscountAppliedEvent is raised when a discount is applied to an invoice
type InvoiceDiscountAppliedEvent struct {
	shared.BaseDomainEvent
	InvoiceID      uuid.UUID       `json:"invoice_id"`
	InvoiceNumber  string          `json:"invoice_number"`
	DiscountType   DiscountType    `json:"discount_type"`
	DiscountValue  decimal.Decimal `json:"discount_value"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	NewTotal       decimal.Decimal `json:"new_total"`
	NewAmountDue   decimal.Decimal `json:"new_amount_due"`
}

// EventType returns the event type name
func (e *InvoiceDiscountAppliedEvent) EventType() string {
	return "InvoiceDiscountApplied"
}

// NewInvoiceDiscountAppliedEvent creates a new InvoiceDiscountAppliedEvent
func NewInvoiceDiscountAppliedEvent(inv *Invoice, discountType DiscountType, value, amount decimal.Decimal) *InvoiceDiscountAppliedEvent {
	return &InvoiceDiscountAppliedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent("InvoiceDiscountApplied", "Invoice", inv.ID, inv.TenantID),
		InvoiceID:       inv.ID,
		InvoiceNumber:   inv.InvoiceNumber,
		DiscountType:    discountType,
		DiscountValue:   value,
		DiscountAmount:  amount,
		NewTotal:        inv.TotalAmount,
		NewAmountDue:    inv.AmountDue,
	}
}

// InvoiceWriteOffAppliedEvent is raised when part or all of an invoice balance is written off
type InvoiceWriteOffAppliedEvent struct {
	shared.BaseDomainEvent
	InvoiceID      uuid.UUID       `json:"invoice_id"`
	InvoiceNumber  string          `json:"invoice_number"`
	PatientID      uuid.UUID       `json:"patient_id"`
	WriteOffAmount decimal.Decimal `json:"write_off_amount"`
	Reason         string          `json:"reason"`
	NewAmountDue   decimal.Decimal `json:"new_amount_due"`
	CurrentStatus  InvoiceStatus   `json:"current_status"`
}

// EventType returns the event type name
func (e *InvoiceWriteOffAppliedEvent) EventType() string {
	return "InvoiceWriteOffApplied"
}

// NewInvoiceWriteOffAppliedEvent creates a new InvoiceWriteOffAppliedEvent
func NewInvoiceWriteOffAppliedEvent(inv *Invoice, amount decimal.Decimal, reason string) *InvoiceWriteOffAppliedEvent {
	return &InvoiceWriteOffAppliedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent("InvoiceWriteOffApplied", "Invoice", inv.ID, inv.TenantID),
		InvoiceID:       inv.ID,
		InvoiceNumber:   inv.InvoiceNumber,
		PatientID:       inv.PatientID,
		WriteOffAmount:  amount,
		Reason:          reason,
		NewAmountDue:    inv.AmountDue,
		CurrentStatus:   inv.Status,
	}
}

// InvoiceCreditNoteIssuedEvent is raised when a credit note corrects an invoice
type InvoiceCreditNoteIssuedEvent struct {
	shared.BaseDomainEvent
	InvoiceID     uuid.UUID       `json:"invoice_id"`
	InvoiceNumber string          `json:"invoice_number"`
	PatientID     uuid.UUID       `json:"patient_id"`
	CreditAmount  decimal.Decimal `json:"credit_amount"`
	Reason        string          `json:"reason"`
	NewTotal      decimal.Decimal `json:"new_total"`
	NewAmountDue  decimal.Decimal `json:"new_amount_due"`
}

// EventType returns the event type name
func (e *InvoiceCreditNoteIssuedEvent) EventType() string {
	return "InvoiceCreditNoteIssued"
}

// NewInvoiceCreditNoteIssuedEvent creates a new InvoiceCreditNoteIssuedEvent
func NewInvoiceCreditNoteIssuedEvent(inv *Invoice, amount decimal.Decimal, reason string) *InvoiceCreditNoteIssuedEvent {
	return &InvoiceCreditNoteIssuedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent("InvoiceCreditNoteIssued", "Invoice", inv.ID, inv.TenantID),
		InvoiceID:       inv.ID,
		InvoiceNumber:   inv.InvoiceNumber,
		PatientID:       inv.PatientID,
		CreditAmount:    amount,
		Reason:          reason,
		NewTotal:        inv.TotalAmount,
		NewAmountDue:    inv.AmountDue,
	}
}

// InvoiceOverdueEvent is raised when an invoice is flagged overdue
type InvoiceOverdueEvent struct {
	shared.BaseDomainEvent
	InvoiceID     uuid.UUID       `json:"invoice_id"`
	InvoiceNumber string          `json:"invoice_number"`
	PatientID     uuid.UUID       `json:"patient_id"`
	AmountDue     decimal.Decimal `json:"amount_due"`
	DueDate       time.Time       `json:"due_date"`
}

// EventType returns the event type name
func (e *InvoiceOverdueEvent) EventType() string {
	return "InvoiceOverdue"
}

// NewInvoiceOverdueEvent creates a new InvoiceOverdueEvent
func NewInvoiceOverdueEvent(inv *Invoice) *InvoiceOverdueEvent {
	return &InvoiceOverdueEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent("InvoiceOverdue", "Invoice", inv.ID, inv.TenantID),
		InvoiceID:       inv.ID,
		InvoiceNumber:   inv.InvoiceNumber,
		PatientID:       inv.PatientID,
		AmountDue:       inv.AmountDue,
		DueDate:         inv.DueDate,
	}
}

// InvoiceCancelledEvent is raised when an invoice is cancelled
type InvoiceCancelledEvent struct {
	shared.BaseDomainEvent
	InvoiceID     uuid.UUID       `json:"invoice_id"`
	InvoiceNumber string          `json:"invoice_number"`
	PatientID     uuid.UUID       `json:"patient_id"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	CancelReason  string          `json:"cancel_reason"`
	CancelledAt   time.Time       `json:"cancelled_at"`
}

// EventType returns the event type name
func (e *InvoiceCancelledEvent) EventType() string {
	return "InvoiceCancelled"
}

// NewInvoiceCancelledEvent creates a new InvoiceCancelledEvent
func NewInvoiceCancelledEvent(inv *Invoice) *InvoiceCancelledEvent {
	cancelledAt := time.Now()
	if inv.CancelledAt != nil {
		cancelledAt = *inv.CancelledAt
	}
	return &InvoiceCancelledEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent("InvoiceCancelled", "Invoice", inv.ID, inv.TenantID),
		InvoiceID:       inv.ID,
		InvoiceNumber:   inv.InvoiceNumber,
		PatientID:       inv.PatientID,
		TotalAmount:     inv.TotalAmount,
		CancelReason:    inv.CancelReason,
		CancelledAt:     cancelledAt,
	}
}
