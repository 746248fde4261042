package billing

import (
	"time"

	"github.com/dentalclinic/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentRecordedEvent is raised when a payment is recorded
type PaymentRecordedEvent struct {
	shared.BaseDomainEvent
	PaymentID     uuid.UUID       `json:"payment_id"`
	PaymentNumber string          `json:"payment_number"`
	PatientID     uuid.UUID       `json:"patient_id"`
	PatientName   string          `json:"patient_name"`
	Amount        decimal.Decimal `json:"amount"`
	Method        PaymentMethod   `json:"method"`
	PaymentDate   time.Time       `json:"payment_date"`
}

// EventType returns the event type name
func (e *PaymentRecordedEvent) EventType() string {
	return "PaymentRecorded"
}

// NewPaymentRecordedEvent creates a new PaymentRecordedEvent
func NewPaymentRecordedEvent(p *Payment) *PaymentRecordedEvent {
	return &PaymentRecordedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent("PaymentRecorded", "Payment", p.ID, p.TenantID),
		PaymentID:       p.ID,
		PaymentNumber:   p.PaymentNumber,
		PatientID:       p.PatientID,
		PatientName:     p.PatientName,
		Amount:          p.Amount,
		Method:          p.Method,
		PaymentDate:     p.PaymentDate,
	}
}

// PaymentAllocatedEvent is raised when part of a payment is allocated to an invoice
type PaymentAllocatedEvent struct {
	shared.BaseDomainEvent
	PaymentID        uuid.UUID       `json:"payment_id"`
	PaymentNumber    string          `json:"payment_number"`
	PatientID        uuid.UUID       `json:"patient_id"`
	InvoiceID        uuid.UUID       `json:"invoice_id"`
	AllocatedAmount  decimal.Decimal `json:"allocated_amount"`
	TotalAllocated   decimal.Decimal `json:"total_allocated"`
	RemainingAmount  decimal.Decimal `json:"remaining_amount"`
	IsFullyAllocated bool            `json:"is_fully_allocated"`
}

// EventType returns the event type name
func (e *PaymentAllocatedEvent) EventType() string {
	return "PaymentAllocated"
}

// NewPaymentAllocatedEvent creates a new PaymentAllocatedEvent
func NewPaymentAllocatedEvent(p *Payment, invoiceID uuid.UUID, amount decimal.Decimal) *PaymentAllocatedEvent {
	return &PaymentAllocatedEvent{
		BaseDomainEvent:  shared.NewBaseDomainEvent("PaymentAllocated", "Payment", p.ID, p.TenantID),
		PaymentID:        p.ID,
		PaymentNumber:    p.PaymentNumber,
		PatientID:        p.PatientID,
		InvoiceID:        invoiceID,
		AllocatedAmount:  amount,
		TotalAllocated:   p.AllocatedAmount(),
		RemainingAmount:  p.UnallocatedAmount(),
		IsFullyAllocated: p.IsFullyAllocated(),
	}
}

// PaymentVoidedEvent is raised when a payment is voided
type PaymentVoidedEvent struct {
	shared.BaseDomainEvent
	PaymentID     uuid.UUID       `json:"payment_id"`
	PaymentNumber string          `json:"payment_number"`
	PatientID     uuid.UUID       `json:"patient_id"`
	Amount        decimal.Decimal `json:"amount"`
	VoidReason    string          `json:"void_reason"`
	VoidedAt      time.Time       `json:"voided_at"`
}

// EventType returns the event type name
func (e *PaymentVoidedEvent) EventType() string {
	return "PaymentVoided"
}

// NewPaymentVoidedEvent creates a new PaymentVoidedEvent
func NewPaymentVoidedEvent(p *Payment, reason string) *PaymentVoidedEvent {
	voidedAt := time.Now()
	if p.VoidedAt != nil {
		voidedAt = *p.VoidedAt
	}
	return &PaymentVoidedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent("PaymentVoided", "Payment", p.ID, p.TenantID),
		PaymentID:       p.ID,
		PaymentNumber:   p.PaymentNumber,
		PatientID:       p.PatientID,
		Amount:          p.Amount,
		VoidReason:      reason,
		VoidedAt:        voidedAt,
	}
}
