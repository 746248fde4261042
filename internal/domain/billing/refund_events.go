package billing

import (
	"time"

	"github.com/dentalclinic/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RefundRequestedEvent is raised when a refund is requested
type RefundRequestedEvent struct {
	shared.BaseDomainEvent
	RefundID     uuid.UUID       `json:"refund_id"`
	RefundNumber string          `json:"refund_number"`
	PatientID    uuid.UUID       `json:"patient_id"`
	Source       RefundSource    `json:"source"`
	Amount       decimal.Decimal `json:"amount"`
	Reason       string          `json:"reason"`
}

// EventType returns the event type name
func (e *RefundRequestedEvent) EventType() string {
	return "RefundRequested"
}

// NewRefundRequestedEvent creates a new RefundRequestedEvent
func NewRefundRequestedEvent(r *Refund) *RefundRequestedEvent {
	return &RefundRequestedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent("RefundRequested", "Refund", r.ID, r.TenantID),
		RefundID:        r.ID,
		RefundNumber:    r.RefundNumber,
		PatientID:       r.PatientID,
		Source:          r.Source,
		Amount:          r.Amount,
		Reason:          r.Reason,
	}
}

// RefundApprovedEvent is raised when a refund is approved
type RefundApprovedEvent struct {
	shared.BaseDomainEvent
	RefundID     uuid.UUID       `json:"refund_id"`
	RefundNumber string          `json:"refund_number"`
	PatientID    uuid.UUID       `json:"patient_id"`
	Amount       decimal.Decimal `json:"amount"`
	ApprovedBy   uuid.UUID       `json:"approved_by"`
	ApprovedAt   time.Time       `json:"approved_at"`
}

// EventType returns the event type name
func (e *RefundApprovedEvent) EventType() string {
	return "RefundApproved"
}

// NewRefundApprovedEvent creates a new RefundApprovedEvent
func NewRefundApprovedEvent(r *Refund) *RefundApprovedEvent {
	var approvedBy uuid.UUID
	approvedAt := time.Now()
	if r.ApprovedBy != nil {
		approvedBy = *r.ApprovedBy
	}
	if r.ApprovedAt != nil {
		approvedAt = *r.ApprovedAt
	}
	return &RefundApprovedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent("RefundApproved", "Refund", r.ID, r.TenantID),
		RefundID:        r.ID,
		RefundNumber:    r.RefundNumber,
		PatientID:       r.PatientID,
		Amount:          r.Amount,
		ApprovedBy:      approvedBy,
		ApprovedAt:      approvedAt,
	}
}

// RefundProcessedEvent is raised when a refund is disbursed
type RefundProcessedEvent struct {
	shared.BaseDomainEvent
	RefundID     uuid.UUID       `json:"refund_id"`
	RefundNumber string          `json:"refund_number"`
	PatientID    uuid.UUID       `json:"patient_id"`
	Amount       decimal.Decimal `json:"amount"`
	Method       PaymentMethod   `json:"method"`
	Reference    string          `json:"reference"`
	ProcessedAt  time.Time       `json:"processed_at"`
}

// EventType returns the event type name
func (e *RefundProcessedEvent) EventType() string {
	return "RefundProcessed"
}

// NewRefundProcessedEvent creates a new RefundProcessedEvent
func NewRefundProcessedEvent(r *Refund) *RefundProcessedEvent {
	processedAt := time.Now()
	if r.ProcessedAt != nil {
		processedAt = *r.ProcessedAt
	}
	return &RefundProcessedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent("RefundProcessed", "Refund", r.ID, r.TenantID),
		RefundID:        r.ID,
		RefundNumber:    r.RefundNumber,
		PatientID:       r.PatientID,
		Amount:          r.Amount,
		Method:          r.Method,
		Reference:       r.Reference,
		ProcessedAt:     processedAt,
	}
}

// RefundRejectedEvent is raised when a refund is rejected
type RefundRejectedEvent struct {
	shared.BaseDomainEvent
	RefundID     uuid.UUID       `json:"refund_id"`
	RefundNumber string          `json:"refund_number"`
	PatientID    uuid.UUID       `json:"patient_id"`
	Amount       decimal.Decimal `json:"amount"`
	RejectReason string          `json:"reject_reason"`
}

// EventType returns the event type name
func (e *RefundRejectedEvent) EventType() string {
	return "RefundRejected"
}

// NewRefundRejectedEvent creates a new RefundRejectedEvent
func NewRefundRejectedEvent(r *Refund) *RefundRejectedEvent {
	return &RefundRejectedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent("RefundRejected", "Refund", r.ID, r.TenantID),
		RefundID:        r.ID,
		RefundNumber:    r.RefundNumber,
		PatientID:       r.PatientID,
		Amount:          r.Amount,
		RejectReason:    r.RejectReason,
	}
}
