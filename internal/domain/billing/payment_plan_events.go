package billing

import (
	"time"

	"github.com/dentalclinic/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentPlanCreatedEvent is raised when a payment plan is created
type PaymentPlanCreatedEvent struct {
	shared.BaseDomainEvent
	PlanID           uuid.UUID       `json:"plan_id"`
	PlanNumber       string          `json:"plan_number"`
	InvoiceID        uuid.UUID       `json:"invoice_id"`
	PatientID        uuid.UUID       `json:"patient_id"`
	TotalAmount      decimal.Decimal `json:"total_amount"`
	InstallmentCount int             `json:"installment_count"`
	FirstDueDate     time.Time       `json:"first_due_date"`
}

// EventType returns the event type name
func (e *PaymentPlanCreatedEvent) EventType() string {
	return "PaymentPlanCreated"
}

// NewPaymentPlanCreatedEvent creates a new PaymentPlanCreatedEvent
func NewPaymentPlanCreatedEvent(p *PaymentPlan) *PaymentPlanCreatedEvent {
	var firstDue time.Time
	if len(p.Installments) > 0 {
		firstDue = p.Installments[0].DueDate
	}
	return &PaymentPlanCreatedEvent{
		BaseDomainEvent:  shared.NewBaseDomainEvent("PaymentPlanCreated", "PaymentPlan", p.ID, p.TenantID),
		PlanID:           p.ID,
		PlanNumber:       p.PlanNumber,
		InvoiceID:        p.InvoiceID,
		PatientID:        p.PatientID,
		TotalAmount:      p.TotalAmount,
		InstallmentCount: len(p.Installments),
		FirstDueDate:     firstDue,
	}
}

// PaymentPlanCompletedEvent is raised when the final installment of a plan settles
type PaymentPlanCompletedEvent struct {
	shared.BaseDomainEvent
	PlanID      uuid.UUID       `json:"plan_id"`
	PlanNumber  string          `json:"plan_number"`
	InvoiceID   uuid.UUID       `json:"invoice_id"`
	PatientID   uuid.UUID       `json:"patient_id"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	CompletedAt time.Time       `json:"completed_at"`
}

// EventType returns the event type name
func (e *PaymentPlanCompletedEvent) EventType() string {
	return "PaymentPlanCompleted"
}

// NewPaymentPlanCompletedEvent creates a new PaymentPlanCompletedEvent
func NewPaymentPlanCompletedEvent(p *PaymentPlan) *PaymentPlanCompletedEvent {
	completedAt := time.Now()
	if p.CompletedAt != nil {
		completedAt = *p.CompletedAt
	}
	return &PaymentPlanCompletedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent("PaymentPlanCompleted", "PaymentPlan", p.ID, p.TenantID),
		PlanID:          p.ID,
		PlanNumber:      p.PlanNumber,
		InvoiceID:       p.InvoiceID,
		PatientID:       p.PatientID,
		TotalAmount:     p.TotalAmount,
		CompletedAt:     completedAt,
	}
}

// PaymentPlanDefaultedEvent is raised when a plan is marked defaulted
type PaymentPlanDefaultedEvent struct {
	shared.BaseDomainEvent
	PlanID          uuid.UUID       `json:"plan_id"`
	PlanNumber      string          `json:"plan_number"`
	InvoiceID       uuid.UUID       `json:"invoice_id"`
	PatientID       uuid.UUID       `json:"patient_id"`
	RemainingAmount decimal.Decimal `json:"remaining_amount"`
	DefaultedAt     time.Time       `json:"defaulted_at"`
}

// EventType returns the event type name
func (e *PaymentPlanDefaultedEvent) EventType() string {
	return "PaymentPlanDefaulted"
}

// NewPaymentPlanDefaultedEvent creates a new PaymentPlanDefaultedEvent
func NewPaymentPlanDefaultedEvent(p *PaymentPlan) *PaymentPlanDefaultedEvent {
	defaultedAt := time.Now()
	if p.DefaultedAt != nil {
		defaultedAt = *p.DefaultedAt
	}
	return &PaymentPlanDefaultedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent("PaymentPlanDefaulted", "PaymentPlan", p.ID, p.TenantID),
		PlanID:          p.ID,
		PlanNumber:      p.PlanNumber,
		InvoiceID:       p.InvoiceID,
		PatientID:       p.PatientID,
		RemainingAmount: p.RemainingAmount(),
		DefaultedAt:     defaultedAt,
	}
}
