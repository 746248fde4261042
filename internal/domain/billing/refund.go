package billing

import (
	"fmt"
	"time"

	"github.com/dentalclinic/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RefundStatus represents the lifecycle status of a refund
type RefundStatus string

const (
	RefundStatusPending   RefundStatus = "PENDING"   // Requested, awaiting approval
	RefundStatusApproved  RefundStatus = "APPROVED"  // Approved, awaiting disbursement
	RefundStatusProcessed RefundStatus = "PROCESSED" // Money returned, terminal
	RefundStatusRejected  RefundStatus = "REJECTED"  // Declined at review, terminal
	RefundStatusCancelled RefundStatus = "CANCELLED" // Withdrawn before processing, terminal
)

// IsValid checks if the status is a valid RefundStatus
func (s RefundStatus) IsValid() bool {
	switch s {
	case RefundStatusPending, RefundStatusApproved, RefundStatusProcessed,
		RefundStatusRejected, RefundStatusCancelled:
		return true
	}
	return false
}

// String returns the string representation of RefundStatus
func (s RefundStatus) String() string {
	return string(s)
}

// IsTerminal returns true if the refund is in a terminal state
func (s RefundStatus) IsTerminal() bool {
	return s == RefundStatusProcessed || s == RefundStatusRejected || s == RefundStatusCancelled
}

// RefundSource identifies what the refund draws from
type RefundSource string

const (
	RefundSourcePayment RefundSource = "PAYMENT" // Refund of a specific payment
	RefundSourceCredit  RefundSource = "CREDIT"  // Refund of unapplied credit balance
)

// IsValid checks if the refund source is valid
func (s RefundSource) IsValid() bool {
	return s == RefundSourcePayment || s == RefundSourceCredit
}

// Refund represents money returned to a patient, drawn either from a specific
// payment or from the patient's unapplied credit balance.
type Refund struct {
	shared.TenantAggregateRoot
	RefundNumber   string          `json:"refund_number"`
	PatientID      uuid.UUID       `json:"patient_id"`
	PatientName    string          `json:"patient_name"`
	Source         RefundSource    `json:"source"`
	PaymentID      *uuid.UUID      `json:"payment_id,omitempty"` // Set when Source is PAYMENT
	Amount         decimal.Decimal `json:"amount"`
	Method         PaymentMethod   `json:"method"` // How the money goes back out
	Reason         string          `json:"reason"`
	Status         RefundStatus    `json:"status"`
	RequestedAt    time.Time       `json:"requested_at"`
	ApprovedAt     *time.Time      `json:"approved_at,omitempty"`
	ApprovedBy     *uuid.UUID      `json:"approved_by,omitempty"`
	ProcessedAt    *time.Time      `json:"processed_at,omitempty"`
	Reference      string          `json:"reference,omitempty"` // Disbursement reference
	RejectedAt     *time.Time      `json:"rejected_at,omitempty"`
	RejectReason   string          `json:"reject_reason,omitempty"`
	CancelledAt    *time.Time      `json:"cancelled_at,omitempty"`
	CancelReason   string          `json:"cancel_reason,omitempty"`
}

// NewPaymentRefund creates a pending refund drawing from a specific payment
func NewPaymentRefund(
	tenantID uuid.UUID,
	refundNumber string,
	patientID uuid.UUID,
	patientName string,
	paymentID uuid.UUID,
	amount decimal.Decimal,
	method PaymentMethod,
	reason string,
) (*Refund, error) {
	if paymentID == uuid.Nil {
		return nil, shared.NewValidationError("INVALID_PAYMENT", "Payment ID cannot be empty")
	}
	r, err := newRefund(tenantID, refundNumber, patientID, patientName, RefundSourcePayment, amount, method, reason)
	if err != nil {
		return nil, err
	}
	r.PaymentID = &paymentID
	return r, nil
}

// NewCreditRefund creates a pending refund drawing from the patient's
// unapplied credit balance.
func NewCreditRefund(
	tenantID uuid.UUID,
	refundNumber string,
	patientID uuid.UUID,
	patientName string,
	amount decimal.Decimal,
	method PaymentMethod,
	reason string,
) (*Refund, error) {
	return newRefund(tenantID, refundNumber, patientID, patientName, RefundSourceCredit, amount, method, reason)
}

func newRefund(
	tenantID uuid.UUID,
	refundNumber string,
	patientID uuid.UUID,
	patientName string,
	source RefundSource,
	amount decimal.Decimal,
	method PaymentMethod,
	reason string,
) (*Refund, error) {
	if refundNumber == "" {
		return nil, shared.NewValidationError("INVALID_REFUND_NUMBER", "Refund number cannot be empty")
	}
	if patientID == uuid.Nil {
		return nil, shared.NewValidationError("INVALID_PATIENT", "Patient ID cannot be empty")
	}
	if patientName == "" {
		return nil, shared.NewValidationError("INVALID_PATIENT_NAME", "Patient name cannot be empty")
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, shared.NewValidationError("INVALID_AMOUNT", "Refund amount must be positive")
	}
	if !method.IsValid() {
		return nil, shared.NewValidationError("INVALID_METHOD", fmt.Sprintf("Unknown refund method %q", method))
	}
	if reason == "" {
		return nil, shared.NewValidationError("INVALID_REASON", "Refund reason is required")
	}

	r := &Refund{
		TenantAggregateRoot: shared.NewTenantAggregateRoot(tenantID),
		RefundNumber:        refundNumber,
		PatientID:           patientID,
		PatientName:         patientName,
		Source:              source,
		Amount:              amount,
		Method:              method,
		Reason:              reason,
		Status:              RefundStatusPending,
		RequestedAt:         time.Now(),
	}

	r.AddDomainEvent(NewRefundRequestedEvent(r))

	return r, nil
}

// Approve moves a pending refund to APPROVED
func (r *Refund) Approve(approverID uuid.UUID) error {
	if r.Status != RefundStatusPending {
		return shared.NewConflictError("INVALID_STATE",
			fmt.Sprintf("Can only approve pending refunds, current status is %s", r.Status))
	}
	if approverID == uuid.Nil {
		return shared.NewValidationError("INVALID_APPROVER", "Approver ID cannot be empty")
	}

	now := time.Now()
	r.Status = RefundStatusApproved
	r.ApprovedAt = &now
	r.ApprovedBy = &approverID
	r.AddDomainEvent(NewRefundApprovedEvent(r))
	r.UpdatedAt = now
	return nil
}

// Process marks an approved refund as disbursed, the terminal success state
func (r *Refund) Process(reference string) error {
	if r.Status != RefundStatusApproved {
		return shared.NewConflictError("INVALID_STATE",
			fmt.Sprintf("Can only process approved refunds, current status is %s", r.Status))
	}

	now := time.Now()
	r.Status = RefundStatusProcessed
	r.ProcessedAt = &now
	r.Reference = reference
	r.AddDomainEvent(NewRefundProcessedEvent(r))
	r.UpdatedAt = now
	return nil
}

// Reject declines a pending refund with a reason
func (r *Refund) Reject(reason string) error {
	if r.Status != RefundStatusPending {
		return shared.NewConflictError("INVALID_STATE",
			fmt.Sprintf("Can only reject pending refunds, current status is %s", r.Status))
	}
	if reason == "" {
		return shared.NewValidationError("INVALID_REASON", "Reject reason is required")
	}

	now := time.Now()
	r.Status = RefundStatusRejected
	r.RejectedAt = &now
	r.RejectReason = reason
	r.AddDomainEvent(NewRefundRejectedEvent(r))
	r.UpdatedAt = now
	return nil
}

// Cancel withdraws a refund before it is processed
func (r *Refund) Cancel(reason string) error {
	if r.Status != RefundStatusPending && r.Status != RefundStatusApproved {
		return shared.NewConflictError("INVALID_STATE",
			fmt.Sprintf("Can only cancel pending or approved refunds, current status is %s", r.Status))
	}
	if reason == "" {
		return shared.NewValidationError("INVALID_REASON", "Cancel reason is required")
	}

	now := time.Now()
	r.Status = RefundStatusCancelled
	r.CancelledAt = &now
	r.CancelReason = reason
	r.UpdatedAt = now
	return nil
}

// IsProcessed returns true if the refund has been disbursed
func (r *Refund) IsProcessed() bool {
	return r.Status == RefundStatusProcessed
}
