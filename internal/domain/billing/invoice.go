package billing

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dentalclinic/backend/internal/domain/shared"
	"github.com/dentalclinic/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InvoiceStatus represents the lifecycle status of an invoice
type InvoiceStatus string

const (
	InvoiceStatusUnpaid        InvoiceStatus = "UNPAID"         // Issued, no payment applied
	InvoiceStatusPartiallyPaid InvoiceStatus = "PARTIALLY_PAID" // 0 < amount_paid < total_amount
	InvoiceStatusPaid          InvoiceStatus = "PAID"           // amount_paid >= total_amount
	InvoiceStatusOverdue       InvoiceStatus = "OVERDUE"        // Past due date with a balance remaining
	InvoiceStatusCancelled     InvoiceStatus = "CANCELLED"      // Cancelled before any payment, terminal
	InvoiceStatusWrittenOff    InvoiceStatus = "WRITTEN_OFF"    // Remaining balance written off, terminal
)

// IsValid checks if the status is a valid InvoiceStatus
func (s InvoiceStatus) IsValid() bool {
	switch s {
	case InvoiceStatusUnpaid, InvoiceStatusPartiallyPaid, InvoiceStatusPaid,
		InvoiceStatusOverdue, InvoiceStatusCancelled, InvoiceStatusWrittenOff:
		return true
	}
	return false
}

// String returns the string representation of InvoiceStatus
func (s InvoiceStatus) String() string {
	return string(s)
}

// IsTerminal returns true if the invoice is in a terminal state
func (s InvoiceStatus) IsTerminal() bool {
	return s == InvoiceStatusPaid || s == InvoiceStatusCancelled || s == InvoiceStatusWrittenOff
}

// CanApplyPayment returns true if payments can be applied in this status
func (s InvoiceStatus) CanApplyPayment() bool {
	return s == InvoiceStatusUnpaid || s == InvoiceStatusPartiallyPaid || s == InvoiceStatusOverdue
}

// IsMutable returns true if line items, discounts and adjustments may still change
func (s InvoiceStatus) IsMutable() bool {
	return !s.IsTerminal()
}

// CanTransitionTo reports whether an explicit status change from s to target is
// permitted. Derived transitions (payment application, voiding) bypass this
// table and recompute the status from amounts instead.
func (s InvoiceStatus) CanTransitionTo(target InvoiceStatus) bool {
	allowed, ok := invoiceTransitions[s]
	if !ok {
		return false
	}
	for _, t := range allowed {
		if t == target {
			return true
		}
	}
	return false
}

// invoiceTransitions is the exhaustive status transition table. Terminal
// states have no outgoing transitions. CANCELLED and WRITTEN_OFF are reachable
// only from non-paid states.
var invoiceTransitions = map[InvoiceStatus][]InvoiceStatus{
	InvoiceStatusUnpaid:        {InvoiceStatusPartiallyPaid, InvoiceStatusPaid, InvoiceStatusOverdue, InvoiceStatusCancelled, InvoiceStatusWrittenOff},
	InvoiceStatusPartiallyPaid: {InvoiceStatusPaid, InvoiceStatusOverdue, InvoiceStatusWrittenOff},
	InvoiceStatusOverdue:       {InvoiceStatusPartiallyPaid, InvoiceStatusPaid, InvoiceStatusCancelled, InvoiceStatusWrittenOff},
	InvoiceStatusPaid:          {},
	InvoiceStatusCancelled:     {},
	InvoiceStatusWrittenOff:    {},
}

// DiscountType represents how a discount value is interpreted
type DiscountType string

const (
	DiscountTypePercentage  DiscountType = "PERCENTAGE"
	DiscountTypeFixedAmount DiscountType = "FIXED_AMOUNT"
)

// IsValid checks if the discount type is valid
func (t DiscountType) IsValid() bool {
	return t == DiscountTypePercentage || t == DiscountTypeFixedAmount
}

// InvoiceItem represents one billable line on an invoice, optionally linked to
// a procedure from the catalog or a visit. It is a value object within the
// Invoice aggregate, stored as JSONB.
type InvoiceItem struct {
	ID          uuid.UUID       `json:"id"`
	ProcedureID *uuid.UUID      `json:"procedure_id,omitempty"`
	VisitID     *uuid.UUID      `json:"visit_id,omitempty"`
	Code        string          `json:"code,omitempty"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
}

// NewInvoiceItem creates a new invoice line item
func NewInvoiceItem(description string, amount decimal.Decimal) (*InvoiceItem, error) {
	if description == "" {
		return nil, shared.NewValidationError("INVALID_ITEM_DESCRIPTION", "Item description cannot be empty")
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, shared.NewValidationError("INVALID_ITEM_AMOUNT", "Item amount must be positive")
	}
	return &InvoiceItem{
		ID:          uuid.New(),
		Description: description,
		Amount:      amount,
	}, nil
}

// WithProcedure links the item to a catalog procedure
func (i *InvoiceItem) WithProcedure(procedureID uuid.UUID, code string) *InvoiceItem {
	i.ProcedureID = &procedureID
	i.Code = code
	return i
}

// WithVisit links the item to a visit
func (i *InvoiceItem) WithVisit(visitID uuid.UUID) *InvoiceItem {
	i.VisitID = &visitID
	return i
}

// InvoiceItems is a slice of InvoiceItem that implements GORM Scanner/Valuer for JSONB storage
type InvoiceItems []InvoiceItem

// Value implements driver.Valuer interface for GORM to store as JSONB
func (items InvoiceItems) Value() (driver.Value, error) {
	if items == nil {
		return "[]", nil
	}
	return json.Marshal(items)
}

// Scan implements sql.Scanner interface for GORM to read from JSONB
func (items *InvoiceItems) Scan(value interface{}) error {
	if value == nil {
		*items = InvoiceItems{}
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return errors.New("failed to scan InvoiceItems: unsupported type")
	}
	if len(bytes) == 0 {
		*items = InvoiceItems{}
		return nil
	}
	return json.Unmarshal(bytes, items)
}

// Total returns the sum of all item amounts
func (items InvoiceItems) Total() decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Amount)
	}
	return total
}

// PaymentApplicationStatus represents the status of a payment applied to an invoice
type PaymentApplicationStatus string

const (
	PaymentApplicationStatusActive   PaymentApplicationStatus = "ACTIVE"
	PaymentApplicationStatusReversed PaymentApplicationStatus = "REVERSED"
)

// PaymentApplication records how much of one payment was applied to this
// invoice. It is the invoice-side view of a PaymentAllocation, stored as JSONB
// within the Invoice aggregate.
type PaymentApplication struct {
	ID             uuid.UUID                `json:"id"`
	PaymentID      uuid.UUID                `json:"payment_id"`
	Amount         decimal.Decimal          `json:"amount"`
	AppliedAt      time.Time                `json:"applied_at"`
	Remark         string                   `json:"remark,omitempty"`
	Status         PaymentApplicationStatus `json:"status"`
	ReversedAt     *time.Time               `json:"reversed_at,omitempty"`
	ReversalReason string                   `json:"reversal_reason,omitempty"`
}

// IsActive returns true if the application still counts toward amount_paid
func (p *PaymentApplication) IsActive() bool {
	return p.Status == PaymentApplicationStatusActive || p.Status == ""
}

// MarkReversed marks the application as reversed with the given reason
func (p *PaymentApplication) MarkReversed(reason string) {
	now := time.Now()
	p.Status = PaymentApplicationStatusReversed
	p.ReversedAt = &now
	p.ReversalReason = reason
}

// PaymentApplications is a slice of PaymentApplication that implements GORM Scanner/Valuer for JSONB storage
type PaymentApplications []PaymentApplication

// Value implements driver.Valuer interface for GORM to store as JSONB
func (p PaymentApplications) Value() (driver.Value, error) {
	if p == nil {
		return "[]", nil
	}
	return json.Marshal(p)
}

// Scan implements sql.Scanner interface for GORM to read from JSONB
func (p *PaymentApplications) Scan(value interface{}) error {
	if value == nil {
		*p = PaymentApplications{}
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return errors.New("failed to scan PaymentApplications: unsupported type")
	}
	if len(bytes) == 0 {
		*p = PaymentApplications{}
		return nil
	}
	return json.Unmarshal(bytes, p)
}

// ActiveTotal returns the sum of all active (non-reversed) applications
func (p PaymentApplications) ActiveTotal() decimal.Decimal {
	total := decimal.Zero
	for i := range p {
		if p[i].IsActive() {
			total = total.Add(p[i].Amount)
		}
	}
	return total
}

// Invoice represents a patient-owned bill, the aggregate root of the invoice
// engine. The invariant amount_due = total_amount - amount_paid -
// write_off_amount, amount_due >= 0, is maintained by every mutation.
type Invoice struct {
	shared.TenantAggregateRoot
	InvoiceNumber    string              `json:"invoice_number"`
	PatientID        uuid.UUID           `json:"patient_id"`
	PatientName      string              `json:"patient_name"`
	IssueDate        time.Time           `json:"issue_date"`
	DueDate          time.Time           `json:"due_date"`
	Subtotal         decimal.Decimal     `json:"subtotal"`
	DiscountAmount   decimal.Decimal     `json:"discount_amount"`
	TaxAmount        decimal.Decimal     `json:"tax_amount"`
	AdjustmentAmount decimal.Decimal     `json:"adjustment_amount"` // Credit notes accumulate here
	WriteOffAmount   decimal.Decimal     `json:"write_off_amount"`
	TotalAmount      decimal.Decimal     `json:"total_amount"`
	AmountPaid       decimal.Decimal     `json:"amount_paid"`
	AmountDue        decimal.Decimal     `json:"amount_due"`
	Status           InvoiceStatus       `json:"status"`
	Items            InvoiceItems        `json:"items"`
	AppliedPayments  PaymentApplications `json:"applied_payments"`
	Notes            string              `json:"notes"`
	DiscountReason   string              `json:"discount_reason,omitempty"`
	PaidAt           *time.Time          `json:"paid_at,omitempty"`
	OverdueAt        *time.Time          `json:"overdue_at,omitempty"`
	CancelledAt      *time.Time          `json:"cancelled_at,omitempty"`
	CancelReason     string              `json:"cancel_reason,omitempty"`
	WrittenOffAt     *time.Time          `json:"written_off_at,omitempty"`
	WriteOffReason   string              `json:"write_off_reason,omitempty"`
}

// NewInvoice creates a new invoice in UNPAID status. The total is the sum of
// the item amounts; every item amount must be positive.
func NewInvoice(
	tenantID uuid.UUID,
	invoiceNumber string,
	patientID uuid.UUID,
	patientName string,
	items []InvoiceItem,
	issueDate time.Time,
	dueDate time.Time,
	notes string,
) (*Invoice, error) {
	if invoiceNumber == "" {
		return nil, shared.NewValidationError("INVALID_INVOICE_NUMBER", "Invoice number cannot be empty")
	}
	if len(invoiceNumber) > 50 {
		return nil, shared.NewValidationError("INVALID_INVOICE_NUMBER", "Invoice number cannot exceed 50 characters")
	}
	if patientID == uuid.Nil {
		return nil, shared.NewValidationError("INVALID_PATIENT", "Patient ID cannot be empty")
	}
	if patientName == "" {
		return nil, shared.NewValidationError("INVALID_PATIENT_NAME", "Patient name cannot be empty")
	}
	if len(items) == 0 {
		return nil, shared.NewValidationError("EMPTY_ITEMS", "Invoice must contain at least one item")
	}
	for _, item := range items {
		if item.Amount.LessThanOrEqual(decimal.Zero) {
			return nil, shared.NewValidationError("INVALID_ITEM_AMOUNT",
				fmt.Sprintf("Item %q amount must be positive", item.Description))
		}
	}
	if issueDate.IsZero() {
		return nil, shared.NewValidationError("INVALID_ISSUE_DATE", "Issue date is required")
	}
	if dueDate.IsZero() {
		return nil, shared.NewValidationError("INVALID_DUE_DATE", "Due date is required")
	}
	if dueDate.Before(issueDate) {
		return nil, shared.NewValidationError("INVALID_DUE_DATE", "Due date cannot be before issue date")
	}

	subtotal := InvoiceItems(items).Total()
	inv := &Invoice{
		TenantAggregateRoot: shared.NewTenantAggregateRoot(tenantID),
		InvoiceNumber:       invoiceNumber,
		PatientID:           patientID,
		PatientName:         patientName,
		IssueDate:           issueDate,
		DueDate:             dueDate,
		Subtotal:            subtotal,
		DiscountAmount:      decimal.Zero,
		TaxAmount:           decimal.Zero,
		AdjustmentAmount:    decimal.Zero,
		WriteOffAmount:      decimal.Zero,
		TotalAmount:         subtotal,
		AmountPaid:          decimal.Zero,
		AmountDue:           subtotal,
		Status:              InvoiceStatusUnpaid,
		Items:               items,
		AppliedPayments:     PaymentApplications{},
		Notes:               notes,
	}

	inv.AddDomainEvent(NewInvoiceCreatedEvent(inv))

	return inv, nil
}

// recalculate rebuilds the derived amounts after any mutation and enforces
// the amount_due >= 0 invariant.
func (inv *Invoice) recalculate() error {
	inv.TotalAmount = inv.Subtotal.Sub(inv.DiscountAmount).Add(inv.TaxAmount).Sub(inv.AdjustmentAmount)
	due := inv.TotalAmount.Sub(inv.AmountPaid).Sub(inv.WriteOffAmount)
	if due.IsNegative() {
		return shared.NewValidationError("NEGATIVE_AMOUNT_DUE",
			fmt.Sprintf("Operation would make amount due negative (%.2f)", due.InexactFloat64()))
	}
	inv.AmountDue = due
	return nil
}

// touch stamps the update time. The optimistic-locking version is bumped by
// the repository on SaveWithLock, not here.
func (inv *Invoice) touch() {
	inv.UpdatedAt = time.Now()
}

// ApplyPayment applies amount from the given payment to this invoice.
// The amount must not exceed the current amount due; callers split any excess
// into unapplied credit before calling.
func (inv *Invoice) ApplyPayment(paymentID uuid.UUID, amount decimal.Decimal, remark string) error {
	if !inv.Status.CanApplyPayment() {
		return shared.NewConflictError("INVALID_STATE",
			fmt.Sprintf("Cannot apply payment to invoice in %s status", inv.Status))
	}
	if paymentID == uuid.Nil {
		return shared.NewValidationError("INVALID_PAYMENT", "Payment ID cannot be empty")
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return shared.NewValidationError("INVALID_AMOUNT", "Payment amount must be positive")
	}
	if amount.GreaterThan(inv.AmountDue) {
		return shared.NewValidationError("EXCEEDS_AMOUNT_DUE",
			fmt.Sprintf("Payment amount %.2f exceeds amount due %.2f", amount.InexactFloat64(), inv.AmountDue.InexactFloat64()))
	}

	now := time.Now()
	inv.AppliedPayments = append(inv.AppliedPayments, PaymentApplication{
		ID:        uuid.New(),
		PaymentID: paymentID,
		Amount:    amount,
		AppliedAt: now,
		Remark:    remark,
		Status:    PaymentApplicationStatusActive,
	})

	inv.AmountPaid = inv.AmountPaid.Add(amount)
	if err := inv.recalculate(); err != nil {
		return err
	}

	if inv.AmountDue.IsZero() && inv.AmountPaid.GreaterThanOrEqual(inv.TotalAmount) {
		inv.Status = InvoiceStatusPaid
		inv.PaidAt = &now
		inv.AddDomainEvent(NewInvoicePaidEvent(inv))
	} else {
		inv.Status = InvoiceStatusPartiallyPaid
		inv.AddDomainEvent(NewInvoicePartiallyPaidEvent(inv, amount))
	}

	inv.touch()
	return nil
}

// ReleasePayment reverses all active applications of the given payment,
// restoring the amount due and recomputing the status downward. Returns the
// total amount released.
func (inv *Invoice) ReleasePayment(paymentID uuid.UUID, reason string) (decimal.Decimal, error) {
	released := decimal.Zero
	for i := range inv.AppliedPayments {
		app := &inv.AppliedPayments[i]
		if app.PaymentID == paymentID && app.IsActive() {
			app.MarkReversed(reason)
			released = released.Add(app.Amount)
		}
	}
	if released.IsZero() {
		return decimal.Zero, shared.NewNotFoundError("APPLICATION_NOT_FOUND",
			"No active application of this payment on the invoice")
	}

	inv.AmountPaid = inv.AmountPaid.Sub(released)
	if err := inv.recalculate(); err != nil {
		return decimal.Zero, err
	}

	// Status steps back down; overdue re-derivation is left to the batch job.
	previousStatus := inv.Status
	if inv.AmountPaid.IsZero() {
		inv.Status = InvoiceStatusUnpaid
		inv.PaidAt = nil
	} else if inv.AmountPaid.LessThan(inv.TotalAmount) {
		inv.Status = InvoiceStatusPartiallyPaid
		inv.PaidAt = nil
	}

	inv.AddDomainEvent(NewInvoicePaymentReleasedEvent(inv, paymentID, released, previousStatus))
	inv.touch()
	return released, nil
}

// ReducePayment backs out amount from the given payment's active applications,
// newest first, restoring the amount due. Used when part of an applied payment
// is refunded. A partially consumed application is reduced in place; fully
// consumed ones are marked reversed.
func (inv *Invoice) ReducePayment(paymentID uuid.UUID, amount decimal.Decimal, reason string) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return shared.NewValidationError("INVALID_AMOUNT", "Reduction amount must be positive")
	}

	applied := decimal.Zero
	for i := range inv.AppliedPayments {
		if inv.AppliedPayments[i].PaymentID == paymentID && inv.AppliedPayments[i].IsActive() {
			applied = applied.Add(inv.AppliedPayments[i].Amount)
		}
	}
	if applied.IsZero() {
		return shared.NewNotFoundError("APPLICATION_NOT_FOUND",
			"No active application of this payment on the invoice")
	}
	if amount.GreaterThan(applied) {
		return shared.NewValidationError("EXCEEDS_APPLIED",
			fmt.Sprintf("Reduction %.2f exceeds applied amount %.2f",
				amount.InexactFloat64(), applied.InexactFloat64()))
	}

	remaining := amount
	for i := len(inv.AppliedPayments) - 1; i >= 0 && remaining.IsPositive(); i-- {
		app := &inv.AppliedPayments[i]
		if app.PaymentID != paymentID || !app.IsActive() {
			continue
		}
		if remaining.GreaterThanOrEqual(app.Amount) {
			remaining = remaining.Sub(app.Amount)
			app.MarkReversed(reason)
		} else {
			app.Amount = app.Amount.Sub(remaining)
			remaining = decimal.Zero
		}
	}

	inv.AmountPaid = inv.AmountPaid.Sub(amount)
	if err := inv.recalculate(); err != nil {
		return err
	}

	previousStatus := inv.Status
	if inv.AmountPaid.IsZero() {
		inv.Status = InvoiceStatusUnpaid
		inv.PaidAt = nil
	} else if inv.AmountPaid.LessThan(inv.TotalAmount) {
		inv.Status = InvoiceStatusPartiallyPaid
		inv.PaidAt = nil
	}

	inv.AddDomainEvent(NewInvoicePaymentReleasedEvent(inv, paymentID, amount, previousStatus))
	inv.touch()
	return nil
}

// TransitionTo performs an explicit status change, validating it against the
// transition table. Transitions out of a terminal state fail with a conflict;
// transitions to an unlisted target fail with a validation error.
func (inv *Invoice) TransitionTo(target InvoiceStatus, reason string) error {
	if !target.IsValid() {
		return shared.NewValidationError("INVALID_STATUS", fmt.Sprintf("Unknown invoice status %q", target))
	}
	if inv.Status.IsTerminal() {
		return shared.NewConflictError("INVALID_STATE",
			fmt.Sprintf("Cannot transition invoice from terminal status %s", inv.Status))
	}
	if !inv.Status.CanTransitionTo(target) {
		return shared.NewValidationError("ILLEGAL_TRANSITION",
			fmt.Sprintf("Transition %s -> %s is not permitted", inv.Status, target))
	}

	switch target {
	case InvoiceStatusCancelled:
		return inv.Cancel(reason)
	case InvoiceStatusWrittenOff:
		return inv.WriteOffRemaining(reason)
	case InvoiceStatusOverdue:
		return inv.MarkOverdue(time.Now())
	}

	inv.Status = target
	inv.touch()
	return nil
}

// ApplyDiscount applies a percentage or fixed-amount discount, replacing any
// previous discount. Fails if the resulting total would drop below the amount
// already paid.
func (inv *Invoice) ApplyDiscount(discountType DiscountType, value decimal.Decimal, reason string) error {
	if !inv.Status.IsMutable() {
		return shared.NewConflictError("INVALID_STATE",
			fmt.Sprintf("Cannot apply discount to invoice in %s status", inv.Status))
	}
	if !discountType.IsValid() {
		return shared.NewValidationError("INVALID_DISCOUNT_TYPE", "Discount type must be PERCENTAGE or FIXED_AMOUNT")
	}
	if value.LessThanOrEqual(decimal.Zero) {
		return shared.NewValidationError("INVALID_DISCOUNT", "Discount value must be positive")
	}

	var discount decimal.Decimal
	switch discountType {
	case DiscountTypePercentage:
		if value.GreaterThan(decimal.NewFromInt(100)) {
			return shared.NewValidationError("INVALID_DISCOUNT", "Percentage discount cannot exceed 100")
		}
		discount = inv.Subtotal.Mul(value).Div(decimal.NewFromInt(100)).Round(2)
	case DiscountTypeFixedAmount:
		discount = value
	}

	newTotal := inv.Subtotal.Sub(discount).Add(inv.TaxAmount).Sub(inv.AdjustmentAmount)
	if newTotal.LessThan(inv.AmountPaid) {
		return shared.NewValidationError("DISCOUNT_BELOW_PAID",
			fmt.Sprintf("Discounted total %.2f would be less than amount already paid %.2f",
				newTotal.InexactFloat64(), inv.AmountPaid.InexactFloat64()))
	}

	inv.DiscountAmount = discount
	inv.DiscountReason = reason
	if err := inv.recalculate(); err != nil {
		return err
	}
	inv.refreshSettledStatus()

	inv.AddDomainEvent(NewInvoiceDiscountAppliedEvent(inv, discountType, value, discount))
	inv.touch()
	return nil
}

// ApplyWriteOff reduces the amount due without altering the amount paid.
// The write-off must not exceed the current amount due.
func (inv *Invoice) ApplyWriteOff(amount decimal.Decimal, reason string) error {
	if !inv.Status.IsMutable() {
		return shared.NewConflictError("INVALID_STATE",
			fmt.Sprintf("Cannot write off invoice in %s status", inv.Status))
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return shared.NewValidationError("INVALID_AMOUNT", "Write-off amount must be positive")
	}
	if amount.GreaterThan(inv.AmountDue) {
		return shared.NewValidationError("EXCEEDS_AMOUNT_DUE",
			fmt.Sprintf("Write-off amount %.2f exceeds amount due %.2f", amount.InexactFloat64(), inv.AmountDue.InexactFloat64()))
	}
	if reason == "" {
		return shared.NewValidationError("INVALID_REASON", "Write-off reason is required")
	}

	inv.WriteOffAmount = inv.WriteOffAmount.Add(amount)
	if err := inv.recalculate(); err != nil {
		return err
	}

	// A full write-off of the remaining balance closes the invoice: WRITTEN_OFF
	// when the balance was forgiven, PAID when payments covered the rest.
	if inv.AmountDue.IsZero() {
		now := time.Now()
		if inv.AmountPaid.GreaterThanOrEqual(inv.TotalAmount) {
			inv.Status = InvoiceStatusPaid
			inv.PaidAt = &now
		} else {
			inv.Status = InvoiceStatusWrittenOff
			inv.WrittenOffAt = &now
			inv.WriteOffReason = reason
		}
	}

	inv.AddDomainEvent(NewInvoiceWriteOffAppliedEvent(inv, amount, reason))
	inv.touch()
	return nil
}

// WriteOffRemaining writes off the entire remaining balance, transitioning the
// invoice to WRITTEN_OFF.
func (inv *Invoice) WriteOffRemaining(reason string) error {
	if inv.AmountDue.IsZero() {
		return shared.NewConflictError("NOTHING_DUE", "Invoice has no remaining balance to write off")
	}
	return inv.ApplyWriteOff(inv.AmountDue, reason)
}

// ApplyCreditNote records a negative adjustment correcting over-billing.
// The adjustment must not push the total below the amount already paid.
func (inv *Invoice) ApplyCreditNote(amount decimal.Decimal, reason string) error {
	if !inv.Status.IsMutable() {
		return shared.NewConflictError("INVALID_STATE",
			fmt.Sprintf("Cannot issue credit note for invoice in %s status", inv.Status))
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return shared.NewValidationError("INVALID_AMOUNT", "Credit note amount must be positive")
	}
	if reason == "" {
		return shared.NewValidationError("INVALID_REASON", "Credit note reason is required")
	}

	newTotal := inv.Subtotal.Sub(inv.DiscountAmount).Add(inv.TaxAmount).Sub(inv.AdjustmentAmount.Add(amount))
	if newTotal.LessThan(inv.AmountPaid) {
		return shared.NewValidationError("CREDIT_BELOW_PAID",
			fmt.Sprintf("Adjusted total %.2f would be less than amount already paid %.2f",
				newTotal.InexactFloat64(), inv.AmountPaid.InexactFloat64()))
	}

	inv.AdjustmentAmount = inv.AdjustmentAmount.Add(amount)
	if err := inv.recalculate(); err != nil {
		return err
	}
	inv.refreshSettledStatus()

	inv.AddDomainEvent(NewInvoiceCreditNoteIssuedEvent(inv, amount, reason))
	inv.touch()
	return nil
}

// refreshSettledStatus promotes an invoice to PAID when a discount or credit
// note brings the total down to the amount already paid.
func (inv *Invoice) refreshSettledStatus() {
	if inv.Status.CanApplyPayment() && inv.AmountDue.IsZero() && inv.AmountPaid.GreaterThan(decimal.Zero) {
		now := time.Now()
		inv.Status = InvoiceStatusPaid
		inv.PaidAt = &now
	}
}

// MarkOverdue transitions an unpaid or partially paid invoice past its due
// date to OVERDUE. Idempotent: already-overdue invoices are left untouched.
func (inv *Invoice) MarkOverdue(asOf time.Time) error {
	if inv.Status == InvoiceStatusOverdue {
		return nil
	}
	if inv.Status != InvoiceStatusUnpaid && inv.Status != InvoiceStatusPartiallyPaid {
		return shared.NewConflictError("INVALID_STATE",
			fmt.Sprintf("Cannot mark invoice in %s status overdue", inv.Status))
	}
	if !asOf.After(inv.DueDate) {
		return shared.NewValidationError("NOT_PAST_DUE", "Invoice due date has not passed")
	}

	now := time.Now()
	inv.Status = InvoiceStatusOverdue
	inv.OverdueAt = &now
	inv.AddDomainEvent(NewInvoiceOverdueEvent(inv))
	inv.touch()
	return nil
}

// Cancel cancels the invoice. Only invoices without applied payments can be
// cancelled; the state is terminal and irreversible.
func (inv *Invoice) Cancel(reason string) error {
	if inv.Status.IsTerminal() {
		return shared.NewConflictError("INVALID_STATE",
			fmt.Sprintf("Cannot cancel invoice in %s status", inv.Status))
	}
	if inv.AmountPaid.GreaterThan(decimal.Zero) {
		return shared.NewConflictError("HAS_PAYMENTS", "Cannot cancel invoice with applied payments")
	}
	if reason == "" {
		return shared.NewValidationError("INVALID_REASON", "Cancel reason is required")
	}

	now := time.Now()
	inv.Status = InvoiceStatusCancelled
	inv.CancelledAt = &now
	inv.CancelReason = reason
	inv.AmountDue = decimal.Zero
	inv.AddDomainEvent(NewInvoiceCancelledEvent(inv))
	inv.touch()
	return nil
}

// RemoveItem deletes a line item while the invoice is still mutable and has no
// payments applied, recomputing the totals.
func (inv *Invoice) RemoveItem(itemID uuid.UUID) error {
	if !inv.Status.IsMutable() {
		return shared.NewConflictError("INVALID_STATE",
			fmt.Sprintf("Cannot modify items of invoice in %s status", inv.Status))
	}
	if inv.AmountPaid.GreaterThan(decimal.Zero) {
		return shared.NewConflictError("HAS_PAYMENTS", "Cannot modify items of invoice with applied payments")
	}
	if len(inv.Items) <= 1 {
		return shared.NewValidationError("EMPTY_ITEMS", "Invoice must retain at least one item")
	}

	idx := -1
	for i := range inv.Items {
		if inv.Items[i].ID == itemID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return shared.NewNotFoundError("ITEM_NOT_FOUND", "Invoice item not found")
	}

	inv.Items = append(inv.Items[:idx], inv.Items[idx+1:]...)
	inv.Subtotal = inv.Items.Total()
	if err := inv.recalculate(); err != nil {
		return err
	}
	inv.touch()
	return nil
}

// CloneItems returns deep copies of the line items with fresh IDs, for
// duplicating an invoice without its payment history.
func (inv *Invoice) CloneItems() []InvoiceItem {
	cloned := make([]InvoiceItem, len(inv.Items))
	for i, item := range inv.Items {
		c := item
		c.ID = uuid.New()
		cloned[i] = c
	}
	return cloned
}

// Helper methods

// GetTotalAmountMoney returns the total amount as Money
func (inv *Invoice) GetTotalAmountMoney() valueobject.Money {
	return valueobject.NewMoneyUSD(inv.TotalAmount)
}

// GetAmountDueMoney returns the amount due as Money
func (inv *Invoice) GetAmountDueMoney() valueobject.Money {
	return valueobject.NewMoneyUSD(inv.AmountDue)
}

// GetAmountPaidMoney returns the amount paid as Money
func (inv *Invoice) GetAmountPaidMoney() valueobject.Money {
	return valueobject.NewMoneyUSD(inv.AmountPaid)
}

// IsPaid returns true if the invoice is fully paid
func (inv *Invoice) IsPaid() bool {
	return inv.Status == InvoiceStatusPaid
}

// IsOverdue returns true if the invoice is past due with a balance remaining
func (inv *Invoice) IsOverdue(asOf time.Time) bool {
	if inv.Status.IsTerminal() {
		return false
	}
	return asOf.After(inv.DueDate) && inv.AmountDue.GreaterThan(decimal.Zero)
}

// DaysOverdue returns the number of days past due (0 if not overdue)
func (inv *Invoice) DaysOverdue(asOf time.Time) int {
	if !inv.IsOverdue(asOf) {
		return 0
	}
	return int(asOf.Sub(inv.DueDate).Hours() / 24)
}

// ActiveApplicationTotal returns the sum of active payment applications
func (inv *Invoice) ActiveApplicationTotal() decimal.Decimal {
	return inv.AppliedPayments.ActiveTotal()
}
