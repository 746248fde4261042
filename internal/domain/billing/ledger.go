package billing

import (
	"fmt"
	"time"

	"github.com/dentalclinic/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LedgerEntryType classifies an entry in the patient ledger
type LedgerEntryType string

const (
	LedgerEntryTypeInvoiceIssued   LedgerEntryType = "INVOICE_ISSUED"   // Invoice issued, increases what the patient owes
	LedgerEntryTypePaymentReceived LedgerEntryType = "PAYMENT_RECEIVED" // Payment received, decreases what the patient owes
	LedgerEntryTypeCreditApplied   LedgerEntryType = "CREDIT_APPLIED"   // Existing credit allocated to an invoice
	LedgerEntryTypeRefund          LedgerEntryType = "REFUND"           // Money returned to the patient
	LedgerEntryTypeWriteOff        LedgerEntryType = "WRITE_OFF"        // Amount the clinic gave up collecting
	LedgerEntryTypeAdjustment      LedgerEntryType = "ADJUSTMENT"       // Discount or credit note
)

// IsValid checks if the entry type is valid
func (t LedgerEntryType) IsValid() bool {
	switch t {
	case LedgerEntryTypeInvoiceIssued, LedgerEntryTypePaymentReceived, LedgerEntryTypeCreditApplied,
		LedgerEntryTypeRefund, LedgerEntryTypeWriteOff, LedgerEntryTypeAdjustment:
		return true
	}
	return false
}

// String returns the string representation of LedgerEntryType
func (t LedgerEntryType) String() string {
	return string(t)
}

// LedgerEntry is one immutable line in a patient's financial ledger. Entries
// are append-only: corrections are made with compensating entries that negate
// the original amount, never by mutating or deleting existing rows. Amount is
// signed from the clinic's perspective: positive increases what the patient
// owes, negative decreases it.
type LedgerEntry struct {
	shared.BaseEntity
	TenantID    uuid.UUID       `json:"tenant_id"`
	PatientID   uuid.UUID       `json:"patient_id"`
	EntryType   LedgerEntryType `json:"entry_type"`
	Amount      decimal.Decimal `json:"amount"`
	InvoiceID   *uuid.UUID      `json:"invoice_id,omitempty"`
	PaymentID   *uuid.UUID      `json:"payment_id,omitempty"`
	RefundID    *uuid.UUID      `json:"refund_id,omitempty"`
	ReversesID  *uuid.UUID      `json:"reverses_id,omitempty"` // The entry this reversal compensates
	Description string          `json:"description"`
	EntryDate   time.Time       `json:"entry_date"`
	CreatedBy   *uuid.UUID      `json:"created_by,omitempty"`
}

func newLedgerEntry(tenantID, patientID uuid.UUID, entryType LedgerEntryType, amount decimal.Decimal, description string) (*LedgerEntry, error) {
	if tenantID == uuid.Nil {
		return nil, shared.NewValidationError("INVALID_TENANT", "Tenant ID cannot be empty")
	}
	if patientID == uuid.Nil {
		return nil, shared.NewValidationError("INVALID_PATIENT", "Patient ID cannot be empty")
	}
	if amount.IsZero() {
		return nil, shared.NewValidationError("INVALID_AMOUNT", "Ledger entry amount cannot be zero")
	}
	if description == "" {
		return nil, shared.NewValidationError("INVALID_DESCRIPTION", "Ledger entry description cannot be empty")
	}
	return &LedgerEntry{
		BaseEntity:  shared.NewBaseEntity(),
		TenantID:    tenantID,
		PatientID:   patientID,
		EntryType:   entryType,
		Amount:      amount,
		Description: description,
		EntryDate:   time.Now(),
	}, nil
}

// NewInvoiceIssuedEntry records an invoice charge against the patient
func NewInvoiceIssuedEntry(tenantID, patientID, invoiceID uuid.UUID, amount decimal.Decimal, description string) (*LedgerEntry, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, shared.NewValidationError("INVALID_AMOUNT", "Charge amount must be positive")
	}
	e, err := newLedgerEntry(tenantID, patientID, LedgerEntryTypeInvoiceIssued, amount, description)
	if err != nil {
		return nil, err
	}
	e.InvoiceID = &invoiceID
	return e, nil
}

// NewPaymentReceivedEntry records a payment received, reducing the patient balance
func NewPaymentReceivedEntry(tenantID, patientID, paymentID uuid.UUID, amount decimal.Decimal, description string) (*LedgerEntry, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, shared.NewValidationError("INVALID_AMOUNT", "Payment amount must be positive")
	}
	e, err := newLedgerEntry(tenantID, patientID, LedgerEntryTypePaymentReceived, amount.Neg(), description)
	if err != nil {
		return nil, err
	}
	e.PaymentID = &paymentID
	return e, nil
}

// NewCreditAppliedEntry records existing credit being allocated to an invoice.
// The cash already entered the ledger with its PAYMENT_RECEIVED entry, so
// these entries document the invoice trail but are excluded from balance
// sums: applying credit moves money between buckets without changing the
// patient's net position.
func NewCreditAppliedEntry(tenantID, patientID, paymentID, invoiceID uuid.UUID, amount decimal.Decimal, description string) (*LedgerEntry, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, shared.NewValidationError("INVALID_AMOUNT", "Credit amount must be positive")
	}
	e, err := newLedgerEntry(tenantID, patientID, LedgerEntryTypeCreditApplied, amount.Neg(), description)
	if err != nil {
		return nil, err
	}
	e.PaymentID = &paymentID
	e.InvoiceID = &invoiceID
	return e, nil
}

// NewWriteOffEntry records an amount the clinic stops collecting on an invoice
func NewWriteOffEntry(tenantID, patientID, invoiceID uuid.UUID, amount decimal.Decimal, description string) (*LedgerEntry, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, shared.NewValidationError("INVALID_AMOUNT", "Write-off amount must be positive")
	}
	e, err := newLedgerEntry(tenantID, patientID, LedgerEntryTypeWriteOff, amount.Neg(), description)
	if err != nil {
		return nil, err
	}
	e.InvoiceID = &invoiceID
	return e, nil
}

// NewAdjustmentEntry records a discount or credit note against an invoice.
// A positive amount reduces the patient balance.
func NewAdjustmentEntry(tenantID, patientID, invoiceID uuid.UUID, amount decimal.Decimal, description string) (*LedgerEntry, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, shared.NewValidationError("INVALID_AMOUNT", "Adjustment amount must be positive")
	}
	e, err := newLedgerEntry(tenantID, patientID, LedgerEntryTypeAdjustment, amount.Neg(), description)
	if err != nil {
		return nil, err
	}
	e.InvoiceID = &invoiceID
	return e, nil
}

// NewRefundEntry records money returned to the patient, increasing the balance
func NewRefundEntry(tenantID, patientID, refundID uuid.UUID, amount decimal.Decimal, description string) (*LedgerEntry, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, shared.NewValidationError("INVALID_AMOUNT", "Refund amount must be positive")
	}
	e, err := newLedgerEntry(tenantID, patientID, LedgerEntryTypeRefund, amount, description)
	if err != nil {
		return nil, err
	}
	e.RefundID = &refundID
	return e, nil
}

// NewReversalEntry compensates an existing entry with an equal and opposite
// amount under the same entry type, preserving the append-only history.
// ReversesID links the pair.
func NewReversalEntry(tenantID, patientID uuid.UUID, original *LedgerEntry, reason string) (*LedgerEntry, error) {
	if original == nil {
		return nil, shared.NewValidationError("INVALID_ENTRY", "Original ledger entry is required")
	}
	if original.ReversesID != nil {
		return nil, shared.NewConflictError("DOUBLE_REVERSAL", "Cannot reverse a reversal entry")
	}
	desc := fmt.Sprintf("Reversal of %s: %s", original.EntryType, reason)
	e, err := newLedgerEntry(tenantID, patientID, original.EntryType, original.Amount.Neg(), desc)
	if err != nil {
		return nil, err
	}
	originalID := original.ID
	e.ReversesID = &originalID
	e.InvoiceID = original.InvoiceID
	e.PaymentID = original.PaymentID
	e.RefundID = original.RefundID
	return e, nil
}

// IsReversal reports whether the entry compensates an earlier one
func (e *LedgerEntry) IsReversal() bool {
	return e.ReversesID != nil
}

// LedgerEntries is a chronological list of ledger entries
type LedgerEntries []*LedgerEntry

// Balance returns the net signed balance: positive means the patient owes the
// clinic, negative means the clinic owes the patient (credit). CREDIT_APPLIED
// entries are reallocations, not money movements, and do not count.
func (entries LedgerEntries) Balance() decimal.Decimal {
	total := decimal.Zero
	for _, e := range entries {
		if e.EntryType == LedgerEntryTypeCreditApplied {
			continue
		}
		total = total.Add(e.Amount)
	}
	return total
}
