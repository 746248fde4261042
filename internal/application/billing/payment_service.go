package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/dentalclinic/backend/internal/domain/billing"
	"github.com/dentalclinic/backend/internal/domain/patient"
	"github.com/dentalclinic/backend/internal/domain/shared"
)

// PaymentService handles payment recording, allocation and voiding
type PaymentService struct {
	paymentRepo  billing.PaymentRepository
	invoiceRepo  billing.InvoiceRepository
	patientRepo  patient.PatientRepository
	ledgerRepo   billing.LedgerRepository
	txManager    shared.TransactionManager
	balanceCache BalanceCache
	logger       *zap.Logger
}

// NewPaymentService creates a new PaymentService
func NewPaymentService(
	paymentRepo billing.PaymentRepository,
	invoiceRepo billing.InvoiceRepository,
	patientRepo patient.PatientRepository,
	ledgerRepo billing.LedgerRepository,
	txManager shared.TransactionManager,
	balanceCache BalanceCache,
	logger *zap.Logger,
) *PaymentService {
	return &PaymentService{
		paymentRepo:  paymentRepo,
		invoiceRepo:  invoiceRepo,
		patientRepo:  patientRepo,
		ledgerRepo:   ledgerRepo,
		txManager:    txManager,
		balanceCache: balanceCache,
		logger:       logger,
	}
}

// AllocationRequest directs part of a payment to one invoice
type AllocationRequest struct {
	InvoiceID uuid.UUID       `json:"invoice_id" validate:"required"`
	Amount    decimal.Decimal `json:"amount" validate:"required"`
}

// RecordPaymentRequest represents a request to record a payment. Allocations
// are optional; any unallocated remainder becomes patient credit. With
// AutoAllocate set, the remainder is spread across the patient's outstanding
// invoices oldest due date first.
type RecordPaymentRequest struct {
	TenantID     uuid.UUID             `json:"tenant_id" validate:"required"`
	PatientID    uuid.UUID             `json:"patient_id" validate:"required"`
	Amount       decimal.Decimal       `json:"amount" validate:"required"`
	Method       billing.PaymentMethod `json:"method" validate:"required"`
	Reference    string                `json:"reference" validate:"max=100"`
	PaymentDate  time.Time             `json:"payment_date" validate:"required"`
	Allocations  []AllocationRequest   `json:"allocations" validate:"dive"`
	AutoAllocate bool                  `json:"auto_allocate"`
	Notes        string                `json:"notes" validate:"max=1000"`
}

// RecordPaymentResult is the outcome of recording a payment
type RecordPaymentResult struct {
	Payment           *billing.Payment `json:"payment"`
	AllocatedAmount   decimal.Decimal  `json:"allocated_amount"`
	UnallocatedAmount decimal.Decimal  `json:"unallocated_amount"`
	SettledInvoices   []string         `json:"settled_invoices"` // Invoice numbers fully paid by this payment
}

// RecordPayment records a payment and applies it to invoices in one
// transaction. Either every allocation lands and the payment is stored, or
// nothing is.
func (s *PaymentService) RecordPayment(ctx context.Context, req RecordPaymentRequest) (*RecordPaymentResult, error) {
	if err := validate.Struct(req); err != nil {
		return nil, shared.NewValidationError("INVALID_REQUEST", err.Error())
	}
	if req.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, shared.NewValidationError("INVALID_AMOUNT", "Payment amount must be positive")
	}

	requested := decimal.Zero
	for _, a := range req.Allocations {
		requested = requested.Add(a.Amount)
	}
	if requested.GreaterThan(req.Amount) {
		return nil, shared.NewValidationError("ALLOCATIONS_EXCEED_AMOUNT",
			fmt.Sprintf("Allocations sum to %.2f, payment amount is %.2f",
				requested.InexactFloat64(), req.Amount.InexactFloat64()))
	}

	pat, err := s.patientRepo.FindByIDForTenant(ctx, req.TenantID, req.PatientID)
	if err != nil {
		return nil, fmt.Errorf("failed to get patient: %w", err)
	}

	var result *RecordPaymentResult
	err = s.txManager.WithinTransaction(ctx, func(txCtx context.Context) error {
		number, err := s.paymentRepo.GeneratePaymentNumber(txCtx, req.TenantID)
		if err != nil {
			return fmt.Errorf("failed to generate payment number: %w", err)
		}

		payment, err := billing.NewPayment(
			req.TenantID, number, req.PatientID, pat.FullName(),
			req.Amount, req.Method, req.Reference, req.PaymentDate, req.Notes,
		)
		if err != nil {
			return err
		}

		allocations := req.Allocations
		if req.AutoAllocate {
			allocations, err = s.expandAutoAllocations(txCtx, req, allocations)
			if err != nil {
				return err
			}
		}

		settled := make([]string, 0)
		for _, alloc := range allocations {
			invoice, err := s.invoiceRepo.FindByIDForTenant(txCtx, req.TenantID, alloc.InvoiceID)
			if err != nil {
				return fmt.Errorf("failed to get invoice for allocation: %w", err)
			}
			if invoice.PatientID != req.PatientID {
				return shared.NewValidationError("PATIENT_MISMATCH",
					fmt.Sprintf("Invoice %s belongs to a different patient", invoice.InvoiceNumber))
			}

			// An allocation beyond what the invoice still owes is capped at the
			// amount due; the excess stays on the payment as patient credit.
			portion := decimal.Min(alloc.Amount, invoice.AmountDue)
			if !portion.IsPositive() {
				continue
			}
			if err := invoice.ApplyPayment(payment.ID, portion, ""); err != nil {
				return err
			}
			if err := payment.Allocate(invoice.ID, invoice.InvoiceNumber, portion, ""); err != nil {
				return err
			}
			if err := s.invoiceRepo.SaveWithLock(txCtx, invoice); err != nil {
				return err
			}
			if invoice.IsPaid() {
				settled = append(settled, invoice.InvoiceNumber)
			}
		}

		if err := s.paymentRepo.Save(txCtx, payment); err != nil {
			return fmt.Errorf("failed to save payment: %w", err)
		}

		entry, err := billing.NewPaymentReceivedEntry(
			req.TenantID, req.PatientID, payment.ID, payment.Amount,
			fmt.Sprintf("Payment %s (%s)", payment.PaymentNumber, payment.Method),
		)
		if err != nil {
			return err
		}
		if err := s.ledgerRepo.Append(txCtx, entry); err != nil {
			return err
		}

		result = &RecordPaymentResult{
			Payment:           payment,
			AllocatedAmount:   payment.AllocatedAmount(),
			UnallocatedAmount: payment.UnallocatedAmount(),
			SettledInvoices:   settled,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidateBalance(ctx, req.TenantID, req.PatientID)

	s.logger.Info("payment recorded",
		zap.String("payment_number", result.Payment.PaymentNumber),
		zap.String("amount", req.Amount.String()),
		zap.String("unallocated", result.UnallocatedAmount.String()),
	)

	return result, nil
}

// expandAutoAllocations spreads the unallocated remainder across the
// patient's outstanding invoices, earliest due date first.
func (s *PaymentService) expandAutoAllocations(ctx context.Context, req RecordPaymentRequest, explicit []AllocationRequest) ([]AllocationRequest, error) {
	taken := make(map[uuid.UUID]bool, len(explicit))
	remaining := req.Amount
	for _, a := range explicit {
		taken[a.InvoiceID] = true
		remaining = remaining.Sub(a.Amount)
	}
	if remaining.LessThanOrEqual(decimal.Zero) {
		return explicit, nil
	}

	outstanding, err := s.invoiceRepo.FindOutstanding(ctx, req.TenantID, req.PatientID)
	if err != nil {
		return nil, fmt.Errorf("failed to find outstanding invoices: %w", err)
	}

	allocations := explicit
	for i := range outstanding {
		if remaining.IsZero() {
			break
		}
		inv := &outstanding[i]
		if taken[inv.ID] {
			continue
		}
		amount := decimal.Min(remaining, inv.AmountDue)
		allocations = append(allocations, AllocationRequest{InvoiceID: inv.ID, Amount: amount})
		remaining = remaining.Sub(amount)
	}
	return allocations, nil
}

// GetPayment returns a payment by ID for a tenant
func (s *PaymentService) GetPayment(ctx context.Context, tenantID, paymentID uuid.UUID) (*billing.Payment, error) {
	return s.paymentRepo.FindByIDForTenant(ctx, tenantID, paymentID)
}

// ListPayments returns payments for a tenant with filtering
func (s *PaymentService) ListPayments(ctx context.Context, tenantID uuid.UUID, filter billing.PaymentFilter) ([]billing.Payment, int64, error) {
	payments, err := s.paymentRepo.FindAllForTenant(ctx, tenantID, filter)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.paymentRepo.CountForTenant(ctx, tenantID, filter)
	if err != nil {
		return nil, 0, err
	}
	return payments, total, nil
}

// ListUnallocatedPayments returns the patient's completed payments whose
// allocated amount is below their amount, advance payments included, oldest
// payment date first.
func (s *PaymentService) ListUnallocatedPayments(ctx context.Context, tenantID, patientID uuid.UUID) ([]billing.Payment, error) {
	return s.paymentRepo.FindWithCredit(ctx, tenantID, patientID)
}

// AllocatePayment distributes an existing payment's unallocated remainder
// across the named invoices. All allocations land or none do.
func (s *PaymentService) AllocatePayment(ctx context.Context, tenantID, paymentID uuid.UUID, allocations []AllocationRequest) (*RecordPaymentResult, error) {
	if len(allocations) == 0 {
		return nil, shared.NewValidationError("NO_ALLOCATIONS", "At least one allocation is required")
	}
	requested := decimal.Zero
	for _, a := range allocations {
		requested = requested.Add(a.Amount)
	}

	var result *RecordPaymentResult
	err := s.txManager.WithinTransaction(ctx, func(txCtx context.Context) error {
		payment, err := s.paymentRepo.FindByIDForTenant(txCtx, tenantID, paymentID)
		if err != nil {
			return fmt.Errorf("failed to get payment: %w", err)
		}
		if requested.GreaterThan(payment.UnallocatedAmount()) {
			return shared.NewValidationError("EXCEEDS_UNALLOCATED",
				fmt.Sprintf("Allocations sum to %.2f, unallocated amount is %.2f",
					requested.InexactFloat64(), payment.UnallocatedAmount().InexactFloat64()))
		}

		settled := make([]string, 0)
		for _, alloc := range allocations {
			invoice, err := s.invoiceRepo.FindByIDForTenant(txCtx, tenantID, alloc.InvoiceID)
			if err != nil {
				return fmt.Errorf("failed to get invoice for allocation: %w", err)
			}
			if invoice.PatientID != payment.PatientID {
				return shared.NewValidationError("PATIENT_MISMATCH",
					fmt.Sprintf("Invoice %s belongs to a different patient", invoice.InvoiceNumber))
			}

			if err := invoice.ApplyPayment(payment.ID, alloc.Amount, ""); err != nil {
				return err
			}
			if err := payment.Allocate(invoice.ID, invoice.InvoiceNumber, alloc.Amount, ""); err != nil {
				return err
			}
			if err := s.invoiceRepo.SaveWithLock(txCtx, invoice); err != nil {
				return err
			}
			if invoice.IsPaid() {
				settled = append(settled, invoice.InvoiceNumber)
			}
		}

		if err := s.paymentRepo.SaveWithLock(txCtx, payment); err != nil {
			return err
		}

		result = &RecordPaymentResult{
			Payment:           payment,
			AllocatedAmount:   payment.AllocatedAmount(),
			UnallocatedAmount: payment.UnallocatedAmount(),
			SettledInvoices:   settled,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidateBalance(ctx, tenantID, result.Payment.PatientID)
	return result, nil
}

// VoidPayment reverses a payment: every invoice it was applied to releases the
// application and steps its status back, a compensating ledger entry is
// appended, and the payment is flagged voided. All within one transaction.
func (s *PaymentService) VoidPayment(ctx context.Context, tenantID, paymentID uuid.UUID, reason string) (*billing.Payment, error) {
	payment, err := s.paymentRepo.FindByIDForTenant(ctx, tenantID, paymentID)
	if err != nil {
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}

	if err := payment.Void(reason); err != nil {
		return nil, err
	}

	err = s.txManager.WithinTransaction(ctx, func(txCtx context.Context) error {
		for _, alloc := range payment.Allocations {
			invoice, err := s.invoiceRepo.FindByIDForTenant(txCtx, tenantID, alloc.InvoiceID)
			if err != nil {
				return fmt.Errorf("failed to get invoice %s: %w", alloc.InvoiceNumber, err)
			}
			if _, err := invoice.ReleasePayment(payment.ID, reason); err != nil {
				return err
			}
			if err := s.invoiceRepo.SaveWithLock(txCtx, invoice); err != nil {
				return err
			}
		}

		if err := s.paymentRepo.SaveWithLock(txCtx, payment); err != nil {
			return err
		}

		filter := billing.LedgerFilter{PaymentID: &payment.ID}
		entries, err := s.ledgerRepo.FindByPatient(txCtx, tenantID, payment.PatientID, filter)
		if err != nil {
			return fmt.Errorf("failed to load ledger entries: %w", err)
		}
		for _, entry := range entries {
			if entry.EntryType != billing.LedgerEntryTypePaymentReceived || entry.IsReversal() {
				continue
			}
			reversal, err := billing.NewReversalEntry(tenantID, payment.PatientID, entry, reason)
			if err != nil {
				return err
			}
			if err := s.ledgerRepo.Append(txCtx, reversal); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidateBalance(ctx, tenantID, payment.PatientID)

	s.logger.Info("payment voided",
		zap.String("payment_number", payment.PaymentNumber),
		zap.String("reason", reason),
	)

	return payment, nil
}

// BatchItemError reports one failed item of a bulk run
type BatchItemError struct {
	Index int    `json:"index"`
	Code  string `json:"code"`
	Error string `json:"error"`
}

// BatchResult summarizes a bulk run
type BatchResult struct {
	Total     int              `json:"total"`
	Succeeded int              `json:"succeeded"`
	Failed    []BatchItemError `json:"failed"`
	Documents []string         `json:"documents"` // Document numbers processed
}

// ProcessBulkPayments records a batch of payments, such as an insurance
// remittance file. Each item commits in its own transaction: a failing item
// is reported and skipped without rolling back the rest, unless stopOnError
// makes the run abort at the first failure. Committed items stay committed
// either way.
func (s *PaymentService) ProcessBulkPayments(ctx context.Context, reqs []RecordPaymentRequest, stopOnError bool) (*BatchResult, error) {
	if len(reqs) == 0 {
		return nil, shared.NewValidationError("EMPTY_BATCH", "Batch contains no payments")
	}

	result := &BatchResult{Total: len(reqs)}
	for i, req := range reqs {
		res, err := s.RecordPayment(ctx, req)
		if err != nil {
			result.Failed = append(result.Failed, BatchItemError{Index: i, Code: shared.ErrorCode(err), Error: err.Error()})
			s.logger.Warn("bulk payment item failed",
				zap.Int("index", i),
				zap.String("patient_id", req.PatientID.String()),
				zap.Error(err),
			)
			if stopOnError {
				break
			}
			continue
		}
		result.Succeeded++
		result.Documents = append(result.Documents, res.Payment.PaymentNumber)
	}

	s.logger.Info("bulk payment run finished",
		zap.Int("total", result.Total),
		zap.Int("succeeded", result.Succeeded),
		zap.Int("failed", len(result.Failed)),
	)
	return result, nil
}

func (s *PaymentService) invalidateBalance(ctx context.Context, tenantID, patientID uuid.UUID) {
	if s.balanceCache == nil {
		return
	}
	if err := s.balanceCache.Invalidate(ctx, tenantID, patientID); err != nil {
		s.logger.Warn("failed to invalidate balance cache",
			zap.String("patient_id", patientID.String()),
			zap.Error(err),
		)
	}
}
