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

// RefundService handles the refund request/approve/process lifecycle
type RefundService struct {
	refundRepo   billing.RefundRepository
	paymentRepo  billing.PaymentRepository
	invoiceRepo  billing.InvoiceRepository
	patientRepo  patient.PatientRepository
	ledgerRepo   billing.LedgerRepository
	txManager    shared.TransactionManager
	balanceCache BalanceCache
	logger       *zap.Logger
}

// NewRefundService creates a new RefundService
func NewRefundService(
	refundRepo billing.RefundRepository,
	paymentRepo billing.PaymentRepository,
	invoiceRepo billing.InvoiceRepository,
	patientRepo patient.PatientRepository,
	ledgerRepo billing.LedgerRepository,
	txManager shared.TransactionManager,
	balanceCache BalanceCache,
	logger *zap.Logger,
) *RefundService {
	return &RefundService{
		refundRepo:   refundRepo,
		paymentRepo:  paymentRepo,
		invoiceRepo:  invoiceRepo,
		patientRepo:  patientRepo,
		ledgerRepo:   ledgerRepo,
		txManager:    txManager,
		balanceCache: balanceCache,
		logger:       logger,
	}
}

// RequestRefundRequest represents a request to open a refund. PaymentID set
// refunds against that payment, unwinding its invoice allocations if needed;
// unset draws from the patient's overall credit.
type RequestRefundRequest struct {
	TenantID  uuid.UUID             `json:"tenant_id" validate:"required"`
	PatientID uuid.UUID             `json:"patient_id" validate:"required"`
	PaymentID *uuid.UUID            `json:"payment_id"`
	Amount    decimal.Decimal       `json:"amount" validate:"required"`
	Method    billing.PaymentMethod `json:"method" validate:"required"`
	Reason    string                `json:"reason" validate:"required,max=500"`
}

// RequestRefund opens a pending refund after checking the requested amount is
// actually refundable. Amounts held by other open refunds are excluded.
func (s *RefundService) RequestRefund(ctx context.Context, req RequestRefundRequest) (*billing.Refund, error) {
	if err := validate.Struct(req); err != nil {
		return nil, shared.NewValidationError("INVALID_REQUEST", err.Error())
	}

	pat, err := s.patientRepo.FindByIDForTenant(ctx, req.TenantID, req.PatientID)
	if err != nil {
		return nil, fmt.Errorf("failed to get patient: %w", err)
	}

	var refund *billing.Refund
	err = s.txManager.WithinTransaction(ctx, func(txCtx context.Context) error {
		refundable, err := s.refundableAmount(txCtx, req)
		if err != nil {
			return err
		}
		if req.Amount.GreaterThan(refundable) {
			return shared.NewValidationError("EXCEEDS_REFUNDABLE",
				fmt.Sprintf("Requested %.2f exceeds refundable amount %.2f",
					req.Amount.InexactFloat64(), refundable.InexactFloat64()))
		}

		number, err := s.refundRepo.GenerateRefundNumber(txCtx, req.TenantID)
		if err != nil {
			return fmt.Errorf("failed to generate refund number: %w", err)
		}

		if req.PaymentID != nil {
			refund, err = billing.NewPaymentRefund(
				req.TenantID, number, req.PatientID, pat.FullName(),
				*req.PaymentID, req.Amount, req.Method, req.Reason,
			)
		} else {
			refund, err = billing.NewCreditRefund(
				req.TenantID, number, req.PatientID, pat.FullName(),
				req.Amount, req.Method, req.Reason,
			)
		}
		if err != nil {
			return err
		}

		return s.refundRepo.Save(txCtx, refund)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("refund requested",
		zap.String("refund_number", refund.RefundNumber),
		zap.String("amount", req.Amount.String()),
	)
	return refund, nil
}

// refundableAmount computes how much can still be refunded for the request's
// source, net of open refunds against the same source.
func (s *RefundService) refundableAmount(ctx context.Context, req RequestRefundRequest) (decimal.Decimal, error) {
	var base decimal.Decimal
	var open decimal.Decimal
	var err error

	if req.PaymentID != nil {
		pay, err := s.paymentRepo.FindByIDForTenant(ctx, req.TenantID, *req.PaymentID)
		if err != nil {
			return decimal.Zero, fmt.Errorf("failed to get payment: %w", err)
		}
		if pay.IsVoided() {
			return decimal.Zero, shared.NewConflictError("PAYMENT_VOIDED", "Cannot refund a voided payment")
		}
		if pay.PatientID != req.PatientID {
			return decimal.Zero, shared.NewValidationError("PATIENT_MISMATCH", "Payment belongs to a different patient")
		}
		// The full received amount is refundable; allocated portions are
		// unwound from their invoices at processing time.
		base = pay.Amount

		existing, err := s.refundRepo.FindByPayment(ctx, req.TenantID, *req.PaymentID)
		if err != nil {
			return decimal.Zero, err
		}
		for i := range existing {
			if !existing[i].Status.IsTerminal() || existing[i].IsProcessed() {
				open = open.Add(existing[i].Amount)
			}
		}
	} else {
		base, err = s.paymentRepo.SumCreditByPatient(ctx, req.TenantID, req.PatientID)
		if err != nil {
			return decimal.Zero, err
		}

		pending := billing.RefundStatusPending
		filter := billing.RefundFilter{Status: &pending}
		openRefunds, err := s.refundRepo.FindByPatient(ctx, req.TenantID, req.PatientID, filter)
		if err != nil {
			return decimal.Zero, err
		}
		approved := billing.RefundStatusApproved
		filter = billing.RefundFilter{Status: &approved}
		approvedRefunds, err := s.refundRepo.FindByPatient(ctx, req.TenantID, req.PatientID, filter)
		if err != nil {
			return decimal.Zero, err
		}
		for i := range openRefunds {
			open = open.Add(openRefunds[i].Amount)
		}
		for i := range approvedRefunds {
			open = open.Add(approvedRefunds[i].Amount)
		}
	}

	refundable := base.Sub(open)
	if refundable.IsNegative() {
		refundable = decimal.Zero
	}
	return refundable, nil
}

// GetRefund returns a refund by ID for a tenant
func (s *RefundService) GetRefund(ctx context.Context, tenantID, refundID uuid.UUID) (*billing.Refund, error) {
	return s.refundRepo.FindByIDForTenant(ctx, tenantID, refundID)
}

// ListRefunds returns refunds for a tenant with filtering
func (s *RefundService) ListRefunds(ctx context.Context, tenantID uuid.UUID, filter billing.RefundFilter) ([]billing.Refund, error) {
	return s.refundRepo.FindAllForTenant(ctx, tenantID, filter)
}

// ApproveRefund approves a pending refund
func (s *RefundService) ApproveRefund(ctx context.Context, tenantID, refundID, approverID uuid.UUID) (*billing.Refund, error) {
	refund, err := s.refundRepo.FindByIDForTenant(ctx, tenantID, refundID)
	if err != nil {
		return nil, fmt.Errorf("failed to get refund: %w", err)
	}
	if err := refund.Approve(approverID); err != nil {
		return nil, err
	}
	if err := s.refundRepo.SaveWithLock(ctx, refund); err != nil {
		return nil, err
	}
	return refund, nil
}

// ProcessRefund marks an approved refund disbursed. The refunded amount is
// consumed from the source payments so it can never be allocated again, the
// money leaving is recorded as an outbound REFUND payment and a REFUND ledger
// entry. For a payment-scoped refund, any portion already allocated to
// invoices is unwound first: the affected invoices' amount_paid drops and
// their status steps back.
func (s *RefundService) ProcessRefund(ctx context.Context, tenantID, refundID uuid.UUID, reference string) (*billing.Refund, error) {
	refund, err := s.refundRepo.FindByIDForTenant(ctx, tenantID, refundID)
	if err != nil {
		return nil, fmt.Errorf("failed to get refund: %w", err)
	}

	if err := refund.Process(reference); err != nil {
		return nil, err
	}

	err = s.txManager.WithinTransaction(ctx, func(txCtx context.Context) error {
		if err := s.refundRepo.SaveWithLock(txCtx, refund); err != nil {
			return err
		}

		if refund.PaymentID != nil {
			if err := s.consumeFromPayment(txCtx, tenantID, refund); err != nil {
				return err
			}
		} else {
			if err := s.consumeFromCredit(txCtx, tenantID, refund); err != nil {
				return err
			}
		}

		number, err := s.paymentRepo.GeneratePaymentNumber(txCtx, tenantID)
		if err != nil {
			return fmt.Errorf("failed to generate payment number: %w", err)
		}
		outbound, err := billing.NewRefundPayment(
			tenantID, number, refund.PatientID, refund.PatientName,
			refund.Amount, refund.Method, reference, time.Now(),
			fmt.Sprintf("Refund %s", refund.RefundNumber),
		)
		if err != nil {
			return err
		}
		if err := s.paymentRepo.Save(txCtx, outbound); err != nil {
			return fmt.Errorf("failed to save refund payment: %w", err)
		}

		entry, err := billing.NewRefundEntry(
			tenantID, refund.PatientID, refund.ID, refund.Amount,
			fmt.Sprintf("Refund %s: %s", refund.RefundNumber, refund.Reason),
		)
		if err != nil {
			return err
		}
		return s.ledgerRepo.Append(txCtx, entry)
	})
	if err != nil {
		return nil, err
	}

	s.invalidateBalance(ctx, tenantID, refund.PatientID)

	s.logger.Info("refund processed",
		zap.String("refund_number", refund.RefundNumber),
		zap.String("amount", refund.Amount.String()),
		zap.String("reference", reference),
	)
	return refund, nil
}

// consumeFromPayment takes the refunded amount out of the original payment.
// The unallocated remainder absorbs what it can; the rest is pulled back from
// the payment's invoice allocations, newest first. The consumed amount moves
// into the payment's refunded total, leaving the credit pool for good.
func (s *RefundService) consumeFromPayment(ctx context.Context, tenantID uuid.UUID, refund *billing.Refund) error {
	pay, err := s.paymentRepo.FindByIDForTenant(ctx, tenantID, *refund.PaymentID)
	if err != nil {
		return fmt.Errorf("failed to get payment: %w", err)
	}
	if pay.IsVoided() {
		return shared.NewConflictError("PAYMENT_VOIDED", "Cannot refund a voided payment")
	}

	shortfall := refund.Amount.Sub(pay.UnallocatedAmount())
	if shortfall.IsPositive() {
		releases, err := pay.Deallocate(shortfall)
		if err != nil {
			return err
		}
		reason := fmt.Sprintf("Refund %s", refund.RefundNumber)
		for _, rel := range releases {
			inv, err := s.invoiceRepo.FindByIDForTenant(ctx, tenantID, rel.InvoiceID)
			if err != nil {
				return fmt.Errorf("failed to get invoice %s: %w", rel.InvoiceNumber, err)
			}
			if err := inv.ReducePayment(pay.ID, rel.Amount, reason); err != nil {
				return err
			}
			if err := s.invoiceRepo.SaveWithLock(ctx, inv); err != nil {
				return err
			}
		}
	}

	if err := pay.MarkRefunded(refund.Amount); err != nil {
		return err
	}
	return s.paymentRepo.SaveWithLock(ctx, pay)
}

// consumeFromCredit takes the refunded amount out of the patient's free
// credit, oldest payments first, so the credit cannot be spent twice.
func (s *RefundService) consumeFromCredit(ctx context.Context, tenantID uuid.UUID, refund *billing.Refund) error {
	payments, err := s.paymentRepo.FindWithCredit(ctx, tenantID, refund.PatientID)
	if err != nil {
		return fmt.Errorf("failed to find credit payments: %w", err)
	}

	remaining := refund.Amount
	for i := range payments {
		if !remaining.IsPositive() {
			break
		}
		pay := &payments[i]
		portion := decimal.Min(pay.UnallocatedAmount(), remaining)
		if !portion.IsPositive() {
			continue
		}
		if err := pay.MarkRefunded(portion); err != nil {
			return err
		}
		if err := s.paymentRepo.SaveWithLock(ctx, pay); err != nil {
			return err
		}
		remaining = remaining.Sub(portion)
	}

	if remaining.IsPositive() {
		return shared.NewConflictError("INSUFFICIENT_CREDIT",
			fmt.Sprintf("Patient credit is short by %.2f", remaining.InexactFloat64()))
	}
	return nil
}

// RejectRefund declines a pending refund
func (s *RefundService) RejectRefund(ctx context.Context, tenantID, refundID uuid.UUID, reason string) (*billing.Refund, error) {
	refund, err := s.refundRepo.FindByIDForTenant(ctx, tenantID, refundID)
	if err != nil {
		return nil, fmt.Errorf("failed to get refund: %w", err)
	}
	if err := refund.Reject(reason); err != nil {
		return nil, err
	}
	if err := s.refundRepo.SaveWithLock(ctx, refund); err != nil {
		return nil, err
	}
	return refund, nil
}

// CancelRefund withdraws a refund before processing
func (s *RefundService) CancelRefund(ctx context.Context, tenantID, refundID uuid.UUID, reason string) (*billing.Refund, error) {
	refund, err := s.refundRepo.FindByIDForTenant(ctx, tenantID, refundID)
	if err != nil {
		return nil, fmt.Errorf("failed to get refund: %w", err)
	}
	if err := refund.Cancel(reason); err != nil {
		return nil, err
	}
	if err := s.refundRepo.SaveWithLock(ctx, refund); err != nil {
		return nil, err
	}
	return refund, nil
}

// ProcessRefundBatch disburses a batch of approved refunds. Each refund
// commits independently; failures are reported per item, or abort the run
// when stopOnError is set.
func (s *RefundService) ProcessRefundBatch(ctx context.Context, tenantID uuid.UUID, refundIDs []uuid.UUID, reference string, stopOnError bool) (*BatchResult, error) {
	if len(refundIDs) == 0 {
		return nil, shared.NewValidationError("EMPTY_BATCH", "Batch contains no refunds")
	}

	result := &BatchResult{Total: len(refundIDs)}
	for i, id := range refundIDs {
		refund, err := s.ProcessRefund(ctx, tenantID, id, reference)
		if err != nil {
			result.Failed = append(result.Failed, BatchItemError{Index: i, Code: shared.ErrorCode(err), Error: err.Error()})
			if stopOnError {
				break
			}
			continue
		}
		result.Succeeded++
		result.Documents = append(result.Documents, refund.RefundNumber)
	}
	return result, nil
}

func (s *RefundService) invalidateBalance(ctx context.Context, tenantID, patientID uuid.UUID) {
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
