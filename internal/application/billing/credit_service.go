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

// CreditService manages patient credit: the unallocated remainders of
// completed payments. Credit is not a stored balance; it is derived from the
// payments, so applying it means allocating those payments to invoices.
type CreditService struct {
	paymentRepo  billing.PaymentRepository
	invoiceRepo  billing.InvoiceRepository
	patientRepo  patient.PatientRepository
	ledgerRepo   billing.LedgerRepository
	txManager    shared.TransactionManager
	balanceCache BalanceCache
	logger       *zap.Logger
}

// NewCreditService creates a new CreditService
func NewCreditService(
	paymentRepo billing.PaymentRepository,
	invoiceRepo billing.InvoiceRepository,
	patientRepo patient.PatientRepository,
	ledgerRepo billing.LedgerRepository,
	txManager shared.TransactionManager,
	balanceCache BalanceCache,
	logger *zap.Logger,
) *CreditService {
	return &CreditService{
		paymentRepo:  paymentRepo,
		invoiceRepo:  invoiceRepo,
		patientRepo:  patientRepo,
		ledgerRepo:   ledgerRepo,
		txManager:    txManager,
		balanceCache: balanceCache,
		logger:       logger,
	}
}

// AdvancePaymentRequest represents a request to take money on account
type AdvancePaymentRequest struct {
	TenantID    uuid.UUID             `json:"tenant_id" validate:"required"`
	PatientID   uuid.UUID             `json:"patient_id" validate:"required"`
	Amount      decimal.Decimal       `json:"amount" validate:"required"`
	Method      billing.PaymentMethod `json:"method" validate:"required"`
	Reference   string                `json:"reference" validate:"max=100"`
	PaymentDate time.Time             `json:"payment_date"`
	Notes       string                `json:"notes" validate:"max=1000"`
}

// RecordAdvancePayment takes money on account: a CREDIT payment with no
// invoice link, held as patient credit until applied.
func (s *CreditService) RecordAdvancePayment(ctx context.Context, req AdvancePaymentRequest) (*billing.Payment, error) {
	if err := validate.Struct(req); err != nil {
		return nil, shared.NewValidationError("INVALID_REQUEST", err.Error())
	}
	if req.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, shared.NewValidationError("INVALID_AMOUNT", "Advance payment amount must be positive")
	}

	pat, err := s.patientRepo.FindByIDForTenant(ctx, req.TenantID, req.PatientID)
	if err != nil {
		return nil, fmt.Errorf("failed to get patient: %w", err)
	}

	paymentDate := req.PaymentDate
	if paymentDate.IsZero() {
		paymentDate = time.Now()
	}

	var payment *billing.Payment
	err = s.txManager.WithinTransaction(ctx, func(txCtx context.Context) error {
		number, err := s.paymentRepo.GeneratePaymentNumber(txCtx, req.TenantID)
		if err != nil {
			return fmt.Errorf("failed to generate payment number: %w", err)
		}

		payment, err = billing.NewAdvancePayment(
			req.TenantID, number, req.PatientID, pat.FullName(),
			req.Amount, req.Method, req.Reference, paymentDate, req.Notes,
		)
		if err != nil {
			return err
		}
		if err := s.paymentRepo.Save(txCtx, payment); err != nil {
			return fmt.Errorf("failed to save advance payment: %w", err)
		}

		entry, err := billing.NewPaymentReceivedEntry(
			req.TenantID, req.PatientID, payment.ID, payment.Amount,
			fmt.Sprintf("Advance payment %s (%s)", payment.PaymentNumber, payment.Method),
		)
		if err != nil {
			return err
		}
		return s.ledgerRepo.Append(txCtx, entry)
	})
	if err != nil {
		return nil, err
	}

	s.invalidateBalance(ctx, req.TenantID, req.PatientID)

	s.logger.Info("advance payment recorded",
		zap.String("payment_number", payment.PaymentNumber),
		zap.String("amount", payment.Amount.String()),
	)
	return payment, nil
}

// GetCreditBalance returns the patient's available credit: the sum of
// unallocated amounts across their completed payments.
func (s *CreditService) GetCreditBalance(ctx context.Context, tenantID, patientID uuid.UUID) (decimal.Decimal, error) {
	return s.paymentRepo.SumCreditByPatient(ctx, tenantID, patientID)
}

// CreditSummary breaks a patient's advance-payment credit into its parts
type CreditSummary struct {
	TotalCredits     decimal.Decimal `json:"total_credits"`
	AppliedCredits   decimal.Decimal `json:"applied_credits"`
	RefundedCredits  decimal.Decimal `json:"refunded_credits"`
	AvailableCredits decimal.Decimal `json:"available_credits"`
}

// GetCreditSummary reports the patient's advance payments: the total taken on
// account, how much of it has been applied to invoices or refunded, and the
// remainder. GetCreditBalance is the broader figure, which also counts
// unallocated remainders of ordinary payments.
func (s *CreditService) GetCreditSummary(ctx context.Context, tenantID, patientID uuid.UUID) (*CreditSummary, error) {
	creditType := billing.PaymentTypeCredit
	payments, err := s.paymentRepo.FindByPatient(ctx, tenantID, patientID, billing.PaymentFilter{Type: &creditType})
	if err != nil {
		return nil, fmt.Errorf("failed to find advance payments: %w", err)
	}

	summary := &CreditSummary{
		TotalCredits:    decimal.Zero,
		AppliedCredits:  decimal.Zero,
		RefundedCredits: decimal.Zero,
	}
	for i := range payments {
		pay := &payments[i]
		if pay.IsVoided() {
			continue
		}
		summary.TotalCredits = summary.TotalCredits.Add(pay.Amount)
		summary.AppliedCredits = summary.AppliedCredits.Add(pay.AllocatedAmount())
		summary.RefundedCredits = summary.RefundedCredits.Add(pay.RefundedAmount)
	}
	summary.AvailableCredits = summary.TotalCredits.Sub(summary.AppliedCredits).Sub(summary.RefundedCredits)
	return summary, nil
}

// CreditApplication reports one payment-to-invoice allocation made while
// applying credit.
type CreditApplication struct {
	PaymentNumber string          `json:"payment_number"`
	InvoiceNumber string          `json:"invoice_number"`
	Amount        decimal.Decimal `json:"amount"`
}

// ApplyCreditResult is the outcome of a credit application
type AppliedCreditResult struct {
	AppliedAmount   decimal.Decimal     `json:"applied_amount"`
	RemainingCredit decimal.Decimal     `json:"remaining_credit"`
	Applications    []CreditApplication `json:"applications"`
}

// ApplyCreditToInvoice draws the patient's credit, oldest payment first, and
// applies up to amount against one invoice. A zero amount applies as much as
// the invoice balance and available credit allow.
func (s *CreditService) ApplyCreditToInvoice(ctx context.Context, tenantID, patientID, invoiceID uuid.UUID, amount decimal.Decimal) (*AppliedCreditResult, error) {
	if amount.IsNegative() {
		return nil, shared.NewValidationError("INVALID_AMOUNT", "Credit amount cannot be negative")
	}

	var result *AppliedCreditResult
	err := s.txManager.WithinTransaction(ctx, func(txCtx context.Context) error {
		invoice, err := s.invoiceRepo.FindByIDForTenant(txCtx, tenantID, invoiceID)
		if err != nil {
			return fmt.Errorf("failed to get invoice: %w", err)
		}
		if invoice.PatientID != patientID {
			return shared.NewValidationError("PATIENT_MISMATCH", "Invoice belongs to a different patient")
		}
		if !invoice.Status.CanApplyPayment() {
			return shared.NewConflictError("INVALID_STATE",
				fmt.Sprintf("Cannot apply credit to invoice in %s status", invoice.Status))
		}

		target := invoice.AmountDue
		if !amount.IsZero() && amount.LessThan(target) {
			target = amount
		}

		applied, applications, err := s.drawCredit(txCtx, tenantID, patientID, invoice, target)
		if err != nil {
			return err
		}
		if applied.IsZero() {
			return shared.NewConflictError("NO_CREDIT", "Patient has no credit available")
		}

		if err := s.invoiceRepo.SaveWithLock(txCtx, invoice); err != nil {
			return err
		}

		remaining, err := s.paymentRepo.SumCreditByPatient(txCtx, tenantID, patientID)
		if err != nil {
			return err
		}
		result = &AppliedCreditResult{
			AppliedAmount:   applied,
			RemainingCredit: remaining,
			Applications:    applications,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidateBalance(ctx, tenantID, patientID)
	return result, nil
}

// ApplyPaymentCreditToInvoice applies part of one specific payment's
// unallocated remainder to an invoice. A zero amount applies as much as the
// invoice balance and the payment's remainder allow.
func (s *CreditService) ApplyPaymentCreditToInvoice(ctx context.Context, tenantID, paymentID, invoiceID uuid.UUID, amount decimal.Decimal) (*AppliedCreditResult, error) {
	if amount.IsNegative() {
		return nil, shared.NewValidationError("INVALID_AMOUNT", "Credit amount cannot be negative")
	}

	var result *AppliedCreditResult
	var patientID uuid.UUID
	err := s.txManager.WithinTransaction(ctx, func(txCtx context.Context) error {
		pay, err := s.paymentRepo.FindByIDForTenant(txCtx, tenantID, paymentID)
		if err != nil {
			return fmt.Errorf("failed to get payment: %w", err)
		}
		invoice, err := s.invoiceRepo.FindByIDForTenant(txCtx, tenantID, invoiceID)
		if err != nil {
			return fmt.Errorf("failed to get invoice: %w", err)
		}
		if invoice.PatientID != pay.PatientID {
			return shared.NewValidationError("PATIENT_MISMATCH", "Invoice and payment belong to different patients")
		}
		if !invoice.Status.CanApplyPayment() {
			return shared.NewConflictError("INVALID_STATE",
				fmt.Sprintf("Cannot apply credit to invoice in %s status", invoice.Status))
		}
		patientID = pay.PatientID

		available := pay.UnallocatedAmount()
		if available.IsZero() {
			return shared.NewConflictError("NO_CREDIT", "Payment has no unallocated amount")
		}
		portion := decimal.Min(invoice.AmountDue, available)
		if !amount.IsZero() {
			if amount.GreaterThan(available) {
				return shared.NewValidationError("EXCEEDS_CREDIT",
					fmt.Sprintf("Amount %.2f exceeds payment's unallocated %.2f",
						amount.InexactFloat64(), available.InexactFloat64()))
			}
			if amount.GreaterThan(invoice.AmountDue) {
				return shared.NewValidationError("EXCEEDS_DUE",
					fmt.Sprintf("Amount %.2f exceeds invoice balance %.2f",
						amount.InexactFloat64(), invoice.AmountDue.InexactFloat64()))
			}
			portion = amount
		}

		if err := invoice.ApplyPayment(pay.ID, portion, "credit application"); err != nil {
			return err
		}
		if err := pay.Allocate(invoice.ID, invoice.InvoiceNumber, portion, "credit application"); err != nil {
			return err
		}
		if err := s.paymentRepo.SaveWithLock(txCtx, pay); err != nil {
			return err
		}
		if err := s.invoiceRepo.SaveWithLock(txCtx, invoice); err != nil {
			return err
		}

		entry, err := billing.NewCreditAppliedEntry(
			tenantID, pay.PatientID, pay.ID, invoice.ID, portion,
			fmt.Sprintf("Credit from %s applied to invoice %s", pay.PaymentNumber, invoice.InvoiceNumber),
		)
		if err != nil {
			return err
		}
		if err := s.ledgerRepo.Append(txCtx, entry); err != nil {
			return err
		}

		remaining, err := s.paymentRepo.SumCreditByPatient(txCtx, tenantID, pay.PatientID)
		if err != nil {
			return err
		}
		result = &AppliedCreditResult{
			AppliedAmount:   portion,
			RemainingCredit: remaining,
			Applications: []CreditApplication{{
				PaymentNumber: pay.PaymentNumber,
				InvoiceNumber: invoice.InvoiceNumber,
				Amount:        portion,
			}},
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidateBalance(ctx, tenantID, patientID)
	return result, nil
}

// AutoApplyCredit spreads all available credit across the patient's
// outstanding invoices, earliest due date first.
func (s *CreditService) AutoApplyCredit(ctx context.Context, tenantID, patientID uuid.UUID) (*AppliedCreditResult, error) {
	var result *AppliedCreditResult
	err := s.txManager.WithinTransaction(ctx, func(txCtx context.Context) error {
		outstanding, err := s.invoiceRepo.FindOutstanding(txCtx, tenantID, patientID)
		if err != nil {
			return fmt.Errorf("failed to find outstanding invoices: %w", err)
		}

		totalApplied := decimal.Zero
		allApplications := make([]CreditApplication, 0)
		for i := range outstanding {
			invoice := &outstanding[i]
			applied, applications, err := s.drawCredit(txCtx, tenantID, patientID, invoice, invoice.AmountDue)
			if err != nil {
				return err
			}
			if applied.IsZero() {
				break
			}
			if err := s.invoiceRepo.SaveWithLock(txCtx, invoice); err != nil {
				return err
			}
			totalApplied = totalApplied.Add(applied)
			allApplications = append(allApplications, applications...)
		}

		remaining, err := s.paymentRepo.SumCreditByPatient(txCtx, tenantID, patientID)
		if err != nil {
			return err
		}
		result = &AppliedCreditResult{
			AppliedAmount:   totalApplied,
			RemainingCredit: remaining,
			Applications:    allApplications,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.AppliedAmount.GreaterThan(decimal.Zero) {
		s.invalidateBalance(ctx, tenantID, patientID)
		s.logger.Info("credit auto-applied",
			zap.String("patient_id", patientID.String()),
			zap.String("applied", result.AppliedAmount.String()),
		)
	}
	return result, nil
}

// drawCredit pulls credit from the patient's payments, oldest payment date
// first, and applies it to the invoice up to target. The invoice is mutated
// but not saved; each touched payment is saved with its version check.
func (s *CreditService) drawCredit(ctx context.Context, tenantID, patientID uuid.UUID, invoice *billing.Invoice, target decimal.Decimal) (decimal.Decimal, []CreditApplication, error) {
	if target.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, nil, nil
	}

	payments, err := s.paymentRepo.FindWithCredit(ctx, tenantID, patientID)
	if err != nil {
		return decimal.Zero, nil, fmt.Errorf("failed to find payments with credit: %w", err)
	}

	applied := decimal.Zero
	applications := make([]CreditApplication, 0)
	for i := range payments {
		if applied.GreaterThanOrEqual(target) {
			break
		}
		pay := &payments[i]
		if pay.HasAllocationFor(invoice.ID) {
			continue
		}

		portion := decimal.Min(target.Sub(applied), pay.UnallocatedAmount())
		if portion.LessThanOrEqual(decimal.Zero) {
			continue
		}

		if err := invoice.ApplyPayment(pay.ID, portion, "credit application"); err != nil {
			return decimal.Zero, nil, err
		}
		if err := pay.Allocate(invoice.ID, invoice.InvoiceNumber, portion, "credit application"); err != nil {
			return decimal.Zero, nil, err
		}
		if err := s.paymentRepo.SaveWithLock(ctx, pay); err != nil {
			return decimal.Zero, nil, err
		}

		entry, err := billing.NewCreditAppliedEntry(
			tenantID, patientID, pay.ID, invoice.ID, portion,
			fmt.Sprintf("Credit from %s applied to invoice %s", pay.PaymentNumber, invoice.InvoiceNumber),
		)
		if err != nil {
			return decimal.Zero, nil, err
		}
		if err := s.ledgerRepo.Append(ctx, entry); err != nil {
			return decimal.Zero, nil, err
		}

		applied = applied.Add(portion)
		applications = append(applications, CreditApplication{
			PaymentNumber: pay.PaymentNumber,
			InvoiceNumber: invoice.InvoiceNumber,
			Amount:        portion,
		})
	}
	return applied, applications, nil
}

func (s *CreditService) invalidateBalance(ctx context.Context, tenantID, patientID uuid.UUID) {
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
