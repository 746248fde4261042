package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/dentalclinic/backend/internal/domain/billing"
	"github.com/dentalclinic/backend/internal/domain/shared"
)

// PaymentPlanService manages installment plans over invoice balances
type PaymentPlanService struct {
	planRepo    billing.PaymentPlanRepository
	invoiceRepo billing.InvoiceRepository
	paymentRepo billing.PaymentRepository
	txManager   shared.TransactionManager
	logger      *zap.Logger
}

// NewPaymentPlanService creates a new PaymentPlanService
func NewPaymentPlanService(
	planRepo billing.PaymentPlanRepository,
	invoiceRepo billing.InvoiceRepository,
	paymentRepo billing.PaymentRepository,
	txManager shared.TransactionManager,
	logger *zap.Logger,
) *PaymentPlanService {
	return &PaymentPlanService{
		planRepo:    planRepo,
		invoiceRepo: invoiceRepo,
		paymentRepo: paymentRepo,
		txManager:   txManager,
		logger:      logger,
	}
}

// CreatePlanRequest represents a request to schedule an invoice balance.
// Either explicit installments or a count for an equal monthly split.
type CreatePlanRequest struct {
	TenantID      uuid.UUID                 `json:"tenant_id" validate:"required"`
	InvoiceID     uuid.UUID                 `json:"invoice_id" validate:"required"`
	Installments  []billing.InstallmentSpec `json:"installments"`
	MonthlyCount  int                       `json:"monthly_count"`  // Used when Installments is empty
	FirstDueDate  time.Time                 `json:"first_due_date"` // Used when Installments is empty
	Notes         string                    `json:"notes" validate:"max=1000"`
}

// CreatePlan schedules the remaining balance of an invoice across
// installments. An invoice can carry at most one active plan.
func (s *PaymentPlanService) CreatePlan(ctx context.Context, req CreatePlanRequest) (*billing.PaymentPlan, error) {
	if err := validate.Struct(req); err != nil {
		return nil, shared.NewValidationError("INVALID_REQUEST", err.Error())
	}

	invoice, err := s.invoiceRepo.FindByIDForTenant(ctx, req.TenantID, req.InvoiceID)
	if err != nil {
		return nil, fmt.Errorf("failed to get invoice: %w", err)
	}
	if !invoice.Status.CanApplyPayment() {
		return nil, shared.NewConflictError("INVALID_STATE",
			fmt.Sprintf("Cannot create a plan for invoice in %s status", invoice.Status))
	}
	if invoice.AmountDue.IsZero() {
		return nil, shared.NewConflictError("NOTHING_DUE", "Invoice has no remaining balance")
	}

	existing, err := s.planRepo.FindByInvoice(ctx, req.TenantID, req.InvoiceID)
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return nil, fmt.Errorf("failed to check existing plan: %w", err)
	}
	if existing != nil && !existing.Status.IsTerminal() {
		return nil, shared.NewConflictError("PLAN_EXISTS",
			fmt.Sprintf("Invoice already has plan %s in %s status", existing.PlanNumber, existing.Status))
	}

	specs := req.Installments
	if len(specs) == 0 {
		specs, err = equalMonthlySplit(invoice.AmountDue, req.MonthlyCount, req.FirstDueDate)
		if err != nil {
			return nil, err
		}
	}

	var plan *billing.PaymentPlan
	err = s.txManager.WithinTransaction(ctx, func(txCtx context.Context) error {
		number, err := s.planRepo.GeneratePlanNumber(txCtx, req.TenantID)
		if err != nil {
			return fmt.Errorf("failed to generate plan number: %w", err)
		}

		plan, err = billing.NewPaymentPlan(
			req.TenantID, number, invoice.ID, invoice.InvoiceNumber,
			invoice.PatientID, invoice.AmountDue, specs, req.Notes,
		)
		if err != nil {
			return err
		}
		return s.planRepo.Save(txCtx, plan)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("payment plan created",
		zap.String("plan_number", plan.PlanNumber),
		zap.String("invoice_number", invoice.InvoiceNumber),
		zap.Int("installments", len(plan.Installments)),
	)
	return plan, nil
}

// equalMonthlySplit divides an amount into count monthly installments, the
// last installment absorbing the rounding remainder.
func equalMonthlySplit(total decimal.Decimal, count int, firstDue time.Time) ([]billing.InstallmentSpec, error) {
	if count < 2 {
		return nil, shared.NewValidationError("TOO_FEW_INSTALLMENTS", "Monthly split requires at least two installments")
	}
	if firstDue.IsZero() {
		return nil, shared.NewValidationError("INVALID_INSTALLMENT_DATE", "First due date is required")
	}

	portion := total.Div(decimal.NewFromInt(int64(count))).Round(2)
	specs := make([]billing.InstallmentSpec, count)
	allocated := decimal.Zero
	for i := 0; i < count; i++ {
		amount := portion
		if i == count-1 {
			amount = total.Sub(allocated)
		}
		specs[i] = billing.InstallmentSpec{
			Amount:  amount,
			DueDate: firstDue.AddDate(0, i, 0),
		}
		allocated = allocated.Add(amount)
	}
	return specs, nil
}

// GetPlan returns a payment plan by ID for a tenant
func (s *PaymentPlanService) GetPlan(ctx context.Context, tenantID, planID uuid.UUID) (*billing.PaymentPlan, error) {
	return s.planRepo.FindByIDForTenant(ctx, tenantID, planID)
}

// ListPlans returns payment plans for a tenant with filtering
func (s *PaymentPlanService) ListPlans(ctx context.Context, tenantID uuid.UUID, filter billing.PaymentPlanFilter) ([]billing.PaymentPlan, error) {
	return s.planRepo.FindAllForTenant(ctx, tenantID, filter)
}

// SettleInstallment applies an amount from an existing payment to a plan
// installment. Recording the payment itself (and its invoice allocation)
// happens through the payment service first.
func (s *PaymentPlanService) SettleInstallment(ctx context.Context, tenantID, planID, installmentID, paymentID uuid.UUID, amount decimal.Decimal, paidAt time.Time) (*billing.PaymentPlan, error) {
	plan, err := s.planRepo.FindByIDForTenant(ctx, tenantID, planID)
	if err != nil {
		return nil, fmt.Errorf("failed to get plan: %w", err)
	}

	pay, err := s.paymentRepo.FindByIDForTenant(ctx, tenantID, paymentID)
	if err != nil {
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	if pay.PatientID != plan.PatientID {
		return nil, shared.NewValidationError("PATIENT_MISMATCH", "Payment belongs to a different patient")
	}
	if pay.IsVoided() {
		return nil, shared.NewConflictError("PAYMENT_VOIDED", "Cannot settle an installment with a voided payment")
	}
	if amount.GreaterThan(pay.Amount) {
		return nil, shared.NewValidationError("EXCEEDS_PAYMENT",
			fmt.Sprintf("Settlement %.2f exceeds payment amount %.2f",
				amount.InexactFloat64(), pay.Amount.InexactFloat64()))
	}

	if err := plan.RecordInstallmentPayment(installmentID, paymentID, amount, paidAt); err != nil {
		return nil, err
	}
	if err := s.planRepo.SaveWithLock(ctx, plan); err != nil {
		return nil, err
	}

	if plan.Status == billing.PaymentPlanStatusCompleted {
		s.logger.Info("payment plan completed", zap.String("plan_number", plan.PlanNumber))
	}
	return plan, nil
}

// CancelPlan terminates a plan; the invoice balance returns to ordinary
// collection.
func (s *PaymentPlanService) CancelPlan(ctx context.Context, tenantID, planID uuid.UUID, reason string) (*billing.PaymentPlan, error) {
	plan, err := s.planRepo.FindByIDForTenant(ctx, tenantID, planID)
	if err != nil {
		return nil, fmt.Errorf("failed to get plan: %w", err)
	}
	if err := plan.Cancel(reason); err != nil {
		return nil, err
	}
	if err := s.planRepo.SaveWithLock(ctx, plan); err != nil {
		return nil, err
	}
	return plan, nil
}

// RefreshOverduePlans flags past-due installments across a tenant's active
// plans. It never defaults a plan; MarkPlanDefaulted is the explicit policy
// action for that. Returns the number of plans touched.
func (s *PaymentPlanService) RefreshOverduePlans(ctx context.Context, tenantID uuid.UUID, asOf time.Time) (int, error) {
	plans, err := s.planRepo.FindActiveWithDueInstallments(ctx, tenantID, asOf)
	if err != nil {
		return 0, fmt.Errorf("failed to find plans with due installments: %w", err)
	}

	touched := 0
	for i := range plans {
		plan := &plans[i]
		if plan.RefreshOverdue(asOf) == 0 {
			continue
		}
		if err := s.planRepo.SaveWithLock(ctx, plan); err != nil {
			s.logger.Warn("skipping plan after save conflict",
				zap.String("plan_number", plan.PlanNumber),
				zap.Error(err),
			)
			continue
		}
		touched++
	}
	return touched, nil
}

// MarkPlanDefaulted declares a plan defaulted. This is a deliberate decision
// by clinic staff about a markedly overdue plan, not an automatic sweep.
func (s *PaymentPlanService) MarkPlanDefaulted(ctx context.Context, tenantID, planID uuid.UUID) (*billing.PaymentPlan, error) {
	plan, err := s.planRepo.FindByIDForTenant(ctx, tenantID, planID)
	if err != nil {
		return nil, fmt.Errorf("failed to get plan: %w", err)
	}
	plan.RefreshOverdue(time.Now())
	if err := plan.MarkDefaulted(); err != nil {
		return nil, err
	}
	if err := s.planRepo.SaveWithLock(ctx, plan); err != nil {
		return nil, err
	}

	s.logger.Warn("payment plan defaulted",
		zap.String("plan_number", plan.PlanNumber),
		zap.String("remaining", plan.RemainingAmount().String()),
	)
	return plan, nil
}
