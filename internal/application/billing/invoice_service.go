package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/dentalclinic/backend/internal/domain/billing"
	"github.com/dentalclinic/backend/internal/domain/catalog"
	"github.com/dentalclinic/backend/internal/domain/patient"
	"github.com/dentalclinic/backend/internal/domain/shared"
)

// validate is the shared request validator for the billing services
var validate = validator.New()

// InvoiceService handles invoice lifecycle operations
type InvoiceService struct {
	invoiceRepo   billing.InvoiceRepository
	patientRepo   patient.PatientRepository
	procedureRepo catalog.ProcedureRepository
	ledgerRepo    billing.LedgerRepository
	txManager     shared.TransactionManager
	balanceCache  BalanceCache
	logger        *zap.Logger
}

// NewInvoiceService creates a new InvoiceService
func NewInvoiceService(
	invoiceRepo billing.InvoiceRepository,
	patientRepo patient.PatientRepository,
	procedureRepo catalog.ProcedureRepository,
	ledgerRepo billing.LedgerRepository,
	txManager shared.TransactionManager,
	balanceCache BalanceCache,
	logger *zap.Logger,
) *InvoiceService {
	return &InvoiceService{
		invoiceRepo:   invoiceRepo,
		patientRepo:   patientRepo,
		procedureRepo: procedureRepo,
		ledgerRepo:    ledgerRepo,
		txManager:     txManager,
		balanceCache:  balanceCache,
		logger:        logger,
	}
}

// CreateInvoiceItemRequest describes one line of a new invoice. When a
// procedure is referenced and no amount is given, the procedure's default fee
// applies.
type CreateInvoiceItemRequest struct {
	ProcedureID *uuid.UUID      `json:"procedure_id"`
	VisitID     *uuid.UUID      `json:"visit_id"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
}

// CreateInvoiceRequest represents a request to issue a new invoice
type CreateInvoiceRequest struct {
	TenantID  uuid.UUID                  `json:"tenant_id" validate:"required"`
	PatientID uuid.UUID                  `json:"patient_id" validate:"required"`
	Items     []CreateInvoiceItemRequest `json:"items" validate:"required,min=1,dive"`
	IssueDate time.Time                  `json:"issue_date" validate:"required"`
	DueDate   time.Time                  `json:"due_date" validate:"required"`
	Notes     string                     `json:"notes" validate:"max=1000"`
}

// CreateInvoice issues a new invoice for a patient and records the charge in
// the patient ledger. The invoice number is generated per tenant inside the
// transaction.
func (s *InvoiceService) CreateInvoice(ctx context.Context, req CreateInvoiceRequest) (*billing.Invoice, error) {
	if err := validate.Struct(req); err != nil {
		return nil, shared.NewValidationError("INVALID_REQUEST", err.Error())
	}

	pat, err := s.patientRepo.FindByIDForTenant(ctx, req.TenantID, req.PatientID)
	if err != nil {
		return nil, fmt.Errorf("failed to get patient: %w", err)
	}
	if !pat.IsActive() {
		return nil, shared.NewConflictError("PATIENT_ARCHIVED", "Cannot invoice an archived patient")
	}

	items, err := s.resolveItems(ctx, req.TenantID, req.Items)
	if err != nil {
		return nil, err
	}

	var invoice *billing.Invoice
	err = s.txManager.WithinTransaction(ctx, func(txCtx context.Context) error {
		number, err := s.invoiceRepo.GenerateInvoiceNumber(txCtx, req.TenantID)
		if err != nil {
			return fmt.Errorf("failed to generate invoice number: %w", err)
		}

		invoice, err = billing.NewInvoice(
			req.TenantID, number, req.PatientID, pat.FullName(),
			items, req.IssueDate, req.DueDate, req.Notes,
		)
		if err != nil {
			return err
		}

		if err := s.invoiceRepo.Save(txCtx, invoice); err != nil {
			return fmt.Errorf("failed to save invoice: %w", err)
		}

		charge, err := billing.NewInvoiceIssuedEntry(
			req.TenantID, req.PatientID, invoice.ID, invoice.TotalAmount,
			fmt.Sprintf("Invoice %s", invoice.InvoiceNumber),
		)
		if err != nil {
			return err
		}
		return s.ledgerRepo.Append(txCtx, charge)
	})
	if err != nil {
		return nil, err
	}

	s.invalidateBalance(ctx, req.TenantID, req.PatientID)

	s.logger.Info("invoice created",
		zap.String("invoice_number", invoice.InvoiceNumber),
		zap.String("patient_id", req.PatientID.String()),
		zap.String("total", invoice.TotalAmount.String()),
	)

	return invoice, nil
}

// resolveItems turns item requests into domain items, pulling codes and
// default fees from the fee schedule where a procedure is referenced.
func (s *InvoiceService) resolveItems(ctx context.Context, tenantID uuid.UUID, reqs []CreateInvoiceItemRequest) ([]billing.InvoiceItem, error) {
	items := make([]billing.InvoiceItem, 0, len(reqs))
	for i, r := range reqs {
		description := r.Description
		amount := r.Amount
		var code string

		if r.ProcedureID != nil {
			proc, err := s.procedureRepo.FindByIDForTenant(ctx, tenantID, *r.ProcedureID)
			if err != nil {
				return nil, fmt.Errorf("failed to get procedure for item %d: %w", i+1, err)
			}
			if !proc.Active {
				return nil, shared.NewConflictError("PROCEDURE_INACTIVE",
					fmt.Sprintf("Procedure %s is not in the active fee schedule", proc.Code))
			}
			code = proc.Code
			if description == "" {
				description = proc.Name
			}
			if amount.IsZero() {
				amount = proc.DefaultFee
			}
		}

		item, err := billing.NewInvoiceItem(description, amount)
		if err != nil {
			return nil, err
		}
		if r.ProcedureID != nil {
			item.WithProcedure(*r.ProcedureID, code)
		}
		if r.VisitID != nil {
			item.WithVisit(*r.VisitID)
		}
		items = append(items, *item)
	}
	return items, nil
}

// GetInvoice returns an invoice by ID for a tenant
func (s *InvoiceService) GetInvoice(ctx context.Context, tenantID, invoiceID uuid.UUID) (*billing.Invoice, error) {
	return s.invoiceRepo.FindByIDForTenant(ctx, tenantID, invoiceID)
}

// GetInvoiceByNumber returns an invoice by its document number
func (s *InvoiceService) GetInvoiceByNumber(ctx context.Context, tenantID uuid.UUID, number string) (*billing.Invoice, error) {
	return s.invoiceRepo.FindByInvoiceNumber(ctx, tenantID, number)
}

// ListInvoices returns invoices for a tenant with filtering
func (s *InvoiceService) ListInvoices(ctx context.Context, tenantID uuid.UUID, filter billing.InvoiceFilter) ([]billing.Invoice, int64, error) {
	invoices, err := s.invoiceRepo.FindAllForTenant(ctx, tenantID, filter)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.invoiceRepo.CountForTenant(ctx, tenantID, filter)
	if err != nil {
		return nil, 0, err
	}
	return invoices, total, nil
}

// UpdateInvoiceStatus performs an explicit status transition. Cancellation and
// write-off route through their dedicated operations so the ledger trail stays
// intact; other targets validate against the invoice transition table.
func (s *InvoiceService) UpdateInvoiceStatus(ctx context.Context, tenantID, invoiceID uuid.UUID, target billing.InvoiceStatus, reason string) (*billing.Invoice, error) {
	switch target {
	case billing.InvoiceStatusCancelled:
		return s.CancelInvoice(ctx, tenantID, invoiceID, reason)
	case billing.InvoiceStatusWrittenOff:
		return s.WriteOff(ctx, WriteOffRequest{TenantID: tenantID, InvoiceID: invoiceID, Reason: reason})
	}

	invoice, err := s.invoiceRepo.FindByIDForTenant(ctx, tenantID, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("failed to get invoice: %w", err)
	}
	if err := invoice.TransitionTo(target, reason); err != nil {
		return nil, err
	}
	if err := s.invoiceRepo.SaveWithLock(ctx, invoice); err != nil {
		return nil, err
	}

	s.invalidateBalance(ctx, tenantID, invoice.PatientID)
	return invoice, nil
}

// ApplyDiscountRequest represents a request to discount an invoice
type ApplyDiscountRequest struct {
	TenantID     uuid.UUID            `json:"tenant_id" validate:"required"`
	InvoiceID    uuid.UUID            `json:"invoice_id" validate:"required"`
	DiscountType billing.DiscountType `json:"discount_type" validate:"required"`
	Value        decimal.Decimal      `json:"value" validate:"required"`
	Reason       string               `json:"reason" validate:"required,max=500"`
}

// ApplyDiscount applies a discount to an invoice and records the ledger
// adjustment for the reduction.
func (s *InvoiceService) ApplyDiscount(ctx context.Context, req ApplyDiscountRequest) (*billing.Invoice, error) {
	if err := validate.Struct(req); err != nil {
		return nil, shared.NewValidationError("INVALID_REQUEST", err.Error())
	}

	invoice, err := s.invoiceRepo.FindByIDForTenant(ctx, req.TenantID, req.InvoiceID)
	if err != nil {
		return nil, fmt.Errorf("failed to get invoice: %w", err)
	}

	previousTotal := invoice.TotalAmount
	if err := invoice.ApplyDiscount(req.DiscountType, req.Value, req.Reason); err != nil {
		return nil, err
	}
	reduction := previousTotal.Sub(invoice.TotalAmount)

	err = s.txManager.WithinTransaction(ctx, func(txCtx context.Context) error {
		if err := s.invoiceRepo.SaveWithLock(txCtx, invoice); err != nil {
			return err
		}
		if reduction.GreaterThan(decimal.Zero) {
			adj, err := billing.NewAdjustmentEntry(
				req.TenantID, invoice.PatientID, invoice.ID, reduction,
				fmt.Sprintf("Discount on invoice %s: %s", invoice.InvoiceNumber, req.Reason),
			)
			if err != nil {
				return err
			}
			return s.ledgerRepo.Append(txCtx, adj)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidateBalance(ctx, req.TenantID, invoice.PatientID)
	return invoice, nil
}

// CreditNoteRequest represents a request to issue a credit note against an invoice
type CreditNoteRequest struct {
	TenantID  uuid.UUID       `json:"tenant_id" validate:"required"`
	InvoiceID uuid.UUID       `json:"invoice_id" validate:"required"`
	Amount    decimal.Decimal `json:"amount" validate:"required"`
	Reason    string          `json:"reason" validate:"required,max=500"`
}

// IssueCreditNote corrects over-billing with a negative adjustment and a
// matching ledger entry.
func (s *InvoiceService) IssueCreditNote(ctx context.Context, req CreditNoteRequest) (*billing.Invoice, error) {
	if err := validate.Struct(req); err != nil {
		return nil, shared.NewValidationError("INVALID_REQUEST", err.Error())
	}

	invoice, err := s.invoiceRepo.FindByIDForTenant(ctx, req.TenantID, req.InvoiceID)
	if err != nil {
		return nil, fmt.Errorf("failed to get invoice: %w", err)
	}

	if err := invoice.ApplyCreditNote(req.Amount, req.Reason); err != nil {
		return nil, err
	}

	err = s.txManager.WithinTransaction(ctx, func(txCtx context.Context) error {
		if err := s.invoiceRepo.SaveWithLock(txCtx, invoice); err != nil {
			return err
		}
		adj, err := billing.NewAdjustmentEntry(
			req.TenantID, invoice.PatientID, invoice.ID, req.Amount,
			fmt.Sprintf("Credit note on invoice %s: %s", invoice.InvoiceNumber, req.Reason),
		)
		if err != nil {
			return err
		}
		return s.ledgerRepo.Append(txCtx, adj)
	})
	if err != nil {
		return nil, err
	}

	s.invalidateBalance(ctx, req.TenantID, invoice.PatientID)
	return invoice, nil
}

// WriteOffRequest represents a request to write off part or all of an invoice balance
type WriteOffRequest struct {
	TenantID  uuid.UUID       `json:"tenant_id" validate:"required"`
	InvoiceID uuid.UUID       `json:"invoice_id" validate:"required"`
	Amount    decimal.Decimal `json:"amount"` // Zero means the full remaining balance
	Reason    string          `json:"reason" validate:"required,max=500"`
}

// WriteOff forgives part or all of an invoice's remaining balance
func (s *InvoiceService) WriteOff(ctx context.Context, req WriteOffRequest) (*billing.Invoice, error) {
	if err := validate.Struct(req); err != nil {
		return nil, shared.NewValidationError("INVALID_REQUEST", err.Error())
	}

	invoice, err := s.invoiceRepo.FindByIDForTenant(ctx, req.TenantID, req.InvoiceID)
	if err != nil {
		return nil, fmt.Errorf("failed to get invoice: %w", err)
	}

	amount := req.Amount
	if amount.IsZero() {
		amount = invoice.AmountDue
	}
	if err := invoice.ApplyWriteOff(amount, req.Reason); err != nil {
		return nil, err
	}

	err = s.txManager.WithinTransaction(ctx, func(txCtx context.Context) error {
		if err := s.invoiceRepo.SaveWithLock(txCtx, invoice); err != nil {
			return err
		}
		adj, err := billing.NewWriteOffEntry(
			req.TenantID, invoice.PatientID, invoice.ID, amount,
			fmt.Sprintf("Write-off on invoice %s: %s", invoice.InvoiceNumber, req.Reason),
		)
		if err != nil {
			return err
		}
		return s.ledgerRepo.Append(txCtx, adj)
	})
	if err != nil {
		return nil, err
	}

	s.invalidateBalance(ctx, req.TenantID, invoice.PatientID)

	s.logger.Info("invoice write-off",
		zap.String("invoice_number", invoice.InvoiceNumber),
		zap.String("amount", amount.String()),
		zap.String("status", invoice.Status.String()),
	)

	return invoice, nil
}

// CancelInvoice cancels an unpaid invoice and reverses its ledger charge
func (s *InvoiceService) CancelInvoice(ctx context.Context, tenantID, invoiceID uuid.UUID, reason string) (*billing.Invoice, error) {
	invoice, err := s.invoiceRepo.FindByIDForTenant(ctx, tenantID, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("failed to get invoice: %w", err)
	}

	if err := invoice.Cancel(reason); err != nil {
		return nil, err
	}

	err = s.txManager.WithinTransaction(ctx, func(txCtx context.Context) error {
		if err := s.invoiceRepo.SaveWithLock(txCtx, invoice); err != nil {
			return err
		}

		entries, err := s.ledgerRepo.FindByInvoice(txCtx, tenantID, invoiceID)
		if err != nil {
			return fmt.Errorf("failed to load ledger entries: %w", err)
		}
		for _, entry := range entries {
			if entry.EntryType != billing.LedgerEntryTypeInvoiceIssued || entry.IsReversal() {
				continue
			}
			reversal, err := billing.NewReversalEntry(tenantID, invoice.PatientID, entry, reason)
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

	s.invalidateBalance(ctx, tenantID, invoice.PatientID)
	return invoice, nil
}

// DuplicateInvoice issues a fresh invoice copying another invoice's line
// items, without its payment history. Used for recurring treatments.
func (s *InvoiceService) DuplicateInvoice(ctx context.Context, tenantID, invoiceID uuid.UUID, issueDate, dueDate time.Time) (*billing.Invoice, error) {
	source, err := s.invoiceRepo.FindByIDForTenant(ctx, tenantID, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("failed to get source invoice: %w", err)
	}

	var invoice *billing.Invoice
	err = s.txManager.WithinTransaction(ctx, func(txCtx context.Context) error {
		number, err := s.invoiceRepo.GenerateInvoiceNumber(txCtx, tenantID)
		if err != nil {
			return err
		}
		invoice, err = billing.NewInvoice(
			tenantID, number, source.PatientID, source.PatientName,
			source.CloneItems(), issueDate, dueDate, source.Notes,
		)
		if err != nil {
			return err
		}
		if err := s.invoiceRepo.Save(txCtx, invoice); err != nil {
			return err
		}
		charge, err := billing.NewInvoiceIssuedEntry(
			tenantID, source.PatientID, invoice.ID, invoice.TotalAmount,
			fmt.Sprintf("Invoice %s", invoice.InvoiceNumber),
		)
		if err != nil {
			return err
		}
		return s.ledgerRepo.Append(txCtx, charge)
	})
	if err != nil {
		return nil, err
	}

	s.invalidateBalance(ctx, tenantID, source.PatientID)
	return invoice, nil
}

// MarkOverdueInvoices flags past-due invoices as OVERDUE in batches. Version
// conflicts on individual invoices are skipped; the next run picks them up.
// Returns the number of invoices flagged.
func (s *InvoiceService) MarkOverdueInvoices(ctx context.Context, tenantID uuid.UUID, asOf time.Time, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = 100
	}

	invoices, err := s.invoiceRepo.FindPastDue(ctx, tenantID, asOf, batchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to find past-due invoices: %w", err)
	}

	flagged := 0
	for i := range invoices {
		inv := &invoices[i]
		if err := inv.MarkOverdue(asOf); err != nil {
			continue
		}
		if err := s.invoiceRepo.SaveWithLock(ctx, inv); err != nil {
			s.logger.Warn("skipping overdue flag after save conflict",
				zap.String("invoice_number", inv.InvoiceNumber),
				zap.Error(err),
			)
			continue
		}
		flagged++
	}

	if flagged > 0 {
		s.logger.Info("flagged overdue invoices",
			zap.String("tenant_id", tenantID.String()),
			zap.Int("count", flagged),
		)
	}
	return flagged, nil
}

func (s *InvoiceService) invalidateBalance(ctx context.Context, tenantID, patientID uuid.UUID) {
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
