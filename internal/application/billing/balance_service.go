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
)

// BalanceService computes patient balances, reconciles them against the
// ledger, and produces account statements. The invoice and payment tables are
// authoritative; the cache only accelerates reads.
type BalanceService struct {
	invoiceRepo   billing.InvoiceRepository
	paymentRepo   billing.PaymentRepository
	ledgerRepo    billing.LedgerRepository
	patientRepo   patient.PatientRepository
	balanceCache  BalanceCache
	statementSink StatementSink
	logger        *zap.Logger
}

// NewBalanceService creates a new BalanceService
func NewBalanceService(
	invoiceRepo billing.InvoiceRepository,
	paymentRepo billing.PaymentRepository,
	ledgerRepo billing.LedgerRepository,
	patientRepo patient.PatientRepository,
	balanceCache BalanceCache,
	statementSink StatementSink,
	logger *zap.Logger,
) *BalanceService {
	return &BalanceService{
		invoiceRepo:   invoiceRepo,
		paymentRepo:   paymentRepo,
		ledgerRepo:    ledgerRepo,
		patientRepo:   patientRepo,
		balanceCache:  balanceCache,
		statementSink: statementSink,
		logger:        logger,
	}
}

// PatientBalance is the financial position of one patient. Balance is the
// amount due across open invoices; unapplied credit reduces it only once it
// is applied to an invoice, so Credit is reported alongside, not subtracted.
type PatientBalance struct {
	PatientID uuid.UUID       `json:"patient_id"`
	Balance   decimal.Decimal `json:"balance"` // Total amount due across open invoices
	Credit    decimal.Decimal `json:"credit"`  // Unallocated payment amounts, informational
	FromCache bool            `json:"from_cache"`
}

// GetPatientBalance returns the patient's balance: positive means the
// patient owes the clinic. The cached value is used when present; a miss
// recomputes from the store and repopulates the cache.
func (s *BalanceService) GetPatientBalance(ctx context.Context, tenantID, patientID uuid.UUID) (*PatientBalance, error) {
	if s.balanceCache != nil {
		if cached, found, err := s.balanceCache.Get(ctx, tenantID, patientID); err == nil && found {
			cached.PatientID = patientID
			cached.FromCache = true
			return cached, nil
		}
	}

	balance, err := s.computeBalance(ctx, tenantID, patientID)
	if err != nil {
		return nil, err
	}

	if s.balanceCache != nil {
		if err := s.balanceCache.Set(ctx, tenantID, patientID, balance); err != nil {
			s.logger.Warn("failed to cache patient balance",
				zap.String("patient_id", patientID.String()),
				zap.Error(err),
			)
		}
	}
	return balance, nil
}

func (s *BalanceService) computeBalance(ctx context.Context, tenantID, patientID uuid.UUID) (*PatientBalance, error) {
	outstanding, err := s.invoiceRepo.SumOutstandingByPatient(ctx, tenantID, patientID)
	if err != nil {
		return nil, fmt.Errorf("failed to sum outstanding invoices: %w", err)
	}
	credit, err := s.paymentRepo.SumCreditByPatient(ctx, tenantID, patientID)
	if err != nil {
		return nil, fmt.Errorf("failed to sum patient credit: %w", err)
	}
	return &PatientBalance{
		PatientID: patientID,
		Balance:   outstanding,
		Credit:    credit,
	}, nil
}

// ReconciliationReport compares the invoice/payment-derived balance with the
// ledger-derived balance for one patient.
type ReconciliationReport struct {
	PatientID       uuid.UUID       `json:"patient_id"`
	DerivedBalance  decimal.Decimal `json:"derived_balance"` // From invoices and payments
	LedgerBalance   decimal.Decimal `json:"ledger_balance"`  // From the append-only ledger
	Discrepancy     decimal.Decimal `json:"discrepancy"`
	Balanced        bool            `json:"balanced"`
	CheckedAt       time.Time       `json:"checked_at"`
}

// ReconcilePatient cross-checks the two balance derivations. A discrepancy
// indicates a bug or manual data intervention and is logged at error level;
// reconciliation never mutates data.
func (s *BalanceService) ReconcilePatient(ctx context.Context, tenantID, patientID uuid.UUID) (*ReconciliationReport, error) {
	derived, err := s.computeBalance(ctx, tenantID, patientID)
	if err != nil {
		return nil, err
	}
	ledgerBalance, err := s.ledgerRepo.BalanceByPatient(ctx, tenantID, patientID)
	if err != nil {
		return nil, fmt.Errorf("failed to compute ledger balance: %w", err)
	}

	// The ledger nets each payment in full when received, so the comparable
	// derived figure backs the still-unapplied credit out of the balance.
	derivedPosition := derived.Balance.Sub(derived.Credit)
	report := &ReconciliationReport{
		PatientID:      patientID,
		DerivedBalance: derivedPosition,
		LedgerBalance:  ledgerBalance,
		Discrepancy:    derivedPosition.Sub(ledgerBalance),
		CheckedAt:      time.Now(),
	}
	report.Balanced = report.Discrepancy.IsZero()

	if !report.Balanced {
		s.logger.Error("patient balance discrepancy",
			zap.String("patient_id", patientID.String()),
			zap.String("derived", report.DerivedBalance.String()),
			zap.String("ledger", report.LedgerBalance.String()),
			zap.String("discrepancy", report.Discrepancy.String()),
		)
	}
	return report, nil
}

// GenerateStatement builds a chronological account statement for a patient
// over a date range, with running balances per line.
func (s *BalanceService) GenerateStatement(ctx context.Context, tenantID, patientID uuid.UUID, from, to time.Time) (*PatientStatement, error) {
	if to.Before(from) {
		to, from = from, to
	}

	pat, err := s.patientRepo.FindByIDForTenant(ctx, tenantID, patientID)
	if err != nil {
		return nil, fmt.Errorf("failed to get patient: %w", err)
	}

	entries, err := s.ledgerRepo.FindByPatient(ctx, tenantID, patientID, billing.LedgerFilter{})
	if err != nil {
		return nil, fmt.Errorf("failed to load ledger: %w", err)
	}

	// CREDIT_APPLIED entries are traceability records; the funding
	// PAYMENT_RECEIVED entry already moved the balance. They are excluded
	// here just as LedgerEntries.Balance excludes them.
	opening := decimal.Zero
	for _, entry := range entries {
		if entry.EntryType == billing.LedgerEntryTypeCreditApplied {
			continue
		}
		if entry.EntryDate.Before(from) {
			opening = opening.Add(entry.Amount)
		}
	}

	running := opening
	lines := make([]StatementLine, 0)
	for _, entry := range entries {
		if entry.EntryType == billing.LedgerEntryTypeCreditApplied {
			continue
		}
		if entry.EntryDate.Before(from) || entry.EntryDate.After(to) {
			continue
		}
		running = running.Add(entry.Amount)
		lines = append(lines, StatementLine{
			Date:        entry.EntryDate,
			EntryType:   entry.EntryType.String(),
			Description: entry.Description,
			Amount:      entry.Amount,
			Balance:     running,
		})
	}
	closing := running

	return &PatientStatement{
		TenantID:       tenantID,
		PatientID:      patientID,
		PatientName:    pat.FullName(),
		FromDate:       from,
		ToDate:         to,
		OpeningBalance: opening,
		ClosingBalance: closing,
		Lines:          lines,
		GeneratedAt:    time.Now(),
	}, nil
}

// DeliverStatement generates a statement and hands it to the configured sink
func (s *BalanceService) DeliverStatement(ctx context.Context, tenantID, patientID uuid.UUID, from, to time.Time) (*PatientStatement, error) {
	statement, err := s.GenerateStatement(ctx, tenantID, patientID, from, to)
	if err != nil {
		return nil, err
	}
	if s.statementSink == nil {
		return statement, nil
	}
	if err := s.statementSink.Deliver(ctx, statement); err != nil {
		return nil, fmt.Errorf("failed to deliver statement: %w", err)
	}
	s.logger.Info("statement delivered",
		zap.String("patient_id", patientID.String()),
		zap.Int("lines", len(statement.Lines)),
	)
	return statement, nil
}
