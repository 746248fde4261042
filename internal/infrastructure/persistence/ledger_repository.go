package persistence

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/dentalclinic/backend/internal/domain/billing"
	"github.com/dentalclinic/backend/internal/infrastructure/persistence/models"
)

// GormLedgerRepository implements LedgerRepository using GORM. The ledger is
// append-only: this repository never updates or deletes rows.
type GormLedgerRepository struct {
	db *gorm.DB
}

// NewGormLedgerRepository creates a new GormLedgerRepository
func NewGormLedgerRepository(db *gorm.DB) *GormLedgerRepository {
	return &GormLedgerRepository{db: db}
}

// Append stores new ledger entries
func (r *GormLedgerRepository) Append(ctx context.Context, entries ...*billing.LedgerEntry) error {
	if len(entries) == 0 {
		return nil
	}
	entryModels := make([]*models.LedgerEntryModel, len(entries))
	for i, e := range entries {
		entryModels[i] = models.LedgerEntryModelFromDomain(e)
	}
	return dbFromContext(ctx, r.db).Create(&entryModels).Error
}

// FindByPatient returns a patient's entries, oldest first
func (r *GormLedgerRepository) FindByPatient(ctx context.Context, tenantID, patientID uuid.UUID, filter billing.LedgerFilter) (billing.LedgerEntries, error) {
	var entryModels []models.LedgerEntryModel
	query := applyLedgerFilter(dbFromContext(ctx, r.db).
		Where("tenant_id = ? AND patient_id = ?", tenantID, patientID), filter)

	if filter.PageSize > 0 {
		query = query.Limit(filter.PageSize)
		if filter.Page > 0 {
			query = query.Offset((filter.Page - 1) * filter.PageSize)
		}
	}

	if err := query.Order("entry_date ASC, created_at ASC").Find(&entryModels).Error; err != nil {
		return nil, err
	}
	entries := make(billing.LedgerEntries, len(entryModels))
	for i, model := range entryModels {
		entries[i] = model.ToDomain()
	}
	return entries, nil
}

// FindByInvoice returns all entries referencing an invoice
func (r *GormLedgerRepository) FindByInvoice(ctx context.Context, tenantID, invoiceID uuid.UUID) (billing.LedgerEntries, error) {
	var entryModels []models.LedgerEntryModel
	if err := dbFromContext(ctx, r.db).
		Where("tenant_id = ? AND invoice_id = ?", tenantID, invoiceID).
		Order("entry_date ASC, created_at ASC").
		Find(&entryModels).Error; err != nil {
		return nil, err
	}
	entries := make(billing.LedgerEntries, len(entryModels))
	for i, model := range entryModels {
		entries[i] = model.ToDomain()
	}
	return entries, nil
}

// BalanceByPatient computes the net signed balance from the patient's
// entries. CREDIT_APPLIED rows are reallocations and do not count, matching
// LedgerEntries.Balance.
func (r *GormLedgerRepository) BalanceByPatient(ctx context.Context, tenantID, patientID uuid.UUID) (decimal.Decimal, error) {
	var balance decimal.Decimal
	if err := dbFromContext(ctx, r.db).
		Model(&models.LedgerEntryModel{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("tenant_id = ? AND patient_id = ? AND entry_type <> ?", tenantID, patientID, billing.LedgerEntryTypeCreditApplied).
		Scan(&balance).Error; err != nil {
		return decimal.Zero, err
	}
	return balance, nil
}

// CountByPatient counts a patient's ledger entries
func (r *GormLedgerRepository) CountByPatient(ctx context.Context, tenantID, patientID uuid.UUID, filter billing.LedgerFilter) (int64, error) {
	var count int64
	query := applyLedgerFilter(dbFromContext(ctx, r.db).
		Model(&models.LedgerEntryModel{}).
		Where("tenant_id = ? AND patient_id = ?", tenantID, patientID), filter)
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// applyLedgerFilter applies filter options to the query
func applyLedgerFilter(query *gorm.DB, filter billing.LedgerFilter) *gorm.DB {
	if filter.EntryType != nil {
		query = query.Where("entry_type = ?", *filter.EntryType)
	}
	if filter.InvoiceID != nil {
		query = query.Where("invoice_id = ?", *filter.InvoiceID)
	}
	if filter.PaymentID != nil {
		query = query.Where("payment_id = ?", *filter.PaymentID)
	}
	if filter.FromDate != nil {
		query = query.Where("entry_date >= ?", *filter.FromDate)
	}
	if filter.ToDate != nil {
		query = query.Where("entry_date <= ?", *filter.ToDate)
	}
	return query
}

var _ billing.LedgerRepository = (*GormLedgerRepository)(nil)
