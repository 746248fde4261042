package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/dentalclinic/backend/internal/domain/billing"
	"github.com/dentalclinic/backend/internal/domain/shared"
	"github.com/dentalclinic/backend/internal/infrastructure/persistence/models"
)

// GormInvoiceRepository implements InvoiceRepository using GORM
type GormInvoiceRepository struct {
	db *gorm.DB
}

// NewGormInvoiceRepository creates a new GormInvoiceRepository
func NewGormInvoiceRepository(db *gorm.DB) *GormInvoiceRepository {
	return &GormInvoiceRepository{db: db}
}

// FindByID finds an invoice by ID
func (r *GormInvoiceRepository) FindByID(ctx context.Context, id uuid.UUID) (*billing.Invoice, error) {
	var model models.InvoiceModel
	if err := dbFromContext(ctx, r.db).
		First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByIDForTenant finds an invoice by ID for a specific tenant
func (r *GormInvoiceRepository) FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*billing.Invoice, error) {
	var model models.InvoiceModel
	if err := dbFromContext(ctx, r.db).
		First(&model, "id = ? AND tenant_id = ?", id, tenantID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByInvoiceNumber finds by invoice number for a tenant
func (r *GormInvoiceRepository) FindByInvoiceNumber(ctx context.Context, tenantID uuid.UUID, invoiceNumber string) (*billing.Invoice, error) {
	var model models.InvoiceModel
	if err := dbFromContext(ctx, r.db).
		First(&model, "invoice_number = ? AND tenant_id = ?", invoiceNumber, tenantID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindAllForTenant finds all invoices for a tenant with filtering
func (r *GormInvoiceRepository) FindAllForTenant(ctx context.Context, tenantID uuid.UUID, filter billing.InvoiceFilter) ([]billing.Invoice, error) {
	var invoiceModels []models.InvoiceModel
	query := applyInvoiceFilter(dbFromContext(ctx, r.db).Where("tenant_id = ?", tenantID), filter)

	if filter.PageSize > 0 {
		query = query.Limit(filter.PageSize)
		if filter.Page > 0 {
			query = query.Offset((filter.Page - 1) * filter.PageSize)
		}
	}

	if err := query.Order("issue_date DESC").Find(&invoiceModels).Error; err != nil {
		return nil, err
	}
	invoices := make([]billing.Invoice, len(invoiceModels))
	for i, model := range invoiceModels {
		invoices[i] = *model.ToDomain()
	}
	return invoices, nil
}

// FindByPatient finds invoices for a patient
func (r *GormInvoiceRepository) FindByPatient(ctx context.Context, tenantID, patientID uuid.UUID, filter billing.InvoiceFilter) ([]billing.Invoice, error) {
	filter.PatientID = &patientID
	return r.FindAllForTenant(ctx, tenantID, filter)
}

// FindOutstanding finds all invoices with a balance remaining for a patient,
// oldest due date first so credit application hits the oldest debt
func (r *GormInvoiceRepository) FindOutstanding(ctx context.Context, tenantID, patientID uuid.UUID) ([]billing.Invoice, error) {
	var invoiceModels []models.InvoiceModel
	if err := dbFromContext(ctx, r.db).
		Where("tenant_id = ? AND patient_id = ? AND amount_due > 0 AND status IN ?",
			tenantID, patientID, openInvoiceStatuses()).
		Order("due_date ASC").
		Find(&invoiceModels).Error; err != nil {
		return nil, err
	}
	invoices := make([]billing.Invoice, len(invoiceModels))
	for i, model := range invoiceModels {
		invoices[i] = *model.ToDomain()
	}
	return invoices, nil
}

// FindPastDue finds unpaid or partially paid invoices whose due date has
// passed but are not yet flagged OVERDUE
func (r *GormInvoiceRepository) FindPastDue(ctx context.Context, tenantID uuid.UUID, asOf time.Time, limit int) ([]billing.Invoice, error) {
	var invoiceModels []models.InvoiceModel
	query := dbFromContext(ctx, r.db).
		Where("tenant_id = ? AND due_date < ? AND status IN ?",
			tenantID, asOf, []billing.InvoiceStatus{billing.InvoiceStatusUnpaid, billing.InvoiceStatusPartiallyPaid}).
		Order("due_date ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&invoiceModels).Error; err != nil {
		return nil, err
	}
	invoices := make([]billing.Invoice, len(invoiceModels))
	for i, model := range invoiceModels {
		invoices[i] = *model.ToDomain()
	}
	return invoices, nil
}

// Save creates or updates an invoice
func (r *GormInvoiceRepository) Save(ctx context.Context, invoice *billing.Invoice) error {
	model := models.InvoiceModelFromDomain(invoice)
	return dbFromContext(ctx, r.db).Save(model).Error
}

// SaveWithLock saves with optimistic locking (version check)
func (r *GormInvoiceRepository) SaveWithLock(ctx context.Context, invoice *billing.Invoice) error {
	db := dbFromContext(ctx, r.db)

	var currentVersion int
	if err := db.
		Model(&models.InvoiceModel{}).
		Where("id = ?", invoice.ID).
		Select("version").
		Scan(&currentVersion).Error; err != nil {
		return err
	}

	if currentVersion != invoice.Version {
		return shared.ErrConcurrencyConflict
	}

	invoice.IncrementVersion()

	model := models.InvoiceModelFromDomain(invoice)
	result := db.
		Model(model).
		Where("id = ? AND version = ?", invoice.ID, currentVersion).
		Updates(model)

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrConcurrencyConflict
	}
	return nil
}

// DeleteForTenant soft deletes an invoice for a tenant
func (r *GormInvoiceRepository) DeleteForTenant(ctx context.Context, tenantID, id uuid.UUID) error {
	return dbFromContext(ctx, r.db).Delete(&models.InvoiceModel{}, "id = ? AND tenant_id = ?", id, tenantID).Error
}

// CountForTenant counts invoices for a tenant with optional filters
func (r *GormInvoiceRepository) CountForTenant(ctx context.Context, tenantID uuid.UUID, filter billing.InvoiceFilter) (int64, error) {
	var count int64
	query := applyInvoiceFilter(dbFromContext(ctx, r.db).
		Model(&models.InvoiceModel{}).
		Where("tenant_id = ?", tenantID), filter)
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// SumOutstandingByPatient calculates the total amount due across a patient's invoices
func (r *GormInvoiceRepository) SumOutstandingByPatient(ctx context.Context, tenantID, patientID uuid.UUID) (decimal.Decimal, error) {
	var sum decimal.Decimal
	if err := dbFromContext(ctx, r.db).
		Model(&models.InvoiceModel{}).
		Select("COALESCE(SUM(amount_due), 0)").
		Where("tenant_id = ? AND patient_id = ? AND status IN ?", tenantID, patientID, openInvoiceStatuses()).
		Scan(&sum).Error; err != nil {
		return decimal.Zero, err
	}
	return sum, nil
}

// SumOutstandingForTenant calculates the total amount due across a tenant's invoices
func (r *GormInvoiceRepository) SumOutstandingForTenant(ctx context.Context, tenantID uuid.UUID) (decimal.Decimal, error) {
	var sum decimal.Decimal
	if err := dbFromContext(ctx, r.db).
		Model(&models.InvoiceModel{}).
		Select("COALESCE(SUM(amount_due), 0)").
		Where("tenant_id = ? AND status IN ?", tenantID, openInvoiceStatuses()).
		Scan(&sum).Error; err != nil {
		return decimal.Zero, err
	}
	return sum, nil
}

// ExistsByInvoiceNumber checks if an invoice number exists for a tenant
func (r *GormInvoiceRepository) ExistsByInvoiceNumber(ctx context.Context, tenantID uuid.UUID, invoiceNumber string) (bool, error) {
	var count int64
	if err := dbFromContext(ctx, r.db).
		Model(&models.InvoiceModel{}).
		Where("tenant_id = ? AND invoice_number = ?", tenantID, invoiceNumber).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// GenerateInvoiceNumber generates a unique sequential invoice number for a tenant
func (r *GormInvoiceRepository) GenerateInvoiceNumber(ctx context.Context, tenantID uuid.UUID) (string, error) {
	// Format: INV-YYYYMMDD-XXXXX
	date := time.Now().Format("20060102")
	prefix := fmt.Sprintf("INV-%s-", date)

	next, err := nextDocumentSequence(dbFromContext(ctx, r.db), &models.InvoiceModel{}, "invoice_number", tenantID, prefix)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s%05d", prefix, next), nil
}

// DistinctTenantIDs returns the tenants that have at least one invoice.
// Used by the periodic jobs to sweep every tenant.
func (r *GormInvoiceRepository) DistinctTenantIDs(ctx context.Context) ([]uuid.UUID, error) {
	var tenantIDs []uuid.UUID
	if err := dbFromContext(ctx, r.db).
		Model(&models.InvoiceModel{}).
		Distinct("tenant_id").
		Pluck("tenant_id", &tenantIDs).Error; err != nil {
		return nil, err
	}
	return tenantIDs, nil
}

// applyInvoiceFilter applies filter options to the query
func applyInvoiceFilter(query *gorm.DB, filter billing.InvoiceFilter) *gorm.DB {
	if filter.PatientID != nil {
		query = query.Where("patient_id = ?", *filter.PatientID)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.FromDate != nil {
		query = query.Where("issue_date >= ?", *filter.FromDate)
	}
	if filter.ToDate != nil {
		query = query.Where("issue_date <= ?", *filter.ToDate)
	}
	if filter.DueFrom != nil {
		query = query.Where("due_date >= ?", *filter.DueFrom)
	}
	if filter.DueTo != nil {
		query = query.Where("due_date <= ?", *filter.DueTo)
	}
	if filter.Overdue != nil && *filter.Overdue {
		query = query.Where("status = ?", billing.InvoiceStatusOverdue)
	}
	if filter.MinAmount != nil {
		query = query.Where("amount_due >= ?", *filter.MinAmount)
	}
	if filter.MaxAmount != nil {
		query = query.Where("amount_due <= ?", *filter.MaxAmount)
	}
	if filter.Search != "" {
		query = query.Where("invoice_number ILIKE ? OR patient_name ILIKE ?",
			"%"+filter.Search+"%", "%"+filter.Search+"%")
	}
	return query
}

func openInvoiceStatuses() []billing.InvoiceStatus {
	return []billing.InvoiceStatus{
		billing.InvoiceStatusUnpaid,
		billing.InvoiceStatusPartiallyPaid,
		billing.InvoiceStatusOverdue,
	}
}

// nextDocumentSequence finds the highest document number for today's prefix
// and returns the next sequence value.
func nextDocumentSequence(db *gorm.DB, model interface{}, column string, tenantID uuid.UUID, prefix string) (int, error) {
	var maxNumber string
	if err := db.
		Model(model).
		Select(column).
		Where(fmt.Sprintf("tenant_id = ? AND %s LIKE ?", column), tenantID, prefix+"%").
		Order(column + " DESC").
		Limit(1).
		Pluck(column, &maxNumber).Error; err != nil {
		return 0, err
	}

	var nextNum int
	if maxNumber != "" {
		parts := strings.Split(maxNumber, "-")
		if len(parts) == 3 {
			fmt.Sscanf(parts[2], "%d", &nextNum)
		}
	}
	return nextNum + 1, nil
}

var _ billing.InvoiceRepository = (*GormInvoiceRepository)(nil)
