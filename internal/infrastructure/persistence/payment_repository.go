package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/dentalclinic/backend/internal/domain/billing"
	"github.com/dentalclinic/backend/internal/domain/shared"
	"github.com/dentalclinic/backend/internal/infrastructure/persistence/models"
)

// GormPaymentRepository implements PaymentRepository using GORM
type GormPaymentRepository struct {
	db *gorm.DB
}

// NewGormPaymentRepository creates a new GormPaymentRepository
func NewGormPaymentRepository(db *gorm.DB) *GormPaymentRepository {
	return &GormPaymentRepository{db: db}
}

// FindByID finds a payment by ID
func (r *GormPaymentRepository) FindByID(ctx context.Context, id uuid.UUID) (*billing.Payment, error) {
	var model models.PaymentModel
	if err := dbFromContext(ctx, r.db).
		First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByIDForTenant finds a payment by ID for a specific tenant
func (r *GormPaymentRepository) FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*billing.Payment, error) {
	var model models.PaymentModel
	if err := dbFromContext(ctx, r.db).
		First(&model, "id = ? AND tenant_id = ?", id, tenantID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByPaymentNumber finds by payment number for a tenant
func (r *GormPaymentRepository) FindByPaymentNumber(ctx context.Context, tenantID uuid.UUID, paymentNumber string) (*billing.Payment, error) {
	var model models.PaymentModel
	if err := dbFromContext(ctx, r.db).
		First(&model, "payment_number = ? AND tenant_id = ?", paymentNumber, tenantID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindAllForTenant finds all payments for a tenant with filtering
func (r *GormPaymentRepository) FindAllForTenant(ctx context.Context, tenantID uuid.UUID, filter billing.PaymentFilter) ([]billing.Payment, error) {
	var paymentModels []models.PaymentModel
	query := applyPaymentFilter(dbFromContext(ctx, r.db).Where("tenant_id = ?", tenantID), filter)

	if filter.PageSize > 0 {
		query = query.Limit(filter.PageSize)
		if filter.Page > 0 {
			query = query.Offset((filter.Page - 1) * filter.PageSize)
		}
	}

	if err := query.Order("payment_date DESC").Find(&paymentModels).Error; err != nil {
		return nil, err
	}
	payments := make([]billing.Payment, len(paymentModels))
	for i, model := range paymentModels {
		payments[i] = *model.ToDomain()
	}
	return payments, nil
}

// FindByPatient finds payments for a patient
func (r *GormPaymentRepository) FindByPatient(ctx context.Context, tenantID, patientID uuid.UUID, filter billing.PaymentFilter) ([]billing.Payment, error) {
	filter.PatientID = &patientID
	return r.FindAllForTenant(ctx, tenantID, filter)
}

// FindWithCredit finds completed payments with unallocated amounts for a
// patient, oldest payment date first
func (r *GormPaymentRepository) FindWithCredit(ctx context.Context, tenantID, patientID uuid.UUID) ([]billing.Payment, error) {
	var paymentModels []models.PaymentModel
	if err := dbFromContext(ctx, r.db).
		Where("tenant_id = ? AND patient_id = ? AND status = ? AND payment_type <> ? AND amount > allocated_amount + refunded_amount",
			tenantID, patientID, billing.PaymentStatusCompleted, billing.PaymentTypeRefund).
		Order("payment_date ASC").
		Find(&paymentModels).Error; err != nil {
		return nil, err
	}
	payments := make([]billing.Payment, len(paymentModels))
	for i, model := range paymentModels {
		payments[i] = *model.ToDomain()
	}
	return payments, nil
}

// Save creates or updates a payment
func (r *GormPaymentRepository) Save(ctx context.Context, payment *billing.Payment) error {
	model := models.PaymentModelFromDomain(payment)
	return dbFromContext(ctx, r.db).Save(model).Error
}

// SaveWithLock saves with optimistic locking (version check)
func (r *GormPaymentRepository) SaveWithLock(ctx context.Context, payment *billing.Payment) error {
	db := dbFromContext(ctx, r.db)

	var currentVersion int
	if err := db.
		Model(&models.PaymentModel{}).
		Where("id = ?", payment.ID).
		Select("version").
		Scan(&currentVersion).Error; err != nil {
		return err
	}

	if currentVersion != payment.Version {
		return shared.ErrConcurrencyConflict
	}

	payment.IncrementVersion()

	model := models.PaymentModelFromDomain(payment)
	result := db.
		Model(model).
		Where("id = ? AND version = ?", payment.ID, currentVersion).
		Updates(model)

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrConcurrencyConflict
	}
	return nil
}

// CountForTenant counts payments for a tenant with optional filters
func (r *GormPaymentRepository) CountForTenant(ctx context.Context, tenantID uuid.UUID, filter billing.PaymentFilter) (int64, error) {
	var count int64
	query := applyPaymentFilter(dbFromContext(ctx, r.db).
		Model(&models.PaymentModel{}).
		Where("tenant_id = ?", tenantID), filter)
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// SumCreditByPatient calculates the patient's available credit: the free
// remainder of completed inbound payments after allocations and refunds.
// Outbound refund payments are disbursement records and carry no credit.
func (r *GormPaymentRepository) SumCreditByPatient(ctx context.Context, tenantID, patientID uuid.UUID) (decimal.Decimal, error) {
	var sum decimal.Decimal
	if err := dbFromContext(ctx, r.db).
		Model(&models.PaymentModel{}).
		Select("COALESCE(SUM(amount - allocated_amount - refunded_amount), 0)").
		Where("tenant_id = ? AND patient_id = ? AND status = ? AND payment_type <> ?",
			tenantID, patientID, billing.PaymentStatusCompleted, billing.PaymentTypeRefund).
		Scan(&sum).Error; err != nil {
		return decimal.Zero, err
	}
	return sum, nil
}

// SumReceivedForTenant calculates total completed inbound payment amounts
// within a date range. Refund payments are outbound and excluded.
func (r *GormPaymentRepository) SumReceivedForTenant(ctx context.Context, tenantID uuid.UUID, from, to time.Time) (decimal.Decimal, error) {
	var sum decimal.Decimal
	if err := dbFromContext(ctx, r.db).
		Model(&models.PaymentModel{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("tenant_id = ? AND status = ? AND payment_type <> ? AND payment_date >= ? AND payment_date <= ?",
			tenantID, billing.PaymentStatusCompleted, billing.PaymentTypeRefund, from, to).
		Scan(&sum).Error; err != nil {
		return decimal.Zero, err
	}
	return sum, nil
}

// GeneratePaymentNumber generates a unique sequential payment number for a tenant
func (r *GormPaymentRepository) GeneratePaymentNumber(ctx context.Context, tenantID uuid.UUID) (string, error) {
	// Format: PAY-YYYYMMDD-XXXXX
	date := time.Now().Format("20060102")
	prefix := fmt.Sprintf("PAY-%s-", date)

	next, err := nextDocumentSequence(dbFromContext(ctx, r.db), &models.PaymentModel{}, "payment_number", tenantID, prefix)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s%05d", prefix, next), nil
}

// applyPaymentFilter applies filter options to the query
func applyPaymentFilter(query *gorm.DB, filter billing.PaymentFilter) *gorm.DB {
	if filter.PatientID != nil {
		query = query.Where("patient_id = ?", *filter.PatientID)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.Type != nil {
		query = query.Where("payment_type = ?", *filter.Type)
	}
	if filter.Method != nil {
		query = query.Where("method = ?", *filter.Method)
	}
	if filter.FromDate != nil {
		query = query.Where("payment_date >= ?", *filter.FromDate)
	}
	if filter.ToDate != nil {
		query = query.Where("payment_date <= ?", *filter.ToDate)
	}
	if filter.Search != "" {
		query = query.Where("payment_number ILIKE ? OR patient_name ILIKE ?",
			"%"+filter.Search+"%", "%"+filter.Search+"%")
	}
	return query
}

var _ billing.PaymentRepository = (*GormPaymentRepository)(nil)
