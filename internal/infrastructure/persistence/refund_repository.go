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

// GormRefundRepository implements RefundRepository using GORM
type GormRefundRepository struct {
	db *gorm.DB
}

// NewGormRefundRepository creates a new GormRefundRepository
func NewGormRefundRepository(db *gorm.DB) *GormRefundRepository {
	return &GormRefundRepository{db: db}
}

// FindByID finds a refund by ID
func (r *GormRefundRepository) FindByID(ctx context.Context, id uuid.UUID) (*billing.Refund, error) {
	var model models.RefundModel
	if err := dbFromContext(ctx, r.db).
		First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByIDForTenant finds a refund by ID for a specific tenant
func (r *GormRefundRepository) FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*billing.Refund, error) {
	var model models.RefundModel
	if err := dbFromContext(ctx, r.db).
		First(&model, "id = ? AND tenant_id = ?", id, tenantID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindAllForTenant finds all refunds for a tenant with filtering
func (r *GormRefundRepository) FindAllForTenant(ctx context.Context, tenantID uuid.UUID, filter billing.RefundFilter) ([]billing.Refund, error) {
	var refundModels []models.RefundModel
	query := applyRefundFilter(dbFromContext(ctx, r.db).Where("tenant_id = ?", tenantID), filter)

	if filter.PageSize > 0 {
		query = query.Limit(filter.PageSize)
		if filter.Page > 0 {
			query = query.Offset((filter.Page - 1) * filter.PageSize)
		}
	}

	if err := query.Order("requested_at DESC").Find(&refundModels).Error; err != nil {
		return nil, err
	}
	refunds := make([]billing.Refund, len(refundModels))
	for i, model := range refundModels {
		refunds[i] = *model.ToDomain()
	}
	return refunds, nil
}

// FindByPatient finds refunds for a patient
func (r *GormRefundRepository) FindByPatient(ctx context.Context, tenantID, patientID uuid.UUID, filter billing.RefundFilter) ([]billing.Refund, error) {
	filter.PatientID = &patientID
	return r.FindAllForTenant(ctx, tenantID, filter)
}

// FindByPayment finds refunds drawing from a specific payment
func (r *GormRefundRepository) FindByPayment(ctx context.Context, tenantID, paymentID uuid.UUID) ([]billing.Refund, error) {
	var refundModels []models.RefundModel
	if err := dbFromContext(ctx, r.db).
		Where("tenant_id = ? AND payment_id = ?", tenantID, paymentID).
		Order("requested_at ASC").
		Find(&refundModels).Error; err != nil {
		return nil, err
	}
	refunds := make([]billing.Refund, len(refundModels))
	for i, model := range refundModels {
		refunds[i] = *model.ToDomain()
	}
	return refunds, nil
}

// Save creates or updates a refund
func (r *GormRefundRepository) Save(ctx context.Context, refund *billing.Refund) error {
	model := models.RefundModelFromDomain(refund)
	return dbFromContext(ctx, r.db).Save(model).Error
}

// SaveWithLock saves with optimistic locking (version check)
func (r *GormRefundRepository) SaveWithLock(ctx context.Context, refund *billing.Refund) error {
	db := dbFromContext(ctx, r.db)

	var currentVersion int
	if err := db.
		Model(&models.RefundModel{}).
		Where("id = ?", refund.ID).
		Select("version").
		Scan(&currentVersion).Error; err != nil {
		return err
	}

	if currentVersion != refund.Version {
		return shared.ErrConcurrencyConflict
	}

	refund.IncrementVersion()

	model := models.RefundModelFromDomain(refund)
	result := db.
		Model(model).
		Where("id = ? AND version = ?", refund.ID, currentVersion).
		Updates(model)

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrConcurrencyConflict
	}
	return nil
}

// SumRefundedByPayment calculates the total refund amount drawn from a
// payment. Pending and approved refunds count because they hold the amount
// until resolved.
func (r *GormRefundRepository) SumRefundedByPayment(ctx context.Context, tenantID, paymentID uuid.UUID) (decimal.Decimal, error) {
	var sum decimal.Decimal
	if err := dbFromContext(ctx, r.db).
		Model(&models.RefundModel{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("tenant_id = ? AND payment_id = ? AND status IN ?", tenantID, paymentID, holdingRefundStatuses()).
		Scan(&sum).Error; err != nil {
		return decimal.Zero, err
	}
	return sum, nil
}

// SumProcessedByPatient calculates the total processed refund amount for a patient
func (r *GormRefundRepository) SumProcessedByPatient(ctx context.Context, tenantID, patientID uuid.UUID) (decimal.Decimal, error) {
	var sum decimal.Decimal
	if err := dbFromContext(ctx, r.db).
		Model(&models.RefundModel{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("tenant_id = ? AND patient_id = ? AND status = ?", tenantID, patientID, billing.RefundStatusProcessed).
		Scan(&sum).Error; err != nil {
		return decimal.Zero, err
	}
	return sum, nil
}

// GenerateRefundNumber generates a unique sequential refund number for a tenant
func (r *GormRefundRepository) GenerateRefundNumber(ctx context.Context, tenantID uuid.UUID) (string, error) {
	// Format: REF-YYYYMMDD-XXXXX
	date := time.Now().Format("20060102")
	prefix := fmt.Sprintf("REF-%s-", date)

	next, err := nextDocumentSequence(dbFromContext(ctx, r.db), &models.RefundModel{}, "refund_number", tenantID, prefix)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s%05d", prefix, next), nil
}

// applyRefundFilter applies filter options to the query
func applyRefundFilter(query *gorm.DB, filter billing.RefundFilter) *gorm.DB {
	if filter.PatientID != nil {
		query = query.Where("patient_id = ?", *filter.PatientID)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.Source != nil {
		query = query.Where("source = ?", *filter.Source)
	}
	if filter.FromDate != nil {
		query = query.Where("requested_at >= ?", *filter.FromDate)
	}
	if filter.ToDate != nil {
		query = query.Where("requested_at <= ?", *filter.ToDate)
	}
	if filter.Search != "" {
		query = query.Where("refund_number ILIKE ? OR patient_name ILIKE ?",
			"%"+filter.Search+"%", "%"+filter.Search+"%")
	}
	return query
}

func holdingRefundStatuses() []billing.RefundStatus {
	return []billing.RefundStatus{
		billing.RefundStatusPending,
		billing.RefundStatusApproved,
		billing.RefundStatusProcessed,
	}
}

var _ billing.RefundRepository = (*GormRefundRepository)(nil)
