package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dentalclinic/backend/internal/domain/billing"
	"github.com/dentalclinic/backend/internal/domain/shared"
	"github.com/dentalclinic/backend/internal/infrastructure/persistence/models"
)

// GormPaymentPlanRepository implements PaymentPlanRepository using GORM
type GormPaymentPlanRepository struct {
	db *gorm.DB
}

// NewGormPaymentPlanRepository creates a new GormPaymentPlanRepository
func NewGormPaymentPlanRepository(db *gorm.DB) *GormPaymentPlanRepository {
	return &GormPaymentPlanRepository{db: db}
}

// FindByID finds a payment plan by ID
func (r *GormPaymentPlanRepository) FindByID(ctx context.Context, id uuid.UUID) (*billing.PaymentPlan, error) {
	var model models.PaymentPlanModel
	if err := dbFromContext(ctx, r.db).
		First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByIDForTenant finds a payment plan by ID for a specific tenant
func (r *GormPaymentPlanRepository) FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*billing.PaymentPlan, error) {
	var model models.PaymentPlanModel
	if err := dbFromContext(ctx, r.db).
		First(&model, "id = ? AND tenant_id = ?", id, tenantID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByInvoice finds the most recent plan covering an invoice, if any
func (r *GormPaymentPlanRepository) FindByInvoice(ctx context.Context, tenantID, invoiceID uuid.UUID) (*billing.PaymentPlan, error) {
	var model models.PaymentPlanModel
	if err := dbFromContext(ctx, r.db).
		Where("tenant_id = ? AND invoice_id = ?", tenantID, invoiceID).
		Order("created_at DESC").
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindAllForTenant finds all payment plans for a tenant with filtering
func (r *GormPaymentPlanRepository) FindAllForTenant(ctx context.Context, tenantID uuid.UUID, filter billing.PaymentPlanFilter) ([]billing.PaymentPlan, error) {
	var planModels []models.PaymentPlanModel
	query := dbFromContext(ctx, r.db).Where("tenant_id = ?", tenantID)

	if filter.PatientID != nil {
		query = query.Where("patient_id = ?", *filter.PatientID)
	}
	if filter.InvoiceID != nil {
		query = query.Where("invoice_id = ?", *filter.InvoiceID)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.Search != "" {
		query = query.Where("plan_number ILIKE ? OR invoice_number ILIKE ?",
			"%"+filter.Search+"%", "%"+filter.Search+"%")
	}

	if filter.PageSize > 0 {
		query = query.Limit(filter.PageSize)
		if filter.Page > 0 {
			query = query.Offset((filter.Page - 1) * filter.PageSize)
		}
	}

	if err := query.Order("created_at DESC").Find(&planModels).Error; err != nil {
		return nil, err
	}
	plans := make([]billing.PaymentPlan, len(planModels))
	for i, model := range planModels {
		plans[i] = *model.ToDomain()
	}
	return plans, nil
}

// FindActiveWithDueInstallments finds active plans holding installments due
// on or before the given date. Installments live in JSONB, so the due-date
// check happens after loading the tenant's active plans.
func (r *GormPaymentPlanRepository) FindActiveWithDueInstallments(ctx context.Context, tenantID uuid.UUID, asOf time.Time) ([]billing.PaymentPlan, error) {
	var planModels []models.PaymentPlanModel
	if err := dbFromContext(ctx, r.db).
		Where("tenant_id = ? AND status = ?", tenantID, billing.PaymentPlanStatusActive).
		Order("created_at ASC").
		Find(&planModels).Error; err != nil {
		return nil, err
	}

	var plans []billing.PaymentPlan
	for i := range planModels {
		plan := planModels[i].ToDomain()
		for _, inst := range plan.Installments {
			if inst.Status != billing.InstallmentStatusPaid && !inst.DueDate.After(asOf) {
				plans = append(plans, *plan)
				break
			}
		}
	}
	return plans, nil
}

// Save creates or updates a payment plan
func (r *GormPaymentPlanRepository) Save(ctx context.Context, plan *billing.PaymentPlan) error {
	model := models.PaymentPlanModelFromDomain(plan)
	return dbFromContext(ctx, r.db).Save(model).Error
}

// SaveWithLock saves with optimistic locking (version check)
func (r *GormPaymentPlanRepository) SaveWithLock(ctx context.Context, plan *billing.PaymentPlan) error {
	db := dbFromContext(ctx, r.db)

	var currentVersion int
	if err := db.
		Model(&models.PaymentPlanModel{}).
		Where("id = ?", plan.ID).
		Select("version").
		Scan(&currentVersion).Error; err != nil {
		return err
	}

	if currentVersion != plan.Version {
		return shared.ErrConcurrencyConflict
	}

	plan.IncrementVersion()

	model := models.PaymentPlanModelFromDomain(plan)
	result := db.
		Model(model).
		Where("id = ? AND version = ?", plan.ID, currentVersion).
		Updates(model)

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrConcurrencyConflict
	}
	return nil
}

// GeneratePlanNumber generates a unique sequential plan number for a tenant
func (r *GormPaymentPlanRepository) GeneratePlanNumber(ctx context.Context, tenantID uuid.UUID) (string, error) {
	// Format: PLAN-YYYYMMDD-XXXXX
	date := time.Now().Format("20060102")
	prefix := fmt.Sprintf("PLAN-%s-", date)

	next, err := nextDocumentSequence(dbFromContext(ctx, r.db), &models.PaymentPlanModel{}, "plan_number", tenantID, prefix)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s%05d", prefix, next), nil
}

var _ billing.PaymentPlanRepository = (*GormPaymentPlanRepository)(nil)
