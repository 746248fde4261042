package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dentalclinic/backend/internal/domain/catalog"
	"github.com/dentalclinic/backend/internal/domain/shared"
	"github.com/dentalclinic/backend/internal/infrastructure/persistence/models"
)

// GormProcedureRepository implements ProcedureRepository using GORM
type GormProcedureRepository struct {
	db *gorm.DB
}

// NewGormProcedureRepository creates a new GormProcedureRepository
func NewGormProcedureRepository(db *gorm.DB) *GormProcedureRepository {
	return &GormProcedureRepository{db: db}
}

// FindByID finds a procedure by ID
func (r *GormProcedureRepository) FindByID(ctx context.Context, id uuid.UUID) (*catalog.Procedure, error) {
	var model models.ProcedureModel
	if err := dbFromContext(ctx, r.db).
		First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByIDForTenant finds a procedure by ID for a specific tenant
func (r *GormProcedureRepository) FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*catalog.Procedure, error) {
	var model models.ProcedureModel
	if err := dbFromContext(ctx, r.db).
		First(&model, "id = ? AND tenant_id = ?", id, tenantID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByCode finds a procedure by its code for a tenant
func (r *GormProcedureRepository) FindByCode(ctx context.Context, tenantID uuid.UUID, code string) (*catalog.Procedure, error) {
	var model models.ProcedureModel
	if err := dbFromContext(ctx, r.db).
		First(&model, "code = ? AND tenant_id = ?", code, tenantID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindAllForTenant finds all procedures for a tenant with filtering
func (r *GormProcedureRepository) FindAllForTenant(ctx context.Context, tenantID uuid.UUID, filter catalog.ProcedureFilter) ([]catalog.Procedure, error) {
	var procedureModels []models.ProcedureModel
	query := dbFromContext(ctx, r.db).Where("tenant_id = ?", tenantID)

	if filter.Active != nil {
		query = query.Where("active = ?", *filter.Active)
	}
	if filter.Search != "" {
		query = query.Where("code ILIKE ? OR name ILIKE ?",
			"%"+filter.Search+"%", "%"+filter.Search+"%")
	}

	if filter.PageSize > 0 {
		query = query.Limit(filter.PageSize)
		if filter.Page > 0 {
			query = query.Offset((filter.Page - 1) * filter.PageSize)
		}
	}

	if err := query.Order("code ASC").Find(&procedureModels).Error; err != nil {
		return nil, err
	}
	procedures := make([]catalog.Procedure, len(procedureModels))
	for i, model := range procedureModels {
		procedures[i] = *model.ToDomain()
	}
	return procedures, nil
}

// Save creates or updates a procedure
func (r *GormProcedureRepository) Save(ctx context.Context, procedure *catalog.Procedure) error {
	model := models.ProcedureModelFromDomain(procedure)
	return dbFromContext(ctx, r.db).Save(model).Error
}

// ExistsByCode checks if a procedure code exists for a tenant
func (r *GormProcedureRepository) ExistsByCode(ctx context.Context, tenantID uuid.UUID, code string) (bool, error) {
	var count int64
	if err := dbFromContext(ctx, r.db).
		Model(&models.ProcedureModel{}).
		Where("tenant_id = ? AND code = ?", tenantID, code).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

var _ catalog.ProcedureRepository = (*GormProcedureRepository)(nil)
