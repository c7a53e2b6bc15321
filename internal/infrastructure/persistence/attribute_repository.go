package persistence

import (
	"context"
	"errors"

	"github.com/erp/channelsync/internal/domain/attribute"
	"github.com/erp/channelsync/internal/domain/catalog"
	"github.com/erp/channelsync/internal/domain/shared"
	"github.com/erp/channelsync/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ---------------------------------------------------------------------------
// Definitions
// ---------------------------------------------------------------------------

// GormDefinitionRepository implements attribute.DefinitionRepository using GORM
type GormDefinitionRepository struct {
	db *gorm.DB
}

// NewGormDefinitionRepository creates a new GormDefinitionRepository
func NewGormDefinitionRepository(db *gorm.DB) *GormDefinitionRepository {
	return &GormDefinitionRepository{db: db}
}

var _ attribute.DefinitionRepository = (*GormDefinitionRepository)(nil)

// FindByID finds a definition by its ID
func (r *GormDefinitionRepository) FindByID(ctx context.Context, id uuid.UUID) (*attribute.Definition, error) {
	var model models.AttributeDefinitionModel
	if err := conn(ctx, r.db).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, attribute.ErrDefinitionNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByIDs returns the definitions with the given IDs keyed by ID
func (r *GormDefinitionRepository) FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*attribute.Definition, error) {
	result := make(map[uuid.UUID]*attribute.Definition, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	var rows []models.AttributeDefinitionModel
	if err := conn(ctx, r.db).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	for i := range rows {
		d := rows[i].ToDomain()
		result[d.ID] = d
	}
	return result, nil
}

// FindByKeys returns the definitions with the given keys keyed by key
func (r *GormDefinitionRepository) FindByKeys(ctx context.Context, keys []string) (map[string]*attribute.Definition, error) {
	result := make(map[string]*attribute.Definition, len(keys))
	if len(keys) == 0 {
		return result, nil
	}
	var rows []models.AttributeDefinitionModel
	if err := conn(ctx, r.db).Where("definition_key IN ?", keys).Find(&rows).Error; err != nil {
		return nil, err
	}
	for i := range rows {
		d := rows[i].ToDomain()
		result[d.Key] = d
	}
	return result, nil
}

// FindAll returns definitions ordered by key
func (r *GormDefinitionRepository) FindAll(ctx context.Context, activeOnly bool) ([]attribute.Definition, error) {
	query := conn(ctx, r.db)
	if activeOnly {
		query = query.Where("is_active = ?", true)
	}
	var rows []models.AttributeDefinitionModel
	if err := query.Order("definition_key ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	defs := make([]attribute.Definition, len(rows))
	for i := range rows {
		defs[i] = *rows[i].ToDomain()
	}
	return defs, nil
}

// Save creates or updates a definition
func (r *GormDefinitionRepository) Save(ctx context.Context, d *attribute.Definition) error {
	var model models.AttributeDefinitionModel
	model.FromDomain(d)
	err := conn(ctx, r.db).Save(&model).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return attribute.ErrDefinitionInvalidKey
	}
	return err
}

// ---------------------------------------------------------------------------
// Assignments
// ---------------------------------------------------------------------------

const assignmentWriteBatch = 200

// GormAssignmentRepository implements attribute.AssignmentRepository using GORM
type GormAssignmentRepository struct {
	db *gorm.DB
}

// NewGormAssignmentRepository creates a new GormAssignmentRepository
func NewGormAssignmentRepository(db *gorm.DB) *GormAssignmentRepository {
	return &GormAssignmentRepository{db: db}
}

var _ attribute.AssignmentRepository = (*GormAssignmentRepository)(nil)

// FindByID finds an assignment by its ID
func (r *GormAssignmentRepository) FindByID(ctx context.Context, id uuid.UUID) (*attribute.Assignment, error) {
	var model models.AttributeAssignmentModel
	if err := conn(ctx, r.db).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, attribute.ErrAssignmentNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByIDs returns the assignments with the given IDs keyed by ID
func (r *GormAssignmentRepository) FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*attribute.Assignment, error) {
	result := make(map[uuid.UUID]*attribute.Assignment, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	var rows []models.AttributeAssignmentModel
	if err := conn(ctx, r.db).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	for i := range rows {
		a := rows[i].ToDomain()
		result[a.ID] = a
	}
	return result, nil
}

// FindByOwner returns every assignment of one owner
func (r *GormAssignmentRepository) FindByOwner(ctx context.Context, owner catalog.EntityRef) ([]attribute.Assignment, error) {
	var rows []models.AttributeAssignmentModel
	err := conn(ctx, r.db).
		Where("owner_kind = ? AND owner_id = ?", owner.Kind, owner.ID).
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return toAssignments(rows), nil
}

// FindByOwners returns the assignments of many owners of one kind
func (r *GormAssignmentRepository) FindByOwners(ctx context.Context, kind catalog.EntityKind, ids []uuid.UUID) ([]attribute.Assignment, error) {
	if len(ids) == 0 {
		return []attribute.Assignment{}, nil
	}
	var rows []models.AttributeAssignmentModel
	err := conn(ctx, r.db).
		Where("owner_kind = ? AND owner_id IN ?", kind, ids).
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return toAssignments(rows), nil
}

// FindBySlot returns every assignment filling one (owner, definition) slot
func (r *GormAssignmentRepository) FindBySlot(ctx context.Context, slot attribute.OwnerDefinition) ([]attribute.Assignment, error) {
	var rows []models.AttributeAssignmentModel
	err := conn(ctx, r.db).
		Where("owner_kind = ? AND owner_id = ? AND definition_id = ?", slot.Owner.Kind, slot.Owner.ID, slot.DefinitionID).
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return toAssignments(rows), nil
}

// FindDuplicateSlots returns up to limit slots holding more than one assignment
func (r *GormAssignmentRepository) FindDuplicateSlots(ctx context.Context, limit int) ([]attribute.OwnerDefinition, error) {
	type slotRow struct {
		OwnerKind    catalog.EntityKind
		OwnerID      uuid.UUID
		DefinitionID uuid.UUID
	}
	query := conn(ctx, r.db).Model(&models.AttributeAssignmentModel{}).
		Select("owner_kind, owner_id, definition_id").
		Group("owner_kind, owner_id, definition_id").
		Having("COUNT(*) > 1").
		Order("owner_kind, owner_id, definition_id")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var rows []slotRow
	if err := query.Scan(&rows).Error; err != nil {
		return nil, err
	}
	slots := make([]attribute.OwnerDefinition, len(rows))
	for i, row := range rows {
		slots[i] = attribute.OwnerDefinition{
			Owner:        catalog.EntityRef{Kind: row.OwnerKind, ID: row.OwnerID},
			DefinitionID: row.DefinitionID,
		}
	}
	return slots, nil
}

// Scan pages through assignments matching filter
func (r *GormAssignmentRepository) Scan(ctx context.Context, filter attribute.Filter, cursor shared.Cursor) ([]attribute.Assignment, error) {
	query := conn(ctx, r.db)
	if filter.InheritedOnly {
		query = query.Where("is_inherited = ?", true)
	}
	if filter.OwnerKind != "" {
		query = query.Where("owner_kind = ?", filter.OwnerKind)
	}
	if len(filter.DefinitionIDs) > 0 {
		query = query.Where("definition_id IN ?", filter.DefinitionIDs)
	}

	var rows []models.AttributeAssignmentModel
	if err := query.Scopes(KeysetScope(cursor)).Find(&rows).Error; err != nil {
		return nil, err
	}
	return toAssignments(rows), nil
}

// Save creates or updates an assignment
func (r *GormAssignmentRepository) Save(ctx context.Context, a *attribute.Assignment) error {
	var model models.AttributeAssignmentModel
	model.FromDomain(a)
	return conn(ctx, r.db).Save(&model).Error
}

// Delete removes assignments by ID
func (r *GormAssignmentRepository) Delete(ctx context.Context, ids ...uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	return conn(ctx, r.db).Where("id IN ?", ids).Delete(&models.AttributeAssignmentModel{}).Error
}

// ApplyChanges saves then deletes in one statement batch. Callers wanting
// atomicity wrap the call in a transaction.
func (r *GormAssignmentRepository) ApplyChanges(ctx context.Context, changes attribute.ChangeSet) error {
	if changes.IsEmpty() {
		return nil
	}
	db := conn(ctx, r.db)
	for start := 0; start < len(changes.Save); start += assignmentWriteBatch {
		end := min(start+assignmentWriteBatch, len(changes.Save))
		for _, a := range changes.Save[start:end] {
			var model models.AttributeAssignmentModel
			model.FromDomain(a)
			if err := db.Save(&model).Error; err != nil {
				return err
			}
		}
	}
	return r.Delete(ctx, changes.Delete...)
}

func toAssignments(rows []models.AttributeAssignmentModel) []attribute.Assignment {
	out := make([]attribute.Assignment, len(rows))
	for i := range rows {
		out[i] = *rows[i].ToDomain()
	}
	return out
}
