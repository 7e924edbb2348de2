package schema

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/datadrive/doctype-engine/internal/models"
	"github.com/datadrive/doctype-engine/internal/types"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Sentinel errors surfaced by registry operations.
var (
	ErrDocTypeNotFound = errors.New("document type not found")
	ErrFieldNotFound   = errors.New("field not found")
	ErrSystemLocked    = errors.New("system document types cannot be structurally altered")
)

// DDL is the slice of the table manager the registry drives. Narrowed to an
// interface so saga compensation can be tested without a MySQL server.
type DDL interface {
	CreateTable(ctx context.Context, tableName string, fields []models.DocTypeField) error
	AddColumn(ctx context.Context, tableName string, field models.DocTypeField) error
	AlterColumn(ctx context.Context, tableName string, field models.DocTypeField) error
	RenameColumn(ctx context.Context, tableName, oldName, newName string) error
	DropColumn(ctx context.Context, tableName, columnName string) error
	DropTable(ctx context.Context, tableName string) error
	TableExists(ctx context.Context, tableName string) (bool, error)
}

// Registry is the source of truth for DocType metadata. Every structural
// mutation pairs a metadata write with the matching DDL as a compensating
// sequence: write metadata, attempt DDL, delete the metadata again if the DDL
// fails. That keeps metadata and physical schema from diverging even though
// MySQL DDL cannot participate in a transaction.
type Registry struct {
	db  *gorm.DB
	ddl DDL
}

func NewRegistry(db *gorm.DB, ddl DDL) *Registry {
	return &Registry{db: db, ddl: ddl}
}

// ValidateField checks a field definition against the registry invariants.
func ValidateField(f *models.DocTypeField) error {
	if !IsClean(f.FieldName) {
		return &types.InputError{Message: fmt.Sprintf("field name %q is not a legal identifier", f.FieldName)}
	}
	if IsSystemColumn(f.FieldName) {
		return &types.InputError{Message: fmt.Sprintf("field name %q collides with a system column", f.FieldName)}
	}
	if !models.ValidFieldType(f.FieldType) {
		return &types.InputError{Message: fmt.Sprintf("unknown field type %q", f.FieldType)}
	}
	if f.FieldType == models.FieldSelect && len(f.Options) == 0 {
		return &types.InputError{Message: fmt.Sprintf("SELECT field %q declares no options", f.FieldName)}
	}
	if f.FieldType == models.FieldReference {
		if !IsClean(f.ReferenceTable) || !IsClean(f.ReferenceField) {
			return &types.InputError{Message: fmt.Sprintf("REFERENCE field %q needs a legal referenceTable and referenceField", f.FieldName)}
		}
	}
	return nil
}

// CreateDocType persists the DocType with its fields, then provisions the
// backing table. On DDL failure the metadata is deleted again and the
// SchemaError surfaces to the administrator.
func (r *Registry) CreateDocType(ctx context.Context, dt *models.DocType, fields []models.DocTypeField) error {
	if !IsClean(dt.TableName) {
		return &types.InputError{Message: fmt.Sprintf("table name %q is not a legal identifier", dt.TableName)}
	}
	seen := map[string]bool{}
	for i := range fields {
		if err := ValidateField(&fields[i]); err != nil {
			return err
		}
		if seen[fields[i].FieldName] {
			return &types.InputError{Message: fmt.Sprintf("duplicate field name %q", fields[i].FieldName)}
		}
		seen[fields[i].FieldName] = true
		if fields[i].FieldType == models.FieldReference {
			ok, err := r.ddl.TableExists(ctx, fields[i].ReferenceTable)
			if err != nil {
				return err
			}
			if !ok {
				return &types.InputError{Message: fmt.Sprintf("reference table %q does not exist", fields[i].ReferenceTable)}
			}
		}
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(dt).Error; err != nil {
			return err
		}
		for i := range fields {
			fields[i].DocTypeID = dt.ID
		}
		if len(fields) > 0 {
			if err := tx.Create(&fields).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("create document type metadata: %w", err)
	}
	dt.Fields = fields

	if err := r.ddl.CreateTable(ctx, dt.TableName, fields); err != nil {
		// Compensate: no metadata may describe a table that was never created.
		if cerr := r.purgeDocType(ctx, dt.ID); cerr != nil {
			log.Printf("compensation failed for doc type %d: %v", dt.ID, cerr)
		}
		return err
	}
	return nil
}

// AddField appends a field to an existing DocType and adds the physical
// column. The just-written metadata row is deleted when the DDL fails.
func (r *Registry) AddField(ctx context.Context, docTypeID uint64, field *models.DocTypeField) error {
	dt, err := r.GetDocTypeByID(ctx, docTypeID)
	if err != nil {
		return err
	}
	if dt.IsSystem {
		return &types.InputError{Message: ErrSystemLocked.Error()}
	}
	if err := ValidateField(field); err != nil {
		return err
	}
	if field.FieldType == models.FieldReference {
		ok, err := r.ddl.TableExists(ctx, field.ReferenceTable)
		if err != nil {
			return err
		}
		if !ok {
			return &types.InputError{Message: fmt.Sprintf("reference table %q does not exist", field.ReferenceTable)}
		}
	}

	field.DocTypeID = dt.ID
	if err := r.db.WithContext(ctx).Create(field).Error; err != nil {
		return fmt.Errorf("create field metadata: %w", err)
	}

	if err := r.ddl.AddColumn(ctx, dt.TableName, *field); err != nil {
		if cerr := r.db.WithContext(ctx).Delete(&models.DocTypeField{}, field.ID).Error; cerr != nil {
			log.Printf("compensation failed for field %d: %v", field.ID, cerr)
		}
		return err
	}
	return nil
}

// UpdateField edits a field definition, renaming and re-typing the physical
// column as needed before the metadata is saved.
func (r *Registry) UpdateField(ctx context.Context, docTypeID, fieldID uint64, updated *models.DocTypeField) error {
	dt, err := r.GetDocTypeByID(ctx, docTypeID)
	if err != nil {
		return err
	}
	if dt.IsSystem {
		return &types.InputError{Message: ErrSystemLocked.Error()}
	}

	var current models.DocTypeField
	if err := r.db.WithContext(ctx).Where("doc_type_id = ?", docTypeID).First(&current, fieldID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrFieldNotFound
		}
		return err
	}
	if current.IsSystem {
		return &types.InputError{Message: "system fields cannot be structurally altered"}
	}
	if err := ValidateField(updated); err != nil {
		return err
	}

	renamed := updated.FieldName != current.FieldName
	if renamed {
		if err := r.ddl.RenameColumn(ctx, dt.TableName, current.FieldName, updated.FieldName); err != nil {
			return err
		}
	}
	altered := updated.FieldType != current.FieldType || updated.IsRequired != current.IsRequired
	if altered {
		if err := r.ddl.AlterColumn(ctx, dt.TableName, *updated); err != nil {
			// Undo the rename so the column matches the still-saved metadata.
			if renamed {
				if cerr := r.ddl.RenameColumn(ctx, dt.TableName, updated.FieldName, current.FieldName); cerr != nil {
					log.Printf("compensation failed for column %s.%s: %v", dt.TableName, updated.FieldName, cerr)
				}
			}
			return err
		}
	}

	updated.ID = current.ID
	updated.DocTypeID = current.DocTypeID
	updated.CreatedAt = current.CreatedAt
	if err := r.db.WithContext(ctx).Save(updated).Error; err != nil {
		// Roll the physical column back to the definition the metadata still holds.
		if altered {
			restore := current
			restore.FieldName = updated.FieldName
			if cerr := r.ddl.AlterColumn(ctx, dt.TableName, restore); cerr != nil {
				log.Printf("compensation failed for column %s.%s: %v", dt.TableName, updated.FieldName, cerr)
			}
		}
		if renamed {
			if cerr := r.ddl.RenameColumn(ctx, dt.TableName, updated.FieldName, current.FieldName); cerr != nil {
				log.Printf("compensation failed for column %s.%s: %v", dt.TableName, updated.FieldName, cerr)
			}
		}
		return fmt.Errorf("save field metadata: %w", err)
	}
	return nil
}

// RemoveField deletes a field row and drops its physical column in the same
// logical operation. The metadata delete runs first; a DDL failure restores
// the row so metadata never describes fewer columns than the table has.
func (r *Registry) RemoveField(ctx context.Context, docTypeID, fieldID uint64) error {
	dt, err := r.GetDocTypeByID(ctx, docTypeID)
	if err != nil {
		return err
	}
	if dt.IsSystem {
		return &types.InputError{Message: ErrSystemLocked.Error()}
	}

	var field models.DocTypeField
	if err := r.db.WithContext(ctx).Where("doc_type_id = ?", docTypeID).First(&field, fieldID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrFieldNotFound
		}
		return err
	}
	if field.IsSystem {
		return &types.InputError{Message: "system fields cannot be deleted"}
	}

	if err := r.db.WithContext(ctx).Delete(&models.DocTypeField{}, field.ID).Error; err != nil {
		return fmt.Errorf("delete field metadata: %w", err)
	}

	if err := r.ddl.DropColumn(ctx, dt.TableName, field.FieldName); err != nil {
		restored := field
		restored.ID = 0
		if cerr := r.db.WithContext(ctx).Create(&restored).Error; cerr != nil {
			log.Printf("compensation failed for field %s.%s: %v", dt.TableName, field.FieldName, cerr)
		}
		return err
	}
	return nil
}

// UpdateDocType edits non-structural DocType settings (name, description,
// deadline, flags). TableName and Slug are deliberately not updatable here.
func (r *Registry) UpdateDocType(ctx context.Context, dt *models.DocType) error {
	current, err := r.GetDocTypeByID(ctx, dt.ID)
	if err != nil {
		return err
	}
	if current.IsSystem && dt.IsActive != current.IsActive {
		return &types.InputError{Message: "system document types cannot be deactivated"}
	}
	dt.Slug = current.Slug
	dt.TableName = current.TableName
	dt.IsSystem = current.IsSystem
	dt.CreatedAt = current.CreatedAt
	return r.db.WithContext(ctx).Omit("Fields", "Permissions").Save(dt).Error
}

// DeleteDocType drops the physical table first, then cascades the metadata
// deletion. A table that fails to drop leaves the metadata untouched.
func (r *Registry) DeleteDocType(ctx context.Context, docTypeID uint64) error {
	dt, err := r.GetDocTypeByID(ctx, docTypeID)
	if err != nil {
		return err
	}
	if dt.IsSystem {
		return &types.InputError{Message: "system document types cannot be deleted"}
	}
	if err := r.ddl.DropTable(ctx, dt.TableName); err != nil {
		return err
	}
	return r.purgeDocType(ctx, dt.ID)
}

func (r *Registry) purgeDocType(ctx context.Context, docTypeID uint64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("doc_type_id = ?", docTypeID).Delete(&models.DocTypePermission{}).Error; err != nil {
			return err
		}
		if err := tx.Where("doc_type_id = ?", docTypeID).Delete(&models.DocTypeField{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.DocType{}, docTypeID).Error
	})
}

// GetDocTypeByID loads a DocType with its ordered fields.
func (r *Registry) GetDocTypeByID(ctx context.Context, id uint64) (*models.DocType, error) {
	var dt models.DocType
	err := r.db.WithContext(ctx).
		Preload("Fields", func(db *gorm.DB) *gorm.DB { return db.Order("sort_order ASC, id ASC") }).
		First(&dt, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDocTypeNotFound
		}
		return nil, err
	}
	return &dt, nil
}

// GetDocTypeBySlug loads a DocType with its ordered fields by slug.
func (r *Registry) GetDocTypeBySlug(ctx context.Context, slug string) (*models.DocType, error) {
	var dt models.DocType
	err := r.db.WithContext(ctx).
		Preload("Fields", func(db *gorm.DB) *gorm.DB { return db.Order("sort_order ASC, id ASC") }).
		Where("slug = ?", slug).
		First(&dt).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDocTypeNotFound
		}
		return nil, err
	}
	return &dt, nil
}

// ListDocTypes returns all DocTypes, active first, without field preloads.
func (r *Registry) ListDocTypes(ctx context.Context) ([]models.DocType, error) {
	var dts []models.DocType
	err := r.db.WithContext(ctx).Order("is_active DESC, name ASC").Find(&dts).Error
	return dts, err
}

// UpsertPermission writes the capability row for (docTypeID, roleID),
// replacing any existing row for the pair.
func (r *Registry) UpsertPermission(ctx context.Context, perm *models.DocTypePermission) error {
	if _, err := r.GetDocTypeByID(ctx, perm.DocTypeID); err != nil {
		return err
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "doc_type_id"}, {Name: "role_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"can_view", "can_upload", "can_edit", "can_delete", "can_export", "bypass_deadline", "updated_at",
		}),
	}).Create(perm).Error
}

// Capabilities ORs the permission rows the caller's roles hold for a DocType.
// Roles without rows contribute nothing; no rows at all means no capability.
func (r *Registry) Capabilities(ctx context.Context, roleIDs []uint64, docTypeID uint64) (models.Capability, error) {
	var caps models.Capability
	if len(roleIDs) == 0 {
		return caps, nil
	}
	var perms []models.DocTypePermission
	err := r.db.WithContext(ctx).
		Where("doc_type_id = ? AND role_id IN ?", docTypeID, roleIDs).
		Find(&perms).Error
	if err != nil {
		return caps, err
	}
	for _, p := range perms {
		caps.Merge(p)
	}
	return caps, nil
}
