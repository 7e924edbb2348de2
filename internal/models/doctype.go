package models

import "time"

// Field types a DocType can declare. The set is closed; the table manager and
// the ingestion pipeline both switch exhaustively on it.
const (
	FieldText      = "TEXT"
	FieldNumber    = "NUMBER"
	FieldCurrency  = "CURRENCY"
	FieldDate      = "DATE"
	FieldDateTime  = "DATETIME"
	FieldSelect    = "SELECT"
	FieldBoolean   = "BOOLEAN"
	FieldReference = "REFERENCE"
)

// FieldTypes lists every valid field type, in declaration order.
var FieldTypes = []string{
	FieldText, FieldNumber, FieldCurrency, FieldDate,
	FieldDateTime, FieldSelect, FieldBoolean, FieldReference,
}

// ValidFieldType reports whether t names a declared field type.
func ValidFieldType(t string) bool {
	for _, ft := range FieldTypes {
		if ft == t {
			return true
		}
	}
	return false
}

// DocType is an administrator-defined document type. Each row owns exactly one
// physical table named TableName, kept in sync with the Fields list.
type DocType struct {
	ID                   uint64 `gorm:"primaryKey;autoIncrement" json:"id"`
	Name                 string `gorm:"size:255;not null" json:"name"`
	Slug                 string `gorm:"uniqueIndex;size:100;not null" json:"slug"`
	TableName            string `gorm:"uniqueIndex;size:64;not null" json:"tableName"`
	Description          string `gorm:"size:1000" json:"description"`
	Icon                 string `gorm:"size:100" json:"icon"`
	UploadDeadlineHour   *int   `json:"uploadDeadlineHour"`
	UploadDeadlineMinute int    `gorm:"not null;default:0" json:"uploadDeadlineMinute"`
	IsUploadActive       bool   `gorm:"not null;default:true" json:"isUploadActive"`
	ShowInDashboard      bool   `gorm:"not null;default:true" json:"showInDashboard"`
	IsActive             bool   `gorm:"not null;default:true" json:"isActive"`
	IsSystem             bool   `gorm:"not null;default:false" json:"isSystem"`
	CreatedAt            time.Time `json:"createdAt"`
	UpdatedAt            time.Time `json:"updatedAt"`

	Fields      []DocTypeField      `gorm:"foreignKey:DocTypeID" json:"fields,omitempty"`
	Permissions []DocTypePermission `gorm:"foreignKey:DocTypeID" json:"permissions,omitempty"`
}

// DocTypeField is one typed column definition owned by a DocType. FieldName is
// the physical column name and must survive identifier sanitization unchanged.
type DocTypeField struct {
	ID             uint64     `gorm:"primaryKey;autoIncrement" json:"id"`
	DocTypeID      uint64     `gorm:"uniqueIndex:idx_doctype_field;not null" json:"docTypeId"`
	Label          string     `gorm:"size:255;not null" json:"label"`
	FieldName      string     `gorm:"uniqueIndex:idx_doctype_field;size:64;not null" json:"fieldName"`
	FieldType      string     `gorm:"size:20;not null" json:"fieldType"`
	IsRequired     bool       `gorm:"not null;default:false" json:"isRequired"`
	IsUnique       bool       `gorm:"not null;default:false" json:"isUnique"`
	DefaultValue   string     `gorm:"size:255" json:"defaultValue"`
	Options        StringList `json:"options"`
	MinValue       *float64   `json:"minValue"`
	MaxValue       *float64   `json:"maxValue"`
	ReferenceTable string     `gorm:"size:64" json:"referenceTable"`
	ReferenceField string     `gorm:"size:64" json:"referenceField"`
	ExcelColumn    string     `gorm:"size:255" json:"excelColumn"`
	SortOrder      int        `gorm:"not null;default:0" json:"sortOrder"`
	ShowInList     bool       `gorm:"not null;default:true" json:"showInList"`
	ShowInForm     bool       `gorm:"not null;default:true" json:"showInForm"`
	IsSystem       bool       `gorm:"not null;default:false" json:"isSystem"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// DocTypePermission is the per-role capability matrix for one DocType.
// No row means no capability at all.
type DocTypePermission struct {
	ID             uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	DocTypeID      uint64    `gorm:"uniqueIndex:idx_doctype_role;not null" json:"docTypeId"`
	RoleID         uint64    `gorm:"uniqueIndex:idx_doctype_role;not null" json:"roleId"`
	CanView        bool      `gorm:"not null;default:false" json:"canView"`
	CanUpload      bool      `gorm:"not null;default:false" json:"canUpload"`
	CanEdit        bool      `gorm:"not null;default:false" json:"canEdit"`
	CanDelete      bool      `gorm:"not null;default:false" json:"canDelete"`
	CanExport      bool      `gorm:"not null;default:false" json:"canExport"`
	BypassDeadline bool      `gorm:"not null;default:false" json:"bypassDeadline"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// Capability is the union of a caller's permission rows for one DocType.
type Capability struct {
	CanView        bool `json:"canView"`
	CanUpload      bool `json:"canUpload"`
	CanEdit        bool `json:"canEdit"`
	CanDelete      bool `json:"canDelete"`
	CanExport      bool `json:"canExport"`
	BypassDeadline bool `json:"bypassDeadline"`
}

// Merge ORs another permission row into the capability set.
func (c *Capability) Merge(p DocTypePermission) {
	c.CanView = c.CanView || p.CanView
	c.CanUpload = c.CanUpload || p.CanUpload
	c.CanEdit = c.CanEdit || p.CanEdit
	c.CanDelete = c.CanDelete || p.CanDelete
	c.CanExport = c.CanExport || p.CanExport
	c.BypassDeadline = c.BypassDeadline || p.BypassDeadline
}

// AuthUser is the verified caller identity supplied by the authentication
// layer. The engine never issues or refreshes these.
type AuthUser struct {
	ID      uint64   `json:"id"`
	Name    string   `json:"name"`
	Email   string   `json:"email"`
	RoleIDs []uint64 `json:"roleIds"`
	IsAdmin bool     `json:"isAdmin"`
}
