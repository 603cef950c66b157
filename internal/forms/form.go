package forms

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Form lifecycle statuses. Only PUBLISHED forms accept visits and responses.
const (
	StatusDraft     = "DRAFT"
	StatusPublished = "PUBLISHED"
	StatusArchived  = "ARCHIVED"
)

// FormNotFoundError represents an error when a form is not found
type FormNotFoundError struct {
	ID   uint
	Slug string
}

func (e *FormNotFoundError) Error() string {
	if e.Slug != "" {
		return fmt.Sprintf("form not found for slug: %s", e.Slug)
	}
	return fmt.Sprintf("form not found: %d", e.ID)
}

// NewFormNotFoundError creates a new FormNotFoundError
func NewFormNotFoundError(id uint) *FormNotFoundError {
	return &FormNotFoundError{ID: id}
}

// ErrNotAcceptingResponses is returned when a visit or submission targets a
// form that is not in the PUBLISHED state.
var ErrNotAcceptingResponses = errors.New("form is not currently accepting responses")

// ErrInvalidStatusTransition is returned for lifecycle moves the state
// machine does not allow.
var ErrInvalidStatusTransition = errors.New("invalid form status transition")

// Field kinds. The Options and numeric bounds below only apply to some kinds,
// enforced by Field.Validate.
const (
	FieldText     = "text"
	FieldLongText = "longText"
	FieldNumber   = "number"
	FieldCheckbox = "checkbox"
	FieldRadio    = "radio"
	FieldDropdown = "dropdown"
	FieldDate     = "date"
	FieldFile     = "fileUpload"
)

// Option is one selectable choice on a checkbox, radio or dropdown field.
type Option struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// Field describes one question on a form. The Type discriminates which of
// the optional settings are meaningful.
type Field struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Label    string `json:"label"`
	Required bool   `json:"required"`

	// checkbox, radio and dropdown kinds
	Options []Option `json:"options,omitempty"`

	// number kind
	Min *float64 `json:"min,omitempty"`
	Max *float64 `json:"max,omitempty"`

	// file kind
	AcceptedTypes []string `json:"acceptedTypes,omitempty"`
	MaxSizeBytes  int64    `json:"maxSizeBytes,omitempty"`

	Placeholder string `json:"placeholder,omitempty"`
}

// Validate checks the field's settings against its kind.
func (f *Field) Validate() error {
	if f.ID == "" {
		return errors.New("field id is required")
	}
	if f.Label == "" {
		return fmt.Errorf("field %s: label is required", f.ID)
	}

	switch f.Type {
	case FieldCheckbox, FieldRadio, FieldDropdown:
		if len(f.Options) == 0 {
			return fmt.Errorf("field %s: %s fields require options", f.ID, f.Type)
		}
	case FieldText, FieldLongText, FieldDate:
		if len(f.Options) > 0 {
			return fmt.Errorf("field %s: %s fields cannot have options", f.ID, f.Type)
		}
	case FieldNumber:
		if f.Min != nil && f.Max != nil && *f.Min > *f.Max {
			return fmt.Errorf("field %s: min cannot exceed max", f.ID)
		}
	case FieldFile:
		// Accepted types and size limit are optional.
	default:
		return fmt.Errorf("field %s: unknown field type %q", f.ID, f.Type)
	}
	return nil
}

// FieldList stores a form's fields as a JSON column.
type FieldList []Field

// Scan implements sql.Scanner.
func (fl *FieldList) Scan(value interface{}) error {
	if value == nil {
		*fl = nil
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type for FieldList: %T", value)
	}
	if len(data) == 0 {
		*fl = nil
		return nil
	}
	return json.Unmarshal(data, fl)
}

// Value implements driver.Valuer.
func (fl FieldList) Value() (driver.Value, error) {
	if fl == nil {
		return "[]", nil
	}
	data, err := json.Marshal(fl)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// FieldByID returns the field with the given ID, if present.
func (fl FieldList) FieldByID(id string) (*Field, bool) {
	for i := range fl {
		if fl[i].ID == id {
			return &fl[i], true
		}
	}
	return nil, false
}

// Settings stores per-form behavior toggles as a JSON column.
type Settings map[string]interface{}

// Scan implements sql.Scanner.
func (s *Settings) Scan(value interface{}) error {
	if value == nil {
		*s = nil
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type for Settings: %T", value)
	}
	if len(data) == 0 {
		*s = nil
		return nil
	}
	return json.Unmarshal(data, s)
}

// Value implements driver.Valuer.
func (s Settings) Value() (driver.Value, error) {
	if s == nil {
		return "{}", nil
	}
	data, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Form represents a form built by a user.
type Form struct {
	ID          uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID      uint           `gorm:"index;not null" json:"user_id"`
	Title       string         `gorm:"not null" json:"title"`
	Description string         `json:"description"`
	Slug        string         `gorm:"uniqueIndex;not null" json:"slug"`
	Status      string         `gorm:"default:'DRAFT';index" json:"status"`
	Fields      FieldList      `gorm:"type:text" json:"fields"`
	Settings    Settings       `gorm:"type:text" json:"settings"`
	LogicJumps  datatypes.JSON `json:"logic_jumps"` // Opaque to the server, interpreted by the renderer
	CreatedAt   time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsAccepting reports whether the form currently takes visits and responses.
func (f *Form) IsAccepting() bool {
	return f.Status == StatusPublished
}

// PublicURL returns the renderer URL for the form, or "" when unpublished.
func (f *Form) PublicURL(baseURL string) string {
	if !f.IsAccepting() || baseURL == "" {
		return ""
	}
	return fmt.Sprintf("%s/f/%s", strings.TrimRight(baseURL, "/"), f.Slug)
}

// ValidateFields runs per-kind validation across all fields and rejects
// duplicate field IDs.
func (f *Form) ValidateFields() error {
	seen := make(map[string]bool, len(f.Fields))
	for i := range f.Fields {
		if err := f.Fields[i].Validate(); err != nil {
			return err
		}
		if seen[f.Fields[i].ID] {
			return fmt.Errorf("duplicate field id: %s", f.Fields[i].ID)
		}
		seen[f.Fields[i].ID] = true
	}
	return nil
}

// GetFormByID retrieves a form by its ID.
func GetFormByID(db *gorm.DB, id uint) (*Form, error) {
	var form Form
	if err := db.First(&form, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewFormNotFoundError(id)
		}
		return nil, err
	}
	return &form, nil
}

// GetFormBySlug retrieves a form by its public slug.
func GetFormBySlug(db *gorm.DB, s string) (*Form, error) {
	var form Form
	if err := db.Where("slug = ?", s).First(&form).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &FormNotFoundError{Slug: s}
		}
		return nil, err
	}
	return &form, nil
}

// GetFormsByUser retrieves all forms owned by a user, newest first.
func GetFormsByUser(db *gorm.DB, userID uint) ([]Form, error) {
	var all []Form
	if err := db.Where("user_id = ?", userID).
		Order("created_at DESC").Find(&all).Error; err != nil {
		return nil, fmt.Errorf("failed to get forms: %w", err)
	}
	return all, nil
}

// CreateForm persists a new form in DRAFT status. The slug is derived from
// the title and suffixed when already taken.
func CreateForm(logger *slog.Logger, db *gorm.DB, form *Form) error {
	if form.Title == "" {
		return errors.New("title cannot be empty")
	}
	if err := form.ValidateFields(); err != nil {
		return err
	}

	form.Status = StatusDraft
	if form.Slug == "" {
		s, err := uniqueSlug(db, form.Title)
		if err != nil {
			return err
		}
		form.Slug = s
	}
	form.CreatedAt = time.Now().UTC()

	return sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		return tx.Create(form).Error
	})
}

// UpdateForm updates a form's editable attributes.
func UpdateForm(logger *slog.Logger, db *gorm.DB, form *Form) error {
	if err := form.ValidateFields(); err != nil {
		return err
	}
	return sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		return tx.Save(form).Error
	})
}

// PublishForm moves a form into the PUBLISHED state. Archived forms can be
// republished; publishing a published form is a no-op.
func PublishForm(logger *slog.Logger, db *gorm.DB, form *Form) error {
	if form.Status == StatusPublished {
		return nil
	}
	return setStatus(logger, db, form, StatusPublished)
}

// ArchiveForm moves a form into the ARCHIVED state, which stops all visit
// and response intake while preserving collected data.
func ArchiveForm(logger *slog.Logger, db *gorm.DB, form *Form) error {
	if form.Status == StatusDraft {
		return ErrInvalidStatusTransition
	}
	if form.Status == StatusArchived {
		return nil
	}
	return setStatus(logger, db, form, StatusArchived)
}

func setStatus(logger *slog.Logger, db *gorm.DB, form *Form, status string) error {
	err := sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		return tx.Model(form).Update("status", status).Error
	})
	if err != nil {
		return err
	}
	form.Status = status
	return nil
}

// DeleteForm removes a form and everything collected through it. Raw table
// deletes keep this package free of imports on the collection packages.
func DeleteForm(logger *slog.Logger, db *gorm.DB, id uint) error {
	return sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		if err := tx.Exec("DELETE FROM file_uploads WHERE form_id = ?", id).Error; err != nil {
			return err
		}
		if err := tx.Exec("DELETE FROM responses WHERE form_id = ?", id).Error; err != nil {
			return err
		}
		if err := tx.Exec("DELETE FROM visits WHERE form_id = ?", id).Error; err != nil {
			return err
		}
		result := tx.Delete(&Form{}, id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return NewFormNotFoundError(id)
		}
		return nil
	})
}

// FormWithStats represents a form enriched with response counters for the
// dashboard list view.
type FormWithStats struct {
	Form
	ResponseCount  int64 `json:"response_count"`
	ResponsesToday int64 `json:"responses_today"`
}

// Today's counters are skipped above this many forms to bound the query
// count on large accounts.
const todayCountFormLimit = 50

// GetFormsWithStats retrieves a user's forms enriched with completed
// response counts.
func GetFormsWithStats(db *gorm.DB, userID uint) ([]FormWithStats, error) {
	allForms, err := GetFormsByUser(db, userID)
	if err != nil {
		return nil, err
	}

	startOfDay := time.Now().UTC().Truncate(24 * time.Hour)
	countToday := len(allForms) <= todayCountFormLimit

	result := make([]FormWithStats, len(allForms))
	for i, form := range allForms {
		var total int64
		err := db.Table("responses").
			Where("form_id = ? AND is_complete = ?", form.ID, true).
			Count(&total).Error
		if err != nil {
			total = 0
		}

		var today int64
		if countToday {
			err := db.Table("responses").
				Where("form_id = ? AND is_complete = ? AND submitted_at >= ?",
					form.ID, true, startOfDay).
				Count(&today).Error
			if err != nil {
				today = 0
			}
		}

		result[i] = FormWithStats{
			Form:           form,
			ResponseCount:  total,
			ResponsesToday: today,
		}
	}

	return result, nil
}

func uniqueSlug(db *gorm.DB, title string) (string, error) {
	base := slug.Make(title)
	if base == "" {
		base = "form"
	}

	var count int64
	if err := db.Model(&Form{}).Where("slug = ?", base).Count(&count).Error; err != nil {
		return "", err
	}
	if count == 0 {
		return base, nil
	}
	return fmt.Sprintf("%s-%s", base, uuid.NewString()[:8]), nil
}
