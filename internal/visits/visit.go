package visits

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"

	"formlane/internal/forms"
	"formlane/internal/pkg/useragent"
)

// VisitNotFoundError represents an error when a visit is not found
type VisitNotFoundError struct {
	VisitID string
}

func (e *VisitNotFoundError) Error() string {
	return fmt.Sprintf("visit not found: %s", e.VisitID)
}

// Visit represents one visitor session against a published form. The
// classification columns are derived from the user agent at creation time so
// analytics never reparse raw strings.
type Visit struct {
	ID              uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	VisitID         string     `gorm:"uniqueIndex;not null" json:"visit_id"`
	FormID          uint       `gorm:"index;not null" json:"form_id"`
	StartedAt       time.Time  `gorm:"index" json:"started_at"`
	EndedAt         *time.Time `json:"ended_at"`
	UserAgent       string     `json:"user_agent"`
	IPAddress       string     `json:"ip_address"`
	Referrer        string     `json:"referrer"`
	Device          string     `gorm:"index" json:"device"`
	Browser         string     `json:"browser"`
	OperatingSystem string     `json:"operating_system"`
	Completed       bool       `gorm:"index" json:"completed"`
	ResponseID      *uint      `json:"response_id"`
	CreatedAt       time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

// Metadata carries the request attributes captured when a visit starts.
type Metadata struct {
	UserAgent string
	IPAddress string
	Referrer  string
}

// GetOrCreateVisit returns the existing visit for visitID or creates one.
// Forms that are not PUBLISHED never get a visit row. A blank visitID gets a
// fresh UUID so anonymous first requests work without client cooperation.
func GetOrCreateVisit(logger *slog.Logger, db *gorm.DB, form *forms.Form, visitID string, meta Metadata) (*Visit, error) {
	if !form.IsAccepting() {
		return nil, forms.ErrNotAcceptingResponses
	}

	if visitID == "" {
		visitID = uuid.NewString()
	}

	existing, err := FindByVisitID(db, visitID)
	if err == nil {
		if existing.FormID != form.ID {
			return nil, fmt.Errorf("visit %s belongs to another form", visitID)
		}
		return existing, nil
	}
	var notFound *VisitNotFoundError
	if !errors.As(err, &notFound) {
		return nil, err
	}

	c := useragent.Classify(meta.UserAgent)
	visit := Visit{
		VisitID:         visitID,
		FormID:          form.ID,
		StartedAt:       time.Now().UTC(),
		UserAgent:       meta.UserAgent,
		IPAddress:       meta.IPAddress,
		Referrer:        meta.Referrer,
		Device:          c.Device,
		Browser:         c.Browser,
		OperatingSystem: c.OperatingSystem,
	}

	// Two racing first requests for the same visitID can both miss the
	// lookup; the unique index makes one insert win and the loser re-reads.
	err = sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		return tx.Exec(`
			INSERT INTO visits
				(visit_id, form_id, started_at, user_agent, ip_address, referrer,
				 device, browser, operating_system, completed, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?)
			ON CONFLICT(visit_id) DO NOTHING
		`, visit.VisitID, visit.FormID, visit.StartedAt, visit.UserAgent,
			visit.IPAddress, visit.Referrer, visit.Device, visit.Browser,
			visit.OperatingSystem, time.Now().UTC()).Error
	})
	if err != nil {
		return nil, err
	}

	return FindByVisitID(db, visitID)
}

// FindByVisitID retrieves a visit by its public visit identifier.
func FindByVisitID(db *gorm.DB, visitID string) (*Visit, error) {
	var visit Visit
	if err := db.Where("visit_id = ?", visitID).First(&visit).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &VisitNotFoundError{VisitID: visitID}
		}
		return nil, err
	}
	return &visit, nil
}

// MarkCompleted flags a visit as converted and links it to the completed
// response. Idempotent for already-completed visits.
func MarkCompleted(logger *slog.Logger, db *gorm.DB, visitID string, responseID uint) error {
	visit, err := FindByVisitID(db, visitID)
	if err != nil {
		return err
	}
	if visit.Completed {
		return nil
	}

	now := time.Now().UTC()
	return sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		return tx.Model(visit).Updates(map[string]interface{}{
			"completed":   true,
			"ended_at":    now,
			"response_id": responseID,
		}).Error
	})
}

// GetVisitsByForm retrieves all visits for a form, newest first.
func GetVisitsByForm(db *gorm.DB, formID uint) ([]Visit, error) {
	var all []Visit
	if err := db.Where("form_id = ?", formID).
		Order("started_at DESC").Find(&all).Error; err != nil {
		return nil, fmt.Errorf("failed to get visits: %w", err)
	}
	return all, nil
}

// CountByForm returns total and completed visit counts for a form.
func CountByForm(db *gorm.DB, formID uint) (total int64, completed int64, err error) {
	if err = db.Model(&Visit{}).Where("form_id = ?", formID).Count(&total).Error; err != nil {
		return 0, 0, err
	}
	if err = db.Model(&Visit{}).
		Where("form_id = ? AND completed = ?", formID, true).
		Count(&completed).Error; err != nil {
		return 0, 0, err
	}
	return total, completed, nil
}
