// Package responses implements response persistence and the answer merge
// engine. A response accumulates answers across one or more submission
// batches for a single visit until a batch arrives flagged complete.
package responses

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"

	"formlane/internal/config"
	"formlane/internal/forms"
	"formlane/internal/visits"
)

// ResponseNotFoundError represents an error when a response is not found
type ResponseNotFoundError struct {
	ID uint
}

func (e *ResponseNotFoundError) Error() string {
	return fmt.Sprintf("response not found: %d", e.ID)
}

// Answer is one submitted value for a form field. Value is a scalar for
// simple fields, an array of scalars for multi-select fields, and the
// original filename for file fields (with FileURL and FilePublicID set by
// the attachment resolver).
type Answer struct {
	FieldID      string      `json:"fieldId"`
	Value        interface{} `json:"value"`
	FileURL      string      `json:"fileUrl,omitempty"`
	FilePublicID string      `json:"filePublicId,omitempty"`
}

// AnswerList stores a response's answers as a JSON column.
type AnswerList []Answer

// Scan implements sql.Scanner.
func (al *AnswerList) Scan(value interface{}) error {
	if value == nil {
		*al = nil
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type for AnswerList: %T", value)
	}
	if len(data) == 0 {
		*al = nil
		return nil
	}
	return json.Unmarshal(data, al)
}

// Value implements driver.Valuer.
func (al AnswerList) Value() (driver.Value, error) {
	if al == nil {
		return "[]", nil
	}
	data, err := json.Marshal(al)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Response represents the accumulated answers of one visit to a form.
type Response struct {
	ID           uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	FormID       uint       `gorm:"index;not null" json:"form_id"`
	VisitID      string     `gorm:"index;not null" json:"visit_id"`
	Answers      AnswerList `gorm:"type:text" json:"answers"`
	StartedAt    time.Time  `json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at"`
	TimeSpent    int        `json:"time_spent"` // seconds between start and completion
	IsComplete   bool       `gorm:"index" json:"is_complete"`
	SubmittedAt  time.Time  `gorm:"index" json:"submitted_at"`
	UserAgent    string     `json:"user_agent"`
	IPAddress    string     `json:"ip_address"`
	Referrer     string     `json:"referrer"`
	RespondentID *uint      `json:"respondent_id"` // set when the visitor was authenticated
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// Submission carries one incoming answer batch for the merge engine.
type Submission struct {
	Answers      AnswerList
	IsComplete   bool
	RespondentID *uint
	Meta         visits.Metadata
}

// SubmitAnswers merges an answer batch into the open response for
// (form, visit), creating one when none exists. A batch flagged complete
// closes the response, records the elapsed seconds since the response
// started and marks the visit completed (best effort).
//
// The find-then-create sequence runs inside a write transaction and is
// backed by a partial unique index on open responses, so two racing
// submissions for the same visit converge on one row: the losing insert
// retries once as a merge.
func SubmitAnswers(logger *slog.Logger, cfg *config.Config, db *gorm.DB, form *forms.Form, visit *visits.Visit, sub Submission) (*Response, error) {
	if !form.IsAccepting() {
		return nil, forms.ErrNotAcceptingResponses
	}

	var result *Response
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		result, err = upsertResponse(logger, cfg, db, form, visit, sub)
		if err == nil {
			break
		}
		if !isUniqueConstraintError(err) {
			return nil, err
		}
	}
	if err != nil {
		return nil, err
	}

	if sub.IsComplete {
		if mErr := visits.MarkCompleted(logger, db, visit.VisitID, result.ID); mErr != nil {
			logger.Warn("Failed to mark visit completed",
				slog.String("visit_id", visit.VisitID), slog.Any("error", mErr))
		}
	}

	return result, nil
}

func upsertResponse(logger *slog.Logger, cfg *config.Config, db *gorm.DB, form *forms.Form, visit *visits.Visit, sub Submission) (*Response, error) {
	now := time.Now().UTC()
	var result *Response

	err := sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		var existing Response
		err := tx.Where("form_id = ? AND visit_id = ? AND is_complete = ?",
			form.ID, visit.VisitID, false).First(&existing).Error

		switch {
		case err == nil:
			existing.Answers = MergeAnswers(existing.Answers, sub.Answers, cfg.AnswerMergeStrategy)
			existing.SubmittedAt = now
			if sub.RespondentID != nil {
				existing.RespondentID = sub.RespondentID
			}
			if sub.IsComplete {
				existing.IsComplete = true
				existing.CompletedAt = &now
				existing.TimeSpent = int(now.Sub(existing.StartedAt).Seconds())
			}
			if txErr := tx.Save(&existing).Error; txErr != nil {
				return txErr
			}
			result = &existing
			return nil

		case errors.Is(err, gorm.ErrRecordNotFound):
			// Created in UTC so day buckets line up regardless of the
			// server's timezone.
			fresh := Response{
				FormID:       form.ID,
				VisitID:      visit.VisitID,
				Answers:      sub.Answers,
				StartedAt:    now,
				CreatedAt:    now,
				IsComplete:   sub.IsComplete,
				SubmittedAt:  now,
				UserAgent:    sub.Meta.UserAgent,
				IPAddress:    sub.Meta.IPAddress,
				Referrer:     sub.Meta.Referrer,
				RespondentID: sub.RespondentID,
			}
			if sub.IsComplete {
				fresh.CompletedAt = &now
				fresh.TimeSpent = 0
			}
			if txErr := tx.Create(&fresh).Error; txErr != nil {
				return txErr
			}
			result = &fresh
			return nil

		default:
			return err
		}
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// MergeAnswers combines a new answer batch into the accumulated list.
// Append mode preserves duplicate fieldId entries across batches; replace
// mode keeps the latest answer per fieldId while preserving first-seen
// field order.
func MergeAnswers(existing, incoming AnswerList, strategy string) AnswerList {
	if strategy != config.MergeReplace {
		return append(existing, incoming...)
	}

	merged := make(AnswerList, 0, len(existing)+len(incoming))
	index := make(map[string]int, len(existing))
	for _, a := range existing {
		if i, seen := index[a.FieldID]; seen {
			merged[i] = a
			continue
		}
		index[a.FieldID] = len(merged)
		merged = append(merged, a)
	}
	for _, a := range incoming {
		if i, seen := index[a.FieldID]; seen {
			merged[i] = a
			continue
		}
		index[a.FieldID] = len(merged)
		merged = append(merged, a)
	}
	return merged
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// GetResponseByID retrieves a response by its ID.
func GetResponseByID(db *gorm.DB, id uint) (*Response, error) {
	var response Response
	if err := db.First(&response, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &ResponseNotFoundError{ID: id}
		}
		return nil, err
	}
	return &response, nil
}

// GetResponsesByForm retrieves all responses for a form, newest first.
func GetResponsesByForm(db *gorm.DB, formID uint) ([]Response, error) {
	var all []Response
	if err := db.Where("form_id = ?", formID).
		Order("submitted_at DESC").Find(&all).Error; err != nil {
		return nil, fmt.Errorf("failed to get responses: %w", err)
	}
	return all, nil
}

// GetCompleteResponses retrieves a form's completed responses, newest first.
func GetCompleteResponses(db *gorm.DB, formID uint) ([]Response, error) {
	var all []Response
	if err := db.Where("form_id = ? AND is_complete = ?", formID, true).
		Order("submitted_at DESC").Find(&all).Error; err != nil {
		return nil, fmt.Errorf("failed to get complete responses: %w", err)
	}
	return all, nil
}

// GetIncompleteResponses retrieves a form's open responses.
func GetIncompleteResponses(db *gorm.DB, formID uint) ([]Response, error) {
	var all []Response
	if err := db.Where("form_id = ? AND is_complete = ?", formID, false).
		Find(&all).Error; err != nil {
		return nil, fmt.Errorf("failed to get incomplete responses: %w", err)
	}
	return all, nil
}

// DeleteResponse removes a response by its ID.
func DeleteResponse(logger *slog.Logger, db *gorm.DB, id uint) error {
	return sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		result := tx.Delete(&Response{}, id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return &ResponseNotFoundError{ID: id}
		}
		return nil
	})
}
