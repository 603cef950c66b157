// Package analytics implements the read-side aggregations over a form's
// visits and responses. All functions are pure queries; nothing here
// writes.
package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"formlane/internal/pkg/async"
)

// DeviceCount is one bucket of the device breakdown.
type DeviceCount struct {
	Device string `json:"device"`
	Count  int64  `json:"count"`
}

// DropOff aggregates incomplete responses by how many answers they carried
// when abandoned.
type DropOff struct {
	AnswerCount int   `json:"answerCount"`
	Count       int64 `json:"count"`
}

// DailyCount is one day of the 30-day response trend.
type DailyCount struct {
	Date  string `json:"date"` // YYYY-MM-DD
	Count int64  `json:"count"`
}

// FormAnalytics is the dashboard payload for one form.
type FormAnalytics struct {
	TotalVisits       int64         `json:"totalVisits"`
	TotalResponses    int64         `json:"totalResponses"`
	ConversionRate    float64       `json:"conversionRate"`
	AvgCompletionTime float64       `json:"avgCompletionTime"` // seconds
	Devices           []DeviceCount `json:"devices"`
	DropOffs          []DropOff     `json:"dropOffs"`
	DailyTrend        []DailyCount  `json:"dailyTrend"`
}

// GetFormAnalytics computes the dashboard metrics for a form. The six
// underlying queries are independent, so they fan out across a small worker
// pool and the call fails if any one of them does.
func GetFormAnalytics(ctx context.Context, logger *slog.Logger, db *gorm.DB, formID uint) (*FormAnalytics, error) {
	pool := async.NewPool(3)
	tasks := []async.Task{
		{Name: "total_visits", Execute: func() (interface{}, error) {
			return countVisits(db, formID)
		}},
		{Name: "total_responses", Execute: func() (interface{}, error) {
			return countCompleteResponses(db, formID)
		}},
		{Name: "avg_completion_time", Execute: func() (interface{}, error) {
			return avgCompletionTime(db, formID)
		}},
		{Name: "devices", Execute: func() (interface{}, error) {
			return deviceBreakdown(db, formID)
		}},
		{Name: "drop_offs", Execute: func() (interface{}, error) {
			return dropOffDistribution(db, formID)
		}},
		{Name: "daily_trend", Execute: func() (interface{}, error) {
			return dailyTrend(db, formID, 30)
		}},
	}

	results, err := pool.ExecuteFailFast(ctx, tasks)
	if err != nil {
		logger.Error("Form analytics query failed", slog.Uint64("form_id", uint64(formID)), slog.Any("error", err))
		return nil, err
	}

	out := &FormAnalytics{
		TotalVisits:       results["total_visits"].Data.(int64),
		TotalResponses:    results["total_responses"].Data.(int64),
		AvgCompletionTime: results["avg_completion_time"].Data.(float64),
		Devices:           results["devices"].Data.([]DeviceCount),
		DropOffs:          results["drop_offs"].Data.([]DropOff),
		DailyTrend:        results["daily_trend"].Data.([]DailyCount),
	}

	if out.TotalVisits > 0 {
		out.ConversionRate = float64(out.TotalResponses) / float64(out.TotalVisits) * 100
	}

	return out, nil
}

func countVisits(db *gorm.DB, formID uint) (int64, error) {
	var count int64
	err := db.Table("visits").Where("form_id = ?", formID).Count(&count).Error
	return count, err
}

func countCompleteResponses(db *gorm.DB, formID uint) (int64, error) {
	var count int64
	err := db.Table("responses").
		Where("form_id = ? AND is_complete = ?", formID, true).
		Count(&count).Error
	return count, err
}

func avgCompletionTime(db *gorm.DB, formID uint) (float64, error) {
	var avg float64
	err := db.Raw(`
		SELECT COALESCE(AVG(time_spent), 0)
		FROM responses
		WHERE form_id = ? AND is_complete = 1
	`, formID).Scan(&avg).Error
	if err != nil {
		return 0, fmt.Errorf("failed to compute average completion time: %w", err)
	}
	return avg, nil
}

func deviceBreakdown(db *gorm.DB, formID uint) ([]DeviceCount, error) {
	var results []DeviceCount
	err := db.Raw(`
		SELECT COALESCE(NULLIF(device, ''), 'unknown') AS device, COUNT(*) AS count
		FROM visits
		WHERE form_id = ?
		GROUP BY 1
		ORDER BY count DESC
	`, formID).Scan(&results).Error
	if err != nil {
		return nil, fmt.Errorf("failed to compute device breakdown: %w", err)
	}
	if results == nil {
		results = []DeviceCount{}
	}
	return results, nil
}

// dropOffDistribution buckets abandoned responses by answer count, ascending.
func dropOffDistribution(db *gorm.DB, formID uint) ([]DropOff, error) {
	var results []DropOff
	err := db.Raw(`
		SELECT json_array_length(answers) AS answer_count, COUNT(*) AS count
		FROM responses
		WHERE form_id = ? AND is_complete = 0
		GROUP BY 1
		ORDER BY answer_count ASC
	`, formID).Scan(&results).Error
	if err != nil {
		return nil, fmt.Errorf("failed to compute drop-off distribution: %w", err)
	}
	if results == nil {
		results = []DropOff{}
	}
	return results, nil
}

// dailyTrend counts all responses (complete or not) created per day over
// the trailing window, ascending by date. Days with no responses do not
// appear.
func dailyTrend(db *gorm.DB, formID uint, days int) ([]DailyCount, error) {
	since := time.Now().UTC().AddDate(0, 0, -days)
	var results []DailyCount
	err := db.Raw(`
		SELECT date(created_at) AS date, COUNT(*) AS count
		FROM responses
		WHERE form_id = ? AND created_at >= ?
		GROUP BY 1
		ORDER BY date ASC
	`, formID, since).Scan(&results).Error
	if err != nil {
		return nil, fmt.Errorf("failed to compute daily trend: %w", err)
	}
	if results == nil {
		results = []DailyCount{}
	}
	return results, nil
}
