package analytics

import (
	"fmt"

	"gorm.io/gorm"

	"formlane/internal/visits"
)

// ReferrerCount is one bucket of the referrer breakdown.
type ReferrerCount struct {
	Referrer string `json:"referrer"`
	Count    int64  `json:"count"`
}

// BrowserCount is one bucket of the browser breakdown.
type BrowserCount struct {
	Browser string `json:"browser"`
	Count   int64  `json:"count"`
}

// OSCount is one bucket of the operating system breakdown.
type OSCount struct {
	OS    string `json:"os"`
	Count int64  `json:"count"`
}

// HourCount is one of the 24 hour-of-day buckets.
type HourCount struct {
	Hour  int   `json:"hour"`
	Count int64 `json:"count"`
}

// DayCount is one of the 7 ISO weekday buckets (1=Monday, 7=Sunday).
type DayCount struct {
	DayOfWeek int   `json:"dayOfWeek"`
	Count     int64 `json:"count"`
}

// VisitAnalytics is the traffic payload for one form.
type VisitAnalytics struct {
	Referrers             []ReferrerCount `json:"referrers"`
	Browsers              []BrowserCount  `json:"browsers"`
	OperatingSystems      []OSCount       `json:"operatingSystems"`
	HourlyDistribution    []HourCount     `json:"hourlyDistribution"`
	DayOfWeekDistribution []DayCount      `json:"dayOfWeekDistribution"`
}

// GetVisitAnalytics computes the traffic breakdowns for a form. The grouped
// counts are pushed into SQL; the two fixed-bucket distributions are built
// in Go over one scan of the form's visits.
func GetVisitAnalytics(db *gorm.DB, formID uint) (*VisitAnalytics, error) {
	referrers, err := referrerBreakdown(db, formID)
	if err != nil {
		return nil, err
	}
	browsers, err := browserBreakdown(db, formID)
	if err != nil {
		return nil, err
	}
	oses, err := osBreakdown(db, formID)
	if err != nil {
		return nil, err
	}

	all, err := visits.GetVisitsByForm(db, formID)
	if err != nil {
		return nil, err
	}

	hourly := make([]HourCount, 24)
	for hour := 0; hour < 24; hour++ {
		hourly[hour] = HourCount{Hour: hour}
	}
	daily := make([]DayCount, 7)
	for day := 1; day <= 7; day++ {
		daily[day-1] = DayCount{DayOfWeek: day}
	}

	for _, visit := range all {
		startedAt := visit.StartedAt.UTC()
		hourly[startedAt.Hour()].Count++

		iso := int(startedAt.Weekday())
		if iso == 0 {
			iso = 7 // Sunday
		}
		daily[iso-1].Count++
	}

	return &VisitAnalytics{
		Referrers:             referrers,
		Browsers:              browsers,
		OperatingSystems:      oses,
		HourlyDistribution:    hourly,
		DayOfWeekDistribution: daily,
	}, nil
}

// referrerBreakdown returns the top 10 referrers by visit count; visits
// without a referrer bucket under "direct".
func referrerBreakdown(db *gorm.DB, formID uint) ([]ReferrerCount, error) {
	var results []ReferrerCount
	err := db.Raw(`
		SELECT COALESCE(NULLIF(referrer, ''), 'direct') AS referrer, COUNT(*) AS count
		FROM visits
		WHERE form_id = ?
		GROUP BY 1
		ORDER BY count DESC
		LIMIT 10
	`, formID).Scan(&results).Error
	if err != nil {
		return nil, fmt.Errorf("failed to compute referrer breakdown: %w", err)
	}
	if results == nil {
		results = []ReferrerCount{}
	}
	return results, nil
}

func browserBreakdown(db *gorm.DB, formID uint) ([]BrowserCount, error) {
	var results []BrowserCount
	err := db.Raw(`
		SELECT COALESCE(NULLIF(browser, ''), 'unknown') AS browser, COUNT(*) AS count
		FROM visits
		WHERE form_id = ?
		GROUP BY 1
		ORDER BY count DESC
	`, formID).Scan(&results).Error
	if err != nil {
		return nil, fmt.Errorf("failed to compute browser breakdown: %w", err)
	}
	if results == nil {
		results = []BrowserCount{}
	}
	return results, nil
}

func osBreakdown(db *gorm.DB, formID uint) ([]OSCount, error) {
	var results []OSCount
	err := db.Raw(`
		SELECT COALESCE(NULLIF(operating_system, ''), 'unknown') AS os, COUNT(*) AS count
		FROM visits
		WHERE form_id = ?
		GROUP BY 1
		ORDER BY count DESC
	`, formID).Scan(&results).Error
	if err != nil {
		return nil, fmt.Errorf("failed to compute operating system breakdown: %w", err)
	}
	if results == nil {
		results = []OSCount{}
	}
	return results, nil
}
