package analytics

import (
	"strconv"

	"gorm.io/gorm"

	"formlane/internal/forms"
	"formlane/internal/responses"
)

// FieldAnalytics aggregates every submitted answer for one field. The
// option and numeric sections are populated only for field kinds they
// apply to.
type FieldAnalytics struct {
	FieldID       string        `json:"fieldId"`
	Label         string        `json:"label"`
	Type          string        `json:"type"`
	ResponseCount int64         `json:"responseCount"`
	Values        []interface{} `json:"values"`

	// checkbox, radio and dropdown kinds
	OptionCounts map[string]int64 `json:"optionCounts,omitempty"`

	// number kind
	Min     *float64 `json:"min,omitempty"`
	Max     *float64 `json:"max,omitempty"`
	Sum     float64  `json:"sum,omitempty"`
	Average float64  `json:"average,omitempty"`

	numericCount int64
}

// GetFieldAnalytics aggregates all answers across a form's responses,
// grouped by field in the form's field order. Answers referencing unknown
// fieldIds are skipped.
func GetFieldAnalytics(db *gorm.DB, form *forms.Form) ([]*FieldAnalytics, error) {
	all, err := responses.GetResponsesByForm(db, form.ID)
	if err != nil {
		return nil, err
	}

	byField := make(map[string]*FieldAnalytics, len(form.Fields))
	ordered := make([]*FieldAnalytics, 0, len(form.Fields))
	for i := range form.Fields {
		field := &form.Fields[i]
		fa := &FieldAnalytics{
			FieldID: field.ID,
			Label:   field.Label,
			Type:    field.Type,
			Values:  []interface{}{},
		}
		if hasOptions(field.Type) {
			fa.OptionCounts = make(map[string]int64, len(field.Options))
			for _, opt := range field.Options {
				fa.OptionCounts[opt.Value] = 0
			}
		}
		byField[field.ID] = fa
		ordered = append(ordered, fa)
	}

	for _, response := range all {
		for _, answer := range response.Answers {
			fa, ok := byField[answer.FieldID]
			if !ok {
				continue
			}
			field, _ := form.Fields.FieldByID(answer.FieldID)
			fa.accumulate(field, answer)
		}
	}

	for _, fa := range ordered {
		if fa.Type == forms.FieldNumber && fa.numericCount > 0 {
			fa.Average = fa.Sum / float64(fa.numericCount)
		}
	}

	return ordered, nil
}

func (fa *FieldAnalytics) accumulate(field *forms.Field, answer responses.Answer) {
	fa.ResponseCount++
	fa.Values = append(fa.Values, answer.Value)

	switch field.Type {
	case forms.FieldRadio, forms.FieldDropdown:
		if s, ok := answer.Value.(string); ok && s != "" {
			fa.OptionCounts[s]++
		}
	case forms.FieldCheckbox:
		if vals, ok := answer.Value.([]interface{}); ok {
			for _, v := range vals {
				if s, ok := v.(string); ok {
					fa.OptionCounts[s]++
				}
			}
		}
	case forms.FieldNumber:
		// Malformed values count as a response but never enter the
		// numeric aggregates, including the average's denominator.
		if num, ok := toNumber(answer.Value); ok {
			fa.Sum += num
			fa.numericCount++
			if fa.Min == nil || num < *fa.Min {
				v := num
				fa.Min = &v
			}
			if fa.Max == nil || num > *fa.Max {
				v := num
				fa.Max = &v
			}
		}
	}
}

func hasOptions(fieldType string) bool {
	switch fieldType {
	case forms.FieldCheckbox, forms.FieldRadio, forms.FieldDropdown:
		return true
	}
	return false
}

func toNumber(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		num, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, false
		}
		return num, true
	default:
		return 0, false
	}
}
