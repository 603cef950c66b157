// Package export renders a form's completed responses for download as JSON
// or CSV. Field IDs are substituted with their labels on the way out.
package export

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"

	"formlane/internal/forms"
	"formlane/internal/responses"
)

// Export formats
const (
	FormatJSON = "json"
	FormatCSV  = "csv"
)

// FormattedResponse is one completed response in the JSON export, with
// answers keyed by field label.
type FormattedResponse struct {
	ID          uint                   `json:"id"`
	SubmittedAt *time.Time             `json:"submittedAt"`
	TimeSpent   int                    `json:"timeSpent"`
	Answers     map[string]interface{} `json:"answers"`
}

// AsJSON returns the form's completed responses, most recent first, with
// fieldIds resolved to labels. Unresolved fieldIds fall back to the raw id.
func AsJSON(db *gorm.DB, form *forms.Form) ([]FormattedResponse, error) {
	complete, err := responses.GetCompleteResponses(db, form.ID)
	if err != nil {
		return nil, err
	}

	labels := labelMap(form)
	out := make([]FormattedResponse, len(complete))
	for i, response := range complete {
		formatted := FormattedResponse{
			ID:          response.ID,
			SubmittedAt: response.CompletedAt,
			TimeSpent:   response.TimeSpent,
			Answers:     make(map[string]interface{}, len(response.Answers)),
		}
		for _, answer := range response.Answers {
			key := answer.FieldID
			if label, ok := labels[answer.FieldID]; ok {
				key = label
			}
			if answer.FileURL != "" {
				formatted.Answers[key] = answer.FileURL
			} else {
				formatted.Answers[key] = answer.Value
			}
		}
		out[i] = formatted
	}
	return out, nil
}

// AsCSV renders the form's completed responses as CSV, most recent first.
// Columns are the three response attributes followed by every form field in
// order; a response's answer lands under its field's column, blank when the
// field went unanswered.
func AsCSV(db *gorm.DB, form *forms.Form) (string, error) {
	complete, err := responses.GetCompleteResponses(db, form.ID)
	if err != nil {
		return "", err
	}

	var sb strings.Builder

	headers := []string{"Response ID", "Submission Date", "Time Spent (seconds)"}
	for _, field := range form.Fields {
		headers = append(headers, escapeCSV(field.Label))
	}
	sb.WriteString(strings.Join(headers, ","))
	sb.WriteString("\n")

	for _, response := range complete {
		row := []string{
			strconv.FormatUint(uint64(response.ID), 10),
			formatCompletedAt(response.CompletedAt),
			strconv.Itoa(response.TimeSpent),
		}

		byField := make(map[string]responses.Answer, len(response.Answers))
		for _, answer := range response.Answers {
			byField[answer.FieldID] = answer
		}

		for _, field := range form.Fields {
			answer, ok := byField[field.ID]
			if !ok {
				row = append(row, "")
				continue
			}
			row = append(row, csvValue(field, answer))
		}

		sb.WriteString(strings.Join(row, ","))
		sb.WriteString("\n")
	}

	return sb.String(), nil
}

// Filename derives the download filename for a form's export.
func Filename(form *forms.Form, format string) string {
	title := strings.Join(strings.Fields(form.Title), "_")
	if title == "" {
		title = "form"
	}
	return fmt.Sprintf("%s_responses.%s", title, format)
}

func csvValue(field forms.Field, answer responses.Answer) string {
	if field.Type == forms.FieldCheckbox {
		if vals, ok := answer.Value.([]interface{}); ok {
			parts := make([]string, len(vals))
			for i, v := range vals {
				parts[i] = formatScalar(v)
			}
			// Multi-select cells are always quoted, even with one choice.
			joined := strings.Join(parts, ", ")
			return `"` + strings.ReplaceAll(joined, `"`, `""`) + `"`
		}
	}
	if answer.FileURL != "" {
		return answer.FileURL
	}
	if answer.Value == nil {
		return ""
	}
	return escapeCSV(formatScalar(answer.Value))
}

// escapeCSV quotes a value containing commas, quotes or newlines, doubling
// any embedded quotes.
func escapeCSV(value string) string {
	if !strings.ContainsAny(value, ",\"\n") {
		return value
	}
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}

func formatScalar(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func formatCompletedAt(completedAt *time.Time) string {
	if completedAt == nil {
		return ""
	}
	return completedAt.UTC().Format(time.RFC3339)
}

func labelMap(form *forms.Form) map[string]string {
	labels := make(map[string]string, len(form.Fields))
	for _, field := range form.Fields {
		labels[field.ID] = field.Label
	}
	return labels
}
