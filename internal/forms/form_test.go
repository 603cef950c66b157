package forms_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"formlane/internal/forms"
	"formlane/internal/responses"
	"formlane/internal/testsupport"
	"formlane/internal/visits"
)

func TestFieldValidate(t *testing.T) {
	min := 1.0
	max := 10.0

	tests := []struct {
		name    string
		field   forms.Field
		wantErr bool
	}{
		{
			name:  "text field",
			field: forms.Field{ID: "name", Type: forms.FieldText, Label: "Name"},
		},
		{
			name:    "text field with options",
			field:   forms.Field{ID: "name", Type: forms.FieldText, Label: "Name", Options: []forms.Option{{Label: "A", Value: "a"}}},
			wantErr: true,
		},
		{
			name:    "radio without options",
			field:   forms.Field{ID: "plan", Type: forms.FieldRadio, Label: "Plan"},
			wantErr: true,
		},
		{
			name:  "dropdown with options",
			field: forms.Field{ID: "country", Type: forms.FieldDropdown, Label: "Country", Options: []forms.Option{{Label: "Spain", Value: "ES"}}},
		},
		{
			name:  "number with bounds",
			field: forms.Field{ID: "score", Type: forms.FieldNumber, Label: "Score", Min: &min, Max: &max},
		},
		{
			name:    "number with inverted bounds",
			field:   forms.Field{ID: "score", Type: forms.FieldNumber, Label: "Score", Min: &max, Max: &min},
			wantErr: true,
		},
		{
			name:  "file upload without settings",
			field: forms.Field{ID: "doc", Type: forms.FieldFile, Label: "Document"},
		},
		{
			name:    "unknown type",
			field:   forms.Field{ID: "x", Type: "slider", Label: "X"},
			wantErr: true,
		},
		{
			name:    "missing id",
			field:   forms.Field{Type: forms.FieldText, Label: "X"},
			wantErr: true,
		},
		{
			name:    "missing label",
			field:   forms.Field{ID: "x", Type: forms.FieldText},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.field.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateFieldsRejectsDuplicateIDs(t *testing.T) {
	form := &forms.Form{
		Fields: forms.FieldList{
			{ID: "name", Type: forms.FieldText, Label: "Name"},
			{ID: "name", Type: forms.FieldLongText, Label: "Name again"},
		},
	}
	assert.Error(t, form.ValidateFields())
}

func TestCreateForm(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	logger := testsupport.GetLogger()
	user := testsupport.CreateTestUser(t, db, "owner@example.com", "password123")

	t.Run("creates draft with derived slug", func(t *testing.T) {
		form := &forms.Form{
			UserID: user.ID,
			Title:  "Customer Survey",
			Fields: forms.FieldList{{ID: "q1", Type: forms.FieldText, Label: "Q1"}},
		}
		require.NoError(t, forms.CreateForm(logger, db, form))

		assert.Equal(t, forms.StatusDraft, form.Status)
		assert.Equal(t, "customer-survey", form.Slug)
		assert.False(t, form.IsAccepting())
	})

	t.Run("suffixes taken slugs", func(t *testing.T) {
		form := &forms.Form{
			UserID: user.ID,
			Title:  "Customer Survey",
			Fields: forms.FieldList{{ID: "q1", Type: forms.FieldText, Label: "Q1"}},
		}
		require.NoError(t, forms.CreateForm(logger, db, form))

		assert.NotEqual(t, "customer-survey", form.Slug)
		assert.Contains(t, form.Slug, "customer-survey-")
	})

	t.Run("rejects empty title", func(t *testing.T) {
		form := &forms.Form{UserID: user.ID}
		assert.Error(t, forms.CreateForm(logger, db, form))
	})
}

func TestFormLifecycle(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	logger := testsupport.GetLogger()
	user := testsupport.CreateTestUser(t, db, "lifecycle@example.com", "password123")

	form := &forms.Form{
		UserID: user.ID,
		Title:  "Lifecycle",
		Fields: forms.FieldList{{ID: "q1", Type: forms.FieldText, Label: "Q1"}},
	}
	require.NoError(t, forms.CreateForm(logger, db, form))

	t.Run("draft cannot be archived", func(t *testing.T) {
		assert.ErrorIs(t, forms.ArchiveForm(logger, db, form), forms.ErrInvalidStatusTransition)
	})

	t.Run("publish makes the form accept responses", func(t *testing.T) {
		require.NoError(t, forms.PublishForm(logger, db, form))
		assert.Equal(t, forms.StatusPublished, form.Status)
		assert.True(t, form.IsAccepting())

		reloaded, err := forms.GetFormByID(db, form.ID)
		require.NoError(t, err)
		assert.Equal(t, forms.StatusPublished, reloaded.Status)
	})

	t.Run("publishing again is a no-op", func(t *testing.T) {
		assert.NoError(t, forms.PublishForm(logger, db, form))
	})

	t.Run("archive stops intake", func(t *testing.T) {
		require.NoError(t, forms.ArchiveForm(logger, db, form))
		assert.False(t, form.IsAccepting())
	})

	t.Run("archived form can be republished", func(t *testing.T) {
		require.NoError(t, forms.PublishForm(logger, db, form))
		assert.True(t, form.IsAccepting())
	})
}

func TestPublicURL(t *testing.T) {
	form := &forms.Form{Slug: "my-survey", Status: forms.StatusPublished}
	assert.Equal(t, "https://forms.example.com/f/my-survey", form.PublicURL("https://forms.example.com/"))

	draft := &forms.Form{Slug: "my-survey", Status: forms.StatusDraft}
	assert.Empty(t, draft.PublicURL("https://forms.example.com"))
}

func TestDeleteFormCascades(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	logger := testsupport.GetLogger()
	user := testsupport.CreateTestUser(t, db, "cascade@example.com", "password123")
	form := testsupport.CreateTestForm(t, db, user.ID)

	visit := testsupport.CreateTestVisit(t, db, form.ID, form.CreatedAt)
	testsupport.CreateTestResponse(t, db, form.ID, visit.VisitID,
		responses.AnswerList{{FieldID: "name", Value: "Ana"}}, true, 30)

	require.NoError(t, forms.DeleteForm(logger, db, form.ID))

	_, err := forms.GetFormByID(db, form.ID)
	var notFound *forms.FormNotFoundError
	assert.ErrorAs(t, err, &notFound)

	remaining, err := responses.GetResponsesByForm(db, form.ID)
	require.NoError(t, err)
	assert.Empty(t, remaining)

	visitsLeft, err := visits.GetVisitsByForm(db, form.ID)
	require.NoError(t, err)
	assert.Empty(t, visitsLeft)
}

func TestGetFormsWithStats(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	user := testsupport.CreateTestUser(t, db, "stats@example.com", "password123")
	form := testsupport.CreateTestForm(t, db, user.ID)

	v1 := testsupport.CreateTestVisit(t, db, form.ID, form.CreatedAt)
	v2 := testsupport.CreateTestVisit(t, db, form.ID, form.CreatedAt)
	testsupport.CreateTestResponse(t, db, form.ID, v1.VisitID,
		responses.AnswerList{{FieldID: "name", Value: "Ana"}}, true, 30)
	testsupport.CreateTestResponse(t, db, form.ID, v2.VisitID,
		responses.AnswerList{{FieldID: "name", Value: "Bo"}}, false, 0)

	stats, err := forms.GetFormsWithStats(db, user.ID)
	require.NoError(t, err)
	require.Len(t, stats, 1)

	// Only the completed response counts.
	assert.Equal(t, int64(1), stats[0].ResponseCount)
	assert.Equal(t, int64(1), stats[0].ResponsesToday)
}
