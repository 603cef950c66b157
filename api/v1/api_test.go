package v1_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"formlane/internal/forms"
	"formlane/internal/testsupport"
	"formlane/internal/visits"
)

type envelope struct {
	Success bool            `json:"success"`
	Token   string          `json:"token"`
	Error   string          `json:"error"`
	VisitID string          `json:"visitId"`
	Data    json.RawMessage `json:"data"`
}

func request(t *testing.T, app *fiber.App, method, path, token string, body interface{}) (*http.Response, envelope) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	var env envelope
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &env))
	}
	return resp, env
}

func TestHealthEndpoint(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	app := testsupport.CreateTestApp(t, db)

	resp, _ := request(t, app, "GET", "/_health", "", nil)
	assert.Equal(t, 200, resp.StatusCode)
}

func TestAuthFlow(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	app := testsupport.CreateTestApp(t, db)

	resp, env := request(t, app, "POST", "/api/v1/auth/register", "", map[string]string{
		"name":     "Ana Tester",
		"email":    "ana@example.com",
		"password": "password123",
	})
	require.Equal(t, 201, resp.StatusCode)
	require.True(t, env.Success)
	require.NotEmpty(t, env.Token)

	t.Run("login returns a token", func(t *testing.T) {
		resp, env := request(t, app, "POST", "/api/v1/auth/login", "", map[string]string{
			"email":    "ana@example.com",
			"password": "password123",
		})
		assert.Equal(t, 200, resp.StatusCode)
		assert.NotEmpty(t, env.Token)
	})

	t.Run("wrong password is rejected", func(t *testing.T) {
		resp, env := request(t, app, "POST", "/api/v1/auth/login", "", map[string]string{
			"email":    "ana@example.com",
			"password": "wrong-password",
		})
		assert.Equal(t, 401, resp.StatusCode)
		assert.False(t, env.Success)
	})

	t.Run("me requires a token", func(t *testing.T) {
		resp, _ := request(t, app, "GET", "/api/v1/auth/me", "", nil)
		assert.Equal(t, 401, resp.StatusCode)

		resp, env := request(t, app, "GET", "/api/v1/auth/me", env.Token, nil)
		assert.Equal(t, 200, resp.StatusCode)

		var user struct {
			Email string `json:"email"`
		}
		require.NoError(t, json.Unmarshal(env.Data, &user))
		assert.Equal(t, "ana@example.com", user.Email)
	})
}

func TestGetPublicFormRegistersVisit(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	app := testsupport.CreateTestApp(t, db)
	user := testsupport.CreateTestUser(t, db, "owner@example.com", "password123")
	form := testsupport.CreateTestForm(t, db, user.ID)

	resp, env := request(t, app, "GET", "/api/v1/f/"+form.Slug, "", nil)
	require.Equal(t, 200, resp.StatusCode)

	var payload struct {
		VisitID string `json:"visitId"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &payload))
	assert.NotEmpty(t, payload.VisitID)

	total, _, err := visits.CountByForm(db, form.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)

	t.Run("reload with the same visitId stays one visit", func(t *testing.T) {
		resp, _ := request(t, app, "GET",
			fmt.Sprintf("/api/v1/f/%s?visitId=%s", form.Slug, payload.VisitID), "", nil)
		assert.Equal(t, 200, resp.StatusCode)

		total, _, err := visits.CountByForm(db, form.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(1), total)
	})

	t.Run("unknown slug is a 404", func(t *testing.T) {
		resp, _ := request(t, app, "GET", "/api/v1/f/nope", "", nil)
		assert.Equal(t, 404, resp.StatusCode)
	})
}

func TestSubmitResponseOverHTTP(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	app := testsupport.CreateTestApp(t, db)
	user := testsupport.CreateTestUser(t, db, "owner@example.com", "password123")
	form := testsupport.CreateTestForm(t, db, user.ID)
	path := fmt.Sprintf("/api/v1/forms/%d/responses", form.ID)

	resp, env := request(t, app, "POST", path, "", map[string]interface{}{
		"visitId": "http-visit-1",
		"answers": []map[string]interface{}{
			{"fieldId": "name", "value": "Ana"},
		},
	})
	require.Equal(t, 201, resp.StatusCode)

	// The body carries the persisted response as data and echoes the
	// visitId alongside it.
	assert.Equal(t, "http-visit-1", env.VisitID)

	var first struct {
		ID         uint   `json:"id"`
		VisitID    string `json:"visit_id"`
		IsComplete bool   `json:"is_complete"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &first))
	require.NotZero(t, first.ID)
	assert.Equal(t, "http-visit-1", first.VisitID)
	assert.False(t, first.IsComplete)

	t.Run("second batch merges into the same response", func(t *testing.T) {
		resp, env := request(t, app, "POST", path, "", map[string]interface{}{
			"visitId":    "http-visit-1",
			"answers":    []map[string]interface{}{{"fieldId": "email", "value": "ana@example.com"}},
			"isComplete": true,
		})
		require.Equal(t, 201, resp.StatusCode)
		assert.Equal(t, "http-visit-1", env.VisitID)

		var second struct {
			ID         uint `json:"id"`
			IsComplete bool `json:"is_complete"`
			Answers    []struct {
				FieldID string `json:"fieldId"`
			} `json:"answers"`
		}
		require.NoError(t, json.Unmarshal(env.Data, &second))
		assert.Equal(t, first.ID, second.ID)
		assert.True(t, second.IsComplete)
		require.Len(t, second.Answers, 2)
		assert.Equal(t, "name", second.Answers[0].FieldID)
		assert.Equal(t, "email", second.Answers[1].FieldID)

		visit, err := visits.FindByVisitID(db, "http-visit-1")
		require.NoError(t, err)
		assert.True(t, visit.Completed)
	})

	t.Run("empty batch is rejected", func(t *testing.T) {
		resp, _ := request(t, app, "POST", path, "", map[string]interface{}{
			"visitId": "http-visit-2",
			"answers": []map[string]interface{}{},
		})
		assert.Equal(t, 400, resp.StatusCode)
	})
}

func TestSubmitToUnpublishedForm(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	app := testsupport.CreateTestApp(t, db)
	user := testsupport.CreateTestUser(t, db, "owner@example.com", "password123")
	form := testsupport.CreateTestForm(t, db, user.ID)
	require.NoError(t, db.Model(form).Update("status", forms.StatusDraft).Error)

	resp, env := request(t, app, "POST",
		fmt.Sprintf("/api/v1/forms/%d/responses", form.ID), "", map[string]interface{}{
			"visitId": "draft-visit",
			"answers": []map[string]interface{}{{"fieldId": "name", "value": "x"}},
		})
	assert.Equal(t, 403, resp.StatusCode)
	assert.False(t, env.Success)

	// Neither a visit nor a response came out of the rejected call.
	total, _, err := visits.CountByForm(db, form.ID)
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestResponseAccessControl(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	app := testsupport.CreateTestApp(t, db)
	owner := testsupport.CreateTestUser(t, db, "owner@example.com", "password123")
	testsupport.CreateTestUser(t, db, "other@example.com", "password123")
	form := testsupport.CreateTestForm(t, db, owner.ID)
	path := fmt.Sprintf("/api/v1/forms/%d/responses", form.ID)

	login := func(email string) string {
		_, env := request(t, app, "POST", "/api/v1/auth/login", "", map[string]string{
			"email":    email,
			"password": "password123",
		})
		require.NotEmpty(t, env.Token)
		return env.Token
	}

	resp, _ := request(t, app, "GET", path, "", nil)
	assert.Equal(t, 401, resp.StatusCode)

	resp, _ = request(t, app, "GET", path, login("other@example.com"), nil)
	assert.Equal(t, 403, resp.StatusCode)

	resp, env := request(t, app, "GET", path, login("owner@example.com"), nil)
	assert.Equal(t, 200, resp.StatusCode)
	assert.True(t, env.Success)
}

func TestExportEndpoint(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	app := testsupport.CreateTestApp(t, db)
	owner := testsupport.CreateTestUser(t, db, "owner@example.com", "password123")
	form := testsupport.CreateTestForm(t, db, owner.ID)

	_, env := request(t, app, "POST", "/api/v1/auth/login", "", map[string]string{
		"email":    "owner@example.com",
		"password": "password123",
	})
	token := env.Token

	req := httptest.NewRequest("GET",
		fmt.Sprintf("/api/v1/forms/%d/export?format=csv", form.ID), nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	assert.Equal(t, 200, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/csv")
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "attachment")

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "Response ID,Submission Date,Time Spent (seconds)")

	t.Run("unknown format is rejected", func(t *testing.T) {
		resp, _ := request(t, app, "GET",
			fmt.Sprintf("/api/v1/forms/%d/export?format=xml", form.ID), token, nil)
		assert.Equal(t, 400, resp.StatusCode)
	})
}
