// Package seeder generates demo data for local development: a demo account,
// a published form covering every field kind, and a month of synthetic
// traffic with partial and completed responses.
package seeder

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"log/slog"

	"github.com/google/uuid"
	"github.com/karloscodes/cartridge"

	"formlane/internal/config"
	"formlane/internal/forms"
	"formlane/internal/responses"
	"formlane/internal/users"
	"formlane/internal/visits"
)

const (
	demoEmail    = "demo@formlane.local"
	demoPassword = "password123"
)

// Seeder handles the demo data seeding process.
type Seeder struct {
	DBManager  cartridge.DBManager
	Logger     *slog.Logger
	VisitCount int
}

// NewSeeder creates a new seeder instance
func NewSeeder(dbManager cartridge.DBManager, logger *slog.Logger, visitCount int) *Seeder {
	if logger == nil {
		logger = slog.Default()
	}
	if visitCount <= 0 {
		visitCount = 200
	}
	return &Seeder{
		DBManager:  dbManager,
		Logger:     logger,
		VisitCount: visitCount,
	}
}

// Seed creates the demo account and form, then generates traffic for it.
func (s *Seeder) Seed(ctx context.Context) error {
	start := time.Now()
	db := s.DBManager.GetConnection()

	user, err := users.FindByEmail(db, demoEmail)
	if err != nil {
		user, err = users.CreateUser(s.Logger, db, "Demo User", demoEmail, demoPassword, users.RoleUser)
		if err != nil {
			return fmt.Errorf("failed to create demo user: %w", err)
		}
		s.Logger.Info("Created demo user", slog.String("email", demoEmail))
	}

	form, err := s.demoForm(user.ID)
	if err != nil {
		return err
	}

	if err := s.generateTraffic(ctx, form); err != nil {
		return fmt.Errorf("failed to generate traffic: %w", err)
	}

	s.Logger.Info("Seeding completed",
		slog.String("form", form.Slug),
		slog.Duration("elapsed", time.Since(start)))
	return nil
}

func (s *Seeder) demoForm(userID uint) (*forms.Form, error) {
	db := s.DBManager.GetConnection()

	existing, err := forms.GetFormsByUser(db, userID)
	if err == nil {
		for i := range existing {
			if existing[i].Title == "Customer Feedback" {
				return &existing[i], nil
			}
		}
	}

	form := &forms.Form{
		UserID:      userID,
		Title:       "Customer Feedback",
		Description: "Tell us how we are doing.",
		Fields: forms.FieldList{
			{ID: "name", Type: forms.FieldText, Label: "Your name", Required: true},
			{ID: "feedback", Type: forms.FieldLongText, Label: "What can we improve?"},
			{ID: "score", Type: forms.FieldNumber, Label: "How likely are you to recommend us? (0-10)"},
			{ID: "channels", Type: forms.FieldCheckbox, Label: "Where did you hear about us?", Options: []forms.Option{
				{Label: "Search", Value: "search"},
				{Label: "Social media", Value: "social"},
				{Label: "A friend", Value: "friend"},
			}},
			{ID: "plan", Type: forms.FieldRadio, Label: "Which plan are you on?", Options: []forms.Option{
				{Label: "Free", Value: "free"},
				{Label: "Pro", Value: "pro"},
				{Label: "Enterprise", Value: "enterprise"},
			}},
			{ID: "country", Type: forms.FieldDropdown, Label: "Country", Options: []forms.Option{
				{Label: "Spain", Value: "ES"},
				{Label: "Germany", Value: "DE"},
				{Label: "United States", Value: "US"},
			}},
			{ID: "purchase_date", Type: forms.FieldDate, Label: "When did you sign up?"},
			{ID: "screenshot", Type: forms.FieldFile, Label: "Attach a screenshot (optional)"},
		},
	}
	if err := forms.CreateForm(s.Logger, db, form); err != nil {
		return nil, fmt.Errorf("failed to create demo form: %w", err)
	}
	if err := forms.PublishForm(s.Logger, db, form); err != nil {
		return nil, fmt.Errorf("failed to publish demo form: %w", err)
	}
	s.Logger.Info("Created demo form", slog.String("slug", form.Slug))
	return form, nil
}

var seedUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Safari/605.1.15",
	"Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1",
	"Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Mobile Safari/537.36",
	"Mozilla/5.0 (iPad; CPU OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Tablet Safari/604.1",
	"Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0",
}

var seedReferrers = []string{
	"", "", "",
	"https://www.google.com/",
	"https://twitter.com/",
	"https://news.ycombinator.com/",
}

func (s *Seeder) generateTraffic(ctx context.Context, form *forms.Form) error {
	db := s.DBManager.GetConnection()
	created := 0

	for i := 0; i < s.VisitCount; i++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		startedAt := time.Now().Add(-time.Duration(rand.IntN(30*24*60*60)) * time.Second)
		meta := visits.Metadata{
			UserAgent: seedUserAgents[rand.IntN(len(seedUserAgents))],
			IPAddress: fmt.Sprintf("203.0.113.%d", rand.IntN(254)+1),
			Referrer:  seedReferrers[rand.IntN(len(seedReferrers))],
		}

		visit, err := visits.GetOrCreateVisit(s.Logger, db, form, uuid.NewString(), meta)
		if err != nil {
			s.Logger.Error("Failed to create seed visit", slog.Any("error", err))
			continue
		}
		// Backdate so trends and hourly charts spread over the month.
		db.Model(visit).Updates(map[string]interface{}{
			"started_at": startedAt,
			"created_at": startedAt,
		})

		roll := rand.Float64()
		switch {
		case roll < 0.55:
			if err := s.submitComplete(form, visit); err != nil {
				s.Logger.Error("Failed to seed complete response", slog.Any("error", err))
			} else {
				created++
			}
		case roll < 0.70:
			if err := s.submitPartial(form, visit); err != nil {
				s.Logger.Error("Failed to seed partial response", slog.Any("error", err))
			}
		}
		// The rest bounce without answering anything.
	}

	s.Logger.Info("Generated seed traffic",
		slog.Int("visits", s.VisitCount),
		slog.Int("completedResponses", created))
	return nil
}

func (s *Seeder) submitComplete(form *forms.Form, visit *visits.Visit) error {
	answers := responses.AnswerList{
		{FieldID: "name", Value: fmt.Sprintf("Visitor %d", rand.IntN(10000))},
		{FieldID: "feedback", Value: "Keep the exports coming, the CSV one saves me hours."},
		{FieldID: "score", Value: float64(rand.IntN(11))},
		{FieldID: "channels", Value: []interface{}{"search", "friend"}[:rand.IntN(2)+1]},
		{FieldID: "plan", Value: []string{"free", "pro", "enterprise"}[rand.IntN(3)]},
		{FieldID: "country", Value: []string{"ES", "DE", "US"}[rand.IntN(3)]},
		{FieldID: "purchase_date", Value: "2026-0" + fmt.Sprint(rand.IntN(8)+1) + "-15"},
	}
	return s.submit(form, visit, answers, true)
}

func (s *Seeder) submitPartial(form *forms.Form, visit *visits.Visit) error {
	answers := responses.AnswerList{
		{FieldID: "name", Value: fmt.Sprintf("Visitor %d", rand.IntN(10000))},
		{FieldID: "score", Value: float64(rand.IntN(11))},
	}
	return s.submit(form, visit, answers, false)
}

func (s *Seeder) submit(form *forms.Form, visit *visits.Visit, answers responses.AnswerList, complete bool) error {
	db := s.DBManager.GetConnection()
	_, err := responses.SubmitAnswers(s.Logger, config.GetConfig(), db, form, visit, responses.Submission{
		Answers:    answers,
		IsComplete: complete,
		Meta: visits.Metadata{
			UserAgent: visit.UserAgent,
			IPAddress: visit.IPAddress,
			Referrer:  visit.Referrer,
		},
	})
	return err
}
