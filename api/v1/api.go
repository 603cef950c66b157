package v1

import (
	"errors"
	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/karloscodes/cartridge"

	"formlane/internal/config"
	"formlane/internal/forms"
	"formlane/internal/mailer"
	"formlane/internal/responses"
	"formlane/internal/uploads"
	"formlane/internal/users"
	"formlane/internal/visits"
)

// API holds the dependencies shared by every HTTP handler. Routes mount
// its methods, so nothing in this package reaches for package-level state.
type API struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    uploads.BlobStore
	resolver *uploads.Resolver
	mailer   *mailer.Mailer
	validate *validator.Validate
}

func NewAPI(cfg *config.Config, logger *slog.Logger, store uploads.BlobStore) *API {
	return &API{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		resolver: uploads.NewResolver(logger, store, cfg.UploadMaxBytes),
		mailer:   mailer.New(cfg, logger),
		validate: validator.New(),
	}
}

// HealthAction answers liveness probes.
func (a *API) HealthAction(ctx *cartridge.Context) error {
	return ctx.Status(200).JSON(map[string]interface{}{"status": "ok"})
}

func respondData(ctx *cartridge.Context, status int, data interface{}) error {
	return ctx.Status(status).JSON(map[string]interface{}{
		"success": true,
		"data":    data,
	})
}

func respondError(ctx *cartridge.Context, status int, message string) error {
	return ctx.Status(status).JSON(map[string]interface{}{
		"success": false,
		"error":   message,
	})
}

// handleError funnels domain errors into consistent JSON error responses.
func (a *API) handleError(ctx *cartridge.Context, err error) error {
	var formNotFound *forms.FormNotFoundError
	var visitNotFound *visits.VisitNotFoundError
	var responseNotFound *responses.ResponseNotFoundError

	switch {
	case errors.As(err, &formNotFound):
		return respondError(ctx, 404, formNotFound.Error())
	case errors.As(err, &visitNotFound):
		return respondError(ctx, 404, visitNotFound.Error())
	case errors.As(err, &responseNotFound):
		return respondError(ctx, 404, responseNotFound.Error())
	case errors.Is(err, forms.ErrNotAcceptingResponses):
		return respondError(ctx, 403, err.Error())
	case errors.Is(err, forms.ErrInvalidStatusTransition):
		return respondError(ctx, 400, err.Error())
	case errors.Is(err, users.ErrUserExists):
		return respondError(ctx, 400, err.Error())
	case errors.Is(err, users.ErrResetTokenInvalid):
		return respondError(ctx, 400, err.Error())
	case errors.Is(err, users.ErrUserNotFound):
		return respondError(ctx, 404, "user not found")
	default:
		a.logger.Error("request failed", "path", ctx.Path(), "error", err)
		return respondError(ctx, 500, "internal server error")
	}
}

func (a *API) validationError(ctx *cartridge.Context, err error) error {
	a.logger.Warn("invalid request payload", "path", ctx.Path(), "error", err)
	return respondError(ctx, 400, "invalid request payload")
}
