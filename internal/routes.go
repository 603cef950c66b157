package internal

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/karloscodes/cartridge"
	cartridgemiddleware "github.com/karloscodes/cartridge/middleware"

	v1 "formlane/api/v1"
	"formlane/internal/auth"
	"formlane/internal/config"
	"formlane/internal/uploads"
)

// publicCORSConfig is shared by every endpoint the form renderer calls.
// Forms embed anywhere, so cross-origin access stays permissive.
var publicCORSConfig = &cors.Config{
	AllowOrigins: "*",
	AllowMethods: "POST,GET,OPTIONS",
	AllowHeaders: "Origin, Content-Type, Accept, Authorization, Referrer, User-Agent",
}

// MountAppRoutes mounts all application routes using cartridge's route API.
func MountAppRoutes(srv *cartridge.Server) {
	cfg := config.GetConfig()
	db := srv.GetDBManager().GetConnection()
	logger := srv.GetLogger()

	store, err := uploads.NewBlobStore(cfg)
	if err != nil {
		logger.Error("Blob store misconfigured, falling back to local storage", "error", err)
		store = uploads.NewLocalStore(cfg.DatabasePath+"/uploads", cfg.PublicBaseURL)
	}
	if local, ok := store.(*uploads.LocalStore); ok {
		srv.App().Static("/uploads", local.Dir())
	}

	api := v1.NewAPI(cfg, logger, store)

	requireAuth := auth.RequireAuth(cfg, db, logger)
	optionalAuth := auth.OptionalAuth(cfg, db, logger)
	requireAdmin := auth.RequireAdmin()

	// Rate limiting only bites in production; in development and test it
	// would interfere with rapid iteration and E2E suites.
	conditionalRateLimiter := func(limiter fiber.Handler) fiber.Handler {
		return func(c *fiber.Ctx) error {
			if cfg.IsProduction() {
				return limiter(c)
			}
			return c.Next()
		}
	}

	// Public submission endpoints: 70 requests per minute per IP.
	publicRateLimiter := conditionalRateLimiter(cartridgemiddleware.RateLimiter(
		cartridgemiddleware.WithMax(70),
		cartridgemiddleware.WithDuration(time.Minute),
	))

	// Credential endpoints get a much tighter budget against brute force.
	authRateLimiter := conditionalRateLimiter(cartridgemiddleware.RateLimiter(
		cartridgemiddleware.WithMax(10),
		cartridgemiddleware.WithDuration(time.Minute),
	))

	// Renderer-facing endpoints: CORS first so rejections carry CORS headers.
	publicAPIConfig := &cartridge.RouteConfig{
		EnableCORS:       true,
		CustomMiddleware: []fiber.Handler{publicRateLimiter},
		CORSConfig:       publicCORSConfig,
	}

	// Submissions are writes and may carry an optional bearer token that
	// associates the response with an account.
	publicSubmitConfig := &cartridge.RouteConfig{
		EnableCORS:       true,
		WriteConcurrency: false,
		CustomMiddleware: []fiber.Handler{publicRateLimiter, optionalAuth},
		CORSConfig:       publicCORSConfig,
	}

	credentialConfig := &cartridge.RouteConfig{
		CustomMiddleware: []fiber.Handler{authRateLimiter},
	}

	protectedConfig := &cartridge.RouteConfig{
		CustomMiddleware: []fiber.Handler{requireAuth},
	}

	adminConfig := &cartridge.RouteConfig{
		CustomMiddleware: []fiber.Handler{requireAuth, requireAdmin},
	}

	// Form reads work for anyone when the form is published, and for the
	// owner in any status.
	formReadConfig := &cartridge.RouteConfig{
		CustomMiddleware: []fiber.Handler{optionalAuth},
	}

	noContent := func(ctx *cartridge.Context) error {
		return ctx.SendStatus(fiber.StatusNoContent)
	}

	// === HEALTH ===
	srv.Get("/_health", api.HealthAction)
	srv.Head("/_health", api.HealthAction)

	// === PUBLIC RENDERER ROUTES ===
	srv.Get("/api/v1/f/:slug", api.GetPublicFormAction, publicAPIConfig)
	srv.Options("/api/v1/f/:slug", noContent, publicAPIConfig)
	srv.Post("/api/v1/forms/:formId/visits", api.RegisterVisitAction, publicSubmitConfig)
	srv.Options("/api/v1/forms/:formId/visits", noContent, publicAPIConfig)
	srv.Post("/api/v1/forms/:formId/responses", api.SubmitResponseAction, publicSubmitConfig)
	srv.Options("/api/v1/forms/:formId/responses", noContent, publicAPIConfig)

	// === AUTHENTICATION ROUTES ===
	srv.Post("/api/v1/auth/register", api.RegisterAction, credentialConfig)
	srv.Post("/api/v1/auth/login", api.LoginAction, credentialConfig)
	srv.Get("/api/v1/auth/logout", api.LogoutAction)
	srv.Get("/api/v1/auth/me", api.MeAction, protectedConfig)
	srv.Put("/api/v1/auth/updatedetails", api.UpdateDetailsAction, protectedConfig)
	srv.Put("/api/v1/auth/updatepassword", api.UpdatePasswordAction, protectedConfig)
	srv.Post("/api/v1/auth/forgotpassword", api.ForgotPasswordAction, credentialConfig)
	srv.Put("/api/v1/auth/resetpassword/:token", api.ResetPasswordAction, credentialConfig)

	// === FORM MANAGEMENT ROUTES ===
	srv.Get("/api/v1/forms", api.ListFormsAction, protectedConfig)
	srv.Post("/api/v1/forms", api.CreateFormAction, protectedConfig)
	srv.Get("/api/v1/forms/:id", api.GetFormAction, formReadConfig)
	srv.Put("/api/v1/forms/:id", api.UpdateFormAction, protectedConfig)
	srv.Delete("/api/v1/forms/:id", api.DeleteFormAction, protectedConfig)
	srv.Put("/api/v1/forms/:id/publish", api.PublishFormAction, protectedConfig)
	srv.Put("/api/v1/forms/:id/archive", api.ArchiveFormAction, protectedConfig)
	srv.Post("/api/v1/forms/:id/upload", api.UploadFormAssetAction, protectedConfig)

	// === RESPONSE MANAGEMENT ROUTES ===
	srv.Get("/api/v1/forms/:formId/responses", api.ListResponsesAction, protectedConfig)
	srv.Get("/api/v1/responses/:id", api.GetResponseAction, protectedConfig)
	srv.Delete("/api/v1/responses/:id", api.DeleteResponseAction, protectedConfig)

	// === ANALYTICS AND EXPORT ROUTES ===
	srv.Get("/api/v1/forms/:id/analytics", api.FormAnalyticsAction, protectedConfig)
	srv.Get("/api/v1/forms/:id/analytics/fields", api.FieldAnalyticsAction, protectedConfig)
	srv.Get("/api/v1/forms/:id/analytics/visits", api.VisitAnalyticsAction, protectedConfig)
	srv.Get("/api/v1/forms/:id/export", api.ExportResponsesAction, protectedConfig)

	// === USER ADMINISTRATION ROUTES ===
	srv.Get("/api/v1/users", api.ListUsersAction, adminConfig)
	srv.Post("/api/v1/users", api.CreateUserAction, adminConfig)
	srv.Get("/api/v1/users/:id", api.GetUserAction, adminConfig)
	srv.Put("/api/v1/users/:id", api.UpdateUserAction, adminConfig)
	srv.Delete("/api/v1/users/:id", api.DeleteUserAction, adminConfig)
}
