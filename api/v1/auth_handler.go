package v1

import (
	"errors"
	"fmt"

	"github.com/karloscodes/cartridge"

	"formlane/internal/auth"
	"formlane/internal/users"
)

type registerRequest struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type updateDetailsRequest struct {
	Name  string `json:"name"`
	Email string `json:"email" validate:"omitempty,email"`
}

type updatePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,min=8"`
}

type forgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type resetPasswordRequest struct {
	Password string `json:"password" validate:"required,min=8"`
}

// userPayload is the public shape of an account in API responses.
type userPayload struct {
	ID    uint   `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

func publicUser(u *users.User) userPayload {
	return userPayload{ID: u.ID, Name: u.Name, Email: u.Email, Role: u.Role}
}

func (a *API) respondWithToken(ctx *cartridge.Context, status int, user *users.User) error {
	token, err := auth.IssueToken(a.cfg, user)
	if err != nil {
		return a.handleError(ctx, err)
	}
	return ctx.Status(status).JSON(map[string]interface{}{
		"success": true,
		"token":   token,
		"data":    publicUser(user),
	})
}

// RegisterAction creates an account and signs the new user in.
func (a *API) RegisterAction(ctx *cartridge.Context) error {
	var req registerRequest
	if err := ctx.BodyParser(&req); err != nil {
		return a.validationError(ctx, err)
	}
	if err := a.validate.Struct(req); err != nil {
		return a.validationError(ctx, err)
	}

	user, err := users.CreateUser(ctx.Logger, ctx.DB(), req.Name, req.Email, req.Password, users.RoleUser)
	if err != nil {
		return a.handleError(ctx, err)
	}

	return a.respondWithToken(ctx, 201, user)
}

// LoginAction exchanges credentials for a bearer token. Bad credentials get
// a uniform 401 regardless of whether the account exists.
func (a *API) LoginAction(ctx *cartridge.Context) error {
	var req loginRequest
	if err := ctx.BodyParser(&req); err != nil {
		return a.validationError(ctx, err)
	}
	if err := a.validate.Struct(req); err != nil {
		return a.validationError(ctx, err)
	}

	user, err := users.Authenticate(ctx.DB(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, users.ErrUserNotFound) {
			return respondError(ctx, 401, "invalid credentials")
		}
		return a.handleError(ctx, err)
	}

	return a.respondWithToken(ctx, 200, user)
}

// LogoutAction exists for client symmetry. Tokens are stateless, so the
// client discards its copy and the server just acknowledges.
func (a *API) LogoutAction(ctx *cartridge.Context) error {
	return respondData(ctx, 200, map[string]interface{}{})
}

// MeAction returns the authenticated user.
func (a *API) MeAction(ctx *cartridge.Context) error {
	user := auth.CurrentUser(ctx.Ctx)
	return respondData(ctx, 200, publicUser(user))
}

// UpdateDetailsAction changes the authenticated user's name or email.
func (a *API) UpdateDetailsAction(ctx *cartridge.Context) error {
	var req updateDetailsRequest
	if err := ctx.BodyParser(&req); err != nil {
		return a.validationError(ctx, err)
	}
	if err := a.validate.Struct(req); err != nil {
		return a.validationError(ctx, err)
	}

	user := auth.CurrentUser(ctx.Ctx)
	updated, err := users.UpdateDetails(ctx.Logger, ctx.DB(), user.ID, req.Name, req.Email)
	if err != nil {
		return a.handleError(ctx, err)
	}
	return respondData(ctx, 200, publicUser(updated))
}

// UpdatePasswordAction verifies the current password before changing it and
// issues a fresh token.
func (a *API) UpdatePasswordAction(ctx *cartridge.Context) error {
	var req updatePasswordRequest
	if err := ctx.BodyParser(&req); err != nil {
		return a.validationError(ctx, err)
	}
	if err := a.validate.Struct(req); err != nil {
		return a.validationError(ctx, err)
	}

	user := auth.CurrentUser(ctx.Ctx)
	if _, err := users.Authenticate(ctx.DB(), user.Email, req.CurrentPassword); err != nil {
		return respondError(ctx, 401, "current password is incorrect")
	}

	if err := users.ChangePassword(ctx.Logger, ctx.DB(), user.Email, req.NewPassword); err != nil {
		return a.handleError(ctx, err)
	}
	return a.respondWithToken(ctx, 200, user)
}

// ForgotPasswordAction sends a reset link. The response is identical whether
// or not the email belongs to an account.
func (a *API) ForgotPasswordAction(ctx *cartridge.Context) error {
	var req forgotPasswordRequest
	if err := ctx.BodyParser(&req); err != nil {
		return a.validationError(ctx, err)
	}
	if err := a.validate.Struct(req); err != nil {
		return a.validationError(ctx, err)
	}

	token, err := users.GenerateResetToken(ctx.Logger, ctx.DB(), req.Email)
	if err == nil {
		resetURL := fmt.Sprintf("%s/resetpassword/%s", a.cfg.PublicBaseURL, token)
		if sendErr := a.mailer.SendPasswordReset(req.Email, resetURL); sendErr != nil {
			ctx.Logger.Error("Failed to send password reset email",
				"email", req.Email, "error", sendErr)
		}
	} else if !errors.Is(err, users.ErrUserNotFound) {
		return a.handleError(ctx, err)
	}

	return respondData(ctx, 200, map[string]interface{}{
		"message": "if that email exists, a reset link has been sent",
	})
}

// ResetPasswordAction consumes a reset token and signs the user in.
func (a *API) ResetPasswordAction(ctx *cartridge.Context) error {
	var req resetPasswordRequest
	if err := ctx.BodyParser(&req); err != nil {
		return a.validationError(ctx, err)
	}
	if err := a.validate.Struct(req); err != nil {
		return a.validationError(ctx, err)
	}

	user, err := users.ResetPassword(ctx.Logger, ctx.DB(), ctx.Params("token"), req.Password)
	if err != nil {
		return a.handleError(ctx, err)
	}
	return a.respondWithToken(ctx, 200, user)
}
