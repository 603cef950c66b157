package v1

import (
	"github.com/karloscodes/cartridge"

	"formlane/internal/users"
)

type createUserRequest struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	Role     string `json:"role" validate:"omitempty,oneof=USER ADMIN"`
}

type updateUserRequest struct {
	Name  string `json:"name"`
	Email string `json:"email" validate:"omitempty,email"`
}

// Admin-only account management.

func (a *API) ListUsersAction(ctx *cartridge.Context) error {
	list, err := users.GetAllUsers(ctx.DB())
	if err != nil {
		return a.handleError(ctx, err)
	}
	payload := make([]userPayload, len(list))
	for i := range list {
		payload[i] = publicUser(&list[i])
	}
	return respondData(ctx, 200, payload)
}

func (a *API) CreateUserAction(ctx *cartridge.Context) error {
	var req createUserRequest
	if err := ctx.BodyParser(&req); err != nil {
		return a.validationError(ctx, err)
	}
	if err := a.validate.Struct(req); err != nil {
		return a.validationError(ctx, err)
	}

	role := req.Role
	if role == "" {
		role = users.RoleUser
	}
	user, err := users.CreateUser(ctx.Logger, ctx.DB(), req.Name, req.Email, req.Password, role)
	if err != nil {
		return a.handleError(ctx, err)
	}
	return respondData(ctx, 201, publicUser(user))
}

func (a *API) GetUserAction(ctx *cartridge.Context) error {
	userID, err := ctx.ParamsInt("id")
	if err != nil {
		return respondError(ctx, 400, "invalid user id")
	}
	user, err := users.FindByID(ctx.DB(), uint(userID))
	if err != nil {
		return a.handleError(ctx, err)
	}
	return respondData(ctx, 200, publicUser(user))
}

func (a *API) UpdateUserAction(ctx *cartridge.Context) error {
	userID, err := ctx.ParamsInt("id")
	if err != nil {
		return respondError(ctx, 400, "invalid user id")
	}

	var req updateUserRequest
	if err := ctx.BodyParser(&req); err != nil {
		return a.validationError(ctx, err)
	}
	if err := a.validate.Struct(req); err != nil {
		return a.validationError(ctx, err)
	}

	user, err := users.UpdateDetails(ctx.Logger, ctx.DB(), uint(userID), req.Name, req.Email)
	if err != nil {
		return a.handleError(ctx, err)
	}
	return respondData(ctx, 200, publicUser(user))
}

func (a *API) DeleteUserAction(ctx *cartridge.Context) error {
	userID, err := ctx.ParamsInt("id")
	if err != nil {
		return respondError(ctx, 400, "invalid user id")
	}
	if err := users.DeleteUser(ctx.Logger, ctx.DB(), uint(userID)); err != nil {
		return a.handleError(ctx, err)
	}
	return respondData(ctx, 200, map[string]interface{}{"deleted": userID})
}
