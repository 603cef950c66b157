package v1

import (
	"github.com/karloscodes/cartridge"
	"gorm.io/datatypes"

	"formlane/internal/auth"
	"formlane/internal/forms"
	"formlane/internal/uploads"
	"formlane/internal/visits"
)

type formRequest struct {
	Title       string          `json:"title" validate:"required"`
	Description string          `json:"description"`
	Fields      forms.FieldList `json:"fields"`
	Settings    forms.Settings  `json:"settings"`
	LogicJumps  datatypes.JSON  `json:"logicJumps"`
}

// ownedForm loads a form and checks the authenticated user owns it or is an
// admin. The bool reports whether the caller may proceed; when false a
// response has already been written.
func (a *API) ownedForm(ctx *cartridge.Context) (*forms.Form, bool, error) {
	formID, err := ctx.ParamsInt("id")
	if err != nil {
		return nil, false, respondError(ctx, 400, "invalid form id")
	}

	form, err := forms.GetFormByID(ctx.DB(), uint(formID))
	if err != nil {
		return nil, false, a.handleError(ctx, err)
	}

	if !a.canManage(ctx, form) {
		return nil, false, respondError(ctx, 403, "not authorized to access this form")
	}
	return form, true, nil
}

// ListFormsAction returns the caller's forms with per-form response counts.
func (a *API) ListFormsAction(ctx *cartridge.Context) error {
	user := auth.CurrentUser(ctx.Ctx)
	list, err := forms.GetFormsWithStats(ctx.DB(), user.ID)
	if err != nil {
		return a.handleError(ctx, err)
	}
	return respondData(ctx, 200, list)
}

// CreateFormAction creates a form in DRAFT status.
func (a *API) CreateFormAction(ctx *cartridge.Context) error {
	var req formRequest
	if err := ctx.BodyParser(&req); err != nil {
		return a.validationError(ctx, err)
	}
	if err := a.validate.Struct(req); err != nil {
		return a.validationError(ctx, err)
	}

	user := auth.CurrentUser(ctx.Ctx)
	form := &forms.Form{
		UserID:      user.ID,
		Title:       req.Title,
		Description: req.Description,
		Fields:      req.Fields,
		Settings:    req.Settings,
		LogicJumps:  req.LogicJumps,
	}
	if err := form.ValidateFields(); err != nil {
		return respondError(ctx, 400, err.Error())
	}

	if err := forms.CreateForm(ctx.Logger, ctx.DB(), form); err != nil {
		return a.handleError(ctx, err)
	}
	return respondData(ctx, 201, form)
}

// GetFormAction returns a form. Published forms are readable by anyone;
// drafts and archived forms only by their owner or an admin.
func (a *API) GetFormAction(ctx *cartridge.Context) error {
	formID, err := ctx.ParamsInt("id")
	if err != nil {
		return respondError(ctx, 400, "invalid form id")
	}

	form, err := forms.GetFormByID(ctx.DB(), uint(formID))
	if err != nil {
		return a.handleError(ctx, err)
	}

	if !form.IsAccepting() && !a.canManage(ctx, form) {
		return respondError(ctx, 404, forms.NewFormNotFoundError(form.ID).Error())
	}
	return respondData(ctx, 200, form)
}

// GetPublicFormAction serves a published form to the renderer by slug and
// registers the visit. Passing an existing visitId is idempotent, so
// reloads do not inflate visit counts.
func (a *API) GetPublicFormAction(ctx *cartridge.Context) error {
	form, err := forms.GetFormBySlug(ctx.DB(), ctx.Params("slug"))
	if err != nil {
		return a.handleError(ctx, err)
	}

	visit, err := visits.GetOrCreateVisit(ctx.Logger, ctx.DB(), form, ctx.Query("visitId"), visitMetadata(ctx.Ctx))
	if err != nil {
		return a.handleError(ctx, err)
	}

	return respondData(ctx, 200, map[string]interface{}{
		"form":    form,
		"visitId": visit.VisitID,
	})
}

// RegisterVisitAction records a visit for a published form without loading
// the form body. The renderer calls this when it already has the form cached.
func (a *API) RegisterVisitAction(ctx *cartridge.Context) error {
	formID, err := ctx.ParamsInt("formId")
	if err != nil {
		return respondError(ctx, 400, "invalid form id")
	}
	form, err := forms.GetFormByID(ctx.DB(), uint(formID))
	if err != nil {
		return a.handleError(ctx, err)
	}

	var req struct {
		VisitID string `json:"visitId"`
	}
	if len(ctx.Body()) > 0 {
		if err := ctx.BodyParser(&req); err != nil {
			return a.validationError(ctx, err)
		}
	}

	visit, err := visits.GetOrCreateVisit(ctx.Logger, ctx.DB(), form, req.VisitID, visitMetadata(ctx.Ctx))
	if err != nil {
		return a.handleError(ctx, err)
	}
	return respondData(ctx, 201, map[string]interface{}{
		"visitId":   visit.VisitID,
		"formId":    visit.FormID,
		"startedAt": visit.StartedAt,
	})
}

// UpdateFormAction replaces a form's editable attributes.
func (a *API) UpdateFormAction(ctx *cartridge.Context) error {
	form, ok, err := a.ownedForm(ctx)
	if !ok {
		return err
	}

	var req formRequest
	if err := ctx.BodyParser(&req); err != nil {
		return a.validationError(ctx, err)
	}
	if err := a.validate.Struct(req); err != nil {
		return a.validationError(ctx, err)
	}

	form.Title = req.Title
	form.Description = req.Description
	form.Fields = req.Fields
	form.Settings = req.Settings
	form.LogicJumps = req.LogicJumps
	if err := form.ValidateFields(); err != nil {
		return respondError(ctx, 400, err.Error())
	}

	if err := forms.UpdateForm(ctx.Logger, ctx.DB(), form); err != nil {
		return a.handleError(ctx, err)
	}
	return respondData(ctx, 200, form)
}

// PublishFormAction moves a form to PUBLISHED so it accepts responses.
func (a *API) PublishFormAction(ctx *cartridge.Context) error {
	form, ok, err := a.ownedForm(ctx)
	if !ok {
		return err
	}
	if err := forms.PublishForm(ctx.Logger, ctx.DB(), form); err != nil {
		return a.handleError(ctx, err)
	}
	return respondData(ctx, 200, map[string]interface{}{
		"form":      form,
		"publicUrl": form.PublicURL(a.cfg.PublicBaseURL),
	})
}

// ArchiveFormAction moves a published form to ARCHIVED.
func (a *API) ArchiveFormAction(ctx *cartridge.Context) error {
	form, ok, err := a.ownedForm(ctx)
	if !ok {
		return err
	}
	if err := forms.ArchiveForm(ctx.Logger, ctx.DB(), form); err != nil {
		return a.handleError(ctx, err)
	}
	return respondData(ctx, 200, form)
}

// UploadFormAssetAction stores a single file for a form outside of a
// submission, e.g. an image referenced from the form description. The file
// arrives as the multipart part named "file" with an optional "fieldId".
func (a *API) UploadFormAssetAction(ctx *cartridge.Context) error {
	form, ok, err := a.ownedForm(ctx)
	if !ok {
		return err
	}

	fh, err := ctx.Ctx.FormFile("file")
	if err != nil {
		return respondError(ctx, 400, "missing file part")
	}
	if a.cfg.UploadMaxBytes > 0 && fh.Size > a.cfg.UploadMaxBytes {
		return respondError(ctx, 400, "file exceeds the upload size limit")
	}
	if err := uploads.CheckExtension(fh.Filename); err != nil {
		return respondError(ctx, 400, err.Error())
	}

	record, err := uploads.UploadFormFile(ctx.Ctx.Context(), ctx.Logger, ctx.DB(),
		a.store, form.ID, ctx.Ctx.FormValue("fieldId"), fh)
	if err != nil {
		return a.handleError(ctx, err)
	}
	return respondData(ctx, 201, record)
}

// DeleteFormAction removes a form together with its visits, responses and
// upload records.
func (a *API) DeleteFormAction(ctx *cartridge.Context) error {
	form, ok, err := a.ownedForm(ctx)
	if !ok {
		return err
	}
	if err := forms.DeleteForm(ctx.Logger, ctx.DB(), form.ID); err != nil {
		return a.handleError(ctx, err)
	}
	return respondData(ctx, 200, map[string]interface{}{"deleted": form.ID})
}
