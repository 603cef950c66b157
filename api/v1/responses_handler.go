package v1

import (
	"errors"
	"mime/multipart"
	"strings"

	"github.com/goccy/go-json"
	"github.com/karloscodes/cartridge"

	"formlane/internal/auth"
	"formlane/internal/forms"
	"formlane/internal/responses"
	"formlane/internal/uploads"
	"formlane/internal/users"
	"formlane/internal/visits"
)

type submitRequest struct {
	VisitID    string               `json:"visitId"`
	Answers    responses.AnswerList `json:"answers"`
	IsComplete bool                 `json:"isComplete"`
}

// parseSubmission reads an answer batch from either a JSON body or a
// multipart form. Multipart bodies carry the answer list as a JSON string
// under "answers" and one file part per fileUpload field, keyed by fieldId.
func parseSubmission(ctx *cartridge.Context) (submitRequest, map[string]*multipart.FileHeader, error) {
	var req submitRequest

	if !strings.HasPrefix(ctx.Get("Content-Type"), "multipart/form-data") {
		if err := ctx.BodyParser(&req); err != nil {
			return req, nil, err
		}
		return req, nil, nil
	}

	mf, err := ctx.Ctx.MultipartForm()
	if err != nil {
		return req, nil, err
	}

	if raw := formValue(mf, "answers"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &req.Answers); err != nil {
			return req, nil, err
		}
	}
	req.VisitID = formValue(mf, "visitId")
	req.IsComplete = formValue(mf, "isComplete") == "true"

	files := make(map[string]*multipart.FileHeader, len(mf.File))
	for fieldID, headers := range mf.File {
		if len(headers) > 0 {
			files[fieldID] = headers[0]
		}
	}
	return req, files, nil
}

func formValue(mf *multipart.Form, key string) string {
	if values, ok := mf.Value[key]; ok && len(values) > 0 {
		return values[0]
	}
	return ""
}

// SubmitResponseAction accepts an answer batch for a published form. Files
// are uploaded first, all or nothing; if the response write fails afterwards
// the stored files are deleted again.
func (a *API) SubmitResponseAction(ctx *cartridge.Context) error {
	formID, err := ctx.ParamsInt("formId")
	if err != nil {
		return respondError(ctx, 400, "invalid form id")
	}
	form, err := forms.GetFormByID(ctx.DB(), uint(formID))
	if err != nil {
		return a.handleError(ctx, err)
	}
	if !form.IsAccepting() {
		return a.handleError(ctx, forms.ErrNotAcceptingResponses)
	}

	req, files, err := parseSubmission(ctx)
	if err != nil {
		return a.validationError(ctx, err)
	}
	if len(req.Answers) == 0 && !req.IsComplete {
		return respondError(ctx, 400, "no answers submitted")
	}

	meta := visitMetadata(ctx.Ctx)
	visit, err := visits.GetOrCreateVisit(ctx.Logger, ctx.DB(), form, req.VisitID, meta)
	if err != nil {
		return a.handleError(ctx, err)
	}

	publicIDs, err := a.resolver.Resolve(ctx.Ctx.Context(), form.ID, req.Answers, files)
	if err != nil {
		// Rejected files are the client's problem; a failing blob store
		// is ours.
		var storeErr *uploads.StoreError
		if errors.As(err, &storeErr) {
			return a.handleError(ctx, err)
		}
		return respondError(ctx, 400, err.Error())
	}

	sub := responses.Submission{
		Answers:    req.Answers,
		IsComplete: req.IsComplete,
		Meta:       meta,
	}
	if user := auth.CurrentUser(ctx.Ctx); user != nil {
		sub.RespondentID = &user.ID
	}

	response, err := responses.SubmitAnswers(ctx.Logger, a.cfg, ctx.DB(), form, visit, sub)
	if err != nil {
		a.resolver.Compensate(ctx.Ctx.Context(), publicIDs)
		return a.handleError(ctx, err)
	}

	a.recordFileUploads(ctx, form.ID, response.ID, req.Answers, files)

	// The renderer needs the visitId back for follow-up batches, alongside
	// the persisted response.
	return ctx.Status(201).JSON(map[string]interface{}{
		"success": true,
		"data":    response,
		"visitId": response.VisitID,
	})
}

// recordFileUploads writes bookkeeping rows for files stored during this
// batch. The files themselves are already uploaded and referenced from the
// response, so a failure here is logged rather than returned.
func (a *API) recordFileUploads(ctx *cartridge.Context, formID, responseID uint, answers responses.AnswerList, files map[string]*multipart.FileHeader) {
	for i := range answers {
		ans := answers[i]
		if ans.FilePublicID == "" {
			continue
		}
		fileName, _ := ans.Value.(string)
		record := &uploads.FileUpload{
			FormID:     formID,
			ResponseID: &responseID,
			FieldID:    ans.FieldID,
			FileName:   fileName,
			FileURL:    ans.FileURL,
			PublicID:   ans.FilePublicID,
		}
		if fh, ok := files[ans.FieldID]; ok {
			record.ContentType = fh.Header.Get("Content-Type")
			record.SizeBytes = fh.Size
		}
		if err := uploads.RecordUpload(ctx.Logger, ctx.DB(), record); err != nil {
			ctx.Logger.Error("Failed to record file upload",
				"field_id", ans.FieldID, "public_id", ans.FilePublicID, "error", err)
		}
	}
}

// ListResponsesAction returns all responses for a form the caller owns,
// newest submission first.
func (a *API) ListResponsesAction(ctx *cartridge.Context) error {
	formID, err := ctx.ParamsInt("formId")
	if err != nil {
		return respondError(ctx, 400, "invalid form id")
	}
	form, err := forms.GetFormByID(ctx.DB(), uint(formID))
	if err != nil {
		return a.handleError(ctx, err)
	}
	if !a.canManage(ctx, form) {
		return respondError(ctx, 403, "not authorized to access this form")
	}

	list, err := responses.GetResponsesByForm(ctx.DB(), form.ID)
	if err != nil {
		return a.handleError(ctx, err)
	}
	return respondData(ctx, 200, list)
}

// GetResponseAction returns a single response for the owning user.
func (a *API) GetResponseAction(ctx *cartridge.Context) error {
	response, _, ok, err := a.ownedResponse(ctx)
	if !ok {
		return err
	}
	return respondData(ctx, 200, response)
}

// DeleteResponseAction removes a response.
func (a *API) DeleteResponseAction(ctx *cartridge.Context) error {
	response, _, ok, err := a.ownedResponse(ctx)
	if !ok {
		return err
	}
	if err := responses.DeleteResponse(ctx.Logger, ctx.DB(), response.ID); err != nil {
		return a.handleError(ctx, err)
	}
	return respondData(ctx, 200, map[string]interface{}{"deleted": response.ID})
}

func (a *API) ownedResponse(ctx *cartridge.Context) (*responses.Response, *forms.Form, bool, error) {
	responseID, err := ctx.ParamsInt("id")
	if err != nil {
		return nil, nil, false, respondError(ctx, 400, "invalid response id")
	}
	response, err := responses.GetResponseByID(ctx.DB(), uint(responseID))
	if err != nil {
		return nil, nil, false, a.handleError(ctx, err)
	}
	form, err := forms.GetFormByID(ctx.DB(), response.FormID)
	if err != nil {
		return nil, nil, false, a.handleError(ctx, err)
	}
	if !a.canManage(ctx, form) {
		return nil, nil, false, respondError(ctx, 403, "not authorized to access this response")
	}
	return response, form, true, nil
}

func (a *API) canManage(ctx *cartridge.Context, form *forms.Form) bool {
	user := auth.CurrentUser(ctx.Ctx)
	if user == nil {
		return false
	}
	return form.UserID == user.ID || user.Role == users.RoleAdmin
}
