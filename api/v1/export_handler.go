package v1

import (
	"fmt"

	"github.com/karloscodes/cartridge"

	"formlane/internal/export"
)

// ExportResponsesAction streams the form's completed responses as a JSON or
// CSV download. Format defaults to JSON.
func (a *API) ExportResponsesAction(ctx *cartridge.Context) error {
	form, ok, err := a.ownedForm(ctx)
	if !ok {
		return err
	}

	format := ctx.Query("format", export.FormatJSON)
	switch format {
	case export.FormatJSON:
		formatted, err := export.AsJSON(ctx.DB(), form)
		if err != nil {
			return a.handleError(ctx, err)
		}
		ctx.Set("Content-Disposition",
			fmt.Sprintf("attachment; filename=%q", export.Filename(form, format)))
		return ctx.Status(200).JSON(formatted)

	case export.FormatCSV:
		csv, err := export.AsCSV(ctx.DB(), form)
		if err != nil {
			return a.handleError(ctx, err)
		}
		ctx.Set("Content-Type", "text/csv; charset=utf-8")
		ctx.Set("Content-Disposition",
			fmt.Sprintf("attachment; filename=%q", export.Filename(form, format)))
		return ctx.Status(200).SendString(csv)

	default:
		return respondError(ctx, 400, "unsupported export format: "+format)
	}
}
