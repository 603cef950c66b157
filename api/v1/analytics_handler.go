package v1

import (
	"github.com/karloscodes/cartridge"

	"formlane/internal/analytics"
)

// FormAnalyticsAction returns the aggregate dashboard for a form: visit and
// response totals, conversion rate, completion time, device split, drop-off
// distribution and the 30-day trend.
func (a *API) FormAnalyticsAction(ctx *cartridge.Context) error {
	form, ok, err := a.ownedForm(ctx)
	if !ok {
		return err
	}

	result, err := analytics.GetFormAnalytics(ctx.Ctx.Context(), ctx.Logger, ctx.DB(), form.ID)
	if err != nil {
		return a.handleError(ctx, err)
	}
	return respondData(ctx, 200, result)
}

// FieldAnalyticsAction returns per-field aggregates: answer counts, option
// tallies for choice fields and numeric summaries for number fields.
func (a *API) FieldAnalyticsAction(ctx *cartridge.Context) error {
	form, ok, err := a.ownedForm(ctx)
	if !ok {
		return err
	}

	result, err := analytics.GetFieldAnalytics(ctx.DB(), form)
	if err != nil {
		return a.handleError(ctx, err)
	}
	return respondData(ctx, 200, result)
}

// VisitAnalyticsAction returns traffic breakdowns: referrers, browsers,
// operating systems, hour-of-day and day-of-week distributions.
func (a *API) VisitAnalyticsAction(ctx *cartridge.Context) error {
	form, ok, err := a.ownedForm(ctx)
	if !ok {
		return err
	}

	result, err := analytics.GetVisitAnalytics(ctx.DB(), form.ID)
	if err != nil {
		return a.handleError(ctx, err)
	}
	return respondData(ctx, 200, result)
}
