package controllers

import (
	"net/http"
	"time"

	"github.com/angelmondragon/analytics-dashboard/api/responses"
	"github.com/angelmondragon/analytics-dashboard/api/validators"
	"github.com/angelmondragon/analytics-dashboard/internal/query"
	"github.com/angelmondragon/analytics-dashboard/internal/settings"
	pkgerrors "github.com/angelmondragon/analytics-dashboard/pkg/errors"
	"github.com/angelmondragon/analytics-dashboard/pkg/logger"
)

// DateRangeRequest replaces the dashboard date range. Either preset or the
// start/end pair is used; null bounds clear the range.
type DateRangeRequest struct {
	Start  *string `json:"start" validate:"omitempty,datetime=2006-01-02"`
	End    *string `json:"end" validate:"omitempty,datetime=2006-01-02"`
	Preset string  `json:"preset" validate:"omitempty,oneof=7d 30d 90d"`
}

type DateRangeResponse struct {
	Start    *string `json:"start"`
	End      *string `json:"end"`
	Complete bool    `json:"complete"`
	Version  uint64  `json:"version"`
}

func GetDateRange(svc settings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteSuccess(w, dateRangeResponse(svc.Current(r.Context())))
	}
}

func PutDateRange(svc settings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req DateRangeRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var (
			updated query.DateRange
			err     error
		)
		if req.Preset != "" {
			if req.Start != nil || req.End != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "preset cannot be combined with start/end"))
				return
			}
			updated, err = svc.ApplyPreset(ctx, req.Preset)
		} else {
			updated, err = svc.Set(ctx, parseDay(req.Start), parseDay(req.End))
		}
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		logg.Info(logg.WithField(ctx, "version", updated.Version), "date range updated")
		responses.WriteSuccess(w, dateRangeResponse(updated))
	}
}

// parseDay expects a value already checked by the datetime validator.
func parseDay(value *string) *time.Time {
	if value == nil {
		return nil
	}
	t, err := time.Parse(query.DateLayout, *value)
	if err != nil {
		return nil
	}
	return &t
}

func dateRangeResponse(r query.DateRange) DateRangeResponse {
	return DateRangeResponse{
		Start:    formatDay(r.Start),
		End:      formatDay(r.End),
		Complete: r.Complete(),
		Version:  r.Version,
	}
}

func formatDay(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(query.DateLayout)
	return &s
}
