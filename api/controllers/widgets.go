package controllers

import (
	"net/http"

	"github.com/angelmondragon/analytics-dashboard/api/middleware"
	"github.com/angelmondragon/analytics-dashboard/api/responses"
	"github.com/angelmondragon/analytics-dashboard/api/validators"
	"github.com/angelmondragon/analytics-dashboard/internal/query"
	"github.com/angelmondragon/analytics-dashboard/internal/widgets"
	"github.com/angelmondragon/analytics-dashboard/pkg/logger"
)

// QueryRequest is a widget query. metrics and dimensions accept a single id
// or a list.
type QueryRequest struct {
	Metrics    query.IDList    `json:"metrics" validate:"max=20,dive,required,max=64"`
	Dimensions query.IDList    `json:"dimensions" validate:"max=20,dive,required,max=64"`
	Filters    []FilterRequest `json:"filters" validate:"omitempty,max=50,dive"`
}

type FilterRequest struct {
	Field    string `json:"field" validate:"required,max=64"`
	Operator string `json:"operator" validate:"required,oneof=eq neq in notin gt lt gte lte between"`
	Value    any    `json:"value"`
}

func (q QueryRequest) description() query.Description {
	out := query.Description{
		Metrics:    q.Metrics,
		Dimensions: q.Dimensions,
		Filters:    make([]query.Filter, 0, len(q.Filters)),
	}
	for _, f := range q.Filters {
		out.Filters = append(out.Filters, query.Filter{
			Field:    f.Field,
			Operator: query.Operator(f.Operator),
			Value:    f.Value,
		})
	}
	return out
}

type SelectStateRequest struct {
	State string `json:"state" validate:"max=64"`
}

type SelectCityRequest struct {
	City string `json:"city" validate:"max=128"`
}

// WidgetQuery executes a query for the widget and waits for it to settle.
func WidgetQuery(svc widgets.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req QueryRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		out, err := svc.Query(ctx, middleware.WidgetIDFromContext(ctx), req.description())
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, out)
	}
}

func WidgetRefetch(svc widgets.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		out, err := svc.Refetch(ctx, middleware.WidgetIDFromContext(ctx))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, out)
	}
}

func WidgetCancel(svc widgets.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		out, err := svc.Cancel(ctx, middleware.WidgetIDFromContext(ctx))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, out)
	}
}

func WidgetSnapshot(svc widgets.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		out, err := svc.Snapshot(ctx, middleware.WidgetIDFromContext(ctx))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, out)
	}
}

// WidgetSelectState changes the state filter; the city selection is cleared
// and the cities of the new state are returned.
func WidgetSelectState(svc widgets.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req SelectStateRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		sel, err := svc.SelectState(ctx, middleware.WidgetIDFromContext(ctx), req.State)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, sel)
	}
}

func WidgetSelectCity(svc widgets.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req SelectCityRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		sel, err := svc.SelectCity(ctx, middleware.WidgetIDFromContext(ctx), req.City)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, sel)
	}
}
