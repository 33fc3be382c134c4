package middleware

import (
	"net/http"
	"regexp"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/analytics-dashboard/api/responses"
	pkgerrors "github.com/angelmondragon/analytics-dashboard/pkg/errors"
	"github.com/angelmondragon/analytics-dashboard/pkg/logger"
)

const WidgetIDParam = "widgetId"

var widgetIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// WidgetContext validates the {widgetId} route parameter and carries it on the
// request context and log fields.
func WidgetContext(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			widgetID := chi.URLParam(r, WidgetIDParam)
			if !widgetIDPattern.MatchString(widgetID) {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid widget id").
					WithDetails(map[string]any{"widget_id": "must be 1-64 letters, digits, '-' or '_'"}))
				return
			}
			ctx = WithWidgetID(ctx, widgetID)
			if logg != nil {
				ctx = logg.WithWidgetID(ctx, widgetID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
