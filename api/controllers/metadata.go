package controllers

import (
	"net/http"

	"github.com/angelmondragon/analytics-dashboard/api/responses"
	"github.com/angelmondragon/analytics-dashboard/api/validators"
	"github.com/angelmondragon/analytics-dashboard/internal/metadata"
	"github.com/angelmondragon/analytics-dashboard/pkg/logger"
)

const maxStateLen = 64

func MetadataMetrics(svc metadata.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		metrics, err := svc.Metrics(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, metrics)
	}
}

func MetadataDimensions(svc metadata.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dimensions, err := svc.Dimensions(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dimensions)
	}
}

func MetadataStates(svc metadata.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		states, err := svc.States(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, states)
	}
}

// MetadataCities lists the cities of ?state=, or every city when it is absent.
func MetadataCities(svc metadata.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		state, err := validators.ParseQueryString(r, "state", maxStateLen)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		cities, err := svc.Cities(ctx, state)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, cities)
	}
}

// MetadataInvalidate drops cached catalog lists so the next read refetches them.
func MetadataInvalidate(svc metadata.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.Invalidate(r.Context()); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "invalidated"})
	}
}
