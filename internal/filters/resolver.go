package filters

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/angelmondragon/analytics-dashboard/internal/query"
	pkgerrors "github.com/angelmondragon/analytics-dashboard/pkg/errors"
	"github.com/angelmondragon/analytics-dashboard/pkg/logger"
)

const (
	StateField = "store_state"
	CityField  = "store_city"
)

// Source lists the options of both filter levels.
type Source interface {
	States(ctx context.Context) ([]string, error)
	Cities(ctx context.Context, state string) ([]string, error)
}

// Selection is the resolver state as shown to a client.
type Selection struct {
	State      string   `json:"state"`
	City       string   `json:"city"`
	Cities     []string `json:"cities"`
	Generation uint64   `json:"generation"`
}

// Resolver keeps a state → city selection consistent. Changing the state
// drops the city before the new city list is requested, so a query never
// combines a city with a state it does not belong to.
type Resolver struct {
	source Source
	logg   *logger.Logger

	mu         sync.Mutex
	generation uint64
	state      string
	city       string
	cities     []string
}

func NewResolver(source Source, logg *logger.Logger) *Resolver {
	if logg == nil {
		logg = logger.Nop()
	}
	return &Resolver{source: source, logg: logg, cities: []string{}}
}

// States lists the upstream options.
func (r *Resolver) States(ctx context.Context) ([]string, error) {
	states, err := r.source.States(ctx)
	if err != nil {
		return nil, err
	}
	if states == nil {
		states = []string{}
	}
	return states, nil
}

// Resolve selects state and returns its cities. A blank state clears both
// levels without a remote call. When a newer Resolve started meanwhile the
// response is discarded and a CONFLICT error is returned.
func (r *Resolver) Resolve(ctx context.Context, state string) ([]string, error) {
	state = strings.TrimSpace(state)

	r.mu.Lock()
	r.generation++
	gen := r.generation
	r.state = state
	r.city = ""
	r.cities = []string{}
	r.mu.Unlock()

	if state == "" {
		return []string{}, nil
	}

	cities, err := r.source.Cities(ctx, state)

	r.mu.Lock()
	defer r.mu.Unlock()
	if gen != r.generation {
		r.logg.Debug(r.logg.WithField(ctx, "state", state), "discarding city list of superseded state")
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "state selection changed while loading cities")
	}
	if err != nil {
		return nil, err
	}
	if cities == nil {
		cities = []string{}
	}
	r.cities = slices.Clone(cities)
	return cities, nil
}

// SelectDownstream picks a city from the resolved list; blank clears it.
func (r *Resolver) SelectDownstream(city string) error {
	city = strings.TrimSpace(city)

	r.mu.Lock()
	defer r.mu.Unlock()
	if city == "" {
		r.city = ""
		return nil
	}
	if r.state == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "select a state before a city")
	}
	if !slices.Contains(r.cities, city) {
		return pkgerrors.New(pkgerrors.CodeValidation, "city is not available for the selected state").
			WithDetails(map[string]any{"state": r.state, "city": city})
	}
	r.city = city
	return nil
}

// Filters returns the eq filters for the current selection.
func (r *Resolver) Filters() []query.Filter {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := []query.Filter{}
	if r.state != "" {
		out = append(out, query.Filter{Field: StateField, Operator: query.OpEq, Value: r.state})
	}
	if r.city != "" {
		out = append(out, query.Filter{Field: CityField, Operator: query.OpEq, Value: r.city})
	}
	return out
}

// Apply returns a copy of d whose location filters are replaced by the
// current selection.
func (r *Resolver) Apply(d query.Description) query.Description {
	out := d.Clone()
	kept := out.Filters[:0]
	for _, f := range out.Filters {
		if f.Field == StateField || f.Field == CityField {
			continue
		}
		kept = append(kept, f)
	}
	out.Filters = append(kept, r.Filters()...)
	return out
}

func (r *Resolver) Selection() Selection {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Selection{
		State:      r.state,
		City:       r.city,
		Cities:     slices.Clone(r.cities),
		Generation: r.generation,
	}
}
