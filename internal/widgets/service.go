package widgets

import (
	"context"
	"strings"
	"sync"

	"github.com/angelmondragon/analytics-dashboard/internal/chart"
	"github.com/angelmondragon/analytics-dashboard/internal/filters"
	"github.com/angelmondragon/analytics-dashboard/internal/metadata"
	"github.com/angelmondragon/analytics-dashboard/internal/orchestrator"
	"github.com/angelmondragon/analytics-dashboard/internal/query"
	"github.com/angelmondragon/analytics-dashboard/internal/settings"
	pkgerrors "github.com/angelmondragon/analytics-dashboard/pkg/errors"
	"github.com/angelmondragon/analytics-dashboard/pkg/logger"
)

// Outcome is the settled state of a widget query.
type Outcome struct {
	WidgetID   string               `json:"widget_id"`
	Key        string               `json:"key,omitempty"`
	Status     orchestrator.Status  `json:"status"`
	Generation uint64               `json:"generation"`
	Attempts   int                  `json:"attempts"`
	Rows       []query.Row          `json:"rows"`
	Chart      *chart.Specification `json:"chart,omitempty"`
}

type Service interface {
	Query(ctx context.Context, widgetID string, q query.Description) (*Outcome, error)
	Refetch(ctx context.Context, widgetID string) (*Outcome, error)
	Cancel(ctx context.Context, widgetID string) (*Outcome, error)
	Snapshot(ctx context.Context, widgetID string) (*Outcome, error)
	SelectState(ctx context.Context, widgetID, state string) (filters.Selection, error)
	SelectCity(ctx context.Context, widgetID, city string) (filters.Selection, error)
}

type widget struct {
	id       string
	orch     *orchestrator.Orchestrator
	resolver *filters.Resolver

	// mu serialises starting a lifecycle with reading its generation.
	mu    sync.Mutex
	query query.Description
}

type service struct {
	fetcher   orchestrator.Fetcher
	opts      orchestrator.Options
	dateRange settings.Service
	metadata  metadata.Service
	logg      *logger.Logger

	mu      sync.Mutex
	widgets map[string]*widget
}

// NewService wires one orchestrator and one filter resolver per widget id,
// created on first use.
func NewService(fetcher orchestrator.Fetcher, opts orchestrator.Options, dateRange settings.Service, meta metadata.Service, logg *logger.Logger) (Service, error) {
	if fetcher == nil || dateRange == nil || meta == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "widgets service dependencies are required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	if opts.Logger == nil {
		opts.Logger = logg
	}
	return &service{
		fetcher:   fetcher,
		opts:      opts,
		dateRange: dateRange,
		metadata:  meta,
		logg:      logg,
		widgets:   map[string]*widget{},
	}, nil
}

func (s *service) Query(ctx context.Context, widgetID string, q query.Description) (*Outcome, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	w, err := s.widget(widgetID, true)
	if err != nil {
		return nil, err
	}
	ctx = s.logg.WithWidgetID(ctx, w.id)

	composed := w.resolver.Apply(q)
	dr := s.dateRange.Current(ctx)

	w.mu.Lock()
	w.query = composed
	stream := w.orch.Execute(ctx, composed, dr)
	gen := w.orch.Generation()
	w.mu.Unlock()

	return s.await(ctx, w, composed, stream, gen)
}

func (s *service) Refetch(ctx context.Context, widgetID string) (*Outcome, error) {
	w, err := s.widget(widgetID, false)
	if err != nil {
		return nil, err
	}
	ctx = s.logg.WithWidgetID(ctx, w.id)

	w.mu.Lock()
	q := w.query
	stream := w.orch.Refetch(ctx)
	gen := w.orch.Generation()
	w.mu.Unlock()

	return s.await(ctx, w, q, stream, gen)
}

func (s *service) Cancel(ctx context.Context, widgetID string) (*Outcome, error) {
	w, err := s.widget(widgetID, false)
	if err != nil {
		return nil, err
	}
	w.orch.Cancel()
	s.logg.Info(s.logg.WithWidgetID(ctx, w.id), "widget query cancelled")
	return outcomeFrom(w.id, w.orch.Snapshot(), nil), nil
}

func (s *service) Snapshot(ctx context.Context, widgetID string) (*Outcome, error) {
	w, err := s.widget(widgetID, false)
	if err != nil {
		return nil, err
	}

	w.mu.Lock()
	q := w.query
	snap := w.orch.Snapshot()
	w.mu.Unlock()

	out := outcomeFrom(w.id, snap, nil)
	if snap.Status == orchestrator.StatusSuccess {
		spec, err := chart.Transform(snap.Rows, &q, s.catalog(s.logg.WithWidgetID(ctx, w.id)))
		if err != nil {
			return nil, err
		}
		out.Chart = spec
	}
	return out, nil
}

func (s *service) SelectState(ctx context.Context, widgetID, state string) (filters.Selection, error) {
	w, err := s.widget(widgetID, true)
	if err != nil {
		return filters.Selection{}, err
	}
	if _, err := w.resolver.Resolve(s.logg.WithWidgetID(ctx, w.id), state); err != nil {
		return filters.Selection{}, err
	}
	return w.resolver.Selection(), nil
}

func (s *service) SelectCity(ctx context.Context, widgetID, city string) (filters.Selection, error) {
	w, err := s.widget(widgetID, true)
	if err != nil {
		return filters.Selection{}, err
	}
	if err := w.resolver.SelectDownstream(city); err != nil {
		return filters.Selection{}, err
	}
	return w.resolver.Selection(), nil
}

// await blocks until the lifecycle started as gen settles. A stream that
// closes early was either cancelled (idle outcome) or superseded (CONFLICT).
func (s *service) await(ctx context.Context, w *widget, q query.Description, stream <-chan orchestrator.Result, gen uint64) (*Outcome, error) {
	final, ok := orchestrator.Last(stream)
	if !ok {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if current := w.orch.Generation(); current != gen {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "a newer query for this widget replaced the request").
				WithDetails(map[string]any{"generation": gen, "current_generation": current})
		}
		if final.Status == orchestrator.StatusIdle {
			return outcomeFrom(w.id, final, nil), nil
		}
		return outcomeFrom(w.id, w.orch.Snapshot(), nil), nil
	}

	if final.Status == orchestrator.StatusError {
		return nil, errorFrom(final)
	}

	spec, err := chart.Transform(final.Rows, &q, s.catalog(ctx))
	if err != nil {
		return nil, err
	}
	return outcomeFrom(w.id, final, spec), nil
}

// catalog never fails; without metadata the built-in labels and raw ids apply.
func (s *service) catalog(ctx context.Context) chart.LabelCatalog {
	catalog, err := s.metadata.Catalog(ctx)
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "label catalog unavailable; using built-in labels")
		return chart.LabelCatalog{}
	}
	return catalog
}

func (s *service) widget(id string, create bool) (*widget, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "widget id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if w, ok := s.widgets[id]; ok {
		return w, nil
	}
	if !create {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "widget has no query").WithDetails(map[string]any{"widget_id": id})
	}

	orch, err := orchestrator.New(s.fetcher, s.opts)
	if err != nil {
		return nil, err
	}
	w := &widget{
		id:       id,
		orch:     orch,
		resolver: filters.NewResolver(s.metadata, s.logg),
	}
	s.widgets[id] = w
	return w, nil
}

func outcomeFrom(widgetID string, r orchestrator.Result, spec *chart.Specification) *Outcome {
	rows := r.Rows
	if rows == nil {
		rows = []query.Row{}
	}
	return &Outcome{
		WidgetID:   widgetID,
		Key:        r.Key,
		Status:     r.Status,
		Generation: r.Generation,
		Attempts:   r.Attempt,
		Rows:       rows,
		Chart:      spec,
	}
}

func errorFrom(r orchestrator.Result) error {
	info := r.Error
	if info == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "query failed without error details")
	}
	details := map[string]any{
		"attempts":   info.Attempts,
		"generation": r.Generation,
		"transient":  info.Transient,
	}
	if info.Detail != "" {
		details["cause"] = info.Detail
	}
	if info.HTTPStatus != 0 {
		details["upstream_status"] = info.HTTPStatus
	}
	return pkgerrors.Wrap(info.Code, info, info.Message).WithDetails(details)
}
