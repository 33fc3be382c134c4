package metadata

import (
	"context"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/angelmondragon/analytics-dashboard/internal/analyticsapi"
	"github.com/angelmondragon/analytics-dashboard/internal/chart"
	pkgerrors "github.com/angelmondragon/analytics-dashboard/pkg/errors"
	"github.com/angelmondragon/analytics-dashboard/pkg/logger"
	"github.com/angelmondragon/analytics-dashboard/pkg/redis"
)

// Source is the remote metadata API.
type Source interface {
	FetchMetrics(ctx context.Context) ([]analyticsapi.CatalogEntry, error)
	FetchDimensions(ctx context.Context) ([]analyticsapi.CatalogEntry, error)
	FetchStates(ctx context.Context) ([]string, error)
	FetchCities(ctx context.Context, state string) ([]string, error)
}

type Service interface {
	Metrics(ctx context.Context) ([]analyticsapi.CatalogEntry, error)
	Dimensions(ctx context.Context) ([]analyticsapi.CatalogEntry, error)
	States(ctx context.Context) ([]string, error)
	Cities(ctx context.Context, state string) ([]string, error)
	Catalog(ctx context.Context) (chart.LabelCatalog, error)
	Invalidate(ctx context.Context) error
}

type service struct {
	source Source
	store  redis.JSONStore
	ttl    time.Duration
	logg   *logger.Logger
	group  singleflight.Group
}

// NewService caches metadata lists in store for ttl. A nil store disables
// caching; concurrent misses for the same list still share one remote call.
func NewService(source Source, store redis.JSONStore, ttl time.Duration, logg *logger.Logger) Service {
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{source: source, store: store, ttl: ttl, logg: logg}
}

func (s *service) Metrics(ctx context.Context) ([]analyticsapi.CatalogEntry, error) {
	return cached(ctx, s, redis.MetadataKey("metrics"), s.source.FetchMetrics)
}

func (s *service) Dimensions(ctx context.Context) ([]analyticsapi.CatalogEntry, error) {
	return cached(ctx, s, redis.MetadataKey("dimensions"), s.source.FetchDimensions)
}

func (s *service) States(ctx context.Context) ([]string, error) {
	return cached(ctx, s, redis.MetadataKey("states"), s.source.FetchStates)
}

func (s *service) Cities(ctx context.Context, state string) ([]string, error) {
	state = strings.TrimSpace(state)
	scope := state
	if scope == "" {
		scope = "all"
	}
	return cached(ctx, s, redis.MetadataKey("cities", scope), func(ctx context.Context) ([]string, error) {
		return s.source.FetchCities(ctx, state)
	})
}

// Catalog loads metric and dimension names in parallel.
func (s *service) Catalog(ctx context.Context) (chart.LabelCatalog, error) {
	var metrics, dimensions []analyticsapi.CatalogEntry
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		metrics, err = s.Metrics(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		dimensions, err = s.Dimensions(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return chart.LabelCatalog{}, err
	}
	return BuildCatalog(metrics, dimensions), nil
}

// Invalidate drops the catalog lists and every cached city list, whatever its
// state scope.
func (s *service) Invalidate(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	err := s.store.Del(ctx,
		redis.MetadataKey("metrics"),
		redis.MetadataKey("dimensions"),
		redis.MetadataKey("states"),
	)
	if err == nil {
		err = s.store.DelPrefix(ctx, redis.MetadataKey("cities"))
	}
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "invalidate metadata cache")
	}
	return nil
}

// BuildCatalog indexes entry names by id. Entries without a name are skipped
// so the id remains the fallback label.
func BuildCatalog(metrics, dimensions []analyticsapi.CatalogEntry) chart.LabelCatalog {
	return chart.LabelCatalog{
		Metrics:    index(metrics),
		Dimensions: index(dimensions),
	}
}

func index(entries []analyticsapi.CatalogEntry) map[string]string {
	out := make(map[string]string, len(entries))
	for _, e := range entries {
		if e.ID == "" || e.Name == "" {
			continue
		}
		out[e.ID] = e.Name
	}
	return out
}

func cached[T any](ctx context.Context, s *service, key string, load func(context.Context) ([]T, error)) ([]T, error) {
	logCtx := s.logg.WithField(ctx, "cache_key", key)
	if s.store != nil {
		var hit []T
		found, err := s.store.GetJSON(ctx, key, &hit)
		switch {
		case err != nil:
			s.logg.Warn(s.logg.WithField(logCtx, "error", err.Error()), "metadata cache read failed")
		case found:
			if hit == nil {
				hit = []T{}
			}
			return hit, nil
		}
	}

	v, err, _ := s.group.Do(key, func() (any, error) {
		items, err := load(ctx)
		if err != nil {
			return nil, err
		}
		if items == nil {
			items = []T{}
		}
		if s.store != nil {
			if err := s.store.SetJSON(ctx, key, items, s.ttl); err != nil {
				s.logg.Warn(s.logg.WithField(logCtx, "error", err.Error()), "metadata cache write failed")
			}
		}
		return items, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]T), nil
}
