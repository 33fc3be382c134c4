package settings

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/angelmondragon/analytics-dashboard/internal/query"
	pkgerrors "github.com/angelmondragon/analytics-dashboard/pkg/errors"
	"github.com/angelmondragon/analytics-dashboard/pkg/logger"
	"github.com/angelmondragon/analytics-dashboard/pkg/redis"
)

var dateRangeKey = redis.SettingsKey("date_range")

var timeNowUTC = func() time.Time {
	return time.Now().UTC()
}

// Service owns the dashboard-wide date range. There is one writer (the
// settings endpoint) and any number of readers; every Set bumps the version.
type Service interface {
	Current(ctx context.Context) query.DateRange
	Set(ctx context.Context, start, end *time.Time) (query.DateRange, error)
	ApplyPreset(ctx context.Context, preset string) (query.DateRange, error)
	Clear(ctx context.Context) (query.DateRange, error)
	Restore(ctx context.Context) error
}

type service struct {
	mu      sync.RWMutex
	current query.DateRange
	store   redis.JSONStore
	logg    *logger.Logger
}

// NewService starts with both bounds unset. store may be nil, in which case
// the range lives only in memory.
func NewService(store redis.JSONStore, logg *logger.Logger) Service {
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{store: store, logg: logg}
}

func (s *service) Current(ctx context.Context) query.DateRange {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

func (s *service) Set(ctx context.Context, start, end *time.Time) (query.DateRange, error) {
	start, end = truncateDay(start), truncateDay(end)
	if start != nil && end != nil && end.Before(*start) {
		return query.DateRange{}, pkgerrors.New(pkgerrors.CodeValidation, "end must not be before start").
			WithDetails(map[string]any{"start": start.Format(query.DateLayout), "end": end.Format(query.DateLayout)})
	}

	s.mu.Lock()
	next := query.DateRange{Start: start, End: end, Version: s.current.Version + 1}
	s.current = next
	s.mu.Unlock()

	s.persist(ctx, next)
	return next, nil
}

// ApplyPreset sets a range ending today: 7d, 30d or 90d.
func (s *service) ApplyPreset(ctx context.Context, preset string) (query.DateRange, error) {
	days, ok := presetDays(preset)
	if !ok {
		return query.DateRange{}, pkgerrors.New(pkgerrors.CodeValidation, "invalid preset").
			WithDetails(map[string]any{"preset": preset, "allowed": []string{"7d", "30d", "90d"}})
	}
	end := timeNowUTC()
	start := end.AddDate(0, 0, -days)
	return s.Set(ctx, &start, &end)
}

func (s *service) Clear(ctx context.Context) (query.DateRange, error) {
	return s.Set(ctx, nil, nil)
}

// Restore loads a persisted range. A missing entry keeps the unset default.
func (s *service) Restore(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	var stored query.DateRange
	found, err := s.store.GetJSON(ctx, dateRangeKey, &stored)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "restore date range")
	}
	if !found {
		return nil
	}

	s.mu.Lock()
	if stored.Version > s.current.Version {
		s.current = query.DateRange{Start: truncateDay(stored.Start), End: truncateDay(stored.End), Version: stored.Version}
	}
	s.mu.Unlock()
	return nil
}

func (s *service) persist(ctx context.Context, r query.DateRange) {
	if s.store == nil {
		return
	}
	if err := s.store.SetJSON(ctx, dateRangeKey, r, 0); err != nil {
		s.logg.Error(s.logg.WithField(ctx, "version", r.Version), "failed to persist date range", err)
	}
}

func presetDays(value string) (int, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "7d":
		return 7, true
	case "30d":
		return 30, true
	case "90d":
		return 90, true
	default:
		return 0, false
	}
}

func truncateDay(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	day := time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
	return &day
}
