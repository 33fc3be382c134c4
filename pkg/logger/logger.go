// Package logger writes JSON log entries through zerolog. Fields ride on the
// request context, so an entry logged deep inside a widget query carries the
// request id, the widget id, the query key and the lifecycle generation that
// the HTTP layer and the orchestrator attached on the way down.
package logger

import (
	"context"
	"io"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"github.com/angelmondragon/analytics-dashboard/pkg/env"
	"github.com/rs/zerolog"
)

// Context field names shared by the API and the query pipeline.
const (
	FieldRequestID  = "request_id"
	FieldWidgetID   = "widget_id"
	FieldQueryKey   = "query_key"
	FieldGeneration = "generation"
)

// Options configures the structured logger. Level is a level name such as
// "debug" or "warn"; empty or unknown names mean info. Console defaults to
// LOG_FORMAT=console.
type Options struct {
	ServiceName string
	Level       string
	Console     bool
	WarnStack   bool
	Output      io.Writer
}

type Logger struct {
	base      *zerolog.Logger
	warnStack bool
}

type ctxKey struct{}

func New(opts Options) *Logger {
	output := opts.Output
	if output == nil {
		output = os.Stdout
	}
	if opts.Console || env.Get("LOG_FORMAT", "json") == "console" {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: "15:04:05"}
	}

	zerolog.TimeFieldFormat = time.RFC3339Nano

	base := zerolog.New(output).
		With().
		Timestamp().
		Str("service", opts.ServiceName).
		Logger().
		Level(ParseLevel(opts.Level))

	return &Logger{base: &base, warnStack: opts.WarnStack}
}

// Nop discards everything.
func Nop() *Logger {
	l := zerolog.Nop()
	return &Logger{base: &l}
}

// ParseLevel maps a level name to a zerolog level, defaulting to info.
func ParseLevel(value string) zerolog.Level {
	name := strings.ToLower(strings.TrimSpace(value))
	if name == "" {
		return zerolog.InfoLevel
	}
	if lvl, err := zerolog.ParseLevel(name); err == nil && lvl != zerolog.NoLevel {
		return lvl
	}
	return zerolog.InfoLevel
}

func (l *Logger) entry(ctx context.Context) *zerolog.Logger {
	if ctx != nil {
		if e, ok := ctx.Value(ctxKey{}).(*zerolog.Logger); ok {
			return e
		}
	}
	return l.base
}

func (l *Logger) with(ctx context.Context, e zerolog.Logger) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxKey{}, &e)
}

func (l *Logger) WithField(ctx context.Context, key string, value any) context.Context {
	return l.with(ctx, l.entry(ctx).With().Interface(key, value).Logger())
}

func (l *Logger) WithFields(ctx context.Context, fields map[string]any) context.Context {
	b := l.entry(ctx).With()
	for k, v := range fields {
		b = b.Interface(k, v)
	}
	return l.with(ctx, b.Logger())
}

func (l *Logger) WithRequestID(ctx context.Context, requestID string) context.Context {
	return l.with(ctx, l.entry(ctx).With().Str(FieldRequestID, requestID).Logger())
}

// WithWidgetID is attached by the widget routes and the widgets service.
func (l *Logger) WithWidgetID(ctx context.Context, widgetID string) context.Context {
	return l.with(ctx, l.entry(ctx).With().Str(FieldWidgetID, widgetID).Logger())
}

// WithQueryKey tags entries with the dedup key of the effective query, which
// embeds the date filter, so retries of one lifecycle share a key.
func (l *Logger) WithQueryKey(ctx context.Context, key string) context.Context {
	return l.with(ctx, l.entry(ctx).With().Str(FieldQueryKey, key).Logger())
}

// WithGeneration tags entries with an orchestrator lifecycle generation.
// Entries from a superseded lifecycle show an older generation than the
// widget's snapshot.
func (l *Logger) WithGeneration(ctx context.Context, generation uint64) context.Context {
	return l.with(ctx, l.entry(ctx).With().Uint64(FieldGeneration, generation).Logger())
}

func (l *Logger) Debug(ctx context.Context, msg string) {
	l.entry(ctx).Debug().Msg(msg)
}

func (l *Logger) Info(ctx context.Context, msg string) {
	l.entry(ctx).Info().Msg(msg)
}

// Warn adds a stack only when WarnStack is set.
func (l *Logger) Warn(ctx context.Context, msg string) {
	event := l.entry(ctx).Warn()
	if l.warnStack {
		event = event.Str("stack", stackTrace())
	}
	event.Msg(msg)
}

func (l *Logger) Error(ctx context.Context, msg string, err error) {
	event := l.entry(ctx).Error()
	if err != nil {
		event = event.Err(err)
	}
	event.Str("stack", stackTrace()).Msg(msg)
}

func stackTrace() string {
	return strings.TrimSpace(string(debug.Stack()))
}
