package middleware

import "context"

type contextKey string

const (
	ctxRequestID contextKey = "request_id"
	ctxWidgetID  contextKey = "widget_id"
)

func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxRequestID).(string); ok {
		return v
	}
	return ""
}

func WidgetIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxWidgetID).(string); ok {
		return v
	}
	return ""
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxRequestID, requestID)
}

// WithWidgetID injects the widget identifier into the context for downstream handlers.
func WithWidgetID(ctx context.Context, widgetID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxWidgetID, widgetID)
}
