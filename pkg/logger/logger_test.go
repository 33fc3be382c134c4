package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
)

func decodeEntry(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("decode entry %q: %v", buf.String(), err)
	}
	return entry
}

func TestLoggerErrorIncludesContextFields(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Level: "debug", Output: buf})

	ctx := context.Background()
	ctx = log.WithRequestID(ctx, "req-123")
	ctx = log.WithWidgetID(ctx, "widget-7")

	log.Error(ctx, "boom", errors.New("boom"))

	for _, field := range []string{"\"request_id\"", "\"widget_id\"", "\"stack\""} {
		if !bytes.Contains(buf.Bytes(), []byte(field)) {
			t.Fatalf("expected %s in entry=%s", field, buf.String())
		}
	}
}

func TestQueryPipelineFieldsAccumulate(t *testing.T) {
	t.Setenv("LOG_FORMAT", "json")
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "dashboard-api", Output: buf})

	ctx := log.WithWidgetID(context.Background(), "sales-by-region")
	ctx = log.WithGeneration(ctx, 4)
	ctx = log.WithQueryKey(ctx, `{"metrics":["order_count"]}`)
	log.Warn(log.WithField(ctx, "attempt", 2), "analytics query attempt failed; retrying")

	entry := decodeEntry(t, buf)
	if entry[FieldWidgetID] != "sales-by-region" {
		t.Fatalf("unexpected widget id in %v", entry)
	}
	if entry[FieldGeneration] != float64(4) || entry["attempt"] != float64(2) {
		t.Fatalf("unexpected lifecycle fields in %v", entry)
	}
	if entry[FieldQueryKey] != `{"metrics":["order_count"]}` {
		t.Fatalf("unexpected query key in %v", entry)
	}

	buf.Reset()
	log.Info(context.Background(), "unrelated")
	if _, ok := decodeEntry(t, buf)[FieldWidgetID]; ok {
		t.Fatal("fields must not leak into contexts that never carried them")
	}
}

func TestLoggerWarnStackToggle(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Level: "debug", Output: buf, WarnStack: true})
	log.Warn(context.Background(), "warny")
	if !bytes.Contains(buf.Bytes(), []byte("\"stack\"")) {
		t.Fatalf("expected stack when warn stack enabled; entry=%s", buf.String())
	}

	buf.Reset()
	quiet := New(Options{ServiceName: "test", Output: buf})
	quiet.Warn(context.Background(), "warny")
	if bytes.Contains(buf.Bytes(), []byte("\"stack\"")) {
		t.Fatalf("did not expect stack with toggle off; entry=%s", buf.String())
	}
}

func TestDefaultLevelIsInfo(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Output: buf})
	log.Debug(context.Background(), "hidden")
	if buf.Len() != 0 {
		t.Fatalf("debug should be filtered at info level; entry=%s", buf.String())
	}
	log.Info(context.Background(), "shown")
	if buf.Len() == 0 {
		t.Fatal("info should be written at the default level")
	}

	buf.Reset()
	verbose := New(Options{ServiceName: "test", Level: "DEBUG", Output: buf})
	verbose.Debug(context.Background(), "shown")
	if buf.Len() == 0 {
		t.Fatal("debug level should write debug entries")
	}
}

func TestParseLevelDefaults(t *testing.T) {
	if lvl := ParseLevel(""); lvl != zerolog.InfoLevel {
		t.Fatalf("expected default info level, got %v", lvl)
	}
	if lvl := ParseLevel("invalid"); lvl != zerolog.InfoLevel {
		t.Fatalf("invalid level should fallback to info, got %v", lvl)
	}
	if lvl := ParseLevel(" WARN "); lvl != zerolog.WarnLevel {
		t.Fatalf("expected warn, got %v", lvl)
	}
}
