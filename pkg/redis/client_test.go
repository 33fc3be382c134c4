package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/angelmondragon/analytics-dashboard/pkg/config"
	"github.com/redis/go-redis/v9"
)

func TestJSONRoundTripAndMiss(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}

	var missing []string
	found, err := client.GetJSON(ctx, MetadataKey("states"), &missing)
	if err != nil {
		t.Fatalf("unexpected error on miss: %v", err)
	}
	if found {
		t.Fatalf("expected miss for unknown key")
	}

	if err := client.SetJSON(ctx, MetadataKey("states"), []string{"RJ", "SP"}, time.Minute); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if got := mock.ttls[MetadataKey("states")]; got != time.Minute {
		t.Fatalf("expected ttl to be forwarded, got %v", got)
	}

	var states []string
	found, err = client.GetJSON(ctx, MetadataKey("states"), &states)
	if err != nil || !found {
		t.Fatalf("expected hit, found=%v err=%v", found, err)
	}
	if len(states) != 2 || states[1] != "SP" {
		t.Fatalf("unexpected decoded value %v", states)
	}

	if err := client.Del(ctx, MetadataKey("states")); err != nil {
		t.Fatalf("del failed: %v", err)
	}
	if found, _ := client.GetJSON(ctx, MetadataKey("states"), &states); found {
		t.Fatalf("expected miss after delete")
	}
}

func TestGetJSONSurfacesCorruptPayload(t *testing.T) {
	mock := newMockCmdable()
	mock.data["dash:metadata:metrics"] = "{not json"
	client := &Client{store: mock}

	var dest []string
	if _, err := client.GetJSON(context.Background(), "dash:metadata:metrics", &dest); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestUninitializedClient(t *testing.T) {
	var client *Client
	if err := client.Ping(context.Background()); !errors.Is(err, errNotInitialized) {
		t.Fatalf("expected not initialized error, got %v", err)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("close on nil client should be a no-op, got %v", err)
	}
}

func TestKeyBuilders(t *testing.T) {
	if got := MetadataKey("cities", "SP"); got != "dash:metadata:cities:SP" {
		t.Fatalf("unexpected metadata key %s", got)
	}
	if got := MetadataKey("cities", ""); got != "dash:metadata:cities" {
		t.Fatalf("empty parts should be skipped, got %s", got)
	}
	if got := SettingsKey("date_range"); got != "dash:settings:date_range" {
		t.Fatalf("unexpected settings key %s", got)
	}
}

func TestOptionsFromConfig(t *testing.T) {
	if _, err := optionsFromConfig(config.RedisConfig{}); err == nil {
		t.Fatalf("expected error without url or address")
	}
	opts, err := optionsFromConfig(config.RedisConfig{Address: "localhost:6380", DB: 2, PoolSize: 4, DialTimeout: time.Second})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.Addr != "localhost:6380" || opts.DB != 2 || opts.PoolSize != 4 || opts.DialTimeout != time.Second {
		t.Fatalf("unexpected options %+v", opts)
	}
}

type mockCmdable struct {
	data      map[string]string
	ttls      map[string]time.Duration
	scanPages int
}

func newMockCmdable() *mockCmdable {
	return &mockCmdable{
		data: make(map[string]string),
		ttls: make(map[string]time.Duration),
	}
}

func (m *mockCmdable) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (m *mockCmdable) Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	m.data[key] = fmt.Sprint(value)
	m.ttls[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

func (m *mockCmdable) Get(ctx context.Context, key string) *redis.StringCmd {
	v, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *mockCmdable) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	for _, key := range keys {
		delete(m.data, key)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

// Scan returns every match on the first page and an empty final page, so the
// cursor loop runs twice.
func (m *mockCmdable) Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd {
	m.scanPages++
	if cursor != 0 {
		return redis.NewScanCmdResult(nil, 0, nil)
	}
	prefix := strings.TrimSuffix(match, "*")
	var keys []string
	for key := range m.data {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return redis.NewScanCmdResult(keys, 1, nil)
}

func TestDelPrefixRemovesEveryScopedKey(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}

	for _, state := range []string{"SP", "RJ", "all"} {
		if err := client.SetJSON(ctx, MetadataKey("cities", state), []string{"x"}, time.Minute); err != nil {
			t.Fatalf("set failed: %v", err)
		}
	}
	if err := client.SetJSON(ctx, MetadataKey("states"), []string{"SP"}, time.Minute); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	if err := client.DelPrefix(ctx, MetadataKey("cities")); err != nil {
		t.Fatalf("del prefix failed: %v", err)
	}
	for key := range mock.data {
		if strings.HasPrefix(key, MetadataKey("cities")) {
			t.Fatalf("expected %s to be removed", key)
		}
	}
	if _, ok := mock.data[MetadataKey("states")]; !ok {
		t.Fatalf("keys outside the prefix must survive")
	}
	if mock.scanPages < 2 {
		t.Fatalf("expected the scan cursor to be followed, got %d pages", mock.scanPages)
	}
}
