package redis

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/argos/pkg/config"
)

func setupTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	host, port, err := net.SplitHostPort(mr.Addr())
	require.NoError(t, err)

	client, err := New(&config.Config{
		Redis: config.RedisConfig{
			Host:    host,
			Port:    port,
			Enabled: true,
		},
	})
	require.NoError(t, err)

	return client, mr
}

func TestNewClient_Disabled(t *testing.T) {
	cfg := &config.Config{
		Redis: config.RedisConfig{
			Enabled: false,
		},
	}

	client, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if client.Enabled() {
		t.Error("Expected client to be disabled")
	}
}

func TestRateLimiter_Disabled(t *testing.T) {
	cfg := &config.Config{
		Redis: config.RedisConfig{
			Enabled: false,
		},
	}

	client, _ := New(cfg)
	limiter := NewRateLimiter(client, "test")

	// When Redis is disabled, all requests should be allowed
	allowed, remaining, err := limiter.Allow(nil, EngineRateLimit)
	if err != nil {
		t.Fatalf("Allow() error = %v", err)
	}
	if !allowed {
		t.Error("Expected request to be allowed when Redis disabled")
	}
	if remaining != EngineRateLimit.Limit {
		t.Errorf("Expected remaining = %d, got %d", EngineRateLimit.Limit, remaining)
	}
}

func TestRateLimiter_SlidingWindow(t *testing.T) {
	client, mr := setupTestClient(t)
	defer mr.Close()
	defer func() { _ = client.Close() }()

	limiter := NewRateLimiter(client, "argos")
	cfg := RateLimitConfig{Key: "engine", Limit: 2, Window: time.Minute}

	ctx := context.Background()

	allowed, remaining, err := limiter.Allow(ctx, cfg)
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Equal(t, 1, remaining)

	allowed, remaining, err = limiter.Allow(ctx, cfg)
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Equal(t, 0, remaining)

	// Third request inside the same window must be rejected
	allowed, _, err = limiter.Allow(ctx, cfg)
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestCache_Disabled(t *testing.T) {
	cfg := &config.Config{
		Redis: config.RedisConfig{
			Enabled: false,
		},
	}

	client, _ := New(cfg)
	cache := NewCache(client, "test")

	// When Redis is disabled, cache operations should be no-ops
	var result string
	found, err := cache.Get(nil, "key", &result)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if found {
		t.Error("Expected cache miss when Redis disabled")
	}
}

func TestCache_SetGet(t *testing.T) {
	client, mr := setupTestClient(t)
	defer mr.Close()
	defer func() { _ = client.Close() }()

	cache := NewCache(client, "argos")
	ctx := context.Background()

	type summary struct {
		TaskID string `json:"task_id"`
		Buy    int    `json:"buy"`
	}

	err := cache.Set(ctx, RecommendationKey("t1"), summary{TaskID: "t1", Buy: 3}, TTLMedium)
	require.NoError(t, err)

	var got summary
	found, err := cache.Get(ctx, RecommendationKey("t1"), &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "t1", got.TaskID)
	assert.Equal(t, 3, got.Buy)

	// Delete then miss
	require.NoError(t, cache.Delete(ctx, RecommendationKey("t1")))
	found, err = cache.Get(ctx, RecommendationKey("t1"), &got)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestCacheKeys(t *testing.T) {
	tests := []struct {
		name     string
		fn       func() string
		expected string
	}{
		{
			name:     "RecommendationKey",
			fn:       func() string { return RecommendationKey("3f7a") },
			expected: "recommendation:3f7a",
		},
		{
			name:     "AccuracyKey",
			fn:       func() string { return AccuracyKey() },
			expected: "backtest:accuracy",
		},
		{
			name:     "ScheduleKey",
			fn:       func() string { return ScheduleKey() },
			expected: "schedule:settings",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.fn(); got != tt.expected {
				t.Errorf("got %q, want %q", got, tt.expected)
			}
		})
	}
}
