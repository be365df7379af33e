package fetcher

import (
	"context"
	"testing"

	"github.com/translatekit/chatbridge/config"
)

func TestMemoryCacheRoundTrip(t *testing.T) {
	t.Parallel()
	c := NewMemoryCache()
	ctx := context.Background()

	if _, ok, _ := c.Get(ctx, "k"); ok {
		t.Fatal("empty cache reported a hit")
	}
	ch := Chapter{URL: "u", Title: "t", Text: "x", NextLink: "n"}
	if err := c.Set(ctx, "k", ch); err != nil {
		t.Fatal(err)
	}
	got, ok, err := c.Get(ctx, "k")
	if err != nil || !ok {
		t.Fatalf("expected hit, ok=%v err=%v", ok, err)
	}
	if got != ch {
		t.Fatalf("got %+v, want %+v", got, ch)
	}

	if err := c.Clear(ctx); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := c.Get(ctx, "k"); ok {
		t.Fatal("clear left entries behind")
	}
}

func TestNewCacheBackendSelection(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		cfg     config.CacheConfig
		wantErr bool
	}{
		{"default is inmemory", config.CacheConfig{}, false},
		{"inmemory explicit", config.CacheConfig{Backend: "inmemory"}, false},
		{"redis", config.CacheConfig{Backend: "redis", Redis: config.RedisConfig{Host: "localhost", Port: "6379"}}, false},
		{"unknown backend", config.CacheConfig{Backend: "memcached"}, true},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			c, err := NewCache(tc.cfg)
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if c == nil {
				t.Fatal("nil cache")
			}
		})
	}
}
