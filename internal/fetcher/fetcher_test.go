package fetcher

import (
	"context"
	"errors"
	"testing"
)

func newTestFetcher(render func(ctx context.Context, url string) (Chapter, error)) *Fetcher {
	f := New(nil, NewMemoryCache(), 0, 0)
	f.render = render
	return f
}

func TestFetchCachesSuccessfulResults(t *testing.T) {
	t.Parallel()
	renders := 0
	f := newTestFetcher(func(_ context.Context, url string) (Chapter, error) {
		renders++
		return Chapter{URL: url, Title: "第一章", Text: "正文"}, nil
	})

	ctx := context.Background()
	first, err := f.Fetch(ctx, "https://example.com/x")
	if err != nil {
		t.Fatal(err)
	}
	second, err := f.Fetch(ctx, "https://example.com/x")
	if err != nil {
		t.Fatal(err)
	}
	if renders != 1 {
		t.Fatalf("second fetch must come from cache, rendered %d times", renders)
	}
	if first != second {
		t.Fatalf("cached result differs: %+v vs %+v", first, second)
	}
}

func TestFetchCacheKeyIsCanonical(t *testing.T) {
	t.Parallel()
	renders := 0
	f := newTestFetcher(func(context.Context, string) (Chapter, error) {
		renders++
		return Chapter{Title: "t", Text: "x"}, nil
	})

	ctx := context.Background()
	if _, err := f.Fetch(ctx, "https://Example.com/x?utm_source=feed"); err != nil {
		t.Fatal(err)
	}
	if _, err := f.Fetch(ctx, "https://example.com/x"); err != nil {
		t.Fatal(err)
	}
	if renders != 1 {
		t.Fatalf("equivalent URLs must share one cache entry, rendered %d times", renders)
	}
}

func TestFetchDoesNotCacheFailures(t *testing.T) {
	t.Parallel()
	renders := 0
	f := newTestFetcher(func(context.Context, string) (Chapter, error) {
		renders++
		if renders == 1 {
			return Chapter{}, errors.New("render timed out")
		}
		return Chapter{Title: "t", Text: "x"}, nil
	})

	ctx := context.Background()
	if _, err := f.Fetch(ctx, "https://example.com/x"); err == nil {
		t.Fatal("expected first fetch to fail")
	}
	if _, err := f.Fetch(ctx, "https://example.com/x"); err != nil {
		t.Fatalf("second fetch should retry the render: %v", err)
	}
	if renders != 2 {
		t.Fatalf("failure must not be cached, rendered %d times", renders)
	}
}

func TestClearCacheForcesRefetch(t *testing.T) {
	t.Parallel()
	renders := 0
	f := newTestFetcher(func(context.Context, string) (Chapter, error) {
		renders++
		return Chapter{Title: "t", Text: "x"}, nil
	})

	ctx := context.Background()
	if _, err := f.Fetch(ctx, "https://example.com/x"); err != nil {
		t.Fatal(err)
	}
	if err := f.ClearCache(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := f.Fetch(ctx, "https://example.com/x"); err != nil {
		t.Fatal(err)
	}
	if renders != 2 {
		t.Fatalf("clear must drop the entry, rendered %d times", renders)
	}
}

func TestFetchRejectsInvalidURLBeforeRender(t *testing.T) {
	t.Parallel()
	f := newTestFetcher(func(context.Context, string) (Chapter, error) {
		t.Fatal("render must not run for an invalid url")
		return Chapter{}, nil
	})
	if _, err := f.Fetch(context.Background(), "notaurl"); err == nil {
		t.Fatal("expected error")
	}
}
