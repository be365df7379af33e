package fetcher

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/go-shiori/go-readability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/translatekit/chatbridge/internal/browser"
)

var (
	cacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatbridge_chapter_cache_total",
		Help: "Chapter cache lookups by result.",
	}, []string{"result"})

	fetchSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "chatbridge_chapter_fetch_seconds",
		Help:    "Wall time of an uncached chapter fetch.",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 8),
	})
)

// Chapter is one fetched page reduced to its readable content plus the
// site's chapter navigation links.
type Chapter struct {
	URL      string `json:"url"`
	Title    string `json:"title"`
	Text     string `json:"text"`
	PrevLink string `json:"prevLink,omitempty"`
	NextLink string `json:"nextLink,omitempty"`
}

// Fetcher renders single pages through the shared browser session and
// caches successful results by canonical URL. It is independent of the
// translation orchestrator.
type Fetcher struct {
	mgr        *browser.Manager
	cache      Cache
	navTimeout time.Duration
	restarts   int
	logger     *log.Logger

	// render is swappable for tests; defaults to the live browser render.
	render func(ctx context.Context, pageURL string) (Chapter, error)
}

func New(mgr *browser.Manager, cache Cache, navTimeout time.Duration, restarts int) *Fetcher {
	if navTimeout <= 0 {
		navTimeout = 45 * time.Second
	}
	f := &Fetcher{
		mgr:        mgr,
		cache:      cache,
		navTimeout: navTimeout,
		restarts:   restarts,
		logger:     log.New(log.Writer(), "[FETCH] ", log.LstdFlags),
	}
	f.render = f.renderLive
	return f
}

// Fetch returns the chapter at rawURL, from cache when a previous fetch
// of the same canonical URL succeeded. Only successful results are
// cached.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (Chapter, error) {
	key, err := CanonicalURL(rawURL)
	if err != nil {
		return Chapter{}, err
	}

	if ch, ok, cerr := f.cache.Get(ctx, key); cerr != nil {
		f.logger.Printf("cache lookup failed, fetching live: %v", cerr)
	} else if ok {
		cacheLookups.WithLabelValues("hit").Inc()
		return ch, nil
	}
	cacheLookups.WithLabelValues("miss").Inc()

	start := time.Now()
	ch, err := f.render(ctx, key)
	if err != nil {
		return Chapter{}, err
	}
	fetchSeconds.Observe(time.Since(start).Seconds())

	if err := f.cache.Set(ctx, key, ch); err != nil {
		f.logger.Printf("cache store failed: %v", err)
	}
	return ch, nil
}

// ClearCache drops every cached chapter.
func (f *Fetcher) ClearCache(ctx context.Context) error {
	return f.cache.Clear(ctx)
}

// renderLive navigates a dedicated page to the chapter, captures its
// HTML and navigation links, and extracts the readable body.
func (f *Fetcher) renderLive(ctx context.Context, pageURL string) (Chapter, error) {
	parsed, err := url.Parse(pageURL)
	if err != nil {
		return Chapter{}, fmt.Errorf("invalid url: %w", err)
	}
	site := SiteFor(parsed.Hostname())

	var html string
	var nav struct {
		Prev string `json:"prev"`
		Next string `json:"next"`
	}
	err = f.mgr.WithRestart(ctx, f.restarts, func(ctx context.Context, sess *browser.Session) error {
		page := sess.NewPage()
		defer page.Close()

		navCtx, cancel := context.WithTimeout(page.Ctx, f.navTimeout)
		defer cancel()
		err := chromedp.Run(navCtx,
			chromedp.Navigate(pageURL),
			chromedp.WaitReady("body", chromedp.ByQuery),
			chromedp.OuterHTML("html", &html, chromedp.ByQuery),
			chromedp.Evaluate(navLinksJS(site), &nav),
		)
		if err != nil {
			return sess.ClassifyErr(fmt.Errorf("render %s: %w", pageURL, err))
		}
		return nil
	})
	if err != nil {
		return Chapter{}, err
	}

	article, err := readability.FromReader(strings.NewReader(html), parsed)
	if err != nil {
		return Chapter{}, fmt.Errorf("extract content: %w", err)
	}
	text := strings.TrimSpace(article.TextContent)
	if text == "" {
		return Chapter{}, fmt.Errorf("page at %s has no readable content", pageURL)
	}

	return Chapter{
		URL:      pageURL,
		Title:    strings.TrimSpace(article.Title),
		Text:     text,
		PrevLink: nav.Prev,
		NextLink: nav.Next,
	}, nil
}
