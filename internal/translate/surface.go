package translate

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/translatekit/chatbridge/config"
	"github.com/translatekit/chatbridge/internal/browser"
	"github.com/translatekit/chatbridge/internal/chat"
)

// BrowserSurface is the production Surface: one shared session manager,
// one dedicated page per job.
type BrowserSurface struct {
	Manager    *browser.Manager
	Auth       *browser.Authenticator
	Submitter  *chat.Submitter
	SurfaceURL string
	NavTimeout time.Duration
	Restarts   int
}

type browserPage struct {
	page *browser.Page
	s    *BrowserSurface
	sess *browser.Session
	url  string
}

// Open acquires the session (restarting it when the process died),
// opens the job's page, navigates to the chat surface and ensures the
// authenticated state. The page is closed here on every failure path.
func (b *BrowserSurface) Open(ctx context.Context, surfaceURL string) (SurfacePage, error) {
	if surfaceURL == "" {
		surfaceURL = b.SurfaceURL
	}
	var out *browserPage
	err := b.Manager.WithRestart(ctx, b.Restarts, func(ctx context.Context, sess *browser.Session) error {
		page := sess.NewPage()
		navCtx, cancel := context.WithTimeout(page.Ctx, b.navTimeout())
		err := chromedp.Run(navCtx, chromedp.Navigate(surfaceURL))
		cancel()
		if err != nil {
			page.Close()
			return sess.ClassifyErr(fmt.Errorf("open chat surface: %w", err))
		}
		if err := b.Auth.EnsureAuthenticated(ctx, page); err != nil {
			page.Close()
			return sess.ClassifyErr(err)
		}
		out = &browserPage{page: page, s: b, sess: sess, url: surfaceURL}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (b *BrowserSurface) navTimeout() time.Duration {
	if b.NavTimeout > 0 {
		return b.NavTimeout
	}
	return 45 * time.Second
}

func (p *browserPage) Submit(ctx context.Context, chunk, promptPrefix string) (string, error) {
	reply, err := p.s.Submitter.Submit(ctx, p.page, chunk, promptPrefix)
	if err != nil {
		return "", p.sess.ClassifyErr(err)
	}
	return reply, nil
}

// Recover reloads the chat surface and re-authenticates on the same
// page, the orchestrator's composable recovery step between retries.
func (p *browserPage) Recover(ctx context.Context) error {
	navCtx, cancel := context.WithTimeout(p.page.Ctx, p.s.navTimeout())
	err := chromedp.Run(navCtx, chromedp.Navigate(p.url))
	cancel()
	if err != nil {
		return p.sess.ClassifyErr(fmt.Errorf("reload chat surface: %w", err))
	}
	if err := p.s.Auth.EnsureAuthenticated(ctx, p.page); err != nil {
		return p.sess.ClassifyErr(err)
	}
	return nil
}

func (p *browserPage) Close() { p.page.Close() }

// NewBrowserSurface wires the production surface from config and the
// selector profile registry.
func NewBrowserSurface(cfg *config.Config, mgr *browser.Manager, auth *browser.Authenticator) (*BrowserSurface, error) {
	profile, err := chat.ProfileFor(cfg.Chat.Surface)
	if err != nil {
		return nil, err
	}
	return &BrowserSurface{
		Manager:    mgr,
		Auth:       auth,
		Submitter:  chat.NewSubmitter(profile, nil, cfg.Chat),
		SurfaceURL: cfg.Chat.SurfaceURL,
		NavTimeout: cfg.Browser.NavTimeout,
		Restarts:   cfg.Browser.RestartRetries,
	}, nil
}
