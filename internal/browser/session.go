package browser

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/translatekit/chatbridge/config"
)

// ErrSessionLost marks a failure caused by the browser process dying out
// from under an in-flight operation. Recoverable: the next acquire pays
// the relaunch cost.
var ErrSessionLost = errors.New("browser session lost")

// Manager owns the single headless browser process. At most one live
// session exists process-wide; concurrent callers share the same handle.
type Manager struct {
	cfg     config.BrowserConfig
	origin  string
	cookies *CookieStore
	logger  *log.Logger

	// launch is swappable for tests; defaults to launching Chrome.
	launch func(headless bool) (context.Context, context.CancelFunc, context.CancelFunc, error)
	// restartDelay is the base backoff between relaunch attempts; it
	// doubles per attempt.
	restartDelay time.Duration

	mu          sync.Mutex
	allocCancel context.CancelFunc
	browserCtx  context.Context
	cancel      context.CancelFunc
	initialized bool
	headless    bool
}

// Session is the live browser handle. Pages are opened from it; the
// session itself is never closed by callers, only by Manager.Reset.
type Session struct {
	ctx context.Context
}

// Page is one tab, exclusively owned by the operation that opened it.
// It must be closed on every exit path.
type Page struct {
	Ctx    context.Context
	cancel context.CancelFunc
}

func (p *Page) Close() {
	if p.cancel != nil {
		p.cancel()
	}
}

func NewManager(cfg config.BrowserConfig, origin string, cookies *CookieStore) *Manager {
	m := &Manager{
		cfg:          cfg,
		origin:       origin,
		cookies:      cookies,
		logger:       log.New(log.Writer(), "[SESSION] ", log.LstdFlags),
		restartDelay: time.Second,
	}
	m.launch = m.launchChrome
	return m
}

// Acquire returns the live session, launching the browser on first use.
// Idempotent while the session is live; a dead session is detected here
// and relaunched.
func (m *Manager) Acquire(ctx context.Context) (*Session, error) {
	return m.acquire(ctx, m.cfg.Headless)
}

// AcquireHeadful forces a visible browser window, used for manual login.
// If the live session was launched headless it is torn down first; an
// already-headful session is reused.
func (m *Manager) AcquireHeadful(ctx context.Context) (*Session, error) {
	m.mu.Lock()
	if m.initialized && m.headless {
		m.teardownLocked()
	}
	m.mu.Unlock()
	return m.acquire(ctx, false)
}

func (m *Manager) acquire(ctx context.Context, headless bool) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.initialized {
		select {
		case <-m.browserCtx.Done():
			m.logger.Printf("previous browser process gone, relaunching")
			m.teardownLocked()
		default:
			return &Session{ctx: m.browserCtx}, nil
		}
	}

	browserCtx, cancel, allocCancel, err := m.launch(headless)
	if err != nil {
		return nil, err
	}

	m.allocCancel = allocCancel
	m.browserCtx = browserCtx
	m.cancel = cancel
	m.initialized = true
	m.headless = headless
	m.logger.Printf("browser session ready (headless=%v)", headless)
	return &Session{ctx: browserCtx}, nil
}

// launchChrome starts the browser process and seeds the session. It is
// the default behind the launch seam.
func (m *Manager) launchChrome(headless bool) (context.Context, context.CancelFunc, context.CancelFunc, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.Flag("headless", headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("window-size", "1280,900"),
	)
	if m.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(m.cfg.ExecPath))
	}
	if m.cfg.UserDataDir != "" {
		opts = append(opts, chromedp.UserDataDir(m.cfg.UserDataDir))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, cancel := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(format string, v ...interface{}) {
		m.logger.Printf("[chrome] "+format, v...)
	}))

	// Start the browser process now rather than on first action.
	if err := chromedp.Run(browserCtx); err != nil {
		cancel()
		allocCancel()
		return nil, nil, nil, fmt.Errorf("launch browser: %w", err)
	}

	if err := m.seedSession(browserCtx); err != nil {
		cancel()
		allocCancel()
		return nil, nil, nil, err
	}
	return browserCtx, cancel, allocCancel, nil
}

// seedSession loads persisted cookies and performs one settling
// navigation to the surface origin.
func (m *Manager) seedSession(browserCtx context.Context) error {
	cookies, err := m.cookies.Load(time.Now())
	if err != nil {
		return err
	}
	navCtx, cancel := context.WithTimeout(browserCtx, m.navTimeout())
	defer cancel()
	if len(cookies) > 0 {
		if err := chromedp.Run(navCtx, setCookiesAction(cookies)); err != nil {
			return fmt.Errorf("replay cookies: %w", err)
		}
	}
	if err := chromedp.Run(navCtx, chromedp.Navigate(m.origin)); err != nil {
		return fmt.Errorf("settling navigation: %w", err)
	}
	return nil
}

func (m *Manager) navTimeout() time.Duration {
	if m.cfg.NavTimeout > 0 {
		return m.cfg.NavTimeout
	}
	return 45 * time.Second
}

// Reset tears the session down; the next Acquire relaunches.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.teardownLocked()
}

func (m *Manager) teardownLocked() {
	if m.cancel != nil {
		m.cancel()
	}
	if m.allocCancel != nil {
		m.allocCancel()
	}
	m.cancel = nil
	m.allocCancel = nil
	m.browserCtx = nil
	m.initialized = false
}

// Alive reports whether a live session exists without launching one.
func (m *Manager) Alive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.initialized {
		return false
	}
	select {
	case <-m.browserCtx.Done():
		return false
	default:
		return true
	}
}

// NewPage opens a tab owned by the caller. The page inherits the
// session's lifetime: if the browser dies the page context is done.
func (s *Session) NewPage() *Page {
	ctx, cancel := chromedp.NewContext(s.ctx)
	return &Page{Ctx: ctx, cancel: cancel}
}

// Lost reports whether the session behind this handle has died.
func (s *Session) Lost() bool {
	select {
	case <-s.ctx.Done():
		return true
	default:
		return false
	}
}

// ClassifyErr reclassifies an operation error as ErrSessionLost when the
// browser process is no longer alive, so callers retry through WithRestart
// instead of surfacing a raw context error.
func (s *Session) ClassifyErr(err error) error {
	if err == nil {
		return nil
	}
	if s.Lost() {
		return fmt.Errorf("%w: %v", ErrSessionLost, err)
	}
	return err
}

// WithRestart runs op, and on ErrSessionLost resets the session and
// retries up to maxRetries times, backing off between relaunches. Any
// other error propagates unchanged.
func (m *Manager) WithRestart(ctx context.Context, maxRetries int, op func(ctx context.Context, s *Session) error) error {
	if maxRetries < 0 {
		maxRetries = 0
	}
	var err error
	delay := m.restartDelay
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("browser unavailable: %w", ctx.Err())
			case <-time.After(delay):
			}
			delay *= 2
		}
		var s *Session
		s, err = m.Acquire(ctx)
		if err != nil {
			m.logger.Printf("acquire failed (attempt %d/%d): %v", attempt+1, maxRetries+1, err)
			continue
		}
		err = op(ctx, s)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrSessionLost) {
			return err
		}
		m.logger.Printf("session lost mid-operation (attempt %d/%d), restarting", attempt+1, maxRetries+1)
		m.Reset()
	}
	return fmt.Errorf("browser unavailable after %d restart attempts: %w", maxRetries+1, err)
}

// setCookiesAction applies the persisted cookie set through CDP.
func setCookiesAction(cookies []Cookie) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		params := make([]*network.CookieParam, 0, len(cookies))
		for _, c := range cookies {
			p := &network.CookieParam{
				Name:   c.Name,
				Value:  c.Value,
				Domain: c.Domain,
				Path:   c.Path,
			}
			if p.Path == "" {
				p.Path = "/"
			}
			if c.Expires > 0 {
				exp := cdp.TimeSinceEpoch(time.Unix(int64(c.Expires), 0))
				p.Expires = &exp
			}
			params = append(params, p)
		}
		return network.SetCookies(params).Do(ctx)
	})
}

// harvestCookies captures the browser's current cookie set for the
// surface origin.
func harvestCookies(ctx context.Context, origin string) ([]Cookie, error) {
	var out []Cookie
	err := chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		cks, err := network.GetCookies().WithURLs([]string{origin}).Do(ctx)
		if err != nil {
			return err
		}
		for _, ck := range cks {
			out = append(out, Cookie{
				Name:    ck.Name,
				Value:   ck.Value,
				Domain:  ck.Domain,
				Path:    ck.Path,
				Expires: ck.Expires,
			})
		}
		return nil
	}))
	if err != nil {
		return nil, fmt.Errorf("get cookies: %w", err)
	}
	return out, nil
}
