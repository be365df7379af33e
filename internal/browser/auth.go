package browser

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/chromedp/chromedp"
)

// ErrNotAuthenticated marks a failure to reach the authenticated state
// through both cookie replay and manual login.
var ErrNotAuthenticated = errors.New("not authenticated")

// Authenticator drives the login state of the chat surface: probe the
// DOM, replay stored cookies, and fall back to a human-completed login.
type Authenticator struct {
	origin     string
	loggedInJS string
	cookies    *CookieStore
	authWait   time.Duration
	pollEvery  time.Duration
	logger     *log.Logger

	// probe, nav and harvest are swappable for tests; the defaults drive
	// the page through chromedp.
	probe   func(ctx context.Context) (bool, error)
	nav     func(ctx context.Context, url string) error
	harvest func(ctx context.Context, origin string) ([]Cookie, error)
}

func NewAuthenticator(origin, loggedInJS string, cookies *CookieStore, authWait time.Duration) *Authenticator {
	if authWait <= 0 {
		authWait = 45 * time.Second
	}
	a := &Authenticator{
		origin:     origin,
		loggedInJS: loggedInJS,
		cookies:    cookies,
		authWait:   authWait,
		pollEvery:  2 * time.Second,
		logger:     log.New(log.Writer(), "[AUTH] ", log.LstdFlags),
	}
	a.probe = func(ctx context.Context) (bool, error) {
		var ok bool
		err := chromedp.Run(ctx, chromedp.Evaluate(a.loggedInJS, &ok))
		return ok, err
	}
	a.nav = func(ctx context.Context, url string) error {
		return chromedp.Run(ctx, chromedp.Navigate(url))
	}
	a.harvest = harvestCookies
	return a
}

// IsLoggedIn evaluates the login-state predicate against the page's
// current DOM. It mutates nothing.
func (a *Authenticator) IsLoggedIn(ctx context.Context) (bool, error) {
	probeCtx, cancel := context.WithTimeout(ctx, a.authWait)
	defer cancel()
	ok, err := a.probe(probeCtx)
	if err != nil {
		return false, fmt.Errorf("login probe: %w", err)
	}
	return ok, nil
}

// EnsureAuthenticated brings the page to the authenticated state:
// probe, then cookie replay + reload, then manual login. It fails only
// when manual login itself fails (the human abandons, or the ctx is
// cancelled).
func (a *Authenticator) EnsureAuthenticated(ctx context.Context, page *Page) error {
	ok, err := a.IsLoggedIn(page.Ctx)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}

	if replayed, err := a.replayCookies(page); err != nil {
		a.logger.Printf("cookie replay failed: %v", err)
	} else if replayed {
		ok, err = a.IsLoggedIn(page.Ctx)
		if err != nil {
			return err
		}
		if ok {
			a.logger.Printf("authenticated via cookie replay")
			return nil
		}
	}

	a.logger.Printf("cookie replay insufficient, entering manual login mode")
	return a.ManualLogin(ctx, page)
}

// Verify navigates to the surface origin and evaluates the login
// predicate. It never touches the persisted cookie file, so calling it
// while already authenticated changes nothing on disk.
func (a *Authenticator) Verify(ctx context.Context, page *Page) (bool, error) {
	navCtx, cancel := context.WithTimeout(page.Ctx, a.authWait)
	defer cancel()
	if err := a.nav(navCtx, a.origin); err != nil {
		return false, fmt.Errorf("open surface: %w", err)
	}
	return a.IsLoggedIn(page.Ctx)
}

// replayCookies applies the persisted, unexpired cookie set and reloads.
// Returns false when there are no cookies worth replaying.
func (a *Authenticator) replayCookies(page *Page) (bool, error) {
	cookies, err := a.cookies.Load(time.Now())
	if err != nil {
		return false, err
	}
	if len(cookies) == 0 {
		return false, nil
	}
	opCtx, cancel := context.WithTimeout(page.Ctx, a.authWait)
	defer cancel()
	if err := chromedp.Run(opCtx, setCookiesAction(cookies), chromedp.Reload()); err != nil {
		return false, fmt.Errorf("apply cookies: %w", err)
	}
	return true, nil
}

// ManualLogin navigates to the surface origin and blocks until the
// login-state predicate becomes true, then captures and persists the
// resulting cookie set wholesale. There is deliberately no timeout:
// human pace is unbounded. Cancellation comes only from ctx.
func (a *Authenticator) ManualLogin(ctx context.Context, page *Page) error {
	navCtx, cancel := context.WithTimeout(page.Ctx, a.authWait)
	err := a.nav(navCtx, a.origin)
	cancel()
	if err != nil {
		return fmt.Errorf("open login page: %w", err)
	}

	ticker := time.NewTicker(a.pollEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: manual login cancelled: %v", ErrNotAuthenticated, ctx.Err())
		case <-page.Ctx.Done():
			return fmt.Errorf("%w: page closed during manual login", ErrNotAuthenticated)
		case <-ticker.C:
			ok, err := a.probe(page.Ctx)
			if err != nil {
				// Transient evaluate failures happen while the human
				// navigates through the provider's login pages.
				continue
			}
			if !ok {
				continue
			}
			cookies, err := a.harvest(page.Ctx, a.origin)
			if err != nil {
				return fmt.Errorf("capture login cookies: %w", err)
			}
			if err := a.cookies.Save(cookies); err != nil {
				return fmt.Errorf("persist login cookies: %w", err)
			}
			a.logger.Printf("manual login complete, %d cookies persisted", len(cookies))
			return nil
		}
	}
}
