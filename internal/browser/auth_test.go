package browser

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func newTestAuthenticator(t *testing.T) (*Authenticator, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cookies.json")
	a := NewAuthenticator("https://chat.example", "true", NewCookieStore(path), time.Second)
	a.pollEvery = 2 * time.Millisecond
	a.nav = func(context.Context, string) error { return nil }
	return a, path
}

func TestManualLoginStaysPendingUntilCancelled(t *testing.T) {
	t.Parallel()
	a, path := newTestAuthenticator(t)
	var probes atomic.Int64
	a.probe = func(context.Context) (bool, error) { probes.Add(1); return false, nil }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- a.ManualLogin(ctx, &Page{Ctx: context.Background()})
	}()

	// The human has not logged in yet; the call must keep waiting with
	// no timeout of its own.
	select {
	case err := <-done:
		t.Fatalf("manual login returned early: %v", err)
	case <-time.After(50 * time.Millisecond):
	}
	if probes.Load() == 0 {
		t.Fatal("predicate was never polled")
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, ErrNotAuthenticated) {
			t.Fatalf("expected ErrNotAuthenticated on cancel, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("manual login did not observe cancellation")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("abandoned login must not write cookies")
	}
}

func TestManualLoginPersistsCookiesOnSuccess(t *testing.T) {
	t.Parallel()
	a, _ := newTestAuthenticator(t)
	probes := 0
	a.probe = func(context.Context) (bool, error) {
		probes++
		return probes >= 3, nil
	}
	a.harvest = func(context.Context, string) ([]Cookie, error) {
		return []Cookie{{Name: "sid", Value: "v", Domain: ".chat.example"}}, nil
	}

	if err := a.ManualLogin(context.Background(), &Page{Ctx: context.Background()}); err != nil {
		t.Fatalf("manual login: %v", err)
	}
	cookies, err := a.cookies.Load(time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if len(cookies) != 1 || cookies[0].Name != "sid" {
		t.Fatalf("harvested cookies not persisted, got %+v", cookies)
	}
}

func TestManualLoginFailsWhenHarvestFails(t *testing.T) {
	t.Parallel()
	a, path := newTestAuthenticator(t)
	a.probe = func(context.Context) (bool, error) { return true, nil }
	a.harvest = func(context.Context, string) ([]Cookie, error) {
		return nil, errors.New("target closed")
	}

	if err := a.ManualLogin(context.Background(), &Page{Ctx: context.Background()}); err == nil {
		t.Fatal("expected error when cookie capture fails")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("failed capture must not write a partial cookie file")
	}
}

func TestVerifyNeverMutatesCookieFile(t *testing.T) {
	t.Parallel()
	a, path := newTestAuthenticator(t)
	err := a.cookies.Save([]Cookie{{Name: "sid", Value: "v", Domain: ".chat.example"}})
	if err != nil {
		t.Fatal(err)
	}
	before, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	a.probe = func(context.Context) (bool, error) { return true, nil }
	ok, err := a.Verify(context.Background(), &Page{Ctx: context.Background()})
	if err != nil || !ok {
		t.Fatalf("verify: ok=%v err=%v", ok, err)
	}

	after, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(before) != string(after) {
		t.Fatal("verify while authenticated must leave the cookie file untouched")
	}
}
