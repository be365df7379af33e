package browser

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/translatekit/chatbridge/config"
)

// fakeLaunches swaps the launch seam for one that records every launch
// and hands out cancellable contexts standing in for browser processes.
type fakeLaunches struct {
	count    int
	headless []bool
	cancels  []context.CancelFunc
	err      error
}

func newFakeManager(t *testing.T, cfg config.BrowserConfig) (*Manager, *fakeLaunches) {
	t.Helper()
	m := NewManager(cfg, "https://chat.example", NewCookieStore(filepath.Join(t.TempDir(), "cookies.json")))
	m.restartDelay = time.Millisecond
	f := &fakeLaunches{}
	m.launch = func(headless bool) (context.Context, context.CancelFunc, context.CancelFunc, error) {
		f.count++
		f.headless = append(f.headless, headless)
		if f.err != nil {
			return nil, nil, nil, f.err
		}
		ctx, cancel := context.WithCancel(context.Background())
		f.cancels = append(f.cancels, cancel)
		return ctx, cancel, func() {}, nil
	}
	return m, f
}

func TestAcquireIsIdempotentWhileLive(t *testing.T) {
	t.Parallel()
	m, f := newFakeManager(t, config.BrowserConfig{Headless: true})

	s1, err := m.Acquire(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	s2, err := m.Acquire(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if f.count != 1 {
		t.Fatalf("concurrent acquires must share one launch, got %d", f.count)
	}
	if s1.ctx != s2.ctx {
		t.Fatal("acquire must hand out the same session")
	}
}

func TestAcquireRelaunchesDeadSession(t *testing.T) {
	t.Parallel()
	m, f := newFakeManager(t, config.BrowserConfig{Headless: true})

	if _, err := m.Acquire(context.Background()); err != nil {
		t.Fatal(err)
	}
	// The browser process dies out from under the manager.
	f.cancels[0]()

	if _, err := m.Acquire(context.Background()); err != nil {
		t.Fatal(err)
	}
	if f.count != 2 {
		t.Fatalf("dead session must be relaunched, launches=%d", f.count)
	}
}

func TestAcquireHeadfulReusesHeadfulSession(t *testing.T) {
	t.Parallel()
	m, f := newFakeManager(t, config.BrowserConfig{Headless: true})

	if _, err := m.AcquireHeadful(context.Background()); err != nil {
		t.Fatal(err)
	}
	if f.count != 1 || f.headless[0] {
		t.Fatalf("expected one headful launch, got count=%d headless=%v", f.count, f.headless)
	}
	// A second headful acquire must not kill the visible browser.
	if _, err := m.AcquireHeadful(context.Background()); err != nil {
		t.Fatal(err)
	}
	if f.count != 1 {
		t.Fatalf("already-headful session must be reused, launches=%d", f.count)
	}
}

func TestAcquireHeadfulReplacesHeadlessSession(t *testing.T) {
	t.Parallel()
	m, f := newFakeManager(t, config.BrowserConfig{Headless: true})

	if _, err := m.Acquire(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := m.AcquireHeadful(context.Background()); err != nil {
		t.Fatal(err)
	}
	if f.count != 2 || f.headless[0] != true || f.headless[1] != false {
		t.Fatalf("headless session must be torn down for manual login, launches=%v", f.headless)
	}
}

func TestWithRestartRecoversFromSessionLost(t *testing.T) {
	t.Parallel()
	m, f := newFakeManager(t, config.BrowserConfig{Headless: true})

	calls := 0
	err := m.WithRestart(context.Background(), 2, func(_ context.Context, s *Session) error {
		calls++
		if calls == 1 {
			return fmt.Errorf("%w: tab crashed", ErrSessionLost)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("op must succeed after relaunch: %v", err)
	}
	if calls != 2 || f.count != 2 {
		t.Fatalf("expected one reset and one retry, calls=%d launches=%d", calls, f.count)
	}
}

func TestWithRestartPropagatesOtherErrors(t *testing.T) {
	t.Parallel()
	m, f := newFakeManager(t, config.BrowserConfig{Headless: true})

	boom := errors.New("selector missing")
	calls := 0
	err := m.WithRestart(context.Background(), 2, func(context.Context, *Session) error {
		calls++
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("non-recoverable error must propagate unchanged, got %v", err)
	}
	if calls != 1 || f.count != 1 {
		t.Fatalf("no restart for non-recoverable errors, calls=%d launches=%d", calls, f.count)
	}
	if !m.Alive() {
		t.Fatal("session must survive a non-recoverable op error")
	}
}

func TestWithRestartGivesUpAfterBudget(t *testing.T) {
	t.Parallel()
	m, f := newFakeManager(t, config.BrowserConfig{Headless: true})

	calls := 0
	err := m.WithRestart(context.Background(), 1, func(context.Context, *Session) error {
		calls++
		return fmt.Errorf("%w: browser exited", ErrSessionLost)
	})
	if !errors.Is(err, ErrSessionLost) {
		t.Fatalf("exhausted budget must surface the session loss, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected maxRetries+1 attempts, got %d", calls)
	}
	if f.count < 2 {
		t.Fatalf("each attempt must relaunch, launches=%d", f.count)
	}
}

func TestWithRestartBacksOffBetweenAttempts(t *testing.T) {
	t.Parallel()
	m, _ := newFakeManager(t, config.BrowserConfig{Headless: true})
	m.restartDelay = 20 * time.Millisecond

	start := time.Now()
	_ = m.WithRestart(context.Background(), 1, func(context.Context, *Session) error {
		return fmt.Errorf("%w: browser exited", ErrSessionLost)
	})
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Fatalf("expected backoff before the relaunch, elapsed %v", elapsed)
	}
}

func TestClassifyErrWrapsOnlyWhenSessionDied(t *testing.T) {
	t.Parallel()
	m, f := newFakeManager(t, config.BrowserConfig{Headless: true})

	s, err := m.Acquire(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	opErr := errors.New("evaluate failed")
	if got := s.ClassifyErr(opErr); !errors.Is(got, opErr) || errors.Is(got, ErrSessionLost) {
		t.Fatalf("live session must not reclassify, got %v", got)
	}
	f.cancels[0]()
	if got := s.ClassifyErr(opErr); !errors.Is(got, ErrSessionLost) {
		t.Fatalf("dead session must reclassify as session loss, got %v", got)
	}
}
