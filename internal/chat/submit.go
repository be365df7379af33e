package chat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/chromedp/cdproto/input"
	cdppage "github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"github.com/translatekit/chatbridge/config"
	"github.com/translatekit/chatbridge/internal/browser"
)

// ErrEmptyReply marks a completed submission whose extracted reply was
// empty. No fallback text is acceptable; the attempt failed.
var ErrEmptyReply = errors.New("empty reply from chat surface")

// Submitter drives one chunk through the chat UI: inject, send, await
// completion, extract, clear. It never reloads or re-authenticates;
// session recovery belongs to the orchestrator.
type Submitter struct {
	profile Profile
	probe   CompletionProbe
	cfg     config.ChatConfig
	logger  *log.Logger

	// sleep is swapped in tests to avoid real retry delays.
	sleep func(ctx context.Context, d time.Duration) error
}

func NewSubmitter(profile Profile, probe CompletionProbe, cfg config.ChatConfig) *Submitter {
	if probe == nil {
		probe = NewCompletionProbe(profile)
	}
	return &Submitter{
		profile: profile,
		probe:   probe,
		cfg:     cfg.Normalize(),
		logger:  log.New(log.Writer(), "[SUBMIT] ", log.LstdFlags),
		sleep:   sleepCtx,
	}
}

// Submit runs the chunk submission protocol with bounded retries. The
// last attempt's failure propagates, reclassified so raw DOM timeouts
// never leak past this layer.
func (s *Submitter) Submit(ctx context.Context, page *browser.Page, chunk, promptPrefix string) (string, error) {
	if strings.TrimSpace(chunk) == "" {
		return "", fmt.Errorf("chunk must not be empty")
	}

	var lastErr error
	for attempt := 1; attempt <= s.cfg.Attempts; attempt++ {
		if attempt > 1 {
			if err := s.sleep(ctx, s.cfg.RetryDelay); err != nil {
				return "", err
			}
		}
		reply, err := s.attempt(ctx, page, chunk, promptPrefix)
		if err == nil {
			return reply, nil
		}
		lastErr = err
		s.logger.Printf("attempt %d/%d failed: %v", attempt, s.cfg.Attempts, err)
	}
	return "", fmt.Errorf("chunk submission failed after %d attempts: %w", s.cfg.Attempts, lastErr)
}

func (s *Submitter) attempt(ctx context.Context, page *browser.Page, chunk, promptPrefix string) (string, error) {
	prompt := chunk
	if promptPrefix != "" {
		prompt = promptPrefix + " " + chunk
	}

	// Foreground the tab and wait for the input surface.
	waitCtx, cancel := context.WithTimeout(page.Ctx, s.cfg.InputWait)
	err := chromedp.Run(waitCtx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			return cdppage.BringToFront().Do(ctx)
		}),
		chromedp.WaitVisible(s.profile.InputSelector, chromedp.ByQuery),
	)
	cancel()
	if err != nil {
		return "", fmt.Errorf("input surface never became visible: %v", err)
	}

	// Inject the prompt with paste semantics: InsertText lands the whole
	// chunk at once instead of typing it character by character.
	injCtx, cancel := context.WithTimeout(page.Ctx, s.cfg.InputWait)
	err = chromedp.Run(injCtx,
		chromedp.Focus(s.profile.InputSelector, chromedp.ByQuery),
		chromedp.ActionFunc(func(ctx context.Context) error {
			return input.InsertText(prompt).Do(ctx)
		}),
	)
	cancel()
	if err != nil {
		return "", fmt.Errorf("inject prompt: %v", err)
	}

	if err := s.awaitSendable(page); err != nil {
		return "", err
	}

	clickCtx, cancel := context.WithTimeout(page.Ctx, s.cfg.SendPollEvery*time.Duration(s.cfg.SendPollRounds))
	err = chromedp.Run(clickCtx, chromedp.Click(s.profile.SendSelector, chromedp.ByQuery))
	cancel()
	if err != nil {
		return "", fmt.Errorf("trigger send: %v", err)
	}

	reply, err := s.awaitReply(ctx, page)
	if err != nil {
		return "", err
	}

	// Clear the input for the next chunk and let the surface settle.
	clearCtx, cancel := context.WithTimeout(page.Ctx, s.cfg.SettleDelay+5*time.Second)
	_ = chromedp.Run(clearCtx, chromedp.Evaluate(s.profile.ClearInputJS, nil))
	cancel()
	_ = s.sleep(ctx, s.cfg.SettleDelay)

	return reply, nil
}

// awaitSendable polls until the send control is actionable.
func (s *Submitter) awaitSendable(page *browser.Page) error {
	for round := 0; round < s.cfg.SendPollRounds; round++ {
		var enabled bool
		evalCtx, cancel := context.WithTimeout(page.Ctx, s.cfg.SendPollEvery*3)
		err := chromedp.Run(evalCtx, chromedp.Evaluate(s.profile.SendEnabledJS, &enabled))
		cancel()
		if err == nil && enabled {
			return nil
		}
		if err := sleepCtx(page.Ctx, s.cfg.SendPollEvery); err != nil {
			return fmt.Errorf("send control poll interrupted: %v", err)
		}
	}
	return fmt.Errorf("send control never became actionable")
}

// awaitReply polls the completion probe within the large response bound,
// then extracts the last response container's text.
func (s *Submitter) awaitReply(ctx context.Context, page *browser.Page) (string, error) {
	deadline := time.Now().Add(s.cfg.ResponseWait)
	// Give the surface a moment to show the stop affordance so the probe
	// doesn't read a stale previous reply as completion.
	if err := s.sleep(ctx, s.cfg.ResponsePollEvery); err != nil {
		return "", err
	}
	for time.Now().Before(deadline) {
		done, err := s.probe.Done(page.Ctx)
		if err == nil && done {
			return s.extract(page)
		}
		if err := sleepCtx(page.Ctx, s.cfg.ResponsePollEvery); err != nil {
			return "", fmt.Errorf("completion poll interrupted: %v", err)
		}
	}
	return "", fmt.Errorf("reply did not complete within %s", s.cfg.ResponseWait)
}

func (s *Submitter) extract(page *browser.Page) (string, error) {
	expr := fmt.Sprintf(
		`(() => { const all = document.querySelectorAll(%q); return all.length ? all[all.length - 1].innerText : ""; })()`,
		s.profile.ResponseSelector,
	)
	var text string
	evalCtx, cancel := context.WithTimeout(page.Ctx, 15*time.Second)
	defer cancel()
	if err := chromedp.Run(evalCtx, chromedp.Evaluate(expr, &text)); err != nil {
		return "", fmt.Errorf("extract reply: %v", err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyReply
	}
	return text, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
