package chat

import (
	"context"
	"fmt"

	"github.com/chromedp/chromedp"
)

// Profile is the DOM contract the driver depends on for one chat surface:
// the locators and readiness predicates, nothing else. Pure data.
type Profile struct {
	ID     string
	Origin string

	// InputSelector locates the prompt input surface.
	InputSelector string
	// SendSelector locates the send control; SendEnabledJS reports whether
	// it is currently actionable.
	SendSelector  string
	SendEnabledJS string
	// StopSelector locates the "stop generating" affordance shown while a
	// reply streams.
	StopSelector string
	// ResponseSelector locates reply containers; the last match holds the
	// newest reply.
	ResponseSelector string
	// LoggedInJS evaluates to true when the surface shows its
	// authenticated-only chrome.
	LoggedInJS string
	// ClearInputJS empties the input surface between chunks.
	ClearInputJS string
}

// CompletionProbe reports whether the surface has finished streaming a
// reply. It is deliberately an interface: the heuristic has no guaranteed
// correctness bound if the surface changes its DOM, so it must be
// swappable without touching retry or orchestration logic.
type CompletionProbe interface {
	Done(ctx context.Context) (bool, error)
}

// dualConditionProbe is the default heuristic: the stop affordance has
// disappeared AND at least one response container exists. The first half
// avoids declaring completion while the reply still streams; the second
// avoids waiting forever on very short replies whose stop affordance was
// never observed.
type dualConditionProbe struct {
	profile Profile
}

func (p dualConditionProbe) Done(ctx context.Context) (bool, error) {
	expr := fmt.Sprintf(
		`document.querySelector(%q) === null && document.querySelectorAll(%q).length > 0`,
		p.profile.StopSelector, p.profile.ResponseSelector,
	)
	var done bool
	if err := chromedp.Run(ctx, chromedp.Evaluate(expr, &done)); err != nil {
		return false, err
	}
	return done, nil
}

// NewCompletionProbe returns the default dual-condition probe for a profile.
func NewCompletionProbe(p Profile) CompletionProbe {
	return dualConditionProbe{profile: p}
}

var profiles = map[string]Profile{
	"gemini": {
		ID:               "gemini",
		Origin:           "https://gemini.google.com",
		InputSelector:    `div.ql-editor[contenteditable="true"]`,
		SendSelector:     `button.send-button`,
		SendEnabledJS:    `(() => { const b = document.querySelector("button.send-button"); return !!b && !b.disabled && b.getAttribute("aria-disabled") !== "true"; })()`,
		StopSelector:     `button.stop-button`,
		ResponseSelector: `message-content .markdown`,
		LoggedInJS:       `document.querySelector("div.ql-editor[contenteditable='true']") !== null && document.querySelector("a[href*='accounts.google.com/ServiceLogin']") === null`,
		ClearInputJS:     `(() => { const e = document.querySelector("div.ql-editor[contenteditable='true']"); if (e) { e.innerHTML = ""; e.dispatchEvent(new Event("input", {bubbles: true})); } })()`,
	},
	"chatgpt": {
		ID:               "chatgpt",
		Origin:           "https://chatgpt.com",
		InputSelector:    `#prompt-textarea`,
		SendSelector:     `button[data-testid="send-button"]`,
		SendEnabledJS:    `(() => { const b = document.querySelector("button[data-testid='send-button']"); return !!b && !b.disabled; })()`,
		StopSelector:     `button[data-testid="stop-button"]`,
		ResponseSelector: `div[data-message-author-role="assistant"]`,
		LoggedInJS:       `document.querySelector("#prompt-textarea") !== null && document.querySelector("button[data-testid='login-button']") === null`,
		ClearInputJS:     `(() => { const e = document.querySelector("#prompt-textarea"); if (e) { e.innerHTML = ""; e.dispatchEvent(new Event("input", {bubbles: true})); } })()`,
	},
}

// ProfileFor returns the selector contract for a surface id.
func ProfileFor(id string) (Profile, error) {
	p, ok := profiles[id]
	if !ok {
		return Profile{}, fmt.Errorf("unknown chat surface %q", id)
	}
	return p, nil
}

// Surfaces lists the registered surface ids.
func Surfaces() []string {
	out := make([]string, 0, len(profiles))
	for id := range profiles {
		out = append(out, id)
	}
	return out
}
