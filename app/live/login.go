package live

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

const (
	loginURL = "https://twitter.com/i/flow/login"

	identifierSelector = `//input[@autocomplete="username"]`
	challengeSelector  = `//input[@data-testid="ocfEnterTextTextInput"]`
	secretSelector     = `//input[@autocomplete="current-password"]`

	// Carriage return submits the focused input.
	enterKey = "\r"

	fieldAttempts   = 3
	fieldRetryPause = 2 * time.Second
	stepSettlePause = 3 * time.Second
)

// Credentials holds the live-view login identity.
type Credentials struct {
	Username string
	Password string
}

func (c Credentials) Configured() bool {
	return c.Username != "" && c.Password != ""
}

// Login drives the authentication flow: enter the identifier, answer
// the optional challenge prompt, enter the secret, then verify that a
// session cookie appeared. Each text-entry step retries locating its
// input a bounded number of times; a missing challenge control is
// skipped, not an error. Verification failure fails the whole attempt
// and is not retried here.
func Login(ctx context.Context, b Browser, creds Credentials) error {
	return NewLoginFlow(b, creds).Run(ctx)
}

// LoginFlow is the authentication state machine.
type LoginFlow struct {
	browser Browser
	creds   Credentials
	sleep   func(time.Duration)
}

func NewLoginFlow(b Browser, creds Credentials) *LoginFlow {
	return &LoginFlow{browser: b, creds: creds, sleep: time.Sleep}
}

func (f *LoginFlow) Run(ctx context.Context) error {
	if !f.creds.Configured() {
		return fmt.Errorf("%w: credentials not configured", ErrLoginFailed)
	}

	slog.Info("Starting live-view login")
	if err := f.browser.Navigate(ctx, loginURL); err != nil {
		return fmt.Errorf("%w: navigation failed: %v", ErrLoginFailed, err)
	}
	f.sleep(stepSettlePause)

	if err := f.enterField(ctx, identifierSelector, f.creds.Username); err != nil {
		return fmt.Errorf("%w: identifier step: %v", ErrLoginFailed, err)
	}
	f.enterChallenge(ctx)
	if err := f.enterField(ctx, secretSelector, f.creds.Password); err != nil {
		return fmt.Errorf("%w: secret step: %v", ErrLoginFailed, err)
	}

	// An auth_token cookie is the only accepted proof of login.
	_, found, err := f.browser.Cookie(ctx, "auth_token")
	if err != nil {
		return fmt.Errorf("%w: could not read cookies: %v", ErrLoginFailed, err)
	}
	if !found {
		return fmt.Errorf("%w: no auth token after login flow", ErrLoginFailed)
	}

	slog.Info("Live-view login successful")
	return nil
}

// enterField locates the input, types the value and submits. Locating
// the input is retried up to fieldAttempts times with a pause between
// attempts; exceeding the bound fails the step.
func (f *LoginFlow) enterField(ctx context.Context, selector, value string) error {
	var lastErr error
	for attempt := 1; attempt <= fieldAttempts; attempt++ {
		el, err := f.browser.Find(ctx, selector)
		if err == nil {
			if err := el.Type(ctx, value + enterKey); err != nil {
				return fmt.Errorf("failed to type into %s: %w", selector, err)
			}
			f.sleep(stepSettlePause)
			return nil
		}
		lastErr = err
		if !errors.Is(err, ErrNoElement) {
			return err
		}
		if attempt < fieldAttempts {
			slog.Warn("Input control not found yet, retrying", "selector", selector, "attempt", attempt)
			f.sleep(fieldRetryPause)
		}
	}
	return fmt.Errorf("input control not found after %d attempts: %w", fieldAttempts, lastErr)
}

// enterChallenge handles the unusual-activity prompt. Not every login
// shows it; absence is the common case and simply skipped.
func (f *LoginFlow) enterChallenge(ctx context.Context) {
	el, err := f.browser.Find(ctx, challengeSelector)
	if err != nil {
		return
	}
	if err := el.Type(ctx, f.creds.Username + enterKey); err != nil {
		slog.Warn("Failed to answer challenge prompt", "error", err)
		return
	}
	f.sleep(stepSettlePause)
}
