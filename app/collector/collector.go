package collector

import (
	"context"
	"log/slog"
	"time"

	"github.com/featherwatch/featherwatch/app/live"
	"github.com/featherwatch/featherwatch/app/post"
)

// Source feeds posts for one account into a collection session.
// Implementations absorb their own failures; a source that got
// nothing simply leaves the session unchanged.
type Source interface {
	Collect(ctx context.Context, s *post.Session)
}

// BrowserFactory creates the shared rendered-view session. It is
// called lazily, at most once per run.
type BrowserFactory func() (live.Browser, error)

// Options configures a collection run.
type Options struct {
	WindowDays   int
	MaxItems     int
	MinPosts     int // below this count the live fallback kicks in
	AccountDelay time.Duration
}

// Collector composes the adapters per account: federated outbox
// first, then the mirror feed when configured, and the live rendered
// view as the last resort once the cheaper sources stay below the
// minimum. It owns the browsing session for the whole run and never
// raises to its caller.
type Collector struct {
	federated Source
	mirror    Source // nil when no mirror is configured
	opts      Options

	newBrowser BrowserFactory
	liveCreds  live.Credentials
	browser    live.Browser
	liveSource Source
	liveBroken bool

	newLiveSource func(live.Browser) Source
	sleep         func(time.Duration)
	now           func() time.Time
}

func New(federated Source, mirror Source, newBrowser BrowserFactory, liveCreds live.Credentials, opts Options) *Collector {
	return &Collector{
		federated:  federated,
		mirror:     mirror,
		opts:       opts,
		newBrowser: newBrowser,
		liveCreds:  liveCreds,
		newLiveSource: func(b live.Browser) Source {
			return live.NewAdapter(b)
		},
		sleep: time.Sleep,
		now:   time.Now,
	}
}

// Collect gathers one account's recent posts. The returned sequence is
// in source-visitation order, duplicate-free and bounded; empty is a
// valid non-error outcome.
func (c *Collector) Collect(ctx context.Context, account string) []post.Post {
	return c.CollectWith(ctx, account, 0, 0)
}

// CollectWith is Collect with per-account overrides for the recency
// window and the item cap; zero values fall back to the run-wide
// options.
func (c *Collector) CollectWith(ctx context.Context, account string, windowDays, maxItems int) []post.Post {
	if windowDays == 0 {
		windowDays = c.opts.WindowDays
	}
	if maxItems == 0 {
		maxItems = c.opts.MaxItems
	}

	window := post.NewWindow(c.now().UTC(), windowDays)
	s := post.NewSession(account, window, maxItems)

	c.federated.Collect(ctx, s)
	slog.Debug("Federated pass done", "account", s.Account, "collected", s.Len())

	if c.mirror != nil && s.Len() < c.opts.MinPosts {
		c.mirror.Collect(ctx, s)
		slog.Debug("Mirror pass done", "account", s.Account, "collected", s.Len())
	}

	if s.Len() < c.opts.MinPosts && c.liveCreds.Configured() {
		if src := c.liveFallback(ctx); src != nil {
			slog.Info("Falling back to live extraction", "account", s.Account, "collected_so_far", s.Len())
			src.Collect(ctx, s)
		}
	}

	c.sleep(c.opts.AccountDelay)

	slog.Info("Account collection finished", "account", s.Account, "posts", s.Len())
	return s.Posts()
}

// liveFallback returns the live source, establishing the browsing
// session and logging in on first use. A failed login disables the
// live path for the remainder of the run; it is not retried mid-run.
func (c *Collector) liveFallback(ctx context.Context) Source {
	if c.liveBroken {
		return nil
	}
	if c.liveSource != nil {
		return c.liveSource
	}

	browser, err := c.newBrowser()
	if err != nil {
		slog.Error("Could not start browsing session, live path disabled for this run", "error", err)
		c.liveBroken = true
		return nil
	}

	if err := live.Login(ctx, browser, c.liveCreds); err != nil {
		slog.Error("Live login failed, live path disabled for this run", "error", err)
		browser.Close()
		c.liveBroken = true
		return nil
	}

	c.browser = browser
	c.liveSource = c.newLiveSource(browser)
	return c.liveSource
}

// Close releases the shared browsing session, if one was established.
func (c *Collector) Close() {
	if c.browser != nil {
		if err := c.browser.Close(); err != nil {
			slog.Warn("Failed to close browsing session", "error", err)
		}
		c.browser = nil
		c.liveSource = nil
	}
}
