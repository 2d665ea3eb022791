package live

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/featherwatch/featherwatch/app/post"
)

const (
	profileURLFormat = "https://twitter.com/%s"

	cardSelector         = `//article[@data-testid="tweet" and not(@disabled)]`
	rateLimitSelector    = `//span[text()='Retry']/ancestor::div[@role='button'][1]`
	cookieNoticeSelector = `//span[text()='Refuse non-essential cookies']/ancestor::div[@role='button'][1]`

	cardTimeSelector    = `time`
	cardTextSelector    = `div[data-testid="tweetText"]`
	cardReplySelector   = `button[data-testid="reply"] span`
	cardReshareSelector = `button[data-testid="retweet"] span`
	cardLikeSelector    = `button[data-testid="like"] span`
	cardLinkSelector    = `a[href*="/status/"]`

	// Only the tail of the rendered card list is examined per pass;
	// earlier cards were already seen on previous passes.
	cardsPerPass = 15

	maxRateLimitRetries = 15
	emptyPassLimit      = 5
	maxRefreshes        = 3

	rateLimitWait = time.Minute
	passSettle    = time.Second
	scrollSettle  = 2 * time.Second
)

// passAction is what the backoff state machine decides after one
// extraction pass.
type passAction int

const (
	actionContinue passAction = iota
	actionWaitRetry
	actionRefresh
	actionStop
)

// passResult is the observable outcome of one extraction pass.
type passResult struct {
	added       int
	rateLimited bool
}

// counters is the backoff bookkeeping threaded through passes.
type counters struct {
	retries   int
	emptyRuns int
	refreshes int
}

// advance is the pure transition function of the extraction loop:
// given the last pass outcome and the current counters it yields the
// next action. A productive pass resets everything. An unproductive
// pass with a visible rate-limit indicator waits and retries, at most
// maxRateLimitRetries times per encounter; once the budget is spent it
// stays spent while the indicator remains visible, and refills only
// after a pass without it. Empty passes accumulate until a refresh,
// and refreshes until exhaustion. Every path terminates.
func advance(st counters, res passResult) (passAction, counters) {
	if res.added > 0 {
		return actionContinue, counters{}
	}

	if res.rateLimited {
		if st.retries < maxRateLimitRetries {
			st.retries++
			return actionWaitRetry, st
		}
	} else {
		st.retries = 0
	}

	st.emptyRuns++
	if st.emptyRuns >= emptyPassLimit {
		if st.refreshes >= maxRefreshes {
			return actionStop, st
		}
		st.refreshes++
		st.emptyRuns = 0
		return actionRefresh, st
	}
	return actionContinue, st
}

// Adapter extracts posts from the live rendered timeline of an
// account. It requires an authenticated browser session, which the
// collector establishes once and shares across accounts.
type Adapter struct {
	browser    Browser
	normalizer *post.Normalizer
	timestamps *post.TimestampParser
	sleep      func(time.Duration)
}

func NewAdapter(b Browser) *Adapter {
	return &Adapter{
		browser:    b,
		normalizer: post.NewNormalizer(),
		timestamps: post.NewTimestampParser(),
		sleep:      time.Sleep,
	}
}

// Collect navigates to the account's timeline and runs the bounded
// scroll-and-extract loop until the session cap is reached or the
// page is exhausted. It never returns an error: every failure mode
// degrades to whatever was collected so far. Context cancellation
// stops the loop for this account immediately.
func (a *Adapter) Collect(ctx context.Context, s *post.Session) {
	if err := a.browser.Navigate(ctx, fmt.Sprintf(profileURLFormat, s.Account)); err != nil {
		slog.Error("Could not open live timeline", "account", s.Account, "error", err)
		return
	}
	a.sleep(scrollSettle)
	a.dismissCookieNotice(ctx)

	// Node identities already examined on this page. This is not the
	// post-id dedup: the rendered card does not expose the post id
	// until it is extracted, so a per-element identity gates the
	// extraction work and the session dedup gates emission.
	seenNodes := make(map[string]struct{})
	st := counters{}

	for {
		if err := ctx.Err(); err != nil {
			slog.Warn("Live extraction interrupted", "account", s.Account, "collected", s.Len())
			return
		}

		res := a.pass(ctx, s, seenNodes)
		if s.Full() {
			slog.Info("Live extraction reached item cap", "account", s.Account, "collected", s.Len())
			return
		}

		action, next := advance(st, res)
		st = next
		s.RetriesUsed = st.retries
		s.EmptyPassesInRow = st.emptyRuns

		switch action {
		case actionWaitRetry:
			slog.Warn("Rate limited, waiting before retry", "account", s.Account, "retry", st.retries)
			a.sleep(rateLimitWait)
			a.clickRateLimitRetry(ctx)
		case actionRefresh:
			slog.Info("No new posts, refreshing page", "account", s.Account, "refresh", st.refreshes)
			if err := a.browser.Reload(ctx); err != nil {
				slog.Warn("Page refresh failed", "account", s.Account, "error", err)
			}
			a.sleep(scrollSettle)
			// A reload renders fresh nodes; stale identities would
			// never match again and only leak memory.
			seenNodes = make(map[string]struct{})
		case actionStop:
			slog.Info("Live timeline exhausted", "account", s.Account, "collected", s.Len())
			return
		case actionContinue:
			a.sleep(passSettle)
		}

		if err := a.browser.ScrollBottom(ctx); err != nil {
			slog.Warn("Scroll failed", "account", s.Account, "error", err)
		}
	}
}

// pass enumerates the currently rendered cards, extracts the ones not
// seen before and admits those that survive the window filter and the
// cap. A failing card is skipped, it never aborts the pass.
func (a *Adapter) pass(ctx context.Context, s *post.Session, seenNodes map[string]struct{}) passResult {
	cards, err := a.browser.FindAll(ctx, cardSelector)
	if err != nil {
		slog.Warn("Could not enumerate post cards", "account", s.Account, "error", err)
		return passResult{rateLimited: a.rateLimitVisible(ctx)}
	}

	if len(cards) > cardsPerPass {
		cards = cards[len(cards)-cardsPerPass:]
	}

	added := 0
	for _, card := range cards {
		if s.Full() {
			break
		}
		if _, ok := seenNodes[card.ID()]; ok {
			continue
		}
		seenNodes[card.ID()] = struct{}{}

		p, err := a.extractCard(ctx, card, s.Account)
		if err != nil {
			slog.Debug("Skipping card", "account", s.Account, "error", err)
			continue
		}
		if s.Admit(p) {
			added++
		}
	}

	if added == 0 {
		return passResult{rateLimited: a.rateLimitVisible(ctx)}
	}
	return passResult{added: added}
}

// extractCard maps one rendered card to a Post. A card without a
// datetime attribute is promoted content, not a post.
func (a *Adapter) extractCard(ctx context.Context, card Element, account string) (post.Post, error) {
	timeEl, err := card.Find(ctx, cardTimeSelector)
	if err != nil {
		return post.Post{}, fmt.Errorf("no timestamp element: %w", err)
	}
	datetime, ok, err := timeEl.Attr(ctx, "datetime")
	if err != nil || !ok {
		return post.Post{}, errors.New("timestamp attribute missing")
	}
	createdAt, confident := a.timestamps.Parse(datetime)
	if !confident {
		slog.Warn("Card timestamp unparseable, using current time", "account", account, "datetime", datetime)
	}

	textEl, err := card.Find(ctx, cardTextSelector)
	if err != nil {
		return post.Post{}, fmt.Errorf("no text element: %w", err)
	}
	text, err := textEl.Text(ctx)
	if err != nil {
		return post.Post{}, fmt.Errorf("failed to read text: %w", err)
	}
	text = a.normalizer.Run(text)
	if text == "" {
		return post.Post{}, errors.New("empty post text")
	}

	author := account
	id := ""
	url := ""
	if link, err := card.Find(ctx, cardLinkSelector); err == nil {
		if href, ok, err := link.Attr(ctx, "href"); err == nil && ok {
			url = href
			author, id = parseStatusLink(href, account)
		}
	}
	if id == "" {
		id = fmt.Sprintf("%s-%d", author, createdAt.Unix())
	}
	if url == "" {
		url = post.PermalinkURL("https://twitter.com", author, id, createdAt)
	}

	return post.Post{
		ID:        id,
		Author:    author,
		Text:      text,
		CreatedAt: createdAt,
		Counts: post.Counts{
			Replies:  a.cardCount(ctx, card, cardReplySelector),
			Reshares: a.cardCount(ctx, card, cardReshareSelector),
			Likes:    a.cardCount(ctx, card, cardLikeSelector),
		},
		URL:    url,
		Source: post.SourceLive,
	}, nil
}

func (a *Adapter) cardCount(ctx context.Context, card Element, selector string) int {
	el, err := card.Find(ctx, selector)
	if err != nil {
		return 0
	}
	text, err := el.Text(ctx)
	if err != nil {
		return 0
	}
	return parseCount(text)
}

func (a *Adapter) rateLimitVisible(ctx context.Context) bool {
	_, err := a.browser.Find(ctx, rateLimitSelector)
	return err == nil
}

func (a *Adapter) clickRateLimitRetry(ctx context.Context) {
	el, err := a.browser.Find(ctx, rateLimitSelector)
	if err != nil {
		return
	}
	if err := el.Click(ctx); err != nil {
		slog.Warn("Could not click retry control", "error", err)
	}
}

func (a *Adapter) dismissCookieNotice(ctx context.Context) {
	el, err := a.browser.Find(ctx, cookieNoticeSelector)
	if err != nil {
		return
	}
	if err := el.Click(ctx); err == nil {
		a.sleep(passSettle)
	}
}

// parseStatusLink pulls author and post id out of a /{author}/status/{id}
// permalink. Falls back to the account being scraped when the link has
// an unexpected shape.
func parseStatusLink(href, fallbackAuthor string) (author, id string) {
	author = fallbackAuthor
	parts := strings.Split(strings.Trim(href, "/"), "/")
	for i, part := range parts {
		if part == "status" && i > 0 && i+1 < len(parts) {
			return post.NormalizeHandle(parts[i-1]), parts[i+1]
		}
	}
	return author, ""
}
