package mirror

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/featherwatch/featherwatch/app/post"
)

// Adapter reads an account's timeline through the RSS feed a
// Nitter-style mirror publishes at /{account}/rss. It is an optional
// middle rung between the federated outbox and the live fallback:
// cheap to query, no authentication, but often behind or rate-limited.
// Failures absorb to an unchanged session.
type Adapter struct {
	baseURL    string
	httpClient *http.Client
	userAgent  string
	parser     *gofeed.Parser
	normalizer *post.Normalizer
	timestamps *post.TimestampParser
	delay      time.Duration
	sleep      func(time.Duration)
}

func NewAdapter(baseURL string, httpClient *http.Client, userAgent string, politenessDelay time.Duration) *Adapter {
	return &Adapter{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		userAgent:  userAgent,
		parser:     gofeed.NewParser(),
		normalizer: post.NewNormalizer(),
		timestamps: post.NewTimestampParser(),
		delay:      politenessDelay,
		sleep:      time.Sleep,
	}
}

// Collect fetches and parses the account's mirror feed, admitting
// every in-window item into the session.
func (a *Adapter) Collect(ctx context.Context, s *post.Session) {
	defer a.sleep(a.delay)

	feedURL := fmt.Sprintf("%s/%s/rss", a.baseURL, s.Account)
	slog.Debug("Fetching mirror feed", "account", s.Account, "url", feedURL)

	reqCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, feedURL, nil)
	if err != nil {
		slog.Error("Failed to create mirror request", "account", s.Account, "error", err)
		return
	}
	req.Header.Set("User-Agent", a.userAgent)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		slog.Error("Mirror feed fetch failed", "account", s.Account, "error", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		slog.Warn("Mirror feed returned unexpected status", "account", s.Account, "status", resp.StatusCode)
		return
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		slog.Error("Failed to read mirror feed body", "account", s.Account, "error", err)
		return
	}

	feed, err := a.parser.Parse(bytes.NewReader(body))
	if err != nil {
		slog.Warn("Mirror feed is not parseable", "account", s.Account, "error", err)
		return
	}

	admitted := 0
	for _, item := range feed.Items {
		p, ok := a.parseItem(item, s.Account)
		if !ok {
			continue
		}
		if s.Admit(p) {
			admitted++
		}
	}

	slog.Info("Mirror feed processed", "account", s.Account, "items", len(feed.Items), "admitted", admitted)
}

func (a *Adapter) parseItem(item *gofeed.Item, account string) (post.Post, bool) {
	// Mirror feeds carry the post text in the title and an HTML copy
	// in the description; prefer the richer one.
	raw := item.Description
	if raw == "" {
		raw = item.Title
	}
	text := a.normalizer.Run(raw)
	if text == "" {
		return post.Post{}, false
	}

	var createdAt time.Time
	if item.PublishedParsed != nil {
		createdAt = item.PublishedParsed.UTC()
	} else {
		var confident bool
		createdAt, confident = a.timestamps.Parse(item.Published)
		if !confident {
			slog.Warn("Mirror item timestamp unparseable, using current time", "account", account)
		}
	}

	id := item.GUID
	if id == "" {
		id = item.Link
	}
	if id == "" {
		id = post.PermalinkURL(a.baseURL, account, "", createdAt)
	}
	url := item.Link
	if url == "" {
		url = post.PermalinkURL(a.baseURL, account, "", createdAt)
	}

	return post.Post{
		ID:        id,
		Author:    account,
		Text:      text,
		CreatedAt: createdAt,
		URL:       url,
		Source:    post.SourceMirror,
	}, true
}
