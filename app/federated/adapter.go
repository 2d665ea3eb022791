package federated

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/featherwatch/featherwatch/app/post"
)

const acceptHeader = `application/activity+json, application/ld+json; profile="https://www.w3.org/ns/activitystreams"`

// Adapter retrieves an account's public outbox collection from a
// federated mirror and feeds normalized posts into a collection
// session. All failures are absorbed: a fetch that goes wrong leaves
// the session as it was, it never propagates an error to the caller.
type Adapter struct {
	baseURL    string
	httpClient *http.Client
	userAgent  string
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
		normalizer: post.NewNormalizer(),
		timestamps: post.NewTimestampParser(),
		delay:      politenessDelay,
		sleep:      time.Sleep,
	}
}

// Collect fetches the account's outbox and admits every acceptable
// item into the session. The politeness delay is imposed after every
// account regardless of outcome.
func (a *Adapter) Collect(ctx context.Context, s *post.Session) {
	defer a.sleep(a.delay)

	outboxURL := fmt.Sprintf("%s/@%s/outbox", a.baseURL, s.Account)
	slog.Debug("Fetching outbox", "account", s.Account, "url", outboxURL)

	body, status, err := a.get(ctx, outboxURL)
	if err != nil {
		slog.Error("Outbox fetch failed", "account", s.Account, "error", err)
		return
	}

	switch {
	case status == http.StatusNotFound:
		// Account absent on the mirror is a normal outcome, the
		// collector falls back on another source.
		slog.Warn("Account not found on federated mirror", "account", s.Account)
		return
	case status != http.StatusOK:
		slog.Error("Outbox fetch returned unexpected status", "account", s.Account, "status", status)
		return
	}

	var coll collection
	if err := json.Unmarshal(body, &coll); err != nil {
		slog.Error("Outbox response is not valid JSON", "account", s.Account, "error", err)
		return
	}

	items := a.resolveItems(ctx, &coll, s.Account)
	admitted := 0
	for _, raw := range items {
		p, ok := a.parseItem(raw, s.Account)
		if !ok {
			continue
		}
		if s.Admit(p) {
			admitted++
		}
	}

	slog.Info("Outbox processed", "account", s.Account, "items", len(items), "admitted", admitted)
}

// Probe checks mirror liveness via the nodeinfo well-known endpoint.
// It is a health signal only and takes no part in collection.
func (a *Adapter) Probe(ctx context.Context) error {
	_, status, err := a.get(ctx, a.baseURL+"/.well-known/nodeinfo")
	if err != nil {
		return fmt.Errorf("nodeinfo probe failed: %w", err)
	}
	if status != http.StatusOK {
		return fmt.Errorf("nodeinfo probe returned status %d", status)
	}
	return nil
}

// resolveItems returns the collection's item list, following a `first`
// page reference with at most one additional GET. Pages beyond the
// first are never chased.
func (a *Adapter) resolveItems(ctx context.Context, coll *collection, account string) []json.RawMessage {
	kind, items := itemsOf(coll)
	if kind != listPagedReference {
		return items
	}

	if page, ok := firstPageInline(coll); ok {
		_, pageItems := itemsOf(page)
		return pageItems
	}

	pageURL, ok := firstPageURL(coll)
	if !ok {
		return nil
	}

	body, status, err := a.get(ctx, pageURL)
	if err != nil || status != http.StatusOK {
		slog.Warn("Could not fetch first collection page", "account", account, "url", pageURL, "status", status, "error", err)
		return nil
	}

	var page collection
	if err := json.Unmarshal(body, &page); err != nil {
		slog.Warn("First collection page is not valid JSON", "account", account, "error", err)
		return nil
	}
	_, pageItems := itemsOf(&page)
	return pageItems
}

// parseItem unwraps an activity envelope, keeps only Note objects with
// text content, and maps the note to a Post. Items that fail to parse
// are skipped individually.
func (a *Adapter) parseItem(raw json.RawMessage, account string) (post.Post, bool) {
	inner := raw

	var env activity
	if err := json.Unmarshal(raw, &env); err != nil {
		slog.Warn("Skipping malformed outbox item", "account", account, "error", err)
		return post.Post{}, false
	}
	if env.Type == "Create" && len(env.Object) > 0 {
		inner = env.Object
	}

	var n note
	if err := json.Unmarshal(inner, &n); err != nil {
		slog.Warn("Skipping malformed note object", "account", account, "error", err)
		return post.Post{}, false
	}
	if n.Type != "Note" || n.Content == "" {
		return post.Post{}, false
	}

	createdAt, confident := a.timestamps.Parse(n.Published)
	if !confident {
		slog.Warn("Note timestamp unparseable, using current time", "account", account, "published", n.Published)
	}

	id := n.ID
	if id == "" {
		id = post.PermalinkURL(a.baseURL, account, "", createdAt)
	}
	url := n.URL
	if url == "" {
		url = post.PermalinkURL(a.baseURL, account, "", createdAt)
	}

	return post.Post{
		ID:        id,
		Author:    account,
		Text:      a.normalizer.Run(n.Content),
		CreatedAt: createdAt,
		Counts: post.Counts{
			Replies:  n.Replies.Total,
			Reshares: n.Shares.Total,
			Likes:    n.Likes.Total,
		},
		URL:    url,
		Source: post.SourceFederated,
	}, true
}

func (a *Adapter) get(ctx context.Context, url string) ([]byte, int, error) {
	reqCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", a.userAgent)
	req.Header.Set("Accept", acceptHeader)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response body: %w", err)
	}
	return body, resp.StatusCode, nil
}
