package live

import (
	"context"
	"fmt"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"
)

// ChromeBrowser drives a headless Chrome instance over the DevTools
// protocol. One instance backs a whole run; the collector navigates it
// from account to account and closes it at the end.
type ChromeBrowser struct {
	ctx         context.Context
	cancelCtx   context.CancelFunc
	cancelAlloc context.CancelFunc
}

func NewChromeBrowser(headless bool, userAgent string) (*ChromeBrowser, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-notifications", true),
		chromedp.Flag("disable-popup-blocking", true),
		chromedp.NoSandbox,
		chromedp.UserAgent(userAgent),
	)

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)
	ctx, cancelCtx := chromedp.NewContext(allocCtx)

	// Start the browser process up front so a broken environment
	// surfaces here instead of mid-login.
	if err := chromedp.Run(ctx); err != nil {
		cancelCtx()
		cancelAlloc()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	return &ChromeBrowser{ctx: ctx, cancelCtx: cancelCtx, cancelAlloc: cancelAlloc}, nil
}

func (b *ChromeBrowser) Navigate(ctx context.Context, url string) error {
	return b.run(ctx, chromedp.Navigate(url))
}

func (b *ChromeBrowser) Find(ctx context.Context, selector string) (Element, error) {
	nodes, err := b.nodes(ctx, selector)
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, ErrNoElement
	}
	return &chromeElement{browser: b, node: nodes[0]}, nil
}

func (b *ChromeBrowser) FindAll(ctx context.Context, selector string) ([]Element, error) {
	nodes, err := b.nodes(ctx, selector)
	if err != nil {
		return nil, err
	}
	elements := make([]Element, 0, len(nodes))
	for _, n := range nodes {
		elements = append(elements, &chromeElement{browser: b, node: n})
	}
	return elements, nil
}

func (b *ChromeBrowser) ScrollBottom(ctx context.Context) error {
	return b.run(ctx, chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight);`, nil))
}

func (b *ChromeBrowser) Reload(ctx context.Context) error {
	return b.run(ctx, chromedp.Reload())
}

func (b *ChromeBrowser) Cookie(ctx context.Context, name string) (string, bool, error) {
	var value string
	var found bool
	err := b.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		cookies, err := storage.GetCookies().Do(ctx)
		if err != nil {
			return err
		}
		for _, c := range cookies {
			if c.Name == name {
				value = c.Value
				found = true
				return nil
			}
		}
		return nil
	}))
	return value, found, err
}

func (b *ChromeBrowser) Close() error {
	b.cancelCtx()
	b.cancelAlloc()
	return nil
}

// nodes resolves a document-wide selector. BySearch accepts both
// CSS and XPath expressions.
func (b *ChromeBrowser) nodes(ctx context.Context, selector string) ([]*cdp.Node, error) {
	var nodes []*cdp.Node
	if err := b.run(ctx, chromedp.Nodes(selector, &nodes, chromedp.BySearch, chromedp.AtLeast(0))); err != nil {
		return nil, err
	}
	return nodes, nil
}

// run executes actions on the browser tab while honoring the caller's
// context for cancellation.
func (b *ChromeBrowser) run(ctx context.Context, actions ...chromedp.Action) error {
	done := make(chan error, 1)
	go func() { done <- chromedp.Run(b.ctx, actions...) }()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}

type chromeElement struct {
	browser *ChromeBrowser
	node    *cdp.Node
}

func (e *chromeElement) ID() string {
	return fmt.Sprintf("node-%d", e.node.NodeID)
}

func (e *chromeElement) Text(ctx context.Context) (string, error) {
	var text string
	err := e.browser.run(ctx, chromedp.Text([]cdp.NodeID{e.node.NodeID}, &text, chromedp.ByNodeID))
	return text, err
}

func (e *chromeElement) Attr(ctx context.Context, name string) (string, bool, error) {
	var value string
	var ok bool
	err := e.browser.run(ctx, chromedp.AttributeValue([]cdp.NodeID{e.node.NodeID}, name, &value, &ok, chromedp.ByNodeID))
	return value, ok, err
}

// Find resolves a CSS selector relative to the element. XPath is not
// supported here: scoping to a node only works for CSS queries.
func (e *chromeElement) Find(ctx context.Context, selector string) (Element, error) {
	var nodes []*cdp.Node
	err := e.browser.run(ctx, chromedp.Nodes(selector, &nodes,
		chromedp.ByQueryAll, chromedp.FromNode(e.node), chromedp.AtLeast(0)))
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, ErrNoElement
	}
	return &chromeElement{browser: e.browser, node: nodes[0]}, nil
}

func (e *chromeElement) Type(ctx context.Context, text string) error {
	return e.browser.run(ctx, chromedp.SendKeys([]cdp.NodeID{e.node.NodeID}, text, chromedp.ByNodeID))
}

func (e *chromeElement) Click(ctx context.Context) error {
	return e.browser.run(ctx, chromedp.Click([]cdp.NodeID{e.node.NodeID}, chromedp.ByNodeID))
}
