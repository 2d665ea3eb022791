package live

import (
	"context"
	"errors"
)

// ErrNoElement is returned by Find when no element matches the
// selector. Callers use it to distinguish "control absent" (a normal
// page state) from a driver failure.
var ErrNoElement = errors.New("live: element not found")

// ErrLoginFailed marks a login attempt that did not produce an
// authenticated session. It disables the live path for the rest of
// the run.
var ErrLoginFailed = errors.New("live: login failed")

// Element is one rendered node on the page. Selectors passed to Find
// and FindAll are evaluated relative to the element.
type Element interface {
	// ID is a stable identity for the node within the current page,
	// used for dedup during extraction. It carries no meaning across
	// navigations.
	ID() string
	Text(ctx context.Context) (string, error)
	// Attr returns the attribute value, or "" and false when the
	// attribute is absent.
	Attr(ctx context.Context, name string) (string, bool, error)
	Find(ctx context.Context, selector string) (Element, error)
	Type(ctx context.Context, text string) error
	Click(ctx context.Context) error
}

// Browser is the rendered-document capability the live adapter drives:
// navigate, enumerate elements, scroll, reload, and read cookies (the
// latter only to confirm authentication succeeded). The production
// implementation runs a headless Chrome via chromedp; tests substitute
// fakes.
type Browser interface {
	Navigate(ctx context.Context, url string) error
	Find(ctx context.Context, selector string) (Element, error)
	FindAll(ctx context.Context, selector string) ([]Element, error)
	ScrollBottom(ctx context.Context) error
	Reload(ctx context.Context) error
	Cookie(ctx context.Context, name string) (string, bool, error)
	Close() error
}
