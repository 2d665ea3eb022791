package live

import (
	"context"
	"fmt"
)

// fakeElement is a scripted rendered node for tests.
type fakeElement struct {
	id       string
	text     string
	attrs    map[string]string
	children map[string]*fakeElement
	typed    []string
	clicks   int
	textErr  error
}

func (e *fakeElement) ID() string { return e.id }

func (e *fakeElement) Text(ctx context.Context) (string, error) {
	if e.textErr != nil {
		return "", e.textErr
	}
	return e.text, nil
}

func (e *fakeElement) Attr(ctx context.Context, name string) (string, bool, error) {
	v, ok := e.attrs[name]
	return v, ok, nil
}

func (e *fakeElement) Find(ctx context.Context, selector string) (Element, error) {
	if child, ok := e.children[selector]; ok {
		return child, nil
	}
	return nil, ErrNoElement
}

func (e *fakeElement) Type(ctx context.Context, text string) error {
	e.typed = append(e.typed, text)
	return nil
}

func (e *fakeElement) Click(ctx context.Context) error {
	e.clicks++
	return nil
}

// fakeBrowser serves scripted pages. elements maps a selector to the
// sequence of results for consecutive FindAll calls; the last entry
// repeats once the script runs out.
type fakeBrowser struct {
	elements    map[string][][]Element
	findCalls   map[string]int
	singles     map[string]*fakeElement
	cookies     map[string]string
	navigations []string
	reloads     int
	scrolls     int
	closed      bool
}

func newFakeBrowser() *fakeBrowser {
	return &fakeBrowser{
		elements:  make(map[string][][]Element),
		findCalls: make(map[string]int),
		singles:   make(map[string]*fakeElement),
		cookies:   make(map[string]string),
	}
}

func (b *fakeBrowser) Navigate(ctx context.Context, url string) error {
	b.navigations = append(b.navigations, url)
	return nil
}

func (b *fakeBrowser) Find(ctx context.Context, selector string) (Element, error) {
	if el, ok := b.singles[selector]; ok {
		return el, nil
	}
	all, err := b.FindAll(ctx, selector)
	if err != nil || len(all) == 0 {
		return nil, ErrNoElement
	}
	return all[0], nil
}

func (b *fakeBrowser) FindAll(ctx context.Context, selector string) ([]Element, error) {
	script, ok := b.elements[selector]
	if !ok || len(script) == 0 {
		return nil, nil
	}
	i := b.findCalls[selector]
	b.findCalls[selector]++
	if i >= len(script) {
		i = len(script) - 1
	}
	return script[i], nil
}

func (b *fakeBrowser) ScrollBottom(ctx context.Context) error {
	b.scrolls++
	return nil
}

func (b *fakeBrowser) Reload(ctx context.Context) error {
	b.reloads++
	return nil
}

func (b *fakeBrowser) Cookie(ctx context.Context, name string) (string, bool, error) {
	v, ok := b.cookies[name]
	return v, ok, nil
}

func (b *fakeBrowser) Close() error {
	b.closed = true
	return nil
}

// fakeCard builds a rendered post card with the sub-elements the
// extractor reads.
func fakeCard(id, author, postID, text, datetime string) *fakeElement {
	return &fakeElement{
		id: id,
		children: map[string]*fakeElement{
			cardTimeSelector: {id: id + "-time", attrs: map[string]string{"datetime": datetime}},
			cardTextSelector: {id: id + "-text", text: text},
			cardLinkSelector: {id: id + "-link", attrs: map[string]string{
				"href": fmt.Sprintf("/%s/status/%s", author, postID),
			}},
			cardReplySelector:   {id: id + "-reply", text: "1"},
			cardReshareSelector: {id: id + "-rt", text: "2K"},
			cardLikeSelector:    {id: id + "-like", text: "3"},
		},
	}
}
