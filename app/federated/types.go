package federated

import (
	"bytes"
	"encoding/json"
)

// collection mirrors the subset of an ActivityPub collection the
// adapter reads. The item list can be expressed three ways; itemsOf
// resolves which one applies exactly once per response.
type collection struct {
	Type         string            `json:"type"`
	TotalItems   int               `json:"totalItems"`
	OrderedItems []json.RawMessage `json:"orderedItems"`
	Items        []json.RawMessage `json:"items"`
	First        json.RawMessage   `json:"first"`
}

// itemListKind is the discriminant for the three equivalent item-list
// encodings a collection may use.
type itemListKind int

const (
	listNone itemListKind = iota
	listInlineOrdered
	listInlineUnordered
	listPagedReference
)

// itemsOf classifies how the collection expresses its items. For
// listPagedReference the caller resolves the `first` field itself,
// since it can be either a URL string or an inline page object.
func itemsOf(c *collection) (itemListKind, []json.RawMessage) {
	switch {
	case c.OrderedItems != nil:
		return listInlineOrdered, c.OrderedItems
	case c.Items != nil:
		return listInlineUnordered, c.Items
	case len(c.First) > 0:
		return listPagedReference, nil
	default:
		return listNone, nil
	}
}

// firstPageURL extracts `first` when it is a plain URL string.
func firstPageURL(c *collection) (string, bool) {
	if len(c.First) == 0 || !bytes.HasPrefix(bytes.TrimSpace(c.First), []byte(`"`)) {
		return "", false
	}
	var url string
	if err := json.Unmarshal(c.First, &url); err != nil {
		return "", false
	}
	return url, true
}

// firstPageInline extracts `first` when it is an inline page object.
func firstPageInline(c *collection) (*collection, bool) {
	if len(c.First) == 0 || bytes.HasPrefix(bytes.TrimSpace(c.First), []byte(`"`)) {
		return nil, false
	}
	var page collection
	if err := json.Unmarshal(c.First, &page); err != nil {
		return nil, false
	}
	return &page, true
}

// activity is the Create envelope wrapping the actual post object.
type activity struct {
	Type   string          `json:"type"`
	Object json.RawMessage `json:"object"`
}

// note is the post object itself.
type note struct {
	Type      string          `json:"type"`
	ID        string          `json:"id"`
	URL       string          `json:"url"`
	Content   string          `json:"content"`
	Published string          `json:"published"`
	Replies   collectionCount `json:"replies"`
	Shares    collectionCount `json:"shares"`
	Likes     collectionCount `json:"likes"`
}

// collectionCount reads the totalItems field of an optional
// sub-collection. Sources sometimes put a bare URL there instead of an
// object; that and any other shape counts as zero.
type collectionCount struct {
	Total int
}

func (c *collectionCount) UnmarshalJSON(data []byte) error {
	var obj struct {
		TotalItems int `json:"totalItems"`
	}
	if err := json.Unmarshal(data, &obj); err == nil && obj.TotalItems > 0 {
		c.Total = obj.TotalItems
	}
	return nil
}
