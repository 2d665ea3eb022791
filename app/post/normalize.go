package post

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/text/unicode/norm"
)

// Normalizer strips markup from raw source payloads into plain text:
// tags removed, entities decoded, unicode NFC-normalized, whitespace
// collapsed. Idempotent, and on internal failure it degrades to
// returning the input unchanged rather than losing data.
type Normalizer struct{}

func NewNormalizer() *Normalizer {
	return &Normalizer{}
}

func (n *Normalizer) Run(raw string) string {
	text := raw

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err == nil {
		text = doc.Text()
	}

	text = norm.NFC.String(text)
	return strings.Join(strings.Fields(text), " ")
}
