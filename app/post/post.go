package post

import (
	"fmt"
	"strings"
	"time"
)

// SourceKind records which adapter produced a post.
type SourceKind string

const (
	SourceFederated SourceKind = "federated"
	SourceMirror    SourceKind = "mirror"
	SourceLive      SourceKind = "live"
)

// Counts holds the engagement numbers a source reports for a post.
// Fields are zero when the source omits them, never negative.
type Counts struct {
	Replies  int
	Reshares int
	Likes    int
}

// Post is the canonical normalized representation of one social-media post.
type Post struct {
	ID        string
	Author    string // handle without the leading @
	Text      string // plain text, markup stripped, whitespace collapsed
	CreatedAt time.Time
	Counts    Counts
	URL       string
	Source    SourceKind
}

// NormalizeHandle strips the leading @ and surrounding whitespace
// from an account handle.
func NormalizeHandle(handle string) string {
	return strings.TrimPrefix(strings.TrimSpace(handle), "@")
}

// PermalinkURL synthesizes a deterministic permalink for posts whose
// source did not provide one. When the source exposes no id either,
// the creation time stands in for it.
func PermalinkURL(baseURL, author, id string, createdAt time.Time) string {
	if id == "" {
		id = fmt.Sprintf("%d", createdAt.Unix())
	}
	return fmt.Sprintf("%s/@%s/status/%s", strings.TrimRight(baseURL, "/"), author, id)
}
