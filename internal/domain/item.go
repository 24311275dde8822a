package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Kind separates short news items from research papers.
type Kind string

const (
	KindNews  Kind = "news"
	KindPaper Kind = "paper"
)

// Status enumerates pipeline milestones recorded in storage.
type Status string

const (
	StatusSummarized Status = "summarized"
	// StatusSkipped marks items that exhausted their enrichment retry budget;
	// they occupy the seen-set so later passes drop them at deduplication.
	StatusSkipped Status = "skipped"
)

// Item is the unit of content flowing through the pipeline. News items carry
// title/summary/link; papers additionally carry authors, abstract and a
// publication date. Both share the same identity contract.
type Item struct {
	ID          string
	Kind        Kind
	Title       string
	Summary     string
	Abstract    string
	Link        string
	Authors     []string
	PublishedAt time.Time
	Status      Status
	CreatedAt   time.Time
}

// Identity derives the deduplication key for an item. The link is assumed to
// be a stable, content-unique key; two distinct contents behind one redirect
// URL intentionally collapse. Items without a link fall back to the
// normalized title.
func Identity(link, title string) string {
	key := strings.TrimSpace(link)
	if key == "" {
		key = strings.ToLower(strings.Join(strings.Fields(title), " "))
	}
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])[:16]
}

// WithSummary returns a copy of the item with the generated summary set.
func (i Item) WithSummary(summary string) Item {
	i.Summary = summary
	return i
}

// Deliverable reports whether the item carries everything a sink needs.
func (i Item) Deliverable() bool {
	return i.ID != "" && i.Title != "" && i.Summary != ""
}

// LinkContent is the transient result of resolving an item link. It lives
// only for the duration of a single enrichment call and is never persisted.
type LinkContent struct {
	URL    string
	Title  string
	Text   string
	Domain string
}
