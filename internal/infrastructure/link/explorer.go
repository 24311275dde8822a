package link

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	readability "github.com/go-shiori/go-readability"

	"contentmaker/internal/domain"
	"contentmaker/internal/ports"
)

const (
	defaultTimeout = 30 * time.Second
	maxTextLength  = 16 * 1024
)

// Domains that never yield readable article text.
var skipDomains = []string{
	"facebook.com",
	"instagram.com",
	"linkedin.com",
	"youtube.com",
	"tiktok.com",
	"pinterest.com",
}

// Explorer resolves an item link to readable text via readability extraction.
// Results live only as long as the enrichment call that requested them.
type Explorer struct {
	timeout time.Duration
}

var _ ports.LinkResolver = (*Explorer)(nil)

// NewExplorer builds a resolver with a per-fetch timeout.
func NewExplorer(timeout time.Duration) *Explorer {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Explorer{timeout: timeout}
}

// Resolve fetches the page and extracts its main text. Failures are returned
// to the caller, which is expected to fall back to the item's own fields.
func (e *Explorer) Resolve(ctx context.Context, rawURL string) (domain.LinkContent, error) {
	if !strings.Contains(rawURL, "://") {
		rawURL = "https://" + rawURL
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return domain.LinkContent{URL: rawURL}, fmt.Errorf("invalid url %s: %w", rawURL, err)
	}

	host := strings.ToLower(parsed.Host)
	for _, skip := range skipDomains {
		if strings.Contains(host, skip) {
			return domain.LinkContent{URL: rawURL, Domain: host},
				fmt.Errorf("domain %s is in skip list", host)
		}
	}

	timeout := e.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}

	article, err := readability.FromURL(rawURL, timeout)
	if err != nil {
		return domain.LinkContent{URL: rawURL, Domain: host},
			fmt.Errorf("extract %s: %w", rawURL, err)
	}

	text := strings.TrimSpace(article.TextContent)
	if len(text) > maxTextLength {
		cut := maxTextLength
		// Back up so the cut never lands mid-rune.
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut]
	}

	return domain.LinkContent{
		URL:    rawURL,
		Title:  article.Title,
		Text:   text,
		Domain: host,
	}, nil
}
