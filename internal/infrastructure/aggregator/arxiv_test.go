package aggregator

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

const arxivAtomFixture = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <entry>
    <id>http://arxiv.org/abs/2501.00001v1</id>
    <title>Sample Paper Title</title>
    <summary>  Sample abstract text.  </summary>
    <published>2026-02-10T18:30:00Z</published>
    <author><name>Ada Lovelace</name></author>
    <author><name>Alan Turing</name></author>
  </entry>
  <entry>
    <id></id>
    <title>Entry Without Link Is Skipped</title>
    <summary>ignored</summary>
  </entry>
</feed>`

func TestArxivSourcePoll(t *testing.T) {
	t.Parallel()

	var gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		_, _ = w.Write([]byte(arxivAtomFixture))
	}))
	defer server.Close()

	src := NewArxivSource("arxiv-ai", "cat:cs.AI", 5, server.Client())
	src.baseURL = server.URL

	items, err := src.Poll(context.Background())
	if err != nil {
		t.Fatalf("Poll error: %v", err)
	}

	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}

	item := items[0]
	if item.Title != "Sample Paper Title" {
		t.Fatalf("unexpected title: %q", item.Title)
	}
	if item.Link != "http://arxiv.org/abs/2501.00001v1" {
		t.Fatalf("unexpected link: %q", item.Link)
	}
	if item.Abstract != "Sample abstract text." {
		t.Fatalf("unexpected abstract: %q", item.Abstract)
	}
	if len(item.Authors) != 2 || item.Authors[0] != "Ada Lovelace" {
		t.Fatalf("unexpected authors: %v", item.Authors)
	}
	if item.ID == "" {
		t.Fatal("identity not computed")
	}

	want := time.Date(2026, time.February, 10, 18, 30, 0, 0, time.UTC)
	if !item.PublishedAt.Equal(want) {
		t.Fatalf("unexpected published date: %v", item.PublishedAt)
	}

	for _, param := range []string{"search_query=cat%3Acs.AI", "max_results=5", "sortBy=lastUpdatedDate"} {
		if !strings.Contains(gotQuery, param) {
			t.Fatalf("query %q missing %q", gotQuery, param)
		}
	}
}

func TestArxivSourcePollServerError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	src := NewArxivSource("arxiv-ai", "cat:cs.AI", 5, server.Client())
	src.baseURL = server.URL

	if _, err := src.Poll(context.Background()); err == nil {
		t.Fatal("expected error on non-200 response")
	}
}
