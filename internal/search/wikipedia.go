package search

import (
	"context"
	"net/url"
	"strings"
)

// Wikipedia is the last-resort searcher: it makes no request and returns
// the Wikipedia "go" search URL, which redirects to the best-matching
// article.
type Wikipedia struct {
	// Base defaults to https://en.wikipedia.org.
	Base string
}

func (w Wikipedia) Name() string { return "wikipedia" }

func (w Wikipedia) Search(ctx context.Context, query string, n int) ([]Result, error) {
	base := w.Base
	if base == "" {
		base = "https://en.wikipedia.org"
	}
	query = strings.TrimSpace(query)
	if query == "" || n <= 0 {
		return nil, nil
	}
	v := url.Values{}
	v.Set("search", query)
	v.Set("go", "Go")
	return []Result{{
		URL:   base + "/wiki/Special:Search?" + v.Encode(),
		Title: query + " - Wikipedia",
	}}, nil
}
