package search

import (
	"context"
	"fmt"

	"google.golang.org/api/customsearch/v1"
	"google.golang.org/api/option"
)

// Google queries the Programmable Search (Custom Search JSON) API.
type Google struct {
	svc *customsearch.Service
	cx  string
}

// NewGoogle builds a client for search engine cx. Extra options are
// appended after the API key.
func NewGoogle(ctx context.Context, apiKey, cx string, opts ...option.ClientOption) (*Google, error) {
	svc, err := customsearch.NewService(ctx, append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("custom search client: %w", err)
	}
	return &Google{svc: svc, cx: cx}, nil
}

func (g *Google) Name() string { return "google" }

func (g *Google) Search(ctx context.Context, query string, n int) ([]Result, error) {
	// The API caps num at 10.
	n = min(max(n, 1), 10)
	res, err := g.svc.Cse.List().Cx(g.cx).Q(query).Num(int64(n)).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("custom search: %w", err)
	}
	out := make([]Result, 0, len(res.Items))
	for _, item := range res.Items {
		if item == nil || item.Link == "" {
			continue
		}
		out = append(out, Result{URL: item.Link, Title: item.Title, Snippet: item.Snippet})
	}
	return out, nil
}
