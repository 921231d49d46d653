// Package search lists candidate source URLs for a sub-query.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
)

// Result is one candidate source.
type Result struct {
	URL     string
	Title   string
	Snippet string
}

// Searcher returns up to n candidate URLs for query.
type Searcher interface {
	Name() string
	Search(ctx context.Context, query string, n int) ([]Result, error)
}

// DefaultBlockedDomains are sites whose pages are login walls or feeds
// rather than readable sources.
var DefaultBlockedDomains = []string{
	"facebook.com", "twitter.com", "x.com", "instagram.com",
	"linkedin.com", "tiktok.com", "pinterest.com", "reddit.com",
	"youtube.com",
}

// Chain asks each searcher in order until n usable results are gathered.
// Results are filtered against blocked domains and deduplicated by
// normalized URL; a failing searcher is logged and skipped.
type Chain struct {
	Searchers []Searcher
	Blocked   []string
	Log       *slog.Logger
}

func NewChain(log *slog.Logger, searchers ...Searcher) *Chain {
	return &Chain{Searchers: searchers, Blocked: DefaultBlockedDomains, Log: log}
}

func (c *Chain) Name() string { return "chain" }

func (c *Chain) Search(ctx context.Context, query string, n int) ([]Result, error) {
	log := c.Log
	if log == nil {
		log = slog.Default()
	}
	seen := make(map[string]bool)
	var out []Result
	var errs []error

	for _, s := range c.Searchers {
		if len(out) >= n {
			break
		}
		results, err := s.Search(ctx, query, n)
		if err != nil {
			if ctx.Err() != nil {
				return out, ctx.Err()
			}
			log.Warn("search provider failed", "provider", s.Name(), "query", query, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		for _, r := range results {
			if len(out) >= n {
				break
			}
			if IsBlocked(r.URL, c.Blocked) {
				continue
			}
			key, err := NormalizeURL(r.URL)
			if err != nil || seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, r)
		}
	}
	if len(out) == 0 && len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return out, nil
}

// NormalizeURL canonicalizes a URL for deduplication: lowercase scheme and
// host, no "www.", no fragment, no tracking parameters, no trailing slash.
func NormalizeURL(raw string) (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", err
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("url %q has no host", raw)
	}
	parsed.Scheme = strings.ToLower(parsed.Scheme)
	if parsed.Scheme == "http" {
		parsed.Scheme = "https"
	}
	parsed.Host = strings.TrimPrefix(strings.ToLower(parsed.Host), "www.")
	parsed.Fragment = ""
	if parsed.RawQuery != "" {
		q := parsed.Query()
		for key := range q {
			k := strings.ToLower(key)
			if strings.HasPrefix(k, "utm_") || k == "fbclid" || k == "gclid" || k == "msclkid" || k == "ref" || k == "source" {
				q.Del(key)
			}
		}
		parsed.RawQuery = q.Encode()
	}
	parsed.Path = strings.TrimSuffix(parsed.Path, "/")
	return parsed.String(), nil
}

// IsBlocked reports whether raw's host is, or is a subdomain of, a blocked
// domain. Unparseable URLs are blocked.
func IsBlocked(raw string, blocked []string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return true
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return true
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	for _, d := range blocked {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}
