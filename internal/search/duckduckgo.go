package search

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/time/rate"
)

const ddgLiteURL = "https://lite.duckduckgo.com/lite/"

// DuckDuckGo scrapes the DuckDuckGo lite HTML page. Requests are throttled
// to one per second and a 429 is retried with doubling backoff.
type DuckDuckGo struct {
	client    *http.Client
	endpoint  string
	userAgent string
	limiter   *rate.Limiter
	// MaxAttempts bounds 429 retries.
	MaxAttempts int
	// Backoff is the first 429 delay.
	Backoff time.Duration
}

func NewDuckDuckGo(userAgent string) *DuckDuckGo {
	return &DuckDuckGo{
		client:      &http.Client{Timeout: 15 * time.Second},
		endpoint:    ddgLiteURL,
		userAgent:   userAgent,
		limiter:     rate.NewLimiter(rate.Every(time.Second), 1),
		MaxAttempts: 3,
		Backoff:     time.Second,
	}
}

// WithEndpoint points the scraper at a different lite page.
func (d *DuckDuckGo) WithEndpoint(endpoint string) *DuckDuckGo {
	d.endpoint = endpoint
	return d
}

func (d *DuckDuckGo) Name() string { return "duckduckgo" }

func (d *DuckDuckGo) Search(ctx context.Context, query string, n int) ([]Result, error) {
	if strings.TrimSpace(query) == "" {
		return nil, errors.New("query is empty")
	}
	form := url.Values{}
	form.Set("q", query)

	delay := d.Backoff
	var resp *http.Response
	for attempt := 1; ; attempt++ {
		if err := d.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, strings.NewReader(form.Encode()))
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", d.userAgent)
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		resp, err = d.client.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusTooManyRequests || attempt >= d.MaxAttempts {
			break
		}
		resp.Body.Close()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		delay = min(delay*2, 30*time.Second)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("duckduckgo http %d", resp.StatusCode)
	}
	doc, err := html.Parse(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return nil, fmt.Errorf("parse duckduckgo page: %w", err)
	}
	results := parseLiteResults(doc)
	if len(results) > n {
		results = results[:n]
	}
	return results, nil
}

// parseLiteResults collects anchors with class result-link, pairing each
// with the next result-snippet cell. Sponsored links are skipped.
func parseLiteResults(doc *html.Node) []Result {
	var results []Result
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			class := getAttr(n, "class")
			switch {
			case n.Data == "a" && hasClass(class, "result-link"):
				if u := resolveResultURL(getAttr(n, "href")); u != "" {
					results = append(results, Result{URL: u, Title: nodeText(n)})
				}
				return
			case n.Data == "td" && hasClass(class, "result-snippet"):
				if len(results) > 0 && results[len(results)-1].Snippet == "" {
					results[len(results)-1].Snippet = nodeText(n)
				}
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return results
}

// resolveResultURL unwraps DuckDuckGo redirect links (/l/?uddg=...) and
// drops ad and internal links.
func resolveResultURL(href string) string {
	href = strings.TrimSpace(href)
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if u.Host == "" || strings.HasSuffix(u.Hostname(), "duckduckgo.com") {
		if u.Path == "/y.js" {
			return ""
		}
		target := u.Query().Get("uddg")
		if target == "" {
			return ""
		}
		return resolveResultURL(target)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	return u.String()
}

func hasClass(classAttr, class string) bool {
	for _, c := range strings.Fields(classAttr) {
		if c == class {
			return true
		}
	}
	return false
}

func getAttr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(b.String()), " ")
}
