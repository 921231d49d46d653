package search

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

const litePage = `<html><body><table>
<tr><td><a rel="nofollow" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Fexample.com%2Fremote-tips&amp;rut=abc" class="result-link">Remote work tips</a></td></tr>
<tr><td class="result-snippet">Ten ways to stay <b>productive</b> at home.</td></tr>
<tr><td><a href="https://duckduckgo.com/y.js?ad_provider=x" class="result-link">Sponsored</a></td></tr>
<tr><td><a href="https://blog.example.org/focus" class='result-link'>Focus at home</a></td></tr>
<tr><td class="result-snippet">Deep work for remote teams.</td></tr>
</table></body></html>`

func TestDuckDuckGoParsesLitePage(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "remote work", r.PostForm.Get("q"))
		assert.Equal(t, "ua", r.Header.Get("User-Agent"))
		w.Write([]byte(litePage))
	}))
	defer ts.Close()

	results, err := NewDuckDuckGo("ua").WithEndpoint(ts.URL).Search(context.Background(), "remote work", 5)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "https://example.com/remote-tips", results[0].URL)
	assert.Equal(t, "Remote work tips", results[0].Title)
	assert.Equal(t, "Ten ways to stay productive at home.", results[0].Snippet)
	assert.Equal(t, "https://blog.example.org/focus", results[1].URL)
	assert.Equal(t, "Deep work for remote teams.", results[1].Snippet)
}

func TestDuckDuckGoRetriesOn429(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(litePage))
	}))
	defer ts.Close()

	d := NewDuckDuckGo("ua").WithEndpoint(ts.URL)
	d.Backoff = time.Millisecond
	results, err := d.Search(context.Background(), "q", 1)
	require.NoError(t, err)
	assert.Len(t, results, 1)
	assert.EqualValues(t, 2, calls.Load())
}

func TestGoogleSearch(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "engine", r.URL.Query().Get("cx"))
		assert.Equal(t, "ai diagnosis", r.URL.Query().Get("q"))
		assert.Equal(t, "3", r.URL.Query().Get("num"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"items":[
			{"link":"https://example.com/a","title":"A","snippet":"sa"},
			{"link":"https://example.com/b","title":"B","snippet":"sb"}]}`))
	}))
	defer ts.Close()

	g, err := NewGoogle(context.Background(), "key", "engine",
		option.WithEndpoint(ts.URL+"/"), option.WithHTTPClient(ts.Client()))
	require.NoError(t, err)
	results, err := g.Search(context.Background(), "ai diagnosis", 3)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, Result{URL: "https://example.com/a", Title: "A", Snippet: "sa"}, results[0])
}

func TestWikipediaHeuristic(t *testing.T) {
	results, err := Wikipedia{}.Search(context.Background(), "remote work", 3)
	require.NoError(t, err)
	require.Len(t, results, 1)
	u, err := url.Parse(results[0].URL)
	require.NoError(t, err)
	assert.Equal(t, "en.wikipedia.org", u.Host)
	assert.Equal(t, "remote work", u.Query().Get("search"))
}

type stubSearcher struct {
	name    string
	results []Result
	err     error
	calls   int
}

func (s *stubSearcher) Name() string { return s.name }

func (s *stubSearcher) Search(ctx context.Context, query string, n int) ([]Result, error) {
	s.calls++
	return s.results, s.err
}

func TestChainFallsThroughAndDedupes(t *testing.T) {
	failing := &stubSearcher{name: "google", err: errors.New("quota")}
	ddg := &stubSearcher{name: "ddg", results: []Result{
		{URL: "https://www.example.com/a/?utm_source=x"},
		{URL: "https://example.com/a"},
		{URL: "https://twitter.com/someone/status/1"},
		{URL: "https://example.com/b#top"},
	}}
	wiki := &stubSearcher{name: "wiki", results: []Result{{URL: "https://en.wikipedia.org/wiki/X"}}}

	results, err := NewChain(nil, failing, ddg, wiki).Search(context.Background(), "q", 3)
	require.NoError(t, err)
	var urls []string
	for _, r := range results {
		urls = append(urls, r.URL)
	}
	assert.Equal(t, []string{
		"https://www.example.com/a/?utm_source=x",
		"https://example.com/b#top",
		"https://en.wikipedia.org/wiki/X",
	}, urls)
	assert.Equal(t, 1, wiki.calls)
}

func TestChainStopsWhenSatisfied(t *testing.T) {
	first := &stubSearcher{name: "a", results: []Result{{URL: "https://a.com/1"}, {URL: "https://a.com/2"}}}
	second := &stubSearcher{name: "b", results: []Result{{URL: "https://b.com/1"}}}
	results, err := NewChain(nil, first, second).Search(context.Background(), "q", 2)
	require.NoError(t, err)
	assert.Len(t, results, 2)
	assert.Equal(t, 0, second.calls)
}

func TestChainAllFail(t *testing.T) {
	a := &stubSearcher{name: "a", err: errors.New("down")}
	b := &stubSearcher{name: "b", err: errors.New("blocked")}
	_, err := NewChain(nil, a, b).Search(context.Background(), "q", 2)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "a: down") && strings.Contains(err.Error(), "b: blocked"))
}

func TestNormalizeURL(t *testing.T) {
	tests := []struct{ in, want string }{
		{"https://WWW.Example.com/Path/", "https://example.com/Path"},
		{"http://example.com/a?utm_medium=x&id=3#frag", "https://example.com/a?id=3"},
		{"https://example.com/", "https://example.com"},
		{"https://example.com/a?fbclid=1&ref=hn", "https://example.com/a"},
	}
	for _, tt := range tests {
		got, err := NormalizeURL(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
	_, err := NormalizeURL("not a url")
	assert.Error(t, err)
}

func TestIsBlocked(t *testing.T) {
	for _, u := range []string{"https://m.facebook.com/x", "https://www.linkedin.com/in/a", "ftp://example.com/x", "::"} {
		assert.True(t, IsBlocked(u, DefaultBlockedDomains), u)
	}
	for _, u := range []string{"https://example.com/", "https://notfacebook.com/"} {
		assert.False(t, IsBlocked(u, DefaultBlockedDomains), u)
	}
}

func ExampleNormalizeURL() {
	u, _ := NormalizeURL("https://www.example.com/guide/?utm_source=news")
	fmt.Println(u)
	// Output: https://example.com/guide
}
