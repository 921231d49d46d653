package collect

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dgallion1/reportgest/internal/fetch"
	"github.com/dgallion1/reportgest/internal/research"
	"github.com/dgallion1/reportgest/internal/search"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func articleHTML(title string, words int) string {
	var b strings.Builder
	for i := range words {
		fmt.Fprintf(&b, "%s%d ", strings.ToLower(title[:1]), i)
	}
	return "<html><head><title>" + title + "</title></head><body><article><p>" + b.String() + "</p></article></body></html>"
}

// site serves pages keyed by path; status overrides let tests inject failures.
type site struct {
	mu       sync.Mutex
	pages    map[string]string
	statuses map[string][]int
	delay    map[string]time.Duration
	hits     map[string]int
	active   atomic.Int32
	peak     atomic.Int32
}

func newSite() *site {
	return &site{pages: map[string]string{}, statuses: map[string][]int{}, delay: map[string]time.Duration{}, hits: map[string]int{}}
}

func (s *site) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	n := s.active.Add(1)
	defer s.active.Add(-1)
	for {
		p := s.peak.Load()
		if n <= p || s.peak.CompareAndSwap(p, n) {
			break
		}
	}

	s.mu.Lock()
	s.hits[r.URL.Path]++
	hit := s.hits[r.URL.Path]
	page, ok := s.pages[r.URL.Path]
	statuses := s.statuses[r.URL.Path]
	delay := s.delay[r.URL.Path]
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	} else {
		time.Sleep(10 * time.Millisecond)
	}
	if hit <= len(statuses) {
		w.WriteHeader(statuses[hit-1])
		return
	}
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(page))
}

func (s *site) hitCount(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

// mapSearcher returns fixed URLs per sub-query text.
type mapSearcher map[string][]string

func (m mapSearcher) Name() string { return "map" }

func (m mapSearcher) Search(ctx context.Context, q string, n int) ([]search.Result, error) {
	urls, ok := m[q]
	if !ok {
		return nil, errors.New("no results")
	}
	var out []search.Result
	for _, u := range urls {
		out = append(out, search.Result{URL: u, Title: "result"})
	}
	return out, nil
}

func sqs(texts ...string) []research.SubQuery {
	out := make([]research.SubQuery, len(texts))
	for i, t := range texts {
		out[i] = research.SubQuery{Text: t, Index: i}
	}
	return out
}

func testConfig() Config {
	return Config{SourcesPerQuery: 3, MaxConcurrent: 2, CallTimeout: 2 * time.Second, MinWords: 40, MaxWords: 1000, RetryDelay: time.Millisecond}
}

func TestCollectGathersDocumentsPerSubQuery(t *testing.T) {
	s := newSite()
	s.pages["/a1"] = articleHTML("Alpha one", 120)
	s.pages["/a2"] = articleHTML("Alpha two", 150)
	s.pages["/b1"] = articleHTML("Beta one", 200)
	ts := httptest.NewServer(s)
	defer ts.Close()

	c := New(mapSearcher{
		"alpha": {ts.URL + "/a1", ts.URL + "/a2"},
		"beta":  {ts.URL + "/b1"},
	}, fetch.NewHTTP("test"), testConfig(), nil, nil)

	findings := c.Collect(context.Background(), sqs("alpha", "beta"), nil)
	require.Len(t, findings, 2)
	assert.Equal(t, "alpha", findings[0].SubQuery.Text)
	assert.Len(t, findings[0].Documents, 2)
	assert.Equal(t, research.FindingsComplete, findings[0].Status)
	assert.Len(t, findings[1].Documents, 1)
	assert.Equal(t, "Beta one", findings[1].Documents[0].Title)
	assert.Equal(t, 200, findings[1].Documents[0].WordCount)
	assert.Equal(t, research.DocFetched, findings[1].Documents[0].Status)
}

func TestCollectDegradesPerURL(t *testing.T) {
	s := newSite()
	s.pages["/ok"] = articleHTML("Okay page", 100)
	s.pages["/flaky"] = articleHTML("Flaky page", 100)
	s.statuses["/flaky"] = []int{http.StatusServiceUnavailable}
	s.pages["/short"] = articleHTML("Short page", 10)
	ts := httptest.NewServer(s)
	defer ts.Close()

	c := New(mapSearcher{
		"q": {ts.URL + "/ok", ts.URL + "/missing", ts.URL + "/flaky"},
		"r": {ts.URL + "/short"},
	}, fetch.NewHTTP("test"), testConfig(), nil, nil)

	findings := c.Collect(context.Background(), sqs("q", "r"), nil)

	q := findings[0]
	assert.Equal(t, research.FindingsPartial, q.Status)
	require.Len(t, q.Documents, 2)
	require.Len(t, q.Failures, 1)
	assert.Equal(t, string(fetch.KindHTTP), q.Failures[0].Kind)
	assert.Equal(t, http.StatusNotFound, q.Failures[0].StatusCode)
	assert.Equal(t, 1, q.Failures[0].Attempts, "404 is not retried")
	assert.Equal(t, 1, s.hitCount("/missing"))

	var flaky research.SourceDocument
	for _, d := range q.Documents {
		if strings.HasSuffix(d.URL, "/flaky") {
			flaky = d
		}
	}
	assert.Equal(t, research.DocRetried, flaky.Status)
	assert.Equal(t, 2, s.hitCount("/flaky"))

	r := findings[1]
	assert.Equal(t, research.FindingsEmpty, r.Status)
	require.Len(t, r.Failures, 1)
	assert.Equal(t, KindTooShort, r.Failures[0].Kind)
}

func TestCollectRetriesAtMostOnce(t *testing.T) {
	s := newSite()
	s.statuses["/down"] = []int{502, 502, 502}
	ts := httptest.NewServer(s)
	defer ts.Close()

	c := New(mapSearcher{"q": {ts.URL + "/down"}}, fetch.NewHTTP("test"), testConfig(), nil, nil)
	f := c.CollectOne(context.Background(), sqs("q")[0], nil)
	assert.Equal(t, research.FindingsEmpty, f.Status)
	assert.Equal(t, 2, s.hitCount("/down"))
	require.Len(t, f.Failures, 1)
	assert.Equal(t, 2, f.Failures[0].Attempts)
}

func TestCollectDedupesURLsAcrossSubQueries(t *testing.T) {
	s := newSite()
	s.pages["/shared"] = articleHTML("Shared", 100)
	s.pages["/mirror"] = articleHTML("Shared", 100)
	ts := httptest.NewServer(s)
	defer ts.Close()

	c := New(mapSearcher{
		"a": {ts.URL + "/shared"},
		"b": {ts.URL + "/shared/", ts.URL + "/mirror"},
	}, fetch.NewHTTP("test"), testConfig(), nil, nil)

	findings := c.Collect(context.Background(), sqs("a", "b"), nil)
	assert.Equal(t, 1, s.hitCount("/shared"))
	total := len(findings[0].Documents) + len(findings[1].Documents)
	assert.Equal(t, 1, total, "identical text from a mirror is dropped")
}

func TestCollectDuplicateGoesToEarliestSubQuery(t *testing.T) {
	s := newSite()
	s.pages["/original"] = articleHTML("Syndicated", 100)
	s.pages["/copy"] = articleHTML("Syndicated", 100)
	s.pages["/other"] = articleHTML("Other", 100)
	s.delay["/original"] = 80 * time.Millisecond
	ts := httptest.NewServer(s)
	defer ts.Close()

	cfg := testConfig()
	cfg.MaxConcurrent = 3
	c := New(mapSearcher{
		"a": {ts.URL + "/original", ts.URL + "/other"},
		"b": {ts.URL + "/copy"},
	}, fetch.NewHTTP("test"), cfg, nil, nil)

	findings := c.Collect(context.Background(), sqs("a", "b"), nil)
	require.Len(t, findings[0].Documents, 2, "the slower fetch still wins for the earlier sub-query")
	assert.True(t, strings.HasSuffix(findings[0].Documents[0].URL, "/other"), "documents stay in completion order")
	assert.True(t, strings.HasSuffix(findings[0].Documents[1].URL, "/original"))
	assert.Empty(t, findings[1].Documents)
	require.Len(t, findings[1].Failures, 1)
	assert.Equal(t, KindDuplicate, findings[1].Failures[0].Kind)
}

func TestCollectBoundsConcurrency(t *testing.T) {
	s := newSite()
	ts := httptest.NewServer(s)
	defer ts.Close()

	var urls []string
	for i := range 8 {
		path := fmt.Sprintf("/p%d", i)
		s.pages[path] = articleHTML(fmt.Sprintf("Page %d", i), 60+i)
		s.delay[path] = 30 * time.Millisecond
		urls = append(urls, ts.URL+path)
	}

	cfg := testConfig()
	cfg.MaxConcurrent = 3
	cfg.SourcesPerQuery = 4
	c := New(mapSearcher{"a": urls[:4], "b": urls[4:]}, fetch.NewHTTP("test"), cfg, nil, nil)

	findings := c.Collect(context.Background(), sqs("a", "b"), nil)
	assert.Len(t, findings[0].Documents, 4)
	assert.Len(t, findings[1].Documents, 4)
	assert.LessOrEqual(t, s.peak.Load(), int32(3))
}

func TestCollectSharesRateLimiter(t *testing.T) {
	s := newSite()
	for i := range 4 {
		s.pages[fmt.Sprintf("/r%d", i)] = articleHTML(fmt.Sprintf("Rate %d", i), 60+i)
	}
	ts := httptest.NewServer(s)
	defer ts.Close()

	c := New(mapSearcher{
		"a": {ts.URL + "/r0", ts.URL + "/r1"},
		"b": {ts.URL + "/r2", ts.URL + "/r3"},
	}, fetch.NewHTTP("test"), testConfig(), nil, nil)

	limiter := rate.NewLimiter(rate.Every(60*time.Millisecond), 1)
	start := time.Now()
	c.Collect(context.Background(), sqs("a", "b"), limiter)
	assert.GreaterOrEqual(t, time.Since(start), 170*time.Millisecond)
}

func TestCollectKeepsPartialResultsAtDeadline(t *testing.T) {
	s := newSite()
	s.pages["/fast"] = articleHTML("Fast", 80)
	s.pages["/slow"] = articleHTML("Slow", 80)
	s.delay["/slow"] = 5 * time.Second
	ts := httptest.NewServer(s)
	defer ts.Close()

	c := New(mapSearcher{"q": {ts.URL + "/fast", ts.URL + "/slow"}}, fetch.NewHTTP("test"), testConfig(), nil, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	start := time.Now()
	f := c.CollectOne(ctx, sqs("q")[0], nil)
	assert.Less(t, time.Since(start), 2*time.Second)
	require.Len(t, f.Documents, 1)
	assert.Equal(t, "Fast", f.Documents[0].Title)
	assert.Equal(t, research.FindingsPartial, f.Status)
}

func TestCollectSearchFailureIsContained(t *testing.T) {
	s := newSite()
	s.pages["/a"] = articleHTML("Alpha", 80)
	ts := httptest.NewServer(s)
	defer ts.Close()

	c := New(mapSearcher{"a": {ts.URL + "/a"}}, fetch.NewHTTP("test"), testConfig(), nil, nil)
	findings := c.Collect(context.Background(), sqs("a", "unknown"), nil)
	assert.Equal(t, research.FindingsComplete, findings[0].Status)
	assert.Equal(t, research.FindingsEmpty, findings[1].Status)
	require.Len(t, findings[1].Failures, 1)
	assert.Equal(t, KindSearch, findings[1].Failures[0].Kind)
}

func TestCollectCapsDocumentWords(t *testing.T) {
	s := newSite()
	s.pages["/long"] = articleHTML("Long", 3000)
	ts := httptest.NewServer(s)
	defer ts.Close()

	c := New(mapSearcher{"q": {ts.URL + "/long"}}, fetch.NewHTTP("test"), testConfig(), nil, nil)
	f := c.CollectOne(context.Background(), sqs("q")[0], nil)
	require.Len(t, f.Documents, 1)
	assert.Equal(t, 1000, f.Documents[0].WordCount)
	assert.Equal(t, 1000, research.CountWords(f.Documents[0].CleanedText))
}
