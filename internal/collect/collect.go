// Package collect gathers cleaned source documents for each sub-query.
package collect

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dgallion1/reportgest/internal/chunker"
	"github.com/dgallion1/reportgest/internal/fetch"
	"github.com/dgallion1/reportgest/internal/metrics"
	"github.com/dgallion1/reportgest/internal/parser"
	"github.com/dgallion1/reportgest/internal/research"
	"github.com/dgallion1/reportgest/internal/search"
	"golang.org/x/time/rate"
)

// Failure kinds recorded on research.FetchFailure in addition to the
// fetch.Kind values.
const (
	KindSearch      = "search_error"
	KindUnsupported = "unsupported_content"
	KindClean       = "cleaning_failed"
	KindTooShort    = "too_short"
	KindDuplicate   = "duplicate_content"
	KindCancelled   = "cancelled"
)

// Config bounds collection.
type Config struct {
	SourcesPerQuery int
	MaxConcurrent   int
	// CallTimeout bounds each search and each fetch attempt.
	CallTimeout time.Duration
	MinWords    int
	MaxWords    int
	// RetryDelay is the wait before the single retry of a failed fetch.
	RetryDelay time.Duration
	// PDFFallback lets PDF sources fall back to the pdftotext binary.
	PDFFallback bool
}

func DefaultConfig() Config {
	return Config{
		SourcesPerQuery: 3,
		MaxConcurrent:   4,
		CallTimeout:     20 * time.Second,
		MinWords:        40,
		MaxWords:        1000,
		RetryDelay:      time.Second,
	}
}

// Collector searches for and fetches sources. It never fails outright:
// every problem is recorded on the affected Findings.
type Collector struct {
	Search  search.Searcher
	Fetch   fetch.Fetcher
	Cfg     Config
	Log     *slog.Logger
	Metrics *metrics.Metrics
}

func New(s search.Searcher, f fetch.Fetcher, cfg Config, log *slog.Logger, m *metrics.Metrics) *Collector {
	if log == nil {
		log = slog.Default()
	}
	return &Collector{Search: s, Fetch: f, Cfg: cfg, Log: log, Metrics: m}
}

type task struct {
	idx   int
	sq    int
	url   string
	title string
}

type outcome struct {
	idx     int
	sq      int
	doc     *research.SourceDocument
	failure *research.FetchFailure
}

// Collect returns one Findings per sub-query, in sub-query order. All fetches
// share one pool of Cfg.MaxConcurrent workers and limiter. When ctx ends,
// documents already fetched are kept and the findings are tagged partial.
func (c *Collector) Collect(ctx context.Context, sqs []research.SubQuery, limiter *rate.Limiter) []research.Findings {
	cfg := c.config()
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 1)
	}

	findings := make([]research.Findings, len(sqs))
	attempted := make([]int, len(sqs))
	seenURL := make(map[string]bool)
	var tasks []task

	for i, sq := range sqs {
		findings[i].SubQuery = sq
		results, err := c.search(ctx, sq.Text, cfg)
		if err != nil {
			c.Log.Warn("search failed", "sub_query", sq.Text, "error", err)
			findings[i].Failures = append(findings[i].Failures, research.FetchFailure{Kind: KindSearch, Err: err})
			continue
		}
		for _, r := range results {
			key, err := search.NormalizeURL(r.URL)
			if err != nil || seenURL[key] {
				continue
			}
			seenURL[key] = true
			tasks = append(tasks, task{idx: len(tasks), sq: i, url: r.URL, title: r.Title})
			attempted[i]++
		}
	}

	results := make(chan outcome, len(tasks))
	sem := make(chan struct{}, cfg.MaxConcurrent)
	started := 0
	for _, t := range tasks {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}
		started++
		go func(t task) {
			defer func() { <-sem }()
			results <- c.fetchOne(ctx, t, limiter, cfg)
		}(t)
	}

	done := make([]outcome, started)
	var arrival []int
	for range started {
		r := <-results
		done[r.idx] = r
		arrival = append(arrival, r.idx)
	}
	// Syndicated copies are resolved in task order, so the first sub-query
	// to list the text keeps it however the fetches raced. Kept documents
	// are then added in completion order.
	seenHash := make(map[string]bool)
	for i, r := range done {
		if r.doc == nil {
			continue
		}
		h := contentHash(r.doc.CleanedText)
		if seenHash[h] {
			done[i].failure = &research.FetchFailure{URL: r.doc.URL, Kind: KindDuplicate, Attempts: 1}
			done[i].doc = nil
			continue
		}
		seenHash[h] = true
	}
	for _, idx := range arrival {
		r := done[idx]
		f := &findings[r.sq]
		if r.failure != nil {
			f.Failures = append(f.Failures, *r.failure)
			continue
		}
		f.Documents = append(f.Documents, *r.doc)
	}

	interrupted := ctx.Err() != nil
	for _, t := range tasks[started:] {
		findings[t.sq].Failures = append(findings[t.sq].Failures,
			research.FetchFailure{URL: t.url, Kind: KindCancelled, Err: ctx.Err()})
	}
	for i := range findings {
		findings[i].Classify(attempted[i], interrupted)
		c.Log.Info("sub-query collected",
			"sub_query", findings[i].SubQuery.Text,
			"documents", len(findings[i].Documents),
			"failures", len(findings[i].Failures),
			"status", findings[i].Status)
	}
	return findings
}

// CollectOne collects a single sub-query with its own limiter.
func (c *Collector) CollectOne(ctx context.Context, sq research.SubQuery, limiter *rate.Limiter) research.Findings {
	return c.Collect(ctx, []research.SubQuery{sq}, limiter)[0]
}

func (c *Collector) config() Config {
	cfg := c.Cfg
	def := DefaultConfig()
	if cfg.SourcesPerQuery <= 0 {
		cfg.SourcesPerQuery = def.SourcesPerQuery
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = def.MaxConcurrent
	}
	if cfg.MinWords <= 0 {
		cfg.MinWords = def.MinWords
	}
	if cfg.MaxWords <= 0 {
		cfg.MaxWords = def.MaxWords
	}
	return cfg
}

func (c *Collector) search(ctx context.Context, q string, cfg Config) ([]search.Result, error) {
	if cfg.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.CallTimeout)
		defer cancel()
	}
	return c.Search.Search(ctx, q, cfg.SourcesPerQuery)
}

// fetchOne fetches and cleans t.url, retrying a transient failure once.
func (c *Collector) fetchOne(ctx context.Context, t task, limiter *rate.Limiter, cfg Config) outcome {
	log := c.Log.With("url", t.url)
	var lastErr error
	tried := 0
	for attempt := 1; attempt <= 2; attempt++ {
		if err := limiter.Wait(ctx); err != nil {
			// Wait refuses early when the deadline would pass first.
			if ctx.Err() == nil {
				err = fmt.Errorf("%w: %v", context.DeadlineExceeded, err)
			} else {
				err = ctx.Err()
			}
			return c.failed(t, max(tried, 1), err)
		}
		tried = attempt
		page, err := c.fetchAttempt(ctx, t.url, cfg)
		if err == nil {
			doc, ferr := c.clean(page, t, cfg)
			if ferr != nil {
				ferr.Attempts = attempt
				c.Metrics.ObserveFetch(ferr.Kind)
				log.Warn("source rejected", "kind", ferr.Kind, "error", ferr.Err)
				return outcome{idx: t.idx, sq: t.sq, failure: ferr}
			}
			if attempt > 1 {
				doc.Status = research.DocRetried
			}
			c.Metrics.ObserveFetch("ok")
			return outcome{idx: t.idx, sq: t.sq, doc: doc}
		}

		lastErr = err
		c.Metrics.ObserveFetch(failureKind(err))
		var fe *fetch.Error
		if ctx.Err() != nil || (errors.As(err, &fe) && !fe.Retryable()) || attempt == 2 {
			break
		}
		log.Warn("fetch failed, retrying once", "error", err)
		select {
		case <-time.After(cfg.RetryDelay):
		case <-ctx.Done():
			return c.failed(t, attempt, ctx.Err())
		}
	}
	return c.failed(t, tried, lastErr)
}

func (c *Collector) fetchAttempt(ctx context.Context, url string, cfg Config) (*fetch.Page, error) {
	if cfg.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.CallTimeout)
		defer cancel()
	}
	return c.Fetch.Fetch(ctx, url)
}

func (c *Collector) failed(t task, attempts int, err error) outcome {
	f := &research.FetchFailure{URL: t.url, Kind: failureKind(err), Attempts: attempts, Err: err}
	var fe *fetch.Error
	if errors.As(err, &fe) {
		f.StatusCode = fe.Status
	}
	c.Log.Warn("source skipped", "url", t.url, "kind", f.Kind, "attempts", attempts, "error", err)
	return outcome{idx: t.idx, sq: t.sq, failure: f}
}

// clean parses the page by content type and caps it to MaxWords.
func (c *Collector) clean(page *fetch.Page, t task, cfg Config) (*research.SourceDocument, *research.FetchFailure) {
	p, err := parser.ForContentType(page.ContentType)
	if err != nil {
		return nil, &research.FetchFailure{URL: t.url, Kind: KindUnsupported, Err: err}
	}
	if pp, ok := p.(*parser.PDFParser); ok {
		pp.FallbackPdftotext = cfg.PDFFallback
	}
	tree, err := p.Parse(bytes.NewReader(page.Body), t.url)
	if err != nil {
		return nil, &research.FetchFailure{URL: t.url, Kind: KindClean, Err: err}
	}

	text := tree.PlainText()
	words := research.CountWords(text)
	if words < cfg.MinWords {
		return nil, &research.FetchFailure{URL: t.url, Kind: KindTooShort,
			Err: fmt.Errorf("%d words after cleaning, need %d", words, cfg.MinWords)}
	}
	if words > cfg.MaxWords {
		text = chunker.TruncateWords(text, cfg.MaxWords)
		words = cfg.MaxWords
	}

	title := strings.TrimSpace(tree.Title)
	if title == "" {
		title = t.title
	}
	return &research.SourceDocument{
		URL:         t.url,
		Title:       title,
		ContentType: page.ContentType,
		RawText:     string(page.Body),
		CleanedText: text,
		WordCount:   words,
		Status:      research.DocFetched,
		FetchedAt:   time.Now(),
	}, nil
}

func failureKind(err error) string {
	var fe *fetch.Error
	switch {
	case errors.As(err, &fe):
		return string(fe.Kind)
	case errors.Is(err, context.DeadlineExceeded):
		return string(fetch.KindTimeout)
	case errors.Is(err, context.Canceled):
		return KindCancelled
	}
	return string(fetch.KindNetwork)
}

// contentHash identifies syndicated copies of the same text.
func contentHash(text string) string {
	h := sha256.Sum256([]byte(strings.Join(strings.Fields(strings.ToLower(text)), " ")))
	return hex.EncodeToString(h[:])
}
