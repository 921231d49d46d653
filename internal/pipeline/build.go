package pipeline

import (
	"log/slog"

	"github.com/dgallion1/reportgest/internal/collect"
	"github.com/dgallion1/reportgest/internal/config"
	"github.com/dgallion1/reportgest/internal/decompose"
	"github.com/dgallion1/reportgest/internal/fetch"
	"github.com/dgallion1/reportgest/internal/llm"
	"github.com/dgallion1/reportgest/internal/metrics"
	"github.com/dgallion1/reportgest/internal/quality"
	"github.com/dgallion1/reportgest/internal/render"
	"github.com/dgallion1/reportgest/internal/search"
	"github.com/dgallion1/reportgest/internal/synth"
)

// Deps are the leaf collaborators a pipeline is built from.
type Deps struct {
	// LLM is the raw provider client; New adds retries and timeouts.
	LLM      llm.Gateway
	Searcher search.Searcher
	Fetcher  fetch.Fetcher
	Stats    *llm.LLMStats
	Metrics  *metrics.Metrics
	Log      *slog.Logger
	Render   render.Options
}

// New builds a Pipeline from configuration.
func New(cfg config.Config, d Deps) *Pipeline {
	log := d.Log
	if log == nil {
		log = slog.Default()
	}
	gw := &llm.Retrying{
		Gateway: d.LLM,
		Options: llm.RetryOptions{
			CallTimeout: cfg.CallTimeout,
			Stats:       d.Stats,
			OnAttempt:   func(o llm.Outcome) { d.Metrics.ObserveLLM(string(o)) },
			Log:         log,
		},
	}

	ccfg := collect.DefaultConfig()
	ccfg.SourcesPerQuery = cfg.SourcesPerQuery
	ccfg.MaxConcurrent = cfg.MaxConcurrentFetch
	ccfg.CallTimeout = cfg.CallTimeout
	ccfg.PDFFallback = cfg.PDFFallbackPdftotext

	synthesizer := synth.New(gw, cfg.ContextBudget, log.With("stage", "synthesizing"))
	gate := quality.New(gw, synthesizer, cfg.ContextBudget, log.With("stage", "quality_check"))
	gate.MinWords, gate.MaxWords = cfg.MinWords, cfg.MaxWords

	ropts := d.Render
	if ropts.PageSize == "" {
		ropts = render.DefaultOptions()
	}

	return &Pipeline{
		Decomposer: decompose.New(gw, log.With("stage", "decomposing")),
		Collector:  collect.New(d.Searcher, d.Fetcher, ccfg, log.With("stage", "collecting"), d.Metrics),
		Synth:      synthesizer,
		Gate:       gate,
		Renderer:   render.New(ropts),
		Metrics:    d.Metrics,
		Log:        log,
		Opts: Options{
			RunTimeout:     cfg.RunTimeout,
			CollectTimeout: cfg.CollectTimeout,
			FetchSpacing:   cfg.FetchSpacing,
		},
	}
}
