package main

import (
	"context"
	"log/slog"

	"github.com/dgallion1/reportgest/internal/config"
	"github.com/dgallion1/reportgest/internal/llm"
	"github.com/dgallion1/reportgest/internal/search"
)

// newGateway returns the raw provider client for cfg and its cleanup.
func newGateway(cfg config.Config) (llm.Gateway, func()) {
	if cfg.LLMProvider == "openai" {
		return llm.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel), func() {}
	}
	c := llm.NewClaudeClient(cfg.AnthropicAPIKey, cfg.AnthropicModel)
	return c, c.Close
}

// newSearcher chains Google Custom Search (when configured), DuckDuckGo and
// the Wikipedia fallback.
func newSearcher(ctx context.Context, cfg config.Config, log *slog.Logger) search.Searcher {
	var searchers []search.Searcher
	if cfg.GoogleSearchAPIKey != "" {
		g, err := search.NewGoogle(ctx, cfg.GoogleSearchAPIKey, cfg.GoogleSearchEngineID)
		if err != nil {
			log.Warn("google search unavailable", "error", err)
		} else {
			searchers = append(searchers, g)
		}
	}
	searchers = append(searchers, search.NewDuckDuckGo(cfg.UserAgent), search.Wikipedia{})
	return search.NewChain(log, searchers...)
}
