package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultFile is read when no config path is given and it exists.
const DefaultFile = "reportgest.yaml"

type Config struct {
	// HTTP mode
	Port   string `yaml:"port"`
	APIKey string `yaml:"api_key"`

	// LLM provider: "anthropic" or "openai" (any OpenAI-compatible endpoint)
	LLMProvider     string `yaml:"llm_provider"`
	AnthropicAPIKey string `yaml:"anthropic_api_key"`
	AnthropicModel  string `yaml:"anthropic_model"`
	OpenAIAPIKey    string `yaml:"openai_api_key"`
	OpenAIBaseURL   string `yaml:"openai_base_url"`
	OpenAIModel     string `yaml:"openai_model"`

	// Optional Google Custom Search
	GoogleSearchAPIKey   string `yaml:"google_search_api_key"`
	GoogleSearchEngineID string `yaml:"google_search_engine_id"`

	// Timeouts
	CallTimeout    time.Duration `yaml:"call_timeout"`
	RunTimeout     time.Duration `yaml:"run_timeout"`
	CollectTimeout time.Duration `yaml:"collect_timeout"`

	// Collection
	UserAgent          string        `yaml:"user_agent"`
	MaxConcurrentFetch int           `yaml:"max_concurrent_fetch"`
	FetchSpacing       time.Duration `yaml:"fetch_spacing"`
	SourcesPerQuery    int           `yaml:"sources_per_query"`

	// Synthesis and quality
	ContextBudget int `yaml:"context_budget"`
	MinWords      int `yaml:"min_words"`
	MaxWords      int `yaml:"max_words"`

	OutputDir string `yaml:"output_dir"`

	// Worker pool
	WorkerCount  int           `yaml:"worker_count"`
	MaxQueueSize int           `yaml:"max_queue_size"`
	JobTTL       time.Duration `yaml:"job_ttl"`

	// PDF sources
	PDFFallbackPdftotext bool `yaml:"pdf_fallback_pdftotext"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Port:                 "8090",
		LLMProvider:          "anthropic",
		AnthropicModel:       "claude-sonnet-4-5-20250929",
		OpenAIBaseURL:        "https://api.groq.com/openai/v1/",
		OpenAIModel:          "llama-3.3-70b-versatile",
		CallTimeout:          20 * time.Second,
		RunTimeout:           3 * time.Minute,
		CollectTimeout:       60 * time.Second,
		UserAgent:            "reportgest/1.0 (+https://github.com/dgallion1/reportgest)",
		MaxConcurrentFetch:   4,
		FetchSpacing:         250 * time.Millisecond,
		SourcesPerQuery:      3,
		ContextBudget:        4000,
		MinWords:             300,
		MaxWords:             500,
		OutputDir:            ".",
		WorkerCount:          2,
		MaxQueueSize:         20,
		JobTTL:               1 * time.Hour,
		PDFFallbackPdftotext: true,
	}
}

// Load builds the configuration from defaults, then the YAML file at path
// (or $REPORTGEST_CONFIG, or ./reportgest.yaml when present), then the
// environment.
func Load(path string) (Config, error) {
	cfg := Defaults()

	explicit := path != ""
	if path == "" {
		path = os.Getenv("REPORTGEST_CONFIG")
		explicit = path != ""
	}
	if path == "" {
		path = DefaultFile
	}
	if err := cfg.loadFile(path); err != nil {
		if explicit || !errors.Is(err, os.ErrNotExist) {
			return cfg, err
		}
	}

	cfg.applyEnv()
	cfg.fillZeroes()
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil {
		return fmt.Errorf("config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Port = envOr("PORT", c.Port)
	c.APIKey = envOr("REPORTGEST_API_KEY", c.APIKey)

	c.LLMProvider = envOr("LLM_PROVIDER", c.LLMProvider)
	c.AnthropicAPIKey = envOr("ANTHROPIC_API_KEY", c.AnthropicAPIKey)
	c.AnthropicModel = envOr("ANTHROPIC_MODEL", c.AnthropicModel)
	c.OpenAIAPIKey = envOr("OPENAI_API_KEY", c.OpenAIAPIKey)
	c.OpenAIBaseURL = envOr("OPENAI_BASE_URL", c.OpenAIBaseURL)
	c.OpenAIModel = envOr("OPENAI_MODEL", c.OpenAIModel)

	c.GoogleSearchAPIKey = envOr("GOOGLE_SEARCH_API_KEY", c.GoogleSearchAPIKey)
	c.GoogleSearchEngineID = envOr("GOOGLE_SEARCH_ENGINE_ID", c.GoogleSearchEngineID)

	c.CallTimeout = envDuration("CALL_TIMEOUT", c.CallTimeout)
	c.RunTimeout = envDuration("RUN_TIMEOUT", c.RunTimeout)
	c.CollectTimeout = envDuration("COLLECT_TIMEOUT", c.CollectTimeout)

	c.UserAgent = envOr("USER_AGENT", c.UserAgent)
	c.MaxConcurrentFetch = envInt("MAX_CONCURRENT_FETCH", c.MaxConcurrentFetch)
	c.FetchSpacing = envDuration("FETCH_SPACING", c.FetchSpacing)
	c.SourcesPerQuery = envInt("SOURCES_PER_QUERY", c.SourcesPerQuery)

	c.ContextBudget = envInt("CONTEXT_BUDGET", c.ContextBudget)
	c.MinWords = envInt("MIN_WORDS", c.MinWords)
	c.MaxWords = envInt("MAX_WORDS", c.MaxWords)

	c.OutputDir = envOr("OUTPUT_DIR", c.OutputDir)

	c.WorkerCount = envInt("WORKER_COUNT", c.WorkerCount)
	c.MaxQueueSize = envInt("MAX_QUEUE_SIZE", c.MaxQueueSize)
	c.JobTTL = envDuration("JOB_TTL", c.JobTTL)

	c.PDFFallbackPdftotext = envBool("PDF_FALLBACK_PDFTOTEXT", c.PDFFallbackPdftotext)
}

// fillZeroes restores defaults for sizing knobs left at zero or below.
func (c *Config) fillZeroes() {
	def := Defaults()
	if c.WorkerCount <= 0 {
		c.WorkerCount = def.WorkerCount
	}
	if c.MaxQueueSize <= 0 {
		c.MaxQueueSize = def.MaxQueueSize
	}
	if c.JobTTL <= 0 {
		c.JobTTL = def.JobTTL
	}
	if c.OutputDir == "" {
		c.OutputDir = def.OutputDir
	}
	if c.UserAgent == "" {
		c.UserAgent = def.UserAgent
	}
}

// Validate checks that a report can be produced with this configuration.
func (c Config) Validate() error {
	var errs []error
	switch c.LLMProvider {
	case "anthropic":
		if c.AnthropicAPIKey == "" {
			errs = append(errs, fmt.Errorf("ANTHROPIC_API_KEY is required"))
		}
	case "openai":
		if c.OpenAIAPIKey == "" {
			errs = append(errs, fmt.Errorf("OPENAI_API_KEY is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("LLM_PROVIDER must be anthropic or openai, got %q", c.LLMProvider))
	}
	if (c.GoogleSearchAPIKey == "") != (c.GoogleSearchEngineID == "") {
		errs = append(errs, fmt.Errorf("GOOGLE_SEARCH_API_KEY and GOOGLE_SEARCH_ENGINE_ID must be set together"))
	}

	if c.CallTimeout <= 0 || c.RunTimeout <= 0 || c.CollectTimeout <= 0 {
		errs = append(errs, fmt.Errorf("timeouts must be positive"))
	} else if c.CollectTimeout > c.RunTimeout {
		errs = append(errs, fmt.Errorf("COLLECT_TIMEOUT (%s) exceeds RUN_TIMEOUT (%s)", c.CollectTimeout, c.RunTimeout))
	}
	if c.MaxConcurrentFetch < 1 || c.MaxConcurrentFetch > 32 {
		errs = append(errs, fmt.Errorf("MAX_CONCURRENT_FETCH must be between 1 and 32, got %d", c.MaxConcurrentFetch))
	}
	if c.FetchSpacing < 0 {
		errs = append(errs, fmt.Errorf("FETCH_SPACING must not be negative"))
	}
	if c.SourcesPerQuery < 1 || c.SourcesPerQuery > 10 {
		errs = append(errs, fmt.Errorf("SOURCES_PER_QUERY must be between 1 and 10, got %d", c.SourcesPerQuery))
	}
	if c.ContextBudget < 500 {
		errs = append(errs, fmt.Errorf("CONTEXT_BUDGET must be at least 500 characters, got %d", c.ContextBudget))
	}
	if c.MinWords <= 0 || c.MinWords >= c.MaxWords {
		errs = append(errs, fmt.Errorf("MIN_WORDS (%d) must be positive and below MAX_WORDS (%d)", c.MinWords, c.MaxWords))
	}
	return errors.Join(errs...)
}

// ValidateServe additionally checks the HTTP mode settings.
func (c Config) ValidateServe() error {
	err := c.Validate()
	if c.APIKey == "" {
		err = errors.Join(err, fmt.Errorf("REPORTGEST_API_KEY is required"))
	}
	return err
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
