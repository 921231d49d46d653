// Command reportgest researches a query on the web and writes a short PDF
// report. "reportgest serve" runs the same pipeline behind an HTTP API.
package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/dgallion1/reportgest/internal/config"
	"github.com/dgallion1/reportgest/internal/fetch"
	"github.com/dgallion1/reportgest/internal/llm"
	"github.com/dgallion1/reportgest/internal/pipeline"
	"github.com/dgallion1/reportgest/internal/research"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

const (
	exitOK       = 0
	exitFailed   = 1
	exitUsage    = 2
	maxSlugTerms = 6
)

// usageError marks bad arguments, input or configuration.
type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

func usagef(format string, args ...any) error {
	return usageError{fmt.Errorf(format, args...)}
}

type options struct {
	configPath  string
	outDir      string
	out         string
	timeout     time.Duration
	callTimeout time.Duration
	verbose     bool
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	root := newRootCmd(stdin, stdout, stderr)
	root.SetArgs(args)
	err := root.Execute()
	if err != nil {
		var pe *research.PipelineError
		if errors.As(err, &pe) {
			fmt.Fprintf(stderr, "reportgest: failed during %s: %v\n", pe.Stage, pe.Cause)
		} else {
			fmt.Fprintf(stderr, "reportgest: %v\n", err)
		}
	}
	return exitCode(err)
}

func exitCode(err error) int {
	var ue usageError
	switch {
	case err == nil:
		return exitOK
	case errors.As(err, &ue):
		return exitUsage
	default:
		return exitFailed
	}
}

func newRootCmd(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:   "reportgest [query]",
		Short: "Research a query on the web and write a PDF report",
		Long: `reportgest breaks a research query into sub-queries, collects web sources
for each, synthesizes report sections with an LLM and renders a 300-500
word PDF report. Without a query argument it prompts on a terminal or reads
the first line of stdin.`,
		Args:          cobra.ArbitraryArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReport(cmd, opts, args, stdin, stdout, stderr)
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return usageError{err}
	})

	f := root.PersistentFlags()
	f.StringVar(&opts.configPath, "config", "", "YAML config file (default $REPORTGEST_CONFIG or ./reportgest.yaml)")
	f.DurationVar(&opts.timeout, "timeout", 0, "overall run timeout (default from config)")
	f.DurationVar(&opts.callTimeout, "call-timeout", 0, "timeout for each LLM, search and fetch call")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging")
	root.Flags().StringVar(&opts.outDir, "out-dir", "", "directory for the generated PDF")
	root.Flags().StringVarP(&opts.out, "out", "o", "", "exact output file path")

	root.AddCommand(newServeCmd(opts, stdout))
	return root
}

// loadConfig reads configuration and applies flag overrides.
func loadConfig(opts *options) (config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return cfg, usageError{err}
	}
	if opts.timeout > 0 {
		cfg.RunTimeout = opts.timeout
		if cfg.CollectTimeout > cfg.RunTimeout {
			cfg.CollectTimeout = cfg.RunTimeout / 2
		}
	}
	if opts.callTimeout > 0 {
		cfg.CallTimeout = opts.callTimeout
	}
	if opts.outDir != "" {
		cfg.OutputDir = opts.outDir
	}
	return cfg, nil
}

func newLogger(w io.Writer, verbose bool, json bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	hopts := &slog.HandlerOptions{Level: level}
	if json {
		return slog.New(slog.NewJSONHandler(w, hopts))
	}
	return slog.New(slog.NewTextHandler(w, hopts))
}

func runReport(cmd *cobra.Command, opts *options, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return usageError{fmt.Errorf("invalid configuration: %w", err)}
	}
	log := newLogger(stderr, opts.verbose, false)

	query, err := readQuery(args, stdin, stderr)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	gw, closeGateway := newGateway(cfg)
	defer closeGateway()

	p := pipeline.New(cfg, pipeline.Deps{
		LLM:      gw,
		Searcher: newSearcher(ctx, cfg, log),
		Fetcher:  fetch.NewHTTP(cfg.UserAgent),
		Stats:    llm.NewLLMStats(time.Hour),
		Log:      log,
	})
	res, err := p.Run(ctx, query)
	if err != nil {
		return err
	}

	path := outputPath(opts.out, cfg.OutputDir, query, res.Run.StartedAt)
	if err := writeReport(path, res.PDF); err != nil {
		return err
	}
	if len(res.Content.Gaps) > 0 {
		log.Warn("report has coverage gaps", "gaps", len(res.Content.Gaps))
	}
	fmt.Fprintln(stdout, path)
	return nil
}

func writeReport(path string, pdf []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}
	if err := os.WriteFile(path, pdf, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

// outputPath is out when given, otherwise a file in dir named after the
// query's salient terms and the run start time.
func outputPath(out, dir, query string, at time.Time) string {
	if out != "" {
		return out
	}
	slug := strings.Join(lo.Slice(research.SalientTerms(query), 0, maxSlugTerms), "-")
	if slug == "" {
		slug = "report"
	}
	return filepath.Join(dir, fmt.Sprintf("report-%s-%s.pdf", slug, at.Format("20060102-150405")))
}
