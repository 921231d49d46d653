// Package pipeline runs one research query through every stage and, in
// HTTP mode, schedules runs on a small worker pool.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgallion1/reportgest/internal/collect"
	"github.com/dgallion1/reportgest/internal/decompose"
	"github.com/dgallion1/reportgest/internal/metrics"
	"github.com/dgallion1/reportgest/internal/quality"
	"github.com/dgallion1/reportgest/internal/render"
	"github.com/dgallion1/reportgest/internal/research"
	"github.com/dgallion1/reportgest/internal/synth"
	"golang.org/x/time/rate"
)

// Options bounds a run.
type Options struct {
	RunTimeout     time.Duration
	CollectTimeout time.Duration
	// FetchSpacing is the minimum gap between fetches within a run.
	FetchSpacing time.Duration
}

// Pipeline wires the stages together. It holds no per-run state, so one
// Pipeline can serve concurrent runs.
type Pipeline struct {
	Decomposer *decompose.Decomposer
	Collector  *collect.Collector
	Synth      *synth.Synthesizer
	Gate       *quality.Gate
	Renderer   *render.Renderer
	Metrics    *metrics.Metrics
	Log        *slog.Logger
	Opts       Options
}

// Result is a finished run.
type Result struct {
	PDF     []byte
	Content *research.ReportContent
	Run     *research.Run
	Actions []quality.Action
}

// StageFunc is told about every stage a run enters.
type StageFunc func(research.Stage)

// Run produces the report for query. Every error it returns is a
// *research.PipelineError naming the failed stage.
func (p *Pipeline) Run(ctx context.Context, query string) (*Result, error) {
	return p.RunObserved(ctx, query, nil)
}

// RunObserved is Run with a stage callback.
func (p *Pipeline) RunObserved(ctx context.Context, query string, onStage StageFunc) (*Result, error) {
	run := research.NewRun(query)
	log := p.logger().With("run_id", run.ID)

	if p.Opts.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Opts.RunTimeout)
		defer cancel()
	}

	enter := func(stage research.Stage) {
		run.Enter(stage)
		if onStage != nil {
			onStage(stage)
		}
		log.Debug("stage entered", "stage", stage)
	}
	fail := func(err error) error {
		stage := run.Current()
		if errors.Is(ctx.Err(), context.DeadlineExceeded) && !errors.Is(err, research.ErrTimeout) {
			err = fmt.Errorf("%w: %w", research.ErrTimeout, err)
		}
		enter(research.StageFailed)
		p.observe(run, "failed", stage)
		log.Error("run failed", "stage", stage, "error", err, "elapsed", time.Since(run.StartedAt))
		return &research.PipelineError{Stage: stage, Cause: err, Run: run}
	}
	// interrupted turns an expired run deadline into a failure at the
	// current stage, even when the stage itself degraded gracefully.
	interrupted := func() bool { return ctx.Err() != nil }

	log.Info("run started", "query", query)

	enter(research.StageDecomposing)
	sqs, err := p.Decomposer.Decompose(ctx, query)
	if err != nil {
		return nil, fail(err)
	}
	run.SubQueries = sqs
	log.Info("query decomposed", "sub_queries", len(sqs))

	enter(research.StageCollecting)
	findings := p.collect(ctx, sqs)
	run.Findings = findings
	if interrupted() {
		return nil, fail(ctx.Err())
	}
	if run.DocumentCount() == 0 {
		return nil, fail(fmt.Errorf("%w: every fetch for %d sub-queries failed", research.ErrNoSources, len(sqs)))
	}

	enter(research.StageSynthesizing)
	draft, err := p.Synth.Synthesize(ctx, findings, query)
	if err != nil {
		return nil, fail(err)
	}
	if interrupted() {
		return nil, fail(ctx.Err())
	}
	if len(draft.Sections) == 0 {
		return nil, fail(fmt.Errorf("%w: no sub-query produced a section", research.ErrSynthesisGap))
	}
	run.Draft = draft

	enter(research.StageQuality)
	content, actions := p.Gate.ImproveWithActions(ctx, draft)
	if interrupted() {
		return nil, fail(ctx.Err())
	}
	if len(content.Sections) == 0 {
		return nil, fail(fmt.Errorf("%w: no section is relevant to the query", research.ErrSynthesisGap))
	}
	run.Content = content

	enter(research.StageRendering)
	pdf, err := p.Renderer.Render(content)
	if err != nil {
		return nil, fail(err)
	}

	enter(research.StageDone)
	p.observe(run, "done", "")
	p.Metrics.ObserveReport(len(content.Sections), content.WordCount)
	log.Info("run complete",
		"sections", len(content.Sections),
		"words", content.WordCount,
		"documents", run.DocumentCount(),
		"bytes", len(pdf),
		"elapsed", time.Since(run.StartedAt))
	return &Result{PDF: pdf, Content: content, Run: run, Actions: actions}, nil
}

// collect runs the collector under its own deadline and a limiter owned by
// this run, so whatever it gathered in time is still usable.
func (p *Pipeline) collect(ctx context.Context, sqs []research.SubQuery) []research.Findings {
	if p.Opts.CollectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Opts.CollectTimeout)
		defer cancel()
	}
	limit := rate.Inf
	if p.Opts.FetchSpacing > 0 {
		limit = rate.Every(p.Opts.FetchSpacing)
	}
	return p.Collector.Collect(ctx, sqs, rate.NewLimiter(limit, 1))
}

func (p *Pipeline) observe(run *research.Run, status string, stage research.Stage) {
	p.Metrics.ObserveRun(status, string(stage))
	for st, d := range run.Timings() {
		p.Metrics.ObserveStage(string(st), d)
	}
}

func (p *Pipeline) logger() *slog.Logger {
	if p.Log == nil {
		return slog.Default()
	}
	return p.Log
}
