package pipeline

import (
	"context"
	"log/slog"

	"github.com/dgallion1/reportgest/internal/research"
)

// Runner executes one report run.
type Runner interface {
	RunObserved(ctx context.Context, query string, onStage StageFunc) (*Result, error)
}

// Worker processes report jobs one at a time.
type Worker struct {
	runner Runner
	log    *slog.Logger
}

func NewWorker(runner Runner, log *slog.Logger) *Worker {
	return &Worker{runner: runner, log: log}
}

// Process runs the pipeline for a job and records the outcome on it.
func (w *Worker) Process(ctx context.Context, job *Job) {
	log := w.log.With("job_id", job.ID)
	job.SetStatus(StatusRunning, research.StageDecomposing)

	res, err := w.runner.RunObserved(ctx, job.Query, func(stage research.Stage) {
		if stage != research.StageDone && stage != research.StageFailed {
			job.SetStatus(StatusRunning, stage)
		}
	})
	if err != nil {
		log.Error("report job failed", "error", err)
		job.Fail(err)
		return
	}
	job.Complete(res)
	log.Info("report job completed", "bytes", len(res.PDF), "sections", len(res.Content.Sections))
}
