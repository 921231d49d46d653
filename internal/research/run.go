package research

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Run owns every entity produced while answering one query. Nothing in it
// outlives the run.
type Run struct {
	mu sync.Mutex

	ID        string
	Query     string
	Stage     Stage
	StartedAt time.Time
	EndedAt   time.Time

	SubQueries []SubQuery
	Findings   []Findings
	Draft      *ReportContent
	Content    *ReportContent

	timings map[Stage]time.Duration
	entered time.Time
}

// NewRun starts a run for query.
func NewRun(query string) *Run {
	now := time.Now()
	return &Run{
		ID:        uuid.NewString(),
		Query:     query,
		Stage:     StageDecomposing,
		StartedAt: now,
		timings:   make(map[Stage]time.Duration),
		entered:   now,
	}
}

// Enter moves the run to stage and records how long the previous stage took.
func (r *Run) Enter(stage Stage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	r.timings[r.Stage] += now.Sub(r.entered)
	r.Stage = stage
	r.entered = now
	if stage == StageDone || stage == StageFailed {
		r.EndedAt = now
	}
}

// Current returns the stage the run is in.
func (r *Run) Current() Stage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Stage
}

// Timings returns a copy of per-stage durations.
func (r *Run) Timings() map[Stage]time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[Stage]time.Duration, len(r.timings))
	for k, v := range r.timings {
		out[k] = v
	}
	return out
}

// DocumentCount is the number of source documents across all findings.
func (r *Run) DocumentCount() int {
	n := 0
	for _, f := range r.Findings {
		n += len(f.Documents)
	}
	return n
}
