package research

import (
	"errors"
	"fmt"
)

// Error taxonomy. Leaf failures are converted to degraded results at the
// collector/synthesizer boundary; only these reach the caller of a run.
var (
	ErrInvalidQuery         = errors.New("invalid query")
	ErrProviderFailure      = errors.New("llm provider unavailable")
	ErrNoSources            = errors.New("no usable sources collected")
	ErrSynthesisGap         = errors.New("no usable content for sub-query")
	ErrSynthesisUnavailable = errors.New("synthesis unavailable")
	ErrRenderFailure        = errors.New("render failed")
	ErrTimeout              = errors.New("run timed out")
)

// Stage names a pipeline state.
type Stage string

const (
	StageDecomposing  Stage = "decomposing"
	StageCollecting   Stage = "collecting"
	StageSynthesizing Stage = "synthesizing"
	StageQuality      Stage = "quality_check"
	StageRendering    Stage = "rendering"
	StageDone         Stage = "done"
	StageFailed       Stage = "failed"
)

// PipelineError is the terminal Failed(stage, cause) state of a run.
type PipelineError struct {
	Stage Stage
	Cause error
	// Run is the state accumulated before the failure. May be nil.
	Run *Run
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Cause)
}

func (e *PipelineError) Unwrap() error {
	return e.Cause
}

// Timeout reports whether the run was aborted by its deadline.
func (e *PipelineError) Timeout() bool {
	return errors.Is(e.Cause, ErrTimeout)
}

// InvalidQueryf wraps ErrInvalidQuery with a reason.
func InvalidQueryf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidQuery, fmt.Sprintf(format, args...))
}
