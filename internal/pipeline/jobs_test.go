package pipeline

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/dgallion1/reportgest/internal/research"
)

func TestContentHashHex_Consistency(t *testing.T) {
	data := []byte("hello world")
	h1 := ContentHashHex(data)
	h2 := ContentHashHex(data)
	if h1 != h2 {
		t.Errorf("expected identical hashes, got %q and %q", h1, h2)
	}
	// SHA-256 of "hello world" is well-known.
	want := "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"
	if h1 != want {
		t.Errorf("expected hash %q, got %q", want, h1)
	}
}

func TestContentHashHex_EmptyInput(t *testing.T) {
	h := ContentHashHex([]byte{})
	want := "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	if h != want {
		t.Errorf("expected hash %q, got %q", want, h)
	}
}

func TestNewJob(t *testing.T) {
	job := NewJob("remote work")
	if job.ID == "" {
		t.Fatal("expected a job id")
	}
	if job.Status != StatusQueued {
		t.Errorf("expected status %q, got %q", StatusQueued, job.Status)
	}
	if other := NewJob("remote work"); other.ID == job.ID {
		t.Error("expected distinct job ids")
	}
}

func TestJob_StateTransitions(t *testing.T) {
	job := NewJob("q")

	transitions := []research.Stage{
		research.StageDecomposing,
		research.StageCollecting,
		research.StageSynthesizing,
		research.StageQuality,
		research.StageRendering,
	}

	for _, stage := range transitions {
		before := job.UpdatedAt
		// Small sleep to ensure time difference is detectable.
		time.Sleep(time.Millisecond)
		job.SetStatus(StatusRunning, stage)

		if job.Status != StatusRunning {
			t.Errorf("expected status %q, got %q", StatusRunning, job.Status)
		}
		if job.Stage != stage {
			t.Errorf("expected stage %q, got %q", stage, job.Stage)
		}
		if !job.UpdatedAt.After(before) {
			t.Errorf("expected UpdatedAt to advance after SetStatus(%q)", stage)
		}
	}
}

func TestJob_FailTakesStageFromPipelineError(t *testing.T) {
	job := NewJob("q")
	run := research.NewRun("q")
	run.Findings = []research.Findings{{Documents: make([]research.SourceDocument, 2)}}
	job.Fail(&research.PipelineError{Stage: research.StageSynthesizing, Cause: research.ErrSynthesisUnavailable, Run: run})

	snap := job.Snapshot()
	if snap.Status != StatusFailed {
		t.Errorf("expected status %q, got %q", StatusFailed, snap.Status)
	}
	if snap.Stage != research.StageSynthesizing {
		t.Errorf("expected stage %q, got %q", research.StageSynthesizing, snap.Stage)
	}
	if snap.Progress.Documents != 2 {
		t.Errorf("expected 2 documents, got %d", snap.Progress.Documents)
	}
	if len(snap.Progress.Errors) != 1 {
		t.Fatalf("expected 1 error, got %d", len(snap.Progress.Errors))
	}
}

func TestJob_FailPlainError(t *testing.T) {
	job := NewJob("q")
	job.SetStatus(StatusRunning, research.StageCollecting)
	job.Fail(errors.New("boom"))
	if job.Stage != research.StageCollecting {
		t.Errorf("expected stage to stay %q, got %q", research.StageCollecting, job.Stage)
	}
}

func TestJob_Complete(t *testing.T) {
	job := NewJob("q")
	run := research.NewRun("q")
	run.SubQueries = make([]research.SubQuery, 3)
	res := &Result{
		PDF: []byte("%PDF-1.4 test"),
		Run: run,
		Content: &research.ReportContent{
			Sections:  make([]research.ReportSection, 3),
			WordCount: 420,
			Gaps:      []string{"gap"},
		},
	}
	job.Complete(res)

	pdf, hash := job.PDF()
	if string(pdf) != "%PDF-1.4 test" {
		t.Errorf("unexpected pdf bytes %q", pdf)
	}
	if hash != ContentHashHex(pdf) {
		t.Errorf("expected hash of pdf, got %q", hash)
	}
	snap := job.Snapshot()
	if snap.Status != StatusCompleted || snap.Stage != research.StageDone {
		t.Errorf("unexpected state %q/%q", snap.Status, snap.Stage)
	}
	if snap.Progress.Sections != 3 || snap.Progress.Words != 420 || snap.Progress.SubQueries != 3 {
		t.Errorf("unexpected progress %+v", snap.Progress)
	}
}

func TestJob_AddError(t *testing.T) {
	job := NewJob("q")
	job.AddError("source 3 failed")
	job.AddError("source 7 failed")

	snap := job.Snapshot()
	if len(snap.Progress.Errors) != 2 {
		t.Fatalf("expected 2 errors, got %d", len(snap.Progress.Errors))
	}
	if snap.Progress.Errors[0] != "source 3 failed" {
		t.Errorf("expected first error %q, got %q", "source 3 failed", snap.Progress.Errors[0])
	}
}

func TestJob_SnapshotSlicesNotNil(t *testing.T) {
	// Snapshot should always return non-nil slices.
	snap := NewJob("q").Snapshot()
	if snap.Progress.Errors == nil || snap.Progress.Gaps == nil {
		t.Error("expected non-nil slices in snapshot")
	}
}

func TestJobStore_PutGet(t *testing.T) {
	store := NewJobStore(time.Hour)
	job := NewJob("q")
	store.Put(job)

	got := store.Get(job.ID)
	if got == nil {
		t.Fatal("expected to get job back")
	}
	if store.Get("nonexistent") != nil {
		t.Error("expected nil for missing job")
	}
}

func TestJobStore_TTLCleanup(t *testing.T) {
	store := NewJobStore(50 * time.Millisecond)

	expired := NewJob("old")
	store.Put(expired)

	// Wait for the TTL to pass.
	time.Sleep(100 * time.Millisecond)

	fresh := NewJob("new")
	store.Put(fresh)

	store.Cleanup()

	if store.Get(expired.ID) != nil {
		t.Error("expected expired job to be cleaned up")
	}
	if store.Get(fresh.ID) == nil {
		t.Error("expected fresh job to survive cleanup")
	}
	if store.Len() != 1 {
		t.Errorf("expected 1 job left, got %d", store.Len())
	}
}

func TestJobStore_CleanupEmpty(t *testing.T) {
	store := NewJobStore(time.Hour)
	// Should not panic on empty store.
	store.Cleanup()
}

func ExampleContentHashHex() {
	fmt.Println(ContentHashHex([]byte("hello world"))[:12])
	// Output: b94d27b9934d
}

func TestJobStore_ListAndDelete(t *testing.T) {
	store := NewJobStore(time.Hour)
	first := NewJob("first")
	time.Sleep(time.Millisecond)
	second := NewJob("second")
	store.Put(first)
	store.Put(second)

	list := store.List()
	if len(list) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(list))
	}
	if list[0].ID != second.ID {
		t.Errorf("expected newest job first, got %q", list[0].Query)
	}

	if !store.Delete(first.ID) {
		t.Error("expected delete to report an existing job")
	}
	if store.Delete(first.ID) {
		t.Error("expected second delete to report a missing job")
	}
	if store.Len() != 1 {
		t.Errorf("expected 1 job left, got %d", store.Len())
	}
}
