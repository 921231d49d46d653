package pipeline

import (
	"cmp"
	"crypto/sha256"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/dgallion1/reportgest/internal/research"
	"github.com/google/uuid"
)

// JobStatus represents the state of a report job.
type JobStatus string

const (
	StatusQueued    JobStatus = "queued"
	StatusRunning   JobStatus = "running"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
)

// Job tracks one report request in HTTP mode.
type Job struct {
	mu sync.Mutex

	ID    string `json:"job_id"`
	Query string `json:"query"`

	Status JobStatus      `json:"status"`
	Stage  research.Stage `json:"stage"`

	Progress Progress `json:"progress"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Internal: not serialized.
	pdf     []byte
	pdfHash string
	errors  []string
}

// Progress summarizes what a run produced so far.
type Progress struct {
	SubQueries int      `json:"sub_queries"`
	Documents  int      `json:"documents"`
	Sections   int      `json:"sections"`
	Words      int      `json:"words"`
	Gaps       []string `json:"gaps"`
	Errors     []string `json:"errors"`
}

// NewJob creates a queued job for query.
func NewJob(query string) *Job {
	now := time.Now()
	return &Job{
		ID:        uuid.NewString(),
		Query:     query,
		Status:    StatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// JobStore is a thread-safe in-memory job registry with TTL eviction.
type JobStore struct {
	mu   sync.Mutex
	jobs map[string]*Job
	ttl  time.Duration
}

func NewJobStore(ttl time.Duration) *JobStore {
	return &JobStore{
		jobs: make(map[string]*Job),
		ttl:  ttl,
	}
}

func (s *JobStore) Put(job *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
}

func (s *JobStore) Get(id string) *Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[id]
}

// Delete removes a job. It reports whether the job existed.
func (s *JobStore) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.jobs[id]
	delete(s.jobs, id)
	return ok
}

// List returns snapshots of every job, newest first.
func (s *JobStore) List() []JobSnapshot {
	s.mu.Lock()
	jobs := make([]*Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		jobs = append(jobs, j)
	}
	s.mu.Unlock()

	out := make([]JobSnapshot, len(jobs))
	for i, j := range jobs {
		out[i] = j.Snapshot()
	}
	slices.SortFunc(out, func(a, b JobSnapshot) int {
		return cmp.Or(b.CreatedAt.Compare(a.CreatedAt), cmp.Compare(a.ID, b.ID))
	})
	return out
}

// Len returns the number of jobs held.
func (s *JobStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// Cleanup removes expired jobs, PDF bytes included.
func (s *JobStore) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for id, job := range s.jobs {
		if now.Sub(job.updated()) > s.ttl {
			delete(s.jobs, id)
		}
	}
}

func (j *Job) updated() time.Time {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.UpdatedAt
}

// SetStatus updates job status atomically.
func (j *Job) SetStatus(status JobStatus, stage research.Stage) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Status = status
	j.Stage = stage
	j.UpdatedAt = time.Now()
}

// AddError records an error.
func (j *Job) AddError(err string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.errors = append(j.errors, err)
	j.Progress.Errors = j.errors
	j.UpdatedAt = time.Now()
}

// Complete stores a finished run.
func (j *Job) Complete(res *Result) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.pdf = res.PDF
	j.pdfHash = ContentHashHex(res.PDF)
	j.Progress.SubQueries = len(res.Run.SubQueries)
	j.Progress.Documents = res.Run.DocumentCount()
	j.Progress.Sections = len(res.Content.Sections)
	j.Progress.Words = res.Content.WordCount
	j.Progress.Gaps = res.Content.Gaps
	j.Status = StatusCompleted
	j.Stage = research.StageDone
	j.UpdatedAt = time.Now()
}

// Fail records a failed run. The stage comes from the pipeline error when
// there is one.
func (j *Job) Fail(err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	var pe *research.PipelineError
	if errors.As(err, &pe) {
		j.Stage = pe.Stage
		if pe.Run != nil {
			j.Progress.SubQueries = len(pe.Run.SubQueries)
			j.Progress.Documents = pe.Run.DocumentCount()
		}
	}
	j.errors = append(j.errors, err.Error())
	j.Progress.Errors = j.errors
	j.Status = StatusFailed
	j.UpdatedAt = time.Now()
}

// PDF returns the rendered report and its SHA-256, or nil before completion.
func (j *Job) PDF() ([]byte, string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.pdf, j.pdfHash
}

// JobSnapshot is a read-only, JSON-safe copy of job state.
type JobSnapshot struct {
	ID        string         `json:"job_id"`
	Query     string         `json:"query"`
	Status    JobStatus      `json:"status"`
	Stage     research.Stage `json:"stage,omitempty"`
	Progress  Progress       `json:"progress"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Snapshot returns a JSON-safe copy of the job state.
func (j *Job) Snapshot() JobSnapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	p := j.Progress
	p.Errors = append([]string{}, j.Progress.Errors...)
	p.Gaps = append([]string{}, j.Progress.Gaps...)
	return JobSnapshot{
		ID:        j.ID,
		Query:     j.Query,
		Status:    j.Status,
		Stage:     j.Stage,
		Progress:  p,
		CreatedAt: j.CreatedAt,
		UpdatedAt: j.UpdatedAt,
	}
}

// ContentHashHex computes SHA-256 of content and returns hex string.
func ContentHashHex(data []byte) string {
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h[:])
}
