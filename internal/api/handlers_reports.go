package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/dgallion1/reportgest/internal/decompose"
	"github.com/dgallion1/reportgest/internal/pipeline"
	"github.com/go-chi/chi/v5"
)

// maxRequestBytes bounds a submit body; a query is at most a few hundred
// characters.
const maxRequestBytes = 16 << 10

type submitRequest struct {
	Query string `json:"query"`
}

func (s *Server) handleSubmitReport(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid json body: "+err.Error(), http.StatusBadRequest)
		return
	}
	query, err := decompose.ValidateQuery(req.Query)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	job := pipeline.NewJob(query)
	if err := s.jobs.Submit(job); err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, pipeline.ErrQueueFull) {
			code = http.StatusServiceUnavailable
			w.Header().Set("Retry-After", "30")
		}
		jsonError(w, err.Error(), code)
		return
	}

	s.log.Info("report job queued", "job_id", job.ID, "query", query)
	writeJSON(w, http.StatusAccepted, map[string]any{
		"job_id":   job.ID,
		"status":   pipeline.StatusQueued,
		"poll_url": fmt.Sprintf("/api/reports/%s/status", job.ID),
		"pdf_url":  fmt.Sprintf("/api/reports/%s/pdf", job.ID),
	})
}

func (s *Server) handleReportStatus(w http.ResponseWriter, r *http.Request) {
	job := s.jobs.GetJob(chi.URLParam(r, "jobID"))
	if job == nil {
		jsonError(w, "job not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, job.Snapshot())
}

// handleReportPDF serves the finished report. The SHA-256 of the PDF is the
// ETag, so clients polling with If-None-Match get 304 once they have it.
func (s *Server) handleReportPDF(w http.ResponseWriter, r *http.Request) {
	job := s.jobs.GetJob(chi.URLParam(r, "jobID"))
	if job == nil {
		jsonError(w, "job not found", http.StatusNotFound)
		return
	}
	pdf, hash := job.PDF()
	if pdf == nil {
		snap := job.Snapshot()
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":  "report is not ready",
			"status": snap.Status,
			"stage":  snap.Stage,
		})
		return
	}

	etag := `"` + hash + `"`
	w.Header().Set("ETag", etag)
	if match := r.Header.Get("If-None-Match"); match != "" && strings.Contains(match, etag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Length", strconv.Itoa(len(pdf)))
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="report-%s.pdf"`, job.ID))
	w.WriteHeader(http.StatusOK)
	w.Write(pdf)
}

func (s *Server) handleListReports(w http.ResponseWriter, r *http.Request) {
	status := pipeline.JobStatus(r.URL.Query().Get("status"))
	reports := []pipeline.JobSnapshot{}
	for _, snap := range s.jobs.ListJobs() {
		if status == "" || snap.Status == status {
			reports = append(reports, snap)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"reports": reports})
}

// handleDeleteReport forgets a job and its PDF.
func (s *Server) handleDeleteReport(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	if !s.jobs.DeleteJob(jobID) {
		jsonError(w, "job not found", http.StatusNotFound)
		return
	}
	s.log.Info("report job deleted", "job_id", jobID)
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, map[string]string{"error": msg})
}
