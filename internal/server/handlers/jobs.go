package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/3leaps/gobeacon/pkg/jobtrack"
	"github.com/3leaps/gobeacon/pkg/remote"
)

// JobSource is the read surface the jobs endpoints need from the
// tracking engine.
type JobSource interface {
	Jobs() []jobtrack.Record
	Job(jobID string) (jobtrack.Record, bool)
	HasActiveJobs() bool
	CompletedCount() int
	FailedCount() int
	JobDuration(jobID string) string
}

// JobsHandler serves read-only views of the tracked job registry.
type JobsHandler struct {
	src JobSource
}

// NewJobsHandler creates a handler over the given source.
func NewJobsHandler(src JobSource) *JobsHandler {
	return &JobsHandler{src: src}
}

// jobListResponse is the body of GET /jobs.
type jobListResponse struct {
	Jobs      []jobtrack.Record `json:"jobs"`
	Active    bool              `json:"active"`
	Completed int               `json:"completed"`
	Failed    int               `json:"failed"`
}

// jobDetailResponse is the body of GET /jobs/{id}.
type jobDetailResponse struct {
	jobtrack.Record
	Duration string `json:"duration"`
}

// List serves GET /jobs.
func (h *JobsHandler) List(w http.ResponseWriter, r *http.Request) {
	jobs := h.src.Jobs()
	if jobs == nil {
		jobs = []jobtrack.Record{}
	}
	writeJSON(w, http.StatusOK, jobListResponse{
		Jobs:      jobs,
		Active:    h.src.HasActiveJobs(),
		Completed: h.src.CompletedCount(),
		Failed:    h.src.FailedCount(),
	})
}

// Get serves GET /jobs/{id}.
func (h *JobsHandler) Get(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")
	rec, ok := h.src.Job(jobID)
	if !ok {
		respondWithError(w, r, remote.ErrJobNotFound)
		return
	}
	writeJSON(w, http.StatusOK, jobDetailResponse{
		Record:   rec,
		Duration: h.src.JobDuration(jobID),
	})
}
