package api

import (
	"context"
	"encoding/json"
	"errors"
	"mime"
	"net/http"

	"github.com/okian/pointsledger/internal/adapters/csvinput"
	"github.com/okian/pointsledger/internal/domain/job"
	"github.com/okian/pointsledger/internal/domain/model"
	"github.com/okian/pointsledger/internal/domain/types"
)

const maxUploadBytes = 10 << 20

// uploadRequest mirrors the OpenAPI schema for a JSON POST /jobs.
type uploadRequest struct {
	Source       string             `json:"source"`
	Participants []model.Descriptor `json:"participants"`
}

// runResponse is returned when a job is run to completion in one request.
type runResponse struct {
	Job    types.JobView `json:"job"`
	Report *job.Report   `json:"report"`
}

// JobsHandler handles upload jobs.
type JobsHandler struct {
	deps Dependencies
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(deps Dependencies) *JobsHandler {
	return &JobsHandler{deps: deps}
}

// HandleCreate handles POST /jobs with a JSON or text/csv body.
func (h *JobsHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	const op = "api.create_job"
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	source := r.URL.Query().Get("source")
	var ds []model.Descriptor

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "text/csv":
		parsed, err := csvinput.Parse(r.Body)
		if err != nil {
			fail(w, Wrap(op, err))
			return
		}
		ds = parsed
		if source == "" {
			source = "upload.csv"
		}
	case "", "application/json":
		var req uploadRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			fail(w, WrapKind(op, ErrBadRequest, err))
			return
		}
		ds = req.Participants
		if source == "" {
			source = req.Source
		}
		if source == "" {
			source = "upload.json"
		}
	default:
		writeError(w, http.StatusUnsupportedMediaType, "unsupported_media_type", nil)
		return
	}

	j, err := h.deps.StartUpload(r.Context(), accountOf(r), source, ds)
	if err != nil {
		fail(w, Wrap(op, err))
		return
	}
	w.Header().Set("Location", "/jobs/"+j.ID)
	respondStarted(w, r, h.deps, op, j)
}

// respondStarted answers a freshly created job, running it first when asked.
func respondStarted(w http.ResponseWriter, r *http.Request, deps Dependencies, op string, j *job.Job) {
	if !wantsRun(r) {
		writeJSON(w, http.StatusCreated, types.NewJobView(j, nil))
		return
	}
	report, err := deps.Run(r.Context(), j.ID)
	if err != nil {
		fail(w, Wrap(op, err))
		return
	}
	view, err := deps.JobView(r.Context(), j.ID)
	if err != nil {
		fail(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, runResponse{Job: view, Report: report})
}

// owned loads the job and hides jobs of other accounts.
func owned(ctx context.Context, deps Dependencies, r *http.Request, id string) error {
	j, err := deps.Job(ctx, id)
	if err != nil {
		return err
	}
	if j.Account != accountOf(r) {
		return ErrNotFound
	}
	return nil
}

// HandleGet handles GET /jobs/{id}.
func (h *JobsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_job"
	id := r.PathValue("id")
	if err := owned(r.Context(), h.deps, r, id); err != nil {
		fail(w, Wrap(op, err))
		return
	}
	view, err := h.deps.JobView(r.Context(), id)
	if err != nil {
		fail(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// HandleNext handles POST /jobs/{id}/next.
func (h *JobsHandler) HandleNext(w http.ResponseWriter, r *http.Request) {
	const op = "api.next_batch"
	id := r.PathValue("id")
	if err := owned(r.Context(), h.deps, r, id); err != nil {
		fail(w, Wrap(op, err))
		return
	}
	j, err := h.deps.ProcessNextBatch(r.Context(), id)
	if err != nil {
		if errors.Is(err, job.ErrNoPendingBatch) {
			writeError(w, http.StatusConflict, "no_pending_batch", WrapKind(op, ErrConflict, err))
			return
		}
		fail(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, types.NewJobView(j, nil))
}

// HandleFinalize handles POST /jobs/{id}/finalize.
func (h *JobsHandler) HandleFinalize(w http.ResponseWriter, r *http.Request) {
	const op = "api.finalize_job"
	id := r.PathValue("id")
	if err := owned(r.Context(), h.deps, r, id); err != nil {
		fail(w, Wrap(op, err))
		return
	}
	report, err := h.deps.Finalize(r.Context(), id)
	if err != nil {
		fail(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, report)
}
