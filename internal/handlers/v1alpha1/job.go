package v1alpha1

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"
	api "github.com/mist-hpc/mist/api/v1alpha1"
	"github.com/mist-hpc/mist/internal/auth"
	"github.com/mist-hpc/mist/internal/handlers/v1alpha1/mappers"
	"github.com/mist-hpc/mist/pkg/log"
)

func (h *ServiceHandler) SubmitJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := log.NewDebugLogger("job_handler").WithContext(ctx).Operation("submit_job").Build()

	user := auth.MustHaveUser(ctx)

	var form api.JobCreate
	if err := render.DecodeJSON(http.MaxBytesReader(w, r.Body, maxBodySize), &form); err != nil {
		badRequest(w, r, "invalid request body: %v", err)
		return
	}

	if err := h.validator.Struct(form); err != nil {
		respondServiceError(w, r, err, "validate job")
		return
	}

	job, err := h.jobSrv.SubmitJob(ctx, form.Payload, &user)
	if err != nil {
		logger.Error(err).Log()
		respondServiceError(w, r, err, "submit job")
		return
	}

	logger.Success().WithUUID("job_id", job.ID).Log()
	respond(w, r, http.StatusCreated, mappers.JobCreatedToApi(*job))
}

func (h *ServiceHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := jobID(w, r)
	if !ok {
		return
	}
	logger := log.NewDebugLogger("job_handler").WithContext(ctx).Operation("get_job").WithUUID("job_id", id).Build()

	user := auth.MustHaveUser(ctx)

	job, err := h.jobSrv.GetJob(ctx, id, &user)
	if err != nil {
		logger.Error(err).Log()
		respondServiceError(w, r, err, "get job")
		return
	}

	logger.Success().Log()
	respond(w, r, http.StatusOK, mappers.JobToApi(*job))
}

func (h *ServiceHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := log.NewDebugLogger("job_handler").WithContext(ctx).Operation("list_jobs").Build()

	user := auth.MustHaveUser(ctx)

	filter, err := mappers.JobFilterFromQuery(r.URL.Query())
	if err != nil {
		badRequest(w, r, "%v", err)
		return
	}

	jobs, err := h.jobSrv.ListJobs(ctx, filter, &user)
	if err != nil {
		logger.Error(err).Log()
		respondServiceError(w, r, err, "list jobs")
		return
	}

	logger.Success().WithInt("count", len(jobs)).Log()
	respond(w, r, http.StatusOK, mappers.JobListToApi(jobs))
}

func (h *ServiceHandler) CancelJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := jobID(w, r)
	if !ok {
		return
	}
	logger := log.NewDebugLogger("job_handler").WithContext(ctx).Operation("cancel_job").WithUUID("job_id", id).Build()

	user := auth.MustHaveUser(ctx)

	job, err := h.jobSrv.CancelJob(ctx, id, &user)
	if err != nil {
		logger.Error(err).Log()
		respondServiceError(w, r, err, "cancel job")
		return
	}

	logger.Success().Log()
	respond(w, r, http.StatusOK, mappers.JobToApi(*job))
}

func jobID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := chi.URLParam(r, "id")
	id, err := uuid.Parse(raw)
	if err != nil {
		badRequest(w, r, "invalid job id %q", raw)
		return uuid.Nil, false
	}
	return id, true
}
