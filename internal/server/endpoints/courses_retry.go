package endpoints

import (
	"errors"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/cram/internal/api"
	"github.com/jackzampolin/cram/internal/jobs"
	"github.com/jackzampolin/cram/internal/store"
	"github.com/jackzampolin/cram/internal/svcctx"
)

// RetryEndpoint handles POST /api/courses/{course_id}/retry.
type RetryEndpoint struct{}

var _ api.Endpoint = (*RetryEndpoint)(nil)

func (e *RetryEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/courses/{course_id}/retry", e.handler
}

func (e *RetryEndpoint) RequiresInit() bool { return true }

func (e *RetryEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	courseID := r.PathValue("course_id")
	if courseID == "" {
		writeError(w, http.StatusBadRequest, "course_id is required")
		return
	}

	orch := svcctx.OrchestratorFrom(r.Context())
	if orch == nil {
		writeError(w, http.StatusServiceUnavailable, "orchestrator not initialized")
		return
	}

	job, err := orch.Retry(r.Context(), courseID)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "no job for course")
		case errors.Is(err, jobs.ErrAlreadySucceeded), errors.Is(err, jobs.ErrStillRunning):
			writeError(w, http.StatusConflict, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusAccepted, GenerateResponse{
		JobID:    job.ID,
		CourseID: courseID,
		Status:   job.Status,
	})
}

func (e *RetryEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <course-id>",
		Short: "Restart a failed or stuck generation from scratch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp GenerateResponse
			if err := client.Post(cmd.Context(), "/api/courses/"+args[0]+"/retry", nil, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}
