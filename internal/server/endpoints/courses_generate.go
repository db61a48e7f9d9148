package endpoints

import (
	"errors"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/cram/internal/api"
	"github.com/jackzampolin/cram/internal/store"
	"github.com/jackzampolin/cram/internal/svcctx"
)

// GenerateResponse is returned when a generation job is scheduled.
type GenerateResponse struct {
	JobID    string `json:"job_id"`
	CourseID string `json:"course_id"`
	Status   string `json:"status"`
}

// GenerateEndpoint handles POST /api/courses/{course_id}/generate.
type GenerateEndpoint struct{}

var _ api.Endpoint = (*GenerateEndpoint)(nil)

func (e *GenerateEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/courses/{course_id}/generate", e.handler
}

func (e *GenerateEndpoint) RequiresInit() bool { return true }

func (e *GenerateEndpoint) handler(w http.ResponseWriter, r *http.Request) {
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

	job, err := orch.Trigger(r.Context(), courseID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "course not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, GenerateResponse{
		JobID:    job.ID,
		CourseID: courseID,
		Status:   job.Status,
	})
}

func (e *GenerateEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "generate <course-id>",
		Short: "Start artifact generation for a course",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp GenerateResponse
			if err := client.Post(cmd.Context(), "/api/courses/"+args[0]+"/generate", nil, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}
