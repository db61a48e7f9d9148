package endpoints

import (
	"errors"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/cram/internal/api"
	"github.com/jackzampolin/cram/internal/store"
	"github.com/jackzampolin/cram/internal/svcctx"
)

// ForceStopResponse reports the outcome of a force-stop request.
type ForceStopResponse struct {
	CourseID           string `json:"course_id"`
	JobID              string `json:"job_id"`
	Status             string `json:"status"`
	QuestionsGenerated int    `json:"questions_generated"`
}

// ForceStopEndpoint handles POST /api/courses/{course_id}/force-stop.
type ForceStopEndpoint struct{}

var _ api.Endpoint = (*ForceStopEndpoint)(nil)

func (e *ForceStopEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/courses/{course_id}/force-stop", e.handler
}

func (e *ForceStopEndpoint) RequiresInit() bool { return true }

func (e *ForceStopEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	courseID := r.PathValue("course_id")
	if courseID == "" {
		writeError(w, http.StatusBadRequest, "course_id is required")
		return
	}

	orch := svcctx.OrchestratorFrom(r.Context())
	st := svcctx.StoreFrom(r.Context())
	if orch == nil || st == nil {
		writeError(w, http.StatusServiceUnavailable, "orchestrator not initialized")
		return
	}

	job, err := orch.ForceStop(r.Context(), courseID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no job for course")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	count, err := st.CountQuestions(r.Context(), courseID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, ForceStopResponse{
		CourseID:           courseID,
		JobID:              job.ID,
		Status:             job.Status,
		QuestionsGenerated: count,
	})
}

func (e *ForceStopEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "force-stop <course-id>",
		Short: "Stop a running generation, keeping finished artifacts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp ForceStopResponse
			if err := client.Post(cmd.Context(), "/api/courses/"+args[0]+"/force-stop", nil, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}
