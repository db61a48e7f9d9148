package endpoints

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/cram/internal/api"
	"github.com/jackzampolin/cram/internal/store"
	"github.com/jackzampolin/cram/internal/svcctx"
)

// KindStatus is the generation status for one artifact kind.
type KindStatus struct {
	Kind           string  `json:"kind"`
	Status         string  `json:"status"`
	Progress       int     `json:"progress"`
	CurrentStep    string  `json:"current_step"`
	ErrorMessage   string  `json:"error_message,omitempty"`
	StartedAt      string  `json:"started_at,omitempty"`
	CompletedAt    string  `json:"completed_at,omitempty"`
	ElapsedSeconds int     `json:"elapsed_seconds"`
	SectionIndex   *int    `json:"section_index,omitempty"`
	TotalSections  *int    `json:"total_sections,omitempty"`
	PartialContent *string `json:"partial_content,omitempty"`
}

// StatusResponse is the response for the generation status endpoint.
type StatusResponse struct {
	CourseID string       `json:"course_id"`
	Job      *JobInfo     `json:"job,omitempty"`
	Kinds    []KindStatus `json:"kinds"`
}

// JobInfo summarizes the course's generation job.
type JobInfo struct {
	JobID        string `json:"job_id"`
	Status       string `json:"status"`
	Stage        string `json:"stage,omitempty"`
	Attempts     int    `json:"attempts"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// CourseStatusEndpoint handles GET /api/courses/{course_id}/status.
// The optional kind query parameter narrows the response to quiz or note.
type CourseStatusEndpoint struct{}

var _ api.Endpoint = (*CourseStatusEndpoint)(nil)

func (e *CourseStatusEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/courses/{course_id}/status", e.handler
}

func (e *CourseStatusEndpoint) RequiresInit() bool { return true }

func (e *CourseStatusEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	courseID := r.PathValue("course_id")
	if courseID == "" {
		writeError(w, http.StatusBadRequest, "course_id is required")
		return
	}

	st := svcctx.StoreFrom(r.Context())
	if st == nil {
		writeError(w, http.StatusServiceUnavailable, "store not initialized")
		return
	}

	kind := r.URL.Query().Get("kind")
	if kind != "" && kind != store.KindQuiz && kind != store.KindNote {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown kind %q, expected quiz or note", kind))
		return
	}

	var statuses []store.GenerationStatus
	if kind != "" {
		gs, err := st.GetGenerationStatus(r.Context(), courseID, kind)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				writeError(w, http.StatusNotFound, "no generation status for course")
				return
			}
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		statuses = []store.GenerationStatus{*gs}
	} else {
		var err error
		statuses, err = st.ListGenerationStatus(r.Context(), courseID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if len(statuses) == 0 {
			writeError(w, http.StatusNotFound, "no generation status for course")
			return
		}
	}

	resp := StatusResponse{CourseID: courseID}
	for i := range statuses {
		resp.Kinds = append(resp.Kinds, toKindStatus(&statuses[i]))
	}

	if job, err := st.GetJob(r.Context(), courseID); err == nil {
		resp.Job = &JobInfo{
			JobID:        job.ID,
			Status:       job.Status,
			Stage:        job.Stage,
			Attempts:     job.Attempts,
			ErrorMessage: job.ErrorMessage,
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func toKindStatus(gs *store.GenerationStatus) KindStatus {
	ks := KindStatus{
		Kind:           gs.Kind,
		Status:         gs.Status,
		Progress:       gs.Progress,
		CurrentStep:    gs.CurrentStep,
		ErrorMessage:   gs.ErrorMessage,
		SectionIndex:   gs.SectionIndex,
		TotalSections:  gs.TotalSections,
		PartialContent: gs.PartialContent,
	}
	if gs.StartedAt != nil {
		ks.StartedAt = gs.StartedAt.Format(time.RFC3339)
		end := time.Now()
		if gs.CompletedAt != nil {
			end = *gs.CompletedAt
			ks.CompletedAt = gs.CompletedAt.Format(time.RFC3339)
		}
		ks.ElapsedSeconds = int(end.Sub(*gs.StartedAt).Seconds())
	}
	return ks
}

func (e *CourseStatusEndpoint) Command(getServerURL func() string) *cobra.Command {
	var kind string
	cmd := &cobra.Command{
		Use:   "status <course-id>",
		Short: "Show generation status for a course",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			path := "/api/courses/" + args[0] + "/status"
			if kind != "" {
				path += "?kind=" + kind
			}
			var resp StatusResponse
			if err := client.Get(cmd.Context(), path, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "artifact kind (quiz or note)")
	return cmd
}
