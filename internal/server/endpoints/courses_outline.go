package endpoints

import (
	"net/http"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/cram/internal/api"
	"github.com/jackzampolin/cram/internal/svcctx"
)

// OutlineSection is one node of a course outline.
type OutlineSection struct {
	ID        string `json:"id"`
	ParentID  string `json:"parent_id,omitempty"`
	Title     string `json:"title"`
	Level     string `json:"level"`
	StartPage int    `json:"start_page"`
	EndPage   int    `json:"end_page"`
	GenStatus string `json:"gen_status"`
}

// OutlineResponse is the detected structure of a course document.
type OutlineResponse struct {
	CourseID string           `json:"course_id"`
	Sections []OutlineSection `json:"sections"`
}

// OutlineEndpoint handles GET /api/courses/{course_id}/outline.
type OutlineEndpoint struct{}

var _ api.Endpoint = (*OutlineEndpoint)(nil)

func (e *OutlineEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/courses/{course_id}/outline", e.handler
}

func (e *OutlineEndpoint) RequiresInit() bool { return true }

func (e *OutlineEndpoint) handler(w http.ResponseWriter, r *http.Request) {
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

	sections, err := st.ListSections(r.Context(), courseID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := OutlineResponse{CourseID: courseID, Sections: []OutlineSection{}}
	for _, s := range sections {
		resp.Sections = append(resp.Sections, OutlineSection{
			ID:        s.ID,
			ParentID:  s.ParentID,
			Title:     s.Title,
			Level:     s.Level,
			StartPage: s.StartPage,
			EndPage:   s.EndPage,
			GenStatus: s.GenStatus,
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

func (e *OutlineEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "outline <course-id>",
		Short: "Show the detected section outline for a course",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp OutlineResponse
			if err := client.Get(cmd.Context(), "/api/courses/"+args[0]+"/outline", &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}
