package endpoints

import (
	"net/http"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/cram/internal/api"
	"github.com/jackzampolin/cram/internal/store"
	"github.com/jackzampolin/cram/internal/svcctx"
)

// ArtifactsResponse carries the generated study artifacts for a course.
type ArtifactsResponse struct {
	CourseID   string            `json:"course_id"`
	Questions  []store.Question  `json:"questions,omitempty"`
	Flashcards []store.Flashcard `json:"flashcards,omitempty"`
	Note       string            `json:"note,omitempty"`
}

// ArtifactsEndpoint handles GET /api/courses/{course_id}/artifacts.
// The optional kind query parameter narrows the response to quiz or note.
type ArtifactsEndpoint struct{}

var _ api.Endpoint = (*ArtifactsEndpoint)(nil)

func (e *ArtifactsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/courses/{course_id}/artifacts", e.handler
}

func (e *ArtifactsEndpoint) RequiresInit() bool { return true }

func (e *ArtifactsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
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
	resp := ArtifactsResponse{CourseID: courseID}

	if kind == "" || kind == store.KindQuiz {
		questions, err := st.ListQuestions(r.Context(), courseID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		flashcards, err := st.ListFlashcards(r.Context(), courseID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		resp.Questions = questions
		resp.Flashcards = flashcards
	}

	if kind == "" || kind == store.KindNote {
		note, err := st.AssembleNote(r.Context(), courseID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		resp.Note = note
	}

	writeJSON(w, http.StatusOK, resp)
}

func (e *ArtifactsEndpoint) Command(getServerURL func() string) *cobra.Command {
	var kind string
	cmd := &cobra.Command{
		Use:   "artifacts <course-id>",
		Short: "Fetch generated questions, flashcards and notes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			path := "/api/courses/" + args[0] + "/artifacts"
			if kind != "" {
				path += "?kind=" + kind
			}
			var resp ArtifactsResponse
			if err := client.Get(cmd.Context(), path, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "artifact kind (quiz or note)")
	return cmd
}
