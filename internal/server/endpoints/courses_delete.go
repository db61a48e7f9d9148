package endpoints

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/cram/internal/api"
	"github.com/jackzampolin/cram/internal/store"
	"github.com/jackzampolin/cram/internal/svcctx"
)

// DeleteCourseEndpoint handles DELETE /api/courses/{course_id}. Pages,
// sections, artifacts and status rows go with the course.
type DeleteCourseEndpoint struct{}

var _ api.Endpoint = (*DeleteCourseEndpoint)(nil)

func (e *DeleteCourseEndpoint) Route() (string, string, http.HandlerFunc) {
	return "DELETE", "/api/courses/{course_id}", e.handler
}

func (e *DeleteCourseEndpoint) RequiresInit() bool { return true }

func (e *DeleteCourseEndpoint) handler(w http.ResponseWriter, r *http.Request) {
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

	if err := st.DeleteCourse(r.Context(), courseID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "course not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"deleted": courseID})
}

func (e *DeleteCourseEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <course-id>",
		Short: "Delete a course and everything generated for it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			if err := client.Delete(cmd.Context(), "/api/courses/"+args[0]); err != nil {
				return err
			}
			fmt.Printf("Deleted course %s\n", args[0])
			return nil
		},
	}
}
