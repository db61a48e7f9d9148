package endpoints

import (
	"net/http"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/cram/internal/api"
	"github.com/jackzampolin/cram/internal/svcctx"
)

// ReanalyzeResponse reports how many graphics were reanalyzed.
type ReanalyzeResponse struct {
	CourseID   string `json:"course_id"`
	Reanalyzed int    `json:"reanalyzed"`
}

// ReanalyzeEndpoint handles POST /api/courses/{course_id}/graphics/reanalyze.
// The shared circuit breaker is reset first so a manual trigger always gets
// a fresh attempt budget.
type ReanalyzeEndpoint struct{}

var _ api.Endpoint = (*ReanalyzeEndpoint)(nil)

func (e *ReanalyzeEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/courses/{course_id}/graphics/reanalyze", e.handler
}

func (e *ReanalyzeEndpoint) RequiresInit() bool { return true }

func (e *ReanalyzeEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	courseID := r.PathValue("course_id")
	if courseID == "" {
		writeError(w, http.StatusBadRequest, "course_id is required")
		return
	}

	analyzer := svcctx.AnalyzerFrom(r.Context())
	if analyzer == nil {
		writeError(w, http.StatusServiceUnavailable, "analyzer not initialized")
		return
	}

	if brk := svcctx.BreakerFrom(r.Context()); brk != nil {
		brk.Reset()
	}

	count, err := analyzer.Reanalyze(r.Context(), courseID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, ReanalyzeResponse{
		CourseID:   courseID,
		Reanalyzed: count,
	})
}

func (e *ReanalyzeEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "reanalyze <course-id>",
		Short: "Re-run analysis on low-confidence graphics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp ReanalyzeResponse
			if err := client.Post(cmd.Context(), "/api/courses/"+args[0]+"/graphics/reanalyze", nil, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}
