package endpoints

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jackzampolin/cram/internal/api"
	"github.com/jackzampolin/cram/internal/document"
	"github.com/jackzampolin/cram/internal/store"
	"github.com/jackzampolin/cram/internal/svcctx"
)

// UploadResponse is returned after a course document is ingested.
type UploadResponse struct {
	CourseID string `json:"course_id"`
	Title    string `json:"title"`
	Pages    int    `json:"pages"`
}

// UploadCourseEndpoint handles POST /api/courses/upload with a multipart
// document upload. The document is paginated and stored as a new course.
type UploadCourseEndpoint struct{}

var _ api.Endpoint = (*UploadCourseEndpoint)(nil)

func (e *UploadCourseEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/courses/upload", e.handler
}

func (e *UploadCourseEndpoint) RequiresInit() bool { return true }

func (e *UploadCourseEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	const maxMemory = 200 << 20 // 200MB
	if err := r.ParseMultipartForm(maxMemory); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("failed to parse form: %v", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	files := r.MultipartForm.File["file"]
	if len(files) == 0 {
		writeError(w, http.StatusBadRequest, "no file uploaded")
		return
	}
	fh := files[0]

	ext := strings.ToLower(filepath.Ext(fh.Filename))
	if ext != ".pdf" && ext != ".txt" {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unsupported file type %q, expected .pdf or .txt", ext))
		return
	}

	st := svcctx.StoreFrom(r.Context())
	if st == nil {
		writeError(w, http.StatusServiceUnavailable, "store not initialized")
		return
	}
	homeDir := svcctx.HomeFrom(r.Context())
	if homeDir == nil {
		writeError(w, http.StatusServiceUnavailable, "home directory not initialized")
		return
	}
	logger := svcctx.LoggerFrom(r.Context())

	courseID := uuid.New().String()
	destPath := homeDir.UploadPath(courseID, filepath.Base(fh.Filename))
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to create upload dir: %v", err))
		return
	}

	src, err := fh.Open()
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to open uploaded file: %v", err))
		return
	}
	dst, err := os.Create(destPath)
	if err != nil {
		src.Close()
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to create file: %v", err))
		return
	}
	_, err = io.Copy(dst, src)
	src.Close()
	dst.Close()
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to save file: %v", err))
		return
	}

	doc, err := document.Load(destPath, logger)
	if err != nil {
		os.Remove(destPath)
		writeError(w, http.StatusBadRequest, fmt.Sprintf("failed to read document: %v", err))
		return
	}

	title := r.FormValue("title")
	if title == "" {
		title = doc.Title
	}

	course := store.Course{
		ID:        courseID,
		Title:     title,
		PageCount: len(doc.Pages),
	}
	if err := st.CreateCourse(r.Context(), course, doc.Pages); err != nil {
		os.Remove(destPath)
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to save course: %v", err))
		return
	}

	if logger != nil {
		logger.Info("course uploaded", "course_id", courseID, "title", title, "pages", len(doc.Pages))
	}

	writeJSON(w, http.StatusOK, UploadResponse{
		CourseID: courseID,
		Title:    title,
		Pages:    len(doc.Pages),
	})
}

func (e *UploadCourseEndpoint) Command(getServerURL func() string) *cobra.Command {
	var title string
	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload a course document (PDF or text)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			path := "/api/courses/upload"
			if title != "" {
				// FormValue also reads query parameters, so the CLI can
				// pass the title without building a multipart field.
				path += "?title=" + url.QueryEscape(title)
			}
			var resp UploadResponse
			if err := client.PostFile(cmd.Context(), path, "file", args[0], &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "course title (derived from filename if not set)")
	return cmd
}
