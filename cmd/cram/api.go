package main

import (
	"github.com/spf13/cobra"

	"github.com/jackzampolin/cram/internal/server/endpoints"
)

var serverURL string

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Commands that call the running server",
	Long: `API commands call the running cram server via HTTP.

These commands require a running server (cram serve).
Use --server to specify a custom server URL.

Examples:
  cram api health                        # Check server health
  cram api courses upload book.pdf       # Upload a course document
  cram api courses generate <id>         # Start artifact generation
  cram api courses status <id>           # Poll generation progress`,
}

var coursesCmd = &cobra.Command{
	Use:   "courses",
	Short: "Course and generation commands",
}

var graphicsCmd = &cobra.Command{
	Use:   "graphics",
	Short: "Graphics analysis commands",
}

// getServerURL returns the server URL at runtime (after flag parsing).
func getServerURL() string {
	return serverURL
}

func init() {
	// Persistent so all subcommands inherit it
	apiCmd.PersistentFlags().StringVar(
		&serverURL, "server", "http://localhost:8585", "Server URL",
	)

	apiCmd.AddCommand((&endpoints.HealthEndpoint{}).Command(getServerURL))

	coursesCmd.AddCommand((&endpoints.UploadCourseEndpoint{}).Command(getServerURL))
	coursesCmd.AddCommand((&endpoints.DeleteCourseEndpoint{}).Command(getServerURL))
	coursesCmd.AddCommand((&endpoints.OutlineEndpoint{}).Command(getServerURL))
	coursesCmd.AddCommand((&endpoints.ArtifactsEndpoint{}).Command(getServerURL))
	coursesCmd.AddCommand((&endpoints.GenerateEndpoint{}).Command(getServerURL))
	coursesCmd.AddCommand((&endpoints.CourseStatusEndpoint{}).Command(getServerURL))
	coursesCmd.AddCommand((&endpoints.ForceStopEndpoint{}).Command(getServerURL))
	coursesCmd.AddCommand((&endpoints.RetryEndpoint{}).Command(getServerURL))

	graphicsCmd.AddCommand((&endpoints.ReanalyzeEndpoint{}).Command(getServerURL))

	apiCmd.AddCommand(coursesCmd)
	apiCmd.AddCommand(graphicsCmd)
	rootCmd.AddCommand(apiCmd)
}
