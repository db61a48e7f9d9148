// Package endpoints defines the HTTP surface of the cram server. Every
// endpoint doubles as a cobra command against a running server.
package endpoints

import (
	"github.com/jackzampolin/cram/internal/api"
)

// All returns all endpoint instances in registration order.
func All() []api.Endpoint {
	return []api.Endpoint{
		// Health
		&HealthEndpoint{},

		// Courses
		&UploadCourseEndpoint{},
		&DeleteCourseEndpoint{},
		&OutlineEndpoint{},
		&ArtifactsEndpoint{},

		// Generation lifecycle
		&GenerateEndpoint{},
		&CourseStatusEndpoint{},
		&ForceStopEndpoint{},
		&RetryEndpoint{},

		// Graphics
		&ReanalyzeEndpoint{},
	}
}
