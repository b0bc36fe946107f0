package endpoints

import (
	"github.com/jackzampolin/problembook/internal/api"
)

// All returns all endpoint instances.
func All() []api.Endpoint {
	return []api.Endpoint{
		// Health endpoints
		&HealthEndpoint{},
		&ReadyEndpoint{},
		&StatusEndpoint{},

		// Batch endpoints
		&SubmitOCRBatchEndpoint{},
		&SubmitSolveBatchEndpoint{},
		&ListBatchesEndpoint{},
		&GetBatchEndpoint{},
		&CancelBatchEndpoint{},
		&WatchBatchEndpoint{},

		// Job endpoints
		&ListJobsEndpoint{},
		&GetJobEndpoint{},
		&JobCallsEndpoint{},
		&CancelJobEndpoint{},
		&WatchJobEndpoint{},

		// Page and problem endpoints
		&GetPageEndpoint{},
		&PutPageTextEndpoint{},
		&GetProblemEndpoint{},
		&ListSolutionsEndpoint{},

		// Export endpoints
		&ExportBookEndpoint{},

		// Swagger/OpenAPI
		&SwaggerEndpoint{},
	}
}
