// Package swagger registers the OpenAPI document served at /swagger.json.
// Regenerate with `go generate ./docs` after changing handler annotations.
package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {
            "name": "API Support",
            "url": "https://github.com/jackzampolin/problembook"
        },
        "license": {
            "name": "MIT",
            "url": "https://opensource.org/licenses/MIT"
        },
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/health": {
            "get": {
                "produces": ["application/json"],
                "tags": ["health"],
                "summary": "Liveness check",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/endpoints.HealthResponse"}}
                }
            }
        },
        "/ready": {
            "get": {
                "description": "Reports whether the job manager and result store are up",
                "produces": ["application/json"],
                "tags": ["health"],
                "summary": "Readiness check",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/endpoints.HealthResponse"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/endpoints.HealthResponse"}}
                }
            }
        },
        "/status": {
            "get": {
                "description": "Registered providers, job counts and the active configuration",
                "produces": ["application/json"],
                "tags": ["health"],
                "summary": "Server status",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/endpoints.StatusResponse"}}
                }
            }
        },
        "/api/batches": {
            "get": {
                "produces": ["application/json"],
                "tags": ["batches"],
                "summary": "List batches",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/endpoints.ListBatchesResponse"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/endpoints.ErrorResponse"}}
                }
            }
        },
        "/api/batches/ocr": {
            "post": {
                "description": "Extract problems and theory from a list of pages or a page range.\nThe whole batch is rejected if any target is invalid.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["batches"],
                "summary": "Submit an OCR batch",
                "parameters": [
                    {"description": "Pages to extract", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/batch.OCRRequest"}}
                ],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/batch.Handle"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/endpoints.ErrorResponse"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/endpoints.ErrorResponse"}}
                }
            }
        },
        "/api/batches/solve": {
            "post": {
                "description": "Solve a list of extracted problems with one provider.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["batches"],
                "summary": "Submit a solve batch",
                "parameters": [
                    {"description": "Problems to solve", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/batch.SolveRequest"}}
                ],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/batch.Handle"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/endpoints.ErrorResponse"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/endpoints.ErrorResponse"}}
                }
            }
        },
        "/api/batches/{id}": {
            "get": {
                "description": "Aggregate status, per-status counts and every job record of a batch",
                "produces": ["application/json"],
                "tags": ["batches"],
                "summary": "Get batch status",
                "parameters": [
                    {"type": "string", "description": "Batch ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/batch.Status"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/endpoints.ErrorResponse"}}
                }
            }
        },
        "/api/batches/{id}/cancel": {
            "post": {
                "description": "Cancel every job of the batch that has not finished yet",
                "produces": ["application/json"],
                "tags": ["batches"],
                "summary": "Cancel a batch",
                "parameters": [
                    {"type": "string", "description": "Batch ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/endpoints.CancelResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/endpoints.ErrorResponse"}}
                }
            }
        },
        "/api/jobs": {
            "get": {
                "description": "List jobs in submission order with optional filters",
                "produces": ["application/json"],
                "tags": ["jobs"],
                "summary": "List jobs",
                "parameters": [
                    {"type": "string", "description": "Filter by status", "name": "status", "in": "query"},
                    {"type": "string", "description": "Filter by job kind", "name": "kind", "in": "query"},
                    {"type": "string", "description": "Filter by batch", "name": "batch_id", "in": "query"},
                    {"type": "integer", "description": "Maximum number of jobs", "name": "limit", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/endpoints.ListJobsResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/endpoints.ErrorResponse"}}
                }
            }
        },
        "/api/jobs/{id}": {
            "get": {
                "description": "Poll a job's status, progress and result reference",
                "produces": ["application/json"],
                "tags": ["jobs"],
                "summary": "Get job by ID",
                "parameters": [
                    {"type": "string", "description": "Job ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/jobs.Record"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/endpoints.ErrorResponse"}}
                }
            }
        },
        "/api/jobs/{id}/calls": {
            "get": {
                "description": "Every provider attempt the job made, oldest first, with outcome and latency",
                "produces": ["application/json"],
                "tags": ["jobs"],
                "summary": "List a job's provider calls",
                "parameters": [
                    {"type": "string", "description": "Job ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/endpoints.JobCallsResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/endpoints.ErrorResponse"}}
                }
            }
        },
        "/api/jobs/{id}/cancel": {
            "post": {
                "description": "Request cancellation. Cancelling a finished job has no effect.",
                "produces": ["application/json"],
                "tags": ["jobs"],
                "summary": "Cancel a job",
                "parameters": [
                    {"type": "string", "description": "Job ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/jobs.Record"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/endpoints.ErrorResponse"}}
                }
            }
        },
        "/api/pages/{book}/{page}": {
            "get": {
                "description": "Problems and theory blocks extracted from one page",
                "produces": ["application/json"],
                "tags": ["pages"],
                "summary": "Get page extraction",
                "parameters": [
                    {"type": "string", "description": "Book ID", "name": "book", "in": "path", "required": true},
                    {"type": "integer", "description": "Page number", "name": "page", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/endpoints.ErrorResponse"}}
                }
            }
        },
        "/api/pages/{book}/{page}/text": {
            "put": {
                "description": "Save the OCR text of a page so it can be extracted by an OCR batch.\nBlank text is accepted for blank pages.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["pages"],
                "summary": "Store page text",
                "parameters": [
                    {"type": "string", "description": "Book ID", "name": "book", "in": "path", "required": true},
                    {"type": "integer", "description": "Page number", "name": "page", "in": "path", "required": true},
                    {"description": "Page text", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/endpoints.PageTextRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/endpoints.PageTextResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/endpoints.ErrorResponse"}}
                }
            }
        },
        "/api/problems/{id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["problems"],
                "summary": "Get an extracted problem",
                "parameters": [
                    {"type": "string", "description": "Problem ID ({book}:{chapter}:{number})", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/endpoints.ErrorResponse"}}
                }
            }
        },
        "/api/problems/{id}/solutions": {
            "get": {
                "produces": ["application/json"],
                "tags": ["problems"],
                "summary": "List solutions of a problem",
                "parameters": [
                    {"type": "string", "description": "Problem ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/endpoints.ErrorResponse"}}
                }
            }
        },
        "/api/export/{book}": {
            "get": {
                "description": "Render extracted problems and their latest solutions.\nProblems split across pages are exported once, joined.",
                "produces": ["text/markdown", "application/x-latex", "application/json", "text/html", "text/tab-separated-values"],
                "tags": ["export"],
                "summary": "Export a book",
                "parameters": [
                    {"type": "string", "description": "Book ID", "name": "book", "in": "path", "required": true},
                    {"type": "string", "description": "markdown (default), latex, json, html or anki", "name": "format", "in": "query"},
                    {"type": "integer", "description": "Export one chapter only", "name": "chapter", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "string"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/endpoints.ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/endpoints.ErrorResponse"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/endpoints.ErrorResponse"}}
                }
            }
        },
        "/api/ws/jobs/{id}": {
            "get": {
                "description": "Websocket stream of job_update messages. The server closes the\nstream after the job reaches a terminal status.",
                "tags": ["jobs"],
                "summary": "Stream job updates",
                "parameters": [
                    {"type": "string", "description": "Job ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "101": {"description": "Switching Protocols"},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/endpoints.ErrorResponse"}}
                }
            }
        },
        "/api/ws/batches/{id}": {
            "get": {
                "description": "Websocket stream of job_update messages for every job of the\nbatch, followed by one batch_summary message.",
                "tags": ["batches"],
                "summary": "Stream batch updates",
                "parameters": [
                    {"type": "string", "description": "Batch ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "101": {"description": "Switching Protocols"},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/endpoints.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "batch.Handle": {
            "type": "object",
            "properties": {
                "batch_id": {"type": "string"},
                "kind": {"type": "string"},
                "job_ids": {"type": "array", "items": {"type": "string"}},
                "created_at": {"type": "string"}
            }
        },
        "batch.OCRRequest": {
            "type": "object",
            "properties": {
                "targets": {"type": "array", "items": {"$ref": "#/definitions/ocr_page.Target"}},
                "book_id": {"type": "string"},
                "start_page": {"type": "integer", "minimum": 0},
                "end_page": {"type": "integer", "minimum": 0},
                "chapter": {"type": "integer", "minimum": 0},
                "incremental": {"type": "boolean"},
                "force": {"type": "boolean"}
            }
        },
        "batch.SolveRequest": {
            "type": "object",
            "required": ["problem_ids"],
            "properties": {
                "problem_ids": {"type": "array", "minItems": 1, "items": {"type": "string"}},
                "provider": {"type": "string"},
                "force": {"type": "boolean"}
            }
        },
        "batch.Status": {
            "type": "object",
            "properties": {
                "batch_id": {"type": "string"},
                "kind": {"type": "string"},
                "job_ids": {"type": "array", "items": {"type": "string"}},
                "created_at": {"type": "string"},
                "overall": {"type": "string", "enum": ["running", "succeeded", "partially_failed", "failed", "cancelled"]},
                "counts": {"type": "object", "additionalProperties": {"type": "integer"}},
                "jobs": {"type": "array", "items": {"$ref": "#/definitions/jobs.Record"}}
            }
        },
        "ocr_page.Target": {
            "type": "object",
            "required": ["book_id"],
            "properties": {
                "book_id": {"type": "string"},
                "page": {"type": "integer", "minimum": 1},
                "chapter": {"type": "integer", "minimum": 0}
            }
        },
        "jobs.Error": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"}
            }
        },
        "jobs.Progress": {
            "type": "object",
            "properties": {
                "current": {"type": "integer"},
                "total": {"type": "integer"}
            }
        },
        "jobs.Record": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "kind": {"type": "string"},
                "batch_id": {"type": "string"},
                "status": {"type": "string", "enum": ["queued", "running", "succeeded", "failed", "cancelled"]},
                "progress": {"$ref": "#/definitions/jobs.Progress"},
                "created_at": {"type": "string"},
                "started_at": {"type": "string"},
                "finished_at": {"type": "string"},
                "error": {"$ref": "#/definitions/jobs.Error"},
                "result_ref": {"type": "string"},
                "metadata": {"type": "object", "additionalProperties": {"type": "string"}}
            }
        },
        "endpoints.CancelResponse": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "cancelled": {"type": "integer"}
            }
        },
        "endpoints.ErrorResponse": {
            "type": "object",
            "properties": {
                "error": {"type": "string"},
                "code": {"type": "string"}
            }
        },
        "endpoints.HealthResponse": {
            "type": "object",
            "properties": {
                "status": {"type": "string"},
                "job_manager": {"type": "string"},
                "store": {"type": "string"}
            }
        },
        "endpoints.ListBatchesResponse": {
            "type": "object",
            "properties": {
                "batches": {"type": "array", "items": {"$ref": "#/definitions/batch.Status"}}
            }
        },
        "endpoints.ListJobsResponse": {
            "type": "object",
            "properties": {
                "jobs": {"type": "array", "items": {"$ref": "#/definitions/jobs.Record"}}
            }
        },
        "endpoints.PageTextRequest": {
            "type": "object",
            "properties": {
                "text": {"type": "string"}
            }
        },
        "endpoints.PageTextResponse": {
            "type": "object",
            "properties": {
                "book_id": {"type": "string"},
                "page": {"type": "integer"},
                "bytes": {"type": "integer"}
            }
        },
        "endpoints.StatusResponse": {
            "type": "object",
            "properties": {
                "server": {"type": "string"},
                "version": {"type": "string"},
                "providers": {"type": "array", "items": {"type": "string"}},
                "jobs": {"type": "object", "additionalProperties": {"type": "integer"}},
                "running": {"type": "integer"},
                "batches": {"type": "integer"},
                "calls": {"type": "array", "items": {"$ref": "#/definitions/llmcall.ProviderSummary"}}
            }
        },
        "endpoints.JobCallsResponse": {
            "type": "object",
            "properties": {
                "job_id": {"type": "string"},
                "calls": {"type": "array", "items": {"$ref": "#/definitions/llmcall.Call"}}
            }
        },
        "llmcall.Call": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "timestamp": {"type": "string"},
                "latency_ms": {"type": "integer"},
                "job_id": {"type": "string"},
                "operation": {"type": "string", "enum": ["extract", "solve"]},
                "provider": {"type": "string"},
                "model": {"type": "string"},
                "outcome": {"type": "string", "enum": ["success", "transient_error", "permanent_error", "cancelled"]},
                "kind": {"type": "string"},
                "error": {"type": "string"}
            }
        },
        "llmcall.ProviderSummary": {
            "type": "object",
            "properties": {
                "provider": {"type": "string"},
                "calls": {"type": "integer"},
                "successes": {"type": "integer"},
                "transient_errors": {"type": "integer"},
                "permanent_errors": {"type": "integer"},
                "cancelled": {"type": "integer"},
                "avg_latency_ms": {"type": "number"},
                "last_outcome": {"type": "string"},
                "last_error": {"type": "string"},
                "last_call_at": {"type": "string"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/",
	Schemes:          []string{"http", "https"},
	Title:            "Problembook API",
	Description:      "Batch extraction and solving of textbook problems: OCR batches turn page text\ninto problems and theory blocks, solve batches send problems to LLM providers.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
