// Package protocol defines the request/response bodies of the remote
// App Maker service and of the local bridge.
package protocol

import (
	"encoding/json"

	"github.com/Ulysse-Dev-Serre/App-Maker/pkg/models"
)

// GenerateRequest is the body for POST /api/projects/ and
// POST /api/projects/{id}/generate.
type GenerateRequest struct {
	Prompt      string `json:"prompt"`
	LLMProvider string `json:"llm_provider"`
	ModelName   string `json:"model_name"`
}

// ProjectResponse is returned by project creation and regeneration.
type ProjectResponse struct {
	ProjectID string         `json:"project_id"`
	Files     models.FileMap `json:"files"`
}

// FilesResponse is returned by GET /api/projects/{id}/files.
type FilesResponse struct {
	Files models.FileMap `json:"files"`
}

// RenameRequest is the body for PUT /api/projects/{id}/rename.
type RenameRequest struct {
	NewName string `json:"new_name"`
}

// RunnerRequest is the body for POST /api/runner/run and /api/runner/stop.
type RunnerRequest struct {
	ProjectID string `json:"project_id"`
}

// LogsResponse is returned by the log endpoints. Logs is kept raw
// because some backends send a list of lines instead of one string.
type LogsResponse struct {
	Logs json.RawMessage `json:"logs"`
}

// ProblemResponse is returned by GET /api/projects/{id}/problem_status.
type ProblemResponse struct {
	Problem *models.Problem `json:"problem"`
}

// ErrorResponse is the FastAPI error body.
type ErrorResponse struct {
	Detail json.RawMessage `json:"detail"`
}

// MessageResponse acknowledges simple mutations.
type MessageResponse struct {
	Message string `json:"message,omitempty"`
}

// Bridge bodies.

// SelectRequest is the body for POST /api/projects/select.
type SelectRequest struct {
	ProjectID string `json:"project_id"`
}

// SelectFileRequest is the body for POST /api/files/select.
type SelectFileRequest struct {
	Path string `json:"path"`
}

// PollingRequest is the body for POST /api/polling.
type PollingRequest struct {
	Enabled bool `json:"enabled"`
}

// BridgeError is returned by the local bridge on failure.
type BridgeError struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

// GenerateResult is returned by POST /api/projects/generate.
type GenerateResult struct {
	ProjectID string `json:"project_id"`
}

// TreeResponse is returned by GET /api/tree.
type TreeResponse struct {
	ProjectID string                 `json:"project_id,omitempty"`
	Selected  string                 `json:"selected,omitempty"`
	Tree      []*models.FileTreeNode `json:"tree"`
}

// FileResponse is returned by GET /api/files/{path}.
type FileResponse struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// LogView is returned by GET /api/logs.
type LogView struct {
	Entries []models.LogEntry       `json:"entries"`
	Counts  map[models.LogLevel]int `json:"counts"`
}

// ModelsResponse is returned by GET /api/models.
type ModelsResponse struct {
	Options         models.LLMOptions `json:"options"`
	DefaultProvider string            `json:"default_provider"`
	DefaultModel    string            `json:"default_model"`
}
