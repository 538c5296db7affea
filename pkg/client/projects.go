package client

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/Ulysse-Dev-Serre/App-Maker/pkg/models"
	"github.com/Ulysse-Dev-Serre/App-Maker/pkg/protocol"
)

func projectPath(id string, suffix string) string {
	return "/api/projects/" + url.PathEscape(id) + suffix
}

// ListProjects returns the projects known to the service.
func (c *Client) ListProjects(ctx context.Context) ([]models.ProjectSummary, error) {
	var out []models.ProjectSummary
	err := c.do(ctx, request{
		op:         "list_projects",
		method:     http.MethodGet,
		path:       "/api/projects/",
		out:        &out,
		idempotent: true,
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CreateProject generates a new project from a prompt.
func (c *Client) CreateProject(ctx context.Context, req protocol.GenerateRequest) (*protocol.ProjectResponse, error) {
	var out protocol.ProjectResponse
	err := c.do(ctx, request{
		op:     "create_project",
		method: http.MethodPost,
		path:   "/api/projects/",
		body:   req,
		out:    &out,
	})
	if err != nil {
		return nil, err
	}
	if out.ProjectID == "" {
		return nil, errors.New("create_project: response carries no project_id")
	}
	return &out, nil
}

// RegenerateProject regenerates an existing project in place. The returned
// FileMap replaces the previous one entirely.
func (c *Client) RegenerateProject(ctx context.Context, id string, req protocol.GenerateRequest) (*protocol.ProjectResponse, error) {
	var out protocol.ProjectResponse
	err := c.do(ctx, request{
		op:     "regenerate_project",
		method: http.MethodPost,
		path:   projectPath(id, "/generate"),
		body:   req,
		out:    &out,
	})
	if err != nil {
		return nil, err
	}
	if out.ProjectID == "" {
		out.ProjectID = id
	}
	return &out, nil
}

// RenameProject renames a project.
func (c *Client) RenameProject(ctx context.Context, id, name string) error {
	return c.do(ctx, request{
		op:     "rename_project",
		method: http.MethodPut,
		path:   projectPath(id, "/rename"),
		body:   protocol.RenameRequest{NewName: name},
	})
}

// DeleteProject deletes a project.
func (c *Client) DeleteProject(ctx context.Context, id string) error {
	return c.do(ctx, request{
		op:     "delete_project",
		method: http.MethodDelete,
		path:   projectPath(id, ""),
	})
}

// GetFiles returns the current FileMap of a project.
func (c *Client) GetFiles(ctx context.Context, id string) (models.FileMap, error) {
	var out protocol.FilesResponse
	err := c.do(ctx, request{
		op:         "get_files",
		method:     http.MethodGet,
		path:       projectPath(id, "/files"),
		out:        &out,
		idempotent: true,
	})
	if err != nil {
		return nil, err
	}
	if out.Files == nil {
		out.Files = models.FileMap{}
	}
	return out.Files, nil
}

// GetHistory returns the prompt/response log of a project.
func (c *Client) GetHistory(ctx context.Context, id string) (*models.ProjectHistory, error) {
	var out models.ProjectHistory
	err := c.do(ctx, request{
		op:         "get_history",
		method:     http.MethodGet,
		path:       projectPath(id, "/history"),
		out:        &out,
		idempotent: true,
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// LLMOptions returns the providers and models the service can use.
func (c *Client) LLMOptions(ctx context.Context) (models.LLMOptions, error) {
	var out models.LLMOptions
	err := c.do(ctx, request{
		op:         "llm_options",
		method:     http.MethodGet,
		path:       "/api/llm_options",
		out:        &out,
		idempotent: true,
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
