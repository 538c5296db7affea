package client

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/Ulysse-Dev-Serre/App-Maker/pkg/models"
	"github.com/Ulysse-Dev-Serre/App-Maker/pkg/protocol"
)

// RunProject starts the generated program.
func (c *Client) RunProject(ctx context.Context, id string) error {
	return c.do(ctx, request{
		op:     "run_project",
		method: http.MethodPost,
		path:   "/api/runner/run",
		body:   protocol.RunnerRequest{ProjectID: id},
	})
}

// StopProject stops the generated program.
func (c *Client) StopProject(ctx context.Context, id string) error {
	return c.do(ctx, request{
		op:     "stop_project",
		method: http.MethodPost,
		path:   "/api/runner/stop",
		body:   protocol.RunnerRequest{ProjectID: id},
	})
}

// ProblemStatus returns the current problem of a project, or nil.
func (c *Client) ProblemStatus(ctx context.Context, id string) (*models.Problem, error) {
	var out protocol.ProblemResponse
	err := c.do(ctx, request{
		op:         "problem_status",
		method:     http.MethodGet,
		path:       projectPath(id, "/problem_status"),
		out:        &out,
		idempotent: true,
	})
	if err != nil {
		return nil, err
	}
	return out.Problem, nil
}

// GetLogs returns the raw log text. An empty id selects the global log.
func (c *Client) GetLogs(ctx context.Context, id string) (string, error) {
	path, op := "/api/get_logs", "get_logs"
	if id != "" {
		path, op = projectPath(id, "/logs"), "get_project_logs"
	}

	var out protocol.LogsResponse
	err := c.do(ctx, request{
		op:         op,
		method:     http.MethodGet,
		path:       path,
		out:        &out,
		idempotent: true,
	})
	if err != nil {
		return "", err
	}
	return c.decodeLogs(out.Logs), nil
}

// decodeLogs accepts a string or a list of lines. Anything else is logged
// and treated as an empty log.
func (c *Client) decodeLogs(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var lines []string
	if err := json.Unmarshal(raw, &lines); err == nil {
		return strings.Join(lines, "\n")
	}
	c.logger.Warn("unexpected logs payload", zap.ByteString("logs", raw))
	return ""
}
