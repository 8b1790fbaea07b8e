// Package mcptool exposes the sandbox executor as an MCP tool, so that
// agents can submit one-off jobs to a worker without a coordinator.
package mcptool

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rhuss/hive/pkg/debug"
	"github.com/rhuss/hive/pkg/sandbox"
)

// ToolName is the name the executor is published under.
const ToolName = "run_job"

// Runner executes a job. *sandbox.Executor implements it.
type Runner interface {
	Run(ctx context.Context, job sandbox.Job) (*sandbox.Result, error)
}

// RunJobInput mirrors the fields of a coordinator "run" message.
type RunJobInput struct {
	Code             map[string]string `json:"code" jsonschema:"files to write into the session, keyed by relative path"`
	Args             []any             `json:"args,omitempty" jsonschema:"positional arguments passed to the entry point as JSON literals"`
	Timeout          float64           `json:"timeout,omitempty" jsonschema:"wall-clock budget in seconds, 0 for none"`
	MemoryLimit      int64             `json:"memory_limit,omitempty" jsonschema:"address space ceiling in MiB, 0 for none"`
	EvaluationScript string            `json:"evaluation_script,omitempty" jsonschema:"entry point path relative to the repository"`
}

// NewServer creates an MCP server publishing the run_job tool. The runner
// is expected to serialize jobs; *sandbox.Executor does, so tool calls
// queue behind coordinator jobs sharing the same executor.
func NewServer(runner Runner, version string) *mcp.Server {
	server := mcp.NewServer(
		&mcp.Implementation{Name: "hive-worker", Version: version},
		nil,
	)

	mcp.AddTool(server, &mcp.Tool{
		Name:        ToolName,
		Description: "Runs a job in a disposable sandbox on top of the worker's repository and returns its result payload",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in RunJobInput) (*mcp.CallToolResult, struct{}, error) {
		job, err := in.job()
		if err != nil {
			return nil, struct{}{}, err
		}

		debug.Log("mcp", "run_job called", "files", len(job.Files), "entry_point", job.EntryPoint)
		res, err := runner.Run(ctx, job)
		if err != nil {
			return nil, struct{}{}, fmt.Errorf("running job: %w", err)
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: string(res.Payload())}},
			IsError: res.Outcome == sandbox.OutcomeFailure,
		}, struct{}{}, nil
	})

	return server
}

// Handler serves server over streamable HTTP.
func Handler(server *mcp.Server) http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return server
	}, nil)
}

func (in RunJobInput) job() (sandbox.Job, error) {
	if in.Timeout < 0 {
		return sandbox.Job{}, fmt.Errorf("timeout must not be negative")
	}
	if in.MemoryLimit < 0 {
		return sandbox.Job{}, fmt.Errorf("memory_limit must not be negative")
	}
	job := sandbox.Job{
		Files:         in.Code,
		Timeout:       time.Duration(in.Timeout * float64(time.Second)),
		MemoryLimitMB: in.MemoryLimit,
		EntryPoint:    in.EvaluationScript,
	}
	for i, a := range in.Args {
		raw, err := json.Marshal(a)
		if err != nil {
			return sandbox.Job{}, fmt.Errorf("args[%d]: %w", i, err)
		}
		job.Args = append(job.Args, raw)
	}
	return job, nil
}
