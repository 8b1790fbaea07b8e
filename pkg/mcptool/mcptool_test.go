package mcptool

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rhuss/hive/pkg/sandbox"
)

type fakeRunner struct {
	mu     sync.Mutex
	jobs   []sandbox.Job
	result *sandbox.Result
}

func (f *fakeRunner) Run(_ context.Context, job sandbox.Job) (*sandbox.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs = append(f.jobs, job)
	return f.result, nil
}

// connect starts the tool server on an in-memory transport and returns a
// connected client session.
func connect(t *testing.T, runner Runner) *mcp.ClientSession {
	t.Helper()

	server := NewServer(runner, "test")
	serverTransport, clientTransport := mcp.NewInMemoryTransports()

	ctx := context.Background()
	go func() {
		_ = server.Run(ctx, serverTransport)
	}()

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "1.0.0"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	t.Cleanup(func() { _ = session.Close() })
	return session
}

func TestListTools(t *testing.T) {
	session := connect(t, &fakeRunner{})

	res, err := session.ListTools(context.Background(), nil)
	if err != nil {
		t.Fatalf("ListTools failed: %v", err)
	}
	if len(res.Tools) != 1 || res.Tools[0].Name != ToolName {
		t.Fatalf("tools = %+v, want only %s", res.Tools, ToolName)
	}
	if res.Tools[0].InputSchema == nil {
		t.Error("run_job should publish an input schema")
	}
}

func TestRunJob_Success(t *testing.T) {
	runner := &fakeRunner{result: &sandbox.Result{Outcome: sandbox.OutcomeSuccess, Output: []byte(`{"score":3}`)}}
	session := connect(t, runner)

	res, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name: ToolName,
		Arguments: map[string]any{
			"code":              map[string]any{"solution.py": "print(1)"},
			"args":              []any{"a", 2},
			"timeout":           2.5,
			"memory_limit":      256,
			"evaluation_script": "eval.py",
		},
	})
	if err != nil {
		t.Fatalf("CallTool failed: %v", err)
	}
	if res.IsError {
		t.Errorf("IsError = true for a successful job")
	}
	if text := res.Content[0].(*mcp.TextContent).Text; text != `{"score":3}` {
		t.Errorf("content = %s, want {\"score\":3}", text)
	}

	if len(runner.jobs) != 1 {
		t.Fatalf("jobs = %d, want 1", len(runner.jobs))
	}
	job := runner.jobs[0]
	if job.Files["solution.py"] != "print(1)" || job.EntryPoint != "eval.py" {
		t.Errorf("job = %+v", job)
	}
	if job.Timeout != 2500*time.Millisecond || job.MemoryLimitMB != 256 {
		t.Errorf("limits = %v / %d", job.Timeout, job.MemoryLimitMB)
	}
	if len(job.Args) != 2 || string(job.Args[0]) != `"a"` || string(job.Args[1]) != `2` {
		t.Errorf("args = %s", job.Args)
	}
}

func TestRunJob_FailureIsToolError(t *testing.T) {
	runner := &fakeRunner{result: &sandbox.Result{
		Outcome: sandbox.OutcomeFailure,
		Err:     &sandbox.TimeoutError{Timeout: time.Second},
	}}
	session := connect(t, runner)

	res, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      ToolName,
		Arguments: map[string]any{"code": map[string]any{}},
	})
	if err != nil {
		t.Fatalf("CallTool failed: %v", err)
	}
	if !res.IsError {
		t.Error("IsError = false for a failed job")
	}
	want := `{"output":null,"metainfo":"Execution failed: Timeout"}`
	if text := res.Content[0].(*mcp.TextContent).Text; text != want {
		t.Errorf("content = %s, want %s", text, want)
	}
}

func TestRunJobInput_Rejects(t *testing.T) {
	if _, err := (RunJobInput{Timeout: -1}).job(); err == nil {
		t.Error("expected error for negative timeout")
	}
	if _, err := (RunJobInput{MemoryLimit: -1}).job(); err == nil {
		t.Error("expected error for negative memory limit")
	}
}
