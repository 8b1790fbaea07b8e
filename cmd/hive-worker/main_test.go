package main

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rhuss/hive/pkg/channel"
	"github.com/rhuss/hive/pkg/config"
	"github.com/rhuss/hive/pkg/sandbox"
)

type nopRunner struct{}

func (nopRunner) Run(context.Context, sandbox.Job) (*sandbox.Result, error) {
	return &sandbox.Result{Outcome: sandbox.OutcomeSuccess, Output: []byte(`1`)}, nil
}

func get(t *testing.T, h http.Handler, path string) (int, string) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	body, _ := io.ReadAll(rec.Result().Body)
	return rec.Code, string(body)
}

func TestHandler_Healthz(t *testing.T) {
	cfg := config.Defaults()

	tests := []struct {
		state      channel.State
		wantStatus int
		wantBody   string
	}{
		{channel.StateAwaitingResponse, http.StatusOK, "awaiting_response\n"},
		{channel.StateRunning, http.StatusOK, "running\n"},
		{channel.StateStopped, http.StatusServiceUnavailable, "stopped\n"},
	}
	for _, tt := range tests {
		t.Run(tt.state.String(), func(t *testing.T) {
			h := newHandler(&cfg, func() channel.State { return tt.state }, nopRunner{})
			status, body := get(t, h, "/healthz")
			if status != tt.wantStatus {
				t.Errorf("status = %d, want %d", status, tt.wantStatus)
			}
			if body != tt.wantBody {
				t.Errorf("body = %q, want %q", body, tt.wantBody)
			}
		})
	}
}

func TestHandler_Metrics(t *testing.T) {
	cfg := config.Defaults()
	h := newHandler(&cfg, func() channel.State { return channel.StateRunning }, nopRunner{})

	status, body := get(t, h, "/metrics")
	if status != http.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}
	if !strings.Contains(body, "go_goroutines") {
		t.Error("metrics output should include the default collectors")
	}

	cfg.Observability.Metrics.Enabled = false
	h = newHandler(&cfg, func() channel.State { return channel.StateRunning }, nopRunner{})
	if status, _ := get(t, h, "/metrics"); status != http.StatusNotFound {
		t.Errorf("disabled metrics status = %d, want 404", status)
	}
}

func TestHandler_MCPOptIn(t *testing.T) {
	cfg := config.Defaults()
	h := newHandler(&cfg, func() channel.State { return channel.StateRunning }, nopRunner{})
	if status, _ := get(t, h, "/mcp"); status != http.StatusNotFound {
		t.Errorf("/mcp without server.mcp status = %d, want 404", status)
	}

	cfg.Server.MCP = true
	h = newHandler(&cfg, func() channel.State { return channel.StateRunning }, nopRunner{})
	if status, _ := get(t, h, "/mcp"); status == http.StatusNotFound {
		t.Error("/mcp should be served when server.mcp is set")
	}
}

func TestExecutorConfig(t *testing.T) {
	cfg := config.Defaults()
	cfg.Sandbox.Isolation = "mirror"
	cfg.Sandbox.LinkPatterns = []string{`^data/`}
	cfg.Sandbox.SkipNames = []string{"node_modules"}
	cfg.Coordinator.WorkerID = "w-1"

	sc := executorConfig(&cfg)
	if sc.Isolation != sandbox.IsolationMirror {
		t.Errorf("isolation = %q", sc.Isolation)
	}
	if sc.Mirror.LinkPatterns[0] != `^data/` || sc.Mirror.SkipNames[0] != "node_modules" {
		t.Errorf("mirror options = %+v", sc.Mirror)
	}
	if sc.WorkerID != "w-1" || sc.RepoDir != "/app/repo" || sc.EntryPoint != "evaluator.py" {
		t.Errorf("config = %+v", sc)
	}
}

func TestOpenJournal(t *testing.T) {
	cfg := config.Defaults()

	cfg.Journal.Type = "none"
	store, err := openJournal(context.Background(), &cfg)
	if err != nil || store != nil {
		t.Errorf("none: store = %v, err = %v", store, err)
	}

	cfg.Journal.Type = "memory"
	store, err = openJournal(context.Background(), &cfg)
	if err != nil || store == nil {
		t.Fatalf("memory: store = %v, err = %v", store, err)
	}
	if err := store.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() = %v", err)
	}
}

func TestNewClient_SignsWhenJWT(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{"action":"stop"}`))
	}))
	defer srv.Close()

	cfg := config.Defaults()
	cfg.Coordinator.Endpoint = srv.URL
	cfg.Coordinator.WorkerID = "w-7"
	cfg.Auth.Type = "jwt"
	cfg.Auth.Secret = "s3cret"

	client, err := newClient(&cfg)
	if err != nil {
		t.Fatalf("newClient() error: %v", err)
	}
	if _, err := client.Exchange(context.Background(), []byte(`{"status":"ready"}`)); err != nil {
		t.Fatalf("Exchange() error: %v", err)
	}

	token, ok := strings.CutPrefix(gotAuth, "Bearer ")
	if !ok {
		t.Fatalf("Authorization = %q, want bearer token", gotAuth)
	}
	sub, err := channel.VerifyToken(token, "s3cret", "hive-worker", "")
	if err != nil {
		t.Fatalf("VerifyToken() error: %v", err)
	}
	if sub != "w-7" {
		t.Errorf("subject = %q, want w-7", sub)
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestExecCommand(t *testing.T) {
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("/bin/sh not available")
	}
	dir := t.TempDir()
	repo := filepath.Join(dir, "repo")
	writeFile(t, filepath.Join(repo, "run.sh"), "cat answer.txt\n")
	writeFile(t, filepath.Join(repo, "answer.txt"), "41\n")

	cfgPath := filepath.Join(dir, "hive.yaml")
	writeFile(t, cfgPath, `
sandbox:
  repo_dir: `+repo+`
  session_root: `+filepath.Join(dir, "sessions")+`
  interpreter: [/bin/sh]
  entry_point: run.sh
journal:
  type: none
`)
	jobPath := filepath.Join(dir, "job.json")
	writeFile(t, jobPath, `{"action":"run","code":{"answer.txt":"42"},"timeout":10}`)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"exec", "--config", cfgPath, "--job", jobPath})
	defer rootCmd.SetArgs(nil)

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("exec failed: %v", err)
	}
	if got := strings.TrimSpace(out.String()); got != "42" {
		t.Errorf("payload = %q, want 42", got)
	}
	if b, _ := os.ReadFile(filepath.Join(repo, "answer.txt")); string(b) != "41\n" {
		t.Errorf("repository modified: %q", b)
	}
}

func TestMirrorCommand(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	writeFile(t, filepath.Join(src, "code.py"), "x = 1\n")
	writeFile(t, filepath.Join(src, "data", "big.bin"), "blob")
	writeFile(t, filepath.Join(src, ".git", "HEAD"), "ref")
	dst := filepath.Join(dir, "dst")

	rootCmd.SetArgs([]string{"mirror", src, dst, "--link", "^data$"})
	defer rootCmd.SetArgs(nil)
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("mirror failed: %v", err)
	}

	if info, err := os.Lstat(filepath.Join(dst, "code.py")); err != nil || !info.Mode().IsRegular() {
		t.Errorf("code.py should be a copied file: %v", err)
	}
	if info, err := os.Lstat(filepath.Join(dst, "data")); err != nil || info.Mode()&os.ModeSymlink == 0 {
		t.Errorf("data should be a symlink: %v", err)
	}
	if _, err := os.Lstat(filepath.Join(dst, ".git")); !os.IsNotExist(err) {
		t.Errorf(".git should be skipped, got %v", err)
	}
}

func TestServeShutsDownOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	srv := &http.Server{Addr: "127.0.0.1:0", Handler: http.NotFoundHandler()}

	done := make(chan error, 1)
	go func() { done <- serve(ctx, srv) }()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("serve() = %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return after cancel")
	}
}
