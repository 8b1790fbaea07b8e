// Package integration runs the worker end to end: a real executor over a
// scratch repository, talking to an in-process coordinator through the
// retrying HTTP client.
package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tidwall/gjson"

	"github.com/rhuss/hive/pkg/channel"
	"github.com/rhuss/hive/pkg/journal/memory"
	"github.com/rhuss/hive/pkg/sandbox"
)

const (
	testSecret = "integration-secret"
	testIssuer = "hive-worker"
	workerID   = "worker-it"
)

// evaluator switches on mode.txt, which jobs override.
const evaluator = `mode=$(cat mode.txt)
case "$mode" in
  ok) echo "computing"; echo "{\"sum\":$(($1 + $2))}" ;;
  crash) echo '{"partial":true}' > checkpoint.json; echo "crashed" >&2; exit 3 ;;
  hang) sleep 5 ;;
  *) echo "unknown mode $mode" >&2; exit 1 ;;
esac
`

// coordinator is a scripted coordinator. It hands out jobs in order and
// answers stop afterwards. The first failFirst requests get a 503.
type coordinator struct {
	failFirst int

	mu       sync.Mutex
	jobs     []string
	requests int
	results  []string
	subjects []string
}

func (c *coordinator) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests++

	if c.requests <= c.failFirst {
		http.Error(w, "warming up", http.StatusServiceUnavailable)
		return
	}

	token, _ := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	sub, err := channel.VerifyToken(token, testSecret, testIssuer, "")
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}
	c.subjects = append(c.subjects, sub)

	body, _ := io.ReadAll(r.Body)
	if res := gjson.GetBytes(body, "result"); res.Exists() {
		c.results = append(c.results, res.Raw)
	}

	if len(c.jobs) == 0 {
		w.Write([]byte(`{"action":"stop"}`))
		return
	}
	next := c.jobs[0]
	c.jobs = c.jobs[1:]
	w.Write([]byte(next))
}

// worker bundles everything one end-to-end run needs.
type worker struct {
	repo        string
	sessionRoot string
	journal     *memory.Store
	coordinator *coordinator
	loop        *channel.Loop
}

func newWorker(t *testing.T, failFirst int, jobs ...string) *worker {
	t.Helper()
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("/bin/sh not available")
	}

	repo := t.TempDir()
	writeFile(t, filepath.Join(repo, "run.sh"), evaluator)
	writeFile(t, filepath.Join(repo, "mode.txt"), "unset\n")
	writeFile(t, filepath.Join(repo, "data", "weights.bin"), "w")
	sessionRoot := t.TempDir()

	store := memory.New(100)
	exec, err := sandbox.New(store, sandbox.Config{
		RepoDir:     repo,
		SessionRoot: sessionRoot,
		Interpreter: []string{"/bin/sh"},
		EntryPoint:  "run.sh",
		WorkerID:    workerID,
	})
	if err != nil {
		t.Fatalf("creating executor: %v", err)
	}

	coord := &coordinator{failFirst: failFirst, jobs: jobs}
	srv := httptest.NewServer(coord)
	t.Cleanup(srv.Close)

	client, err := channel.NewClient(channel.ClientConfig{
		Endpoint:       srv.URL,
		InitialDelay:   10 * time.Millisecond,
		Multiplier:     2,
		RequestTimeout: 10 * time.Second,
		Signer:         channel.NewTokenSigner(testSecret, testIssuer, "", workerID, time.Minute),
	})
	if err != nil {
		t.Fatalf("creating client: %v", err)
	}

	return &worker{
		repo:        repo,
		sessionRoot: sessionRoot,
		journal:     store,
		coordinator: coord,
		loop:        channel.NewLoop(client, exec),
	}
}

func (w *worker) run(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := w.loop.Run(ctx); err != nil {
		t.Fatalf("loop.Run() error: %v", err)
	}
}

func runJob(code map[string]string, args []any, timeout float64) string {
	b, err := json.Marshal(map[string]any{
		"action":  "run",
		"code":    code,
		"args":    args,
		"timeout": timeout,
	})
	if err != nil {
		panic(fmt.Sprintf("marshal job: %v", err))
	}
	return string(b)
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

func readFile(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}
