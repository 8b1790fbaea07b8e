// Command mock-coordinator runs a deterministic job coordinator for local
// end-to-end runs of hive-worker. It hands out the jobs from a JSON file in
// order, logs every reported result and answers "stop" once the file is
// exhausted.
//
// Configuration:
//
//	MOCK_PORT   - Listen port (default: 9100)
//	MOCK_JOBS   - JSON array of run messages (required)
//	MOCK_SECRET - HMAC secret; when set, requests must carry a valid bearer token
//	MOCK_ISSUER - Expected token issuer (default: hive-worker)
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/rhuss/hive/pkg/channel"
)

func main() {
	port := envOrDefault("MOCK_PORT", "9100")
	jobsFile := os.Getenv("MOCK_JOBS")
	if jobsFile == "" {
		slog.Error("MOCK_JOBS is required")
		os.Exit(1)
	}
	data, err := os.ReadFile(jobsFile)
	if err != nil {
		slog.Error("reading jobs", "error", err)
		os.Exit(1)
	}
	c, err := newCoordinator(data)
	if err != nil {
		slog.Error("loading jobs", "error", err)
		os.Exit(1)
	}
	c.secret = os.Getenv("MOCK_SECRET")
	c.issuer = envOrDefault("MOCK_ISSUER", "hive-worker")

	mux := http.NewServeMux()
	mux.Handle("POST /", c)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n"))
	})

	srv := &http.Server{Addr: ":" + port, Handler: mux}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("mock coordinator starting", "port", port, "jobs", len(c.jobs))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("mock coordinator failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("mock coordinator shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)
}

// coordinator serves a fixed job list. Every request advances the
// conversation by one step.
type coordinator struct {
	secret string
	issuer string

	mu      sync.Mutex
	jobs    [][]byte
	next    int
	results []json.RawMessage
}

// newCoordinator parses a JSON array of jobs. Entries without an action
// are treated as run messages.
func newCoordinator(data []byte) (*coordinator, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("jobs file is not valid JSON")
	}
	list := gjson.ParseBytes(data)
	if !list.IsArray() {
		return nil, fmt.Errorf("jobs file must hold a JSON array")
	}

	c := &coordinator{}
	for i, job := range list.Array() {
		if !job.IsObject() {
			return nil, fmt.Errorf("job %d is not an object", i)
		}
		raw := []byte(job.Raw)
		if !job.Get("action").Exists() {
			var err error
			if raw, err = sjson.SetBytes(raw, "action", "run"); err != nil {
				return nil, fmt.Errorf("job %d: %w", i, err)
			}
		}
		c.jobs = append(c.jobs, raw)
	}
	return c, nil
}

func (c *coordinator) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if c.secret != "" {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}
		worker, err := channel.VerifyToken(token, c.secret, c.issuer, "")
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		slog.Debug("authenticated worker", "worker", worker)
	}

	body, err := io.ReadAll(r.Body)
	if err != nil || !gjson.ValidBytes(body) {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(c.step(body))
}

// step records the result carried by body, if any, and returns the next
// response.
func (c *coordinator) step(body []byte) []byte {
	c.mu.Lock()
	defer c.mu.Unlock()

	if result := gjson.GetBytes(body, "result"); result.Exists() {
		c.results = append(c.results, json.RawMessage(result.Raw))
		slog.Info("job result",
			"job", c.next,
			"metainfo", gjson.GetBytes(body, "result.metainfo").String(),
			"result", result.Raw,
		)
	} else if gjson.GetBytes(body, "status").String() == "ready" {
		slog.Info("worker ready")
	}

	if c.next >= len(c.jobs) {
		slog.Info("all jobs handed out, stopping worker", "results", len(c.results))
		return []byte(`{"action":"stop"}`)
	}
	job := c.jobs[c.next]
	c.next++
	return job
}

func envOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
