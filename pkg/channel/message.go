package channel

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/tidwall/gjson"

	"github.com/rhuss/hive/pkg/debug"
	"github.com/rhuss/hive/pkg/sandbox"
)

// readyMessage opens every conversation.
const readyMessage = `{"status":"ready"}`

// Action is a coordinator instruction: either RunAction or StopAction.
type Action interface {
	action()
}

// RunAction asks the worker to execute one job.
type RunAction struct {
	Job sandbox.Job
}

// StopAction asks the worker to exit cleanly.
type StopAction struct{}

func (RunAction) action()  {}
func (StopAction) action() {}

// ProtocolError reports a coordinator response the worker cannot act on.
// It is fatal to the loop and never retried.
type ProtocolError struct {
	Reason string
	Body   string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("coordinator protocol violation: %s (body: %s)", e.Reason, e.Body)
}

// runMessage holds the job fields of a "run" response.
type runMessage struct {
	Code             map[string]string `json:"code"`
	Timeout          float64           `json:"timeout"`
	MemoryLimit      *int64            `json:"memory_limit"`
	Args             []json.RawMessage `json:"args"`
	EvaluationScript string            `json:"evaluation_script"`
}

// ParseAction decodes a coordinator response. Only "run" and "stop" are
// recognized.
func ParseAction(body []byte) (Action, error) {
	if !gjson.ValidBytes(body) {
		return nil, protocolError("response is not valid JSON", body)
	}
	action := gjson.GetBytes(body, "action")
	if !action.Exists() {
		return nil, protocolError("missing action", body)
	}
	if action.Type != gjson.String {
		return nil, protocolError("action is not a string", body)
	}

	switch action.Str {
	case "stop":
		return StopAction{}, nil
	case "run":
		var msg runMessage
		if err := json.Unmarshal(body, &msg); err != nil {
			return nil, protocolError("malformed run message: "+err.Error(), body)
		}
		if msg.Timeout < 0 {
			return nil, protocolError("negative timeout", body)
		}
		job := sandbox.Job{
			Files:      msg.Code,
			Args:       msg.Args,
			Timeout:    time.Duration(msg.Timeout * float64(time.Second)),
			EntryPoint: msg.EvaluationScript,
		}
		if msg.MemoryLimit != nil {
			job.MemoryLimitMB = *msg.MemoryLimit
		}
		return RunAction{Job: job}, nil
	}
	return nil, protocolError(fmt.Sprintf("unrecognized action %q", action.Str), body)
}

func protocolError(reason string, body []byte) *ProtocolError {
	return &ProtocolError{Reason: reason, Body: debug.Truncate(string(body), 200)}
}
