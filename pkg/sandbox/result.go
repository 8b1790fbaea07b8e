package sandbox

import (
	"encoding/json"
	"errors"
	"time"
)

// Outcome classifies a finished job.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeCheckpoint
	OutcomeFailure
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeCheckpoint:
		return "checkpoint"
	case OutcomeFailure:
		return "failure"
	}
	return "unknown"
}

// Result is the classified outcome of one job.
type Result struct {
	Outcome Outcome

	// Output is the last stdout line on success, or the checkpoint
	// content on checkpoint recovery.
	Output []byte

	// Err is the failure cause. For a checkpoint result it is the
	// original execution error that triggered recovery.
	Err error

	Stdout   string
	Stderr   string
	Duration time.Duration
}

// descriptor is the wire form of checkpoint and failure results.
type descriptor struct {
	Output   json.RawMessage `json:"output"`
	Metainfo string          `json:"metainfo"`
}

// Payload renders the result as the JSON value reported to the coordinator.
// A success output that is not valid JSON is sent as a JSON string.
func (r *Result) Payload() json.RawMessage {
	switch r.Outcome {
	case OutcomeSuccess:
		if json.Valid(r.Output) {
			return json.RawMessage(r.Output)
		}
		return mustMarshal(string(r.Output))
	case OutcomeCheckpoint:
		return mustMarshal(descriptor{Output: r.Output, Metainfo: "Checkpoint"})
	}
	return mustMarshal(descriptor{Metainfo: failureMessage(r.Err)})
}

// metricLabel splits timeouts out of the failure bucket.
func (r *Result) metricLabel() string {
	var timeoutErr *TimeoutError
	if r.Outcome == OutcomeFailure && errors.As(r.Err, &timeoutErr) {
		return "timeout"
	}
	return r.Outcome.String()
}

func mustMarshal(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		// Only strings and descriptors with validated raw JSON reach here.
		panic("sandbox: marshaling payload: " + err.Error())
	}
	return b
}
