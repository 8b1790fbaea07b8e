package channel

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/tidwall/sjson"

	"github.com/rhuss/hive/pkg/observability"
	"github.com/rhuss/hive/pkg/sandbox"
)

// State is the position of the loop in the conversation.
type State int32

const (
	StateAwaitingResponse State = iota
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateAwaitingResponse:
		return "awaiting_response"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	}
	return "unknown"
}

// Exchanger delivers one conversation message and returns the reply.
type Exchanger interface {
	Exchange(ctx context.Context, body []byte) ([]byte, error)
}

// Runner executes a job. *sandbox.Executor implements it.
type Runner interface {
	Run(ctx context.Context, job sandbox.Job) (*sandbox.Result, error)
}

// Loop fetches jobs from the coordinator and reports their results until
// told to stop. At most one job is in flight.
type Loop struct {
	client Exchanger
	runner Runner
	state  atomic.Int32
}

// NewLoop creates a loop. It starts in StateAwaitingResponse.
func NewLoop(client Exchanger, runner Runner) *Loop {
	return &Loop{client: client, runner: runner}
}

// State reports the current loop state. Safe for concurrent use.
func (l *Loop) State() State {
	return State(l.state.Load())
}

func (l *Loop) setState(s State) {
	l.state.Store(int32(s))
	observability.SetWorkerState(s.String())
}

// Run drives the conversation. It returns nil on a stop action, a
// *ProtocolError on an unrecognized response, and an error when the
// runner cannot start a job or ctx is canceled.
func (l *Loop) Run(ctx context.Context) error {
	defer l.setState(StateStopped)

	outbound := []byte(readyMessage)
	for jobs := 0; ; jobs++ {
		l.setState(StateAwaitingResponse)
		inbound, err := l.client.Exchange(ctx, outbound)
		if err != nil {
			return fmt.Errorf("exchanging with coordinator: %w", err)
		}

		action, err := ParseAction(inbound)
		if err != nil {
			return err
		}

		switch a := action.(type) {
		case StopAction:
			slog.Info("coordinator requested stop", "jobs", jobs)
			return nil
		case RunAction:
			l.setState(StateRunning)
			res, err := l.runner.Run(ctx, a.Job)
			if err != nil {
				return fmt.Errorf("running job: %w", err)
			}
			outbound, err = sjson.SetRawBytes(inbound, "result", res.Payload())
			if err != nil {
				return fmt.Errorf("attaching result: %w", err)
			}
		default:
			return &ProtocolError{Reason: fmt.Sprintf("unhandled action %T", action)}
		}
	}
}
