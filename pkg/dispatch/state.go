package dispatch

import (
	"errors"
	"fmt"
	"time"

	"github.com/ianmp91/sqs-consumer-producer-micro/pkg/message"
)

// State is the position of a message in the dispatch pipeline
type State string

const (
	// StateReceived is the initial state of every delivery
	StateReceived State = "received"
	// StateUnsealed means the payload was decrypted
	StateUnsealed State = "unsealed"
	// StateClassified means the payload was decoded and classified
	StateClassified State = "classified"
	// StateComposed means a sealed response exists
	StateComposed State = "composed"
	// StateForwarded means the response was handed to the transport
	StateForwarded State = "forwarded"
	// StateFailed is terminal; the failing stage is in the report
	StateFailed State = "failed"
)

// Stage names the transition in which a message failed
type Stage string

// Stages
const (
	StageUnseal   Stage = "unseal"
	StageClassify Stage = "classify"
	StageCompose  Stage = "compose"
	StageForward  Stage = "forward"
)

// stageFrom returns the stage that leaves state s
func stageFrom(s State) Stage {
	switch s {
	case StateReceived:
		return StageUnseal
	case StateUnsealed:
		return StageClassify
	case StateClassified:
		return StageCompose
	default:
		return StageForward
	}
}

var (
	// ErrAbsentPayload is the classify failure for a payload that decoded to
	// no value
	ErrAbsentPayload = errors.New("payload decoded to no value")
	// ErrPanic wraps a panic raised by a collaborator
	ErrPanic = errors.New("panic during dispatch")
)

// StageError records the stage at which dispatch of a message failed
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("dispatch failed at %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Report describes how one delivery was handled
type Report struct {
	MessageID     string
	Source        string
	CorrelationID string
	MessageType   string

	State State
	// Outcome is the classification kind, empty if classification did not run
	Outcome string
	// UnsupportedType is the observed type tag of an unsupported payload
	UnsupportedType string

	Target   string
	Response *message.SealedEnvelope

	// Err is a *StageError when State is StateFailed
	Err error

	ReceivedAt  time.Time
	CompletedAt time.Time
}

// Failed reports whether the message ended in the failed state
func (r *Report) Failed() bool {
	return r.State == StateFailed
}

// FailedStage returns the failing stage, or "" if the message did not fail
func (r *Report) FailedStage() Stage {
	var se *StageError
	if errors.As(r.Err, &se) {
		return se.Stage
	}
	return ""
}

func (r *Report) fail(stage Stage, err error) {
	r.State = StateFailed
	r.Err = &StageError{Stage: stage, Err: err}
}
