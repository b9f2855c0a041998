// Package storage provides the dispatch record store.
//
// The dispatcher hands one [Record] per processed message to a [Recorder].
// Records describe what happened to a message (its final state, the stage
// that failed, the forward target) and never contain payloads or keys.
//
// # Implementations
//
// The memory sub-package keeps records in process with retention-based
// cleanup. The mongodb sub-package persists them to a MongoDB collection.
//
// # Concurrency
//
// All implementations must be safe for concurrent use from multiple
// goroutines; the dispatcher records from every consumer worker.
package storage

import (
	"context"
	"time"
)

// Recorder stores dispatch records
type Recorder interface {
	// Record stores one record. Records with the same ID replace each other.
	Record(ctx context.Context, rec *Record) error

	// Get returns the record with the given ID, or nil if there is none
	Get(ctx context.Context, id string) (*Record, error)

	// List returns records matching filter, newest first
	List(ctx context.Context, filter *RecordFilter) ([]*Record, error)

	// Close releases storage resources
	Close(ctx context.Context) error
}

// Record describes the outcome of dispatching one inbound message
type Record struct {
	ID            string `bson:"_id" json:"id"`
	Source        string `bson:"source" json:"source"`
	CorrelationID string `bson:"correlation_id,omitempty" json:"correlationId,omitempty"`
	MessageType   string `bson:"message_type,omitempty" json:"messageType,omitempty"`

	// State is the terminal dispatch state, e.g. "forwarded" or "failed"
	State string `bson:"state" json:"state"`
	// Outcome is the classification result when classification ran
	Outcome     string `bson:"outcome,omitempty" json:"outcome,omitempty"`
	FailedStage string `bson:"failed_stage,omitempty" json:"failedStage,omitempty"`
	Error       string `bson:"error,omitempty" json:"error,omitempty"`

	Target            string `bson:"target,omitempty" json:"target,omitempty"`
	ResponseMessageID string `bson:"response_message_id,omitempty" json:"responseMessageId,omitempty"`

	ReceivedAt  time.Time `bson:"received_at" json:"receivedAt"`
	CompletedAt time.Time `bson:"completed_at" json:"completedAt"`
}

// RecordFilter narrows List results. Zero fields match everything.
type RecordFilter struct {
	State         string
	FailedStage   string
	CorrelationID string
	Since         *time.Time
	Limit         int
}

// Matches reports whether rec satisfies the filter
func (f *RecordFilter) Matches(rec *Record) bool {
	if f == nil {
		return true
	}
	if f.State != "" && rec.State != f.State {
		return false
	}
	if f.FailedStage != "" && rec.FailedStage != f.FailedStage {
		return false
	}
	if f.CorrelationID != "" && rec.CorrelationID != f.CorrelationID {
		return false
	}
	if f.Since != nil && rec.ReceivedAt.Before(*f.Since) {
		return false
	}
	return true
}
