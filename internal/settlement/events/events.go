// Package events carries settlement audit events to operators. Precondition
// violations in particular indicate a genuine concurrent-write race and must
// reach a durable sink, not just process logs. Keep Event transport-agnostic
// so sinks can fan out.
package events

import (
	"context"
	"sync"
	"time"
)

// Kind classifies settlement events.
type Kind string

const (
	// KindBatchSettled is emitted when the ledger accepts a new commitment.
	KindBatchSettled Kind = "batch_settled"
	// KindPreconditionViolated is emitted when replay aborts a batch.
	KindPreconditionViolated Kind = "precondition_violated"
	// KindProofFailed is emitted on transient prover failure.
	KindProofFailed Kind = "proof_failed"
	// KindStaleCommitment is emitted when a proof lost the submission race.
	KindStaleCommitment Kind = "stale_commitment"
)

// Event is one settlement lifecycle occurrence.
type Event struct {
	Kind         Kind      `json:"kind"`
	OldDigest    string    `json:"old_digest"`
	NewDigest    string    `json:"new_digest,omitempty"`
	Cursor       uint64    `json:"cursor"`
	Actions      int       `json:"actions"`
	OffendingSeq uint64    `json:"offending_seq,omitempty"`
	Error        string    `json:"error,omitempty"`
	At           time.Time `json:"at"`
}

// Publisher delivers settlement events to a sink.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// Noop drops every event. Used when no broker is configured.
type Noop struct{}

func (Noop) Publish(context.Context, Event) error { return nil }
func (Noop) Close() error                         { return nil }

// Recorder keeps events in memory for tests.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func NewRecorder() *Recorder { return &Recorder{} }

func (r *Recorder) Publish(_ context.Context, event Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *Recorder) Close() error { return nil }

// Events returns a copy of everything published so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}
