// Package actionlog is the append-only log of pending update intents. Appends
// never validate against current state; conflict detection is deferred to
// settlement replay. The settled cursor is the only thing a settlement moves:
// a failed attempt leaves the log byte-for-byte as it was.
package actionlog

import (
	"context"

	"zkns/internal/registry/models"
	pkgerrors "zkns/pkg/errors"
)

// ErrCursorRegression guards MarkSettled against moving the cursor backwards.
var ErrCursorRegression = pkgerrors.New(pkgerrors.CodeInternal, "settled cursor cannot move backwards")

// Log is the pending-action log. Implementations must assign strictly
// increasing sequence numbers and return pending actions in that order.
type Log interface {
	// Append records the action unconditionally and returns its assigned
	// sequence number.
	Append(ctx context.Context, action models.Action) (uint64, error)
	// Pending returns the next ordered slice of unsettled actions, oldest
	// first, at most limit entries. limit <= 0 means no bound.
	Pending(ctx context.Context, limit int) ([]models.Action, error)
	// Settled returns every action at or below the cursor, oldest first.
	// A restarted node replays this prefix to rebuild its last-settled
	// views before it can touch the pending tail.
	Settled(ctx context.Context) ([]models.Action, error)
	// PendingCount reports how many actions are waiting for settlement.
	PendingCount(ctx context.Context) (int, error)
	// Cursor returns the sequence number through which the log is settled.
	Cursor(ctx context.Context) (uint64, error)
	// MarkSettled advances the cursor after a successful settlement. It is
	// idempotent for the same cursor value.
	MarkSettled(ctx context.Context, through uint64) error
}
