package settlement

import (
	"errors"
	"fmt"

	"zkns/internal/ledger"
	"zkns/internal/registry/models"
	"zkns/internal/registry/state"
	pkgerrors "zkns/pkg/errors"
)

// PreconditionError identifies the action whose optimistic precondition did
// not hold at replay time within the batch.
type PreconditionError struct {
	Seq   uint64
	Field models.FieldID
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("precondition violated at action %d (%s)", e.Seq, e.Field)
}

// Replay applies batch in log order against the working snapshot and returns
// the resulting commitment. It is a pure deterministic function of (snapshot,
// batch): re-running it on equal inputs yields an equal commitment. Any
// precondition mismatch aborts immediately with the offending action; the
// snapshot is the caller's scratch copy and may be discarded.
func Replay(snap *state.Snapshot, batch []models.Action) (ledger.Commitment, error) {
	lastSeq := snap.Committed().Cursor
	for _, a := range batch {
		if a.Seq <= lastSeq {
			return ledger.Commitment{}, pkgerrors.Newf(pkgerrors.CodeInternal,
				"action sequence %d out of order after %d", a.Seq, lastSeq)
		}
		lastSeq = a.Seq

		current, present := snap.Lookup(a.Field, a.Key)
		if a.From == nil {
			// Fresh insert: the slot must still be absent.
			if present {
				return ledger.Commitment{}, violation(a)
			}
		} else {
			if !present || !models.ValueEqual(current, a.From) {
				return ledger.Commitment{}, violation(a)
			}
		}
		snap.Apply(a)
	}
	return snap.Commitment(lastSeq), nil
}

func violation(a models.Action) error {
	return pkgerrors.Wrap(
		&PreconditionError{Seq: a.Seq, Field: a.Field},
		pkgerrors.CodePreconditionViolated,
		"action "+a.Field.String()+" precondition does not hold at replay",
	)
}

func offendingSeq(err error) uint64 {
	var pe *PreconditionError
	if errors.As(err, &pe) {
		return pe.Seq
	}
	return 0
}
