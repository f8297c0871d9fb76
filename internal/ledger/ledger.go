package ledger

import (
	"context"
	"sync"

	pkgerrors "zkns/pkg/errors"
)

// ErrStaleCommitment is returned when a submitted proof claims an old
// commitment that no longer matches the stored one: another settlement won
// the race. The proof must be discarded and the batch recomputed, never
// resubmitted blindly.
var ErrStaleCommitment = pkgerrors.New(pkgerrors.CodeStaleCommitment, "proof old commitment does not match stored commitment")

// ErrInvalidProof is returned when proof verification fails outright.
var ErrInvalidProof = pkgerrors.New(pkgerrors.CodeBadRequest, "settlement proof failed verification")

// Ledger is the consensus-layer collaborator: it stores exactly one
// commitment and advances it atomically when handed a valid proof against
// the currently stored value.
type Ledger interface {
	// Commitment returns the currently stored commitment.
	Commitment(ctx context.Context) (Commitment, error)
	// Submit verifies the proof and compare-and-swaps the stored commitment
	// from proof.Old to proof.New. Fails with ErrStaleCommitment when the
	// stored commitment moved, ErrInvalidProof when verification fails.
	Submit(ctx context.Context, proof SettlementProof) error
}

// Memory is an in-process ledger for tests and single-node deployments. The
// compare-and-swap runs under one mutex, matching the atomicity the real
// chain provides through transaction ordering.
type Memory struct {
	mu       sync.Mutex
	stored   Commitment
	verifier Verifier
}

// NewMemory creates a ledger holding the genesis commitment.
func NewMemory(genesis Commitment, verifier Verifier) *Memory {
	return &Memory{stored: genesis, verifier: verifier}
}

func (m *Memory) Commitment(_ context.Context) (Commitment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stored, nil
}

func (m *Memory) Submit(_ context.Context, proof SettlementProof) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stored.Digest() != proof.Old.Digest() {
		return ErrStaleCommitment
	}
	if !m.verifier.Verify(proof.Old, proof.New, proof) {
		return ErrInvalidProof
	}
	m.stored = proof.New
	return nil
}
