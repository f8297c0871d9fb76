package proof

import (
	"context"
	"sync"

	"golang.org/x/crypto/blake2b"

	"zkns/internal/ledger"
	pkgerrors "zkns/pkg/errors"
)

// ErrNotCompiled is returned when Prove runs before Compile.
var ErrNotCompiled = pkgerrors.New(pkgerrors.CodeProofGeneration, "proof backend not compiled")

// Fake is a proof backend whose proofs are keyed-hash bindings over the
// transition: prove computes the binding, verify recomputes and compares.
// It preserves the real backend's contract (compile-before-prove, transient
// prove failures) without any cryptographic circuits.
type Fake struct {
	mu       sync.Mutex
	compiled bool
	proveErr error
}

// NewFake returns an uncompiled fake backend.
func NewFake() *Fake { return &Fake{} }

// Compile marks the backend ready. Real backends derive proving keys here,
// so callers must treat it as slow and run it once at startup.
func (f *Fake) Compile(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.compiled = true
	return nil
}

// FailNextProve makes the next Prove call return err, simulating a transient
// prover outage. Test hook.
func (f *Fake) FailNextProve(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.proveErr = err
}

func (f *Fake) Prove(ctx context.Context, t Transition) (ledger.SettlementProof, error) {
	if err := ctx.Err(); err != nil {
		return ledger.SettlementProof{}, pkgerrors.Wrap(err, pkgerrors.CodeProofGeneration, "prove cancelled")
	}
	f.mu.Lock()
	compiled, proveErr := f.compiled, f.proveErr
	f.proveErr = nil
	f.mu.Unlock()

	if !compiled {
		return ledger.SettlementProof{}, ErrNotCompiled
	}
	if proveErr != nil {
		return ledger.SettlementProof{}, pkgerrors.Wrap(proveErr, pkgerrors.CodeProofGeneration, "prove transition")
	}

	batchDigest := BatchDigest(t.Batch)
	return ledger.SettlementProof{
		Old:         t.Old,
		New:         t.New,
		BatchDigest: batchDigest,
		Binding:     binding(t.Old, t.New, batchDigest),
	}, nil
}

func (f *Fake) Verify(old, new ledger.Commitment, proof ledger.SettlementProof) bool {
	if proof.Old.Digest() != old.Digest() || proof.New.Digest() != new.Digest() {
		return false
	}
	return proof.Binding == binding(old, new, proof.BatchDigest)
}

func binding(old, new ledger.Commitment, batchDigest [32]byte) [32]byte {
	h, _ := blake2b.New256(nil)
	h.Write([]byte("zkns.proof.v1"))
	oldD, newD := old.Digest(), new.Digest()
	h.Write(oldD[:])
	h.Write(newD[:])
	h.Write(batchDigest[:])
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}
