// Package ledger models the on-ledger side of the system: the compact
// commitment summarizing all offchain state, the settlement proof that
// advances it, and the atomic compare-and-swap primitive the consensus layer
// exposes. Everything else about the chain (ordering, finality, transports)
// is an external collaborator.
package ledger

import (
	"encoding/binary"
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// NumFields mirrors the number of declared offchain fields. Each field has
// its own root inside the commitment.
const NumFields = 4

var commitmentTag = []byte("zkns.commitment.v1")

// Commitment is the only offchain state the ledger layer can hold and verify:
// one digest per declared field plus the action-log cursor through which the
// state has been settled.
type Commitment struct {
	Roots  [NumFields][32]byte
	Cursor uint64
}

// Digest folds the commitment into a single 32-byte value. Two commitments
// are interchangeable exactly when their digests are equal.
func (c Commitment) Digest() [32]byte {
	h, _ := blake2b.New256(nil)
	h.Write(commitmentTag)
	for i := range c.Roots {
		h.Write(c.Roots[i][:])
	}
	var cur [8]byte
	binary.BigEndian.PutUint64(cur[:], c.Cursor)
	h.Write(cur[:])
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// ShortDigest renders a truncated digest for logs and events.
func (c Commitment) ShortDigest() string {
	d := c.Digest()
	return hex.EncodeToString(d[:8])
}

// SettlementProof certifies that replaying the drained batch against Old
// deterministically yields New. It is produced once per settlement cycle and
// consumed exactly once by the ledger swap.
type SettlementProof struct {
	Old         Commitment
	New         Commitment
	BatchDigest [32]byte
	// Binding is the opaque certificate produced by the proof backend.
	Binding [32]byte
}

// Verifier checks a settlement proof. The proof backend satisfies this; the
// ledger never learns how proofs are built.
type Verifier interface {
	Verify(old, new Commitment, proof SettlementProof) bool
}
