// Package proof defines the contract with the succinct-proof system. The
// settlement machine treats proving as an opaque service: it hands over a
// state transition and receives a certificate the ledger can verify. The
// fake backend here binds transitions with a keyed hash so the reconciliation
// logic can be exercised end to end without circuit arithmetic.
package proof

import (
	"context"
	"encoding/binary"

	"golang.org/x/crypto/blake2b"

	"zkns/internal/ledger"
	"zkns/internal/registry/models"
)

// Transition is the statement a settlement proof attests to: applying Batch
// in order against the state summarized by Old yields the state summarized
// by New.
type Transition struct {
	Old   ledger.Commitment
	New   ledger.Commitment
	Batch []models.Action
}

// Backend is the opaque proving service. Compile must complete before the
// first Prove call; real backends build circuit keys there.
type Backend interface {
	Compile(ctx context.Context) error
	Prove(ctx context.Context, t Transition) (ledger.SettlementProof, error)
	Verify(old, new ledger.Commitment, proof ledger.SettlementProof) bool
}

// BatchDigest folds an ordered action batch into one digest. Sequence
// numbers, keys and both precondition and proposed values are bound, so two
// batches differing anywhere digest differently.
func BatchDigest(batch []models.Action) [32]byte {
	h, _ := blake2b.New256(nil)
	h.Write([]byte("zkns.batch.v1"))
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], uint64(len(batch)))
	h.Write(n[:])
	for _, a := range batch {
		binary.BigEndian.PutUint64(n[:], a.Seq)
		h.Write(n[:])
		h.Write([]byte{byte(a.Field)})
		if a.Key != nil {
			h.Write([]byte{1})
			h.Write(a.Key[:])
		} else {
			h.Write([]byte{0})
		}
		writeValue(h, a.From)
		writeValue(h, a.To)
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

func writeValue(h interface{ Write([]byte) (int, error) }, v []byte) {
	var n [8]byte
	if v == nil {
		h.Write([]byte{0})
		return
	}
	h.Write([]byte{1})
	binary.BigEndian.PutUint64(n[:], uint64(len(v)))
	h.Write(n[:])
	h.Write(v)
}
