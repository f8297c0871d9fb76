package proof_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zkns/internal/ledger"
	"zkns/internal/namekey"
	"zkns/internal/proof"
	"zkns/internal/registry/models"
	pkgerrors "zkns/pkg/errors"
)

func sampleTransition() proof.Transition {
	key := namekey.MustEncode("alice")
	old := ledger.Commitment{Cursor: 0}
	newC := ledger.Commitment{Cursor: 1}
	newC.Roots[0][0] = 0xaa
	return proof.Transition{
		Old: old,
		New: newC,
		Batch: []models.Action{
			{Field: models.FieldRegistry, Key: &key, To: []byte("rec"), Seq: 1},
		},
	}
}

func TestProveRequiresCompile(t *testing.T) {
	f := proof.NewFake()
	_, err := f.Prove(context.Background(), sampleTransition())
	assert.ErrorIs(t, err, proof.ErrNotCompiled)

	require.NoError(t, f.Compile(context.Background()))
	_, err = f.Prove(context.Background(), sampleTransition())
	assert.NoError(t, err)
}

func TestProveVerifyRoundTrip(t *testing.T) {
	f := proof.NewFake()
	require.NoError(t, f.Compile(context.Background()))

	tr := sampleTransition()
	p, err := f.Prove(context.Background(), tr)
	require.NoError(t, err)

	assert.True(t, f.Verify(tr.Old, tr.New, p))
}

func TestVerifyRejectsTampering(t *testing.T) {
	f := proof.NewFake()
	require.NoError(t, f.Compile(context.Background()))

	tr := sampleTransition()
	p, err := f.Prove(context.Background(), tr)
	require.NoError(t, err)

	other := tr.New
	other.Cursor = 99
	assert.False(t, f.Verify(tr.Old, other, p))

	tampered := p
	tampered.BatchDigest[0] ^= 0xff
	assert.False(t, f.Verify(tr.Old, tr.New, tampered))
}

func TestFailNextProveIsTransient(t *testing.T) {
	f := proof.NewFake()
	require.NoError(t, f.Compile(context.Background()))

	f.FailNextProve(errors.New("prover oom"))
	_, err := f.Prove(context.Background(), sampleTransition())
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeProofGeneration))

	_, err = f.Prove(context.Background(), sampleTransition())
	assert.NoError(t, err)
}

func TestBatchDigestSensitivity(t *testing.T) {
	tr := sampleTransition()
	base := proof.BatchDigest(tr.Batch)

	reordered := append([]models.Action(nil), tr.Batch...)
	reordered[0].Seq = 2
	assert.NotEqual(t, base, proof.BatchDigest(reordered))

	// nil From (fresh insert) and empty From are different preconditions.
	withFrom := append([]models.Action(nil), tr.Batch...)
	withFrom[0].From = []byte{}
	assert.NotEqual(t, base, proof.BatchDigest(withFrom))

	assert.Equal(t, base, proof.BatchDigest(tr.Batch))
}
