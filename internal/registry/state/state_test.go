package state_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zkns/internal/namekey"
	"zkns/internal/registry/actionlog"
	"zkns/internal/registry/models"
	"zkns/internal/registry/state"
)

func newStore(t *testing.T) (*state.Store, *actionlog.Memory) {
	t.Helper()
	log := actionlog.NewMemory()
	return state.New(log, state.Genesis{Admin: "B62qAdmin", Premium: 2}), log
}

func TestGenesisState(t *testing.T) {
	s, _ := newStore(t)

	premium, err := s.Premium()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), premium)

	paused, err := s.Paused()
	require.NoError(t, err)
	assert.False(t, paused)

	assert.Equal(t, models.PublicKey("B62qAdmin"), s.Admin())
	assert.Equal(t, uint64(0), s.Commitment().Cursor)

	// Same genesis, same commitment.
	other, _ := newStore(t)
	assert.Equal(t, other.Commitment().Digest(), s.Commitment().Digest())
}

func TestQueuedUpdateNotVisibleToReads(t *testing.T) {
	ctx := context.Background()
	s, log := newStore(t)

	name := namekey.MustEncode("alice")
	rec := models.EncodeRecord(models.Record{Owner: "B62qU1"})
	_, err := s.QueueUpdate(ctx, models.FieldRegistry, &name, nil, rec)
	require.NoError(t, err)

	// Read-after-write is not guaranteed before settlement.
	_, ok, err := s.Record(name)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, uint64(0), s.Commitment().Cursor)

	pending, err := log.Pending(ctx, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, rec, pending[0].To)
}

func TestApplySettledAdvancesViews(t *testing.T) {
	s, _ := newStore(t)

	name := namekey.MustEncode("alice")
	rec := models.Record{Owner: "B62qU1", Payload: namekey.MustEncode("alice.org")}
	action := models.Action{
		Field: models.FieldRegistry,
		Key:   &name,
		To:    models.EncodeRecord(rec),
		Seq:   1,
	}

	snap := s.Snapshot()
	snap.Apply(action)
	newC := snap.Commitment(1)

	s.ApplySettled([]models.Action{action}, newC)

	got, ok, err := s.Record(name)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, rec, got)
	assert.Equal(t, newC.Digest(), s.Commitment().Digest())
}

func TestSnapshotReplayDoesNotTouchStore(t *testing.T) {
	s, _ := newStore(t)
	before := s.Commitment()

	name := namekey.MustEncode("alice")
	snap := s.Snapshot()
	snap.Apply(models.Action{Field: models.FieldRegistry, Key: &name, To: []byte("x"), Seq: 1})
	snap.Apply(models.Action{Field: models.FieldPremium, To: models.EncodePremium(9), Seq: 2})

	assert.Equal(t, before.Digest(), s.Commitment().Digest())
	premium, err := s.Premium()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), premium)
}

func TestSnapshotCommitmentDeterministic(t *testing.T) {
	s, _ := newStore(t)
	name := namekey.MustEncode("alice")
	action := models.Action{Field: models.FieldRegistry, Key: &name, To: []byte("x"), Seq: 1}

	a := s.Snapshot()
	a.Apply(action)
	b := s.Snapshot()
	b.Apply(action)

	assert.Equal(t, a.Commitment(1).Digest(), b.Commitment(1).Digest())
	assert.NotEqual(t, a.Commitment(1).Digest(), a.Commitment(2).Digest())
}

// settleAll drains the pending log into the store the way a settlement cycle
// would, so rebuild tests have a settled prefix to work from.
func settleAll(t *testing.T, s *state.Store, log *actionlog.Memory) {
	t.Helper()
	ctx := context.Background()
	pending, err := log.Pending(ctx, 0)
	require.NoError(t, err)
	require.NotEmpty(t, pending)

	snap := s.Snapshot()
	for _, a := range pending {
		snap.Apply(a)
	}
	last := pending[len(pending)-1].Seq
	require.NoError(t, log.MarkSettled(ctx, last))
	s.ApplySettled(pending, snap.Commitment(last))
}

func TestNewFromLogRebuildsSettledViews(t *testing.T) {
	ctx := context.Background()
	live, log := newStore(t)

	name := namekey.MustEncode("alice")
	rec := models.EncodeRecord(models.Record{Owner: "B62qU1", Payload: namekey.MustEncode("alice.org")})
	_, err := live.QueueUpdate(ctx, models.FieldRegistry, &name, nil, rec)
	require.NoError(t, err)
	_, err = live.QueueUpdate(ctx, models.FieldPremium, nil, models.EncodePremium(2), models.EncodePremium(7))
	require.NoError(t, err)
	settleAll(t, live, log)

	// A second store over the same log is a restarted node.
	restarted, err := state.NewFromLog(ctx, log, state.Genesis{Admin: "B62qAdmin", Premium: 2})
	require.NoError(t, err)

	assert.Equal(t, live.Commitment().Digest(), restarted.Commitment().Digest())
	got, ok, err := restarted.Record(name)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, models.PublicKey("B62qU1"), got.Owner)
	premium, err := restarted.Premium()
	require.NoError(t, err)
	assert.Equal(t, uint64(7), premium)
}

func TestNewFromLogFreshLogIsGenesis(t *testing.T) {
	log := actionlog.NewMemory()
	genesis := state.Genesis{Admin: "B62qAdmin", Premium: 2}

	s, err := state.NewFromLog(context.Background(), log, genesis)
	require.NoError(t, err)
	assert.Equal(t, state.New(log, genesis).Commitment().Digest(), s.Commitment().Digest())
}

// truncatedLog reports a settled cursor without the actions backing it, as a
// durable log would after its rows were purged out from under it.
type truncatedLog struct {
	actionlog.Log
	cursor uint64
}

func (l *truncatedLog) Cursor(context.Context) (uint64, error) { return l.cursor, nil }

func (l *truncatedLog) Settled(context.Context) ([]models.Action, error) { return nil, nil }

func TestNewFromLogRejectsUnreconstructibleCursor(t *testing.T) {
	log := &truncatedLog{Log: actionlog.NewMemory(), cursor: 7}

	_, err := state.NewFromLog(context.Background(), log, state.Genesis{Admin: "B62qAdmin", Premium: 2})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot rebuild state")
}

func TestScalarLookupAndApply(t *testing.T) {
	s, _ := newStore(t)
	snap := s.Snapshot()

	v, ok := snap.Lookup(models.FieldPremium, nil)
	require.True(t, ok)
	assert.Equal(t, models.EncodePremium(2), v)

	snap.Apply(models.Action{Field: models.FieldPaused, To: models.EncodePaused(true)})
	v, ok = snap.Lookup(models.FieldPaused, nil)
	require.True(t, ok)
	assert.Equal(t, models.EncodePaused(true), v)

	_, ok = snap.Lookup(models.FieldRegistry, nil)
	assert.False(t, ok)
}
