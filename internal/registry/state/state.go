// Package state is the offchain state store: the last-settled view of every
// declared field plus the queue of pending updates. Reads always observe the
// last-settled commitment; writes are queued as actions and become visible
// only after a settlement applies them. Each Store is an explicit instance
// owned by one deployed contract, never a process-wide singleton.
package state

import (
	"context"
	"sync"

	"golang.org/x/crypto/blake2b"

	"zkns/internal/ledger"
	"zkns/internal/merkle"
	"zkns/internal/namekey"
	"zkns/internal/registry/actionlog"
	"zkns/internal/registry/models"
	pkgerrors "zkns/pkg/errors"
)

// The commitment carries one root per declared field; both packages must
// agree on the count.
var _ [ledger.NumFields]struct{} = [models.NumFields]struct{}{}

// Genesis fixes the scalar fields a fresh deployment starts with. Seeding the
// admin here avoids a bootstrap hole where ChangeAdmin has no admin to check
// against.
type Genesis struct {
	Admin   models.PublicKey
	Premium uint64
}

// Store holds last-settled views and queues updates onto the action log.
// Reads are cheap under a read lock; only ApplySettled takes the write lock.
type Store struct {
	log actionlog.Log

	mu         sync.RWMutex
	registry   *merkle.Map
	scalars    [models.NumFields][]byte // index 0 (registry) unused
	commitment ledger.Commitment
}

// New builds a store whose committed state is the genesis configuration.
func New(log actionlog.Log, genesis Genesis) *Store {
	s := &Store{
		log:      log,
		registry: merkle.NewMap(),
	}
	s.scalars[models.FieldPremium] = models.EncodePremium(genesis.Premium)
	s.scalars[models.FieldPaused] = models.EncodePaused(false)
	s.scalars[models.FieldAdmin] = models.EncodeAdmin(genesis.Admin)
	s.commitment = commitmentFrom(s.registry, s.scalars, 0)
	return s
}

// NewFromLog builds a store and rebuilds its last-settled views from the
// log's settled prefix. A durable log whose cursor is ahead of its retained
// actions cannot be reconstructed; starting from genesis anyway would wedge
// every pending action whose precondition references settled state, so that
// is a hard error.
func NewFromLog(ctx context.Context, log actionlog.Log, genesis Genesis) (*Store, error) {
	s := New(log, genesis)

	cursor, err := log.Cursor(ctx)
	if err != nil {
		return nil, err
	}
	if cursor == 0 {
		return s, nil
	}

	settled, err := log.Settled(ctx)
	if err != nil {
		return nil, err
	}
	var last uint64
	for _, a := range settled {
		if a.Seq <= last {
			return nil, pkgerrors.Newf(pkgerrors.CodeInternal,
				"settled log out of order: action %d after %d", a.Seq, last)
		}
		last = a.Seq
		apply(s.registry, &s.scalars, a)
	}
	if last != cursor {
		return nil, pkgerrors.Newf(pkgerrors.CodeInternal,
			"settled cursor %d but retained actions end at %d, cannot rebuild state", cursor, last)
	}
	s.commitment = commitmentFrom(s.registry, s.scalars, cursor)
	return s, nil
}

// Commitment returns the last-settled commitment.
func (s *Store) Commitment() ledger.Commitment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.commitment
}

// Record reads the last-settled record for a name. Pending actions are never
// consulted.
func (s *Store) Record(name namekey.Key) (models.Record, bool, error) {
	s.mu.RLock()
	raw, ok := s.registry.Get(name)
	s.mu.RUnlock()
	if !ok {
		return models.Record{}, false, nil
	}
	rec, err := models.DecodeRecord(raw)
	if err != nil {
		return models.Record{}, false, err
	}
	return rec, true, nil
}

// Premium reads the last-settled registration fee.
func (s *Store) Premium() (uint64, error) {
	s.mu.RLock()
	raw := s.scalars[models.FieldPremium]
	s.mu.RUnlock()
	return models.DecodePremium(raw)
}

// Paused reads the last-settled pause flag.
func (s *Store) Paused() (bool, error) {
	s.mu.RLock()
	raw := s.scalars[models.FieldPaused]
	s.mu.RUnlock()
	return models.DecodePaused(raw)
}

// Admin reads the last-settled admin key.
func (s *Store) Admin() models.PublicKey {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return models.DecodeAdmin(s.scalars[models.FieldAdmin])
}

// Value reads the raw last-settled value of any field slot.
func (s *Store) Value(field models.FieldID, key *namekey.Key) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return lookup(s.registry, s.scalars, field, key)
}

// QueueUpdate appends an update intent tagged with its precondition. It never
// fails for a stale `from`: that check happens during settlement replay, so
// callers get an immediate return without waiting on consensus.
func (s *Store) QueueUpdate(ctx context.Context, field models.FieldID, key *namekey.Key, from, to []byte) (models.Action, error) {
	a := models.Action{Field: field, Key: key, From: from, To: to}
	seq, err := s.log.Append(ctx, a)
	if err != nil {
		return models.Action{}, err
	}
	a.Seq = seq
	return a, nil
}

// Snapshot deep-copies the last-settled views for settlement replay. Replay
// mutates the snapshot only; an aborted settlement leaves the store
// untouched.
func (s *Store) Snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := &Snapshot{
		registry:   s.registry.Snapshot(),
		commitment: s.commitment,
	}
	for i, v := range s.scalars {
		if v != nil {
			snap.scalars[i] = append([]byte(nil), v...)
		}
	}
	return snap
}

// ApplySettled advances the last-settled views with a batch that already
// passed replay validation and ledger acceptance. It is the only mutation
// path into the committed state.
func (s *Store) ApplySettled(batch []models.Action, newCommitment ledger.Commitment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range batch {
		apply(s.registry, &s.scalars, a)
	}
	s.commitment = newCommitment
}

// Snapshot is a mutable working copy of the per-field views used during
// settlement replay.
type Snapshot struct {
	registry   *merkle.Map
	scalars    [models.NumFields][]byte
	commitment ledger.Commitment
}

// Commitment returns the commitment the snapshot was taken at.
func (sn *Snapshot) Committed() ledger.Commitment { return sn.commitment }

// Lookup reads the current working value of a field slot.
func (sn *Snapshot) Lookup(field models.FieldID, key *namekey.Key) ([]byte, bool) {
	return lookup(sn.registry, sn.scalars, field, key)
}

// Apply writes an action's proposed value into the working views.
func (sn *Snapshot) Apply(a models.Action) {
	apply(sn.registry, &sn.scalars, a)
}

// Commitment derives the commitment summarizing the working views at the
// given cursor. Pure function of contents (same views, same cursor, same
// commitment).
func (sn *Snapshot) Commitment(cursor uint64) ledger.Commitment {
	return commitmentFrom(sn.registry, sn.scalars, cursor)
}

func lookup(reg *merkle.Map, scalars [models.NumFields][]byte, field models.FieldID, key *namekey.Key) ([]byte, bool) {
	if field == models.FieldRegistry {
		if key == nil {
			return nil, false
		}
		return reg.Get(*key)
	}
	v := scalars[field]
	if v == nil {
		return nil, false
	}
	return append([]byte(nil), v...), true
}

func apply(reg *merkle.Map, scalars *[models.NumFields][]byte, a models.Action) {
	if a.Field == models.FieldRegistry {
		if a.Key == nil {
			return
		}
		if a.To == nil {
			reg.Delete(*a.Key)
			return
		}
		reg.Set(*a.Key, a.To)
		return
	}
	if a.To == nil {
		scalars[a.Field] = nil
		return
	}
	scalars[a.Field] = append([]byte(nil), a.To...)
}

var scalarTag = []byte("zkns.scalar.v1")

func commitmentFrom(reg *merkle.Map, scalars [models.NumFields][]byte, cursor uint64) ledger.Commitment {
	var c ledger.Commitment
	c.Roots[models.FieldRegistry] = reg.Root()
	for f := models.FieldPremium; f < models.NumFields; f++ {
		c.Roots[f] = scalarRoot(f, scalars[f])
	}
	c.Cursor = cursor
	return c
}

func scalarRoot(field models.FieldID, value []byte) [32]byte {
	if value == nil {
		return [32]byte{}
	}
	h, _ := blake2b.New256(nil)
	h.Write(scalarTag)
	h.Write([]byte{byte(field)})
	h.Write(value)
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}
