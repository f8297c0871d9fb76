// Package service holds the registry business rules that originate actions.
// Every guard reads the last-settled view only: a pending-but-unsettled
// action is invisible here, so a register immediately followed by a transfer
// of the same name fails NotOwned until a settlement lands. That is the
// intended consistency model, not a bug.
package service

import (
	"context"
	"log/slog"

	"zkns/internal/namekey"
	"zkns/internal/platform/metrics"
	"zkns/internal/registry/models"
	"zkns/internal/registry/state"
	pkgerrors "zkns/pkg/errors"
)

// Guard rejection errors. None of them touch the action log.
var (
	ErrAlreadyRegistered = pkgerrors.New(pkgerrors.CodeAlreadyRegistered, "name is already registered")
	ErrNotOwned          = pkgerrors.New(pkgerrors.CodeNotOwned, "name has no current record")
	ErrNotOwner          = pkgerrors.New(pkgerrors.CodeNotOwner, "caller does not own this name")
	ErrNotAdmin          = pkgerrors.New(pkgerrors.CodeNotAdmin, "caller is not the admin")
	ErrPaused            = pkgerrors.New(pkgerrors.CodePaused, "registrations are paused")
	ErrNotFound          = pkgerrors.New(pkgerrors.CodeNotFound, "name not found")
)

// PaymentCollector charges the registration premium. The actual fee transfer
// runs on external payment rails.
type PaymentCollector interface {
	Collect(ctx context.Context, payer models.PublicKey, amount uint64) error
}

// NoopCollector accepts every payment. Used until real payment plumbing is
// wired.
type NoopCollector struct{}

func (NoopCollector) Collect(context.Context, models.PublicKey, uint64) error { return nil }

// RecordCache is an optional read-through cache over resolved records.
type RecordCache interface {
	Get(ctx context.Context, name string) (models.Record, bool, error)
	Set(ctx context.Context, name string, rec models.Record) error
	Invalidate(ctx context.Context, names []string) error
}

// Notifier lets the service nudge the settlement daemon after appends.
type Notifier interface {
	Notify()
}

// Service exposes the registry operations.
type Service struct {
	state    *state.Store
	payments PaymentCollector
	cache    RecordCache
	notifier Notifier
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// New builds the registry service. cache and notifier may be nil.
func New(st *state.Store, payments PaymentCollector, cache RecordCache, notifier Notifier, logger *slog.Logger, m *metrics.Metrics) *Service {
	if payments == nil {
		payments = NoopCollector{}
	}
	return &Service{
		state:    st,
		payments: payments,
		cache:    cache,
		notifier: notifier,
		logger:   logger,
		metrics:  m,
	}
}

// Register claims a free name for rec.Owner, charging the current premium.
// The record becomes resolvable only after the next settlement.
func (s *Service) Register(ctx context.Context, caller models.PublicKey, name string, rec models.Record) error {
	key, err := namekey.Encode(name)
	if err != nil {
		return err
	}
	paused, err := s.state.Paused()
	if err != nil {
		return pkgerrors.Wrap(err, pkgerrors.CodeInternal, "read pause flag")
	}
	if paused {
		return s.reject(ErrPaused)
	}
	if _, exists, err := s.state.Record(key); err != nil {
		return pkgerrors.Wrap(err, pkgerrors.CodeInternal, "read record")
	} else if exists {
		return s.reject(ErrAlreadyRegistered)
	}

	rec.Owner = caller
	premium, err := s.state.Premium()
	if err != nil {
		return pkgerrors.Wrap(err, pkgerrors.CodeInternal, "read premium")
	}
	if err := s.payments.Collect(ctx, caller, premium); err != nil {
		return pkgerrors.Wrap(err, pkgerrors.CodeInternal, "collect premium")
	}

	return s.queue(ctx, models.FieldRegistry, &key, nil, models.EncodeRecord(rec))
}

// SetRecord replaces the record under a name the caller owns, keeping the
// owner.
func (s *Service) SetRecord(ctx context.Context, caller models.PublicKey, name string, rec models.Record) error {
	key, current, err := s.owned(caller, name)
	if err != nil {
		return err
	}
	rec.Owner = current.Owner
	return s.queue(ctx, models.FieldRegistry, &key, models.EncodeRecord(current), models.EncodeRecord(rec))
}

// TransferOwnership hands the name to newOwner, preserving the rest of the
// record.
func (s *Service) TransferOwnership(ctx context.Context, caller models.PublicKey, name string, newOwner models.PublicKey) error {
	key, current, err := s.owned(caller, name)
	if err != nil {
		return err
	}
	next := current
	next.Owner = newOwner
	return s.queue(ctx, models.FieldRegistry, &key, models.EncodeRecord(current), models.EncodeRecord(next))
}

// Resolve returns the last-settled record for a name.
func (s *Service) Resolve(ctx context.Context, name string) (models.Record, error) {
	key, err := namekey.Encode(name)
	if err != nil {
		return models.Record{}, err
	}
	if s.cache != nil {
		if rec, ok, err := s.cache.Get(ctx, name); err != nil {
			s.logger.WarnContext(ctx, "resolve cache read failed", "name", name, "error", err)
		} else if ok {
			s.metrics.CacheHits.Inc()
			return rec, nil
		}
		s.metrics.CacheMisses.Inc()
	}

	rec, ok, err := s.state.Record(key)
	if err != nil {
		return models.Record{}, pkgerrors.Wrap(err, pkgerrors.CodeInternal, "read record")
	}
	if !ok {
		return models.Record{}, ErrNotFound
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, name, rec); err != nil {
			s.logger.WarnContext(ctx, "resolve cache write failed", "name", name, "error", err)
		}
	}
	return rec, nil
}

// SetPremium queues a new registration fee. Admin only.
func (s *Service) SetPremium(ctx context.Context, caller models.PublicKey, premium uint64) error {
	if err := s.requireAdmin(caller); err != nil {
		return err
	}
	current, err := s.state.Premium()
	if err != nil {
		return pkgerrors.Wrap(err, pkgerrors.CodeInternal, "read premium")
	}
	return s.queue(ctx, models.FieldPremium, nil, models.EncodePremium(current), models.EncodePremium(premium))
}

// TogglePause queues a flip of the pause flag. Admin only.
func (s *Service) TogglePause(ctx context.Context, caller models.PublicKey) error {
	if err := s.requireAdmin(caller); err != nil {
		return err
	}
	current, err := s.state.Paused()
	if err != nil {
		return pkgerrors.Wrap(err, pkgerrors.CodeInternal, "read pause flag")
	}
	return s.queue(ctx, models.FieldPaused, nil, models.EncodePaused(current), models.EncodePaused(!current))
}

// ChangeAdmin queues a handover of the admin key. Admin only.
func (s *Service) ChangeAdmin(ctx context.Context, caller, newAdmin models.PublicKey) error {
	if err := s.requireAdmin(caller); err != nil {
		return err
	}
	return s.queue(ctx, models.FieldAdmin, nil, models.EncodeAdmin(s.state.Admin()), models.EncodeAdmin(newAdmin))
}

// Premium reads the last-settled registration fee.
func (s *Service) Premium(ctx context.Context) (uint64, error) {
	_ = ctx
	return s.state.Premium()
}

// Paused reads the last-settled pause flag.
func (s *Service) Paused(ctx context.Context) (bool, error) {
	_ = ctx
	return s.state.Paused()
}

// Admin reads the last-settled admin key.
func (s *Service) Admin(ctx context.Context) models.PublicKey {
	_ = ctx
	return s.state.Admin()
}

// InvalidateSettled drops cache entries for names touched by a settled batch.
// Wire it to the machine's OnSettled hook.
func (s *Service) InvalidateSettled(ctx context.Context, batch []models.Action) {
	if s.cache == nil {
		return
	}
	var names []string
	for _, a := range batch {
		if a.Field == models.FieldRegistry && a.Key != nil {
			names = append(names, namekey.Decode(*a.Key))
		}
	}
	if len(names) == 0 {
		return
	}
	if err := s.cache.Invalidate(ctx, names); err != nil {
		s.logger.WarnContext(ctx, "resolve cache invalidation failed", "error", err)
	}
}

func (s *Service) owned(caller models.PublicKey, name string) (namekey.Key, models.Record, error) {
	key, err := namekey.Encode(name)
	if err != nil {
		return namekey.Key{}, models.Record{}, err
	}
	current, ok, err := s.state.Record(key)
	if err != nil {
		return namekey.Key{}, models.Record{}, pkgerrors.Wrap(err, pkgerrors.CodeInternal, "read record")
	}
	if !ok {
		return namekey.Key{}, models.Record{}, s.reject(ErrNotOwned)
	}
	if current.Owner != caller {
		return namekey.Key{}, models.Record{}, s.reject(ErrNotOwner)
	}
	return key, current, nil
}

func (s *Service) requireAdmin(caller models.PublicKey) error {
	if s.state.Admin() != caller {
		return s.reject(ErrNotAdmin)
	}
	return nil
}

func (s *Service) queue(ctx context.Context, field models.FieldID, key *namekey.Key, from, to []byte) error {
	action, err := s.state.QueueUpdate(ctx, field, key, from, to)
	if err != nil {
		return pkgerrors.Wrap(err, pkgerrors.CodeInternal, "queue update")
	}
	s.metrics.ActionsAppended.Inc()
	if s.notifier != nil {
		s.notifier.Notify()
	}
	s.logger.DebugContext(ctx, "action queued",
		"field", field.String(),
		"seq", action.Seq,
	)
	return nil
}

func (s *Service) reject(err *pkgerrors.Error) error {
	s.metrics.GuardRejections.WithLabelValues(string(err.Code)).Inc()
	return err
}
