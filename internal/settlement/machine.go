// Package settlement reconciles the pending action log into the on-ledger
// commitment. One cycle drains a bounded batch, replays it in log order
// against the last-settled views, checks every action's optimistic
// precondition, proves the transition and submits it. The whole cycle is
// all-or-nothing: any violation, prover failure or lost submission race
// leaves the log and the committed views exactly as they were.
package settlement

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"zkns/internal/ledger"
	"zkns/internal/platform/metrics"
	"zkns/internal/proof"
	"zkns/internal/registry/actionlog"
	"zkns/internal/registry/models"
	"zkns/internal/registry/state"
	"zkns/internal/settlement/events"
	pkgerrors "zkns/pkg/errors"
)

// Phase names the machine's position inside a cycle. Exposed for status
// reporting; transitions happen only inside Settle.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseCollecting Phase = "collecting_batch"
	PhaseReplaying  Phase = "replaying"
	PhaseProving    Phase = "proving"
	PhaseSubmitting Phase = "submitting"
)

// Result summarizes a successful cycle.
type Result struct {
	Applied int
	Old     ledger.Commitment
	New     ledger.Commitment
}

// Machine drives settlement cycles. Settle is the single critical section:
// two concurrent calls serialize on the internal mutex, so at most one proof
// per stored commitment is ever in flight from this process.
type Machine struct {
	log     actionlog.Log
	state   *state.Store
	backend proof.Backend
	chain   ledger.Ledger
	pub     events.Publisher
	metrics *metrics.Metrics
	logger  *slog.Logger
	tracer  trace.Tracer

	batchLimit int

	mu        sync.Mutex
	phase     Phase
	phaseMu   sync.RWMutex
	onSettled []func(ctx context.Context, batch []models.Action)
}

// Config wires a Machine.
type Config struct {
	Log     actionlog.Log
	State   *state.Store
	Backend proof.Backend
	Ledger  ledger.Ledger
	Events  events.Publisher
	Metrics *metrics.Metrics
	Logger  *slog.Logger
	// BatchLimit caps actions per cycle; the proving backend bounds how many
	// actions fit in one proof.
	BatchLimit int
}

// New builds a settlement machine.
func New(cfg Config) *Machine {
	pub := cfg.Events
	if pub == nil {
		pub = events.Noop{}
	}
	return &Machine{
		log:        cfg.Log,
		state:      cfg.State,
		backend:    cfg.Backend,
		chain:      cfg.Ledger,
		pub:        pub,
		metrics:    cfg.Metrics,
		logger:     cfg.Logger,
		tracer:     otel.Tracer("zkns/settlement"),
		batchLimit: cfg.BatchLimit,
		phase:      PhaseIdle,
	}
}

// OnSettled registers a hook invoked after a batch lands, with the applied
// actions. Used for cache invalidation; hooks must not block for long.
func (m *Machine) OnSettled(fn func(ctx context.Context, batch []models.Action)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onSettled = append(m.onSettled, fn)
}

// Phase reports the machine's current phase.
func (m *Machine) Phase() Phase {
	m.phaseMu.RLock()
	defer m.phaseMu.RUnlock()
	return m.phase
}

func (m *Machine) setPhase(p Phase) {
	m.phaseMu.Lock()
	m.phase = p
	m.phaseMu.Unlock()
}

// Settle runs one settlement cycle. An empty log is a successful no-op that
// leaves the commitment unchanged. On any error the pending log and the
// last-settled views are untouched; the caller decides when to retry.
func (m *Machine) Settle(ctx context.Context) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	defer m.setPhase(PhaseIdle)

	ctx, span := m.tracer.Start(ctx, "settlement.cycle")
	defer span.End()
	started := time.Now()

	res, err := m.settle(ctx, span)
	m.metrics.SettleDuration.Observe(time.Since(started).Seconds())
	m.observePending(ctx)
	return res, err
}

func (m *Machine) settle(ctx context.Context, span trace.Span) (Result, error) {
	m.setPhase(PhaseCollecting)
	batch, err := m.log.Pending(ctx, m.batchLimit)
	if err != nil {
		m.metrics.SettlementCycles.WithLabelValues(metrics.ResultError).Inc()
		return Result{}, pkgerrors.Wrap(err, pkgerrors.CodeInternal, "collect batch")
	}
	if len(batch) == 0 {
		m.metrics.SettlementCycles.WithLabelValues(metrics.ResultEmpty).Inc()
		return Result{Old: m.state.Commitment(), New: m.state.Commitment()}, nil
	}
	span.SetAttributes(attribute.Int("batch.size", len(batch)))

	m.setPhase(PhaseReplaying)
	snap := m.state.Snapshot()
	old := snap.Committed()
	newC, err := Replay(snap, batch)
	if err != nil {
		m.metrics.SettlementCycles.WithLabelValues(metrics.ResultPrecondition).Inc()
		m.publish(ctx, events.Event{
			Kind:         events.KindPreconditionViolated,
			OldDigest:    old.ShortDigest(),
			Cursor:       old.Cursor,
			Actions:      len(batch),
			OffendingSeq: offendingSeq(err),
			Error:        err.Error(),
			At:           time.Now().UTC(),
		})
		m.logger.WarnContext(ctx, "settlement aborted on precondition violation",
			"error", err,
			"batch_size", len(batch),
		)
		return Result{}, err
	}

	m.setPhase(PhaseProving)
	proveStart := time.Now()
	prf, err := m.backend.Prove(ctx, proof.Transition{Old: old, New: newC, Batch: batch})
	m.metrics.ProveDuration.Observe(time.Since(proveStart).Seconds())
	if err != nil {
		m.metrics.SettlementCycles.WithLabelValues(metrics.ResultProofError).Inc()
		m.publish(ctx, events.Event{
			Kind:      events.KindProofFailed,
			OldDigest: old.ShortDigest(),
			Cursor:    old.Cursor,
			Actions:   len(batch),
			Error:     err.Error(),
			At:        time.Now().UTC(),
		})
		m.logger.WarnContext(ctx, "proof generation failed, batch kept pending", "error", err)
		return Result{}, err
	}

	m.setPhase(PhaseSubmitting)
	if err := m.chain.Submit(ctx, prf); err != nil {
		if pkgerrors.HasCode(err, pkgerrors.CodeStaleCommitment) {
			// A prior cycle may have died between Submit and MarkSettled. If
			// the stored commitment is exactly our target, the transition
			// already landed and only the local bookkeeping is missing.
			if stored, cerr := m.chain.Commitment(ctx); cerr == nil && stored.Digest() == newC.Digest() {
				return m.finalize(ctx, batch, old, newC)
			}
			m.metrics.SettlementCycles.WithLabelValues(metrics.ResultStale).Inc()
			m.publish(ctx, events.Event{
				Kind:      events.KindStaleCommitment,
				OldDigest: old.ShortDigest(),
				Cursor:    old.Cursor,
				Actions:   len(batch),
				Error:     err.Error(),
				At:        time.Now().UTC(),
			})
			m.logger.WarnContext(ctx, "proof lost submission race, recollect against new commitment")
			return Result{}, err
		}
		m.metrics.SettlementCycles.WithLabelValues(metrics.ResultError).Inc()
		return Result{}, err
	}

	return m.finalize(ctx, batch, old, newC)
}

// finalize advances the log cursor, applies the batch to the settled views
// and emits the settled event. Split out so a cycle that lost its cursor
// write after a successful submission can complete on the next attempt.
func (m *Machine) finalize(ctx context.Context, batch []models.Action, old, newC ledger.Commitment) (Result, error) {
	if err := m.log.MarkSettled(ctx, newC.Cursor); err != nil {
		// The ledger already advanced; the next cycle recomputes the same
		// transition and lands here again until the cursor write succeeds.
		m.metrics.SettlementCycles.WithLabelValues(metrics.ResultError).Inc()
		return Result{}, pkgerrors.Wrap(err, pkgerrors.CodeInternal, "advance log cursor")
	}
	m.state.ApplySettled(batch, newC)

	m.metrics.SettlementCycles.WithLabelValues(metrics.ResultSettled).Inc()
	m.metrics.ActionsSettled.Add(float64(len(batch)))
	m.publish(ctx, events.Event{
		Kind:      events.KindBatchSettled,
		OldDigest: old.ShortDigest(),
		NewDigest: newC.ShortDigest(),
		Cursor:    newC.Cursor,
		Actions:   len(batch),
		At:        time.Now().UTC(),
	})
	for _, fn := range m.onSettled {
		fn(ctx, batch)
	}
	m.logger.InfoContext(ctx, "batch settled",
		"actions", len(batch),
		"old", old.ShortDigest(),
		"new", newC.ShortDigest(),
		"cursor", newC.Cursor,
	)
	return Result{Applied: len(batch), Old: old, New: newC}, nil
}

func (m *Machine) publish(ctx context.Context, event events.Event) {
	if err := m.pub.Publish(ctx, event); err != nil {
		m.logger.ErrorContext(ctx, "publish settlement event", "kind", event.Kind, "error", err)
	}
}

func (m *Machine) observePending(ctx context.Context) {
	if n, err := m.log.PendingCount(ctx); err == nil {
		m.metrics.PendingActions.Set(float64(n))
	}
}
