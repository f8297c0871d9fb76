package settlement

import (
	"context"
	"log/slog"
	"time"

	"zkns/internal/registry/actionlog"
	pkgerrors "zkns/pkg/errors"
)

// Settler is the daemon's view of the machine.
type Settler interface {
	Settle(ctx context.Context) (Result, error)
}

// Daemon triggers settlement on a timer and whenever enough actions pile up.
// Failures never crash the loop: the daemon backs off and retries, and a
// stale-commitment loss retries immediately since the batch must simply be
// recomputed against the advanced state.
type Daemon struct {
	machine  Settler
	log      actionlog.Log
	logger   *slog.Logger
	interval time.Duration
	// retryWait is the sleep after a failed attempt before the next one.
	retryWait time.Duration
	// threshold short-circuits the timer once this many actions are pending.
	// Zero disables the threshold path.
	threshold int
	kick      chan struct{}
}

// NewDaemon builds the settlement loop around a machine.
func NewDaemon(machine Settler, log actionlog.Log, logger *slog.Logger, interval, retryWait time.Duration, threshold int) *Daemon {
	return &Daemon{
		machine:   machine,
		log:       log,
		logger:    logger,
		interval:  interval,
		retryWait: retryWait,
		threshold: threshold,
		kick:      make(chan struct{}, 1),
	}
}

// Notify tells the daemon an action was appended. Non-blocking; coalesces
// into at most one queued wakeup.
func (d *Daemon) Notify() {
	select {
	case d.kick <- struct{}{}:
	default:
	}
}

// Run drives the loop until ctx is cancelled. It returns ctx.Err() on
// shutdown; recoverable settlement errors are logged and retried, never
// returned.
func (d *Daemon) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			d.attempt(ctx)
		case <-d.kick:
			if d.overThreshold(ctx) {
				d.attempt(ctx)
			}
		}
	}
}

func (d *Daemon) overThreshold(ctx context.Context) bool {
	if d.threshold <= 0 {
		return false
	}
	n, err := d.log.PendingCount(ctx)
	if err != nil {
		d.logger.ErrorContext(ctx, "count pending actions", "error", err)
		return false
	}
	return n >= d.threshold
}

// attempt runs settlement cycles until the pending log drains or an attempt
// fails. A stale commitment retries once immediately with a fresh batch; any
// other failure waits out the retry interval first.
func (d *Daemon) attempt(ctx context.Context) {
	staleRetries := 0
	for {
		res, err := d.machine.Settle(ctx)
		if err == nil {
			if res.Applied == 0 {
				return
			}
			// Keep draining: more actions may exceed one proof's capacity.
			staleRetries = 0
			continue
		}
		if ctx.Err() != nil {
			return
		}
		switch pkgerrors.CodeOf(err) {
		case pkgerrors.CodeStaleCommitment:
			staleRetries++
			if staleRetries <= 3 {
				d.logger.WarnContext(ctx, "settlement lost commitment race, recollecting", "error", err)
				continue
			}
			d.logger.WarnContext(ctx, "repeated stale commitments, backing off", "error", err)
		case pkgerrors.CodePreconditionViolated:
			// The conflicting action needs operator attention or a reorder;
			// retrying immediately would fail the same way.
			d.logger.ErrorContext(ctx, "settlement blocked on precondition violation", "error", err)
		default:
			d.logger.WarnContext(ctx, "settlement attempt failed, will retry", "error", err)
		}
		select {
		case <-ctx.Done():
		case <-time.After(d.retryWait):
		}
		return
	}
}
