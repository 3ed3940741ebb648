package cart

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/lumora/storefront-api/internal/entity"
)

// Options tunes the wait-until-idle loop and recovery behavior.
type Options struct {
	// AutoRecover enables recreate-and-replay after a classified failure.
	AutoRecover bool
	// InitialDelay is slept before the first status poll so a just-dispatched
	// mutation is not observed as already idle.
	InitialDelay time.Duration
	// PollInterval is the fixed spacing between status polls.
	PollInterval time.Duration
	// WaitTimeout bounds the idle wait; expiry surfaces as UNKNOWN_ERROR.
	WaitTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.InitialDelay <= 0 {
		o.InitialDelay = 10 * time.Millisecond
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 50 * time.Millisecond
	}
	if o.WaitTimeout <= 0 {
		o.WaitTimeout = 10 * time.Second
	}
	return o
}

// Closure performs one remote mutation against the given cart id. The
// orchestrator invokes it against the current cart; the recoverer replays it
// against a freshly created one.
type Closure func(ctx context.Context, cartID string) error

var errStillUpdating = errors.New("gateway did not return to idle before the wait timeout")

// Orchestrator is the single entry point for cart mutations. It serializes
// them (single-flight, fail fast), snapshots state, waits for the gateway to
// settle, classifies the outcome, and hands failures to the Recoverer.
type Orchestrator struct {
	gw       Gateway
	guard    *ContextGuard
	rec      *Recoverer
	obs      Observer
	opts     Options
	log      *slog.Logger
	inFlight atomic.Bool
}

func NewOrchestrator(gw Gateway, guard *ContextGuard, rec *Recoverer, obs Observer, opts Options, log *slog.Logger) *Orchestrator {
	return &Orchestrator{
		gw:    gw,
		guard: guard,
		rec:   rec,
		obs:   obs,
		opts:  opts.withDefaults(),
		log:   log,
	}
}

// AddLines orchestrates an add of new merchandise lines.
func (o *Orchestrator) AddLines(ctx context.Context, buyer entity.Buyer, lines []LineInput) MutationResult {
	delta := AddDelta(lines)
	return o.Execute(ctx, buyer, OpAdd, func(ctx context.Context, cartID string) error {
		return o.gw.AddLines(ctx, cartID, lines)
	}, &delta)
}

// UpdateLines orchestrates quantity updates on existing lines. Updates carry
// no expected delta; see Classify.
func (o *Orchestrator) UpdateLines(ctx context.Context, buyer entity.Buyer, lines []LineUpdate) MutationResult {
	return o.Execute(ctx, buyer, OpUpdate, func(ctx context.Context, cartID string) error {
		return o.gw.UpdateLines(ctx, cartID, lines)
	}, nil)
}

// RemoveLines orchestrates a removal of lines by id.
func (o *Orchestrator) RemoveLines(ctx context.Context, buyer entity.Buyer, lineIDs []string) MutationResult {
	delta := RemoveDelta(lineIDs)
	return o.Execute(ctx, buyer, OpRemove, func(ctx context.Context, cartID string) error {
		return o.gw.RemoveLines(ctx, cartID, lineIDs)
	}, &delta)
}

// Execute runs one orchestrated mutation end to end and returns an
// authoritative result. It never panics across this boundary; every path
// yields a MutationResult.
func (o *Orchestrator) Execute(ctx context.Context, buyer entity.Buyer, op Op, closure Closure, expectedDelta *int) MutationResult {
	if !o.inFlight.CompareAndSwap(false, true) {
		return failure(unknownErr(busyMessage, nil))
	}
	defer o.inFlight.Store(false)

	res := o.execute(ctx, buyer, op, closure, expectedDelta)
	o.publish(res)
	return res
}

// CreateNew recreates the cart on explicit user request, under the same
// single-flight guard as ordinary mutations. No replay.
func (o *Orchestrator) CreateNew(ctx context.Context, buyer entity.Buyer) MutationResult {
	if !o.inFlight.CompareAndSwap(false, true) {
		return failure(unknownErr(busyMessage, nil))
	}
	defer o.inFlight.Store(false)

	res := o.recover(ctx, func(ctx context.Context) MutationResult {
		return o.rec.CreateOnly(ctx, buyer)
	})
	o.publish(res)
	return res
}

func (o *Orchestrator) execute(ctx context.Context, buyer entity.Buyer, op Op, closure Closure, expectedDelta *int) MutationResult {
	ok, stored, err := o.guard.Match(ctx, buyer)
	if err != nil {
		return failure(unknownErr("context check failed", err))
	}
	if !ok {
		mismatch := MismatchError(stored, buyer)
		if !o.opts.AutoRecover {
			return failure(mismatch)
		}
		o.log.Info("cart context mismatch, recreating",
			"stored_country", stored.CountryCode, "current_country", buyer.CountryCode)
		return o.recover(ctx, func(ctx context.Context) MutationResult {
			return o.rec.Run(ctx, buyer, op, closure, expectedDelta, []MutationError{mismatch})
		})
	}

	cur, err := o.gw.Current(ctx)
	if err != nil {
		return failure(unknownErr("read cart state", err))
	}
	before := SnapshotOf(cur)
	cartID := ""
	if cur != nil {
		cartID = cur.ID
	}

	if err := closure(ctx, cartID); err != nil {
		return o.failOrRecover(ctx, buyer, op, closure, expectedDelta,
			[]MutationError{unknownErr("dispatch mutation", err)})
	}

	// The transport does not signal completion; wait until the gateway is
	// observably idle before classifying anything.
	if err := awaitIdle(ctx, o.gw, o.opts); err != nil {
		return failure(unknownErr("mutation did not settle", err))
	}

	after, err := o.gw.Current(ctx)
	if err != nil {
		return failure(unknownErr("read cart state after mutation", err))
	}

	v := Classify(op, cartID, o.gw.LastErrors(), before, SnapshotOf(after), expectedDelta)
	if !v.OK {
		o.log.Warn("mutation classified as failed", "op", string(op), "kind", string(v.Errors[0].Kind))
		return o.failOrRecover(ctx, buyer, op, closure, expectedDelta, v.Errors)
	}

	// First-ever cart: the gateway lazily created it during this mutation, so
	// record its context now.
	if cur == nil && after != nil {
		if err := o.guard.Persist(ctx, buyer); err != nil {
			o.log.Warn("persist cart context", "err", err)
		}
	}
	return success(after)
}

func (o *Orchestrator) failOrRecover(ctx context.Context, buyer entity.Buyer, op Op, closure Closure, expectedDelta *int, errs []MutationError) MutationResult {
	if !o.opts.AutoRecover {
		return failure(errs...)
	}
	return o.recover(ctx, func(ctx context.Context) MutationResult {
		return o.rec.Run(ctx, buyer, op, closure, expectedDelta, errs)
	})
}

// recover flips the recovering flag around the nested recovery call so
// observers can show a transient indicator.
func (o *Orchestrator) recover(ctx context.Context, run func(ctx context.Context) MutationResult) MutationResult {
	o.obs.RecoveringChanged(true)
	defer o.obs.RecoveringChanged(false)
	return run(ctx)
}

func (o *Orchestrator) publish(res MutationResult) {
	if res.Success {
		o.obs.CartChanged(res.Cart)
		o.obs.ErrorsChanged(nil)
		return
	}
	o.obs.ErrorsChanged(res.Errors)
}

// awaitIdle blocks until the gateway reports StatusIdle: a short initial
// delay (a just-dispatched operation may not have flipped the flag yet), then
// fixed-interval polling, bounded by Options.WaitTimeout.
func awaitIdle(ctx context.Context, gw Gateway, opts Options) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(opts.InitialDelay):
	}

	deadline := time.Now().Add(opts.WaitTimeout)
	ticker := time.NewTicker(opts.PollInterval)
	defer ticker.Stop()

	for {
		if gw.Status() == StatusIdle {
			return nil
		}
		if time.Now().After(deadline) {
			return errStillUpdating
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
