package cart

import (
	"context"
	"log/slog"

	"github.com/lumora/storefront-api/internal/entity"
)

// Recoverer replaces a broken cart with a fresh one and replays the mutation
// that originally failed. It is the only code path allowed to create a cart
// explicitly, and it is bounded to one attempt per orchestrated call: a
// failure during or after recovery surfaces as RECOVERY_FAILED, never a
// second recreation.
//
// Recovery runs nested inside an already-guarded orchestrator call, so it
// talks to the gateway directly instead of going back through the
// single-flight guard.
type Recoverer struct {
	gw    Gateway
	guard *ContextGuard
	opts  Options
	log   *slog.Logger
}

func NewRecoverer(gw Gateway, guard *ContextGuard, opts Options, log *slog.Logger) *Recoverer {
	return &Recoverer{gw: gw, guard: guard, opts: opts.withDefaults(), log: log}
}

// Run recreates the cart and replays the failed closure against it.
// original carries the errors that triggered recovery; they are wrapped into
// any RECOVERY_FAILED result so callers see the whole story.
func (r *Recoverer) Run(ctx context.Context, buyer entity.Buyer, op Op, closure Closure, expectedDelta *int, original []MutationError) MutationResult {
	fresh, res := r.createFresh(ctx, buyer, original)
	if fresh == nil {
		return res
	}

	before := SnapshotOf(fresh)
	if err := closure(ctx, fresh.ID); err != nil {
		return recoveryFailed("replay dispatch failed", err, original)
	}
	if err := awaitIdle(ctx, r.gw, r.opts); err != nil {
		return recoveryFailed("replay did not settle", err, original)
	}
	after, err := r.gw.Current(ctx)
	if err != nil {
		return recoveryFailed("read cart after replay", err, original)
	}

	v := Classify(op, fresh.ID, r.gw.LastErrors(), before, SnapshotOf(after), expectedDelta)
	if !v.OK {
		return recoveryFailed("replay still failed", nil, v.Errors)
	}

	r.log.Info("cart recovered", "new_cart_id", fresh.ID, "op", string(op))
	return MutationResult{Success: true, Cart: after, WasRecovered: true, NewCartID: fresh.ID}
}

// CreateOnly recreates the cart without replaying anything. Backs the
// explicit "start a new bag" action.
func (r *Recoverer) CreateOnly(ctx context.Context, buyer entity.Buyer) MutationResult {
	fresh, res := r.createFresh(ctx, buyer, nil)
	if fresh == nil {
		return res
	}
	return MutationResult{Success: true, Cart: fresh, WasRecovered: true, NewCartID: fresh.ID}
}

// createFresh clears the stored context, creates a replacement cart, and
// persists the new context. Returns (nil, failure) when no usable cart came
// back.
func (r *Recoverer) createFresh(ctx context.Context, buyer entity.Buyer, original []MutationError) (*entity.Cart, MutationResult) {
	if err := r.guard.Clear(ctx); err != nil {
		return nil, recoveryFailed("clear cart context", err, original)
	}

	fresh, remoteErrs, err := r.gw.CreateCart(ctx, buyer)
	if err != nil {
		return nil, recoveryFailed("cart creation failed", err, original)
	}
	if len(remoteErrs) > 0 || fresh == nil || fresh.ID == "" {
		return nil, recoveryFailed("cart creation yielded no usable cart", nil, original)
	}

	if err := r.guard.Persist(ctx, buyer); err != nil {
		// The cart exists; a lost context record only means the next check
		// treats it as first-ever. Log and continue.
		r.log.Warn("persist cart context after recovery", "err", err)
	}
	return fresh, MutationResult{}
}

func recoveryFailed(msg string, cause error, wrapped []MutationError) MutationResult {
	errs := make([]MutationError, 0, len(wrapped)+1)
	errs = append(errs, MutationError{Kind: KindRecoveryFailed, Message: msg, Cause: cause})
	errs = append(errs, wrapped...)
	return failure(errs...)
}
