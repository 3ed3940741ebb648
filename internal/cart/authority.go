package cart

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/lumora/storefront-api/internal/entity"
)

// Authority is the single handle through which everything reads cart state
// and requests mutations for one session. UI-facing code never touches the
// gateway directly for writes; one logical cart state is observed everywhere.
type Authority struct {
	sessionID string
	gw        Gateway
	orch      *Orchestrator
	sinks     []ResultSink
	log       *slog.Logger

	mu         sync.RWMutex
	buyer      entity.Buyer
	cart       *entity.Cart
	lastErrors []MutationError
	recovering bool
	counts     map[string]int
	subs       []func()
}

// AuthorityConfig wires one session's cart stack. Gateway and ContextStore
// are required; everything else has workable defaults.
type AuthorityConfig struct {
	SessionID    string
	Buyer        entity.Buyer
	Gateway      Gateway
	ContextStore ContextStore
	Options      Options
	Sinks        []ResultSink
	Logger       *slog.Logger
}

// NewAuthority builds the full orchestration stack for one session. Panics on
// missing collaborators: constructing an authority without its gateway or
// store is a programming error, not a runtime condition.
func NewAuthority(cfg AuthorityConfig) *Authority {
	if cfg.Gateway == nil || cfg.ContextStore == nil {
		panic("cart: AuthorityConfig requires Gateway and ContextStore")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	a := &Authority{
		sessionID: cfg.SessionID,
		gw:        cfg.Gateway,
		sinks:     cfg.Sinks,
		log:       cfg.Logger.With("session_id", cfg.SessionID),
		buyer:     cfg.Buyer,
		counts:    map[string]int{},
	}
	guard := NewContextGuard(cfg.ContextStore, cfg.SessionID)
	rec := NewRecoverer(cfg.Gateway, guard, cfg.Options, a.log)
	a.orch = NewOrchestrator(cfg.Gateway, guard, rec, a, cfg.Options, a.log)
	return a
}

// SetBuyer updates the session's active locale. A change relative to the
// stored cart context is caught by the guard on the next mutation.
func (a *Authority) SetBuyer(b entity.Buyer) {
	a.mu.Lock()
	a.buyer = b
	a.mu.Unlock()
}

// AddToCart adds quantity units of a merchandise to the bag. If the cart
// already holds a line for that merchandise the quantities are summed via the
// update path, so the same variant never produces duplicate lines.
func (a *Authority) AddToCart(ctx context.Context, merchandiseID string, quantity int) MutationResult {
	if merchandiseID == "" || quantity <= 0 {
		return a.reject(fmt.Sprintf("invalid add request: merchandise=%q quantity=%d", merchandiseID, quantity))
	}

	buyer := a.Buyer()
	if line := a.Cart().LineByMerchandise(merchandiseID); line != nil {
		res := a.orch.UpdateLines(ctx, buyer, []LineUpdate{{LineID: line.ID, Quantity: line.Quantity + quantity}})
		a.record(ctx, OpUpdate, res)
		return res
	}
	res := a.orch.AddLines(ctx, buyer, []LineInput{{MerchandiseID: merchandiseID, Quantity: quantity}})
	a.record(ctx, OpAdd, res)
	return res
}

// UpdateQuantity sets a line's quantity; zero or less removes the line.
func (a *Authority) UpdateQuantity(ctx context.Context, lineID string, quantity int) MutationResult {
	if lineID == "" {
		return a.reject("invalid update request: empty line id")
	}
	if quantity <= 0 {
		return a.RemoveFromCart(ctx, lineID)
	}
	res := a.orch.UpdateLines(ctx, a.Buyer(), []LineUpdate{{LineID: lineID, Quantity: quantity}})
	a.record(ctx, OpUpdate, res)
	return res
}

// RemoveFromCart removes a line by id.
func (a *Authority) RemoveFromCart(ctx context.Context, lineID string) MutationResult {
	if lineID == "" {
		return a.reject("invalid remove request: empty line id")
	}
	res := a.orch.RemoveLines(ctx, a.Buyer(), []string{lineID})
	a.record(ctx, OpRemove, res)
	return res
}

// AddMultipleToCart partitions items into updates (merchandise already in the
// bag) and adds (new lines), runs the updates first, and only attempts the
// adds when the updates succeeded.
func (a *Authority) AddMultipleToCart(ctx context.Context, items []LineInput) MutationResult {
	if len(items) == 0 {
		return a.reject("invalid batch request: no items")
	}
	for _, it := range items {
		if it.MerchandiseID == "" || it.Quantity <= 0 {
			return a.reject(fmt.Sprintf("invalid batch item: merchandise=%q quantity=%d", it.MerchandiseID, it.Quantity))
		}
	}

	buyer := a.Buyer()
	cur := a.Cart()
	var updates []LineUpdate
	var adds []LineInput
	for _, it := range items {
		if line := cur.LineByMerchandise(it.MerchandiseID); line != nil {
			updates = append(updates, LineUpdate{LineID: line.ID, Quantity: line.Quantity + it.Quantity})
		} else {
			adds = append(adds, it)
		}
	}

	var res MutationResult
	if len(updates) > 0 {
		res = a.orch.UpdateLines(ctx, buyer, updates)
		a.record(ctx, OpUpdate, res)
		if !res.Success {
			return res
		}
	}
	if len(adds) > 0 {
		res = a.orch.AddLines(ctx, buyer, adds)
		a.record(ctx, OpAdd, res)
	}
	return res
}

// ForceNewCart discards the current cart and creates a fresh one on explicit
// user request. Same creation step as automatic recovery, no replay.
func (a *Authority) ForceNewCart(ctx context.Context) MutationResult {
	res := a.orch.CreateNew(ctx, a.Buyer())
	a.record(ctx, OpCreate, res)
	return res
}

// ClearErrors resets the visible error list without touching cart data.
func (a *Authority) ClearErrors() {
	a.mu.Lock()
	a.lastErrors = nil
	a.mu.Unlock()
	a.notify()
}

// Refresh re-fetches the authoritative cart, e.g. after a platform webhook
// reported a change this process did not make.
func (a *Authority) Refresh(ctx context.Context) error {
	c, err := a.gw.Refresh(ctx)
	if err != nil {
		return fmt.Errorf("refresh cart: %w", err)
	}
	a.CartChanged(c)
	return nil
}

// Subscribe registers a callback invoked after every visible state change.
func (a *Authority) Subscribe(fn func()) {
	a.mu.Lock()
	a.subs = append(a.subs, fn)
	a.mu.Unlock()
}

// --- read accessors ---

func (a *Authority) SessionID() string { return a.sessionID }

func (a *Authority) Buyer() entity.Buyer {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.buyer
}

func (a *Authority) Cart() *entity.Cart {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cart
}

func (a *Authority) CartID() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.cart == nil {
		return ""
	}
	return a.cart.ID
}

func (a *Authority) Lines() []entity.CartLine {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.cart == nil {
		return nil
	}
	out := make([]entity.CartLine, len(a.cart.Lines))
	copy(out, a.cart.Lines)
	return out
}

func (a *Authority) CheckoutURL() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.cart == nil {
		return ""
	}
	return a.cart.CheckoutURL
}

func (a *Authority) Cost() entity.CartCost {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.cart == nil {
		return entity.CartCost{}
	}
	return a.cart.Cost
}

func (a *Authority) TotalQuantity() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.cart == nil {
		return 0
	}
	return a.cart.TotalQuantity
}

func (a *Authority) Status() GatewayStatus { return a.gw.Status() }

func (a *Authority) IsRecovering() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.recovering
}

func (a *Authority) LastErrors() []MutationError {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]MutationError, len(a.lastErrors))
	copy(out, a.lastErrors)
	return out
}

// CartCounts maps merchandise id to quantity, recomputed on every state
// change. Lets the UI answer "is this variant already in the bag" without
// re-deriving it per component.
func (a *Authority) CartCounts() map[string]int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make(map[string]int, len(a.counts))
	for k, v := range a.counts {
		out[k] = v
	}
	return out
}

// --- Observer (driven by the orchestrator) ---

func (a *Authority) CartChanged(c *entity.Cart) {
	a.mu.Lock()
	a.cart = c
	counts := map[string]int{}
	if c != nil {
		for _, l := range c.Lines {
			counts[l.MerchandiseID] += l.Quantity
		}
	}
	a.counts = counts
	a.mu.Unlock()
	a.notify()
}

func (a *Authority) ErrorsChanged(errs []MutationError) {
	a.mu.Lock()
	a.lastErrors = errs
	a.mu.Unlock()
	a.notify()
}

func (a *Authority) RecoveringChanged(recovering bool) {
	a.mu.Lock()
	a.recovering = recovering
	a.mu.Unlock()
	a.notify()
}

var _ Observer = (*Authority)(nil)

// --- internals ---

// reject fails a request locally, before the gateway is ever involved.
func (a *Authority) reject(msg string) MutationResult {
	res := failure(unknownErr(msg, nil))
	a.ErrorsChanged(res.Errors)
	return res
}

func (a *Authority) record(ctx context.Context, op Op, res MutationResult) {
	for _, s := range a.sinks {
		s.Record(ctx, a.sessionID, op, res)
	}
}

func (a *Authority) notify() {
	a.mu.RLock()
	subs := make([]func(), len(a.subs))
	copy(subs, a.subs)
	a.mu.RUnlock()
	for _, fn := range subs {
		fn()
	}
}
