package cart

import (
	"context"
	"fmt"
	"time"

	"github.com/lumora/storefront-api/internal/entity"
)

// ContextGuard persists and checks the locale a session's cart was created
// under. Stored state is owned exclusively by the orchestration layer; the
// single-flight guarantee means it is never written concurrently.
type ContextGuard struct {
	store     ContextStore
	sessionID string
	now       func() time.Time
}

func NewContextGuard(store ContextStore, sessionID string) *ContextGuard {
	return &ContextGuard{store: store, sessionID: sessionID, now: time.Now}
}

// Match reports whether the buyer's current locale matches the stored cart
// context. True when nothing is stored yet (first-ever cart). The stored
// context, if any, is returned for error narration.
func (g *ContextGuard) Match(ctx context.Context, buyer entity.Buyer) (bool, *entity.CartContext, error) {
	stored, err := g.store.Load(ctx, g.sessionID)
	if err != nil {
		return false, nil, fmt.Errorf("load cart context: %w", err)
	}
	if stored == nil {
		return true, nil, nil
	}
	return stored.Matches(buyer), stored, nil
}

// Persist records the buyer's locale as the context of the current cart.
func (g *ContextGuard) Persist(ctx context.Context, buyer entity.Buyer) error {
	cc := entity.CartContext{
		CountryCode:  buyer.CountryCode,
		LanguageCode: buyer.LanguageCode,
		CreatedAt:    g.now(),
	}
	if err := g.store.Save(ctx, g.sessionID, cc); err != nil {
		return fmt.Errorf("save cart context: %w", err)
	}
	return nil
}

// Clear drops the stored context. Called at the start of every recovery.
func (g *ContextGuard) Clear(ctx context.Context) error {
	if err := g.store.Clear(ctx, g.sessionID); err != nil {
		return fmt.Errorf("clear cart context: %w", err)
	}
	return nil
}

// MismatchError narrates both the expected and the actual locale. Always
// recoverable, never fatal.
func MismatchError(stored *entity.CartContext, buyer entity.Buyer) MutationError {
	msg := fmt.Sprintf("cart was created under %s/%s but the session is now %s/%s",
		stored.CountryCode, stored.LanguageCode, buyer.CountryCode, buyer.LanguageCode)
	return MutationError{Kind: KindContextMismatch, Message: msg}
}
