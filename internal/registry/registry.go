// Package registry owns the per-session cart authorities. One logical cart
// per browser session, one Authority per session id, handed to every consumer
// as an explicit dependency rather than an ambient global.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/lumora/storefront-api/internal/cart"
	"github.com/lumora/storefront-api/internal/entity"
)

// GatewayFactory builds one session's gateway to the remote cart service.
type GatewayFactory func(sessionID string, buyer entity.Buyer) cart.Gateway

type Registry struct {
	newGateway   GatewayFactory
	contextStore cart.ContextStore
	sinks        []cart.ResultSink
	opts         cart.Options
	log          *slog.Logger

	mu   sync.Mutex
	byID map[string]*cart.Authority
}

func New(newGateway GatewayFactory, contextStore cart.ContextStore, sinks []cart.ResultSink, opts cart.Options, log *slog.Logger) *Registry {
	return &Registry{
		newGateway:   newGateway,
		contextStore: contextStore,
		sinks:        sinks,
		opts:         opts,
		log:          log,
		byID:         map[string]*cart.Authority{},
	}
}

// Authority returns the session's cart authority, creating it on first use.
// The buyer locale is refreshed on every call; the context guard catches a
// change on the next mutation.
func (r *Registry) Authority(sessionID string, buyer entity.Buyer) *cart.Authority {
	r.mu.Lock()
	defer r.mu.Unlock()

	if a, ok := r.byID[sessionID]; ok {
		a.SetBuyer(buyer)
		return a
	}
	a := cart.NewAuthority(cart.AuthorityConfig{
		SessionID:    sessionID,
		Buyer:        buyer,
		Gateway:      r.newGateway(sessionID, buyer),
		ContextStore: r.contextStore,
		Options:      r.opts,
		Sinks:        r.sinks,
		Logger:       r.log,
	})
	r.byID[sessionID] = a
	return a
}

// RefreshCart re-fetches the cart for whichever session currently holds the
// given remote cart id. Used by the webhook consumer.
func (r *Registry) RefreshCart(ctx context.Context, cartID string) error {
	r.mu.Lock()
	var match *cart.Authority
	for _, a := range r.byID {
		if a.CartID() == cartID {
			match = a
			break
		}
	}
	r.mu.Unlock()

	if match == nil {
		// Not an error: the session may live on another replica or be gone.
		r.log.Info("webhook for unknown cart", "cart_id", cartID)
		return nil
	}
	if err := match.Refresh(ctx); err != nil {
		return fmt.Errorf("refresh session %s: %w", match.SessionID(), err)
	}
	return nil
}
