package cart

import (
	"context"

	"github.com/lumora/storefront-api/internal/entity"
)

// GatewayStatus is the observable state of the remote gateway's transport.
type GatewayStatus string

const (
	StatusIdle     GatewayStatus = "idle"
	StatusUpdating GatewayStatus = "updating"
)

// LineInput adds new merchandise to a cart.
type LineInput struct {
	MerchandiseID string `json:"merchandiseId"`
	Quantity      int    `json:"quantity"`
}

// LineUpdate changes the quantity of an existing line.
type LineUpdate struct {
	LineID   string `json:"lineId"`
	Quantity int    `json:"quantity"`
}

// RemoteError is an inline error reported by the remote mutation call,
// carried verbatim (message and field path).
type RemoteError struct {
	Message string
	Field   []string
}

// Gateway is the port to the remote cart service. Mutation dispatch is
// fire-and-forget: the call returns once the operation is in flight, and the
// caller observes completion by polling Status until it reads StatusIdle.
// Never inspect Current or LastErrors before the gateway is observably idle.
//
// CreateCart is synchronous and is only called by the Recoverer (and the
// gateway itself, lazily, on the first-ever mutation of a session).
type Gateway interface {
	// Current returns the cached authoritative cart copy, nil if no cart
	// exists yet.
	Current(ctx context.Context) (*entity.Cart, error)
	// Refresh re-fetches the authoritative cart from the remote service.
	Refresh(ctx context.Context) (*entity.Cart, error)
	Status() GatewayStatus
	// LastErrors returns the inline errors reported by the most recent
	// mutation, if any.
	LastErrors() []RemoteError

	CreateCart(ctx context.Context, buyer entity.Buyer) (*entity.Cart, []RemoteError, error)
	AddLines(ctx context.Context, cartID string, lines []LineInput) error
	UpdateLines(ctx context.Context, cartID string, lines []LineUpdate) error
	RemoveLines(ctx context.Context, cartID string, lineIDs []string) error
}

// ContextStore persists the CartContext record for a session. It survives
// reloads of the same client session and nothing more.
type ContextStore interface {
	Load(ctx context.Context, sessionID string) (*entity.CartContext, error)
	Save(ctx context.Context, sessionID string, cc entity.CartContext) error
	Clear(ctx context.Context, sessionID string) error
}

// Observer receives the orchestrator's state transitions so UI-facing
// consumers see errors and the recovering flag without polling.
type Observer interface {
	CartChanged(c *entity.Cart)
	ErrorsChanged(errs []MutationError)
	RecoveringChanged(recovering bool)
}

// ResultSink records each orchestrated outcome (journal, metrics, lifecycle
// events). Implementations must be best-effort and must not block mutations.
type ResultSink interface {
	Record(ctx context.Context, sessionID string, op Op, res MutationResult)
}
