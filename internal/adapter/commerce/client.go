// Package commerce adapts the remote platform's storefront GraphQL API to the
// cart.Gateway port. Mutations are dispatched fire-and-forget: the exchange
// runs on a goroutine while an internal status flag reports updating, and the
// orchestration layer polls that flag until idle before reading anything.
package commerce

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/lumora/storefront-api/internal/cart"
	"github.com/lumora/storefront-api/internal/entity"
)

// ErrBusy is returned when a mutation is dispatched while another one is
// still in flight. The orchestrator's single-flight guard makes this
// unreachable in practice; it exists so the adapter is safe on its own.
var ErrBusy = errors.New("commerce: mutation already in flight")

type Config struct {
	Endpoint    string
	AccessToken string
	Timeout     time.Duration
	// Buyer is the locale used when the remote service lazily creates a cart
	// on the session's first mutation.
	Buyer entity.Buyer
}

// Client is one session's gateway to the remote cart service.
type Client struct {
	cfg  Config
	http *http.Client
	log  *slog.Logger

	mu       sync.Mutex
	status   cart.GatewayStatus
	current  *entity.Cart
	lastErrs []cart.RemoteError
}

func NewClient(cfg Config, log *slog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 8 * time.Second
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		log:    log,
		status: cart.StatusIdle,
	}
}

func (c *Client) Status() cart.GatewayStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *Client) LastErrors() []cart.RemoteError {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]cart.RemoteError, len(c.lastErrs))
	copy(out, c.lastErrs)
	return out
}

func (c *Client) Current(ctx context.Context) (*entity.Cart, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current, nil
}

// Refresh re-queries the authoritative cart by its current id.
func (c *Client) Refresh(ctx context.Context) (*entity.Cart, error) {
	c.mu.Lock()
	id := ""
	if c.current != nil {
		id = c.current.ID
	}
	c.mu.Unlock()
	if id == "" {
		return nil, nil
	}

	node, err := c.queryCart(ctx, id)
	if err != nil {
		return nil, err
	}
	fresh := node.toEntity()
	c.mu.Lock()
	c.current = fresh
	c.mu.Unlock()
	return fresh, nil
}

// CreateCart is synchronous: recovery needs the new cart before it can
// replay anything against it.
func (c *Client) CreateCart(ctx context.Context, buyer entity.Buyer) (*entity.Cart, []cart.RemoteError, error) {
	payload, err := c.mutate(ctx, cartCreateMutation, map[string]any{
		"input": map[string]any{
			"buyerIdentity": map[string]any{
				"countryCode": buyer.CountryCode,
			},
		},
		"country":  buyer.CountryCode,
		"language": buyer.LanguageCode,
	})
	if err != nil {
		return nil, nil, err
	}

	fresh := payload.Cart.toEntity()
	remote := payload.remoteErrors()
	c.mu.Lock()
	if fresh != nil {
		c.current = fresh
	}
	c.lastErrs = remote
	c.mu.Unlock()
	return fresh, remote, nil
}

func (c *Client) AddLines(ctx context.Context, cartID string, lines []cart.LineInput) error {
	in := make([]map[string]any, 0, len(lines))
	for _, l := range lines {
		in = append(in, map[string]any{"merchandiseId": l.MerchandiseID, "quantity": l.Quantity})
	}
	return c.dispatch(ctx, func(ctx context.Context) (*mutationPayload, error) {
		id := cartID
		// The remote service creates the cart on its first mutation; nothing
		// else in this process creates one implicitly.
		if id == "" {
			fresh, remote, err := c.CreateCart(ctx, c.cfg.Buyer)
			if err != nil {
				return nil, err
			}
			if len(remote) > 0 || fresh == nil {
				return &mutationPayload{UserErrors: toUserErrors(remote)}, nil
			}
			id = fresh.ID
		}
		return c.mutate(ctx, cartLinesAddMutation, map[string]any{"cartId": id, "lines": in})
	})
}

func (c *Client) UpdateLines(ctx context.Context, cartID string, lines []cart.LineUpdate) error {
	in := make([]map[string]any, 0, len(lines))
	for _, l := range lines {
		in = append(in, map[string]any{"id": l.LineID, "quantity": l.Quantity})
	}
	return c.dispatch(ctx, func(ctx context.Context) (*mutationPayload, error) {
		return c.mutate(ctx, cartLinesUpdateMutation, map[string]any{"cartId": cartID, "lines": in})
	})
}

func (c *Client) RemoveLines(ctx context.Context, cartID string, lineIDs []string) error {
	return c.dispatch(ctx, func(ctx context.Context) (*mutationPayload, error) {
		return c.mutate(ctx, cartLinesRemoveMutation, map[string]any{"cartId": cartID, "lineIds": lineIDs})
	})
}

var _ cart.Gateway = (*Client)(nil)

// dispatch flips the status flag to updating, runs the exchange on a
// goroutine, records the resulting cart and inline errors, and returns to
// idle. Callers observe completion only through Status.
func (c *Client) dispatch(ctx context.Context, run func(ctx context.Context) (*mutationPayload, error)) error {
	c.mu.Lock()
	if c.status != cart.StatusIdle {
		c.mu.Unlock()
		return ErrBusy
	}
	c.status = cart.StatusUpdating
	c.lastErrs = nil
	c.mu.Unlock()

	go func() {
		payload, err := run(ctx)

		c.mu.Lock()
		defer func() {
			c.status = cart.StatusIdle
			c.mu.Unlock()
		}()

		if err != nil {
			// Transport failure: leave the cached cart untouched so the
			// snapshot comparison reads it as a no-op and recovery kicks in.
			c.log.Warn("cart mutation transport error", "err", err)
			return
		}
		c.lastErrs = payload.remoteErrors()
		if fresh := payload.Cart.toEntity(); fresh != nil {
			c.current = fresh
		}
	}()
	return nil
}

// --- wire types ---

type gqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type gqlError struct {
	Message string `json:"message"`
}

type userError struct {
	Message string   `json:"message"`
	Field   []string `json:"field"`
}

type moneyNode struct {
	Amount       string `json:"amount"`
	CurrencyCode string `json:"currencyCode"`
}

type lineNode struct {
	ID          string `json:"id"`
	Quantity    int    `json:"quantity"`
	Merchandise struct {
		ID string `json:"id"`
	} `json:"merchandise"`
	Cost struct {
		TotalAmount moneyNode `json:"totalAmount"`
	} `json:"cost"`
}

type cartNode struct {
	ID            string    `json:"id"`
	CheckoutURL   string    `json:"checkoutUrl"`
	TotalQuantity int       `json:"totalQuantity"`
	UpdatedAt     time.Time `json:"updatedAt"`
	Lines         struct {
		Nodes []lineNode `json:"nodes"`
	} `json:"lines"`
	Cost struct {
		SubtotalAmount moneyNode `json:"subtotalAmount"`
		TotalAmount    moneyNode `json:"totalAmount"`
		TotalTaxAmount moneyNode `json:"totalTaxAmount"`
	} `json:"cost"`
}

func (n *cartNode) toEntity() *entity.Cart {
	if n == nil || n.ID == "" {
		return nil
	}
	out := &entity.Cart{
		ID:            n.ID,
		CheckoutURL:   n.CheckoutURL,
		TotalQuantity: n.TotalQuantity,
		UpdatedAt:     n.UpdatedAt,
		Cost: entity.CartCost{
			Subtotal: entity.Money{Amount: n.Cost.SubtotalAmount.Amount, CurrencyCode: n.Cost.SubtotalAmount.CurrencyCode},
			Total:    entity.Money{Amount: n.Cost.TotalAmount.Amount, CurrencyCode: n.Cost.TotalAmount.CurrencyCode},
			TotalTax: entity.Money{Amount: n.Cost.TotalTaxAmount.Amount, CurrencyCode: n.Cost.TotalTaxAmount.CurrencyCode},
		},
	}
	for _, ln := range n.Lines.Nodes {
		out.Lines = append(out.Lines, entity.CartLine{
			ID:            ln.ID,
			MerchandiseID: ln.Merchandise.ID,
			Quantity:      ln.Quantity,
			Cost:          entity.Money{Amount: ln.Cost.TotalAmount.Amount, CurrencyCode: ln.Cost.TotalAmount.CurrencyCode},
		})
	}
	return out
}

type mutationPayload struct {
	Cart       *cartNode   `json:"cart"`
	UserErrors []userError `json:"userErrors"`
}

func (p *mutationPayload) remoteErrors() []cart.RemoteError {
	if p == nil || len(p.UserErrors) == 0 {
		return nil
	}
	out := make([]cart.RemoteError, 0, len(p.UserErrors))
	for _, ue := range p.UserErrors {
		out = append(out, cart.RemoteError{Message: ue.Message, Field: ue.Field})
	}
	return out
}

func toUserErrors(remote []cart.RemoteError) []userError {
	out := make([]userError, 0, len(remote))
	for _, re := range remote {
		out = append(out, userError{Message: re.Message, Field: re.Field})
	}
	return out
}

// mutate posts one GraphQL mutation and unwraps the single payload object
// every cart mutation returns.
func (c *Client) mutate(ctx context.Context, query string, vars map[string]any) (*mutationPayload, error) {
	raw, err := c.post(ctx, gqlRequest{Query: query, Variables: vars})
	if err != nil {
		return nil, err
	}
	var data map[string]*mutationPayload
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("decode mutation payload: %w", err)
	}
	for _, p := range data {
		if p != nil {
			return p, nil
		}
	}
	return nil, errors.New("commerce: empty mutation payload")
}

func (c *Client) queryCart(ctx context.Context, id string) (*cartNode, error) {
	raw, err := c.post(ctx, gqlRequest{Query: cartQuery, Variables: map[string]any{"id": id}})
	if err != nil {
		return nil, err
	}
	var data struct {
		Cart *cartNode `json:"cart"`
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("decode cart query: %w", err)
	}
	return data.Cart, nil
}

func (c *Client) post(ctx context.Context, body gqlRequest) (json.RawMessage, error) {
	buf, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(buf))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Storefront-Access-Token", c.cfg.AccessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("storefront api: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read storefront response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("storefront api: status %d", resp.StatusCode)
	}

	var envelope struct {
		Data   json.RawMessage `json:"data"`
		Errors []gqlError      `json:"errors"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("decode storefront response: %w", err)
	}
	if len(envelope.Errors) > 0 {
		return nil, fmt.Errorf("storefront api: %s", envelope.Errors[0].Message)
	}
	return envelope.Data, nil
}
