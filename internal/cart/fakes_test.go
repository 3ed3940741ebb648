package cart

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lumora/storefront-api/internal/entity"
)

// behavior scripts what the remote service does with one mutation call.
type behavior int

const (
	behaviorApply      behavior = iota // mutation takes effect, updatedAt advances
	behaviorSilentNoop                 // reported success, nothing changed
	behaviorUserError                  // inline userErrors, nothing changed
)

// fakeGateway is an in-memory stand-in for the remote cart service. It
// applies mutations synchronously, so Status is idle whenever the
// orchestrator polls unless stuckUpdating is set.
type fakeGateway struct {
	mu   sync.Mutex
	cart *entity.Cart
	errs []RemoteError
	now  time.Time

	lineSeq int
	cartSeq int

	addScript    []behavior
	updateScript []behavior
	removeScript []behavior
	scriptedErrs []RemoteError

	failCreate     bool
	createUserErrs []RemoteError
	stuckUpdating  bool

	createCalls int
	addCalls    int
	updateCalls int
	removeCalls int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func testOptions() Options {
	return Options{
		AutoRecover:  true,
		InitialDelay: time.Millisecond,
		PollInterval: time.Millisecond,
		WaitTimeout:  100 * time.Millisecond,
	}
}

func (g *fakeGateway) Status() GatewayStatus {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.stuckUpdating {
		return StatusUpdating
	}
	return StatusIdle
}

func (g *fakeGateway) LastErrors() []RemoteError {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]RemoteError(nil), g.errs...)
}

func (g *fakeGateway) Current(context.Context) (*entity.Cart, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cart, nil
}

func (g *fakeGateway) Refresh(ctx context.Context) (*entity.Cart, error) {
	return g.Current(ctx)
}

func (g *fakeGateway) CreateCart(_ context.Context, _ entity.Buyer) (*entity.Cart, []RemoteError, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.createCalls++
	if g.failCreate {
		return nil, nil, fmt.Errorf("create unavailable")
	}
	if len(g.createUserErrs) > 0 {
		return nil, g.createUserErrs, nil
	}
	g.cartSeq++
	g.advance()
	g.cart = &entity.Cart{
		ID:        fmt.Sprintf("gid://cart/%d", g.cartSeq),
		UpdatedAt: g.now,
	}
	return g.cart, nil, nil
}

func (g *fakeGateway) AddLines(_ context.Context, cartID string, lines []LineInput) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.addCalls++
	switch g.next(&g.addScript) {
	case behaviorSilentNoop:
		g.errs = nil
	case behaviorUserError:
		g.errs = append([]RemoteError(nil), g.scriptedErrs...)
	default:
		g.errs = nil
		if g.cart == nil || g.cart.ID == "" {
			g.cartSeq++
			g.cart = &entity.Cart{ID: fmt.Sprintf("gid://cart/%d", g.cartSeq)}
		}
		next := g.clone()
		for _, l := range lines {
			if ln := next.LineByMerchandise(l.MerchandiseID); ln != nil {
				ln.Quantity += l.Quantity
			} else {
				g.lineSeq++
				next.Lines = append(next.Lines, entity.CartLine{
					ID:            fmt.Sprintf("gid://line/%d", g.lineSeq),
					MerchandiseID: l.MerchandiseID,
					Quantity:      l.Quantity,
				})
			}
		}
		g.commit(next)
	}
	return nil
}

func (g *fakeGateway) UpdateLines(_ context.Context, _ string, lines []LineUpdate) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.updateCalls++
	switch g.next(&g.updateScript) {
	case behaviorSilentNoop:
		g.errs = nil
	case behaviorUserError:
		g.errs = append([]RemoteError(nil), g.scriptedErrs...)
	default:
		g.errs = nil
		next := g.clone()
		for _, u := range lines {
			for i := range next.Lines {
				if next.Lines[i].ID == u.LineID {
					next.Lines[i].Quantity = u.Quantity
				}
			}
		}
		var kept []entity.CartLine
		for _, ln := range next.Lines {
			if ln.Quantity > 0 {
				kept = append(kept, ln)
			}
		}
		next.Lines = kept
		g.commit(next)
	}
	return nil
}

func (g *fakeGateway) RemoveLines(_ context.Context, _ string, lineIDs []string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.removeCalls++
	switch g.next(&g.removeScript) {
	case behaviorSilentNoop:
		g.errs = nil
	case behaviorUserError:
		g.errs = append([]RemoteError(nil), g.scriptedErrs...)
	default:
		g.errs = nil
		next := g.clone()
		drop := map[string]bool{}
		for _, id := range lineIDs {
			drop[id] = true
		}
		var kept []entity.CartLine
		for _, ln := range next.Lines {
			if !drop[ln.ID] {
				kept = append(kept, ln)
			}
		}
		next.Lines = kept
		g.commit(next)
	}
	return nil
}

var _ Gateway = (*fakeGateway)(nil)

func (g *fakeGateway) next(script *[]behavior) behavior {
	if len(*script) == 0 {
		return behaviorApply
	}
	b := (*script)[0]
	*script = (*script)[1:]
	return b
}

func (g *fakeGateway) advance() {
	g.now = g.now.Add(time.Second)
}

func (g *fakeGateway) clone() *entity.Cart {
	next := *g.cart
	next.Lines = append([]entity.CartLine(nil), g.cart.Lines...)
	return &next
}

func (g *fakeGateway) commit(next *entity.Cart) {
	total := 0
	for _, ln := range next.Lines {
		total += ln.Quantity
	}
	next.TotalQuantity = total
	g.advance()
	next.UpdatedAt = g.now
	g.cart = next
}

// memStore is an in-memory ContextStore.
type memStore struct {
	mu      sync.Mutex
	byID    map[string]entity.CartContext
	loadErr error
}

func newMemStore() *memStore {
	return &memStore{byID: map[string]entity.CartContext{}}
}

func (s *memStore) Load(_ context.Context, sessionID string) (*entity.CartContext, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	cc, ok := s.byID[sessionID]
	if !ok {
		return nil, nil
	}
	return &cc, nil
}

func (s *memStore) Save(_ context.Context, sessionID string, cc entity.CartContext) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[sessionID] = cc
	return nil
}

func (s *memStore) Clear(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byID, sessionID)
	return nil
}

var _ ContextStore = (*memStore)(nil)

// nopObserver satisfies Observer for orchestrator-level tests.
type nopObserver struct{}

func (nopObserver) CartChanged(*entity.Cart)      {}
func (nopObserver) ErrorsChanged([]MutationError) {}
func (nopObserver) RecoveringChanged(bool)        {}

// captureSink records everything an authority reports.
type captureSink struct {
	mu      sync.Mutex
	records []struct {
		Op  Op
		Res MutationResult
	}
}

func (s *captureSink) Record(_ context.Context, _ string, op Op, res MutationResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, struct {
		Op  Op
		Res MutationResult
	}{op, res})
}
