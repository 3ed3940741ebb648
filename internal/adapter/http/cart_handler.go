package http

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lumora/storefront-api/internal/adapter/http/middleware"
	"github.com/lumora/storefront-api/internal/adapter/repo"
	"github.com/lumora/storefront-api/internal/cart"
	"github.com/lumora/storefront-api/internal/entity"
	"github.com/lumora/storefront-api/internal/registry"
)

// opTimeout bounds one orchestrated mutation including a possible recovery
// pass (create + replay + two settle waits).
const opTimeout = 30 * time.Second

type CartHandler struct {
	reg     *registry.Registry
	journal *repo.MySQLJournal
}

func NewCartHandler(reg *registry.Registry, journal *repo.MySQLJournal) *CartHandler {
	return &CartHandler{reg: reg, journal: journal}
}

func (h *CartHandler) authority(c *gin.Context) (*cart.Authority, bool) {
	sc, ok := middleware.SessionFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing_session"})
		return nil, false
	}
	return h.reg.Authority(sc.SessionID, sc.Buyer), true
}

// GetCart returns the full client-visible cart state.
func (h *CartHandler) GetCart(c *gin.Context) {
	a, ok := h.authority(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, stateView(a))
}

type addLineReq struct {
	MerchandiseID string `json:"merchandiseId" binding:"required"`
	Quantity      int    `json:"quantity" binding:"required"`
}

func (h *CartHandler) AddLine(c *gin.Context) {
	a, ok := h.authority(c)
	if !ok {
		return
	}
	var req addLineReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), opTimeout)
	defer cancel()
	h.respond(c, a.AddToCart(ctx, req.MerchandiseID, req.Quantity))
}

type addBatchReq struct {
	Items []addLineReq `json:"items" binding:"required,min=1"`
}

func (h *CartHandler) AddBatch(c *gin.Context) {
	a, ok := h.authority(c)
	if !ok {
		return
	}
	var req addBatchReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request"})
		return
	}
	items := make([]cart.LineInput, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, cart.LineInput{MerchandiseID: it.MerchandiseID, Quantity: it.Quantity})
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), opTimeout)
	defer cancel()
	h.respond(c, a.AddMultipleToCart(ctx, items))
}

type updateLineReq struct {
	// Zero is meaningful here (routes to removal), so no required tag.
	Quantity int `json:"quantity"`
}

func (h *CartHandler) UpdateLine(c *gin.Context) {
	a, ok := h.authority(c)
	if !ok {
		return
	}
	var req updateLineReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), opTimeout)
	defer cancel()
	h.respond(c, a.UpdateQuantity(ctx, c.Param("lineId"), req.Quantity))
}

func (h *CartHandler) RemoveLine(c *gin.Context) {
	a, ok := h.authority(c)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), opTimeout)
	defer cancel()
	h.respond(c, a.RemoveFromCart(ctx, c.Param("lineId")))
}

func (h *CartHandler) ResetCart(c *gin.Context) {
	a, ok := h.authority(c)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), opTimeout)
	defer cancel()
	h.respond(c, a.ForceNewCart(ctx))
}

func (h *CartHandler) ClearErrors(c *gin.Context) {
	a, ok := h.authority(c)
	if !ok {
		return
	}
	a.ClearErrors()
	c.JSON(http.StatusOK, stateView(a))
}

// History lists recent mutation journal entries for the session.
func (h *CartHandler) History(c *gin.Context) {
	sc, ok := middleware.SessionFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing_session"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	entries, err := h.journal.ListBySession(ctx, sc.SessionID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "journal_unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": historyView(entries)})
}

func (h *CartHandler) respond(c *gin.Context, res cart.MutationResult) {
	c.JSON(statusFor(res), resultView(res))
}

func statusFor(res cart.MutationResult) int {
	switch {
	case res.Success:
		return http.StatusOK
	case res.IsBusy():
		return http.StatusConflict
	case res.HasKind(cart.KindUserError):
		return http.StatusUnprocessableEntity
	case res.FirstKind() == cart.KindUnknown:
		if strings.HasPrefix(res.Errors[0].Message, "invalid ") {
			return http.StatusBadRequest
		}
		return http.StatusInternalServerError
	default:
		// NO_OP_MUTATION, STALE_CART, CONTEXT_MISMATCH, RECOVERY_FAILED: the
		// remote side misbehaved and recovery could not mask it.
		return http.StatusBadGateway
	}
}

// --- views ---

type moneyView struct {
	Amount       string `json:"amount"`
	CurrencyCode string `json:"currencyCode"`
}

type lineView struct {
	ID            string    `json:"id"`
	MerchandiseID string    `json:"merchandiseId"`
	Quantity      int       `json:"quantity"`
	Cost          moneyView `json:"cost"`
}

type cartView struct {
	ID            string     `json:"id"`
	Lines         []lineView `json:"lines"`
	CheckoutURL   string     `json:"checkoutUrl"`
	TotalQuantity int        `json:"totalQuantity"`
	UpdatedAt     time.Time  `json:"updatedAt"`
	Subtotal      moneyView  `json:"subtotal"`
	Total         moneyView  `json:"total"`
	TotalTax      moneyView  `json:"totalTax"`
}

type errView struct {
	Kind    string   `json:"kind"`
	Message string   `json:"message"`
	Field   []string `json:"field,omitempty"`
}

type resultViewT struct {
	Success      bool      `json:"success"`
	Cart         *cartView `json:"cart,omitempty"`
	Errors       []errView `json:"errors,omitempty"`
	WasRecovered bool      `json:"wasRecovered"`
	NewCartID    string    `json:"newCartId,omitempty"`
}

type stateViewT struct {
	Cart          *cartView      `json:"cart"`
	Status        string         `json:"status"`
	IsRecovering  bool           `json:"isRecovering"`
	LastErrors    []errView      `json:"lastErrors"`
	CartCounts    map[string]int `json:"cartCounts"`
	TotalQuantity int            `json:"totalQuantity"`
	CheckoutURL   string         `json:"checkoutUrl"`
}

func toMoneyView(m entity.Money) moneyView {
	return moneyView{Amount: m.Amount, CurrencyCode: m.CurrencyCode}
}

func toCartView(c *entity.Cart) *cartView {
	if c == nil {
		return nil
	}
	v := &cartView{
		ID:            c.ID,
		CheckoutURL:   c.CheckoutURL,
		TotalQuantity: c.TotalQuantity,
		UpdatedAt:     c.UpdatedAt,
		Subtotal:      toMoneyView(c.Cost.Subtotal),
		Total:         toMoneyView(c.Cost.Total),
		TotalTax:      toMoneyView(c.Cost.TotalTax),
		Lines:         []lineView{},
	}
	for _, l := range c.Lines {
		v.Lines = append(v.Lines, lineView{
			ID:            l.ID,
			MerchandiseID: l.MerchandiseID,
			Quantity:      l.Quantity,
			Cost:          toMoneyView(l.Cost),
		})
	}
	return v
}

func toErrViews(errs []cart.MutationError) []errView {
	out := make([]errView, 0, len(errs))
	for _, e := range errs {
		out = append(out, errView{Kind: string(e.Kind), Message: e.Message, Field: e.Field})
	}
	return out
}

func resultView(res cart.MutationResult) resultViewT {
	return resultViewT{
		Success:      res.Success,
		Cart:         toCartView(res.Cart),
		Errors:       toErrViews(res.Errors),
		WasRecovered: res.WasRecovered,
		NewCartID:    res.NewCartID,
	}
}

func stateView(a *cart.Authority) stateViewT {
	return stateViewT{
		Cart:          toCartView(a.Cart()),
		Status:        string(a.Status()),
		IsRecovering:  a.IsRecovering(),
		LastErrors:    toErrViews(a.LastErrors()),
		CartCounts:    a.CartCounts(),
		TotalQuantity: a.TotalQuantity(),
		CheckoutURL:   a.CheckoutURL(),
	}
}

type historyEntryView struct {
	ID           string    `json:"id"`
	CartID       string    `json:"cartId,omitempty"`
	Op           string    `json:"op"`
	Success      bool      `json:"success"`
	WasRecovered bool      `json:"wasRecovered"`
	ErrorKind    string    `json:"errorKind,omitempty"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

func historyView(entries []repo.JournalEntry) []historyEntryView {
	out := make([]historyEntryView, 0, len(entries))
	for _, e := range entries {
		out = append(out, historyEntryView{
			ID:           e.ID,
			CartID:       e.CartID,
			Op:           e.Op,
			Success:      e.Success,
			WasRecovered: e.WasRecovered,
			ErrorKind:    e.ErrorKind,
			ErrorMessage: e.ErrorMessage,
			CreatedAt:    e.CreatedAt,
		})
	}
	return out
}
