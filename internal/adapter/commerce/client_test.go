package commerce

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumora/storefront-api/internal/cart"
	"github.com/lumora/storefront-api/internal/entity"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(endpoint string) *Client {
	return NewClient(Config{
		Endpoint:    endpoint,
		AccessToken: "tok-123",
		Timeout:     2 * time.Second,
		Buyer:       entity.Buyer{CountryCode: "US", LanguageCode: "EN"},
	}, testLogger())
}

// cartJSON renders a cart node the way the storefront API does.
func cartJSON(id string, totalQty int, updatedAt string) string {
	return fmt.Sprintf(`{
		"id": %q,
		"checkoutUrl": "https://shop.example/checkout/abc",
		"totalQuantity": %d,
		"updatedAt": %q,
		"lines": {"nodes": [
			{"id": "gid://line/1", "quantity": %d,
			 "merchandise": {"id": "gid://variant/1"},
			 "cost": {"totalAmount": {"amount": "19.90", "currencyCode": "USD"}}}
		]},
		"cost": {
			"subtotalAmount": {"amount": "19.90", "currencyCode": "USD"},
			"totalAmount": {"amount": "21.50", "currencyCode": "USD"},
			"totalTaxAmount": {"amount": "1.60", "currencyCode": "USD"}
		}
	}`, id, totalQty, updatedAt, totalQty)
}

func awaitSettled(t *testing.T, c *Client) {
	t.Helper()
	require.Eventually(t, func() bool {
		return c.Status() == cart.StatusIdle
	}, 2*time.Second, 2*time.Millisecond, "client never returned to idle")
}

func TestClientCreateCartDecodesCart(t *testing.T) {
	var gotToken string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.Header.Get("X-Storefront-Access-Token")
		var req gqlRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Contains(t, req.Query, "cartCreate")
		fmt.Fprintf(w, `{"data": {"cartCreate": {"cart": %s, "userErrors": []}}}`,
			cartJSON("gid://cart/1", 1, "2026-03-01T09:00:00Z"))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	fresh, remote, err := c.CreateCart(context.Background(), entity.Buyer{CountryCode: "US", LanguageCode: "EN"})

	require.NoError(t, err)
	assert.Empty(t, remote)
	assert.Equal(t, "tok-123", gotToken)
	require.NotNil(t, fresh)
	assert.Equal(t, "gid://cart/1", fresh.ID)
	assert.Equal(t, "https://shop.example/checkout/abc", fresh.CheckoutURL)
	assert.Equal(t, 1, fresh.TotalQuantity)
	assert.Equal(t, time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC), fresh.UpdatedAt)
	assert.Equal(t, "21.50", fresh.Cost.Total.Amount)
	require.Len(t, fresh.Lines, 1)
	assert.Equal(t, "gid://variant/1", fresh.Lines[0].MerchandiseID)
	assert.Equal(t, "19.90", fresh.Lines[0].Cost.Amount)

	cur, err := c.Current(context.Background())
	require.NoError(t, err)
	assert.Same(t, fresh, cur)
}

func TestClientCreateCartSurfacesUserErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"data": {"cartCreate": {"cart": null,
			"userErrors": [{"message": "country not supported", "field": ["input", "buyerIdentity"]}]}}}`)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	fresh, remote, err := c.CreateCart(context.Background(), entity.Buyer{CountryCode: "XX"})

	require.NoError(t, err)
	assert.Nil(t, fresh)
	require.Len(t, remote, 1)
	assert.Equal(t, "country not supported", remote[0].Message)
	assert.Equal(t, []string{"input", "buyerIdentity"}, remote[0].Field)
}

func TestClientAddLinesRecordsResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req gqlRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Contains(t, req.Query, "cartLinesAdd")
		assert.Equal(t, "gid://cart/1", req.Variables["cartId"])
		fmt.Fprintf(w, `{"data": {"cartLinesAdd": {"cart": %s, "userErrors": []}}}`,
			cartJSON("gid://cart/1", 2, "2026-03-01T09:01:00Z"))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	err := c.AddLines(context.Background(), "gid://cart/1",
		[]cart.LineInput{{MerchandiseID: "gid://variant/1", Quantity: 2}})
	require.NoError(t, err)

	awaitSettled(t, c)
	cur, err := c.Current(context.Background())
	require.NoError(t, err)
	require.NotNil(t, cur)
	assert.Equal(t, 2, cur.TotalQuantity)
	assert.Empty(t, c.LastErrors())
}

func TestClientAddLinesKeepsUserErrorsVerbatim(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"data": {"cartLinesAdd": {"cart": null,
			"userErrors": [{"message": "merchandise is sold out", "field": ["lines", "0", "merchandiseId"]}]}}}`)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	require.NoError(t, c.AddLines(context.Background(), "gid://cart/1",
		[]cart.LineInput{{MerchandiseID: "gid://variant/9", Quantity: 1}}))

	awaitSettled(t, c)
	errs := c.LastErrors()
	require.Len(t, errs, 1)
	assert.Equal(t, "merchandise is sold out", errs[0].Message)
	assert.Equal(t, []string{"lines", "0", "merchandiseId"}, errs[0].Field)
}

func TestClientLazyCreateOnFirstAdd(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		var req gqlRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		switch {
		case strings.Contains(req.Query, "cartCreate"):
			fmt.Fprintf(w, `{"data": {"cartCreate": {"cart": %s, "userErrors": []}}}`,
				cartJSON("gid://cart/new", 0, "2026-03-01T09:00:00Z"))
		case strings.Contains(req.Query, "cartLinesAdd"):
			// The add must target the cart created one request earlier.
			assert.Equal(t, "gid://cart/new", req.Variables["cartId"])
			fmt.Fprintf(w, `{"data": {"cartLinesAdd": {"cart": %s, "userErrors": []}}}`,
				cartJSON("gid://cart/new", 1, "2026-03-01T09:00:01Z"))
		default:
			t.Errorf("unexpected query: %s", req.Query)
		}
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	require.NoError(t, c.AddLines(context.Background(), "",
		[]cart.LineInput{{MerchandiseID: "gid://variant/1", Quantity: 1}}))

	awaitSettled(t, c)
	assert.Equal(t, int32(2), calls.Load())
	cur, _ := c.Current(context.Background())
	require.NotNil(t, cur)
	assert.Equal(t, "gid://cart/new", cur.ID)
	assert.Equal(t, 1, cur.TotalQuantity)
}

func TestClientRejectsConcurrentDispatch(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
		fmt.Fprintf(w, `{"data": {"cartLinesRemove": {"cart": %s, "userErrors": []}}}`,
			cartJSON("gid://cart/1", 0, "2026-03-01T09:02:00Z"))
	}))
	defer srv.Close()
	defer close(release)

	c := newTestClient(srv.URL)
	require.NoError(t, c.RemoveLines(context.Background(), "gid://cart/1", []string{"gid://line/1"}))
	assert.Equal(t, cart.StatusUpdating, c.Status())

	err := c.RemoveLines(context.Background(), "gid://cart/1", []string{"gid://line/1"})
	assert.ErrorIs(t, err, ErrBusy)
}

func TestClientTransportErrorLeavesCartUntouched(t *testing.T) {
	var fail atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if fail.Load() {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprintf(w, `{"data": {"cartCreate": {"cart": %s, "userErrors": []}}}`,
			cartJSON("gid://cart/1", 0, "2026-03-01T09:00:00Z"))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, _, err := c.CreateCart(context.Background(), entity.Buyer{CountryCode: "US"})
	require.NoError(t, err)

	fail.Store(true)
	require.NoError(t, c.UpdateLines(context.Background(), "gid://cart/1",
		[]cart.LineUpdate{{LineID: "gid://line/1", Quantity: 3}}))

	awaitSettled(t, c)
	cur, _ := c.Current(context.Background())
	require.NotNil(t, cur)
	// Snapshot comparison upstream reads this as a silent no-op.
	assert.Equal(t, time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC), cur.UpdatedAt)
	assert.Empty(t, c.LastErrors())
}

func TestClientRefresh(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req gqlRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if strings.Contains(req.Query, "cartCreate") {
			fmt.Fprintf(w, `{"data": {"cartCreate": {"cart": %s, "userErrors": []}}}`,
				cartJSON("gid://cart/1", 1, "2026-03-01T09:00:00Z"))
			return
		}
		assert.Equal(t, "gid://cart/1", req.Variables["id"])
		fmt.Fprintf(w, `{"data": {"cart": %s}}`,
			cartJSON("gid://cart/1", 5, "2026-03-01T09:05:00Z"))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, _, err := c.CreateCart(context.Background(), entity.Buyer{CountryCode: "US"})
	require.NoError(t, err)

	fresh, err := c.Refresh(context.Background())
	require.NoError(t, err)
	require.NotNil(t, fresh)
	assert.Equal(t, 5, fresh.TotalQuantity)

	cur, _ := c.Current(context.Background())
	assert.Same(t, fresh, cur)
}

func TestClientRefreshWithoutCart(t *testing.T) {
	c := newTestClient("http://127.0.0.1:0")
	fresh, err := c.Refresh(context.Background())
	require.NoError(t, err)
	assert.Nil(t, fresh)
}

func TestClientGraphQLErrorEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"data": null, "errors": [{"message": "throttled"}]}`)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, _, err := c.CreateCart(context.Background(), entity.Buyer{CountryCode: "US"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "throttled")
}
