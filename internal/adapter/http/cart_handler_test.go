package http

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lumora/storefront-api/internal/cart"
	"github.com/lumora/storefront-api/internal/entity"
)

func TestStatusFor(t *testing.T) {
	mkRes := func(errs ...cart.MutationError) cart.MutationResult {
		return cart.MutationResult{Errors: errs}
	}

	tests := []struct {
		name string
		res  cart.MutationResult
		want int
	}{
		{
			name: "success",
			res:  cart.MutationResult{Success: true, Cart: &entity.Cart{ID: "gid://cart/1"}},
			want: http.StatusOK,
		},
		{
			name: "busy fail-fast",
			res:  mkRes(cart.MutationError{Kind: cart.KindUnknown, Message: "another mutation is in progress"}),
			want: http.StatusConflict,
		},
		{
			name: "remote user error",
			res:  mkRes(cart.MutationError{Kind: cart.KindUserError, Message: "sold out"}),
			want: http.StatusUnprocessableEntity,
		},
		{
			name: "user error survives recovery wrapping",
			res: mkRes(
				cart.MutationError{Kind: cart.KindRecoveryFailed, Message: "replay still failed"},
				cart.MutationError{Kind: cart.KindUserError, Message: "sold out"},
			),
			want: http.StatusUnprocessableEntity,
		},
		{
			name: "local input rejection",
			res:  mkRes(cart.MutationError{Kind: cart.KindUnknown, Message: `invalid add request: merchandise="" quantity=1`}),
			want: http.StatusBadRequest,
		},
		{
			name: "transport failure",
			res:  mkRes(cart.MutationError{Kind: cart.KindUnknown, Message: "mutation did not settle"}),
			want: http.StatusInternalServerError,
		},
		{
			name: "unrecovered silent no-op",
			res: mkRes(
				cart.MutationError{Kind: cart.KindNoOpMutation, Message: "mutation reported success but changed nothing"},
				cart.MutationError{Kind: cart.KindStaleCart, Message: "cart gid://cart/1 is stale"},
			),
			want: http.StatusBadGateway,
		},
		{
			name: "recovery failed",
			res: mkRes(
				cart.MutationError{Kind: cart.KindRecoveryFailed, Message: "cart creation failed"},
				cart.MutationError{Kind: cart.KindNoOpMutation, Message: "mutation reported success but changed nothing"},
			),
			want: http.StatusBadGateway,
		},
		{
			name: "context mismatch without recovery",
			res:  mkRes(cart.MutationError{Kind: cart.KindContextMismatch, Message: "locale changed"}),
			want: http.StatusBadGateway,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.res))
		})
	}
}

func TestToCartViewNil(t *testing.T) {
	assert.Nil(t, toCartView(nil))
}

func TestToCartViewAlwaysRendersLinesArray(t *testing.T) {
	v := toCartView(&entity.Cart{ID: "gid://cart/1"})
	assert.NotNil(t, v.Lines, "empty carts must serialize lines as [], not null")
}
