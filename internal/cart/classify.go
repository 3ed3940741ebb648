package cart

import (
	"fmt"
	"time"

	"github.com/lumora/storefront-api/internal/entity"
)

// Snapshot is the before/after probe used for no-op detection.
type Snapshot struct {
	UpdatedAt     time.Time
	TotalQuantity int
}

// SnapshotOf captures the no-op probe fields from a cart. A nil cart yields
// the zero snapshot (no cart exists yet).
func SnapshotOf(c *entity.Cart) Snapshot {
	if c == nil {
		return Snapshot{}
	}
	return Snapshot{UpdatedAt: c.UpdatedAt, TotalQuantity: c.TotalQuantity}
}

// Verdict is the classified outcome of one remote mutation call.
type Verdict struct {
	OK     bool
	Errors []MutationError
}

// Classify decides whether a mutation actually took effect. Pure; no I/O.
//
// The remote platform returns success status codes even when a mutation was
// silently ignored, so inline errors and a timestamp/quantity cross-check are
// the only reliable signals:
//
//   - inline remote errors -> USER_ERROR, one entry per reported item,
//     message and field path verbatim;
//   - unchanged updatedAt with a quantity delta that misses the expectation
//     (add: +sum of requested quantities, remove: -count of removed lines)
//     -> NO_OP_MUTATION plus a STALE_CART diagnostic naming the cart;
//   - updates carry no expected delta: an unchanged updatedAt alone marks
//     them as no-ops. An update that leaves the timestamp untouched is
//     indistinguishable from a true no-op;
//   - anything else is success.
func Classify(op Op, cartID string, remote []RemoteError, before, after Snapshot, expectedDelta *int) Verdict {
	if len(remote) > 0 {
		errs := make([]MutationError, 0, len(remote))
		for _, re := range remote {
			errs = append(errs, MutationError{
				Kind:    KindUserError,
				Message: re.Message,
				Field:   re.Field,
			})
		}
		return Verdict{Errors: errs}
	}

	if after.UpdatedAt.Equal(before.UpdatedAt) {
		actual := after.TotalQuantity - before.TotalQuantity
		switch {
		case op == OpUpdate:
			return noOpVerdict(cartID)
		case expectedDelta != nil && actual != *expectedDelta:
			return noOpVerdict(cartID)
		}
	}
	return Verdict{OK: true}
}

func noOpVerdict(cartID string) Verdict {
	return Verdict{Errors: []MutationError{
		{
			Kind:    KindNoOpMutation,
			Message: "mutation reported success but the cart did not change",
		},
		{
			Kind:    KindStaleCart,
			Message: fmt.Sprintf("cart %s may no longer be honored by the remote service", cartID),
		},
	}}
}

// AddDelta is the expected totalQuantity delta for an add of the given lines.
func AddDelta(lines []LineInput) int {
	sum := 0
	for _, l := range lines {
		sum += l.Quantity
	}
	return sum
}

// RemoveDelta is the expected totalQuantity delta for a removal of n lines.
// It undercounts lines holding more than one unit, which only matters in the
// already-suspicious unchanged-timestamp case.
func RemoveDelta(lineIDs []string) int {
	return -len(lineIDs)
}
