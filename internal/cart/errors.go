package cart

import (
	"fmt"
	"strings"

	"github.com/lumora/storefront-api/internal/entity"
)

// ErrorKind is the closed set of mutation failure classifications.
type ErrorKind string

const (
	// KindUserError: the remote platform rejected the input itself.
	KindUserError ErrorKind = "USER_ERROR"
	// KindStaleCart: the cart id is no longer honored by the remote platform.
	KindStaleCart ErrorKind = "STALE_CART"
	// KindNoOpMutation: the call looked successful but changed nothing.
	KindNoOpMutation ErrorKind = "NO_OP_MUTATION"
	// KindContextMismatch: the cart was created under a different locale.
	KindContextMismatch ErrorKind = "CONTEXT_MISMATCH"
	// KindRecoveryFailed: recreate-and-replay did not produce a usable cart.
	KindRecoveryFailed ErrorKind = "RECOVERY_FAILED"
	// KindUnknown: transport failures and captured panics/exceptions.
	KindUnknown ErrorKind = "UNKNOWN_ERROR"
)

// MutationError is a failure as data. It is returned, never thrown, across
// the orchestrator boundary.
type MutationError struct {
	Kind    ErrorKind
	Message string
	Field   []string
	Cause   error
}

func (e MutationError) Error() string {
	if len(e.Field) > 0 {
		return fmt.Sprintf("%s: %s (field %s)", e.Kind, e.Message, strings.Join(e.Field, "."))
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e MutationError) Unwrap() error { return e.Cause }

// Op names the mutation being orchestrated.
type Op string

const (
	OpAdd    Op = "add_lines"
	OpUpdate Op = "update_lines"
	OpRemove Op = "remove_lines"
	OpCreate Op = "create_cart"
)

// MutationResult is the authoritative outcome of one orchestrated mutation.
// Exactly one of Success or a non-empty Errors list holds in any value handed
// to a caller.
type MutationResult struct {
	Success      bool
	Cart         *entity.Cart
	Errors       []MutationError
	WasRecovered bool
	NewCartID    string
}

func success(c *entity.Cart) MutationResult {
	return MutationResult{Success: true, Cart: c}
}

func failure(errs ...MutationError) MutationResult {
	return MutationResult{Errors: errs}
}

func unknownErr(msg string, cause error) MutationError {
	return MutationError{Kind: KindUnknown, Message: msg, Cause: cause}
}

const busyMessage = "another mutation is in progress"

// IsBusy reports whether the result is the single-flight fail-fast rejection;
// the caller should simply retry.
func (r MutationResult) IsBusy() bool {
	return len(r.Errors) == 1 && r.Errors[0].Kind == KindUnknown && r.Errors[0].Message == busyMessage
}

// FirstKind returns the kind of the first error, or "" on success. Handy for
// journaling and HTTP status mapping.
func (r MutationResult) FirstKind() ErrorKind {
	if len(r.Errors) == 0 {
		return ""
	}
	return r.Errors[0].Kind
}

// HasKind reports whether any error in the result carries the given kind.
func (r MutationResult) HasKind(k ErrorKind) bool {
	for _, e := range r.Errors {
		if e.Kind == k {
			return true
		}
	}
	return false
}
