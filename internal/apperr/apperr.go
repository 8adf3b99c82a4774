// Package apperr defines the error taxonomy shared by the service layer
// and the API boundary. Services wrap these sentinels with context via
// fmt.Errorf("...: %w", ...); handlers classify with errors.Is.
package apperr

import "errors"

var (
	// ErrNotFound covers missing cart lines, orders and unresolvable
	// catalog items.
	ErrNotFound = errors.New("not found")

	// ErrEmptyCart rejects order creation from a cart with no lines.
	ErrEmptyCart = errors.New("cart is empty")

	// ErrLimitExceeded rejects quantity or cap violations.
	ErrLimitExceeded = errors.New("limit exceeded")

	// ErrInvalidTransition rejects illegal status changes, including
	// cancellation of a terminal order.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrInvalidState rejects operations on an order in the wrong state,
	// such as feedback on a non-completed order.
	ErrInvalidState = errors.New("invalid order state")

	// ErrForbidden rejects role-gated actions by unauthorized actors.
	ErrForbidden = errors.New("forbidden")

	// ErrUpstream marks a failed call to an external collaborator.
	ErrUpstream = errors.New("upstream service unavailable")
)
