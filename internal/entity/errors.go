package entity

import "errors"

var (
	// ErrValidation marks a malformed or incomplete request. No state change.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound marks an unknown order id.
	ErrNotFound = errors.New("order not found")
	// ErrSignatureMismatch marks a failed client payment-signature check.
	ErrSignatureMismatch = errors.New("invalid payment signature")
	// ErrWebhookAuth marks a webhook delivery with a bad signature header.
	ErrWebhookAuth = errors.New("invalid webhook signature")
	// ErrConflict marks an operation invalid for the order's current state,
	// e.g. refunding an unpaid order.
	ErrConflict = errors.New("operation conflicts with order state")
	// ErrGateway marks a failed or timed-out payment gateway call.
	// No partial local mutation is committed when this is returned.
	ErrGateway = errors.New("payment gateway error")
	// ErrVersionConflict is returned by the store when a versioned update
	// lost a race with a concurrent writer.
	ErrVersionConflict = errors.New("order version conflict")
)
