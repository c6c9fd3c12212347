// Package services defines the business logic of the invoice-to-payment
// pipeline: duplicate detection, funds gating, payee resolution, payment
// dispatch, and bank-details notification, sequenced by the pipeline service.
// This file centralizes common service-level error values so that they can be
// consistently returned by service methods and checked by callers.
//
// These errors are intended for internal use by the service layer and
// translation into user-facing messages or HTTP status codes should be
// performed at the handler layer.
package services

import "errors"

var (
	// ErrAlreadyProcessed indicates the invoice matched a settled history
	// record; no new processing attempt is made.
	ErrAlreadyProcessed = errors.New("invoice already processed")

	// ErrPayeeNotFound indicates that neither inline bank details nor a
	// provider-side payee could be resolved for the recipient.
	ErrPayeeNotFound = errors.New("payee not found")

	// ErrInsufficientFunds indicates the funds gate found the spendable
	// balance below the required amount.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrMissingThreadRef is returned when a bank-details request lacks the
	// thread reference needed to reply.
	ErrMissingThreadRef = errors.New("thread reference is required")

	// ErrMissingRecipientEmail is returned when a bank-details request lacks
	// a recipient address.
	ErrMissingRecipientEmail = errors.New("recipient email is required")

	// ErrInvoiceNotFound indicates that the referenced invoice document does
	// not exist or is not accessible to the current customer.
	ErrInvoiceNotFound = errors.New("invoice not found")
)
