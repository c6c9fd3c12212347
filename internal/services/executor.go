// Package services – PaymentService
//
// This file implements the payment executor: one provider dispatch per call,
// no retry loop. Idempotency is not a property of the provider call; it is
// guaranteed by the duplicate check that runs strictly before this step. A
// retried invoice re-enters the whole pipeline and is caught there.
package services

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Mustafa-Esoofally/Invoice-payment-agent/internal/payman"
)

// PaymentSender defines the provider operation required by PaymentService.
type PaymentSender interface {
	// SendPayment dispatches one payment and returns the provider reference.
	SendPayment(ctx context.Context, amount decimal.Decimal, destinationID, memo string) (string, error)
}

// DispatchFailure classifies why a dispatch failed. The classification is
// informational (logging, metrics); every executor failure maps to the same
// terminal pipeline state.
type DispatchFailure int

const (
	// FailureProviderRejected covers provider-side rejections.
	FailureProviderRejected DispatchFailure = iota
	// FailureInsufficientFunds covers balance races caught at dispatch time.
	FailureInsufficientFunds
	// FailureTimeout covers transport errors and deadline expiry.
	FailureTimeout
)

// DispatchError wraps a failed dispatch with its classification. The
// provider message is preserved verbatim.
type DispatchError struct {
	Kind DispatchFailure
	Err  error
}

// Error implements the error interface.
func (e *DispatchError) Error() string { return e.Err.Error() }

// Unwrap exposes the underlying provider or transport error.
func (e *DispatchError) Unwrap() error { return e.Err }

// PaymentService submits payments through the payment provider.
type PaymentService struct {
	Provider PaymentSender
}

// Send dispatches amount to destinationID and returns the provider-assigned
// reference. Failures come back as *DispatchError; the provider message is
// not rewritten.
func (s *PaymentService) Send(ctx context.Context, amount decimal.Decimal, destinationID, memo string) (string, error) {
	ref, err := s.Provider.SendPayment(ctx, amount, destinationID, memo)
	if err != nil {
		return "", &DispatchError{Kind: classifyDispatch(err), Err: err}
	}
	return ref, nil
}

// classifyDispatch buckets a dispatch error into timeout, insufficient
// funds, or generic provider rejection.
func classifyDispatch(err error) DispatchFailure {
	if payman.IsTimeout(err) {
		return FailureTimeout
	}
	var apiErr *payman.APIError
	if errors.As(err, &apiErr) &&
		strings.Contains(strings.ToLower(apiErr.Message), "insufficient") {
		return FailureInsufficientFunds
	}
	return FailureProviderRejected
}
