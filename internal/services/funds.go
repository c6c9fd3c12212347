// Package services – FundsService
//
// This file implements the funds gate: the pre-dispatch balance check that
// lets the pipeline fail fast before any payee lookup or payment call. Funds
// are verified exactly once, at gate time; the provider remains the final
// source of truth and may still reject a racing dispatch, which surfaces as
// a normal payment failure.
package services

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// BalanceProvider defines the provider operations required by FundsService.
type BalanceProvider interface {
	// GetBalance returns the spendable balance for a currency.
	GetBalance(ctx context.Context, currency string) (decimal.Decimal, error)

	// InitiateDeposit requests a checkout URL for adding funds.
	InitiateDeposit(ctx context.Context, amount decimal.Decimal, memo string) (string, error)
}

// FundsCheck is the outcome of one balance check.
type FundsCheck struct {
	Sufficient bool            `json:"sufficient"`
	Available  decimal.Decimal `json:"available"`
	Shortfall  decimal.Decimal `json:"shortfall"`
	// CheckoutURL is a provider link for topping up the shortfall. It may be
	// empty even when funds are insufficient: the top-up request is
	// best-effort.
	CheckoutURL string `json:"checkout_url,omitempty"`
}

// FundsService checks available balance against required amounts.
type FundsService struct {
	Provider BalanceProvider
}

// Check compares the spendable balance with the required amount. On
// shortfall it additionally requests a top-up checkout URL; failure to
// obtain one is logged and ignored, the insufficiency itself is what the
// caller acts on.
func (s *FundsService) Check(ctx context.Context, required decimal.Decimal, currency string) (FundsCheck, error) {
	available, err := s.Provider.GetBalance(ctx, currency)
	if err != nil {
		return FundsCheck{}, err
	}
	if available.GreaterThanOrEqual(required) {
		return FundsCheck{Sufficient: true, Available: available}, nil
	}

	out := FundsCheck{
		Available: available,
		Shortfall: required.Sub(available),
	}
	url, err := s.Provider.InitiateDeposit(ctx, out.Shortfall, "Top up for invoice payment")
	if err != nil {
		log.Warn().Err(err).
			Str("shortfall", out.Shortfall.String()).
			Msg("checkout url request failed")
		return out, nil
	}
	out.CheckoutURL = url
	return out, nil
}
