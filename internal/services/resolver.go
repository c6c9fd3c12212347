// Package services – PayeeService
//
// This file implements payee resolution: deciding where a payment should go.
// Inline bank details found in the document always beat a provider-side name
// search; a sender who supplied full bank details should never be routed to
// whatever account a fuzzy name lookup happens to hit.
package services

import (
	"context"
	"strings"

	"github.com/Mustafa-Esoofally/Invoice-payment-agent/internal/domain"
)

// PayeeProvider defines the provider operations required by PayeeService.
type PayeeProvider interface {
	// SearchPayees returns candidate payees for a name, in provider order.
	SearchPayees(ctx context.Context, name string) ([]domain.Payee, error)

	// CreatePayee registers a destination from inline bank details.
	CreatePayee(ctx context.Context, bank domain.BankDetails, contact *domain.PayeeContact) (domain.Payee, error)
}

// ResolutionKind enumerates the three resolver outcomes.
type ResolutionKind int

const (
	// ResolutionNotFound means no destination could be determined.
	ResolutionNotFound ResolutionKind = iota
	// ResolutionUseBankDetails means the document carried a complete inline
	// destination.
	ResolutionUseBankDetails
	// ResolutionExistingPayee means a provider-side payee matched the
	// recipient name.
	ResolutionExistingPayee
)

// Resolution is the resolver's answer for one payment.
type Resolution struct {
	Kind    ResolutionKind
	Payee   *domain.Payee        // set for ResolutionExistingPayee
	Bank    *domain.BankDetails  // set for ResolutionUseBankDetails
	Contact *domain.PayeeContact // carried for destination creation
}

// PayeeService resolves payment destinations against the payment provider.
type PayeeService struct {
	Provider PayeeProvider
}

// Resolve decides the payment destination for a recipient. Complete inline
// bank details short-circuit without any provider call; otherwise the
// provider is searched by name. An exact case-insensitive name match is
// preferred; failing that, the first result stands (ties broken by provider
// order).
func (s *PayeeService) Resolve(ctx context.Context, recipientName string, bank *domain.BankDetails, contact *domain.PayeeContact) (Resolution, error) {
	if bank.Complete() {
		return Resolution{Kind: ResolutionUseBankDetails, Bank: bank, Contact: contact}, nil
	}

	name := strings.TrimSpace(recipientName)
	if name == "" {
		return Resolution{Kind: ResolutionNotFound}, nil
	}
	payees, err := s.Provider.SearchPayees(ctx, name)
	if err != nil {
		return Resolution{}, err
	}
	if len(payees) == 0 {
		return Resolution{Kind: ResolutionNotFound}, nil
	}

	pick := payees[0]
	for _, p := range payees {
		if strings.EqualFold(strings.TrimSpace(p.Name), name) {
			pick = p
			break
		}
	}
	return Resolution{Kind: ResolutionExistingPayee, Payee: &pick}, nil
}

// EnsureDestination turns a successful resolution into a dispatchable
// destination id, creating a provider payee from inline bank details when
// needed. Calling it with a NotFound resolution is a programming error and
// returns ErrPayeeNotFound.
func (s *PayeeService) EnsureDestination(ctx context.Context, res Resolution) (string, error) {
	switch res.Kind {
	case ResolutionExistingPayee:
		return res.Payee.ID, nil
	case ResolutionUseBankDetails:
		payee, err := s.Provider.CreatePayee(ctx, *res.Bank, res.Contact)
		if err != nil {
			return "", err
		}
		return payee.ID, nil
	default:
		return "", ErrPayeeNotFound
	}
}
