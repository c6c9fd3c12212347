// Package services – NotificationService
//
// This file implements the bank-details fallback: when no payment
// destination can be resolved, the pipeline replies on the originating email
// thread asking the sender for bank details. A pending invoice whose history
// record carries email_sent=true means "wait for the sender; take no further
// automatic action".
package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ThreadReplier defines the messaging operation required by
// NotificationService.
type ThreadReplier interface {
	// ReplyToThread sends a plain-text reply on an email thread.
	ReplyToThread(ctx context.Context, threadID, recipientEmail, body string) error
}

// BankDetailsRequest carries everything needed to ask a sender for bank
// details.
type BankDetailsRequest struct {
	ThreadID       string
	RecipientEmail string
	RecipientName  string
	Amount         decimal.Decimal
	Currency       string
	InvoiceNumber  string
	// PayeeExists selects the template: true when a payee record exists but
	// lacks usable bank details, false when the recipient is entirely
	// unknown.
	PayeeExists bool
}

// NotificationService sends templated bank-details requests.
type NotificationService struct {
	Replier ThreadReplier
}

// RequestBankDetails validates the request and sends the appropriate
// template. A missing thread reference or recipient email is a precondition
// failure: no send is attempted and the caller records email_sent=false.
func (s *NotificationService) RequestBankDetails(ctx context.Context, req BankDetailsRequest) error {
	if strings.TrimSpace(req.ThreadID) == "" {
		return ErrMissingThreadRef
	}
	if strings.TrimSpace(req.RecipientEmail) == "" {
		return ErrMissingRecipientEmail
	}
	return s.Replier.ReplyToThread(ctx, req.ThreadID, req.RecipientEmail, req.body())
}

// body renders one of the two templates.
func (r BankDetailsRequest) body() string {
	name := strings.TrimSpace(r.RecipientName)
	if name == "" {
		name = "there"
	}
	amount := fmt.Sprintf("%s %s", r.Amount.StringFixed(2), r.Currency)
	invoice := strings.TrimSpace(r.InvoiceNumber)
	if invoice != "" {
		invoice = " " + invoice
	}

	if r.PayeeExists {
		return fmt.Sprintf(
			"Hello %s,\n\n"+
				"We received your invoice%s for %s and are ready to pay it, but the payee record "+
				"on file has no usable bank details.\n\n"+
				"Please reply with the following so we can complete the payment:\n"+
				"- Account holder name\n"+
				"- Account number\n"+
				"- Routing number\n"+
				"- Account type (checking or savings)\n"+
				"- Bank name\n\n"+
				"The payment will be sent as soon as we receive this information.\n\n"+
				"Thank you",
			name, invoice, amount)
	}
	return fmt.Sprintf(
		"Hello %s,\n\n"+
			"We received your invoice%s for %s, but we have no payment details on file for you.\n\n"+
			"Please reply with the following so we can set you up as a payee and complete the payment:\n"+
			"- Account holder name\n"+
			"- Account number\n"+
			"- Routing number\n"+
			"- Account type (checking or savings)\n"+
			"- Bank name\n\n"+
			"The payment will be sent as soon as we receive this information.\n\n"+
			"Thank you",
		name, invoice, amount)
}
