// Package domain defines the persistence models and value types for the
// invoice-to-payment pipeline. Value types in this file are ephemeral: they
// describe one inbound invoice and the structured payment record derived from
// it. Only the processing outcome (HistoryRecord) and the invoice document
// itself are persisted.
package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

// Account types accepted for inline bank details.
const (
	AccountTypeChecking = "checking"
	AccountTypeSavings  = "savings"
)

// Contact types accepted for payee contact records.
const (
	ContactTypeIndividual = "individual"
	ContactTypeBusiness   = "business"
)

// DefaultCurrency is applied when the extraction service returns no currency.
const DefaultCurrency = "USD"

// SourceRef identifies where an inbound invoice came from. MessageID and
// AttachmentID form the primary dedup key; the remaining fields are carried
// for auditing and for replying to the originating thread.
type SourceRef struct {
	ThreadID     string `json:"thread_id"`
	MessageID    string `json:"message_id"`
	AttachmentID string `json:"attachment_id"`
	Sender       string `json:"sender"`
	Subject      string `json:"subject"`
}

// InboundInvoice is one document handed to the pipeline. Either RawText is
// set (and the extraction service is consulted) or Payment carries fields
// extracted upstream. InvoiceID, when present, names the invoice document
// whose status the pipeline transitions.
type InboundInvoice struct {
	Source     SourceRef         `json:"source"`
	RawText    string            `json:"raw_text,omitempty"`
	Payment    *ExtractedPayment `json:"payment,omitempty"`
	CustomerID string            `json:"customer_id,omitempty"`
	InvoiceID  string            `json:"invoice_id,omitempty"`
	ReceivedAt time.Time         `json:"received_at"`
}

// BankDetails is an inline payment destination found in the document itself.
type BankDetails struct {
	AccountHolderName string `json:"account_holder_name"`
	AccountNumber     string `json:"account_number"`
	RoutingNumber     string `json:"routing_number"`
	AccountType       string `json:"account_type"`
	BankName          string `json:"bank_name,omitempty"`
}

// Complete reports whether the details are sufficient to construct a payment
// destination without a provider lookup: holder, account, routing, and
// account type must all be present.
func (b *BankDetails) Complete() bool {
	if b == nil {
		return false
	}
	return strings.TrimSpace(b.AccountHolderName) != "" &&
		strings.TrimSpace(b.AccountNumber) != "" &&
		strings.TrimSpace(b.RoutingNumber) != "" &&
		strings.TrimSpace(b.AccountType) != ""
}

// PayeeContact carries contact metadata for the payment recipient.
type PayeeContact struct {
	ContactType string `json:"contact_type,omitempty"`
	Email       string `json:"email,omitempty"`
	Phone       string `json:"phone,omitempty"`
	Address     string `json:"address,omitempty"`
	TaxID       string `json:"tax_id,omitempty"`
}

// ExtractedPayment is the schema-validated payment record derived from one
// invoice document. It is immutable once produced: validation failures reject
// the value rather than patching it.
type ExtractedPayment struct {
	InvoiceNumber string          `json:"invoice_number"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency,omitempty"`
	RecipientName string          `json:"recipient_name"`
	InvoiceDate   string          `json:"invoice_date,omitempty"`
	DueDate       string          `json:"due_date,omitempty"`
	Description   string          `json:"description,omitempty"`
	BankDetails   *BankDetails    `json:"bank_details,omitempty"`
	Contact       *PayeeContact   `json:"payee_contact,omitempty"`
}

// Validate enforces the invariants required before any payment attempt:
// a non-empty invoice number, an amount strictly greater than zero, a
// non-empty recipient, ISO-8601 dates, a known currency code, and constrained
// enum fields. It never defaults a missing required field.
func (p *ExtractedPayment) Validate() error {
	if p == nil {
		return ErrMissingInvoiceNumber
	}
	if strings.TrimSpace(p.InvoiceNumber) == "" {
		return ErrMissingInvoiceNumber
	}
	if !p.Amount.IsPositive() {
		return ErrNonPositiveAmount
	}
	if strings.TrimSpace(p.RecipientName) == "" {
		return ErrMissingRecipient
	}
	if p.Currency != "" {
		if _, err := currency.ParseISO(p.Currency); err != nil {
			return ErrUnknownCurrency
		}
	}
	for _, d := range []string{p.InvoiceDate, p.DueDate} {
		if d == "" {
			continue
		}
		if _, err := time.Parse("2006-01-02", d); err != nil {
			return ErrBadDateFormat
		}
	}
	if p.BankDetails != nil && p.BankDetails.AccountType != "" {
		switch p.BankDetails.AccountType {
		case AccountTypeChecking, AccountTypeSavings:
		default:
			return ErrBadAccountType
		}
	}
	if p.Contact != nil && p.Contact.ContactType != "" {
		switch p.Contact.ContactType {
		case ContactTypeIndividual, ContactTypeBusiness:
		default:
			return ErrBadContactType
		}
	}
	return nil
}

// CurrencyOrDefault returns the payment currency, falling back to USD.
func (p *ExtractedPayment) CurrencyOrDefault() string {
	if p == nil || strings.TrimSpace(p.Currency) == "" {
		return DefaultCurrency
	}
	return strings.ToUpper(strings.TrimSpace(p.Currency))
}

// Payee is a provider-side payment destination. The pipeline only ever reads
// payees, except for creating one from inline bank details when no match
// exists.
type Payee struct {
	ID      string        `json:"id"`
	Name    string        `json:"name"`
	Type    string        `json:"type"`
	Status  string        `json:"status,omitempty"`
	Contact *PayeeContact `json:"contact,omitempty"`
}
