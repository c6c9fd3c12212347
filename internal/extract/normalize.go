package extract

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Mustafa-Esoofally/Invoice-payment-agent/internal/domain"
)

// extractedPayload is the raw function-call payload. Amounts arrive as
// strings because extraction services frequently echo formatting from the
// document ("$1,500.00"); normalization strips it.
type extractedPayload struct {
	InvoiceNumber string `json:"invoice_number"`
	Amount        string `json:"amount"`
	Currency      string `json:"currency"`
	RecipientName string `json:"recipient_name"`
	InvoiceDate   string `json:"invoice_date"`
	DueDate       string `json:"due_date"`
	Description   string `json:"description"`
	BankDetails   *struct {
		AccountHolderName string `json:"account_holder_name"`
		AccountNumber     string `json:"account_number"`
		RoutingNumber     string `json:"routing_number"`
		AccountType       string `json:"account_type"`
		BankName          string `json:"bank_name"`
	} `json:"bank_details"`
	PayeeContact *struct {
		ContactType string `json:"contact_type"`
		Email       string `json:"email"`
		Phone       string `json:"phone"`
		Address     string `json:"address"`
		TaxID       string `json:"tax_id"`
	} `json:"payee_contact"`
}

// amountCruft matches everything that is not a digit, decimal point, or minus
// sign: currency symbols, codes, thousands separators, whitespace.
var amountCruft = regexp.MustCompile(`[^0-9.\-]`)

// ParseAmount normalizes a monetary string to a decimal: currency symbols and
// thousands separators are stripped before parsing. An empty or non-numeric
// remainder is an error, never a zero default.
func ParseAmount(s string) (decimal.Decimal, error) {
	cleaned := amountCruft.ReplaceAllString(strings.TrimSpace(s), "")
	if cleaned == "" {
		return decimal.Zero, fmt.Errorf("%w: empty amount", ErrNoExtraction)
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: bad amount %q", ErrNoExtraction, s)
	}
	return d, nil
}

// dateLayouts are the document date formats converted to ISO-8601. The first
// layout that parses wins.
var dateLayouts = []string{
	"2006-01-02",
	"01/02/2006",
	"2006/01/02",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
}

// NormalizeDate reformats a document date as YYYY-MM-DD. Unparseable optional
// dates yield "", not a guess.
func NormalizeDate(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02")
		}
	}
	return ""
}

// normalize converts the wire payload into the domain record, enforcing the
// schema constraints (ISO dates, clean decimal amounts, constrained enums).
// Required fields that are absent stay absent; the pipeline's validation
// stage turns that into a terminal validation failure.
func (p *extractedPayload) normalize() (*domain.ExtractedPayment, error) {
	out := &domain.ExtractedPayment{
		InvoiceNumber: strings.TrimSpace(p.InvoiceNumber),
		Currency:      strings.ToUpper(strings.TrimSpace(p.Currency)),
		RecipientName: strings.TrimSpace(p.RecipientName),
		InvoiceDate:   NormalizeDate(p.InvoiceDate),
		DueDate:       NormalizeDate(p.DueDate),
		Description:   strings.TrimSpace(p.Description),
	}
	if strings.TrimSpace(p.Amount) != "" {
		amt, err := ParseAmount(p.Amount)
		if err != nil {
			return nil, err
		}
		out.Amount = amt
	}
	if out.Currency == "" {
		out.Currency = domain.DefaultCurrency
	}

	if b := p.BankDetails; b != nil {
		bd := &domain.BankDetails{
			AccountHolderName: strings.TrimSpace(b.AccountHolderName),
			AccountNumber:     strings.TrimSpace(b.AccountNumber),
			RoutingNumber:     strings.TrimSpace(b.RoutingNumber),
			AccountType:       strings.ToLower(strings.TrimSpace(b.AccountType)),
			BankName:          strings.TrimSpace(b.BankName),
		}
		if *bd != (domain.BankDetails{}) {
			out.BankDetails = bd
		}
	}
	if c := p.PayeeContact; c != nil {
		pc := &domain.PayeeContact{
			ContactType: strings.ToLower(strings.TrimSpace(c.ContactType)),
			Email:       strings.TrimSpace(c.Email),
			Phone:       strings.TrimSpace(c.Phone),
			Address:     strings.TrimSpace(c.Address),
			TaxID:       strings.TrimSpace(c.TaxID),
		}
		if *pc != (domain.PayeeContact{}) {
			out.Contact = pc
		}
	}
	return out, nil
}
