// Package payman implements the HTTP client for the payment provider. It
// covers the five provider operations the pipeline consumes: spendable
// balance, payee search, payee creation, payment dispatch, and customer
// deposit initiation.
//
// The client is constructed once at bootstrap and injected into services
// through narrow interfaces; it holds no global state. All methods take a
// context and respect the configured per-call timeout.
package payman

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Mustafa-Esoofally/Invoice-payment-agent/internal/config"
	"github.com/Mustafa-Esoofally/Invoice-payment-agent/internal/domain"
)

const (
	balancePath = "/payments/balances/spendable"
	searchPath  = "/payments/search-payees"
	payeePath   = "/payments/payees"
	sendPath    = "/payments/send-payment"
	depositPath = "/payments/initiate-customer-deposit"

	headerAPISecret = "x-payman-api-secret"
)

// APIError is a non-2xx response from the provider. The provider message is
// preserved verbatim so the pipeline can surface it unchanged.
type APIError struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("payman: %s (status %d)", e.Message, e.Status)
}

// Client talks to the payment provider over HTTPS.
type Client struct {
	apiSecret string
	baseURL   string
	payeeType string
	http      *http.Client
}

// New constructs a Client from provider configuration.
func New(cfg config.PaymanConfig) *Client {
	return &Client{
		apiSecret: cfg.APISecret,
		baseURL:   cfg.BaseURL,
		payeeType: cfg.PayeeType,
		http:      &http.Client{Timeout: cfg.Timeout},
	}
}

// PayeeType returns the destination type used for searches and creation
// (e.g. "US_ACH").
func (c *Client) PayeeType() string { return c.payeeType }

// GetBalance returns the spendable balance for the given currency.
func (c *Client) GetBalance(ctx context.Context, currencyCode string) (decimal.Decimal, error) {
	var out struct {
		SpendableBalance decimal.Decimal `json:"spendableBalance"`
	}
	q := url.Values{"currency": {currencyCode}}
	if err := c.do(ctx, http.MethodGet, balancePath+"?"+q.Encode(), nil, &out); err != nil {
		return decimal.Zero, err
	}
	return out.SpendableBalance, nil
}

// SearchPayees returns provider payees whose name matches the query, in
// provider-assigned order. An empty result is not an error.
func (c *Client) SearchPayees(ctx context.Context, name string) ([]domain.Payee, error) {
	q := url.Values{"name": {name}, "type": {c.payeeType}}
	var out []payeeEnvelope
	if err := c.do(ctx, http.MethodGet, searchPath+"?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	payees := make([]domain.Payee, 0, len(out))
	for _, p := range out {
		payees = append(payees, p.toDomain())
	}
	return payees, nil
}

// CreatePayee registers a new payment destination from inline bank details
// and returns its provider-assigned id. This is the only mutating payee
// operation in the system.
func (c *Client) CreatePayee(ctx context.Context, bank domain.BankDetails, contact *domain.PayeeContact) (domain.Payee, error) {
	body := createPayeeRequest{
		Type:              c.payeeType,
		Name:              bank.AccountHolderName,
		AccountHolderName: bank.AccountHolderName,
		AccountNumber:     bank.AccountNumber,
		RoutingNumber:     bank.RoutingNumber,
		AccountType:       bank.AccountType,
		BankName:          bank.BankName,
	}
	if contact != nil {
		body.ContactDetails = &contactDetails{
			ContactType: contact.ContactType,
			Email:       contact.Email,
			PhoneNumber: contact.Phone,
			Address:     contact.Address,
			TaxID:       contact.TaxID,
		}
	}
	var out payeeEnvelope
	if err := c.do(ctx, http.MethodPost, payeePath, body, &out); err != nil {
		return domain.Payee{}, err
	}
	return out.toDomain(), nil
}

// SendPayment dispatches a payment to an existing destination and returns the
// provider reference. The call itself is not idempotent; duplicate
// suppression is the caller's responsibility and happens before this point.
func (c *Client) SendPayment(ctx context.Context, amount decimal.Decimal, destinationID, memo string) (string, error) {
	body := sendPaymentRequest{
		AmountDecimal:        amount,
		PaymentDestinationID: destinationID,
		Memo:                 memo,
	}
	var out struct {
		Reference string `json:"reference"`
	}
	if err := c.do(ctx, http.MethodPost, sendPath, body, &out); err != nil {
		return "", err
	}
	return out.Reference, nil
}

// InitiateDeposit requests a checkout URL for adding funds. The provider may
// legitimately return an empty URL; callers treat that as non-fatal.
func (c *Client) InitiateDeposit(ctx context.Context, amount decimal.Decimal, memo string) (string, error) {
	body := depositRequest{
		AmountDecimal: amount,
		CustomerID:    "default",
		Memo:          memo,
		FeeMode:       "INCLUDED_IN_AMOUNT",
	}
	var out struct {
		CheckoutURL string `json:"checkoutUrl"`
	}
	if err := c.do(ctx, http.MethodPost, depositPath, body, &out); err != nil {
		return "", err
	}
	return out.CheckoutURL, nil
}

// do performs one provider call: encode body, set auth headers, check the
// status, decode into out (when non-nil).
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rdr io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rdr = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return err
	}
	req.Header.Set(headerAPISecret, c.apiSecret)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return decodeAPIError(res)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(res.Body).Decode(out)
}

// decodeAPIError extracts a provider error message, falling back to the raw
// body when the payload is not the usual {"message": ...} shape.
func decodeAPIError(res *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	msg := ""
	if err := json.Unmarshal(raw, &payload); err == nil {
		if payload.Message != "" {
			msg = payload.Message
		} else {
			msg = payload.Error
		}
	}
	if msg == "" {
		msg = string(bytes.TrimSpace(raw))
	}
	if msg == "" {
		msg = http.StatusText(res.StatusCode)
	}
	return &APIError{Status: res.StatusCode, Message: msg}
}

// IsTimeout reports whether err is a context deadline or transport timeout,
// as opposed to a provider-side rejection.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne interface{ Timeout() bool }
	if errors.As(err, &ne) {
		return ne.Timeout()
	}
	return false
}

// wire types

type payeeEnvelope struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Type           string          `json:"type"`
	Status         string          `json:"status"`
	ContactDetails *contactDetails `json:"contactDetails,omitempty"`
	CreatedAt      time.Time       `json:"createdAt,omitempty"`
}

func (p payeeEnvelope) toDomain() domain.Payee {
	out := domain.Payee{
		ID:     p.ID,
		Name:   p.Name,
		Type:   p.Type,
		Status: p.Status,
	}
	if p.ContactDetails != nil {
		out.Contact = &domain.PayeeContact{
			ContactType: p.ContactDetails.ContactType,
			Email:       p.ContactDetails.Email,
			Phone:       p.ContactDetails.PhoneNumber,
			Address:     p.ContactDetails.Address,
			TaxID:       p.ContactDetails.TaxID,
		}
	}
	return out
}

type contactDetails struct {
	ContactType string `json:"contactType,omitempty"`
	Email       string `json:"email,omitempty"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
	Address     string `json:"address,omitempty"`
	TaxID       string `json:"taxId,omitempty"`
}

type createPayeeRequest struct {
	Type              string          `json:"type"`
	Name              string          `json:"name"`
	AccountHolderName string          `json:"accountHolderName"`
	AccountNumber     string          `json:"accountNumber"`
	RoutingNumber     string          `json:"routingNumber"`
	AccountType       string          `json:"accountType"`
	BankName          string          `json:"bankName,omitempty"`
	ContactDetails    *contactDetails `json:"contactDetails,omitempty"`
}

type sendPaymentRequest struct {
	AmountDecimal        decimal.Decimal `json:"amountDecimal"`
	PaymentDestinationID string          `json:"paymentDestinationId"`
	Memo                 string          `json:"memo,omitempty"`
}

type depositRequest struct {
	AmountDecimal decimal.Decimal `json:"amountDecimal"`
	CustomerID    string          `json:"customerId"`
	Memo          string          `json:"memo,omitempty"`
	FeeMode       string          `json:"feeMode"`
}
