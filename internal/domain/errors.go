package domain

import "errors"

// ErrorType classifies every terminal pipeline failure. The value is stored
// verbatim on the HistoryRecord and returned to the API caller so it can
// present an actionable next step.
type ErrorType string

const (
	ErrorTypeNone               ErrorType = ""
	ErrorTypeValidation         ErrorType = "validation_error"
	ErrorTypeDuplicate          ErrorType = "duplicate"
	ErrorTypeInsufficientFunds  ErrorType = "insufficient_funds"
	ErrorTypePayeeNotFound      ErrorType = "payee_not_found"
	ErrorTypePaymentRejected    ErrorType = "payment_rejected"
	ErrorTypeExtractionFailed   ErrorType = "extraction_failed"
	ErrorTypeNotificationFailed ErrorType = "notification_failed"
)

// Validation errors returned by ExtractedPayment.Validate. They are never
// silently recovered from: a payment that fails validation is rejected before
// any external call is made.
var (
	// ErrMissingInvoiceNumber indicates the document carried no invoice number.
	ErrMissingInvoiceNumber = errors.New("invoice number is required")

	// ErrNonPositiveAmount indicates a missing, zero, or negative amount.
	ErrNonPositiveAmount = errors.New("amount must be greater than zero")

	// ErrMissingRecipient indicates no recipient name could be determined.
	ErrMissingRecipient = errors.New("recipient name is required")

	// ErrUnknownCurrency indicates the currency is not a valid ISO-4217 code.
	ErrUnknownCurrency = errors.New("unknown currency code")

	// ErrBadDateFormat indicates a date that is not formatted as YYYY-MM-DD.
	ErrBadDateFormat = errors.New("dates must be formatted as YYYY-MM-DD")

	// ErrBadAccountType indicates an account type outside {checking, savings}.
	ErrBadAccountType = errors.New("account type must be checking or savings")

	// ErrBadContactType indicates a contact type outside {individual, business}.
	ErrBadContactType = errors.New("contact type must be individual or business")
)
