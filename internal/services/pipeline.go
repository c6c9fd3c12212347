// Package services – PipelineService
//
// This file implements the pipeline orchestrator, the component that turns
// one inbound invoice into exactly one terminal or paused outcome:
//
//	received → validated → duplicate short-circuit
//	                     → funds checked → payee resolved → paid
//	                                                      → awaiting bank details
//	any stage failure    → failed (classified)
//
// Ordering rules enforced here: validation before any external call, the
// duplicate check before anything that spends money, the funds gate before
// payee resolution, and inline bank details before a provider name search.
// Every terminal and paused outcome appends exactly one history record;
// a settled duplicate appends nothing.
//
// Observability: Process is OpenTelemetry-instrumented and emits structured
// stage logs via zerolog.
package services

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/Mustafa-Esoofally/Invoice-payment-agent/internal/domain"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/shopspring/decimal"
)

// Extractor converts raw document text into a structured payment record.
type Extractor interface {
	Extract(ctx context.Context, text string) (*domain.ExtractedPayment, error)
}

// FundsGate checks spendable balance against a required amount.
type FundsGate interface {
	Check(ctx context.Context, required decimal.Decimal, currency string) (FundsCheck, error)
}

// PayeeResolver resolves payment destinations.
type PayeeResolver interface {
	Resolve(ctx context.Context, recipientName string, bank *domain.BankDetails, contact *domain.PayeeContact) (Resolution, error)
	EnsureDestination(ctx context.Context, res Resolution) (string, error)
}

// PaymentExecutor dispatches one payment.
type PaymentExecutor interface {
	Send(ctx context.Context, amount decimal.Decimal, destinationID, memo string) (string, error)
}

// BankDetailsNotifier requests missing bank details from the sender.
type BankDetailsNotifier interface {
	RequestBankDetails(ctx context.Context, req BankDetailsRequest) error
}

// InvoiceStatusStore transitions invoice document status. Implementations
// wrap the invoice repository; status writes are best-effort relative to the
// primary outcome.
type InvoiceStatusStore interface {
	UpdateStatus(ctx context.Context, invoiceID, status string) error
}

// Result is the caller-visible outcome of one pipeline run.
type Result struct {
	Status      string            `json:"status"` // paid | failed | awaiting_bank_details
	Success     bool              `json:"success"`
	Error       string            `json:"error,omitempty"`
	ErrorType   domain.ErrorType  `json:"error_type,omitempty"`
	PaymentID   string            `json:"payment_id,omitempty"`
	CheckoutURL string            `json:"checkout_url,omitempty"`
	EmailSent   bool              `json:"email_sent"`
	Payment     *domain.ExtractedPayment `json:"payment,omitempty"`
	// Previous is the latest prior attempt when this run matched history:
	// the settled record on a duplicate short-circuit, or the failed/paused
	// record being retried.
	Previous *domain.HistoryRecord `json:"previous,omitempty"`
}

// PipelineService sequences the pipeline stages for one invoice at a time.
type PipelineService struct {
	Extractor Extractor
	History   *HistoryService
	Funds     FundsGate
	Payees    PayeeResolver
	Executor  PaymentExecutor
	Notifier  BankDetailsNotifier
	// Invoices is optional; when set and the inbound invoice names a
	// document id, status transitions are written through it.
	Invoices InvoiceStatusStore
}

// Process runs one invoice to a terminal or paused state. The returned error
// is reserved for infrastructure faults (a history append that failed, a
// broken duplicate lookup); every business failure comes back inside Result.
func (s *PipelineService) Process(ctx context.Context, inv domain.InboundInvoice) (*Result, error) {
	tr := otel.Tracer("services/PipelineService")
	ctx, span := tr.Start(ctx, "Process",
		trace.WithAttributes(
			attribute.String("invoice.message_id", inv.Source.MessageID),
			attribute.String("invoice.attachment_id", inv.Source.AttachmentID),
		),
	)
	defer span.End()

	s.markInvoice(ctx, inv.InvoiceID, domain.InvoiceStatusProcessing)

	// Stage: extraction (only when no pre-extracted fields were supplied).
	payment := inv.Payment
	if payment == nil {
		extracted, err := s.Extractor.Extract(ctx, inv.RawText)
		if err != nil {
			log.Warn().Err(err).
				Str("message_id", inv.Source.MessageID).
				Msg("extraction failed")
			return s.finish(ctx, inv, nil, &Result{
				Status:    domain.InvoiceStatusFailed,
				Error:     err.Error(),
				ErrorType: domain.ErrorTypeExtractionFailed,
			})
		}
		payment = extracted
	}

	// Stage: validation. No external call happens before this passes.
	if err := payment.Validate(); err != nil {
		return s.finish(ctx, inv, payment, &Result{
			Status:    domain.InvoiceStatusFailed,
			Error:     err.Error(),
			ErrorType: domain.ErrorTypeValidation,
		})
	}

	// Hold the per-invoice lock across the duplicate check and the final
	// append so a concurrent run for the same document cannot interleave.
	unlock := s.History.LockKey(dedupKey(inv.Source, payment))
	defer unlock()

	// Stage: duplicate detection.
	dup, err := s.History.FindDuplicate(ctx, inv.Source, payment)
	if err != nil {
		return nil, fmt.Errorf("duplicate check: %w", err)
	}
	var previous *domain.HistoryRecord
	if dup != nil {
		previous = dup.Record
		if dup.Settled() {
			// Definitively settled: report and stop without a new record.
			span.SetAttributes(attribute.Bool("invoice.duplicate", true))
			s.markInvoice(ctx, inv.InvoiceID, domain.InvoiceStatusFailed)
			return &Result{
				Status:    domain.InvoiceStatusFailed,
				Error:     domain.ErrMsgAlreadyProcessed,
				ErrorType: domain.ErrorTypeDuplicate,
				Payment:   payment,
				Previous:  previous,
			}, nil
		}
		log.Info().
			Str("invoice_number", payment.InvoiceNumber).
			Str("prior_error", previous.Error).
			Msg("retrying previously unsettled invoice")
	}

	// Stage: funds gate. Checked before any payee work so an underfunded
	// account fails fast.
	funds, err := s.Funds.Check(ctx, payment.Amount, payment.CurrencyOrDefault())
	if err != nil {
		return s.finish(ctx, inv, payment, &Result{
			Status:    domain.InvoiceStatusFailed,
			Error:     err.Error(),
			ErrorType: domain.ErrorTypePaymentRejected,
			Previous:  previous,
		})
	}
	if !funds.Sufficient {
		return s.finish(ctx, inv, payment, &Result{
			Status: domain.InvoiceStatusFailed,
			Error: fmt.Sprintf("Insufficient funds: required %s, available %s",
				payment.Amount.StringFixed(2), funds.Available.StringFixed(2)),
			ErrorType:   domain.ErrorTypeInsufficientFunds,
			CheckoutURL: funds.CheckoutURL,
			Previous:    previous,
		})
	}

	// Stage: payee resolution.
	res, err := s.Payees.Resolve(ctx, payment.RecipientName, payment.BankDetails, payment.Contact)
	if err != nil {
		return s.finish(ctx, inv, payment, &Result{
			Status:    domain.InvoiceStatusFailed,
			Error:     err.Error(),
			ErrorType: domain.ErrorTypePaymentRejected,
			Previous:  previous,
		})
	}
	if res.Kind == ResolutionNotFound {
		return s.requestBankDetails(ctx, inv, payment, previous)
	}

	destID, err := s.Payees.EnsureDestination(ctx, res)
	if err != nil {
		return s.finish(ctx, inv, payment, &Result{
			Status:    domain.InvoiceStatusFailed,
			Error:     err.Error(),
			ErrorType: domain.ErrorTypePaymentRejected,
			Previous:  previous,
		})
	}

	// Stage: dispatch.
	memo := payment.Description
	if memo == "" {
		memo = "Invoice " + payment.InvoiceNumber
	}
	ref, err := s.Executor.Send(ctx, payment.Amount, destID, memo)
	if err != nil {
		return s.finish(ctx, inv, payment, &Result{
			Status:    domain.InvoiceStatusFailed,
			Error:     err.Error(),
			ErrorType: domain.ErrorTypePaymentRejected,
			Previous:  previous,
		})
	}

	log.Info().
		Str("invoice_number", payment.InvoiceNumber).
		Str("payment_id", ref).
		Str("amount", payment.Amount.StringFixed(2)).
		Msg("payment sent")
	return s.finish(ctx, inv, payment, &Result{
		Status:    domain.InvoiceStatusPaid,
		Success:   true,
		PaymentID: ref,
		Previous:  previous,
	})
}

// requestBankDetails handles the NotFound branch: send the templated request
// and pause the invoice.
func (s *PipelineService) requestBankDetails(ctx context.Context, inv domain.InboundInvoice, payment *domain.ExtractedPayment, previous *domain.HistoryRecord) (*Result, error) {
	emailSent := false
	err := s.Notifier.RequestBankDetails(ctx, BankDetailsRequest{
		ThreadID:       inv.Source.ThreadID,
		RecipientEmail: inv.Source.Sender,
		RecipientName:  payment.RecipientName,
		Amount:         payment.Amount,
		Currency:       payment.CurrencyOrDefault(),
		InvoiceNumber:  payment.InvoiceNumber,
		PayeeExists:    false,
	})
	if err != nil {
		// Best-effort: the primary outcome stays payee_not_found.
		log.Warn().Err(err).
			Str("thread_id", inv.Source.ThreadID).
			Msg("bank details request not sent")
	} else {
		emailSent = true
	}

	return s.finish(ctx, inv, payment, &Result{
		Status:    domain.InvoiceStatusAwaiting,
		Error:     ErrPayeeNotFound.Error(),
		ErrorType: domain.ErrorTypePayeeNotFound,
		EmailSent: emailSent,
		Previous:  previous,
	})
}

// finish appends the history record for a terminal or paused outcome,
// transitions the invoice document, and returns the result. A failed append
// is an infrastructure fault: no outcome may go unrecorded.
func (s *PipelineService) finish(ctx context.Context, inv domain.InboundInvoice, payment *domain.ExtractedPayment, r *Result) (*Result, error) {
	r.Payment = payment

	rec := &domain.HistoryRecord{
		ThreadID:     inv.Source.ThreadID,
		MessageID:    inv.Source.MessageID,
		AttachmentID: inv.Source.AttachmentID,
		Sender:       inv.Source.Sender,
		Subject:      inv.Source.Subject,
		Success:      r.Success,
		Error:        r.Error,
		ErrorType:    r.ErrorType,
		EmailSent:    r.EmailSent,
		PaymentID:    r.PaymentID,
		CheckoutURL:  r.CheckoutURL,
	}
	if payment != nil {
		rec.InvoiceNumber = payment.InvoiceNumber
		rec.InvoiceDate = payment.InvoiceDate
		rec.Amount = payment.Amount
		rec.Currency = payment.CurrencyOrDefault()
		rec.Recipient = payment.RecipientName
		rec.Description = payment.Description
	}
	if err := s.History.Append(ctx, rec); err != nil {
		return nil, fmt.Errorf("append history: %w", err)
	}

	s.markInvoice(ctx, inv.InvoiceID, r.Status)
	return r, nil
}

// markInvoice writes an invoice document status transition when a document
// id is known. Failures are logged, not propagated.
func (s *PipelineService) markInvoice(ctx context.Context, invoiceID, status string) {
	if s.Invoices == nil || invoiceID == "" {
		return
	}
	if err := s.Invoices.UpdateStatus(ctx, invoiceID, status); err != nil {
		log.Warn().Err(err).
			Str("invoice_id", invoiceID).
			Str("status", status).
			Msg("invoice status update failed")
	}
}

// dedupKey derives the per-invoice lock key: the exact email pair when
// present, else the fuzzy invoice tuple.
func dedupKey(source domain.SourceRef, payment *domain.ExtractedPayment) string {
	if source.MessageID != "" {
		return source.MessageID + "/" + source.AttachmentID
	}
	return payment.InvoiceNumber + "/" + payment.InvoiceDate + "/" +
		payment.Amount.String() + "/" + payment.RecipientName
}
