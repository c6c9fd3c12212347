// Invoice processing HTTP handler.
//
// This file exposes the pipeline entrypoint:
//   - POST /invoices/process   (run one inbound invoice to a terminal state)
//
// Handlers are transport-thin:
//   - validate & normalize inputs (source refs, raw text or pre-extracted fields)
//   - delegate to application services (PipelineService)
//   - implement idempotency semantics
//
// Idempotency:
// If the client supplies an Idempotency-Key header and a previous result
// exists for (customer, message, key), the handler returns the outcome the
// recorded history row describes and sets `Idempotency-Replayed: true`. This
// is a transport-level replay guard; the pipeline's own duplicate detection
// still applies to retries without a key.
package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/Mustafa-Esoofally/Invoice-payment-agent/internal/domain"
	"github.com/Mustafa-Esoofally/Invoice-payment-agent/internal/http/middleware"
	"github.com/Mustafa-Esoofally/Invoice-payment-agent/internal/repo"
	"github.com/Mustafa-Esoofally/Invoice-payment-agent/internal/services"
	"github.com/Mustafa-Esoofally/Invoice-payment-agent/internal/utils"
)

//
// Service contracts (context-aware)
//

// ProcessService runs one inbound invoice through the payment pipeline.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type ProcessService interface {
	// Process runs the invoice to a terminal or paused outcome.
	Process(ctx context.Context, inv domain.InboundInvoice) (*services.Result, error)
}

// HistoryService exposes the payment history log to the HTTP layer.
type HistoryService interface {
	// ListPage returns a page of history records and the total count.
	ListPage(ctx context.Context, page, pageSize int) ([]domain.HistoryRecord, int64, error)
}

// InvoiceService exposes the invoice document store to the HTTP layer.
type InvoiceService interface {
	// Ingest stores a new invoice document for the customer.
	Ingest(ctx context.Context, customerID string, inv *domain.Invoice) (*domain.Invoice, error)
	// Get returns one invoice owned by the customer.
	Get(ctx context.Context, id, customerID string) (*domain.Invoice, error)
	// ListPage returns a page of the customer's invoices and the total count.
	ListPage(ctx context.Context, customerID string, page, pageSize int) ([]domain.Invoice, int64, error)
}

//
// Handler wiring
//

// Handlers groups HTTP endpoints for invoice processing, payment history, and
// invoice documents. It depends on abstract service interfaces to keep
// transport concerns separate from business logic.
type Handlers struct {
	procSvc ProcessService
	histSvc HistoryService
	invSvc  InvoiceService
}

// New constructs and returns a Handlers instance bound to the given services.
func New(procSvc ProcessService, histSvc HistoryService, invSvc InvoiceService) *Handlers {
	return &Handlers{procSvc: procSvc, histSvc: histSvc, invSvc: invSvc}
}

// customerID extracts the customer id from Gin context (set by upstream
// middleware). If absent, it falls back to the "X-Customer-ID" header (tests
// use it), and finally to "default". It never touches c.Request if it's nil.
func customerID(c *gin.Context) string {
	if v, ok := c.Get("customerID"); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	if c != nil && c.Request != nil {
		if h := strings.TrimSpace(c.GetHeader("X-Customer-ID")); h != "" {
			return h
		}
	}
	return "default"
}

//
// DTOs
//

// ProcessInvoiceRequest is the JSON payload for running one inbound invoice.
//
// Exactly one path applies: RawText feeds the extraction service, or Payment
// carries fields extracted upstream. Source refs identify the originating
// email; MessageID and AttachmentID form the duplicate-detection key and
// ThreadID/Sender drive the bank-details reply.
type ProcessInvoiceRequest struct {
	Source  domain.SourceRef         `json:"source"`
	RawText string                   `json:"raw_text,omitempty"`
	Payment *domain.ExtractedPayment `json:"payment,omitempty"`
	// InvoiceID names an existing invoice document whose status the run
	// transitions. When empty, a new document is ingested for the customer.
	InvoiceID string `json:"invoice_id,omitempty"`
}

// ProcessInvoiceResponse is the JSON envelope for a pipeline outcome.
type ProcessInvoiceResponse struct {
	// InvoiceID is the invoice document this run transitioned.
	InvoiceID string `json:"invoice_id,omitempty"`
	// Result is the pipeline outcome for this run.
	*services.Result
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

//
// Helpers
//

// clampPagination parses and bounds page and page_size query params to sane
// defaults and limits, returning (page, pageSize).
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = utils.AtoiDefault(c.Query("page_size"), defaultPageSize)
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return
}

// historyDB returns the GORM handle behind the concrete history service, when
// available. Used for ETag stats and idempotency records; both are best
// effort and skipped when the handler was wired with a bare interface.
func (h *Handlers) historyDB() *gorm.DB {
	if svc, ok := h.histSvc.(*services.HistoryService); ok {
		return svc.DB
	}
	return nil
}

// recordStatus derives the lifecycle status a history record describes.
func recordStatus(rec *domain.HistoryRecord) string {
	switch {
	case rec.Success:
		return domain.InvoiceStatusPaid
	case rec.ErrorType == domain.ErrorTypePayeeNotFound:
		return domain.InvoiceStatusAwaiting
	default:
		return domain.InvoiceStatusFailed
	}
}

// middlewareGetIdempotencyKey extracts an idempotency key if an upstream
// middleware has already validated/stashed it. The fallback behavior reads
// the "Idempotency-Key" header directly when no dedicated middleware exists.
func middlewareGetIdempotencyKey(c *gin.Context) (string, bool) {
	if v := strings.TrimSpace(c.GetHeader("Idempotency-Key")); v != "" {
		return v, true
	}
	return "", false
}

//
// Handlers
//

// ProcessInvoice runs one inbound invoice through the pipeline and returns
// the outcome. Business failures (validation, duplicates, insufficient funds,
// rejected payments) still answer 200: the outcome envelope carries the
// classification. Transport and infrastructure problems answer 4xx/5xx with
// the standard error envelope.
func (h *Handlers) ProcessInvoice(c *gin.Context) {
	ctx := c.Request.Context()

	var req ProcessInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	req.RawText = strings.TrimSpace(req.RawText)
	if req.RawText == "" && req.Payment == nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "raw_text or payment required")
		return
	}

	customer := customerID(c)

	// Idempotency (replay path) – read validated key if present.
	idemKey, _ := middlewareGetIdempotencyKey(c)
	if idemKey != "" && req.Source.MessageID != "" {
		if db := h.historyDB(); db != nil {
			if rec, err := repo.GetIdempotency(ctx, db, customer, req.Source.MessageID, idemKey, time.Now().UTC()); err == nil && rec != nil {
				if prev, err2 := repo.GetHistoryRecord(ctx, db, rec.RecordID); err2 == nil {
					c.Header("Idempotency-Replayed", "true")
					ok(c, http.StatusOK, ProcessInvoiceResponse{Result: &services.Result{
						Status:      recordStatus(prev),
						Success:     prev.Success,
						Error:       prev.Error,
						ErrorType:   prev.ErrorType,
						PaymentID:   prev.PaymentID,
						CheckoutURL: prev.CheckoutURL,
						EmailSent:   prev.EmailSent,
						Previous:    prev,
					}})
					return
				}
			}
		}
	}

	// Ingest a document for the run when the caller did not name one, so the
	// customer's listing reflects the attempt. Best effort: a failed ingest
	// never blocks the payment run.
	invoiceID := req.InvoiceID
	if invoiceID == "" && h.invSvc != nil {
		doc := &domain.Invoice{FileName: req.Source.Subject}
		if req.Payment != nil {
			doc.InvoiceNumber = req.Payment.InvoiceNumber
			doc.Amount = req.Payment.Amount
			doc.Currency = req.Payment.CurrencyOrDefault()
			doc.Recipient = req.Payment.RecipientName
			doc.DueDate = req.Payment.DueDate
			doc.Description = req.Payment.Description
		}
		if created, err := h.invSvc.Ingest(ctx, customer, doc); err == nil {
			invoiceID = created.ID
		}
	}

	res, err := h.procSvc.Process(ctx, domain.InboundInvoice{
		Source:     req.Source,
		RawText:    req.RawText,
		Payment:    req.Payment,
		CustomerID: customer,
		InvoiceID:  invoiceID,
		ReceivedAt: time.Now().UTC(),
	})
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeProcessFailed, err.Error())
		return
	}
	middleware.ObservePaymentRun(res.Status)

	// Idempotency (store path) – best effort. The stored record id points at
	// the appended history row so a replay can reconstruct the outcome.
	if idemKey != "" && req.Source.MessageID != "" && res.Previous == nil {
		if db := h.historyDB(); db != nil {
			if last, err := repo.FindLatestByEmailRef(ctx, db, req.Source.MessageID, req.Source.AttachmentID); err == nil {
				ttl := 24 * time.Hour
				_, _ = repo.CreateIdempotency(ctx, db, customer, req.Source.MessageID, idemKey, last.ID, http.StatusOK, ttl)
			}
		}
	}

	ok(c, http.StatusOK, ProcessInvoiceResponse{InvoiceID: invoiceID, Result: res})
}
