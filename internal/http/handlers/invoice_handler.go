// Invoice document HTTP handlers.
//
// This file exposes REST endpoints for invoice documents:
//   - GET /invoices        (list a customer's invoices, paginated, ETag support)
//   - GET /invoices/{id}   (fetch a single invoice document)
//
// Documents are created by ProcessInvoice at ingestion time; these endpoints
// are read-only views scoped to the calling customer.
package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/Mustafa-Esoofally/Invoice-payment-agent/internal/domain"
	"github.com/Mustafa-Esoofally/Invoice-payment-agent/internal/repo"
	"github.com/Mustafa-Esoofally/Invoice-payment-agent/internal/services"
)

// ListInvoicesResponse wraps a page of invoice documents and pagination
// information.
type ListInvoicesResponse struct {
	Invoices   []domain.Invoice `json:"invoices"`
	Pagination Pagination       `json:"pagination"`
}

// ListInvoices returns a page of the calling customer's invoice documents,
// newest first. Supports weak ETag via If-None-Match and may return 304.
// Status transitions bump the documents' updated_at, so the ETag changes
// whenever a listed invoice moves through the pipeline.
func (h *Handlers) ListInvoices(c *gin.Context) {
	ctx := c.Request.Context()
	customer := customerID(c)
	page, pageSize := clampPagination(c)

	// ETag pre-check (best effort).
	if svc, okSvc := h.invSvc.(*services.InvoiceService); okSvc && svc.DB != nil {
		count, maxTS, err := repo.InvoicesStats(ctx, svc.DB, customer)
		if err == nil {
			var ts int64
			if maxTS != nil {
				ts = maxTS.Unix()
			}
			etag := fmt.Sprintf(`W/"invoices:%s:%d:%d"`, customer, count, ts)
			c.Header("ETag", etag)
			if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
				c.Status(http.StatusNotModified)
				return
			}
		}
	}

	items, total, err := h.invSvc.ListPage(ctx, customer, page, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	ok(c, http.StatusOK, ListInvoicesResponse{
		Invoices: items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	})
}

// GetInvoice returns a single invoice document owned by the calling customer.
func (h *Handlers) GetInvoice(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invoice id must be a UUID")
		return
	}

	inv, err := h.invSvc.Get(c.Request.Context(), id, customerID(c))
	if err != nil {
		if errors.Is(err, services.ErrInvoiceNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "invoice not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, inv)
}
