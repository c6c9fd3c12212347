// Payment history HTTP handler.
//
// This file exposes the reporting endpoint over the append-only payment
// history log:
//   - GET /payments/history   (list paginated outcome records, ETag support)
//
// Because the log is append-only, (count, max created_at) is a cheap change
// detector: the handler publishes it as a weak ETag and answers 304 when the
// client already holds the current page source.
package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Mustafa-Esoofally/Invoice-payment-agent/internal/domain"
	"github.com/Mustafa-Esoofally/Invoice-payment-agent/internal/repo"
)

// ListHistoryResponse contains a page of payment outcome records and
// pagination metadata.
type ListHistoryResponse struct {
	Payments   []domain.HistoryRecord `json:"payments"`
	Pagination Pagination             `json:"pagination"`
}

// ListHistory returns a page of the payment history log, newest first.
// Supports weak ETag via If-None-Match and may return 304.
func (h *Handlers) ListHistory(c *gin.Context) {
	ctx := c.Request.Context()

	// ETag pre-check (best effort).
	if db := h.historyDB(); db != nil {
		count, maxTS, err := repo.HistoryStats(ctx, db)
		if err == nil {
			var ts int64
			if maxTS != nil {
				ts = maxTS.Unix()
			}
			etag := fmt.Sprintf(`W/"history:%d:%d"`, count, ts)
			c.Header("ETag", etag)
			if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
				c.Status(http.StatusNotModified)
				return
			}
		}
	}

	page, pageSize := clampPagination(c)

	items, total, err := h.histSvc.ListPage(ctx, page, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	ok(c, http.StatusOK, ListHistoryResponse{
		Payments: items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	})
}
