// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// CORS, security headers, idempotency, and rate limiting.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
//   - Production-ready CORS and security header posture
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/Mustafa-Esoofally/Invoice-payment-agent/internal/config"
	"github.com/Mustafa-Esoofally/Invoice-payment-agent/internal/domain"
	"github.com/Mustafa-Esoofally/Invoice-payment-agent/internal/extract"
	"github.com/Mustafa-Esoofally/Invoice-payment-agent/internal/http/handlers"
	"github.com/Mustafa-Esoofally/Invoice-payment-agent/internal/http/middleware"
	"github.com/Mustafa-Esoofally/Invoice-payment-agent/internal/mail"
	"github.com/Mustafa-Esoofally/Invoice-payment-agent/internal/payman"
	"github.com/Mustafa-Esoofally/Invoice-payment-agent/internal/repo"
	"github.com/Mustafa-Esoofally/Invoice-payment-agent/internal/services"
)

// historyRepoShim adapts the repository free functions to the
// services.HistoryRepo interface expected by the HistoryService. This keeps
// services decoupled from the concrete repo package while reusing existing
// functions.
type historyRepoShim struct{}

// Append proxies repo.AppendHistory.
func (historyRepoShim) Append(ctx context.Context, db *gorm.DB, rec *domain.HistoryRecord) error {
	return repo.AppendHistory(ctx, db, rec)
}

// FindLatestByEmailRef proxies repo.FindLatestByEmailRef.
func (historyRepoShim) FindLatestByEmailRef(ctx context.Context, db *gorm.DB, messageID, attachmentID string) (*domain.HistoryRecord, error) {
	return repo.FindLatestByEmailRef(ctx, db, messageID, attachmentID)
}

// FindLatestByInvoiceKey proxies repo.FindLatestByInvoiceKey.
func (historyRepoShim) FindLatestByInvoiceKey(ctx context.Context, db *gorm.DB, invoiceNumber, invoiceDate string, amount decimal.Decimal, recipient string) (*domain.HistoryRecord, error) {
	return repo.FindLatestByInvoiceKey(ctx, db, invoiceNumber, invoiceDate, amount, recipient)
}

// CountHistory proxies repo.CountHistory.
func (historyRepoShim) CountHistory(ctx context.Context, db *gorm.DB) (int64, error) {
	return repo.CountHistory(ctx, db)
}

// ListHistoryPage proxies repo.ListHistoryPage.
func (historyRepoShim) ListHistoryPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.HistoryRecord, error) {
	return repo.ListHistoryPage(ctx, db, offset, limit)
}

// invoiceRepoShim adapts the repository free functions to the
// services.InvoiceRepo interface expected by the InvoiceService.
type invoiceRepoShim struct{}

// Create proxies repo.CreateInvoice.
func (invoiceRepoShim) Create(ctx context.Context, db *gorm.DB, inv *domain.Invoice) (*domain.Invoice, error) {
	return repo.CreateInvoice(ctx, db, inv)
}

// Get proxies repo.GetInvoice.
func (invoiceRepoShim) Get(ctx context.Context, db *gorm.DB, id, customerID string) (*domain.Invoice, error) {
	return repo.GetInvoice(ctx, db, id, customerID)
}

// UpdateStatus proxies repo.UpdateInvoiceStatus.
func (invoiceRepoShim) UpdateStatus(ctx context.Context, db *gorm.DB, id, status string) error {
	return repo.UpdateInvoiceStatus(ctx, db, id, status)
}

// Count proxies repo.CountInvoices.
func (invoiceRepoShim) Count(ctx context.Context, db *gorm.DB, customerID string) (int64, error) {
	return repo.CountInvoices(ctx, db, customerID)
}

// ListPage proxies repo.ListInvoicesPage.
func (invoiceRepoShim) ListPage(ctx context.Context, db *gorm.DB, customerID string, offset, limit int) ([]domain.Invoice, error) {
	return repo.ListInvoicesPage(ctx, db, customerID, offset, limit)
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine. It configures observability (tracing, metrics), idempotency and rate
// limiting, CORS and security headers, health and metrics endpoints, and then
// mounts the versioned public API under /api/v*.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Gzip compression for large listings
//  7. Metrics
//  8. Idempotency validator (before rate limiter to allow bypass on replay)
//  9. Rate limiter (per customer/IP, bypass on replay)
//  10. CORS and Security headers
func RegisterRoutes(r *gin.Engine, db *gorm.DB, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction. Provider and mail credentials
	// must never reach the logs.
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{
			"X-API-Key",
			"x-payman-api-secret",
		},
	}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (1 MiB covers any realistic invoice text)
	r.Use(limitBody(1 << 20))

	// 6) Compress large history/invoice listings
	r.Use(gzip.Gzip(gzip.DefaultCompression))

	// 7) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 8) Idempotency validation (before rate limiting)
	r.Use(middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{
			MaxLen: 200,
		},
		func(ctx context.Context, customerID, messageID, key string, now time.Time) (bool, error) {
			rec, err := repo.GetIdempotency(ctx, db, customerID, messageID, key, now)
			if err != nil || rec == nil {
				return false, nil
			}
			return true, nil
		},
	))

	// 9) Token-bucket rate limiter per customer/IP
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByCustomerOrIP())
	r.Use(rl.Handler())

	// 10) CORS posture (safe defaults: allow all if none configured)
	if len(cfg.CORS.AllowedOrigins) == 0 {
		// Force ACAO: * even for requests without an Origin header (helps tests and simple health checks).
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Customer-ID", middleware.HeaderMessageID, middleware.HeaderIdempotencyKey},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		// Echo ACAO with the request Origin when it is in the allowlist (in addition to gin-contrib/cors).
		allowed := make(map[string]struct{}, len(cfg.CORS.AllowedOrigins))
		for _, o := range cfg.CORS.AllowedOrigins {
			allowed[o] = struct{}{}
		}
		r.Use(func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Customer-ID", middleware.HeaderMessageID, middleware.HeaderIdempotencyKey},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Security headers (HSTS only when enabled and request is HTTPS)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      false,
		EnablePolicy: true,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	// External clients
	paymanClient := payman.New(cfg.Payman)
	extractClient := extract.NewClient(cfg.Extractor)
	mailClient := mail.NewClient(cfg.Mail)

	// Dependency injection: services ← repo/db/clients
	histSvc := services.NewHistoryService(db, historyRepoShim{})
	invSvc := services.NewInvoiceService(db, invoiceRepoShim{})
	pipeline := &services.PipelineService{
		Extractor: extractClient,
		History:   histSvc,
		Funds:     &services.FundsService{Provider: paymanClient},
		Payees:    &services.PayeeService{Provider: paymanClient},
		Executor:  &services.PaymentService{Provider: paymanClient},
		Notifier:  &services.NotificationService{Replier: mailClient},
		Invoices:  invSvc,
	}
	h := handlers.New(pipeline, histSvc, invSvc)

	// Public API
	apiBase := cfg.APIBasePath // e.g. "/api/v1"
	api := groupWithPrefix(r, apiBase)
	{
		// Invoice processing
		api.POST("/invoices/process", h.ProcessInvoice)

		// Invoice documents
		api.GET("/invoices", h.ListInvoices)
		api.GET("/invoices/:id", h.GetInvoice)

		// Payment history
		api.GET("/payments/history", h.ListHistory)
	}
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
