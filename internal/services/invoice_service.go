// Package services – InvoiceService
//
// This file implements the invoice document store operations: ingesting a
// document for a customer, reading it back, listing a customer's documents,
// and transitioning lifecycle status. The pipeline drives status transitions
// through UpdateStatus; everything else is read-mostly API surface.
package services

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/Mustafa-Esoofally/Invoice-payment-agent/internal/domain"
	"github.com/Mustafa-Esoofally/Invoice-payment-agent/internal/repo"
)

// InvoiceRepo defines the repository contract required by InvoiceService.
type InvoiceRepo interface {
	// Create inserts a new invoice document.
	Create(ctx context.Context, db *gorm.DB, inv *domain.Invoice) (*domain.Invoice, error)

	// Get fetches one invoice owned by customerID.
	Get(ctx context.Context, db *gorm.DB, id, customerID string) (*domain.Invoice, error)

	// UpdateStatus transitions the document status.
	UpdateStatus(ctx context.Context, db *gorm.DB, id, status string) error

	// Count returns the customer's total invoice count.
	Count(ctx context.Context, db *gorm.DB, customerID string) (int64, error)

	// ListPage returns a page of the customer's invoices, newest first.
	ListPage(ctx context.Context, db *gorm.DB, customerID string, offset, limit int) ([]domain.Invoice, error)
}

// InvoiceService manages invoice documents for customers.
type InvoiceService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Repo is the invoice repository used by this service.
	Repo InvoiceRepo
}

// NewInvoiceService constructs an InvoiceService backed by the given DB.
func NewInvoiceService(db *gorm.DB, r InvoiceRepo) *InvoiceService {
	return &InvoiceService{DB: db, Repo: r}
}

// Ingest stores a new invoice document for customerID in status "pending".
func (s *InvoiceService) Ingest(ctx context.Context, customerID string, inv *domain.Invoice) (*domain.Invoice, error) {
	inv.CustomerID = strings.TrimSpace(customerID)
	inv.Status = domain.InvoiceStatusPending
	return s.Repo.Create(ctx, s.DB, inv)
}

// Get returns one invoice owned by customerID, or ErrInvoiceNotFound.
func (s *InvoiceService) Get(ctx context.Context, id, customerID string) (*domain.Invoice, error) {
	inv, err := s.Repo.Get(ctx, s.DB, id, customerID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrInvoiceNotFound
	}
	return inv, err
}

// UpdateStatus transitions the document status. It satisfies the status-store
// contract the pipeline writes through.
func (s *InvoiceService) UpdateStatus(ctx context.Context, id, status string) error {
	err := s.Repo.UpdateStatus(ctx, s.DB, id, status)
	if errors.Is(err, repo.ErrNotFound) {
		return ErrInvoiceNotFound
	}
	return err
}

// ListPage returns a page of the customer's invoices and the total count,
// newest first. It applies defaults for invalid page/pageSize.
func (s *InvoiceService) ListPage(ctx context.Context, customerID string, page, pageSize int) ([]domain.Invoice, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	total, err := s.Repo.Count(ctx, s.DB, customerID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Invoice{}, 0, nil
	}

	items, err := s.Repo.ListPage(ctx, s.DB, customerID, offset, pageSize)
	return items, total, err
}
