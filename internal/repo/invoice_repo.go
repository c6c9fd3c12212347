// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Invoice
// document store.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Mustafa-Esoofally/Invoice-payment-agent/internal/domain"
)

// CreateInvoice inserts a new invoice document in status "pending".
// The document ID is a randomly generated UUID and CreatedAt is set to UTC.
func CreateInvoice(ctx context.Context, db *gorm.DB, inv *domain.Invoice) (*domain.Invoice, error) {
	if inv.ID == "" {
		inv.ID = uuid.NewString()
	}
	if inv.Status == "" {
		inv.Status = domain.InvoiceStatusPending
	}
	inv.CreatedAt = time.Now().UTC()
	if err := db.WithContext(ctx).Create(inv).Error; err != nil {
		return nil, err
	}
	return inv, nil
}

// GetInvoice fetches a single invoice by its ID and owner (customerID).
// If the record does not exist, it returns ErrNotFound.
func GetInvoice(ctx context.Context, db *gorm.DB, id, customerID string) (*domain.Invoice, error) {
	var inv domain.Invoice
	err := db.WithContext(ctx).
		Where("id = ? AND customer_id = ?", id, customerID).
		First(&inv).Error
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

// UpdateInvoiceStatus transitions the status of an invoice document. If no
// rows are affected (document missing), it returns ErrNotFound. Statuses
// outside the lifecycle set are rejected by the DB check constraint.
func UpdateInvoiceStatus(ctx context.Context, db *gorm.DB, id, status string) error {
	res := db.WithContext(ctx).
		Model(&domain.Invoice{}).
		Where("id = ?", id).
		Update("status", status)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// CountInvoices returns the total number of invoices owned by customerID.
func CountInvoices(ctx context.Context, db *gorm.DB, customerID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Invoice{}).
		Where("customer_id = ?", customerID).
		Count(&total).Error
	return total, err
}

// ListInvoicesPage returns a paginated slice of invoices for customerID,
// ordered by creation time descending. Use CountInvoices to obtain the total
// for pagination metadata.
func ListInvoicesPage(ctx context.Context, db *gorm.DB, customerID string, offset, limit int) ([]domain.Invoice, error) {
	var out []domain.Invoice
	err := db.WithContext(ctx).
		Where("customer_id = ?", customerID).
		Order("created_at desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}
