// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the payment
// history log.
//
// The log is append-only: rows are inserted once and never updated or
// deleted. Duplicate detection reads the latest matching row for either the
// exact email key (message_id, attachment_id) or the fuzzy invoice key
// (invoice_number, invoice_date, amount, recipient).
//
// Error semantics:
//   - When no record matches, lookup functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - On DB errors the raw gorm error is propagated.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/Mustafa-Esoofally/Invoice-payment-agent/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// AppendHistory inserts one new HistoryRecord. The record ID is a randomly
// generated UUID (string) and CreatedAt is set to UTC when unset. Existing
// rows are never touched.
func AppendHistory(ctx context.Context, db *gorm.DB, rec *domain.HistoryRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	return db.WithContext(ctx).Create(rec).Error
}

// FindLatestByEmailRef returns the most recent record for the exact
// (message_id, attachment_id) pair, or ErrNotFound. Pairs with an empty
// message id never match: there is nothing exact about them.
func FindLatestByEmailRef(ctx context.Context, db *gorm.DB, messageID, attachmentID string) (*domain.HistoryRecord, error) {
	if messageID == "" {
		return nil, ErrNotFound
	}
	var rec domain.HistoryRecord
	err := db.WithContext(ctx).
		Where("message_id = ? AND attachment_id = ?", messageID, attachmentID).
		Order("created_at desc").
		First(&rec).Error
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// FindLatestByInvoiceKey returns the most recent record matching the fuzzy
// (invoice_number, invoice_date, amount, recipient) tuple, or ErrNotFound.
// Recipient comparison is case-insensitive. An empty invoice number never
// matches.
func FindLatestByInvoiceKey(ctx context.Context, db *gorm.DB, invoiceNumber, invoiceDate string, amount decimal.Decimal, recipient string) (*domain.HistoryRecord, error) {
	if invoiceNumber == "" {
		return nil, ErrNotFound
	}
	var rec domain.HistoryRecord
	err := db.WithContext(ctx).
		Where("invoice_number = ? AND invoice_date = ? AND amount = ? AND LOWER(recipient) = LOWER(?)",
			invoiceNumber, invoiceDate, amount, recipient).
		Order("created_at desc").
		First(&rec).Error
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// GetHistoryRecord fetches one history record by ID. Used by idempotent
// replay to return the outcome a prior request already recorded.
func GetHistoryRecord(ctx context.Context, db *gorm.DB, id string) (*domain.HistoryRecord, error) {
	var rec domain.HistoryRecord
	if err := db.WithContext(ctx).First(&rec, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}

// CountHistory returns the total number of history rows.
func CountHistory(ctx context.Context, db *gorm.DB) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.HistoryRecord{}).
		Count(&total).Error
	return total, err
}

// ListHistoryPage returns a page of history rows ordered by creation time
// descending (most recent attempt first). The caller computes offset and
// limit (e.g., (page-1)*pageSize).
func ListHistoryPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.HistoryRecord, error) {
	var out []domain.HistoryRecord
	err := db.WithContext(ctx).
		Order("created_at desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}
