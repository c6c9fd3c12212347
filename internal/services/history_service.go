// Package services – HistoryService
//
// This file implements the append/query layer over the payment history log
// and the duplicate-detection policy built on top of it. Duplicate
// suppression is the single most important correctness property of the
// pipeline: without it, a re-polled email can disburse funds twice.
//
// Matching policy, in priority order:
//  1. exact match on (message_id, attachment_id)
//  2. fuzzy match on the (invoice_number, invoice_date, amount, recipient)
//     tuple
//
// When both an exact and a fuzzy candidate exist, the exact match wins. The
// latest matching record decides: a settled record (success, or a prior
// duplicate refusal) stops the pipeline; a failed or paused record marks the
// attempt as a retry.
package services

import (
	"context"
	"errors"
	"sync"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/Mustafa-Esoofally/Invoice-payment-agent/internal/domain"
	"github.com/Mustafa-Esoofally/Invoice-payment-agent/internal/repo"
)

// HistoryRepo defines the repository contract required by HistoryService.
type HistoryRepo interface {
	// Append inserts one history record; prior rows are never touched.
	Append(ctx context.Context, db *gorm.DB, rec *domain.HistoryRecord) error

	// FindLatestByEmailRef returns the newest record for the exact
	// (message_id, attachment_id) pair, or repo.ErrNotFound.
	FindLatestByEmailRef(ctx context.Context, db *gorm.DB, messageID, attachmentID string) (*domain.HistoryRecord, error)

	// FindLatestByInvoiceKey returns the newest record for the fuzzy invoice
	// tuple, or repo.ErrNotFound.
	FindLatestByInvoiceKey(ctx context.Context, db *gorm.DB, invoiceNumber, invoiceDate string, amount decimal.Decimal, recipient string) (*domain.HistoryRecord, error)

	// CountHistory returns the total number of history rows.
	CountHistory(ctx context.Context, db *gorm.DB) (int64, error)

	// ListHistoryPage returns a page of history rows, newest first.
	ListHistoryPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.HistoryRecord, error)
}

// DuplicateMatch describes a prior processing attempt for the same invoice.
type DuplicateMatch struct {
	// Record is the latest matching history record.
	Record *domain.HistoryRecord
	// Exact is true when the match came from the (message_id, attachment_id)
	// key rather than the fuzzy invoice tuple.
	Exact bool
}

// Settled reports whether the match closes the invoice for good.
func (m *DuplicateMatch) Settled() bool {
	return m != nil && m.Record != nil && m.Record.Settled()
}

// HistoryService provides duplicate detection and serialized appends over
// the payment history log.
type HistoryService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Repo is the history repository used by this service.
	Repo HistoryRepo

	// mu serializes appends: the log is one shared append target.
	mu sync.Mutex

	// keyMu guards keyLocks.
	keyMu sync.Mutex
	// keyLocks holds one mutex per in-flight dedup key so that two concurrent
	// runs for the same email/attachment pair cannot both pass the duplicate
	// check before either has written its record.
	keyLocks map[string]*sync.Mutex
}

// NewHistoryService constructs a HistoryService backed by the given DB.
func NewHistoryService(db *gorm.DB, r HistoryRepo) *HistoryService {
	return &HistoryService{
		DB:       db,
		Repo:     r,
		keyLocks: make(map[string]*sync.Mutex),
	}
}

// LockKey acquires the per-invoice mutex for the given dedup key and returns
// the release function. Callers hold it across the duplicate check and the
// final append; different keys do not block each other.
func (s *HistoryService) LockKey(key string) func() {
	s.keyMu.Lock()
	m, ok := s.keyLocks[key]
	if !ok {
		m = &sync.Mutex{}
		s.keyLocks[key] = m
	}
	s.keyMu.Unlock()

	m.Lock()
	return m.Unlock
}

// FindDuplicate looks up the latest prior attempt for the given email
// reference and invoice snapshot. It returns nil when the invoice has never
// been seen before. Exact matches take precedence over fuzzy matches.
func (s *HistoryService) FindDuplicate(ctx context.Context, source domain.SourceRef, snapshot *domain.ExtractedPayment) (*DuplicateMatch, error) {
	rec, err := s.Repo.FindLatestByEmailRef(ctx, s.DB, source.MessageID, source.AttachmentID)
	switch {
	case err == nil:
		return &DuplicateMatch{Record: rec, Exact: true}, nil
	case !errors.Is(err, repo.ErrNotFound):
		return nil, err
	}

	if snapshot == nil {
		return nil, nil
	}
	rec, err = s.Repo.FindLatestByInvoiceKey(ctx, s.DB,
		snapshot.InvoiceNumber, snapshot.InvoiceDate, snapshot.Amount, snapshot.RecipientName)
	switch {
	case err == nil:
		return &DuplicateMatch{Record: rec, Exact: false}, nil
	case errors.Is(err, repo.ErrNotFound):
		return nil, nil
	default:
		return nil, err
	}
}

// Append writes one outcome record. Appends are serialized through the
// service mutex; the underlying log is append-only.
func (s *HistoryService) Append(ctx context.Context, rec *domain.HistoryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Repo.Append(ctx, s.DB, rec)
}

// ListPage returns a page of history records and the total count, newest
// first. It applies defaults for invalid page/pageSize.
func (s *HistoryService) ListPage(ctx context.Context, page, pageSize int) ([]domain.HistoryRecord, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	total, err := s.Repo.CountHistory(ctx, s.DB)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.HistoryRecord{}, 0, nil
	}

	items, err := s.Repo.ListHistoryPage(ctx, s.DB, offset, pageSize)
	return items, total, err
}
