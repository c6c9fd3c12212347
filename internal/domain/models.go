// Package domain defines the persistence models for the payment history log
// and invoice documents. These types are mapped with GORM and form the core
// data layer of the application.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Invoice status lifecycle. A document starts pending, is marked processing
// while the pipeline runs, and ends in exactly one of the three terminal or
// paused states.
const (
	InvoiceStatusPending    = "pending"
	InvoiceStatusProcessing = "processing"
	InvoiceStatusPaid       = "paid"
	InvoiceStatusFailed     = "failed"
	InvoiceStatusAwaiting   = "awaiting_bank_details"
)

// ErrMsgAlreadyProcessed is the error string written by duplicate
// short-circuits. A historical record carrying it counts as settled.
const ErrMsgAlreadyProcessed = "Invoice already processed"

// HistoryRecord is the durable audit entry for one pipeline run. Exactly one
// record is appended per terminal or paused outcome, including failures, and
// records are never mutated or deleted: a superseding attempt is a new row.
//
// The email reference columns form the exact dedup key
// (message_id, attachment_id); the invoice snapshot columns form the fuzzy
// fallback key (invoice_number, invoice_date, amount, recipient).
type HistoryRecord struct {
	ID        string    `json:"id"        gorm:"type:char(36);primaryKey"`
	CreatedAt time.Time `json:"timestamp"`

	// Email reference (exact dedup key + audit trail).
	ThreadID     string `json:"thread_id"     gorm:"type:varchar(128);index"`
	MessageID    string `json:"message_id"    gorm:"type:varchar(128);index:idx_history_email,priority:1"`
	AttachmentID string `json:"attachment_id" gorm:"type:varchar(128);index:idx_history_email,priority:2"`
	Sender       string `json:"sender"        gorm:"type:varchar(255)"`
	Subject      string `json:"subject"       gorm:"type:varchar(255)"`

	// Invoice snapshot (fuzzy dedup key + reporting).
	InvoiceNumber string          `json:"invoice_number" gorm:"type:varchar(64);index:idx_history_invoice,priority:1"`
	InvoiceDate   string          `json:"invoice_date"   gorm:"type:varchar(10);index:idx_history_invoice,priority:2"`
	Amount        decimal.Decimal `json:"amount"         gorm:"type:decimal(20,4);index:idx_history_invoice,priority:3"`
	Currency      string          `json:"currency"       gorm:"type:varchar(3)"`
	Recipient     string          `json:"recipient"      gorm:"type:varchar(255);index:idx_history_invoice,priority:4"`
	Description   string          `json:"description"    gorm:"type:text"`

	// Outcome of the run.
	Success     bool      `json:"success"`
	Error       string    `json:"error,omitempty"        gorm:"type:text"`
	ErrorType   ErrorType `json:"error_type,omitempty"   gorm:"type:varchar(32);index"`
	EmailSent   bool      `json:"email_sent"`
	PaymentID   string    `json:"payment_id,omitempty"   gorm:"type:varchar(128)"`
	CheckoutURL string    `json:"checkout_url,omitempty" gorm:"type:text"`
}

// TableName returns the database table name for HistoryRecord.
func (HistoryRecord) TableName() string { return "payment_history" }

// Settled reports whether this record represents a definitively completed
// invoice: either the payment went through, or a prior run already refused it
// as processed. A settled match stops the pipeline without a new record.
func (r *HistoryRecord) Settled() bool {
	return r.Success || r.Error == ErrMsgAlreadyProcessed
}

// Invoice is the document-store record for one customer invoice. The pipeline
// only transitions Status; the remaining fields are written at ingestion time.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - CustomerID: owning customer; indexed for customer-scoped listing.
//   - Status: lifecycle state (see InvoiceStatus* constants).
//   - FileName / FileURL: source document location.
//   - Snapshot columns: populated once extraction succeeds.
type Invoice struct {
	ID         string `json:"id"          gorm:"type:char(36);primaryKey"`
	CustomerID string `json:"customer_id" gorm:"type:varchar(64);not null;index:idx_customer_invoices"`
	Status     string `json:"status"      gorm:"type:varchar(32);not null;default:'pending';check:status IN ('pending','processing','paid','failed','awaiting_bank_details')"`

	FileName string `json:"file_name,omitempty" gorm:"type:varchar(255)"`
	FileURL  string `json:"file_url,omitempty"  gorm:"type:text"`

	InvoiceNumber string          `json:"invoice_number,omitempty" gorm:"type:varchar(64);index"`
	Amount        decimal.Decimal `json:"amount"                   gorm:"type:decimal(20,4)"`
	Currency      string          `json:"currency,omitempty"       gorm:"type:varchar(3)"`
	Recipient     string          `json:"recipient,omitempty"      gorm:"type:varchar(255)"`
	DueDate       string          `json:"due_date,omitempty"       gorm:"type:varchar(10)"`
	Description   string          `json:"description,omitempty"    gorm:"type:text"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for Invoice.
func (Invoice) TableName() string { return "invoices" }
