// Package domain defines the core persistence models for the application.
// These types are used by GORM for database schema mapping and are shared
// across the repository and service layers.
package domain

import "time"

// Idempotency represents a recorded result of a previously processed request,
// keyed by (customer_id, message_id, key). It lets the HTTP layer refuse to
// re-run a processing request that already completed, before the pipeline's
// own duplicate detection is even consulted.
type Idempotency struct {
	ID         string    `gorm:"type:TEXT NOT NULL;primaryKey"`
	CustomerID string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_customer_msg_key,priority:1"`
	MessageID  string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_customer_msg_key,priority:2"`
	Key        string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_customer_msg_key,priority:3"`
	RecordID   string    `gorm:"type:TEXT NOT NULL"`
	Status     int       `gorm:"type:INTEGER NOT NULL"`
	CreatedAt  time.Time `gorm:"type:DATETIME NOT NULL;autoCreateTime"`
	ExpiresAt  time.Time `gorm:"type:DATETIME NOT NULL;index"`
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency" }
