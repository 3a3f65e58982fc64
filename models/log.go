package models

import "time"

// DefaultWatermark is used when the sync log is empty.
const DefaultWatermark int64 = 1600437670

// SyncLogEntry is one append-only row of the watermark log.
type SyncLogEntry struct {
	ID              int64     `json:"id" db:"id"`
	LastCheckedDate int64     `json:"last_checked_date" db:"last_checked_date"`
	RowCount        int       `json:"row_count" db:"row_count"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time `json:"updated_at" db:"updated_at"`
}
