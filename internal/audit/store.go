// Package audit archives completed emissions. The archive is write-mostly:
// the dialogue appends one record per emitted document and operators query it
// out of band. Archive failures are logged by the caller and never surface to
// the user mid-conversation.
package audit

import (
	"context"
	"time"
)

// Record is one archived emission.
type Record struct {
	ID             int64
	Phone          string
	CompanyID      string
	CompanyName    string
	DocumentType   string
	FullNumber     string
	ClientName     string
	ClientDocument string
	Total          float64
	Currency       string
	Lines          []Line
	EmittedAt      time.Time
}

// Line is one invoice line inside a [Record].
type Line struct {
	Description string  `json:"description"`
	Quantity    int     `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
}

// Store persists emission records.
//
// All implementations must be safe for concurrent use.
type Store interface {
	// Append archives one emission. The record's ID is filled in on return.
	Append(ctx context.Context, rec *Record) error

	// Recent returns up to limit records for the company, newest first.
	Recent(ctx context.Context, companyID string, limit int) ([]Record, error)
}
