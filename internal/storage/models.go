package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Query log statuses.
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// QueryLog records one executed semantic query.
type QueryLog struct {
	ID         string
	CreatedAt  time.Time
	Dataset    string
	QueryJSON  string
	SQL        string
	RowCount   int
	DurationMs int64
	Status     string
	Error      string
}
