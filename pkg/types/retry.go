package types

import "time"

// PositionKey identifies a retryable liquidation attempt (spec §3):
// "borrower|repayToken|seizeToken".
type PositionKey string

func NewPositionKey(borrower, repayToken, seizeToken Address) PositionKey {
	return PositionKey(string(borrower) + "|" + string(repayToken) + "|" + string(seizeToken))
}

// RetryState tracks the backoff schedule for one position key (spec §3,
// §4.12).
type RetryState struct {
	RetryCount  int
	NextRetryAt time.Time
	LastError   string
}
