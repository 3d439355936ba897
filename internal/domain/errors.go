package domain

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by every component. Call sites wrap these with
// fmt.Errorf("...: %w", err) so callers can match with errors.Is.
var (
	// ErrInvalidInput is returned for bad caller arguments. Never retried.
	ErrInvalidInput = errors.New("invalid input")

	// ErrOracleUnavailable is returned when the price feed cannot produce a usable quote.
	ErrOracleUnavailable = errors.New("price oracle unavailable")

	// ErrMetadataFetch is returned when job metadata (e.g. the trigger word file) cannot be read.
	ErrMetadataFetch = errors.New("metadata fetch failed")

	// ErrJobNotReady is returned when a mint is requested for a job that is not Done.
	ErrJobNotReady = errors.New("job not ready")

	// ErrTransactionRejected is returned when the wallet or the ledger declines a transaction.
	// Payment-carrying transactions are never resubmitted automatically.
	ErrTransactionRejected = errors.New("transaction rejected")

	// ErrJobFailed is returned when the remote job reported failure or its status feed broke.
	ErrJobFailed = errors.New("job failed")

	// ErrAlreadyMinted is returned when a second mint is attempted for the same job.
	ErrAlreadyMinted = errors.New("job result already minted")

	// ErrDecode is the sentinel wrapped by every DecodeError.
	ErrDecode = errors.New("decode on-chain record")
)

// DecodeError reports an on-chain record whose content does not match the expected schema.
type DecodeError struct {
	Record string // record type, e.g. "model"
	ID     string // object id when known
	Field  string
	Reason string
}

func (e *DecodeError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("decode %s %s: field %q: %s", e.Record, e.ID, e.Field, e.Reason)
	}
	return fmt.Sprintf("decode %s: field %q: %s", e.Record, e.Field, e.Reason)
}

// Unwrap lets errors.Is(err, ErrDecode) match.
func (e *DecodeError) Unwrap() error {
	return ErrDecode
}
