package utils

import "errors"

// Reconciliation error taxonomy. Callers distinguish outcomes with errors.Is.
var (
	// ErrUnreadableDocument means one document's bytes could not be parsed
	// into pages. Fatal to that document only; the run continues.
	ErrUnreadableDocument = errors.New("unreadable document")

	// ErrNoChargesExtracted means a ledger document produced zero charges.
	// There is nothing to reconcile against, so the run is marked failed.
	ErrNoChargesExtracted = errors.New("no charges extracted from ledger document")

	// ErrRunBusy means another import call holds the run's advisory lock.
	// The call is rejected, not queued; the caller should retry.
	ErrRunBusy = errors.New("run is busy with another import")

	// ErrInvalidStateTransition means an action-item override requested a
	// transition the lifecycle table does not allow.
	ErrInvalidStateTransition = errors.New("invalid action item state transition")

	// ErrStorageWriteFailed wraps a failed storage write. The whole import
	// call rolls back.
	ErrStorageWriteFailed = errors.New("storage write failed")

	ErrorRecordNotFound = errors.New("record not found")
)
