package models

type RunStatus string

const (
	RunStatusPending    RunStatus = "PENDING"
	RunStatusProcessing RunStatus = "PROCESSING"
	RunStatusComplete   RunStatus = "COMPLETE"
	RunStatusFailed     RunStatus = "FAILED"
)

type DocumentType string

const (
	DocumentTypeLedger  DocumentType = "LEDGER"
	DocumentTypeReceipt DocumentType = "RECEIPT"
)

type ChargeOrigin string

const (
	ChargeOriginLedger  ChargeOrigin = "LEDGER"
	ChargeOriginReceipt ChargeOrigin = "RECEIPT"
)

type ActionItemCause string

const (
	ActionItemCauseMissingCounterpart ActionItemCause = "MISSING_COUNTERPART"
	ActionItemCauseAmountMismatch     ActionItemCause = "AMOUNT_MISMATCH"
	ActionItemCausePolicyViolation    ActionItemCause = "POLICY_VIOLATION"
	ActionItemCauseOrphanReceipt      ActionItemCause = "ORPHAN_RECEIPT"
	ActionItemCauseOther              ActionItemCause = "OTHER"
)

type ActionItemStatus string

const (
	ActionItemStatusOpen     ActionItemStatus = "OPEN"
	ActionItemStatusInReview ActionItemStatus = "IN_REVIEW"
	ActionItemStatusResolved ActionItemStatus = "RESOLVED"
)

// actionItemTransitions is the closed legality table for the lifecycle.
// RESOLVED is terminal; OPEN may resolve directly for a confident
// automatic match.
var actionItemTransitions = map[ActionItemStatus][]ActionItemStatus{
	ActionItemStatusOpen:     {ActionItemStatusInReview, ActionItemStatusResolved},
	ActionItemStatusInReview: {ActionItemStatusResolved},
	ActionItemStatusResolved: {},
}

// CanTransitionActionItem reports whether from -> to is a legal lifecycle move.
func CanTransitionActionItem(from, to ActionItemStatus) bool {
	for _, next := range actionItemTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type AuditEventType string

const (
	AuditEventDocumentImported     AuditEventType = "DOCUMENT_IMPORTED"
	AuditEventDocumentSkipped      AuditEventType = "DOCUMENT_SKIPPED"
	AuditEventDocumentFailed       AuditEventType = "DOCUMENT_FAILED"
	AuditEventChargeMatched        AuditEventType = "CHARGE_MATCHED"
	AuditEventActionItemOpened     AuditEventType = "ACTION_ITEM_OPENED"
	AuditEventActionItemTransition AuditEventType = "ACTION_ITEM_TRANSITION"
	AuditEventReprocessTriggered   AuditEventType = "REPROCESS_TRIGGERED"
	AuditEventRunSummaryRecomputed AuditEventType = "RUN_SUMMARY_RECOMPUTED"
)

type AuditPublishStatus string

const (
	AuditPublishStatusPending    AuditPublishStatus = "PENDING"
	AuditPublishStatusProcessing AuditPublishStatus = "PROCESSING"
	AuditPublishStatusPublished  AuditPublishStatus = "PUBLISHED"
	AuditPublishStatusFailed     AuditPublishStatus = "FAILED"
)
