package models

import (
	"encoding/json"
	"time"

	"gorm.io/gorm"
)

// AuditEntry is one append-only fact about a run. Entries are never mutated
// or deleted; the publish columns only track delivery to the external audit
// sink (outbox pattern).
type AuditEntry struct {
	ID            int            `gorm:"primary_key" json:"id"`
	RunId         string         `gorm:"size:36;not null;index" json:"run_id"`
	EventType     AuditEventType `gorm:"size:30;not null;index" json:"event_type"`
	ReferenceType string         `gorm:"size:30" json:"reference_type"`
	ReferenceId   int            `gorm:"index" json:"reference_id"`
	Detail        string         `gorm:"type:text" json:"detail"`
	CorrelationId string         `gorm:"size:36;index" json:"correlation_id"`
	CreatedAt     time.Time      `gorm:"autoCreateTime" json:"created_at"`

	PublishStatus AuditPublishStatus `gorm:"size:20;not null;default:'PENDING';index" json:"publish_status"`
	PublishedAt   *time.Time         `json:"published_at"`
	Attempts      int                `gorm:"not null;default:0" json:"attempts"`
	NextAttemptAt *time.Time         `gorm:"index" json:"next_attempt_at"`
	LockedAt      *time.Time         `gorm:"index" json:"locked_at"`
	LockedBy      string             `gorm:"size:36" json:"locked_by"`
	LastError     *string            `gorm:"type:text" json:"last_error"`
}

// AppendAuditEntry writes one audit fact inside the caller's transaction.
func AppendAuditEntry(tx *gorm.DB, runId string, eventType AuditEventType, referenceType string, referenceId int, correlationId string, detail map[string]interface{}) error {
	entry := AuditEntry{
		RunId:         runId,
		EventType:     eventType,
		ReferenceType: referenceType,
		ReferenceId:   referenceId,
		CorrelationId: correlationId,
		PublishStatus: AuditPublishStatusPending,
	}
	if len(detail) > 0 {
		raw, err := json.Marshal(detail)
		if err != nil {
			return err
		}
		entry.Detail = string(raw)
	}
	return tx.Create(&entry).Error
}
