package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ChargeRecord is one normalized monetary transaction from either origin.
// The composite unique key (run, document, date, amount, normalized vendor,
// origin) is the idempotency mechanism: reprocessing the same document
// upserts instead of duplicating.
type ChargeRecord struct {
	ID               int             `gorm:"primary_key" json:"id"`
	RunId            string          `gorm:"size:36;not null;index;index:uniq_charge_key,unique" json:"run_id"`
	PersonId         *int            `gorm:"index" json:"person_id"`
	DocumentId       int             `gorm:"not null;index;index:uniq_charge_key,unique" json:"document_id"`
	TransactionDate  time.Time       `gorm:"type:date;not null;index:uniq_charge_key,unique" json:"transaction_date"`
	Amount           decimal.Decimal `gorm:"type:decimal(20,2);not null;index:uniq_charge_key,unique" json:"amount"`
	VendorRaw        string          `gorm:"size:255" json:"vendor_raw"`
	VendorNormalized string          `gorm:"size:255;not null;index:uniq_charge_key,unique" json:"vendor_normalized"`
	Category         string          `gorm:"size:100" json:"category"`
	Origin           ChargeOrigin    `gorm:"type:enum('LEDGER','RECEIPT');size:10;not null;index:uniq_charge_key,unique" json:"origin"`
	Confidence       float64         `gorm:"not null;default:0" json:"confidence"`
	PageNumber       int             `gorm:"not null;default:0" json:"page_number"`
	LineNumber       int             `gorm:"not null;default:0" json:"line_number"`

	MatchedDocumentId *int     `gorm:"index" json:"matched_document_id"`
	MatchedChargeId   *int     `gorm:"index" json:"matched_charge_id"`
	MatchScore        *float64 `json:"match_score"`

	// Most recent delivery across export types. Per-type delivery lives in
	// ExportBatchCharge.
	ExportedAt    *time.Time `gorm:"index" json:"exported_at"`
	ExportBatchId *int       `gorm:"index" json:"export_batch_id"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// UpsertChargeRecord writes a charge by its uniqueness key. On conflict only
// descriptive fields are refreshed; match links and export stamps are left
// alone (an unchanged key means an unchanged amount, so the row must not be
// re-exported). The returned record carries the persisted ID.
func UpsertChargeRecord(tx *gorm.DB, charge *ChargeRecord) (*ChargeRecord, error) {
	err := tx.Clauses(clause.OnConflict{
		DoUpdates: clause.AssignmentColumns([]string{
			"person_id", "vendor_raw", "category", "confidence",
			"page_number", "line_number", "updated_at",
		}),
	}).Create(charge).Error
	if err != nil {
		return nil, err
	}

	// MySQL upsert does not report the surviving row's ID on update; read it
	// back by the uniqueness key.
	var persisted ChargeRecord
	err = tx.Where(
		"run_id = ? AND document_id = ? AND transaction_date = ? AND amount = ? AND vendor_normalized = ? AND origin = ?",
		charge.RunId, charge.DocumentId, charge.TransactionDate.Format("2006-01-02"),
		charge.Amount, charge.VendorNormalized, charge.Origin,
	).First(&persisted).Error
	if err != nil {
		return nil, err
	}
	return &persisted, nil
}

// GetUnmatchedCharges returns the run's unmatched charges of one origin in a
// stable order: document import order, then in-document line order.
func GetUnmatchedCharges(tx *gorm.DB, runId string, origin ChargeOrigin) ([]*ChargeRecord, error) {
	var charges []*ChargeRecord
	err := tx.
		Joins("JOIN documents ON documents.id = charge_records.document_id").
		Where("charge_records.run_id = ? AND charge_records.origin = ? AND charge_records.matched_charge_id IS NULL", runId, origin).
		Order("documents.import_seq ASC, charge_records.page_number ASC, charge_records.line_number ASC, charge_records.id ASC").
		Find(&charges).Error
	if err != nil {
		return nil, err
	}
	return charges, nil
}

// DeleteStaleCharges removes a document's charges whose uniqueness keys were
// not produced by a forced reprocess. Their action-item links go with them.
func DeleteStaleCharges(tx *gorm.DB, documentId int, keepIds []int) (int64, error) {
	q := tx.Where("document_id = ?", documentId)
	if len(keepIds) > 0 {
		q = q.Where("id NOT IN ?", keepIds)
	}

	var stale []*ChargeRecord
	if err := q.Find(&stale).Error; err != nil {
		return 0, err
	}
	if len(stale) == 0 {
		return 0, nil
	}

	staleIds := make([]int, 0, len(stale))
	for _, c := range stale {
		staleIds = append(staleIds, c.ID)
	}
	if err := tx.Where("charge_record_id IN ?", staleIds).Delete(&ActionItemCharge{}).Error; err != nil {
		return 0, err
	}
	if err := tx.Where("charge_record_id IN ?", staleIds).Delete(&ExportBatchCharge{}).Error; err != nil {
		return 0, err
	}
	// Unhook counterparts that pointed at a stale charge.
	if err := tx.Model(&ChargeRecord{}).
		Where("matched_charge_id IN ?", staleIds).
		Updates(map[string]interface{}{"matched_charge_id": nil, "matched_document_id": nil, "match_score": nil}).Error; err != nil {
		return 0, err
	}
	result := tx.Where("id IN ?", staleIds).Delete(&ChargeRecord{})
	return result.RowsAffected, result.Error
}
