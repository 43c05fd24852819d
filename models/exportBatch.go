package models

import (
	"time"

	"gorm.io/gorm"
)

// ExportBatch records one "export new/changed only" call for one export
// type. Which charges a batch delivered lives in ExportBatchCharge, so
// consumers with different export types track their deltas independently.
type ExportBatch struct {
	ID         int       `gorm:"primary_key" json:"id"`
	RunId      string    `gorm:"size:36;not null;index;index:uniq_export_marker,unique" json:"run_id"`
	Marker     string    `gorm:"size:100;not null;index:uniq_export_marker,unique" json:"marker"`
	ExportType string    `gorm:"size:50;not null;index" json:"export_type"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// ExportBatchCharge marks one charge as delivered by one batch.
type ExportBatchCharge struct {
	ID             int `gorm:"primary_key" json:"id"`
	ExportBatchId  int `gorm:"not null;index;index:uniq_batch_charge,unique" json:"export_batch_id"`
	ChargeRecordId int `gorm:"not null;index;index:uniq_batch_charge,unique" json:"charge_record_id"`
}

// ExportedChargeIds returns the ids of the run's charges already delivered
// to the given export type by any batch.
func ExportedChargeIds(tx *gorm.DB, runId string, exportType string) ([]int, error) {
	var ids []int
	err := tx.Model(&ExportBatchCharge{}).
		Joins("JOIN export_batches ON export_batches.id = export_batch_charges.export_batch_id").
		Where("export_batches.run_id = ? AND export_batches.export_type = ?", runId, exportType).
		Pluck("export_batch_charges.charge_record_id", &ids).Error
	return ids, err
}

// ChargeIdsInBatches returns the ids of charges delivered by any of the
// given batches.
func ChargeIdsInBatches(tx *gorm.DB, batchIds []int) ([]int, error) {
	if len(batchIds) == 0 {
		return nil, nil
	}
	var ids []int
	err := tx.Model(&ExportBatchCharge{}).
		Where("export_batch_id IN ?", batchIds).
		Pluck("charge_record_id", &ids).Error
	return ids, err
}
