package workflow

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/expense_recon/config"
	"bitbucket.org/mmdatafocus/expense_recon/models"
	mysqlDriver "github.com/go-sql-driver/mysql"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

func isDuplicateKeyErr(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return false
}

// DeltaResult is the new/changed slice of a run since a previous export.
type DeltaResult struct {
	Charges     []*models.ChargeRecord `json:"charges"`
	ActionItems []*models.ActionItem   `json:"action_items"`
}

// GetDelta returns the charges and action items a consumer of the given
// export type has not seen yet. Delivery is tracked per export type through
// ExportBatchCharge, so an "accounting" consumer and an "analytics" consumer
// walk their own delta streams without clobbering each other. Charges with
// no batch membership for the type always qualify; with a sinceMarker,
// charges delivered by a later batch of the same type qualify too, so a
// consumer can replay from any marker it has. A forced reprocess that
// changes an amount produces a new undelivered charge, so it shows up here
// without special handling.
func GetDelta(ctx context.Context, db *gorm.DB, logger *logrus.Logger, runId string, exportType string, sinceMarker string) (*DeltaResult, error) {
	delta := &DeltaResult{
		Charges:     []*models.ChargeRecord{},
		ActionItems: []*models.ActionItem{},
	}

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var sinceBatch *models.ExportBatch
		if sinceMarker != "" {
			var batch models.ExportBatch
			err := tx.Where("run_id = ? AND marker = ? AND export_type = ?", runId, sinceMarker, exportType).First(&batch).Error
			if err != nil && err != gorm.ErrRecordNotFound {
				return err
			}
			if err == nil {
				sinceBatch = &batch
			}
		}

		exportedIds, err := models.ExportedChargeIds(tx, runId, exportType)
		if err != nil {
			return err
		}

		var replayIds []int
		if sinceBatch != nil {
			var laterIds []int
			err := tx.Model(&models.ExportBatch{}).
				Where("run_id = ? AND export_type = ? AND id > ?", runId, exportType, sinceBatch.ID).
				Pluck("id", &laterIds).Error
			if err != nil {
				return err
			}
			replayIds, err = models.ChargeIdsInBatches(tx, laterIds)
			if err != nil {
				return err
			}
		}

		q := tx.Where("run_id = ?", runId)
		if len(exportedIds) > 0 {
			if len(replayIds) > 0 {
				q = q.Where("id NOT IN ? OR id IN ?", exportedIds, replayIds)
			} else {
				q = q.Where("id NOT IN ?", exportedIds)
			}
		}
		if err := q.Order("id ASC").Find(&delta.Charges).Error; err != nil {
			return err
		}

		itemQ := tx.Where("run_id = ?", runId)
		if sinceBatch != nil {
			itemQ = itemQ.Where("status <> ? OR resolved_at > ?", models.ActionItemStatusResolved, sinceBatch.CreatedAt)
		} else {
			itemQ = itemQ.Where("status <> ?", models.ActionItemStatusResolved)
		}
		return itemQ.Order("id ASC").Find(&delta.ActionItems).Error
	})
	if err != nil {
		config.LogError(logger, "delta.go", "GetDelta", "Transaction", runId, err)
		return nil, err
	}
	return delta, nil
}

// MarkExported records which of the run's charges a new export batch
// delivered and returns the batch plus the number of charges recorded. An
// empty chargeIds covers every charge not yet delivered to the batch's
// export type. Calling twice with the same marker reuses the batch and
// records nothing new, so the export handshake is idempotent. ExportedAt and
// ExportBatchId on the charge track the most recent delivery across all
// types as a reporting convenience; delta computation reads the membership
// rows, not the stamp.
func MarkExported(ctx context.Context, db *gorm.DB, logger *logrus.Logger, runId string, marker string, exportType string, chargeIds []int) (*models.ExportBatch, int64, error) {
	batch := models.ExportBatch{RunId: runId, Marker: marker, ExportType: exportType}
	var stamped int64

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Insert first, read on duplicate: two consumers racing on the same
		// marker converge on one batch.
		if err := tx.Create(&batch).Error; err != nil {
			if !isDuplicateKeyErr(err) {
				return err
			}
			batch = models.ExportBatch{}
			if err := tx.Where("run_id = ? AND marker = ?", runId, marker).First(&batch).Error; err != nil {
				return err
			}
		}

		exportedIds, err := models.ExportedChargeIds(tx, runId, batch.ExportType)
		if err != nil {
			return err
		}

		q := tx.Model(&models.ChargeRecord{}).Where("run_id = ?", runId)
		if len(chargeIds) > 0 {
			q = q.Where("id IN ?", chargeIds)
		}
		if len(exportedIds) > 0 {
			q = q.Where("id NOT IN ?", exportedIds)
		}
		var pendingIds []int
		if err := q.Order("id ASC").Pluck("id", &pendingIds).Error; err != nil {
			return err
		}

		for _, chargeId := range pendingIds {
			link := models.ExportBatchCharge{ExportBatchId: batch.ID, ChargeRecordId: chargeId}
			if err := tx.Create(&link).Error; err != nil {
				return err
			}
		}

		if len(pendingIds) > 0 {
			now := time.Now().UTC()
			err := tx.Model(&models.ChargeRecord{}).
				Where("id IN ?", pendingIds).
				Updates(map[string]interface{}{
					"exported_at":     &now,
					"export_batch_id": batch.ID,
				}).Error
			if err != nil {
				return err
			}
		}
		stamped = int64(len(pendingIds))
		return nil
	})
	if err != nil {
		config.LogError(logger, "delta.go", "MarkExported", "Transaction", runId, err)
		return nil, 0, err
	}
	return &batch, stamped, nil
}
