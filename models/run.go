package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/expense_recon/config"
	"bitbucket.org/mmdatafocus/expense_recon/utils"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var validate = validator.New()

// Run is one reconciliation session: one ledger document plus a growing set
// of receipts. It owns all documents, persons, charges, action items and
// audit entries transitively.
type Run struct {
	ID        string    `gorm:"primary_key;size:36" json:"id"`
	Name      string    `gorm:"size:255" json:"name"`
	Status    RunStatus `gorm:"type:enum('PENDING','PROCESSING','COMPLETE','FAILED');default:'PENDING';size:20;not null;index" json:"status"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	// Matching settings. Thresholds are tunable per run; defaults come
	// from env (RECON_MIN_SCORE, RECON_AUTO_ACCEPT_SCORE).
	DateWindowDays  int             `gorm:"not null;default:3" json:"date_window_days"`
	AmountTolerance decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"amount_tolerance"`
	MinScore        float64         `gorm:"not null;default:0.5" json:"min_score"`
	AutoAcceptScore float64         `gorm:"not null;default:0.8" json:"auto_accept_score"`

	// Summary stats, recomputed on every import call.
	TotalDocuments  int `gorm:"not null;default:0" json:"total_documents"`
	TotalCharges    int `gorm:"not null;default:0" json:"total_charges"`
	MatchedCharges  int `gorm:"not null;default:0" json:"matched_charges"`
	OpenActionItems int `gorm:"not null;default:0" json:"open_action_items"`
	FailedDocuments int `gorm:"not null;default:0" json:"failed_documents"`
	LastImportSeq   int `gorm:"not null;default:0" json:"last_import_seq"`
}

type NewRun struct {
	Name            string          `json:"name"`
	DateWindowDays  int             `json:"date_window_days" validate:"min=0,max=365"`
	AmountTolerance decimal.Decimal `json:"amount_tolerance"`
	MinScore        float64         `json:"min_score" validate:"min=0,max=1"`
	AutoAcceptScore float64         `json:"auto_accept_score" validate:"min=0,max=1"`
}

// CreateRun creates a new reconciliation session. Zero thresholds fall back
// to the configured defaults.
func CreateRun(ctx context.Context, input *NewRun) (*Run, error) {
	if err := validate.Struct(input); err != nil {
		return nil, err
	}
	run := Run{
		ID:              uuid.NewString(),
		Name:            input.Name,
		Status:          RunStatusPending,
		DateWindowDays:  input.DateWindowDays,
		AmountTolerance: input.AmountTolerance,
		MinScore:        input.MinScore,
		AutoAcceptScore: input.AutoAcceptScore,
	}
	if run.DateWindowDays == 0 {
		run.DateWindowDays = config.IntFromEnv("RECON_DATE_WINDOW_DAYS", 3)
	}
	if run.MinScore == 0 {
		run.MinScore = config.FloatFromEnv("RECON_MIN_SCORE", 0.5)
	}
	if run.AutoAcceptScore == 0 {
		run.AutoAcceptScore = config.FloatFromEnv("RECON_AUTO_ACCEPT_SCORE", 0.8)
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&run).Error; err != nil {
		return nil, err
	}
	return &run, nil
}

func GetRun(ctx context.Context, id string) (*Run, error) {
	db := config.GetDB()
	var run Run
	err := db.WithContext(ctx).Where("id = ?", id).First(&run).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &run, nil
}

func GetRunForUpdate(tx *gorm.DB, id string) (*Run, error) {
	var run Run
	err := tx.Where("id = ?", id).First(&run).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &run, nil
}

// RecomputeRunSummary recounts the run's aggregate columns from its child
// tables inside the caller's transaction.
func RecomputeRunSummary(tx *gorm.DB, runId string) error {
	var totalDocuments, failedDocuments, totalCharges, matchedCharges, openItems int64

	if err := tx.Model(&Document{}).Where("run_id = ?", runId).Count(&totalDocuments).Error; err != nil {
		return err
	}
	if err := tx.Model(&Document{}).Where("run_id = ? AND extraction_error <> ''", runId).Count(&failedDocuments).Error; err != nil {
		return err
	}
	if err := tx.Model(&ChargeRecord{}).Where("run_id = ?", runId).Count(&totalCharges).Error; err != nil {
		return err
	}
	if err := tx.Model(&ChargeRecord{}).Where("run_id = ? AND matched_charge_id IS NOT NULL", runId).Count(&matchedCharges).Error; err != nil {
		return err
	}
	if err := tx.Model(&ActionItem{}).Where("run_id = ? AND status <> ?", runId, ActionItemStatusResolved).Count(&openItems).Error; err != nil {
		return err
	}

	return tx.Model(&Run{}).Where("id = ?", runId).Updates(map[string]interface{}{
		"total_documents":   totalDocuments,
		"failed_documents":  failedDocuments,
		"total_charges":     totalCharges,
		"matched_charges":   matchedCharges,
		"open_action_items": openItems,
	}).Error
}

// DeleteRun removes a run and everything it owns.
func DeleteRun(ctx context.Context, id string) error {
	db := config.GetDB()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var docIds []int
		if err := tx.Model(&Document{}).Where("run_id = ?", id).Pluck("id", &docIds).Error; err != nil {
			return err
		}
		if len(docIds) > 0 {
			if err := tx.Where("document_id IN ?", docIds).Delete(&ExtractionRecord{}).Error; err != nil {
				return err
			}
		}
		var batchIds []int
		if err := tx.Model(&ExportBatch{}).Where("run_id = ?", id).Pluck("id", &batchIds).Error; err != nil {
			return err
		}
		if len(batchIds) > 0 {
			if err := tx.Where("export_batch_id IN ?", batchIds).Delete(&ExportBatchCharge{}).Error; err != nil {
				return err
			}
		}
		var itemIds []int
		if err := tx.Model(&ActionItem{}).Where("run_id = ?", id).Pluck("id", &itemIds).Error; err != nil {
			return err
		}
		if len(itemIds) > 0 {
			if err := tx.Where("action_item_id IN ?", itemIds).Delete(&ActionItemCharge{}).Error; err != nil {
				return err
			}
		}
		for _, m := range []interface{}{&ChargeRecord{}, &ActionItem{}, &Person{}, &Document{}, &AuditEntry{}, &ExportBatch{}} {
			if err := tx.Where("run_id = ?", id).Delete(m).Error; err != nil {
				return err
			}
		}
		return tx.Where("id = ?", id).Delete(&Run{}).Error
	})
}
