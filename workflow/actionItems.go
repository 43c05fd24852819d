package workflow

import (
	"context"
	"fmt"

	"bitbucket.org/mmdatafocus/expense_recon/config"
	"bitbucket.org/mmdatafocus/expense_recon/models"
	"bitbucket.org/mmdatafocus/expense_recon/utils"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// OverrideActionItem applies a reviewer-driven lifecycle move. Illegal moves
// (anything out of RESOLVED, or a status the table does not allow) return
// ErrInvalidStateTransition without touching the item.
func OverrideActionItem(ctx context.Context, db *gorm.DB, logger *logrus.Logger, itemId int, to models.ActionItemStatus, actor string, note string) (*models.ActionItem, error) {
	var item *models.ActionItem

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		item, err = models.GetActionItem(tx, itemId)
		if err != nil {
			config.LogError(logger, "actionItems.go", "OverrideActionItem", "GetActionItem", itemId, err)
			return err
		}
		if item == nil {
			return utils.ErrorRecordNotFound
		}
		if !models.CanTransitionActionItem(item.Status, to) {
			return fmt.Errorf("%w: %s -> %s", utils.ErrInvalidStateTransition, item.Status, to)
		}

		from := item.Status
		details := map[string]string{"overridden_by": actor}
		if note != "" {
			details["note"] = note
		}
		if err := models.TransitionActionItem(tx, item, to, details); err != nil {
			config.LogError(logger, "actionItems.go", "OverrideActionItem", "TransitionActionItem", itemId, err)
			return err
		}
		return models.AppendAuditEntry(tx, item.RunId, models.AuditEventActionItemTransition, "ACTION_ITEM", item.ID, uuid.NewString(), map[string]interface{}{
			"from":  string(from),
			"to":    string(to),
			"actor": actor,
		})
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}
