package workflow

import (
	"fmt"

	"bitbucket.org/mmdatafocus/expense_recon/utils"
	"gorm.io/gorm"
)

// AcquireRunImportLock serializes imports per run across instances using
// MySQL advisory locks. The zero timeout makes a concurrent import fail fast
// with ErrRunBusy instead of queueing.
// NOTE: GET_LOCK is connection-scoped, so this must be called on the same
// *gorm.DB that will do the import transaction.
func AcquireRunImportLock(tx *gorm.DB, runId string) error {
	lockName := fmt.Sprintf("recon_import:%s", runId)
	var ok int
	if err := tx.Raw("SELECT GET_LOCK(?, 0)", lockName).Scan(&ok).Error; err != nil {
		return err
	}
	if ok != 1 {
		return utils.ErrRunBusy
	}
	return nil
}

func ReleaseRunImportLock(tx *gorm.DB, runId string) {
	lockName := fmt.Sprintf("recon_import:%s", runId)
	var _ok int
	_ = tx.Raw("SELECT RELEASE_LOCK(?)", lockName).Scan(&_ok).Error
}
