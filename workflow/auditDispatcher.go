package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/expense_recon/config"
	"bitbucket.org/mmdatafocus/expense_recon/models"
	"github.com/bsm/redislock"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AuditDispatcher drains pending audit entries to the external audit topic.
// Entries are written inside the import transaction and published here
// afterwards (outbox pattern), so the audit trail survives publish outages
// and nothing is published for a rolled-back import.
type AuditDispatcher struct {
	DB           *gorm.DB
	Logger       *logrus.Logger
	DispatcherID string

	BatchSize      int
	PollInterval   time.Duration
	LockTimeout    time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
}

func NewAuditDispatcher(db *gorm.DB, logger *logrus.Logger) *AuditDispatcher {
	return &AuditDispatcher{
		DB:             db,
		Logger:         logger,
		DispatcherID:   uuid.NewString(),
		BatchSize:      50,
		PollInterval:   500 * time.Millisecond,
		LockTimeout:    30 * time.Second,
		MaxAttempts:    20,
		InitialBackoff: 5 * time.Second,
	}
}

func (d *AuditDispatcher) Run(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		d.dispatchOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-time.After(d.PollInterval):
		}
	}
}

func (d *AuditDispatcher) dispatchOnce(ctx context.Context) {
	db := d.DB
	if db == nil {
		return
	}

	// Best-effort redis guard: keeps multiple dispatcher instances from
	// fighting over the same batch window. SKIP LOCKED makes concurrent
	// drains safe regardless, so a missing lock only costs some contention.
	var guard *redislock.Lock
	if locker := config.GetRedisLock(); locker != nil {
		lock, err := locker.Obtain(ctx, "lock:audit_dispatch", d.LockTimeout, nil)
		if err == redislock.ErrNotObtained {
			return
		}
		if err == nil {
			guard = lock
		}
	}
	defer func() {
		if guard != nil {
			_ = guard.Release(ctx)
		}
	}()

	now := time.Now().UTC()
	staleBefore := now.Add(-d.LockTimeout)

	var claimed []models.AuditEntry
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Eligible:
		// - PENDING / FAILED and ready to retry
		// - PROCESSING but lock is stale (dispatcher crashed mid-batch), reclaim after LockTimeout
		q := tx.
			Where(`
				(
					publish_status IN ? AND (next_attempt_at IS NULL OR next_attempt_at <= ?)
				)
				OR
				(
					publish_status = ? AND locked_at IS NOT NULL AND locked_at <= ?
				)
			`, []string{string(models.AuditPublishStatusPending), string(models.AuditPublishStatusFailed)}, now, models.AuditPublishStatusProcessing, staleBefore).
			Order("id ASC").
			Limit(d.BatchSize).
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		if err := q.Find(&claimed).Error; err != nil {
			return err
		}
		if len(claimed) == 0 {
			return nil
		}
		for i := range claimed {
			claimed[i].PublishStatus = models.AuditPublishStatusProcessing
			claimed[i].LockedAt = &now
			claimed[i].LockedBy = d.DispatcherID
			claimed[i].Attempts = claimed[i].Attempts + 1
			if err := tx.Model(&models.AuditEntry{}).Where("id = ?", claimed[i].ID).Updates(map[string]interface{}{
				"publish_status":  claimed[i].PublishStatus,
				"locked_at":       claimed[i].LockedAt,
				"locked_by":       claimed[i].LockedBy,
				"attempts":        gorm.Expr("attempts + 1"),
				"last_error":      nil,
				"next_attempt_at": nil,
			}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil || len(claimed) == 0 {
		return
	}

	for _, entry := range claimed {
		payload, marshalErr := json.Marshal(entry)
		if marshalErr != nil {
			d.markPublishFailed(ctx, entry.ID, marshalErr, entry.Attempts)
			continue
		}
		if _, pubErr := config.PublishAuditEntry(ctx, payload); pubErr != nil {
			d.markPublishFailed(ctx, entry.ID, pubErr, entry.Attempts)
			continue
		}
		d.markPublished(ctx, entry.ID, now)
	}
}

func (d *AuditDispatcher) markPublished(ctx context.Context, entryID int, now time.Time) {
	db := d.DB.WithContext(ctx)
	_ = db.Model(&models.AuditEntry{}).
		Where("id = ?", entryID).
		Updates(map[string]interface{}{
			"publish_status":  models.AuditPublishStatusPublished,
			"published_at":    &now,
			"locked_at":       nil,
			"locked_by":       "",
			"next_attempt_at": nil,
		}).Error
}

func (d *AuditDispatcher) markPublishFailed(ctx context.Context, entryID int, err error, attempt int) {
	db := d.DB.WithContext(ctx)
	now := time.Now().UTC()
	msg := err.Error()

	// The audit trail is append-only, so there is no DEAD terminal state;
	// after MaxAttempts the entry just waits at the retry ceiling.
	backoff := d.InitialBackoff
	for i := 1; i < attempt; i++ {
		backoff *= 2
		if backoff > time.Minute*10 {
			backoff = time.Minute * 10
			break
		}
	}
	next := now.Add(backoff)
	_ = db.Model(&models.AuditEntry{}).
		Where("id = ?", entryID).
		Updates(map[string]interface{}{
			"publish_status":  models.AuditPublishStatusFailed,
			"last_error":      &msg,
			"next_attempt_at": &next,
			"locked_at":       nil,
			"locked_by":       "",
		}).Error

	if d.Logger != nil {
		d.Logger.WithFields(logrus.Fields{
			"field":           "AuditDispatcher",
			"entry_id":        entryID,
			"attempt":         attempt,
			"next_attempt_at": next.Format(time.RFC3339Nano),
		}).Error("audit publish failed: " + fmt.Sprintf("%v", err))
	}
}
