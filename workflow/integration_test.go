package workflow

import (
	"context"
	"errors"
	"os"
	"testing"

	"bitbucket.org/mmdatafocus/expense_recon/config"
	"bitbucket.org/mmdatafocus/expense_recon/models"
	"bitbucket.org/mmdatafocus/expense_recon/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// These tests exercise the full import and export path against a real MySQL.
// They skip unless RECON_TEST_MYSQL_DSN points at a disposable database, e.g.
// root:secret@tcp(127.0.0.1:3306)/recon_test?multiStatements=true&parseTime=true
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := os.Getenv("RECON_TEST_MYSQL_DSN")
	if dsn == "" {
		t.Skip("RECON_TEST_MYSQL_DSN not set")
	}
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open mysql: %v", err)
	}
	config.SetDB(db)
	models.MigrateTable()
	return db
}

func createTestRun(t *testing.T) *models.Run {
	t.Helper()
	run, err := models.CreateRun(context.Background(), &models.NewRun{Name: "integration"})
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	t.Cleanup(func() {
		if err := models.DeleteRun(context.Background(), run.ID); err != nil {
			t.Errorf("DeleteRun cleanup: %v", err)
		}
	})
	return run
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(logrus.WarnLevel)
	return logger
}

func testImportDocs() []ImportDocument {
	ledger := "Employee ID: E100 - John Smith\n" +
		"01/05/2026 STARBUCKS #123 42.50\n" +
		"01/07/2026 DELTA AIRLINES 250.00\n"
	receipt := "Starbucks Coffee\n123 Main St\n01/05/2026\nTotal: $42.50\n"
	return []ImportDocument{
		{Type: models.DocumentTypeLedger, Filename: "ledger-jan.txt", Content: []byte(ledger)},
		{Type: models.DocumentTypeReceipt, Filename: "receipt-starbucks.txt", Content: []byte(receipt)},
	}
}

func countRunCharges(t *testing.T, db *gorm.DB, runId string) int64 {
	t.Helper()
	var n int64
	if err := db.Model(&models.ChargeRecord{}).Where("run_id = ?", runId).Count(&n).Error; err != nil {
		t.Fatalf("count charges: %v", err)
	}
	return n
}

func TestImportDocumentsSecondCallIsNoop(t *testing.T) {
	db := openTestDB(t)
	run := createTestRun(t)
	logger := testLogger()
	ctx := context.Background()

	first, err := ImportDocuments(ctx, db, logger, run.ID, testImportDocs(), false)
	if err != nil {
		t.Fatalf("first import: %v", err)
	}
	if first.Imported != 2 || first.Skipped != 0 {
		t.Fatalf("first import got imported=%d skipped=%d, want 2/0", first.Imported, first.Skipped)
	}
	charges := countRunCharges(t, db, run.ID)
	if charges == 0 {
		t.Fatal("first import produced no charges")
	}

	second, err := ImportDocuments(ctx, db, logger, run.ID, testImportDocs(), false)
	if err != nil {
		t.Fatalf("second import: %v", err)
	}
	if second.Imported != 0 || second.Skipped != 2 {
		t.Fatalf("second import got imported=%d skipped=%d, want 0/2", second.Imported, second.Skipped)
	}
	if got := countRunCharges(t, db, run.ID); got != charges {
		t.Fatalf("charge count changed from %d to %d on repeat import", charges, got)
	}
}

func TestImportDocumentsDedupsRenamedFile(t *testing.T) {
	db := openTestDB(t)
	run := createTestRun(t)
	logger := testLogger()
	ctx := context.Background()

	docs := testImportDocs()
	if _, err := ImportDocuments(ctx, db, logger, run.ID, docs, false); err != nil {
		t.Fatalf("first import: %v", err)
	}

	renamed := []ImportDocument{{
		Type:     models.DocumentTypeLedger,
		Filename: "ledger-jan-copy.txt",
		Content:  docs[0].Content,
	}}
	result, err := ImportDocuments(ctx, db, logger, run.ID, renamed, false)
	if err != nil {
		t.Fatalf("renamed import: %v", err)
	}
	if result.Imported != 0 || result.Skipped != 1 {
		t.Fatalf("renamed import got imported=%d skipped=%d, want 0/1", result.Imported, result.Skipped)
	}

	var docCount int64
	err = db.Model(&models.Document{}).
		Where("run_id = ? AND type = ?", run.ID, models.DocumentTypeLedger).
		Count(&docCount).Error
	if err != nil {
		t.Fatalf("count documents: %v", err)
	}
	if docCount != 1 {
		t.Fatalf("got %d ledger documents, want 1", docCount)
	}
}

func TestDeltaStreamsArePerExportType(t *testing.T) {
	db := openTestDB(t)
	run := createTestRun(t)
	logger := testLogger()
	ctx := context.Background()

	if _, err := ImportDocuments(ctx, db, logger, run.ID, testImportDocs(), false); err != nil {
		t.Fatalf("import: %v", err)
	}
	total := countRunCharges(t, db, run.ID)

	accounting, err := GetDelta(ctx, db, logger, run.ID, "accounting", "")
	if err != nil {
		t.Fatalf("accounting delta: %v", err)
	}
	if int64(len(accounting.Charges)) != total {
		t.Fatalf("fresh accounting delta got %d charges, want %d", len(accounting.Charges), total)
	}

	batch, stamped, err := MarkExported(ctx, db, logger, run.ID, "acct-1", "accounting", nil)
	if err != nil {
		t.Fatalf("mark exported: %v", err)
	}
	if stamped != total {
		t.Fatalf("stamped %d charges, want %d", stamped, total)
	}

	accounting, err = GetDelta(ctx, db, logger, run.ID, "accounting", "")
	if err != nil {
		t.Fatalf("accounting delta after export: %v", err)
	}
	if len(accounting.Charges) != 0 {
		t.Fatalf("accounting delta still has %d charges after export", len(accounting.Charges))
	}

	// A consumer with a different export type keeps its own delta stream.
	analytics, err := GetDelta(ctx, db, logger, run.ID, "analytics", "")
	if err != nil {
		t.Fatalf("analytics delta: %v", err)
	}
	if int64(len(analytics.Charges)) != total {
		t.Fatalf("analytics delta got %d charges, want %d", len(analytics.Charges), total)
	}

	// Replay from the marker returns what the batch delivered.
	replay, err := GetDelta(ctx, db, logger, run.ID, "accounting", batch.Marker)
	if err != nil {
		t.Fatalf("replay delta: %v", err)
	}
	if len(replay.Charges) != 0 {
		t.Fatalf("replay from latest marker got %d charges, want 0", len(replay.Charges))
	}
}

func TestImportDocumentsFailsFastWhenRunLocked(t *testing.T) {
	db := openTestDB(t)
	run := createTestRun(t)
	logger := testLogger()
	ctx := context.Background()

	// Hold the run's advisory lock on a pinned connection; the lock is
	// connection-scoped, so the import below contends with it.
	err := db.Connection(func(conn *gorm.DB) error {
		if err := AcquireRunImportLock(conn, run.ID); err != nil {
			return err
		}
		defer ReleaseRunImportLock(conn, run.ID)

		_, err := ImportDocuments(ctx, db, logger, run.ID, testImportDocs(), false)
		if !errors.Is(err, utils.ErrRunBusy) {
			t.Fatalf("import under held lock got %v, want ErrRunBusy", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("pinned connection: %v", err)
	}

	// The lock is gone once the holder releases it.
	if _, err := ImportDocuments(ctx, db, logger, run.ID, testImportDocs(), false); err != nil {
		t.Fatalf("import after release: %v", err)
	}
}

func TestMarkExportedRepeatMarkerStampsNothing(t *testing.T) {
	db := openTestDB(t)
	run := createTestRun(t)
	logger := testLogger()
	ctx := context.Background()

	if _, err := ImportDocuments(ctx, db, logger, run.ID, testImportDocs(), false); err != nil {
		t.Fatalf("import: %v", err)
	}

	first, stamped, err := MarkExported(ctx, db, logger, run.ID, "acct-1", "accounting", nil)
	if err != nil {
		t.Fatalf("first mark: %v", err)
	}
	if stamped == 0 {
		t.Fatal("first mark stamped nothing")
	}

	second, stamped, err := MarkExported(ctx, db, logger, run.ID, "acct-1", "accounting", nil)
	if err != nil {
		t.Fatalf("second mark: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("repeat marker created batch %d, want reuse of %d", second.ID, first.ID)
	}
	if stamped != 0 {
		t.Fatalf("repeat marker stamped %d charges, want 0", stamped)
	}
}
