package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/expense_recon/config"
	"bitbucket.org/mmdatafocus/expense_recon/match"
	"bitbucket.org/mmdatafocus/expense_recon/models"
	"bitbucket.org/mmdatafocus/expense_recon/normalize"
	"bitbucket.org/mmdatafocus/expense_recon/utils"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

var validate = validator.New()

// ImportDocument is one file handed to an import call.
type ImportDocument struct {
	Type     models.DocumentType `json:"type" validate:"required,oneof=LEDGER RECEIPT"`
	Filename string              `json:"filename" validate:"required"`
	Content  []byte              `json:"-" validate:"required"`
}

// FailedDocument reports a document that was recorded but yielded nothing.
type FailedDocument struct {
	Filename string `json:"filename"`
	Reason   string `json:"reason"`
}

// ImportResult summarizes one import call.
type ImportResult struct {
	RunId               string           `json:"run_id"`
	CorrelationId       string           `json:"correlation_id"`
	Imported            int              `json:"imported"`
	Skipped             int              `json:"skipped"`
	Failed              []FailedDocument `json:"failed"`
	MatchedCharges      int              `json:"matched_charges"`
	OpenedActionItems   int              `json:"opened_action_items"`
	ResolvedActionItems int              `json:"resolved_action_items"`
}

// admittedDocument pairs a persisted document row with its raw content and,
// later, its extraction outcome.
type admittedDocument struct {
	record *models.Document
	raw    []byte
	forced bool
}

// ImportDocuments ingests a batch of documents into a run: checksum dedup,
// pattern extraction, charge normalization and one deterministic matching
// pass, all inside a single transaction so a failed import leaves no partial
// state. Concurrent imports into the same run fail fast with ErrRunBusy.
//
// force reprocesses documents whose checksum the run has already seen.
// Charges whose uniqueness key is unchanged keep their match links and
// export stamps; a changed amount produces a new, unexported charge and the
// stale one is removed.
//
// A ledger document that yields zero charges marks the whole run FAILED; the
// documents and audit trail are still committed and ErrNoChargesExtracted is
// returned alongside the result.
func ImportDocuments(ctx context.Context, db *gorm.DB, logger *logrus.Logger, runId string, docs []ImportDocument, force bool) (*ImportResult, error) {
	if len(docs) == 0 {
		return nil, errors.New("no documents to import")
	}
	for i := range docs {
		if err := validate.Struct(&docs[i]); err != nil {
			config.LogError(logger, "importWorkflow.go", "ImportDocuments", "Validate", docs[i].Filename, err)
			return nil, err
		}
	}

	// Alias table misses (cold cache, redis down) degrade to no aliasing
	// rather than failing the import.
	aliasTable, aliasErr := models.GetVendorAliases()
	if aliasErr != nil {
		config.LogError(logger, "importWorkflow.go", "ImportDocuments", "GetVendorAliases", runId, aliasErr)
		aliasTable = nil
	}

	result := &ImportResult{
		RunId:         runId,
		CorrelationId: uuid.NewString(),
		Failed:        []FailedDocument{},
	}
	ledgerFailed := false

	// The advisory lock is acquired on a pinned connection and released only
	// after the transaction commits; releasing inside the transaction would
	// open a window where a second import runs before this call's rows are
	// visible and trips the checksum unique index.
	err := db.WithContext(ctx).Connection(func(conn *gorm.DB) error {
		if err := AcquireRunImportLock(conn, runId); err != nil {
			return err
		}
		defer ReleaseRunImportLock(conn, runId)

		return conn.Transaction(func(tx *gorm.DB) error {
			return importDocumentsTx(tx, logger, runId, docs, force, aliasTable, result, &ledgerFailed)
		})
	})
	if err != nil {
		if errors.Is(err, utils.ErrRunBusy) || errors.Is(err, utils.ErrorRecordNotFound) {
			return nil, err
		}
		config.LogError(logger, "importWorkflow.go", "ImportDocuments", "Transaction", runId, err)
		return nil, fmt.Errorf("%w: %v", utils.ErrStorageWriteFailed, err)
	}

	if ledgerFailed {
		return result, utils.ErrNoChargesExtracted
	}
	return result, nil
}

// importDocumentsTx is the body of one import call, run inside the pinned
// connection's transaction with the run's advisory lock held.
func importDocumentsTx(tx *gorm.DB, logger *logrus.Logger, runId string, docs []ImportDocument, force bool, aliasTable map[string]string, result *ImportResult, ledgerFailed *bool) error {
	run, err := models.GetRunForUpdate(tx, runId)
	if err != nil {
		config.LogError(logger, "importWorkflow.go", "importDocumentsTx", "GetRunForUpdate", runId, err)
		return err
	}
	if err := tx.Model(&models.Run{}).Where("id = ?", runId).Update("status", models.RunStatusProcessing).Error; err != nil {
		return err
	}

	admitted, err := admitDocuments(tx, logger, run, docs, force, result)
	if err != nil {
		return err
	}

	jobs := make([]extractionJob, len(admitted))
	for i, a := range admitted {
		jobs[i] = extractionJob{docType: a.record.Type, filename: a.record.Filename, raw: a.raw}
	}
	outcomes := runExtractionPool(jobs, 0)

	var newCharges []*models.ChargeRecord
	ledgerImported := false
	for i, a := range admitted {
		charges, err := persistExtraction(tx, logger, run, a, outcomes[i], result)
		if err != nil {
			return err
		}
		if a.record.Type == models.DocumentTypeLedger {
			ledgerImported = true
			if len(charges) == 0 {
				*ledgerFailed = true
			}
		} else {
			newCharges = append(newCharges, charges...)
		}
	}

	if !*ledgerFailed {
		engine := match.NewEngine(match.Settings{
			DateWindowDays:  run.DateWindowDays,
			AmountTolerance: run.AmountTolerance,
			MinScore:        run.MinScore,
		}, match.NewTableAliases(aliasTable))
		if err := reconcile(tx, logger, run, engine, ledgerImported, newCharges, result); err != nil {
			return err
		}
	}

	if err := models.RecomputeRunSummary(tx, runId); err != nil {
		config.LogError(logger, "importWorkflow.go", "importDocumentsTx", "RecomputeRunSummary", runId, err)
		return err
	}
	if err := models.AppendAuditEntry(tx, runId, models.AuditEventRunSummaryRecomputed, "RUN", 0, result.CorrelationId, map[string]interface{}{
		"imported": result.Imported,
		"skipped":  result.Skipped,
		"failed":   len(result.Failed),
	}); err != nil {
		return err
	}

	status := models.RunStatusComplete
	if *ledgerFailed {
		status = models.RunStatusFailed
	}
	return tx.Model(&models.Run{}).Where("id = ?", runId).Updates(map[string]interface{}{
		"status":          status,
		"last_import_seq": run.LastImportSeq,
	}).Error
}

// admitDocuments applies checksum dedup and creates or reuses document rows.
// Documents already in the run are skipped unless force is set, in which case
// the existing row is reused so its charges keep their document identity.
func admitDocuments(tx *gorm.DB, logger *logrus.Logger, run *models.Run, docs []ImportDocument, force bool, result *ImportResult) ([]admittedDocument, error) {
	var admitted []admittedDocument
	for i := range docs {
		checksum := utils.Checksum(docs[i].Content)
		existing, err := models.FindDocumentByChecksum(tx, run.ID, checksum)
		if err != nil {
			config.LogError(logger, "importWorkflow.go", "admitDocuments", "FindDocumentByChecksum", docs[i].Filename, err)
			return nil, err
		}

		if existing != nil && !force {
			result.Skipped++
			err := models.AppendAuditEntry(tx, run.ID, models.AuditEventDocumentSkipped, "DOCUMENT", existing.ID, result.CorrelationId, map[string]interface{}{
				"filename": docs[i].Filename,
				"checksum": checksum,
			})
			if err != nil {
				return nil, err
			}
			continue
		}

		run.LastImportSeq++
		if existing != nil {
			err := tx.Model(&models.Document{}).Where("id = ?", existing.ID).Updates(map[string]interface{}{
				"filename":         docs[i].Filename,
				"size_bytes":       len(docs[i].Content),
				"import_seq":       run.LastImportSeq,
				"extraction_error": "",
				"processed_at":     nil,
			}).Error
			if err != nil {
				return nil, err
			}
			existing.Filename = docs[i].Filename
			existing.ImportSeq = run.LastImportSeq
			err = models.AppendAuditEntry(tx, run.ID, models.AuditEventReprocessTriggered, "DOCUMENT", existing.ID, result.CorrelationId, map[string]interface{}{
				"filename": docs[i].Filename,
				"checksum": checksum,
			})
			if err != nil {
				return nil, err
			}
			admitted = append(admitted, admittedDocument{record: existing, raw: docs[i].Content, forced: true})
			continue
		}

		record := &models.Document{
			RunId:     run.ID,
			Type:      docs[i].Type,
			Filename:  docs[i].Filename,
			Checksum:  checksum,
			SizeBytes: len(docs[i].Content),
			ImportSeq: run.LastImportSeq,
		}
		if err := tx.Create(record).Error; err != nil {
			return nil, err
		}
		admitted = append(admitted, admittedDocument{record: record, raw: docs[i].Content})
	}
	return admitted, nil
}

// persistExtraction writes one document's extraction outcome: its captures,
// persons and upserted charges. An unreadable document is recorded with its
// error and excluded; the import goes on. Returns the document's surviving
// charges.
func persistExtraction(tx *gorm.DB, logger *logrus.Logger, run *models.Run, a admittedDocument, outcome extractionOutcome, result *ImportResult) ([]*models.ChargeRecord, error) {
	now := time.Now().UTC()
	doc := a.record

	if outcome.err != nil {
		reason := outcome.err.Error()
		err := tx.Model(&models.Document{}).Where("id = ?", doc.ID).Updates(map[string]interface{}{
			"extraction_error": reason,
			"processed_at":     &now,
		}).Error
		if err != nil {
			return nil, err
		}
		failure := models.ExtractionRecord{
			DocumentId: doc.ID,
			FieldKey:   "extraction_failed",
			RawValue:   reason,
			Confidence: 0,
		}
		if err := tx.Create(&failure).Error; err != nil {
			return nil, err
		}
		result.Failed = append(result.Failed, FailedDocument{Filename: doc.Filename, Reason: reason})
		err = models.AppendAuditEntry(tx, run.ID, models.AuditEventDocumentFailed, "DOCUMENT", doc.ID, result.CorrelationId, map[string]interface{}{
			"filename": doc.Filename,
			"reason":   reason,
		})
		return nil, err
	}

	for _, capture := range outcome.result.Captures {
		record := models.ExtractionRecord{
			DocumentId: doc.ID,
			FieldKey:   capture.FieldKey,
			RawValue:   capture.RawValue,
			Confidence: capture.Confidence,
			PageNumber: capture.Page,
			LineNumber: capture.Line,
			Context:    capture.Context,
		}
		if err := tx.Create(&record).Error; err != nil {
			return nil, err
		}
	}

	origin := models.ChargeOriginReceipt
	if doc.Type == models.DocumentTypeLedger {
		origin = models.ChargeOriginLedger
	}

	var charges []*models.ChargeRecord
	keepIds := make([]int, 0, len(outcome.result.Charges))
	for _, draft := range outcome.result.Charges {
		var personId *int
		if draft.PersonExternalId != "" || draft.PersonName != "" {
			person, err := models.FindOrCreatePerson(tx, run.ID, draft.PersonExternalId, draft.PersonName, normalize.Name(draft.PersonName))
			if err != nil {
				config.LogError(logger, "importWorkflow.go", "persistExtraction", "FindOrCreatePerson", draft.PersonName, err)
				return nil, err
			}
			personId = &person.ID
		}

		charge := &models.ChargeRecord{
			RunId:            run.ID,
			PersonId:         personId,
			DocumentId:       doc.ID,
			TransactionDate:  draft.Date,
			Amount:           draft.Amount,
			VendorRaw:        draft.VendorRaw,
			VendorNormalized: normalize.Vendor(draft.VendorRaw),
			Category:         draft.Category,
			Origin:           origin,
			Confidence:       draft.Confidence(),
			PageNumber:       draft.Page,
			LineNumber:       draft.Line,
		}
		persisted, err := models.UpsertChargeRecord(tx, charge)
		if err != nil {
			config.LogError(logger, "importWorkflow.go", "persistExtraction", "UpsertChargeRecord", charge.VendorNormalized, err)
			return nil, err
		}
		charges = append(charges, persisted)
		keepIds = append(keepIds, persisted.ID)
	}

	if a.forced {
		if _, err := models.DeleteStaleCharges(tx, doc.ID, keepIds); err != nil {
			return nil, err
		}
	}

	err := tx.Model(&models.Document{}).Where("id = ?", doc.ID).Updates(map[string]interface{}{
		"page_count":   outcome.pageCount,
		"processed_at": &now,
	}).Error
	if err != nil {
		return nil, err
	}

	if doc.Type == models.DocumentTypeLedger && len(charges) == 0 {
		reason := utils.ErrNoChargesExtracted.Error()
		err := tx.Model(&models.Document{}).Where("id = ?", doc.ID).Update("extraction_error", reason).Error
		if err != nil {
			return nil, err
		}
		result.Failed = append(result.Failed, FailedDocument{Filename: doc.Filename, Reason: reason})
		err = models.AppendAuditEntry(tx, run.ID, models.AuditEventDocumentFailed, "DOCUMENT", doc.ID, result.CorrelationId, map[string]interface{}{
			"filename": doc.Filename,
			"reason":   reason,
		})
		return nil, err
	}

	result.Imported++
	err = models.AppendAuditEntry(tx, run.ID, models.AuditEventDocumentImported, "DOCUMENT", doc.ID, result.CorrelationId, map[string]interface{}{
		"filename": doc.Filename,
		"checksum": doc.Checksum,
		"charges":  len(charges),
		"pages":    outcome.pageCount,
	})
	if err != nil {
		return nil, err
	}
	return charges, nil
}

// reconcile runs the matching pass and applies its decisions. When a ledger
// document arrived in this call every unmatched receipt in the run is
// reconsidered; otherwise only the receipts this call produced are.
func reconcile(tx *gorm.DB, logger *logrus.Logger, run *models.Run, engine *match.Engine, ledgerImported bool, newCharges []*models.ChargeRecord, result *ImportResult) error {
	ledgerPool, err := models.GetUnmatchedCharges(tx, run.ID, models.ChargeOriginLedger)
	if err != nil {
		config.LogError(logger, "importWorkflow.go", "reconcile", "GetUnmatchedCharges ledger", run.ID, err)
		return err
	}

	var receipts []*models.ChargeRecord
	if ledgerImported {
		receipts, err = models.GetUnmatchedCharges(tx, run.ID, models.ChargeOriginReceipt)
		if err != nil {
			config.LogError(logger, "importWorkflow.go", "reconcile", "GetUnmatchedCharges receipt", run.ID, err)
			return err
		}
	} else {
		for _, c := range newCharges {
			if c.MatchedChargeId == nil {
				receipts = append(receipts, c)
			}
		}
	}

	decisions := RunMatchingPass(engine, run.AutoAcceptScore, ledgerPool, receipts)
	claimed := map[int]bool{}
	for _, d := range decisions {
		if d.Ledger != nil {
			claimed[d.Ledger.ID] = true
		}
		if err := applyMatchDecision(tx, logger, run, d, result); err != nil {
			return err
		}
	}

	// Every ledger charge still without a counterpart keeps exactly one
	// open missing-counterpart item.
	for _, ledger := range ledgerPool {
		if claimed[ledger.ID] {
			continue
		}
		existing, err := models.FindOpenItemForCharge(tx, ledger.ID, models.ActionItemCauseMissingCounterpart)
		if err != nil {
			return err
		}
		if existing != nil {
			continue
		}
		item, err := models.OpenActionItem(tx, run.ID, ledger.PersonId, models.ActionItemCauseMissingCounterpart, map[string]string{
			"vendor": ledger.VendorNormalized,
			"amount": ledger.Amount.StringFixed(2),
			"date":   ledger.TransactionDate.Format("2006-01-02"),
		}, ledger.ID)
		if err != nil {
			return err
		}
		result.OpenedActionItems++
		err = models.AppendAuditEntry(tx, run.ID, models.AuditEventActionItemOpened, "ACTION_ITEM", item.ID, result.CorrelationId, map[string]interface{}{
			"cause":     string(item.Cause),
			"charge_id": ledger.ID,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func applyMatchDecision(tx *gorm.DB, logger *logrus.Logger, run *models.Run, d MatchDecision, result *ImportResult) error {
	if d.Ledger == nil {
		return recordOrphanReceipt(tx, run, d.Receipt, result)
	}

	if err := linkMatchedCharges(tx, d); err != nil {
		config.LogError(logger, "importWorkflow.go", "applyMatchDecision", "linkMatchedCharges", d.Receipt.ID, err)
		return err
	}
	result.MatchedCharges++
	err := models.AppendAuditEntry(tx, run.ID, models.AuditEventChargeMatched, "CHARGE", d.Receipt.ID, result.CorrelationId, map[string]interface{}{
		"ledger_charge_id": d.Ledger.ID,
		"score":            d.Score,
		"auto_accept":      d.AutoAccept,
	})
	if err != nil {
		return err
	}

	// An orphan item from an earlier pass is settled either way: the
	// receipt now has a counterpart.
	orphanItem, err := models.FindOpenItemForCharge(tx, d.Receipt.ID, models.ActionItemCauseOrphanReceipt)
	if err != nil {
		return err
	}
	if orphanItem != nil {
		if err := resolveItem(tx, run, orphanItem, map[string]string{"resolution": "counterpart_found"}, result); err != nil {
			return err
		}
	}

	counterpartItem, err := models.FindOpenItemForCharge(tx, d.Ledger.ID, models.ActionItemCauseMissingCounterpart)
	if err != nil {
		return err
	}

	if d.AutoAccept {
		if counterpartItem != nil {
			details := map[string]string{
				"resolution":        "matched",
				"receipt_charge_id": fmt.Sprintf("%d", d.Receipt.ID),
				"score":             fmt.Sprintf("%.3f", d.Score),
			}
			if err := resolveItem(tx, run, counterpartItem, details, result); err != nil {
				return err
			}
		}
		return nil
	}

	// Below auto-accept the pairing stands but needs review. Reuse the
	// ledger charge's open item when there is one, otherwise open a fresh
	// item; either way it ends up IN_REVIEW linked to both charges.
	cause := models.ActionItemCauseOther
	details := map[string]string{
		"review_reason":     "low_confidence",
		"score":             fmt.Sprintf("%.3f", d.Score),
		"receipt_charge_id": fmt.Sprintf("%d", d.Receipt.ID),
	}
	if !d.Receipt.Amount.Equal(d.Ledger.Amount) {
		cause = models.ActionItemCauseAmountMismatch
		details["review_reason"] = "amount_mismatch"
		details["amount_delta"] = d.Receipt.Amount.Sub(d.Ledger.Amount).Abs().StringFixed(2)
	}

	item := counterpartItem
	if item == nil {
		item, err = models.OpenActionItem(tx, run.ID, d.Ledger.PersonId, cause, details, d.Ledger.ID, d.Receipt.ID)
		if err != nil {
			return err
		}
		result.OpenedActionItems++
		err = models.AppendAuditEntry(tx, run.ID, models.AuditEventActionItemOpened, "ACTION_ITEM", item.ID, result.CorrelationId, map[string]interface{}{
			"cause":     string(cause),
			"charge_id": d.Ledger.ID,
		})
		if err != nil {
			return err
		}
	} else {
		if err := tx.Model(&models.ActionItem{}).Where("id = ?", item.ID).Update("cause", cause).Error; err != nil {
			return err
		}
		item.Cause = cause
		if err := models.LinkActionItemCharges(tx, item.ID, d.Receipt.ID); err != nil {
			return err
		}
	}
	if item.Status == models.ActionItemStatusOpen {
		if err := models.TransitionActionItem(tx, item, models.ActionItemStatusInReview, details); err != nil {
			return err
		}
		err = models.AppendAuditEntry(tx, run.ID, models.AuditEventActionItemTransition, "ACTION_ITEM", item.ID, result.CorrelationId, map[string]interface{}{
			"from": string(models.ActionItemStatusOpen),
			"to":   string(models.ActionItemStatusInReview),
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func recordOrphanReceipt(tx *gorm.DB, run *models.Run, receipt *models.ChargeRecord, result *ImportResult) error {
	existing, err := models.FindOpenItemForCharge(tx, receipt.ID, models.ActionItemCauseOrphanReceipt)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}
	item, err := models.OpenActionItem(tx, run.ID, receipt.PersonId, models.ActionItemCauseOrphanReceipt, map[string]string{
		"vendor": receipt.VendorNormalized,
		"amount": receipt.Amount.StringFixed(2),
		"date":   receipt.TransactionDate.Format("2006-01-02"),
	}, receipt.ID)
	if err != nil {
		return err
	}
	result.OpenedActionItems++
	return models.AppendAuditEntry(tx, run.ID, models.AuditEventActionItemOpened, "ACTION_ITEM", item.ID, result.CorrelationId, map[string]interface{}{
		"cause":     string(item.Cause),
		"charge_id": receipt.ID,
	})
}

func resolveItem(tx *gorm.DB, run *models.Run, item *models.ActionItem, details map[string]string, result *ImportResult) error {
	from := item.Status
	if err := models.TransitionActionItem(tx, item, models.ActionItemStatusResolved, details); err != nil {
		return err
	}
	result.ResolvedActionItems++
	return models.AppendAuditEntry(tx, run.ID, models.AuditEventActionItemTransition, "ACTION_ITEM", item.ID, result.CorrelationId, map[string]interface{}{
		"from": string(from),
		"to":   string(models.ActionItemStatusResolved),
	})
}

// linkMatchedCharges links the pair in both directions and propagates a
// person identity across the pair when only one side carries one.
func linkMatchedCharges(tx *gorm.DB, d MatchDecision) error {
	receiptUpdates := map[string]interface{}{
		"matched_charge_id":   d.Ledger.ID,
		"matched_document_id": d.Ledger.DocumentId,
		"match_score":         d.Score,
	}
	ledgerUpdates := map[string]interface{}{
		"matched_charge_id":   d.Receipt.ID,
		"matched_document_id": d.Receipt.DocumentId,
		"match_score":         d.Score,
	}
	if d.Ledger.PersonId != nil && d.Receipt.PersonId == nil {
		receiptUpdates["person_id"] = *d.Ledger.PersonId
		d.Receipt.PersonId = d.Ledger.PersonId
	} else if d.Receipt.PersonId != nil && d.Ledger.PersonId == nil {
		ledgerUpdates["person_id"] = *d.Receipt.PersonId
		d.Ledger.PersonId = d.Receipt.PersonId
	}

	if err := tx.Model(&models.ChargeRecord{}).Where("id = ?", d.Receipt.ID).Updates(receiptUpdates).Error; err != nil {
		return err
	}
	if err := tx.Model(&models.ChargeRecord{}).Where("id = ?", d.Ledger.ID).Updates(ledgerUpdates).Error; err != nil {
		return err
	}
	d.Receipt.MatchedChargeId = &d.Ledger.ID
	d.Ledger.MatchedChargeId = &d.Receipt.ID
	return nil
}
