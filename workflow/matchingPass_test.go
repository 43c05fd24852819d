package workflow

import (
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/expense_recon/match"
	"bitbucket.org/mmdatafocus/expense_recon/models"
	"github.com/shopspring/decimal"
)

// NOTE: These tests are intentionally DB-free. They validate the matching
// pass semantics on in-memory charge records:
// - same inputs and settings always give the same decisions
// - an accepted pairing claims its ledger charge before the next receipt
// - a pairing below the auto-accept threshold still claims its counterpart
//
// Full DB integration tests should be added in an environment that can run MySQL.

func day(d int) time.Time {
	return time.Date(2026, time.March, d, 0, 0, 0, 0, time.UTC)
}

func ledgerCharge(id int, d int, amount string, vendor string) *models.ChargeRecord {
	return &models.ChargeRecord{
		ID:               id,
		Origin:           models.ChargeOriginLedger,
		TransactionDate:  day(d),
		Amount:           decimal.RequireFromString(amount),
		VendorNormalized: vendor,
	}
}

func receiptCharge(id int, d int, amount string, vendor string) *models.ChargeRecord {
	return &models.ChargeRecord{
		ID:               id,
		Origin:           models.ChargeOriginReceipt,
		TransactionDate:  day(d),
		Amount:           decimal.RequireFromString(amount),
		VendorNormalized: vendor,
	}
}

func testEngine() *match.Engine {
	return match.NewEngine(match.Settings{
		DateWindowDays:  3,
		AmountTolerance: decimal.RequireFromString("0.00"),
		MinScore:        0.5,
	}, nil)
}

func TestMatchingPassIsDeterministic(t *testing.T) {
	ledger := []*models.ChargeRecord{
		ledgerCharge(1, 10, "42.50", "starbucks"),
		ledgerCharge(2, 11, "42.50", "starbucks"),
		ledgerCharge(3, 12, "9.99", "uber trip"),
	}
	receipts := []*models.ChargeRecord{
		receiptCharge(10, 10, "42.50", "starbucks"),
		receiptCharge(11, 12, "9.99", "uber trip"),
		receiptCharge(12, 11, "42.50", "starbucks"),
	}

	first := RunMatchingPass(testEngine(), 0.8, ledger, receipts)
	second := RunMatchingPass(testEngine(), 0.8, ledger, receipts)

	if len(first) != len(second) {
		t.Fatalf("decision counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		var a, b int
		if first[i].Ledger != nil {
			a = first[i].Ledger.ID
		}
		if second[i].Ledger != nil {
			b = second[i].Ledger.ID
		}
		if a != b || first[i].Score != second[i].Score {
			t.Fatalf("decision %d differs between runs: ledger %d/%d score %v/%v", i, a, b, first[i].Score, second[i].Score)
		}
	}
}

func TestMatchingPassClaimsLedgerChargeInOrder(t *testing.T) {
	// Two identical ledger charges a day apart; the first receipt takes the
	// same-day one, the second receipt must take the remaining one.
	ledger := []*models.ChargeRecord{
		ledgerCharge(1, 10, "42.50", "starbucks"),
		ledgerCharge(2, 11, "42.50", "starbucks"),
	}
	receipts := []*models.ChargeRecord{
		receiptCharge(10, 10, "42.50", "starbucks"),
		receiptCharge(11, 10, "42.50", "starbucks"),
	}

	decisions := RunMatchingPass(testEngine(), 0.8, ledger, receipts)
	if len(decisions) != 2 {
		t.Fatalf("expected 2 decisions, got %d", len(decisions))
	}
	if decisions[0].Ledger == nil || decisions[0].Ledger.ID != 1 {
		t.Fatalf("first receipt should claim ledger charge 1, got %+v", decisions[0].Ledger)
	}
	if decisions[1].Ledger == nil || decisions[1].Ledger.ID != 2 {
		t.Fatalf("second receipt should claim ledger charge 2, got %+v", decisions[1].Ledger)
	}
}

func TestMatchingPassBelowAutoAcceptStillClaims(t *testing.T) {
	// Vendor text barely overlaps, so the score lands between MinScore and
	// the auto-accept threshold. The pairing stands for review and the
	// ledger charge is not offered to the next receipt.
	ledger := []*models.ChargeRecord{
		ledgerCharge(1, 10, "42.50", "sbux store"),
	}
	receipts := []*models.ChargeRecord{
		receiptCharge(10, 10, "42.50", "starbucks coffee"),
		receiptCharge(11, 10, "42.50", "starbucks coffee"),
	}

	decisions := RunMatchingPass(testEngine(), 0.95, ledger, receipts)
	if decisions[0].Ledger == nil {
		t.Fatal("first receipt should claim the ledger charge")
	}
	if decisions[0].AutoAccept {
		t.Fatalf("score %v should be below the 0.95 auto-accept threshold", decisions[0].Score)
	}
	if decisions[1].Ledger != nil {
		t.Fatal("second receipt should be an orphan once the pool is drained")
	}
}

func TestMatchingPassOrphanWhenAmountGateFails(t *testing.T) {
	ledger := []*models.ChargeRecord{
		ledgerCharge(1, 10, "42.50", "starbucks"),
	}
	receipts := []*models.ChargeRecord{
		receiptCharge(10, 10, "43.50", "starbucks"),
	}

	decisions := RunMatchingPass(testEngine(), 0.8, ledger, receipts)
	if decisions[0].Ledger != nil {
		t.Fatalf("amount outside tolerance must never match, got ledger %d", decisions[0].Ledger.ID)
	}
}

func TestMatchingPassResolutionRoundTrip(t *testing.T) {
	// The canonical happy path: same amount, one day apart, store number
	// noise in the ledger vendor. Must auto-accept at the default 0.8.
	ledger := []*models.ChargeRecord{
		ledgerCharge(1, 16, "42.50", "starbucks"),
	}
	receipts := []*models.ChargeRecord{
		receiptCharge(10, 15, "42.50", "starbucks coffee"),
	}

	decisions := RunMatchingPass(testEngine(), 0.8, ledger, receipts)
	if decisions[0].Ledger == nil {
		t.Fatal("expected a match")
	}
	if !decisions[0].AutoAccept {
		t.Fatalf("score %v should auto-accept at 0.8", decisions[0].Score)
	}
}
