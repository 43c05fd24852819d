package match

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func date(s string) time.Time {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return t
}

func amount(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func testEngine() *Engine {
	return NewEngine(Settings{
		DateWindowDays:  3,
		AmountTolerance: decimal.Zero,
		MinScore:        0.5,
	}, nil)
}

func TestScoreBounds(t *testing.T) {
	e := testEngine()
	receipt := Record{Date: date("2024-01-16"), Amount: amount("12.50"), Vendor: "starbucks coffee"}
	candidates := []Record{
		{Date: date("2024-01-15"), Amount: amount("12.50"), Vendor: "starbucks"},
		{Date: date("2024-06-01"), Amount: amount("12.50"), Vendor: "totally different"},
		{Date: date("2024-01-16"), Amount: amount("12.50"), Vendor: ""},
	}
	for _, c := range candidates {
		score := e.Score(receipt, c)
		if score < 0 || score > 1 {
			t.Errorf("score %v out of [0,1] for candidate %+v", score, c)
		}
	}
}

func TestAmountHardGate(t *testing.T) {
	e := testEngine()
	receipt := Record{Date: date("2024-01-16"), Amount: amount("12.50"), Vendor: "starbucks"}
	// Perfect date and vendor, amount off by a cent: never eligible.
	candidates := []Record{
		{ID: 1, Date: date("2024-01-16"), Amount: amount("12.51"), Vendor: "starbucks"},
	}
	if _, ok := e.BestMatch(receipt, candidates); ok {
		t.Fatal("candidate outside amount tolerance must not match")
	}

	e.Settings.AmountTolerance = amount("0.05")
	if _, ok := e.BestMatch(receipt, candidates); !ok {
		t.Fatal("candidate within widened tolerance should match")
	}
}

func TestResolutionRoundTripScore(t *testing.T) {
	// Ledger {2024-01-15, STARBUCKS #123, 12.50} vs receipt
	// {2024-01-16, Starbucks Coffee, 12.50}, window=3, tolerance=0:
	// amount=1, date=1, vendor >= 0.8 -> score >= 0.5+0.3+0.16.
	e := testEngine()
	receipt := Record{Date: date("2024-01-16"), Amount: amount("12.50"), Vendor: "starbucks coffee"}
	ledger := Record{ID: 7, Date: date("2024-01-15"), Amount: amount("12.50"), Vendor: "starbucks"}

	if term := e.VendorTerm(receipt.Vendor, ledger.Vendor); term < 0.8 {
		t.Fatalf("vendor term = %v, want >= 0.8", term)
	}
	best, ok := e.BestMatch(receipt, []Record{ledger})
	if !ok {
		t.Fatal("expected a match")
	}
	if best.Record.ID != 7 {
		t.Fatalf("matched %d, want 7", best.Record.ID)
	}
	if best.Score < 0.96 {
		t.Errorf("score = %v, want >= 0.96", best.Score)
	}
}

func TestDateOutsideWindowBecomesOrphan(t *testing.T) {
	// Same receipt dated 5 days away with window=3. The date term drops
	// to 0.33, so 0.5 + 0.3*0.33 + 0.2*0.8 = 0.759: still a candidate,
	// but it must sit below the 0.8 auto-accept default.
	e := testEngine()
	receipt := Record{Date: date("2024-01-20"), Amount: amount("12.50"), Vendor: "starbucks coffee"}
	ledger := Record{ID: 7, Date: date("2024-01-15"), Amount: amount("12.50"), Vendor: "starbucks"}

	best, ok := e.BestMatch(receipt, []Record{ledger})
	if !ok {
		t.Fatal("expected an eligible candidate")
	}
	if best.Score >= 0.8 {
		t.Errorf("score = %v, must stay below auto-accept", best.Score)
	}

	// Push the date far outside 2x window: term 0, score 0.5+0.16=0.66.
	receipt.Date = date("2024-02-15")
	best, ok = e.BestMatch(receipt, []Record{ledger})
	if !ok {
		t.Fatal("amount-eligible candidate should still be scored")
	}
	if best.Score >= 0.8 {
		t.Errorf("score = %v, must stay below auto-accept", best.Score)
	}

	// With a weak vendor too, the score falls under MinScore and the
	// receipt orphans.
	receipt.Vendor = "unrelated place"
	if _, ok := e.BestMatch(receipt, []Record{ledger}); ok {
		t.Error("weak candidate must not reach MinScore")
	}
}

func TestTieBreaks(t *testing.T) {
	e := testEngine()
	receipt := Record{Date: date("2024-01-16"), Amount: amount("10.00"), Vendor: "cafe"}
	candidates := []Record{
		{ID: 2, Date: date("2024-01-14"), Amount: amount("10.00"), Vendor: "cafe"},
		{ID: 1, Date: date("2024-01-15"), Amount: amount("10.00"), Vendor: "cafe"},
	}
	best, ok := e.BestMatch(receipt, candidates)
	if !ok {
		t.Fatal("expected a match")
	}
	if best.Record.ID != 1 {
		t.Errorf("tie should break by date distance, matched %d", best.Record.ID)
	}

	// Equal score and distance: lexicographic vendor order decides.
	candidates = []Record{
		{ID: 4, Date: date("2024-01-15"), Amount: amount("10.00"), Vendor: "cafe beta"},
		{ID: 3, Date: date("2024-01-15"), Amount: amount("10.00"), Vendor: "cafe alpha"},
	}
	best, ok = e.BestMatch(receipt, candidates)
	if !ok {
		t.Fatal("expected a match")
	}
	if best.Record.ID != 3 {
		t.Errorf("tie should break by vendor order, matched %d", best.Record.ID)
	}
}

func TestVendorTermAliases(t *testing.T) {
	aliases := NewTableAliases(map[string]string{
		"sbux": "starbucks",
	})
	e := NewEngine(Settings{DateWindowDays: 3, AmountTolerance: decimal.Zero, MinScore: 0.5}, aliases)

	if term := e.VendorTerm("sbux", "starbucks"); term != 1 {
		t.Errorf("aliased vendor term = %v, want 1", term)
	}
	if term := e.VendorTerm("sbux", "peets"); term != 0 {
		t.Errorf("unrelated vendor term = %v, want 0", term)
	}
}

func TestVendorTermOverlap(t *testing.T) {
	e := testEngine()
	cases := []struct {
		a, b string
		want float64
	}{
		{"starbucks", "starbucks", 1},
		{"starbucks coffee", "starbucks", 0.8},
		{"alpha beta", "beta gamma", 1.0 / 3.0},
		{"alpha", "beta", 0},
		{"", "", 0},
	}
	for _, c := range cases {
		if got := e.VendorTerm(c.a, c.b); got != c.want {
			t.Errorf("VendorTerm(%q, %q) = %v, want %v", c.a, c.b, got, c.want)
		}
	}
}
