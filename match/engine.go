// Package match scores receipt charges against open ledger charges. The
// engine is pure: same inputs and settings give the same pairing, so import
// replays are reproducible.
package match

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Record is the engine's view of a charge: already normalized, origin-free.
type Record struct {
	ID       int
	Date     time.Time
	Amount   decimal.Decimal
	Vendor   string // normalized join key
	PersonId *int
}

// Settings are the per-run matching knobs. MinScore gates acceptance;
// callers compare the returned score against their auto-accept threshold
// separately.
type Settings struct {
	DateWindowDays  int
	AmountTolerance decimal.Decimal
	MinScore        float64
}

type Engine struct {
	Settings Settings
	Aliases  AliasProvider
}

func NewEngine(settings Settings, aliases AliasProvider) *Engine {
	if aliases == nil {
		aliases = NoAliases{}
	}
	return &Engine{Settings: settings, Aliases: aliases}
}

// Candidate is one scored pairing.
type Candidate struct {
	Record       Record
	Score        float64
	DateDistance int
}

// BestMatch returns the winning candidate for a receipt, or ok=false when no
// candidate is eligible and at least MinScore. The amount term is a hard
// gate: a candidate outside tolerance is never eligible regardless of the
// other terms. Ties break by smallest date distance, then normalized-vendor
// order, for reproducibility.
func (e *Engine) BestMatch(receipt Record, candidates []Record) (Candidate, bool) {
	eligible := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if !e.amountEligible(receipt.Amount, c.Amount) {
			continue
		}
		eligible = append(eligible, Candidate{
			Record:       c,
			Score:        e.Score(receipt, c),
			DateDistance: dayDistance(receipt.Date, c.Date),
		})
	}
	if len(eligible) == 0 {
		return Candidate{}, false
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		if eligible[i].Score != eligible[j].Score {
			return eligible[i].Score > eligible[j].Score
		}
		if eligible[i].DateDistance != eligible[j].DateDistance {
			return eligible[i].DateDistance < eligible[j].DateDistance
		}
		return eligible[i].Record.Vendor < eligible[j].Record.Vendor
	})

	best := eligible[0]
	if best.Score < e.Settings.MinScore {
		return Candidate{}, false
	}
	return best, true
}

// Score is 0.5*amount + 0.3*date + 0.2*vendor, in [0,1]. Callers only see
// scores for amount-eligible candidates, so the amount term contributes its
// full 0.5 whenever a score is produced.
func (e *Engine) Score(receipt, candidate Record) float64 {
	amountTerm := 0.0
	if e.amountEligible(receipt.Amount, candidate.Amount) {
		amountTerm = 1
	}
	return 0.5*amountTerm + 0.3*e.dateTerm(receipt.Date, candidate.Date) + 0.2*e.VendorTerm(receipt.Vendor, candidate.Vendor)
}

func (e *Engine) amountEligible(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(e.Settings.AmountTolerance)
}

func (e *Engine) dateTerm(a, b time.Time) float64 {
	distance := dayDistance(a, b)
	window := e.Settings.DateWindowDays
	switch {
	case distance <= window:
		return 1
	case distance <= 2*window:
		return 0.33
	default:
		return 0
	}
}

// VendorTerm compares normalized vendor strings: 1 for equality (after alias
// canonicalization), 0.8 when one contains the other, else word overlap over
// word union.
func (e *Engine) VendorTerm(a, b string) float64 {
	a = e.Aliases.Canonical(a)
	b = e.Aliases.Canonical(b)
	if a == b {
		if a == "" {
			return 0
		}
		return 1
	}
	if a == "" || b == "" {
		return 0
	}
	if strings.Contains(a, b) || strings.Contains(b, a) {
		return 0.8
	}
	return wordOverlap(a, b)
}

func wordOverlap(a, b string) float64 {
	setA := map[string]bool{}
	for _, w := range strings.Fields(a) {
		setA[w] = true
	}
	setB := map[string]bool{}
	for _, w := range strings.Fields(b) {
		setB[w] = true
	}
	overlap := 0
	union := len(setA)
	for w := range setB {
		if setA[w] {
			overlap++
		} else {
			union++
		}
	}
	if union == 0 {
		return 0
	}
	return float64(overlap) / float64(union)
}

func dayDistance(a, b time.Time) int {
	da := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	db := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	d := int(da.Sub(db).Hours() / 24)
	if d < 0 {
		d = -d
	}
	return d
}
