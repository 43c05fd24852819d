package workflow

import (
	"bitbucket.org/mmdatafocus/expense_recon/match"
	"bitbucket.org/mmdatafocus/expense_recon/models"
)

// MatchDecision is the outcome of the pass for one receipt charge. A nil
// Ledger means the receipt found no eligible counterpart and becomes an
// orphan. AutoAccept means the pairing needs no human review.
type MatchDecision struct {
	Receipt    *models.ChargeRecord
	Ledger     *models.ChargeRecord
	Score      float64
	AutoAccept bool
}

// RunMatchingPass pairs receipt charges against open ledger charges. The
// pass is pure and sequential: receipts are consumed in the order given
// (document import order, then in-document line order) and each accepted
// pairing removes its ledger charge from the pool before the next receipt is
// considered. Same inputs, same settings, same decisions.
//
// A pairing below the auto-accept threshold still claims its ledger charge;
// review rejects it later by overriding the action item, not by re-running
// the pass.
func RunMatchingPass(engine *match.Engine, autoAcceptScore float64, ledgerCharges, receipts []*models.ChargeRecord) []MatchDecision {
	pool := make([]*models.ChargeRecord, len(ledgerCharges))
	copy(pool, ledgerCharges)

	decisions := make([]MatchDecision, 0, len(receipts))
	for _, receipt := range receipts {
		candidates := make([]match.Record, len(pool))
		for i, c := range pool {
			candidates[i] = toMatchRecord(c)
		}

		best, ok := engine.BestMatch(toMatchRecord(receipt), candidates)
		if !ok {
			decisions = append(decisions, MatchDecision{Receipt: receipt})
			continue
		}

		var ledger *models.ChargeRecord
		for i, c := range pool {
			if c.ID == best.Record.ID {
				ledger = c
				pool = append(pool[:i], pool[i+1:]...)
				break
			}
		}
		decisions = append(decisions, MatchDecision{
			Receipt:    receipt,
			Ledger:     ledger,
			Score:      best.Score,
			AutoAccept: best.Score >= autoAcceptScore,
		})
	}
	return decisions
}

func toMatchRecord(c *models.ChargeRecord) match.Record {
	return match.Record{
		ID:       c.ID,
		Date:     c.TransactionDate,
		Amount:   c.Amount,
		Vendor:   c.VendorNormalized,
		PersonId: c.PersonId,
	}
}
