package extract

import (
	"regexp"
	"time"

	"github.com/shopspring/decimal"
)

// Rule is one (pattern, parser) pair. Rule lists are ordered by priority and
// the first rule whose captures parse successfully wins for a line. Extractor
// rule sets are plain slices so tests and callers can substitute their own.
type Rule struct {
	Name       string
	Pattern    *regexp.Regexp
	Confidence float64
	// Parse turns the submatches into the rule's value. ok=false sends the
	// line on to the next rule.
	Parse func(m []string) (value string, ok bool)
}

// FirstMatch applies rules in order and returns the winning rule and value.
func FirstMatch(rules []Rule, line string) (*Rule, string, bool) {
	for i := range rules {
		m := rules[i].Pattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		value, ok := rules[i].Parse(m)
		if !ok {
			continue
		}
		return &rules[i], value, true
	}
	return nil, "", false
}

// DraftCharge is a typed candidate charge produced by a pattern extractor,
// before normalization into a stored ChargeRecord.
type DraftCharge struct {
	PersonExternalId string
	PersonName       string
	Date             time.Time
	Amount           decimal.Decimal
	VendorRaw        string
	Category         string
	Page             int
	Line             int

	DateConfidence   float64
	AmountConfidence float64
	VendorConfidence float64
}

// Confidence collapses the per-field confidences into one value for the
// stored record: the weakest field bounds the whole charge.
func (d DraftCharge) Confidence() float64 {
	c := d.DateConfidence
	if d.AmountConfidence < c {
		c = d.AmountConfidence
	}
	if d.VendorConfidence < c {
		c = d.VendorConfidence
	}
	return c
}

// Capture is a draft ExtractionRecord: one raw field pulled from the text,
// kept for audit whether or not it made it into a charge.
type Capture struct {
	FieldKey   string
	RawValue   string
	Confidence float64
	Page       int
	Line       int
	Context    string
}

// Result is everything a pattern extractor pulled from one document.
type Result struct {
	PageCount int
	Charges   []DraftCharge
	Captures  []Capture
}
