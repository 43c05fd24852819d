package extract

import (
	"regexp"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/expense_recon/normalize"
	"github.com/shopspring/decimal"
)

// PersonRule detects a person-identifying header line that opens a
// per-person section of the ledger.
type PersonRule struct {
	Name    string
	Pattern *regexp.Regexp
	Parse   func(m []string) (externalId, displayName string, ok bool)
}

// TransactionFields is the typed capture of one ledger transaction line.
type TransactionFields struct {
	Date     time.Time
	Vendor   string
	Amount   decimal.Decimal
	Category string
}

// TransactionRule detects a `<date> <vendor> <amount>` line.
type TransactionRule struct {
	Name    string
	Pattern *regexp.Regexp
	Parse   func(m []string) (TransactionFields, bool)
}

// LedgerExtractor scans a ledger document. Rule slices are ordered by
// priority and fully replaceable.
type LedgerExtractor struct {
	PersonRules      []PersonRule
	TransactionRules []TransactionRule
}

var defaultPersonRules = []PersonRule{
	{
		Name:    "person-id-header",
		Pattern: regexp.MustCompile(`(?i)^(?:employee|cardholder|card\s*holder|member)\s*(?:id|no|#)\s*[:#.]?\s*([A-Za-z0-9-]+)(?:\s*[-:]\s*(.+))?$`),
		Parse: func(m []string) (string, string, bool) {
			return m[1], strings.TrimSpace(m[2]), true
		},
	},
	{
		Name:    "person-name-header",
		Pattern: regexp.MustCompile(`(?i)^(?:employee|cardholder|card\s*holder)(?:\s+name)?\s*:\s*(.+)$`),
		Parse: func(m []string) (string, string, bool) {
			name := strings.TrimSpace(m[1])
			if normalize.Name(name) == "" {
				return "", "", false
			}
			return "", name, true
		},
	},
	{
		Name:    "person-comma-name",
		Pattern: regexp.MustCompile(`^([A-Z][A-Za-z'.-]+,\s*[A-Z][A-Za-z'. -]*[A-Za-z.])$`),
		Parse: func(m []string) (string, string, bool) {
			return "", strings.TrimSpace(m[1]), true
		},
	},
}

// amountToken matches a currency-shaped token at the end of a transaction
// line, including negative and parenthesized forms.
const amountToken = `\(?-?[$€£]?[\d,]+(?:\.\d{1,2})?\)?`

var defaultTransactionRules = []TransactionRule{
	{
		// Tab-separated row (spreadsheet sheets render this way), with an
		// optional trailing category column.
		Name:    "txn-tabular",
		Pattern: regexp.MustCompile(`^([^\t]+)\t+([^\t]+)\t+(` + amountToken + `)(?:\t+([^\t]+))?$`),
		Parse:   parseTransactionMatch,
	},
	{
		Name:    "txn-whitespace",
		Pattern: regexp.MustCompile(`^(\S+)\s+(.*?)\s+(` + amountToken + `)$`),
		Parse:   parseTransactionMatch,
	},
}

func parseTransactionMatch(m []string) (TransactionFields, bool) {
	date, ok := normalize.Date(strings.TrimSpace(m[1]))
	if !ok {
		return TransactionFields{}, false
	}
	amount, ok := normalize.Amount(strings.TrimSpace(m[3]))
	if !ok {
		return TransactionFields{}, false
	}
	fields := TransactionFields{
		Date:   date,
		Vendor: strings.TrimSpace(m[2]),
		Amount: amount,
	}
	if len(m) > 4 {
		fields.Category = strings.TrimSpace(m[4])
	}
	return fields, true
}

func NewLedgerExtractor() *LedgerExtractor {
	return &LedgerExtractor{
		PersonRules:      defaultPersonRules,
		TransactionRules: defaultTransactionRules,
	}
}

// Extract walks the pages in order. Person headers delimit sections;
// transaction lines within a section inherit that person. Transaction lines
// with ambiguous vendor text are skipped and logged as a low-confidence
// capture rather than guessed.
func (e *LedgerExtractor) Extract(pages []Page) *Result {
	result := &Result{PageCount: len(pages)}

	var currentExternalId, currentName string
	for _, page := range pages {
	nextLine:
		for _, line := range page.Lines {
			for _, rule := range e.PersonRules {
				m := rule.Pattern.FindStringSubmatch(line.Text)
				if m == nil {
					continue
				}
				externalId, displayName, ok := rule.Parse(m)
				if !ok {
					continue
				}
				currentExternalId, currentName = externalId, displayName
				result.Captures = append(result.Captures, Capture{
					FieldKey:   "person_header",
					RawValue:   line.Text,
					Confidence: 1,
					Page:       page.Number,
					Line:       line.Number,
					Context:    rule.Name,
				})
				continue nextLine
			}

			for _, rule := range e.TransactionRules {
				m := rule.Pattern.FindStringSubmatch(line.Text)
				if m == nil {
					continue
				}
				fields, ok := rule.Parse(m)
				if !ok {
					continue
				}
				if normalize.Vendor(fields.Vendor) == "" || looksLikeDateOrAmount(fields.Vendor) {
					result.Captures = append(result.Captures, Capture{
						FieldKey:   "vendor_ambiguous",
						RawValue:   fields.Vendor,
						Confidence: 0.2,
						Page:       page.Number,
						Line:       line.Number,
						Context:    line.Text,
					})
					continue nextLine
				}

				result.Charges = append(result.Charges, DraftCharge{
					PersonExternalId: currentExternalId,
					PersonName:       currentName,
					Date:             fields.Date,
					Amount:           fields.Amount,
					VendorRaw:        fields.Vendor,
					Category:         fields.Category,
					Page:             page.Number,
					Line:             line.Number,
					DateConfidence:   1,
					AmountConfidence: 1,
					VendorConfidence: 1,
				})
				result.Captures = append(result.Captures,
					Capture{FieldKey: "transaction_date", RawValue: m[1], Confidence: 1, Page: page.Number, Line: line.Number, Context: rule.Name},
					Capture{FieldKey: "transaction_vendor", RawValue: fields.Vendor, Confidence: 1, Page: page.Number, Line: line.Number, Context: rule.Name},
					Capture{FieldKey: "transaction_amount", RawValue: m[3], Confidence: 1, Page: page.Number, Line: line.Number, Context: rule.Name},
				)
				continue nextLine
			}
		}
	}
	return result
}

// looksLikeDateOrAmount guards against column misalignment putting a date or
// amount token where the vendor belongs.
func looksLikeDateOrAmount(s string) bool {
	s = strings.TrimSpace(s)
	if _, ok := normalize.Date(s); ok {
		return true
	}
	_, ok := normalize.Amount(s)
	return ok
}
