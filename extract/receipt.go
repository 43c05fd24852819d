package extract

import (
	"regexp"
	"strings"

	"bitbucket.org/mmdatafocus/expense_recon/normalize"
	"github.com/shopspring/decimal"
)

// ReceiptExtractor pulls one vendor, one total and one date out of a receipt
// document. Rule slices are ordered by priority; the fallback for each field
// is the last rule in its list.
type ReceiptExtractor struct {
	TotalRules []Rule
	DateRules  []Rule
	// HeaderWindow is how many lines from the top of the first page are
	// considered for the vendor name.
	HeaderWindow int
}

var dateToken = regexp.MustCompile(`\d{1,4}[/-]\d{1,2}[/-]\d{2,4}`)
var currencyToken = regexp.MustCompile(`\(?-?[$€£][\d,]+(?:\.\d{1,2})?\)?|\(?-?[\d,]+\.\d{2}\)?`)

var defaultTotalRules = []Rule{
	{
		// Whole-line patterns so Parse sees the full line in m[0].
		Name:       "total-keyword",
		Pattern:    regexp.MustCompile(`(?i)^.*\b(?:grand\s+total|total(?:\s+due)?|amount(?:\s+(?:due|paid))?)\b.*$`),
		Confidence: 0.9,
		Parse:      lastCurrencyToken,
	},
	{
		// Fallback: any currency-shaped token; the extractor keeps the
		// maximum across the document at low confidence.
		Name:       "total-max-token",
		Pattern:    regexp.MustCompile(`^.*$`),
		Confidence: 0.4,
		Parse:      lastCurrencyToken,
	},
}

var defaultDateRules = []Rule{
	{
		Name:       "date-keyword",
		Pattern:    regexp.MustCompile(`(?i)^.*\bdate\b.*$`),
		Confidence: 0.9,
		Parse:      firstDateToken,
	},
	{
		Name:       "date-first-token",
		Pattern:    regexp.MustCompile(`^.*$`),
		Confidence: 0.6,
		Parse:      firstDateToken,
	},
}

func lastCurrencyToken(m []string) (string, bool) {
	tokens := currencyToken.FindAllString(m[0], -1)
	if len(tokens) == 0 {
		return "", false
	}
	return tokens[len(tokens)-1], true
}

func firstDateToken(m []string) (string, bool) {
	token := dateToken.FindString(m[0])
	if token == "" {
		return "", false
	}
	if _, ok := normalize.Date(token); !ok {
		return "", false
	}
	return token, true
}

func NewReceiptExtractor() *ReceiptExtractor {
	return &ReceiptExtractor{
		TotalRules:   defaultTotalRules,
		DateRules:    defaultDateRules,
		HeaderWindow: 5,
	}
}

// Extract returns at most one draft charge per receipt document, with
// per-field confidences, plus a capture for everything it considered.
func (e *ReceiptExtractor) Extract(pages []Page) *Result {
	result := &Result{PageCount: len(pages)}
	if len(pages) == 0 {
		return result
	}

	draft := DraftCharge{Page: pages[0].Number}

	vendor, vendorCapture := e.findVendor(pages)
	if vendorCapture != nil {
		result.Captures = append(result.Captures, *vendorCapture)
	}
	draft.VendorRaw = vendor
	if vendorCapture != nil {
		draft.VendorConfidence = vendorCapture.Confidence
	}

	if capture, amount, ok := e.findTotal(pages); ok {
		result.Captures = append(result.Captures, *capture)
		draft.Amount = amount
		draft.AmountConfidence = capture.Confidence
		draft.Line = capture.Line
	}

	if capture, ok := e.findDate(pages); ok {
		result.Captures = append(result.Captures, *capture)
		date, _ := normalize.Date(capture.RawValue)
		draft.Date = date
		draft.DateConfidence = capture.Confidence
	}

	// A receipt with no usable amount or date is not a charge; the captures
	// still say what was seen.
	if draft.AmountConfidence == 0 || draft.DateConfidence == 0 || draft.VendorRaw == "" {
		return result
	}

	result.Charges = append(result.Charges, draft)
	return result
}

// findVendor prefers a plausible name near the top of the first page, then a
// "<name> receipt" keyword line anywhere.
func (e *ReceiptExtractor) findVendor(pages []Page) (string, *Capture) {
	header := pages[0].Lines
	if len(header) > e.HeaderWindow {
		header = header[:e.HeaderWindow]
	}
	for _, line := range header {
		if !plausibleVendorLine(line.Text) {
			continue
		}
		return line.Text, &Capture{
			FieldKey:   "receipt_vendor",
			RawValue:   line.Text,
			Confidence: 0.8,
			Page:       pages[0].Number,
			Line:       line.Number,
			Context:    "header",
		}
	}

	keyword := regexp.MustCompile(`(?i)^(.+?)\s+receipt\b`)
	for _, page := range pages {
		for _, line := range page.Lines {
			m := keyword.FindStringSubmatch(line.Text)
			if m == nil {
				continue
			}
			vendor := strings.TrimSpace(m[1])
			if normalize.Vendor(vendor) == "" {
				continue
			}
			return vendor, &Capture{
				FieldKey:   "receipt_vendor",
				RawValue:   vendor,
				Confidence: 0.6,
				Page:       page.Number,
				Line:       line.Number,
				Context:    "receipt-keyword",
			}
		}
	}
	return "", nil
}

var vendorNoise = regexp.MustCompile(`(?i)^(?:.*\breceipt\b.*|invoice|tax\s+invoice|order|thank\s+you.*)$`)

func plausibleVendorLine(s string) bool {
	// Lines carrying the receipt keyword are the keyword rule's business.
	if vendorNoise.MatchString(s) {
		return false
	}
	if dateToken.MatchString(s) || currencyToken.MatchString(s) {
		return false
	}
	return normalize.Vendor(s) != ""
}

// findTotal applies the total rules in priority order across the whole
// document: the bottom-most keyword amount wins; the fallback rule keeps the
// maximum currency-shaped token instead.
func (e *ReceiptExtractor) findTotal(pages []Page) (*Capture, decimal.Decimal, bool) {
	for _, rule := range e.TotalRules {
		var best *Capture
		var bestAmount decimal.Decimal
		for _, page := range pages {
			for _, line := range page.Lines {
				m := rule.Pattern.FindStringSubmatch(line.Text)
				if m == nil {
					continue
				}
				raw, ok := rule.Parse(m)
				if !ok {
					continue
				}
				amount, ok := normalize.Amount(raw)
				if !ok {
					continue
				}
				capture := Capture{
					FieldKey:   "receipt_total",
					RawValue:   raw,
					Confidence: rule.Confidence,
					Page:       page.Number,
					Line:       line.Number,
					Context:    rule.Name,
				}
				if rule.Name == "total-max-token" {
					if best == nil || amount.GreaterThan(bestAmount) {
						best, bestAmount = &capture, amount
					}
				} else {
					// Keyword totals: the last one is the grand total.
					best, bestAmount = &capture, amount
				}
			}
		}
		if best != nil {
			return best, bestAmount, true
		}
	}
	return nil, decimal.Decimal{}, false
}

func (e *ReceiptExtractor) findDate(pages []Page) (*Capture, bool) {
	for _, rule := range e.DateRules {
		for _, page := range pages {
			for _, line := range page.Lines {
				m := rule.Pattern.FindStringSubmatch(line.Text)
				if m == nil {
					continue
				}
				raw, ok := rule.Parse(m)
				if !ok {
					continue
				}
				return &Capture{
					FieldKey:   "receipt_date",
					RawValue:   raw,
					Confidence: rule.Confidence,
					Page:       page.Number,
					Line:       line.Number,
					Context:    rule.Name,
				}, true
			}
		}
	}
	return nil, false
}
