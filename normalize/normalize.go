// Package normalize holds the pure canonicalizers the extractors and the
// matching engine share. Every function is deterministic and allocation-light;
// unparseable input yields "no value", never an error.
package normalize

import (
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Date formats are tried in a fixed order; the first whose components form a
// real calendar date wins. Two-digit years pivot at 1950-2049.
var dateFormats = []struct {
	re      *regexp.Regexp
	y, m, d int
}{
	{regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{2}|\d{4})$`), 3, 1, 2},
	{regexp.MustCompile(`^(\d{1,2})-(\d{1,2})-(\d{2}|\d{4})$`), 3, 1, 2},
	{regexp.MustCompile(`^(\d{4})-(\d{1,2})-(\d{1,2})$`), 1, 2, 3},
}

// Date parses a date token. ok is false for anything unparseable, including
// component combinations that are not a real calendar date (13/45/2024).
func Date(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, f := range dateFormats {
		m := f.re.FindStringSubmatch(s)
		if m == nil {
			continue
		}
		year := atoi(m[f.y])
		month := atoi(m[f.m])
		day := atoi(m[f.d])
		if year < 100 {
			if year < 50 {
				year += 2000
			} else {
				year += 1900
			}
		}
		if month < 1 || month > 12 || day < 1 || day > 31 {
			continue
		}
		t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
		// time.Date normalizes overflow (Feb 30 -> Mar 2); reject those.
		if t.Year() != year || t.Month() != time.Month(month) || t.Day() != day {
			continue
		}
		return t, true
	}
	return time.Time{}, false
}

var amountCleaner = strings.NewReplacer("$", "", "€", "", "£", "", ",", "", " ", "")

var amountShape = regexp.MustCompile(`^-?\d+(\.\d+)?$`)

// Amount parses a currency token into a fixed-point value with 2 decimals.
// Parenthesized and minus-signed forms stay negative.
func Amount(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(s)
	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}
	s = amountCleaner.Replace(s)
	if strings.HasPrefix(s, "-") {
		negative = true
		s = s[1:]
	}
	if !amountShape.MatchString(s) {
		return decimal.Decimal{}, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, false
	}
	d = d.Round(2)
	if negative {
		d = d.Neg()
	}
	return d, true
}

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)
var allDigits = regexp.MustCompile(`^\d+$`)

// Apostrophes join rather than split ("McDonald's" -> "mcdonalds").
var apostrophes = strings.NewReplacer("'", "", "’", "")

// Vendor canonicalizes a vendor string into the matching join key: lowercase,
// punctuation stripped, whitespace collapsed, store-number tokens dropped
// ("STARBUCKS #123" -> "starbucks"). Never shown to a person.
func Vendor(s string) string {
	s = nonAlnum.ReplaceAllString(apostrophes.Replace(strings.ToLower(s)), " ")
	fields := strings.Fields(s)
	kept := fields[:0]
	for _, f := range fields {
		// Multi-digit tokens are store/location numbers, not vendor
		// identity. Single digits stay ("7 eleven").
		if len(f) >= 2 && allDigits.MatchString(f) {
			continue
		}
		kept = append(kept, f)
	}
	return strings.Join(kept, " ")
}

var nameSuffixes = map[string]bool{
	"jr": true, "sr": true, "ii": true, "iii": true, "iv": true,
	"md": true, "phd": true, "esq": true,
}

// Name canonicalizes a person name: lowercase, punctuation stripped, middle
// initials and generational/professional suffixes dropped.
func Name(s string) string {
	s = nonAlnum.ReplaceAllString(apostrophes.Replace(strings.ToLower(s)), " ")
	fields := strings.Fields(s)
	kept := fields[:0]
	for i, f := range fields {
		if nameSuffixes[f] {
			continue
		}
		// A single letter between first and last token is a middle initial.
		if len(f) == 1 && i > 0 && i < len(fields)-1 {
			continue
		}
		kept = append(kept, f)
	}
	return strings.Join(kept, " ")
}

func atoi(s string) int {
	n := 0
	for _, c := range s {
		n = n*10 + int(c-'0')
	}
	return n
}
