package extract

import (
	"testing"
	"time"
)

func TestReceiptExtractKeywordFields(t *testing.T) {
	text := `Starbucks Coffee
123 Main Street
Date: 1/16/2024
Latte 5.50
Muffin 7.00
Subtotal 12.50
Total 12.50
`
	result := NewReceiptExtractor().Extract(pagesFromText(t, text))
	if len(result.Charges) != 1 {
		t.Fatalf("expected 1 charge, got %d", len(result.Charges))
	}
	charge := result.Charges[0]
	if charge.VendorRaw != "Starbucks Coffee" {
		t.Errorf("vendor = %q", charge.VendorRaw)
	}
	if charge.Amount.String() != "12.5" {
		t.Errorf("amount = %s", charge.Amount.String())
	}
	if got := charge.Date.Format(time.DateOnly); got != "2024-01-16" {
		t.Errorf("date = %s", got)
	}
	if charge.AmountConfidence < 0.9 || charge.DateConfidence < 0.9 {
		t.Errorf("keyword fields should be high confidence, got amount=%v date=%v",
			charge.AmountConfidence, charge.DateConfidence)
	}
}

func TestReceiptExtractFallbacks(t *testing.T) {
	// No "total" or "date" keywords: the max currency token and the first
	// parseable date token win, at reduced confidence.
	text := `Blue Bottle
1/20/2024 11:05
Espresso 4.25
Pastry 6.75
11.00
`
	result := NewReceiptExtractor().Extract(pagesFromText(t, text))
	if len(result.Charges) != 1 {
		t.Fatalf("expected 1 charge, got %d", len(result.Charges))
	}
	charge := result.Charges[0]
	if charge.Amount.String() != "11" {
		t.Errorf("fallback amount = %s, want max token 11", charge.Amount.String())
	}
	if charge.AmountConfidence >= 0.9 {
		t.Errorf("fallback amount confidence = %v, want low", charge.AmountConfidence)
	}
	if got := charge.Date.Format(time.DateOnly); got != "2024-01-20" {
		t.Errorf("date = %s", got)
	}
	if charge.DateConfidence >= 0.9 {
		t.Errorf("fallback date confidence = %v, want low", charge.DateConfidence)
	}
}

func TestReceiptExtractVendorKeywordLine(t *testing.T) {
	text := `12.00
Uber Trip Receipt
Date: 2/01/2024
Amount 12.00
`
	result := NewReceiptExtractor().Extract(pagesFromText(t, text))
	if len(result.Charges) != 1 {
		t.Fatalf("expected 1 charge, got %d", len(result.Charges))
	}
	if result.Charges[0].VendorRaw != "Uber Trip" {
		t.Errorf("vendor = %q", result.Charges[0].VendorRaw)
	}
}

func TestReceiptExtractNothingUsable(t *testing.T) {
	text := `Thank you for shopping
Please come again
`
	result := NewReceiptExtractor().Extract(pagesFromText(t, text))
	if len(result.Charges) != 0 {
		t.Fatalf("expected no charges, got %d", len(result.Charges))
	}
}
