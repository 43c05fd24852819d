package normalize

import (
	"testing"
	"time"
)

func TestDateFormats(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"1/15/2024", "2024-01-15", true},
		{"01/15/2024", "2024-01-15", true},
		{"1-15-2024", "2024-01-15", true},
		{"2024-01-15", "2024-01-15", true},
		{"2024-1-5", "2024-01-05", true},
		{"1/15/24", "2024-01-15", true},
		{"1/15/99", "1999-01-15", true},
		{"1/15/49", "2049-01-15", true},
		{"1/15/50", "1950-01-15", true},
		{"2/30/2024", "", false},
		{"13/1/2024", "", false},
		{"0/10/2024", "", false},
		{"15 Jan 2024", "", false},
		{"not a date", "", false},
		{"", "", false},
	}
	for _, c := range cases {
		got, ok := Date(c.in)
		if ok != c.ok {
			t.Errorf("Date(%q) ok = %v, want %v", c.in, ok, c.ok)
			continue
		}
		if ok && got.Format(time.DateOnly) != c.want {
			t.Errorf("Date(%q) = %s, want %s", c.in, got.Format(time.DateOnly), c.want)
		}
	}
}

func TestAmount(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"12.50", "12.5", true},
		{"$12.50", "12.5", true},
		{"1,234.56", "1234.56", true},
		{"$1,234,567.89", "1234567.89", true},
		{"-45.00", "-45", true},
		{"(45.00)", "-45", true},
		{"($45.00)", "-45", true},
		{"100", "100", true},
		{"3.999", "4", true},
		{"€99.95", "99.95", true},
		{"12.50.75", "", false},
		{"abc", "", false},
		{"", "", false},
	}
	for _, c := range cases {
		got, ok := Amount(c.in)
		if ok != c.ok {
			t.Errorf("Amount(%q) ok = %v, want %v", c.in, ok, c.ok)
			continue
		}
		if ok && got.String() != c.want {
			t.Errorf("Amount(%q) = %s, want %s", c.in, got.String(), c.want)
		}
	}
}

func TestVendor(t *testing.T) {
	cases := []struct{ in, want string }{
		{"STARBUCKS #123", "starbucks"},
		{"Starbucks Coffee", "starbucks coffee"},
		{"AMZN Mktp US*2K4XY", "amzn mktp us 2k4xy"},
		{"McDonald's", "mcdonalds"},
		{"  Uber   Trip  ", "uber trip"},
		{"7-ELEVEN 33412", "7 eleven"},
		{"", ""},
	}
	for _, c := range cases {
		if got := Vendor(c.in); got != c.want {
			t.Errorf("Vendor(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestName(t *testing.T) {
	cases := []struct{ in, want string }{
		{"John Q. Smith", "john smith"},
		{"John Smith Jr.", "john smith"},
		{"SMITH, JOHN", "smith john"},
		{"Mary Anne O'Brien", "mary anne obrien"},
		{"", ""},
	}
	for _, c := range cases {
		if got := Name(c.in); got != c.want {
			t.Errorf("Name(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
