package extract

import (
	"errors"
	"testing"

	"bitbucket.org/mmdatafocus/expense_recon/utils"
)

func TestExtractTextPages(t *testing.T) {
	raw := []byte("line one\n\n  line two  \n\fpage two line\n")
	pages, err := ExtractPages("doc.txt", raw)
	if err != nil {
		t.Fatalf("ExtractPages: %v", err)
	}
	if len(pages) != 2 {
		t.Fatalf("expected 2 pages, got %d", len(pages))
	}
	if len(pages[0].Lines) != 2 {
		t.Fatalf("page 1: expected 2 lines, got %d", len(pages[0].Lines))
	}
	if pages[0].Lines[1].Text != "line two" {
		t.Errorf("line text = %q, want trimmed", pages[0].Lines[1].Text)
	}
	if pages[0].Lines[1].Number != 3 {
		t.Errorf("line number = %d, want 3 (blank lines counted)", pages[0].Lines[1].Number)
	}
	if pages[1].Number != 2 {
		t.Errorf("page number = %d, want 2", pages[1].Number)
	}
}

func TestExtractPagesUnreadable(t *testing.T) {
	cases := []struct {
		name string
		raw  []byte
	}{
		{"empty", nil},
		{"binary", []byte{0x00, 0x01, 0xff, 0xfe}},
		{"whitespace only", []byte("   \n  \n")},
	}
	for _, c := range cases {
		_, err := ExtractPages("doc.txt", c.raw)
		if !errors.Is(err, utils.ErrUnreadableDocument) {
			t.Errorf("%s: err = %v, want ErrUnreadableDocument", c.name, err)
		}
	}
}

func TestExtractPagesUnreadableSpreadsheet(t *testing.T) {
	_, err := ExtractPages("doc.xlsx", []byte("not actually a spreadsheet"))
	if !errors.Is(err, utils.ErrUnreadableDocument) {
		t.Errorf("err = %v, want ErrUnreadableDocument", err)
	}
}
