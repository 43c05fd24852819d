// Package extract turns raw document bytes into page-indexed text lines and
// scans them with prioritized pattern rules into draft charge records.
package extract

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"bitbucket.org/mmdatafocus/expense_recon/utils"
	"github.com/xuri/excelize/v2"
)

// Line is one trimmed non-empty text line. Number is the 1-based position
// within the page, counting blank lines, so it is stable across re-imports.
type Line struct {
	Number int
	Text   string
}

// Page is one page of a source document.
type Page struct {
	Number int
	Lines  []Line
}

// ExtractPages parses raw document bytes into pages. Plain text splits on
// form feed; .xlsx renders each sheet as one page with tab-joined rows.
// Bytes that cannot be parsed at all fail with ErrUnreadableDocument.
func ExtractPages(filename string, raw []byte) ([]Page, error) {
	if len(raw) == 0 {
		return nil, utils.ErrUnreadableDocument
	}
	if strings.HasSuffix(strings.ToLower(filename), ".xlsx") {
		return extractSpreadsheetPages(raw)
	}
	return extractTextPages(raw)
}

func extractTextPages(raw []byte) ([]Page, error) {
	if !utf8.Valid(raw) || bytes.ContainsRune(raw, 0) {
		return nil, utils.ErrUnreadableDocument
	}

	var pages []Page
	for i, pageText := range strings.Split(string(raw), "\f") {
		page := Page{Number: i + 1}
		for j, lineText := range strings.Split(pageText, "\n") {
			text := strings.TrimSpace(lineText)
			if text == "" {
				continue
			}
			page.Lines = append(page.Lines, Line{Number: j + 1, Text: text})
		}
		if len(page.Lines) > 0 {
			pages = append(pages, page)
		}
	}
	if len(pages) == 0 {
		return nil, utils.ErrUnreadableDocument
	}
	// Renumber so page numbers stay contiguous when blank pages drop out.
	for i := range pages {
		pages[i].Number = i + 1
	}
	return pages, nil
}

func extractSpreadsheetPages(raw []byte) ([]Page, error) {
	f, err := excelize.OpenReader(bytes.NewReader(raw))
	if err != nil {
		return nil, utils.ErrUnreadableDocument
	}
	defer f.Close()

	var pages []Page
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, utils.ErrUnreadableDocument
		}
		page := Page{}
		for i, cells := range rows {
			text := strings.TrimSpace(strings.Join(cells, "\t"))
			if text == "" {
				continue
			}
			page.Lines = append(page.Lines, Line{Number: i + 1, Text: text})
		}
		if len(page.Lines) > 0 {
			pages = append(pages, page)
		}
	}
	if len(pages) == 0 {
		return nil, utils.ErrUnreadableDocument
	}
	for i := range pages {
		pages[i].Number = i + 1
	}
	return pages, nil
}
