package local

import (
	"fmt"
	"os"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"

	"github.com/JakeFAU/harvester/internal/harvest"
)

const (
	metadataSheet = "Metadata"
	linksSheet    = "Links"
	textSheet     = "Text"
	tableSheet    = "Table_"
)

// writeWorkbook renders the document into sheets: Metadata, Links (when
// present), Text, and one Table_<i> per extracted table.
func writeWorkbook(path string, doc *harvest.Document) (err error) {
	book := excelize.NewFile()
	defer func() {
		if cerr := book.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	if err := book.SetSheetName("Sheet1", metadataSheet); err != nil {
		return fmt.Errorf("rename default sheet: %w", err)
	}
	if err := writeRows(book, metadataSheet, metadataRows(doc)); err != nil {
		return err
	}
	if len(doc.Content.Links) > 0 {
		if err := addSheet(book, linksSheet, linkRows(doc.Content.Links)); err != nil {
			return err
		}
	}
	if err := addSheet(book, textSheet, textRows(doc)); err != nil {
		return err
	}
	for i, table := range doc.Content.Tables {
		if err := addSheet(book, tableSheet+strconv.Itoa(i), tableRows(table)); err != nil {
			return err
		}
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600) //nolint:gosec // sibling of claimed record
	if err != nil {
		return fmt.Errorf("create spreadsheet: %w", err)
	}
	if err := book.Write(f); err != nil {
		_ = f.Close()       //nolint:errcheck // write error takes precedence
		_ = os.Remove(path) //nolint:errcheck // partial file cleanup
		return fmt.Errorf("write spreadsheet: %w", err)
	}
	return f.Close()
}

func addSheet(book *excelize.File, name string, rows [][]any) error {
	if _, err := book.NewSheet(name); err != nil {
		return fmt.Errorf("add sheet %s: %w", name, err)
	}
	return writeRows(book, name, rows)
}

func writeRows(book *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := book.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}

func metadataRows(doc *harvest.Document) [][]any {
	m := doc.Metadata
	return [][]any{
		{"url", "fetched_at", "title", "description", "keywords", "content_hash", "mode"},
		{
			cellText(m.URL),
			m.FetchedAt.Format(time.RFC3339),
			cellText(m.Title),
			cellText(m.Description),
			cellText(m.Keywords),
			m.ContentHash,
			string(m.Mode),
		},
	}
}

func linkRows(links []harvest.Link) [][]any {
	rows := make([][]any, 0, len(links)+1)
	rows = append(rows, []any{"Text", "URL"})
	for _, l := range links {
		rows = append(rows, []any{cellText(l.Text), cellText(l.URL)})
	}
	return rows
}

// textRows lists headings and paragraphs in document order. Documents
// decoded from disk carry no flow, so they fall back to headings first.
func textRows(doc *harvest.Document) [][]any {
	rows := [][]any{{"Type", "Content"}}
	if len(doc.Content.Flow) > 0 {
		for _, b := range doc.Content.Flow {
			rows = append(rows, []any{string(b.Type), cellText(b.Text)})
		}
		return rows
	}
	for _, h := range doc.Content.Headings {
		rows = append(rows, []any{string(harvest.BlockHeading), cellText(h.Text)})
	}
	for _, p := range doc.Content.Paragraphs {
		rows = append(rows, []any{string(harvest.BlockParagraph), cellText(p)})
	}
	return rows
}

func tableRows(t harvest.Table) [][]any {
	rows := make([][]any, 0, len(t.Rows)+1)
	header := make([]any, len(t.Columns))
	for i, c := range t.Columns {
		header[i] = cellText(c)
	}
	rows = append(rows, header)
	for _, r := range t.Rows {
		row := make([]any, len(t.Columns))
		for i, c := range t.Columns {
			row[i] = cellText(r[c])
		}
		rows = append(rows, row)
	}
	return rows
}

// cellText clips values to the spreadsheet cell limit.
func cellText(s string) string {
	if utf8.RuneCountInString(s) <= excelize.TotalCellChars {
		return s
	}
	return string([]rune(s)[:excelize.TotalCellChars])
}
