package extract

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/harvester/internal/harvest"
)

const (
	// maxSpan caps colspan/rowspan values so hostile markup cannot explode a row.
	maxSpan = 1000
	// maxColumns and maxCells bound the expanded grid; larger tables are dropped.
	maxColumns = 1000
	maxCells   = 100_000
)

// cell is one <td> or <th> before span expansion.
type cell struct {
	text    string
	header  bool
	colspan int
	rowspan int
}

// pending is a rowspan cell still covering rows below it.
type pending struct {
	text      string
	remaining int
}

// convertTable turns a <table> into named columns and rows. Tables without
// data rows or cells are not found.
func convertTable(table *goquery.Selection) lookup[harvest.Table] {
	var headRows, bodyRows [][]cell
	table.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		// Rows of nested tables belong to those tables.
		if !tr.Closest("table").IsSelection(table) {
			return
		}
		row := readRow(tr)
		if len(row) == 0 {
			return
		}
		if goquery.NodeName(tr.Parent()) == "thead" {
			headRows = append(headRows, row)
			return
		}
		bodyRows = append(bodyRows, row)
	})

	grid, ok := expand(append(append([][]cell{}, headRows...), bodyRows...))
	if !ok {
		return notFound[harvest.Table]()
	}
	headerCount := len(headRows)
	if headerCount == 0 && len(bodyRows) > 0 && allHeaders(bodyRows[0]) {
		headerCount = 1
	}

	var header []string
	if headerCount > 0 {
		// With several header rows the last, most specific one names the columns.
		header = grid[headerCount-1]
	}
	data := grid[headerCount:]
	if len(data) == 0 {
		return notFound[harvest.Table]()
	}

	width := len(header)
	for _, row := range data {
		width = max(width, len(row))
	}
	if width == 0 {
		return notFound[harvest.Table]()
	}

	columns := columnNames(header, width)
	rows := make([]map[string]string, 0, len(data))
	for _, values := range data {
		record := make(map[string]string, width)
		for i, name := range columns {
			if i < len(values) {
				record[name] = values[i]
			} else {
				record[name] = ""
			}
		}
		rows = append(rows, record)
	}
	return found(harvest.Table{Columns: columns, Rows: rows})
}

func readRow(tr *goquery.Selection) []cell {
	var row []cell
	tr.ChildrenFiltered("td, th").Each(func(_ int, c *goquery.Selection) {
		row = append(row, cell{
			text:    normalize(c.Text()),
			header:  goquery.NodeName(c) == "th",
			colspan: span(c, "colspan"),
			rowspan: span(c, "rowspan"),
		})
	})
	return row
}

func span(c *goquery.Selection, attr string) int {
	raw, ok := c.Attr(attr)
	if !ok {
		return 1
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 1 {
		return 1
	}
	return min(n, maxSpan)
}

func allHeaders(row []cell) bool {
	for _, c := range row {
		if !c.header {
			return false
		}
	}
	return len(row) > 0
}

// expand repeats colspan cells across columns and carries rowspan cells
// down into the rows below. It reports false once the grid grows past
// maxColumns wide or maxCells in total.
func expand(rows [][]cell) ([][]string, bool) {
	grid := make([][]string, 0, len(rows))
	carry := map[int]*pending{}
	cells := 0
	for _, row := range rows {
		var out []string
		col := 0
		fill := func() {
			for {
				p, ok := carry[col]
				if !ok {
					return
				}
				out = append(out, p.text)
				p.remaining--
				if p.remaining == 0 {
					delete(carry, col)
				}
				col++
			}
		}
		for _, c := range row {
			fill()
			for range c.colspan {
				if col >= maxColumns {
					return nil, false
				}
				out = append(out, c.text)
				if c.rowspan > 1 {
					carry[col] = &pending{text: c.text, remaining: c.rowspan - 1}
				}
				col++
			}
		}
		fill()
		// Short rows still owe cells to spans further right.
		for next := nextCarry(carry, col); next >= 0; next = nextCarry(carry, col) {
			for col < next {
				out = append(out, "")
				col++
			}
			fill()
		}
		cells += len(out)
		if cells > maxCells {
			return nil, false
		}
		grid = append(grid, out)
	}
	return grid, true
}

// nextCarry returns the leftmost pending column at or after col, or -1.
func nextCarry(carry map[int]*pending, col int) int {
	next := -1
	for k := range carry {
		if k >= col && (next < 0 || k < next) {
			next = k
		}
	}
	return next
}

// columnNames fills blank or missing header names with their position and
// suffixes duplicates with ".1", ".2", ...
func columnNames(header []string, width int) []string {
	names := make([]string, width)
	seen := make(map[string]int, width)
	taken := make(map[string]bool, width)
	for i := range width {
		name := ""
		if i < len(header) {
			name = header[i]
		}
		if name == "" {
			name = strconv.Itoa(i)
		}
		base := name
		for taken[name] {
			seen[base]++
			name = fmt.Sprintf("%s.%d", base, seen[base])
		}
		taken[name] = true
		names[i] = name
	}
	return names
}
