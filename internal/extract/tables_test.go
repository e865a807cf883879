package extract

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/harvester/internal/harvest"
)

func firstTable(t *testing.T, markup string) lookup[harvest.Table] {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	require.NoError(t, err)
	return convertTable(doc.Find("table").First())
}

func TestConvertTable(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		markup  string
		columns []string
		rows    []map[string]string
	}{
		{
			name:    "leading th row",
			markup:  `<table><tr><th>A</th><th>B</th></tr><tr><td>1</td><td>2</td></tr></table>`,
			columns: []string{"A", "B"},
			rows:    []map[string]string{{"A": "1", "B": "2"}},
		},
		{
			name:    "positional columns",
			markup:  `<table><tr><td>x</td><td>y</td></tr><tr><td>z</td></tr></table>`,
			columns: []string{"0", "1"},
			rows:    []map[string]string{{"0": "x", "1": "y"}, {"0": "z", "1": ""}},
		},
		{
			name:    "duplicate headers",
			markup:  `<table><thead><tr><th>v</th><th>v</th><th>v</th></tr></thead><tr><td>1</td><td>2</td><td>3</td></tr></table>`,
			columns: []string{"v", "v.1", "v.2"},
			rows:    []map[string]string{{"v": "1", "v.1": "2", "v.2": "3"}},
		},
		{
			name:    "colspan repeated",
			markup:  `<table><tr><th>a</th><th>b</th><th>c</th></tr><tr><td colspan="2">wide</td><td>n</td></tr></table>`,
			columns: []string{"a", "b", "c"},
			rows:    []map[string]string{{"a": "wide", "b": "wide", "c": "n"}},
		},
		{
			name:    "rowspan carried down",
			markup:  `<table><tr><th>k</th><th>v</th></tr><tr><td rowspan="2">key</td><td>1</td></tr><tr><td>2</td></tr></table>`,
			columns: []string{"k", "v"},
			rows:    []map[string]string{{"k": "key", "v": "1"}, {"k": "key", "v": "2"}},
		},
		{
			name:    "wide data row extends header",
			markup:  `<table><tr><th>only</th></tr><tr><td>1</td><td>extra</td></tr></table>`,
			columns: []string{"only", "1"},
			rows:    []map[string]string{{"only": "1", "1": "extra"}},
		},
		{
			name:    "nested table rows ignored",
			markup:  `<table><tr><th>outer</th></tr><tr><td><table><tr><td>inner</td></tr></table></td></tr></table>`,
			columns: []string{"outer"},
			rows:    []map[string]string{{"outer": "inner"}},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := firstTable(t, tc.markup)
			require.True(t, got.found)
			assert.Equal(t, tc.columns, got.value.Columns)
			assert.Equal(t, tc.rows, got.value.Rows)
		})
	}
}

func TestConvertTableDropsEmpty(t *testing.T) {
	t.Parallel()

	for _, markup := range []string{
		`<table></table>`,
		`<table><tr></tr></table>`,
		`<table><thead><tr><th>h</th></tr></thead></table>`,
		`<table><tr><th>a</th><th>b</th></tr></table>`,
	} {
		assert.False(t, firstTable(t, markup).found, markup)
	}
}

func TestConvertTableDropsOversizedGrid(t *testing.T) {
	t.Parallel()

	var wide strings.Builder
	wide.WriteString("<table><tr>")
	for range 20 {
		wide.WriteString(`<td colspan="1000">x</td>`)
	}
	wide.WriteString("</tr>")
	for range 300 {
		wide.WriteString("<tr><td>y</td></tr>")
	}
	wide.WriteString("</table>")

	var tall strings.Builder
	tall.WriteString(`<table><tr><td colspan="999" rowspan="1000">a</td><td>b</td></tr>`)
	for range 120 {
		tall.WriteString("<tr><td>c</td></tr>")
	}
	tall.WriteString("</table>")

	assert.False(t, firstTable(t, wide.String()).found, "too many columns")
	assert.False(t, firstTable(t, tall.String()).found, "too many cells")
}

func TestConvertTableKeepsGridAtColumnLimit(t *testing.T) {
	t.Parallel()

	got := firstTable(t, `<table><tr><td colspan="1000">x</td></tr><tr><td>y</td></tr></table>`)
	require.True(t, got.found)
	assert.Len(t, got.value.Columns, maxColumns)
	require.Len(t, got.value.Rows, 2)
	assert.Equal(t, "y", got.value.Rows[1]["0"])
	assert.Equal(t, "", got.value.Rows[1]["999"])
}

func TestTablesAreNumberedAfterDrops(t *testing.T) {
	t.Parallel()

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(
		`<table></table><table><tr><td>1</td></tr></table><table><tr><td>2</td></tr></table>`))
	require.NoError(t, err)

	got := tables(doc)
	require.True(t, got.found)
	require.Len(t, got.value, 2)
	assert.Equal(t, "table_0", got.value[0].Name)
	assert.Equal(t, "table_1", got.value[1].Name)
}

func TestLookupOr(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "x", found("x").or("d"))
	assert.Equal(t, "d", notFound[string]().or("d"))
	assert.Equal(t, "a b", normalize("  a \n\t b  "))
}
