package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// TableKind classifies a table by what its headers suggest it holds.
type TableKind string

// Table classifications.
const (
	TableFee     TableKind = "fee"
	TableGeneric TableKind = "generic"
)

// Table is the cell matrix of one HTML table plus its classification.
type Table struct {
	Kind    TableKind
	Headers []string
	Rows    [][]string
}

var feeHeaderKeywords = []string{
	"fee", "cost", "charge", "price", "amount", "rate", "deposit",
}

// FindTables locates every table in the document and classifies it by its
// header keywords.
func FindTables(doc *goquery.Document) []Table {
	var tables []Table
	doc.Find("table").Each(func(_ int, sel *goquery.Selection) {
		t := parseTable(sel)
		if len(t.Rows) == 0 && len(t.Headers) == 0 {
			return
		}
		t.Kind = classifyTable(t.Headers)
		tables = append(tables, t)
	})
	return tables
}

func parseTable(sel *goquery.Selection) Table {
	var t Table

	sel.Find("tr").Each(func(i int, row *goquery.Selection) {
		headerCells := cellTexts(row.Find("th"))
		if len(headerCells) > 0 && len(t.Headers) == 0 {
			t.Headers = headerCells
			return
		}
		cells := cellTexts(row.Find("td"))
		if len(cells) == 0 {
			return
		}
		// First row of a headerless table doubles as its header row when it
		// looks like labels rather than data.
		if i == 0 && len(t.Headers) == 0 && !containsCurrency(cells) {
			t.Headers = cells
			return
		}
		t.Rows = append(t.Rows, cells)
	})
	return t
}

func cellTexts(sel *goquery.Selection) []string {
	var out []string
	sel.Each(func(_ int, cell *goquery.Selection) {
		out = append(out, normalizeSpace(cell.Text()))
	})
	return out
}

func classifyTable(headers []string) TableKind {
	for _, h := range headers {
		lower := strings.ToLower(h)
		for _, kw := range feeHeaderKeywords {
			if strings.Contains(lower, kw) {
				return TableFee
			}
		}
	}
	return TableGeneric
}

func containsCurrency(cells []string) bool {
	for _, c := range cells {
		if strings.Contains(c, "$") {
			return true
		}
	}
	return false
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
