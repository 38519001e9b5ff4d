package extract

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/permitdesk/permit-pipeline/internal/permit"
)

var (
	currencyRe = regexp.MustCompile(`\$\s*([0-9][0-9,]*(?:\.[0-9]{1,2})?)`)

	// A fee-like label followed by a dollar amount on the same line, e.g.
	// "Electrical Permit Fee: $75.00" or "Plan review charge - $120".
	inlineFeeRe = regexp.MustCompile(
		`(?i)([A-Za-z][A-Za-z/&' -]{2,60}?(?:fee|cost|charge|deposit|permit|review|inspection))s?\s*[:\-–]\s*\$\s*([0-9][0-9,]*(?:\.[0-9]{1,2})?)`)
)

var unitQualifiers = []struct {
	pattern string
	unit    permit.FeeUnit
}{
	{"per sq", permit.UnitPerSqFt},
	{"per square", permit.UnitPerSqFt},
	{"/sq", permit.UnitPerSqFt},
	{"per inspection", permit.UnitPerInspection},
	{"per unit", permit.UnitPerUnit},
	{"each unit", permit.UnitPerUnit},
	{"percent", permit.UnitPercent},
	{"% of", permit.UnitPercent},
}

// FeesFromTables scans fee-classified tables for currency cells and pairs
// each with the row's label cell.
func FeesFromTables(tables []Table) []permit.Fee {
	var fees []permit.Fee
	for _, t := range tables {
		if t.Kind != TableFee {
			continue
		}
		for _, row := range t.Rows {
			fee, ok := feeFromRow(row)
			if ok {
				fees = append(fees, fee)
			}
		}
	}
	return fees
}

func feeFromRow(row []string) (permit.Fee, bool) {
	amountIdx := -1
	var amount float64
	for i, cell := range row {
		if v, ok := parseCurrency(cell); ok {
			amountIdx = i
			amount = v
			break
		}
	}
	if amountIdx == -1 {
		return permit.Fee{}, false
	}

	label := ""
	for i, cell := range row {
		if i != amountIdx && cell != "" {
			label = cell
			break
		}
	}
	if label == "" {
		return permit.Fee{}, false
	}

	fee := permit.Fee{
		Type:   label,
		Amount: amount,
		Unit:   inferUnit(strings.Join(row, " ")),
	}
	// Extra cells beyond label and amount read as conditions/description.
	for i, cell := range row {
		if i == amountIdx || cell == "" || cell == label {
			continue
		}
		if fee.Description == "" {
			fee.Description = cell
		} else {
			fee.Conditions = cell
		}
	}
	if fee.Description == label {
		fee.Description = ""
	}
	return fee, true
}

// InlineFees scans free text for "<label>: $<amount>" patterns outside of
// tables.
func InlineFees(text string) []permit.Fee {
	var fees []permit.Fee
	for _, line := range strings.Split(text, "\n") {
		line = normalizeSpace(line)
		if line == "" {
			continue
		}
		for _, m := range inlineFeeRe.FindAllStringSubmatch(line, -1) {
			amount, ok := parseAmount(m[2])
			if !ok {
				continue
			}
			fees = append(fees, permit.Fee{
				Type:   normalizeSpace(m[1]),
				Amount: amount,
				Unit:   inferUnit(line),
			})
		}
	}
	return fees
}

func parseCurrency(s string) (float64, bool) {
	m := currencyRe.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	return parseAmount(m[1])
}

func parseAmount(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// inferUnit defaults to flat unless a qualifier appears nearby.
func inferUnit(contextText string) permit.FeeUnit {
	lower := strings.ToLower(contextText)
	for _, q := range unitQualifiers {
		if strings.Contains(lower, q.pattern) {
			return q.unit
		}
	}
	return permit.UnitFlat
}
