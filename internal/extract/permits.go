package extract

import (
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/permitdesk/permit-pipeline/internal/permit"
)

var categoryKeywords = []struct {
	keyword  string
	category permit.Category
}{
	{"electric", permit.CategoryElectrical},
	{"plumb", permit.CategoryPlumbing},
	{"mechanical", permit.CategoryMechanical},
	{"hvac", permit.CategoryMechanical},
	{"zoning", permit.CategoryZoning},
	{"demolition", permit.CategoryDemolition},
	{"demo ", permit.CategoryDemolition},
	{"sign", permit.CategorySign},
	{"build", permit.CategoryBuilding},
	{"residential", permit.CategoryBuilding},
	{"commercial", permit.CategoryBuilding},
}

// CategorizePermitName maps a permit name to its category by keyword.
func CategorizePermitName(name string) permit.Category {
	lower := strings.ToLower(name)
	for _, ck := range categoryKeywords {
		if strings.Contains(lower, ck.keyword) {
			return ck.category
		}
	}
	return permit.CategoryOther
}

// PermitTypesFromDocument assembles permit.Type records from headings and
// link texts that mention a permit, attaching the requirements and any fees
// whose label mentions the same permit.
func PermitTypesFromDocument(doc *goquery.Document, requirements []string, fees []permit.Fee) []permit.Type {
	names := permitNames(doc)
	now := time.Now().UTC()

	var permits []permit.Type
	for i, name := range names {
		p := permit.Type{
			ID:           fmt.Sprintf("permit-%d", i+1),
			Name:         name,
			Category:     CategorizePermitName(name),
			Requirements: requirements,
			LastUpdated:  now,
		}
		for _, fee := range fees {
			if feeMatchesPermit(fee, name) {
				p.Fees = append(p.Fees, fee)
			}
		}
		permits = append(permits, p)
	}
	return permits
}

// permitNames collects distinct "<something> permit" phrases from headings
// and link texts.
func permitNames(doc *goquery.Document) []string {
	seen := make(map[string]struct{})
	var names []string

	collect := func(_ int, sel *goquery.Selection) {
		text := normalizeSpace(sel.Text())
		lower := strings.ToLower(text)
		if !strings.Contains(lower, "permit") {
			return
		}
		if len(text) < 6 || len(text) > 80 {
			return
		}
		// Navigation noise like "Permits" alone carries no type information.
		if lower == "permit" || lower == "permits" || lower == "permitting" {
			return
		}
		if _, dup := seen[lower]; dup {
			return
		}
		seen[lower] = struct{}{}
		names = append(names, text)
	}

	doc.Find("h1, h2, h3, h4").Each(collect)
	doc.Find("li a, td a").Each(collect)
	return names
}

func feeMatchesPermit(fee permit.Fee, permitName string) bool {
	feeWords := strings.Fields(strings.ToLower(fee.Type))
	lowerName := strings.ToLower(permitName)
	for _, w := range feeWords {
		if len(w) < 4 || w == "permit" || w == "fees" {
			continue
		}
		if strings.Contains(lowerName, w) {
			return true
		}
	}
	return false
}
