package pdf

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/permitdesk/permit-pipeline/internal/permit"
)

var (
	// "Owner Name: ________" and "Parcel Number ________" field patterns.
	labeledFieldRe = regexp.MustCompile(`(?m)^\s*([A-Z][A-Za-z/#&' .()-]{2,50}?)\s*:?\s*_{3,}`)

	// "[ ] Residential" / "[X] Commercial" checkbox patterns.
	checkboxRe = regexp.MustCompile(`\[\s*([xX✓])?\s*\]\s*([A-Za-z0-9][^\[\n]{1,60})`)

	// "STEP 1:" and "1." style instructions.
	stepRe = regexp.MustCompile(`(?im)^\s*(?:STEP\s+(\d{1,2})\s*[:.]|(\d{1,2})[.)])\s+(.{8,140})$`)

	feeLineRe = regexp.MustCompile(
		`(?im)^\s*([A-Za-z][A-Za-z/&' -]{2,60}?)\s*(?:fee|cost|charge)?s?\s*[:\-–]?\s*\$\s*([0-9][0-9,]*(?:\.[0-9]{1,2})?)`)

	phoneRe = regexp.MustCompile(`(?:\+?1[\s.-]?)?\(?\d{3}\)?[\s.-]\d{3}[\s.-]\d{4}`)
	emailRe = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)
	hoursRe = regexp.MustCompile(
		`(?i)(?:Mon|Tue|Wed|Thu|Fri|Sat|Sun)[a-z]*\.?\s*(?:through|thru|to|[-–])\s*(?:Mon|Tue|Wed|Thu|Fri|Sat|Sun)[a-z]*\.?,?\s*:?\s*\d{1,2}(?::\d{2})?\s*(?:a\.?m\.?|p\.?m\.?)?\s*(?:to|[-–])\s*\d{1,2}(?::\d{2})?\s*(?:a\.?m\.?|p\.?m\.?)`)

	signatureRe = regexp.MustCompile(`(?im)^.*\b(signature|signed|sign here)\b.*$`)

	requirementLineRe = regexp.MustCompile(`(?m)^\s*(?:[-•*o]|\(\d{1,2}\))\s+(.{10,200})$`)
)

// departments is the fixed vocabulary used to attribute contact details.
var departments = []string{
	"Building", "Planning", "Public Works", "Zoning", "Engineering",
	"Fire", "Health", "Code Enforcement", "Community Development",
}

// AnalyzeText runs every text heuristic over already-extracted PDF text.
// It is pure and independently testable from the download path.
func AnalyzeText(text string) AnalysisResult {
	result := AnalysisResult{
		Text:         text,
		FormFields:   findFormFields(text),
		Requirements: findRequirements(text),
		Steps:        findSteps(text),
		Fees:         findFees(text),
		Contacts:     findContacts(text),
		Checkboxes:   findCheckboxes(text),
		Signatures:   findSignatures(text),
	}
	return result
}

func findFormFields(text string) []FormField {
	var fields []FormField
	seen := map[string]struct{}{}
	for _, m := range labeledFieldRe.FindAllStringSubmatch(text, -1) {
		label := strings.TrimSpace(m[1])
		key := strings.ToLower(label)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		fields = append(fields, FormField{
			Label:    label,
			Type:     inferFieldType(label),
			Required: strings.Contains(label, "*"),
		})
	}
	return fields
}

func inferFieldType(label string) string {
	lower := strings.ToLower(label)
	switch {
	case strings.Contains(lower, "email"):
		return "email"
	case strings.Contains(lower, "phone"), strings.Contains(lower, "fax"):
		return "phone"
	case strings.Contains(lower, "date"):
		return "date"
	case strings.Contains(lower, "zip"), strings.Contains(lower, "value"),
		strings.Contains(lower, "cost"), strings.Contains(lower, "sq"):
		return "number"
	default:
		return "text"
	}
}

func findCheckboxes(text string) []Checkbox {
	var boxes []Checkbox
	for _, m := range checkboxRe.FindAllStringSubmatch(text, -1) {
		boxes = append(boxes, Checkbox{
			Label:   strings.TrimSpace(m[2]),
			Checked: m[1] != "",
		})
	}
	return boxes
}

func findSteps(text string) []Step {
	var steps []Step
	seen := map[int]struct{}{}
	for _, m := range stepRe.FindAllStringSubmatch(text, -1) {
		numText := m[1]
		if numText == "" {
			numText = m[2]
		}
		n, err := strconv.Atoi(numText)
		if err != nil {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		steps = append(steps, Step{Number: n, Text: strings.TrimSpace(m[3])})
	}
	return steps
}

func findFees(text string) []permit.Fee {
	var fees []permit.Fee
	for _, m := range feeLineRe.FindAllStringSubmatch(text, -1) {
		amount, err := strconv.ParseFloat(strings.ReplaceAll(m[2], ",", ""), 64)
		if err != nil {
			continue
		}
		fees = append(fees, permit.Fee{
			Type:   strings.TrimSpace(m[1]),
			Amount: amount,
			Unit:   permit.UnitFlat,
		})
	}
	return fees
}

// findContacts pairs each phone/email with the nearest department name above
// it, scanning line by line.
func findContacts(text string) []Contact {
	var contacts []Contact
	currentDept := ""
	for _, line := range strings.Split(text, "\n") {
		if dept := departmentIn(line); dept != "" {
			currentDept = dept
		}
		phone := phoneRe.FindString(line)
		email := emailRe.FindString(line)
		hours := hoursRe.FindString(line)
		if phone == "" && email == "" && hours == "" {
			continue
		}
		// Extend the previous contact when it belongs to the same department
		// and is missing this detail.
		if n := len(contacts); n > 0 && contacts[n-1].Department == currentDept {
			c := &contacts[n-1]
			merged := false
			if c.Phone == "" && phone != "" {
				c.Phone = phone
				merged = true
			}
			if c.Email == "" && email != "" {
				c.Email = email
				merged = true
			}
			if c.Hours == "" && hours != "" {
				c.Hours = hours
				merged = true
			}
			if merged {
				continue
			}
		}
		contacts = append(contacts, Contact{
			Department: currentDept,
			Phone:      phone,
			Email:      email,
			Hours:      hours,
		})
	}
	return contacts
}

func departmentIn(line string) string {
	for _, dept := range departments {
		if strings.Contains(line, dept) {
			return dept
		}
	}
	return ""
}

func findSignatures(text string) []string {
	var sigs []string
	for _, m := range signatureRe.FindAllString(text, -1) {
		line := strings.TrimSpace(m)
		if line != "" {
			sigs = append(sigs, line)
		}
	}
	return sigs
}

func findRequirements(text string) []string {
	var reqs []string
	seen := map[string]struct{}{}
	for _, m := range requirementLineRe.FindAllStringSubmatch(text, -1) {
		item := strings.TrimSpace(m[1])
		key := strings.ToLower(item)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		reqs = append(reqs, item)
	}
	return reqs
}
