package extract

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// minRequirementLen filters out list-item noise like "Yes" or "PDF".
const minRequirementLen = 10

var requirementHeadings = []string{
	"required documents", "requirements", "checklist", "what you need",
	"application requirements", "submittal requirements", "before you apply",
}

// ExtractRequirements finds sections headed by requirement-like titles and
// collects their bullet or numbered items. Items shorter than the noise
// threshold are discarded.
func ExtractRequirements(doc *goquery.Document) []string {
	var requirements []string
	seen := make(map[string]struct{})

	doc.Find("h1, h2, h3, h4, strong, b").Each(func(_ int, heading *goquery.Selection) {
		title := strings.ToLower(normalizeSpace(heading.Text()))
		if !isRequirementHeading(title) {
			return
		}
		for _, item := range listItemsAfter(heading) {
			if len(item) < minRequirementLen {
				continue
			}
			key := strings.ToLower(item)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			requirements = append(requirements, item)
		}
	})

	if len(requirements) == 0 {
		requirements = numberedLines(doc.Text(), seen)
	}
	return requirements
}

func isRequirementHeading(title string) bool {
	for _, h := range requirementHeadings {
		if strings.Contains(title, h) {
			return true
		}
	}
	return false
}

// listItemsAfter walks forward from a heading to the nearest list and
// returns its item texts. Falls back to the heading's parent when the list
// wraps both.
func listItemsAfter(heading *goquery.Selection) []string {
	list := heading.NextAllFiltered("ul, ol").First()
	if list.Length() == 0 {
		list = heading.Parent().Find("ul, ol").First()
	}
	var items []string
	list.Find("li").Each(func(_ int, li *goquery.Selection) {
		if item := normalizeSpace(li.Text()); item != "" {
			items = append(items, item)
		}
	})
	return items
}

var numberedLineRe = regexp.MustCompile(`^\s*(?:\d{1,2}[.)]|[-•*])\s+(.{10,})$`)

// numberedLines is the plain-text fallback: "1. Submit two copies..." style
// lines anywhere in the body.
func numberedLines(text string, seen map[string]struct{}) []string {
	var items []string
	for _, line := range strings.Split(text, "\n") {
		m := numberedLineRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		item := normalizeSpace(m[1])
		key := strings.ToLower(item)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		items = append(items, item)
	}
	return items
}
