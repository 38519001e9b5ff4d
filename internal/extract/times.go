package extract

import (
	"regexp"
	"strings"

	"github.com/permitdesk/permit-pipeline/internal/permit"
)

// "Building permit: 5-10 business days", "Electrical – 2 weeks", etc.
var processingTimeRe = regexp.MustCompile(
	`(?i)([A-Za-z][A-Za-z/& -]{2,40}?permits?)\s*[:–-]\s*((?:\d+\s*(?:to|[-–])\s*)?\d+\s*(?:business\s+)?(?:day|week|month)s?)`)

// ExtractProcessingTimes scans free text for "<permit type>: <duration>"
// patterns.
func ExtractProcessingTimes(text string) permit.ProcessingInfo {
	info := permit.ProcessingInfo{Times: map[string]string{}}
	for _, m := range processingTimeRe.FindAllStringSubmatch(text, -1) {
		name := normalizeSpace(m[1])
		duration := normalizeSpace(m[2])
		key := strings.ToLower(name)
		if _, dup := info.Times[key]; dup {
			continue
		}
		info.Times[key] = duration
	}
	if len(info.Times) == 0 {
		info.Times = nil
	}
	return info
}
