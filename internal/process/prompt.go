package process

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/permitdesk/permit-pipeline/internal/permit"
)

const supplementSystemPrompt = `You are a municipal permitting data assistant. You fill gaps in structured data extracted from a government permitting website.

Rules:
1. Return only valid JSON matching the requested shape, nothing else
2. Only include facts supported by the page content
3. Permit categories must be one of: building, electrical, plumbing, mechanical, zoning, demolition, sign, other
4. Fee amounts are plain numbers without currency symbols
5. Do not invent URLs or links
6. Leave out anything you cannot find`

const supplementShape = `{
  "permits": [{"name": "", "category": "", "description": "", "requirements": [""], "processing_time": ""}],
  "fees": [{"type": "", "amount": 0, "unit": "flat", "description": ""}],
  "contact": {"phone": "", "email": "", "address": "", "hours": ""},
  "processing_times": {"permit name": "duration"}
}`

// BuildSupplementPrompt embeds the already-extracted structured context plus
// a bounded slice of the raw page so the backend fills gaps instead of
// rediscovering what we already know.
func BuildSupplementPrompt(data permit.ExtractedPermitData, rawHTML string, maxHTMLBytes int) string {
	var b strings.Builder

	b.WriteString("Fill the gaps in permit data extracted from ")
	b.WriteString(data.SourceURL)
	b.WriteString(".\n\n## Already extracted (do not repeat)\n")

	context := map[string]any{
		"permit_count": len(data.Permits),
		"fee_count":    len(data.Fees),
		"has_phone":    data.Contact.Phone != "",
		"has_email":    data.Contact.Email != "",
		"tables_found": data.TablesFound,
	}
	if encoded, err := json.Marshal(context); err == nil {
		b.Write(encoded)
	}

	b.WriteString("\n\n## Respond with JSON in exactly this shape\n")
	b.WriteString(supplementShape)

	b.WriteString("\n\n## Page content\n```\n")
	b.WriteString(truncate(rawHTML, maxHTMLBytes))
	b.WriteString("\n```\n")
	return b.String()
}

// truncate bounds content embedded in a prompt.
func truncate(content string, maxLen int) string {
	if maxLen <= 0 || len(content) <= maxLen {
		return content
	}
	return content[:maxLen] + fmt.Sprintf("\n[truncated %d bytes]", len(content)-maxLen)
}
