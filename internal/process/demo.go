package process

import (
	"time"

	"github.com/permitdesk/permit-pipeline/internal/permit"
)

// DemoData returns the canned demonstration dataset used when neither
// structured extraction nor supplementation produced permits or fees. The
// result is explicitly marked SourceFallback so callers can render it as
// sample data rather than passing it off as real.
func DemoData(sourceURL string) permit.ExtractedPermitData {
	now := time.Now().UTC()
	return permit.ExtractedPermitData{
		Source:    permit.SourceFallback,
		SourceURL: sourceURL,
		Permits: []permit.Type{
			{
				ID:          "demo-building-1",
				Name:        "Residential Building Permit",
				Category:    permit.CategoryBuilding,
				Description: "Required for new construction, additions, and structural alterations to residential property.",
				Requirements: []string{
					"Completed application form signed by the property owner",
					"Two copies of the site plan drawn to scale",
					"Construction drawings including floor plans and elevations",
					"Proof of contractor license and insurance",
				},
				ProcessingTime: "10-15 business days",
				Fees: []permit.Fee{
					{Type: "Application fee", Amount: 150, Unit: permit.UnitFlat},
					{Type: "Plan review", Amount: 0.15, Unit: permit.UnitPerSqFt, Description: "Based on habitable floor area"},
				},
				LastUpdated: now,
			},
			{
				ID:          "demo-electrical-1",
				Name:        "Electrical Permit",
				Category:    permit.CategoryElectrical,
				Description: "Required for new electrical service, panel upgrades, and circuit additions.",
				Requirements: []string{
					"Completed electrical permit application",
					"Load calculation for service upgrades",
				},
				ProcessingTime: "3-5 business days",
				Fees: []permit.Fee{
					{Type: "Electrical permit fee", Amount: 75, Unit: permit.UnitFlat},
					{Type: "Inspection", Amount: 50, Unit: permit.UnitPerInspection},
				},
				LastUpdated: now,
			},
			{
				ID:          "demo-plumbing-1",
				Name:        "Plumbing Permit",
				Category:    permit.CategoryPlumbing,
				Description: "Required for water heater replacement, re-piping, and fixture additions.",
				Requirements: []string{
					"Completed plumbing permit application",
					"Fixture count worksheet",
				},
				ProcessingTime: "3-5 business days",
				Fees: []permit.Fee{
					{Type: "Plumbing permit fee", Amount: 85, Unit: permit.UnitFlat},
				},
				LastUpdated: now,
			},
		},
		Fees: []permit.Fee{
			{Type: "Application fee", Amount: 150, Unit: permit.UnitFlat},
			{Type: "Electrical permit fee", Amount: 75, Unit: permit.UnitFlat},
			{Type: "Plumbing permit fee", Amount: 85, Unit: permit.UnitFlat},
			{Type: "Plan review", Amount: 0.15, Unit: permit.UnitPerSqFt},
		},
		Contact: permit.ContactInfo{
			Phone: "(555) 010-0100",
			Email: "permits@example.gov",
			Hours: "Monday - Friday: 8:00 AM - 5:00 PM",
		},
		Processing: permit.ProcessingInfo{
			Times: map[string]string{
				"residential building permit": "10-15 business days",
				"electrical permit":           "3-5 business days",
				"plumbing permit":             "3-5 business days",
			},
			Notes: "Sample processing times; confirm with the jurisdiction.",
		},
		ExtractedAt: now,
	}
}
