// Package permit defines the canonical permit data model shared across subsystems.
package permit

import "time"

// Category classifies a permit type into a fixed vocabulary.
type Category string

// Category values recognized by the pipeline. Anything else coerces to
// CategoryOther during decoding.
const (
	CategoryBuilding   Category = "building"
	CategoryElectrical Category = "electrical"
	CategoryPlumbing   Category = "plumbing"
	CategoryMechanical Category = "mechanical"
	CategoryZoning     Category = "zoning"
	CategoryDemolition Category = "demolition"
	CategorySign       Category = "sign"
	CategoryOther      Category = "other"
)

// ParseCategory maps free-form category text to a known Category.
func ParseCategory(s string) Category {
	switch Category(s) {
	case CategoryBuilding, CategoryElectrical, CategoryPlumbing, CategoryMechanical,
		CategoryZoning, CategoryDemolition, CategorySign, CategoryOther:
		return Category(s)
	}
	return CategoryOther
}

// DataSource records how a result was produced so callers can distinguish
// structured extraction from AI supplementation and canned fallback data.
type DataSource string

// DataSource values attached to ExtractedPermitData.
const (
	SourceStructured   DataSource = "structured"
	SourceSupplemented DataSource = "supplemented"
	SourceFallback     DataSource = "fallback"
)

// FeeUnit describes how a fee amount applies.
type FeeUnit string

// Fee unit values.
const (
	UnitFlat          FeeUnit = "flat"
	UnitPerSqFt       FeeUnit = "per_sqft"
	UnitPerInspection FeeUnit = "per_inspection"
	UnitPerUnit       FeeUnit = "per_unit"
	UnitPercent       FeeUnit = "percent"
)

// Fee is a single line item from a jurisdiction's fee schedule.
type Fee struct {
	Type        string  `json:"type"`
	Amount      float64 `json:"amount"`
	Unit        FeeUnit `json:"unit"`
	Description string  `json:"description,omitempty"`
	Conditions  string  `json:"conditions,omitempty"`
}

// Type describes one kind of permit a jurisdiction issues.
type Type struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Category       Category  `json:"category"`
	Description    string    `json:"description,omitempty"`
	Requirements   []string  `json:"requirements,omitempty"`
	ProcessingTime string    `json:"processing_time,omitempty"`
	Fees           []Fee     `json:"fees,omitempty"`
	Forms          []Form    `json:"forms,omitempty"`
	LastUpdated    time.Time `json:"last_updated"`
}

// ContactInfo captures how to reach the permitting office.
type ContactInfo struct {
	Phone   string `json:"phone,omitempty"`
	Email   string `json:"email,omitempty"`
	Address string `json:"address,omitempty"`
	Hours   string `json:"hours,omitempty"`
}

// HasAny reports whether at least a phone or email was found.
func (c ContactInfo) HasAny() bool {
	return c.Phone != "" || c.Email != ""
}

// ProcessingInfo holds per-permit-type turnaround durations.
type ProcessingInfo struct {
	Times map[string]string `json:"times,omitempty"`
	Notes string            `json:"notes,omitempty"`
}

// FormField is one input discovered inside an application form.
type FormField struct {
	Name     string `json:"name"`
	Label    string `json:"label,omitempty"`
	Type     string `json:"type"`
	Required bool   `json:"required"`
}

// Form is an application form discovered on a jurisdiction site.
type Form struct {
	Name   string      `json:"name"`
	URL    string      `json:"url,omitempty"`
	Fields []FormField `json:"fields,omitempty"`
}

// ExtractedPermitData is the immutable result of one extraction pass over a
// jurisdiction's website. A fresh value is produced per call.
type ExtractedPermitData struct {
	Source      DataSource     `json:"source"`
	SourceURL   string         `json:"source_url,omitempty"`
	Permits     []Type         `json:"permits,omitempty"`
	Fees        []Fee          `json:"fees,omitempty"`
	Contact     ContactInfo    `json:"contact"`
	Processing  ProcessingInfo `json:"processing"`
	Forms       []Form         `json:"forms,omitempty"`
	PortalURL   string         `json:"portal_url,omitempty"`
	TablesFound int            `json:"tables_found"`
	ExtractedAt time.Time      `json:"extracted_at"`
}
