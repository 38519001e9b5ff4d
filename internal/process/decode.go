package process

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/permitdesk/permit-pipeline/internal/permit"
)

// Supplement is the fixed-shape decode of an AI supplementation response.
// Unknown or malformed fields resolve to safe defaults; nothing dynamic
// escapes this package.
type Supplement struct {
	Permits         []SupplementPermit `json:"permits" validate:"dive"`
	Fees            []SupplementFee    `json:"fees" validate:"dive"`
	Contact         SupplementContact  `json:"contact"`
	ProcessingTimes map[string]string  `json:"processing_times"`
}

// SupplementPermit is one permit type suggested by the backend.
type SupplementPermit struct {
	Name           string   `json:"name" validate:"required,max=120"`
	Category       string   `json:"category"`
	Description    string   `json:"description" validate:"max=2000"`
	Requirements   []string `json:"requirements" validate:"dive,max=500"`
	ProcessingTime string   `json:"processing_time" validate:"max=120"`
}

// SupplementFee is one fee suggested by the backend.
type SupplementFee struct {
	Type        string  `json:"type" validate:"required,max=120"`
	Amount      float64 `json:"amount" validate:"gte=0"`
	Unit        string  `json:"unit"`
	Description string  `json:"description" validate:"max=2000"`
}

// SupplementContact is contact info suggested by the backend.
type SupplementContact struct {
	Phone   string `json:"phone" validate:"max=40"`
	Email   string `json:"email" validate:"omitempty,email"`
	Address string `json:"address" validate:"max=300"`
	Hours   string `json:"hours" validate:"max=200"`
}

var validate = validator.New()

// DecodeSupplement parses an AI response as JSON, tolerating a fenced code
// block wrapper, and validates the result. Entries that fail validation are
// dropped rather than failing the decode.
func DecodeSupplement(content string) (Supplement, error) {
	payload := stripFences(content)

	var s Supplement
	if err := json.Unmarshal([]byte(payload), &s); err != nil {
		return Supplement{}, fmt.Errorf("decode supplement json: %w", err)
	}

	permits := s.Permits[:0]
	for _, p := range s.Permits {
		if err := validate.Struct(p); err == nil {
			permits = append(permits, p)
		}
	}
	s.Permits = permits

	fees := s.Fees[:0]
	for _, f := range s.Fees {
		if err := validate.Struct(f); err == nil {
			fees = append(fees, f)
		}
	}
	s.Fees = fees

	if err := validate.Struct(s.Contact); err != nil {
		s.Contact = SupplementContact{}
	}
	return s, nil
}

// stripFences unwraps ```json ... ``` style responses.
func stripFences(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```")
	if i := strings.IndexByte(trimmed, '\n'); i >= 0 {
		// Drop the language tag line.
		trimmed = trimmed[i+1:]
	}
	if i := strings.LastIndex(trimmed, "```"); i >= 0 {
		trimmed = trimmed[:i]
	}
	return strings.TrimSpace(trimmed)
}

// ToPermitTypes converts validated supplement permits into canonical types.
// Unrecognized categories coerce to other.
func (s Supplement) ToPermitTypes() []permit.Type {
	now := time.Now().UTC()
	out := make([]permit.Type, 0, len(s.Permits))
	for i, p := range s.Permits {
		out = append(out, permit.Type{
			ID:             fmt.Sprintf("ai-%d", i+1),
			Name:           p.Name,
			Category:       permit.ParseCategory(p.Category),
			Description:    p.Description,
			Requirements:   p.Requirements,
			ProcessingTime: p.ProcessingTime,
			LastUpdated:    now,
		})
	}
	return out
}

// ToFees converts validated supplement fees into canonical fees. Unknown
// units default to flat.
func (s Supplement) ToFees() []permit.Fee {
	out := make([]permit.Fee, 0, len(s.Fees))
	for _, f := range s.Fees {
		unit := permit.FeeUnit(f.Unit)
		switch unit {
		case permit.UnitFlat, permit.UnitPerSqFt, permit.UnitPerInspection,
			permit.UnitPerUnit, permit.UnitPercent:
		default:
			unit = permit.UnitFlat
		}
		out = append(out, permit.Fee{
			Type:        f.Type,
			Amount:      f.Amount,
			Unit:        unit,
			Description: f.Description,
		})
	}
	return out
}
