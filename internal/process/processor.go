// Package process decides whether structured extraction is sufficient,
// supplements it with an AI backend when it is not, and degrades to a canned
// dataset when nothing usable remains.
package process

import (
	"context"

	"go.uber.org/zap"

	"github.com/permitdesk/permit-pipeline/internal/ai"
	"github.com/permitdesk/permit-pipeline/internal/permit"
	"github.com/permitdesk/permit-pipeline/internal/telemetry"
)

// Config controls the processor.
type Config struct {
	// MaxPromptHTMLBytes bounds how much raw HTML is embedded in the
	// supplementation prompt, to respect token and cost limits.
	MaxPromptHTMLBytes int
	// MaxTokens is the completion budget for supplementation calls.
	MaxTokens int
	// Temperature for supplementation calls.
	Temperature float64
}

// Processor merges structured extraction with AI supplementation and demo
// fallback. A nil ai.Client disables supplementation entirely.
type Processor struct {
	backend ai.Client
	cfg     Config
	logger  *zap.Logger
}

// New constructs a Processor.
func New(backend ai.Client, cfg Config, logger *zap.Logger) *Processor {
	if cfg.MaxPromptHTMLBytes <= 0 {
		cfg.MaxPromptHTMLBytes = 12000
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 2048
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{backend: backend, cfg: cfg, logger: logger}
}

// NeedsSupplement reports whether the structured result is too thin to
// return as-is.
func NeedsSupplement(data permit.ExtractedPermitData) bool {
	if len(data.Permits) == 0 {
		return true
	}
	if len(data.Fees) == 0 && data.TablesFound > 0 {
		return true
	}
	return !data.Contact.HasAny()
}

// Process runs the sufficiency state machine over a structured extraction
// result. It never fails: AI backend errors count as "supplementation
// unavailable" and the demo dataset is the floor.
func (p *Processor) Process(ctx context.Context, rawHTML string, data permit.ExtractedPermitData) permit.ExtractedPermitData {
	if NeedsSupplement(data) && p.backend != nil {
		supplement, err := p.supplement(ctx, rawHTML, data)
		if err != nil {
			// Degrade, never fail: the caller still gets whatever structured
			// data exists.
			telemetry.ObserveSupplementation("error")
			p.logger.Warn("ai supplementation unavailable",
				zap.String("url", data.SourceURL),
				zap.String("backend", p.backend.Name()),
				zap.Error(err),
			)
		} else {
			telemetry.ObserveSupplementation("success")
			data = Merge(data, supplement)
		}
	}

	if len(data.Permits) == 0 && len(data.Fees) == 0 {
		telemetry.ObserveFallback()
		p.logger.Info("returning demo fallback dataset", zap.String("url", data.SourceURL))
		return DemoData(data.SourceURL)
	}
	return data
}

func (p *Processor) supplement(ctx context.Context, rawHTML string, data permit.ExtractedPermitData) (Supplement, error) {
	prompt := BuildSupplementPrompt(data, rawHTML, p.cfg.MaxPromptHTMLBytes)
	resp, err := p.backend.Complete(ctx, ai.Request{
		System:      supplementSystemPrompt,
		Prompt:      prompt,
		MaxTokens:   p.cfg.MaxTokens,
		Temperature: p.cfg.Temperature,
	})
	if err != nil {
		return Supplement{}, err
	}
	return DecodeSupplement(resp.Content)
}
