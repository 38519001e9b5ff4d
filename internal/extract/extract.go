// Package extract pulls structured permit facts out of raw jurisdiction HTML.
//
// Every heuristic is deliberately permissive: a false positive costs a human
// reviewer a moment, a missed fact costs a support call. Heuristics are
// independent pure functions; one finding nothing never stops the others.
package extract

import (
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/permitdesk/permit-pipeline/internal/permit"
)

// Extractor runs the heuristic suite over fetched HTML.
type Extractor struct {
	logger *zap.Logger
}

// New creates an Extractor. A nil logger disables logging.
func New(logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{logger: logger}
}

// Extract parses html and runs every heuristic, returning best-effort
// structured facts. The result is marked SourceStructured; the processor may
// upgrade or replace that later.
func (e *Extractor) Extract(html, sourceURL string) (permit.ExtractedPermitData, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return permit.ExtractedPermitData{}, fmt.Errorf("parse html: %w", err)
	}

	tables := FindTables(doc)
	data := permit.ExtractedPermitData{
		Source:      permit.SourceStructured,
		SourceURL:   sourceURL,
		TablesFound: len(tables),
		Fees:        FeesFromTables(tables),
		Contact:     ExtractContact(doc),
		Forms:       ExtractForms(doc, sourceURL),
		Processing:  ExtractProcessingTimes(doc.Text()),
		PortalURL:   FindPortalURL(doc, sourceURL),
		ExtractedAt: time.Now().UTC(),
	}

	data.Fees = append(data.Fees, InlineFees(doc.Text())...)
	data.Fees = dedupeFees(data.Fees)

	requirements := ExtractRequirements(doc)
	data.Permits = PermitTypesFromDocument(doc, requirements, data.Fees)

	e.logger.Debug("extraction complete",
		zap.String("url", sourceURL),
		zap.Int("tables", data.TablesFound),
		zap.Int("fees", len(data.Fees)),
		zap.Int("permits", len(data.Permits)),
		zap.Int("forms", len(data.Forms)),
	)
	return data, nil
}

func dedupeFees(fees []permit.Fee) []permit.Fee {
	seen := make(map[string]struct{}, len(fees))
	out := fees[:0]
	for _, f := range fees {
		key := fmt.Sprintf("%s|%.2f|%s", strings.ToLower(f.Type), f.Amount, f.Unit)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, f)
	}
	return out
}
