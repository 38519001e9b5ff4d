// Package pdf downloads permit application PDFs and heuristically extracts
// fields, fees, steps and contacts from their text.
package pdf

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"
	"go.uber.org/zap"

	"github.com/permitdesk/permit-pipeline/internal/fetch"
	"github.com/permitdesk/permit-pipeline/internal/permit"
)

// FormField is a fill-in field inferred from form-letter text patterns.
type FormField struct {
	Label    string `json:"label"`
	Type     string `json:"type"`
	Required bool   `json:"required"`
}

// Checkbox is a "[ ] Option" style choice found in the text.
type Checkbox struct {
	Label   string `json:"label"`
	Checked bool   `json:"checked"`
}

// Step is one numbered instruction from an application walkthrough.
type Step struct {
	Number int    `json:"number"`
	Text   string `json:"text"`
}

// Contact pairs contact details with an inferred department.
type Contact struct {
	Department string `json:"department,omitempty"`
	Phone      string `json:"phone,omitempty"`
	Email      string `json:"email,omitempty"`
	Hours      string `json:"hours,omitempty"`
}

// Metadata describes the document itself.
type Metadata struct {
	URL       string    `json:"url"`
	Pages     int       `json:"pages"`
	Bytes     int       `json:"bytes"`
	FetchedAt time.Time `json:"fetched_at"`
}

// AnalysisResult is everything the analyzer could pull out of one PDF.
// FillableFields holds true interactive form fields and may be empty when the
// document has none or the capability is unsupported; callers must treat it
// as best-effort.
type AnalysisResult struct {
	Text           string       `json:"text"`
	FormFields     []FormField  `json:"form_fields,omitempty"`
	Requirements   []string     `json:"requirements,omitempty"`
	Steps          []Step       `json:"steps,omitempty"`
	Fees           []permit.Fee `json:"fees,omitempty"`
	Contacts       []Contact    `json:"contacts,omitempty"`
	Metadata       Metadata     `json:"metadata"`
	FillableFields []FormField  `json:"fillable_fields,omitempty"`
	Checkboxes     []Checkbox   `json:"checkboxes,omitempty"`
	Signatures     []string     `json:"signatures,omitempty"`
}

// Analyzer downloads and dissects permit PDFs.
type Analyzer struct {
	executor *fetch.Executor
	client   *http.Client
	logger   *zap.Logger
	maxBytes int64
}

// Config controls the analyzer.
type Config struct {
	// MaxBytes bounds the downloaded document size.
	MaxBytes int64
}

// New creates an Analyzer that downloads through the given executor.
func New(executor *fetch.Executor, cfg Config, logger *zap.Logger) *Analyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 25 << 20
	}
	return &Analyzer{
		executor: executor,
		client:   &http.Client{},
		logger:   logger,
		maxBytes: cfg.MaxBytes,
	}
}

// Analyze downloads the PDF at pdfURL, extracts its text and runs the
// heuristic suite over it.
func (a *Analyzer) Analyze(ctx context.Context, pdfURL string) (AnalysisResult, error) {
	var raw []byte
	outcome, err := a.executor.Do(ctx, pdfURL, func(ctx context.Context) error {
		var fetchErr error
		raw, fetchErr = a.download(ctx, pdfURL)
		return fetchErr
	})
	if err != nil {
		return AnalysisResult{}, fmt.Errorf("download pdf: %w", err)
	}
	a.logger.Debug("pdf downloaded",
		zap.String("url", pdfURL),
		zap.Int("bytes", len(raw)),
		zap.Int("attempts", outcome.Attempts),
	)

	text, pages, err := extractText(raw)
	if err != nil {
		return AnalysisResult{}, fmt.Errorf("extract pdf text: %w", err)
	}

	result := AnalyzeText(text)
	result.Metadata = Metadata{
		URL:       pdfURL,
		Pages:     pages,
		Bytes:     len(raw),
		FetchedAt: time.Now().UTC(),
	}
	return result, nil
}

func (a *Analyzer) download(ctx context.Context, pdfURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pdfURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, &fetch.HTTPError{Status: resp.StatusCode, URL: pdfURL}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, a.maxBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

// extractText pulls approximate plain text out of the PDF bytes.
func extractText(raw []byte) (string, int, error) {
	reader, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return "", 0, err
	}

	var sb strings.Builder
	pages := reader.NumPage()
	for i := 1; i <= pages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		rows, err := page.GetTextByRow()
		if err != nil {
			// A malformed page should not lose the rest of the document.
			continue
		}
		for _, row := range rows {
			for _, word := range row.Content {
				sb.WriteString(word.S)
				sb.WriteByte(' ')
			}
			sb.WriteByte('\n')
		}
	}
	return sb.String(), pages, nil
}
