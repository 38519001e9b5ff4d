// Package main hosts the permit pipeline service entrypoint.
//
// Architecture overview:
//   - HTTP API: internal/api.Server exposes health, metrics, permit
//     extraction, PDF analysis, and third-party system routes over chi.
//   - Acquisition: internal/fetch runs classified, retried fetches through
//     Colly, promoting to headless Chromedp rendering when a page looks like
//     a JavaScript shell. Scrape volume is bounded by rolling-window and
//     per-domain rate limiters, and each dependency sits behind its own
//     circuit breaker.
//   - Extraction: internal/extract applies goquery heuristics for fees,
//     contacts, forms, requirements, and processing times; internal/pdf does
//     the same for application PDFs.
//   - Processing: internal/process supplements thin extractions through an
//     optional AI backend (Anthropic or OpenAI) and degrades to a clearly
//     marked demo dataset when nothing usable remains.
//   - Integration: internal/integrator maps vendor permitting APIs into one
//     canonical shape via declarative YAML mapping tables.
//   - Plumbing: Viper populates config from env/files; zap provides
//     structured logging; Prometheus metrics are exported via /metrics.
//
// Run locally: go run ./cmd/permitd serve -config config.yaml (or rely
// solely on PERMIT_* env overrides). The process reacts to SIGTERM for
// graceful drain.
package main

func main() {
	Execute()
}
