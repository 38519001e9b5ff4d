// Package pipeline wires the acquisition, extraction, and processing
// subsystems into one service. The caches, breakers, and limiters it owns
// are the only process-wide shared state; they are constructed once here and
// injected, never reached through globals.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/permitdesk/permit-pipeline/internal/ai"
	"github.com/permitdesk/permit-pipeline/internal/breaker"
	"github.com/permitdesk/permit-pipeline/internal/cache"
	"github.com/permitdesk/permit-pipeline/internal/clock"
	"github.com/permitdesk/permit-pipeline/internal/extract"
	"github.com/permitdesk/permit-pipeline/internal/fetch"
	"github.com/permitdesk/permit-pipeline/internal/integrator"
	"github.com/permitdesk/permit-pipeline/internal/pdf"
	"github.com/permitdesk/permit-pipeline/internal/permit"
	"github.com/permitdesk/permit-pipeline/internal/process"
	"github.com/permitdesk/permit-pipeline/internal/ratelimit"
)

// Config collects the tunables for every subsystem the service owns.
type Config struct {
	Retry    fetch.RetryConfig
	Static   fetch.StaticConfig
	Headless fetch.HeadlessConfig
	// HeadlessEnabled gates the chromedp promotion path; when false,
	// JavaScript-rendered portals return whatever the static fetch produced.
	HeadlessEnabled bool
	// PromoteThreshold is the minimum visible-text length below which a page
	// is considered a JavaScript shell.
	PromoteThreshold int

	ScrapePerMinute int
	ScrapePerHour   int
	DomainRPS       float64
	DomainBurst     int

	JurisdictionBreaker breaker.Config
	ScrapeBreaker       breaker.Config
	AIBreaker           breaker.Config

	JurisdictionTTL        time.Duration
	JurisdictionMaxEntries int
	ValidationTTL          time.Duration
	ValidationMaxEntries   int
	DataTTL                time.Duration
	DataMaxEntries         int

	AI      ai.Config
	Process process.Config
	PDF     pdf.Config
}

// DefaultConfig returns production settings.
func DefaultConfig() Config {
	return Config{
		Retry:            fetch.DefaultRetryConfig(),
		HeadlessEnabled:  true,
		PromoteThreshold: 400,

		ScrapePerMinute: 30,
		ScrapePerHour:   500,
		DomainRPS:       1,
		DomainBurst:     2,

		JurisdictionBreaker: breaker.Config{Name: "jurisdiction", FailureThreshold: 5, ResetTimeout: 60 * time.Second},
		ScrapeBreaker:       breaker.Config{Name: "scrape", FailureThreshold: 5, ResetTimeout: 30 * time.Second},
		AIBreaker:           breaker.Config{Name: "ai", FailureThreshold: 3, ResetTimeout: 120 * time.Second},

		JurisdictionTTL:        10 * time.Minute,
		JurisdictionMaxEntries: 50,
		ValidationTTL:          5 * time.Minute,
		ValidationMaxEntries:   200,
		DataTTL:                30 * time.Minute,
		DataMaxEntries:         100,
	}
}

// Service is the public face of the pipeline.
type Service struct {
	cfg    Config
	logger *zap.Logger

	executor  *fetch.Executor
	static    fetch.Fetcher
	headless  fetch.Fetcher
	closeFunc func()
	detector  *fetch.Detector

	extractor *extract.Extractor
	processor *process.Processor
	analyzer  *pdf.Analyzer

	resolver   Resolver
	integrator *integrator.Client

	scrapeLimiter *ratelimit.WindowLimiter
	domainLimiter *ratelimit.DomainLimiter

	jurisdictionBreaker *breaker.Breaker
	scrapeBreaker       *breaker.Breaker

	jurisdictionCache *cache.Cache[string]
	validationCache   *cache.Cache[bool]
	dataCache         *cache.Cache[permit.ExtractedPermitData]
}

// Option customizes Service construction, mostly for tests.
type Option func(*Service)

// WithResolver sets the jurisdiction resolver.
func WithResolver(r Resolver) Option {
	return func(s *Service) { s.resolver = r }
}

// WithFetchers overrides the static and headless fetchers.
func WithFetchers(static, headless fetch.Fetcher) Option {
	return func(s *Service) {
		s.static = static
		s.headless = headless
	}
}

// WithAIClient overrides the AI backend resolved from config.
func WithAIClient(client ai.Client) Option {
	return func(s *Service) {
		s.processor = process.New(client, s.cfg.Process, s.logger)
	}
}

// WithIntegrator attaches a permitting API integrator.
func WithIntegrator(client *integrator.Client) Option {
	return func(s *Service) { s.integrator = client }
}

// New constructs the Service and every shared instance it owns.
func New(cfg Config, clk clock.Clock, logger *zap.Logger, opts ...Option) (*Service, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Service{
		cfg:      cfg,
		logger:   logger,
		executor: fetch.NewExecutor(cfg.Retry, logger),
		static:   fetch.NewStatic(cfg.Static),
		detector: fetch.NewDetector(cfg.PromoteThreshold),

		extractor: extract.New(logger),

		scrapeLimiter: ratelimit.NewWindow(ratelimit.WindowConfig{
			Name:      "scrape",
			PerMinute: cfg.ScrapePerMinute,
			PerHour:   cfg.ScrapePerHour,
		}, clk),
		domainLimiter: ratelimit.NewDomain(ratelimit.DomainConfig{
			DefaultRPS:   cfg.DomainRPS,
			DefaultBurst: cfg.DomainBurst,
		}),

		jurisdictionBreaker: breaker.New(cfg.JurisdictionBreaker, clk, logger),
		scrapeBreaker:       breaker.New(cfg.ScrapeBreaker, clk, logger),

		jurisdictionCache: cache.New[string](cache.Config{
			Name:       "jurisdiction",
			DefaultTTL: cfg.JurisdictionTTL,
			MaxEntries: cfg.JurisdictionMaxEntries,
		}, clk),
		validationCache: cache.New[bool](cache.Config{
			Name:       "url_validation",
			DefaultTTL: cfg.ValidationTTL,
			MaxEntries: cfg.ValidationMaxEntries,
		}, clk),
		dataCache: cache.New[permit.ExtractedPermitData](cache.Config{
			Name:       "permit_data",
			DefaultTTL: cfg.DataTTL,
			MaxEntries: cfg.DataMaxEntries,
		}, clk),
	}

	if cfg.HeadlessEnabled {
		headless, err := fetch.NewHeadless(cfg.Headless)
		if err != nil {
			return nil, fmt.Errorf("init headless fetcher: %w", err)
		}
		s.headless = headless
		s.closeFunc = headless.Close
	}

	backend, err := ai.NewFromConfig(cfg.AI)
	if err != nil {
		return nil, fmt.Errorf("init ai backend: %w", err)
	}
	if backend != nil {
		aiBreaker := breaker.New(cfg.AIBreaker, clk, logger)
		backend = &guardedAI{inner: backend, breaker: aiBreaker}
	}
	s.processor = process.New(backend, cfg.Process, logger)
	s.analyzer = pdf.New(s.executor, cfg.PDF, logger)

	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close releases long-lived resources such as the headless browser.
func (s *Service) Close() {
	if s.closeFunc != nil {
		s.closeFunc()
	}
}

// Executor exposes the shared retrying executor for collaborators that
// issue their own requests, such as the API integrator.
func (s *Service) Executor() *fetch.Executor {
	return s.executor
}

// Integrator exposes the attached permitting API client, or nil.
func (s *Service) Integrator() *integrator.Client {
	return s.integrator
}

// ResolveJurisdiction maps an address to its permitting site URL, caching
// hits. A missing resolver or unknown address yields ErrUnresolvable.
func (s *Service) ResolveJurisdiction(ctx context.Context, address string) (string, error) {
	key := normalizeJurisdiction(address)
	if site, ok := s.jurisdictionCache.Get(key); ok {
		return site, nil
	}
	if s.resolver == nil {
		return "", ErrUnresolvable{Address: address}
	}

	var site string
	err := s.jurisdictionBreaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		site, err = s.resolver.Resolve(ctx, address)
		return err
	})
	if err != nil {
		return "", err
	}
	s.jurisdictionCache.Set(key, site, 0)
	return site, nil
}

// FetchAndExtract retrieves a jurisdiction page and turns it into permit
// data. Terminal fetch failures degrade to the demo dataset rather than
// failing the caller; breaker-open and cancellation are surfaced as errors
// since those mean "try again later", not "nothing there".
func (s *Service) FetchAndExtract(ctx context.Context, rawURL string) (permit.ExtractedPermitData, error) {
	if err := s.validateURL(rawURL); err != nil {
		return permit.ExtractedPermitData{}, err
	}
	if data, ok := s.dataCache.Get(rawURL); ok {
		return data, nil
	}

	var resp fetch.Response
	err := s.scrapeBreaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		resp, err = s.fetchPage(ctx, rawURL)
		return err
	})
	switch {
	case err == nil:
	case errors.Is(err, breaker.ErrOpen), errors.Is(err, context.Canceled):
		return permit.ExtractedPermitData{}, err
	default:
		// A broken government site must not fail the lookup outright.
		s.logger.Warn("fetch failed terminally, degrading to demo data",
			zap.String("url", rawURL),
			zap.Error(err),
		)
		return process.DemoData(rawURL), nil
	}

	html := string(resp.Body)
	data, err := s.extractor.Extract(html, rawURL)
	if err != nil {
		s.logger.Warn("extraction failed, degrading to demo data",
			zap.String("url", rawURL),
			zap.Error(err),
		)
		return process.DemoData(rawURL), nil
	}

	data = s.processor.Process(ctx, html, data)
	if data.Source != permit.SourceFallback {
		s.dataCache.Set(rawURL, data, 0)
	}
	return data, nil
}

// fetchPage runs one rate-limited, retried fetch, promoting to headless
// rendering when the static result looks like a JavaScript shell.
func (s *Service) fetchPage(ctx context.Context, rawURL string) (fetch.Response, error) {
	if err := s.scrapeLimiter.Acquire(ctx); err != nil {
		return fetch.Response{}, err
	}
	if err := s.domainLimiter.Wait(ctx, rawURL); err != nil {
		return fetch.Response{}, err
	}

	var resp fetch.Response
	request := fetch.Request{URL: rawURL}
	_, err := s.executor.Do(ctx, hostLabel(rawURL), func(ctx context.Context) error {
		var err error
		resp, err = s.static.Fetch(ctx, request)
		return err
	})
	if err != nil {
		return fetch.Response{}, err
	}

	if s.headless == nil || !s.detector.ShouldPromote(resp) {
		return resp, nil
	}

	s.logger.Info("promoting to headless rendering", zap.String("url", rawURL))
	var rendered fetch.Response
	_, err = s.executor.Do(ctx, hostLabel(rawURL), func(ctx context.Context) error {
		var err error
		rendered, err = s.headless.Fetch(ctx, request)
		return err
	})
	if err != nil {
		// The static body is still usable when rendering fails.
		s.logger.Warn("headless rendering failed, keeping static body",
			zap.String("url", rawURL),
			zap.Error(err),
		)
		return resp, nil
	}
	return rendered, nil
}

// AnalyzePDF downloads and dissects a permit application PDF.
func (s *Service) AnalyzePDF(ctx context.Context, pdfURL string) (pdf.AnalysisResult, error) {
	if err := s.validateURL(pdfURL); err != nil {
		return pdf.AnalysisResult{}, err
	}
	if err := s.scrapeLimiter.Acquire(ctx); err != nil {
		return pdf.AnalysisResult{}, err
	}
	if err := s.domainLimiter.Wait(ctx, pdfURL); err != nil {
		return pdf.AnalysisResult{}, err
	}

	var result pdf.AnalysisResult
	err := s.scrapeBreaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		result, err = s.analyzer.Analyze(ctx, pdfURL)
		return err
	})
	return result, err
}

// validateURL checks that a URL is absolute http(s), caching verdicts.
func (s *Service) validateURL(rawURL string) error {
	if valid, ok := s.validationCache.Get(rawURL); ok {
		if !valid {
			return fmt.Errorf("invalid url %q", rawURL)
		}
		return nil
	}

	u, err := url.Parse(rawURL)
	valid := err == nil && u.Host != "" && (u.Scheme == "http" || u.Scheme == "https")
	s.validationCache.Set(rawURL, valid, 0)
	if !valid {
		return fmt.Errorf("invalid url %q", rawURL)
	}
	return nil
}

func hostLabel(rawURL string) string {
	if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
		return u.Host
	}
	return "unknown"
}

// guardedAI wraps an AI backend with its circuit breaker so repeated
// provider failures stop spending latency budget on doomed calls.
type guardedAI struct {
	inner   ai.Client
	breaker *breaker.Breaker
}

func (g *guardedAI) Complete(ctx context.Context, req ai.Request) (ai.Response, error) {
	var resp ai.Response
	err := g.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		resp, err = g.inner.Complete(ctx, req)
		return err
	})
	return resp, err
}

func (g *guardedAI) Name() string {
	return g.inner.Name()
}
