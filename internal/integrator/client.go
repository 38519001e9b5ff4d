package integrator

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/permitdesk/permit-pipeline/internal/clock"
	"github.com/permitdesk/permit-pipeline/internal/fetch"
	"github.com/permitdesk/permit-pipeline/internal/ratelimit"
)

// Record is one permit record in canonical shape, regardless of vendor.
type Record struct {
	ID          string  `json:"id"`
	Type        string  `json:"type,omitempty"`
	Status      string  `json:"status,omitempty"`
	Address     string  `json:"address,omitempty"`
	Description string  `json:"description,omitempty"`
	Applicant   string  `json:"applicant,omitempty"`
	Fee         float64 `json:"fee,omitempty"`
	SubmittedAt string  `json:"submitted_at,omitempty"`
	IssuedAt    string  `json:"issued_at,omitempty"`
}

// APIPermitData is the canonical result of one integrator fetch.
type APIPermitData struct {
	System      string    `json:"system"`
	Records     []Record  `json:"records"`
	RetrievedAt time.Time `json:"retrieved_at"`
}

// ApplicationStatus is the canonical shape of a status lookup.
type ApplicationStatus struct {
	ApplicationID string `json:"application_id"`
	Status        string `json:"status"`
	UpdatedAt     string `json:"updated_at,omitempty"`
}

// Detection reports whether one configured system serves a jurisdiction.
type Detection struct {
	System   string `json:"system"`
	Vendor   string `json:"vendor,omitempty"`
	Detected bool   `json:"detected"`
	// Via records what produced the detection: "signature" or "health".
	Via string `json:"via,omitempty"`
}

// ErrUnknownSystem is returned when an operation names an unconfigured
// system.
type ErrUnknownSystem struct {
	System string
}

func (e ErrUnknownSystem) Error() string {
	return fmt.Sprintf("unknown permitting system %q", e.System)
}

// Client exposes uniform operations over all configured permitting systems.
// Every outbound call acquires the target system's rate limiter, then runs
// through the retrying executor.
type Client struct {
	systems  map[string]SystemConfig
	limiters map[string]*ratelimit.WindowLimiter
	executor *fetch.Executor
	http     *http.Client
	logger   *zap.Logger
}

// New constructs a Client with one rate limiter per configured system.
func New(systems []SystemConfig, executor *fetch.Executor, clk clock.Clock, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{
		systems:  make(map[string]SystemConfig, len(systems)),
		limiters: make(map[string]*ratelimit.WindowLimiter, len(systems)),
		executor: executor,
		http:     &http.Client{},
		logger:   logger,
	}
	for _, s := range systems {
		c.systems[s.Name] = s
		c.limiters[s.Name] = ratelimit.NewWindow(ratelimit.WindowConfig{
			Name:      s.Name,
			PerMinute: s.PerMinute,
			PerHour:   s.PerHour,
		}, clk)
	}
	return c
}

// Systems lists the configured system names.
func (c *Client) Systems() []string {
	names := make([]string, 0, len(c.systems))
	for name := range c.systems {
		names = append(names, name)
	}
	return names
}

// DetectSystems probes which configured systems serve a jurisdiction. The
// jurisdiction page is fetched once and checked for vendor signatures; each
// system with a health endpoint is probed concurrently. Unreachable probes
// mean "not detected", never an error.
func (c *Client) DetectSystems(ctx context.Context, jurisdictionURL string) ([]Detection, error) {
	page := c.fetchPage(ctx, jurisdictionURL)

	results := make([]Detection, len(c.systems))
	g, gctx := errgroup.WithContext(ctx)
	i := 0
	for name, sys := range c.systems {
		idx, name, sys := i, name, sys
		i++
		g.Go(func() error {
			results[idx] = c.detectOne(gctx, name, sys, page)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (c *Client) detectOne(ctx context.Context, name string, sys SystemConfig, page string) Detection {
	d := Detection{System: name, Vendor: sys.Vendor}
	for _, sig := range sys.Signatures {
		if sig != "" && strings.Contains(page, sig) {
			d.Detected = true
			d.Via = "signature"
			return d
		}
	}
	if sys.Endpoints.Health == "" {
		return d
	}

	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, sys.BaseURL+sys.Endpoints.Health, nil)
	if err != nil {
		return d
	}
	c.authorize(req, sys.Auth)
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Debug("health probe unreachable",
			zap.String("system", name),
			zap.Error(err),
		)
		return d
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<10))
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		d.Detected = true
		d.Via = "health"
	}
	return d
}

// fetchPage grabs the jurisdiction page body for signature matching. A
// failed fetch yields an empty page, leaving health probes to decide.
func (c *Client) fetchPage(ctx context.Context, pageURL string) string {
	if pageURL == "" {
		return ""
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return ""
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return ""
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	return string(body)
}

// FetchPermitData retrieves permit records from one system, filtered by the
// given query parameters, mapped into canonical shape.
func (c *Client) FetchPermitData(ctx context.Context, system string, filters map[string]string) (APIPermitData, error) {
	sys, ok := c.systems[system]
	if !ok {
		return APIPermitData{}, ErrUnknownSystem{System: system}
	}
	records, err := c.fetchRecords(ctx, system, sys, sys.Endpoints.Permits, filters)
	if err != nil {
		return APIPermitData{}, err
	}
	return APIPermitData{System: system, Records: records, RetrievedAt: time.Now().UTC()}, nil
}

// SearchPermits runs a free-text search against one system.
func (c *Client) SearchPermits(ctx context.Context, system, query string) (APIPermitData, error) {
	sys, ok := c.systems[system]
	if !ok {
		return APIPermitData{}, ErrUnknownSystem{System: system}
	}
	records, err := c.fetchRecords(ctx, system, sys, sys.Endpoints.Search, map[string]string{"q": query})
	if err != nil {
		return APIPermitData{}, err
	}
	return APIPermitData{System: system, Records: records, RetrievedAt: time.Now().UTC()}, nil
}

// GetApplicationStatus looks up one application's status by id.
func (c *Client) GetApplicationStatus(ctx context.Context, system, applicationID string) (ApplicationStatus, error) {
	sys, ok := c.systems[system]
	if !ok {
		return ApplicationStatus{}, ErrUnknownSystem{System: system}
	}
	path := strings.ReplaceAll(sys.Endpoints.Status, "{id}", url.PathEscape(applicationID))
	body, err := c.call(ctx, system, sys, path, nil)
	if err != nil {
		return ApplicationStatus{}, err
	}

	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return ApplicationStatus{}, fmt.Errorf("decode %s status response: %w", system, err)
	}
	fields := MapRecord(sys.Mapping, raw)
	rec := recordFromFields(fields)
	status := ApplicationStatus{
		ApplicationID: applicationID,
		Status:        rec.Status,
		UpdatedAt:     rec.IssuedAt,
	}
	if rec.ID != "" {
		status.ApplicationID = rec.ID
	}
	return status, nil
}

func (c *Client) fetchRecords(ctx context.Context, name string, sys SystemConfig, path string, params map[string]string) ([]Record, error) {
	body, err := c.call(ctx, name, sys, path, params)
	if err != nil {
		return nil, err
	}
	raws, err := decodeRecords(body)
	if err != nil {
		return nil, fmt.Errorf("decode %s response: %w", name, err)
	}
	records := make([]Record, 0, len(raws))
	for _, raw := range raws {
		records = append(records, recordFromFields(MapRecord(sys.Mapping, raw)))
	}
	return records, nil
}

// call issues one rate-limited, retried GET against a system endpoint and
// returns the response body.
func (c *Client) call(ctx context.Context, name string, sys SystemConfig, path string, params map[string]string) ([]byte, error) {
	if path == "" {
		return nil, fmt.Errorf("system %q does not expose this endpoint", name)
	}
	if err := c.limiters[name].Acquire(ctx); err != nil {
		return nil, err
	}

	target, err := buildURL(sys.BaseURL, path, params)
	if err != nil {
		return nil, err
	}

	var body []byte
	outcome, err := c.executor.Do(ctx, name, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")
		c.authorize(req, sys.Auth)

		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 400 {
			io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<10))
			return &fetch.HTTPError{Status: resp.StatusCode, URL: target}
		}
		body, err = io.ReadAll(io.LimitReader(resp.Body, 10<<20))
		return err
	})
	if err != nil {
		c.logger.Warn("integrator call failed",
			zap.String("system", name),
			zap.String("request_id", outcome.RequestID),
			zap.Int("attempts", outcome.Attempts),
			zap.String("error_kind", string(outcome.ErrKind)),
		)
		return nil, err
	}
	return body, nil
}

// authorize attaches credentials per the system's auth scheme. Credentials
// never reach logs.
func (c *Client) authorize(req *http.Request, auth AuthConfig) {
	switch auth.Scheme {
	case AuthAPIKey:
		header := auth.Header
		if header == "" {
			header = "X-API-Key"
		}
		req.Header.Set(header, auth.APIKey)
	case AuthBearer:
		req.Header.Set("Authorization", "Bearer "+auth.Token)
	case AuthBasic:
		req.SetBasicAuth(auth.Username, auth.Password)
	case AuthToken:
		header := auth.Header
		if header == "" {
			header = "Authorization"
		}
		req.Header.Set(header, auth.Token)
	}
}

func buildURL(base, path string, params map[string]string) (string, error) {
	u, err := url.Parse(base + path)
	if err != nil {
		return "", fmt.Errorf("build url: %w", err)
	}
	if len(params) > 0 {
		q := u.Query()
		for k, v := range params {
			q.Set(k, v)
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// decodeRecords accepts either a bare JSON array or an envelope object whose
// record list sits under a conventional key.
func decodeRecords(body []byte) ([]map[string]any, error) {
	trimmed := strings.TrimSpace(string(body))
	if strings.HasPrefix(trimmed, "[") {
		var raws []map[string]any
		if err := json.Unmarshal(body, &raws); err != nil {
			return nil, err
		}
		return raws, nil
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, err
	}
	for _, key := range []string{"records", "results", "data", "items", "permits"} {
		raw, ok := envelope[key]
		if !ok {
			continue
		}
		var raws []map[string]any
		if err := json.Unmarshal(raw, &raws); err != nil {
			continue
		}
		return raws, nil
	}
	return nil, fmt.Errorf("no record list found in response")
}
