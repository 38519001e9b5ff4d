package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/permitdesk/permit-pipeline/internal/breaker"
	"github.com/permitdesk/permit-pipeline/internal/fetch"
	"github.com/permitdesk/permit-pipeline/internal/permit"
)

type fakeFetcher struct {
	calls int
	resp  fetch.Response
	err   error
}

func (f *fakeFetcher) Fetch(_ context.Context, _ fetch.Request) (fetch.Response, error) {
	f.calls++
	if f.err != nil {
		return fetch.Response{}, f.err
	}
	return f.resp, nil
}

const permitPageHTML = `<html><body>
<h2>Building Permit</h2>
<p>Contact us at (555) 123-4567 or permits@town.gov.</p>
<table>
<tr><th>Permit Type</th><th>Fee</th></tr>
<tr><td>Building Permit</td><td>$200.00</td></tr>
</table>
</body></html>`

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.HeadlessEnabled = false
	cfg.Retry = fetch.RetryConfig{
		MaxRetries:     1,
		AttemptTimeout: 2 * time.Second,
		BaseDelay:      time.Millisecond,
		MaxDelay:       5 * time.Millisecond,
		Multiplier:     2,
	}
	return cfg
}

func newTestService(t *testing.T, cfg Config, static, headless fetch.Fetcher) *Service {
	t.Helper()
	svc, err := New(cfg, nil, nil, WithFetchers(static, headless))
	require.NoError(t, err)
	t.Cleanup(svc.Close)
	return svc
}

func TestFetchAndExtract_StructuredResultIsCached(t *testing.T) {
	static := &fakeFetcher{resp: fetch.Response{
		URL:        "https://town.gov/permits",
		StatusCode: 200,
		Body:       []byte(permitPageHTML),
	}}
	svc := newTestService(t, testConfig(), static, nil)

	data, err := svc.FetchAndExtract(context.Background(), "https://town.gov/permits")
	require.NoError(t, err)
	require.Equal(t, permit.SourceStructured, data.Source)
	require.NotEmpty(t, data.Fees)
	require.Equal(t, 1, static.calls)

	again, err := svc.FetchAndExtract(context.Background(), "https://town.gov/permits")
	require.NoError(t, err)
	require.Equal(t, data.Fees, again.Fees)
	require.Equal(t, 1, static.calls)
}

func TestFetchAndExtract_TerminalFailureDegradesToDemo(t *testing.T) {
	static := &fakeFetcher{err: &fetch.HTTPError{Status: 404, URL: "https://town.gov/permits"}}
	svc := newTestService(t, testConfig(), static, nil)

	data, err := svc.FetchAndExtract(context.Background(), "https://town.gov/permits")
	require.NoError(t, err)
	require.Equal(t, permit.SourceFallback, data.Source)
	require.NotEmpty(t, data.Permits)

	// Fallback results are never cached, so recovery is possible next call.
	static.err = nil
	static.resp = fetch.Response{StatusCode: 200, Body: []byte(permitPageHTML)}
	data, err = svc.FetchAndExtract(context.Background(), "https://town.gov/permits")
	require.NoError(t, err)
	require.Equal(t, permit.SourceStructured, data.Source)
}

func TestFetchAndExtract_BreakerOpenSurfaces(t *testing.T) {
	cfg := testConfig()
	cfg.ScrapeBreaker = breaker.Config{Name: "scrape", FailureThreshold: 1, ResetTimeout: time.Hour}
	static := &fakeFetcher{err: &fetch.HTTPError{Status: 404, URL: "https://a.gov"}}
	svc := newTestService(t, cfg, static, nil)

	_, err := svc.FetchAndExtract(context.Background(), "https://a.gov/permits")
	require.NoError(t, err)

	_, err = svc.FetchAndExtract(context.Background(), "https://b.gov/permits")
	require.ErrorIs(t, err, breaker.ErrOpen)
}

func TestFetchAndExtract_RejectsInvalidURL(t *testing.T) {
	static := &fakeFetcher{}
	svc := newTestService(t, testConfig(), static, nil)

	_, err := svc.FetchAndExtract(context.Background(), "not a url")
	require.Error(t, err)
	_, err = svc.FetchAndExtract(context.Background(), "ftp://town.gov/permits")
	require.Error(t, err)
	require.Zero(t, static.calls)
}

func TestFetchAndExtract_PromotesSPAShellToHeadless(t *testing.T) {
	static := &fakeFetcher{resp: fetch.Response{
		StatusCode: 200,
		Body:       []byte(`<html><body><div id="root"></div><script src="/app.js"></script></body></html>`),
	}}
	headless := &fakeFetcher{resp: fetch.Response{
		StatusCode:   200,
		Body:         []byte(permitPageHTML),
		UsedHeadless: true,
	}}
	svc := newTestService(t, testConfig(), static, headless)

	data, err := svc.FetchAndExtract(context.Background(), "https://spa.town.gov/permits")
	require.NoError(t, err)
	require.Equal(t, 1, static.calls)
	require.Equal(t, 1, headless.calls)
	require.Equal(t, permit.SourceStructured, data.Source)
	require.NotEmpty(t, data.Fees)
}

func TestFetchAndExtract_HeadlessFailureKeepsStaticBody(t *testing.T) {
	static := &fakeFetcher{resp: fetch.Response{
		StatusCode: 200,
		Body:       []byte(`<html><body><div id="root"></div><script src="/app.js"></script></body></html>`),
	}}
	headless := &fakeFetcher{err: &fetch.HTTPError{Status: 500, URL: "https://spa.town.gov"}}
	svc := newTestService(t, testConfig(), static, headless)

	data, err := svc.FetchAndExtract(context.Background(), "https://spa.town.gov/permits")
	require.NoError(t, err)
	// The shell has no permits or fees, so processing lands on demo data.
	require.Equal(t, permit.SourceFallback, data.Source)
}

func TestResolveJurisdiction(t *testing.T) {
	resolver := NewStaticResolver(map[string]string{
		"Springfield, IL": "https://springfield.il.gov/permits",
	})
	svc, err := New(testConfig(), nil, nil, WithResolver(resolver))
	require.NoError(t, err)
	t.Cleanup(svc.Close)

	site, err := svc.ResolveJurisdiction(context.Background(), "springfield, il")
	require.NoError(t, err)
	require.Equal(t, "https://springfield.il.gov/permits", site)

	_, err = svc.ResolveJurisdiction(context.Background(), "Nowhere, KS")
	var unresolvable ErrUnresolvable
	require.ErrorAs(t, err, &unresolvable)
	require.Equal(t, "Nowhere, KS", unresolvable.Address)
}
