package fetch

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
)

// Request captures everything needed to fetch one URL. Values are ephemeral,
// created per call.
type Request struct {
	URL     string
	Headers http.Header
}

// Response is the result of a fetch.
type Response struct {
	URL          string
	StatusCode   int
	Headers      http.Header
	Body         []byte
	Duration     time.Duration
	UsedHeadless bool
}

// Fetcher fetches a URL and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request Request) (Response, error)
}

// StaticConfig controls the colly-backed fetcher.
type StaticConfig struct {
	UserAgent    string
	MaxBodyBytes int
}

// StaticFetcher implements Fetcher with a plain HTTP GET via Colly.
type StaticFetcher struct {
	cfg StaticConfig
}

// NewStatic builds a StaticFetcher.
func NewStatic(cfg StaticConfig) *StaticFetcher {
	if cfg.UserAgent == "" {
		cfg.UserAgent = "permit-pipeline/1.0"
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 10 << 20
	}
	return &StaticFetcher{cfg: cfg}
}

// Fetch executes a single HTTP GET. A non-2xx status is returned as an
// HTTPError so the executor can classify it. The context bounds the request.
func (f *StaticFetcher) Fetch(ctx context.Context, request Request) (Response, error) {
	result := Response{URL: request.URL}
	start := time.Now()

	c := colly.NewCollector(
		colly.UserAgent(f.cfg.UserAgent),
		colly.MaxBodySize(f.cfg.MaxBodyBytes),
	)
	c.IgnoreRobotsTxt = false
	if deadline, ok := ctx.Deadline(); ok {
		c.SetRequestTimeout(time.Until(deadline))
	}

	c.OnRequest(func(r *colly.Request) {
		for k, vals := range request.Headers {
			for _, v := range vals {
				r.Headers.Add(k, v)
			}
		}
	})

	var fetchErr error
	c.OnResponse(func(r *colly.Response) {
		result.StatusCode = r.StatusCode
		result.Body = r.Body
		if r.Headers != nil {
			result.Headers = http.Header(*r.Headers)
		}
	})
	c.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode > 0 {
			result.StatusCode = r.StatusCode
			fetchErr = &HTTPError{Status: r.StatusCode, URL: request.URL}
			return
		}
		fetchErr = err
	})

	if err := c.Visit(request.URL); err != nil && fetchErr == nil {
		fetchErr = fmt.Errorf("visit %s: %w", request.URL, err)
	}
	c.Wait()

	result.Duration = time.Since(start)
	if ctx.Err() != nil {
		return result, ctx.Err()
	}
	if fetchErr != nil {
		return result, fetchErr
	}
	if result.StatusCode >= http.StatusBadRequest {
		return result, &HTTPError{Status: result.StatusCode, URL: request.URL}
	}
	return result, nil
}
