// Package fetch implements the resilient HTTP acquisition layer: error
// classification, the retrying executor, and static/headless fetchers.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrKind buckets a failure for retry decisions and metrics labels.
type ErrKind string

// Error kinds recognized by the classifier.
const (
	KindNone       ErrKind = "none"
	KindTimeout    ErrKind = "timeout"
	KindConnection ErrKind = "connection"
	KindDNS        ErrKind = "dns"
	KindHTTP       ErrKind = "http"
	KindAbort      ErrKind = "abort"
	KindUnknown    ErrKind = "unknown"
)

// HTTPError carries a non-2xx status through the executor so the classifier
// can distinguish retryable server errors from terminal client errors.
type HTTPError struct {
	Status int
	URL    string
}

// Error implements error.
func (e *HTTPError) Error() string {
	return fmt.Sprintf("http status %d from %s", e.Status, e.URL)
}

// Classify buckets err into an ErrKind.
func Classify(err error) ErrKind {
	if err == nil {
		return KindNone
	}
	if errors.Is(err, context.Canceled) {
		return KindAbort
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return KindHTTP
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return KindDNS
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return KindTimeout
		}
		return KindConnection
	}
	return KindUnknown
}

// Retryable reports whether a failure of the given kind should be retried.
// Timeouts and connection-level failures are transient; HTTP 5xx and 429 are
// the server telling us to come back later; everything else, including
// unknown errors, is terminal so a broken operation is never retried forever.
func Retryable(err error) bool {
	switch Classify(err) {
	case KindTimeout, KindConnection, KindDNS:
		return true
	case KindHTTP:
		var httpErr *HTTPError
		if errors.As(err, &httpErr) {
			return httpErr.Status >= http.StatusInternalServerError ||
				httpErr.Status == http.StatusTooManyRequests
		}
		return false
	default:
		return false
	}
}
