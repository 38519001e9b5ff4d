package fetch

import (
	"bytes"
	"strings"
)

// Detector decides when a static fetch returned too little real content and
// the URL should be re-fetched with a headless browser.
type Detector struct {
	BodyLengthThreshold int
}

// NewDetector creates a detector. A zero threshold uses the default.
func NewDetector(threshold int) *Detector {
	if threshold == 0 {
		threshold = 2048
	}
	return &Detector{BodyLengthThreshold: threshold}
}

// Markers common to client-rendered portals, including the shells several
// permitting vendors ship.
var spaMarkers = [][]byte{
	[]byte("__next"),
	[]byte("id=\"root\""),
	[]byte("id=\"app\""),
	[]byte("data-reactroot"),
	[]byte("ng-app"),
	[]byte("enable javascript"),
}

// ShouldPromote reports whether the response warrants a headless re-fetch.
func (d *Detector) ShouldPromote(resp Response) bool {
	if resp.UsedHeadless || resp.StatusCode != 200 {
		return false
	}
	body := resp.Body
	if len(body) == 0 {
		return true
	}
	lower := bytes.ToLower(body)
	for _, marker := range spaMarkers {
		if bytes.Contains(lower, marker) {
			return true
		}
	}
	return len(body) < d.BodyLengthThreshold && scriptDensityHigh(lower)
}

// scriptDensityHigh reports whether script tags cover more than half of the
// document.
func scriptDensityHigh(lowerBody []byte) bool {
	lower := string(lowerBody)
	total := len(lower)
	if total == 0 {
		return false
	}

	const (
		openTag  = "<script"
		closeTag = "</script>"
	)
	coverage := 0
	pos := 0
	for {
		rel := strings.Index(lower[pos:], openTag)
		if rel == -1 {
			break
		}
		start := pos + rel
		end := strings.Index(lower[start:], closeTag)
		if end == -1 {
			coverage += total - start
			break
		}
		coverage += end + len(closeTag)
		pos = start + end + len(closeTag)
	}
	return coverage*2 > total
}
