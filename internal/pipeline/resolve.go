package pipeline

import (
	"context"
	"fmt"
	"strings"
)

// Resolver supplies the permitting base URL for a jurisdiction, keyed by a
// free-form address or jurisdiction name.
type Resolver interface {
	Resolve(ctx context.Context, address string) (string, error)
}

// ErrUnresolvable marks an address no resolver could map to a jurisdiction
// site. Callers can render it distinctly from "no data available".
type ErrUnresolvable struct {
	Address string
}

func (e ErrUnresolvable) Error() string {
	return fmt.Sprintf("no jurisdiction site known for %q", e.Address)
}

// StaticResolver maps jurisdiction names to site URLs from configuration.
// Lookup is case-insensitive on the trimmed key.
type StaticResolver struct {
	sites map[string]string
}

// NewStaticResolver builds a StaticResolver from a name-to-URL table.
func NewStaticResolver(sites map[string]string) *StaticResolver {
	normalized := make(map[string]string, len(sites))
	for name, site := range sites {
		normalized[normalizeJurisdiction(name)] = site
	}
	return &StaticResolver{sites: normalized}
}

// Resolve implements Resolver.
func (r *StaticResolver) Resolve(_ context.Context, address string) (string, error) {
	if site, ok := r.sites[normalizeJurisdiction(address)]; ok {
		return site, nil
	}
	return "", ErrUnresolvable{Address: address}
}

func normalizeJurisdiction(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
