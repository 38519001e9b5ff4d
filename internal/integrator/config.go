// Package integrator adapts heterogeneous third-party permitting-system APIs
// into one canonical shape. Vendor differences in auth, endpoint layout, and
// field naming live entirely in per-system configuration so the rest of the
// pipeline never sees vendor schemas.
package integrator

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// AuthScheme selects how requests to a system are authenticated.
type AuthScheme string

// Supported auth schemes.
const (
	AuthNone   AuthScheme = "none"
	AuthAPIKey AuthScheme = "api_key"
	AuthBearer AuthScheme = "bearer"
	AuthBasic  AuthScheme = "basic"
	AuthToken  AuthScheme = "token"
)

// AuthConfig holds one system's credentials. Values are opaque and must
// never appear in logs.
type AuthConfig struct {
	Scheme AuthScheme `yaml:"scheme"`
	// Header names the request header carrying an API key or opaque token.
	// Defaults to X-API-Key for api_key and Authorization for token.
	Header   string `yaml:"header,omitempty"`
	APIKey   string `yaml:"api_key,omitempty"`
	Token    string `yaml:"token,omitempty"`
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
}

// Endpoints lays out one system's paths relative to its base URL.
type Endpoints struct {
	Permits string `yaml:"permits"`
	Search  string `yaml:"search"`
	Status  string `yaml:"status"`
	Health  string `yaml:"health,omitempty"`
}

// SystemConfig describes one third-party permitting system.
type SystemConfig struct {
	Name    string     `yaml:"name"`
	Vendor  string     `yaml:"vendor"`
	BaseURL string     `yaml:"base_url"`
	Auth    AuthConfig `yaml:"auth"`
	// Signatures are substrings whose presence in a jurisdiction page marks
	// this vendor as the site's permitting backend.
	Signatures []string    `yaml:"signatures,omitempty"`
	Endpoints  Endpoints   `yaml:"endpoints"`
	PerMinute  int         `yaml:"per_minute,omitempty"`
	PerHour    int         `yaml:"per_hour,omitempty"`
	Mapping    DataMapping `yaml:"mapping"`
}

func (c SystemConfig) validate() error {
	if c.Name == "" {
		return fmt.Errorf("system missing name")
	}
	if c.BaseURL == "" {
		return fmt.Errorf("system %q missing base_url", c.Name)
	}
	switch c.Auth.Scheme {
	case "", AuthNone, AuthAPIKey, AuthBearer, AuthBasic, AuthToken:
	default:
		return fmt.Errorf("system %q: unknown auth scheme %q", c.Name, c.Auth.Scheme)
	}
	for field, m := range c.Mapping {
		if m.Source == "" && m.Default == nil {
			return fmt.Errorf("system %q: mapping for %q has neither source nor default", c.Name, field)
		}
		if m.Transform != "" {
			if _, ok := transforms[m.Transform]; !ok {
				return fmt.Errorf("system %q: mapping for %q names unknown transform %q", c.Name, field, m.Transform)
			}
		}
	}
	return nil
}

type systemsFile struct {
	Systems []SystemConfig `yaml:"systems"`
}

// LoadSystems reads system configurations from a YAML file.
func LoadSystems(path string) ([]SystemConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read systems config: %w", err)
	}
	return ParseSystems(raw)
}

// ParseSystems decodes and validates system configurations from YAML bytes.
func ParseSystems(raw []byte) ([]SystemConfig, error) {
	var f systemsFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse systems config: %w", err)
	}
	seen := make(map[string]bool, len(f.Systems))
	for _, s := range f.Systems {
		if err := s.validate(); err != nil {
			return nil, err
		}
		if seen[s.Name] {
			return nil, fmt.Errorf("duplicate system %q", s.Name)
		}
		seen[s.Name] = true
	}
	return f.Systems, nil
}
