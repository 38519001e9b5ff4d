package ai

import "fmt"

// NewFromConfig builds the configured backend, or returns nil when no
// provider is configured so callers can run without supplementation.
func NewFromConfig(cfg Config) (Client, error) {
	switch cfg.Provider {
	case "":
		return nil, nil
	case "anthropic":
		return NewAnthropic(cfg)
	case "openai":
		return NewOpenAI(cfg)
	default:
		return nil, fmt.Errorf("unknown ai provider %q", cfg.Provider)
	}
}
