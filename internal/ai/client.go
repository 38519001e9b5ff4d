// Package ai abstracts the text-completion backends used to supplement thin
// extraction results.
package ai

import (
	"context"
	"time"
)

// Request is one completion call.
type Request struct {
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

// Response is the backend's reply.
type Response struct {
	Content      string
	InputTokens  int
	OutputTokens int
}

// Client is the minimal surface the data processor needs from an AI backend.
// A nil Client means supplementation is unconfigured.
type Client interface {
	Complete(ctx context.Context, req Request) (Response, error)
	Name() string
}

// Config holds common backend configuration. The API key is opaque and never
// logged.
type Config struct {
	Provider string
	APIKey   string
	Model    string
	BaseURL  string
	Timeout  time.Duration
}
