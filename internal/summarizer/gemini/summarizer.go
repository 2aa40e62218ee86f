// Package gemini summarizes page changes with Google's Gemini models.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// Defaults applied when Config leaves a field empty.
const (
	DefaultModel    = "gemini-1.5-flash"
	DefaultMaxChars = 10000
	DefaultSubject  = "Google Cloud release notes"
)

// ErrEmptyResponse is returned when the model produced no text.
var ErrEmptyResponse = errors.New("no response from gemini")

// Generator is the subset of *genai.Models used here.
type Generator interface {
	GenerateContent(
		ctx context.Context,
		model string,
		contents []*genai.Content,
		config *genai.GenerateContentConfig,
	) (*genai.GenerateContentResponse, error)
}

// Config holds configuration for the Gemini summarizer.
type Config struct {
	APIKey string
	Model  string
	// MaxChars caps how many characters of page text are sent to the model.
	MaxChars int
	// Subject names the watched page inside the prompt.
	Subject string
	// BaseURL overrides the API endpoint; empty uses the SDK default.
	BaseURL string
}

// Summarizer implements watcher.Summarizer.
type Summarizer struct {
	models   Generator
	model    string
	maxChars int
	subject  string
}

// New creates a Gemini client from cfg. An empty API key is a configuration
// error; callers decide whether that disables summarization.
func New(ctx context.Context, cfg Config) (*Summarizer, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return NewWithGenerator(client.Models, cfg), nil
}

// NewWithGenerator wires a Summarizer around an existing generator.
func NewWithGenerator(models Generator, cfg Config) *Summarizer {
	s := &Summarizer{
		models:   models,
		model:    cfg.Model,
		maxChars: cfg.MaxChars,
		subject:  cfg.Subject,
	}
	if s.model == "" {
		s.model = DefaultModel
	}
	if s.maxChars <= 0 {
		s.maxChars = DefaultMaxChars
	}
	if s.subject == "" {
		s.subject = DefaultSubject
	}
	return s
}

// Model returns the model name.
func (s *Summarizer) Model() string {
	return s.model
}

// Summarize asks the model for a bulleted summary of the latest changes in text.
func (s *Summarizer) Summarize(ctx context.Context, text string) (string, error) {
	prompt := BuildPrompt(s.subject, Truncate(text, s.maxChars))
	resp, err := s.models.GenerateContent(ctx, s.model, genai.Text(prompt), nil)
	if err != nil {
		return "", fmt.Errorf("gemini generate failed: %w", err)
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", ErrEmptyResponse
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil && part.Text != "" {
			b.WriteString(part.Text)
		}
	}
	if b.Len() == 0 {
		return "", ErrEmptyResponse
	}
	return b.String(), nil
}
