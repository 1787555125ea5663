// Package genai generates outreach email copy with a language model via
// langchaingo.
//
// Generation runs with temperature 0: low-variance output is required
// for trustworthy automation, and a pinned temperature keeps the model
// testable against recorded responses.
package genai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"golang.org/x/time/rate"

	"github.com/signalworks/outreachd/internal/classify"
	"github.com/signalworks/outreachd/internal/decision"
	"github.com/signalworks/outreachd/internal/signal"
)

// Default generation parameters.
const (
	defaultModel       = "gpt-4o-mini"
	defaultMaxTokens   = 1024
	defaultMaxRetries  = 3
	defaultBaseBackoff = 1 * time.Second
)

// Rate limiter defaults: 50 requests per minute.
const (
	defaultRateLimit = 50.0 / 60.0
	defaultBurst     = 5
)

// Config selects and configures the text-generation provider.
type Config struct {
	// Provider is "openai" or "static". Empty means static.
	Provider string

	// APIKey authenticates against the provider. Required for openai.
	APIKey string

	// Model overrides the default model name.
	Model string

	// BaseURL overrides the provider endpoint (useful for proxies and
	// tests).
	BaseURL string

	// MaxTokens caps the generated output length.
	MaxTokens int
}

// New creates a Generator based on configuration. An empty or "static"
// provider yields the deterministic StaticGenerator.
func New(cfg Config) (decision.Generator, error) {
	switch cfg.Provider {
	case "", "static":
		return decision.StaticGenerator{}, nil
	case "openai":
		return newModelGenerator(cfg)
	default:
		return nil, fmt.Errorf("genai: unknown provider %q", cfg.Provider)
	}
}

// modelGenerator implements decision.Generator on top of a langchaingo
// model.
type modelGenerator struct {
	llm        llms.Model
	limiter    *rate.Limiter
	maxTokens  int
	maxRetries int
}

func newModelGenerator(cfg Config) (*modelGenerator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("genai: openai API key required")
	}

	model := cfg.Model
	if model == "" {
		model = defaultModel
	}

	opts := []openai.Option{
		openai.WithToken(cfg.APIKey),
		openai.WithModel(model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}

	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("genai: creating openai client: %w", err)
	}

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	return &modelGenerator{
		llm:        llm,
		limiter:    rate.NewLimiter(rate.Limit(defaultRateLimit), defaultBurst),
		maxTokens:  maxTokens,
		maxRetries: defaultMaxRetries,
	}, nil
}

// copyPrompt instructs the model to apply the same conflict-resolution
// framing the classifier used and answer in strict JSON.
const copyPrompt = `You are a senior sales engineer drafting outreach email copy.

The company %q was analyzed from its raw web activity and categorized as %q.
Observed signals: %s.

Write an email that acknowledges the specific context (for example, if the
company is setting up SSO but hitting timeouts, say so). Weigh the value of
the intent against the severity of any errors; do not ignore either side.

Respond ONLY with a JSON object, no additional text:
{"email_subject": "...", "email_body": "...", "reasoning": "one short explanation of why this framing fits the category"}`

// Generate produces email copy for a classified entity. Retries with
// exponential backoff on transient failures.
func (g *modelGenerator) Generate(ctx context.Context, entity string, category classify.Category, tags signal.Set) (decision.Copy, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return decision.Copy{}, fmt.Errorf("genai: rate limiter: %w", err)
	}

	observed := "none"
	if len(tags) > 0 {
		names := make([]string, 0, len(tags))
		for _, t := range tags.Tags() {
			names = append(names, string(t))
		}
		observed = strings.Join(names, ", ")
	}
	prompt := fmt.Sprintf(copyPrompt, entity, category, observed)

	var lastErr error
	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := defaultBaseBackoff * time.Duration(1<<(attempt-1))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return decision.Copy{}, ctx.Err()
			}
		}

		out, err := llms.GenerateFromSinglePrompt(ctx, g.llm, prompt,
			llms.WithTemperature(0),
			llms.WithMaxTokens(g.maxTokens))
		if err != nil {
			lastErr = err
			continue
		}
		return parseCopyJSON(out)
	}

	return decision.Copy{}, fmt.Errorf("genai: max retries exceeded: %w", lastErr)
}

// copyResponse is the expected JSON shape of the model output.
type copyResponse struct {
	EmailSubject string `json:"email_subject"`
	EmailBody    string `json:"email_body"`
	Reasoning    string `json:"reasoning"`
}

// parseCopyJSON parses the model response. Models sometimes wrap JSON
// in markdown code fences; strip those before unmarshalling.
func parseCopyJSON(content string) (decision.Copy, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	var resp copyResponse
	if err := json.Unmarshal([]byte(content), &resp); err != nil {
		return decision.Copy{}, fmt.Errorf("genai: parsing model response: %w", err)
	}

	return decision.Copy{
		Subject:   resp.EmailSubject,
		Body:      resp.EmailBody,
		Reasoning: resp.Reasoning,
	}, nil
}
