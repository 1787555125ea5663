package decision

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/signalworks/outreachd/internal/classify"
	"github.com/signalworks/outreachd/internal/signal"
)

// Copy is the generated natural-language portion of a decision.
type Copy struct {
	Subject   string
	Body      string
	Reasoning string
}

// Generator produces outreach email copy for a classified entity. The
// real implementation calls a language model; tests and offline runs
// use StaticGenerator.
type Generator interface {
	Generate(ctx context.Context, entity string, category classify.Category, tags signal.Set) (Copy, error)
}

// Composer derives a full Decision from raw log lines: extract tags,
// classify, generate copy, validate. It has no side effects beyond
// invoking the injected generator.
type Composer struct {
	extractor *signal.Extractor
	generator Generator
	logger    *zap.Logger
}

// NewComposer creates a composer using the default signal extraction
// rules. A nil logger falls back to a no-op logger.
func NewComposer(generator Generator, logger *zap.Logger) *Composer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Composer{
		extractor: signal.NewExtractor(nil),
		generator: generator,
		logger:    logger,
	}
}

// Compose builds and validates a decision for one entity. On schema
// violation the returned error wraps a *CompositionError and no
// partially-valid decision is returned.
func (c *Composer) Compose(ctx context.Context, entity string, lines []string) (Decision, error) {
	tags := c.extractor.Extract(lines)
	category, propensity := classify.Classify(tags)

	c.logger.Debug("classified entity",
		zap.String("entity", entity),
		zap.String("category", string(category)),
		zap.Float64("propensity_score", propensity),
		zap.Any("tags", tags.Tags()))

	copy, err := c.generator.Generate(ctx, entity, category, tags)
	if err != nil {
		return Decision{}, fmt.Errorf("generating copy for %s: %w", entity, err)
	}

	d := Decision{
		Category:        category,
		PropensityScore: propensity,
		EmailSubject:    copy.Subject,
		EmailBody:       copy.Body,
		Reasoning:       copy.Reasoning,
	}
	if err := d.Validate(); err != nil {
		return Decision{}, fmt.Errorf("composing decision for %s: %w", entity, err)
	}
	return d, nil
}
