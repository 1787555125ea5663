package decision

import (
	"context"
	"fmt"
	"strings"

	"github.com/signalworks/outreachd/internal/classify"
	"github.com/signalworks/outreachd/internal/signal"
)

// StaticGenerator produces deterministic templated copy without any
// model call. It is the fallback when no LLM provider is configured and
// the reference implementation of the Generator contract for tests.
type StaticGenerator struct{}

var _ Generator = StaticGenerator{}

// Generate renders a category-specific template. It never fails and
// always returns non-empty fields.
func (StaticGenerator) Generate(_ context.Context, entity string, category classify.Category, tags signal.Set) (Copy, error) {
	observed := "no strong signals"
	if len(tags) > 0 {
		names := make([]string, 0, len(tags))
		for _, t := range tags.Tags() {
			names = append(names, string(t))
		}
		observed = strings.Join(names, ", ")
	}

	var subject, body string
	switch category {
	case classify.CategoryHighValueSupportRisk:
		subject = fmt.Sprintf("Getting your %s rollout unblocked", entity)
		body = fmt.Sprintf("Hi,\n\nI noticed %s has been setting up enterprise features while running into build errors. I'd like to pair with your team to get past those and finish the rollout.\n\nWould a short call this week work?", entity)
	case classify.CategoryChurnRisk:
		subject = fmt.Sprintf("Can we help with the errors %s is seeing?", entity)
		body = fmt.Sprintf("Hi,\n\nWe spotted repeated errors in %s's recent activity. Our support team would like to dig in before they become blockers.\n\nReply here and we'll take a look together.", entity)
	case classify.CategoryGrowth:
		subject = fmt.Sprintf("Next steps for %s", entity)
		body = fmt.Sprintf("Hi,\n\n%s has been exploring our plans and documentation. Happy to walk through what an upgrade would look like for your team.\n\nWant me to send over some options?", entity)
	default:
		subject = fmt.Sprintf("Checking in with %s", entity)
		body = fmt.Sprintf("Hi,\n\nJust checking in to see how things are going for %s. Let us know if there's anything we can help with.", entity)
	}

	reasoning := fmt.Sprintf("Categorized as %s based on observed signals: %s.", category, observed)
	return Copy{Subject: subject, Body: body, Reasoning: reasoning}, nil
}
