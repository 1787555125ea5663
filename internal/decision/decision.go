// Package decision composes classified signals and generated email copy
// into a validated outreach decision.
package decision

import (
	"fmt"
	"strings"

	"github.com/signalworks/outreachd/internal/classify"
)

// Decision is the structured output contract for one entity: exactly
// one category, a bounded propensity score, and non-empty copy fields.
type Decision struct {
	Category        classify.Category `json:"category"`
	PropensityScore float64           `json:"propensity_score"`
	EmailSubject    string            `json:"email_subject"`
	EmailBody       string            `json:"email_body"`
	Reasoning       string            `json:"reasoning"`
}

// CompositionError reports the schema violations found while validating
// a composed decision. A decision carrying a CompositionError must not
// be persisted.
type CompositionError struct {
	Violations []string
}

func (e *CompositionError) Error() string {
	return fmt.Sprintf("invalid decision: %s", strings.Join(e.Violations, "; "))
}

// Validate checks the decision against its schema: score in [0, 1],
// category drawn from the known enumeration, all text fields non-empty.
// Returns a *CompositionError listing every violation, or nil.
func (d Decision) Validate() error {
	var violations []string

	if d.PropensityScore < 0 || d.PropensityScore > 1 {
		violations = append(violations, fmt.Sprintf("propensity_score %v outside [0, 1]", d.PropensityScore))
	}
	if !d.Category.Valid() {
		violations = append(violations, fmt.Sprintf("unknown category %q", d.Category))
	}
	if strings.TrimSpace(d.EmailSubject) == "" {
		violations = append(violations, "empty email_subject")
	}
	if strings.TrimSpace(d.EmailBody) == "" {
		violations = append(violations, "empty email_body")
	}
	if strings.TrimSpace(d.Reasoning) == "" {
		violations = append(violations, "empty reasoning")
	}

	if len(violations) > 0 {
		return &CompositionError{Violations: violations}
	}
	return nil
}
