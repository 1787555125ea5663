// Package signal turns raw behavioral log lines into a normalized set
// of typed intent tags.
//
// Extraction is total: unmatched lines are ignored, malformed input
// never produces an error, and an empty input yields an empty set.
// Downstream classification cares about tag presence only, so the
// extractor collapses duplicates and discards input order.
package signal

import (
	"sort"
	"strings"
)

// Tag is a normalized, typed indicator of intent or friction extracted
// from raw log text.
type Tag string

// Known tags.
const (
	TagPricingIntent  Tag = "pricing_intent"
	TagSecurityIntent Tag = "security_intent"
	TagDocsIntent     Tag = "docs_intent"
	TagErrorEvent     Tag = "error_event"
	TagBillingIntent  Tag = "billing_intent"
	TagContentIntent  Tag = "content_intent"
)

// Set is an unordered collection of tags for one entity.
type Set map[Tag]struct{}

// NewSet builds a set from the given tags.
func NewSet(tags ...Tag) Set {
	s := make(Set, len(tags))
	for _, t := range tags {
		s[t] = struct{}{}
	}
	return s
}

// Contains reports whether the set holds the given tag.
func (s Set) Contains(t Tag) bool {
	_, ok := s[t]
	return ok
}

// ContainsAny reports whether the set holds at least one of the given tags.
func (s Set) ContainsAny(tags ...Tag) bool {
	for _, t := range tags {
		if s.Contains(t) {
			return true
		}
	}
	return false
}

// Tags returns the set's members in lexical order. Useful for stable
// log output and prompts.
func (s Set) Tags() []Tag {
	tags := make([]Tag, 0, len(s))
	for t := range s {
		tags = append(tags, t)
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i] < tags[j] })
	return tags
}

// DefaultRules maps tags to the substrings that indicate them. Lines
// are matched case-insensitively; a line may contribute multiple tags.
var DefaultRules = map[Tag][]string{
	TagPricingIntent:  {"pricing", "enterprise", "upgrade", "plan"},
	TagSecurityIntent: {"sso", "saml", "security", "scim", "audit-log"},
	TagDocsIntent:     {"docs", "api", "rate-limit", "reference"},
	TagErrorEvent:     {"error", "timeout", "failed", "500", "502", "503", "504"},
	TagBillingIntent:  {"billing", "invoice", "payment"},
	TagContentIntent:  {"blog", "changelog", "tutorial"},
}

// Extractor maps raw log lines to tags using a keyword rule table.
type Extractor struct {
	rules map[Tag][]string
}

// NewExtractor creates an extractor with the given rules. Nil or empty
// rules fall back to DefaultRules.
func NewExtractor(rules map[Tag][]string) *Extractor {
	if len(rules) == 0 {
		rules = DefaultRules
	}
	return &Extractor{rules: rules}
}

// Extract derives the tag set for a sequence of raw log lines. Input
// order is irrelevant and duplicates collapse: intent is presence, not
// frequency.
func (e *Extractor) Extract(lines []string) Set {
	tags := make(Set)
	for _, line := range lines {
		lower := strings.ToLower(line)
		for tag, keywords := range e.rules {
			if tags.Contains(tag) {
				continue
			}
			for _, keyword := range keywords {
				if strings.Contains(lower, keyword) {
					tags[tag] = struct{}{}
					break
				}
			}
		}
	}
	return tags
}
