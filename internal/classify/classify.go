// Package classify resolves a noisy tag set into exactly one outreach
// category plus a bounded propensity score.
//
// Classification is a pure function of the tag set: the same set always
// yields the same category and score. Rules are held in an explicit
// ordered list and evaluated first-match-wins so the priority order
// stays auditable and testable in isolation.
package classify

import "github.com/signalworks/outreachd/internal/signal"

// Category is the mutually-exclusive outreach segment for an entity.
type Category string

// Known categories. HighValueSupportRisk, ChurnRisk, Growth and Neutral
// are produced by the classifier; Enterprise and SupportRisk are valid
// stored values for records created through other channels.
const (
	CategoryHighValueSupportRisk Category = "High Value Support Risk"
	CategoryChurnRisk            Category = "Churn Risk"
	CategoryGrowth               Category = "Growth Opportunity"
	CategoryNeutral              Category = "Neutral"
	CategoryEnterprise           Category = "Enterprise"
	CategorySupportRisk          Category = "Support Risk"
)

// Valid reports whether c is a member of the category enumeration.
func (c Category) Valid() bool {
	switch c {
	case CategoryHighValueSupportRisk, CategoryChurnRisk, CategoryGrowth,
		CategoryNeutral, CategoryEnterprise, CategorySupportRisk:
		return true
	}
	return false
}

// highValueTags are the "Enterprise keyword" signals: intent that marks
// an entity as valuable even when it is currently hitting errors.
var highValueTags = []signal.Tag{signal.TagSecurityIntent}

// growthTags indicate expansion or adoption intent.
var growthTags = []signal.Tag{
	signal.TagPricingIntent,
	signal.TagDocsIntent,
	signal.TagBillingIntent,
}

// Rule pairs a predicate with the category it selects.
type Rule struct {
	Name     string
	Match    func(signal.Set) bool
	Category Category
}

// Rules is the conflict-resolution decision table. Evaluation order is
// the contract: the first matching rule wins, and reordering entries
// changes classification semantics.
var Rules = []Rule{
	{
		Name: "high value intent amid errors",
		Match: func(s signal.Set) bool {
			return s.ContainsAny(highValueTags...) && s.Contains(signal.TagErrorEvent)
		},
		Category: CategoryHighValueSupportRisk,
	},
	{
		Name: "errors without high value intent",
		Match: func(s signal.Set) bool {
			return s.Contains(signal.TagErrorEvent)
		},
		Category: CategoryChurnRisk,
	},
	{
		Name: "growth intent without errors",
		Match: func(s signal.Set) bool {
			return s.ContainsAny(growthTags...)
		},
		Category: CategoryGrowth,
	},
}

// Score model. The base keeps the empty set away from the extremes;
// value weights raise the score and the error penalty lowers it.
// HighValueSupportRisk never drops below its floor: potential value is
// weighed highly even amid errors.
const (
	baseScore               = 0.3
	errorPenalty            = 0.25
	highValueSupportMinimum = 0.55
)

var tagWeights = map[signal.Tag]float64{
	signal.TagSecurityIntent: 0.5,
	signal.TagPricingIntent:  0.25,
	signal.TagBillingIntent:  0.2,
	signal.TagDocsIntent:     0.15,
	signal.TagContentIntent:  0.05,
}

// Classify resolves a tag set into a single category and a propensity
// score in [0, 1].
func Classify(tags signal.Set) (Category, float64) {
	category := CategoryNeutral
	for _, rule := range Rules {
		if rule.Match(tags) {
			category = rule.Category
			break
		}
	}
	return category, score(tags, category)
}

func score(tags signal.Set, category Category) float64 {
	value := baseScore
	for tag, weight := range tagWeights {
		if tags.Contains(tag) {
			value += weight
		}
	}
	if tags.Contains(signal.TagErrorEvent) {
		value -= errorPenalty
	}
	if category == CategoryHighValueSupportRisk && value < highValueSupportMinimum {
		value = highValueSupportMinimum
	}
	return clamp(value)
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
