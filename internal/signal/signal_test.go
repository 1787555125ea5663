package signal

import (
	"reflect"
	"testing"
)

func TestExtractor_Extract(t *testing.T) {
	extractor := NewExtractor(nil) // Use defaults

	tests := []struct {
		name     string
		lines    []string
		wantTags []Tag
	}{
		{
			name:     "enterprise security paths",
			lines:    []string{"/security/sso-implementation", "/pricing/enterprise"},
			wantTags: []Tag{TagPricingIntent, TagSecurityIntent},
		},
		{
			name:     "error events",
			lines:    []string{"/error/500-build-timeout"},
			wantTags: []Tag{TagErrorEvent},
		},
		{
			name:     "docs and billing",
			lines:    []string{"/docs/api-v2/rate-limits", "/billing/invoice-history"},
			wantTags: []Tag{TagBillingIntent, TagDocsIntent},
		},
		{
			name:     "content only",
			lines:    []string{"/blog/nextjs-middleware"},
			wantTags: []Tag{TagContentIntent},
		},
		{
			name:     "duplicates collapse",
			lines:    []string{"/pricing", "/pricing", "/pricing/enterprise"},
			wantTags: []Tag{TagPricingIntent},
		},
		{
			name:     "unmatched lines ignored",
			lines:    []string{"/about-us", "/careers", "GET / 200"},
			wantTags: []Tag{},
		},
		{
			name:     "case insensitive",
			lines:    []string{"/SECURITY/SAML-setup"},
			wantTags: []Tag{TagSecurityIntent},
		},
		{
			name:     "empty input",
			lines:    nil,
			wantTags: []Tag{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := extractor.Extract(tt.lines).Tags()
			if len(got) == 0 && len(tt.wantTags) == 0 {
				return
			}
			if !reflect.DeepEqual(got, tt.wantTags) {
				t.Errorf("Extract() = %v, want %v", got, tt.wantTags)
			}
		})
	}
}

func TestExtractor_OrderIndependence(t *testing.T) {
	extractor := NewExtractor(nil)

	forward := extractor.Extract([]string{"/pricing", "/error/timeout", "/docs/api"})
	reversed := extractor.Extract([]string{"/docs/api", "/error/timeout", "/pricing"})

	if !reflect.DeepEqual(forward, reversed) {
		t.Errorf("tag set depends on input order: %v vs %v", forward.Tags(), reversed.Tags())
	}
}

func TestNewExtractor_CustomRules(t *testing.T) {
	custom := map[Tag][]string{
		TagErrorEvent: {"kaboom"},
	}
	extractor := NewExtractor(custom)

	tags := extractor.Extract([]string{"the build went kaboom"})
	if !tags.Contains(TagErrorEvent) {
		t.Errorf("Extract() = %v, want error_event from custom rule", tags.Tags())
	}

	// Default rules must not apply.
	tags = extractor.Extract([]string{"/pricing/enterprise"})
	if len(tags) != 0 {
		t.Errorf("Extract() = %v, want empty (no default rules)", tags.Tags())
	}
}

func TestSet_ContainsAny(t *testing.T) {
	s := NewSet(TagDocsIntent, TagErrorEvent)

	if !s.ContainsAny(TagSecurityIntent, TagErrorEvent) {
		t.Error("ContainsAny() = false, want true")
	}
	if s.ContainsAny(TagBillingIntent, TagContentIntent) {
		t.Error("ContainsAny() = true, want false")
	}
}
