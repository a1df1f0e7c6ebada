package eval

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/SoarinFerret/TimeWarden/internal/profile"
)

func TestEvaluateActivityOrder(t *testing.T) {
	p := profile.Profile{
		ID:       "kid",
		Account:  "kid",
		AgeGroup: profile.LateElementary,
		Applications: profile.Rules{
			Allowed:           []string{"discord"},
			Blocked:           []string{"steam"},
			AllowedCategories: []string{"education"},
		},
		Content: profile.Rules{
			Allowed: []string{"youtube.com"},
			Blocked: []string{"example.com"},
		},
	}

	tests := []struct {
		name     string
		activity Activity
		allow    bool
		reason   string
	}{
		{"Explicit block", Activity{Kind: KindApplication, ID: "/usr/bin/steam", Category: "education"}, false, "blocked by rule: steam"},
		{"Explicit allow beats age default", Activity{Kind: KindApplication, ID: "Discord", Category: "social-media"}, true, "allowed by rule: discord"},
		{"Configured category allow", Activity{Kind: KindApplication, ID: "gcompris", Category: "Education"}, true, `category "education" allowed`},
		{"Age group default", Activity{Kind: KindApplication, ID: "tiktok", Category: "social-media"}, false, `category "social-media" blocked for age group 8-12`},
		{"Fallback allow", Activity{Kind: KindApplication, ID: "gimp"}, true, "no matching rule"},
		{"Blocked subdomain", Activity{Kind: KindContent, ID: "www.example.com"}, false, "blocked by rule: example.com"},
		{"Allowed domain", Activity{Kind: KindContent, ID: "youtube.com", Category: "violence"}, true, "allowed by rule: youtube.com"},
		{"Lookalike domain is not a subdomain", Activity{Kind: KindContent, ID: "notexample.com"}, true, "no matching rule"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EvaluateActivity(p, tt.activity)
			assert.Equal(t, tt.allow, got.Allow)
			assert.Equal(t, tt.reason, got.Reason)
		})
	}
}

func TestEvaluateActivityAllowlistMode(t *testing.T) {
	p := profile.Profile{
		AgeGroup:     profile.EarlyElementary,
		Applications: profile.Rules{Mode: profile.Allowlist, Allowed: []string{"tuxpaint"}},
	}

	assert.True(t, EvaluateActivity(p, Activity{Kind: KindApplication, ID: "tuxpaint"}).Allow)
	got := EvaluateActivity(p, Activity{Kind: KindApplication, ID: "firefox"})
	assert.False(t, got.Allow)
	assert.Equal(t, "not on allowlist", got.Reason)
}

func TestCategoryDefaults(t *testing.T) {
	assert.Nil(t, CategoryDefaults(profile.HighSchool, profile.FilterOff))
	assert.Equal(t, []string{"adult"}, CategoryDefaults(profile.EarlyElementary, profile.FilterMinimal))
	assert.Contains(t, CategoryDefaults(profile.HighSchool, profile.FilterStrict), "social-media")
	assert.NotContains(t, CategoryDefaults(profile.HighSchool, profile.FilterModerate), "social-media")
	assert.Contains(t, CategoryDefaults("", ""), "chat")
}

func TestParseActivityKind(t *testing.T) {
	k, err := ParseActivityKind("Application")
	assert.NoError(t, err)
	assert.Equal(t, KindApplication, k)

	_, err = ParseActivityKind("network")
	assert.Error(t, err)
}
