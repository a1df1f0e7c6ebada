package eval

import (
	"fmt"
	"path"
	"strings"

	"github.com/SoarinFerret/TimeWarden/internal/profile"
)

type ActivityKind string

const (
	KindApplication ActivityKind = "application"
	KindContent     ActivityKind = "content"
)

func ParseActivityKind(s string) (ActivityKind, error) {
	switch ActivityKind(strings.ToLower(s)) {
	case KindApplication:
		return KindApplication, nil
	case KindContent:
		return KindContent, nil
	}
	return "", fmt.Errorf("unknown activity kind %q", s)
}

// Activity describes something the monitoring agent observed: an
// application (identified by executable or app id) or a piece of content
// (identified by domain).
type Activity struct {
	Kind     ActivityKind
	ID       string
	Category string
}

type ActivityDecision struct {
	Allow  bool
	Reason string
}

var ageCategoryDefaults = map[profile.AgeGroup][]string{
	profile.EarlyElementary: {"adult", "violence", "gambling", "social-media", "chat", "mature-games"},
	profile.LateElementary:  {"adult", "violence", "gambling", "social-media"},
	profile.HighSchool:      {"adult", "gambling"},
}

// CategoryDefaults returns the categories blocked by default for an age
// group at a filter level. Unknown age groups get the youngest group's list.
func CategoryDefaults(age profile.AgeGroup, level profile.FilterLevel) []string {
	base, ok := ageCategoryDefaults[age]
	if !ok {
		base = ageCategoryDefaults[profile.EarlyElementary]
	}
	switch level {
	case profile.FilterOff:
		return nil
	case profile.FilterMinimal:
		return []string{"adult"}
	case profile.FilterStrict:
		return union(base, ageCategoryDefaults[profile.EarlyElementary])
	}
	return base
}

func union(a, b []string) []string {
	out := append([]string(nil), a...)
	for _, s := range b {
		if !contains(out, s) {
			out = append(out, s)
		}
	}
	return out
}

func contains(list []string, id string) bool {
	for _, s := range list {
		if strings.EqualFold(s, id) {
			return true
		}
	}
	return false
}

// matchDomain reports whether host equals rule or is a subdomain of it.
func matchDomain(list []string, host string) (string, bool) {
	for _, rule := range list {
		rule = strings.ToLower(strings.TrimPrefix(rule, "*."))
		if host == rule || strings.HasSuffix(host, "."+rule) {
			return rule, true
		}
	}
	return "", false
}

func normalize(a Activity) string {
	id := strings.ToLower(strings.TrimSpace(a.ID))
	if a.Kind == KindApplication {
		return path.Base(id)
	}
	return strings.TrimSuffix(id, ".")
}

// EvaluateActivity walks the profile's rules for the activity kind:
// explicit block, explicit allow, category rules (configured, then the age
// group defaults), then the rule set's default mode. First match wins.
func EvaluateActivity(p profile.Profile, a Activity) ActivityDecision {
	rules := p.Applications
	if a.Kind == KindContent {
		rules = p.Content
	}
	id := normalize(a)

	if a.Kind == KindContent {
		if rule, ok := matchDomain(rules.Blocked, id); ok {
			return ActivityDecision{Allow: false, Reason: "blocked by rule: " + rule}
		}
		if rule, ok := matchDomain(rules.Allowed, id); ok {
			return ActivityDecision{Allow: true, Reason: "allowed by rule: " + rule}
		}
	} else {
		if contains(rules.Blocked, id) {
			return ActivityDecision{Allow: false, Reason: "blocked by rule: " + id}
		}
		if contains(rules.Allowed, id) {
			return ActivityDecision{Allow: true, Reason: "allowed by rule: " + id}
		}
	}

	if category := strings.ToLower(a.Category); category != "" {
		if contains(rules.BlockedCategories, category) {
			return ActivityDecision{Allow: false, Reason: fmt.Sprintf("category %q blocked", category)}
		}
		if contains(rules.AllowedCategories, category) {
			return ActivityDecision{Allow: true, Reason: fmt.Sprintf("category %q allowed", category)}
		}
		if contains(CategoryDefaults(p.AgeGroup, p.FilterLevel), category) {
			return ActivityDecision{Allow: false, Reason: fmt.Sprintf("category %q blocked for age group %s", category, p.AgeGroup)}
		}
	}

	if rules.Mode == profile.Allowlist {
		return ActivityDecision{Allow: false, Reason: "not on allowlist"}
	}
	return ActivityDecision{Allow: true, Reason: "no matching rule"}
}
