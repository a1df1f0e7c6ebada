// Package profile defines the per-account configuration the engine enforces:
// schedules, the daily screen-time budget and activity rules.
package profile

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

var (
	ErrConflictingRule = errors.New("conflicting allow and block rule")
	ErrInvalidProfile  = errors.New("invalid profile")
)

// BudgetUnlimited disables the daily budget for a profile.
const BudgetUnlimited = time.Duration(math.MaxInt64)

type AgeGroup string

const (
	EarlyElementary AgeGroup = "5-7"
	LateElementary  AgeGroup = "8-12"
	HighSchool      AgeGroup = "13-17"
)

// DefaultBudget is the daily budget used when a profile does not set one.
func (a AgeGroup) DefaultBudget() time.Duration {
	switch a {
	case EarlyElementary:
		return time.Hour
	case LateElementary:
		return 2 * time.Hour
	case HighSchool:
		return 3 * time.Hour
	}
	return time.Hour
}

type FilterLevel string

const (
	FilterStrict   FilterLevel = "strict"
	FilterModerate FilterLevel = "moderate"
	FilterMinimal  FilterLevel = "minimal"
	FilterOff      FilterLevel = "off"
)

// RuleMode selects what happens to an activity no rule matched.
type RuleMode string

const (
	Blocklist RuleMode = "blocklist"
	Allowlist RuleMode = "allowlist"
)

// Rules are the allow/block lists for one activity kind. Identifiers are
// compared case-insensitively.
type Rules struct {
	Mode              RuleMode `toml:"mode" json:"mode,omitempty" yaml:"mode,omitempty"`
	Allowed           []string `toml:"allowed" json:"allowed,omitempty" yaml:"allowed,omitempty"`
	Blocked           []string `toml:"blocked" json:"blocked,omitempty" yaml:"blocked,omitempty"`
	BlockedCategories []string `toml:"blocked_categories" json:"blocked_categories,omitempty" yaml:"blocked_categories,omitempty"`
	AllowedCategories []string `toml:"allowed_categories" json:"allowed_categories,omitempty" yaml:"allowed_categories,omitempty"`
}

func (r Rules) Validate() error {
	if r.Mode != "" && r.Mode != Blocklist && r.Mode != Allowlist {
		return fmt.Errorf("%w: unknown rule mode %q", ErrInvalidProfile, r.Mode)
	}
	if id, ok := overlap(r.Allowed, r.Blocked); ok {
		return fmt.Errorf("%w: %q is both allowed and blocked", ErrConflictingRule, id)
	}
	if id, ok := overlap(r.AllowedCategories, r.BlockedCategories); ok {
		return fmt.Errorf("%w: category %q is both allowed and blocked", ErrConflictingRule, id)
	}
	return nil
}

func overlap(a, b []string) (string, bool) {
	seen := make(map[string]struct{}, len(a))
	for _, s := range a {
		seen[strings.ToLower(s)] = struct{}{}
	}
	for _, s := range b {
		if _, ok := seen[strings.ToLower(s)]; ok {
			return s, true
		}
	}
	return "", false
}

// Profile is the enforcement configuration for one supervised account.
type Profile struct {
	ID          string
	Account     string
	DisplayName string
	AgeGroup    AgeGroup
	DailyBudget time.Duration
	Windows     []TimeWindow
	// Holidays are local calendar dates in 2006-01-02 form.
	Holidays     []string
	Applications Rules
	Content      Rules
	FilterLevel  FilterLevel
}

// Validate rejects profiles the store must not accept.
func (p Profile) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidProfile)
	}
	if p.Account == "" {
		return fmt.Errorf("%w: profile %s has no account", ErrInvalidProfile, p.ID)
	}
	if p.DailyBudget < 0 {
		return fmt.Errorf("%w: profile %s has a negative budget", ErrInvalidProfile, p.ID)
	}
	for _, w := range p.Windows {
		if err := w.Validate(); err != nil {
			return fmt.Errorf("profile %s: %w", p.ID, err)
		}
	}
	for _, h := range p.Holidays {
		if _, err := time.Parse(time.DateOnly, h); err != nil {
			return fmt.Errorf("%w: profile %s holiday %q: %v", ErrInvalidProfile, p.ID, h, err)
		}
	}
	switch p.FilterLevel {
	case "", FilterStrict, FilterModerate, FilterMinimal, FilterOff:
	default:
		return fmt.Errorf("%w: profile %s has unknown filter level %q", ErrInvalidProfile, p.ID, p.FilterLevel)
	}
	if err := p.Applications.Validate(); err != nil {
		return fmt.Errorf("profile %s applications: %w", p.ID, err)
	}
	if err := p.Content.Validate(); err != nil {
		return fmt.Errorf("profile %s content: %w", p.ID, err)
	}
	return nil
}

// DayTypeOf classifies the local calendar day of t. Holidays take priority
// over weekends, weekends over weekdays.
func (p Profile) DayTypeOf(t time.Time) DayType {
	date := t.Format(time.DateOnly)
	for _, h := range p.Holidays {
		if h == date {
			return Holiday
		}
	}
	if wd := t.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return Weekend
	}
	return Weekday
}

// WindowsFor returns the configured windows for a day type in configuration
// order. An empty result is meaningful: nothing is permitted that day.
func (p Profile) WindowsFor(d DayType) []TimeWindow {
	var out []TimeWindow
	for _, w := range p.Windows {
		if w.AppliesTo(d) {
			out = append(out, w)
		}
	}
	return out
}
