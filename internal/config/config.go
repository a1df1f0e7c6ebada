package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/SoarinFerret/TimeWarden/internal/auth"
	"github.com/SoarinFerret/TimeWarden/internal/clockguard"
	"github.com/SoarinFerret/TimeWarden/internal/profile"
	"github.com/SoarinFerret/TimeWarden/internal/session"
)

const DefaultPath = "/etc/timewarden/config.toml"

var ErrInvalidConfig = errors.New("invalid configuration")

// Duration is a time.Duration written as "90s", "5m" or "2h30m".
type Duration time.Duration

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	if v < 0 {
		return fmt.Errorf("invalid duration %q: negative", text)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d Duration) D() time.Duration { return time.Duration(d) }

type DaemonConfig struct {
	TickInterval       Duration `toml:"tick_interval"`
	HeartbeatTimeout   Duration `toml:"heartbeat_timeout"`
	ClockJumpTolerance Duration `toml:"clock_jump_tolerance"`
	WarningThreshold   Duration `toml:"warning_threshold"`
	// NotifyBefore adds reminders below the warning threshold.
	NotifyBefore             []Duration `toml:"notify_before"`
	WarningRepeatSuppression *Duration  `toml:"warning_repeat_suppression"`
	Grace                    *Duration  `toml:"grace"`
	MaxOverride              Duration   `toml:"max_override"`
	OverrideAttemptsPerMin   int        `toml:"override_attempts_per_minute"`
	Database                 string     `toml:"database"`
	KeyFile                  string     `toml:"key_file"`
	LockScreen               *bool      `toml:"lock_screen"`
}

type ProfileConfig struct {
	Account     string `toml:"account"`
	DisplayName string `toml:"display_name"`
	AgeGroup    string `toml:"age_group"`
	// DailyLimit is a duration or "unlimited". Empty uses the age group's
	// default, or no limit without an age group.
	DailyLimit string `toml:"daily_limit"`
	// Windows left out inherit the default; an explicit empty list permits
	// nothing.
	Windows      []profile.TimeWindow `toml:"windows"`
	Holidays     []string             `toml:"holidays"`
	FilterLevel  string               `toml:"filter_level"`
	Applications *profile.Rules       `toml:"applications"`
	Content      *profile.Rules       `toml:"content"`
	Enabled      *bool                `toml:"enabled"`
}

type Config struct {
	Daemon   DaemonConfig             `toml:"daemon"`
	Admins   []auth.Admin             `toml:"admins"`
	Default  ProfileConfig            `toml:"default"`
	Profiles map[string]ProfileConfig `toml:"profiles"`
}

func boolPtr(b bool) *bool { return &b }

func durationPtr(d time.Duration) *Duration {
	v := Duration(d)
	return &v
}

// SetDefault fills unset daemon settings and lets each profile inherit
// unset fields from the default profile.
func (c *Config) SetDefault() {
	d := &c.Daemon
	if d.TickInterval == 0 {
		d.TickInterval = Duration(30 * time.Second)
	}
	if d.HeartbeatTimeout == 0 {
		d.HeartbeatTimeout = Duration(30 * time.Second)
	}
	if d.ClockJumpTolerance == 0 {
		d.ClockJumpTolerance = Duration(clockguard.DefaultTolerance)
	}
	if d.WarningThreshold == 0 {
		d.WarningThreshold = Duration(5 * time.Minute)
	}
	if d.WarningRepeatSuppression == nil {
		d.WarningRepeatSuppression = durationPtr(time.Minute)
	}
	if d.Grace == nil {
		d.Grace = durationPtr(2 * time.Minute)
	}
	if d.MaxOverride == 0 {
		d.MaxOverride = Duration(4 * time.Hour)
	}
	if d.OverrideAttemptsPerMin == 0 {
		d.OverrideAttemptsPerMin = auth.DefaultAttemptsPerMinute
	}
	if d.Database == "" {
		d.Database = "/var/lib/timewarden/timewarden.db"
	}
	if d.KeyFile == "" {
		d.KeyFile = "/var/lib/timewarden/store.key"
	}
	if d.LockScreen == nil {
		d.LockScreen = boolPtr(true)
	}

	if c.Default.Enabled == nil {
		c.Default.Enabled = boolPtr(true)
	}

	for id, pc := range c.Profiles {
		if pc.Account == "" {
			pc.Account = id
		}
		if pc.AgeGroup == "" {
			pc.AgeGroup = c.Default.AgeGroup
		}
		if pc.DailyLimit == "" {
			pc.DailyLimit = c.Default.DailyLimit
		}
		if pc.Windows == nil {
			pc.Windows = c.Default.Windows
		}
		if pc.Holidays == nil {
			pc.Holidays = c.Default.Holidays
		}
		if pc.FilterLevel == "" {
			pc.FilterLevel = c.Default.FilterLevel
		}
		if pc.Applications == nil {
			pc.Applications = c.Default.Applications
		}
		if pc.Content == nil {
			pc.Content = c.Default.Content
		}
		if pc.Enabled == nil {
			pc.Enabled = c.Default.Enabled
		}
		c.Profiles[id] = pc
	}
}

// Validate checks the settings SetDefault cannot fix.
func (c *Config) Validate() error {
	if c.Daemon.TickInterval.D() < time.Second {
		return fmt.Errorf("%w: tick_interval must be at least 1s", ErrInvalidConfig)
	}
	if c.Daemon.WarningThreshold.D() < 0 || c.Daemon.MaxOverride.D() <= 0 {
		return fmt.Errorf("%w: warning_threshold and max_override must be positive", ErrInvalidConfig)
	}
	seen := make(map[string]bool)
	for _, a := range c.Admins {
		if a.Name == "" || a.PasswordHash == "" {
			return fmt.Errorf("%w: admins need a name and password_hash", ErrInvalidConfig)
		}
		if strings.Contains(a.Name, ":") {
			return fmt.Errorf("%w: admin name %q contains ':'", ErrInvalidConfig, a.Name)
		}
		if seen[a.Name] {
			return fmt.Errorf("%w: duplicate admin %q", ErrInvalidConfig, a.Name)
		}
		seen[a.Name] = true
	}
	_, err := c.ProfileList()
	return err
}

// Policy returns the state machine thresholds.
func (c *Config) Policy() session.Policy {
	p := session.DefaultPolicy()
	p.Warning = c.Daemon.WarningThreshold.D()
	p.Tolerance = c.Daemon.ClockJumpTolerance.D()
	if c.Daemon.WarningRepeatSuppression != nil {
		p.Suppress = c.Daemon.WarningRepeatSuppression.D()
	}
	if c.Daemon.Grace != nil {
		p.Grace = c.Daemon.Grace.D()
	}
	for _, r := range c.Daemon.NotifyBefore {
		p.Reminders = append(p.Reminders, r.D())
	}
	return p
}

// ProfileList converts the enabled profiles, sorted by id.
func (c *Config) ProfileList() ([]profile.Profile, error) {
	ids := make([]string, 0, len(c.Profiles))
	for id := range c.Profiles {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	accounts := make(map[string]string)
	var out []profile.Profile
	for _, id := range ids {
		pc := c.Profiles[id]
		if pc.Enabled != nil && !*pc.Enabled {
			continue
		}
		p, err := pc.toProfile(id)
		if err != nil {
			return nil, err
		}
		if other, ok := accounts[p.Account]; ok {
			return nil, fmt.Errorf("%w: profiles %s and %s share account %s", ErrInvalidConfig, other, id, p.Account)
		}
		accounts[p.Account] = id
		out = append(out, p)
	}
	return out, nil
}

func (pc ProfileConfig) toProfile(id string) (profile.Profile, error) {
	p := profile.Profile{
		ID:          id,
		Account:     pc.Account,
		DisplayName: pc.DisplayName,
		AgeGroup:    profile.AgeGroup(pc.AgeGroup),
		Windows:     pc.Windows,
		Holidays:    pc.Holidays,
		FilterLevel: profile.FilterLevel(pc.FilterLevel),
	}
	if p.Account == "" {
		p.Account = id
	}
	if p.Windows == nil {
		p.Windows = []profile.TimeWindow{}
	}
	if pc.Applications != nil {
		p.Applications = *pc.Applications
	}
	if pc.Content != nil {
		p.Content = *pc.Content
	}

	switch p.AgeGroup {
	case "", profile.EarlyElementary, profile.LateElementary, profile.HighSchool:
	default:
		return profile.Profile{}, fmt.Errorf("%w: profile %s has unknown age_group %q", ErrInvalidConfig, id, pc.AgeGroup)
	}

	switch limit := strings.TrimSpace(pc.DailyLimit); {
	case limit == "" && p.AgeGroup != "":
		p.DailyBudget = p.AgeGroup.DefaultBudget()
	case limit == "" || limit == "unlimited":
		p.DailyBudget = profile.BudgetUnlimited
	default:
		d, err := time.ParseDuration(limit)
		if err != nil || d < 0 {
			return profile.Profile{}, fmt.Errorf("%w: profile %s daily_limit %q", ErrInvalidConfig, id, pc.DailyLimit)
		}
		p.DailyBudget = d
	}

	if err := p.Validate(); err != nil {
		return profile.Profile{}, err
	}
	return p, nil
}

func decode(data []byte) (*Config, error) {
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		return nil, err
	}
	cfg.SetDefault()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func LoadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func LoadConfigFromBytes(data []byte) (*Config, error) {
	return decode(data)
}
