package mcp

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"
)

// HistoryTrigger marks a rule that fires when conversation history is present.
const HistoryTrigger = "history"

// Config holds the recommender configuration.
type Config struct {
	// DefaultPreset is used when a selection names nothing.
	DefaultPreset string `yaml:"default_preset"`
	// AlwaysInclude lists services added to every recommendation, in order.
	AlwaysInclude []AlwaysRule `yaml:"always_include"`
	// Rules are evaluated in order against the lowercased task text.
	Rules []RoutingRule `yaml:"rules"`
}

// AlwaysRule is a service added unconditionally.
type AlwaysRule struct {
	Service ServiceName `yaml:"service"`
	Reason  string      `yaml:"reason,omitempty"`
}

// RoutingRule defines a pattern-based recommendation rule.
type RoutingRule struct {
	// Name identifies the rule in logs.
	Name string `yaml:"name"`
	// Pattern is a regex matched case-insensitively against the task.
	Pattern string `yaml:"pattern,omitempty"`
	// When names a non-text trigger. Only "history" is supported.
	When string `yaml:"when,omitempty"`
	// Enable lists the services added when the rule matches.
	Enable []ServiceName `yaml:"enable,omitempty"`
	// Reason is appended to the reasoning when the rule matches.
	Reason string `yaml:"reason,omitempty"`
	// Effects adjust the allocation when the rule matches.
	Effects Effects `yaml:"effects,omitempty"`
}

// Effects overwrite allocation fields. Empty fields are left alone.
type Effects struct {
	Complexity Level   `yaml:"complexity,omitempty"`
	Priority   Urgency `yaml:"priority,omitempty"`
	CPU        Level   `yaml:"cpu,omitempty"`
	Memory     Level   `yaml:"memory,omitempty"`
	// WhenComplexity restricts the effects to tasks already rated at this complexity.
	WhenComplexity Level `yaml:"when_complexity,omitempty"`
}

// DefaultConfig returns the built-in rule table.
func DefaultConfig() *Config {
	return &Config{
		DefaultPreset: DefaultPresetName,
		AlwaysInclude: []AlwaysRule{
			{Service: RouterService, Reason: "heady-windsurf-router: Full observability and HeadyMaid integration"},
		},
		Rules: []RoutingRule{
			{
				Name:    "complexity",
				Pattern: `complex|analyze|optimize|architect|heavy|large|build|compile`,
				Enable:  Names("sequential-thinking"),
				Reason:  "sequential-thinking: High complexity task requires reasoning",
				Effects: Effects{Complexity: LevelHigh, CPU: LevelHigh, Memory: LevelHigh},
			},
			{
				Name:    "priority",
				Pattern: `urgent|critical|security|fix|bug|error|fail`,
				Enable:  []ServiceName{RouterService},
				Effects: Effects{Priority: UrgencyHigh},
			},
			{
				Name:    "filesystem",
				Pattern: `file|read|write|directory|folder|scan|search`,
				Enable:  Names("filesystem"),
				Reason:  "filesystem: File operations detected",
				Effects: Effects{Memory: LevelMedium, WhenComplexity: LevelHigh},
			},
			{
				Name:    "git",
				Pattern: `git|commit|branch|merge|push|pull|clone|repo`,
				Enable:  Names("git"),
				Reason:  "git: Version control operations detected",
			},
			{
				Name:    "memory",
				Pattern: `remember|store|save|persist|recall|memory|context`,
				Enable:  Names("memory"),
				Reason:  "memory: Data persistence needed",
			},
			{
				Name:    "database",
				Pattern: `database|query|sql|postgres|table|schema|migration`,
				Enable:  Names("postgres"),
				Reason:  "postgres: Database operations detected",
				Effects: Effects{Memory: LevelMedium},
			},
			{
				Name:    "http",
				Pattern: `api|http|fetch|request|endpoint|rest|download`,
				Enable:  Names("fetch"),
				Reason:  "fetch: HTTP/API operations detected",
			},
			{
				Name:    "browser",
				Pattern: `browser|web|scrape|screenshot|automate|test.*ui|e2e`,
				Enable:  Names("puppeteer"),
				Reason:  "puppeteer: Browser automation needed",
				Effects: Effects{Memory: LevelHigh, CPU: LevelMedium},
			},
			{
				Name:    "cloud",
				Pattern: `cloudflare|deploy|dns|worker|edge|serverless`,
				Enable:  Names("cloudflare"),
				Reason:  "cloudflare: Cloud operations detected",
			},
			{
				Name:   "history",
				When:   HistoryTrigger,
				Enable: Names("memory"),
				Reason: "memory: Maintaining conversation context",
			},
			{
				Name:    "build",
				Pattern: `build|autobuild|pipeline|ci|cd`,
				Enable:  Names("heady-autobuild"),
				Reason:  "heady-autobuild: Build orchestration needed",
				Effects: Effects{Complexity: LevelHigh},
			},
		},
	}
}

// LoadConfig loads configuration from a YAML file. A missing file yields the defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// DefaultConfigPath returns ~/.heady/router.yaml.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home dir: %w", err)
	}
	return filepath.Join(home, ".heady", "router.yaml"), nil
}

// LoadConfigFromHome loads configuration from ~/.heady/router.yaml.
func LoadConfigFromHome() (*Config, error) {
	path, err := DefaultConfigPath()
	if err != nil {
		return DefaultConfig(), nil
	}
	return LoadConfig(path)
}

// SaveConfig saves configuration to a YAML file, creating parent directories if needed.
func SaveConfig(path string, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// Validate checks rule syntax. It does not check service names; see CheckServices.
func (c *Config) Validate() error {
	if c.DefaultPreset == "" {
		return fmt.Errorf("default_preset cannot be empty")
	}

	for i, rule := range c.Rules {
		label := rule.Name
		if label == "" {
			label = fmt.Sprintf("#%d", i)
		}

		switch {
		case rule.Pattern != "" && rule.When != "":
			return fmt.Errorf("rule %s: pattern and when are mutually exclusive", label)
		case rule.Pattern == "" && rule.When == "":
			return fmt.Errorf("rule %s: needs a pattern or a when trigger", label)
		case rule.When != "" && rule.When != HistoryTrigger:
			return fmt.Errorf("rule %s: unsupported trigger %q", label, rule.When)
		}

		if rule.Pattern != "" {
			if _, err := regexp.Compile("(?i)" + rule.Pattern); err != nil {
				return fmt.Errorf("rule %s: invalid pattern: %w", label, err)
			}
		}

		if err := rule.Effects.validate(); err != nil {
			return fmt.Errorf("rule %s: %w", label, err)
		}
	}

	return nil
}

// CheckServices verifies that every service and preset the config refers to is registered.
func (c *Config) CheckServices(reg *Registry) error {
	if _, ok := reg.Preset(c.DefaultPreset); !ok {
		return fmt.Errorf("default_preset %q is not a preset", c.DefaultPreset)
	}
	for _, a := range c.AlwaysInclude {
		if !reg.Known(a.Service) {
			return fmt.Errorf("always_include: %w", unknownService(string(a.Service)))
		}
	}
	for _, rule := range c.Rules {
		for _, svc := range rule.Enable {
			if !reg.Known(svc) {
				return fmt.Errorf("rule %s: %w", rule.Name, unknownService(string(svc)))
			}
		}
	}
	return nil
}

func (e Effects) validate() error {
	levels := map[Level]bool{"": true, LevelLow: true, LevelMedium: true, LevelHigh: true}
	if e.Complexity != "" && e.Complexity != LevelLow && e.Complexity != LevelHigh {
		return fmt.Errorf("invalid complexity %q, must be: low or high", e.Complexity)
	}
	if e.Priority != "" && e.Priority != UrgencyNormal && e.Priority != UrgencyHigh {
		return fmt.Errorf("invalid priority %q, must be: normal or high", e.Priority)
	}
	if !levels[e.CPU] {
		return fmt.Errorf("invalid cpu level %q", e.CPU)
	}
	if !levels[e.Memory] {
		return fmt.Errorf("invalid memory level %q", e.Memory)
	}
	if !levels[e.WhenComplexity] {
		return fmt.Errorf("invalid when_complexity %q", e.WhenComplexity)
	}
	return nil
}
