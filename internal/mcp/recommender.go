package mcp

import (
	"fmt"
	"regexp"
	"strings"
)

type compiledRule struct {
	rule RoutingRule
	re   *regexp.Regexp
}

// Recommender maps a free-text task to services with a fixed rule table.
// It keeps no state between calls.
type Recommender struct {
	registry *Registry
	always   []AlwaysRule
	rules    []compiledRule
}

// NewRecommender compiles cfg against reg. A nil cfg selects DefaultConfig.
func NewRecommender(cfg *Config, reg *Registry) (*Recommender, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if reg == nil {
		reg = NewDefaultRegistry()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.CheckServices(reg); err != nil {
		return nil, err
	}

	r := &Recommender{
		registry: reg,
		always:   append([]AlwaysRule(nil), cfg.AlwaysInclude...),
	}
	for _, rule := range cfg.Rules {
		cr := compiledRule{rule: rule}
		if rule.Pattern != "" {
			re, err := regexp.Compile("(?i)" + rule.Pattern)
			if err != nil {
				return nil, fmt.Errorf("rule %s: %w", rule.Name, err)
			}
			cr.re = re
		}
		r.rules = append(r.rules, cr)
	}
	return r, nil
}

// Recommend returns the services, reasoning and allocation for task.
func (r *Recommender) Recommend(task string, rc RecommendContext) Recommendation {
	text := strings.ToLower(task)

	alloc := Allocation{
		Complexity: LevelLow,
		Priority:   UrgencyNormal,
		Resources:  Resources{CPU: LevelLow, Memory: LevelLow},
	}
	selected := make(map[ServiceName]bool)
	services := []ServiceName{}
	reasoning := []string{}

	add := func(svc ServiceName) {
		if !selected[svc] {
			selected[svc] = true
			services = append(services, svc)
		}
	}

	for _, a := range r.always {
		add(a.Service)
		if a.Reason != "" {
			reasoning = append(reasoning, a.Reason)
		}
	}

	for _, cr := range r.rules {
		if !cr.matches(text, rc) {
			continue
		}
		for _, svc := range cr.rule.Enable {
			add(svc)
		}
		if cr.rule.Reason != "" {
			reasoning = append(reasoning, cr.rule.Reason)
		}
		cr.rule.Effects.apply(&alloc)
	}

	r.registry.SortByPriority(services)

	return Recommendation{
		Services:   services,
		Reasoning:  reasoning,
		Preset:     r.FindMatchingPreset(services),
		Allocation: alloc,
	}
}

// FindMatchingPreset returns the first preset, in declaration order, whose
// service set equals services. It returns "" when none does.
func (r *Recommender) FindMatchingPreset(services []ServiceName) string {
	return FindMatchingPreset(r.registry, services)
}

// FindMatchingPreset compares services as a set against the presets of reg.
func FindMatchingPreset(reg *Registry, services []ServiceName) string {
	want := make(map[ServiceName]bool, len(services))
	for _, s := range services {
		want[s] = true
	}

	for _, p := range reg.Presets() {
		if sameSet(want, p.Services) {
			return p.Name
		}
	}
	return ""
}

func sameSet(want map[ServiceName]bool, got []ServiceName) bool {
	seen := make(map[ServiceName]bool, len(got))
	for _, s := range got {
		if !want[s] {
			return false
		}
		seen[s] = true
	}
	return len(seen) == len(want)
}

func (cr compiledRule) matches(text string, rc RecommendContext) bool {
	if cr.rule.When == HistoryTrigger {
		return len(rc.History) > 0
	}
	return cr.re != nil && cr.re.MatchString(text)
}

func (e Effects) apply(a *Allocation) {
	if e.WhenComplexity != "" && a.Complexity != e.WhenComplexity {
		return
	}
	if e.Complexity != "" {
		a.Complexity = e.Complexity
	}
	if e.Priority != "" {
		a.Priority = e.Priority
	}
	if e.CPU != "" {
		a.Resources.CPU = e.CPU
	}
	if e.Memory != "" {
		a.Resources.Memory = e.Memory
	}
}
