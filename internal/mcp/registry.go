package mcp

import (
	"fmt"
	"sort"
)

// PresetAll is the synthetic preset holding every registered service.
const PresetAll = "all"

// DefaultPresetName is used when a selection names nothing.
const DefaultPresetName = "development"

// RouterService is always part of a recommendation.
const RouterService ServiceName = "heady-windsurf-router"

// DefaultServices is the static service table.
var DefaultServices = []ServiceDescriptor{
	{Name: RouterService, Category: CategoryRouting, Capabilities: []string{"file_ops", "commands", "git", "inventory", "optimization"}, Priority: 1},
	{Name: "filesystem", Category: CategoryFiles, Capabilities: []string{"read", "write", "list", "move", "delete"}, Priority: 2},
	{Name: "git", Category: CategoryVCS, Capabilities: []string{"commit", "push", "pull", "branch", "status"}, Priority: 2},
	{Name: "sequential-thinking", Category: CategoryAI, Capabilities: []string{"planning", "reasoning", "analysis"}, Priority: 3},
	{Name: "memory", Category: CategoryData, Capabilities: []string{"store", "retrieve", "knowledge_graph"}, Priority: 3},
	{Name: "postgres", Category: CategoryData, Capabilities: []string{"query", "schema", "transactions"}, Priority: 3},
	{Name: "fetch", Category: CategoryNetwork, Capabilities: []string{"http_get", "http_post", "api_calls"}, Priority: 3},
	{Name: "puppeteer", Category: CategoryAutomation, Capabilities: []string{"browser", "scraping", "testing"}, Priority: 4},
	{Name: "cloudflare", Category: CategoryCloud, Capabilities: []string{"dns", "workers", "kv"}, Priority: 4},
	{Name: "heady-autobuild", Category: CategoryAutomation, Capabilities: []string{"build", "pipeline", "ci"}, Priority: 4},
}

// DefaultPresets lists the named presets in match order. "all" is appended by the registry.
var DefaultPresets = []Preset{
	{Name: "minimal", Services: Names("filesystem")},
	{Name: "basic", Services: Names("filesystem", "git")},
	{Name: "development", Services: Names("heady-windsurf-router", "filesystem", "git", "memory")},
	{Name: "ai-enhanced", Services: Names("heady-windsurf-router", "filesystem", "sequential-thinking", "memory")},
	{Name: "full-stack", Services: Names("heady-windsurf-router", "filesystem", "git", "sequential-thinking", "memory", "postgres")},
	{Name: "research", Services: Names("heady-windsurf-router", "fetch", "sequential-thinking", "memory")},
	{Name: "automation", Services: Names("heady-windsurf-router", "filesystem", "puppeteer", "memory")},
	{Name: "cloud-deploy", Services: Names("heady-windsurf-router", "filesystem", "git", "cloudflare")},
}

func cloneDescriptor(d ServiceDescriptor) ServiceDescriptor {
	d.Capabilities = append([]string(nil), d.Capabilities...)
	return d
}

func clonePreset(p Preset) Preset {
	p.Services = append([]ServiceName(nil), p.Services...)
	return p
}

// Registry is the immutable table of known services and presets.
// It is read-only after construction and needs no locking.
type Registry struct {
	order       []ServiceName
	services    map[ServiceName]ServiceDescriptor
	presetOrder []string
	presets     map[string]Preset
}

// NewRegistry builds a registry from a service table and presets.
// Preset members must be registered services.
func NewRegistry(services []ServiceDescriptor, presets []Preset) (*Registry, error) {
	r := &Registry{
		services: make(map[ServiceName]ServiceDescriptor, len(services)),
		presets:  make(map[string]Preset, len(presets)+1),
	}

	for _, s := range services {
		if s.Name == "" {
			return nil, fmt.Errorf("service name cannot be empty")
		}
		if _, dup := r.services[s.Name]; dup {
			return nil, fmt.Errorf("service %q registered twice", s.Name)
		}
		r.services[s.Name] = cloneDescriptor(s)
		r.order = append(r.order, s.Name)
	}

	for _, p := range presets {
		if p.Name == "" || p.Name == PresetAll {
			return nil, fmt.Errorf("invalid preset name %q", p.Name)
		}
		if _, dup := r.presets[p.Name]; dup {
			return nil, fmt.Errorf("preset %q defined twice", p.Name)
		}
		for _, svc := range p.Services {
			if _, ok := r.services[svc]; !ok {
				return nil, fmt.Errorf("preset %q: %w", p.Name, unknownService(string(svc)))
			}
		}
		r.presets[p.Name] = clonePreset(p)
		r.presetOrder = append(r.presetOrder, p.Name)
	}

	r.presets[PresetAll] = Preset{Name: PresetAll, Services: append([]ServiceName(nil), r.order...)}
	r.presetOrder = append(r.presetOrder, PresetAll)
	return r, nil
}

// NewDefaultRegistry returns the registry built from the static tables.
func NewDefaultRegistry() *Registry {
	r, err := NewRegistry(DefaultServices, DefaultPresets)
	if err != nil {
		panic(fmt.Sprintf("mcp: default registry: %v", err))
	}
	return r
}

// ParseServiceName validates a name against the registry.
func (r *Registry) ParseServiceName(name string) (ServiceName, error) {
	if _, ok := r.services[ServiceName(name)]; !ok {
		return "", unknownService(name)
	}
	return ServiceName(name), nil
}

// Known reports whether name is registered.
func (r *Registry) Known(name ServiceName) bool {
	_, ok := r.services[name]
	return ok
}

// Lookup returns the descriptor for name.
func (r *Registry) Lookup(name ServiceName) (ServiceDescriptor, error) {
	d, ok := r.services[name]
	if !ok {
		return ServiceDescriptor{}, unknownService(string(name))
	}
	return cloneDescriptor(d), nil
}

// List returns every descriptor in table order.
func (r *Registry) List() []ServiceDescriptor {
	out := make([]ServiceDescriptor, 0, len(r.order))
	for _, n := range r.order {
		out = append(out, cloneDescriptor(r.services[n]))
	}
	return out
}

// Count returns the number of registered services.
func (r *Registry) Count() int {
	return len(r.order)
}

// ByCapability returns the services advertising capability, in table order.
func (r *Registry) ByCapability(capability string) []ServiceName {
	out := []ServiceName{}
	for _, n := range r.order {
		for _, c := range r.services[n].Capabilities {
			if c == capability {
				out = append(out, n)
				break
			}
		}
	}
	return out
}

// ByCategory returns the services in category, in table order.
func (r *Registry) ByCategory(category Category) []ServiceName {
	out := []ServiceName{}
	for _, n := range r.order {
		if r.services[n].Category == category {
			out = append(out, n)
		}
	}
	return out
}

// Preset returns the named preset.
func (r *Registry) Preset(name string) (Preset, bool) {
	p, ok := r.presets[name]
	if !ok {
		return Preset{}, false
	}
	return clonePreset(p), true
}

// Presets returns every preset in match order, "all" last.
func (r *Registry) Presets() []Preset {
	out := make([]Preset, 0, len(r.presetOrder))
	for _, name := range r.presetOrder {
		out = append(out, clonePreset(r.presets[name]))
	}
	return out
}

// Categories returns the distinct categories of the known services in names.
func (r *Registry) Categories(names []ServiceName) []Category {
	seen := make(map[Category]bool)
	out := []Category{}
	for _, n := range names {
		d, ok := r.services[n]
		if !ok || seen[d.Category] {
			continue
		}
		seen[d.Category] = true
		out = append(out, d.Category)
	}
	return out
}

// Capabilities returns the distinct capabilities of the known services in names.
func (r *Registry) Capabilities(names []ServiceName) []string {
	seen := make(map[string]bool)
	out := []string{}
	for _, n := range names {
		for _, c := range r.services[n].Capabilities {
			if !seen[c] {
				seen[c] = true
				out = append(out, c)
			}
		}
	}
	return out
}

// SortByPriority orders names by priority, then name. Unknown names sort last.
func (r *Registry) SortByPriority(names []ServiceName) {
	prio := func(n ServiceName) int {
		if d, ok := r.services[n]; ok {
			return d.Priority
		}
		return int(^uint(0) >> 1)
	}
	sort.SliceStable(names, func(i, j int) bool {
		pi, pj := prio(names[i]), prio(names[j])
		if pi != pj {
			return pi < pj
		}
		return names[i] < names[j]
	})
}
