package mcp

import (
	"go.uber.org/zap"
)

// Selector is the input to Resolve: a single name, a list, or nothing.
type Selector struct {
	name   string
	list   []string
	isList bool
}

// Named selects a preset by name, or a single service when no preset matches.
func Named(name string) Selector {
	return Selector{name: name}
}

// List selects an explicit list of services.
func List(names []string) Selector {
	return Selector{list: append([]string(nil), names...), isList: true}
}

// IsZero reports whether the selector names nothing.
func (s Selector) IsZero() bool {
	return !s.isList && s.name == ""
}

// ConnectedLister reports which services currently have a live connection.
type ConnectedLister interface {
	Connected() []ServiceName
}

// StaticConnected is a fixed ConnectedLister.
type StaticConnected []ServiceName

// Connected implements ConnectedLister.
func (s StaticConnected) Connected() []ServiceName {
	return append([]ServiceName(nil), s...)
}

// CombinationOptions are the inputs to Resolver.Combination, highest priority first.
// A non-nil empty Services is an explicit empty selection; nil means unset.
type CombinationOptions struct {
	Services []string
	Preset   string
	Task     string
	Context  RecommendContext
}

// Resolver turns selectors, presets and tasks into service lists.
type Resolver struct {
	registry      *Registry
	recommender   *Recommender
	defaultPreset string
	logger        *zap.Logger
}

// NewResolver creates a resolver. A nil logger disables logging.
func NewResolver(reg *Registry, rec *Recommender, defaultPreset string, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	if defaultPreset == "" {
		defaultPreset = DefaultPresetName
	}
	return &Resolver{
		registry:      reg,
		recommender:   rec,
		defaultPreset: defaultPreset,
		logger:        logger,
	}
}

// Registry returns the resolver's registry.
func (r *Resolver) Registry() *Registry {
	return r.registry
}

// Recommender returns the resolver's recommender.
func (r *Resolver) Recommender() *Recommender {
	return r.recommender
}

// Resolve maps sel to a list of services. It never fails: unknown names in a
// list are dropped with a warning, and a single unknown name is kept as-is so
// that validation reports it as missing.
func (r *Resolver) Resolve(sel Selector) []ServiceName {
	switch {
	case sel.isList:
		out := make([]ServiceName, 0, len(sel.list))
		var dropped []string
		for _, n := range sel.list {
			if r.registry.Known(ServiceName(n)) {
				out = append(out, ServiceName(n))
			} else {
				dropped = append(dropped, n)
			}
		}
		if len(dropped) > 0 {
			r.logger.Warn("dropping unknown services from selection", zap.Strings("services", dropped))
		}
		return out
	case sel.name != "":
		if p, ok := r.registry.Preset(sel.name); ok {
			return p.Services
		}
		return []ServiceName{ServiceName(sel.name)}
	default:
		p, _ := r.registry.Preset(r.defaultPreset)
		return p.Services
	}
}

// Combination picks services from opts and validates them against connected.
func (r *Resolver) Combination(opts CombinationOptions, connected ConnectedLister) Selection {
	var sel Selection

	switch {
	case opts.Services != nil:
		sel.Services = r.Resolve(List(opts.Services))
		sel.Source = SourceExplicit
	case opts.Preset != "":
		sel.Services = r.Resolve(Named(opts.Preset))
		sel.Source = SourcePreset
	case opts.Task != "" && r.recommender != nil:
		rec := r.recommender.Recommend(opts.Task, opts.Context)
		sel.Services = append([]ServiceName(nil), rec.Services...)
		sel.Source = SourceRecommended
		sel.Recommendation = &rec
	default:
		sel.Services = r.Resolve(Selector{})
		sel.Source = SourceDefault
	}

	var live []ServiceName
	if connected != nil {
		live = connected.Connected()
	}
	sel.Validation = Validate(sel.Services, live)
	sel.Metadata = SelectionMetadata{
		Count:        len(sel.Services),
		Categories:   r.registry.Categories(sel.Services),
		Capabilities: r.registry.Capabilities(sel.Services),
	}
	return sel
}
