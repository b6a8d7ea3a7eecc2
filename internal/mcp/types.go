// Package mcp provides capability-based selection of MCP backend services.
package mcp

import (
	"errors"
	"fmt"
)

// ErrUnknownService is returned when a name is not in the service registry.
var ErrUnknownService = errors.New("unknown service")

// ServiceName identifies a registered backend service.
type ServiceName string

// String implements fmt.Stringer.
func (n ServiceName) String() string { return string(n) }

// Category groups services by what they do.
type Category string

const (
	CategoryRouting    Category = "routing"
	CategoryFiles      Category = "files"
	CategoryVCS        Category = "vcs"
	CategoryAI         Category = "ai"
	CategoryData       Category = "data"
	CategoryNetwork    Category = "network"
	CategoryAutomation Category = "automation"
	CategoryCloud      Category = "cloud"
)

// ServiceDescriptor is one entry of the static service table.
type ServiceDescriptor struct {
	Name         ServiceName `json:"name" yaml:"name"`
	Category     Category    `json:"category" yaml:"category"`
	Capabilities []string    `json:"capabilities" yaml:"capabilities"`
	Priority     int         `json:"priority" yaml:"priority"` // lower = more fundamental
}

// Preset is a named, fixed list of services.
type Preset struct {
	Name     string        `json:"name"`
	Services []ServiceName `json:"services"`
}

// Source records which input decided a selection.
type Source string

const (
	SourceExplicit    Source = "explicit"
	SourcePreset      Source = "preset"
	SourceRecommended Source = "recommended"
	SourceDefault     Source = "default"
)

// Level is a coarse low/medium/high rating.
type Level string

const (
	LevelLow    Level = "low"
	LevelMedium Level = "medium"
	LevelHigh   Level = "high"
)

// Urgency is the priority attached to a recommendation.
type Urgency string

const (
	UrgencyNormal Urgency = "normal"
	UrgencyHigh   Urgency = "high"
)

// Resources is the advisory resource estimate for a task.
type Resources struct {
	CPU    Level `json:"cpu"`
	Memory Level `json:"memory"`
}

// Allocation describes how heavy and how urgent a task looks.
type Allocation struct {
	Complexity Level     `json:"complexity"`
	Priority   Urgency   `json:"priority"`
	Resources  Resources `json:"resources"`
}

// Recommendation is the output of the heuristic recommender.
type Recommendation struct {
	Services   []ServiceName `json:"services"`
	Reasoning  []string      `json:"reasoning"`
	Preset     string        `json:"preset,omitempty"`
	Allocation Allocation    `json:"allocation"`
}

// Turn is one prior message of a conversation.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// RecommendContext carries optional context for a recommendation.
type RecommendContext struct {
	History []Turn `json:"history,omitempty"`
}

// ValidationResult partitions requested services into available and missing.
type ValidationResult struct {
	Valid      bool          `json:"valid"`
	CanProceed bool          `json:"canProceed"`
	Available  []ServiceName `json:"available"`
	Missing    []ServiceName `json:"missing"`
	Warnings   []string      `json:"warnings"`
}

// SelectionMetadata summarizes the selected services.
type SelectionMetadata struct {
	Count        int        `json:"count"`
	Categories   []Category `json:"categories"`
	Capabilities []string   `json:"capabilities"`
}

// Selection is the combined result of resolving, recommending and validating.
type Selection struct {
	Services       []ServiceName     `json:"services"`
	Source         Source            `json:"source"`
	Validation     ValidationResult  `json:"validation"`
	Recommendation *Recommendation   `json:"recommendation,omitempty"`
	Metadata       SelectionMetadata `json:"metadata"`
}

// Names converts plain strings to service names without checking the registry.
func Names(names ...string) []ServiceName {
	out := make([]ServiceName, len(names))
	for i, n := range names {
		out[i] = ServiceName(n)
	}
	return out
}

// Strings converts service names back to plain strings.
func Strings(names []ServiceName) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = string(n)
	}
	return out
}

func unknownService(name string) error {
	return fmt.Errorf("%w: %q", ErrUnknownService, name)
}
