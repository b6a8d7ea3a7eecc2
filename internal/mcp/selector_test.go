package mcp

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func newTestResolver(t *testing.T, logger *zap.Logger) *Resolver {
	t.Helper()
	reg := NewDefaultRegistry()
	rec, err := NewRecommender(DefaultConfig(), reg)
	if err != nil {
		t.Fatalf("NewRecommender() error = %v", err)
	}
	return NewResolver(reg, rec, "", logger)
}

func TestResolve(t *testing.T) {
	r := newTestResolver(t, nil)
	dev, _ := r.Registry().Preset(DefaultPresetName)

	tests := []struct {
		name string
		sel  Selector
		want []ServiceName
	}{
		{"preset name", Named("minimal"), Names("filesystem")},
		{"single service name", Named("git"), Names("git")},
		{"unknown single name kept", Named("mystery"), Names("mystery")},
		{"list keeps known names in order", List([]string{"git", "filesystem"}), Names("git", "filesystem")},
		{"empty list", List(nil), []ServiceName{}},
		{"absent selector", Selector{}, dev.Services},
		{"empty name is absent", Named(""), dev.Services},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, r.Resolve(tt.sel)); diff != "" {
				t.Errorf("Resolve() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestResolve_PresetIdentity(t *testing.T) {
	r := newTestResolver(t, nil)

	for _, p := range r.Registry().Presets() {
		if diff := cmp.Diff(p.Services, r.Resolve(Named(p.Name))); diff != "" {
			t.Errorf("Resolve(%q) mismatch (-want +got):\n%s", p.Name, diff)
		}
	}
}

func TestResolve_DropsUnknownWithWarning(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	r := newTestResolver(t, zap.New(core))

	got := r.Resolve(List([]string{"unknown-service", "filesystem"}))
	if diff := cmp.Diff(Names("filesystem"), got); diff != "" {
		t.Fatalf("Resolve() mismatch (-want +got):\n%s", diff)
	}

	entries := logs.FilterMessage("dropping unknown services from selection").All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 warning, got %d", len(entries))
	}
	dropped, ok := entries[0].ContextMap()["services"].([]interface{})
	if !ok || len(dropped) != 1 || dropped[0] != "unknown-service" {
		t.Errorf("warning services field = %#v", entries[0].ContextMap()["services"])
	}
}

func TestCombination_Priority(t *testing.T) {
	r := newTestResolver(t, nil)
	live := StaticConnected(Names("filesystem", "git"))

	tests := []struct {
		name   string
		opts   CombinationOptions
		source Source
		want   []ServiceName
	}{
		{
			name:   "explicit beats preset and task",
			opts:   CombinationOptions{Services: []string{"git"}, Preset: "minimal", Task: "query the database"},
			source: SourceExplicit,
			want:   Names("git"),
		},
		{
			name:   "explicit empty list beats preset",
			opts:   CombinationOptions{Services: []string{}, Preset: "minimal"},
			source: SourceExplicit,
			want:   []ServiceName{},
		},
		{
			name:   "preset beats task",
			opts:   CombinationOptions{Preset: "basic", Task: "query the database"},
			source: SourcePreset,
			want:   Names("filesystem", "git"),
		},
		{
			name:   "task recommendation",
			opts:   CombinationOptions{Task: "query the database"},
			source: SourceRecommended,
			want:   Names("heady-windsurf-router", "postgres"),
		},
		{
			name:   "default preset",
			opts:   CombinationOptions{},
			source: SourceDefault,
			want:   Names("heady-windsurf-router", "filesystem", "git", "memory"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sel := r.Combination(tt.opts, live)
			if sel.Source != tt.source {
				t.Errorf("Source = %q, want %q", sel.Source, tt.source)
			}
			if diff := cmp.Diff(tt.want, sel.Services); diff != "" {
				t.Errorf("Services mismatch (-want +got):\n%s", diff)
			}
			if sel.Metadata.Count != len(tt.want) {
				t.Errorf("Metadata.Count = %d, want %d", sel.Metadata.Count, len(tt.want))
			}
			if (sel.Recommendation != nil) != (tt.source == SourceRecommended) {
				t.Errorf("Recommendation present = %v for source %q", sel.Recommendation != nil, sel.Source)
			}
		})
	}
}

func TestCombination_ExplicitEmptySelection(t *testing.T) {
	r := newTestResolver(t, nil)

	sel := r.Combination(CombinationOptions{Services: []string{}}, StaticConnected(Names("git")))
	if sel.Source != SourceExplicit {
		t.Errorf("Source = %q, want %q", sel.Source, SourceExplicit)
	}
	if !sel.Validation.Valid {
		t.Error("expected an empty selection to be valid")
	}
	if sel.Validation.CanProceed {
		t.Error("expected an empty selection not to proceed")
	}

	unset := r.Combination(CombinationOptions{Services: nil}, nil)
	if unset.Source != SourceDefault {
		t.Errorf("nil Services: Source = %q, want %q", unset.Source, SourceDefault)
	}
}

func TestCombination_ValidatesAgainstConnected(t *testing.T) {
	r := newTestResolver(t, nil)

	sel := r.Combination(CombinationOptions{Preset: "basic"}, StaticConnected(Names("filesystem")))
	if sel.Validation.Valid {
		t.Error("expected invalid selection with git missing")
	}
	if !sel.Validation.CanProceed {
		t.Error("expected CanProceed with filesystem available")
	}
	if diff := cmp.Diff(Names("git"), sel.Validation.Missing); diff != "" {
		t.Errorf("Missing mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]Category{CategoryFiles, CategoryVCS}, sel.Metadata.Categories); diff != "" {
		t.Errorf("Categories mismatch (-want +got):\n%s", diff)
	}

	none := r.Combination(CombinationOptions{Preset: "basic"}, nil)
	if none.Validation.CanProceed {
		t.Error("expected no progress without a connection lister")
	}
}
