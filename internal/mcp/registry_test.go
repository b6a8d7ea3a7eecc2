package mcp

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestRegistry_Lookup(t *testing.T) {
	reg := NewDefaultRegistry()

	d, err := reg.Lookup("postgres")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if d.Category != CategoryData || d.Priority != 3 {
		t.Errorf("unexpected descriptor: %+v", d)
	}

	_, err = reg.Lookup("nope")
	if !errors.Is(err, ErrUnknownService) {
		t.Fatalf("Lookup(nope) error = %v, want ErrUnknownService", err)
	}
}

func TestRegistry_ParseServiceName(t *testing.T) {
	reg := NewDefaultRegistry()

	name, err := reg.ParseServiceName("git")
	if err != nil || name != "git" {
		t.Fatalf("ParseServiceName(git) = %q, %v", name, err)
	}
	if _, err := reg.ParseServiceName("github"); !errors.Is(err, ErrUnknownService) {
		t.Fatalf("ParseServiceName(github) error = %v, want ErrUnknownService", err)
	}
}

func TestRegistry_Queries(t *testing.T) {
	reg := NewDefaultRegistry()

	if got := reg.Count(); got != len(DefaultServices) {
		t.Errorf("Count() = %d, want %d", got, len(DefaultServices))
	}
	if diff := cmp.Diff(Names("heady-windsurf-router"), reg.ByCapability("git")); diff != "" {
		t.Errorf("ByCapability(git) mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(Names("memory", "postgres"), reg.ByCategory(CategoryData)); diff != "" {
		t.Errorf("ByCategory(data) mismatch (-want +got):\n%s", diff)
	}
	if got := reg.ByCapability("teleport"); len(got) != 0 {
		t.Errorf("ByCapability(teleport) = %v, want empty", got)
	}

	cats := reg.Categories(Names("filesystem", "memory", "postgres", "unknown"))
	if diff := cmp.Diff([]Category{CategoryFiles, CategoryData}, cats); diff != "" {
		t.Errorf("Categories() mismatch (-want +got):\n%s", diff)
	}
}

func TestRegistry_AllPreset(t *testing.T) {
	reg := NewDefaultRegistry()

	all, ok := reg.Preset(PresetAll)
	if !ok {
		t.Fatal("Preset(all) not found")
	}
	if len(all.Services) != reg.Count() {
		t.Fatalf("all preset has %d services, want %d", len(all.Services), reg.Count())
	}

	presets := reg.Presets()
	if presets[len(presets)-1].Name != PresetAll {
		t.Errorf("last preset = %q, want all", presets[len(presets)-1].Name)
	}
	if presets[0].Name != "minimal" {
		t.Errorf("first preset = %q, want minimal", presets[0].Name)
	}
}

func TestRegistry_ReturnsCopies(t *testing.T) {
	reg := NewDefaultRegistry()

	d, _ := reg.Lookup("filesystem")
	d.Capabilities[0] = "mutated"
	again, _ := reg.Lookup("filesystem")
	if again.Capabilities[0] != "read" {
		t.Fatalf("registry affected by Lookup() mutation: %v", again.Capabilities)
	}

	p, _ := reg.Preset("minimal")
	p.Services[0] = "mutated"
	again2, _ := reg.Preset("minimal")
	if again2.Services[0] != "filesystem" {
		t.Fatalf("registry affected by Preset() mutation: %v", again2.Services)
	}
}

func TestNewRegistry_Rejects(t *testing.T) {
	svc := []ServiceDescriptor{{Name: "a", Category: CategoryFiles, Priority: 1}}

	tests := []struct {
		name     string
		services []ServiceDescriptor
		presets  []Preset
	}{
		{"duplicate service", append(svc, svc[0]), nil},
		{"empty service name", []ServiceDescriptor{{Name: ""}}, nil},
		{"preset with unknown member", svc, []Preset{{Name: "p", Services: Names("b")}}},
		{"preset named all", svc, []Preset{{Name: PresetAll, Services: Names("a")}}},
		{"duplicate preset", svc, []Preset{{Name: "p", Services: Names("a")}, {Name: "p"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewRegistry(tt.services, tt.presets); err == nil {
				t.Fatal("NewRegistry() expected error")
			}
		})
	}
}

func TestRegistry_SortByPriority(t *testing.T) {
	reg := NewDefaultRegistry()
	names := Names("puppeteer", "zzz", "git", "filesystem", "heady-windsurf-router")
	reg.SortByPriority(names)

	want := Names("heady-windsurf-router", "filesystem", "git", "puppeteer", "zzz")
	if diff := cmp.Diff(want, names); diff != "" {
		t.Errorf("SortByPriority() mismatch (-want +got):\n%s", diff)
	}
}
