package bootstrap

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/morezero/cluster-supervisor/pkg/component"
)

const sampleCluster = `
name = "kbe-test"
version = "2.0.0"

[supervisor]
id = 500
username = "kbe"
machine_id = 7
external_host = "game.example.net"

[classes]
singleton = ["loginapp"]
multi = ["Logger"]

[versions]
rules = "cellapp@>=2.0.0; >=1.0.0"

[change_events]
global = "cluster.changed"
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
		t.Fatalf("bootstrap:loader_test - write %s: %v", p, err)
	}
	return p
}

func TestGetDefaultClusterConfig(t *testing.T) {
	cfg := GetDefaultClusterConfig()
	if cfg.Version != "1.0.0" {
		t.Errorf("bootstrap:loader_test - expected version 1.0.0, got %s", cfg.Version)
	}
	if cfg.ChangeEvents.Global != "supervisor.changed" {
		t.Errorf("bootstrap:loader_test - expected supervisor.changed, got %s", cfg.ChangeEvents.Global)
	}

	resolved, err := ResolveClusterConfig(cfg)
	if err != nil {
		t.Fatalf("bootstrap:loader_test - default config must resolve: %v", err)
	}
	classes := resolved.Classes()
	if !classes.IsSingleton(component.DBManager) || classes.IsSingleton(component.CellApp) {
		t.Error("bootstrap:loader_test - expected stock classes")
	}
	if resolved.Self().ID.IsSet() {
		t.Error("bootstrap:loader_test - default self id should be generated at start")
	}
}

func TestLoadClusterConfig_FromFile(t *testing.T) {
	p := writeFile(t, "cluster.toml", sampleCluster)

	cfg, err := LoadClusterConfig(p)
	if err != nil {
		t.Fatalf("bootstrap:loader_test - load: %v", err)
	}
	if cfg.Name != "kbe-test" {
		t.Errorf("bootstrap:loader_test - expected name kbe-test, got %s", cfg.Name)
	}
	// Keys absent from the file keep their defaults.
	if cfg.ChangeEvents.Pattern != "supervisor.changed.{type}" {
		t.Errorf("bootstrap:loader_test - expected default pattern, got %s", cfg.ChangeEvents.Pattern)
	}

	resolved, err := ResolveClusterConfig(cfg)
	if err != nil {
		t.Fatalf("bootstrap:loader_test - resolve: %v", err)
	}
	classes := resolved.Classes()
	if !classes.IsSingleton(component.LoginApp) {
		t.Error("bootstrap:loader_test - expected loginapp to become a singleton")
	}
	if classes.IsSingleton(component.Logger) {
		t.Error("bootstrap:loader_test - expected logger to become multi-instance")
	}
	self := resolved.Self()
	if self.ID != 500 || self.Type != component.Supervisor || self.MachineID != 7 {
		t.Errorf("bootstrap:loader_test - unexpected self %+v", self)
	}
	if resolved.VersionRules() != "cellapp@>=2.0.0; >=1.0.0" {
		t.Errorf("bootstrap:loader_test - unexpected rules %q", resolved.VersionRules())
	}
	if resolved.GlobalChangeSubject() != "cluster.changed" {
		t.Errorf("bootstrap:loader_test - unexpected subject %q", resolved.GlobalChangeSubject())
	}
}

func TestLoadClusterConfig_SkipsBadFiles(t *testing.T) {
	bad := writeFile(t, "bad.toml", "name = [unterminated")
	good := writeFile(t, "good.toml", `name = "second"`)

	cfg, err := LoadClusterConfig(filepath.Join(t.TempDir(), "missing.toml"), bad, good)
	if err != nil {
		t.Fatalf("bootstrap:loader_test - load: %v", err)
	}
	if cfg.Name != "second" {
		t.Errorf("bootstrap:loader_test - expected the first parsable file, got %s", cfg.Name)
	}
}

func TestLoadClusterConfig_EnvFallback(t *testing.T) {
	p := writeFile(t, "env.toml", `name = "from-env"`)
	t.Setenv("SUPERVISOR_COMPONENTS_FILE", p)

	cfg, err := LoadClusterConfig()
	if err != nil {
		t.Fatalf("bootstrap:loader_test - load: %v", err)
	}
	if cfg.Name != "from-env" {
		t.Errorf("bootstrap:loader_test - expected from-env, got %s", cfg.Name)
	}
}

func TestResolveClusterConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		cfg  ClusterConfig
	}{
		{name: "unknown type", cfg: ClusterConfig{Classes: ClassConfig{Singleton: []string{"gateway"}}}},
		{name: "both classes", cfg: ClusterConfig{Classes: ClassConfig{Singleton: []string{"cellapp"}, Multi: []string{"CellApp"}}}},
		{name: "multi supervisor", cfg: ClusterConfig{Classes: ClassConfig{Multi: []string{"supervisor"}}}},
		{name: "bad version rule", cfg: ClusterConfig{Versions: VersionConfig{Rules: "cellapp@not-a-range"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ResolveClusterConfig(&tt.cfg)
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("bootstrap:loader_test - expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestMergeClusterConfigs(t *testing.T) {
	base := GetDefaultClusterConfig()
	base.Classes.Singleton = []string{"loginapp"}
	override := &ClusterConfig{
		Name:       "override",
		Classes:    ClassConfig{Multi: []string{"logger"}},
		Supervisor: SelfConfig{ID: 9, Username: "ops"},
	}

	merged := MergeClusterConfigs(base, override)
	if merged.Name != "override" {
		t.Errorf("bootstrap:loader_test - expected override name, got %s", merged.Name)
	}
	if len(merged.Classes.Singleton) != 1 || len(merged.Classes.Multi) != 1 {
		t.Errorf("bootstrap:loader_test - expected classes from both, got %+v", merged.Classes)
	}
	if merged.Supervisor.ID != 9 {
		t.Errorf("bootstrap:loader_test - expected override supervisor, got %+v", merged.Supervisor)
	}
	if merged.ChangeEvents.Global != "supervisor.changed" {
		t.Error("bootstrap:loader_test - expected base change subject to remain")
	}
	if len(base.Classes.Multi) != 0 {
		t.Error("bootstrap:loader_test - merge must not mutate base")
	}
}
