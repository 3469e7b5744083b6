package bootstrap

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/morezero/cluster-supervisor/pkg/component"
	"github.com/morezero/cluster-supervisor/pkg/semver"
)

const logPrefix = "bootstrap:loader"

var ErrInvalidConfig = errors.New("bootstrap: invalid cluster config")

// LoadClusterConfig loads the cluster file. It tries paths in order: first
// any paths passed in, then SUPERVISOR_COMPONENTS_FILE, then the defaults.
// Unreadable or unparsable files are skipped; with none found the built-in
// default is returned.
func LoadClusterConfig(paths ...string) (*ClusterConfig, error) {
	all := make([]string, 0, len(paths)+3)
	for _, p := range paths {
		if p != "" {
			all = append(all, p)
		}
	}
	if envPath := os.Getenv("SUPERVISOR_COMPONENTS_FILE"); envPath != "" {
		all = append(all, envPath)
	}
	all = append(all, "config/cluster.toml", "cluster.toml")

	for _, p := range all {
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}

		cfg := GetDefaultClusterConfig()
		md, err := toml.Decode(string(data), cfg)
		if err != nil {
			slog.Warn(fmt.Sprintf("%s - Failed to parse cluster file %s: %v", logPrefix, p, err))
			continue
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			slog.Warn(fmt.Sprintf("%s - Ignoring unknown keys in %s: %v", logPrefix, p, undecoded))
		}

		slog.Info(fmt.Sprintf("%s - Loaded cluster config from %s", logPrefix, p))
		return cfg, nil
	}

	slog.Info(fmt.Sprintf("%s - Using default cluster config", logPrefix))
	return GetDefaultClusterConfig(), nil
}

// GetDefaultClusterConfig returns the built-in cluster configuration.
func GetDefaultClusterConfig() *ClusterConfig {
	return &ClusterConfig{
		Name:        "cluster",
		Version:     "1.0.0",
		Description: "Default cluster configuration",
		Supervisor: SelfConfig{
			Username: "kbe",
		},
		ChangeEvents: ChangeEventSubjects{
			Global:  "supervisor.changed",
			Pattern: "supervisor.changed.{type}",
		},
	}
}

// ResolveClusterConfig validates cfg and builds its lookup form.
func ResolveClusterConfig(cfg *ClusterConfig) (*ResolvedCluster, error) {
	classes := component.DefaultClasses()
	seen := make(map[component.Type]component.Class)
	assign := func(names []string, class component.Class) error {
		for _, name := range names {
			t, err := component.ParseType(name)
			if err != nil {
				return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
			}
			if prev, dup := seen[t]; dup && prev != class {
				return fmt.Errorf("%w: %s listed as both singleton and multi", ErrInvalidConfig, t)
			}
			seen[t] = class
			classes[t] = class
		}
		return nil
	}
	if err := assign(cfg.Classes.Singleton, component.Singleton); err != nil {
		return nil, err
	}
	if err := assign(cfg.Classes.Multi, component.Multi); err != nil {
		return nil, err
	}
	if !classes.IsSingleton(component.Supervisor) {
		return nil, fmt.Errorf("%w: supervisor must be a singleton", ErrInvalidConfig)
	}

	if cfg.Versions.Rules != "" {
		if _, err := semver.NewGate(cfg.Versions.Rules); err != nil {
			return nil, fmt.Errorf("%w: versions.rules: %v", ErrInvalidConfig, err)
		}
	}

	s := cfg.Supervisor
	return &ResolvedCluster{
		name:    cfg.Name,
		version: cfg.Version,
		classes: classes,
		self: component.Info{
			Type:         component.Supervisor,
			ID:           component.ID(s.ID),
			UID:          s.UID,
			Username:     s.Username,
			MachineID:    s.MachineID,
			GlobalOrder:  s.GlobalOrder,
			GroupOrder:   s.GroupOrder,
			ExternalHost: s.ExternalHost,
			Version:      s.Version,
		},
		versionRules: cfg.Versions.Rules,
		changeEvents: cfg.ChangeEvents,
	}, nil
}

// MergeClusterConfigs merges an override config into a base config.
func MergeClusterConfigs(base, override *ClusterConfig) *ClusterConfig {
	merged := *base
	merged.Classes.Singleton = append(append([]string(nil), base.Classes.Singleton...), override.Classes.Singleton...)
	merged.Classes.Multi = append(append([]string(nil), base.Classes.Multi...), override.Classes.Multi...)

	if override.Name != "" {
		merged.Name = override.Name
	}
	if override.Version != "" {
		merged.Version = override.Version
	}
	if override.Supervisor != (SelfConfig{}) {
		merged.Supervisor = override.Supervisor
	}
	if override.Versions.Rules != "" {
		merged.Versions.Rules = override.Versions.Rules
	}
	if override.ChangeEvents.Global != "" {
		merged.ChangeEvents.Global = override.ChangeEvents.Global
	}
	if override.ChangeEvents.Pattern != "" {
		merged.ChangeEvents.Pattern = override.ChangeEvents.Pattern
	}
	return &merged
}
