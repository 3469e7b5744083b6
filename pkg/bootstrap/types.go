// Package bootstrap loads the cluster file: component classes, the
// Supervisor's own identity and the version admission rules.
package bootstrap

import (
	"github.com/morezero/cluster-supervisor/pkg/component"
)

// SelfConfig seeds the Supervisor's own registry entry.
type SelfConfig struct {
	// ID 0 means "generate one at start".
	ID           uint64 `toml:"id"`
	UID          int32  `toml:"uid"`
	Username     string `toml:"username"`
	MachineID    uint32 `toml:"machine_id"`
	GlobalOrder  int32  `toml:"global_order"`
	GroupOrder   int32  `toml:"group_order"`
	ExternalHost string `toml:"external_host"`
	Version      string `toml:"version"`
}

// ClassConfig lists component type names per class. Types listed in neither
// keep their stock class.
type ClassConfig struct {
	Singleton []string `toml:"singleton"`
	Multi     []string `toml:"multi"`
}

// VersionConfig holds admission rules, e.g. "cellapp@>=2.0.0; >=1.0.0".
type VersionConfig struct {
	Rules string `toml:"rules"`
}

// ChangeEventSubjects defines event subject patterns.
type ChangeEventSubjects struct {
	Global  string `toml:"global"`
	Pattern string `toml:"pattern"`
}

// ClusterConfig is the root of the cluster file.
type ClusterConfig struct {
	Name         string              `toml:"name"`
	Version      string              `toml:"version"`
	Description  string              `toml:"description"`
	Supervisor   SelfConfig          `toml:"supervisor"`
	Classes      ClassConfig         `toml:"classes"`
	Versions     VersionConfig       `toml:"versions"`
	ChangeEvents ChangeEventSubjects `toml:"change_events"`
}

// ResolvedCluster is a validated ClusterConfig.
type ResolvedCluster struct {
	name         string
	version      string
	classes      component.Classes
	self         component.Info
	versionRules string
	changeEvents ChangeEventSubjects
}

// Classes returns a copy of the resolved classification.
func (rc *ResolvedCluster) Classes() component.Classes {
	out := make(component.Classes, len(rc.classes))
	for t, c := range rc.classes {
		out[t] = c
	}
	return out
}

// Self returns the seed of the Supervisor's own entry.
func (rc *ResolvedCluster) Self() component.Info {
	return rc.self.Clone()
}

// VersionRules returns the admission rules, empty when every version is admitted.
func (rc *ResolvedCluster) VersionRules() string {
	return rc.versionRules
}

// GlobalChangeSubject returns the global change event subject.
func (rc *ResolvedCluster) GlobalChangeSubject() string {
	return rc.changeEvents.Global
}

// Name returns the cluster name.
func (rc *ResolvedCluster) Name() string {
	return rc.name
}

// Version returns the cluster file version.
func (rc *ResolvedCluster) Version() string {
	return rc.version
}
