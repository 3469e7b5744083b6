// Package component defines cluster component identities and the flat
// per-process record every component registers with the Supervisor.
package component

import (
	"fmt"
	"strings"
)

// Type identifies what kind of server process a component is.
type Type int32

const (
	Unknown Type = iota
	DBManager
	LoginApp
	BaseAppManager
	CellAppManager
	CellApp
	BaseApp
	Client
	Supervisor
	Console
	Logger
	Bots
	Watcher
	Interfaces
)

var typeNames = [...]string{
	Unknown:        "unknown",
	DBManager:      "dbmgr",
	LoginApp:       "loginapp",
	BaseAppManager: "baseappmgr",
	CellAppManager: "cellappmgr",
	CellApp:        "cellapp",
	BaseApp:        "baseapp",
	Client:         "client",
	Supervisor:     "supervisor",
	Console:        "console",
	Logger:         "logger",
	Bots:           "bots",
	Watcher:        "watcher",
	Interfaces:     "interfaces",
}

var typeTitles = [...]string{
	Unknown:        "Unknown",
	DBManager:      "DBManager",
	LoginApp:       "LoginApp",
	BaseAppManager: "BaseAppManager",
	CellAppManager: "CellAppManager",
	CellApp:        "CellApp",
	BaseApp:        "BaseApp",
	Client:         "Client",
	Supervisor:     "Supervisor",
	Console:        "Console",
	Logger:         "Logger",
	Bots:           "Bots",
	Watcher:        "Watcher",
	Interfaces:     "Interfaces",
}

// AllTypes lists every known type, Unknown first.
func AllTypes() []Type {
	out := make([]Type, 0, len(typeNames))
	for t := range typeNames {
		out = append(out, Type(t))
	}
	return out
}

// Valid reports whether t is a known, non-Unknown type.
func (t Type) Valid() bool {
	return t > Unknown && int(t) < len(typeNames)
}

// String returns the short lowercase name, e.g. "cellapp".
func (t Type) String() string {
	if t < 0 || int(t) >= len(typeNames) {
		return fmt.Sprintf("type(%d)", int32(t))
	}
	return typeNames[t]
}

// Title returns the name used as a message namespace, e.g. "CellApp".
func (t Type) Title() string {
	if t < 0 || int(t) >= len(typeTitles) {
		return fmt.Sprintf("Type%d", int32(t))
	}
	return typeTitles[t]
}

// ParseType accepts either the short or the title name, case-insensitively.
func ParseType(s string) (Type, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i := range typeNames {
		if typeNames[i] == s || strings.ToLower(typeTitles[i]) == s {
			return Type(i), nil
		}
	}
	return Unknown, fmt.Errorf("component: unknown type %q", s)
}

// Class says how many instances of a type may run in one cluster.
type Class int

const (
	Multi Class = iota
	Singleton
)

func (c Class) String() string {
	if c == Singleton {
		return "singleton"
	}
	return "multi"
}

// Classes maps each type to its class. Types absent from the map are Multi.
type Classes map[Type]Class

// DefaultClasses returns the stock classification.
func DefaultClasses() Classes {
	return Classes{
		DBManager:      Singleton,
		BaseAppManager: Singleton,
		CellAppManager: Singleton,
		Supervisor:     Singleton,
		Logger:         Singleton,
		Interfaces:     Singleton,
		LoginApp:       Multi,
		CellApp:        Multi,
		BaseApp:        Multi,
		Client:         Multi,
		Console:        Multi,
		Bots:           Multi,
		Watcher:        Multi,
	}
}

// IsSingleton reports whether t runs as exactly one instance per cluster.
func (c Classes) IsSingleton(t Type) bool {
	return c[t] == Singleton
}
