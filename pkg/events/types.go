// Package events defines component change events and the publishers that fan them out.
package events

// Change actions.
const (
	ActionRegistered   = "registered"
	ActionReplaced     = "replaced"
	ActionDeregistered = "deregistered"
)

// ComponentChangedEvent is emitted after the registry applies a mutation.
type ComponentChangedEvent struct {
	Action        string `json:"action"`
	ComponentType string `json:"componentType"`
	TypeCode      int32  `json:"typeCode"`
	ComponentID   uint64 `json:"componentId"`
	// ReplacedID is the evicted id when a singleton re-registers under a new id.
	ReplacedID   *uint64 `json:"replacedId,omitempty"`
	Username     string  `json:"username,omitempty"`
	InternalAddr string  `json:"internalAddr,omitempty"`
	ExternalAddr string  `json:"externalAddr,omitempty"`
	Version      string  `json:"version,omitempty"`
	// Revision increases by one per applied mutation within a process.
	Revision  int64  `json:"revision"`
	Timestamp string `json:"timestamp"`
}
