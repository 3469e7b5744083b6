package dispatcher

import "github.com/morezero/cluster-supervisor/pkg/component"

// ComponentView is the JSON form of a registered component.
type ComponentView struct {
	Type         string  `json:"type"`
	TypeCode     int32   `json:"typeCode"`
	ID           uint64  `json:"id"`
	ParentID     uint64  `json:"parentId,omitempty"`
	UID          int32   `json:"uid"`
	Username     string  `json:"username"`
	InternalAddr string  `json:"internalAddr,omitempty"`
	ExternalAddr string  `json:"externalAddr,omitempty"`
	ExternalHost string  `json:"externalHost,omitempty"`
	GlobalOrder  int32   `json:"globalOrder"`
	GroupOrder   int32   `json:"groupOrder"`
	PID          uint32  `json:"pid"`
	CPU          float32 `json:"cpu"`
	Mem          float32 `json:"mem"`
	UsedMem      uint32  `json:"usedMem"`
	State        string  `json:"state"`
	MachineID    uint32  `json:"machineId"`
	Version      string  `json:"version,omitempty"`
}

// ViewOf converts a registry entry to its JSON form.
func ViewOf(info component.Info) ComponentView {
	v := ComponentView{
		Type:         info.Type.String(),
		TypeCode:     int32(info.Type),
		ID:           uint64(info.ID),
		ParentID:     uint64(info.ParentID),
		UID:          info.UID,
		Username:     info.Username,
		ExternalHost: info.ExternalHost,
		GlobalOrder:  info.GlobalOrder,
		GroupOrder:   info.GroupOrder,
		PID:          info.PID,
		CPU:          info.CPU,
		Mem:          info.Mem,
		UsedMem:      info.UsedMem,
		State:        info.State.String(),
		MachineID:    info.MachineID,
		Version:      info.Version,
	}
	if !info.InternalAddr.IsNone() {
		v.InternalAddr = info.InternalAddr.String()
	}
	if !info.ExternalAddr.IsNone() {
		v.ExternalAddr = info.ExternalAddr.String()
	}
	return v
}

// ViewsOf converts a list of entries.
func ViewsOf(infos []component.Info) []ComponentView {
	out := make([]ComponentView, 0, len(infos))
	for _, info := range infos {
		out = append(out, ViewOf(info))
	}
	return out
}
