package multipet

import (
	"addonhost/internal/multipet/tracking"
	"addonhost/internal/multipet/xtarget"
)

// State is a point-in-time copy of the tracker, safe to hand to other goroutines.
type State struct {
	Tick          uint64            `json:"tick"`
	Session       string            `json:"session,omitempty"`
	OwnerID       uint32            `json:"owner_id"`
	PrimaryID     uint32            `json:"primary_id"`
	DirectorySize int               `json:"directory_size"`
	NeedsResolve  bool              `json:"needs_resolve"`
	Pets          []tracking.Entity `json:"pets"`
	Slots         []xtarget.Slot    `json:"slots,omitempty"`
}

func (m *Mod) State() State {
	s := State{
		Tick:          m.tick,
		Session:       m.session,
		OwnerID:       m.ownerID,
		PrimaryID:     m.primaryID(),
		DirectorySize: m.dir.Len(),
		NeedsResolve:  m.needsResolve,
		Pets:          m.pets.Entities(),
	}
	if tbl, err := m.host.XTargets(); err == nil {
		for i := 0; i < tbl.Len(); i++ {
			slot, err := tbl.Read(i)
			if err != nil {
				slot = xtarget.Slot{}
			}
			s.Slots = append(s.Slots, slot)
		}
	}
	return s
}
