// Package xtarget publishes tracked pets into the host's extended target table.
//
// The table is shared: the host rewrites slots whenever it likes, so every
// pass first verifies the claims recorded in the tracking set before handing
// out free slots.
package xtarget

import (
	"errors"
	"fmt"

	"addonhost/internal/multipet/tracking"
)

type Type uint32

const (
	TypeEmpty       Type = 0
	TypeAutoHater   Type = 1
	TypeSpecificNPC Type = 3
)

func (t Type) String() string {
	switch t {
	case TypeEmpty:
		return "empty"
	case TypeAutoHater:
		return "auto_hater"
	case TypeSpecificNPC:
		return "specific_npc"
	default:
		return fmt.Sprintf("type(%d)", uint32(t))
	}
}

type Status uint32

const (
	StatusEmpty       Status = 0
	StatusCurrentZone Status = 1
)

// Slot is one extended target record.
type Slot struct {
	Type    Type   `json:"type"`
	Status  Status `json:"status"`
	SpawnID uint32 `json:"spawn_id"`
	Name    string `json:"name"`
}

// Default is the host's "auto hater, no target" state.
func Default() Slot {
	return Slot{Type: TypeAutoHater, Status: StatusEmpty}
}

// Claimed is the record written for a published pet.
func Claimed(id uint32, name string) Slot {
	return Slot{Type: TypeSpecificNPC, Status: StatusCurrentZone, SpawnID: id, Name: tracking.TruncateName(name)}
}

// Available reports whether the slot may be taken: empty, or auto hater with no target.
func (s Slot) Available() bool {
	if s.SpawnID != 0 {
		return false
	}
	return s.Type == TypeEmpty || s.Type == TypeAutoHater
}

func (s Slot) HeldBy(id uint32) bool {
	return s.Type == TypeSpecificNPC && s.SpawnID == id
}

func (s Slot) IsDefault() bool {
	return s.Type == TypeAutoHater && s.SpawnID == 0
}

// Table is the host's fixed-size slot array.
type Table interface {
	Len() int
	Read(i int) (Slot, error)
	Write(i int, s Slot) error
}

var ErrTableUnavailable = errors.New("xtarget: slot table unavailable")

type ChangeKind string

const (
	ChangeReclaimed ChangeKind = "reclaimed"
	ChangeAssigned  ChangeKind = "assigned"
)

type Change struct {
	Kind  ChangeKind
	Slot  int
	ID    uint32
	Name  string
	Cause string
}

// Reconcile runs the verify pass and then the assign pass.
func Reconcile(t Table, set *tracking.Set) ([]Change, error) {
	if t == nil || t.Len() <= 0 {
		return nil, ErrTableUnavailable
	}
	changes := verify(t, set)
	changes = append(changes, assign(t, set)...)
	return changes, nil
}

func verify(t Table, set *tracking.Set) []Change {
	n := t.Len()
	var out []Change
	for _, e := range set.Slotted() {
		cause := "out_of_range"
		if e.Slot < n {
			s, err := t.Read(e.Slot)
			if err != nil || s.HeldBy(e.ID) {
				// An unreadable slot keeps its claim until a read succeeds.
				continue
			}
			cause = "overwritten"
		}
		slot, _ := set.ReleaseSlot(e.ID)
		out = append(out, Change{Kind: ChangeReclaimed, Slot: slot, ID: e.ID, Name: e.Name, Cause: cause})
	}
	return out
}

func assign(t Table, set *tracking.Set) []Change {
	n := t.Len()
	var out []Change
	for _, e := range set.Entities() {
		if e.HasSlot() || !e.Resolved() {
			continue
		}
		free, adopted := -1, -1
		for i := 0; i < n; i++ {
			if _, taken := set.SlotOwner(i); taken {
				continue
			}
			s, err := t.Read(i)
			if err != nil {
				continue
			}
			// A slot still showing this pet (left over from an earlier claim) is reused as is.
			if s.HeldBy(e.ID) {
				adopted = i
				break
			}
			if free < 0 && s.Available() {
				free = i
			}
		}
		switch {
		case adopted >= 0:
			if err := set.Claim(e.ID, adopted); err == nil {
				out = append(out, Change{Kind: ChangeAssigned, Slot: adopted, ID: e.ID, Name: e.Name, Cause: "adopted"})
			}
		case free >= 0:
			if err := t.Write(free, Claimed(e.ID, e.Name)); err != nil {
				continue
			}
			if err := set.Claim(e.ID, free); err == nil {
				out = append(out, Change{Kind: ChangeAssigned, Slot: free, ID: e.ID, Name: e.Name})
			}
		}
	}
	return out
}

// Release restores slot i to the default state if it still holds id.
// It reports whether a write happened.
func Release(t Table, i int, id uint32) (bool, error) {
	if t == nil {
		return false, ErrTableUnavailable
	}
	if i < 0 || i >= t.Len() {
		return false, nil
	}
	s, err := t.Read(i)
	if err != nil {
		return false, err
	}
	if !s.HeldBy(id) {
		return false, nil
	}
	if err := t.Write(i, Default()); err != nil {
		return false, err
	}
	return true, nil
}
