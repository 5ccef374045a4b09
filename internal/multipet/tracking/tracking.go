// Package tracking holds the reconciled set of secondary pets: pets owned by the
// local player other than the one shown in the host's pet window.
package tracking

import (
	"errors"
	"fmt"

	"addonhost/internal/host/mem"
)

// NoSlot marks an entity that holds no extended target slot.
const NoSlot = -1

// NameLen is the width of the host's name buffers, terminator included.
const NameLen = 64

var ErrSlotTaken = errors.New("tracking: slot already claimed")

// Entity is one tracked secondary pet.
//
// States: Ref == 0 is Detected (unresolved); Ref != 0 with Slot == NoSlot is
// Resolved; Slot >= 0 is Published.
type Entity struct {
	ID       uint32   `json:"id"`
	OwnerTag uint32   `json:"owner_tag"`
	Ref      mem.Addr `json:"ref"`
	Name     string   `json:"name"`
	Slot     int      `json:"slot"`
}

func New(id, ownerTag uint32) Entity {
	return Entity{ID: id, OwnerTag: ownerTag, Slot: NoSlot}
}

func (e Entity) Resolved() bool { return e.Ref != 0 }
func (e Entity) HasSlot() bool  { return e.Slot >= 0 }

func (e *Entity) Resolve(ref mem.Addr, name string) {
	e.Ref = ref
	e.Name = TruncateName(name)
}

// Unresolve drops the live reference but keeps the cached name for display.
func (e *Entity) Unresolve() {
	e.Ref = 0
	e.Slot = NoSlot
}

func (e Entity) String() string {
	name := e.Name
	if name == "" {
		name = "(unresolved)"
	}
	return fmt.Sprintf("%s#%d", name, e.ID)
}

func TruncateName(s string) string {
	if len(s) > NameLen-1 {
		return s[:NameLen-1]
	}
	return s
}

// Set is an ordered collection of entities with unique ids and unique slots.
// It is owned by the host thread and is not safe for concurrent use.
type Set struct {
	items []Entity
}

func NewSet() *Set { return &Set{} }

func (s *Set) Len() int { return len(s.items) }

func (s *Set) index(id uint32) int {
	for i := range s.items {
		if s.items[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Set) Contains(id uint32) bool { return s.index(id) >= 0 }

func (s *Set) Get(id uint32) (Entity, bool) {
	if i := s.index(id); i >= 0 {
		return s.items[i], true
	}
	return Entity{}, false
}

// Add appends e unless its id is already present. A slot already held by
// another entity is dropped from e.
func (s *Set) Add(e Entity) bool {
	if e.ID == 0 || s.Contains(e.ID) {
		return false
	}
	if e.HasSlot() {
		if _, taken := s.SlotOwner(e.Slot); taken {
			e.Slot = NoSlot
		}
	}
	s.items = append(s.items, e)
	return true
}

func (s *Set) Remove(id uint32) (Entity, bool) {
	i := s.index(id)
	if i < 0 {
		return Entity{}, false
	}
	e := s.items[i]
	s.items = append(s.items[:i], s.items[i+1:]...)
	return e, true
}

// Replace swaps the whole contents for es, keeping the first of any duplicate id.
func (s *Set) Replace(es []Entity) {
	s.items = nil
	for _, e := range es {
		s.Add(e)
	}
}

// Clear empties the set and returns what it held.
func (s *Set) Clear() []Entity {
	out := s.items
	s.items = nil
	return out
}

// Entities returns a copy of the set in insertion order.
func (s *Set) Entities() []Entity {
	out := make([]Entity, len(s.items))
	copy(out, s.items)
	return out
}

func (s *Set) IDs() []uint32 {
	out := make([]uint32, len(s.items))
	for i := range s.items {
		out[i] = s.items[i].ID
	}
	return out
}

// Each calls fn with a pointer to every entity. fn may change Ref, Name and
// OwnerTag; slot changes must go through Claim and ReleaseSlot.
func (s *Set) Each(fn func(e *Entity)) {
	for i := range s.items {
		slot := s.items[i].Slot
		fn(&s.items[i])
		s.items[i].Slot = slot
		if s.items[i].Ref == 0 {
			s.items[i].Slot = NoSlot
		}
	}
}

func (s *Set) Update(id uint32, fn func(e *Entity)) bool {
	i := s.index(id)
	if i < 0 {
		return false
	}
	slot := s.items[i].Slot
	fn(&s.items[i])
	s.items[i].Slot = slot
	if s.items[i].Ref == 0 {
		s.items[i].Slot = NoSlot
	}
	return true
}

func (s *Set) SlotOwner(slot int) (uint32, bool) {
	if slot < 0 {
		return 0, false
	}
	for i := range s.items {
		if s.items[i].Slot == slot {
			return s.items[i].ID, true
		}
	}
	return 0, false
}

// Claim records that entity id now holds slot.
func (s *Set) Claim(id uint32, slot int) error {
	i := s.index(id)
	if i < 0 {
		return fmt.Errorf("tracking: claim slot %d: id %d not tracked", slot, id)
	}
	if slot < 0 {
		return fmt.Errorf("tracking: claim negative slot %d", slot)
	}
	if owner, taken := s.SlotOwner(slot); taken && owner != id {
		return fmt.Errorf("%w: slot %d held by %d", ErrSlotTaken, slot, owner)
	}
	s.items[i].Slot = slot
	return nil
}

// ReleaseSlot forgets the slot held by id and returns it.
func (s *Set) ReleaseSlot(id uint32) (int, bool) {
	i := s.index(id)
	if i < 0 || !s.items[i].HasSlot() {
		return NoSlot, false
	}
	slot := s.items[i].Slot
	s.items[i].Slot = NoSlot
	return slot, true
}

func (s *Set) Unresolved() int {
	n := 0
	for i := range s.items {
		if !s.items[i].Resolved() {
			n++
		}
	}
	return n
}

// Slotted returns the entities currently holding a slot.
func (s *Set) Slotted() []Entity {
	var out []Entity
	for i := range s.items {
		if s.items[i].HasSlot() {
			out = append(out, s.items[i])
		}
	}
	return out
}
