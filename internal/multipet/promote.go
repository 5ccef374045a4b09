package multipet

import (
	"errors"
	"fmt"

	"addonhost/internal/multipet/tracking"
)

var (
	ErrNotTracked     = errors.New("multipet: pet not tracked")
	ErrNotInGame      = errors.New("multipet: no local player")
	ErrNothingToCycle = errors.New("multipet: no other pets to cycle to")
)

// Promote makes the tracked pet id the host's primary pet. The previous
// primary, if any, becomes a tracked secondary pet. Nothing changes if the
// host write fails.
func (m *Mod) Promote(id uint32) error {
	player := m.host.LocalPlayer()
	if player == 0 {
		return ErrNotInGame
	}
	target, ok := m.pets.Get(id)
	if !ok {
		return fmt.Errorf("%w: %d", ErrNotTracked, id)
	}
	prev := m.primaryID()
	if err := m.host.SetPetID(player, id); err != nil {
		return fmt.Errorf("multipet: set pet window id: %w", err)
	}

	if prev != 0 && prev != id && !m.pets.Contains(prev) {
		e := tracking.New(prev, 0)
		if ref, ok := m.dir.Lookup(prev); ok {
			if name, err := m.host.SpawnName(ref); err == nil {
				e.Resolve(ref, name)
			}
		}
		m.pets.Add(e)
		if !e.Resolved() {
			m.needsResolve = true
		}
	}
	m.releaseSlot(target, "promoted")
	m.pets.Remove(id)

	m.log.Info().Uint32("pet", id).Uint32("previous", prev).Msg("promoted pet")
	m.emit(EventPromoted, id, target.Name, tracking.NoSlot, fmt.Sprintf("previous=%d", prev))
	return nil
}

// CycleNext promotes the pet after the current primary in
// [primary, tracked...] order and returns its id.
func (m *Mod) CycleNext() (uint32, error) {
	if m.host.LocalPlayer() == 0 {
		return 0, ErrNotInGame
	}
	primary := m.primaryID()
	ids := make([]uint32, 0, m.pets.Len()+1)
	if primary != 0 {
		ids = append(ids, primary)
	}
	for _, id := range m.pets.IDs() {
		if id != primary {
			ids = append(ids, id)
		}
	}
	if len(ids) <= 1 {
		return 0, ErrNothingToCycle
	}
	cur := -1
	for i, id := range ids {
		if id == primary {
			cur = i
			break
		}
	}
	next := ids[(cur+1)%len(ids)]
	if err := m.Promote(next); err != nil {
		return 0, err
	}
	return next, nil
}
