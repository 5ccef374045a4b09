package multipet

import (
	"addonhost/internal/host/mem"
	"addonhost/internal/multipet/tracking"
)

func (m *Mod) OnAddSpawn(ref mem.Addr) {
	if ref == 0 {
		return
	}
	id, err := m.host.SpawnID(ref)
	if err != nil || id == 0 {
		return
	}
	m.dir.OnAdd(id, ref)

	// The id came back at a new address: rebind.
	if e, ok := m.pets.Get(id); ok && e.Resolved() && e.Ref != ref {
		m.releaseSlot(e, "rebound")
		name, err := m.host.SpawnName(ref)
		m.pets.Update(id, func(p *tracking.Entity) {
			if err != nil {
				p.Unresolve()
				return
			}
			p.Resolve(ref, name)
		})
		if err != nil {
			m.needsResolve = true
		}
	}

	if owner, primary, ok := m.localIDs(); ok {
		m.tryTrack(id, ref, owner, primary)
	}
	if m.needsResolve {
		m.resolvePets()
	}
}

func (m *Mod) OnRemoveSpawn(ref mem.Addr) {
	if ref == 0 {
		return
	}
	id, err := m.host.SpawnID(ref)
	if err != nil || id == 0 {
		id, _ = m.dir.Find(ref)
	}
	if id != 0 {
		m.dir.OnRemove(id)
		if e, ok := m.pets.Get(id); ok {
			m.releaseSlot(e, "despawned")
			m.pets.Remove(id)
			m.log.Info().Uint32("pet", id).Str("name", e.Name).Msg("pet despawned")
			m.emitPet(EventRemoved, e, "despawned")
		}
	}

	// Anything else still pointing at ref is now dangling.
	for _, e := range m.pets.Entities() {
		if e.Ref != ref {
			continue
		}
		m.releaseSlot(e, "dangling")
		m.pets.Update(e.ID, func(p *tracking.Entity) { p.Unresolve() })
		m.needsResolve = true
	}
}
