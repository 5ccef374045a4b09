package multipet

import (
	"fmt"

	"addonhost/internal/host/mem"
	"addonhost/internal/multipet/tracking"
	"addonhost/internal/protocol"
)

// localIDs reads the local player's spawn id and pet window id. ok is false
// when there is no readable local player.
func (m *Mod) localIDs() (owner, primary uint32, ok bool) {
	player := m.host.LocalPlayer()
	if player == 0 {
		return 0, 0, false
	}
	owner, err := m.host.SpawnID(player)
	if err != nil {
		return 0, 0, false
	}
	primary, err = m.host.PetID(player)
	if err != nil {
		primary = 0
	}
	return owner, primary, true
}

func (m *Mod) primaryID() uint32 {
	_, primary, _ := m.localIDs()
	return primary
}

// tryTrack adds the spawn if its master id marks it as a secondary pet of the
// local player.
func (m *Mod) tryTrack(id uint32, ref mem.Addr, owner, primary uint32) bool {
	if owner == 0 || id == primary || m.pets.Contains(id) {
		return false
	}
	master, err := m.host.MasterID(ref)
	if err != nil || master != owner {
		return false
	}
	name, err := m.host.SpawnName(ref)
	if err != nil {
		return false
	}
	e := tracking.New(id, 0)
	e.Resolve(ref, name)
	if !m.pets.Add(e) {
		return false
	}
	m.log.Info().Uint32("pet", id).Str("name", e.Name).Msg("detected pet by master id")
	m.emitPet(EventDetected, e, "master_id")
	return true
}

// scanForPets runs the marker check over the whole directory.
func (m *Mod) scanForPets() int {
	owner, primary, ok := m.localIDs()
	if !ok {
		return 0
	}
	n := 0
	for _, id := range m.dir.IDs() {
		ref, _ := m.dir.Lookup(id)
		if m.tryTrack(id, ref, owner, primary) {
			n++
		}
	}
	return n
}

// resolvePets binds unresolved entities to directory references. The
// needs-resolve flag is cleared only once every entity is resolved.
func (m *Mod) resolvePets() {
	var done []tracking.Entity
	all := true
	m.pets.Each(func(e *tracking.Entity) {
		if e.Resolved() {
			return
		}
		ref, ok := m.dir.Lookup(e.ID)
		if !ok {
			all = false
			return
		}
		name, err := m.host.SpawnName(ref)
		if err != nil {
			all = false
			return
		}
		e.Resolve(ref, name)
		done = append(done, *e)
	})
	for _, e := range done {
		m.log.Debug().Uint32("pet", e.ID).Str("name", e.Name).Msg("resolved pet")
		m.emitPet(EventResolved, e, "")
	}
	if all {
		m.needsResolve = false
	}
}

// HandlePetList applies an OP_PetList payload. A malformed payload changes
// nothing and is returned as an error wrapping protocol.ErrMalformedMessage.
func (m *Mod) HandlePetList(buf []byte) error {
	entries, err := protocol.DecodePetList(buf)
	if err != nil {
		m.log.Warn().Err(err).Int("size", len(buf)).Msg("dropping pet list")
		m.emit(EventPetListMalformed, 0, "", tracking.NoSlot, err.Error())
		return err
	}

	m.releaseAll("petlist")
	primary := m.primaryID()

	next := make([]tracking.Entity, 0, len(entries))
	for _, pe := range entries {
		if pe.ID == 0 || pe.ID == primary {
			continue
		}
		e := tracking.New(pe.ID, pe.OwnerTag)
		if ref, ok := m.dir.Lookup(pe.ID); ok {
			if name, err := m.host.SpawnName(ref); err == nil {
				e.Resolve(ref, name)
			}
		}
		next = append(next, e)
	}
	m.pets.Replace(next)
	m.needsResolve = true

	for _, e := range m.pets.Entities() {
		m.log.Info().Uint32("pet", e.ID).Str("class", ClassName(e.OwnerTag)).Bool("resolved", e.Resolved()).Msg("pet list entry")
	}
	m.emit(EventPetList, 0, "", tracking.NoSlot, fmt.Sprintf("entries=%d tracked=%d", len(entries), m.pets.Len()))
	m.resolvePets()
	return nil
}

// observeXTarget drops our claim on every slot the server announces. The
// table itself is left to the host.
func (m *Mod) observeXTarget(buf []byte) {
	resp, err := protocol.DecodeXTargetResponse(buf)
	if err != nil {
		m.log.Debug().Err(err).Msg("ignoring xtarget response")
		return
	}
	for _, entry := range resp.Entries {
		id, ok := m.pets.SlotOwner(int(entry.Slot))
		if !ok {
			continue
		}
		e, _ := m.pets.Get(id)
		m.pets.ReleaseSlot(id)
		m.log.Info().Uint32("pet", id).Int("slot", e.Slot).Msg("server took slot, will reassign")
		m.emitPet(EventSlotReclaimed, e, "server")
	}
}

func (m *Mod) OnIncomingMessage(op protocol.Opcode, buf []byte) bool {
	switch op {
	case protocol.OpPetList:
		_ = m.HandlePetList(buf)
		return false
	case protocol.OpXTargetResponse:
		m.observeXTarget(buf)
		return true
	default:
		return true
	}
}
