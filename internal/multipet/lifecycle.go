package multipet

import (
	"errors"

	"addonhost/internal/host/game"
	"addonhost/internal/multipet/tracking"
	"addonhost/internal/multipet/xtarget"

	"github.com/google/uuid"
)

// OnPulse runs once per host frame.
func (m *Mod) OnPulse() {
	m.tick++
	if !m.host.InGame() {
		return
	}
	owner, primary, ok := m.localIDs()
	if !ok {
		return
	}
	if m.ownerID != 0 && m.ownerID != owner {
		m.log.Info().Uint32("from", m.ownerID).Uint32("to", owner).Msg("local player id changed, clearing")
		m.reset("owner_changed")
	}
	if m.ownerID != owner {
		m.startSession(owner)
	}

	if m.dir.Len() == 0 {
		n, err := m.dir.Rebuild(m.host, m.cfg.Bounds)
		if err != nil {
			m.log.Debug().Err(err).Msg("directory rebuild failed")
		} else {
			m.log.Debug().Int("spawns", n).Msg("directory rebuilt")
			m.emit(EventDirectoryRebuilt, 0, "", tracking.NoSlot, "")
		}
		m.scanForPets()
	}

	m.scanCounter++
	if m.scanCounter >= m.cfg.RescanEveryTicks {
		m.scanCounter = 0
		m.scanForPets()
		if m.needsResolve {
			m.resolvePets()
		}
	}

	m.dropPrimary(primary)
	m.reconcile()
}

func (m *Mod) startSession(owner uint32) {
	m.ownerID = owner
	m.session = uuid.NewString()
	m.log.Info().Uint32("owner", owner).Str("session", m.session).Msg("session started")
}

// OnSetGameState clears everything when the host leaves the world.
func (m *Mod) OnSetGameState(state int) {
	if state == game.StateInGame {
		return
	}
	m.log.Info().Int("state", state).Msg("left game, clearing")
	m.reset("game_state")
}

// dropPrimary stops tracking the pet the host now shows in its own window.
func (m *Mod) dropPrimary(primary uint32) {
	if primary == 0 {
		return
	}
	e, ok := m.pets.Get(primary)
	if !ok {
		return
	}
	m.releaseSlot(e, "primary")
	m.pets.Remove(primary)
	m.emitPet(EventRemoved, e, "primary")
}

func (m *Mod) reconcile() {
	tbl, err := m.host.XTargets()
	if err != nil {
		m.log.Trace().Err(err).Msg("slot table unavailable")
		return
	}
	changes, err := xtarget.Reconcile(tbl, m.pets)
	if err != nil {
		m.log.Trace().Err(err).Msg("slot table unavailable")
		return
	}
	for _, c := range changes {
		switch c.Kind {
		case xtarget.ChangeAssigned:
			m.log.Debug().Uint32("pet", c.ID).Int("slot", c.Slot).Str("name", c.Name).Msg("assigned slot")
			m.emit(EventSlotAssigned, c.ID, c.Name, c.Slot, c.Cause)
		case xtarget.ChangeReclaimed:
			m.log.Debug().Uint32("pet", c.ID).Int("slot", c.Slot).Str("cause", c.Cause).Msg("lost slot")
			m.emit(EventSlotReclaimed, c.ID, c.Name, c.Slot, c.Cause)
		}
	}
}

// releaseSlot restores e's slot to the default state if the table still
// shows e there, and forgets the claim either way.
func (m *Mod) releaseSlot(e tracking.Entity, cause string) {
	if !e.HasSlot() {
		return
	}
	if tbl, err := m.host.XTargets(); err == nil {
		if _, err := xtarget.Release(tbl, e.Slot, e.ID); err != nil && !errors.Is(err, xtarget.ErrTableUnavailable) {
			m.log.Debug().Err(err).Int("slot", e.Slot).Msg("slot release failed")
		}
	}
	m.pets.ReleaseSlot(e.ID)
	m.emitPet(EventSlotReleased, e, cause)
}

func (m *Mod) releaseAll(cause string) {
	for _, e := range m.pets.Slotted() {
		m.releaseSlot(e, cause)
	}
}

// reset releases every slot and forgets the session.
func (m *Mod) reset(cause string) {
	m.releaseAll(cause)
	m.pets.Clear()
	m.dir.Clear()
	m.ownerID = 0
	m.needsResolve = false
	m.scanCounter = 0
	m.emit(EventSessionReset, 0, "", tracking.NoSlot, cause)
	m.session = ""
}
