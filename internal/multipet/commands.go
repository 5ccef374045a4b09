package multipet

import (
	"errors"
	"strconv"
	"strings"

	"addonhost/internal/commands"
)

const (
	cmdPets     = "/pets"
	cmdPetCycle = "/petcycle"
	cmdPetDebug = "/petdebug"
)

func (m *Mod) registerCommands() error {
	for name, h := range map[string]commands.Handler{
		cmdPets:     m.cmdPets,
		cmdPetCycle: m.cmdPetCycle,
		cmdPetDebug: m.cmdPetDebug,
	} {
		if err := m.cmds.Add(name, h); err != nil {
			m.unregisterCommands()
			return err
		}
	}
	return nil
}

func (m *Mod) unregisterCommands() {
	m.cmds.Remove(cmdPets)
	m.cmds.Remove(cmdPetCycle)
	m.cmds.Remove(cmdPetDebug)
}

func (m *Mod) cmdPets(_ string, out commands.Chat) {
	if m.host.LocalPlayer() == 0 {
		out.Printf("No pets found.")
		return
	}
	primary := m.primaryID()
	out.Printf("--- Your Pets ---")
	listed := false
	if primary != 0 {
		name := "(not resolved)"
		if ref, ok := m.dir.Lookup(primary); ok {
			if n, err := m.host.SpawnName(ref); err == nil {
				name = n
			}
		}
		out.Printf("  [UI Pet] %s - ID %d", name, primary)
		listed = true
	}
	for _, e := range m.pets.Entities() {
		class := ClassName(e.OwnerTag)
		switch {
		case e.HasSlot():
			out.Printf("  %s - ID %d (%s) [XTarget slot %d]", e.Name, e.ID, class, e.Slot)
		case e.Resolved():
			out.Printf("  %s - ID %d (%s) [no XTarget slot]", e.Name, e.ID, class)
		default:
			out.Printf("  (unresolved) - ID %d (%s)", e.ID, class)
		}
		listed = true
	}
	if !listed {
		out.Printf("  No pets found.")
	}
	out.Printf("-----------------")
}

// /petcycle [id]
func (m *Mod) cmdPetCycle(args string, out commands.Chat) {
	var (
		id  uint32
		err error
	)
	if args != "" {
		n, perr := strconv.ParseUint(args, 10, 32)
		if perr != nil {
			out.Printf("MultiPet: usage: /petcycle [spawn id]")
			return
		}
		id = uint32(n)
		err = m.Promote(id)
	} else {
		id, err = m.CycleNext()
	}
	switch {
	case errors.Is(err, ErrNotInGame):
		out.Printf("MultiPet: Not in game.")
		return
	case errors.Is(err, ErrNothingToCycle):
		out.Printf("MultiPet: No other pets to cycle to.")
		return
	case errors.Is(err, ErrNotTracked):
		out.Printf("MultiPet: ID %d is not a tracked pet.", id)
		return
	case err != nil:
		out.Printf("MultiPet: %v", err)
		return
	}
	name := "Unknown"
	if ref, ok := m.dir.Lookup(id); ok {
		if n, err := m.host.SpawnName(ref); err == nil {
			name = n
		}
	}
	out.Printf("MultiPet: Pet window now showing '%s' (ID %d)", name, id)
}

// /petdebug [dump]
func (m *Mod) cmdPetDebug(args string, out commands.Chat) {
	if strings.EqualFold(args, "dump") {
		m.dumpState(out)
		return
	}
	owner, primary, ok := m.localIDs()
	if !ok {
		out.Printf("MultiPet Debug: Not in game.")
		return
	}
	needs := "no"
	if m.needsResolve {
		needs = "yes"
	}
	out.Printf("--- MultiPet Debug ---")
	out.Printf("  Local player: ID %d, PetID %d", owner, primary)
	out.Printf("  Session: %s", m.session)
	out.Printf("  Spawn map size: %d", m.dir.Len())
	out.Printf("  Tracked secondary pets: %d", m.pets.Len())
	out.Printf("  Needs resolve: %s", needs)
	for _, e := range m.pets.Entities() {
		name := e.Name
		if name == "" {
			name = "(unresolved)"
		}
		spawn := "no"
		if e.Resolved() {
			spawn = "yes"
		}
		out.Printf("    Pet '%s' ID %d class %d/%s spawn=%s xtSlot=%d", name, e.ID, e.OwnerTag, ClassName(e.OwnerTag), spawn, e.Slot)
	}

	if tbl, err := m.host.XTargets(); err == nil {
		out.Printf("  --- XTarget slots (%d total) ---", tbl.Len())
		for i := 0; i < tbl.Len(); i++ {
			s, err := tbl.Read(i)
			if err != nil || s.IsDefault() {
				continue
			}
			out.Printf("    [%d] type=%s status=%d spawnID=%d name='%s'", i, s.Type, s.Status, s.SpawnID, s.Name)
		}
	} else {
		out.Printf("  XTarget list: unavailable")
	}

	next, _ := m.host.NextIDUpperBound()
	out.Printf("  --- Spawn scan ---")
	out.Printf("    NextID=%d, SpawnMap size=%d", next, m.dir.Len())
	for _, id := range m.dir.IDs() {
		ref, _ := m.dir.Lookup(id)
		master, err := m.host.MasterID(ref)
		if err != nil || master != owner {
			continue
		}
		name, _ := m.host.SpawnName(ref)
		role := "(secondary)"
		if id == primary {
			role = "(UI pet)"
		}
		out.Printf("    ID=%d '%s' master=%d %s", id, name, master, role)
	}
	out.Printf("----------------------")
}

func (m *Mod) dumpState(out commands.Chat) {
	if m.dumper == nil {
		out.Printf("MultiPet: state dumps are not configured.")
		return
	}
	path, err := m.dumper.Dump(m.State())
	if err != nil {
		m.log.Error().Err(err).Msg("state dump failed")
		out.Printf("MultiPet: dump failed: %v", err)
		return
	}
	out.Printf("MultiPet: state written to %s", path)
}
