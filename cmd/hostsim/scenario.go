package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"addonhost/internal/commands"
	"addonhost/internal/config"
	"addonhost/internal/host/simhost"
	"addonhost/internal/protocol"
)

// scenario summons and dismisses the configured pets as the host ticks.
type scenario struct {
	log  zerolog.Logger
	pets []config.ScenarioPet
	live map[int]uint32 // scenario index -> spawn id
	tags map[uint32]uint32
}

func newScenario(pets []config.ScenarioPet, log zerolog.Logger) *scenario {
	ps := append([]config.ScenarioPet(nil), pets...)
	sort.SliceStable(ps, func(i, j int) bool { return ps[i].AtTick < ps[j].AtTick })
	return &scenario{log: log, pets: ps, live: map[int]uint32{}, tags: map[uint32]uint32{}}
}

func (s *scenario) step(h *simhost.Host, tick uint64) {
	listChanged := false
	for i, p := range s.pets {
		if p.AtTick == tick {
			id := s.summon(h, p.Name, p.OwnerTag, p.Primary, p.Unmarked)
			s.live[i] = id
			if p.Unmarked {
				listChanged = true
			}
		}
		if p.DespawnAtTick != 0 && p.DespawnAtTick == tick {
			if id, ok := s.live[i]; ok {
				s.dismiss(h, id)
				delete(s.live, i)
			}
		}
	}
	if listChanged {
		s.sendPetList(h)
	}
}

func (s *scenario) summon(h *simhost.Host, name string, tag uint32, primary, unmarked bool) uint32 {
	master := h.LocalID()
	if unmarked {
		master = 0
	}
	id := h.Spawn(name, master)
	s.tags[id] = tag
	if primary {
		if err := h.SetPetID(id); err != nil {
			s.log.Warn().Err(err).Uint32("id", id).Msg("set pet window")
		}
	}
	s.log.Info().Uint32("id", id).Str("name", name).Bool("primary", primary).Bool("unmarked", unmarked).Msg("summoned")
	return id
}

func (s *scenario) dismiss(h *simhost.Host, id uint32) bool {
	if !h.Despawn(id) {
		return false
	}
	delete(s.tags, id)
	s.log.Info().Uint32("id", id).Msg("dismissed")
	return true
}

// sendPetList delivers the server's view of every pet the scenario owns.
func (s *scenario) sendPetList(h *simhost.Host) {
	ids := make([]uint32, 0, len(s.tags))
	for id := range s.tags {
		if _, ok := h.Ref(id); ok {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	entries := make([]protocol.PetEntry, 0, len(ids))
	for _, id := range ids {
		entries = append(entries, protocol.PetEntry{ID: id, OwnerTag: s.tags[id]})
	}
	passed := h.Deliver(protocol.OpPetList, protocol.EncodePetList(entries))
	s.log.Debug().Int("entries", len(entries)).Bool("passed", passed).Msg("pet list delivered")
}

// registerCommands adds the simulator's own chat commands.
func (s *scenario) registerCommands(r *commands.Registry, h *simhost.Host) error {
	add := func(name string, fn commands.Handler) error {
		if err := r.Add(name, fn); err != nil {
			return fmt.Errorf("register /%s: %w", name, err)
		}
		return nil
	}
	if err := add("summon", func(args string, out commands.Chat) {
		fields := strings.Fields(args)
		if len(fields) == 0 {
			out.Printf("Usage: /summon <name> [unmarked]")
			return
		}
		unmarked := len(fields) > 1 && fields[1] == "unmarked"
		id := s.summon(h, fields[0], 0, false, unmarked)
		if unmarked {
			s.sendPetList(h)
		}
		out.Printf("Summoned %s (ID %d)", fields[0], id)
	}); err != nil {
		return err
	}
	if err := add("dismiss", func(args string, out commands.Chat) {
		id, err := strconv.ParseUint(strings.TrimSpace(args), 10, 32)
		if err != nil {
			out.Printf("Usage: /dismiss <id>")
			return
		}
		if !s.dismiss(h, uint32(id)) {
			out.Printf("No spawn with ID %d.", id)
			return
		}
		out.Printf("Dismissed ID %d", id)
	}); err != nil {
		return err
	}
	if err := add("zone", func(_ string, out commands.Chat) {
		clear(s.tags)
		clear(s.live)
		id := h.Zone(h.PlayerName())
		out.Printf("Zoned; player is now ID %d", id)
	}); err != nil {
		return err
	}
	return add("camp", func(_ string, out commands.Chat) {
		h.SetGameState(simhost.StateCharSelect)
		out.Printf("Camped to character select.")
	})
}
