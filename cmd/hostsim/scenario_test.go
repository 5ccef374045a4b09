package main

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"addonhost/internal/commands"
	"addonhost/internal/config"
	"addonhost/internal/framework"
	"addonhost/internal/host/simhost"
	"addonhost/internal/multipet"
	"addonhost/internal/testutil/testlog"
)

type rig struct {
	h    *simhost.Host
	mod  *multipet.Mod
	out  *commands.Buffer
	cmds *commands.Registry
	sc   *scenario
}

func newRig(t *testing.T, pets []config.ScenarioPet) *rig {
	t.Helper()
	h, err := simhost.New(simhost.DefaultOptions())
	if err != nil {
		t.Fatalf("simhost: %v", err)
	}
	out := &commands.Buffer{}
	cmds := commands.NewRegistry(out)
	mod := multipet.New(h.Client(), multipet.Options{Config: multipet.DefaultConfig(), Logger: testlog.New(t), Commands: cmds})
	fw := framework.New(h.Patcher(), testlog.New(t))
	if err := fw.Register(mod); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := fw.Initialize(h.EntryPoints()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	t.Cleanup(func() { _ = fw.Shutdown() })

	sc := newScenario(pets, testlog.New(t))
	if err := sc.registerCommands(cmds, h); err != nil {
		t.Fatalf("commands: %v", err)
	}
	h.EnterWorld("Tester")
	return &rig{h: h, mod: mod, out: out, cmds: cmds, sc: sc}
}

func (r *rig) run(ticks int) {
	for i := 0; i < ticks; i++ {
		r.h.Pulse()
		r.sc.step(r.h, r.h.Tick())
	}
}

func trackedIDs(m *multipet.Mod) []uint32 {
	var ids []uint32
	for _, e := range m.Tracked() {
		ids = append(ids, e.ID)
	}
	return ids
}

func TestScenario_SummonsAndDismisses(t *testing.T) {
	r := newRig(t, []config.ScenarioPet{
		{Name: "Hidden", AtTick: 3, Unmarked: true, OwnerTag: 13},
		{Name: "Prim", AtTick: 1, Primary: true},
		{Name: "Mark", AtTick: 2, DespawnAtTick: 6},
	})

	r.run(5)
	// player=1, Prim=2, Mark=3, Hidden=4
	if r.h.PetID() != 2 {
		t.Fatalf("pet window=%d", r.h.PetID())
	}
	if diff := cmp.Diff([]uint32{3, 4}, trackedIDs(r.mod)); diff != "" {
		t.Fatalf("tracked (-want +got):\n%s", diff)
	}
	for _, e := range r.mod.Tracked() {
		if !e.HasSlot() {
			t.Fatalf("pet %d not published", e.ID)
		}
	}
	if e := r.mod.Tracked()[1]; e.OwnerTag != 13 {
		t.Fatalf("pet list owner tag lost: %+v", e)
	}

	r.run(1)
	if diff := cmp.Diff([]uint32{4}, trackedIDs(r.mod)); diff != "" {
		t.Fatalf("after despawn (-want +got):\n%s", diff)
	}
}

func TestScenario_ChatCommands(t *testing.T) {
	r := newRig(t, nil)
	r.run(1)

	if !r.cmds.Dispatch("/summon Rover") {
		t.Fatalf("summon not registered")
	}
	if !strings.Contains(r.out.String(), "Summoned Rover (ID 2)") {
		t.Fatalf("out=%q", r.out.String())
	}
	r.run(1)
	if diff := cmp.Diff([]uint32{2}, trackedIDs(r.mod)); diff != "" {
		t.Fatalf("tracked (-want +got):\n%s", diff)
	}

	r.out.Reset()
	r.cmds.Dispatch("/dismiss 99")
	if r.out.String() != "No spawn with ID 99." {
		t.Fatalf("out=%q", r.out.String())
	}
	r.cmds.Dispatch("/dismiss 2")
	if len(r.mod.Tracked()) != 0 {
		t.Fatalf("dismissed pet still tracked")
	}

	r.out.Reset()
	r.cmds.Dispatch("/zone")
	if !strings.HasPrefix(r.out.String(), "Zoned; player is now ID 3") {
		t.Fatalf("out=%q", r.out.String())
	}
	if r.h.PlayerName() != "Tester" {
		t.Fatalf("player name=%q", r.h.PlayerName())
	}
}
