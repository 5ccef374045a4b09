package xtarget

import (
	"errors"
	"math/rand"
	"testing"

	"addonhost/internal/host/mem"
	"addonhost/internal/multipet/tracking"

	"github.com/google/go-cmp/cmp"
)

type memTable struct {
	slots  []Slot
	broken map[int]bool
	writes int
}

func newMemTable(n int) *memTable {
	t := &memTable{slots: make([]Slot, n), broken: map[int]bool{}}
	for i := range t.slots {
		t.slots[i] = Default()
	}
	return t
}

func (t *memTable) Len() int { return len(t.slots) }

func (t *memTable) Read(i int) (Slot, error) {
	if t.broken[i] {
		return Slot{}, &mem.FaultError{Op: "read", Addr: mem.Addr(i)}
	}
	return t.slots[i], nil
}

func (t *memTable) Write(i int, s Slot) error {
	if t.broken[i] {
		return &mem.FaultError{Op: "write", Addr: mem.Addr(i)}
	}
	t.writes++
	t.slots[i] = s
	return nil
}

func resolved(id uint32, name string) tracking.Entity {
	e := tracking.New(id, 0)
	e.Resolve(mem.Addr(0x1000+id), name)
	return e
}

func TestReconcile_AssignsInTableOrderSkippingBusySlots(t *testing.T) {
	tbl := newMemTable(4)
	tbl.slots[0] = Slot{Type: TypeAutoHater, Status: StatusCurrentZone, SpawnID: 900, Name: "orc"}
	tbl.slots[2] = Slot{Type: TypeEmpty}

	set := tracking.NewSet()
	set.Add(resolved(5, "Gabn"))
	set.Add(resolved(7, "Xabn"))
	set.Add(tracking.New(9, 0)) // unresolved, must not be published

	changes, err := Reconcile(tbl, set)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if len(changes) != 2 {
		t.Fatalf("changes=%+v", changes)
	}
	if e, _ := set.Get(5); e.Slot != 1 {
		t.Fatalf("pet 5 slot=%d", e.Slot)
	}
	if e, _ := set.Get(7); e.Slot != 2 {
		t.Fatalf("pet 7 slot=%d", e.Slot)
	}
	if e, _ := set.Get(9); e.HasSlot() {
		t.Fatalf("unresolved pet published")
	}
	want := Claimed(5, "Gabn")
	if tbl.slots[1] != want {
		t.Fatalf("slot 1 = %+v", tbl.slots[1])
	}
	if tbl.slots[0].SpawnID != 900 {
		t.Fatalf("host slot clobbered")
	}
}

func TestReconcile_VerifyReleasesOverwrittenClaims(t *testing.T) {
	tbl := newMemTable(3)
	set := tracking.NewSet()
	set.Add(resolved(5, "Gabn"))
	if _, err := Reconcile(tbl, set); err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	// Host takes slot 0 for a real hater.
	tbl.slots[0] = Slot{Type: TypeAutoHater, Status: StatusCurrentZone, SpawnID: 77, Name: "gnoll"}

	changes, err := Reconcile(tbl, set)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if len(changes) != 2 || changes[0].Kind != ChangeReclaimed || changes[1].Kind != ChangeAssigned {
		t.Fatalf("changes=%+v", changes)
	}
	if changes[0].Cause != "overwritten" {
		t.Fatalf("cause=%s", changes[0].Cause)
	}
	if e, _ := set.Get(5); e.Slot != 1 {
		t.Fatalf("expected move to slot 1, got %d", e.Slot)
	}
	if tbl.slots[0].SpawnID != 77 {
		t.Fatalf("verify must not write the reclaimed slot")
	}
}

func TestReconcile_TableShrinkAndFaults(t *testing.T) {
	tbl := newMemTable(3)
	set := tracking.NewSet()
	set.Add(resolved(1, "a"))
	set.Add(resolved(2, "b"))
	set.Add(resolved(3, "c"))
	if _, err := Reconcile(tbl, set); err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	tbl.slots = tbl.slots[:2]
	tbl.broken[1] = true
	changes, err := Reconcile(tbl, set)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	causes := map[uint32]string{}
	for _, c := range changes {
		if c.Kind == ChangeReclaimed {
			causes[c.ID] = c.Cause
		}
	}
	if diff := cmp.Diff(map[uint32]string{3: "out_of_range"}, causes); diff != "" {
		t.Fatalf("causes (-want +got):\n%s", diff)
	}
	if e, _ := set.Get(1); e.Slot != 0 {
		t.Fatalf("pet 1 should keep slot 0, got %d", e.Slot)
	}
	if e, _ := set.Get(2); e.Slot != 1 {
		t.Fatalf("unreadable slot should stay claimed, pet 2 slot=%d", e.Slot)
	}
}

func TestReconcile_TransientFaultDoesNotDuplicateClaim(t *testing.T) {
	tbl := newMemTable(3)
	set := tracking.NewSet()
	set.Add(resolved(1, "a"))
	if _, err := Reconcile(tbl, set); err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	tbl.broken[0] = true
	changes, err := Reconcile(tbl, set)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if len(changes) != 0 {
		t.Fatalf("fault produced changes: %+v", changes)
	}
	delete(tbl.broken, 0)
	for i := 0; i < 5; i++ {
		if _, err := Reconcile(tbl, set); err != nil {
			t.Fatalf("reconcile: %v", err)
		}
	}

	var showing []int
	for i, s := range tbl.slots {
		if s.HeldBy(1) {
			showing = append(showing, i)
		}
	}
	if diff := cmp.Diff([]int{0}, showing); diff != "" {
		t.Fatalf("slots showing pet 1 (-want +got):\n%s", diff)
	}
	if e, _ := set.Get(1); e.Slot != 0 {
		t.Fatalf("tracked slot=%d", e.Slot)
	}

	slot, _ := set.ReleaseSlot(1)
	if wrote, err := Release(tbl, slot, 1); err != nil || !wrote {
		t.Fatalf("release: %v %v", wrote, err)
	}
	for i, s := range tbl.slots {
		if s.HeldBy(1) {
			t.Fatalf("slot %d still shows released pet", i)
		}
	}
}

func TestReconcile_AdoptsSlotStillShowingPet(t *testing.T) {
	tbl := newMemTable(3)
	tbl.slots[2] = Claimed(5, "Gabn")
	set := tracking.NewSet()
	set.Add(resolved(5, "Gabn"))

	changes, err := Reconcile(tbl, set)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if len(changes) != 1 || changes[0].Slot != 2 || changes[0].Cause != "adopted" {
		t.Fatalf("changes=%+v", changes)
	}
	if tbl.writes != 0 {
		t.Fatalf("adoption should not write, writes=%d", tbl.writes)
	}
}

func TestReconcile_Unavailable(t *testing.T) {
	set := tracking.NewSet()
	set.Add(resolved(5, "Gabn"))
	if _, err := Reconcile(nil, set); !errors.Is(err, ErrTableUnavailable) {
		t.Fatalf("nil table: %v", err)
	}
	if _, err := Reconcile(newMemTable(0), set); !errors.Is(err, ErrTableUnavailable) {
		t.Fatalf("empty table: %v", err)
	}
	if e, _ := set.Get(5); e.HasSlot() {
		t.Fatalf("state mutated on unavailable table")
	}
}

func TestRelease_OnlyTouchesOwnClaim(t *testing.T) {
	tbl := newMemTable(2)
	tbl.slots[0] = Claimed(5, "Gabn")
	tbl.slots[1] = Slot{Type: TypeSpecificNPC, Status: StatusCurrentZone, SpawnID: 6, Name: "host"}

	wrote, err := Release(tbl, 0, 5)
	if err != nil || !wrote {
		t.Fatalf("release own: %v %v", wrote, err)
	}
	if tbl.slots[0] != Default() {
		t.Fatalf("slot 0 = %+v", tbl.slots[0])
	}
	if !tbl.slots[0].IsDefault() || tbl.slots[0].Type != TypeAutoHater {
		t.Fatalf("release must restore the auto hater sentinel, not a blank slot")
	}

	wrote, err = Release(tbl, 1, 5)
	if err != nil || wrote {
		t.Fatalf("release foreign: %v %v", wrote, err)
	}
	if wrote, _ := Release(tbl, 9, 5); wrote {
		t.Fatalf("out of range release wrote")
	}
}

// Random host interference never lets two pets hold the same slot.
func TestReconcile_NoAliasingUnderChurn(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	tbl := newMemTable(5)
	set := tracking.NewSet()
	for id := uint32(1); id <= 8; id++ {
		set.Add(resolved(id, "pet"))
	}

	for round := 0; round < 500; round++ {
		i := rng.Intn(tbl.Len())
		switch rng.Intn(4) {
		case 0:
			tbl.slots[i] = Default()
		case 1:
			tbl.slots[i] = Slot{Type: TypeAutoHater, SpawnID: uint32(100 + rng.Intn(5))}
		case 2:
			tbl.slots[i] = Claimed(uint32(1+rng.Intn(8)), "spoof")
		}
		if _, err := Reconcile(tbl, set); err != nil {
			t.Fatalf("round %d: %v", round, err)
		}
		seen := map[int]uint32{}
		for _, e := range set.Entities() {
			if !e.HasSlot() {
				continue
			}
			if other, dup := seen[e.Slot]; dup {
				t.Fatalf("round %d: slot %d held by %d and %d", round, e.Slot, other, e.ID)
			}
			seen[e.Slot] = e.ID
			if !tbl.slots[e.Slot].HeldBy(e.ID) {
				t.Fatalf("round %d: pet %d claims slot %d but table has %+v", round, e.ID, e.Slot, tbl.slots[e.Slot])
			}
		}
	}
}
