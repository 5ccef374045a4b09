package tracking

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestSet_AddDedupesByID(t *testing.T) {
	s := NewSet()
	if !s.Add(New(5, 12)) {
		t.Fatalf("first add rejected")
	}
	if s.Add(New(5, 10)) {
		t.Fatalf("duplicate id accepted")
	}
	if s.Add(New(0, 1)) {
		t.Fatalf("zero id accepted")
	}
	if s.Len() != 1 {
		t.Fatalf("len=%d", s.Len())
	}
	got, _ := s.Get(5)
	if got.OwnerTag != 12 {
		t.Fatalf("first add should win, got %+v", got)
	}
}

func TestSet_ReplaceKeepsFirstDuplicate(t *testing.T) {
	s := NewSet()
	s.Add(New(1, 0))
	s.Replace([]Entity{New(7, 1), New(9, 2), New(7, 3)})
	if diff := cmp.Diff([]uint32{7, 9}, s.IDs()); diff != "" {
		t.Fatalf("ids (-want +got):\n%s", diff)
	}
	e, _ := s.Get(7)
	if e.OwnerTag != 1 {
		t.Fatalf("owner tag = %d", e.OwnerTag)
	}
}

func TestSet_ClaimRejectsAliasing(t *testing.T) {
	s := NewSet()
	a := New(1, 0)
	a.Resolve(0x1000, "a")
	b := New(2, 0)
	b.Resolve(0x2000, "b")
	s.Add(a)
	s.Add(b)

	if err := s.Claim(1, 3); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := s.Claim(2, 3); !errors.Is(err, ErrSlotTaken) {
		t.Fatalf("expected ErrSlotTaken, got %v", err)
	}
	if err := s.Claim(1, 3); err != nil {
		t.Fatalf("re-claim by owner should be a no-op: %v", err)
	}
	if owner, ok := s.SlotOwner(3); !ok || owner != 1 {
		t.Fatalf("slot owner = %d %v", owner, ok)
	}

	slot, ok := s.ReleaseSlot(1)
	if !ok || slot != 3 {
		t.Fatalf("release = %d %v", slot, ok)
	}
	if err := s.Claim(2, 3); err != nil {
		t.Fatalf("claim after release: %v", err)
	}
}

func TestSet_AddDropsTakenSlot(t *testing.T) {
	s := NewSet()
	a := New(1, 0)
	a.Resolve(0x1000, "a")
	s.Add(a)
	_ = s.Claim(1, 0)

	b := New(2, 0)
	b.Slot = 0
	s.Add(b)
	got, _ := s.Get(2)
	if got.HasSlot() {
		t.Fatalf("alias slipped in through Add: %+v", got)
	}
}

func TestSet_EachCannotMoveSlots(t *testing.T) {
	s := NewSet()
	a := New(1, 0)
	a.Resolve(0x1000, "a")
	s.Add(a)
	_ = s.Claim(1, 2)

	s.Each(func(e *Entity) { e.Slot = 5; e.Name = "renamed" })
	got, _ := s.Get(1)
	if got.Slot != 2 || got.Name != "renamed" {
		t.Fatalf("got %+v", got)
	}

	s.Update(1, func(e *Entity) { e.Unresolve() })
	got, _ = s.Get(1)
	if got.HasSlot() || got.Resolved() {
		t.Fatalf("unresolved entity kept slot: %+v", got)
	}
	if got.Name != "renamed" {
		t.Fatalf("cached name should survive unresolve")
	}
}

func TestTruncateName(t *testing.T) {
	long := strings.Repeat("x", 100)
	if got := TruncateName(long); len(got) != NameLen-1 {
		t.Fatalf("len=%d", len(got))
	}
	if got := TruncateName("Fido"); got != "Fido" {
		t.Fatalf("got %q", got)
	}
}
