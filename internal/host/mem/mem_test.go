package mem

import (
	"errors"
	"testing"
)

func TestArena_ReadWriteField(t *testing.T) {
	a := NewArena(0)
	p := a.Alloc(0x40)

	if err := WriteField[uint32](a, p, 0x10, 0xDEADBEEF); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := ReadField[uint32](a, p, 0x10)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got != 0xDEADBEEF {
		t.Fatalf("got 0x%X", got)
	}

	if err := WriteField[int32](a, p, 0x14, -7); err != nil {
		t.Fatalf("write int: %v", err)
	}
	neg, err := ReadField[int32](a, p, 0x14)
	if err != nil || neg != -7 {
		t.Fatalf("read int: %d %v", neg, err)
	}
}

func TestArena_FaultsOutsideAllocations(t *testing.T) {
	a := NewArena(0)
	p := a.Alloc(8)
	q := a.Alloc(8)

	cases := []struct {
		name string
		base Addr
		off  uint32
	}{
		{"null base", 0, 4},
		{"straddles end", p, 6},
		{"guard gap", p, 16},
		{"before first", p - 4, 0},
	}
	for _, tc := range cases {
		if _, err := ReadField[uint32](a, tc.base, tc.off); !errors.Is(err, ErrFault) {
			t.Fatalf("%s: expected fault, got %v", tc.name, err)
		}
	}

	if !a.Free(q) {
		t.Fatalf("free q")
	}
	if a.Free(q) {
		t.Fatalf("double free should report false")
	}
	if _, err := ReadField[uint32](a, q, 0); !errors.Is(err, ErrFault) {
		t.Fatalf("read after free should fault, got %v", err)
	}
	if _, err := ReadField[uint32](a, p, 0); err != nil {
		t.Fatalf("p should still be mapped: %v", err)
	}

	var fe *FaultError
	_, err := ReadField[uint32](a, q, 0)
	if !errors.As(err, &fe) || fe.Op != "read" || fe.Addr != q {
		t.Fatalf("unexpected fault detail: %#v", err)
	}
}

func TestCString_TruncatesAndTerminates(t *testing.T) {
	a := NewArena(0)
	p := a.Alloc(16)

	if err := WriteCString(a, p, 0, 8, "abcdefghijkl"); err != nil {
		t.Fatalf("write: %v", err)
	}
	s, err := ReadCString(a, p, 0, 8)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if s != "abcdefg" {
		t.Fatalf("got %q", s)
	}

	if err := WriteCString(a, p, 0, 8, "xy"); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	s, _ = ReadCString(a, p, 0, 8)
	if s != "xy" {
		t.Fatalf("stale bytes leaked: %q", s)
	}

	if err := WriteCString(a, p, 12, 8, "no"); !errors.Is(err, ErrFault) {
		t.Fatalf("expected fault past end, got %v", err)
	}
}
