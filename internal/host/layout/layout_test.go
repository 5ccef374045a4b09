package layout

import "testing"

func TestDefault_Validates(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default layout: %v", err)
	}
}

func TestValidate_RejectsOverflowingFields(t *testing.T) {
	l := Default()
	l.SlotName = l.SlotSize - 4
	if err := l.Validate(); err == nil {
		t.Fatalf("slot name past slot size accepted")
	}

	l = Default()
	l.SpawnNameLen = 0
	if err := l.Validate(); err == nil {
		t.Fatalf("zero name length accepted")
	}
}

func TestPCSize_CoversXTargetPointer(t *testing.T) {
	l := Default()
	if got := l.PCSize(); got != int(l.PCXTargetList)+4 {
		t.Fatalf("PCSize=%d", got)
	}
}
