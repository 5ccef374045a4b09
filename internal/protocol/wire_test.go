package protocol

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestDecodePetList(t *testing.T) {
	in := []PetEntry{{ID: 12, OwnerTag: 13}, {ID: 40, OwnerTag: 13}}
	buf := EncodePetList(in)
	got, err := DecodePetList(append(buf, 0xAA, 0xBB))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if diff := cmp.Diff(in, got); diff != "" {
		t.Fatalf("entries (-want +got):\n%s", diff)
	}

	empty, err := DecodePetList(EncodePetList(nil))
	if err != nil || len(empty) != 0 {
		t.Fatalf("empty list: %v %v", empty, err)
	}
}

func TestDecodePetList_Malformed(t *testing.T) {
	huge := make([]byte, 12)
	binary.LittleEndian.PutUint32(huge, 0xFFFFFFFF)

	cases := map[string][]byte{
		"nil":        nil,
		"short":      {1, 0, 0},
		"truncated":  EncodePetList([]PetEntry{{ID: 1}, {ID: 2}})[:15],
		"huge count": huge,
	}
	for name, buf := range cases {
		if _, err := DecodePetList(buf); !errors.Is(err, ErrMalformedMessage) {
			t.Fatalf("%s: err=%v", name, err)
		}
	}
}

func TestDecodeXTargetResponse(t *testing.T) {
	in := XTargetResponse{Max: 5, Entries: []XTargetEntry{
		{Slot: 0, Status: 1, SpawnID: 300, Name: "a gnoll"},
		{Slot: 3, Status: 0, SpawnID: 0, Name: ""},
	}}
	got, err := DecodeXTargetResponse(EncodeXTargetResponse(in))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if diff := cmp.Diff(in, got); diff != "" {
		t.Fatalf("response (-want +got):\n%s", diff)
	}
}

func TestDecodeXTargetResponse_TruncatedTail(t *testing.T) {
	buf := EncodeXTargetResponse(XTargetResponse{Max: 5, Entries: []XTargetEntry{
		{Slot: 1, SpawnID: 7, Name: "x"},
		{Slot: 2, SpawnID: 8, Name: "y"},
	}})
	// Cut inside the second entry's fixed part.
	got, err := DecodeXTargetResponse(buf[:8+11+5])
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got.Entries) != 1 || got.Entries[0].Slot != 1 {
		t.Fatalf("entries=%+v", got.Entries)
	}

	if _, err := DecodeXTargetResponse([]byte{1, 2, 3}); !errors.Is(err, ErrMalformedMessage) {
		t.Fatalf("short header: %v", err)
	}
}
