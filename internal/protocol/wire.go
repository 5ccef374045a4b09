package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Opcode identifies an intercepted host message.
type Opcode uint32

const (
	OpPetList         Opcode = 0x1339
	OpXTargetResponse Opcode = 0x4D59
)

func (o Opcode) String() string {
	switch o {
	case OpPetList:
		return "OP_PetList"
	case OpXTargetResponse:
		return "OP_XTargetResponse"
	default:
		return fmt.Sprintf("op(0x%04X)", uint32(o))
	}
}

// PetEntry is one record of an OP_PetList message.
type PetEntry struct {
	ID       uint32 `json:"id"`
	OwnerTag uint32 `json:"owner_tag"`
}

const (
	petListHeaderLen = 4
	petEntryLen      = 8
)

// DecodePetList parses {count u32, (id u32, owner_tag u32)[count]}, little endian.
// Trailing bytes beyond the declared entries are ignored.
func DecodePetList(buf []byte) ([]PetEntry, error) {
	if len(buf) < petListHeaderLen {
		return nil, &MalformedError{Op: OpPetList, Size: len(buf), Reason: "short header"}
	}
	count := binary.LittleEndian.Uint32(buf)
	need := uint64(petListHeaderLen) + uint64(count)*petEntryLen
	if uint64(len(buf)) < need {
		return nil, &MalformedError{Op: OpPetList, Size: len(buf), Reason: fmt.Sprintf("count %d needs %d bytes", count, need)}
	}
	out := make([]PetEntry, count)
	off := petListHeaderLen
	for i := range out {
		out[i].ID = binary.LittleEndian.Uint32(buf[off:])
		out[i].OwnerTag = binary.LittleEndian.Uint32(buf[off+4:])
		off += petEntryLen
	}
	return out, nil
}

func EncodePetList(entries []PetEntry) []byte {
	buf := make([]byte, petListHeaderLen+len(entries)*petEntryLen)
	binary.LittleEndian.PutUint32(buf, uint32(len(entries)))
	off := petListHeaderLen
	for _, e := range entries {
		binary.LittleEndian.PutUint32(buf[off:], e.ID)
		binary.LittleEndian.PutUint32(buf[off+4:], e.OwnerTag)
		off += petEntryLen
	}
	return buf
}

// XTargetEntry is one slot update announced by the host.
type XTargetEntry struct {
	Slot    uint32
	Status  uint8
	SpawnID uint32
	Name    string
}

type XTargetResponse struct {
	Max     uint32
	Entries []XTargetEntry
}

const (
	xtargetHeaderLen = 8
	// slot u32 + status u8 + spawn id u32; the name follows.
	xtargetFixedLen = 9
)

// DecodeXTargetResponse parses {max u32, count u32, (slot u32, status u8,
// spawn_id u32, name cstring)[]}. Entries that do not fit are dropped, so a
// truncated message yields the complete entries that precede the cut.
func DecodeXTargetResponse(buf []byte) (XTargetResponse, error) {
	if len(buf) < xtargetHeaderLen {
		return XTargetResponse{}, &MalformedError{Op: OpXTargetResponse, Size: len(buf), Reason: "short header"}
	}
	resp := XTargetResponse{Max: binary.LittleEndian.Uint32(buf)}
	count := binary.LittleEndian.Uint32(buf[4:])
	off := xtargetHeaderLen
	for i := uint32(0); i < count; i++ {
		if off+xtargetFixedLen > len(buf) {
			break
		}
		e := XTargetEntry{
			Slot:    binary.LittleEndian.Uint32(buf[off:]),
			Status:  buf[off+4],
			SpawnID: binary.LittleEndian.Uint32(buf[off+5:]),
		}
		off += xtargetFixedLen
		rest := buf[off:]
		if n := bytes.IndexByte(rest, 0); n >= 0 {
			e.Name = string(rest[:n])
			off += n + 1
		} else {
			e.Name = string(rest)
			off = len(buf)
		}
		resp.Entries = append(resp.Entries, e)
	}
	return resp, nil
}

func EncodeXTargetResponse(r XTargetResponse) []byte {
	var b bytes.Buffer
	var word [4]byte
	put := func(v uint32) {
		binary.LittleEndian.PutUint32(word[:], v)
		b.Write(word[:])
	}
	put(r.Max)
	put(uint32(len(r.Entries)))
	for _, e := range r.Entries {
		put(e.Slot)
		b.WriteByte(e.Status)
		put(e.SpawnID)
		b.WriteString(e.Name)
		b.WriteByte(0)
	}
	return b.Bytes()
}
