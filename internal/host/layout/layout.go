// Package layout holds the field offsets of the host structures the add-ons read.
// Offsets are configuration, not code: a host build change only needs a new
// layout block in the config file.
package layout

import "fmt"

type Layout struct {
	// Spawn (PlayerClient) record.
	SpawnSize     uint32 `yaml:"spawn_size"`
	SpawnName     uint32 `yaml:"spawn_name"`
	SpawnNameLen  int    `yaml:"spawn_name_len"`
	SpawnID       uint32 `yaml:"spawn_id"`
	SpawnPetID    uint32 `yaml:"spawn_pet_id"`
	SpawnMasterID uint32 `yaml:"spawn_master_id"`

	// Spawn manager: next id that will be assigned.
	ManagerNextID uint32 `yaml:"manager_next_id"`

	// Local PC -> extended target list.
	PCXTargetList uint32 `yaml:"pc_xtarget_list"`
	XTargetLength uint32 `yaml:"xtarget_length"`
	XTargetArray  uint32 `yaml:"xtarget_array"`

	// Extended target slot record.
	SlotSize    uint32 `yaml:"slot_size"`
	SlotType    uint32 `yaml:"slot_type"`
	SlotStatus  uint32 `yaml:"slot_status"`
	SlotSpawnID uint32 `yaml:"slot_spawn_id"`
	SlotName    uint32 `yaml:"slot_name"`
	SlotNameLen int    `yaml:"slot_name_len"`
}

func Default() Layout {
	return Layout{
		SpawnSize:     0x400,
		SpawnName:     0x0A4,
		SpawnNameLen:  64,
		SpawnID:       0x148,
		SpawnPetID:    0x2B4,
		SpawnMasterID: 0x38C,

		ManagerNextID: 0x04,

		PCXTargetList: 0x31B8,
		XTargetLength: 0x04,
		XTargetArray:  0x08,

		SlotSize:    0x4C,
		SlotType:    0x00,
		SlotStatus:  0x04,
		SlotSpawnID: 0x08,
		SlotName:    0x0C,
		SlotNameLen: 64,
	}
}

// PCSize is the smallest local PC allocation that still covers the xtarget pointer.
func (l Layout) PCSize() int { return int(l.PCXTargetList) + 4 }

func (l Layout) Validate() error {
	if l.SpawnNameLen <= 0 || l.SlotNameLen <= 0 {
		return fmt.Errorf("layout: name lengths must be positive")
	}
	for name, off := range map[string]uint32{
		"spawn_name":      l.SpawnName + uint32(l.SpawnNameLen),
		"spawn_id":        l.SpawnID + 4,
		"spawn_pet_id":    l.SpawnPetID + 4,
		"spawn_master_id": l.SpawnMasterID + 4,
	} {
		if off > l.SpawnSize {
			return fmt.Errorf("layout: %s exceeds spawn_size 0x%X", name, l.SpawnSize)
		}
	}
	for name, off := range map[string]uint32{
		"slot_type":     l.SlotType + 4,
		"slot_status":   l.SlotStatus + 4,
		"slot_spawn_id": l.SlotSpawnID + 4,
		"slot_name":     l.SlotName + uint32(l.SlotNameLen),
	} {
		if off > l.SlotSize {
			return fmt.Errorf("layout: %s exceeds slot_size 0x%X", name, l.SlotSize)
		}
	}
	return nil
}
