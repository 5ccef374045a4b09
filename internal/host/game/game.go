// Package game reads and writes the host structures the add-ons care about.
// It is the only package besides mem that knows host addresses.
package game

import (
	"fmt"

	"addonhost/internal/host/layout"
	"addonhost/internal/host/mem"
	"addonhost/internal/multipet/xtarget"
)

// StateInGame is the host game state while a character is in the world.
const StateInGame = 5

// Env exposes the host's globals and lookup routines.
type Env interface {
	GameState() int
	LocalPlayer() mem.Addr
	LocalPC() mem.Addr
	SpawnManager() mem.Addr
	SpawnByID(manager mem.Addr, id uint32) mem.Addr
}

type Client struct {
	Mem    mem.Accessor
	Env    Env
	Layout layout.Layout
}

func NewClient(m mem.Accessor, env Env, l layout.Layout) *Client {
	return &Client{Mem: m, Env: env, Layout: l}
}

func (c *Client) GameState() int { return c.Env.GameState() }

func (c *Client) InGame() bool { return c.Env.GameState() == StateInGame }

func (c *Client) LocalPlayer() mem.Addr { return c.Env.LocalPlayer() }

func (c *Client) SpawnID(ref mem.Addr) (uint32, error) {
	return mem.ReadField[uint32](c.Mem, ref, c.Layout.SpawnID)
}

func (c *Client) SpawnName(ref mem.Addr) (string, error) {
	return mem.ReadCString(c.Mem, ref, c.Layout.SpawnName, c.Layout.SpawnNameLen)
}

func (c *Client) MasterID(ref mem.Addr) (uint32, error) {
	return mem.ReadField[uint32](c.Mem, ref, c.Layout.SpawnMasterID)
}

// PetID returns the pet shown in the host's pet window. Negative values mean
// "no pet" and are reported as 0.
func (c *Client) PetID(ref mem.Addr) (uint32, error) {
	v, err := mem.ReadField[int32](c.Mem, ref, c.Layout.SpawnPetID)
	if err != nil {
		return 0, err
	}
	if v < 0 {
		return 0, nil
	}
	return uint32(v), nil
}

func (c *Client) SetPetID(ref mem.Addr, id uint32) error {
	return mem.WriteField[int32](c.Mem, ref, c.Layout.SpawnPetID, int32(id))
}

// NextIDUpperBound reads the spawn manager's next id.
func (c *Client) NextIDUpperBound() (uint32, error) {
	mgr := c.Env.SpawnManager()
	if mgr == 0 {
		return 0, &mem.FaultError{Op: "read", Addr: 0, Len: 4}
	}
	return mem.ReadField[uint32](c.Mem, mgr, c.Layout.ManagerNextID)
}

func (c *Client) LookupByID(id uint32) (mem.Addr, bool) {
	mgr := c.Env.SpawnManager()
	if mgr == 0 || id == 0 {
		return 0, false
	}
	ref := c.Env.SpawnByID(mgr, id)
	return ref, ref != 0
}

// XTargets returns the local PC's extended target table.
func (c *Client) XTargets() (xtarget.Table, error) {
	pc := c.Env.LocalPC()
	if pc == 0 {
		return nil, xtarget.ErrTableUnavailable
	}
	list, err := mem.ReadPtr(c.Mem, pc, c.Layout.PCXTargetList)
	if err != nil || list == 0 {
		return nil, fmt.Errorf("%w: no list", xtarget.ErrTableUnavailable)
	}
	n, err := mem.ReadField[int32](c.Mem, list, c.Layout.XTargetLength)
	if err != nil || n <= 0 {
		return nil, fmt.Errorf("%w: length %d", xtarget.ErrTableUnavailable, n)
	}
	arr, err := mem.ReadPtr(c.Mem, list, c.Layout.XTargetArray)
	if err != nil || arr == 0 {
		return nil, fmt.Errorf("%w: no array", xtarget.ErrTableUnavailable)
	}
	return &table{m: c.Mem, l: c.Layout, base: arr, n: int(n)}, nil
}

type table struct {
	m    mem.Accessor
	l    layout.Layout
	base mem.Addr
	n    int
}

func (t *table) Len() int { return t.n }

func (t *table) slotAddr(i int) (mem.Addr, error) {
	if i < 0 || i >= t.n {
		return 0, fmt.Errorf("xtarget slot %d out of range [0,%d)", i, t.n)
	}
	return t.base + mem.Addr(uint32(i)*t.l.SlotSize), nil
}

func (t *table) Read(i int) (xtarget.Slot, error) {
	a, err := t.slotAddr(i)
	if err != nil {
		return xtarget.Slot{}, err
	}
	typ, err := mem.ReadField[uint32](t.m, a, t.l.SlotType)
	if err != nil {
		return xtarget.Slot{}, err
	}
	status, err := mem.ReadField[uint32](t.m, a, t.l.SlotStatus)
	if err != nil {
		return xtarget.Slot{}, err
	}
	id, err := mem.ReadField[uint32](t.m, a, t.l.SlotSpawnID)
	if err != nil {
		return xtarget.Slot{}, err
	}
	name, err := mem.ReadCString(t.m, a, t.l.SlotName, t.l.SlotNameLen)
	if err != nil {
		return xtarget.Slot{}, err
	}
	return xtarget.Slot{Type: xtarget.Type(typ), Status: xtarget.Status(status), SpawnID: id, Name: name}, nil
}

func (t *table) Write(i int, s xtarget.Slot) error {
	a, err := t.slotAddr(i)
	if err != nil {
		return err
	}
	if err := mem.WriteField(t.m, a, t.l.SlotType, uint32(s.Type)); err != nil {
		return err
	}
	if err := mem.WriteField(t.m, a, t.l.SlotStatus, uint32(s.Status)); err != nil {
		return err
	}
	if err := mem.WriteField(t.m, a, t.l.SlotSpawnID, s.SpawnID); err != nil {
		return err
	}
	return mem.WriteCString(t.m, a, t.l.SlotName, t.l.SlotNameLen, s.Name)
}
