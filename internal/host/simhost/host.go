// Package simhost is an in-memory stand-in for the host process: a spawn
// manager, a local player with its extended target table, a game state and
// interceptable entry points. Addresses live in a mem.Arena, so stale
// references fault exactly like dangling host pointers.
//
// A Host is not safe for concurrent use. Run owns it; other goroutines reach
// it through Do.
package simhost

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"addonhost/internal/framework"
	"addonhost/internal/host/game"
	"addonhost/internal/host/layout"
	"addonhost/internal/host/mem"
	"addonhost/internal/multipet/xtarget"
	"addonhost/internal/protocol"
)

// Game states used by the simulator besides game.StateInGame.
const (
	StateCharSelect = 1
	StateZoning     = 253
)

type Options struct {
	Layout  layout.Layout
	Slots   int
	FirstID uint32
}

func DefaultOptions() Options {
	return Options{Layout: layout.Default(), Slots: 13, FirstID: 1}
}

// Delivered is a message that reached the host's own handler.
type Delivered struct {
	Op  protocol.Opcode
	Buf []byte
}

type Host struct {
	arena *mem.Arena
	l     layout.Layout
	p     *Patcher

	state  int
	mgr    mem.Addr
	player mem.Addr
	pc     mem.Addr
	list   mem.Addr
	array  mem.Addr
	slots  int
	spawns map[uint32]mem.Addr
	nextID uint32
	tick   uint64
	inbox  chan func()
	passed []Delivered
}

func New(opts Options) (*Host, error) {
	if err := opts.Layout.Validate(); err != nil {
		return nil, err
	}
	if opts.Slots <= 0 {
		return nil, fmt.Errorf("simhost: slots must be positive, got %d", opts.Slots)
	}
	if opts.FirstID == 0 {
		opts.FirstID = 1
	}
	h := &Host{
		arena:  mem.NewArena(0),
		l:      opts.Layout,
		p:      newPatcher(),
		state:  StateCharSelect,
		slots:  opts.Slots,
		spawns: make(map[uint32]mem.Addr),
		nextID: opts.FirstID,
		inbox:  make(chan func(), 64),
	}
	h.mgr = h.arena.Alloc(int(h.l.ManagerNextID) + 4)
	h.syncNextID()
	return h, nil
}

func (h *Host) Patcher() *Patcher     { return h.p }
func (h *Host) Memory() *mem.Arena    { return h.arena }
func (h *Host) Layout() layout.Layout { return h.l }
func (h *Host) Tick() uint64          { return h.tick }

// Client returns a game client bound to this host's memory.
func (h *Host) Client() *game.Client {
	return game.NewClient(h.arena, h, h.l)
}

func (h *Host) EntryPoints() framework.EntryPoints {
	return framework.EntryPoints{
		ProcessGameEvents:  TargetProcessGameEvents,
		HandleWorldMessage: TargetHandleWorldMessage,
		AddSpawn:           TargetAddSpawn,
		RemoveSpawn:        TargetRemoveSpawn,
		SetGameState:       TargetSetGameState,
	}
}

// game.Env

func (h *Host) GameState() int         { return h.state }
func (h *Host) LocalPlayer() mem.Addr  { return h.player }
func (h *Host) LocalPC() mem.Addr      { return h.pc }
func (h *Host) SpawnManager() mem.Addr { return h.mgr }

func (h *Host) SpawnByID(manager mem.Addr, id uint32) mem.Addr {
	if manager != h.mgr {
		return 0
	}
	return h.spawns[id]
}

func (h *Host) syncNextID() {
	_ = mem.WriteField(h.arena, h.mgr, h.l.ManagerNextID, h.nextID)
}

// SetNextID overwrites the manager's next id field without touching the
// allocator, which is how a corrupt value looks to readers.
func (h *Host) SetNextID(v uint32) {
	_ = mem.WriteField(h.arena, h.mgr, h.l.ManagerNextID, v)
}

func (h *Host) newSpawn(name string, master uint32) (uint32, mem.Addr) {
	id := h.nextID
	h.nextID++
	h.syncNextID()
	ref := h.arena.Alloc(int(h.l.SpawnSize))
	_ = mem.WriteField(h.arena, ref, h.l.SpawnID, id)
	_ = mem.WriteCString(h.arena, ref, h.l.SpawnName, h.l.SpawnNameLen, name)
	_ = mem.WriteField(h.arena, ref, h.l.SpawnMasterID, master)
	h.spawns[id] = ref
	return id, ref
}

// Spawn creates an entity and fires the add-spawn entry point.
func (h *Host) Spawn(name string, master uint32) uint32 {
	id, ref := h.newSpawn(name, master)
	h.p.spawn(TargetAddSpawn, ref)
	return id
}

// SpawnQuiet creates an entity without notifying anyone, like spawns that
// existed before the add-ons attached.
func (h *Host) SpawnQuiet(name string, master uint32) uint32 {
	id, _ := h.newSpawn(name, master)
	return id
}

// Despawn fires the remove-spawn entry point and then frees the entity.
func (h *Host) Despawn(id uint32) bool {
	ref, ok := h.spawns[id]
	if !ok {
		return false
	}
	h.p.spawn(TargetRemoveSpawn, ref)
	h.free(id, ref)
	return true
}

// DespawnQuiet frees the entity without notification.
func (h *Host) DespawnQuiet(id uint32) bool {
	ref, ok := h.spawns[id]
	if !ok {
		return false
	}
	h.free(id, ref)
	return true
}

func (h *Host) free(id uint32, ref mem.Addr) {
	delete(h.spawns, id)
	h.arena.Free(ref)
	if ref == h.player {
		h.player = 0
	}
}

func (h *Host) Ref(id uint32) (mem.Addr, bool) {
	ref, ok := h.spawns[id]
	return ref, ok
}

// SpawnIDs returns live ids in ascending order.
func (h *Host) SpawnIDs() []uint32 {
	out := make([]uint32, 0, len(h.spawns))
	for id := range h.spawns {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (h *Host) SetMasterID(id, master uint32) error {
	ref, ok := h.spawns[id]
	if !ok {
		return fmt.Errorf("simhost: no spawn %d", id)
	}
	return mem.WriteField(h.arena, ref, h.l.SpawnMasterID, master)
}

func (h *Host) Rename(id uint32, name string) error {
	ref, ok := h.spawns[id]
	if !ok {
		return fmt.Errorf("simhost: no spawn %d", id)
	}
	return mem.WriteCString(h.arena, ref, h.l.SpawnName, h.l.SpawnNameLen, name)
}

// LocalID returns the local player's spawn id, 0 when there is none.
func (h *Host) LocalID() uint32 {
	if h.player == 0 {
		return 0
	}
	id, _ := mem.ReadField[uint32](h.arena, h.player, h.l.SpawnID)
	return id
}

// PlayerName returns the local player's name, "" when there is none.
func (h *Host) PlayerName() string {
	if h.player == 0 {
		return ""
	}
	name, _ := mem.ReadCString(h.arena, h.player, h.l.SpawnName, h.l.SpawnNameLen)
	return name
}

// PetID returns the local player's pet window id.
func (h *Host) PetID() uint32 {
	if h.player == 0 {
		return 0
	}
	id, err := h.Client().PetID(h.player)
	if err != nil {
		return 0
	}
	return id
}

func (h *Host) SetPetID(id uint32) error {
	if h.player == 0 {
		return errors.New("simhost: no local player")
	}
	return h.Client().SetPetID(h.player, id)
}

func (h *Host) allocTable() {
	h.pc = h.arena.Alloc(h.l.PCSize())
	h.list = h.arena.Alloc(int(h.l.XTargetArray) + 4)
	h.array = h.arena.Alloc(h.slots * int(h.l.SlotSize))
	_ = mem.WriteField(h.arena, h.pc, h.l.PCXTargetList, h.list)
	_ = mem.WriteField(h.arena, h.list, h.l.XTargetLength, int32(h.slots))
	_ = mem.WriteField(h.arena, h.list, h.l.XTargetArray, h.array)
	h.ResetSlots()
}

func (h *Host) freeTable() {
	for _, a := range []mem.Addr{h.array, h.list, h.pc} {
		if a != 0 {
			h.arena.Free(a)
		}
	}
	h.pc, h.list, h.array = 0, 0, 0
}

// ResetSlots puts every extended target slot back to the default state.
func (h *Host) ResetSlots() {
	tbl, err := h.table()
	if err != nil {
		return
	}
	for i := 0; i < tbl.Len(); i++ {
		_ = tbl.Write(i, xtarget.Default())
	}
}

// EnterWorld creates the local player and its target table and switches to
// the in-game state. It returns the player's spawn id.
func (h *Host) EnterWorld(name string) uint32 {
	id, ref := h.newSpawn(name, 0)
	h.player = ref
	_ = mem.WriteField[int32](h.arena, ref, h.l.SpawnPetID, 0)
	h.allocTable()
	h.p.spawn(TargetAddSpawn, ref)
	h.SetGameState(game.StateInGame)
	return id
}

// Zone tears the zone down the way the host does on a zone change: every
// spawn is freed without notification and the local player comes back with a
// new id. The game state is left untouched.
func (h *Host) Zone(name string) uint32 {
	for _, id := range h.SpawnIDs() {
		h.free(id, h.spawns[id])
	}
	h.freeTable()
	id, ref := h.newSpawn(name, 0)
	h.player = ref
	h.allocTable()
	return id
}

// SetGameState changes the game state and fires the entry point.
func (h *Host) SetGameState(state int) {
	h.state = state
	h.p.gameState(state)
}

// Deliver runs an inbound message through the interception chain and reports
// whether it reached the host.
func (h *Host) Deliver(op protocol.Opcode, buf []byte) bool {
	if !h.p.message(op, buf) {
		return false
	}
	h.passed = append(h.passed, Delivered{Op: op, Buf: append([]byte(nil), buf...)})
	return true
}

// Passed returns the messages that reached the host.
func (h *Host) Passed() []Delivered {
	return append([]Delivered(nil), h.passed...)
}

// ServerXTarget delivers an XTargetResponse and, if it passes, fills the
// listed auto hater slots the way the host would.
func (h *Host) ServerXTarget(entries []protocol.XTargetEntry) bool {
	buf := protocol.EncodeXTargetResponse(protocol.XTargetResponse{Max: uint32(h.slots), Entries: entries})
	if !h.Deliver(protocol.OpXTargetResponse, buf) {
		return false
	}
	for _, e := range entries {
		_ = h.WriteSlot(int(e.Slot), xtarget.Slot{Type: xtarget.TypeAutoHater, Status: xtarget.Status(e.Status), SpawnID: e.SpawnID, Name: e.Name})
	}
	return true
}

func (h *Host) table() (xtarget.Table, error) {
	return h.Client().XTargets()
}

// Slot reads extended target slot i.
func (h *Host) Slot(i int) (xtarget.Slot, error) {
	tbl, err := h.table()
	if err != nil {
		return xtarget.Slot{}, err
	}
	return tbl.Read(i)
}

// WriteSlot overwrites slot i from the host side.
func (h *Host) WriteSlot(i int, s xtarget.Slot) error {
	tbl, err := h.table()
	if err != nil {
		return err
	}
	return tbl.Write(i, s)
}

// Slots returns the whole table, nil when there is none.
func (h *Host) Slots() []xtarget.Slot {
	tbl, err := h.table()
	if err != nil {
		return nil
	}
	out := make([]xtarget.Slot, 0, tbl.Len())
	for i := 0; i < tbl.Len(); i++ {
		s, err := tbl.Read(i)
		if err != nil {
			s = xtarget.Slot{}
		}
		out = append(out, s)
	}
	return out
}

// Pulse runs one host frame.
func (h *Host) Pulse() {
	h.tick++
	h.p.pulse()
}

// Run pulses the host at hz until ctx is done, draining Do requests between
// frames. onTick, if set, runs after every frame.
func (h *Host) Run(ctx context.Context, hz int, onTick func(tick uint64)) error {
	if hz <= 0 {
		return fmt.Errorf("simhost: tick rate must be positive, got %d", hz)
	}
	ticker := time.NewTicker(time.Second / time.Duration(hz))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case fn := <-h.inbox:
			fn()
		case <-ticker.C:
			h.Pulse()
			if onTick != nil {
				onTick(h.tick)
			}
		}
	}
}

// Do runs fn on the loop goroutine and waits for it to finish.
func (h *Host) Do(ctx context.Context, fn func(h *Host)) error {
	done := make(chan struct{})
	select {
	case h.inbox <- func() { fn(h); close(done) }:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
