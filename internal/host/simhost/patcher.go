package simhost

import (
	"fmt"

	"addonhost/internal/framework"
	"addonhost/internal/host/mem"
	"addonhost/internal/protocol"
)

// Target names a simulated host routine that can be intercepted.
type Target string

const (
	TargetProcessGameEvents  Target = "sim.ProcessGameEvents"
	TargetHandleWorldMessage Target = "sim.HandleWorldMessage"
	TargetAddSpawn           Target = "sim.AddSpawn"
	TargetRemoveSpawn        Target = "sim.RemoveSpawn"
	TargetSetGameState       Target = "sim.SetGameState"
)

// Patcher swaps simulated routines for replacements, standing in for the
// in-process detour library.
type Patcher struct {
	detours map[Target]any
}

func newPatcher() *Patcher {
	return &Patcher{detours: make(map[Target]any)}
}

func (p *Patcher) Patch(target, replacement any) error {
	t, ok := target.(Target)
	if !ok {
		return fmt.Errorf("simhost: unknown target %v", target)
	}
	if _, busy := p.detours[t]; busy {
		return fmt.Errorf("simhost: %s already patched", t)
	}
	var fits bool
	switch t {
	case TargetProcessGameEvents:
		_, fits = replacement.(framework.PulseFunc)
	case TargetHandleWorldMessage:
		_, fits = replacement.(framework.MessageFunc)
	case TargetAddSpawn, TargetRemoveSpawn:
		_, fits = replacement.(framework.SpawnFunc)
	case TargetSetGameState:
		_, fits = replacement.(framework.GameStateFunc)
	default:
		return fmt.Errorf("simhost: unknown target %s", t)
	}
	if !fits {
		return fmt.Errorf("simhost: replacement %T does not match %s", replacement, t)
	}
	p.detours[t] = replacement
	return nil
}

func (p *Patcher) Unpatch(target, _ any) error {
	t, ok := target.(Target)
	if !ok {
		return fmt.Errorf("simhost: unknown target %v", target)
	}
	if _, busy := p.detours[t]; !busy {
		return fmt.Errorf("simhost: %s not patched", t)
	}
	delete(p.detours, t)
	return nil
}

// Patched reports whether t is currently intercepted.
func (p *Patcher) Patched(t Target) bool {
	_, ok := p.detours[t]
	return ok
}

func (p *Patcher) pulse() {
	if fn, ok := p.detours[TargetProcessGameEvents].(framework.PulseFunc); ok {
		fn()
	}
}

// message returns whether the host should process the message.
func (p *Patcher) message(op protocol.Opcode, buf []byte) bool {
	if fn, ok := p.detours[TargetHandleWorldMessage].(framework.MessageFunc); ok {
		return fn(op, buf)
	}
	return true
}

func (p *Patcher) spawn(t Target, ref mem.Addr) {
	if fn, ok := p.detours[t].(framework.SpawnFunc); ok {
		fn(ref)
	}
}

func (p *Patcher) gameState(state int) {
	if fn, ok := p.detours[TargetSetGameState].(framework.GameStateFunc); ok {
		fn(state)
	}
}
