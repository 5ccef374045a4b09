// Package framework owns the registered add-ons and fans host callbacks out
// to them. All callbacks arrive on the host thread.
package framework

import (
	"errors"
	"fmt"

	"addonhost/internal/hooks"
	"addonhost/internal/host/mem"
	"addonhost/internal/protocol"

	"github.com/rs/zerolog"
)

// Mod is one add-on.
type Mod interface {
	Name() string
	Initialize() error
	Shutdown()
	OnPulse()
	// OnIncomingMessage returns false to stop the message reaching the host.
	OnIncomingMessage(op protocol.Opcode, buf []byte) bool
}

type SpawnObserver interface {
	OnAddSpawn(ref mem.Addr)
	OnRemoveSpawn(ref mem.Addr)
}

type GameStateObserver interface {
	OnSetGameState(state int)
}

// Replacement signatures installed over the host entry points.
type (
	PulseFunc     = func()
	MessageFunc   = func(op protocol.Opcode, buf []byte) bool
	SpawnFunc     = func(ref mem.Addr)
	GameStateFunc = func(state int)
)

// Hook names.
const (
	HookProcessGameEvents  = "ProcessGameEvents"
	HookHandleWorldMessage = "HandleWorldMessage"
	HookAddSpawn           = "AddSpawn"
	HookRemoveSpawn        = "RemoveSpawn"
	HookSetGameState       = "SetGameState"
)

// EntryPoints identifies the host routines to intercept. Nil fields are skipped.
type EntryPoints struct {
	ProcessGameEvents  any
	HandleWorldMessage any
	AddSpawn           any
	RemoveSpawn        any
	SetGameState       any
}

var ErrAlreadyInitialized = errors.New("framework: already initialized")

type Framework struct {
	log    zerolog.Logger
	hooks  *hooks.Registry
	mods   []Mod
	active []Mod
	up     bool
}

func New(p hooks.Patcher, log zerolog.Logger) *Framework {
	return &Framework{log: log, hooks: hooks.NewRegistry(p, log)}
}

// Register adds m. It must be called before Initialize.
func (f *Framework) Register(m Mod) error {
	if f.up {
		return ErrAlreadyInitialized
	}
	if m == nil {
		return fmt.Errorf("framework: nil mod")
	}
	for _, have := range f.mods {
		if have.Name() == m.Name() {
			return fmt.Errorf("framework: mod %q registered twice", m.Name())
		}
	}
	f.mods = append(f.mods, m)
	return nil
}

// Initialize brings every mod up, then installs the hooks. A mod whose
// Initialize fails is logged and left out of dispatch.
func (f *Framework) Initialize(ep EntryPoints) error {
	if f.up {
		return ErrAlreadyInitialized
	}
	f.up = true
	for _, m := range f.mods {
		if err := m.Initialize(); err != nil {
			f.log.Error().Err(err).Str("mod", m.Name()).Msg("initialize failed, mod disabled")
			continue
		}
		f.active = append(f.active, m)
		f.log.Info().Str("mod", m.Name()).Msg("initialized")
	}

	var errs []error
	install := func(name string, target, replacement any) {
		if target == nil {
			return
		}
		if err := f.hooks.Install(name, target, replacement); err != nil {
			errs = append(errs, err)
		}
	}
	install(HookProcessGameEvents, ep.ProcessGameEvents, PulseFunc(f.Pulse))
	install(HookHandleWorldMessage, ep.HandleWorldMessage, MessageFunc(f.IncomingMessage))
	install(HookAddSpawn, ep.AddSpawn, SpawnFunc(f.AddSpawn))
	install(HookRemoveSpawn, ep.RemoveSpawn, SpawnFunc(f.RemoveSpawn))
	install(HookSetGameState, ep.SetGameState, GameStateFunc(f.SetGameState))
	return errors.Join(errs...)
}

// Shutdown removes every hook, then shuts mods down in reverse order.
func (f *Framework) Shutdown() error {
	if !f.up {
		return nil
	}
	err := f.hooks.RemoveAll()
	for i := len(f.active) - 1; i >= 0; i-- {
		f.active[i].Shutdown()
		f.log.Info().Str("mod", f.active[i].Name()).Msg("shut down")
	}
	f.active = nil
	f.up = false
	return err
}

// Active returns the names of mods that initialized successfully.
func (f *Framework) Active() []string {
	out := make([]string, len(f.active))
	for i, m := range f.active {
		out[i] = m.Name()
	}
	return out
}

func (f *Framework) Hooks() []string { return f.hooks.Installed() }

func (f *Framework) Pulse() {
	for _, m := range f.active {
		m.OnPulse()
	}
}

// IncomingMessage offers the message to every mod; it reaches the host only
// if all of them pass it.
func (f *Framework) IncomingMessage(op protocol.Opcode, buf []byte) bool {
	pass := true
	for _, m := range f.active {
		if !m.OnIncomingMessage(op, buf) {
			pass = false
		}
	}
	return pass
}

func (f *Framework) AddSpawn(ref mem.Addr) {
	for _, m := range f.active {
		if o, ok := m.(SpawnObserver); ok {
			o.OnAddSpawn(ref)
		}
	}
}

func (f *Framework) RemoveSpawn(ref mem.Addr) {
	for _, m := range f.active {
		if o, ok := m.(SpawnObserver); ok {
			o.OnRemoveSpawn(ref)
		}
	}
}

func (f *Framework) SetGameState(state int) {
	for _, m := range f.active {
		if o, ok := m.(GameStateObserver); ok {
			o.OnSetGameState(state)
		}
	}
}
