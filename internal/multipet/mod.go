// Package multipet tracks every pet owned by the local player and publishes
// the ones the host's pet window cannot show into the extended target table.
//
// The host only knows about one pet (the "primary", shown in the pet window).
// Secondary pets are found by scanning spawns whose master id is the local
// player, or from the server's OP_PetList message, and each resolved one is
// given an extended target slot so it can be targeted and watched.
//
// All methods run on the host thread. Mod is not safe for concurrent use;
// consumers on other goroutines get copies through State and the EventSink.
package multipet

import (
	"addonhost/internal/commands"
	"addonhost/internal/host/mem"
	"addonhost/internal/multipet/directory"
	"addonhost/internal/multipet/tracking"
	"addonhost/internal/multipet/xtarget"

	"github.com/rs/zerolog"
)

// Host is the slice of the game client the tracker needs. *game.Client
// satisfies it.
type Host interface {
	directory.Source

	InGame() bool
	LocalPlayer() mem.Addr
	SpawnID(ref mem.Addr) (uint32, error)
	SpawnName(ref mem.Addr) (string, error)
	MasterID(ref mem.Addr) (uint32, error)
	PetID(ref mem.Addr) (uint32, error)
	SetPetID(ref mem.Addr, id uint32) error
	XTargets() (xtarget.Table, error)
}

type Config struct {
	// RescanEveryTicks is how often the marker scan and resolution retry run.
	RescanEveryTicks int              `yaml:"rescan_every_ticks"`
	Bounds           directory.Bounds `yaml:"directory"`
}

func DefaultConfig() Config {
	return Config{RescanEveryTicks: 120, Bounds: directory.DefaultBounds()}
}

// StateDumper persists a state snapshot and returns where it went.
type StateDumper interface {
	Dump(s State) (string, error)
}

type Options struct {
	Config   Config
	Logger   zerolog.Logger
	Sink     EventSink
	Commands *commands.Registry
	Dumper   StateDumper
}

type Mod struct {
	host   Host
	cfg    Config
	log    zerolog.Logger
	sink   EventSink
	cmds   *commands.Registry
	dumper StateDumper

	dir  *directory.Directory
	pets *tracking.Set

	ownerID      uint32
	needsResolve bool
	scanCounter  int
	tick         uint64
	session      string
}

func New(h Host, opts Options) *Mod {
	cfg := opts.Config
	def := DefaultConfig()
	if cfg.RescanEveryTicks <= 0 {
		cfg.RescanEveryTicks = def.RescanEveryTicks
	}
	if cfg.Bounds.Ceiling == 0 {
		cfg.Bounds.Ceiling = def.Bounds.Ceiling
	}
	if cfg.Bounds.Fallback == 0 {
		cfg.Bounds.Fallback = def.Bounds.Fallback
	}
	sink := opts.Sink
	if sink == nil {
		sink = discard{}
	}
	return &Mod{
		host:   h,
		cfg:    cfg,
		log:    opts.Logger.With().Str("component", "multipet").Logger(),
		sink:   sink,
		cmds:   opts.Commands,
		dumper: opts.Dumper,
		dir:    directory.New(),
		pets:   tracking.NewSet(),
	}
}

func (m *Mod) Name() string { return "MultiPet" }

func (m *Mod) Initialize() error {
	if m.cmds != nil {
		if err := m.registerCommands(); err != nil {
			return err
		}
	}
	m.log.Info().Int("rescan_every_ticks", m.cfg.RescanEveryTicks).Msg("initialized")
	return nil
}

func (m *Mod) Shutdown() {
	m.reset("shutdown")
	if m.cmds != nil {
		m.unregisterCommands()
	}
	m.log.Info().Msg("shut down")
}

// Tracked returns a copy of the tracked secondary pets in insertion order.
func (m *Mod) Tracked() []tracking.Entity { return m.pets.Entities() }

// OwnerID is the local player id the current session is bound to.
func (m *Mod) OwnerID() uint32 { return m.ownerID }

func (m *Mod) NeedsResolve() bool { return m.needsResolve }

func (m *Mod) Session() string { return m.session }
