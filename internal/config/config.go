// Package config loads the add-on host configuration file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"addonhost/internal/host/layout"
	"addonhost/internal/logging"
	"addonhost/internal/multipet"
)

type Config struct {
	DataDir string `yaml:"data_dir"`

	Log      logging.FileSettings `yaml:"log"`
	Journal  JournalConfig        `yaml:"journal"`
	Index    IndexConfig          `yaml:"index"`
	Snapshot SnapshotConfig       `yaml:"snapshot"`
	HTTP     HTTPConfig           `yaml:"http"`

	MultiPet multipet.Config `yaml:"multipet"`
	Layout   layout.Layout   `yaml:"layout"`
	Sim      SimConfig       `yaml:"sim"`
}

type JournalConfig struct {
	Enabled bool `yaml:"enabled"`
}

type IndexConfig struct {
	Enabled bool `yaml:"enabled"`
	// Path defaults to <data_dir>/index/events.db.
	Path    string `yaml:"path"`
}

type SnapshotConfig struct {
	// Dir defaults to <data_dir>/snapshots.
	Dir        string `yaml:"dir"`
	OnShutdown bool   `yaml:"on_shutdown"`
}

type HTTPConfig struct {
	// Addr serves /metrics and the observer endpoints. Empty disables it.
	Addr string `yaml:"addr"`
}

type SimConfig struct {
	TickRateHz        int           `yaml:"tick_rate_hz"`
	Slots             int           `yaml:"xtarget_slots"`
	// PublishEveryTicks is how often observers and gauges get a fresh state.
	PublishEveryTicks int           `yaml:"publish_every_ticks"`
	Player            string        `yaml:"player"`
	Scenario          []ScenarioPet `yaml:"scenario"`
}

// ScenarioPet is a pet the simulator summons for the local player.
type ScenarioPet struct {
	Name          string `yaml:"name"`
	AtTick        uint64 `yaml:"at_tick"`
	OwnerTag      uint32 `yaml:"owner_tag"`
	// Primary puts the pet in the host's pet window.
	Primary       bool   `yaml:"primary"`
	// Unmarked spawns carry no master id; only the server pet list reveals them.
	Unmarked      bool   `yaml:"unmarked"`
	DespawnAtTick uint64 `yaml:"despawn_at_tick"`
}

func Defaults() Config {
	return Config{
		DataDir:  "data",
		Journal:  JournalConfig{Enabled: true},
		Index:    IndexConfig{Enabled: true},
		Snapshot: SnapshotConfig{OnShutdown: true},
		HTTP:     HTTPConfig{Addr: "127.0.0.1:8085"},
		MultiPet: multipet.DefaultConfig(),
		Layout:   layout.Default(),
		Sim: SimConfig{
			TickRateHz:        30,
			Slots:             13,
			PublishEveryTicks: 15,
			Player:            "Soandso",
		},
	}
}

func Load(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg, err := Parse(raw)
	if err != nil {
		return cfg, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return cfg, nil
}

// Parse decodes raw over Defaults. Unknown keys are errors.
func Parse(raw []byte) (Config, error) {
	cfg := Defaults()
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, err
	}
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyDefaults(c *Config) {
	d := Defaults()
	if c.DataDir == "" {
		c.DataDir = d.DataDir
	}
	if c.Index.Path == "" {
		c.Index.Path = filepath.Join(c.DataDir, "index", "events.db")
	}
	if c.Snapshot.Dir == "" {
		c.Snapshot.Dir = filepath.Join(c.DataDir, "snapshots")
	}
	if c.MultiPet.RescanEveryTicks <= 0 {
		c.MultiPet.RescanEveryTicks = d.MultiPet.RescanEveryTicks
	}
	if c.Sim.TickRateHz <= 0 {
		c.Sim.TickRateHz = d.Sim.TickRateHz
	}
	if c.Sim.PublishEveryTicks <= 0 {
		c.Sim.PublishEveryTicks = d.Sim.PublishEveryTicks
	}
	if c.Sim.Player == "" {
		c.Sim.Player = d.Sim.Player
	}
}

// WithDataDir moves the data directory. Paths that were derived from the old
// one follow it; explicitly configured paths are kept.
func (c Config) WithDataDir(dir string) Config {
	old := c.DataDir
	c.DataDir = dir
	if c.Index.Path == filepath.Join(old, "index", "events.db") {
		c.Index.Path = ""
	}
	if c.Snapshot.Dir == filepath.Join(old, "snapshots") {
		c.Snapshot.Dir = ""
	}
	applyDefaults(&c)
	return c
}

func (c Config) Validate() error {
	if err := c.Layout.Validate(); err != nil {
		return err
	}
	if c.Sim.TickRateHz > 1000 {
		return fmt.Errorf("sim.tick_rate_hz %d out of range (1..1000)", c.Sim.TickRateHz)
	}
	if c.Sim.Slots < 0 || c.Sim.Slots > 64 {
		return fmt.Errorf("sim.xtarget_slots %d out of range (0..64)", c.Sim.Slots)
	}
	b := c.MultiPet.Bounds
	if b.Fallback == 0 || b.Ceiling == 0 || b.Fallback > b.Ceiling {
		return fmt.Errorf("multipet.directory: fallback %d must be in 1..ceiling (%d)", b.Fallback, b.Ceiling)
	}
	for i, p := range c.Sim.Scenario {
		if p.Name == "" {
			return fmt.Errorf("sim.scenario[%d]: name is required", i)
		}
		if p.DespawnAtTick != 0 && p.DespawnAtTick <= p.AtTick {
			return fmt.Errorf("sim.scenario[%d]: despawn_at_tick must follow at_tick", i)
		}
	}
	return nil
}
