package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"addonhost/internal/host/layout"
	"addonhost/internal/multipet"
)

func TestLoad_ShippedConfig(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "configs", "addonhost.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Layout != layout.Default() {
		t.Fatalf("shipped layout drifted from defaults: %+v", cfg.Layout)
	}
	if cfg.MultiPet != multipet.DefaultConfig() {
		t.Fatalf("multipet=%+v", cfg.MultiPet)
	}
	if len(cfg.Sim.Scenario) != 4 || !cfg.Sim.Scenario[0].Primary || !cfg.Sim.Scenario[2].Unmarked {
		t.Fatalf("scenario=%+v", cfg.Sim.Scenario)
	}
	if cfg.Index.Path != filepath.Join("data", "index", "events.db") {
		t.Fatalf("index path=%s", cfg.Index.Path)
	}
	if cfg.Snapshot.Dir != filepath.Join("data", "snapshots") {
		t.Fatalf("snapshot dir=%s", cfg.Snapshot.Dir)
	}
}

func TestParse_EmptyIsDefaults(t *testing.T) {
	cfg, err := Parse(nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	d := Defaults()
	if cfg.Sim.TickRateHz != d.Sim.TickRateHz || !cfg.Journal.Enabled || cfg.HTTP.Addr != d.HTTP.Addr {
		t.Fatalf("cfg=%+v", cfg)
	}
}

func TestParse_PartialLayoutKeepsOtherOffsets(t *testing.T) {
	cfg, err := Parse([]byte("layout:\n  spawn_pet_id: 0x2C0\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	want := layout.Default()
	want.SpawnPetID = 0x2C0
	if cfg.Layout != want {
		t.Fatalf("layout=%+v", cfg.Layout)
	}
}

func TestParse_Rejects(t *testing.T) {
	for name, raw := range map[string]string{
		"unknown key":     "bogus: 1\n",
		"bad bounds":      "multipet:\n  directory:\n    ceiling: 10\n    fallback: 20\n",
		"layout overflow": "layout:\n  spawn_master_id: 0x3FE\n",
		"too many slots":  "sim:\n  xtarget_slots: 99\n",
		"nameless pet":    "sim:\n  scenario:\n    - at_tick: 3\n",
		"despawn order":   "sim:\n  scenario:\n    - name: a\n      at_tick: 9\n      despawn_at_tick: 9\n",
	} {
		if _, err := Parse([]byte(raw)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestLoad_WrapsFileName(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	if err := os.WriteFile(path, []byte("sim: [\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "broken.yaml") {
		t.Fatalf("err=%v", err)
	}
}

func TestWithDataDir_MovesDerivedPathsOnly(t *testing.T) {
	cfg, err := Parse([]byte("snapshot:\n  dir: /var/dumps\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	moved := cfg.WithDataDir("/tmp/run")
	if moved.Index.Path != filepath.Join("/tmp/run", "index", "events.db") {
		t.Fatalf("index path=%s", moved.Index.Path)
	}
	if moved.Snapshot.Dir != "/var/dumps" {
		t.Fatalf("explicit snapshot dir was moved: %s", moved.Snapshot.Dir)
	}
}
