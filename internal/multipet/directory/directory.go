// Package directory maps spawn ids to live host references.
//
// The host fires add/remove callbacks for most spawns, but entities that
// existed before the add-on attached never produce one, so the directory can
// also be rebuilt by walking the host's id space.
package directory

import (
	"fmt"
	"sort"

	"addonhost/internal/host/mem"
)

// Source is the host-side id lookup used by Rebuild.
type Source interface {
	// NextIDUpperBound returns the id the host will assign next.
	NextIDUpperBound() (uint32, error)
	LookupByID(id uint32) (mem.Addr, bool)
}

// Bounds limits a rebuild walk. An upper bound of zero or above Ceiling is
// treated as corrupt and replaced by Fallback.
type Bounds struct {
	Ceiling  uint32 `yaml:"ceiling"`
	Fallback uint32 `yaml:"fallback"`
}

func DefaultBounds() Bounds {
	return Bounds{Ceiling: 10000, Fallback: 1000}
}

// Clamp applies the corruption rule to a raw upper bound.
func (b Bounds) Clamp(upper uint32) uint32 {
	if upper == 0 || upper > b.Ceiling {
		return b.Fallback
	}
	return upper
}

type Directory struct {
	byID map[uint32]mem.Addr
}

func New() *Directory {
	return &Directory{byID: make(map[uint32]mem.Addr)}
}

// OnAdd records id -> ref, replacing any earlier ref for id.
func (d *Directory) OnAdd(id uint32, ref mem.Addr) {
	if id == 0 || ref == 0 {
		return
	}
	d.byID[id] = ref
}

func (d *Directory) OnRemove(id uint32) bool {
	if _, ok := d.byID[id]; !ok {
		return false
	}
	delete(d.byID, id)
	return true
}

func (d *Directory) Lookup(id uint32) (mem.Addr, bool) {
	ref, ok := d.byID[id]
	return ref, ok
}

// Find is the reverse lookup, used when a despawning entity's id can no
// longer be read.
func (d *Directory) Find(ref mem.Addr) (uint32, bool) {
	if ref == 0 {
		return 0, false
	}
	for id, r := range d.byID {
		if r == ref {
			return id, true
		}
	}
	return 0, false
}

func (d *Directory) Len() int { return len(d.byID) }

// IDs returns every known id in ascending order.
func (d *Directory) IDs() []uint32 {
	out := make([]uint32, 0, len(d.byID))
	for id := range d.byID {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (d *Directory) Clear() {
	clear(d.byID)
}

// Rebuild clears the directory and fills it from src by probing ids
// 1..upper-1. It returns the number of entries found.
func (d *Directory) Rebuild(src Source, b Bounds) (int, error) {
	upper, err := src.NextIDUpperBound()
	if err != nil {
		return 0, fmt.Errorf("directory: read next id: %w", err)
	}
	upper = b.Clamp(upper)
	d.Clear()
	for id := uint32(1); id < upper; id++ {
		if ref, ok := src.LookupByID(id); ok && ref != 0 {
			d.byID[id] = ref
		}
	}
	return len(d.byID), nil
}
