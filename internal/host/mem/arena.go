package mem

import "sort"

const (
	arenaAlign = 16
	arenaGuard = 64
)

type region struct {
	base Addr
	data []byte
}

func (r region) end() Addr { return r.base + Addr(len(r.data)) }

// Arena is a sparse simulated address space. Accesses that are not fully
// contained in a live allocation fault, which is how the simulator reproduces
// dangling host pointers.
//
// Arena is not safe for concurrent use; the host loop owns it.
type Arena struct {
	regions []region
	next    Addr
}

func NewArena(base Addr) *Arena {
	if base == 0 {
		base = 0x00400000
	}
	return &Arena{next: base}
}

// Alloc reserves size zeroed bytes and returns their address. Allocations are
// separated by an unmapped guard gap.
func (a *Arena) Alloc(size int) Addr {
	if size <= 0 {
		size = 1
	}
	base := a.next
	a.regions = append(a.regions, region{base: base, data: make([]byte, size)})
	span := Addr(size + arenaGuard)
	span = (span + arenaAlign - 1) &^ (arenaAlign - 1)
	a.next = base + span
	return base
}

// Free unmaps the allocation starting at addr.
func (a *Arena) Free(addr Addr) bool {
	i := a.find(addr)
	if i < 0 || a.regions[i].base != addr {
		return false
	}
	a.regions = append(a.regions[:i], a.regions[i+1:]...)
	return true
}

// Mapped reports whether [addr, addr+n) is readable.
func (a *Arena) Mapped(addr Addr, n int) bool {
	_, _, ok := a.span(addr, n)
	return ok
}

func (a *Arena) ReadAt(addr Addr, p []byte) error {
	r, off, ok := a.span(addr, len(p))
	if !ok {
		return &FaultError{Op: "read", Addr: addr, Len: len(p)}
	}
	copy(p, r.data[off:off+len(p)])
	return nil
}

func (a *Arena) WriteAt(addr Addr, p []byte) error {
	r, off, ok := a.span(addr, len(p))
	if !ok {
		return &FaultError{Op: "write", Addr: addr, Len: len(p)}
	}
	copy(r.data[off:off+len(p)], p)
	return nil
}

func (a *Arena) span(addr Addr, n int) (region, int, bool) {
	if addr == 0 {
		return region{}, 0, false
	}
	i := a.find(addr)
	if i < 0 {
		return region{}, 0, false
	}
	r := a.regions[i]
	off := int(addr - r.base)
	if off+n > len(r.data) {
		return region{}, 0, false
	}
	return r, off, true
}

// find returns the index of the region containing addr, or -1.
func (a *Arena) find(addr Addr) int {
	i := sort.Search(len(a.regions), func(i int) bool { return a.regions[i].end() > addr })
	if i < len(a.regions) && a.regions[i].base <= addr {
		return i
	}
	return -1
}
