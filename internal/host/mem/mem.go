// Package mem is the only place that touches host addresses. Every access is
// fault tolerant: an invalid address yields an error wrapping ErrFault instead
// of crashing the host.
package mem

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// Addr is an address (or handle) inside the host process.
type Addr uint32

var ErrFault = errors.New("mem: access fault")

type FaultError struct {
	Op   string
	Addr Addr
	Len  int
}

func (e *FaultError) Error() string {
	return fmt.Sprintf("mem: %s fault at 0x%08X (+%d)", e.Op, uint32(e.Addr), e.Len)
}

func (e *FaultError) Unwrap() error { return ErrFault }

type Reader interface {
	ReadAt(addr Addr, p []byte) error
}

type Writer interface {
	WriteAt(addr Addr, p []byte) error
}

type Accessor interface {
	Reader
	Writer
}

// Field is a fixed-width scalar stored in host memory.
type Field interface {
	~uint32 | ~int32
}

// Offset returns base+off, or 0 for a null base so the access faults.
func Offset(base Addr, off uint32) Addr {
	if base == 0 {
		return 0
	}
	return base + Addr(off)
}

// ReadField reads a little-endian 32-bit field at base+off.
func ReadField[T Field](r Reader, base Addr, off uint32) (T, error) {
	var buf [4]byte
	addr := Offset(base, off)
	if addr == 0 {
		return 0, &FaultError{Op: "read", Addr: base, Len: len(buf)}
	}
	if err := r.ReadAt(addr, buf[:]); err != nil {
		return 0, err
	}
	return T(binary.LittleEndian.Uint32(buf[:])), nil
}

// WriteField writes a little-endian 32-bit field at base+off.
func WriteField[T Field](w Writer, base Addr, off uint32, v T) error {
	var buf [4]byte
	addr := Offset(base, off)
	if addr == 0 {
		return &FaultError{Op: "write", Addr: base, Len: len(buf)}
	}
	binary.LittleEndian.PutUint32(buf[:], uint32(v))
	return w.WriteAt(addr, buf[:])
}

// ReadPtr reads a pointer-sized field.
func ReadPtr(r Reader, base Addr, off uint32) (Addr, error) {
	return ReadField[Addr](r, base, off)
}

// ReadCString reads a NUL-terminated string stored in a fixed buffer of width bytes.
func ReadCString(r Reader, base Addr, off uint32, width int) (string, error) {
	addr := Offset(base, off)
	if addr == 0 || width <= 0 {
		return "", &FaultError{Op: "read", Addr: base, Len: width}
	}
	buf := make([]byte, width)
	if err := r.ReadAt(addr, buf); err != nil {
		return "", err
	}
	if i := bytes.IndexByte(buf, 0); i >= 0 {
		buf = buf[:i]
	}
	return string(buf), nil
}

// WriteCString writes s into a fixed buffer of width bytes, truncating so the
// terminator always fits and zero-filling the remainder.
func WriteCString(w Writer, base Addr, off uint32, width int, s string) error {
	addr := Offset(base, off)
	if addr == 0 || width <= 0 {
		return &FaultError{Op: "write", Addr: base, Len: width}
	}
	buf := make([]byte, width)
	n := len(s)
	if n > width-1 {
		n = width - 1
	}
	copy(buf, s[:n])
	return w.WriteAt(addr, buf)
}
