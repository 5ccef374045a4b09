// Package commands routes chat slash commands ("/name args") to add-on handlers.
package commands

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Chat is where command output goes.
type Chat interface {
	Printf(format string, args ...any)
}

// Handler runs one command. args is the trimmed text after the command name.
type Handler func(args string, out Chat)

var ErrDuplicate = errors.New("commands: already registered")

type Registry struct {
	out      Chat
	handlers map[string]Handler
}

func NewRegistry(out Chat) *Registry {
	return &Registry{out: out, handlers: make(map[string]Handler)}
}

func normalize(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if !strings.HasPrefix(name, "/") {
		name = "/" + name
	}
	return name
}

func (r *Registry) Add(name string, h Handler) error {
	name = normalize(name)
	if name == "/" || h == nil {
		return fmt.Errorf("commands: invalid registration %q", name)
	}
	if _, ok := r.handlers[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicate, name)
	}
	r.handlers[name] = h
	return nil
}

func (r *Registry) Remove(name string) bool {
	name = normalize(name)
	if _, ok := r.handlers[name]; !ok {
		return false
	}
	delete(r.handlers, name)
	return true
}

// Names returns the registered commands, sorted.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.handlers))
	for n := range r.handlers {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Dispatch runs the handler for line and reports whether one matched.
// Unmatched lines belong to the host.
func (r *Registry) Dispatch(line string) bool {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "/") {
		return false
	}
	name, args, _ := strings.Cut(line, " ")
	h, ok := r.handlers[strings.ToLower(name)]
	if !ok {
		return false
	}
	h(strings.TrimSpace(args), r.out)
	return true
}

// Buffer is a Chat that collects lines, used by tests and the simulator's
// scripted sessions.
type Buffer struct {
	Lines []string
}

func (b *Buffer) Printf(format string, args ...any) {
	b.Lines = append(b.Lines, fmt.Sprintf(format, args...))
}

func (b *Buffer) String() string { return strings.Join(b.Lines, "\n") }

func (b *Buffer) Reset() { b.Lines = nil }
