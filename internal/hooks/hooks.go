// Package hooks keeps the named interceptions installed in the host.
// The patching itself is delegated to a Patcher; the registry only tracks
// names so interceptions can be removed individually or all at once.
package hooks

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// Patcher installs and removes one interception. target identifies the host
// routine and replacement is the function that runs in its place.
type Patcher interface {
	Patch(target, replacement any) error
	Unpatch(target, replacement any) error
}

var (
	ErrDuplicate   = errors.New("hooks: name already installed")
	ErrNotFound    = errors.New("hooks: name not installed")
	ErrNilArgument = errors.New("hooks: nil target or replacement")
)

type record struct {
	name        string
	target      any
	replacement any
}

type Registry struct {
	p     Patcher
	log   zerolog.Logger
	hooks []record
}

func NewRegistry(p Patcher, log zerolog.Logger) *Registry {
	return &Registry{p: p, log: log}
}

func (r *Registry) index(name string) int {
	for i := range r.hooks {
		if r.hooks[i].name == name {
			return i
		}
	}
	return -1
}

func (r *Registry) Install(name string, target, replacement any) error {
	if target == nil || replacement == nil {
		return fmt.Errorf("%w: %s", ErrNilArgument, name)
	}
	if r.index(name) >= 0 {
		return fmt.Errorf("%w: %s", ErrDuplicate, name)
	}
	if err := r.p.Patch(target, replacement); err != nil {
		r.log.Error().Err(err).Str("hook", name).Msg("install failed")
		return fmt.Errorf("hooks: install %s: %w", name, err)
	}
	r.hooks = append(r.hooks, record{name: name, target: target, replacement: replacement})
	r.log.Debug().Str("hook", name).Msg("installed")
	return nil
}

func (r *Registry) Remove(name string) error {
	i := r.index(name)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	h := r.hooks[i]
	if err := r.p.Unpatch(h.target, h.replacement); err != nil {
		return fmt.Errorf("hooks: remove %s: %w", name, err)
	}
	r.hooks = append(r.hooks[:i], r.hooks[i+1:]...)
	r.log.Debug().Str("hook", name).Msg("removed")
	return nil
}

// RemoveAll removes every hook, newest first. Hooks that fail to detach are
// dropped from the registry anyway and their errors joined.
func (r *Registry) RemoveAll() error {
	var errs []error
	for i := len(r.hooks) - 1; i >= 0; i-- {
		h := r.hooks[i]
		if err := r.p.Unpatch(h.target, h.replacement); err != nil {
			errs = append(errs, fmt.Errorf("hooks: remove %s: %w", h.name, err))
		}
	}
	r.hooks = nil
	return errors.Join(errs...)
}

// Installed returns hook names in install order.
func (r *Registry) Installed() []string {
	out := make([]string, len(r.hooks))
	for i := range r.hooks {
		out[i] = r.hooks[i].name
	}
	return out
}
