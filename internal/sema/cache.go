// Package sema computes the reference map and type map of a program.
//
// Both maps are bound to the exact *ir.Program value they were computed
// from. They are kept in a Cache which refuses to hand out a map for any
// other program value, so a pass that runs after a structural change without
// an explicit recompute fails with ErrStale instead of reading stale entries.
package sema

import (
	"errors"
	"fmt"

	"p4fpga/internal/ir"
)

// ErrStale is returned when a cached map was computed for another program.
var ErrStale = errors.New("sema: map is stale for this program")

// Cache holds one map computed for one program value.
type Cache[T any] struct {
	prog  *ir.Program
	value T
	valid bool
}

// Get returns the cached value if it was computed for prog.
func (c *Cache[T]) Get(prog *ir.Program) (T, error) {
	if !c.valid || c.prog != prog {
		var zero T
		return zero, ErrStale
	}
	return c.value, nil
}

// Set stores value as the map of prog.
func (c *Cache[T]) Set(prog *ir.Program, value T) {
	c.prog = prog
	c.value = value
	c.valid = true
}

// Invalidate drops the cached value.
func (c *Cache[T]) Invalidate() {
	var zero T
	c.prog = nil
	c.value = zero
	c.valid = false
}

// Valid reports whether the cache holds a map for prog.
func (c *Cache[T]) Valid(prog *ir.Program) bool {
	return c.valid && c.prog == prog
}

// Maps bundles the reference and type caches threaded through the passes.
type Maps struct {
	Refs  Cache[*RefMap]
	Types Cache[*TypeMap]
}

// Invalidate drops both maps.
func (m *Maps) Invalidate() {
	m.Refs.Invalidate()
	m.Types.Invalidate()
}

// RefsFor returns the reference map of prog or a wrapped ErrStale.
func (m *Maps) RefsFor(prog *ir.Program, user string) (*RefMap, error) {
	refs, err := m.Refs.Get(prog)
	if err != nil {
		return nil, fmt.Errorf("%s: reference map: %w", user, err)
	}
	return refs, nil
}

// TypesFor returns the type map of prog or a wrapped ErrStale.
func (m *Maps) TypesFor(prog *ir.Program, user string) (*TypeMap, error) {
	types, err := m.Types.Get(prog)
	if err != nil {
		return nil, fmt.Errorf("%s: type map: %w", user, err)
	}
	return types, nil
}
