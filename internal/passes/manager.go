// Package passes holds the IR-to-IR rewrite passes and the Manager that runs
// them as an ordered stage.
package passes

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"p4fpga/internal/diag"
	"p4fpga/internal/ir"
	"p4fpga/internal/sema"
)

var (
	// ErrAborted is returned when a pass reported a fatal diagnostic.
	ErrAborted = errors.New("pipeline aborted after fatal diagnostic")
	// ErrOrdering is returned when a pass is scheduled before a pass it
	// requires.
	ErrOrdering = errors.New("pass ordering violated")
)

// Pass transforms a program. A pass never mutates nodes of its input; it
// returns the input itself when it has nothing to change.
type Pass interface {
	Name() string
	Run(env *Env, prog *ir.Program) (*ir.Program, error)
}

// Requirer is implemented by passes that are only correct after other named
// passes have run.
type Requirer interface {
	Requires() []string
}

// Env is the state threaded through one compilation: the diagnostic sink,
// the reference and type map caches, the language dialect and the set of
// passes that already ran.
type Env struct {
	Reporter *diag.Reporter
	Maps     *sema.Maps
	Dialect  sema.Dialect
	Log      *slog.Logger

	done map[string]bool
}

// NewEnv returns an environment with empty caches. log may be nil.
func NewEnv(reporter *diag.Reporter, dialect sema.Dialect, log *slog.Logger) *Env {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Env{
		Reporter: reporter,
		Maps:     &sema.Maps{},
		Dialect:  dialect,
		Log:      log,
		done:     make(map[string]bool),
	}
}

// Ran reports whether a pass with the given name completed in this
// environment.
func (e *Env) Ran(name string) bool {
	return e.done[name]
}

// Manager runs an ordered list of passes as one named stage.
type Manager struct {
	name   string
	passes []Pass
}

// NewManager constructs an empty stage.
func NewManager(name string) *Manager {
	return &Manager{name: name}
}

// Name returns the stage name.
func (m *Manager) Name() string {
	return m.name
}

// Add appends passes to the stage.
func (m *Manager) Add(p ...Pass) {
	m.passes = append(m.passes, p...)
}

// Names lists the pass names in execution order.
func (m *Manager) Names() []string {
	names := make([]string, len(m.passes))
	for i, p := range m.passes {
		names[i] = p.Name()
	}
	return names
}

// Validate checks that every requirement of every pass is satisfied by a
// pass that already ran in env or that precedes it in this stage.
func (m *Manager) Validate(env *Env) error {
	seen := make(map[string]bool, len(env.done)+len(m.passes))
	for name := range env.done {
		seen[name] = true
	}
	for _, p := range m.passes {
		if r, ok := p.(Requirer); ok {
			for _, req := range r.Requires() {
				if !seen[req] {
					return fmt.Errorf("passes: %s: %s must run after %s: %w", m.name, p.Name(), req, ErrOrdering)
				}
			}
		}
		seen[p.Name()] = true
	}
	return nil
}

// Run validates the stage and executes its passes in order. After each pass
// the reporter is consulted; on a fatal diagnostic the remaining passes are
// skipped and Run returns a nil program with ErrAborted.
func (m *Manager) Run(env *Env, prog *ir.Program) (*ir.Program, error) {
	if prog == nil {
		return nil, fmt.Errorf("passes: %s requires a non-nil program", m.name)
	}
	if err := m.Validate(env); err != nil {
		return nil, err
	}
	if env.Reporter.HasErrors() {
		return nil, fmt.Errorf("passes: %s: %w", m.name, ErrAborted)
	}
	cur := prog
	for _, p := range m.passes {
		next, err := runPass(env, p, cur)
		if err != nil {
			return nil, fmt.Errorf("passes: %s: %w", m.name, err)
		}
		env.Log.Debug("pass finished", "stage", m.name, "pass", p.Name(), "changed", next != cur)
		cur = next
		if env.Reporter.HasErrors() {
			return nil, fmt.Errorf("passes: %s: %s: %w", m.name, p.Name(), ErrAborted)
		}
	}
	return cur, nil
}

// runPass executes one pass and drops cached maps that no longer describe
// the program it returned.
func runPass(env *Env, p Pass, prog *ir.Program) (*ir.Program, error) {
	next, err := p.Run(env, prog)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p.Name(), err)
	}
	if next == nil {
		return nil, fmt.Errorf("%s returned no program", p.Name())
	}
	if next != prog {
		if !env.Maps.Refs.Valid(next) {
			env.Maps.Refs.Invalidate()
		}
		if !env.Maps.Types.Valid(next) {
			env.Maps.Types.Invalidate()
		}
	}
	env.done[p.Name()] = true
	return next, nil
}
