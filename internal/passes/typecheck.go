package passes

import (
	"p4fpga/internal/ir"
	"p4fpga/internal/sema"
)

// ResolveReferences recomputes the reference map.
type ResolveReferences struct{}

// NewResolveReferences constructs the pass.
func NewResolveReferences() *ResolveReferences {
	return &ResolveReferences{}
}

// Name implements the Pass interface.
func (*ResolveReferences) Name() string {
	return "resolve-references"
}

// Run resolves every path of prog and stores the map in env.
func (*ResolveReferences) Run(env *Env, prog *ir.Program) (*ir.Program, error) {
	refs := sema.Resolve(prog, env.Dialect, env.Reporter)
	env.Maps.Refs.Set(prog, refs)
	return prog, nil
}

// TypeCheck recomputes both maps. In update mode it also gives
// arbitrary-precision literals the width their context requires, which may
// return a new program.
type TypeCheck struct {
	update bool
}

// NewTypeCheck constructs the pass. update enables literal specialization.
func NewTypeCheck(update bool) *TypeCheck {
	return &TypeCheck{update: update}
}

// Name implements the Pass interface.
func (*TypeCheck) Name() string {
	return "type-check"
}

// Run resolves and types prog. Both maps describe the returned program.
func (t *TypeCheck) Run(env *Env, prog *ir.Program) (*ir.Program, error) {
	refs := sema.Resolve(prog, env.Dialect, env.Reporter)
	if env.Reporter.HasErrors() {
		return prog, nil
	}
	types := sema.Infer(prog, refs, env.Reporter)
	if env.Reporter.HasErrors() {
		return prog, nil
	}
	if t.update {
		if next := sema.Specialize(prog, refs, types); next != prog {
			prog = next
			refs = sema.Resolve(prog, env.Dialect, env.Reporter)
			types = sema.Infer(prog, refs, env.Reporter)
		}
	}
	env.Maps.Refs.Set(prog, refs)
	env.Maps.Types.Set(prog, types)
	return prog, nil
}
