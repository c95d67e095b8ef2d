package evaluator

import (
	"p4fpga/internal/ir"
	"p4fpga/internal/passes"
)

// Pass type-checks the program and evaluates it. It ends both pipeline
// stages; the graph of the last run is available from Toplevel.
type Pass struct {
	toplevel *Toplevel
}

// NewPass constructs the evaluator pass.
func NewPass() *Pass {
	return &Pass{}
}

// Name implements the passes.Pass interface.
func (*Pass) Name() string {
	return "evaluate"
}

// Toplevel returns the graph built by the last run, or nil.
func (p *Pass) Toplevel() *Toplevel {
	return p.toplevel
}

// Run implements the passes.Pass interface. The program is returned
// unchanged.
func (p *Pass) Run(env *passes.Env, prog *ir.Program) (*ir.Program, error) {
	p.toplevel = nil
	if _, err := passes.NewTypeCheck(false).Run(env, prog); err != nil {
		return nil, err
	}
	if env.Reporter.HasErrors() {
		return prog, nil
	}
	refs, err := env.Maps.RefsFor(prog, p.Name())
	if err != nil {
		return nil, err
	}
	p.toplevel = Evaluate(prog, refs, env.Reporter)
	env.Log.Debug("evaluated toplevel", "instances", p.toplevel.Len(), "main", p.toplevel.Main().IsValid())
	return prog, nil
}
