package passes

import (
	"p4fpga/internal/ir"
	"p4fpga/internal/sema"
)

// MoveConstructors hoists constructor-call arguments of block-local
// instantiations into their own named instances declared right before the
// instantiation that uses them. Top-level instantiations are left to the
// evaluator.
type MoveConstructors struct{}

// NewMoveConstructors constructs the pass.
func NewMoveConstructors() *MoveConstructors {
	return &MoveConstructors{}
}

// Name implements the Pass interface.
func (*MoveConstructors) Name() string {
	return "move-constructors"
}

// Run implements the Pass interface.
func (*MoveConstructors) Run(env *Env, prog *ir.Program) (*ir.Program, error) {
	gen := sema.NewNameGen(prog)
	return mapDecls(prog, func(d ir.Decl) ir.Decl {
		switch x := d.(type) {
		case *ir.Parser:
			if locals, ok := moveCtors(gen, x.Locals); ok {
				return &ir.Parser{Name: x.Name, Params: x.Params, Locals: locals, States: x.States}
			}
		case *ir.Control:
			if locals, ok := moveCtors(gen, x.Locals); ok {
				return &ir.Control{Name: x.Name, Params: x.Params, Locals: locals, Body: x.Body}
			}
		}
		return d
	}), nil
}

func moveCtors(gen *sema.NameGen, locals []ir.Decl) ([]ir.Decl, bool) {
	changed := false
	var out []ir.Decl
	var hoist func(inst *ir.Instantiation) *ir.Instantiation
	hoist = func(inst *ir.Instantiation) *ir.Instantiation {
		var args []ir.Expr
		for i, a := range inst.Args {
			cc, ok := a.(*ir.ConstructorCall)
			if !ok {
				continue
			}
			tmp := hoist(&ir.Instantiation{Name: gen.Fresh(cc.Type), Type: cc.Type, Args: cc.Args})
			out = append(out, tmp)
			if args == nil {
				args = append([]ir.Expr(nil), inst.Args...)
			}
			args[i] = ir.Path(tmp.Name)
			changed = true
		}
		if args == nil {
			return inst
		}
		return &ir.Instantiation{Name: inst.Name, Type: inst.Type, Args: args}
	}
	for _, l := range locals {
		if inst, ok := l.(*ir.Instantiation); ok {
			l = hoist(inst)
		}
		out = append(out, l)
	}
	if !changed {
		return locals, false
	}
	return out, true
}
