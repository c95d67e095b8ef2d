package passes

import (
	"p4fpga/internal/ir"
)

// MoveDeclarations hoists statement-level variable declarations. Variables
// declared in a control body or parser state become block locals; variables
// declared in an action move to the start of the action body. An initializer
// stays behind as an assignment at the original position.
type MoveDeclarations struct{}

// NewMoveDeclarations constructs the pass.
func NewMoveDeclarations() *MoveDeclarations {
	return &MoveDeclarations{}
}

// Name implements the Pass interface.
func (*MoveDeclarations) Name() string {
	return "move-declarations"
}

// Run implements the Pass interface.
func (*MoveDeclarations) Run(env *Env, prog *ir.Program) (*ir.Program, error) {
	return mapDecls(prog, moveDecl), nil
}

func moveDecl(d ir.Decl) ir.Decl {
	switch x := d.(type) {
	case *ir.Control:
		locals, lc := mapList(x.Locals, moveDecl)
		var hoisted []ir.Decl
		body := hoist(x.Body, func(v *ir.Variable) { hoisted = append(hoisted, v) })
		if len(hoisted) > 0 {
			locals = append(append([]ir.Decl(nil), locals...), hoisted...)
			lc = true
		}
		if !lc && body == x.Body {
			return x
		}
		return &ir.Control{Name: x.Name, Params: x.Params, Locals: locals, Body: body}
	case *ir.Parser:
		locals, lc := mapList(x.Locals, moveDecl)
		var hoisted []ir.Decl
		collect := func(v *ir.Variable) { hoisted = append(hoisted, v) }
		states := x.States
		for i, st := range x.States {
			b := &ir.BlockStmt{Stmts: st.Components}
			nb := hoist(b, collect)
			if nb == b {
				continue
			}
			if sameStates(states, x.States) {
				states = append([]*ir.ParserState(nil), x.States...)
			}
			states[i] = &ir.ParserState{Name: st.Name, Components: nb.Stmts, Transition: st.Transition}
		}
		if len(hoisted) > 0 {
			locals = append(append([]ir.Decl(nil), locals...), hoisted...)
			lc = true
		}
		if !lc && sameStates(states, x.States) {
			return x
		}
		return &ir.Parser{Name: x.Name, Params: x.Params, Locals: locals, States: states}
	case *ir.Action:
		if x.Body == nil || declsLeading(x.Body.Stmts) {
			return x
		}
		var hoisted []ir.Stmt
		body := hoist(x.Body, func(v *ir.Variable) {
			hoisted = append(hoisted, &ir.VarDeclStmt{Var: v})
		})
		stmts := append(hoisted, body.Stmts...)
		return &ir.Action{Name: x.Name, Params: x.Params, Body: &ir.BlockStmt{Stmts: stmts}}
	}
	return d
}

// declsLeading reports whether every declaration of list is an
// uninitialized one in the leading run of declarations.
func declsLeading(list []ir.Stmt) bool {
	leading := true
	found := false
	for _, s := range list {
		ir.Inspect(s, func(n ir.Node) bool {
			if _, ok := n.(*ir.VarDeclStmt); ok && n != s {
				found = true
			}
			return true
		})
		v, ok := s.(*ir.VarDeclStmt)
		switch {
		case ok && (!leading || v.Var.Init != nil):
			return false
		case !ok:
			leading = false
		}
	}
	return !found
}

// hoist removes the declarations nested in b, passing each uninitialized copy
// to collect in source order.
func hoist(b *ir.BlockStmt, collect func(*ir.Variable)) *ir.BlockStmt {
	if b == nil {
		return nil
	}
	rw := &ir.Rewriter{Stmt: func(s ir.Stmt) ir.Stmt {
		switch x := s.(type) {
		case *ir.VarDeclStmt:
			v := x.Var
			collect(&ir.Variable{Name: v.Name, Type: v.Type})
			if v.Init == nil {
				return &ir.EmptyStmt{}
			}
			return &ir.AssignStmt{Left: ir.Path(v.Name), Right: v.Init}
		case *ir.BlockStmt:
			var kept []ir.Stmt
			dropped := false
			for _, st := range x.Stmts {
				if _, ok := st.(*ir.EmptyStmt); ok {
					dropped = true
					continue
				}
				kept = append(kept, st)
			}
			if dropped {
				return &ir.BlockStmt{Stmts: kept}
			}
		}
		return s
	}}
	return rw.RewriteBlock(b)
}
