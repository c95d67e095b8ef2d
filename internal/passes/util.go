package passes

import (
	"p4fpga/internal/ir"
)

// mapDecls applies f to every top-level declaration and rebuilds the program
// only when some declaration changed.
func mapDecls(prog *ir.Program, f func(ir.Decl) ir.Decl) *ir.Program {
	decls, changed := mapList(prog.Decls, f)
	if !changed {
		return prog
	}
	return prog.WithDecls(decls)
}

func mapList(list []ir.Decl, f func(ir.Decl) ir.Decl) ([]ir.Decl, bool) {
	var out []ir.Decl
	for i, d := range list {
		n := f(d)
		if n != d && out == nil {
			out = make([]ir.Decl, len(list))
			copy(out, list[:i])
		}
		if out != nil {
			out[i] = n
		}
	}
	if out == nil {
		return list, false
	}
	return out, true
}

// withBody returns d with its statement body replaced. Parsers are returned
// unchanged.
func withBody(d ir.Decl, body *ir.BlockStmt) ir.Decl {
	switch x := d.(type) {
	case *ir.Control:
		if body == x.Body {
			return x
		}
		return &ir.Control{Name: x.Name, Params: x.Params, Locals: x.Locals, Body: body}
	case *ir.Action:
		if body == x.Body {
			return x
		}
		return &ir.Action{Name: x.Name, Params: x.Params, Body: body}
	}
	return d
}

// blockHook returns a rewriter whose statement hook rewrites every statement
// list of a block with f. f reports whether it changed the list.
func blockHook(f func([]ir.Stmt) ([]ir.Stmt, bool)) *ir.Rewriter {
	return &ir.Rewriter{Stmt: func(s ir.Stmt) ir.Stmt {
		if b, ok := s.(*ir.BlockStmt); ok {
			if stmts, changed := f(b.Stmts); changed {
				return &ir.BlockStmt{Stmts: stmts}
			}
		}
		return s
	}}
}

// rewriteStates rewrites the component lists of every state of p with rw and
// then with f.
func rewriteStates(p *ir.Parser, rw *ir.Rewriter, f func([]ir.Stmt) ([]ir.Stmt, bool)) []*ir.ParserState {
	var out []*ir.ParserState
	for i, st := range p.States {
		comps, changed := rw.RewriteStmts(st.Components)
		if f != nil {
			var c bool
			comps, c = f(comps)
			changed = changed || c
		}
		if changed && out == nil {
			out = make([]*ir.ParserState, len(p.States))
			copy(out, p.States[:i])
		}
		if out != nil {
			if changed {
				out[i] = &ir.ParserState{Name: st.Name, Components: comps, Transition: st.Transition}
			} else {
				out[i] = st
			}
		}
	}
	if out == nil {
		return p.States
	}
	return out
}

func headerNames(prog *ir.Program) map[string]*ir.HeaderType {
	out := make(map[string]*ir.HeaderType)
	for _, d := range prog.Decls {
		if h, ok := d.(*ir.HeaderType); ok {
			out[h.Name] = h
		}
	}
	return out
}

func isConst(e ir.Expr) bool {
	switch e.(type) {
	case *ir.Constant, *ir.BoolLit:
		return true
	}
	return false
}

// sameLValue reports whether a and b denote the same storage location.
func sameLValue(a, b ir.Expr) bool {
	switch x := a.(type) {
	case *ir.PathExpr:
		y, ok := b.(*ir.PathExpr)
		return ok && x.Name == y.Name
	case *ir.Member:
		y, ok := b.(*ir.Member)
		return ok && x.Name == y.Name && sameLValue(x.Expr, y.Expr)
	case *ir.Slice:
		y, ok := b.(*ir.Slice)
		return ok && x.Hi == y.Hi && x.Lo == y.Lo && sameLValue(x.Expr, y.Expr)
	}
	return false
}
