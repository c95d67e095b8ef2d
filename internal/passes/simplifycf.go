package passes

import (
	"p4fpga/internal/ir"
)

// SimplifyControlFlow flattens nested blocks, drops empty statements and
// removes conditionals whose outcome or effect is trivially known.
type SimplifyControlFlow struct{}

// NewSimplifyControlFlow constructs the pass.
func NewSimplifyControlFlow() *SimplifyControlFlow {
	return &SimplifyControlFlow{}
}

// Name implements the Pass interface.
func (*SimplifyControlFlow) Name() string {
	return "simplify-control-flow"
}

// Run implements the Pass interface.
func (*SimplifyControlFlow) Run(env *Env, prog *ir.Program) (*ir.Program, error) {
	rw := &ir.Rewriter{Stmt: simplifyStmt}
	return mapDecls(prog, func(d ir.Decl) ir.Decl {
		switch x := d.(type) {
		case *ir.Control:
			locals, lc := mapList(x.Locals, func(l ir.Decl) ir.Decl {
				if a, ok := l.(*ir.Action); ok {
					return withBody(a, rw.RewriteBlock(a.Body))
				}
				return l
			})
			body := rw.RewriteBlock(x.Body)
			if !lc && body == x.Body {
				return x
			}
			return &ir.Control{Name: x.Name, Params: x.Params, Locals: locals, Body: body}
		case *ir.Action:
			return withBody(x, rw.RewriteBlock(x.Body))
		case *ir.Parser:
			states := rewriteStates(x, rw, flattenList)
			if sameStates(states, x.States) {
				return x
			}
			return &ir.Parser{Name: x.Name, Params: x.Params, Locals: x.Locals, States: states}
		}
		return d
	}), nil
}

func isEmpty(s ir.Stmt) bool {
	switch x := s.(type) {
	case nil, *ir.EmptyStmt:
		return true
	case *ir.BlockStmt:
		return len(x.Stmts) == 0
	}
	return false
}

// hasCall reports whether evaluating e may have an effect. isValid is the
// only call that never has one.
func hasCall(e ir.Expr) bool {
	found := false
	ir.Inspect(e, func(n ir.Node) bool {
		if mc, ok := n.(*ir.MethodCall); ok {
			if m, ok := mc.Method.(*ir.Member); !ok || m.Name != ir.MethodIsValid {
				found = true
			}
		}
		return !found
	})
	return found
}

// flattenList splices nested blocks into list and drops empty statements.
func flattenList(list []ir.Stmt) ([]ir.Stmt, bool) {
	need := false
	for _, s := range list {
		switch s.(type) {
		case *ir.BlockStmt, *ir.EmptyStmt:
			need = true
		}
	}
	if !need {
		return list, false
	}
	out := make([]ir.Stmt, 0, len(list))
	for _, s := range list {
		out = append(out, ir.Flatten(s)...)
	}
	return out, true
}

func negate(e ir.Expr) ir.Expr {
	if u, ok := e.(*ir.Unary); ok && u.Op == ir.LogNot {
		return u.Expr
	}
	return &ir.Unary{Op: ir.LogNot, Expr: e}
}

func simplifyStmt(s ir.Stmt) ir.Stmt {
	switch x := s.(type) {
	case *ir.BlockStmt:
		if stmts, changed := flattenList(x.Stmts); changed {
			return &ir.BlockStmt{Stmts: stmts}
		}
	case *ir.IfStmt:
		if b, ok := x.Cond.(*ir.BoolLit); ok {
			branch := x.Else
			if b.Value {
				branch = x.Then
			}
			if branch == nil {
				return &ir.EmptyStmt{}
			}
			return branch
		}
		thenEmpty, elseEmpty := isEmpty(x.Then), isEmpty(x.Else)
		switch {
		case thenEmpty && elseEmpty:
			if !hasCall(x.Cond) {
				return &ir.EmptyStmt{}
			}
			if x.Else != nil {
				return &ir.IfStmt{Cond: x.Cond, Then: x.Then}
			}
		case thenEmpty:
			return &ir.IfStmt{Cond: negate(x.Cond), Then: x.Else}
		case elseEmpty && x.Else != nil:
			return &ir.IfStmt{Cond: x.Cond, Then: x.Then}
		}
	}
	return s
}
