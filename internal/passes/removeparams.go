package passes

import (
	"p4fpga/internal/ir"
)

// RemoveParameters removes the parameters of actions a control calls
// directly. Each used parameter becomes a control local; the call site
// copies arguments in before the call and copies out and inout parameters
// back afterwards. Unused parameters are dropped.
type RemoveParameters struct{}

// NewRemoveParameters constructs the pass.
func NewRemoveParameters() *RemoveParameters {
	return &RemoveParameters{}
}

// Name implements the Pass interface.
func (*RemoveParameters) Name() string {
	return "remove-parameters"
}

// Requires implements the Requirer interface.
func (*RemoveParameters) Requires() []string {
	return []string{"unique-parameters"}
}

// Run implements the Pass interface.
func (*RemoveParameters) Run(env *Env, prog *ir.Program) (*ir.Program, error) {
	return mapDecls(prog, func(d ir.Decl) ir.Decl {
		c, ok := d.(*ir.Control)
		if !ok || c.Body == nil {
			return d
		}
		return removeParams(c)
	}), nil
}

func usedNames(n ir.Node) map[string]bool {
	used := make(map[string]bool)
	ir.Inspect(n, func(m ir.Node) bool {
		if p, ok := m.(*ir.PathExpr); ok {
			used[p.Name] = true
		}
		return true
	})
	return used
}

func removeParams(c *ir.Control) *ir.Control {
	actions := make(map[string]*ir.Action)
	for _, l := range c.Locals {
		if a, ok := l.(*ir.Action); ok && len(a.Params) > 0 {
			actions[a.Name] = a
		}
	}
	called := make(map[string]bool)
	ir.Inspect(c.Body, func(n ir.Node) bool {
		if mc, ok := n.(*ir.MethodCall); ok {
			if p, ok := mc.Method.(*ir.PathExpr); ok && actions[p.Name] != nil {
				called[p.Name] = true
			}
		}
		return true
	})
	if len(called) == 0 {
		return c
	}
	rw := &ir.Rewriter{Stmt: func(s ir.Stmt) ir.Stmt {
		cs, ok := s.(*ir.CallStmt)
		if !ok {
			return s
		}
		p, ok := cs.Call.Method.(*ir.PathExpr)
		if !ok || !called[p.Name] {
			return s
		}
		a := actions[p.Name]
		used := usedNames(a.Body)
		var pre, post []ir.Stmt
		for i, prm := range a.Params {
			if i >= len(cs.Call.Args) || !used[prm.Name] {
				continue
			}
			arg := cs.Call.Args[i]
			if prm.Dir != ir.DirOut {
				pre = append(pre, &ir.AssignStmt{Left: ir.Path(prm.Name), Right: arg})
			}
			if prm.Dir == ir.DirOut || prm.Dir == ir.DirInOut {
				post = append(post, &ir.AssignStmt{Left: ir.CloneExpr(arg), Right: ir.Path(prm.Name)})
			}
		}
		call := &ir.CallStmt{Call: &ir.MethodCall{Method: &ir.PathExpr{Name: p.Name}}}
		stmts := append(append(pre, call), post...)
		return &ir.BlockStmt{Stmts: stmts}
	}}
	body := rw.RewriteBlock(c.Body)

	var locals []ir.Decl
	var vars []ir.Decl
	for _, l := range c.Locals {
		a, ok := l.(*ir.Action)
		if !ok || !called[a.Name] {
			locals = append(locals, l)
			continue
		}
		used := usedNames(a.Body)
		for _, prm := range a.Params {
			if used[prm.Name] {
				vars = append(vars, &ir.Variable{Name: prm.Name, Type: prm.Type})
			}
		}
		locals = append(locals, &ir.Action{Name: a.Name, Body: a.Body})
	}
	locals = append(vars, locals...)
	return &ir.Control{Name: c.Name, Params: c.Params, Locals: locals, Body: body}
}
