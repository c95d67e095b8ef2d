package passes

import (
	"p4fpga/internal/ir"
)

// maxCopyPropRounds bounds the propagate-then-eliminate loop of one control.
const maxCopyPropRounds = 16

// LocalCopyPropagation forwards literals and plain copies assigned to local
// variables into later reads within control bodies and actions, folds the
// result and removes writes to locals that are never read.
type LocalCopyPropagation struct{}

// NewLocalCopyPropagation constructs the pass.
func NewLocalCopyPropagation() *LocalCopyPropagation {
	return &LocalCopyPropagation{}
}

// Name implements the Pass interface.
func (*LocalCopyPropagation) Name() string {
	return "local-copy-propagation"
}

// Run implements the Pass interface.
func (l *LocalCopyPropagation) Run(env *Env, prog *ir.Program) (*ir.Program, error) {
	refs, err := env.Maps.RefsFor(prog, l.Name())
	if err != nil {
		return nil, err
	}
	f := &folder{reporter: env.Reporter, refs: refs, consts: make(map[*ir.ConstDecl]ir.Expr)}
	f.rw = &ir.Rewriter{Expr: f.expr}
	return mapDecls(prog, func(d ir.Decl) ir.Decl {
		c, ok := d.(*ir.Control)
		if !ok {
			return d
		}
		for i := 0; i < maxCopyPropRounds; i++ {
			next := eliminateDead(propagateControl(c, f))
			if next == c {
				break
			}
			c = next
		}
		return c
	}), nil
}

type values map[string]ir.Expr

func (v values) copy() values {
	out := make(values, len(v))
	for k, e := range v {
		out[k] = e
	}
	return out
}

// kill forgets name and every value that reads it.
func (v values) kill(name string) {
	delete(v, name)
	for k, e := range v {
		if mentions(e, name) {
			delete(v, k)
		}
	}
}

// meet keeps the entries both branches agree on.
func (v values) meet(a, b values) {
	clear(v)
	for k, e := range a {
		if o, ok := b[k]; ok && ir.ExprString(o) == ir.ExprString(e) {
			v[k] = e
		}
	}
}

func mentions(e ir.Expr, name string) bool {
	found := false
	ir.Inspect(e, func(n ir.Node) bool {
		if p, ok := n.(*ir.PathExpr); ok && p.Name == name {
			found = true
		}
		return !found
	})
	return found
}

// rootName returns the variable an lvalue writes into.
func rootName(e ir.Expr) string {
	switch x := e.(type) {
	case *ir.PathExpr:
		return x.Name
	case *ir.Member:
		return rootName(x.Expr)
	case *ir.Slice:
		return rootName(x.Expr)
	}
	return ""
}

// forwardable reports whether e may be copied into later reads: a literal
// or a field path.
func forwardable(e ir.Expr) bool {
	switch x := e.(type) {
	case *ir.Constant, *ir.BoolLit, *ir.PathExpr:
		return true
	case *ir.Member:
		_, isPath := x.Expr.(*ir.PathExpr)
		return isPath || forwardable(x.Expr)
	}
	return false
}

type propagator struct {
	f       *folder
	tracked map[string]bool
}

func localVars(c *ir.Control) map[string]bool {
	out := make(map[string]bool)
	ir.Inspect(c, func(n ir.Node) bool {
		switch x := n.(type) {
		case *ir.Variable:
			out[x.Name] = true
		case *ir.Table, *ir.Instantiation:
			return false
		}
		return true
	})
	return out
}

func propagateControl(c *ir.Control, f *folder) *ir.Control {
	p := &propagator{f: f, tracked: localVars(c)}
	locals, lc := mapList(c.Locals, func(d ir.Decl) ir.Decl {
		if a, ok := d.(*ir.Action); ok && a.Body != nil {
			return withBody(a, p.block(values{}, a.Body))
		}
		return d
	})
	var body *ir.BlockStmt
	if c.Body != nil {
		body = p.block(values{}, c.Body)
	}
	if !lc && body == c.Body {
		return c
	}
	return &ir.Control{Name: c.Name, Params: c.Params, Locals: locals, Body: body}
}

func (p *propagator) subst(vals values, e ir.Expr) ir.Expr {
	if e == nil {
		return nil
	}
	rw := &ir.Rewriter{Expr: func(x ir.Expr) ir.Expr {
		if path, ok := x.(*ir.PathExpr); ok {
			if v, ok := vals[path.Name]; ok {
				return ir.CloneExpr(v)
			}
		}
		return reduce(p.f.expr(x))
	}}
	return rw.RewriteExpr(e)
}

// define records name = value after value was computed.
func (p *propagator) define(vals values, name string, value ir.Expr) {
	if hasCall(value) {
		clear(vals)
	}
	vals.kill(name)
	if p.tracked[name] && forwardable(value) && !mentions(value, name) {
		vals[name] = value
	}
}

func (p *propagator) block(vals values, b *ir.BlockStmt) *ir.BlockStmt {
	var out []ir.Stmt
	for i, s := range b.Stmts {
		n := p.stmt(vals, s)
		if n != s && out == nil {
			out = make([]ir.Stmt, len(b.Stmts))
			copy(out, b.Stmts[:i])
		}
		if out != nil {
			out[i] = n
		}
	}
	if out == nil {
		return b
	}
	return &ir.BlockStmt{Stmts: out}
}

func (p *propagator) stmt(vals values, s ir.Stmt) ir.Stmt {
	switch x := s.(type) {
	case *ir.AssignStmt:
		r := p.subst(vals, x.Right)
		root := rootName(x.Left)
		if _, whole := x.Left.(*ir.PathExpr); whole {
			p.define(vals, root, r)
		} else {
			if hasCall(r) {
				clear(vals)
			}
			vals.kill(root)
		}
		if r == x.Right {
			return x
		}
		return &ir.AssignStmt{Left: x.Left, Right: r}
	case *ir.VarDeclStmt:
		if x.Var.Init == nil {
			vals.kill(x.Var.Name)
			return x
		}
		init := p.subst(vals, x.Var.Init)
		p.define(vals, x.Var.Name, init)
		if init == x.Var.Init {
			return x
		}
		return &ir.VarDeclStmt{Var: &ir.Variable{Name: x.Var.Name, Type: x.Var.Type, Init: init}}
	case *ir.IfStmt:
		cond := p.subst(vals, x.Cond)
		if hasCall(cond) {
			clear(vals)
		}
		if b, ok := cond.(*ir.BoolLit); ok {
			branch := x.Else
			if b.Value {
				branch = x.Then
			}
			if branch == nil {
				return &ir.EmptyStmt{}
			}
			return p.stmt(vals, branch)
		}
		tv, ev := vals.copy(), vals.copy()
		then := p.stmt(tv, x.Then)
		var els ir.Stmt
		if x.Else != nil {
			els = p.stmt(ev, x.Else)
		}
		vals.meet(tv, ev)
		if cond == x.Cond && then == x.Then && els == x.Else {
			return x
		}
		return &ir.IfStmt{Cond: cond, Then: then, Else: els}
	case *ir.BlockStmt:
		return p.block(vals, x)
	case *ir.CallStmt, *ir.ExitStmt, *ir.ReturnStmt:
		clear(vals)
	}
	return s
}

// eliminateDead removes locals of c that are written but never read,
// together with their writes.
func eliminateDead(c *ir.Control) *ir.Control {
	reads := make(map[string]bool)
	pinned := make(map[string]bool)
	var visit func(n ir.Node) bool
	visit = func(n ir.Node) bool {
		switch x := n.(type) {
		case *ir.AssignStmt:
			if p, ok := x.Left.(*ir.PathExpr); ok {
				if hasCall(x.Right) {
					pinned[p.Name] = true
				}
				ir.Inspect(x.Right, visit)
				return false
			}
		case *ir.Variable:
			if x.Init != nil && hasCall(x.Init) {
				pinned[x.Name] = true
			}
		case *ir.PathExpr:
			reads[x.Name] = true
		}
		return true
	}
	ir.Inspect(c, visit)
	dead := make(map[string]bool)
	for name := range localVars(c) {
		if !reads[name] && !pinned[name] {
			dead[name] = true
		}
	}
	if len(dead) == 0 {
		return c
	}
	drop := func(s ir.Stmt) bool {
		switch x := s.(type) {
		case *ir.AssignStmt:
			p, ok := x.Left.(*ir.PathExpr)
			return ok && dead[p.Name]
		case *ir.VarDeclStmt:
			return dead[x.Var.Name]
		}
		return false
	}
	rw := &ir.Rewriter{Stmt: func(s ir.Stmt) ir.Stmt {
		if drop(s) {
			return &ir.EmptyStmt{}
		}
		if b, ok := s.(*ir.BlockStmt); ok {
			if stmts, changed := flattenList(b.Stmts); changed {
				return &ir.BlockStmt{Stmts: stmts}
			}
		}
		return s
	}}
	var locals []ir.Decl
	for _, l := range c.Locals {
		switch x := l.(type) {
		case *ir.Variable:
			if dead[x.Name] {
				continue
			}
		case *ir.Action:
			l = rw.RewriteDecl(x)
		}
		locals = append(locals, l)
	}
	return &ir.Control{Name: c.Name, Params: c.Params, Locals: locals, Body: rw.RewriteBlock(c.Body)}
}
