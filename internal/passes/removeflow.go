package passes

import (
	"p4fpga/internal/ir"
	"p4fpga/internal/sema"
)

// flow classifies how a statement can leave its block early.
type flow int

const (
	flowNone flow = iota
	flowMaybe
	flowAlways
)

// guarder replaces early-leaving statements by writes to a boolean flag and
// guards everything that follows them with a test of that flag.
type guarder struct {
	flag string
	// leaf rewrites statements that are not blocks or conditionals.
	leaf func(ir.Stmt) (ir.Stmt, flow)
}

func (g *guarder) set(v bool) ir.Stmt {
	return &ir.AssignStmt{Left: ir.Path(g.flag), Right: &ir.BoolLit{Value: v}}
}

func (g *guarder) notSet() ir.Expr {
	return &ir.Unary{Op: ir.LogNot, Expr: ir.Path(g.flag)}
}

func (g *guarder) list(stmts []ir.Stmt) ([]ir.Stmt, flow) {
	var out []ir.Stmt
	for i, s := range stmts {
		ns, f := g.stmt(s)
		out = append(out, ns)
		if f == flowNone {
			continue
		}
		rest := stmts[i+1:]
		if f == flowMaybe && len(rest) > 0 {
			guarded, _ := g.list(rest)
			out = append(out, &ir.IfStmt{Cond: g.notSet(), Then: &ir.BlockStmt{Stmts: guarded}})
		}
		return out, f
	}
	return out, flowNone
}

func (g *guarder) stmt(s ir.Stmt) (ir.Stmt, flow) {
	switch x := s.(type) {
	case *ir.BlockStmt:
		stmts, f := g.list(x.Stmts)
		return &ir.BlockStmt{Stmts: stmts}, f
	case *ir.IfStmt:
		then, tf := g.stmt(x.Then)
		var els ir.Stmt
		ef := flowNone
		if x.Else != nil {
			els, ef = g.stmt(x.Else)
		}
		f := flowNone
		switch {
		case tf == flowAlways && ef == flowAlways:
			f = flowAlways
		case tf != flowNone || ef != flowNone:
			f = flowMaybe
		}
		return &ir.IfStmt{Cond: x.Cond, Then: then, Else: els}, f
	}
	return g.leaf(s)
}

func contains[T ir.Node](n ir.Node) bool {
	found := false
	ir.Inspect(n, func(m ir.Node) bool {
		if _, ok := m.(T); ok {
			found = true
		}
		return !found
	})
	return found
}

// RemoveReturns eliminates return statements from actions and control bodies
// using a per-body hasReturned flag.
type RemoveReturns struct{}

// NewRemoveReturns constructs the pass.
func NewRemoveReturns() *RemoveReturns {
	return &RemoveReturns{}
}

// Name implements the Pass interface.
func (*RemoveReturns) Name() string {
	return "remove-returns"
}

// Run implements the Pass interface.
func (*RemoveReturns) Run(env *Env, prog *ir.Program) (*ir.Program, error) {
	gen := sema.NewNameGen(prog)
	var fix func(d ir.Decl) ir.Decl
	fix = func(d ir.Decl) ir.Decl {
		switch x := d.(type) {
		case *ir.Action:
			if !contains[*ir.ReturnStmt](x) {
				return x
			}
			g := returnGuarder(gen.Fresh("hasReturned"))
			stmts, _ := g.list(x.Body.Stmts)
			decl := &ir.VarDeclStmt{Var: &ir.Variable{Name: g.flag, Type: &ir.BoolType{}}}
			stmts = append([]ir.Stmt{decl, g.set(false)}, stmts...)
			return &ir.Action{Name: x.Name, Params: x.Params, Body: &ir.BlockStmt{Stmts: stmts}}
		case *ir.Control:
			locals, lc := mapList(x.Locals, fix)
			if x.Body == nil || !contains[*ir.ReturnStmt](x.Body) {
				if !lc {
					return x
				}
				return &ir.Control{Name: x.Name, Params: x.Params, Locals: locals, Body: x.Body}
			}
			g := returnGuarder(gen.Fresh("hasReturned"))
			stmts, _ := g.list(x.Body.Stmts)
			locals = append(append([]ir.Decl(nil), locals...), &ir.Variable{Name: g.flag, Type: &ir.BoolType{}})
			body := &ir.BlockStmt{Stmts: append([]ir.Stmt{g.set(false)}, stmts...)}
			return &ir.Control{Name: x.Name, Params: x.Params, Locals: locals, Body: body}
		}
		return d
	}
	return mapDecls(prog, fix), nil
}

func returnGuarder(flag string) *guarder {
	g := &guarder{flag: flag}
	g.leaf = func(s ir.Stmt) (ir.Stmt, flow) {
		if _, ok := s.(*ir.ReturnStmt); ok {
			return g.set(true), flowAlways
		}
		return s, flowNone
	}
	return g
}

// RemoveExits turns exit statements into control flow. Each control that can
// exit, directly or through one of its actions, gets a hasExited flag; every
// statement after a call that may exit is guarded by it.
type RemoveExits struct{}

// NewRemoveExits constructs the pass.
func NewRemoveExits() *RemoveExits {
	return &RemoveExits{}
}

// Name implements the Pass interface.
func (*RemoveExits) Name() string {
	return "remove-exits"
}

// Requires implements the Requirer interface.
func (*RemoveExits) Requires() []string {
	return []string{"inline-controls", "localize-all-actions"}
}

// Run implements the Pass interface.
func (*RemoveExits) Run(env *Env, prog *ir.Program) (*ir.Program, error) {
	gen := sema.NewNameGen(prog)
	return mapDecls(prog, func(d ir.Decl) ir.Decl {
		c, ok := d.(*ir.Control)
		if !ok || !contains[*ir.ExitStmt](c) {
			return d
		}
		flag := gen.Fresh("hasExited")
		exiting := make(map[string]bool)
		for _, l := range c.Locals {
			if a, ok := l.(*ir.Action); ok && contains[*ir.ExitStmt](a) {
				exiting[a.Name] = true
			}
		}
		tableExits := make(map[string]bool)
		for _, l := range c.Locals {
			if t, ok := l.(*ir.Table); ok {
				for _, a := range t.Actions {
					if exiting[a.Action.Name] {
						tableExits[t.Name] = true
					}
				}
			}
		}
		g := &guarder{flag: flag}
		g.leaf = func(s ir.Stmt) (ir.Stmt, flow) {
			switch x := s.(type) {
			case *ir.ExitStmt:
				return g.set(true), flowAlways
			case *ir.CallStmt:
				switch m := x.Call.Method.(type) {
				case *ir.PathExpr:
					if exiting[m.Name] {
						return s, flowMaybe
					}
				case *ir.Member:
					if p, ok := m.Expr.(*ir.PathExpr); ok && m.Name == ir.MethodApply && tableExits[p.Name] {
						return s, flowMaybe
					}
				}
			}
			return s, flowNone
		}
		// The flag precedes the actions that set it.
		locals := make([]ir.Decl, 0, len(c.Locals)+1)
		locals = append(locals, &ir.Variable{Name: flag, Type: &ir.BoolType{}})
		for _, l := range c.Locals {
			if a, ok := l.(*ir.Action); ok && exiting[a.Name] {
				stmts, _ := g.list(a.Body.Stmts)
				l = &ir.Action{Name: a.Name, Params: a.Params, Body: &ir.BlockStmt{Stmts: stmts}}
			}
			locals = append(locals, l)
		}
		var stmts []ir.Stmt
		if c.Body != nil {
			stmts, _ = g.list(c.Body.Stmts)
		}
		body := &ir.BlockStmt{Stmts: append([]ir.Stmt{g.set(false)}, stmts...)}
		return &ir.Control{Name: c.Name, Params: c.Params, Locals: locals, Body: body}
	}), nil
}
