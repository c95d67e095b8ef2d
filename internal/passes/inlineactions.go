package passes

import (
	"p4fpga/internal/ir"
	"p4fpga/internal/sema"
)

// ActionsInlineList holds the actions that call other actions, callees
// first.
type ActionsInlineList struct {
	Callers []string
}

// DiscoverActionsInlining builds the action call graph and reports
// recursion.
type DiscoverActionsInlining struct {
	list *ActionsInlineList
}

// NewDiscoverActionsInlining constructs the pass. It fills list.
func NewDiscoverActionsInlining(list *ActionsInlineList) *DiscoverActionsInlining {
	return &DiscoverActionsInlining{list: list}
}

// Name implements the Pass interface.
func (*DiscoverActionsInlining) Name() string {
	return "discover-actions-inlining"
}

// allActions lists top-level and control-local actions in program order.
func allActions(prog *ir.Program) []*ir.Action {
	var out []*ir.Action
	for _, d := range prog.Decls {
		switch x := d.(type) {
		case *ir.Action:
			out = append(out, x)
		case *ir.Control:
			for _, l := range x.Locals {
				if a, ok := l.(*ir.Action); ok {
					out = append(out, a)
				}
			}
		}
	}
	return out
}

// Run implements the Pass interface.
func (d *DiscoverActionsInlining) Run(env *Env, prog *ir.Program) (*ir.Program, error) {
	refs, err := env.Maps.RefsFor(prog, d.Name())
	if err != nil {
		return nil, err
	}
	d.list.Callers = d.list.Callers[:0]
	callees := make(map[*ir.Action][]*ir.Action)
	for _, a := range allActions(prog) {
		ir.Inspect(a.Body, func(n ir.Node) bool {
			if mc, ok := n.(*ir.MethodCall); ok {
				if p, ok := mc.Method.(*ir.PathExpr); ok {
					if callee, ok := refs.Decl(p).(*ir.Action); ok {
						callees[a] = append(callees[a], callee)
					}
				}
			}
			return true
		})
	}
	state := make(map[*ir.Action]int)
	var visit func(a *ir.Action) bool
	visit = func(a *ir.Action) bool {
		switch state[a] {
		case 1:
			env.Reporter.Error("%1%: recursive action call", a.Name)
			return false
		case 2:
			return true
		}
		state[a] = 1
		for _, c := range callees[a] {
			if !visit(c) {
				return false
			}
		}
		state[a] = 2
		if len(callees[a]) > 0 {
			d.list.Callers = append(d.list.Callers, a.Name)
		}
		return true
	}
	for _, a := range allActions(prog) {
		if !visit(a) {
			break
		}
	}
	return prog, nil
}

// InlineActions replaces calls from one action to another by the callee
// body. Every parameter becomes a fresh variable: in, inout and
// directionless ones are initialized from the argument, and out and inout
// ones are copied back to the argument after the body.
type InlineActions struct {
	list *ActionsInlineList
}

// NewInlineActions constructs the pass. It consumes list.
func NewInlineActions(list *ActionsInlineList) *InlineActions {
	return &InlineActions{list: list}
}

// Name implements the Pass interface.
func (*InlineActions) Name() string {
	return "inline-actions"
}

// Requires implements the Requirer interface.
func (*InlineActions) Requires() []string {
	return []string{"unique-names", "remove-returns"}
}

// Run implements the Pass interface.
func (ia *InlineActions) Run(env *Env, prog *ir.Program) (*ir.Program, error) {
	if len(ia.list.Callers) == 0 {
		return prog, nil
	}
	gen := sema.NewNameGen(prog)
	current := make(map[string]*ir.Action)
	for _, a := range allActions(prog) {
		current[a.Name] = a
	}
	for _, name := range ia.list.Callers {
		caller := current[name]
		rw := &ir.Rewriter{Stmt: func(s ir.Stmt) ir.Stmt {
			cs, ok := s.(*ir.CallStmt)
			if !ok {
				return s
			}
			p, ok := cs.Call.Method.(*ir.PathExpr)
			if !ok {
				return s
			}
			callee, ok := current[p.Name]
			if !ok {
				return s
			}
			return inlineCall(callee, cs.Call.Args, gen)
		}}
		current[name] = &ir.Action{Name: caller.Name, Params: caller.Params, Body: rw.RewriteBlock(caller.Body)}
	}
	replace := func(d ir.Decl) ir.Decl {
		if a, ok := d.(*ir.Action); ok {
			return current[a.Name]
		}
		return d
	}
	return mapDecls(prog, func(d ir.Decl) ir.Decl {
		if c, ok := d.(*ir.Control); ok {
			if locals, changed := mapList(c.Locals, replace); changed {
				return &ir.Control{Name: c.Name, Params: c.Params, Locals: locals, Body: c.Body}
			}
			return c
		}
		return replace(d)
	}), nil
}

func inlineCall(callee *ir.Action, args []ir.Expr, gen *sema.NameGen) ir.Stmt {
	sub := &substitution{exprs: make(map[string]ir.Expr), renames: make(map[string]string)}
	var stmts, post []ir.Stmt
	for i, p := range callee.Params {
		if i >= len(args) {
			break
		}
		tmp := gen.Fresh(p.Name)
		v := &ir.Variable{Name: tmp, Type: p.Type}
		if p.Dir != ir.DirOut {
			v.Init = ir.CloneExpr(args[i])
		}
		if p.Dir == ir.DirOut || p.Dir == ir.DirInOut {
			post = append(post, &ir.AssignStmt{Left: ir.CloneExpr(args[i]), Right: ir.Path(tmp)})
		}
		stmts = append(stmts, &ir.VarDeclStmt{Var: v})
		sub.exprs[p.Name] = ir.Path(tmp)
	}
	if callee.Body != nil {
		ir.Inspect(callee.Body, func(n ir.Node) bool {
			if v, ok := n.(*ir.VarDeclStmt); ok {
				sub.renames[v.Var.Name] = gen.Fresh(v.Var.Name)
			}
			return true
		})
		body := ir.CloneBlock(sub.rewriter().RewriteBlock(callee.Body))
		stmts = append(stmts, body.Stmts...)
	}
	return &ir.BlockStmt{Stmts: append(stmts, post...)}
}
