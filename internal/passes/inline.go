package passes

import (
	"fmt"

	"p4fpga/internal/ir"
	"p4fpga/internal/sema"
)

// substitution maps names to replacement expressions and declaration names to
// new names. Replacements are cloned at every use.
type substitution struct {
	exprs   map[string]ir.Expr
	renames map[string]string
}

func (s *substitution) rewriter() *ir.Rewriter {
	return &ir.Rewriter{
		Expr: func(e ir.Expr) ir.Expr {
			p, ok := e.(*ir.PathExpr)
			if !ok {
				return e
			}
			if repl, ok := s.exprs[p.Name]; ok {
				return ir.CloneExpr(repl)
			}
			if n, ok := s.renames[p.Name]; ok {
				return &ir.PathExpr{Name: n}
			}
			return e
		},
		Rename: func(d ir.Decl) string {
			if _, ok := d.(*ir.Param); ok {
				return ""
			}
			return s.renames[d.DeclName()]
		},
	}
}

// without returns a copy of s in which names are not substituted.
func (s *substitution) without(names []string) *substitution {
	out := &substitution{exprs: make(map[string]ir.Expr), renames: make(map[string]string)}
	for k, v := range s.exprs {
		out.exprs[k] = v
	}
	for k, v := range s.renames {
		out.renames[k] = v
	}
	for _, n := range names {
		delete(out.exprs, n)
		delete(out.renames, n)
	}
	return out
}

func paramNames(params []*ir.Param) []string {
	out := make([]string, len(params))
	for i, p := range params {
		out[i] = p.Name
	}
	return out
}

// InlineList is the work list discovered for control inlining: callers in an
// order where every callee is processed before its callers.
type InlineList struct {
	Callers []string
}

// DiscoverInlining finds controls that instantiate other controls.
type DiscoverInlining struct {
	list *InlineList
}

// NewDiscoverInlining constructs the pass. It fills list.
func NewDiscoverInlining(list *InlineList) *DiscoverInlining {
	return &DiscoverInlining{list: list}
}

// Name implements the Pass interface.
func (*DiscoverInlining) Name() string {
	return "discover-inlining"
}

// Run implements the Pass interface.
func (d *DiscoverInlining) Run(env *Env, prog *ir.Program) (*ir.Program, error) {
	refs, err := env.Maps.RefsFor(prog, d.Name())
	if err != nil {
		return nil, err
	}
	d.list.Callers = d.list.Callers[:0]
	state := make(map[string]int)
	var visit func(c *ir.Control) bool
	visit = func(c *ir.Control) bool {
		switch state[c.Name] {
		case 1:
			env.Reporter.Error("%1%: control instantiates itself", c.Name)
			return false
		case 2:
			return true
		}
		state[c.Name] = 1
		calls := false
		for _, l := range c.Locals {
			inst, ok := l.(*ir.Instantiation)
			if !ok || !refs.IsUsed(inst) {
				continue
			}
			callee, ok := prog.Find(inst.Type).(*ir.Control)
			if !ok {
				continue
			}
			calls = true
			if !visit(callee) {
				return false
			}
		}
		state[c.Name] = 2
		if calls {
			d.list.Callers = append(d.list.Callers, c.Name)
		}
		return true
	}
	for _, decl := range prog.Decls {
		if c, ok := decl.(*ir.Control); ok && !visit(c) {
			break
		}
	}
	return prog, nil
}

// InlineControls replaces every apply of a control instance by a copy of the
// callee body. Callee locals become caller locals prefixed with the instance
// name. in parameters are copied into temporaries. out and inout
// parameters are replaced by their argument when every apply passes the same
// location, and copied in and out through temporaries otherwise.
type InlineControls struct {
	list *InlineList
}

// NewInlineControls constructs the pass. It consumes list.
func NewInlineControls(list *InlineList) *InlineControls {
	return &InlineControls{list: list}
}

// Name implements the Pass interface.
func (*InlineControls) Name() string {
	return "inline-controls"
}

// Requires implements the Requirer interface.
func (*InlineControls) Requires() []string {
	return []string{"unique-names", "remove-returns"}
}

// Run implements the Pass interface.
func (ic *InlineControls) Run(env *Env, prog *ir.Program) (*ir.Program, error) {
	if len(ic.list.Callers) == 0 {
		return prog, nil
	}
	gen := sema.NewNameGen(prog)
	current := make(map[string]*ir.Control)
	for _, d := range prog.Decls {
		if c, ok := d.(*ir.Control); ok {
			current[c.Name] = c
		}
	}
	for _, name := range ic.list.Callers {
		caller, ok := current[name]
		if !ok {
			return nil, fmt.Errorf("unknown caller %s", name)
		}
		current[name] = inlineInto(caller, current, gen)
	}
	return mapDecls(prog, func(d ir.Decl) ir.Decl {
		if c, ok := d.(*ir.Control); ok {
			return current[c.Name]
		}
		return d
	}), nil
}

type instanceCopy struct {
	callee *ir.Control
	sub    *substitution
	temps  map[string]string
}

// applySite returns the instance name and arguments of an apply statement.
func applySite(s ir.Stmt) (string, []ir.Expr, bool) {
	cs, ok := s.(*ir.CallStmt)
	if !ok {
		return "", nil, false
	}
	m, ok := cs.Call.Method.(*ir.Member)
	if !ok || m.Name != ir.MethodApply {
		return "", nil, false
	}
	p, ok := m.Expr.(*ir.PathExpr)
	if !ok {
		return "", nil, false
	}
	return p.Name, cs.Call.Args, true
}

func inlineInto(caller *ir.Control, controls map[string]*ir.Control, gen *sema.NameGen) *ir.Control {
	sites := make(map[string][][]ir.Expr)
	if caller.Body != nil {
		ir.Inspect(caller.Body, func(n ir.Node) bool {
			if s, ok := n.(ir.Stmt); ok {
				if name, args, ok := applySite(s); ok {
					sites[name] = append(sites[name], args)
				}
			}
			return true
		})
	}

	instances := make(map[string]*instanceCopy)
	var locals []ir.Decl
	for _, l := range caller.Locals {
		inst, ok := l.(*ir.Instantiation)
		if !ok {
			locals = append(locals, l)
			continue
		}
		callee, ok := controls[inst.Type]
		if !ok {
			locals = append(locals, l)
			continue
		}
		cp := &instanceCopy{
			callee: callee,
			sub:    &substitution{exprs: make(map[string]ir.Expr), renames: make(map[string]string)},
			temps:  make(map[string]string),
		}
		for _, cl := range callee.Locals {
			cp.sub.renames[cl.DeclName()] = prefixed(gen, inst.Name, cl.DeclName())
		}
		for i, p := range callee.Params {
			if p.Dir != ir.DirIn && p.Dir != ir.DirNone {
				if arg := sharedArg(sites[inst.Name], i); arg != nil {
					cp.sub.exprs[p.Name] = arg
					continue
				}
			}
			tmp := prefixed(gen, inst.Name, p.Name)
			cp.temps[p.Name] = tmp
			cp.sub.exprs[p.Name] = ir.Path(tmp)
			locals = append(locals, &ir.Variable{Name: tmp, Type: p.Type})
		}
		for _, cl := range callee.Locals {
			locals = append(locals, copyLocal(cl, cp.sub))
		}
		instances[inst.Name] = cp
	}

	rw := &ir.Rewriter{Stmt: func(s ir.Stmt) ir.Stmt {
		name, args, ok := applySite(s)
		if !ok {
			return s
		}
		if cp, ok := instances[name]; ok {
			return cp.expand(args)
		}
		return s
	}}
	body := rw.RewriteBlock(caller.Body)
	return &ir.Control{Name: caller.Name, Params: caller.Params, Locals: locals, Body: body}
}

// sharedArg returns argument i when every apply site passes the same
// location there, and nil otherwise. Callee locals copied once per instance
// may only be bound to such an argument directly.
func sharedArg(sites [][]ir.Expr, i int) ir.Expr {
	if len(sites) == 0 {
		return nil
	}
	for _, args := range sites {
		if i >= len(args) || !sameLValue(args[i], sites[0][i]) {
			return nil
		}
	}
	return sites[0][i]
}

func prefixed(gen *sema.NameGen, inst, name string) string {
	n := inst + "_" + name
	if gen.Used(n) {
		return gen.Fresh(n)
	}
	gen.Reserve(n)
	return n
}

func copyLocal(d ir.Decl, sub *substitution) ir.Decl {
	s := sub
	if a, ok := d.(*ir.Action); ok {
		s = sub.without(paramNames(a.Params))
		s.renames[a.Name] = sub.renames[a.Name]
	}
	return ir.CloneDecl(s.rewriter().RewriteDecl(d))
}

// expand returns the statements replacing one apply of the instance.
// Temporaries are copied in before the body and out and inout temporaries
// are copied back after it.
func (cp *instanceCopy) expand(args []ir.Expr) ir.Stmt {
	sub := &substitution{exprs: make(map[string]ir.Expr), renames: cp.sub.renames}
	var pre, post []ir.Stmt
	for i, p := range cp.callee.Params {
		if i >= len(args) {
			break
		}
		tmp, ok := cp.temps[p.Name]
		if !ok {
			sub.exprs[p.Name] = args[i]
			continue
		}
		sub.exprs[p.Name] = ir.Path(tmp)
		if p.Dir != ir.DirOut {
			pre = append(pre, &ir.AssignStmt{Left: ir.Path(tmp), Right: ir.CloneExpr(args[i])})
		}
		if p.Dir == ir.DirOut || p.Dir == ir.DirInOut {
			post = append(post, &ir.AssignStmt{Left: ir.CloneExpr(args[i]), Right: ir.Path(tmp)})
		}
	}
	stmts := pre
	if cp.callee.Body != nil {
		body := ir.CloneBlock(sub.rewriter().RewriteBlock(cp.callee.Body))
		stmts = append(stmts, body.Stmts...)
	}
	return &ir.BlockStmt{Stmts: append(stmts, post...)}
}
