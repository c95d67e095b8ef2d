package passes

import (
	"p4fpga/internal/ir"
	"p4fpga/internal/sema"
)

// RemoveUnusedDeclarations drops block locals, statement variables, top-level
// actions and constants that nothing refers to, and parser states that are
// unreachable from the start state.
type RemoveUnusedDeclarations struct{}

// NewRemoveUnusedDeclarations constructs the pass.
func NewRemoveUnusedDeclarations() *RemoveUnusedDeclarations {
	return &RemoveUnusedDeclarations{}
}

// Name implements the Pass interface.
func (*RemoveUnusedDeclarations) Name() string {
	return "remove-unused-declarations"
}

// Run implements the Pass interface.
func (r *RemoveUnusedDeclarations) Run(env *Env, prog *ir.Program) (*ir.Program, error) {
	refs, err := env.Maps.RefsFor(prog, r.Name())
	if err != nil {
		return nil, err
	}
	return removeUnused(prog, refs), nil
}

// RemoveAllUnusedDeclarations repeats reference resolution and unused
// declaration removal until nothing more can be removed. The reference map
// it leaves behind describes the returned program.
type RemoveAllUnusedDeclarations struct{}

// NewRemoveAllUnusedDeclarations constructs the pass.
func NewRemoveAllUnusedDeclarations() *RemoveAllUnusedDeclarations {
	return &RemoveAllUnusedDeclarations{}
}

// Name implements the Pass interface.
func (*RemoveAllUnusedDeclarations) Name() string {
	return "remove-all-unused-declarations"
}

// Run implements the Pass interface.
func (*RemoveAllUnusedDeclarations) Run(env *Env, prog *ir.Program) (*ir.Program, error) {
	resolve := NewResolveReferences()
	for {
		if _, err := runPass(env, resolve, prog); err != nil {
			return nil, err
		}
		if env.Reporter.HasErrors() {
			return prog, nil
		}
		refs, err := env.Maps.RefsFor(prog, "remove-all-unused-declarations")
		if err != nil {
			return nil, err
		}
		next := removeUnused(prog, refs)
		if next == prog {
			return prog, nil
		}
		prog = next
	}
}

func removeUnused(prog *ir.Program, refs *sema.RefMap) *ir.Program {
	keep := func(d ir.Decl) bool {
		switch d.(type) {
		case *ir.Action, *ir.Table, *ir.Variable, *ir.ConstDecl, *ir.Instantiation:
			return refs.IsUsed(d)
		}
		return true
	}
	dropVars := blockHook(func(list []ir.Stmt) ([]ir.Stmt, bool) {
		var out []ir.Stmt
		for i, s := range list {
			v, ok := s.(*ir.VarDeclStmt)
			drop := ok && !refs.IsUsed(v.Var)
			if drop && out == nil {
				out = append([]ir.Stmt{}, list[:i]...)
			}
			if out != nil && !drop {
				out = append(out, s)
			}
		}
		if out == nil {
			return list, false
		}
		return out, true
	})
	locals := func(list []ir.Decl) ([]ir.Decl, bool) {
		var out []ir.Decl
		changed := false
		for _, l := range list {
			if !keep(l) {
				changed = true
				continue
			}
			n := dropVars.RewriteDecl(l)
			changed = changed || n != l
			out = append(out, n)
		}
		if !changed {
			return list, false
		}
		return out, true
	}

	changed := false
	var decls []ir.Decl
	for _, orig := range prog.Decls {
		d := orig
		switch x := orig.(type) {
		case *ir.Action, *ir.ConstDecl:
			if !keep(orig) {
				changed = true
				continue
			}
			d = dropVars.RewriteDecl(x)
		case *ir.Control:
			ls, lc := locals(x.Locals)
			body := dropVars.RewriteBlock(x.Body)
			if lc || body != x.Body {
				d = &ir.Control{Name: x.Name, Params: x.Params, Locals: ls, Body: body}
			}
		case *ir.Parser:
			ls, lc := locals(x.Locals)
			reachable := &ir.Parser{Name: x.Name, Params: x.Params, Locals: ls, States: reachableStates(x)}
			states := rewriteStates(reachable, dropVars, nil)
			if lc || !sameStates(states, x.States) {
				d = &ir.Parser{Name: x.Name, Params: x.Params, Locals: ls, States: states}
			}
		}
		changed = changed || d != orig
		decls = append(decls, d)
	}
	if !changed {
		return prog
	}
	return prog.WithDecls(decls)
}

// reachableStates returns the states of p reachable from its start state,
// in declaration order.
func reachableStates(p *ir.Parser) []*ir.ParserState {
	if p.State(ir.StartState) == nil {
		return p.States
	}
	seen := map[string]bool{ir.StartState: true}
	work := []string{ir.StartState}
	for len(work) > 0 {
		st := p.State(work[0])
		work = work[1:]
		if st == nil {
			continue
		}
		for _, next := range successors(st) {
			if !seen[next] {
				seen[next] = true
				work = append(work, next)
			}
		}
	}
	var out []*ir.ParserState
	for _, st := range p.States {
		if seen[st.Name] {
			out = append(out, st)
		}
	}
	if len(out) == len(p.States) {
		return p.States
	}
	return out
}

// successors lists the states a transition can reach, in case order.
func successors(st *ir.ParserState) []string {
	switch t := st.Transition.(type) {
	case *ir.Goto:
		return []string{t.State}
	case *ir.Select:
		out := make([]string, 0, len(t.Cases))
		for _, c := range t.Cases {
			out = append(out, c.State)
		}
		return out
	}
	return nil
}
