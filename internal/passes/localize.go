package passes

import (
	"p4fpga/internal/ir"
	"p4fpga/internal/sema"
)

// LocalizeAllActions gives every use site of an action its own copy. A site
// is one table (its action list and default action together) or one direct
// call. Top-level actions are copied into each control that uses them; a
// control-local action keeps its name at its first site and is copied for
// every further site.
type LocalizeAllActions struct{}

// NewLocalizeAllActions constructs the pass.
func NewLocalizeAllActions() *LocalizeAllActions {
	return &LocalizeAllActions{}
}

// Name implements the Pass interface.
func (*LocalizeAllActions) Name() string {
	return "localize-all-actions"
}

type actionSite struct {
	table *ir.Table
	paths []*ir.PathExpr
}

// Run implements the Pass interface.
func (l *LocalizeAllActions) Run(env *Env, prog *ir.Program) (*ir.Program, error) {
	refs, err := env.Maps.RefsFor(prog, l.Name())
	if err != nil {
		return nil, err
	}
	gen := sema.NewNameGen(prog)
	return mapDecls(prog, func(d ir.Decl) ir.Decl {
		c, ok := d.(*ir.Control)
		if !ok {
			return d
		}
		return localize(c, refs, gen)
	}), nil
}

func localize(c *ir.Control, refs *sema.RefMap, gen *sema.NameGen) *ir.Control {
	local := make(map[*ir.Action]bool)
	for _, l := range c.Locals {
		if a, ok := l.(*ir.Action); ok {
			local[a] = true
		}
	}
	// Sites per action, in order of first appearance.
	var sites []*actionSite
	siteOf := func(table *ir.Table, p *ir.PathExpr) {
		if table != nil {
			for _, s := range sites {
				if s.table == table {
					s.paths = append(s.paths, p)
					return
				}
			}
		}
		sites = append(sites, &actionSite{table: table, paths: []*ir.PathExpr{p}})
	}
	for _, l := range c.Locals {
		t, ok := l.(*ir.Table)
		if !ok {
			continue
		}
		refsIn := append([]*ir.ActionRef(nil), t.Actions...)
		if t.Default != nil {
			refsIn = append(refsIn, t.Default)
		}
		for _, ar := range refsIn {
			if _, ok := refs.Decl(ar.Action).(*ir.Action); ok {
				siteOf(t, ar.Action)
			}
		}
	}
	if c.Body != nil {
		ir.Inspect(c.Body, func(n ir.Node) bool {
			if mc, ok := n.(*ir.MethodCall); ok {
				if p, ok := mc.Method.(*ir.PathExpr); ok {
					if _, ok := refs.Decl(p).(*ir.Action); ok {
						siteOf(nil, p)
					}
				}
			}
			return true
		})
	}

	renames := make(map[*ir.PathExpr]string)
	before := make(map[*ir.Table][]ir.Decl)
	var trailing []ir.Decl
	seen := make(map[*ir.Action]bool)
	for _, s := range sites {
		names := make(map[*ir.Action]string)
		for _, p := range s.paths {
			a := refs.Decl(p).(*ir.Action)
			name, ok := names[a]
			if !ok {
				switch {
				case local[a] && !seen[a]:
					name = a.Name
				default:
					name = gen.Fresh(a.Name)
					clone := &ir.Action{Name: name, Params: ir.CloneParams(a.Params), Body: ir.CloneBlock(a.Body)}
					if s.table != nil {
						before[s.table] = append(before[s.table], clone)
					} else {
						trailing = append(trailing, clone)
					}
				}
				names[a] = name
				seen[a] = true
			}
			if name != p.Name {
				renames[p] = name
			}
		}
	}
	if len(renames) == 0 && len(trailing) == 0 && len(before) == 0 {
		return c
	}
	rw := &ir.Rewriter{Expr: func(e ir.Expr) ir.Expr {
		if p, ok := e.(*ir.PathExpr); ok {
			if n, ok := renames[p]; ok {
				return &ir.PathExpr{Name: n}
			}
		}
		return e
	}}
	var locals []ir.Decl
	for _, l := range c.Locals {
		if t, ok := l.(*ir.Table); ok {
			locals = append(locals, before[t]...)
		}
		locals = append(locals, rw.RewriteDecl(l))
	}
	locals = append(locals, trailing...)
	return &ir.Control{Name: c.Name, Params: c.Params, Locals: locals, Body: rw.RewriteBlock(c.Body)}
}
