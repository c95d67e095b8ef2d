package sema

import (
	"fmt"
	"strings"

	"p4fpga/internal/diag"
	"p4fpga/internal/ir"
)

// Dialect selects the front-end language version.
type Dialect int

const (
	// P4_16 requires declarations to precede their uses.
	P4_16 Dialect = iota
	// P4_14 programs were translated from a language without declaration
	// order, so names resolve anywhere in their scope.
	P4_14
)

func (d Dialect) String() string {
	if d == P4_14 {
		return "p4-14"
	}
	return "p4-16"
}

// ParseDialect maps a configuration string to a Dialect.
func ParseDialect(s string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "p4-16", "p4_16", "16":
		return P4_16, nil
	case "p4-14", "p4_14", "14":
		return P4_14, nil
	default:
		return P4_16, fmt.Errorf("unknown language version %q (want p4-14 or p4-16)", s)
	}
}

// RefMap maps every name occurrence to the declaration it resolves to.
type RefMap struct {
	decls map[*ir.PathExpr]ir.Decl
	used  map[ir.Decl]bool
	// owner records the block (parser or control) a local lives in.
	owner map[ir.Decl]ir.Decl
}

// Decl returns the declaration p resolves to, or nil.
func (m *RefMap) Decl(p *ir.PathExpr) ir.Decl {
	if m == nil {
		return nil
	}
	return m.decls[p]
}

// IsUsed reports whether any path resolves to d.
func (m *RefMap) IsUsed(d ir.Decl) bool {
	return m != nil && m.used[d]
}

// Owner returns the parser or control declaring the local d, or nil for
// top-level declarations.
func (m *RefMap) Owner(d ir.Decl) ir.Decl {
	if m == nil {
		return nil
	}
	return m.owner[d]
}

// Len returns the number of resolved paths.
func (m *RefMap) Len() int {
	return len(m.decls)
}

type scope struct {
	parent *scope
	names  map[string]ir.Decl
}

func newScope(parent *scope) *scope {
	return &scope{parent: parent, names: make(map[string]ir.Decl)}
}

func (s *scope) lookup(name string) ir.Decl {
	for sc := s; sc != nil; sc = sc.parent {
		if d, ok := sc.names[name]; ok {
			return d
		}
	}
	return nil
}

type resolver struct {
	refs     *RefMap
	reporter *diag.Reporter
	dialect  Dialect
	owner    ir.Decl
}

// Resolve builds the reference map of prog. Unresolvable names are reported
// as errors.
func Resolve(prog *ir.Program, dialect Dialect, reporter *diag.Reporter) *RefMap {
	r := &resolver{
		refs: &RefMap{
			decls: make(map[*ir.PathExpr]ir.Decl),
			used:  make(map[ir.Decl]bool),
			owner: make(map[ir.Decl]ir.Decl),
		},
		reporter: reporter,
		dialect:  dialect,
	}
	global := newScope(nil)
	for _, d := range ir.CoreLibrary() {
		global.names[d.DeclName()] = d
	}
	if dialect == P4_14 {
		for _, d := range prog.Decls {
			r.declare(global, d)
		}
	}
	for _, d := range prog.Decls {
		if dialect == P4_16 {
			r.declare(global, d)
		}
		r.topLevel(global, d)
	}
	return r.refs
}

func (r *resolver) declare(sc *scope, d ir.Decl) {
	name := d.DeclName()
	if prev, ok := sc.names[name]; ok && prev != d {
		r.reporter.Error("%1%: duplicate declaration", name)
		return
	}
	sc.names[name] = d
	if r.owner != nil {
		r.refs.owner[d] = r.owner
	}
}

func (r *resolver) declareAll(sc *scope, decls []ir.Decl) {
	if r.dialect != P4_14 {
		return
	}
	for _, d := range decls {
		r.declare(sc, d)
	}
}

func (r *resolver) topLevel(global *scope, d ir.Decl) {
	switch x := d.(type) {
	case *ir.Parser:
		r.owner = x
		sc := r.params(global, x.Params)
		r.declareAll(sc, x.Locals)
		for _, l := range x.Locals {
			r.local(sc, l)
		}
		states := make(map[string]bool, len(x.States))
		for _, st := range x.States {
			states[st.Name] = true
		}
		for _, st := range x.States {
			r.state(sc, st, states)
		}
		r.owner = nil
	case *ir.Control:
		r.owner = x
		sc := r.params(global, x.Params)
		r.declareAll(sc, x.Locals)
		for _, l := range x.Locals {
			r.local(sc, l)
		}
		r.block(sc, x.Body)
		r.owner = nil
	case *ir.Action:
		r.action(global, x)
	case *ir.ConstDecl:
		r.expr(global, x.Value)
	case *ir.Instantiation:
		r.exprs(global, x.Args)
	}
}

func (r *resolver) params(parent *scope, params []*ir.Param) *scope {
	sc := newScope(parent)
	for _, p := range params {
		r.declare(sc, p)
	}
	return sc
}

func (r *resolver) local(sc *scope, d ir.Decl) {
	if r.dialect == P4_16 {
		r.declare(sc, d)
	}
	switch x := d.(type) {
	case *ir.Action:
		r.action(sc, x)
	case *ir.Table:
		for _, k := range x.Keys {
			r.expr(sc, k.Expr)
		}
		for _, a := range x.Actions {
			r.actionRef(sc, a)
		}
		if x.Default != nil {
			r.actionRef(sc, x.Default)
		}
	case *ir.Variable:
		if x.Init != nil {
			r.expr(sc, x.Init)
		}
	case *ir.ConstDecl:
		r.expr(sc, x.Value)
	case *ir.Instantiation:
		r.exprs(sc, x.Args)
	}
}

func (r *resolver) action(parent *scope, a *ir.Action) {
	sc := r.params(parent, a.Params)
	r.block(sc, a.Body)
}

func (r *resolver) actionRef(sc *scope, a *ir.ActionRef) {
	r.path(sc, a.Action)
	r.exprs(sc, a.Args)
}

func (r *resolver) state(parent *scope, st *ir.ParserState, states map[string]bool) {
	sc := newScope(parent)
	r.stmts(sc, st.Components)
	switch t := st.Transition.(type) {
	case *ir.Goto:
		r.target(st, t.State, states)
	case *ir.Select:
		r.exprs(sc, t.Keys)
		for _, c := range t.Cases {
			for _, ks := range c.Keysets {
				if ks.Value != nil {
					r.expr(sc, ks.Value)
				}
				if ks.Mask != nil {
					r.expr(sc, ks.Mask)
				}
			}
			r.target(st, c.State, states)
		}
	case nil:
		r.reporter.Error("state %1%: missing transition", st.Name)
	}
}

func (r *resolver) target(from *ir.ParserState, name string, states map[string]bool) {
	if name == ir.Accept || name == ir.Reject || states[name] {
		return
	}
	r.reporter.Error("state %1%: transition to unknown state %2%", from.Name, name)
}

func (r *resolver) block(parent *scope, b *ir.BlockStmt) {
	if b == nil {
		return
	}
	r.stmts(newScope(parent), b.Stmts)
}

func (r *resolver) stmts(sc *scope, list []ir.Stmt) {
	if r.dialect == P4_14 {
		for _, s := range list {
			if v, ok := s.(*ir.VarDeclStmt); ok {
				r.declare(sc, v.Var)
			}
		}
	}
	for _, s := range list {
		r.stmt(sc, s)
	}
}

func (r *resolver) stmt(sc *scope, s ir.Stmt) {
	switch x := s.(type) {
	case *ir.AssignStmt:
		r.expr(sc, x.Left)
		r.expr(sc, x.Right)
	case *ir.CallStmt:
		r.expr(sc, x.Call)
	case *ir.IfStmt:
		r.expr(sc, x.Cond)
		r.nested(sc, x.Then)
		if x.Else != nil {
			r.nested(sc, x.Else)
		}
	case *ir.BlockStmt:
		r.stmts(newScope(sc), x.Stmts)
	case *ir.VarDeclStmt:
		if x.Var.Init != nil {
			r.expr(sc, x.Var.Init)
		}
		if r.dialect == P4_16 {
			r.declare(sc, x.Var)
		}
	}
}

func (r *resolver) nested(sc *scope, s ir.Stmt) {
	if b, ok := s.(*ir.BlockStmt); ok {
		r.stmts(newScope(sc), b.Stmts)
		return
	}
	r.stmt(newScope(sc), s)
}

func (r *resolver) exprs(sc *scope, list []ir.Expr) {
	for _, e := range list {
		r.expr(sc, e)
	}
}

func (r *resolver) expr(sc *scope, e ir.Expr) {
	switch x := e.(type) {
	case *ir.PathExpr:
		r.path(sc, x)
	case *ir.Member:
		r.expr(sc, x.Expr)
	case *ir.Binary:
		r.expr(sc, x.Left)
		r.expr(sc, x.Right)
	case *ir.Unary:
		r.expr(sc, x.Expr)
	case *ir.Cast:
		r.expr(sc, x.Expr)
	case *ir.Slice:
		r.expr(sc, x.Expr)
	case *ir.MethodCall:
		r.expr(sc, x.Method)
		r.exprs(sc, x.Args)
	case *ir.ConstructorCall:
		r.exprs(sc, x.Args)
	}
}

func (r *resolver) path(sc *scope, p *ir.PathExpr) {
	d := sc.lookup(p.Name)
	if d == nil {
		r.reporter.Error("%1%: declaration not found", p.Name)
		return
	}
	r.refs.decls[p] = d
	r.refs.used[d] = true
}
