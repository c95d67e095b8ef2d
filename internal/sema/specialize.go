package sema

import (
	"p4fpga/internal/ir"
)

// Specialize gives every arbitrary-precision literal the concrete width its
// context demands: the other operand of a binary operation, the target of an
// assignment or initializer, the parameter it is passed to, or the select key
// it is compared with. Values are wrapped into the target range. Literals
// without a typed context are left alone. prog is returned unchanged when
// nothing was rewritten.
func Specialize(prog *ir.Program, refs *RefMap, types *TypeMap) *ir.Program {
	sp := &specializer{refs: refs, types: types}
	sp.rw = &ir.Rewriter{Stmt: sp.stmt}
	decls, changed := sp.decls(prog.Decls)
	if !changed {
		return prog
	}
	return prog.WithDecls(decls)
}

type specializer struct {
	refs  *RefMap
	types *TypeMap
	rw    *ir.Rewriter
}

func (sp *specializer) decls(list []ir.Decl) ([]ir.Decl, bool) {
	var out []ir.Decl
	for i, d := range list {
		n := sp.decl(d)
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

func (sp *specializer) decl(d ir.Decl) ir.Decl {
	switch x := d.(type) {
	case *ir.Parser:
		locals, lc := sp.decls(x.Locals)
		states := x.States
		sc := false
		for i, st := range x.States {
			ns := sp.state(st)
			if ns != st {
				if !sc {
					states = append([]*ir.ParserState(nil), x.States...)
					sc = true
				}
				states[i] = ns
			}
		}
		if !lc && !sc {
			return x
		}
		return &ir.Parser{Name: x.Name, Params: x.Params, Locals: locals, States: states}
	case *ir.Control:
		locals, lc := sp.decls(x.Locals)
		body := sp.rw.RewriteBlock(x.Body)
		if !lc && body == x.Body {
			return x
		}
		return &ir.Control{Name: x.Name, Params: x.Params, Locals: locals, Body: body}
	case *ir.Action:
		body := sp.rw.RewriteBlock(x.Body)
		if body == x.Body {
			return x
		}
		return &ir.Action{Name: x.Name, Params: x.Params, Body: body}
	case *ir.Table:
		if x.Default == nil {
			return x
		}
		act, ok := sp.refs.Decl(x.Default.Action).(*ir.Action)
		if !ok || len(act.Params) != len(x.Default.Args) {
			return x
		}
		args, changed := sp.args(act.Params, x.Default.Args)
		if !changed {
			return x
		}
		cp := *x
		cp.Default = &ir.ActionRef{Action: x.Default.Action, Args: args}
		return &cp
	case *ir.Variable:
		return sp.variable(x)
	case *ir.ConstDecl:
		if v := sp.expr(x.Value, x.Type); v != x.Value {
			return &ir.ConstDecl{Name: x.Name, Type: x.Type, Value: v}
		}
	}
	return d
}

func (sp *specializer) variable(v *ir.Variable) *ir.Variable {
	if v.Init == nil {
		return v
	}
	if init := sp.expr(v.Init, v.Type); init != v.Init {
		return &ir.Variable{Name: v.Name, Type: v.Type, Init: init}
	}
	return v
}

func (sp *specializer) state(st *ir.ParserState) *ir.ParserState {
	comps, cc := sp.rw.RewriteStmts(st.Components)
	trans := st.Transition
	if sel, ok := st.Transition.(*ir.Select); ok {
		changed := false
		keys := make([]ir.Expr, len(sel.Keys))
		for i, k := range sel.Keys {
			keys[i] = sp.expr(k, nil)
			changed = changed || keys[i] != k
		}
		cases := make([]*ir.SelectCase, len(sel.Cases))
		for i, c := range sel.Cases {
			cases[i] = c
			var sets []*ir.Keyset
			for j, ks := range c.Keysets {
				if ks.Default || j >= len(sel.Keys) {
					continue
				}
				want := sp.types.Type(sel.Keys[j])
				v := sp.expr(ks.Value, want)
				m := ks.Mask
				if m != nil {
					m = sp.expr(m, want)
				}
				if v == ks.Value && m == ks.Mask {
					continue
				}
				if sets == nil {
					sets = append([]*ir.Keyset(nil), c.Keysets...)
				}
				sets[j] = &ir.Keyset{Value: v, Mask: m}
			}
			if sets != nil {
				cases[i] = &ir.SelectCase{Keysets: sets, State: c.State}
				changed = true
			}
		}
		if changed {
			trans = &ir.Select{Keys: keys, Cases: cases}
		}
	}
	if !cc && trans == st.Transition {
		return st
	}
	return &ir.ParserState{Name: st.Name, Components: comps, Transition: trans}
}

// stmt is the rewriter hook. Expressions reach it untouched, so the type map
// still describes them.
func (sp *specializer) stmt(s ir.Stmt) ir.Stmt {
	switch x := s.(type) {
	case *ir.AssignStmt:
		left := sp.expr(x.Left, nil)
		right := sp.expr(x.Right, sp.types.Type(x.Left))
		if left != x.Left || right != x.Right {
			return &ir.AssignStmt{Left: left, Right: right}
		}
	case *ir.CallStmt:
		if c, ok := sp.expr(x.Call, nil).(*ir.MethodCall); ok && c != x.Call {
			return &ir.CallStmt{Call: c}
		}
	case *ir.IfStmt:
		if cond := sp.expr(x.Cond, nil); cond != x.Cond {
			return &ir.IfStmt{Cond: cond, Then: x.Then, Else: x.Else}
		}
	case *ir.VarDeclStmt:
		if v := sp.variable(x.Var); v != x.Var {
			return &ir.VarDeclStmt{Var: v}
		}
	}
	return s
}

func (sp *specializer) args(params []*ir.Param, args []ir.Expr) ([]ir.Expr, bool) {
	out := make([]ir.Expr, len(args))
	changed := false
	for i, a := range args {
		var want ir.Type
		if i < len(params) {
			want = params[i].Type
		}
		out[i] = sp.expr(a, want)
		changed = changed || out[i] != a
	}
	if !changed {
		return args, false
	}
	return out, true
}

func bitsOf(t ir.Type) *ir.BitsType {
	bt, _ := t.(*ir.BitsType)
	return bt
}

// expr rewrites e top-down. want is the type the context expects, or nil.
func (sp *specializer) expr(e ir.Expr, want ir.Type) ir.Expr {
	switch x := e.(type) {
	case *ir.Constant:
		bt := bitsOf(want)
		if _, inf := x.Type.(*ir.InfIntType); inf && bt != nil {
			return &ir.Constant{Value: Truncate(x.Value, bt), Type: bt}
		}
	case *ir.Member:
		if sub := sp.expr(x.Expr, nil); sub != x.Expr {
			return &ir.Member{Expr: sub, Name: x.Name}
		}
	case *ir.Binary:
		var lw, rw ir.Type
		switch {
		case x.Op.IsLogical(), x.Op == ir.Concat:
		case x.Op == ir.Shl || x.Op == ir.Shr:
			lw = want
		default:
			lt, rt := sp.types.Type(x.Left), sp.types.Type(x.Right)
			target := want
			if x.Op.IsComparison() {
				target = nil
			}
			if bitsOf(lt) != nil {
				target = lt
			} else if bitsOf(rt) != nil {
				target = rt
			}
			lw, rw = target, target
		}
		l, r := sp.expr(x.Left, lw), sp.expr(x.Right, rw)
		if l != x.Left || r != x.Right {
			return &ir.Binary{Op: x.Op, Left: l, Right: r}
		}
	case *ir.Unary:
		var w ir.Type
		if x.Op != ir.LogNot {
			w = want
		}
		if sub := sp.expr(x.Expr, w); sub != x.Expr {
			return &ir.Unary{Op: x.Op, Expr: sub}
		}
	case *ir.Cast:
		var w ir.Type
		if bt := bitsOf(x.Type); bt != nil {
			w = bt
		}
		if sub := sp.expr(x.Expr, w); sub != x.Expr {
			return &ir.Cast{Type: x.Type, Expr: sub}
		}
	case *ir.Slice:
		if sub := sp.expr(x.Expr, nil); sub != x.Expr {
			return &ir.Slice{Expr: sub, Hi: x.Hi, Lo: x.Lo}
		}
	case *ir.MethodCall:
		var params []*ir.Param
		if p, ok := x.Method.(*ir.PathExpr); ok {
			if act, ok := sp.refs.Decl(p).(*ir.Action); ok {
				params = act.Params
			}
		}
		if args, changed := sp.args(params, x.Args); changed {
			return &ir.MethodCall{Method: x.Method, Args: args}
		}
	}
	return e
}
