package sema

import (
	"math/big"

	"p4fpga/internal/diag"
	"p4fpga/internal/ir"
)

// TypeMap records the type of every value expression of one program.
type TypeMap struct {
	types map[ir.Expr]ir.Type
	named map[string]ir.Decl
}

// Type returns the type of e, or nil when e is not a value (a table, an
// action name, a call without result).
func (m *TypeMap) Type(e ir.Expr) ir.Type {
	if m == nil {
		return nil
	}
	return m.types[e]
}

// Len returns the number of typed expressions.
func (m *TypeMap) Len() int {
	return len(m.types)
}

// Header returns the header declaration a named type refers to.
func (m *TypeMap) Header(t ir.Type) *ir.HeaderType {
	if nt, ok := t.(*ir.NamedType); ok && m != nil {
		h, _ := m.named[nt.Name].(*ir.HeaderType)
		return h
	}
	return nil
}

// Struct returns the struct declaration a named type refers to.
func (m *TypeMap) Struct(t ir.Type) *ir.StructType {
	if nt, ok := t.(*ir.NamedType); ok && m != nil {
		s, _ := m.named[nt.Name].(*ir.StructType)
		return s
	}
	return nil
}

// Width returns the bit width of t. Headers and structs are the sum of
// their fields. Types without a fixed width report -1.
func (m *TypeMap) Width(t ir.Type) int {
	switch x := t.(type) {
	case *ir.BitsType:
		return x.Width
	case *ir.BoolType:
		return 1
	case *ir.NamedType:
		var fields []*ir.Field
		if h := m.Header(x); h != nil {
			fields = h.Fields
		} else if s := m.Struct(x); s != nil {
			fields = s.Fields
		} else {
			return -1
		}
		total := 0
		for _, f := range fields {
			w := m.Width(f.Type)
			if w < 0 {
				return -1
			}
			total += w
		}
		return total
	default:
		return -1
	}
}

// Truncate wraps v into the value range of t.
func Truncate(v *big.Int, t *ir.BitsType) *big.Int {
	if t.Width <= 0 {
		return new(big.Int)
	}
	mod := new(big.Int).Lsh(big.NewInt(1), uint(t.Width))
	out := new(big.Int).Mod(v, mod)
	if t.Signed {
		half := new(big.Int).Rsh(mod, 1)
		if out.Cmp(half) >= 0 {
			out.Sub(out, mod)
		}
	}
	return out
}

type checker struct {
	refs     *RefMap
	reporter *diag.Reporter
	tm       *TypeMap
}

func namedTypes(prog *ir.Program) map[string]ir.Decl {
	named := make(map[string]ir.Decl)
	for _, d := range ir.CoreLibrary() {
		named[d.DeclName()] = d
	}
	for _, d := range prog.Decls {
		switch d.(type) {
		case *ir.HeaderType, *ir.StructType, *ir.ExternType, *ir.PackageType,
			*ir.Parser, *ir.Control:
			named[d.DeclName()] = d
		}
	}
	return named
}

// Infer type-checks prog against refs and returns its type map. Violations
// are reported as errors.
func Infer(prog *ir.Program, refs *RefMap, reporter *diag.Reporter) *TypeMap {
	c := &checker{
		refs:     refs,
		reporter: reporter,
		tm:       &TypeMap{types: make(map[ir.Expr]ir.Type), named: namedTypes(prog)},
	}
	for _, d := range prog.Decls {
		c.decl(d)
	}
	return c.tm
}

func (c *checker) decl(d ir.Decl) {
	switch x := d.(type) {
	case *ir.HeaderType:
		for _, f := range x.Fields {
			switch f.Type.(type) {
			case *ir.BitsType, *ir.VarbitType:
			default:
				c.reporter.Error("header field %1%.%2%: type %3% is not a bit-string", x.Name, f.Name, f.Type)
			}
		}
	case *ir.StructType:
		for _, f := range x.Fields {
			c.known(f.Type)
		}
	case *ir.Parser:
		c.params(x.Params)
		for _, l := range x.Locals {
			c.decl(l)
		}
		for _, st := range x.States {
			c.stmts(st.Components)
			if sel, ok := st.Transition.(*ir.Select); ok {
				c.selectExpr(st, sel)
			}
		}
	case *ir.Control:
		c.params(x.Params)
		for _, l := range x.Locals {
			c.decl(l)
		}
		c.block(x.Body)
	case *ir.Action:
		c.params(x.Params)
		c.block(x.Body)
	case *ir.Table:
		c.table(x)
	case *ir.Variable:
		c.known(x.Type)
		if x.Init != nil {
			c.assignable(x.Type, c.expr(x.Init), x.Name)
		}
	case *ir.ConstDecl:
		c.assignable(x.Type, c.expr(x.Value), x.Name)
	case *ir.Instantiation:
		for _, a := range x.Args {
			c.expr(a)
		}
	}
}

func (c *checker) params(list []*ir.Param) {
	for _, p := range list {
		c.known(p.Type)
	}
}

func (c *checker) known(t ir.Type) {
	switch x := t.(type) {
	case *ir.NamedType:
		if _, ok := c.tm.named[x.Name]; !ok {
			c.reporter.Error("%1%: unknown type", x.Name)
		}
	case *ir.StackType:
		c.known(x.Elem)
	}
}

func (c *checker) selectExpr(st *ir.ParserState, sel *ir.Select) {
	keyTypes := make([]ir.Type, len(sel.Keys))
	for i, k := range sel.Keys {
		kt := c.expr(k)
		switch kt.(type) {
		case *ir.BitsType, *ir.BoolType, nil:
		default:
			c.reporter.Error("state %1%: select key %2% has type %3%", st.Name, ir.ExprString(k), kt)
		}
		keyTypes[i] = kt
	}
	for _, cs := range sel.Cases {
		if cs.IsDefault() {
			continue
		}
		if len(cs.Keysets) != len(sel.Keys) {
			c.reporter.Error("state %1%: case has %2% keysets for %3% keys", st.Name, len(cs.Keysets), len(sel.Keys))
			continue
		}
		for i, ks := range cs.Keysets {
			if ks.Default {
				continue
			}
			c.assignable(keyTypes[i], c.expr(ks.Value), "select case")
			if ks.Mask != nil {
				c.assignable(keyTypes[i], c.expr(ks.Mask), "select mask")
			}
		}
	}
}

func (c *checker) table(t *ir.Table) {
	for _, k := range t.Keys {
		kt := c.expr(k.Expr)
		switch kt.(type) {
		case *ir.BitsType, *ir.BoolType, nil:
		default:
			c.reporter.Error("table %1%: key %2% has type %3%", t.Name, ir.ExprString(k.Expr), kt)
		}
		switch k.MatchKind {
		case ir.MatchExact, ir.MatchTernary, ir.MatchLPM:
		default:
			c.reporter.Error("table %1%: unknown match kind %2%", t.Name, k.MatchKind)
		}
	}
	listed := make(map[string]bool, len(t.Actions))
	for _, a := range t.Actions {
		if _, ok := c.refs.Decl(a.Action).(*ir.Action); !ok && c.refs.Decl(a.Action) != nil {
			c.reporter.Error("table %1%: %2% is not an action", t.Name, a.Action.Name)
		}
		listed[a.Action.Name] = true
		for _, e := range a.Args {
			c.expr(e)
		}
	}
	if t.Default == nil {
		return
	}
	if !listed[t.Default.Action.Name] {
		c.reporter.Error("table %1%: default action %2% is not in the action list", t.Name, t.Default.Action.Name)
	}
	act, ok := c.refs.Decl(t.Default.Action).(*ir.Action)
	if !ok {
		return
	}
	c.args(act.Name, act.Params, t.Default.Args)
}

func (c *checker) args(callee string, params []*ir.Param, args []ir.Expr) {
	if len(args) != len(params) {
		c.reporter.Error("%1%: expected %2% arguments, got %3%", callee, len(params), len(args))
		for _, a := range args {
			c.expr(a)
		}
		return
	}
	for i, a := range args {
		at := c.expr(a)
		c.assignable(params[i].Type, at, callee+"."+params[i].Name)
		if params[i].Dir == ir.DirOut || params[i].Dir == ir.DirInOut {
			if !c.isLValue(a) {
				c.reporter.Error("%1%: argument for %2% parameter %3% must be assignable", callee, params[i].Dir, params[i].Name)
			}
		}
	}
}

func (c *checker) block(b *ir.BlockStmt) {
	if b != nil {
		c.stmts(b.Stmts)
	}
}

func (c *checker) stmts(list []ir.Stmt) {
	for _, s := range list {
		c.stmt(s)
	}
}

func (c *checker) stmt(s ir.Stmt) {
	switch x := s.(type) {
	case *ir.AssignStmt:
		lt := c.expr(x.Left)
		rt := c.expr(x.Right)
		if !c.isLValue(x.Left) {
			c.reporter.Error("%1%: cannot be assigned", ir.ExprString(x.Left))
			return
		}
		c.assignable(lt, rt, ir.ExprString(x.Left))
	case *ir.CallStmt:
		c.expr(x.Call)
	case *ir.IfStmt:
		if ct := c.expr(x.Cond); ct != nil {
			if _, ok := ct.(*ir.BoolType); !ok {
				c.reporter.Error("if condition %1% has type %2%, want bool", ir.ExprString(x.Cond), ct)
			}
		}
		c.stmt(x.Then)
		if x.Else != nil {
			c.stmt(x.Else)
		}
	case *ir.BlockStmt:
		c.stmts(x.Stmts)
	case *ir.VarDeclStmt:
		c.decl(x.Var)
	}
}

func (c *checker) isLValue(e ir.Expr) bool {
	switch x := e.(type) {
	case *ir.PathExpr:
		switch d := c.refs.Decl(x).(type) {
		case *ir.Variable:
			return true
		case *ir.Param:
			return d.Dir == ir.DirOut || d.Dir == ir.DirInOut
		}
		return false
	case *ir.Member:
		return c.isLValue(x.Expr)
	case *ir.Slice:
		return c.isLValue(x.Expr)
	}
	return false
}

// assignable reports an error unless a value of type src can be stored in
// dst. Missing types mean an error was already reported.
func (c *checker) assignable(dst, src ir.Type, what string) {
	if dst == nil || src == nil {
		return
	}
	if ir.SameType(dst, src) {
		return
	}
	if _, ok := src.(*ir.InfIntType); ok {
		if _, ok := dst.(*ir.BitsType); ok {
			return
		}
	}
	if nt, ok := dst.(*ir.NamedType); ok && nt.Name == "_" {
		return
	}
	c.reporter.Error("%1%: cannot use %2% as %3%", what, src, dst)
}

func (c *checker) set(e ir.Expr, t ir.Type) ir.Type {
	if t != nil {
		c.tm.types[e] = t
	}
	return t
}

func (c *checker) expr(e ir.Expr) ir.Type {
	switch x := e.(type) {
	case *ir.Constant:
		return c.set(e, x.Type)
	case *ir.BoolLit:
		return c.set(e, &ir.BoolType{})
	case *ir.PathExpr:
		switch d := c.refs.Decl(x).(type) {
		case *ir.Param:
			return c.set(e, d.Type)
		case *ir.Variable:
			return c.set(e, d.Type)
		case *ir.ConstDecl:
			return c.set(e, d.Type)
		}
		return nil
	case *ir.Member:
		return c.member(x)
	case *ir.Binary:
		return c.binary(x)
	case *ir.Unary:
		t := c.expr(x.Expr)
		if t == nil {
			return nil
		}
		switch x.Op {
		case ir.LogNot:
			if _, ok := t.(*ir.BoolType); !ok {
				c.reporter.Error("%1%: operand of ! must be bool", ir.ExprString(e))
				return nil
			}
		default:
			if !isNumeric(t) {
				c.reporter.Error("%1%: operand of %2% must be numeric", ir.ExprString(e), x.Op)
				return nil
			}
		}
		return c.set(e, t)
	case *ir.Cast:
		t := c.expr(x.Expr)
		if t != nil && !isNumeric(t) {
			if _, ok := t.(*ir.BoolType); !ok {
				c.reporter.Error("%1%: cannot cast %2% to %3%", ir.ExprString(e), t, x.Type)
				return nil
			}
		}
		return c.set(e, x.Type)
	case *ir.Slice:
		t := c.expr(x.Expr)
		if t == nil {
			return nil
		}
		bt, ok := t.(*ir.BitsType)
		if !ok || x.Lo < 0 || x.Hi < x.Lo || x.Hi >= bt.Width {
			c.reporter.Error("%1%: invalid slice of %2%", ir.ExprString(e), t)
			return nil
		}
		return c.set(e, ir.Bits(x.Hi-x.Lo+1))
	case *ir.MethodCall:
		return c.call(x)
	case *ir.ConstructorCall:
		for _, a := range x.Args {
			c.expr(a)
		}
	}
	return nil
}

func isNumeric(t ir.Type) bool {
	switch t.(type) {
	case *ir.BitsType, *ir.InfIntType:
		return true
	}
	return false
}

func (c *checker) member(m *ir.Member) ir.Type {
	base := c.expr(m.Expr)
	if base == nil {
		return nil
	}
	var fields []*ir.Field
	if h := c.tm.Header(base); h != nil {
		fields = h.Fields
	} else if s := c.tm.Struct(base); s != nil {
		fields = s.Fields
	} else {
		return nil
	}
	if f := ir.LookupField(fields, m.Name); f != nil {
		return c.set(m, f.Type)
	}
	if c.tm.Header(base) != nil {
		switch m.Name {
		case ir.MethodIsValid, ir.MethodSetValid, ir.MethodSetInvalid:
			return nil
		}
	}
	c.reporter.Error("%1%: %2% has no field %3%", ir.ExprString(m), base, m.Name)
	return nil
}

// unify picks the common operand type of a binary operation.
func unify(l, r ir.Type) (ir.Type, bool) {
	_, linf := l.(*ir.InfIntType)
	_, rinf := r.(*ir.InfIntType)
	switch {
	case linf && rinf:
		return l, true
	case linf:
		_, ok := r.(*ir.BitsType)
		return r, ok
	case rinf:
		_, ok := l.(*ir.BitsType)
		return l, ok
	}
	return l, ir.SameType(l, r)
}

func (c *checker) binary(b *ir.Binary) ir.Type {
	lt, rt := c.expr(b.Left), c.expr(b.Right)
	if lt == nil || rt == nil {
		return nil
	}
	mismatch := func() ir.Type {
		c.reporter.Error("%1%: operands of %2% have types %3% and %4%", ir.ExprString(b), b.Op, lt, rt)
		return nil
	}
	switch {
	case b.Op.IsLogical():
		_, lb := lt.(*ir.BoolType)
		_, rb := rt.(*ir.BoolType)
		if !lb || !rb {
			return mismatch()
		}
		return c.set(b, lt)
	case b.Op == ir.Eq || b.Op == ir.Ne:
		if _, ok := unify(lt, rt); !ok {
			return mismatch()
		}
		return c.set(b, &ir.BoolType{})
	case b.Op.IsComparison():
		if !isNumeric(lt) || !isNumeric(rt) {
			return mismatch()
		}
		if _, ok := unify(lt, rt); !ok {
			return mismatch()
		}
		return c.set(b, &ir.BoolType{})
	case b.Op == ir.Shl || b.Op == ir.Shr:
		if !isNumeric(lt) || !isNumeric(rt) {
			return mismatch()
		}
		return c.set(b, lt)
	case b.Op == ir.Concat:
		l, lok := lt.(*ir.BitsType)
		r, rok := rt.(*ir.BitsType)
		if !lok || !rok {
			return mismatch()
		}
		return c.set(b, &ir.BitsType{Width: l.Width + r.Width, Signed: l.Signed})
	default:
		if !isNumeric(lt) || !isNumeric(rt) {
			return mismatch()
		}
		t, ok := unify(lt, rt)
		if !ok {
			return mismatch()
		}
		return c.set(b, t)
	}
}

func (c *checker) call(mc *ir.MethodCall) ir.Type {
	switch m := mc.Method.(type) {
	case *ir.PathExpr:
		act, ok := c.refs.Decl(m).(*ir.Action)
		if !ok {
			if c.refs.Decl(m) != nil {
				c.reporter.Error("%1%: not callable", m.Name)
			}
			return nil
		}
		c.args(act.Name, act.Params, mc.Args)
		return nil
	case *ir.Member:
		return c.methodCall(mc, m)
	}
	c.reporter.Error("%1%: not callable", ir.ExprString(mc.Method))
	return nil
}

func (c *checker) methodCall(mc *ir.MethodCall, m *ir.Member) ir.Type {
	noArgs := func() {
		if len(mc.Args) != 0 {
			c.reporter.Error("%1%: %2% takes no arguments", ir.ExprString(mc), m.Name)
		}
	}
	if p, ok := m.Expr.(*ir.PathExpr); ok {
		switch d := c.refs.Decl(p).(type) {
		case *ir.Table:
			if m.Name != ir.MethodApply {
				c.reporter.Error("%1%: table %2% has no method %3%", ir.ExprString(mc), d.Name, m.Name)
			}
			noArgs()
			return nil
		case *ir.Instantiation:
			return c.instanceCall(mc, m, d)
		}
	}
	base := c.expr(m.Expr)
	if base == nil {
		return nil
	}
	if c.tm.Header(base) != nil {
		switch m.Name {
		case ir.MethodIsValid:
			noArgs()
			return c.set(mc, &ir.BoolType{})
		case ir.MethodSetValid, ir.MethodSetInvalid:
			noArgs()
			if !c.isLValue(m.Expr) {
				c.reporter.Error("%1%: header is not assignable", ir.ExprString(mc))
			}
			return nil
		}
	}
	nt, ok := base.(*ir.NamedType)
	if !ok {
		c.reporter.Error("%1%: %2% has no methods", ir.ExprString(mc), base)
		return nil
	}
	ext, ok := c.tm.named[nt.Name].(*ir.ExternType)
	if !ok {
		c.reporter.Error("%1%: %2% has no method %3%", ir.ExprString(mc), base, m.Name)
		return nil
	}
	return c.externCall(mc, ext, m.Name)
}

func (c *checker) instanceCall(mc *ir.MethodCall, m *ir.Member, inst *ir.Instantiation) ir.Type {
	switch t := c.tm.named[inst.Type].(type) {
	case *ir.Control:
		if m.Name != ir.MethodApply {
			c.reporter.Error("%1%: control %2% has no method %3%", ir.ExprString(mc), t.Name, m.Name)
			return nil
		}
		c.args(inst.Name, t.Params, mc.Args)
	case *ir.Parser:
		if m.Name != ir.MethodApply {
			c.reporter.Error("%1%: parser %2% has no method %3%", ir.ExprString(mc), t.Name, m.Name)
			return nil
		}
		c.args(inst.Name, t.Params, mc.Args)
	case *ir.ExternType:
		return c.externCall(mc, t, m.Name)
	default:
		c.reporter.Error("%1%: %2% cannot be called", ir.ExprString(mc), inst.Name)
	}
	return nil
}

func (c *checker) externCall(mc *ir.MethodCall, ext *ir.ExternType, name string) ir.Type {
	var method *ir.Method
	for _, mm := range ext.Methods {
		if mm.Name == name {
			method = mm
		}
	}
	if method == nil {
		c.reporter.Error("%1%: extern %2% has no method %3%", ir.ExprString(mc), ext.Name, name)
		return nil
	}
	c.args(ext.Name+"."+name, method.Params, mc.Args)
	if ir.IsCoreExtern(ext.Name) && len(mc.Args) == 1 {
		if c.tm.Header(c.tm.Type(mc.Args[0])) == nil {
			c.reporter.Error("%1%: argument must be a header", ir.ExprString(mc))
		}
	}
	return nil
}
