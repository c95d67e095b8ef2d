package passes

import (
	"math/big"

	"p4fpga/internal/diag"
	"p4fpga/internal/ir"
	"p4fpga/internal/sema"
)

// ConstantFolding evaluates operations over literals, replaces references to
// constant declarations by their value and resolves conditionals and select
// transitions whose outcome is known. Constant declarations it substituted
// are removed.
type ConstantFolding struct{}

// NewConstantFolding constructs the pass.
func NewConstantFolding() *ConstantFolding {
	return &ConstantFolding{}
}

// Name implements the Pass interface.
func (*ConstantFolding) Name() string {
	return "constant-folding"
}

// Run implements the Pass interface.
func (c *ConstantFolding) Run(env *Env, prog *ir.Program) (*ir.Program, error) {
	refs, err := env.Maps.RefsFor(prog, c.Name())
	if err != nil {
		return nil, err
	}
	f := &folder{reporter: env.Reporter, refs: refs, consts: make(map[*ir.ConstDecl]ir.Expr)}
	f.rw = &ir.Rewriter{Expr: f.expr, Stmt: foldIf}
	prog = f.rw.RewriteProgram(prog)
	prog = mapDecls(prog, func(d ir.Decl) ir.Decl {
		switch x := d.(type) {
		case *ir.Parser:
			var states []*ir.ParserState
			for i, st := range x.States {
				ns := foldSelect(st)
				if ns != st && states == nil {
					states = make([]*ir.ParserState, len(x.States))
					copy(states, x.States[:i])
				}
				if states != nil {
					states[i] = ns
				}
			}
			locals, lc := dropConsts(x.Locals)
			if states == nil && !lc {
				return x
			}
			if states == nil {
				states = x.States
			}
			return &ir.Parser{Name: x.Name, Params: x.Params, Locals: locals, States: states}
		case *ir.Control:
			if locals, lc := dropConsts(x.Locals); lc {
				return &ir.Control{Name: x.Name, Params: x.Params, Locals: locals, Body: x.Body}
			}
		}
		return d
	})
	if decls, changed := dropConsts(prog.Decls); changed {
		prog = prog.WithDecls(decls)
	}
	return prog, nil
}

// dropConsts removes constant declarations whose value is a literal.
func dropConsts(list []ir.Decl) ([]ir.Decl, bool) {
	var out []ir.Decl
	changed := false
	for _, d := range list {
		if c, ok := d.(*ir.ConstDecl); ok && isConst(c.Value) {
			changed = true
			continue
		}
		out = append(out, d)
	}
	if !changed {
		return list, false
	}
	return out, true
}

type folder struct {
	reporter *diag.Reporter
	refs     *sema.RefMap
	rw       *ir.Rewriter
	consts   map[*ir.ConstDecl]ir.Expr
}

// constValue returns the folded value of cd. A constant that refers back to
// itself yields nil.
func (f *folder) constValue(cd *ir.ConstDecl) ir.Expr {
	if v, ok := f.consts[cd]; ok {
		return v
	}
	f.consts[cd] = nil
	v := f.rw.RewriteExpr(cd.Value)
	f.consts[cd] = v
	return v
}

// maxShift bounds the shifts folded on arbitrary-precision integers.
const maxShift = 4096

func bitsType(t ir.Type) (*ir.BitsType, bool) {
	b, ok := t.(*ir.BitsType)
	return b, ok
}

// literal returns a constant of type t, wrapped into its range.
func literal(v *big.Int, t ir.Type) *ir.Constant {
	if b, ok := bitsType(t); ok {
		v = sema.Truncate(v, b)
	}
	return &ir.Constant{Value: v, Type: t}
}

// unsigned returns the bit pattern of c as a non-negative number.
func unsigned(c *ir.Constant) *big.Int {
	if b, ok := bitsType(c.Type); ok {
		return sema.Truncate(c.Value, &ir.BitsType{Width: b.Width})
	}
	return c.Value
}

func (f *folder) expr(e ir.Expr) ir.Expr {
	switch x := e.(type) {
	case *ir.PathExpr:
		if cd, ok := f.refs.Decl(x).(*ir.ConstDecl); ok {
			switch v := f.constValue(cd).(type) {
			case *ir.Constant:
				t := v.Type
				if _, ok := bitsType(cd.Type); ok {
					t = cd.Type
				}
				return literal(new(big.Int).Set(v.Value), t)
			case *ir.BoolLit:
				return &ir.BoolLit{Value: v.Value}
			}
		}
	case *ir.Binary:
		return f.binary(x)
	case *ir.Unary:
		return foldUnary(x)
	case *ir.Cast:
		return foldCast(x)
	case *ir.Slice:
		if c, ok := x.Expr.(*ir.Constant); ok {
			width := x.Hi - x.Lo + 1
			mask := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), uint(width)), big.NewInt(1))
			v := new(big.Int).Rsh(unsigned(c), uint(x.Lo))
			return &ir.Constant{Value: v.And(v, mask), Type: ir.Bits(width)}
		}
	}
	return e
}

func (f *folder) binary(b *ir.Binary) ir.Expr {
	if b.Op.IsLogical() {
		return foldLogical(b)
	}
	if lb, ok := b.Left.(*ir.BoolLit); ok {
		if rb, ok := b.Right.(*ir.BoolLit); ok {
			switch b.Op {
			case ir.Eq:
				return &ir.BoolLit{Value: lb.Value == rb.Value}
			case ir.Ne:
				return &ir.BoolLit{Value: lb.Value != rb.Value}
			}
		}
		return b
	}
	l, lok := b.Left.(*ir.Constant)
	r, rok := b.Right.(*ir.Constant)
	if !lok || !rok {
		return b
	}
	t := l.Type
	if _, ok := bitsType(t); !ok {
		t = r.Type
	}
	lv, rv := l.Value, r.Value
	switch b.Op {
	case ir.Add:
		return literal(new(big.Int).Add(lv, rv), t)
	case ir.Sub:
		return literal(new(big.Int).Sub(lv, rv), t)
	case ir.Mul:
		return literal(new(big.Int).Mul(lv, rv), t)
	case ir.Div, ir.Mod:
		if rv.Sign() == 0 {
			f.reporter.Error("%1%: division by zero", ir.ExprString(b))
			return b
		}
		if lv.Sign() < 0 || rv.Sign() < 0 {
			return b
		}
		if b.Op == ir.Div {
			return literal(new(big.Int).Quo(lv, rv), t)
		}
		return literal(new(big.Int).Rem(lv, rv), t)
	case ir.Shl, ir.Shr:
		if rv.Sign() < 0 || !rv.IsInt64() {
			return b
		}
		n := rv.Int64()
		if bt, ok := bitsType(l.Type); ok && n >= int64(bt.Width) {
			// Every bit is shifted out; an arithmetic right shift leaves
			// copies of the sign.
			if b.Op == ir.Shr && lv.Sign() < 0 {
				return literal(big.NewInt(-1), l.Type)
			}
			return literal(new(big.Int), l.Type)
		}
		if n > maxShift {
			return b
		}
		if b.Op == ir.Shl {
			return literal(new(big.Int).Lsh(lv, uint(n)), l.Type)
		}
		return literal(new(big.Int).Rsh(lv, uint(n)), l.Type)
	case ir.BitAnd:
		return literal(new(big.Int).And(lv, rv), t)
	case ir.BitOr:
		return literal(new(big.Int).Or(lv, rv), t)
	case ir.BitXor:
		return literal(new(big.Int).Xor(lv, rv), t)
	case ir.Eq, ir.Ne, ir.Lt, ir.Le, ir.Gt, ir.Ge:
		return &ir.BoolLit{Value: compare(b.Op, lv.Cmp(rv))}
	case ir.Concat:
		lt, lok := bitsType(l.Type)
		rt, rok := bitsType(r.Type)
		if !lok || !rok {
			return b
		}
		v := new(big.Int).Lsh(unsigned(l), uint(rt.Width))
		v.Or(v, unsigned(r))
		return literal(v, &ir.BitsType{Width: lt.Width + rt.Width, Signed: lt.Signed})
	}
	return b
}

func compare(op ir.BinOp, c int) bool {
	switch op {
	case ir.Eq:
		return c == 0
	case ir.Ne:
		return c != 0
	case ir.Lt:
		return c < 0
	case ir.Le:
		return c <= 0
	case ir.Gt:
		return c > 0
	default:
		return c >= 0
	}
}

// foldLogical short-circuits && and || over a literal left operand.
func foldLogical(b *ir.Binary) ir.Expr {
	l, ok := b.Left.(*ir.BoolLit)
	if !ok {
		return b
	}
	switch {
	case b.Op == ir.LogAnd && !l.Value, b.Op == ir.LogOr && l.Value:
		return &ir.BoolLit{Value: l.Value}
	default:
		return b.Right
	}
}

func foldUnary(u *ir.Unary) ir.Expr {
	switch x := u.Expr.(type) {
	case *ir.BoolLit:
		if u.Op == ir.LogNot {
			return &ir.BoolLit{Value: !x.Value}
		}
	case *ir.Constant:
		switch u.Op {
		case ir.Neg:
			return literal(new(big.Int).Neg(x.Value), x.Type)
		case ir.Cmpl:
			if _, ok := bitsType(x.Type); ok {
				return literal(new(big.Int).Not(x.Value), x.Type)
			}
		}
	}
	return u
}

func foldCast(c *ir.Cast) ir.Expr {
	switch x := c.Expr.(type) {
	case *ir.Constant:
		switch t := c.Type.(type) {
		case *ir.BitsType:
			return literal(new(big.Int).Set(x.Value), t)
		case *ir.BoolType:
			return &ir.BoolLit{Value: x.Value.Sign() != 0}
		}
	case *ir.BoolLit:
		if t, ok := c.Type.(*ir.BitsType); ok {
			v := int64(0)
			if x.Value {
				v = 1
			}
			return ir.NewConstant(v, t)
		}
	}
	return c
}

// foldIf replaces a conditional on a literal by the branch taken.
func foldIf(s ir.Stmt) ir.Stmt {
	x, ok := s.(*ir.IfStmt)
	if !ok {
		return s
	}
	b, ok := x.Cond.(*ir.BoolLit)
	if !ok {
		return s
	}
	branch := x.Else
	if b.Value {
		branch = x.Then
	}
	if branch == nil {
		return &ir.EmptyStmt{}
	}
	return branch
}

// keysetMatches reports whether ks matches the literal key. ok is false when
// the keyset is not a literal.
func keysetMatches(ks *ir.Keyset, key *ir.Constant) (match, ok bool) {
	if ks.Default {
		return true, true
	}
	v, vok := ks.Value.(*ir.Constant)
	if !vok {
		return false, false
	}
	k := unsigned(key)
	want := unsigned(v)
	if ks.Mask != nil {
		m, mok := ks.Mask.(*ir.Constant)
		if !mok {
			return false, false
		}
		mask := unsigned(m)
		k = new(big.Int).And(k, mask)
		want = new(big.Int).And(want, mask)
	}
	return k.Cmp(want) == 0, true
}

// foldSelect turns a select over literal keys into a direct transition.
func foldSelect(st *ir.ParserState) *ir.ParserState {
	sel, ok := st.Transition.(*ir.Select)
	if !ok {
		return st
	}
	keys := make([]*ir.Constant, len(sel.Keys))
	for i, k := range sel.Keys {
		c, ok := k.(*ir.Constant)
		if !ok {
			return st
		}
		keys[i] = c
	}
	target := ir.Reject
	for _, c := range sel.Cases {
		if c.IsDefault() {
			target = c.State
			break
		}
		all := len(c.Keysets) == len(keys)
		for i := 0; all && i < len(keys); i++ {
			match, ok := keysetMatches(c.Keysets[i], keys[i])
			if !ok {
				return st
			}
			all = match
		}
		if all {
			target = c.State
			break
		}
	}
	return &ir.ParserState{Name: st.Name, Components: st.Components, Transition: &ir.Goto{State: target}}
}
