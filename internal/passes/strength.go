package passes

import (
	"math/big"

	"p4fpga/internal/ir"
)

// StrengthReduction rewrites arithmetic identities and multiplications and
// unsigned divisions by powers of two into cheaper operations.
type StrengthReduction struct{}

// NewStrengthReduction constructs the pass.
func NewStrengthReduction() *StrengthReduction {
	return &StrengthReduction{}
}

// Name implements the Pass interface.
func (*StrengthReduction) Name() string {
	return "strength-reduction"
}

// Run implements the Pass interface.
func (*StrengthReduction) Run(env *Env, prog *ir.Program) (*ir.Program, error) {
	rw := &ir.Rewriter{Expr: reduce}
	return rw.RewriteProgram(prog), nil
}

func constValue(e ir.Expr) (*ir.Constant, bool) {
	c, ok := e.(*ir.Constant)
	return c, ok
}

func isValue(e ir.Expr, v int64) bool {
	c, ok := constValue(e)
	return ok && c.Value.Cmp(big.NewInt(v)) == 0
}

// log2 returns k when e is the literal 2^k with k > 0.
func log2(e ir.Expr) (int, bool) {
	c, ok := constValue(e)
	if !ok || c.Value.Sign() <= 0 {
		return 0, false
	}
	k := c.Value.BitLen() - 1
	if k == 0 || c.Value.TrailingZeroBits() != uint(k) {
		return 0, false
	}
	return k, true
}

func isUnsigned(e ir.Expr) bool {
	c, ok := constValue(e)
	if !ok {
		return false
	}
	b, ok := c.Type.(*ir.BitsType)
	return ok && !b.Signed
}

func reduce(e ir.Expr) ir.Expr {
	switch x := e.(type) {
	case *ir.Unary:
		if in, ok := x.Expr.(*ir.Unary); ok && in.Op == x.Op && x.Op != ir.Neg {
			return in.Expr
		}
	case *ir.Binary:
		return reduceBinary(x)
	}
	return e
}

func reduceBinary(b *ir.Binary) ir.Expr {
	l, r := b.Left, b.Right
	switch b.Op {
	case ir.Add, ir.BitOr, ir.BitXor:
		if isValue(r, 0) {
			return l
		}
		if isValue(l, 0) {
			return r
		}
	case ir.Sub, ir.Shl, ir.Shr:
		if isValue(r, 0) {
			return l
		}
	case ir.BitAnd:
		if isValue(r, 0) && !hasCall(l) {
			return r
		}
		if isValue(l, 0) && !hasCall(r) {
			return l
		}
	case ir.Mul:
		switch {
		case isValue(r, 1):
			return l
		case isValue(l, 1):
			return r
		case isValue(r, 0) && !hasCall(l):
			return r
		case isValue(l, 0) && !hasCall(r):
			return l
		}
		if k, ok := log2(r); ok {
			return &ir.Binary{Op: ir.Shl, Left: l, Right: ir.NewConstant(int64(k), nil)}
		}
		if k, ok := log2(l); ok {
			return &ir.Binary{Op: ir.Shl, Left: r, Right: ir.NewConstant(int64(k), nil)}
		}
	case ir.Div:
		if isValue(r, 1) {
			return l
		}
		if k, ok := log2(r); ok && isUnsigned(r) {
			return &ir.Binary{Op: ir.Shr, Left: l, Right: ir.NewConstant(int64(k), nil)}
		}
	case ir.Mod:
		if k, ok := log2(r); ok && isUnsigned(r) {
			c := r.(*ir.Constant)
			mask := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), uint(k)), big.NewInt(1))
			return &ir.Binary{Op: ir.BitAnd, Left: l, Right: &ir.Constant{Value: mask, Type: c.Type}}
		}
	case ir.LogAnd:
		if b, ok := r.(*ir.BoolLit); ok && b.Value {
			return l
		}
	case ir.LogOr:
		if b, ok := r.(*ir.BoolLit); ok && !b.Value {
			return l
		}
	}
	return b
}
