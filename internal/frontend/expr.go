package frontend

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"p4fpga/internal/ir"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokNumber
	tokPunct
)

type token struct {
	kind tokenKind
	text string
}

var puncts = []string{
	"&&&", "&&", "||", "==", "!=", "<=", ">=", "<<", ">>", "++",
	"+", "-", "*", "/", "%", "&", "|", "^", "~", "!", "<", ">",
	"(", ")", "[", "]", ".", ",", ":", "=", ";",
}

func isIdentStart(c byte) bool {
	return c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

func isIdentChar(c byte) bool {
	return isIdentStart(c) || c >= '0' && c <= '9'
}

func lex(src string) ([]token, error) {
	var toks []token
	for i := 0; i < len(src); {
		c := src[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case isIdentStart(c):
			j := i
			for j < len(src) && isIdentChar(src[j]) {
				j++
			}
			toks = append(toks, token{tokIdent, src[i:j]})
			i = j
		case c >= '0' && c <= '9':
			j := i
			for j < len(src) && isIdentChar(src[j]) {
				j++
			}
			// A width prefix may carry a signed value: 8s-5.
			if j < len(src) && src[j] == '-' && (strings.HasSuffix(src[i:j], "s") || strings.HasSuffix(src[i:j], "w")) {
				j++
				for j < len(src) && isIdentChar(src[j]) {
					j++
				}
			}
			toks = append(toks, token{tokNumber, src[i:j]})
			i = j
		default:
			matched := false
			for _, p := range puncts {
				if strings.HasPrefix(src[i:], p) {
					toks = append(toks, token{tokPunct, p})
					i += len(p)
					matched = true
					break
				}
			}
			if !matched {
				return nil, fmt.Errorf("unexpected character %q", c)
			}
		}
	}
	return append(toks, token{kind: tokEOF}), nil
}

// parseNumber decodes an integer literal with an optional width prefix:
// 5, 0x800, 16w0x800, 8s-5.
func parseNumber(text string) (*ir.Constant, error) {
	var typ ir.Type = &ir.InfIntType{}
	digits := text
	if i := strings.IndexAny(text, "ws"); i > 0 {
		width, err := strconv.Atoi(text[:i])
		if err == nil {
			typ = &ir.BitsType{Width: width, Signed: text[i] == 's'}
			digits = text[i+1:]
		}
	}
	v, ok := new(big.Int).SetString(digits, 0)
	if !ok {
		return nil, fmt.Errorf("invalid number %q", text)
	}
	return &ir.Constant{Value: v, Type: typ}, nil
}

var binaryOps = map[string]struct {
	op   ir.BinOp
	prec int
}{
	"||": {ir.LogOr, 1},
	"&&": {ir.LogAnd, 2},
	"==": {ir.Eq, 3}, "!=": {ir.Ne, 3},
	"<": {ir.Lt, 4}, "<=": {ir.Le, 4}, ">": {ir.Gt, 4}, ">=": {ir.Ge, 4},
	"|":  {ir.BitOr, 5},
	"^":  {ir.BitXor, 6},
	"&":  {ir.BitAnd, 7},
	"<<": {ir.Shl, 8}, ">>": {ir.Shr, 8},
	"+": {ir.Add, 9}, "-": {ir.Sub, 9}, "++": {ir.Concat, 9},
	"*": {ir.Mul, 10}, "/": {ir.Div, 10}, "%": {ir.Mod, 10},
}

var typeKeywords = map[string]bool{"bit": true, "int": true, "varbit": true, "bool": true}

// exprParser is a precedence-climbing parser over one source string.
type exprParser struct {
	toks []token
	pos  int
	err  error
	// ctor makes calls on bare identifiers constructor calls.
	ctor bool
}

func newExprParser(src string) (*exprParser, error) {
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	return &exprParser{toks: toks}, nil
}

func (p *exprParser) peek() token {
	return p.toks[p.pos]
}

func (p *exprParser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *exprParser) is(text string) bool {
	t := p.peek()
	return t.kind == tokPunct && t.text == text
}

func (p *exprParser) accept(text string) bool {
	if p.is(text) {
		p.next()
		return true
	}
	return false
}

func (p *exprParser) expect(text string) {
	if !p.accept(text) {
		p.fail("expected %q, found %q", text, p.peek().text)
	}
}

func (p *exprParser) fail(format string, args ...interface{}) {
	if p.err == nil {
		p.err = fmt.Errorf(format, args...)
	}
	// Stop consuming input after the first problem.
	p.pos = len(p.toks) - 1
}

func (p *exprParser) done() error {
	if p.err == nil && p.peek().kind != tokEOF {
		p.fail("unexpected %q", p.peek().text)
	}
	return p.err
}

func (p *exprParser) expr(minPrec int) ir.Expr {
	left := p.unary()
	for p.err == nil {
		t := p.peek()
		bop, ok := binaryOps[t.text]
		if t.kind != tokPunct || !ok || bop.prec < minPrec {
			return left
		}
		p.next()
		right := p.expr(bop.prec + 1)
		left = &ir.Binary{Op: bop.op, Left: left, Right: right}
	}
	return left
}

func (p *exprParser) unary() ir.Expr {
	switch {
	case p.accept("-"):
		return &ir.Unary{Op: ir.Neg, Expr: p.unary()}
	case p.accept("~"):
		return &ir.Unary{Op: ir.Cmpl, Expr: p.unary()}
	case p.accept("!"):
		return &ir.Unary{Op: ir.LogNot, Expr: p.unary()}
	}
	return p.postfix(p.primary())
}

func (p *exprParser) isCast() bool {
	if !p.is("(") || p.pos+2 >= len(p.toks) {
		return false
	}
	kw, after := p.toks[p.pos+1], p.toks[p.pos+2]
	return kw.kind == tokIdent && typeKeywords[kw.text] &&
		after.kind == tokPunct && (after.text == "<" || after.text == ")")
}

func (p *exprParser) primary() ir.Expr {
	if p.isCast() {
		p.next()
		t := p.typ()
		p.expect(")")
		return &ir.Cast{Type: t, Expr: p.unary()}
	}
	t := p.next()
	switch t.kind {
	case tokIdent:
		switch t.text {
		case "true":
			return &ir.BoolLit{Value: true}
		case "false":
			return &ir.BoolLit{Value: false}
		}
		return &ir.PathExpr{Name: t.text}
	case tokNumber:
		c, err := parseNumber(t.text)
		if err != nil {
			p.fail("%v", err)
			return &ir.Constant{Value: new(big.Int), Type: &ir.InfIntType{}}
		}
		return c
	case tokPunct:
		if t.text == "(" {
			e := p.expr(0)
			p.expect(")")
			return e
		}
	}
	p.fail("unexpected %q", t.text)
	return &ir.PathExpr{Name: "_"}
}

func (p *exprParser) postfix(e ir.Expr) ir.Expr {
	for p.err == nil {
		switch {
		case p.accept("."):
			name := p.next()
			if name.kind != tokIdent {
				p.fail("expected member name, found %q", name.text)
				return e
			}
			e = &ir.Member{Expr: e, Name: name.text}
		case p.accept("("):
			var args []ir.Expr
			for !p.is(")") && p.err == nil {
				args = append(args, p.expr(0))
				if !p.accept(",") {
					break
				}
			}
			p.expect(")")
			if path, ok := e.(*ir.PathExpr); ok && p.ctor {
				e = &ir.ConstructorCall{Type: path.Name, Args: args}
			} else {
				e = &ir.MethodCall{Method: e, Args: args}
			}
		case p.accept("["):
			hi := p.integer()
			p.expect(":")
			lo := p.integer()
			p.expect("]")
			e = &ir.Slice{Expr: e, Hi: hi, Lo: lo}
		default:
			return e
		}
	}
	return e
}

func (p *exprParser) integer() int {
	t := p.next()
	n, err := strconv.Atoi(t.text)
	if t.kind != tokNumber || err != nil {
		p.fail("expected integer, found %q", t.text)
	}
	return n
}

// typ parses bool, int, bit<N>, int<N>, varbit<N>, a type name, and an
// optional [N] stack suffix.
func (p *exprParser) typ() ir.Type {
	t := p.next()
	if t.kind != tokIdent {
		p.fail("expected type, found %q", t.text)
		return &ir.BoolType{}
	}
	var out ir.Type
	switch t.text {
	case "bool":
		out = &ir.BoolType{}
	case "bit", "int", "varbit":
		if !p.accept("<") {
			switch t.text {
			case "bit":
				out = ir.Bits(1)
			case "int":
				out = &ir.InfIntType{}
			default:
				p.fail("varbit needs a width")
				out = &ir.VarbitType{}
			}
			break
		}
		w := p.integer()
		p.expect(">")
		switch t.text {
		case "bit":
			out = ir.Bits(w)
		case "int":
			out = &ir.BitsType{Width: w, Signed: true}
		default:
			out = &ir.VarbitType{Width: w}
		}
	default:
		out = &ir.NamedType{Name: t.text}
	}
	if p.accept("[") {
		n := p.integer()
		p.expect("]")
		out = &ir.StackType{Elem: out, Size: n}
	}
	return out
}

// ParseExpr parses one expression.
func ParseExpr(src string) (ir.Expr, error) {
	p, err := newExprParser(src)
	if err != nil {
		return nil, err
	}
	e := p.expr(0)
	if err := p.done(); err != nil {
		return nil, err
	}
	return e, nil
}

// parseCtorArg parses an instantiation argument, where T(...) constructs.
func parseCtorArg(src string) (ir.Expr, error) {
	p, err := newExprParser(src)
	if err != nil {
		return nil, err
	}
	p.ctor = true
	e := p.expr(0)
	if err := p.done(); err != nil {
		return nil, err
	}
	return e, nil
}

// ParseType parses a type spelled as in P4.
func ParseType(src string) (ir.Type, error) {
	p, err := newExprParser(src)
	if err != nil {
		return nil, err
	}
	t := p.typ()
	if err := p.done(); err != nil {
		return nil, err
	}
	return t, nil
}

// parseSimpleStmt parses an assignment, a call, exit or return.
func parseSimpleStmt(src string) (ir.Stmt, error) {
	src = strings.TrimSuffix(strings.TrimSpace(src), ";")
	switch src {
	case "":
		return &ir.EmptyStmt{}, nil
	case "exit":
		return &ir.ExitStmt{}, nil
	case "return":
		return &ir.ReturnStmt{}, nil
	}
	p, err := newExprParser(src)
	if err != nil {
		return nil, err
	}
	left := p.expr(0)
	if p.accept("=") {
		right := p.expr(0)
		if err := p.done(); err != nil {
			return nil, err
		}
		return &ir.AssignStmt{Left: left, Right: right}, nil
	}
	if err := p.done(); err != nil {
		return nil, err
	}
	call, ok := left.(*ir.MethodCall)
	if !ok {
		return nil, fmt.Errorf("%s is neither an assignment nor a call", src)
	}
	return &ir.CallStmt{Call: call}, nil
}

// parseKeyset parses default, a value, or value &&& mask.
func parseKeyset(src string) (*ir.Keyset, error) {
	src = strings.TrimSpace(src)
	if src == "default" || src == "_" {
		return &ir.Keyset{Default: true}, nil
	}
	value, mask, masked := strings.Cut(src, "&&&")
	v, err := ParseExpr(value)
	if err != nil {
		return nil, err
	}
	ks := &ir.Keyset{Value: v}
	if masked {
		if ks.Mask, err = ParseExpr(mask); err != nil {
			return nil, err
		}
	}
	return ks, nil
}
