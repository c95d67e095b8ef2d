package ir

import (
	"fmt"
	"io"
	"strings"
)

// Dump writes a P4-like rendering of the program. The output is stable and
// is what tests compare when checking that two programs are equivalent.
func Dump(prog *Program, w io.Writer) {
	if prog == nil {
		fmt.Fprintln(w, "<nil program>")
		return
	}
	p := &printer{w: w}
	for _, d := range prog.Decls {
		p.decl(d)
	}
}

// String renders a program with Dump.
func String(prog *Program) string {
	var b strings.Builder
	Dump(prog, &b)
	return b.String()
}

type printer struct {
	w      io.Writer
	indent int
}

func (p *printer) line(format string, args ...interface{}) {
	fmt.Fprint(p.w, strings.Repeat("    ", p.indent))
	fmt.Fprintf(p.w, format, args...)
	fmt.Fprintln(p.w)
}

func (p *printer) decl(d Decl) {
	switch x := d.(type) {
	case *HeaderType:
		p.fields("header", x.Name, x.Fields)
	case *StructType:
		p.fields("struct", x.Name, x.Fields)
	case *ExternType:
		p.line("extern %s {", x.Name)
		p.indent++
		for _, m := range x.Methods {
			p.line("void %s(%s);", m.Name, params(m.Params))
		}
		p.indent--
		p.line("}")
	case *PackageType:
		parts := make([]string, len(x.Params))
		for i, pp := range x.Params {
			parts[i] = pp.Kind.String() + " " + pp.Name
		}
		p.line("package %s(%s);", x.Name, strings.Join(parts, ", "))
	case *Parser:
		p.line("parser %s(%s) {", x.Name, params(x.Params))
		p.indent++
		for _, l := range x.Locals {
			p.decl(l)
		}
		for _, s := range x.States {
			p.state(s)
		}
		p.indent--
		p.line("}")
	case *Control:
		p.line("control %s(%s) {", x.Name, params(x.Params))
		p.indent++
		for _, l := range x.Locals {
			p.decl(l)
		}
		p.line("apply {")
		p.indent++
		if x.Body != nil {
			p.stmts(x.Body.Stmts)
		}
		p.indent--
		p.line("}")
		p.indent--
		p.line("}")
	case *Action:
		p.line("action %s(%s) {", x.Name, params(x.Params))
		p.indent++
		if x.Body != nil {
			p.stmts(x.Body.Stmts)
		}
		p.indent--
		p.line("}")
	case *Table:
		p.line("table %s {", x.Name)
		p.indent++
		if len(x.Keys) > 0 {
			p.line("key = {")
			p.indent++
			for _, k := range x.Keys {
				p.line("%s : %s;", ExprString(k.Expr), k.MatchKind)
			}
			p.indent--
			p.line("}")
		}
		p.line("actions = {")
		p.indent++
		for _, a := range x.Actions {
			p.line("%s;", actionRefString(a))
		}
		p.indent--
		p.line("}")
		if x.Default != nil {
			p.line("default_action = %s;", actionRefString(x.Default))
		}
		if x.Size > 0 {
			p.line("size = %d;", x.Size)
		}
		p.indent--
		p.line("}")
	case *Variable:
		p.line("%s;", variableString(x))
	case *ConstDecl:
		p.line("const %s %s = %s;", x.Type, x.Name, ExprString(x.Value))
	case *Instantiation:
		p.line("%s(%s) %s;", x.Type, exprList(x.Args), x.Name)
	default:
		p.line("<unknown decl %T>", d)
	}
}

func (p *printer) fields(kind, name string, fields []*Field) {
	p.line("%s %s {", kind, name)
	p.indent++
	for _, f := range fields {
		p.line("%s %s;", f.Type, f.Name)
	}
	p.indent--
	p.line("}")
}

func (p *printer) state(s *ParserState) {
	p.line("state %s {", s.Name)
	p.indent++
	p.stmts(s.Components)
	switch t := s.Transition.(type) {
	case *Goto:
		p.line("transition %s;", t.State)
	case *Select:
		p.line("transition select(%s) {", exprList(t.Keys))
		p.indent++
		for _, c := range t.Cases {
			sets := make([]string, len(c.Keysets))
			for i, ks := range c.Keysets {
				sets[i] = keysetString(ks)
			}
			label := strings.Join(sets, ", ")
			if len(sets) > 1 {
				label = "(" + label + ")"
			}
			p.line("%s: %s;", label, c.State)
		}
		p.indent--
		p.line("}")
	}
	p.indent--
	p.line("}")
}

func (p *printer) stmts(list []Stmt) {
	for _, s := range list {
		p.stmt(s)
	}
}

func (p *printer) stmt(s Stmt) {
	switch x := s.(type) {
	case *AssignStmt:
		p.line("%s = %s;", ExprString(x.Left), ExprString(x.Right))
	case *CallStmt:
		p.line("%s;", ExprString(x.Call))
	case *IfStmt:
		p.line("if (%s) {", ExprString(x.Cond))
		p.indent++
		p.stmts(Flatten(x.Then))
		p.indent--
		if x.Else != nil {
			p.line("} else {")
			p.indent++
			p.stmts(Flatten(x.Else))
			p.indent--
		}
		p.line("}")
	case *BlockStmt:
		p.line("{")
		p.indent++
		p.stmts(x.Stmts)
		p.indent--
		p.line("}")
	case *ReturnStmt:
		p.line("return;")
	case *ExitStmt:
		p.line("exit;")
	case *EmptyStmt:
		p.line(";")
	case *VarDeclStmt:
		p.line("%s;", variableString(x.Var))
	default:
		p.line("<unknown stmt %T>", s)
	}
}

func params(list []*Param) string {
	parts := make([]string, len(list))
	for i, prm := range list {
		if prm.Dir != DirNone {
			parts[i] = fmt.Sprintf("%s %s %s", prm.Dir, prm.Type, prm.Name)
		} else {
			parts[i] = fmt.Sprintf("%s %s", prm.Type, prm.Name)
		}
	}
	return strings.Join(parts, ", ")
}

func variableString(v *Variable) string {
	if v.Init != nil {
		return fmt.Sprintf("%s %s = %s", v.Type, v.Name, ExprString(v.Init))
	}
	return fmt.Sprintf("%s %s", v.Type, v.Name)
}

func actionRefString(a *ActionRef) string {
	if len(a.Args) == 0 {
		return a.Action.Name
	}
	return fmt.Sprintf("%s(%s)", a.Action.Name, exprList(a.Args))
}

func keysetString(ks *Keyset) string {
	switch {
	case ks.Default:
		return "default"
	case ks.Mask != nil:
		return ExprString(ks.Value) + " &&& " + ExprString(ks.Mask)
	default:
		return ExprString(ks.Value)
	}
}

func exprList(list []Expr) string {
	parts := make([]string, len(list))
	for i, e := range list {
		parts[i] = ExprString(e)
	}
	return strings.Join(parts, ", ")
}

// ExprString renders an expression in P4 syntax.
func ExprString(e Expr) string {
	switch x := e.(type) {
	case nil:
		return "<nil>"
	case *Constant:
		if bt, ok := x.Type.(*BitsType); ok {
			if bt.Signed {
				return fmt.Sprintf("%ds%s", bt.Width, x.Value.String())
			}
			return fmt.Sprintf("%dw%s", bt.Width, x.Value.String())
		}
		return x.Value.String()
	case *BoolLit:
		if x.Value {
			return "true"
		}
		return "false"
	case *PathExpr:
		return x.Name
	case *Member:
		return ExprString(x.Expr) + "." + x.Name
	case *Binary:
		return fmt.Sprintf("(%s %s %s)", ExprString(x.Left), x.Op, ExprString(x.Right))
	case *Unary:
		return x.Op.String() + ExprString(x.Expr)
	case *Cast:
		return fmt.Sprintf("(%s)%s", x.Type, ExprString(x.Expr))
	case *Slice:
		return fmt.Sprintf("%s[%d:%d]", ExprString(x.Expr), x.Hi, x.Lo)
	case *MethodCall:
		return fmt.Sprintf("%s(%s)", ExprString(x.Method), exprList(x.Args))
	case *ConstructorCall:
		return fmt.Sprintf("%s(%s)", x.Type, exprList(x.Args))
	default:
		return fmt.Sprintf("<unknown expr %T>", e)
	}
}

// StmtLines renders one statement as a list of lines. Nested statements
// keep their indentation.
func StmtLines(s Stmt) []string {
	var b strings.Builder
	p := &printer{w: &b}
	p.stmt(s)
	return strings.Split(strings.TrimSuffix(b.String(), "\n"), "\n")
}
