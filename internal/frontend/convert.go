package frontend

import (
	"fmt"

	"p4fpga/internal/diag"
	"p4fpga/internal/ir"
)

// converter turns a document into IR, reporting each malformed element
// with the path of the declaration it belongs to.
type converter struct {
	reporter *diag.Reporter
	errCount int
}

func (c *converter) fail(where string, err error) {
	c.errCount++
	c.reporter.Error("%1%: %2%", where, err)
}

func (c *converter) typ(where, src string) ir.Type {
	t, err := ParseType(src)
	if err != nil {
		c.fail(where, err)
		return &ir.BoolType{}
	}
	return t
}

func (c *converter) expr(where, src string) ir.Expr {
	e, err := ParseExpr(src)
	if err != nil {
		c.fail(where, err)
		return &ir.BoolLit{}
	}
	return e
}

func (c *converter) optExpr(where, src string) ir.Expr {
	if src == "" {
		return nil
	}
	return c.expr(where, src)
}

func (c *converter) program(doc *Document) *ir.Program {
	return &ir.Program{Decls: c.decls("", doc.Decls)}
}

func (c *converter) decls(scope string, list []Decl) []ir.Decl {
	var out []ir.Decl
	for _, d := range list {
		if x := c.decl(scope, d); x != nil {
			out = append(out, x)
		}
	}
	return out
}

func qualify(scope, name string) string {
	if scope == "" {
		return name
	}
	return scope + "." + name
}

func (c *converter) decl(scope string, d Decl) ir.Decl {
	switch {
	case d.Header != nil:
		return &ir.HeaderType{Name: d.Header.Name, Fields: c.fields(qualify(scope, d.Header.Name), d.Header.Fields)}
	case d.Struct != nil:
		return &ir.StructType{Name: d.Struct.Name, Fields: c.fields(qualify(scope, d.Struct.Name), d.Struct.Fields)}
	case d.Extern != nil:
		where := qualify(scope, d.Extern.Name)
		ext := &ir.ExternType{Name: d.Extern.Name}
		for _, m := range d.Extern.Methods {
			ext.Methods = append(ext.Methods, &ir.Method{Name: m.Name, Params: c.params(where+"."+m.Name, m.Params)})
		}
		return ext
	case d.Package != nil:
		pkg := &ir.PackageType{Name: d.Package.Name}
		for _, p := range d.Package.Params {
			kind := ir.ControlBlock
			switch p.Kind {
			case "parser":
				kind = ir.ParserBlock
			case "control":
			default:
				c.fail(qualify(scope, d.Package.Name)+"."+p.Name, fmt.Errorf("kind must be parser or control, got %q", p.Kind))
			}
			pkg.Params = append(pkg.Params, &ir.PackageParam{Name: p.Name, Kind: kind})
		}
		return pkg
	case d.Parser != nil:
		return c.parser(qualify(scope, d.Parser.Name), d.Parser)
	case d.Control != nil:
		where := qualify(scope, d.Control.Name)
		return &ir.Control{
			Name:   d.Control.Name,
			Params: c.params(where, d.Control.Params),
			Locals: c.decls(where, d.Control.Locals),
			Body:   c.block(where, d.Control.Body),
		}
	case d.Action != nil:
		where := qualify(scope, d.Action.Name)
		return &ir.Action{Name: d.Action.Name, Params: c.params(where, d.Action.Params), Body: c.block(where, d.Action.Body)}
	case d.Table != nil:
		return c.table(qualify(scope, d.Table.Name), d.Table)
	case d.Var != nil:
		return c.variable(scope, d.Var)
	case d.Const != nil:
		where := qualify(scope, d.Const.Name)
		return &ir.ConstDecl{Name: d.Const.Name, Type: c.typ(where, d.Const.Type), Value: c.expr(where, d.Const.Value)}
	case d.Instance != nil:
		where := qualify(scope, d.Instance.Name)
		inst := &ir.Instantiation{Name: d.Instance.Name, Type: d.Instance.Type}
		for _, a := range d.Instance.Args {
			e, err := parseCtorArg(a)
			if err != nil {
				c.fail(where, err)
				continue
			}
			inst.Args = append(inst.Args, e)
		}
		return inst
	}
	c.fail(qualify(scope, "<decl>"), fmt.Errorf("empty declaration"))
	return nil
}

func (c *converter) fields(where string, list []Field) []*ir.Field {
	out := make([]*ir.Field, 0, len(list))
	for _, f := range list {
		out = append(out, &ir.Field{Name: f.Name, Type: c.typ(where+"."+f.Name, f.Type)})
	}
	return out
}

func (c *converter) params(where string, list []Param) []*ir.Param {
	var out []*ir.Param
	for _, p := range list {
		dir := ir.DirNone
		switch p.Dir {
		case "":
		case "in":
			dir = ir.DirIn
		case "out":
			dir = ir.DirOut
		case "inout":
			dir = ir.DirInOut
		default:
			c.fail(where+"."+p.Name, fmt.Errorf("unknown direction %q", p.Dir))
		}
		out = append(out, &ir.Param{Name: p.Name, Dir: dir, Type: c.typ(where+"."+p.Name, p.Type)})
	}
	return out
}

func (c *converter) variable(scope string, v *Var) *ir.Variable {
	where := qualify(scope, v.Name)
	return &ir.Variable{Name: v.Name, Type: c.typ(where, v.Type), Init: c.optExpr(where, v.Init)}
}

func (c *converter) parser(where string, p *Parser) *ir.Parser {
	out := &ir.Parser{
		Name:   p.Name,
		Params: c.params(where, p.Params),
		Locals: c.decls(where, p.Locals),
	}
	for _, st := range p.States {
		sw := where + "." + st.Name
		state := &ir.ParserState{Name: st.Name, Components: c.stmts(sw, st.Body)}
		switch {
		case st.Select != nil:
			sel := &ir.Select{}
			for _, k := range st.Select.Keys {
				sel.Keys = append(sel.Keys, c.expr(sw, k))
			}
			for _, cs := range st.Select.Cases {
				sc := &ir.SelectCase{State: cs.Next}
				for _, ks := range cs.Keysets {
					k, err := parseKeyset(ks)
					if err != nil {
						c.fail(sw, err)
						continue
					}
					sc.Keysets = append(sc.Keysets, k)
				}
				sel.Cases = append(sel.Cases, sc)
			}
			state.Transition = sel
		case st.Goto != "":
			state.Transition = &ir.Goto{State: st.Goto}
		default:
			state.Transition = &ir.Goto{State: ir.Reject}
		}
		out.States = append(out.States, state)
	}
	return out
}

func (c *converter) table(where string, t *Table) *ir.Table {
	out := &ir.Table{Name: t.Name, Size: t.Size}
	for _, k := range t.Keys {
		out.Keys = append(out.Keys, &ir.KeyElement{Expr: c.expr(where, k.Expr), MatchKind: k.Match})
	}
	for _, a := range t.Actions {
		if ref := c.actionRef(where, a); ref != nil {
			out.Actions = append(out.Actions, ref)
		}
	}
	if t.Default != "" {
		out.Default = c.actionRef(where, t.Default)
	}
	return out
}

func (c *converter) actionRef(where, src string) *ir.ActionRef {
	switch e := c.expr(where, src).(type) {
	case *ir.PathExpr:
		return &ir.ActionRef{Action: e}
	case *ir.MethodCall:
		if p, ok := e.Method.(*ir.PathExpr); ok {
			return &ir.ActionRef{Action: p, Args: e.Args}
		}
	}
	c.fail(where, fmt.Errorf("%q is not an action reference", src))
	return nil
}

func (c *converter) block(where string, list []Stmt) *ir.BlockStmt {
	return &ir.BlockStmt{Stmts: c.stmts(where, list)}
}

func (c *converter) stmts(where string, list []Stmt) []ir.Stmt {
	var out []ir.Stmt
	for _, s := range list {
		out = append(out, c.stmt(where, s))
	}
	return out
}

func (c *converter) stmt(where string, s Stmt) ir.Stmt {
	switch {
	case s.If != "":
		is := &ir.IfStmt{Cond: c.expr(where, s.If), Then: c.block(where, s.Then)}
		if s.Else != nil {
			is.Else = c.block(where, s.Else)
		}
		return is
	case s.Var != nil:
		return &ir.VarDeclStmt{Var: c.variable(where, s.Var)}
	case s.Block != nil:
		return c.block(where, s.Block)
	}
	st, err := parseSimpleStmt(s.Do)
	if err != nil {
		c.fail(where, err)
		return &ir.EmptyStmt{}
	}
	return st
}
