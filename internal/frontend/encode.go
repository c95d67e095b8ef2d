package frontend

import (
	"strings"

	"p4fpga/internal/ir"
)

// FromProgram converts a program into its document form.
func FromProgram(prog *ir.Program) *Document {
	if prog == nil {
		return &Document{}
	}
	return &Document{Decls: fromDecls(prog.Decls)}
}

func fromDecls(list []ir.Decl) []Decl {
	var out []Decl
	for _, d := range list {
		out = append(out, fromDecl(d))
	}
	return out
}

func fromDecl(d ir.Decl) Decl {
	switch x := d.(type) {
	case *ir.HeaderType:
		return Decl{Header: &Record{Name: x.Name, Fields: fromFields(x.Fields)}}
	case *ir.StructType:
		return Decl{Struct: &Record{Name: x.Name, Fields: fromFields(x.Fields)}}
	case *ir.ExternType:
		ext := &Extern{Name: x.Name}
		for _, m := range x.Methods {
			ext.Methods = append(ext.Methods, Method{Name: m.Name, Params: fromParams(m.Params)})
		}
		return Decl{Extern: ext}
	case *ir.PackageType:
		pkg := &Package{Name: x.Name}
		for _, p := range x.Params {
			pkg.Params = append(pkg.Params, PackageParam{Name: p.Name, Kind: p.Kind.String()})
		}
		return Decl{Package: pkg}
	case *ir.Parser:
		p := &Parser{Name: x.Name, Params: fromParams(x.Params), Locals: fromDecls(x.Locals)}
		for _, st := range x.States {
			p.States = append(p.States, fromState(st))
		}
		return Decl{Parser: p}
	case *ir.Control:
		return Decl{Control: &Control{Name: x.Name, Params: fromParams(x.Params), Locals: fromDecls(x.Locals), Body: fromBlock(x.Body)}}
	case *ir.Action:
		return Decl{Action: &Action{Name: x.Name, Params: fromParams(x.Params), Body: fromBlock(x.Body)}}
	case *ir.Table:
		t := &Table{Name: x.Name, Size: x.Size, Actions: []string{}}
		for _, k := range x.Keys {
			t.Keys = append(t.Keys, Key{Expr: ir.ExprString(k.Expr), Match: k.MatchKind})
		}
		for _, a := range x.Actions {
			t.Actions = append(t.Actions, actionRef(a))
		}
		if x.Default != nil {
			t.Default = actionRef(x.Default)
		}
		return Decl{Table: t}
	case *ir.Variable:
		return Decl{Var: fromVar(x)}
	case *ir.ConstDecl:
		return Decl{Const: &Const{Name: x.Name, Type: x.Type.String(), Value: ir.ExprString(x.Value)}}
	case *ir.Instantiation:
		inst := &Instance{Name: x.Name, Type: x.Type}
		for _, a := range x.Args {
			inst.Args = append(inst.Args, ir.ExprString(a))
		}
		return Decl{Instance: inst}
	}
	return Decl{}
}

func fromFields(list []*ir.Field) []Field {
	out := make([]Field, 0, len(list))
	for _, f := range list {
		out = append(out, Field{Name: f.Name, Type: f.Type.String()})
	}
	return out
}

func fromParams(list []*ir.Param) []Param {
	var out []Param
	for _, p := range list {
		out = append(out, Param{Name: p.Name, Dir: p.Dir.String(), Type: p.Type.String()})
	}
	return out
}

func fromVar(v *ir.Variable) *Var {
	out := &Var{Name: v.Name, Type: v.Type.String()}
	if v.Init != nil {
		out.Init = ir.ExprString(v.Init)
	}
	return out
}

func actionRef(a *ir.ActionRef) string {
	if len(a.Args) == 0 {
		return a.Action.Name
	}
	args := make([]string, len(a.Args))
	for i, e := range a.Args {
		args[i] = ir.ExprString(e)
	}
	return a.Action.Name + "(" + strings.Join(args, ", ") + ")"
}

func fromState(st *ir.ParserState) State {
	out := State{Name: st.Name, Body: fromStmts(st.Components)}
	switch t := st.Transition.(type) {
	case *ir.Goto:
		out.Goto = t.State
	case *ir.Select:
		sel := &Select{}
		for _, k := range t.Keys {
			sel.Keys = append(sel.Keys, ir.ExprString(k))
		}
		for _, cs := range t.Cases {
			c := Case{Next: cs.State}
			for _, ks := range cs.Keysets {
				c.Keysets = append(c.Keysets, keyset(ks))
			}
			sel.Cases = append(sel.Cases, c)
		}
		out.Select = sel
	}
	return out
}

func keyset(ks *ir.Keyset) string {
	switch {
	case ks.Default:
		return "default"
	case ks.Mask != nil:
		return ir.ExprString(ks.Value) + " &&& " + ir.ExprString(ks.Mask)
	}
	return ir.ExprString(ks.Value)
}

func fromBlock(b *ir.BlockStmt) []Stmt {
	if b == nil {
		return nil
	}
	return fromStmts(b.Stmts)
}

func fromStmts(list []ir.Stmt) []Stmt {
	var out []Stmt
	for _, s := range list {
		out = append(out, fromStmt(s))
	}
	return out
}

func fromStmt(s ir.Stmt) Stmt {
	switch x := s.(type) {
	case *ir.AssignStmt:
		return Stmt{Do: ir.ExprString(x.Left) + " = " + ir.ExprString(x.Right)}
	case *ir.CallStmt:
		return Stmt{Do: ir.ExprString(x.Call)}
	case *ir.IfStmt:
		out := Stmt{If: ir.ExprString(x.Cond), Then: fromStmts(ir.Flatten(x.Then))}
		if x.Else != nil {
			out.Else = fromStmts(ir.Flatten(x.Else))
		}
		return out
	case *ir.BlockStmt:
		return Stmt{Block: fromStmts(x.Stmts)}
	case *ir.ExitStmt:
		return Stmt{Do: "exit"}
	case *ir.ReturnStmt:
		return Stmt{Do: "return"}
	case *ir.VarDeclStmt:
		return Stmt{Var: fromVar(x.Var)}
	}
	return Stmt{}
}
